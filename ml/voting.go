package ml

import (
	"errors"
	"fmt"
)

// Estimator is a named member of a VotingClassifier.
type Estimator struct {
	Name  string
	Model *Pipeline
}

// VotingClassifier predicts the class chosen by the most estimators. Ties go to the
// smallest class code.
type VotingClassifier struct {
	Estimators []Estimator
	Classes    int
}

func NewVotingClassifier(estimators ...Estimator) *VotingClassifier {
	return &VotingClassifier{Estimators: estimators}
}

func (v *VotingClassifier) Fit(features [][]float64, labels []int) error {
	if len(v.Estimators) == 0 {
		return errors.New("voting classifier has no estimators")
	}
	_, classes, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	for _, est := range v.Estimators {
		if err := est.Model.Fit(features, labels); err != nil {
			return fmt.Errorf("fit %s: %w", est.Name, err)
		}
	}
	v.Classes = classes
	return nil
}

func (v *VotingClassifier) Predict(features []float64) (int, error) {
	if v.Classes == 0 {
		return 0, ErrNotTrained
	}
	votes := make([]int, len(v.Estimators))
	for i, est := range v.Estimators {
		label, err := est.Model.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", est.Name, err)
		}
		votes[i] = label
	}
	return majorityVote(votes, v.Classes), nil
}
