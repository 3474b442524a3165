package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ModelTypeLogistic = "logistic_regression"
	ModelTypeForest   = "random_forest"
	ModelTypeKNN      = "knn"

	votingHard = "hard"
)

type estimatorFile struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Scaler *StandardScaler `json:"scaler,omitempty"`
	Params json.RawMessage `json:"params"`
}

type votingFile struct {
	Voting     string          `json:"voting"`
	Classes    int             `json:"classes"`
	Estimators []estimatorFile `json:"estimators"`
}

func modelType(model Classifier) (string, error) {
	switch model.(type) {
	case *LogisticRegression:
		return ModelTypeLogistic, nil
	case *RandomForest:
		return ModelTypeForest, nil
	case *KNN:
		return ModelTypeKNN, nil
	default:
		return "", fmt.Errorf("unsupported model %T", model)
	}
}

func newModel(modelType string) (Classifier, error) {
	switch modelType {
	case ModelTypeLogistic:
		return &LogisticRegression{}, nil
	case ModelTypeForest:
		return &RandomForest{}, nil
	case ModelTypeKNN:
		return &KNN{}, nil
	default:
		return nil, errors.New("unsupported model type")
	}
}

func (v *VotingClassifier) MarshalJSON() ([]byte, error) {
	file := votingFile{Voting: votingHard, Classes: v.Classes}
	for _, est := range v.Estimators {
		t, err := modelType(est.Model.Model)
		if err != nil {
			return nil, fmt.Errorf("estimator %s: %w", est.Name, err)
		}
		params, err := json.Marshal(est.Model.Model)
		if err != nil {
			return nil, fmt.Errorf("estimator %s: %w", est.Name, err)
		}
		file.Estimators = append(file.Estimators, estimatorFile{
			Name:   est.Name,
			Type:   t,
			Scaler: est.Model.Scaler,
			Params: params,
		})
	}
	return json.Marshal(file)
}

func (v *VotingClassifier) UnmarshalJSON(data []byte) error {
	var file votingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Voting != votingHard {
		return fmt.Errorf("unsupported voting rule %q", file.Voting)
	}
	if len(file.Estimators) == 0 {
		return errors.New("voting classifier has no estimators")
	}
	estimators := make([]Estimator, 0, len(file.Estimators))
	for _, ef := range file.Estimators {
		model, err := newModel(ef.Type)
		if err != nil {
			return fmt.Errorf("estimator %s: %w: %q", ef.Name, err, ef.Type)
		}
		if err := json.Unmarshal(ef.Params, model); err != nil {
			return fmt.Errorf("estimator %s: %w", ef.Name, err)
		}
		estimators = append(estimators, Estimator{
			Name:  ef.Name,
			Model: &Pipeline{Scaler: ef.Scaler, Model: model},
		})
	}
	v.Estimators = estimators
	v.Classes = file.Classes
	return nil
}

func (v *VotingClassifier) Save(path string) error {
	if v.Classes == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, payload)
}

// LoadModel reads a VotingClassifier written by Save.
func LoadModel(path string) (*VotingClassifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model := &VotingClassifier{}
	if err := json.Unmarshal(payload, model); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if model.Classes == 0 {
		return nil, fmt.Errorf("model %s: %w", path, ErrNotTrained)
	}
	return model, nil
}

// writeFileAtomic replaces path so readers never observe a partially written artifact.
func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteJSON writes v as indented JSON through writeFileAtomic.
func WriteJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, payload)
}
