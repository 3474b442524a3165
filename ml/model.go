package ml

import (
	"errors"
	"fmt"
)

var (
	ErrNotTrained    = errors.New("model not trained")
	ErrEmptyDataset  = errors.New("features or labels empty")
	ErrSizeMismatch  = errors.New("features and labels size mismatch")
	ErrFeatureLength = errors.New("feature vector length mismatch")
)

// Classifier is a supervised learner over dense float features and integer class codes.
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(features []float64) (int, error)
}

// PredictAll runs c over every row.
func PredictAll(c Classifier, rows [][]float64) ([]int, error) {
	out := make([]int, len(rows))
	for i, row := range rows {
		label, err := c.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

func validateTrainingSet(features [][]float64, labels []int) (width int, classes int, err error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, 0, ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return 0, 0, ErrSizeMismatch
	}
	width = len(features[0])
	for i, row := range features {
		if len(row) != width {
			return 0, 0, fmt.Errorf("row %d: %w", i, ErrFeatureLength)
		}
	}
	for _, label := range labels {
		if label < 0 {
			return 0, 0, fmt.Errorf("negative class code %d", label)
		}
		if label+1 > classes {
			classes = label + 1
		}
	}
	return width, classes, nil
}

// balancedWeights returns n / (k * count_c) per class, the scikit "balanced" heuristic.
func balancedWeights(labels []int, classes int) []float64 {
	counts := make([]int, classes)
	for _, label := range labels {
		counts[label]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	weights := make([]float64, classes)
	for c, count := range counts {
		if count == 0 {
			continue
		}
		weights[c] = float64(len(labels)) / (float64(present) * float64(count))
	}
	return weights
}

// argmax returns the first index holding the largest value.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func majorityVote(votes []int, classes int) int {
	counts := make([]float64, classes)
	for _, v := range votes {
		if v >= 0 && v < classes {
			counts[v]++
		}
	}
	return argmax(counts)
}
