// Package predict serves disposition predictions from the trained artifacts.
package predict

import (
	"errors"
	"fmt"
	"sort"

	"exoclassifier/ml"
)

// MissingValues is reported in place of a prediction for rows with a missing feature.
const MissingValues = "Error: Missing values in row."

var ErrNotLoaded = errors.New("model not loaded")

// Result is the outcome for one uploaded row.
type Result struct {
	Index      int            `json:"index"`
	Prediction string         `json:"prediction"`
	Data       ml.Observation `json:"data"`
}

// Service holds the loaded model and label encoder. It is safe for concurrent use.
type Service struct {
	model   ml.Classifier
	encoder *ml.LabelEncoder
}

func NewService(model ml.Classifier, encoder *ml.LabelEncoder) (*Service, error) {
	if model == nil || encoder == nil {
		return nil, ErrNotLoaded
	}
	if len(encoder.Classes()) == 0 {
		return nil, fmt.Errorf("label encoder: %w", ml.ErrNotTrained)
	}
	return &Service{model: model, encoder: encoder}, nil
}

// Load reads the model and encoder artifacts.
func Load(modelPath, encoderPath string) (*Service, error) {
	model, err := ml.LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	encoder, err := ml.LoadLabelEncoder(encoderPath)
	if err != nil {
		return nil, fmt.Errorf("load label encoder: %w", err)
	}
	if len(encoder.Classes()) < model.Classes {
		return nil, fmt.Errorf("label encoder has %d classes, model predicts %d", len(encoder.Classes()), model.Classes)
	}
	return NewService(model, encoder)
}

func (s *Service) Classes() []string {
	return s.encoder.Classes()
}

// Predict classifies the complete rows and marks incomplete ones with MissingValues.
// Results are ordered by row index.
func (s *Service) Predict(rows []ml.Observation) ([]Result, error) {
	if s == nil {
		return nil, ErrNotLoaded
	}
	results := make([]Result, 0, len(rows))

	var validIdx []int
	var vectors [][]float64
	for i, row := range rows {
		vector, ok := row.Vector()
		if !ok {
			results = append(results, Result{Index: i, Prediction: MissingValues, Data: row})
			continue
		}
		validIdx = append(validIdx, i)
		vectors = append(vectors, vector)
	}

	if len(vectors) > 0 {
		codes, err := ml.PredictAll(s.model, vectors)
		if err != nil {
			return nil, err
		}
		labels, err := s.encoder.InverseTransform(codes)
		if err != nil {
			return nil, err
		}
		for j, i := range validIdx {
			results = append(results, Result{Index: i, Prediction: labels[j], Data: rows[i]})
		}
	}

	sort.Slice(results, func(a, b int) bool {
		return results[a].Index < results[b].Index
	})
	return results, nil
}
