package predict

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exoclassifier/ml"
)

// recordingModel predicts the class stored in the last feature and records each query.
type recordingModel struct {
	calls [][]float64
}

func (m *recordingModel) Fit([][]float64, []int) error { return nil }

func (m *recordingModel) Predict(features []float64) (int, error) {
	m.calls = append(m.calls, features)
	return int(features[len(features)-1]), nil
}

func observation(t *testing.T, score float64) ml.Observation {
	t.Helper()
	obs, err := ml.ObservationFromVector([]float64{0, 0, 0, 0, 9.49, 2.9, 615.8, 2.26, 793, 93.59, 35.8, score})
	require.NoError(t, err)
	return obs
}

func newTestService(t *testing.T) (*Service, *recordingModel) {
	t.Helper()
	model := &recordingModel{}
	svc, err := NewService(model, ml.NewLabelEncoder([]string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}))
	require.NoError(t, err)
	return svc, model
}

func TestPredictMixedRows(t *testing.T) {
	svc, model := newTestService(t)

	incomplete := observation(t, 1)
	incomplete.Depth = nil
	rows := []ml.Observation{observation(t, 2), incomplete, observation(t, 0), incomplete}

	results, err := svc.Predict(rows)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, "FALSE POSITIVE", results[0].Prediction)
	assert.Equal(t, MissingValues, results[1].Prediction)
	assert.Equal(t, "CANDIDATE", results[2].Prediction)
	assert.Equal(t, MissingValues, results[3].Prediction)
	assert.Nil(t, results[1].Data.Depth)
	assert.Len(t, model.calls, 2, "incomplete rows must not reach the model")
}

func TestPredictResultJSON(t *testing.T) {
	svc, _ := newTestService(t)
	incomplete := observation(t, 1)
	incomplete.Period = nil

	results, err := svc.Predict([]ml.Observation{incomplete})
	require.NoError(t, err)
	payload, err := json.Marshal(results)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 1)
	assert.EqualValues(t, 0, decoded[0]["index"])
	assert.Equal(t, MissingValues, decoded[0]["prediction"])
	data := decoded[0]["data"].(map[string]any)
	assert.Contains(t, data, "koi_period")
	assert.Nil(t, data["koi_period"])
	assert.Equal(t, 2.9, data["koi_duration"])
}

func TestPredictEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	results, err := svc.Predict(nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestPredictUnknownCode(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Predict([]ml.Observation{observation(t, 7)})
	assert.Error(t, err)
}

func TestNilServiceNotLoaded(t *testing.T) {
	var svc *Service
	_, err := svc.Predict([]ml.Observation{observation(t, 0)})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = NewService(nil, ml.NewLabelEncoder([]string{"a"}))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "exoplanet_classifier.json")
	encoderPath := filepath.Join(dir, "label_encoder.json")

	features := [][]float64{}
	labels := []int{}
	for c := 0; c < 3; c++ {
		for i := 0; i < 6; i++ {
			row := make([]float64, ml.FeatureCount)
			for j := range row {
				row[j] = float64(c*10 + i%3)
			}
			features = append(features, row)
			labels = append(labels, c)
		}
	}
	model := ml.NewVotingClassifier(
		ml.Estimator{Name: "lr", Model: ml.NewScaledPipeline(ml.NewLogisticRegression(1, 200, true))},
		ml.Estimator{Name: "rf", Model: &ml.Pipeline{Model: ml.NewRandomForest(5, 42, true)}},
		ml.Estimator{Name: "knn", Model: ml.NewScaledPipeline(ml.NewKNN(3))},
	)
	require.NoError(t, model.Fit(features, labels))
	require.NoError(t, model.Save(modelPath))
	require.NoError(t, ml.NewLabelEncoder([]string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}).Save(encoderPath))

	svc, err := Load(modelPath, encoderPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}, svc.Classes())

	obs, err := ml.ObservationFromVector(features[13])
	require.NoError(t, err)
	results, err := svc.Predict([]ml.Observation{obs})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "FALSE POSITIVE", results[0].Prediction)

	_, err = Load(filepath.Join(dir, "absent.json"), encoderPath)
	assert.Error(t, err)

	short := filepath.Join(dir, "short_encoder.json")
	require.NoError(t, ml.NewLabelEncoder([]string{"CANDIDATE"}).Save(short))
	_, err = Load(modelPath, short)
	assert.Error(t, err)
}
