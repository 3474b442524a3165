package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constClassifier struct{ label int }

func (c *constClassifier) Fit([][]float64, []int) error { return nil }
func (c *constClassifier) Predict([]float64) (int, error) { return c.label, nil }

func TestVotingMajority(t *testing.T) {
	v := NewVotingClassifier(
		Estimator{Name: "a", Model: &Pipeline{Model: &constClassifier{label: 2}}},
		Estimator{Name: "b", Model: &Pipeline{Model: &constClassifier{label: 1}}},
		Estimator{Name: "c", Model: &Pipeline{Model: &constClassifier{label: 2}}},
	)
	require.NoError(t, v.Fit([][]float64{{0}, {1}, {2}}, []int{0, 1, 2}))
	got, err := v.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestVotingThreeWayTieTakesSmallestCode(t *testing.T) {
	v := NewVotingClassifier(
		Estimator{Name: "a", Model: &Pipeline{Model: &constClassifier{label: 2}}},
		Estimator{Name: "b", Model: &Pipeline{Model: &constClassifier{label: 0}}},
		Estimator{Name: "c", Model: &Pipeline{Model: &constClassifier{label: 1}}},
	)
	require.NoError(t, v.Fit([][]float64{{0}, {1}, {2}}, []int{0, 1, 2}))
	got, err := v.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func newTestEnsemble() *VotingClassifier {
	return NewVotingClassifier(
		Estimator{Name: "lr", Model: NewScaledPipeline(NewLogisticRegression(1.0, 500, true))},
		Estimator{Name: "rf", Model: &Pipeline{Model: NewRandomForest(10, 42, true)}},
		Estimator{Name: "knn", Model: NewScaledPipeline(NewKNN(5))},
	)
}

func TestVotingEnsembleSaveLoad(t *testing.T) {
	features, labels := blobs(20, FeatureCount, 4)
	ensemble := newTestEnsemble()
	require.NoError(t, ensemble.Fit(features, labels))

	path := filepath.Join(t.TempDir(), "exoplanet_classifier.json")
	require.NoError(t, ensemble.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	require.Len(t, loaded.Estimators, 3)
	assert.Equal(t, "lr", loaded.Estimators[0].Name)
	assert.NotNil(t, loaded.Estimators[0].Model.Scaler)
	assert.Nil(t, loaded.Estimators[1].Model.Scaler)
	assert.IsType(t, &RandomForest{}, loaded.Estimators[1].Model.Model)
	assert.IsType(t, &KNN{}, loaded.Estimators[2].Model.Model)

	want, err := PredictAll(ensemble, features)
	require.NoError(t, err)
	got, err := PredictAll(loaded, features)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVotingErrors(t *testing.T) {
	_, err := (&VotingClassifier{}).Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Error(t, (&VotingClassifier{}).Fit([][]float64{{1}}, []int{0}))
	assert.ErrorIs(t, (&VotingClassifier{}).Save(filepath.Join(t.TempDir(), "m.json")), ErrNotTrained)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, WriteJSON(path, map[string]any{
		"voting":     "soft",
		"classes":    3,
		"estimators": []any{},
	}))
	_, err = LoadModel(path)
	assert.Error(t, err)
}

func TestPipelineScalesBeforePredict(t *testing.T) {
	p := NewScaledPipeline(NewKNN(1))
	require.NoError(t, p.Fit([][]float64{{0, 1000}, {10, 0}}, []int{0, 1}))
	// Unscaled, the second column would dominate the distance.
	got, err := p.Predict([]float64{9, 600})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
