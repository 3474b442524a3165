package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"exoclassifier/db"
	"exoclassifier/ml"
	"exoclassifier/monitoring"
	"exoclassifier/predict"
)

const (
	featureHeader = "koi_fpflag_nt,koi_fpflag_ss,koi_fpflag_co,koi_fpflag_ec,koi_period,koi_duration," +
		"koi_depth,koi_prad,koi_teq,koi_insol,koi_model_snr,koi_score"
	exampleRow = "0,0,0,0,9.49,2.9,615.8,2.26,793,93.59,35.8,1.0"
)

var testClasses = []string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}

type constModel struct {
	label int
	calls int
}

func (m *constModel) Fit([][]float64, []int) error { return nil }

func (m *constModel) Predict([]float64) (int, error) {
	m.calls++
	return m.label, nil
}

type fakeHistory struct {
	logs      []db.TrainingLog
	err       error
	lastLimit int
}

func (f *fakeHistory) History(_ context.Context, limit int) ([]db.TrainingLog, error) {
	f.lastLimit = limit
	return f.logs, f.err
}

type testEnv struct {
	router    http.Handler
	model     *constModel
	statsPath string
}

func newTestEnv(t *testing.T, loaded bool, history HistoryStore) *testEnv {
	t.Helper()
	return newTestEnvWithMetrics(t, loaded, history, nil)
}

func newTestEnvWithMetrics(t *testing.T, loaded bool, history HistoryStore, metrics *monitoring.ServiceMetrics) *testEnv {
	t.Helper()
	env := &testEnv{
		model:     &constModel{label: 1},
		statsPath: filepath.Join(t.TempDir(), "model_stats.json"),
	}
	var svc *predict.Service
	if loaded {
		var err error
		svc, err = predict.NewService(env.model, ml.NewLabelEncoder(testClasses))
		require.NoError(t, err)
	}
	stats, err := NewStatsCache(4)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	handler := NewHandler(Deps{
		Service:   svc,
		Stats:     stats,
		StatsPath: env.statsPath,
		History:   history,
		Metrics:   metrics,
		Logger:    logger,
	})
	cfg := DefaultServerConfig()
	cfg.MaxUploadBytes = 1 << 20
	env.router = NewRouter(cfg, handler, logger)
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Contains(t, payload, "error")
	return payload["error"]
}

func TestHealth(t *testing.T) {
	for _, loaded := range []bool{false, true} {
		env := newTestEnv(t, loaded, nil)
		w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, "ok", payload["status"])
		assert.Equal(t, loaded, payload["model_loaded"])
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decodeError(t, w))

	doc := `{"accuracy": 0.9, "classification_report": {"CANDIDATE": {"precision": 1, "recall": 1, "f1-score": 1, "support": 3}}}`
	require.NoError(t, os.WriteFile(env.statsPath, []byte(doc), 0o644))

	w = env.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, doc, w.Body.String())

	updated := `{"accuracy": 0.95, "classification_report": {}}`
	require.NoError(t, os.WriteFile(env.statsPath, []byte(updated), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(env.statsPath, future, future))

	w = env.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, updated, w.Body.String())

	require.NoError(t, os.Remove(env.statsPath))
	w = env.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictExampleRow(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(uploadRequest(t, "file", "koi.csv", featureHeader+"\n"+exampleRow+"\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []struct {
		Index      int                `json:"index"`
		Prediction string             `json:"prediction"`
		Data       map[string]float64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)
	assert.Contains(t, testClasses, results[0].Prediction)
	assert.Equal(t, 9.49, results[0].Data["koi_period"])
	assert.Equal(t, 1.0, results[0].Data["koi_score"])
	assert.Len(t, results[0].Data, ml.FeatureCount)
}

func TestPredictMixedRows(t *testing.T) {
	env := newTestEnv(t, true, nil)
	content := featureHeader + "\n" +
		"0,0,0,0,9.49,,615.8,2.26,793,93.59,35.8,1.0\n" +
		exampleRow + "\n" +
		"0,0,0,0,9.49,2.9,615.8,2.26,793,93.59,35.8,NaN\n" +
		exampleRow + "\n"

	w := env.do(uploadRequest(t, "file", "batch.csv", content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 4)
	for i, r := range results {
		assert.EqualValues(t, i, r["index"])
	}
	assert.Equal(t, predict.MissingValues, results[0]["prediction"])
	assert.Equal(t, "CONFIRMED", results[1]["prediction"])
	assert.Equal(t, predict.MissingValues, results[2]["prediction"])
	assert.Equal(t, "CONFIRMED", results[3]["prediction"])
	assert.Nil(t, results[0]["data"].(map[string]any)["koi_duration"])
	assert.Equal(t, 2, env.model.calls)
}

func TestPredictModelNotLoaded(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(uploadRequest(t, "file", "koi.csv", featureHeader+"\n"+exampleRow+"\n"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, decodeError(t, w))

	w = env.do(httptest.NewRequest(http.MethodPost, "/predict", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPredictClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		message string
	}{
		{"no multipart body", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/predict", nil)
		}, "Invalid multipart request"},
		{"wrong field", func(t *testing.T) *http.Request {
			return uploadRequest(t, "upload", "koi.csv", featureHeader+"\n"+exampleRow+"\n")
		}, "No file sent."},
		{"empty filename", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "", featureHeader+"\n"+exampleRow+"\n")
		}, "No file selected."},
		{"not csv", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.txt", "\"unterminated\n\x00")
		}, "Invalid file format"},
		{"uppercase suffix", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.CSV", featureHeader+"\n"+exampleRow+"\n")
		}, "Invalid file format"},
		{"missing columns", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.csv", "koi_period,koi_depth\n1,2\n")
		}, "missing required columns"},
		{"bad number", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.csv", featureHeader+"\n0,0,0,0,x,2.9,615.8,2.26,793,93.59,35.8,1.0\n")
		}, "invalid number"},
		{"infinite number", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.csv", featureHeader+"\n0,0,0,0,inf,2.9,615.8,2.26,793,93.59,35.8,1.0\n")
		}, "invalid number"},
		{"empty file", func(t *testing.T) *http.Request {
			return uploadRequest(t, "file", "koi.csv", "")
		}, "Error processing the file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, nil)
			w := env.do(tt.req(t))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, decodeError(t, w), tt.message)
			assert.Zero(t, env.model.calls)
		})
	}
}

func TestStatsWithoutCache(t *testing.T) {
	handler := NewHandler(Deps{Logger: zaptest.NewLogger(t)})
	router := NewRouter(DefaultServerConfig(), handler, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decodeError(t, w))
}

func TestRespondJSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	respondJSON(w, http.StatusOK, map[string]float64{"value": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to encode response", decodeError(t, w))
}

func TestPredictMissingColumnsNamesThem(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(uploadRequest(t, "file", "koi.csv", "koi_period\n1\n"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "koi_score")
}

func TestPredictHeaderOnly(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(uploadRequest(t, "file", "koi.csv", featureHeader+"\n"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/stats/history", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	history := &fakeHistory{logs: []db.TrainingLog{{RunID: "r1", ModelName: "voting", Accuracy: 0.9}}}
	env = newTestEnv(t, true, history)

	w = env.do(httptest.NewRequest(http.MethodGet, "/stats/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistoryLimit, history.lastLimit)
	var logs []db.TrainingLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "voting", logs[0].ModelName)

	env.do(httptest.NewRequest(http.MethodGet, "/stats/history?limit=5000", nil))
	assert.Equal(t, maxHistoryLimit, history.lastLimit)

	w = env.do(httptest.NewRequest(http.MethodGet, "/stats/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	history.err = errors.New("disk gone")
	w = env.do(httptest.NewRequest(http.MethodGet, "/stats/history", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	metrics := monitoring.NewServiceMetrics()
	env = newTestEnvWithMetrics(t, true, nil, metrics)
	content := featureHeader + "\n" + exampleRow + "\n" + "0,0,0,0,,,,,,,,\n"
	w = env.do(uploadRequest(t, "file", "koi.csv", content))
	require.Equal(t, http.StatusOK, w.Code)
	env.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `exo_prediction_rows_total{outcome="predicted"} 1`)
	assert.Contains(t, body, `exo_prediction_rows_total{outcome="missing_values"} 1`)
	assert.Contains(t, body, `exo_http_requests_total{method="POST",route="/predict",status="200"} 1`)
	assert.Contains(t, body, `exo_http_requests_total{method="GET",route="other",status="404"} 1`)
	assert.Contains(t, body, "exo_model_loaded 1")
}
