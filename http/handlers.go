package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"exoclassifier/db"
	"exoclassifier/monitoring"
	"exoclassifier/pipeline"
	"exoclassifier/predict"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// HistoryStore lists recorded training runs.
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]db.TrainingLog, error)
}

// Deps are the collaborators of a Handler. A nil Service disables /predict and a nil
// Stats disables /stats. A nil History or Metrics disables /stats/history or /metrics.
// None of them stop the server.
type Deps struct {
	Service   *predict.Service
	Stats     *StatsCache
	StatsPath string
	History   HistoryStore
	Metrics   *monitoring.ServiceMetrics
	Logger    *zap.Logger
}

// Handler serves the prediction API.
type Handler struct {
	service   *predict.Service
	stats     *StatsCache
	statsPath string
	history   HistoryStore
	metrics   *monitoring.ServiceMetrics
	logger    *zap.Logger
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Metrics != nil {
		deps.Metrics.SetModelLoaded(deps.Service != nil)
	}
	return &Handler{
		service:   deps.Service,
		stats:     deps.Stats,
		statsPath: deps.StatsPath,
		history:   deps.History,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /stats/history", h.handleHistory)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": h.service != nil,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusNotFound, "Statistics file not found. Run the training pipeline to generate it.")
		return
	}
	data, err := h.stats.Load(h.statsPath)
	if errors.Is(err, ErrNoStats) {
		respondError(w, http.StatusNotFound, "Statistics file not found. Run the training pipeline to generate it.")
		return
	}
	if err != nil {
		h.logger.Error("load stats failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotFound, "training history is not configured")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = l
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	logs, err := h.history.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("load training history failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read training history")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusInternalServerError, "Model is not loaded.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		case errors.Is(err, http.ErrMissingFile) && emptyFilePart(r):
			respondError(w, http.StatusBadRequest, "No file selected.")
		case errors.Is(err, http.ErrMissingFile):
			respondError(w, http.StatusBadRequest, "No file sent. Upload a CSV file in the 'file' field.")
		default:
			respondError(w, http.StatusBadRequest, "Invalid multipart request: "+err.Error())
		}
		return
	}
	defer file.Close()

	if !strings.HasSuffix(header.Filename, ".csv") {
		respondError(w, http.StatusBadRequest, "Invalid file format. Upload a .csv file.")
		return
	}

	rows, err := pipeline.ParseObservations(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Error processing the file: "+err.Error()+". Check the CSV format and columns.")
		return
	}

	results, err := h.service.Predict(rows)
	if err != nil {
		h.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	if h.metrics != nil {
		missing := 0
		for _, res := range results {
			if res.Prediction == predict.MissingValues {
				missing++
			}
		}
		h.metrics.RecordPrediction(len(results)-missing, missing)
	}
	h.logger.Debug("predicted upload",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("filename", header.Filename),
		zap.Int("rows", len(rows)))
	respondJSON(w, http.StatusOK, results)
}

// emptyFilePart reports whether the form carried a "file" part without a filename.
// multipart stores such a part as a plain value, so FormFile does not see it.
func emptyFilePart(r *http.Request) bool {
	if r.MultipartForm == nil {
		return false
	}
	_, ok := r.MultipartForm.Value["file"]
	return ok
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, h.metrics.ExportPrometheus())
}

// respondJSON encodes data before writing the header so an encoding failure becomes a 500.
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"failed to encode response"}`+"\n")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
