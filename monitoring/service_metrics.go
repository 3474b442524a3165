package monitoring

import (
	"strconv"
	"time"
)

const (
	metricRequests       = "exo_http_requests_total"
	metricRequestSeconds = "exo_http_request_duration_seconds_total"
	metricRows           = "exo_prediction_rows_total"
	metricModelLoaded    = "exo_model_loaded"
)

// ServiceMetrics records the prediction service's traffic on a MetricsCollector.
type ServiceMetrics struct {
	*MetricsCollector
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{MetricsCollector: NewMetricsCollector()}
}

// RecordRequest counts one HTTP request under its route.
func (sm *ServiceMetrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	labels := map[string]string{"method": method, "route": route, "status": strconv.Itoa(status)}
	sm.IncrCounter(metricRequests, "HTTP requests served", 1, labels)
	sm.IncrCounter(metricRequestSeconds, "Total seconds spent serving HTTP requests", elapsed.Seconds(),
		map[string]string{"route": route})
}

// RecordPrediction counts uploaded rows by outcome.
func (sm *ServiceMetrics) RecordPrediction(predicted, missing int) {
	sm.IncrCounter(metricRows, "Uploaded rows by outcome", float64(predicted), map[string]string{"outcome": "predicted"})
	sm.IncrCounter(metricRows, "Uploaded rows by outcome", float64(missing), map[string]string{"outcome": "missing_values"})
}

func (sm *ServiceMetrics) SetModelLoaded(loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	sm.SetGauge(metricModelLoaded, "Whether the model artifacts are loaded", v, nil)
}
