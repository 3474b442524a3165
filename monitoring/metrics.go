package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType is the kind of a series.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric is the current value of one labelled series.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector holds counters and gauges in memory. Values are kept per series
// (name plus label set).
type MetricsCollector struct {
	metrics     map[string]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		startTime: time.Now(),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (mc *MetricsCollector) record(name, help string, typ MetricType, labels map[string]string, update func(*Metric)) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	key := seriesKey(name, labels)
	metric, ok := mc.metrics[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		metric = &Metric{Name: name, Type: typ, Labels: copied, Help: help}
		mc.metrics[key] = metric
	}
	update(metric)
	metric.Timestamp = time.Now()
}

// IncrCounter adds value to a counter series.
func (mc *MetricsCollector) IncrCounter(name, help string, value float64, labels map[string]string) {
	mc.record(name, help, MetricTypeCounter, labels, func(m *Metric) { m.Value += value })
}

// SetGauge replaces the value of a gauge series.
func (mc *MetricsCollector) SetGauge(name, help string, value float64, labels map[string]string) {
	mc.record(name, help, MetricTypeGauge, labels, func(m *Metric) { m.Value = value })
}

// Value returns the current value of a series.
func (mc *MetricsCollector) Value(name string, labels map[string]string) (float64, bool) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metric, ok := mc.metrics[seriesKey(name, labels)]
	if !ok {
		return 0, false
	}
	return metric.Value, true
}

// GetAllMetrics returns copies of every series ordered by name and labels.
func (mc *MetricsCollector) GetAllMetrics() []Metric {
	mc.metricsLock.RLock()
	result := make([]Metric, 0, len(mc.metrics))
	for _, m := range mc.metrics {
		result = append(result, *m)
	}
	mc.metricsLock.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return formatLabels(result[i].Labels) < formatLabels(result[j].Labels)
	})
	return result
}

// ExportPrometheus renders the metrics in the Prometheus text exposition format.
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder

	mc.collectSystemMetrics()
	lastName := ""
	for _, metric := range mc.GetAllMetrics() {
		if metric.Name != lastName {
			help := metric.Help
			if help == "" {
				help = fmt.Sprintf("Metric %s", metric.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", metric.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", metric.Name, metric.Type)
			lastName = metric.Name
		}
		fmt.Fprintf(&b, "%s%s %g\n", metric.Name, formatLabels(metric.Labels), metric.Value)
	}
	return b.String()
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func (mc *MetricsCollector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.SetGauge("process_uptime_seconds", "Seconds since the service started", mc.GetUptime().Seconds(), nil)
	mc.SetGauge("go_goroutines", "Number of goroutines", float64(runtime.NumGoroutine()), nil)
	mc.SetGauge("go_memstats_heap_alloc_bytes", "Heap bytes allocated", float64(m.HeapAlloc), nil)
}
