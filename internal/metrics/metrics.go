// Package metrics exposes Prometheus collectors for the inference pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/spacevision/internal/detection"
)

const namespace = "spacevision"

// Metrics groups the collectors recorded by the pipeline and the HTTP layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	InferenceDuration *prometheus.HistogramVec
	Detections        *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	HistorySize       prometheus.Gauge
	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Registration is skipped when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent processing one frame, by pipeline mode.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections reported, by class label and criticality.",
		}, []string{"label", "critical"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed pipeline runs, by mode and error kind.",
		}, []string{"mode", "kind"}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_results",
			Help:      "Batch results held in the in-memory history.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.InferenceDuration,
			m.Detections,
			m.Errors,
			m.HistorySize,
			m.Requests,
			m.RequestDuration,
		)
	}

	return m
}

// ObserveRun records a successful pipeline run.
func (m *Metrics) ObserveRun(mode detection.Mode, d time.Duration, dets []detection.Detection) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	for _, det := range dets {
		m.Detections.WithLabelValues(det.ClassLabel, strconv.FormatBool(det.IsCritical)).Inc()
	}
}

// ObserveError records a failed pipeline run.
func (m *Metrics) ObserveError(mode detection.Mode, err error) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(string(mode), detection.KindOf(err)).Inc()
}

// SetHistorySize updates the history gauge.
func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.HistorySize.Set(float64(n))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
