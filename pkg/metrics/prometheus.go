// Package metrics exposes Prometheus metrics for the scheduler, the services and the HTTP boundary.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	schedulerTransitions  *prometheus.CounterVec
	schedulerStepFailures *prometheus.CounterVec
	schedulerTickDuration prometheus.Histogram
	schedulerLastTickUnix prometheus.Gauge

	operations *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ensemble",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.schedulerTransitions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "scheduler",
			Name:      "transitions_total",
			Help:      "Events moved by the lifecycle scheduler, by source and target status",
		},
		[]string{"from", "to"},
	)

	m.schedulerStepFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "scheduler",
			Name:      "step_failures_total",
			Help:      "Scheduler steps that failed and were skipped until the next tick",
		},
		[]string{"step"},
	)

	m.schedulerTickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one scheduler tick",
		Buckets:   m.histogramBuckets,
	})

	m.schedulerLastTickUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "last_tick_unix_seconds",
		Help:      "Unix time of the last completed tick",
	})

	m.operations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome code",
		},
		[]string{"operation", "outcome"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   m.histogramBuckets,
		},
		[]string{"route", "method"},
	)
}

func (m *Manager) RecordTransitions(from, to string, n int64) {
	if n > 0 {
		m.schedulerTransitions.WithLabelValues(from, to).Add(float64(n))
	}
}

func (m *Manager) RecordStepFailure(step string) {
	m.schedulerStepFailures.WithLabelValues(step).Inc()
}

func (m *Manager) RecordTick(started time.Time, d time.Duration) {
	m.schedulerTickDuration.Observe(d.Seconds())
	m.schedulerLastTickUnix.Set(float64(started.Add(d).Unix()))
}

func (m *Manager) RecordOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Manager) RecordHTTPRequest(route, method, statusCode string, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Default returns the process-wide manager registered on GetRegistry.
func Default() *Manager {
	return globalManager
}

// RecordOperation counts a service operation on the process-wide manager.
func RecordOperation(operation, outcome string) {
	globalManager.RecordOperation(operation, outcome)
}

// RecordHTTPRequest records an HTTP request on the process-wide manager.
func RecordHTTPRequest(route, method, statusCode string, d time.Duration) {
	globalManager.RecordHTTPRequest(route, method, statusCode, d)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
