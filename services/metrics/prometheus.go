package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/kilabu/core"
)

const namespace = "kilabu"

// PrometheusMetrics exposes the attendance engine measurements to Prometheus.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	writes    *prometheus.CounterVec
	snapshots prometheus.Counter
	sessions  prometheus.Histogram
	malformed prometheus.Counter
	listeners prometheus.Gauge
}

var _ core.Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collectors on a dedicated registry (plus the Go & process collectors).
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "record_writes_total",
			Help:      "Attendance record writes by operation and outcome.",
		}, []string{"op", "outcome"}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "snapshots_total",
			Help:      "Live feed snapshots regrouped into sessions.",
		}),
		sessions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "snapshot_sessions",
			Help:      "Number of sessions produced per snapshot.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "malformed_records_total",
			Help:      "Records skipped by grouping (eg. missing date).",
		}),
		listeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "listeners_open",
			Help:      "Live listeners currently open.",
		}),
	}
}

func (m *PrometheusMetrics) ObserveWrite(op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.writes.WithLabelValues(op, outcome).Inc()
}

func (m *PrometheusMetrics) ObserveSnapshot(records, sessions int) {
	m.snapshots.Inc()
	m.sessions.Observe(float64(sessions))
}

func (m *PrometheusMetrics) ObserveMalformedRecord() {
	m.malformed.Inc()
}

func (m *PrometheusMetrics) ListenerOpened(delta int) {
	m.listeners.Add(float64(delta))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
