// Package metrics exposes Prometheus metrics for component operations
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records fetches and manager operations on a private registry
type Metrics struct {
	registry *prometheus.Registry

	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	operationsTotal *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	installed       prometheus.Gauge
}

// DefaultBuckets returns the histogram buckets in seconds
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

// New creates and registers the ecm metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecm_fetches_total",
				Help: "Remote documents fetched, by kind and result",
			},
			[]string{"kind", "result"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecm_fetch_duration_seconds",
				Help:    "Remote fetch duration in seconds",
				Buckets: DefaultBuckets(),
			},
			[]string{"kind"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecm_operations_total",
				Help: "Component operations, by operation and result",
			},
			[]string{"operation", "result"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecm_operation_duration_seconds",
				Help:    "Component operation duration in seconds",
				Buckets: DefaultBuckets(),
			},
			[]string{"operation"},
		),
		installed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ecm_installed_components",
			Help: "Number of top-level components in the manifest",
		}),
	}

	reg.MustRegister(
		m.fetchesTotal,
		m.fetchDuration,
		m.operationsTotal,
		m.opDuration,
		m.installed,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveFetch implements fetch.Observer
func (m *Metrics) ObserveFetch(kind string, err error, d time.Duration) {
	m.fetchesTotal.WithLabelValues(kind, result(err)).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveOperation records one manager operation
func (m *Metrics) ObserveOperation(op string, err error, d time.Duration) {
	m.operationsTotal.WithLabelValues(op, result(err)).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetInstalled records the number of top-level components
func (m *Metrics) SetInstalled(n int) {
	m.installed.Set(float64(n))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
