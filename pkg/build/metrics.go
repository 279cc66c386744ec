package build

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records compile activity.
//
// Metrics:
//   - pugjinja_compiles_total: files compiled, by result
//   - pugjinja_compile_duration_seconds: time spent compiling one file
//   - pugjinja_builds_total: directory builds, by result
type Metrics struct {
	registry *prometheus.Registry

	compiles *prometheus.CounterVec
	duration prometheus.Histogram
	builds   *prometheus.CounterVec
}

// NewMetrics creates the build metrics and registers them with registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		compiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pugjinja",
				Name:      "compiles_total",
				Help:      "Total number of template files compiled",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pugjinja",
				Name:      "compile_duration_seconds",
				Help:      "Duration of single file compiles in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pugjinja",
				Name:      "builds_total",
				Help:      "Total number of directory builds",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.compiles, m.duration, m.builds)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeCompile(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(result(err)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeBuild(err error) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
