// Package telemetry holds the Prometheus metrics and OpenTelemetry tracer
// of the plot service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the service counters and histograms. A nil *Metrics records
// nothing.
type Metrics struct {
	registry   *prometheus.Registry
	reductions *prometheus.CounterVec
	renders    *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	jobs       *prometheus.CounterVec
}

// NewMetrics registers the bmplot collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmplot",
			Name:      "reductions_total",
			Help:      "Matrix reductions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		renders: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bmplot",
			Name:      "render_duration_seconds",
			Help:      "Figure render duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmplot",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmplot",
			Name:      "render_jobs_total",
			Help:      "Finished render jobs by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reductions, m.renders, m.cache, m.jobs,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Reduction counts one reduction of kind; err decides the outcome label.
func (m *Metrics) Reduction(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reductions.WithLabelValues(kind, outcome).Inc()
}

// Render records how long a figure of kind took to draw.
func (m *Metrics) Render(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(kind).Observe(d.Seconds())
}

// CacheLookup counts a hit or miss on the named cache.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(cache, result).Inc()
}

// JobFinished counts a render job reaching a terminal status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}
