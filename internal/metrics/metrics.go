// Package metrics exposes Prometheus metrics for highlight match passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass sources.
const (
	SourceRequest  = "request"
	SourceDocument = "document"
	SourceSession  = "session"
)

var (
	passDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
	fragmentBuckets     = []float64{10, 100, 500, 1000, 5000, 10000, 50000}
)

// Metrics holds the service's collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passesDropped *prometheus.CounterVec
	targets       *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	passFragments prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highlight_match_passes_total",
			Help: "Completed highlight match passes.",
		}, []string{"source"}),
		passesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highlight_match_passes_dropped_total",
			Help: "Match passes whose results were discarded.",
		}, []string{"source", "reason"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "highlight_targets_total",
			Help: "Highlight targets processed, by outcome.",
		}, []string{"source", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "highlight_match_duration_seconds",
			Help:    "Wall time of one match pass.",
			Buckets: passDurationBuckets,
		}, []string{"source"}),
		passFragments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "highlight_match_fragments",
			Help:    "Fragments in the snapshot of one match pass.",
			Buckets: fragmentBuckets,
		}),
	}

	reg.MustRegister(
		m.passes,
		m.passesDropped,
		m.targets,
		m.passDuration,
		m.passFragments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObservePass records a completed match pass.
func (m *Metrics) ObservePass(source string, fragments, matched, unmatched int, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(source).Inc()
	m.passDuration.WithLabelValues(source).Observe(d.Seconds())
	m.passFragments.Observe(float64(fragments))
	m.targets.WithLabelValues(source, "matched").Add(float64(matched))
	m.targets.WithLabelValues(source, "unmatched").Add(float64(unmatched))
}

// PassDropped records a pass whose results were thrown away.
func (m *Metrics) PassDropped(source, reason string) {
	if m == nil {
		return
	}
	m.passesDropped.WithLabelValues(source, reason).Inc()
}

// TrackSessions exposes a live session count gauge backed by count.
func (m *Metrics) TrackSessions(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "highlight_viewer_sessions",
		Help: "Live viewer sessions.",
	}, func() float64 { return float64(count()) }))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
