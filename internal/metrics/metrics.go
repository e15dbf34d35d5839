// Package metrics exposes run outcomes and edit counts to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parcelsync"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	edits       *prometheus.CounterVec
	issues      *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by layer and final state.",
		}, []string{"layer", "state"}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Rows written to the target by operation.",
		}, []string{"layer", "op"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_issues_total",
			Help:      "Record-level problems by kind.",
		}, []string{"layer", "kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}, []string{"layer"}),
	}
	m.registry.MustRegister(
		m.runs, m.edits, m.issues, m.duration, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Run is what one run reports.
type Run struct {
	Layer    string
	State    string
	Duration time.Duration
	Added    int
	Updated  int
	Deleted  int
	Issues   map[string]int
	Finished time.Time
	Success  bool
}

// Observe records a finished run. A nil receiver does nothing.
func (m *Metrics) Observe(r Run) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Layer, r.State).Inc()
	m.duration.Observe(r.Duration.Seconds())
	m.edits.WithLabelValues(r.Layer, "add").Add(float64(r.Added))
	m.edits.WithLabelValues(r.Layer, "update").Add(float64(r.Updated))
	m.edits.WithLabelValues(r.Layer, "delete").Add(float64(r.Deleted))
	for kind, n := range r.Issues {
		m.issues.WithLabelValues(r.Layer, kind).Add(float64(n))
	}
	if r.Success {
		m.lastSuccess.WithLabelValues(r.Layer).Set(float64(r.Finished.Unix()))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
