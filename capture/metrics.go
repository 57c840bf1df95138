package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the capture counters, labelled by page id.
type Metrics struct {
	captures *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	empty    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	nodes    *prometheus.GaugeVec
}

// NewMetrics creates the capture metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "capture",
			Name:      "total",
			Help:      "Captures by outcome: full, diff, unchanged or error.",
		}, []string{"page", "outcome"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "capture",
			Name:      "skipped_total",
			Help:      "Ticks dropped because the previous capture was still running.",
		}, []string{"page"}),
		empty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "capture",
			Name:      "empty_total",
			Help:      "Captures whose root view was not recognised.",
		}, []string{"page"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "capture",
			Name:      "duration_seconds",
			Help:      "Time to read the view tree and build a snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"page"}),
		nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Subsystem: "capture",
			Name:      "nodes",
			Help:      "Node count of the last snapshot.",
		}, []string{"page"}),
	}
	reg.MustRegister(m.captures, m.skipped, m.empty, m.duration, m.nodes)
	return m
}

// nopMetrics is used when no registry is given.
func nopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
