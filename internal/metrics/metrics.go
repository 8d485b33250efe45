// Package metrics exposes Prometheus instrumentation for reconciliation
// passes. Embedders register the collectors on their own registry; the CLI
// uses a private registry so repeated passes in tests do not collide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the executor.
type Metrics struct {
	// Applies counts provider apply calls by operation and result.
	Applies *prometheus.CounterVec

	// Retries counts retried provider calls.
	Retries prometheus.Counter

	// PassDuration observes the wall time of whole passes.
	PassDuration prometheus.Histogram

	// NodesTotal counts nodes per final status at the end of a pass.
	NodesTotal *prometheus.CounterVec
}

// New registers the collectors on reg. Pass nil for an unregistered
// (discard) set, convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Applies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwmesh",
			Name:      "applies_total",
			Help:      "Provider apply calls by operation and result.",
		}, []string{"op", "result"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fwmesh",
			Name:      "retries_total",
			Help:      "Retried provider calls.",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fwmesh",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		NodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwmesh",
			Name:      "nodes_total",
			Help:      "Nodes per final status at the end of a pass.",
		}, []string{"status"}),
	}
}
