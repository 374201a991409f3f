package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	// DID lifecycle outcomes by operation and result
	Operations *prometheus.CounterVec

	// Resolution latency including decryption
	ResolveLatency prometheus.Histogram
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_identity_operations_total",
			Help: "Total DID lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}), // operation: "create", "resolve", "update", "deactivate"

		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchorid_identity_resolve_duration_seconds",
			Help:    "Duration of DID resolution including decryption",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementOperation records a DID lifecycle outcome.
func (m *Metrics) IncrementOperation(operation, outcome string) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveResolveLatency records a resolution duration.
func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
