package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the anchor module.
type Metrics struct {
	// Anchor outcomes by operation and receipt status
	AnchorOutcome *prometheus.CounterVec

	// Chain RPC round-trip latency
	BroadcastLatency prometheus.Histogram

	// Circuit state transitions of the chain RPC breaker
	CircuitTransitions *prometheus.CounterVec
}

// New creates a new Metrics instance with all anchor module metrics registered.
func New() *Metrics {
	return &Metrics{
		AnchorOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_anchor_outcomes_total",
			Help: "Total anchoring outcomes by operation and receipt status",
		}, []string{"operation", "status"}),

		BroadcastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchorid_anchor_broadcast_duration_seconds",
			Help:    "Duration of chain RPC broadcast round trips",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		CircuitTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_anchor_circuit_transitions_total",
			Help: "Total chain RPC circuit breaker transitions",
		}, []string{"transition"}), // transition: "opened", "closed"
	}
}

// IncrementOutcome records an anchoring outcome.
func (m *Metrics) IncrementOutcome(operation, status string) {
	if m != nil {
		m.AnchorOutcome.WithLabelValues(operation, status).Inc()
	}
}

// ObserveBroadcastLatency records a chain RPC broadcast round trip.
func (m *Metrics) ObserveBroadcastLatency(d time.Duration) {
	if m != nil {
		m.BroadcastLatency.Observe(d.Seconds())
	}
}

// IncrementCircuitTransition records a breaker state change.
func (m *Metrics) IncrementCircuitTransition(transition string) {
	if m != nil {
		m.CircuitTransitions.WithLabelValues(transition).Inc()
	}
}
