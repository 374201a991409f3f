package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the proof module.
type Metrics struct {
	// Proof generation outcomes by proof type and result
	Generated *prometheus.CounterVec

	// Verification outcomes by result: valid, invalid, replay, expired
	Verified *prometheus.CounterVec

	// Proof generation latency by proof type
	GenerateLatency *prometheus.HistogramVec

	// Expired proofs and nullifiers removed by the prune loop
	Pruned prometheus.Counter
}

// New creates a new Metrics instance with all proof module metrics registered.
func New() *Metrics {
	return &Metrics{
		Generated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_proof_generated_total",
			Help: "Total proof generation attempts by proof type and outcome",
		}, []string{"type", "outcome"}),

		Verified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_proof_verified_total",
			Help: "Total proof verification attempts by result",
		}, []string{"result"}), // result: "valid", "invalid", "replay", "expired"

		GenerateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anchorid_proof_generate_duration_seconds",
			Help:    "Duration of proof generation including credential decryption",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"type"}),

		Pruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anchorid_proof_pruned_total",
			Help: "Total expired proofs and nullifiers removed by the prune loop",
		}),
	}
}

// IncrementGenerated records a proof generation outcome.
func (m *Metrics) IncrementGenerated(proofType, outcome string) {
	if m != nil {
		m.Generated.WithLabelValues(proofType, outcome).Inc()
	}
}

// IncrementVerified records a verification result.
func (m *Metrics) IncrementVerified(result string) {
	if m != nil {
		m.Verified.WithLabelValues(result).Inc()
	}
}

// ObserveGenerateLatency records a proof generation duration.
func (m *Metrics) ObserveGenerateLatency(proofType string, d time.Duration) {
	if m != nil {
		m.GenerateLatency.WithLabelValues(proofType).Observe(d.Seconds())
	}
}

// IncrementPruned records removals from the prune loop.
func (m *Metrics) IncrementPruned(n int) {
	if m != nil && n > 0 {
		m.Pruned.Add(float64(n))
	}
}
