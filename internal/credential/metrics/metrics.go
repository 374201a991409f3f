package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential module.
type Metrics struct {
	// Issuance outcomes by credential type and result
	Issued *prometheus.CounterVec

	// Revocations by credential type
	Revoked *prometheus.CounterVec
}

// New creates a new Metrics instance with all credential module metrics registered.
func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_credential_issued_total",
			Help: "Total credential issuance attempts by type and outcome",
		}, []string{"type", "outcome"}),

		Revoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorid_credential_revoked_total",
			Help: "Total credential revocations by type",
		}, []string{"type"}),
	}
}

// IncrementIssued records an issuance outcome.
func (m *Metrics) IncrementIssued(credentialType, outcome string) {
	if m != nil {
		m.Issued.WithLabelValues(credentialType, outcome).Inc()
	}
}

// IncrementRevoked records a revocation.
func (m *Metrics) IncrementRevoked(credentialType string) {
	if m != nil {
		m.Revoked.WithLabelValues(credentialType).Inc()
	}
}
