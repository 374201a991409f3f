package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: DID lifecycle, credential issuance and revocation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// These feed into SIEM systems and alerting pipelines.
	// Examples: replay attempts, decryption failures, integrity violations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	// These can be sampled or aggregated with shorter retention.
	// Examples: proof generation, proof verification, anchor submissions.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the entity acted on: a DID, credential ID, or proof ID.
	Subject string `json:"subject"`
	Action  string `json:"action"`
	// Decision is the outcome of the action when it has one, such as
	// "verified" or "rejected".
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// ContentHash ties compliance events to the anchored record.
	ContentHash string `json:"contentHash,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string `json:"requestId,omitempty"`
	// VerifierDID is set on proof events where a relying party is involved.
	VerifierDID string `json:"verifierDid,omitempty"`
}

type AuditEvent string

const (
	// DID lifecycle events
	EventDIDCreated     AuditEvent = "did_created"
	EventDIDUpdated     AuditEvent = "did_updated"
	EventDIDDeactivated AuditEvent = "did_deactivated"
	EventDIDResolved    AuditEvent = "did_resolved"

	// Credential events
	EventCredentialIssued  AuditEvent = "credential_issued"
	EventCredentialRevoked AuditEvent = "credential_revoked"

	// Proof events
	EventProofGenerated     AuditEvent = "proof_generated"
	EventProofVerified      AuditEvent = "proof_verified"
	EventProofRejected      AuditEvent = "proof_rejected"
	EventProofReplayBlocked AuditEvent = "proof_replay_blocked"

	// Record integrity events
	EventDecryptionFailed   AuditEvent = "decryption_failed"
	EventIntegrityViolation AuditEvent = "integrity_violation"

	// Anchor events
	EventAnchorSubmitted AuditEvent = "anchor_submitted"
	EventAnchorFailed    AuditEvent = "anchor_failed"
)

// eventCategories maps each audit event to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: security monitoring, SIEM integration, alerting.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - require tamper-proof storage
	EventDIDCreated:        CategoryCompliance,
	EventDIDUpdated:        CategoryCompliance,
	EventDIDDeactivated:    CategoryCompliance,
	EventCredentialIssued:  CategoryCompliance,
	EventCredentialRevoked: CategoryCompliance,

	// Security events - feed into SIEM and alerting
	EventProofReplayBlocked: CategorySecurity,
	EventDecryptionFailed:   CategorySecurity,
	EventIntegrityViolation: CategorySecurity,
	EventProofRejected:      CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventDIDResolved:     CategoryOperations,
	EventProofGenerated:  CategoryOperations,
	EventProofVerified:   CategoryOperations,
	EventAnchorSubmitted: CategoryOperations,
	EventAnchorFailed:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// New builds an Event for the given action with its category resolved.
// Timestamp is left zero; publishers stamp it on emit.
func New(action AuditEvent, subject string) Event {
	return Event{
		Category: action.Category(),
		Subject:  subject,
		Action:   string(action),
	}
}
