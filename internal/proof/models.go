// Package proof implements selective-disclosure, membership, and range
// proofs over stored credentials, with one-time nullifiers preventing
// replay across verifications.
package proof

import (
	"time"

	id "anchorid/pkg/domain"
)

// ProofType names the disclosure discipline of a proof.
type ProofType string

const (
	TypeSelectiveDisclosure ProofType = "selective_disclosure"
	TypeMembership          ProofType = "membership"
	TypeRange               ProofType = "range"
)

// ProofData is the circuit output block: opaque proof bytes plus the public
// signals a verifier needs.
type ProofData struct {
	Proof           string   `json:"proof"`
	PublicSignals   []string `json:"publicSignals"`
	VerificationKey string   `json:"verificationKey"`
}

// Metadata ties a proof back to the credential it was derived from without
// revealing claim values.
type Metadata struct {
	CredentialType string    `json:"credentialType"`
	IssuerDID      string    `json:"issuerDid"`
	SubjectDID     string    `json:"subjectDid"`
	SchemaID       string    `json:"schemaId"`
	ProofGenerated time.Time `json:"proofGenerated"`
}

// ZKProof is the wire form handed to verifiers. Immutable after creation;
// consumption bookkeeping lives in the nullifier registry, not here.
type ZKProof struct {
	ID                  id.ProofID     `json:"id"`
	ProofType           ProofType      `json:"proofType"`
	CircuitName         string         `json:"circuitName"`
	ProofData           ProofData      `json:"proofData"`
	NullifierHash       string         `json:"nullifierHash,omitempty"`
	CommitmentHash      string         `json:"commitmentHash"`
	RequestedAttributes []string       `json:"requestedAttributes"`
	RevealedAttributes  map[string]any `json:"revealedAttributes"`
	HiddenAttributes    []string       `json:"hiddenAttributes"`
	ProofPurpose        string         `json:"proofPurpose"`
	VerifierDID         string         `json:"verifierDid,omitempty"`
	Challenge           string         `json:"challenge"`
	ExpirationTime      time.Time      `json:"expirationTime"`
	Metadata            Metadata       `json:"metadata"`
}

// Expired reports whether the proof is past its validity window at now.
func (p ZKProof) Expired(now time.Time) bool {
	return now.After(p.ExpirationTime)
}

// VerificationResult is the outcome of one verification attempt. Reason is
// set only when Valid is false and carries a coarse category, never key
// material or claim values.
type VerificationResult struct {
	ProofID            id.ProofID     `json:"proofId"`
	Valid              bool           `json:"isValid"`
	Reason             string         `json:"reason,omitempty"`
	RevealedAttributes map[string]any `json:"revealedAttributes,omitempty"`
	VerifiedAt         time.Time      `json:"verifiedAt"`
}
