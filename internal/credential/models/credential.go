// Package models holds verifiable credential types and their claim schemas.
package models

import (
	"time"

	id "anchorid/pkg/domain"
)

// CredentialType tags a credential with its declared claim schema.
type CredentialType string

const (
	TypeIdentity   CredentialType = "IdentityCredential"
	TypeAge        CredentialType = "AgeCredential"
	TypeMembership CredentialType = "MembershipCredential"
)

// Proof is the issuer's signature block over the credential.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue"`
}

// VerifiableCredential is a signed claim set issued by one DID about
// another. Immutable after issuance; status changes re-anchor, they do not
// mutate the credential.
type VerifiableCredential struct {
	ID             id.CredentialID `json:"id"`
	Type           []string        `json:"type"`
	IssuerDID      id.DID          `json:"issuer"`
	SubjectDID     id.DID          `json:"credentialSubject"`
	IssuanceDate   time.Time       `json:"issuanceDate"`
	ExpirationDate *time.Time      `json:"expirationDate,omitempty"`
	Claims         map[string]any  `json:"claims"`
	Proof          Proof           `json:"proof"`
}

// CredentialKind extracts the schema-bearing type tag, skipping the generic
// "VerifiableCredential" marker.
func (c VerifiableCredential) CredentialKind() CredentialType {
	for _, t := range c.Type {
		if t != "VerifiableCredential" {
			return CredentialType(t)
		}
	}
	return ""
}

// Expired reports whether the credential is past its expiration at now.
func (c VerifiableCredential) Expired(now time.Time) bool {
	return c.ExpirationDate != nil && now.After(*c.ExpirationDate)
}

// Status tracks post-issuance lifecycle; stored beside the credential, never
// inside it.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)
