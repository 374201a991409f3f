// Package models holds the DID document and encrypted-record types.
package models

import (
	"time"

	"anchorid/internal/crypto"
	id "anchorid/pkg/domain"
)

// WalletIdentity is the externally supplied wallet context for a request.
// Never persisted beyond the address; the public key and any signature are
// request-scoped key material only.
type WalletIdentity struct {
	Address    id.WalletAddress
	WalletType id.WalletType
	PublicKey  []byte
}

// VerificationMethod is a key entry in a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// ServiceEndpoint is a service entry in a DID document.
type ServiceEndpoint struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// DIDDocument is the decrypted document persisted as an encrypted record.
//
// Invariants: ID is immutable once created; exactly one document exists per
// wallet address. Deactivation clears Authentication and AssertionMethod but
// keeps the document resolvable.
type DIDDocument struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	Service            []ServiceEndpoint    `json:"service"`
	Created            time.Time            `json:"created"`
	Updated            time.Time            `json:"updated"`
}

// Deactivated reports whether the document is a logical tombstone.
func (d DIDDocument) Deactivated() bool {
	return len(d.Authentication) == 0 && len(d.AssertionMethod) == 0
}

// PublicStub returns the redacted form served to callers without wallet
// credentials: existence is confirmed, contents are not.
func (d DIDDocument) PublicStub() DIDDocument {
	return DIDDocument{
		ID:                 d.ID,
		VerificationMethod: []VerificationMethod{},
		Authentication:     []string{},
		AssertionMethod:    []string{},
		Service:            []ServiceEndpoint{},
	}
}

// EncryptedRecord is a persisted, content-hashed ciphertext plus owner
// identifiers. The plaintext kind (DID document or credential) is tracked by
// the store, not the record.
type EncryptedRecord struct {
	Payload       crypto.EncryptedPayload
	DID           id.DID
	WalletAddress id.WalletAddress
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StorageResult reports a completed store write.
type StorageResult struct {
	ContentHash string
	Record      EncryptedRecord
}
