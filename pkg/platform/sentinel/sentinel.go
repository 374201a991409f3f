package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the encryption engine,
// and the ledger client return these (optionally wrapped) so services can
// translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: uniqueness constraint violated (wallet already mapped to a DID)
// - ErrExpired: proof or challenge past its expiration
// - ErrAlreadyUsed: nullifier already consumed for a verifier
// - ErrDecryptFailed: AEAD open failed (wrong key material or corrupt ciphertext)
// - ErrIntegrity: content hash mismatch after a successful decrypt
// - ErrUnavailable: ledger or backing service unreachable
//
// For validation errors (bad input, malformed DIDs), use pkg/domain-errors
// directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrExpired       = errors.New("expired")
	ErrAlreadyUsed   = errors.New("already used")
	ErrDecryptFailed = errors.New("decrypt failed")
	ErrIntegrity     = errors.New("integrity violation")
	ErrUnavailable   = errors.New("unavailable")
)
