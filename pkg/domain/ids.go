// Package domain holds the typed identifiers shared across the identity
// core. Typed IDs prevent cross-type assignment at compile time; Parse
// functions enforce invariants at trust boundaries.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "anchorid/pkg/domain-errors"
)

// CredentialID identifies a verifiable credential.
type CredentialID uuid.UUID

// ProofID identifies a generated proof.
type ProofID uuid.UUID

func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id ProofID) String() string      { return uuid.UUID(id).String() }

func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProofID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the IDs as canonical UUID strings on the wire and
// in stored payloads.

func (id CredentialID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ProofID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *CredentialID) UnmarshalText(b []byte) error {
	parsed, err := ParseCredentialID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ProofID) UnmarshalText(b []byte) error {
	parsed, err := ParseProofID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewCredentialID mints a random credential ID.
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }

// NewProofID mints a random proof ID.
func NewProofID() ProofID { return ProofID(uuid.New()) }

// ParseCredentialID validates external input into a CredentialID.
// Rejects empty, malformed, and nil UUIDs.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential id")
	if err != nil {
		return CredentialID{}, err
	}
	return CredentialID(u), nil
}

// ParseProofID validates external input into a ProofID.
func ParseProofID(s string) (ProofID, error) {
	u, err := parseUUID(s, "proof id")
	if err != nil {
		return ProofID{}, err
	}
	return ProofID(u), nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must not be nil", what)
	}
	return u, nil
}

// WalletAddress is a bech32-style chain account address. The core treats it
// as opaque beyond basic shape checks; it is the only wallet attribute ever
// persisted in plaintext.
type WalletAddress string

var walletAddressPattern = regexp.MustCompile(`^[a-z]{2,16}1[02-9ac-hj-np-z]{6,83}$`)

// ParseWalletAddress enforces bech32 shape: human-readable prefix, "1"
// separator, data part without the excluded characters (1, b, i, o).
func ParseWalletAddress(s string) (WalletAddress, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "wallet address is required")
	}
	if !walletAddressPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeValidation, "invalid wallet address")
	}
	return WalletAddress(s), nil
}

func (a WalletAddress) String() string { return string(a) }

// WalletType tags which wallet vendor produced a signature. The encryption
// challenge is vendor-specific, so the tag is part of the key-derivation
// input and must round-trip exactly.
type WalletType string

const (
	WalletKeplr       WalletType = "keplr"
	WalletLeap        WalletType = "leap"
	WalletCosmostation WalletType = "cosmostation"
)

var validWalletTypes = map[WalletType]bool{
	WalletKeplr:        true,
	WalletLeap:         true,
	WalletCosmostation: true,
}

// ParseWalletType constructs a WalletType from external input, enforcing the
// vendor allowlist.
func ParseWalletType(s string) (WalletType, error) {
	t := WalletType(strings.ToLower(strings.TrimSpace(s)))
	if !validWalletTypes[t] {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported wallet type %q", s)
	}
	return t, nil
}

func (t WalletType) String() string { return string(t) }
