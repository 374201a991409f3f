package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	dErrors "anchorid/pkg/domain-errors"
)

// DID is a decentralized identifier string of the form
// did:<method>:<method-specific-id>.
//
// Invariant: a DID is immutable once created and maps to exactly one wallet
// address. Construct via ParseDID at trust boundaries; direct casting
// bypasses validation.
type DID string

// Method is the DID method this platform issues.
const Method = "anchor"

// didPattern follows the DID core syntax restricted to the characters the
// platform emits. The method-specific id is an opaque token; for the
// "anchor" method it is a 32-char lowercase hex string.
var didPattern = regexp.MustCompile(`^did:([a-z0-9]+):([A-Za-z0-9._%-]+)$`)

// anchorIDPattern is the method-specific id shape for did:anchor.
var anchorIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ParseDID validates syntax before any I/O happens. Method-specific id rules
// are only enforced for the platform's own method; foreign methods get the
// generic syntax check.
func ParseDID(s string) (DID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "did is required")
	}
	m := didPattern.FindStringSubmatch(s)
	if m == nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid did format, expected did:<method>:<id>")
	}
	if m[1] == Method && !anchorIDPattern.MatchString(m[2]) {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid did:%s identifier", Method)
	}
	return DID(s), nil
}

func (d DID) String() string { return string(d) }

// MethodName returns the method segment, or "" for a malformed value.
func (d DID) MethodName() string {
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// DIDForWallet derives the platform DID for a wallet address. The
// method-specific id is the first 16 bytes of SHA-256(address) in hex, so
// DID creation is idempotent per wallet before storage is ever consulted.
func DIDForWallet(address WalletAddress) DID {
	sum := sha256.Sum256([]byte(address))
	return DID(fmt.Sprintf("did:%s:%s", Method, hex.EncodeToString(sum[:16])))
}
