// Package domainerrors provides coded domain errors for the identity core.
//
// Services construct these at the point where an infrastructure fact (a
// sentinel error) or a validation failure becomes a domain outcome. Handlers
// translate codes to HTTP statuses and expose only the code to callers, never
// wrapped internals.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are the external error taxonomy;
// anything more detailed stays inside the wrapped error chain.
type Code string

const (
	// CodeValidation covers malformed input: bad DID syntax, empty wallet
	// address, unknown credential type, missing request fields.
	CodeValidation Code = "validation"

	// CodeNotFound means the DID, credential, or proof does not exist.
	CodeNotFound Code = "not_found"

	// CodeDecryption means key material was wrong or ciphertext corrupt.
	// Deliberately indistinguishable externally from "wrong wallet".
	CodeDecryption Code = "decryption_failed"

	// CodeIntegrity means a record decrypted cleanly but its content hash
	// did not match the stored hash. This is tampering, not a bad key.
	CodeIntegrity Code = "integrity_violation"

	// CodeChainUnavailable means the ledger could not be reached. Callers
	// holding an Unanchored receipt see this as the reason, not a failure
	// of the local write.
	CodeChainUnavailable Code = "chain_unavailable"

	// CodeReplay means a proof's nullifier was already consumed by the
	// same verifier.
	CodeReplay Code = "replay"

	// CodeExpired means a proof or challenge is past its expiration time.
	CodeExpired Code = "expired"

	// CodeAttributeNotFound means a disclosure request named an attribute
	// the credential's claim set does not carry.
	CodeAttributeNotFound Code = "attribute_not_found"

	// CodeConflict means a uniqueness constraint was violated, e.g. a
	// second DID creation for a wallet that already has one.
	CodeConflict Code = "conflict"

	// CodeUnauthorized means the caller's API credentials were missing or
	// invalid.
	CodeUnauthorized Code = "unauthorized"

	// CodeInternal is the catch-all for unexpected failures. The message
	// shown externally must stay generic.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It optionally wraps a cause, which stays
// internal: Error() renders only code and message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause is
// reachable via errors.Is/As but never rendered to callers.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer returns.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDecryption, CodeUnauthorized:
		// Wrong wallet credentials look identical to missing auth; which
		// one it was must not leak to the caller.
		return http.StatusUnauthorized
	case CodeIntegrity:
		return http.StatusConflict
	case CodeChainUnavailable:
		return http.StatusServiceUnavailable
	case CodeReplay, CodeConflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeAttributeNotFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
