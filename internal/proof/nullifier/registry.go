// Package nullifier tracks one-time proof consumption. The registry is the
// anti-replay boundary: at most one verification may consume a given
// (nullifier, verifier) pair, enforced atomically in the backing store so
// the guarantee holds across concurrent server instances.
package nullifier

import (
	"context"
	"time"
)

// Registry is the atomic check-and-set over consumed nullifiers.
type Registry interface {
	// Consume marks the pair consumed. Returns true if this call won the
	// consumption, false if the pair was already consumed. The check and
	// the write are a single atomic operation.
	Consume(ctx context.Context, nullifierHash, verifierDID string, expiresAt time.Time) (bool, error)

	// PruneExpired drops records whose retention window has passed and
	// returns how many were removed. Backends with native TTLs may no-op.
	PruneExpired(ctx context.Context, now time.Time) (int, error)
}
