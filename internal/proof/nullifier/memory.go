package nullifier

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is the in-process registry. Tests and single-node
// development only: the atomicity guarantee does not extend across
// processes.
type MemoryRegistry struct {
	mu       sync.Mutex
	consumed map[string]time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{consumed: make(map[string]time.Time)}
}

func key(nullifierHash, verifierDID string) string {
	return nullifierHash + "|" + verifierDID
}

func (r *MemoryRegistry) Consume(_ context.Context, nullifierHash, verifierDID string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(nullifierHash, verifierDID)
	if _, exists := r.consumed[k]; exists {
		return false, nil
	}
	r.consumed[k] = expiresAt
	return true, nil
}

func (r *MemoryRegistry) PruneExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for k, expiresAt := range r.consumed {
		if now.After(expiresAt) {
			delete(r.consumed, k)
			pruned++
		}
	}
	return pruned, nil
}
