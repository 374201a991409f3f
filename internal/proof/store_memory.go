package proof

import (
	"context"
	"sync"
	"time"

	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
)

// MemoryStore is the process-local proof store used in tests and
// single-instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	proofs map[id.ProofID]ZKProof
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proofs: make(map[id.ProofID]ZKProof)}
}

func (s *MemoryStore) SaveProof(_ context.Context, p ZKProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.proofs[p.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "proof already stored")
	}
	s.proofs[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProof(_ context.Context, proofID id.ProofID) (ZKProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return ZKProof{}, dErrors.New(dErrors.CodeNotFound, "proof not found")
	}
	return p, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for pid, p := range s.proofs {
		if p.Expired(now) {
			delete(s.proofs, pid)
			n++
		}
	}
	return n, nil
}
