package auth

import (
	"context"
	"sync"
	"time"

	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
	"anchorid/pkg/requestcontext"
)

// MemoryNonceStore is the process-local nonce store for tests and
// single-instance deployments.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[id.WalletAddress]storedNonce
}

type storedNonce struct {
	nonce     string
	expiresAt time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[id.WalletAddress]storedNonce)}
}

func (s *MemoryNonceStore) SaveNonce(ctx context.Context, address id.WalletAddress, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[address] = storedNonce{nonce: nonce, expiresAt: requestcontext.Now(ctx).Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) ConsumeNonce(ctx context.Context, address id.WalletAddress) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nonces[address]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	delete(s.nonces, address)
	if requestcontext.Now(ctx).After(stored.expiresAt) {
		return "", sentinel.ErrNotFound
	}
	return stored.nonce, nil
}
