package store

import (
	"context"
	"fmt"
	"sync"

	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/identity/models"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
)

// MemoryBackend keeps records in process memory. Used in unit tests and
// single-instance development; production uses PostgresBackend.
type MemoryBackend struct {
	mu          sync.RWMutex
	didRecords  map[id.DID]models.EncryptedRecord
	walletIndex map[id.WalletAddress]id.DID
	credentials map[id.CredentialID]CredentialRecord
	bySubject   map[id.DID][]id.CredentialID
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		didRecords:  make(map[id.DID]models.EncryptedRecord),
		walletIndex: make(map[id.WalletAddress]id.DID),
		credentials: make(map[id.CredentialID]CredentialRecord),
		bySubject:   make(map[id.DID][]id.CredentialID),
	}
}

func (b *MemoryBackend) UpsertDIDRecord(_ context.Context, record models.EncryptedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// One DID per wallet: the wallet index is authoritative.
	if existing, ok := b.walletIndex[record.WalletAddress]; ok && existing != record.DID {
		return fmt.Errorf("wallet %s mapped to %s: %w", record.WalletAddress, existing, sentinel.ErrConflict)
	}
	if prev, ok := b.didRecords[record.DID]; ok {
		if prev.WalletAddress != record.WalletAddress {
			return fmt.Errorf("did %s owned by another wallet: %w", record.DID, sentinel.ErrConflict)
		}
		record.CreatedAt = prev.CreatedAt
	}
	b.didRecords[record.DID] = record
	b.walletIndex[record.WalletAddress] = record.DID
	return nil
}

func (b *MemoryBackend) GetDIDRecord(_ context.Context, did id.DID) (models.EncryptedRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.didRecords[did]
	if !ok {
		return models.EncryptedRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (b *MemoryBackend) FindDIDByWallet(_ context.Context, address id.WalletAddress) (id.DID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	did, ok := b.walletIndex[address]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return did, nil
}

func (b *MemoryBackend) InsertCredentialRecord(_ context.Context, record CredentialRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.credentials[record.ID]; ok {
		return fmt.Errorf("credential %s: %w", record.ID, sentinel.ErrConflict)
	}
	b.credentials[record.ID] = record
	b.bySubject[record.SubjectDID] = append(b.bySubject[record.SubjectDID], record.ID)
	return nil
}

func (b *MemoryBackend) GetCredentialRecord(_ context.Context, credentialID id.CredentialID) (CredentialRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.credentials[credentialID]
	if !ok {
		return CredentialRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (b *MemoryBackend) ListCredentialRecords(_ context.Context, subjectDID id.DID) ([]CredentialRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.bySubject[subjectDID]
	records := make([]CredentialRecord, 0, len(ids))
	for _, credID := range ids {
		records = append(records, b.credentials[credID])
	}
	return records, nil
}

func (b *MemoryBackend) UpdateCredentialStatus(_ context.Context, credentialID id.CredentialID, status credmodels.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.credentials[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = status
	b.credentials[credentialID] = record
	return nil
}
