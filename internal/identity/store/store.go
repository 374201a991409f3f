// Package store is the content-addressed record store: it encrypts DID
// documents and credentials under wallet-derived keys, persists them as
// content-hashed records, and re-verifies integrity on every read.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/crypto"
	"anchorid/internal/identity/models"
	"anchorid/internal/wallet"
	dErrors "anchorid/pkg/domain-errors"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
	"anchorid/pkg/requestcontext"
)

// Signing purposes; part of the deterministic encryption challenge, so they
// must never change once records exist.
const (
	purposeDIDDocument = "did-document"
	purposeCredential  = "credential"
)

// CredentialRecord is a persisted encrypted credential row.
type CredentialRecord struct {
	ID         id.CredentialID
	SubjectDID id.DID
	Type       credmodels.CredentialType
	Status     credmodels.Status
	Payload    crypto.EncryptedPayload
	CreatedAt  time.Time
}

// Backend is the raw persistence the store runs on. Implementations must
// provide a unique constraint on wallet address for DID records and must
// make UpsertDIDRecord atomic per DID key.
type Backend interface {
	UpsertDIDRecord(ctx context.Context, record models.EncryptedRecord) error
	GetDIDRecord(ctx context.Context, did id.DID) (models.EncryptedRecord, error)
	FindDIDByWallet(ctx context.Context, address id.WalletAddress) (id.DID, error)

	InsertCredentialRecord(ctx context.Context, record CredentialRecord) error
	GetCredentialRecord(ctx context.Context, credentialID id.CredentialID) (CredentialRecord, error)
	ListCredentialRecords(ctx context.Context, subjectDID id.DID) ([]CredentialRecord, error)
	UpdateCredentialStatus(ctx context.Context, credentialID id.CredentialID, status credmodels.Status) error
}

// Store orchestrates encryption and persistence. One instance per process,
// injected by reference into the DID resolution service and proof engine.
type Store struct {
	backend Backend
	engine  *crypto.Engine
	signer  wallet.Signer
	chainID string
	logger  *slog.Logger

	// didLocks serializes encrypt+write sequences per DID so same-DID
	// writes apply in request order. Cross-DID writes stay concurrent.
	didLocks sync.Map
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for batch-decrypt warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New constructs a Store.
func New(backend Backend, engine *crypto.Engine, signer wallet.Signer, chainID string, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		engine:  engine,
		signer:  signer,
		chainID: chainID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lockDID(did id.DID) func() {
	v, _ := s.didLocks.LoadOrStore(did, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// StoreDIDDocument encrypts and upserts a DID document. Enforces one DID
// per wallet: a different wallet already holding a DID surfaces as
// CodeConflict.
func (s *Store) StoreDIDDocument(ctx context.Context, did id.DID, identity models.WalletIdentity, doc models.DIDDocument) (models.StorageResult, error) {
	unlock := s.lockDID(did)
	defer unlock()

	signature, err := s.challengeSignature(ctx, identity, purposeDIDDocument)
	if err != nil {
		return models.StorageResult{}, err
	}
	payload, err := s.engine.Encrypt(doc, signature)
	if err != nil {
		return models.StorageResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt did document")
	}

	now := requestcontext.Now(ctx)
	record := models.EncryptedRecord{
		Payload:       payload,
		DID:           did,
		WalletAddress: identity.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.backend.UpsertDIDRecord(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.StorageResult{}, dErrors.New(dErrors.CodeConflict, "wallet already has a DID")
		}
		return models.StorageResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store did document")
	}
	return models.StorageResult{ContentHash: payload.ContentHash, Record: record}, nil
}

// GetDIDDocument decrypts the stored document for the supplied wallet and
// re-verifies the content hash before returning it. A wrong wallet yields
// CodeDecryption; a hash mismatch after a clean decrypt yields
// CodeIntegrity.
func (s *Store) GetDIDDocument(ctx context.Context, did id.DID, identity models.WalletIdentity) (models.DIDDocument, error) {
	record, err := s.backend.GetDIDRecord(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DIDDocument{}, dErrors.New(dErrors.CodeNotFound, "did not found")
		}
		return models.DIDDocument{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load did document")
	}

	signature, err := s.challengeSignature(ctx, identity, purposeDIDDocument)
	if err != nil {
		return models.DIDDocument{}, err
	}
	plaintext, err := s.engine.Decrypt(record.Payload, signature)
	if err != nil {
		return models.DIDDocument{}, mapDecryptErr(err)
	}

	var doc models.DIDDocument
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return models.DIDDocument{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored document is not valid JSON")
	}
	// Defense in depth: the engine already checked the payload hash, this
	// confirms the decoded value still matches what was anchored.
	if !crypto.VerifyContentHash(doc, record.Payload.ContentHash) {
		return models.DIDDocument{}, dErrors.New(dErrors.CodeIntegrity, "content hash mismatch")
	}
	return doc, nil
}

// RecordExists reports whether a DID has a stored record, without touching
// key material. Used for redacted public resolution.
func (s *Store) RecordExists(ctx context.Context, did id.DID) (bool, error) {
	_, err := s.backend.GetDIDRecord(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to probe did record")
	}
	return true, nil
}

// FindDIDByWallet is the indexed reverse lookup (never a scan). Returns
// CodeNotFound when the wallet has no DID.
func (s *Store) FindDIDByWallet(ctx context.Context, address id.WalletAddress) (id.DID, error) {
	did, err := s.backend.FindDIDByWallet(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "wallet has no DID")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up wallet mapping")
	}
	return did, nil
}

// StoreCredential encrypts and persists a credential owned by the subject
// wallet.
func (s *Store) StoreCredential(ctx context.Context, cred credmodels.VerifiableCredential, identity models.WalletIdentity) (models.StorageResult, error) {
	signature, err := s.challengeSignature(ctx, identity, purposeCredential)
	if err != nil {
		return models.StorageResult{}, err
	}
	payload, err := s.engine.Encrypt(cred, signature)
	if err != nil {
		return models.StorageResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt credential")
	}
	record := CredentialRecord{
		ID:         cred.ID,
		SubjectDID: cred.SubjectDID,
		Type:       cred.CredentialKind(),
		Status:     credmodels.StatusActive,
		Payload:    payload,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.backend.InsertCredentialRecord(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.StorageResult{}, dErrors.New(dErrors.CodeConflict, "credential already exists")
		}
		return models.StorageResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}
	return models.StorageResult{
		ContentHash: payload.ContentHash,
		Record: models.EncryptedRecord{
			Payload:       payload,
			DID:           cred.SubjectDID,
			WalletAddress: identity.Address,
			CreatedAt:     record.CreatedAt,
			UpdatedAt:     record.CreatedAt,
		},
	}, nil
}

// GetCredential decrypts a single credential for its subject wallet.
func (s *Store) GetCredential(ctx context.Context, credentialID id.CredentialID, identity models.WalletIdentity) (credmodels.VerifiableCredential, error) {
	record, err := s.backend.GetCredentialRecord(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return credmodels.VerifiableCredential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return credmodels.VerifiableCredential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return s.decryptCredential(ctx, record, identity)
}

// GetCredentialWithStatus decrypts a credential and returns its lifecycle
// status alongside. Proof generation and revocation branch on the status.
func (s *Store) GetCredentialWithStatus(ctx context.Context, credentialID id.CredentialID, identity models.WalletIdentity) (credmodels.VerifiableCredential, credmodels.Status, error) {
	record, err := s.backend.GetCredentialRecord(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return credmodels.VerifiableCredential{}, "", dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return credmodels.VerifiableCredential{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	cred, err := s.decryptCredential(ctx, record, identity)
	if err != nil {
		return credmodels.VerifiableCredential{}, "", err
	}
	return cred, record.Status, nil
}

// ListCredentials decrypts all credentials owned by a subject DID. A record
// that fails to decrypt is skipped with a warning instead of failing the
// batch; callers receive the partial result plus the warning list.
func (s *Store) ListCredentials(ctx context.Context, subjectDID id.DID, identity models.WalletIdentity) ([]credmodels.VerifiableCredential, []string, error) {
	records, err := s.backend.ListCredentialRecords(ctx, subjectDID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}

	creds := make([]credmodels.VerifiableCredential, 0, len(records))
	var warnings []string
	for _, record := range records {
		cred, err := s.decryptCredential(ctx, record, identity)
		if err != nil {
			warning := fmt.Sprintf("credential %s skipped: %s", record.ID, dErrors.CodeOf(err))
			warnings = append(warnings, warning)
			s.logger.WarnContext(ctx, "skipping undecryptable credential",
				"credential_id", record.ID.String(),
				"subject_did", subjectDID.String(),
				"code", string(dErrors.CodeOf(err)),
			)
			continue
		}
		creds = append(creds, cred)
	}
	return creds, warnings, nil
}

// UpdateCredentialStatus marks a credential revoked or expired. The
// credential record itself is immutable; only the status column moves.
func (s *Store) UpdateCredentialStatus(ctx context.Context, credentialID id.CredentialID, status credmodels.Status) error {
	if err := s.backend.UpdateCredentialStatus(ctx, credentialID, status); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update credential status")
	}
	return nil
}

func (s *Store) decryptCredential(ctx context.Context, record CredentialRecord, identity models.WalletIdentity) (credmodels.VerifiableCredential, error) {
	signature, err := s.challengeSignature(ctx, identity, purposeCredential)
	if err != nil {
		return credmodels.VerifiableCredential{}, err
	}
	plaintext, err := s.engine.Decrypt(record.Payload, signature)
	if err != nil {
		return credmodels.VerifiableCredential{}, mapDecryptErr(err)
	}
	var cred credmodels.VerifiableCredential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return credmodels.VerifiableCredential{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored credential is not valid JSON")
	}
	return cred, nil
}

// challengeSignature re-derives the deterministic wallet signature used as
// encryption key material. The same (walletType, address, purpose) always
// signs the same message, so the signature and thus the key are
// reproducible.
func (s *Store) challengeSignature(ctx context.Context, identity models.WalletIdentity, purpose string) ([]byte, error) {
	challenge := wallet.EncryptionChallenge(identity.WalletType, identity.Address, purpose)
	signature, err := s.signer.SignArbitrary(ctx, s.chainID, identity.Address, challenge)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "wallet signing failed")
	}
	return signature, nil
}

func mapDecryptErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrIntegrity):
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "content hash mismatch")
	case errors.Is(err, sentinel.ErrDecryptFailed):
		return dErrors.Wrap(err, dErrors.CodeDecryption, "unable to decrypt record")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "decrypt failed unexpectedly")
	}
}
