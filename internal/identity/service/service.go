// Package service implements the DID lifecycle: create, resolve, update,
// deactivate. A DID moves NonExistent -> Created -> Updated* -> Deactivated;
// deactivation is terminal but the document stays resolvable.
package service

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"anchorid/internal/anchor"
	idmetrics "anchorid/internal/identity/metrics"
	"anchorid/internal/identity/models"
	"anchorid/internal/identity/store"
	dErrors "anchorid/pkg/domain-errors"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/audit"
	"anchorid/pkg/requestcontext"
)

// Anchorer is the ledger capability the service needs; *anchor.Service
// satisfies it.
type Anchorer interface {
	AnchorDIDCreation(ctx context.Context, did id.DID, contentHash string) (anchor.Receipt, error)
	AnchorDIDUpdate(ctx context.Context, did id.DID, contentHash string) (anchor.Receipt, error)
	AnchorDIDDeactivation(ctx context.Context, did id.DID, contentHash string) (anchor.Receipt, error)
	CheckChainStatus(ctx context.Context) (anchor.ChainStatus, error)
}

// Compliance is the fail-closed audit sink for lifecycle events.
type Compliance interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Ops is the fail-open audit sink for routine and security events.
type Ops interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates the record store and anchor client. Local storage
// and on-chain anchoring are independent failure domains: a store failure
// fails the operation, an anchor failure degrades it to a warning.
type Service struct {
	records    *store.Store
	anchorer   Anchorer
	compliance Compliance
	ops        Ops
	logger     *slog.Logger
	metrics    *idmetrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *idmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit sets the audit sinks.
func WithAudit(compliance Compliance, ops Ops) Option {
	return func(s *Service) {
		s.compliance = compliance
		s.ops = ops
	}
}

// NewService constructs the DID lifecycle service.
func NewService(records *store.Store, anchorer Anchorer, opts ...Option) *Service {
	s := &Service{
		records:  records,
		anchorer: anchorer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult reports a completed DID creation.
type CreateResult struct {
	DID      id.DID
	Document models.DIDDocument
	Receipt  anchor.Receipt
	Warnings []string
}

// Create derives the wallet's DID, builds its initial document, encrypts and
// stores it, then anchors the content hash. The DID string is a pure
// function of the wallet address, so a second create for the same wallet is
// rejected with CodeConflict rather than minting a sibling identity.
func (s *Service) Create(ctx context.Context, identity models.WalletIdentity) (CreateResult, error) {
	if _, err := s.records.FindDIDByWallet(ctx, identity.Address); err == nil {
		s.metrics.IncrementOperation("create", "conflict")
		return CreateResult{}, dErrors.New(dErrors.CodeConflict, "wallet already has a DID")
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return CreateResult{}, err
	}

	did := id.DIDForWallet(identity.Address)
	now := requestcontext.Now(ctx)
	doc := newDocument(did, identity, now)

	result, err := s.records.StoreDIDDocument(ctx, did, identity, doc)
	if err != nil {
		s.metrics.IncrementOperation("create", "error")
		return CreateResult{}, err
	}

	if err := s.emitCompliance(ctx, audit.EventDIDCreated, did.String(), result.ContentHash); err != nil {
		return CreateResult{}, err
	}

	receipt, warnings, err := s.anchorWith(ctx, s.anchorer.AnchorDIDCreation, did, result.ContentHash)
	if err != nil {
		return CreateResult{}, err
	}

	s.metrics.IncrementOperation("create", "success")
	s.logger.InfoContext(ctx, "did created",
		"did", did.String(),
		"content_hash", result.ContentHash,
		"anchored", receipt.Anchored(),
	)
	return CreateResult{DID: did, Document: doc, Receipt: receipt, Warnings: warnings}, nil
}

// ResolveResult carries a resolved document. Redacted means the caller had
// no wallet credentials and received the public stub; ChainConfirmed means
// the ledger probe succeeded.
type ResolveResult struct {
	Document       models.DIDDocument
	Redacted       bool
	ChainConfirmed bool
}

// Resolve returns the document for a DID. With wallet credentials the full
// decrypted document is returned; without, a redacted stub confirming
// existence only. The ledger probe is advisory: a chain outage never blocks
// resolution of locally stored records.
func (s *Service) Resolve(ctx context.Context, didStr string, identity *models.WalletIdentity) (ResolveResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveResolveLatency(time.Since(start)) }()

	did, err := id.ParseDID(didStr)
	if err != nil {
		return ResolveResult{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid did")
	}

	chainConfirmed := false
	if status, err := s.anchorer.CheckChainStatus(ctx); err == nil && status.Available {
		chainConfirmed = true
	} else {
		s.logger.WarnContext(ctx, "resolving without chain confirmation", "did", didStr)
	}

	if identity == nil {
		exists, err := s.records.RecordExists(ctx, did)
		if err != nil {
			return ResolveResult{}, err
		}
		if !exists {
			s.metrics.IncrementOperation("resolve", "not_found")
			return ResolveResult{}, dErrors.New(dErrors.CodeNotFound, "did not found")
		}
		s.metrics.IncrementOperation("resolve", "redacted")
		stub := models.DIDDocument{ID: did.String()}.PublicStub()
		return ResolveResult{Document: stub, Redacted: true, ChainConfirmed: chainConfirmed}, nil
	}

	doc, err := s.records.GetDIDDocument(ctx, did, *identity)
	if err != nil {
		s.auditRecordFailure(ctx, did.String(), err)
		s.metrics.IncrementOperation("resolve", "error")
		return ResolveResult{}, err
	}
	s.metrics.IncrementOperation("resolve", "success")
	return ResolveResult{Document: doc, ChainConfirmed: chainConfirmed}, nil
}

// UpdateParams describes a document mutation. Verification methods are
// fixed at creation; services are the mutable part of the document.
type UpdateParams struct {
	AddServices      []models.ServiceEndpoint
	RemoveServiceIDs []string
}

// UpdateResult reports a completed document update or deactivation.
type UpdateResult struct {
	Document models.DIDDocument
	Receipt  anchor.Receipt
	Warnings []string
}

// Update fetches, merges, and re-stores the document, producing a new
// content hash and a new anchor log row. The previous anchor row is never
// touched.
func (s *Service) Update(ctx context.Context, didStr string, identity models.WalletIdentity, params UpdateParams) (UpdateResult, error) {
	did, doc, err := s.loadOwned(ctx, didStr, identity)
	if err != nil {
		s.metrics.IncrementOperation("update", "error")
		return UpdateResult{}, err
	}
	if doc.Deactivated() {
		s.metrics.IncrementOperation("update", "conflict")
		return UpdateResult{}, dErrors.New(dErrors.CodeConflict, "did is deactivated")
	}

	doc.Service = mergeServices(doc.Service, params.AddServices, params.RemoveServiceIDs)
	doc.Updated = requestcontext.Now(ctx)

	result, err := s.records.StoreDIDDocument(ctx, did, identity, doc)
	if err != nil {
		s.metrics.IncrementOperation("update", "error")
		return UpdateResult{}, err
	}
	if err := s.emitCompliance(ctx, audit.EventDIDUpdated, did.String(), result.ContentHash); err != nil {
		return UpdateResult{}, err
	}
	receipt, warnings, err := s.anchorWith(ctx, s.anchorer.AnchorDIDUpdate, did, result.ContentHash)
	if err != nil {
		return UpdateResult{}, err
	}

	s.metrics.IncrementOperation("update", "success")
	return UpdateResult{Document: doc, Receipt: receipt, Warnings: warnings}, nil
}

// Deactivate clears the authentication and assertion arrays, turning the
// document into a logical tombstone. The record stays stored and resolvable.
func (s *Service) Deactivate(ctx context.Context, didStr string, identity models.WalletIdentity) (UpdateResult, error) {
	did, doc, err := s.loadOwned(ctx, didStr, identity)
	if err != nil {
		s.metrics.IncrementOperation("deactivate", "error")
		return UpdateResult{}, err
	}
	if doc.Deactivated() {
		s.metrics.IncrementOperation("deactivate", "conflict")
		return UpdateResult{}, dErrors.New(dErrors.CodeConflict, "did is already deactivated")
	}

	doc.Authentication = []string{}
	doc.AssertionMethod = []string{}
	doc.Updated = requestcontext.Now(ctx)

	result, err := s.records.StoreDIDDocument(ctx, did, identity, doc)
	if err != nil {
		s.metrics.IncrementOperation("deactivate", "error")
		return UpdateResult{}, err
	}
	if err := s.emitCompliance(ctx, audit.EventDIDDeactivated, did.String(), result.ContentHash); err != nil {
		return UpdateResult{}, err
	}
	receipt, warnings, err := s.anchorWith(ctx, s.anchorer.AnchorDIDDeactivation, did, result.ContentHash)
	if err != nil {
		return UpdateResult{}, err
	}

	s.metrics.IncrementOperation("deactivate", "success")
	s.logger.InfoContext(ctx, "did deactivated", "did", did.String())
	return UpdateResult{Document: doc, Receipt: receipt, Warnings: warnings}, nil
}

// DIDForWallet returns the DID owned by a wallet, if any.
func (s *Service) DIDForWallet(ctx context.Context, address id.WalletAddress) (id.DID, error) {
	return s.records.FindDIDByWallet(ctx, address)
}

func (s *Service) loadOwned(ctx context.Context, didStr string, identity models.WalletIdentity) (id.DID, models.DIDDocument, error) {
	did, err := id.ParseDID(didStr)
	if err != nil {
		return "", models.DIDDocument{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid did")
	}
	doc, err := s.records.GetDIDDocument(ctx, did, identity)
	if err != nil {
		s.auditRecordFailure(ctx, did.String(), err)
		return "", models.DIDDocument{}, err
	}
	return did, doc, nil
}

// anchorWith runs one anchoring operation. An unanchored receipt degrades
// to a warning: the local write already succeeded and must not be rolled
// back by a chain outage.
func (s *Service) anchorWith(ctx context.Context, op func(context.Context, id.DID, string) (anchor.Receipt, error), did id.DID, contentHash string) (anchor.Receipt, []string, error) {
	receipt, err := op(ctx, did, contentHash)
	if err != nil {
		return anchor.Receipt{}, nil, err
	}
	if receipt.Anchored() {
		return receipt, nil, nil
	}
	warning := "anchoring failed: " + receipt.Reason
	s.logger.WarnContext(ctx, "operation completed unanchored",
		"did", did.String(), "reason", receipt.Reason)
	return receipt, []string{warning}, nil
}

func (s *Service) emitCompliance(ctx context.Context, action audit.AuditEvent, subject, contentHash string) error {
	if s.compliance == nil {
		return nil
	}
	event := audit.New(action, subject)
	event.ContentHash = contentHash
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.compliance.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit trail write failed")
	}
	return nil
}

// auditRecordFailure emits security events for decrypt and integrity
// failures so tampering shows up in monitoring.
func (s *Service) auditRecordFailure(ctx context.Context, subject string, err error) {
	if s.ops == nil {
		return
	}
	var action audit.AuditEvent
	switch {
	case dErrors.HasCode(err, dErrors.CodeIntegrity):
		action = audit.EventIntegrityViolation
	case dErrors.HasCode(err, dErrors.CodeDecryption):
		action = audit.EventDecryptionFailed
	default:
		return
	}
	event := audit.New(action, subject)
	event.Reason = err.Error()
	event.RequestID = requestcontext.RequestID(ctx)
	s.ops.Emit(ctx, event)
}

func newDocument(did id.DID, identity models.WalletIdentity, now time.Time) models.DIDDocument {
	keyID := did.String() + "#key-1"
	return models.DIDDocument{
		ID: did.String(),
		VerificationMethod: []models.VerificationMethod{{
			ID:         keyID,
			Type:       "Secp256k1VerificationKey2018",
			Controller: did.String(),
			// Multibase lowercase-hex encoding of the wallet public key.
			PublicKeyMultibase: "f" + hex.EncodeToString(identity.PublicKey),
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
		Service:         []models.ServiceEndpoint{},
		Created:         now,
		Updated:         now,
	}
}

func mergeServices(current, add []models.ServiceEndpoint, removeIDs []string) []models.ServiceEndpoint {
	remove := make(map[string]bool, len(removeIDs))
	for _, serviceID := range removeIDs {
		remove[serviceID] = true
	}
	merged := make([]models.ServiceEndpoint, 0, len(current)+len(add))
	replaced := make(map[string]bool, len(add))
	for _, endpoint := range add {
		replaced[endpoint.ID] = true
	}
	for _, endpoint := range current {
		if remove[endpoint.ID] || replaced[endpoint.ID] {
			continue
		}
		merged = append(merged, endpoint)
	}
	merged = append(merged, add...)
	return merged
}
