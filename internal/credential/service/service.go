// Package service implements credential issuance and revocation. Issued
// credentials are encrypted under the subject wallet's key, content-hashed,
// and anchored; revocation re-anchors a status hash without touching the
// immutable credential record.
package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"anchorid/internal/anchor"
	credmetrics "anchorid/internal/credential/metrics"
	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/crypto"
	"anchorid/internal/identity/models"
	"anchorid/internal/identity/store"
	"anchorid/internal/wallet"
	dErrors "anchorid/pkg/domain-errors"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/audit"
	"anchorid/pkg/requestcontext"
)

// Anchorer is the ledger capability the service needs; *anchor.Service
// satisfies it.
type Anchorer interface {
	AnchorCredentialIssuance(ctx context.Context, credentialID id.CredentialID, contentHash string) (anchor.Receipt, error)
	AnchorCredentialRevocation(ctx context.Context, credentialID id.CredentialID, contentHash string) (anchor.Receipt, error)
}

// Compliance is the fail-closed audit sink.
type Compliance interface {
	Emit(ctx context.Context, event audit.Event) error
}

// IssuerConfig identifies the platform issuer: the DID written into
// credentials and the wallet that signs their proofs.
type IssuerConfig struct {
	DID     id.DID
	Address id.WalletAddress
	ChainID string
}

// Service issues and revokes verifiable credentials.
type Service struct {
	records    *store.Store
	anchorer   Anchorer
	issuer     IssuerConfig
	signer     wallet.Signer
	compliance Compliance
	logger     *slog.Logger
	metrics    *credmetrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *credmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCompliance sets the fail-closed audit sink.
func WithCompliance(c Compliance) Option {
	return func(s *Service) { s.compliance = c }
}

// NewService constructs the credential service.
func NewService(records *store.Store, anchorer Anchorer, issuer IssuerConfig, signer wallet.Signer, opts ...Option) *Service {
	s := &Service{
		records:  records,
		anchorer: anchorer,
		issuer:   issuer,
		signer:   signer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueParams describes a requested credential.
type IssueParams struct {
	Type   credmodels.CredentialType
	Claims map[string]any
	// TTL bounds credential validity; zero means no expiration.
	TTL time.Duration
}

// IssueResult reports a completed issuance.
type IssueResult struct {
	Credential credmodels.VerifiableCredential
	Receipt    anchor.Receipt
	Warnings   []string
}

// Issue validates the claims against the type's schema, signs the
// credential as the platform issuer, encrypts it under the subject wallet's
// key, and anchors its content hash. The subject must already own a DID.
func (s *Service) Issue(ctx context.Context, subject models.WalletIdentity, params IssueParams) (IssueResult, error) {
	if err := credmodels.ValidateClaims(params.Type, params.Claims); err != nil {
		s.metrics.IncrementIssued(string(params.Type), "invalid")
		return IssueResult{}, err
	}

	subjectDID, err := s.records.FindDIDByWallet(ctx, subject.Address)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return IssueResult{}, dErrors.New(dErrors.CodeValidation, "subject wallet has no DID")
		}
		return IssueResult{}, err
	}

	now := requestcontext.Now(ctx)
	cred := credmodels.VerifiableCredential{
		ID:           id.NewCredentialID(),
		Type:         []string{"VerifiableCredential", string(params.Type)},
		IssuerDID:    s.issuer.DID,
		SubjectDID:   subjectDID,
		IssuanceDate: now,
		Claims:       params.Claims,
	}
	if params.TTL > 0 {
		expires := now.Add(params.TTL)
		cred.ExpirationDate = &expires
	}
	proof, err := s.signProof(ctx, cred, now)
	if err != nil {
		s.metrics.IncrementIssued(string(params.Type), "error")
		return IssueResult{}, err
	}
	cred.Proof = proof

	result, err := s.records.StoreCredential(ctx, cred, subject)
	if err != nil {
		s.metrics.IncrementIssued(string(params.Type), "error")
		return IssueResult{}, err
	}

	if err := s.emitCompliance(ctx, audit.EventCredentialIssued, cred.ID.String(), result.ContentHash, ""); err != nil {
		return IssueResult{}, err
	}

	receipt, err := s.anchorer.AnchorCredentialIssuance(ctx, cred.ID, result.ContentHash)
	if err != nil {
		return IssueResult{}, err
	}
	var warnings []string
	if !receipt.Anchored() {
		warnings = append(warnings, "anchoring failed: "+receipt.Reason)
		s.logger.WarnContext(ctx, "credential issued unanchored",
			"credential_id", cred.ID.String(), "reason", receipt.Reason)
	}

	s.metrics.IncrementIssued(string(params.Type), "success")
	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", cred.ID.String(),
		"type", string(params.Type),
		"subject_did", subjectDID.String(),
	)
	return IssueResult{Credential: cred, Receipt: receipt, Warnings: warnings}, nil
}

// RevokeResult reports a completed revocation.
type RevokeResult struct {
	Receipt  anchor.Receipt
	Warnings []string
}

// Revoke marks a credential revoked and anchors the status-change hash as a
// new log row. Only the subject wallet can revoke: decryption doubles as
// the ownership check.
func (s *Service) Revoke(ctx context.Context, subject models.WalletIdentity, credentialID id.CredentialID) (RevokeResult, error) {
	cred, status, err := s.records.GetCredentialWithStatus(ctx, credentialID, subject)
	if err != nil {
		return RevokeResult{}, err
	}
	if status == credmodels.StatusRevoked {
		return RevokeResult{}, dErrors.New(dErrors.CodeConflict, "credential is already revoked")
	}

	if err := s.records.UpdateCredentialStatus(ctx, credentialID, credmodels.StatusRevoked); err != nil {
		return RevokeResult{}, err
	}

	statusHash, err := crypto.ContentHash(map[string]any{
		"credentialId": credentialID.String(),
		"status":       string(credmodels.StatusRevoked),
		"revokedAt":    requestcontext.Now(ctx).UTC(),
	})
	if err != nil {
		return RevokeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash revocation")
	}

	if err := s.emitCompliance(ctx, audit.EventCredentialRevoked, credentialID.String(), statusHash, cred.SubjectDID.String()); err != nil {
		return RevokeResult{}, err
	}

	receipt, err := s.anchorer.AnchorCredentialRevocation(ctx, credentialID, statusHash)
	if err != nil {
		return RevokeResult{}, err
	}
	var warnings []string
	if !receipt.Anchored() {
		warnings = append(warnings, "anchoring failed: "+receipt.Reason)
	}

	s.metrics.IncrementRevoked(string(cred.CredentialKind()))
	s.logger.InfoContext(ctx, "credential revoked", "credential_id", credentialID.String())
	return RevokeResult{Receipt: receipt, Warnings: warnings}, nil
}

// Get returns a single decrypted credential owned by the subject wallet.
func (s *Service) Get(ctx context.Context, subject models.WalletIdentity, credentialID id.CredentialID) (credmodels.VerifiableCredential, credmodels.Status, error) {
	return s.records.GetCredentialWithStatus(ctx, credentialID, subject)
}

// List returns all decrypted credentials owned by the subject wallet, with
// warnings for records that could not be decrypted.
func (s *Service) List(ctx context.Context, subject models.WalletIdentity) ([]credmodels.VerifiableCredential, []string, error) {
	subjectDID, err := s.records.FindDIDByWallet(ctx, subject.Address)
	if err != nil {
		return nil, nil, err
	}
	return s.records.ListCredentials(ctx, subjectDID, subject)
}

// signProof signs the canonical form of the credential, minus the proof
// block itself, as the platform issuer.
func (s *Service) signProof(ctx context.Context, cred credmodels.VerifiableCredential, now time.Time) (credmodels.Proof, error) {
	unsigned := cred
	unsigned.Proof = credmodels.Proof{}
	canonical, err := crypto.CanonicalJSON(unsigned)
	if err != nil {
		return credmodels.Proof{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize credential")
	}
	signature, err := s.signer.SignArbitrary(ctx, s.issuer.ChainID, s.issuer.Address, canonical)
	if err != nil {
		return credmodels.Proof{}, dErrors.Wrap(err, dErrors.CodeInternal, "issuer signing failed")
	}
	return credmodels.Proof{
		Type:               "EcdsaSecp256k1Signature2019",
		Created:            now,
		VerificationMethod: s.issuer.DID.String() + "#key-1",
		ProofPurpose:       "assertionMethod",
		ProofValue:         base64.StdEncoding.EncodeToString(signature),
	}, nil
}

func (s *Service) emitCompliance(ctx context.Context, action audit.AuditEvent, subject, contentHash, verifier string) error {
	if s.compliance == nil {
		return nil
	}
	event := audit.New(action, subject)
	event.ContentHash = contentHash
	event.VerifierDID = verifier
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.compliance.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit trail write failed")
	}
	return nil
}

// VerifyIssuerProof recomputes the issuer signature for a credential and
// compares it against the embedded proof. Works only for credentials signed
// by this service's issuer wallet.
func (s *Service) VerifyIssuerProof(ctx context.Context, cred credmodels.VerifiableCredential) error {
	expected, err := s.signProof(ctx, cred, cred.Proof.Created)
	if err != nil {
		return err
	}
	if expected.ProofValue != cred.Proof.ProofValue {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("issuer proof mismatch for credential %s", cred.ID))
	}
	return nil
}
