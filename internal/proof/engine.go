package proof

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"anchorid/internal/anchor"
	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/crypto"
	"anchorid/internal/identity/models"
	"anchorid/internal/identity/store"
	proofmetrics "anchorid/internal/proof/metrics"
	"anchorid/internal/proof/nullifier"
	"anchorid/internal/proof/zkbackend"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/audit"
	"anchorid/pkg/requestcontext"
)

var tracer = otel.Tracer("anchorid/internal/proof")

// DefaultExpiry is the proof validity window when none is configured.
const DefaultExpiry = 24 * time.Hour

const batchConcurrency = 8

// Anchorer anchors proof commitments; *anchor.Service satisfies it.
// Anchoring is fail-open: a chain outage degrades to a warning.
type Anchorer interface {
	AnchorProofCommitment(ctx context.Context, proofID id.ProofID, contentHash string) (anchor.Receipt, error)
}

// Ops is the fail-open audit sink for proof lifecycle and security events.
type Ops interface {
	Emit(ctx context.Context, event audit.Event)
}

// Engine generates and verifies proofs over stored credentials. Proofs are
// immutable after creation; replay protection lives entirely in the
// nullifier registry so verification stays exactly-once across instances.
type Engine struct {
	records    *store.Store
	backend    zkbackend.Prover
	nullifiers nullifier.Registry
	proofs     Store
	anchorer   Anchorer
	ops        Ops
	expiry     time.Duration
	logger     *slog.Logger
	metrics    *proofmetrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *proofmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOps sets the fail-open audit sink.
func WithOps(ops Ops) Option {
	return func(e *Engine) { e.ops = ops }
}

// WithAnchorer enables fail-open commitment anchoring.
func WithAnchorer(a Anchorer) Option {
	return func(e *Engine) { e.anchorer = a }
}

// WithExpiry overrides the proof validity window.
func WithExpiry(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.expiry = d
		}
	}
}

// NewEngine constructs the proof engine.
func NewEngine(records *store.Store, backend zkbackend.Prover, nullifiers nullifier.Registry, proofs Store, opts ...Option) *Engine {
	e := &Engine{
		records:    records,
		backend:    backend,
		nullifiers: nullifiers,
		proofs:     proofs,
		expiry:     DefaultExpiry,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DisclosureParams describes a selective-disclosure request.
type DisclosureParams struct {
	CredentialID id.CredentialID
	Attributes   []string
	Purpose      string
	VerifierDID  string
	Challenge    string
}

// GenerateSelectiveDisclosure builds a proof revealing only the requested
// attributes. Every requested attribute must exist in the credential's
// claim set; the check runs before any proof material is built so a bad
// request leaks nothing and consumes nothing.
func (e *Engine) GenerateSelectiveDisclosure(ctx context.Context, identity models.WalletIdentity, params DisclosureParams) (ZKProof, error) {
	ctx, span := tracer.Start(ctx, "proof.GenerateSelectiveDisclosure")
	defer span.End()
	start := time.Now()

	if len(params.Attributes) == 0 {
		e.metrics.IncrementGenerated(string(TypeSelectiveDisclosure), "invalid")
		return ZKProof{}, dErrors.New(dErrors.CodeValidation, "no attributes requested")
	}

	cred, err := e.usableCredential(ctx, params.CredentialID, identity)
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeSelectiveDisclosure), "error")
		return ZKProof{}, err
	}
	for _, attr := range params.Attributes {
		if _, ok := cred.Claims[attr]; !ok {
			e.metrics.IncrementGenerated(string(TypeSelectiveDisclosure), "attribute_not_found")
			return ZKProof{}, dErrors.Newf(dErrors.CodeAttributeNotFound, "attribute %q not present in credential", attr)
		}
	}

	revealed := make(map[string]any, len(params.Attributes))
	for _, attr := range params.Attributes {
		revealed[attr] = cred.Claims[attr]
	}
	hidden := hiddenAttributes(cred.Claims, revealed)

	signals := make([]string, 0, len(params.Attributes))
	for _, attr := range sorted(params.Attributes) {
		signals = append(signals, fmt.Sprintf("%s:%s", attr, canonicalValue(revealed[attr])))
	}

	p, err := e.assemble(ctx, cred, proofSpec{
		proofType: TypeSelectiveDisclosure,
		requested: params.Attributes,
		revealed:  revealed,
		hidden:    hidden,
		purpose:   params.Purpose,
		verifier:  params.VerifierDID,
		challenge: params.Challenge,
		newMaterial: func(ctx context.Context, commitment string) (zkbackend.Proof, error) {
			return e.backend.ProveCommitment(ctx, commitment, signals)
		},
	})
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeSelectiveDisclosure), "error")
		return ZKProof{}, err
	}
	span.SetAttributes(attribute.String("proof.id", p.ID.String()))
	e.metrics.IncrementGenerated(string(TypeSelectiveDisclosure), "success")
	e.metrics.ObserveGenerateLatency(string(TypeSelectiveDisclosure), time.Since(start))
	return p, nil
}

// MembershipParams describes a group-membership proof request.
type MembershipParams struct {
	CredentialID id.CredentialID
	GroupID      string
	Purpose      string
	VerifierDID  string
	Challenge    string
}

// GenerateMembership proves membership of a group. Only the boolean flag
// and the group ID are revealed; every identity attribute stays hidden.
func (e *Engine) GenerateMembership(ctx context.Context, identity models.WalletIdentity, params MembershipParams) (ZKProof, error) {
	ctx, span := tracer.Start(ctx, "proof.GenerateMembership")
	defer span.End()
	start := time.Now()

	if params.GroupID == "" {
		e.metrics.IncrementGenerated(string(TypeMembership), "invalid")
		return ZKProof{}, dErrors.New(dErrors.CodeValidation, "group id is required")
	}

	cred, err := e.usableCredential(ctx, params.CredentialID, identity)
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeMembership), "error")
		return ZKProof{}, err
	}
	if cred.CredentialKind() != credmodels.TypeMembership {
		e.metrics.IncrementGenerated(string(TypeMembership), "invalid")
		return ZKProof{}, dErrors.New(dErrors.CodeValidation, "not a membership credential")
	}
	if group, _ := cred.Claims["groupId"].(string); group != params.GroupID {
		e.metrics.IncrementGenerated(string(TypeMembership), "invalid")
		return ZKProof{}, dErrors.Newf(dErrors.CodeValidation, "credential does not attest membership of group %q", params.GroupID)
	}

	revealed := map[string]any{"membership": true, "groupId": params.GroupID}
	signals := []string{
		fmt.Sprintf("groupId:%s", params.GroupID),
		"membership:true",
	}

	p, err := e.assemble(ctx, cred, proofSpec{
		proofType: TypeMembership,
		requested: []string{"membership"},
		revealed:  revealed,
		hidden:    hiddenAttributes(cred.Claims, nil),
		purpose:   params.Purpose,
		verifier:  params.VerifierDID,
		challenge: params.Challenge,
		newMaterial: func(ctx context.Context, commitment string) (zkbackend.Proof, error) {
			return e.backend.ProveCommitment(ctx, commitment, signals)
		},
	})
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeMembership), "error")
		return ZKProof{}, err
	}
	e.metrics.IncrementGenerated(string(TypeMembership), "success")
	e.metrics.ObserveGenerateLatency(string(TypeMembership), time.Since(start))
	return p, nil
}

// RangeParams describes a range proof request over one numeric attribute.
type RangeParams struct {
	CredentialID id.CredentialID
	Attribute    string
	Min          int64
	Max          int64
	Purpose      string
	VerifierDID  string
	Challenge    string
}

// GenerateRange proves that a numeric attribute lies in [min, max] without
// revealing the value. An out-of-range value is an explicit error before
// any proof material exists; the engine never emits a false containment.
func (e *Engine) GenerateRange(ctx context.Context, identity models.WalletIdentity, params RangeParams) (ZKProof, error) {
	ctx, span := tracer.Start(ctx, "proof.GenerateRange")
	defer span.End()
	start := time.Now()

	if params.Min > params.Max {
		e.metrics.IncrementGenerated(string(TypeRange), "invalid")
		return ZKProof{}, dErrors.Newf(dErrors.CodeValidation, "invalid range [%d, %d]", params.Min, params.Max)
	}
	ranger, ok := e.backend.(zkbackend.RangeProver)
	if !ok {
		return ZKProof{}, dErrors.New(dErrors.CodeInternal, "proof backend does not support range proofs")
	}

	cred, err := e.usableCredential(ctx, params.CredentialID, identity)
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeRange), "error")
		return ZKProof{}, err
	}
	raw, ok := cred.Claims[params.Attribute]
	if !ok {
		e.metrics.IncrementGenerated(string(TypeRange), "attribute_not_found")
		return ZKProof{}, dErrors.Newf(dErrors.CodeAttributeNotFound, "attribute %q not present in credential", params.Attribute)
	}
	value, err := attributeInt64(raw)
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeRange), "invalid")
		return ZKProof{}, dErrors.Newf(dErrors.CodeValidation, "attribute %q is not an integer", params.Attribute)
	}
	if value < params.Min || value > params.Max {
		e.metrics.IncrementGenerated(string(TypeRange), "out_of_range")
		return ZKProof{}, dErrors.Newf(dErrors.CodeValidation, "attribute %q is outside [%d, %d]", params.Attribute, params.Min, params.Max)
	}

	revealed := map[string]any{"inRange": true, "min": params.Min, "max": params.Max}

	p, err := e.assemble(ctx, cred, proofSpec{
		proofType: TypeRange,
		requested: []string{params.Attribute},
		revealed:  revealed,
		hidden:    hiddenAttributes(cred.Claims, nil),
		purpose:   params.Purpose,
		verifier:  params.VerifierDID,
		challenge: params.Challenge,
		newMaterial: func(ctx context.Context, commitment string) (zkbackend.Proof, error) {
			return ranger.ProveRange(ctx, commitment, value, params.Min, params.Max)
		},
	})
	if err != nil {
		e.metrics.IncrementGenerated(string(TypeRange), "error")
		return ZKProof{}, err
	}
	e.metrics.IncrementGenerated(string(TypeRange), "success")
	e.metrics.ObserveGenerateLatency(string(TypeRange), time.Since(start))
	return p, nil
}

// proofSpec carries the per-type pieces of proof assembly.
type proofSpec struct {
	proofType   ProofType
	requested   []string
	revealed    map[string]any
	hidden      []string
	purpose     string
	verifier    string
	challenge   string
	newMaterial func(ctx context.Context, commitment string) (zkbackend.Proof, error)
}

// assemble computes the nullifier and commitment, produces the proof
// material, stores the proof, and anchors the commitment fail-open.
func (e *Engine) assemble(ctx context.Context, cred credmodels.VerifiableCredential, spec proofSpec) (ZKProof, error) {
	now := requestcontext.Now(ctx)

	challenge := spec.challenge
	if challenge == "" {
		var err error
		if challenge, err = newChallenge(); err != nil {
			return ZKProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge")
		}
	}

	claimsJSON, err := crypto.CanonicalJSON(cred.Claims)
	if err != nil {
		return ZKProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize claims")
	}
	nullifierHash := hashChain(cred.ID.String(), spec.verifier, challenge)
	commitmentHash := hashChain(cred.ID.String(), cred.SubjectDID.String(), string(claimsJSON), nullifierHash)

	material, err := spec.newMaterial(ctx, commitmentHash)
	if err != nil {
		return ZKProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "build proof material")
	}

	kind := cred.CredentialKind()
	var schemaID string
	if schema, err := credmodels.SchemaFor(kind); err == nil {
		schemaID = schema.SchemaID
	}

	p := ZKProof{
		ID:          id.NewProofID(),
		ProofType:   spec.proofType,
		CircuitName: e.backend.CircuitName(),
		ProofData: ProofData{
			Proof:           material.Proof,
			PublicSignals:   material.PublicSignals,
			VerificationKey: material.VerificationKey,
		},
		NullifierHash:       nullifierHash,
		CommitmentHash:      commitmentHash,
		RequestedAttributes: spec.requested,
		RevealedAttributes:  spec.revealed,
		HiddenAttributes:    spec.hidden,
		ProofPurpose:        spec.purpose,
		VerifierDID:         spec.verifier,
		Challenge:           challenge,
		ExpirationTime:      now.Add(e.expiry),
		Metadata: Metadata{
			CredentialType: string(kind),
			IssuerDID:      cred.IssuerDID.String(),
			SubjectDID:     cred.SubjectDID.String(),
			SchemaID:       schemaID,
			ProofGenerated: now,
		},
	}
	if err := e.proofs.SaveProof(ctx, p); err != nil {
		return ZKProof{}, err
	}

	if e.anchorer != nil {
		receipt, err := e.anchorer.AnchorProofCommitment(ctx, p.ID, commitmentHash)
		if err != nil {
			e.logger.WarnContext(ctx, "proof commitment anchoring failed", "proof_id", p.ID, "error", err)
		} else if !receipt.Anchored() {
			e.logger.WarnContext(ctx, "proof commitment not anchored", "proof_id", p.ID, "reason", receipt.Reason)
		}
	}

	event := audit.New(audit.EventProofGenerated, p.ID.String())
	event.Timestamp = now
	event.ContentHash = commitmentHash
	event.RequestID = requestcontext.RequestID(ctx)
	event.VerifierDID = spec.verifier
	e.emitOps(ctx, event)

	return p, nil
}

// Verify runs the ordered checks: challenge, expiry, structure, then the
// atomic nullifier consume. Consumption goes last so a proof that fails a
// cheaper check never burns its nullifier; the registry folds the unused
// check and the consume into one compare-and-set, which is what makes
// concurrent verification exactly-once.
func (e *Engine) Verify(ctx context.Context, p ZKProof, expectedChallenge, verifierDID string) (VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "proof.Verify")
	defer span.End()
	now := requestcontext.Now(ctx)

	if verifierDID == "" {
		e.metrics.IncrementVerified("invalid")
		return e.reject(ctx, p, verifierDID, now, "missing_verifier",
			dErrors.New(dErrors.CodeValidation, "verifier DID is required"))
	}

	if expectedChallenge != "" && p.Challenge != expectedChallenge {
		e.metrics.IncrementVerified("invalid")
		return e.reject(ctx, p, verifierDID, now, "challenge_mismatch",
			dErrors.New(dErrors.CodeValidation, "challenge mismatch"))
	}
	if p.Expired(now) {
		e.metrics.IncrementVerified("expired")
		return e.reject(ctx, p, verifierDID, now, "expired",
			dErrors.New(dErrors.CodeExpired, "proof has expired"))
	}
	if err := e.verifyStructure(ctx, p); err != nil {
		e.metrics.IncrementVerified("invalid")
		return e.reject(ctx, p, verifierDID, now, "invalid_structure",
			dErrors.Wrap(err, dErrors.CodeValidation, "proof structure invalid"))
	}

	won, err := e.nullifiers.Consume(ctx, p.NullifierHash, verifierDID, p.ExpirationTime)
	if err != nil {
		return VerificationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "nullifier registry")
	}
	if !won {
		e.metrics.IncrementVerified("replay")
		event := audit.New(audit.EventProofReplayBlocked, p.ID.String())
		event.Timestamp = now
		event.Decision = "rejected"
		event.Reason = "replay"
		event.VerifierDID = verifierDID
		event.RequestID = requestcontext.RequestID(ctx)
		e.emitOps(ctx, event)
		return VerificationResult{
			ProofID:    p.ID,
			Valid:      false,
			Reason:     "replay",
			VerifiedAt: now,
		}, dErrors.New(dErrors.CodeReplay, "proof nullifier already consumed")
	}

	e.metrics.IncrementVerified("valid")
	event := audit.New(audit.EventProofVerified, p.ID.String())
	event.Timestamp = now
	event.Decision = "verified"
	event.VerifierDID = verifierDID
	event.RequestID = requestcontext.RequestID(ctx)
	e.emitOps(ctx, event)

	return VerificationResult{
		ProofID:            p.ID,
		Valid:              true,
		RevealedAttributes: p.RevealedAttributes,
		VerifiedAt:         now,
	}, nil
}

// verifyStructure checks the engine-level bindings before handing the proof
// material to the circuit backend.
func (e *Engine) verifyStructure(ctx context.Context, p ZKProof) error {
	if p.NullifierHash == "" {
		return fmt.Errorf("missing nullifier hash")
	}
	if p.CommitmentHash == "" {
		return fmt.Errorf("missing commitment hash")
	}
	if len(p.ProofData.PublicSignals) == 0 || p.ProofData.PublicSignals[0] != p.CommitmentHash {
		return fmt.Errorf("proof material is not bound to the commitment")
	}
	return e.backend.VerifyStructure(ctx, zkbackend.Proof{
		Proof:           p.ProofData.Proof,
		PublicSignals:   p.ProofData.PublicSignals,
		VerificationKey: p.ProofData.VerificationKey,
	})
}

func (e *Engine) reject(ctx context.Context, p ZKProof, verifierDID string, now time.Time, reason string, err error) (VerificationResult, error) {
	event := audit.New(audit.EventProofRejected, p.ID.String())
	event.Timestamp = now
	event.Decision = "rejected"
	event.Reason = reason
	event.VerifierDID = verifierDID
	event.RequestID = requestcontext.RequestID(ctx)
	e.emitOps(ctx, event)
	return VerificationResult{
		ProofID:    p.ID,
		Valid:      false,
		Reason:     reason,
		VerifiedAt: now,
	}, err
}

// VerifyRequest is one item of a batch verification call.
type VerifyRequest struct {
	Proof             ZKProof
	ExpectedChallenge string
	VerifierDID       string
}

// BatchVerify verifies requests in parallel. Individual verification
// failures land in their slot of the result slice; an infrastructure
// failure anywhere marks every request failed rather than leaving any
// slot unresolved.
func (e *Engine) BatchVerify(ctx context.Context, requests []VerifyRequest) []VerificationResult {
	results := make([]VerificationResult, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, req := range requests {
		g.Go(func() error {
			result, err := e.Verify(gctx, req.Proof, req.ExpectedChallenge, req.VerifierDID)
			if err != nil && result.ProofID.IsNil() {
				// Registry or input failure with no verdict to report.
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		now := requestcontext.Now(ctx)
		e.logger.ErrorContext(ctx, "batch verification failed", "error", err)
		for i, req := range requests {
			results[i] = VerificationResult{
				ProofID:    req.Proof.ID,
				Valid:      false,
				Reason:     "batch_failed",
				VerifiedAt: now,
			}
		}
	}
	return results
}

// GetProof looks up a stored proof by ID.
func (e *Engine) GetProof(ctx context.Context, proofID id.ProofID) (ZKProof, error) {
	return e.proofs.GetProof(ctx, proofID)
}

// StartCleanup prunes expired proofs and nullifiers on the given interval
// until the context is cancelled.
func (e *Engine) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.pruneOnce(ctx)
			}
		}
	}()
}

func (e *Engine) pruneOnce(ctx context.Context) {
	now := requestcontext.Now(ctx)
	proofs, err := e.proofs.DeleteExpired(ctx, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "prune expired proofs failed", "error", err)
	}
	nullifiers, err := e.nullifiers.PruneExpired(ctx, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "prune expired nullifiers failed", "error", err)
	}
	if proofs+nullifiers > 0 {
		e.metrics.IncrementPruned(proofs + nullifiers)
		e.logger.InfoContext(ctx, "pruned expired proof material", "proofs", proofs, "nullifiers", nullifiers)
	}
}

// usableCredential fetches and gates a credential for proof generation.
// A revoked or expired credential cannot back a fresh proof.
func (e *Engine) usableCredential(ctx context.Context, credentialID id.CredentialID, identity models.WalletIdentity) (credmodels.VerifiableCredential, error) {
	cred, status, err := e.records.GetCredentialWithStatus(ctx, credentialID, identity)
	if err != nil {
		return credmodels.VerifiableCredential{}, err
	}
	if status == credmodels.StatusRevoked {
		return credmodels.VerifiableCredential{}, dErrors.New(dErrors.CodeConflict, "credential is revoked")
	}
	if cred.Expired(requestcontext.Now(ctx)) {
		return credmodels.VerifiableCredential{}, dErrors.New(dErrors.CodeExpired, "credential has expired")
	}
	return cred, nil
}

func (e *Engine) emitOps(ctx context.Context, event audit.Event) {
	if e.ops != nil {
		e.ops.Emit(ctx, event)
	}
}

// hashChain digests parts with length framing so distinct part lists never
// collide by concatenation.
func hashChain(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func newChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func canonicalValue(v any) string {
	b, err := crypto.CanonicalJSON(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// hiddenAttributes lists the claim names not present in revealed, sorted.
func hiddenAttributes(claims map[string]any, revealed map[string]any) []string {
	hidden := make([]string, 0, len(claims))
	for name := range claims {
		if _, ok := revealed[name]; !ok {
			hidden = append(hidden, name)
		}
	}
	sort.Strings(hidden)
	return hidden
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// attributeInt64 extracts an integral claim value. Claims decoded from
// JSON arrive as float64, so integral floats are accepted.
func attributeInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}
