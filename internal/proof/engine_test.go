package proof

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/crypto"
	"anchorid/internal/identity/models"
	"anchorid/internal/identity/store"
	"anchorid/internal/proof/nullifier"
	"anchorid/internal/proof/zkbackend"
	"anchorid/internal/wallet"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/audit"
	"anchorid/pkg/requestcontext"
)

var (
	subjectWallet = id.WalletAddress("anchor1qqqsyqcyq5rqwzqfpg9scrgwpugpzysn")
	issuerWallet  = id.WalletAddress("anchor1xyerxdp4xcmnswfsxyerxdp4xcmnswfs")
	verifierDID   = "did:anchor:00112233445566778899aabbccddeeff"
)

type testEnv struct {
	engine   *Engine
	records  *store.Store
	proofs   *MemoryStore
	auditLog *audit.InMemoryStore
	subject  models.WalletIdentity
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	backend := store.NewMemoryBackend()
	cryptoEngine := crypto.New(crypto.WithIterations(1_000))
	signer := wallet.StaticSigner{Secret: []byte("test-secret")}
	records := store.New(backend, cryptoEngine, signer, "anchorhub-1")

	subject := models.WalletIdentity{Address: subjectWallet, WalletType: id.WalletKeplr, PublicKey: []byte{0x02}}
	subjectDID := id.DIDForWallet(subjectWallet)
	doc := models.DIDDocument{ID: subjectDID.String(), Authentication: []string{subjectDID.String() + "#key-1"}}
	_, err := records.StoreDIDDocument(context.Background(), subjectDID, subject, doc)
	require.NoError(t, err)

	proofs := NewMemoryStore()
	auditLog := audit.NewInMemoryStore()
	opts = append([]Option{
		WithOps(audit.NewOpsTracker(auditLog, slog.Default())),
	}, opts...)
	engine := NewEngine(records, zkbackend.NewHashCommitment(), nullifier.NewMemoryRegistry(), proofs, opts...)
	return &testEnv{engine: engine, records: records, proofs: proofs, auditLog: auditLog, subject: subject}
}

// issueCredential stores a signed-looking credential directly; issuance
// mechanics are covered by the credential service tests.
func (env *testEnv) issueCredential(t *testing.T, kind credmodels.CredentialType, claims map[string]any) credmodels.VerifiableCredential {
	t.Helper()
	now := time.Now().UTC()
	expires := now.Add(365 * 24 * time.Hour)
	cred := credmodels.VerifiableCredential{
		ID:             id.NewCredentialID(),
		Type:           []string{"VerifiableCredential", string(kind)},
		IssuerDID:      id.DIDForWallet(issuerWallet),
		SubjectDID:     id.DIDForWallet(subjectWallet),
		IssuanceDate:   now,
		ExpirationDate: &expires,
		Claims:         claims,
		Proof:          credmodels.Proof{Type: "EcdsaSecp256k1Signature2019", ProofValue: "sig"},
	}
	_, err := env.records.StoreCredential(context.Background(), cred, env.subject)
	require.NoError(t, err)
	return cred
}

func identityClaims() map[string]any {
	return map[string]any{
		"firstName": "Jane",
		"lastName":  "Doe",
		"verified":  true,
	}
}

func TestSelectiveDisclosure_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		Purpose:      "authentication",
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	assert.Equal(t, TypeSelectiveDisclosure, p.ProofType)
	assert.Equal(t, map[string]any{"verified": true}, p.RevealedAttributes)
	assert.ElementsMatch(t, []string{"firstName", "lastName"}, p.HiddenAttributes)
	assert.NotEmpty(t, p.NullifierHash)
	assert.NotEmpty(t, p.CommitmentHash)
	assert.NotEmpty(t, p.Challenge, "a challenge is minted when the verifier supplies none")
	assert.Equal(t, "anchorid.schema.identity.v1", p.Metadata.SchemaID)

	// Hidden claim values must not appear anywhere in the wire form.
	wire, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(wire), "Jane")
	assert.NotContains(t, string(wire), "Doe")

	result, err := env.engine.Verify(ctx, p, p.Challenge, verifierDID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, map[string]any{"verified": true}, result.RevealedAttributes)

	// The proof is retrievable by ID until it expires.
	stored, err := env.engine.GetProof(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.CommitmentHash, stored.CommitmentHash)
}

func TestSelectiveDisclosure_AttributeNotFound(t *testing.T) {
	env := newTestEnv(t)
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	_, err := env.engine.GenerateSelectiveDisclosure(context.Background(), env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified", "passportNumber"},
		VerifierDID:  verifierDID,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAttributeNotFound))
	assert.Contains(t, err.Error(), "passportNumber")
}

func TestSelectiveDisclosure_RevokedCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())
	require.NoError(t, env.records.UpdateCredentialStatus(ctx, cred.ID, credmodels.StatusRevoked))

	_, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestVerify_ReplayIsBlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	first, err := env.engine.Verify(ctx, p, p.Challenge, verifierDID)
	require.NoError(t, err)
	assert.True(t, first.Valid)

	second, err := env.engine.Verify(ctx, p, p.Challenge, verifierDID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeReplay))
	assert.False(t, second.Valid)
	assert.Equal(t, "replay", second.Reason)

	events, err := env.auditLog.ListBySubject(ctx, p.ID.String())
	require.NoError(t, err)
	var blocked bool
	for _, e := range events {
		if e.Action == string(audit.EventProofReplayBlocked) {
			blocked = true
		}
	}
	assert.True(t, blocked, "replay must leave a security audit trail")
}

func TestVerify_ReplayIsBlockedUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]VerificationResult, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = env.engine.Verify(ctx, p, p.Challenge, verifierDID)
		}()
	}
	wg.Wait()

	var valid int
	for _, r := range results {
		if r.Valid {
			valid++
		}
	}
	assert.Equal(t, 1, valid, "exactly one concurrent verification may win")
}

func TestVerify_SameProofDifferentVerifiers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	// A proof not pinned to one verifier consumes per verifier.
	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
	})
	require.NoError(t, err)

	first, err := env.engine.Verify(ctx, p, p.Challenge, "did:anchor:aaaa")
	require.NoError(t, err)
	second, err := env.engine.Verify(ctx, p, p.Challenge, "did:anchor:bbbb")
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.True(t, second.Valid)
}

func TestVerify_ExpirationBoundary(t *testing.T) {
	env := newTestEnv(t)
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	genCtx := requestcontext.WithTime(context.Background(), issued)
	p, err := env.engine.GenerateSelectiveDisclosure(genCtx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)
	assert.Equal(t, issued.Add(DefaultExpiry), p.ExpirationTime)

	// One second past the window the proof is dead regardless of content.
	lateCtx := requestcontext.WithTime(context.Background(), p.ExpirationTime.Add(time.Second))
	result, err := env.engine.Verify(lateCtx, p, p.Challenge, verifierDID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	assert.False(t, result.Valid)
	assert.Equal(t, "expired", result.Reason)

	// At the exact expiration instant it still verifies.
	edgeCtx := requestcontext.WithTime(context.Background(), p.ExpirationTime)
	result, err = env.engine.Verify(edgeCtx, p, p.Challenge, verifierDID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerify_ChallengeMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
		Challenge:    "nonce-from-verifier",
	})
	require.NoError(t, err)

	result, err := env.engine.Verify(ctx, p, "a-different-nonce", verifierDID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "challenge_mismatch", result.Reason)

	// The failed attempt must not have burned the nullifier.
	result, err = env.engine.Verify(ctx, p, "nonce-from-verifier", verifierDID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerify_TamperedProof(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	p, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	tampered := p
	tampered.ProofData.PublicSignals = append([]string(nil), p.ProofData.PublicSignals...)
	for i, s := range tampered.ProofData.PublicSignals {
		tampered.ProofData.PublicSignals[i] = strings.ReplaceAll(s, "true", "false")
	}

	result, err := env.engine.Verify(ctx, tampered, tampered.Challenge, verifierDID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "invalid_structure", result.Reason)
}

func TestGenerateMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeMembership, map[string]any{
		"groupId":     "dao-validators",
		"memberSince": "2024-01-01",
		"role":        "operator",
	})

	p, err := env.engine.GenerateMembership(ctx, env.subject, MembershipParams{
		CredentialID: cred.ID,
		GroupID:      "dao-validators",
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeMembership, p.ProofType)
	assert.Equal(t, map[string]any{"membership": true, "groupId": "dao-validators"}, p.RevealedAttributes)
	assert.ElementsMatch(t, []string{"groupId", "memberSince", "role"}, p.HiddenAttributes)

	wire, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(wire), "operator")

	result, err := env.engine.Verify(ctx, p, p.Challenge, verifierDID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestGenerateMembership_WrongGroup(t *testing.T) {
	env := newTestEnv(t)
	cred := env.issueCredential(t, credmodels.TypeMembership, map[string]any{
		"groupId":     "dao-validators",
		"memberSince": "2024-01-01",
	})

	_, err := env.engine.GenerateMembership(context.Background(), env.subject, MembershipParams{
		CredentialID: cred.ID,
		GroupID:      "dao-governance",
		VerifierDID:  verifierDID,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGenerateRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeAge, map[string]any{
		"age": 30,
	})

	p, err := env.engine.GenerateRange(ctx, env.subject, RangeParams{
		CredentialID: cred.ID,
		Attribute:    "age",
		Min:          18,
		Max:          65,
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeRange, p.ProofType)
	assert.Equal(t, map[string]any{"inRange": true, "min": int64(18), "max": int64(65)}, p.RevealedAttributes)
	assert.Contains(t, p.HiddenAttributes, "age")

	// Only the bounds and the containment fact are public, never the value.
	assert.Equal(t, []string{"min:18", "max:65", "inRange:true"}, p.ProofData.PublicSignals[1:])
	wire, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(wire), `"age":30`)

	result, err := env.engine.Verify(ctx, p, p.Challenge, verifierDID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestGenerateRange_RefusesOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	cred := env.issueCredential(t, credmodels.TypeAge, map[string]any{
		"age": 10,
	})

	_, err := env.engine.GenerateRange(context.Background(), env.subject, RangeParams{
		CredentialID: cred.ID,
		Attribute:    "age",
		Min:          18,
		Max:          65,
		VerifierDID:  verifierDID,
	})
	require.Error(t, err, "an out-of-range value must never yield a containment proof")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestBatchVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	fresh, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	spent, err := env.engine.GenerateSelectiveDisclosure(ctx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"firstName"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)
	_, err = env.engine.Verify(ctx, spent, spent.Challenge, verifierDID)
	require.NoError(t, err)

	results := env.engine.BatchVerify(ctx, []VerifyRequest{
		{Proof: fresh, ExpectedChallenge: fresh.Challenge, VerifierDID: verifierDID},
		{Proof: spent, ExpectedChallenge: spent.Challenge, VerifierDID: verifierDID},
		{Proof: fresh, ExpectedChallenge: "wrong", VerifierDID: verifierDID},
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.Equal(t, "replay", results[1].Reason)
	assert.False(t, results[2].Valid)
	assert.Equal(t, "challenge_mismatch", results[2].Reason)
}

func TestPruneExpiredProofs(t *testing.T) {
	env := newTestEnv(t, WithExpiry(time.Minute))
	cred := env.issueCredential(t, credmodels.TypeIdentity, identityClaims())

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	genCtx := requestcontext.WithTime(context.Background(), issued)
	p, err := env.engine.GenerateSelectiveDisclosure(genCtx, env.subject, DisclosureParams{
		CredentialID: cred.ID,
		Attributes:   []string{"verified"},
		VerifierDID:  verifierDID,
	})
	require.NoError(t, err)

	pruneCtx := requestcontext.WithTime(context.Background(), issued.Add(2*time.Minute))
	env.engine.pruneOnce(pruneCtx)

	_, err = env.engine.GetProof(context.Background(), p.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
