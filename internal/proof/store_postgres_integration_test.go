//go:build integration

package proof_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorid/internal/proof"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/testutil/containers"
)

func storedProof(expiry time.Time) proof.ZKProof {
	return proof.ZKProof{
		ID:          id.NewProofID(),
		ProofType:   proof.TypeSelectiveDisclosure,
		CircuitName: "selective-disclosure-sha256-v1",
		ProofData: proof.ProofData{
			Proof:           "cHJvb2Y=",
			PublicSignals:   []string{"commitment", "attr:value"},
			VerificationKey: "selective-disclosure-sha256-v1",
		},
		NullifierHash:      "nullifier-hash",
		CommitmentHash:     "commitment",
		RevealedAttributes: map[string]any{"verified": true},
		HiddenAttributes:   []string{"firstName"},
		ProofPurpose:       "kyc",
		Challenge:          "challenge-1",
		ExpirationTime:     expiry,
		Metadata: proof.Metadata{
			CredentialType: "IdentityCredential",
			SubjectDID:     "did:anchor:00112233445566778899aabbccddeeff",
			ProofGenerated: time.Now().UTC(),
		},
	}
}

func TestPostgresStore_SaveAndGet(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := proof.NewPostgresStore(pg.DB)

	p := storedProof(time.Now().Add(time.Hour).UTC())
	require.NoError(t, store.SaveProof(ctx, p))

	got, err := store.GetProof(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.CommitmentHash, got.CommitmentHash)
	assert.Equal(t, p.ProofData.PublicSignals, got.ProofData.PublicSignals)
	assert.Equal(t, p.HiddenAttributes, got.HiddenAttributes)

	err = store.SaveProof(ctx, p)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict), "duplicate id must conflict, got %v", err)

	_, err = store.GetProof(ctx, id.NewProofID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := proof.NewPostgresStore(pg.DB)

	expired := storedProof(time.Now().Add(-time.Minute).UTC())
	live := storedProof(time.Now().Add(time.Hour).UTC())
	require.NoError(t, store.SaveProof(ctx, expired))
	require.NoError(t, store.SaveProof(ctx, live))

	deleted, err := store.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetProof(ctx, expired.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = store.GetProof(ctx, live.ID)
	require.NoError(t, err)
}
