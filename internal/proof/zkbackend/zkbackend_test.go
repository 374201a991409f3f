package zkbackend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCommitment_BindsSignals(t *testing.T) {
	ctx := context.Background()
	backend := NewHashCommitment()

	p, err := backend.ProveCommitment(ctx, "abc123", []string{"verified:true"})
	require.NoError(t, err)
	require.NoError(t, backend.VerifyStructure(ctx, p))

	tampered := p
	tampered.PublicSignals = []string{"abc123", "verified:false"}
	assert.Error(t, backend.VerifyStructure(ctx, tampered))
}

func TestHashCommitment_SignalFramingIsUnambiguous(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not produce the same binding.
	a := bindSignals([]string{"ab", "c"})
	b := bindSignals([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}

func TestHashCommitment_ProveRange(t *testing.T) {
	ctx := context.Background()
	backend := NewHashCommitment()

	p, err := backend.ProveRange(ctx, "abc123", 30, 18, 65)
	require.NoError(t, err)
	assert.Contains(t, p.PublicSignals, "inRange:true")
	require.NoError(t, backend.VerifyStructure(ctx, p))

	_, err = backend.ProveRange(ctx, "abc123", 10, 18, 65)
	assert.Error(t, err, "out-of-range value must be refused")
}

func TestGroth16Prover_RangeRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("snark setup is slow")
	}
	ctx := context.Background()
	backend, err := NewGroth16Prover()
	require.NoError(t, err)

	p, err := backend.ProveRange(ctx, "abc123", 30, 18, 65)
	require.NoError(t, err)
	require.NoError(t, backend.VerifyStructure(ctx, p))

	// A proof for one interval must not verify against another.
	forged := p
	forged.PublicSignals = []string{"abc123", "min:0", "max:120"}
	assert.Error(t, backend.VerifyStructure(ctx, forged))
}

func TestGroth16Prover_RefusesOutOfRange(t *testing.T) {
	if testing.Short() {
		t.Skip("snark setup is slow")
	}
	backend, err := NewGroth16Prover()
	require.NoError(t, err)

	_, err = backend.ProveRange(context.Background(), "abc123", 10, 18, 65)
	assert.Error(t, err)
}
