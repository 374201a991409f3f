package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "anchorid/pkg/domain-errors"
)

func TestParseCredentialID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCredentialID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseCredentialID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCredentialID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseCredentialID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, CredentialID(valid), id)
	})
}

func TestParseDID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"missing method", "did::abc", true},
		{"missing prefix", "anchor:abc123", true},
		{"uppercase method", "did:ANCHOR:0123456789abcdef0123456789abcdef", true},
		{"anchor id too short", "did:anchor:abc123", true},
		{"anchor id uppercase hex", "did:anchor:0123456789ABCDEF0123456789ABCDEF", true},
		{"sql injection", "did:anchor:'; DROP TABLE records;--", true},
		{"whitespace", "did:anchor: 0123456789abcdef0123456789abcdef", true},
		{"valid anchor did", "did:anchor:0123456789abcdef0123456789abcdef", false},
		{"foreign method passes syntax check", "did:web:example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			did, err := ParseDID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, did.String())
		})
	}
}

func TestDIDForWallet_Deterministic(t *testing.T) {
	addr := WalletAddress("cosmos1exampleaddr0000000000000000000000000")
	a := DIDForWallet(addr)
	b := DIDForWallet(addr)
	assert.Equal(t, a, b)
	assert.Equal(t, Method, a.MethodName())

	// The derived DID must itself parse.
	_, err := ParseDID(a.String())
	require.NoError(t, err)

	// Different wallets get different DIDs.
	other := DIDForWallet(WalletAddress("cosmos1otheraddr0000000000000000000000000"))
	assert.NotEqual(t, a, other)
}

func TestParseWalletAddress(t *testing.T) {
	t.Run("accepts bech32 shape", func(t *testing.T) {
		addr, err := ParseWalletAddress("cosmos1exampleaddr0000000000000000000000000")
		require.NoError(t, err)
		assert.Equal(t, "cosmos1exampleaddr0000000000000000000000000", addr.String())
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseWalletAddress("")
		require.Error(t, err)
	})

	t.Run("rejects missing separator", func(t *testing.T) {
		_, err := ParseWalletAddress("cosmosexampleaddr")
		require.Error(t, err)
	})

	t.Run("rejects uppercase", func(t *testing.T) {
		_, err := ParseWalletAddress("Cosmos1exampleaddr0000000000000000000000000")
		require.Error(t, err)
	})

	t.Run("rejects overlong data part", func(t *testing.T) {
		_, err := ParseWalletAddress("cosmos1" + strings.Repeat("q", 100))
		require.Error(t, err)
	})
}

func TestParseWalletType(t *testing.T) {
	for _, valid := range []string{"keplr", "Leap", " cosmostation "} {
		_, err := ParseWalletType(valid)
		assert.NoError(t, err, valid)
	}
	for _, invalid := range []string{"", "metamask", "unknown"} {
		_, err := ParseWalletType(invalid)
		assert.Error(t, err, invalid)
	}
}

// TestTypeDistinction documents the compile-time invariant: typed IDs are
// not interchangeable. If CredentialID and ProofID become aliases, the
// commented assignments below would compile and the invariant is broken.
func TestTypeDistinction(t *testing.T) {
	credID := NewCredentialID()
	proofID := NewProofID()

	// var _ CredentialID = proofID // compile error
	// var _ ProofID = credID       // compile error

	assert.NotEqual(t, uuid.UUID(credID), uuid.UUID(proofID))
}
