package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "anchorid/pkg/domain"
)

const addr = id.WalletAddress("cosmos1exampleaddr0000000000000000000000000")

func TestEncryptionChallengeDeterministic(t *testing.T) {
	a := EncryptionChallenge(id.WalletKeplr, addr, "did-document")
	b := EncryptionChallenge(id.WalletKeplr, addr, "did-document")
	assert.Equal(t, a, b)

	// Different wallet type or purpose changes the challenge.
	assert.NotEqual(t, a, EncryptionChallenge(id.WalletLeap, addr, "did-document"))
	assert.NotEqual(t, a, EncryptionChallenge(id.WalletKeplr, addr, "credential"))
}

func TestStaticSignerStable(t *testing.T) {
	signer := StaticSigner{Secret: []byte("test-secret")}
	msg := EncryptionChallenge(id.WalletKeplr, addr, "did-document")

	sigA, err := signer.SignArbitrary(context.Background(), "anchorhub-1", addr, msg)
	require.NoError(t, err)
	sigB, err := signer.SignArbitrary(context.Background(), "anchorhub-1", addr, msg)
	require.NoError(t, err)
	assert.Equal(t, sigA, sigB)
	assert.Len(t, sigA, 32)

	// Different secret simulates a different wallet.
	other := StaticSigner{Secret: []byte("other-secret")}
	sigC, err := other.SignArbitrary(context.Background(), "anchorhub-1", addr, msg)
	require.NoError(t, err)
	assert.NotEqual(t, sigA, sigC)
}

func TestStaticSignerEmptySecret(t *testing.T) {
	_, err := StaticSigner{}.SignArbitrary(context.Background(), "anchorhub-1", addr, []byte("msg"))
	assert.Error(t, err)
}
