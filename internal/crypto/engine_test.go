package crypto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorid/pkg/platform/sentinel"
)

// Fast iterations keep the suite quick; the derivation path is identical.
func newTestEngine() *Engine {
	return New(WithIterations(1000))
}

type sampleDoc struct {
	ID      string         `json:"id"`
	Claims  map[string]any `json:"claims"`
	Version int            `json:"version"`
}

func sample() sampleDoc {
	return sampleDoc{
		ID:      "did:anchor:0123456789abcdef0123456789abcdef",
		Claims:  map[string]any{"firstName": "Jane", "verified": true},
		Version: 2,
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := newTestEngine()
	sig := []byte("wallet-signature-bytes")

	payload, err := e.Encrypt(sample(), sig)
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ContentHash)
	assert.Equal(t, AlgorithmTag, payload.Params.Algorithm)
	assert.Equal(t, KDFTag, payload.Params.KDF)

	plaintext, err := e.Decrypt(payload, sig)
	require.NoError(t, err)

	var got sampleDoc
	require.NoError(t, json.Unmarshal(plaintext, &got))
	assert.Equal(t, sample(), got)
}

func TestDecryptWrongKeyFailsClosed(t *testing.T) {
	e := newTestEngine()

	payload, err := e.Encrypt(sample(), []byte("signature-A"))
	require.NoError(t, err)

	plaintext, err := e.Decrypt(payload, []byte("signature-B"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrDecryptFailed))
	assert.Nil(t, plaintext, "a failed decrypt must never return plaintext")
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	e := newTestEngine()
	sig := []byte("signature")

	payload, err := e.Encrypt(sample(), sig)
	require.NoError(t, err)

	payload.Ciphertext[0] ^= 0xff
	_, err = e.Decrypt(payload, sig)
	assert.True(t, errors.Is(err, sentinel.ErrDecryptFailed))
}

func TestDecryptDetectsContentHashTampering(t *testing.T) {
	e := newTestEngine()
	sig := []byte("signature")

	payload, err := e.Encrypt(sample(), sig)
	require.NoError(t, err)

	// Swap in the hash of different content. AEAD opens fine, so this must
	// surface as an integrity violation rather than a decrypt failure.
	otherHash, err := ContentHash(map[string]any{"other": true})
	require.NoError(t, err)
	payload.ContentHash = otherHash

	_, err = e.Decrypt(payload, sig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrIntegrity))
	assert.False(t, errors.Is(err, sentinel.ErrDecryptFailed))
}

func TestEncryptFreshSaltAndNonce(t *testing.T) {
	e := newTestEngine()
	sig := []byte("signature")

	a, err := e.Encrypt(sample(), sig)
	require.NoError(t, err)
	b, err := e.Encrypt(sample(), sig)
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	// Same plaintext, same content hash.
	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	e := newTestEngine()
	sig := []byte("signature")
	salt := []byte("0123456789abcdef")

	assert.Equal(t, e.DeriveKey(sig, salt), e.DeriveKey(sig, salt))
	assert.NotEqual(t, e.DeriveKey(sig, salt), e.DeriveKey([]byte("other"), salt))
	assert.NotEqual(t, e.DeriveKey(sig, salt), e.DeriveKey(sig, []byte("fedcba9876543210")))
	assert.Len(t, e.DeriveKey(sig, salt), 32)
}

func TestContentHashDeterminism(t *testing.T) {
	a, err := ContentHash(sample())
	require.NoError(t, err)
	b, err := ContentHash(sample())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Any mutation changes the digest.
	mutated := sample()
	mutated.Claims["verified"] = false
	c, err := ContentHash(mutated)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestContentHashIgnoresKeyOrder(t *testing.T) {
	a, err := ContentHash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := ContentHash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerifyContentHash(t *testing.T) {
	h, err := ContentHash(sample())
	require.NoError(t, err)

	assert.True(t, VerifyContentHash(sample(), h))

	mutated := sample()
	mutated.Version = 3
	assert.False(t, VerifyContentHash(mutated, h))
	assert.False(t, VerifyContentHash(sample(), "deadbeef"))
}

func TestCanonicalJSONStableAcrossStructAndMap(t *testing.T) {
	doc := sample()
	fromStruct, err := CanonicalJSON(doc)
	require.NoError(t, err)

	// Round-trip through a generic map: canonical form must not change.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(fromStruct, &generic))
	fromMap, err := CanonicalJSON(generic)
	require.NoError(t, err)

	assert.Equal(t, string(fromStruct), string(fromMap))
}
