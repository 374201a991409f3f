// Package crypto is the leaf encryption engine: wallet-signature key
// derivation, authenticated encryption of stored records, and content
// hashing for integrity checks and ledger anchoring.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"anchorid/pkg/platform/sentinel"
)

const (
	// AlgorithmTag identifies the AEAD construction in persisted params.
	AlgorithmTag = "AES-256-GCM"
	// KDFTag identifies the key derivation in persisted params.
	KDFTag = "PBKDF2-SHA256"

	// DefaultIterations is the PBKDF2 iteration count. The signature input
	// already has high entropy, but the derivation stays deliberately
	// expensive so a leaked record plus a low-entropy signature scheme is
	// still costly to brute-force.
	DefaultIterations = 100_000

	keyLen   = 32
	saltLen  = 16
	nonceLen = 12
)

// Params records how a payload was encrypted so future algorithm changes
// can decrypt old records.
type Params struct {
	Algorithm  string `json:"algorithm"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
}

// EncryptedPayload is the encrypt output persisted by the record store.
// Invariant: ContentHash == hex(SHA-256(canonical plaintext)); the store
// re-verifies this after every successful decrypt.
type EncryptedPayload struct {
	ContentHash string `json:"content_hash"`
	Ciphertext  []byte `json:"encrypted_content"`
	Nonce       []byte `json:"iv"`
	Salt        []byte `json:"salt"`
	Params      Params `json:"encryption_params"`
}

// Engine derives keys and performs AEAD operations. The zero value is not
// usable; construct with New.
type Engine struct {
	iterations int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIterations overrides the PBKDF2 iteration count. Tests use a small
// value to stay fast; production keeps the default.
func WithIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.iterations = n
		}
	}
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{iterations: DefaultIterations}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeriveKey stretches a wallet signature and salt into a 256-bit AEAD key.
// Deterministic: identical signature+salt always yields the same key.
func (e *Engine) DeriveKey(signature, salt []byte) []byte {
	return pbkdf2.Key(signature, salt, e.iterations, keyLen, sha256.New)
}

// Encrypt canonicalizes v, derives a key from the signature under a fresh
// salt, and seals the plaintext under AES-256-GCM with a fresh nonce.
func (e *Engine) Encrypt(v any, signature []byte) (EncryptedPayload, error) {
	if len(signature) == 0 {
		return EncryptedPayload{}, fmt.Errorf("encrypt: empty signature")
	}
	plaintext, err := CanonicalJSON(v)
	if err != nil {
		return EncryptedPayload{}, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedPayload{}, fmt.Errorf("encrypt: read salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedPayload{}, fmt.Errorf("encrypt: read nonce: %w", err)
	}

	aead, err := newAEAD(e.DeriveKey(signature, salt))
	if err != nil {
		return EncryptedPayload{}, err
	}

	sum := sha256.Sum256(plaintext)
	return EncryptedPayload{
		ContentHash: hex.EncodeToString(sum[:]),
		Ciphertext:  aead.Seal(nil, nonce, plaintext, nil),
		Nonce:       nonce,
		Salt:        salt,
		Params: Params{
			Algorithm:  AlgorithmTag,
			KDF:        KDFTag,
			Iterations: e.iterations,
		},
	}, nil
}

// Decrypt re-derives the key from the supplied signature and the payload's
// stored salt, then opens the ciphertext. Fails closed: a wrong key or a
// tampered ciphertext yields sentinel.ErrDecryptFailed, never garbage
// plaintext. A successful open is followed by a content-hash re-check;
// mismatch is sentinel.ErrIntegrity, a distinct failure from decryption.
func (e *Engine) Decrypt(payload EncryptedPayload, signature []byte) ([]byte, error) {
	iterations := payload.Params.Iterations
	if iterations <= 0 {
		iterations = e.iterations
	}
	key := pbkdf2.Key(signature, payload.Salt, iterations, keyLen, sha256.New)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(payload.Nonce) != nonceLen {
		return nil, fmt.Errorf("decrypt: bad nonce length: %w", sentinel.ErrDecryptFailed)
	}
	plaintext, err := aead.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", sentinel.ErrDecryptFailed)
	}

	sum := sha256.Sum256(plaintext)
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(payload.ContentHash)) != 1 {
		return nil, fmt.Errorf("decrypt: content hash mismatch: %w", sentinel.ErrIntegrity)
	}
	return plaintext, nil
}

// ContentHash canonicalizes v and returns its SHA-256 digest in hex.
func ContentHash(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyContentHash recomputes the hash of v and compares it to expected.
// Used to detect divergence between stored content and its ledger anchor.
func VerifyContentHash(v any, expected string) bool {
	actual, err := ContentHash(v)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
