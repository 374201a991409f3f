// Package wallet defines the signer capability the core depends on instead
// of any specific wallet vendor. Signatures serve double duty: proving
// control of an address and supplying key material for record encryption.
package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	id "anchorid/pkg/domain"
)

// Signer is the single capability the core requires from a wallet: arbitrary
// message signing (ADR-36 style). Implementations live at the edge; the core
// never assumes a vendor.
type Signer interface {
	SignArbitrary(ctx context.Context, chainID string, address id.WalletAddress, message []byte) ([]byte, error)
}

// EncryptionChallenge builds the deterministic message a wallet signs to
// unlock its encrypted records. The message must be byte-identical on every
// call for the same inputs, otherwise previously stored records become
// undecryptable. The wallet type is part of the message because vendors
// frame arbitrary-sign payloads differently.
func EncryptionChallenge(walletType id.WalletType, address id.WalletAddress, purpose string) []byte {
	return fmt.Appendf(nil, "anchorid-encryption-v1|%s|%s|%s", walletType, address, purpose)
}

// LoginChallenge builds the one-time message signed during wallet login.
// The nonce comes from the server and is consumed on use.
func LoginChallenge(address id.WalletAddress, nonce string) []byte {
	return fmt.Appendf(nil, "anchorid-login-v1|%s|%s", address, nonce)
}

// Verifier checks a wallet signature over a message. Implementations for
// real wallet vendors verify an ADR-36 envelope against the public key;
// the static implementation re-derives the expected signature.
type Verifier interface {
	VerifySignature(ctx context.Context, chainID string, address id.WalletAddress, message, signature []byte) error
}

// StaticSigner is a deterministic test double: HMAC-SHA256 of the message
// under a per-wallet secret. It produces stable, high-entropy signatures the
// way a real wallet key would, without any curve dependencies in tests.
type StaticSigner struct {
	Secret []byte
}

func (s StaticSigner) SignArbitrary(_ context.Context, chainID string, address id.WalletAddress, message []byte) ([]byte, error) {
	if len(s.Secret) == 0 {
		return nil, fmt.Errorf("static signer: empty secret")
	}
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(chainID))
	mac.Write([]byte(address))
	mac.Write(message)
	return mac.Sum(nil), nil
}

// VerifySignature re-derives the expected signature and compares in
// constant time.
func (s StaticSigner) VerifySignature(ctx context.Context, chainID string, address id.WalletAddress, message, signature []byte) error {
	expected, err := s.SignArbitrary(ctx, chainID, address, message)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, signature) {
		return fmt.Errorf("signature mismatch for %s", address)
	}
	return nil
}
