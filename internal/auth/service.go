// Package auth implements wallet login: the server hands out a one-time
// nonce, the wallet signs the login challenge, and a valid signature is
// exchanged for an API access token. The token authenticates requests
// only; record decryption always needs a fresh wallet signature.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	jwttoken "anchorid/internal/jwt_token"
	"anchorid/internal/wallet"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/sentinel"
)

// DefaultNonceTTL bounds how long a login challenge stays redeemable.
const DefaultNonceTTL = 5 * time.Minute

// DefaultTokenTTL is the access token lifetime.
const DefaultTokenTTL = time.Hour

// NonceStore keeps one pending login nonce per wallet. Consume removes the
// nonce so a challenge is redeemable exactly once.
type NonceStore interface {
	SaveNonce(ctx context.Context, address id.WalletAddress, nonce string, ttl time.Duration) error
	ConsumeNonce(ctx context.Context, address id.WalletAddress) (string, error)
}

// Service issues login challenges and exchanges signatures for tokens.
type Service struct {
	nonces   NonceStore
	verifier wallet.Verifier
	tokens   *jwttoken.JWTService
	chainID  string
	nonceTTL time.Duration
	tokenTTL time.Duration
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNonceTTL overrides the challenge redemption window.
func WithNonceTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.nonceTTL = d
		}
	}
}

// WithTokenTTL overrides the access token lifetime.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// NewService constructs the wallet login service.
func NewService(nonces NonceStore, verifier wallet.Verifier, tokens *jwttoken.JWTService, chainID string, opts ...Option) *Service {
	s := &Service{
		nonces:   nonces,
		verifier: verifier,
		tokens:   tokens,
		chainID:  chainID,
		nonceTTL: DefaultNonceTTL,
		tokenTTL: DefaultTokenTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Challenge describes a pending login: the wallet signs Message and posts
// the signature back before the nonce expires.
type Challenge struct {
	Nonce     string
	Message   []byte
	ExpiresIn time.Duration
}

// NewChallenge mints and stores a login nonce for the wallet. A repeated
// call replaces the pending nonce; only the latest challenge is redeemable.
func (s *Service) NewChallenge(ctx context.Context, address id.WalletAddress) (Challenge, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return Challenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	nonce := hex.EncodeToString(buf)
	if err := s.nonces.SaveNonce(ctx, address, nonce, s.nonceTTL); err != nil {
		return Challenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "store nonce")
	}
	return Challenge{
		Nonce:     nonce,
		Message:   wallet.LoginChallenge(address, nonce),
		ExpiresIn: s.nonceTTL,
	}, nil
}

// Session is a successful login.
type Session struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Login consumes the pending nonce and verifies the wallet's signature over
// the login challenge. The nonce is consumed before verification, so a bad
// signature burns the challenge and the wallet must request a new one.
func (s *Service) Login(ctx context.Context, address id.WalletAddress, walletType id.WalletType, signature []byte) (Session, error) {
	if len(signature) == 0 {
		return Session{}, dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	nonce, err := s.nonces.ConsumeNonce(ctx, address)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Session{}, dErrors.New(dErrors.CodeExpired, "no pending login challenge")
	}
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume nonce")
	}

	message := wallet.LoginChallenge(address, nonce)
	if err := s.verifier.VerifySignature(ctx, s.chainID, address, message, signature); err != nil {
		s.logger.WarnContext(ctx, "wallet login signature rejected", "wallet", address)
		return Session{}, dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
	}

	token, err := s.tokens.GenerateAccessToken(address, walletType, s.tokenTTL)
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "mint token")
	}
	return Session{AccessToken: token, ExpiresIn: s.tokenTTL}, nil
}
