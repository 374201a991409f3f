package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	jwttoken "anchorid/internal/jwt_token"
	id "anchorid/pkg/domain"
	"anchorid/pkg/requestcontext"
)

// JWTValidator validates API access tokens. Satisfied by *jwttoken.JWTService.
type JWTValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAuth enforces a Bearer token and binds the wallet identity into the
// request context. The token authenticates the caller only; record
// decryption still requires a wallet signature supplied per request.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(r.Context(), "token validation failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err.Error(),
				)
				unauthorized(w)
				return
			}
			addr, err := id.ParseWalletAddress(claims.WalletAddress)
			if err != nil {
				unauthorized(w)
				return
			}
			ctx := requestcontext.WithWalletAddress(r.Context(), addr)
			if wt, err := id.ParseWalletType(claims.WalletType); err == nil {
				ctx = requestcontext.WithWalletType(ctx, wt)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth binds the wallet identity into the context when a valid
// Bearer token is present and passes the request through untouched when it
// is not. Routes that serve both public and owner views use this; the
// handler decides based on what the context carries.
func OptionalAuth(validator JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if addr, err := id.ParseWalletAddress(claims.WalletAddress); err == nil {
				ctx = requestcontext.WithWalletAddress(ctx, addr)
			}
			if wt, err := id.ParseWalletType(claims.WalletType); err == nil {
				ctx = requestcontext.WithWalletType(ctx, wt)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
