package testutil

import (
	"net/http"

	id "anchorid/pkg/domain"
	"anchorid/pkg/requestcontext"
)

// WithWallet binds a wallet identity to the request context, simulating what
// the auth middleware does for an authenticated request. Invalid addresses
// are silently ignored so tests can exercise the unauthenticated path too.
func WithWallet(req *http.Request, address, walletType string) *http.Request {
	ctx := req.Context()
	if addr, err := id.ParseWalletAddress(address); err == nil {
		ctx = requestcontext.WithWalletAddress(ctx, addr)
	}
	if wt, err := id.ParseWalletType(walletType); err == nil {
		ctx = requestcontext.WithWalletType(ctx, wt)
	}
	return req.WithContext(ctx)
}

// WithRequestID stamps a request ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
