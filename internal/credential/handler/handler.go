// Package handler exposes credential issuance and lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anchorid/internal/anchor"
	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/credential/service"
	"anchorid/internal/identity/models"
	"anchorid/internal/platform/middleware"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/httputil"
	"anchorid/pkg/requestcontext"
)

// Handler handles credential endpoints. Every route requires auth: even a
// credential's existence is private to its subject wallet.
type Handler struct {
	svc          *service.Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

// New creates a new credential Handler.
func New(svc *service.Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{svc: svc, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the credential routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/credentials", h.handleIssue)
		r.Get("/credentials", h.handleList)
		r.Get("/credentials/{id}", h.handleGet)
		r.Post("/credentials/{id}/revoke", h.handleRevoke)
	})
}

func walletIdentity(ctx context.Context) (models.WalletIdentity, bool) {
	addr := requestcontext.WalletAddress(ctx)
	if addr == "" {
		return models.WalletIdentity{}, false
	}
	return models.WalletIdentity{
		Address:    addr,
		WalletType: requestcontext.WalletType(ctx),
	}, true
}

type receiptResponse struct {
	Status      string `json:"status"`
	TxHash      string `json:"txHash,omitempty"`
	BlockHeight int64  `json:"blockHeight,omitempty"`
	Network     string `json:"network"`
	Reason      string `json:"reason,omitempty"`
}

func toReceiptResponse(r anchor.Receipt) receiptResponse {
	return receiptResponse{
		Status:      string(r.Status),
		TxHash:      r.TxHash,
		BlockHeight: r.BlockHeight,
		Network:     r.Network,
		Reason:      r.Reason,
	}
}

type issueRequest struct {
	Type   string         `json:"type"`
	Claims map[string]any `json:"claims"`
	// TTLSeconds bounds validity; zero or absent means no expiration.
	TTLSeconds int64 `json:"ttlSeconds,omitempty"`
}

type issueResponse struct {
	Credential credmodels.VerifiableCredential `json:"credential"`
	Receipt    receiptResponse                 `json:"receipt"`
	Warnings   []string                        `json:"warnings,omitempty"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if req.TTLSeconds < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "ttlSeconds must not be negative"))
		return
	}

	result, err := h.svc.Issue(ctx, identity, service.IssueParams{
		Type:   credmodels.CredentialType(req.Type),
		Claims: req.Claims,
		TTL:    time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{
		Credential: result.Credential,
		Receipt:    toReceiptResponse(result.Receipt),
		Warnings:   result.Warnings,
	})
}

type credentialResponse struct {
	Credential credmodels.VerifiableCredential `json:"credential"`
	Status     string                          `json:"status"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, status, err := h.svc.Get(ctx, identity, credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, credentialResponse{Credential: cred, Status: string(status)})
}

type listResponse struct {
	Credentials []credmodels.VerifiableCredential `json:"credentials"`
	// Warnings reports credentials skipped because they would not decrypt;
	// one bad record never hides the rest.
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}

	creds, warnings, err := h.svc.List(ctx, identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if creds == nil {
		creds = []credmodels.VerifiableCredential{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Credentials: creds, Warnings: warnings})
}

type revokeResponse struct {
	Receipt  receiptResponse `json:"receipt"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.svc.Revoke(ctx, identity, credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, revokeResponse{
		Receipt:  toReceiptResponse(result.Receipt),
		Warnings: result.Warnings,
	})
}
