// Package handler exposes the DID lifecycle over HTTP. It stays thin:
// request decoding, identity extraction, service call, response encoding.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anchorid/internal/anchor"
	"anchorid/internal/identity/models"
	"anchorid/internal/identity/service"
	"anchorid/internal/platform/middleware"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/httputil"
	"anchorid/pkg/requestcontext"
)

// History reads the anchor log for a DID; *anchor.Service satisfies it.
type History interface {
	History(ctx context.Context, subject string) ([]anchor.Record, error)
}

// Handler handles DID endpoints.
type Handler struct {
	svc          *service.Service
	history      History
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

// New creates a new identity Handler.
func New(svc *service.Service, history History, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{svc: svc, history: history, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the DID routes. Resolution is reachable without a token
// and answers with a redacted stub; everything else requires auth.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.jwtValidator))
		r.Get("/dids/{did}", h.handleResolve)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/dids", h.handleCreate)
		r.Get("/dids", h.handleOwn)
		r.Patch("/dids/{did}", h.handleUpdate)
		r.Delete("/dids/{did}", h.handleDeactivate)
		r.Get("/dids/{did}/history", h.handleHistory)
	})
}

// walletIdentity rebuilds the caller's identity from the verified token
// claims the auth middleware bound into the context.
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

type createRequest struct {
	// PublicKey is the hex compressed secp256k1 key published in the
	// document's verification method.
	PublicKey string `json:"publicKey"`
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

type createResponse struct {
	DID      string             `json:"did"`
	Document models.DIDDocument `json:"document"`
	Receipt  receiptResponse    `json:"receipt"`
	Warnings []string           `json:"warnings,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if req.PublicKey != "" {
		pubkey, err := hex.DecodeString(req.PublicKey)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "publicKey must be hex"))
			return
		}
		identity.PublicKey = pubkey
	}

	result, err := h.svc.Create(ctx, identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		DID:      result.DID.String(),
		Document: result.Document,
		Receipt:  toReceiptResponse(result.Receipt),
		Warnings: result.Warnings,
	})
}

type resolveResponse struct {
	Document       models.DIDDocument `json:"document"`
	Redacted       bool               `json:"redacted"`
	ChainConfirmed bool               `json:"chainConfirmed"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var identity *models.WalletIdentity
	if caller, ok := walletIdentity(ctx); ok {
		identity = &caller
	}

	result, err := h.svc.Resolve(ctx, chi.URLParam(r, "did"), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolveResponse{
		Document:       result.Document,
		Redacted:       result.Redacted,
		ChainConfirmed: result.ChainConfirmed,
	})
}

// handleOwn reports the caller's DID, if one exists.
func (h *Handler) handleOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	did, err := h.svc.DIDForWallet(ctx, identity.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"did": did.String()})
}

type updateRequest struct {
	AddServices      []models.ServiceEndpoint `json:"addServices,omitempty"`
	RemoveServiceIDs []string                 `json:"removeServiceIds,omitempty"`
}

type updateResponse struct {
	Document models.DIDDocument `json:"document"`
	Receipt  receiptResponse    `json:"receipt"`
	Warnings []string           `json:"warnings,omitempty"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.svc.Update(ctx, chi.URLParam(r, "did"), identity, service.UpdateParams{
		AddServices:      req.AddServices,
		RemoveServiceIDs: req.RemoveServiceIDs,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updateResponse{
		Document: result.Document,
		Receipt:  toReceiptResponse(result.Receipt),
		Warnings: result.Warnings,
	})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}

	result, err := h.svc.Deactivate(ctx, chi.URLParam(r, "did"), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updateResponse{
		Document: result.Document,
		Receipt:  toReceiptResponse(result.Receipt),
		Warnings: result.Warnings,
	})
}

type historyEntry struct {
	ContentHash string          `json:"contentHash"`
	Operation   string          `json:"operation"`
	Receipt     receiptResponse `json:"receipt"`
	CreatedAt   string          `json:"createdAt"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	didStr := chi.URLParam(r, "did")
	if _, err := id.ParseDID(didStr); err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.history.History(ctx, didStr)
	if err != nil {
		h.logger.ErrorContext(ctx, "anchor history lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "history lookup failed"))
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, historyEntry{
			ContentHash: record.ContentHash,
			Operation:   string(record.Operation),
			Receipt:     toReceiptResponse(record.Receipt),
			CreatedAt:   record.CreatedAt.Format(time.RFC3339),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"did": didStr, "anchors": entries})
}
