// Package handler exposes proof generation and verification over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"anchorid/internal/identity/models"
	"anchorid/internal/platform/middleware"
	"anchorid/internal/proof"
	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/httputil"
	"anchorid/pkg/requestcontext"
)

const maxBatchSize = 64

// Handler handles proof endpoints. Generation requires the subject wallet's
// token; verification is open because verifiers are third parties that hold
// only the proof object.
type Handler struct {
	engine       *proof.Engine
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

// New creates a new proof Handler.
func New(engine *proof.Engine, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{engine: engine, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the proof routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/proofs/selective-disclosure", h.handleSelectiveDisclosure)
		r.Post("/proofs/membership", h.handleMembership)
		r.Post("/proofs/range", h.handleRange)
	})
	r.Post("/proofs/verify", h.handleVerify)
	r.Post("/proofs/verify/batch", h.handleBatchVerify)
	r.Get("/proofs/{id}", h.handleGet)
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

type disclosureRequest struct {
	CredentialID string   `json:"credentialId"`
	Attributes   []string `json:"requestedAttributes"`
	Purpose      string   `json:"proofPurpose,omitempty"`
	VerifierDID  string   `json:"verifierDid,omitempty"`
	Challenge    string   `json:"challenge,omitempty"`
}

func (h *Handler) handleSelectiveDisclosure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	var req disclosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	credentialID, err := id.ParseCredentialID(req.CredentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.engine.GenerateSelectiveDisclosure(ctx, identity, proof.DisclosureParams{
		CredentialID: credentialID,
		Attributes:   req.Attributes,
		Purpose:      req.Purpose,
		VerifierDID:  req.VerifierDID,
		Challenge:    req.Challenge,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type membershipRequest struct {
	CredentialID string `json:"credentialId"`
	GroupID      string `json:"groupId"`
	Purpose      string `json:"proofPurpose,omitempty"`
	VerifierDID  string `json:"verifierDid,omitempty"`
	Challenge    string `json:"challenge,omitempty"`
}

func (h *Handler) handleMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	credentialID, err := id.ParseCredentialID(req.CredentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.engine.GenerateMembership(ctx, identity, proof.MembershipParams{
		CredentialID: credentialID,
		GroupID:      req.GroupID,
		Purpose:      req.Purpose,
		VerifierDID:  req.VerifierDID,
		Challenge:    req.Challenge,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type rangeRequest struct {
	CredentialID string `json:"credentialId"`
	Attribute    string `json:"attribute"`
	Min          int64  `json:"min"`
	Max          int64  `json:"max"`
	Purpose      string `json:"proofPurpose,omitempty"`
	VerifierDID  string `json:"verifierDid,omitempty"`
	Challenge    string `json:"challenge,omitempty"`
}

func (h *Handler) handleRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := walletIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing wallet identity"))
		return
	}
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	credentialID, err := id.ParseCredentialID(req.CredentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.engine.GenerateRange(ctx, identity, proof.RangeParams{
		CredentialID: credentialID,
		Attribute:    req.Attribute,
		Min:          req.Min,
		Max:          req.Max,
		Purpose:      req.Purpose,
		VerifierDID:  req.VerifierDID,
		Challenge:    req.Challenge,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type verifyRequest struct {
	Proof             proof.ZKProof `json:"proof"`
	ExpectedChallenge string        `json:"expectedChallenge,omitempty"`
	VerifierDID       string        `json:"verifierDid"`
}

// handleVerify answers 200 with the verification verdict for every decided
// outcome, valid or not; error statuses are reserved for undecidable
// requests (malformed body, registry outage).
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.engine.Verify(ctx, req.Proof, req.ExpectedChallenge, req.VerifierDID)
	if err != nil && result.ProofID.IsNil() {
		h.logger.ErrorContext(ctx, "verification did not reach a verdict",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type batchVerifyRequest struct {
	Requests []verifyRequest `json:"requests"`
}

func (h *Handler) handleBatchVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req batchVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if len(req.Requests) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "empty batch"))
		return
	}
	if len(req.Requests) > maxBatchSize {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "batch exceeds %d requests", maxBatchSize))
		return
	}

	requests := make([]proof.VerifyRequest, len(req.Requests))
	for i, item := range req.Requests {
		requests[i] = proof.VerifyRequest{
			Proof:             item.Proof,
			ExpectedChallenge: item.ExpectedChallenge,
			VerifierDID:       item.VerifierDID,
		}
	}
	results := h.engine.BatchVerify(ctx, requests)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	proofID, err := id.ParseProofID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.engine.GetProof(r.Context(), proofID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
