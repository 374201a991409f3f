package auth

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	"anchorid/pkg/platform/httputil"
)

// Handler exposes the wallet login endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the auth routes. Both are unauthenticated by nature.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/challenge", h.handleChallenge)
	r.Post("/auth/wallet", h.handleLogin)
}

type challengeRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type challengeResponse struct {
	Nonce            string `json:"nonce"`
	Challenge        string `json:"challenge"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	address, err := id.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	challenge, err := h.svc.NewChallenge(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "challenge creation failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challengeResponse{
		Nonce:            challenge.Nonce,
		Challenge:        string(challenge.Message),
		ExpiresInSeconds: int64(challenge.ExpiresIn.Seconds()),
	})
}

type loginRequest struct {
	WalletAddress string `json:"walletAddress"`
	WalletType    string `json:"walletType"`
	// Signature is the base64 wallet signature over the challenge message.
	Signature string `json:"signature"`
}

type loginResponse struct {
	AccessToken      string `json:"accessToken"`
	TokenType        string `json:"tokenType"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	address, err := id.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	walletType, err := id.ParseWalletType(req.WalletType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "signature must be base64"))
		return
	}

	session, err := h.svc.Login(r.Context(), address, walletType, signature)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:      session.AccessToken,
		TokenType:        "Bearer",
		ExpiresInSeconds: int64(session.ExpiresIn.Seconds()),
	})
}
