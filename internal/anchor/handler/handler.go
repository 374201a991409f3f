// Package handler exposes read-only chain endpoints: node status and
// anchor transaction lookups.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"anchorid/internal/anchor"
	"anchorid/pkg/platform/httputil"
)

// Handler handles chain endpoints.
type Handler struct {
	svc    *anchor.Service
	logger *slog.Logger
}

// New creates a new chain Handler.
func New(svc *anchor.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the chain routes. Both are public: they expose nothing
// beyond what the ledger itself publishes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/chain/status", h.handleStatus)
	r.Get("/chain/tx/{hash}", h.handleTx)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.CheckChainStatus(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"available":    status.Available,
		"chainId":      status.ChainID,
		"latestHeight": status.LatestHeight,
		"reason":       status.Reason,
	})
}

func (h *Handler) handleTx(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransactionStatus(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}
