// Package handlers provides HTTP handlers for on-demand position monitor passes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/tradeguard/internal/modules/monitor"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PassRunner runs a monitor pass for one account
type PassRunner interface {
	RunPositionMonitorPass(ctx context.Context, accountID string) (*monitor.PassResult, error)
}

// Handler handles monitor HTTP requests
type Handler struct {
	runner PassRunner
	log    zerolog.Logger
}

// NewHandler creates a new monitor handler
func NewHandler(runner PassRunner, log zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		log:    log.With().Str("handler", "monitor").Logger(),
	}
}

// HandleRunPass handles POST /api/accounts/{account}/monitor
func (h *Handler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	result, err := h.runner.RunPositionMonitorPass(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Monitor pass failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "monitor pass failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode monitor result")
	}
}
