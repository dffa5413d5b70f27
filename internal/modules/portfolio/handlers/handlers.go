// Package handlers provides HTTP handlers for portfolio views.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	positionRepo portfolio.PositionRepositoryInterface
	service      *portfolio.PortfolioService
	log          zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	positionRepo portfolio.PositionRepositoryInterface,
	service *portfolio.PortfolioService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		positionRepo: positionRepo,
		service:      service,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPositions returns an account's positions
// GET /api/accounts/{account}/positions?include_closed=true
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	includeClosed := false
	if v := r.URL.Query().Get("include_closed"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "include_closed must be a boolean")
			return
		}
		includeClosed = parsed
	}

	positions, err := h.positionRepo.List(accountID, includeClosed)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to list positions")
		h.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"positions":  positions,
		"count":      len(positions),
	})
}

// HandleGetSummary returns open positions with totals and the latest snapshot
// GET /api/accounts/{account}/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	summary, err := h.service.GetSummary(accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to build portfolio summary")
		h.writeError(w, http.StatusInternalServerError, "failed to build portfolio summary")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
