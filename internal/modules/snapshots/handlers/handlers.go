// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/tradeguard/internal/modules/snapshots"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxHistoryDays = 365

// Handler handles snapshot HTTP requests
type Handler struct {
	repo    *snapshots.Repository
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(repo *snapshots.Repository, service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList handles GET /api/accounts/{account}/snapshots?days=30
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxHistoryDays {
			h.writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	history, err := h.repo.List(accountID, days)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"snapshots":  history,
		"count":      len(history),
	})
}

// HandleRecord handles POST /api/accounts/{account}/snapshots
// Body is optional: {"cash_balance": 12345.67}
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	var req snapshots.RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CashBalance != nil && *req.CashBalance < 0 {
		h.writeError(w, http.StatusBadRequest, "cash_balance cannot be negative")
		return
	}
	req.AccountID = accountID

	snap, err := h.service.Rollover(req, time.Now())
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to record snapshot")
		h.writeError(w, http.StatusInternalServerError, "failed to record snapshot")
		return
	}

	h.writeJSON(w, http.StatusCreated, snap)
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
