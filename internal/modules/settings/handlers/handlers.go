// Package handlers provides HTTP handlers for per-account risk settings.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/settings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for settings endpoints
type Handler struct {
	repo         *settings.Repository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(repo *settings.Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:         repo,
		eventManager: eventManager,
		log:          log.With().Str("handler", "settings").Logger(),
	}
}

// HandleGet handles GET /api/accounts/{account}/settings
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	s, err := h.repo.Get(accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to get risk settings")
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode settings response")
	}
}

// HandleUpdate handles PUT /api/accounts/{account}/settings
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	var update settings.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	changes := update.Changes()
	if len(changes) == 0 {
		http.Error(w, "No settings to update", http.StatusBadRequest)
		return
	}

	s, err := h.repo.Update(accountID, update)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to update risk settings")
		http.Error(w, "Failed to update settings", http.StatusInternalServerError)
		return
	}

	h.eventManager.EmitTyped("settings", &events.SettingsChangedData{
		AccountID: accountID,
		Changes:   changes,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode settings response")
	}
}

// RegisterRoutes registers settings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{account}/settings", h.HandleGet)
	r.Put("/accounts/{account}/settings", h.HandleUpdate)
}
