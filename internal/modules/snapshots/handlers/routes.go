package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{account}/snapshots", h.HandleList)    // History, newest first
	r.Post("/accounts/{account}/snapshots", h.HandleRecord) // Record today's snapshot now
}
