package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{account}/positions", h.HandleGetPositions) // Open (or all) positions
	r.Get("/accounts/{account}/summary", h.HandleGetSummary)     // Positions + latest snapshot
}
