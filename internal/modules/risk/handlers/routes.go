package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{account}/risk/validate", h.HandleValidate) // Dry-run validation, nothing persisted
}
