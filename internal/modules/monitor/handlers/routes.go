package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers monitor routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{account}/monitor", h.HandleRunPass) // Run a monitor pass now
}
