package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers instrument routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/instruments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{symbol}", h.HandleGet)
		r.Get("/{symbol}/quote", h.HandleQuote) // Latest price, never cached past its TTL
	})
}
