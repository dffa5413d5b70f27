package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers order routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{account}/orders", h.HandlePlaceOrder) // Validate, persist, execute
	r.Get("/accounts/{account}/orders", h.HandleListOrders)  // Most recent first

	r.Get("/orders/{orderID}", h.HandleGetOrder)                    // Order with executions
	r.Post("/orders/{orderID}/cancel", h.HandleCancelOrder)         // Broker first for live orders
	r.Post("/orders/{orderID}/executions", h.HandleReportExecution) // Fill report (webhook/manual)
	r.Post("/orders/{orderID}/sync", h.HandleSyncOrder)             // Poll broker executions now
}
