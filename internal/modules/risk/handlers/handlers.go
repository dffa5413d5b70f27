// Package handlers provides HTTP handlers for dry-run risk validation.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Previewer validates an order request without placing it
type Previewer interface {
	PreviewOrder(ctx context.Context, req trading.PlaceOrderRequest) (*trading.Preview, error)
}

// Handler handles risk validation requests
type Handler struct {
	previewer Previewer
	log       zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(previewer Previewer, log zerolog.Logger) *Handler {
	return &Handler{
		previewer: previewer,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// HandleValidate handles POST /api/accounts/{account}/risk/validate
//
// Accepted requests return 200 with the computed metrics. Rejections also return 200
// with approved=false, since the check itself succeeded.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req trading.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.AccountID = chi.URLParam(r, "account")

	preview, err := h.previewer.PreviewOrder(r.Context(), req)
	if err != nil {
		var marketErr *domain.MarketDataUnavailableError
		if rejection, ok := risk.AsRejection(err); ok {
			h.writeJSON(w, http.StatusOK, map[string]interface{}{
				"approved": false,
				"reason":   rejection.Reason,
				"message":  rejection.Message,
			})
			return
		}
		switch {
		case errors.As(err, &marketErr):
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":  "market data unavailable",
				"symbol": marketErr.Symbol,
			})
		case errors.Is(err, domain.ErrInvalidOrder):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.log.Error().Err(err).Msg("Risk validation failed")
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"approved": true,
		"preview":  preview,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
