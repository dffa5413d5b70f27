// Package handlers provides HTTP handlers for order placement and the order lifecycle.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxListLimit = 500

// OrderService is the order manager surface used by the HTTP API
type OrderService interface {
	PlaceOrder(ctx context.Context, req trading.PlaceOrderRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ApplyExecution(ctx context.Context, orderID string, fill domain.Fill) (*domain.Order, error)
	SyncLiveOrder(ctx context.Context, orderID string) (*trading.SyncResult, error)
	GetOrderWithExecutions(orderID string) (*trading.OrderWithExecutions, error)
	ListOrders(accountID string, limit int) ([]domain.Order, error)
}

// ExecutionRequest reports a fill for a live order
type ExecutionRequest struct {
	ExecutedAt        *time.Time `json:"executed_at,omitempty"`
	BrokerExecutionID string     `json:"broker_execution_id"`
	Quantity          int64      `json:"quantity"`
	Price             float64    `json:"price"`
	Commission        float64    `json:"commission"`
}

// Handler handles order HTTP requests
type Handler struct {
	orders OrderService
	log    zerolog.Logger
}

// NewHandler creates a new order handler
func NewHandler(orders OrderService, log zerolog.Logger) *Handler {
	return &Handler{
		orders: orders,
		log:    log.With().Str("handler", "trading").Logger(),
	}
}

// HandlePlaceOrder handles POST /api/accounts/{account}/orders
func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AccountID = chi.URLParam(r, "account")

	order, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, err, order)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

// HandleListOrders handles GET /api/accounts/{account}/orders?limit=50
func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListOrders(accountID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to list orders")
		h.writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"orders":     orders,
		"count":      len(orders),
	})
}

// HandleGetOrder handles GET /api/orders/{orderID}
func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.GetOrderWithExecutions(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleCancelOrder handles POST /api/orders/{orderID}/cancel
func (h *Handler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.orders.CancelOrder(r.Context(), orderID); err != nil {
		h.writeOrderError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   domain.OrderStatusCancelled,
	})
}

// HandleReportExecution handles POST /api/orders/{orderID}/executions
func (h *Handler) HandleReportExecution(w http.ResponseWriter, r *http.Request) {
	var req ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fill := domain.Fill{
		BrokerExecutionID: req.BrokerExecutionID,
		Quantity:          req.Quantity,
		Price:             req.Price,
		Commission:        req.Commission,
	}
	if req.ExecutedAt != nil {
		fill.ExecutedAt = *req.ExecutedAt
	}

	order, err := h.orders.ApplyExecution(r.Context(), chi.URLParam(r, "orderID"), fill)
	if err != nil {
		h.writeOrderError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// HandleSyncOrder handles POST /api/orders/{orderID}/sync
func (h *Handler) HandleSyncOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.SyncLiveOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// writeOrderError maps the engine's error taxonomy onto HTTP status codes. When the
// order was persisted before the failure it is included in the body.
func (h *Handler) writeOrderError(w http.ResponseWriter, err error, order *domain.Order) {
	body := map[string]interface{}{}
	if order != nil {
		body["order"] = order
	}

	var marketErr *domain.MarketDataUnavailableError
	var brokerErr *domain.BrokerError

	if rejection, ok := risk.AsRejection(err); ok {
		body["error"] = "risk rejection"
		body["reason"] = rejection.Reason
		body["message"] = rejection.Message
		h.writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	switch {
	case errors.As(err, &marketErr):
		body["error"] = "market data unavailable"
		body["symbol"] = marketErr.Symbol
		h.writeJSON(w, http.StatusServiceUnavailable, body)
	case errors.As(err, &brokerErr):
		h.log.Warn().Err(err).Bool("rejected", brokerErr.Rejected).Msg("Broker call failed")
		body["error"] = "execution failed, retry later"
		if brokerErr.Rejected {
			body["message"] = brokerErr.Message
		}
		h.writeJSON(w, http.StatusBadGateway, body)
	case domain.IsConsistencyError(err):
		body["error"] = "ledger consistency violation"
		h.writeJSON(w, http.StatusInternalServerError, body)
	case errors.Is(err, domain.ErrOrderNotFound):
		body["error"] = "order not found"
		h.writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, domain.ErrCancelTooLate):
		body["error"] = "order already filled at broker"
		h.writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, domain.ErrOrderNotCancellable):
		body["error"] = err.Error()
		h.writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrOrderNotFillable):
		body["error"] = err.Error()
		h.writeJSON(w, http.StatusBadRequest, body)
	default:
		h.log.Error().Err(err).Msg("Order request failed")
		body["error"] = "internal error"
		h.writeJSON(w, http.StatusInternalServerError, body)
	}
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
