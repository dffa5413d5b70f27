package questrade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// ErrSymbolNotFound means the symbol search returned no exact match
var ErrSymbolNotFound = errors.New("symbol not found at broker")

// QuestradeBrokerAdapter adapts the Questrade client to domain.BrokerClient
type QuestradeBrokerAdapter struct {
	client *Client
	cache  *clientdata.Repository
	log    zerolog.Logger
}

var _ domain.BrokerClient = (*QuestradeBrokerAdapter)(nil)

// NewQuestradeBrokerAdapter creates a new adapter. cache may be nil.
func NewQuestradeBrokerAdapter(client *Client, cache *clientdata.Repository, log zerolog.Logger) *QuestradeBrokerAdapter {
	return &QuestradeBrokerAdapter{
		client: client,
		cache:  cache,
		log:    log.With().Str("adapter", "questrade").Logger(),
	}
}

// symbolID resolves a ticker to the broker's symbol id by exact match
func (a *QuestradeBrokerAdapter) symbolID(ctx context.Context, symbol string) (int64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if a.cache != nil {
		var id int64
		found, err := a.cache.GetIfFresh(clientdata.TableBrokerSymbols, symbol, &id)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol cache read failed")
		} else if found {
			return id, nil
		}
	}

	symbols, err := a.client.SearchSymbols(ctx, symbol)
	if err != nil {
		// Symbol ids never change, so an expired mapping still beats failing the order
		if a.cache != nil {
			var id int64
			if found, cacheErr := a.cache.Get(clientdata.TableBrokerSymbols, symbol, &id); cacheErr == nil && found {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol search failed, using expired cached id")
				return id, nil
			}
		}
		return 0, err
	}
	for _, s := range symbols {
		if s.Symbol != symbol {
			continue
		}
		if a.cache != nil {
			if err := a.cache.Store(clientdata.TableBrokerSymbols, symbol, s.SymbolID, clientdata.TTLBrokerSymbol); err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache symbol id")
			}
		}
		return s.SymbolID, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// PlaceOrder places a Day order. Client errors and rejected states are explicit
// rejections; anything else leaves the outcome unknown.
func (a *QuestradeBrokerAdapter) PlaceOrder(ctx context.Context, req domain.BrokerOrderRequest) (*domain.BrokerOrderResult, error) {
	symbolID, err := a.symbolID(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			return nil, &domain.BrokerError{Op: "place_order", Err: err, Message: err.Error(), Rejected: true}
		}
		return nil, toBrokerError("place_order", err, false)
	}

	order, err := a.client.PlaceOrder(ctx, OrderRequest{
		AccountNumber:  req.AccountID,
		SymbolID:       symbolID,
		Quantity:       req.Quantity,
		OrderType:      orderTypeToQuestrade(req.Type),
		Action:         sideToAction(req.Side),
		TimeInForce:    "Day",
		LimitPrice:     req.LimitPrice,
		StopPrice:      req.StopPrice,
		PrimaryRoute:   "AUTO",
		SecondaryRoute: "AUTO",
	})
	if err != nil {
		return nil, toBrokerError("place_order", err, true)
	}

	if isRejectedState(order.State) {
		reason := order.RejectReason
		if reason == "" {
			reason = "order " + order.State
		}
		return nil, &domain.BrokerError{Op: "place_order", Message: reason, Rejected: true}
	}

	a.log.Info().
		Str("symbol", req.Symbol).
		Int64("broker_order_id", order.ID).
		Str("state", order.State).
		Msg("Order placed")
	return &domain.BrokerOrderResult{
		OrderID: strconv.FormatInt(order.ID, 10),
		State:   order.State,
	}, nil
}

// CancelOrder cancels an order at the broker
func (a *QuestradeBrokerAdapter) CancelOrder(ctx context.Context, accountID, brokerOrderID string) error {
	if err := a.client.CancelOrder(ctx, accountID, brokerOrderID); err != nil {
		return toBrokerError("cancel_order", err, false)
	}
	return nil
}

// GetOrderStatus returns the broker's view of an order
func (a *QuestradeBrokerAdapter) GetOrderStatus(ctx context.Context, accountID, brokerOrderID string) (*domain.BrokerOrderStatus, error) {
	order, err := a.client.GetOrder(ctx, accountID, brokerOrderID)
	if err != nil {
		return nil, toBrokerError("get_order_status", err, false)
	}
	return transformOrderStatus(order), nil
}

// GetExecutions returns every fill of an order
func (a *QuestradeBrokerAdapter) GetExecutions(ctx context.Context, accountID, brokerOrderID string) ([]domain.BrokerExecution, error) {
	execs, err := a.client.GetExecutions(ctx, accountID, brokerOrderID)
	if err != nil {
		return nil, toBrokerError("get_executions", err, false)
	}

	now := time.Now().UTC()
	out := make([]domain.BrokerExecution, 0, len(execs))
	for _, e := range execs {
		out = append(out, transformExecution(e, now))
	}
	return out, nil
}

// GetQuote returns the last trade price for a symbol
func (a *QuestradeBrokerAdapter) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	symbolID, err := a.symbolID(ctx, symbol)
	if err != nil {
		return nil, toBrokerError("get_quote", err, false)
	}
	q, err := a.client.GetQuote(ctx, symbolID)
	if err != nil {
		return nil, toBrokerError("get_quote", err, false)
	}

	quote := transformQuote(symbol, q)
	if quote.Price <= 0 {
		return nil, &domain.BrokerError{Op: "get_quote", Message: "no last trade price for " + symbol}
	}
	return quote, nil
}

// IsConnected reports whether the client holds usable credentials
func (a *QuestradeBrokerAdapter) IsConnected() bool {
	return a.client.Authorized()
}

// toBrokerError wraps a client error. With rejectClientErrors, a 4xx other than
// 401, 408 or 429 is an explicit rejection.
func toBrokerError(op string, err error, rejectClientErrors bool) error {
	var be *domain.BrokerError
	if errors.As(err, &be) {
		return err
	}

	out := &domain.BrokerError{Op: op, Err: err}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.StatusCode
		out.Message = apiErr.Message
		if rejectClientErrors && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
			default:
				out.Rejected = true
			}
		}
	case errors.Is(err, ErrNotAuthorized):
		out.StatusCode = http.StatusUnauthorized
	}
	return out
}
