// Package trading owns the order lifecycle: validation, persistence, execution
// (paper or live) and the single fill path into the position ledger.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlaceOrderRequest is a trading intent from the API, the advisory layer or the monitor
type PlaceOrderRequest struct {
	LimitPrice      *float64 `json:"limit_price,omitempty"`
	StopPrice       *float64 `json:"stop_price,omitempty"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`
	DecisionID      *string  `json:"decision_id,omitempty"`
	AccountID       string   `json:"account_id"`
	Symbol          string   `json:"symbol"`
	Side            string   `json:"side"`
	Type            string   `json:"order_type"`
	Reasoning       string   `json:"reasoning,omitempty"`
	Quantity        int64    `json:"quantity"`
}

// Preview is the outcome of validating a request without placing it
type Preview struct {
	Metrics *risk.Metrics `json:"metrics"`
	Symbol  string        `json:"symbol"`
	Side    string        `json:"side"`
	Price   float64       `json:"price"`
	IsPaper bool          `json:"is_paper_trade"`
}

// OrderWithExecutions is an order and its fills
type OrderWithExecutions struct {
	Order      *domain.Order      `json:"order"`
	Executions []domain.Execution `json:"executions"`
}

// SyncResult summarizes one broker poll of a live order
type SyncResult struct {
	OrderID  string             `json:"order_id"`
	Status   domain.OrderStatus `json:"status"`
	NewFills int                `json:"new_fills"`
}

// SyncSummary summarizes a poll over all active live orders
type SyncSummary struct {
	Checked  int `json:"checked"`
	NewFills int `json:"new_fills"`
	Failed   int `json:"failed"`
}

// OrderManagerDeps are the collaborators of the order manager. Live may be nil when
// no broker is configured; live-mode orders are then refused.
type OrderManagerDeps struct {
	Orders      *OrderRepository
	Executions  *ExecutionRepository
	Positions   portfolio.PositionRepositoryInterface
	Instruments domain.InstrumentResolver
	Settings    domain.RiskSettingsProvider
	Snapshots   domain.SnapshotProvider
	Prices      domain.PriceProvider
	Validator   *risk.Validator
	Fills       *FillStore
	Paper       *PaperExecutor
	Live        *LiveExecutor
	Events      *events.Manager
	Locks       *KeyedMutex
	// Now defaults to time.Now
	Now func() time.Time
	// PriceTimeout bounds the market-data lookup for orders without a limit or stop price
	PriceTimeout time.Duration
}

// OrderManager is the only component that creates or mutates orders
type OrderManager struct {
	deps OrderManagerDeps
	log  zerolog.Logger
}

// NewOrderManager creates an order manager
func NewOrderManager(deps OrderManagerDeps, log zerolog.Logger) *OrderManager {
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.PriceTimeout <= 0 {
		deps.PriceTimeout = 10 * time.Second
	}
	if deps.Validator == nil {
		deps.Validator = risk.NewValidator(risk.Options{})
	}
	return &OrderManager{
		deps: deps,
		log:  log.With().Str("service", "order_manager").Logger(),
	}
}

// validated is a request that passed risk validation
type validated struct {
	metrics   *risk.Metrics
	side      domain.OrderSide
	orderType domain.OrderType
}

// PlaceOrder validates req against risk limits, persists it and executes it.
//
// Paper orders are filled atomically before returning. Live orders are returned
// SUBMITTED, or REJECTED together with the broker error. When the broker outcome is
// unknown the order stays PENDING and the error is returned alongside it.
func (m *OrderManager) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	side, orderType, err := checkShape(&req)
	if err != nil {
		return nil, err
	}

	instrument, err := m.deps.Instruments.GetOrCreate(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instrument %s: %w", req.Symbol, err)
	}
	req.Symbol = instrument.Symbol

	price, err := m.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}

	settings, err := m.deps.Settings.Get(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk settings: %w", err)
	}
	isPaper := settings.PaperTradingEnabled
	if !isPaper && m.deps.Live == nil {
		return nil, &domain.BrokerError{Op: "place_order", Message: "live trading enabled but no broker is configured"}
	}

	unlock := m.deps.Locks.Lock(PositionKey(req.AccountID, instrument.ID))
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	v, err := m.validate(req, instrument, settings, side, orderType, price)
	if err != nil {
		return nil, err
	}

	now := m.deps.Now().UTC()
	order := &domain.Order{
		CreatedAt:       now,
		UpdatedAt:       now,
		LimitPrice:      req.LimitPrice,
		StopPrice:       req.StopPrice,
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		DecisionID:      req.DecisionID,
		ID:              uuid.New().String(),
		AccountID:       req.AccountID,
		Symbol:          instrument.Symbol,
		Type:            v.orderType,
		Side:            v.side,
		Status:          domain.OrderStatusPending,
		Reasoning:       req.Reasoning,
		InstrumentID:    instrument.ID,
		Quantity:        req.Quantity,
		TradeValue:      v.metrics.TradeValue,
		PositionSizePct: v.metrics.PositionSizePct,
		RiskAmount:      v.metrics.RiskAmount,
		IsPaper:         isPaper,
	}
	if err := m.deps.Orders.Create(order); err != nil {
		return nil, err
	}
	m.emitOrder(events.OrderPlaced, order, "")

	m.log.Info().
		Str("order_id", order.ID).
		Str("account", order.AccountID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Int64("quantity", order.Quantity).
		Float64("price", price).
		Bool("paper", isPaper).
		Msg("Order placed")

	if isPaper {
		outcome, err := m.deps.Paper.Execute(order, price, now)
		if err != nil {
			m.logFillFailure(err, order)
			return nil, err
		}
		m.emitFill(outcome, "paper")
		return outcome.Order, nil
	}

	// The broker call happens without the position lock
	unlock()
	locked = false

	return m.submitLive(ctx, order)
}

// PreviewOrder runs the same checks as PlaceOrder without persisting or executing.
// Risk failures come back as *risk.Rejection.
func (m *OrderManager) PreviewOrder(ctx context.Context, req PlaceOrderRequest) (*Preview, error) {
	side, orderType, err := checkShape(&req)
	if err != nil {
		return nil, err
	}

	instrument, err := m.deps.Instruments.GetOrCreate(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instrument %s: %w", req.Symbol, err)
	}
	req.Symbol = instrument.Symbol

	price, err := m.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}

	settings, err := m.deps.Settings.Get(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk settings: %w", err)
	}

	v, err := m.validate(req, instrument, settings, side, orderType, price)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Metrics: v.metrics,
		Symbol:  instrument.Symbol,
		Side:    string(side),
		Price:   price,
		IsPaper: settings.PaperTradingEnabled,
	}, nil
}

// validate loads the portfolio state and runs the risk validator. Callers placing an
// order hold the position lock.
func (m *OrderManager) validate(
	req PlaceOrderRequest,
	instrument *domain.Instrument,
	settings *domain.RiskSettings,
	side domain.OrderSide,
	orderType domain.OrderType,
	price float64,
) (*validated, error) {
	latest, err := m.deps.Snapshots.GetLatest(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}
	openCount, err := m.deps.Positions.CountOpen(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to count open positions: %w", err)
	}
	existing, err := m.deps.Positions.GetOpen(req.AccountID, instrument.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	if existing != nil && !side.IsBuy() {
		reserved, err := m.deps.Orders.ReservedSellQuantity(req.AccountID, instrument.ID)
		if err != nil {
			return nil, err
		}
		available := *existing
		available.Quantity -= reserved
		if available.Quantity < 0 {
			available.Quantity = 0
		}
		existing = &available
	}

	metrics, err := m.deps.Validator.Validate(*settings, risk.SnapshotAt(latest, m.deps.Now()), openCount, existing, risk.Request{
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		Symbol:          instrument.Symbol,
		Side:            side,
		Quantity:        req.Quantity,
		Price:           price,
	})
	if err != nil {
		if rejection, ok := risk.AsRejection(err); ok {
			m.log.Info().
				Str("account", req.AccountID).
				Str("symbol", instrument.Symbol).
				Str("side", string(side)).
				Str("reason", string(rejection.Reason)).
				Msg(rejection.Message)
			m.deps.Events.EmitTyped("trading", &events.RiskRejectedData{
				AccountID: req.AccountID,
				Symbol:    instrument.Symbol,
				Side:      string(side),
				Reason:    string(rejection.Reason),
				Message:   rejection.Message,
				Quantity:  req.Quantity,
				Price:     price,
			})
		}
		return nil, err
	}

	return &validated{
		metrics:   metrics,
		side:      side,
		orderType: orderType,
	}, nil
}

func (m *OrderManager) submitLive(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	result, err := m.deps.Live.Submit(ctx, order, m.deps.Now())
	switch result {
	case SubmitAccepted:
		if uerr := m.deps.Orders.Update(order); uerr != nil {
			return nil, fmt.Errorf("order %s submitted as %s but not saved: %w", order.ID, *order.BrokerOrderID, uerr)
		}
		m.emitOrder(events.OrderSubmitted, order, "")
		return order, nil

	case SubmitRejected:
		if uerr := m.deps.Orders.Update(order); uerr != nil {
			m.log.Error().Err(uerr).Str("order_id", order.ID).Msg("Failed to save rejected order")
		}
		m.emitOrder(events.OrderRejected, order, err.Error())
		return order, err

	default:
		m.deps.Events.EmitError("trading", err, map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
		})
		return order, err
	}
}

// ApplyExecution records a fill for a live order. It is the only way fills reach the
// ledger outside of paper execution and is idempotent on the broker execution id.
func (m *OrderManager) ApplyExecution(ctx context.Context, orderID string, fill domain.Fill) (*domain.Order, error) {
	order, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.IsPaper {
		return nil, fmt.Errorf("%w: paper order %s is filled by the paper executor", domain.ErrOrderNotFillable, order.ID)
	}

	unlock := m.deps.Locks.Lock(PositionKey(order.AccountID, order.InstrumentID))
	defer unlock()

	outcome, err := m.deps.Fills.RecordFill(orderID, fill, m.deps.Now())
	if err != nil {
		m.logFillFailure(err, order)
		return nil, err
	}
	if outcome.Duplicate {
		m.log.Debug().
			Str("order_id", orderID).
			Str("broker_execution_id", fill.BrokerExecutionID).
			Msg("Execution already recorded")
		return outcome.Order, nil
	}

	m.emitFill(outcome, "broker")
	return outcome.Order, nil
}

// CancelOrder cancels a PENDING or SUBMITTED order. Live orders are cancelled at the
// broker first, then any executions the broker reports are applied before the local
// order is closed. A fully filled order returns ErrCancelTooLate; a partially filled
// one ends CANCELLED with its fills kept.
func (m *OrderManager) CancelOrder(ctx context.Context, orderID string) error {
	order, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if !order.Status.IsCancellable() {
		return fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotCancellable, order.ID, order.Status)
	}

	if !order.IsPaper && order.BrokerOrderID != nil {
		if m.deps.Live == nil {
			return &domain.BrokerError{Op: "cancel_order", Message: "no broker is configured"}
		}
		if err := m.deps.Live.Cancel(ctx, order); err != nil {
			m.log.Warn().Err(err).Str("order_id", order.ID).Msg("Broker cancel failed")
			return err
		}
		done, err := m.settleCancelledAtBroker(ctx, order)
		if err != nil || done {
			return err
		}
	} else if !order.IsPaper {
		m.log.Warn().Str("order_id", order.ID).Msg("Cancelling live order with no broker id locally")
	}

	unlock := m.deps.Locks.Lock(PositionKey(order.AccountID, order.InstrumentID))
	defer unlock()

	// Re-read under the lock; a fill may have landed during the broker call
	current, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrOrderNotFound
	}
	if !current.Status.IsCancellable() {
		return fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotCancellable, current.ID, current.Status)
	}

	current.Status = domain.OrderStatusCancelled
	current.CancelledAt = domain.TimePtr(m.deps.Now().UTC())
	if err := m.deps.Orders.Update(current); err != nil {
		return err
	}

	m.log.Info().Str("order_id", current.ID).Str("symbol", current.Symbol).Msg("Order cancelled")
	m.emitOrder(events.OrderCancelled, current, "")
	return nil
}

// settleCancelledAtBroker applies fills the broker made before accepting the cancel.
// done is true when the order was closed here. On error the order stays open so the
// live sync job can pick up the executions and the broker's cancelled state.
func (m *OrderManager) settleCancelledAtBroker(ctx context.Context, order *domain.Order) (done bool, err error) {
	fills, status, err := m.deps.Live.FetchExecutions(ctx, order)
	if err != nil {
		m.log.Error().Err(err).Str("order_id", order.ID).Msg("Cancelled at broker but executions unknown")
		return false, err
	}

	for _, fill := range fills {
		if _, err := m.ApplyExecution(ctx, order.ID, fill); err != nil {
			return false, err
		}
	}

	current, err := m.deps.Orders.GetByID(order.ID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, domain.ErrOrderNotFound
	}

	switch {
	case current.Status == domain.OrderStatusFilled:
		return true, domain.ErrCancelTooLate
	case status != nil && status.Filled:
		// Executions not listed yet; the sync job applies them
		return true, domain.ErrCancelTooLate
	case status != nil && status.FilledQuantity > current.FilledQuantity:
		m.log.Warn().
			Str("order_id", order.ID).
			Int64("broker_filled", status.FilledQuantity).
			Int64("local_filled", current.FilledQuantity).
			Msg("Broker reports fills not yet listed, leaving order open for sync")
		return true, nil
	case current.FilledQuantity > 0:
		if status == nil {
			status = &domain.BrokerOrderStatus{OrderID: *order.BrokerOrderID}
		}
		status.Cancelled = true
		status.Rejected = false
		if status.State == "" {
			status.State = "Canceled"
		}
		return true, m.closeAtBroker(order.ID, status)
	}
	return false, nil
}

// SyncLiveOrder polls the broker for an order's executions and applies new ones.
// Broker-side cancellations and rejections are mirrored once all fills are in.
func (m *OrderManager) SyncLiveOrder(ctx context.Context, orderID string) (*SyncResult, error) {
	order, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	result := &SyncResult{OrderID: order.ID, Status: order.Status}
	if order.IsPaper || order.BrokerOrderID == nil || !order.Status.AcceptsFills() {
		return result, nil
	}
	if m.deps.Live == nil {
		return nil, &domain.BrokerError{Op: "get_executions", Message: "no broker is configured"}
	}

	fills, status, err := m.deps.Live.FetchExecutions(ctx, order)
	if err != nil {
		return nil, err
	}

	for _, fill := range fills {
		before, err := m.deps.Orders.GetByID(orderID)
		if err != nil {
			return nil, err
		}
		updated, err := m.ApplyExecution(ctx, orderID, fill)
		if err != nil {
			return nil, err
		}
		if updated.FilledQuantity != before.FilledQuantity {
			result.NewFills++
		}
		result.Status = updated.Status
	}

	if status != nil && (status.Cancelled || status.Rejected) {
		if err := m.closeAtBroker(orderID, status); err != nil {
			return nil, err
		}
		current, err := m.deps.Orders.GetByID(orderID)
		if err != nil {
			return nil, err
		}
		result.Status = current.Status
	}

	return result, nil
}

// closeAtBroker mirrors a broker-side cancel or reject onto an order that can no
// longer fill
func (m *OrderManager) closeAtBroker(orderID string, status *domain.BrokerOrderStatus) error {
	order, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status.IsTerminal() {
		return nil
	}

	unlock := m.deps.Locks.Lock(PositionKey(order.AccountID, order.InstrumentID))
	defer unlock()

	now := m.deps.Now().UTC()
	eventType := events.OrderCancelled
	if status.Rejected && order.FilledQuantity == 0 {
		order.Status = domain.OrderStatusRejected
		eventType = events.OrderRejected
	} else {
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = domain.TimePtr(now)
	}
	if err := m.deps.Orders.Update(order); err != nil {
		return err
	}

	m.log.Info().
		Str("order_id", order.ID).
		Str("broker_state", status.State).
		Str("status", string(order.Status)).
		Msg("Order closed at broker")
	m.emitOrder(eventType, order, "broker state "+status.State)
	return nil
}

// SyncLiveOrders polls every active live order. One failing order does not stop the rest.
func (m *OrderManager) SyncLiveOrders(ctx context.Context) (*SyncSummary, error) {
	orders, err := m.deps.Orders.ListActiveLive()
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{}
	for _, order := range orders {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++
		result, err := m.SyncLiveOrder(ctx, order.ID)
		if err != nil {
			summary.Failed++
			m.log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to sync live order")
			continue
		}
		summary.NewFills += result.NewFills
	}

	if summary.Checked > 0 {
		m.log.Info().
			Int("checked", summary.Checked).
			Int("new_fills", summary.NewFills).
			Int("failed", summary.Failed).
			Msg("Live order sync completed")
	}
	return summary, nil
}

// GetOrder returns an order or ErrOrderNotFound
func (m *OrderManager) GetOrder(orderID string) (*domain.Order, error) {
	order, err := m.deps.Orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// GetOrderWithExecutions returns an order and its fills
func (m *OrderManager) GetOrderWithExecutions(orderID string) (*OrderWithExecutions, error) {
	order, err := m.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	executions, err := m.deps.Executions.ListByOrder(orderID)
	if err != nil {
		return nil, err
	}
	if executions == nil {
		executions = []domain.Execution{}
	}
	return &OrderWithExecutions{Order: order, Executions: executions}, nil
}

// ListOrders returns an account's most recent orders
func (m *OrderManager) ListOrders(accountID string, limit int) ([]domain.Order, error) {
	return m.deps.Orders.List(accountID, limit)
}

// HasActiveSellOrder reports whether a sell for the position may still fill
func (m *OrderManager) HasActiveSellOrder(accountID string, instrumentID int64) (bool, error) {
	return m.deps.Orders.HasActiveSellOrder(accountID, instrumentID)
}

// resolvePrice picks the validation price: limit, else stop, else the latest quote
func (m *OrderManager) resolvePrice(ctx context.Context, req PlaceOrderRequest) (float64, error) {
	if req.LimitPrice != nil {
		return *req.LimitPrice, nil
	}
	if req.StopPrice != nil {
		return *req.StopPrice, nil
	}
	if m.deps.Prices == nil {
		return 0, &domain.MarketDataUnavailableError{Symbol: req.Symbol, Err: errors.New("no price provider configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, m.deps.PriceTimeout)
	defer cancel()

	price, err := m.deps.Prices.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		if domain.IsMarketDataUnavailable(err) {
			return 0, err
		}
		return 0, &domain.MarketDataUnavailableError{Symbol: req.Symbol, Err: err}
	}
	if price <= 0 {
		return 0, &domain.MarketDataUnavailableError{Symbol: req.Symbol, Err: fmt.Errorf("non-positive price %.4f", price)}
	}
	return price, nil
}

func (m *OrderManager) logFillFailure(err error, order *domain.Order) {
	if domain.IsConsistencyError(err) {
		m.log.WithLevel(zerolog.FatalLevel).
			Err(err).
			Str("order_id", order.ID).
			Str("account", order.AccountID).
			Str("symbol", order.Symbol).
			Msg("Ledger consistency violation, fill aborted")
		m.deps.Events.EmitError("trading", err, map[string]interface{}{
			"order_id": order.ID,
			"severity": "fatal",
		})
		return
	}
	m.log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to record fill")
}

func (m *OrderManager) emitOrder(eventType events.EventType, order *domain.Order, reason string) {
	data := &events.OrderData{
		Type:      eventType,
		OrderID:   order.ID,
		AccountID: order.AccountID,
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		OrderType: string(order.Type),
		Status:    string(order.Status),
		Reason:    reason,
		Quantity:  order.Quantity,
		IsPaper:   order.IsPaper,
	}
	if order.BrokerOrderID != nil {
		data.BrokerOrderID = *order.BrokerOrderID
	}
	m.deps.Events.EmitTyped("trading", data)
}

func (m *OrderManager) emitFill(outcome *FillOutcome, source string) {
	order := outcome.Order
	exec := outcome.Execution
	pos := outcome.Position

	data := &events.TradeExecutedData{
		OrderID:         order.ID,
		AccountID:       order.AccountID,
		Symbol:          order.Symbol,
		Side:            string(order.Side),
		Source:          source,
		Quantity:        exec.Quantity,
		FilledQuantity:  order.FilledQuantity,
		Price:           exec.Price,
		Commission:      exec.Commission,
		OrderCompleted:  order.Status == domain.OrderStatusFilled,
		PositionChanged: pos != nil,
	}
	if pos != nil {
		data.PositionQty = pos.Quantity
	}
	m.deps.Events.EmitTyped("trading", data)

	if pos == nil {
		return
	}
	if outcome.PositionOpened || outcome.PositionClosed {
		eventType := events.PositionOpened
		if outcome.PositionClosed {
			eventType = events.PositionClosed
		}
		m.deps.Events.EmitTyped("portfolio", &events.PositionData{
			Type:         eventType,
			AccountID:    pos.AccountID,
			Symbol:       pos.Symbol,
			PositionID:   pos.ID,
			Quantity:     pos.Quantity,
			AverageCost:  pos.AverageCost,
			RealizedPnL:  pos.RealizedPnL,
			CurrentPrice: pos.CurrentPrice,
		})
	}
}

// checkShape normalizes and checks a request before any lookups
func checkShape(req *PlaceOrderRequest) (domain.OrderSide, domain.OrderType, error) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	if req.AccountID == "" {
		return "", "", fmt.Errorf("%w: account is required", domain.ErrInvalidOrder)
	}
	if req.Symbol == "" {
		return "", "", fmt.Errorf("%w: symbol is required", domain.ErrInvalidOrder)
	}
	side, err := domain.OrderSideFromString(req.Side)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	orderType, err := domain.OrderTypeFromString(req.Type)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	if req.Quantity <= 0 {
		return "", "", fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	if orderType.RequiresLimitPrice() && req.LimitPrice == nil {
		return "", "", fmt.Errorf("%w: %s order requires limit_price", domain.ErrInvalidOrder, orderType)
	}
	if orderType.RequiresStopPrice() && req.StopPrice == nil {
		return "", "", fmt.Errorf("%w: %s order requires stop_price", domain.ErrInvalidOrder, orderType)
	}

	for name, p := range map[string]*float64{
		"limit_price":       req.LimitPrice,
		"stop_price":        req.StopPrice,
		"stop_loss_price":   req.StopLossPrice,
		"take_profit_price": req.TakeProfitPrice,
	} {
		if p != nil && *p <= 0 {
			return "", "", fmt.Errorf("%w: %s must be positive", domain.ErrInvalidOrder, name)
		}
	}

	return side, orderType, nil
}
