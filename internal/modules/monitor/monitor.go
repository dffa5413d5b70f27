// Package monitor watches open positions for stop-loss and take-profit levels and
// submits exit orders through the order manager when a level is crossed.
//
// The monitor owns no timer. A pass is a plain call, driven by the scheduler or the API.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/rs/zerolog"
)

// DefaultPriceTimeout bounds each instrument's price lookup
const DefaultPriceTimeout = 10 * time.Second

// Trigger names the exit level that fired
type Trigger string

const (
	TriggerStopLoss   Trigger = "stop_loss"
	TriggerTakeProfit Trigger = "take_profit"
)

// OrderPlacer submits exit orders
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req trading.PlaceOrderRequest) (*domain.Order, error)
	HasActiveSellOrder(accountID string, instrumentID int64) (bool, error)
}

// PositionSource lists and marks positions
type PositionSource interface {
	ListOpenWithExits(accountID string) ([]domain.Position, error)
	UpdateMarket(pos *domain.Position) error
	ListAccounts() ([]string, error)
}

// Exit records one triggered exit
type Exit struct {
	Symbol   string  `json:"symbol"`
	Trigger  Trigger `json:"trigger"`
	OrderID  string  `json:"order_id,omitempty"`
	Error    string  `json:"error,omitempty"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Level    float64 `json:"level"`
}

// PassResult summarizes one monitor pass over an account
type PassResult struct {
	AccountID string  `json:"account_id"`
	Exits     []Exit  `json:"exits"`
	Checked   int     `json:"checked"`
	Triggered int     `json:"triggered"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Duration  float64 `json:"duration_seconds"`
}

// Monitor runs position monitor passes
type Monitor struct {
	positions    PositionSource
	prices       domain.PriceProvider
	orders       OrderPlacer
	eventManager *events.Manager
	priceTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewMonitor creates a position monitor. A zero priceTimeout uses DefaultPriceTimeout.
func NewMonitor(
	positions PositionSource,
	prices domain.PriceProvider,
	orders OrderPlacer,
	eventManager *events.Manager,
	priceTimeout time.Duration,
	log zerolog.Logger,
) *Monitor {
	if priceTimeout <= 0 {
		priceTimeout = DefaultPriceTimeout
	}
	return &Monitor{
		positions:    positions,
		prices:       prices,
		orders:       orders,
		eventManager: eventManager,
		priceTimeout: priceTimeout,
		now:          time.Now,
		log:          log.With().Str("service", "position_monitor").Logger(),
	}
}

// RunPositionMonitorPass checks every open position of an account that carries a stop or
// target. Prices that cannot be fetched in time are skipped and counted as failures;
// one position failing never aborts the pass. The error return is reserved for failing to
// list positions at all.
func (m *Monitor) RunPositionMonitorPass(ctx context.Context, accountID string) (*PassResult, error) {
	start := time.Now()
	result := &PassResult{AccountID: accountID, Exits: []Exit{}}

	positions, err := m.positions.ListOpenWithExits(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s: %w", accountID, err)
	}

	for i := range positions {
		if ctx.Err() != nil {
			break
		}
		m.checkPosition(ctx, &positions[i], result)
	}

	result.Duration = time.Since(start).Seconds()
	m.eventManager.EmitTyped("monitor", &events.MonitorPassData{
		AccountID: accountID,
		Checked:   result.Checked,
		Triggered: result.Triggered,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		Duration:  result.Duration,
	})

	m.log.Info().
		Str("account", accountID).
		Int("positions", len(positions)).
		Int("checked", result.Checked).
		Int("triggered", result.Triggered).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Position monitor pass completed")

	return result, ctx.Err()
}

// RunAll runs a pass for every account holding open positions
func (m *Monitor) RunAll(ctx context.Context) ([]*PassResult, error) {
	accounts, err := m.positions.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	results := make([]*PassResult, 0, len(accounts))
	for _, accountID := range accounts {
		result, err := m.RunPositionMonitorPass(ctx, accountID)
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			m.log.Error().Err(err).Str("account", accountID).Msg("Position monitor pass failed")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (m *Monitor) checkPosition(ctx context.Context, pos *domain.Position, result *PassResult) {
	price, err := m.fetchPrice(ctx, pos.Symbol)
	if err != nil {
		result.Failed++
		m.log.Warn().Err(err).Str("account", pos.AccountID).Str("symbol", pos.Symbol).Msg("Price unavailable, skipping position")
		return
	}
	result.Checked++

	portfolio.MarkToMarket(pos, price, m.now().UTC())
	if err := m.positions.UpdateMarket(pos); err != nil {
		m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to save market price")
	}

	trigger, level, ok := crossed(pos, price)
	if !ok {
		return
	}

	active, err := m.orders.HasActiveSellOrder(pos.AccountID, pos.InstrumentID)
	if err != nil {
		result.Failed++
		m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to check active sell orders")
		return
	}
	if active {
		result.Skipped++
		m.log.Debug().Str("symbol", pos.Symbol).Str("trigger", string(trigger)).Msg("Exit already in flight")
		return
	}

	exit := Exit{
		Symbol:   pos.Symbol,
		Trigger:  trigger,
		Quantity: pos.Quantity,
		Price:    price,
		Level:    level,
	}

	order, err := m.orders.PlaceOrder(ctx, trading.PlaceOrderRequest{
		AccountID: pos.AccountID,
		Symbol:    pos.Symbol,
		Side:      string(domain.OrderSideSell),
		Type:      string(domain.OrderTypeMarket),
		Quantity:  pos.Quantity,
		Reasoning: reasoning(trigger, price),
	})
	if order != nil {
		exit.OrderID = order.ID
	}
	if err != nil {
		exit.Error = err.Error()
		result.Failed++
		m.log.Error().Err(err).
			Str("account", pos.AccountID).
			Str("symbol", pos.Symbol).
			Str("trigger", string(trigger)).
			Msg("Failed to place exit order")
	} else {
		result.Triggered++
		m.log.Info().
			Str("account", pos.AccountID).
			Str("symbol", pos.Symbol).
			Str("trigger", string(trigger)).
			Float64("price", price).
			Float64("level", level).
			Str("order_id", exit.OrderID).
			Msg("Exit order placed")
	}

	result.Exits = append(result.Exits, exit)
	m.eventManager.EmitTyped("monitor", &events.ExitTriggeredData{
		AccountID:    pos.AccountID,
		Symbol:       pos.Symbol,
		Trigger:      string(trigger),
		OrderID:      exit.OrderID,
		Error:        exit.Error,
		Quantity:     exit.Quantity,
		CurrentPrice: price,
		Level:        level,
	})
}

func (m *Monitor) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.priceTimeout)
	defer cancel()

	price, err := m.prices.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, &domain.MarketDataUnavailableError{Symbol: symbol, Err: fmt.Errorf("non-positive price %.4f", price)}
	}
	return price, nil
}

// crossed reports which exit level price has reached. The stop wins when both have.
func crossed(pos *domain.Position, price float64) (Trigger, float64, bool) {
	if pos.StopLossPrice != nil && price <= *pos.StopLossPrice {
		return TriggerStopLoss, *pos.StopLossPrice, true
	}
	if pos.TakeProfitPrice != nil && price >= *pos.TakeProfitPrice {
		return TriggerTakeProfit, *pos.TakeProfitPrice, true
	}
	return "", 0, false
}

func reasoning(trigger Trigger, price float64) string {
	if trigger == TriggerStopLoss {
		return fmt.Sprintf("Stop loss triggered at $%.2f", price)
	}
	return fmt.Sprintf("Take profit triggered at $%.2f", price)
}
