// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderSide represents the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderSideFromString parses a side case-insensitively
func OrderSideFromString(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	}
	return "", fmt.Errorf("invalid order side: %q", s)
}

// IsBuy reports whether the side increases exposure
func (s OrderSide) IsBuy() bool {
	return s == OrderSideBuy
}

// OrderType represents the execution style of an order
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderTypeFromString parses an order type. Empty input means MARKET.
func OrderTypeFromString(s string) (OrderType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "", string(OrderTypeMarket):
		return OrderTypeMarket, nil
	case string(OrderTypeLimit):
		return OrderTypeLimit, nil
	case string(OrderTypeStop):
		return OrderTypeStop, nil
	case string(OrderTypeStopLimit), "STOPLIMIT":
		return OrderTypeStopLimit, nil
	}
	return "", fmt.Errorf("invalid order type: %q", s)
}

// RequiresLimitPrice reports whether the type needs a limit price
func (t OrderType) RequiresLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether the type needs a stop price
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are possible
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// IsCancellable reports whether a cancel request may be honoured
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusSubmitted
}

// AcceptsFills reports whether executions may still be applied
func (s OrderStatus) AcceptsFills() bool {
	return s == OrderStatusSubmitted || s == OrderStatusPartial
}

// Instrument represents a tradable security
type Instrument struct {
	CreatedAt time.Time `json:"created_at"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"`
	ID        int64     `json:"id"`
}

// RiskSettings holds per-account risk limits. Read-only to the engine.
type RiskSettings struct {
	UpdatedAt             time.Time `json:"updated_at"`
	AccountID             string    `json:"account_id"`
	PositionSizePct       float64   `json:"position_size_pct"`
	StopLossPct           float64   `json:"stop_loss_pct"`
	DailyLossLimitPct     float64   `json:"daily_loss_limit_pct"`
	MinCashReservePct     float64   `json:"min_cash_reserve_pct"`
	MinRiskRewardRatio    float64   `json:"min_risk_reward_ratio"`
	MaxOpenPositions      int       `json:"max_open_positions"`
	PaperTradingEnabled   bool      `json:"paper_trading_enabled"`
	AutoTradingEnabled    bool      `json:"auto_trading_enabled"`
	RequireStopLoss       bool      `json:"require_stop_loss"`
	CircuitBreakerEnabled bool      `json:"circuit_breaker_enabled"`
}

// DefaultRiskSettings returns the stock limits for a new account
func DefaultRiskSettings(accountID string) RiskSettings {
	return RiskSettings{
		AccountID:             accountID,
		PositionSizePct:       20,
		StopLossPct:           5,
		DailyLossLimitPct:     5,
		MaxOpenPositions:      10,
		MinCashReservePct:     10,
		MinRiskRewardRatio:    2.0,
		PaperTradingEnabled:   true,
		AutoTradingEnabled:    false,
		RequireStopLoss:       true,
		CircuitBreakerEnabled: true,
	}
}

// PortfolioSnapshot is a daily point-in-time aggregate of an account
type PortfolioSnapshot struct {
	SnapshotDate   time.Time `json:"snapshot_date"`
	CreatedAt      time.Time `json:"created_at"`
	AccountID      string    `json:"account_id"`
	TotalValue     float64   `json:"total_value"`
	CashBalance    float64   `json:"cash_balance"`
	PositionsValue float64   `json:"positions_value"`
	DailyPnL       float64   `json:"daily_pnl"`
	DailyPnLPct    float64   `json:"daily_pnl_pct"`
	TotalPnL       float64   `json:"total_pnl"`
	TotalPnLPct    float64   `json:"total_pnl_pct"`
	ID             int64     `json:"id"`
	NumPositions   int       `json:"num_positions"`
}

// IsFor reports whether the snapshot covers the calendar day of t (UTC)
func (s *PortfolioSnapshot) IsFor(t time.Time) bool {
	y1, m1, d1 := s.SnapshotDate.UTC().Date()
	y2, m2, d2 := t.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Position is the net holding of one instrument in one account
type Position struct {
	UpdatedAt        time.Time  `json:"updated_at"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	StopLossPrice    *float64   `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  *float64   `json:"take_profit_price,omitempty"`
	AccountID        string     `json:"account_id"`
	Symbol           string     `json:"symbol"`
	ID               int64      `json:"id"`
	InstrumentID     int64      `json:"instrument_id"`
	Quantity         int64      `json:"quantity"`
	AverageCost      float64    `json:"average_cost"`
	CurrentPrice     float64    `json:"current_price"`
	MarketValue      float64    `json:"market_value"`
	UnrealizedPnL    float64    `json:"unrealized_pnl"`
	UnrealizedPnLPct float64    `json:"unrealized_pnl_pct"`
	RealizedPnL      float64    `json:"realized_pnl"`
	IsOpen           bool       `json:"is_open"`
}

// HasExitLevels reports whether a stop or target is attached
func (p *Position) HasExitLevels() bool {
	return p.StopLossPrice != nil || p.TakeProfitPrice != nil
}

// Order is a request to trade, owned by the order manager after creation
type Order struct {
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	SubmittedAt      *time.Time  `json:"submitted_at,omitempty"`
	FilledAt         *time.Time  `json:"filled_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
	LimitPrice       *float64    `json:"limit_price,omitempty"`
	StopPrice        *float64    `json:"stop_price,omitempty"`
	StopLossPrice    *float64    `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  *float64    `json:"take_profit_price,omitempty"`
	AverageFillPrice *float64    `json:"average_fill_price,omitempty"`
	BrokerOrderID    *string     `json:"broker_order_id,omitempty"`
	DecisionID       *string     `json:"decision_id,omitempty"`
	ID               string      `json:"id"`
	AccountID        string      `json:"account_id"`
	Symbol           string      `json:"symbol"`
	Type             OrderType   `json:"order_type"`
	Side             OrderSide   `json:"side"`
	Status           OrderStatus `json:"status"`
	Reasoning        string      `json:"reasoning,omitempty"`
	InstrumentID     int64       `json:"instrument_id"`
	Quantity         int64       `json:"quantity"`
	FilledQuantity   int64       `json:"filled_quantity"`
	TradeValue       float64     `json:"trade_value"`
	PositionSizePct  float64     `json:"position_size_pct"`
	RiskAmount       float64     `json:"risk_amount"`
	IsPaper          bool        `json:"is_paper_trade"`
}

// RemainingQuantity returns the unfilled part of the order
func (o *Order) RemainingQuantity() int64 {
	return o.Quantity - o.FilledQuantity
}

// Execution is an immutable fill record
type Execution struct {
	ExecutedAt        time.Time `json:"executed_at"`
	BrokerExecutionID *string   `json:"broker_execution_id,omitempty"`
	ID                string    `json:"id"`
	OrderID           string    `json:"order_id"`
	Quantity          int64     `json:"quantity"`
	Price             float64   `json:"price"`
	Commission        float64   `json:"commission"`
}

// Fill is an incoming quantity-at-price event not yet recorded
type Fill struct {
	ExecutedAt        time.Time
	BrokerExecutionID string
	Quantity          int64
	Price             float64
	Commission        float64
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 {
	return &v
}

// StringPtr returns a pointer to v
func StringPtr(v string) *string {
	return &v
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}
