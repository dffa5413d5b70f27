// Package risk validates proposed trades against account risk limits.
//
// Validation is a pure function of its inputs: no I/O, no clock, no persistence.
// Checks run in a fixed order and the first failure wins.
package risk

import (
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Stop-loss distance band, in percent of entry price
const (
	MinStopLossDistancePct = 1.0
	MaxStopLossDistancePct = 20.0
)

// SnapshotPolicy decides what happens when the portfolio snapshot is missing or not
// dated today
type SnapshotPolicy string

const (
	// SnapshotPolicyFailClosed rejects buys without a snapshot for today
	SnapshotPolicyFailClosed SnapshotPolicy = "fail_closed"
	// SnapshotPolicyDegrade uses zero values for missing data
	SnapshotPolicyDegrade SnapshotPolicy = "degrade"
)

// ParseSnapshotPolicy parses a policy name, defaulting to fail closed
func ParseSnapshotPolicy(s string) (SnapshotPolicy, error) {
	switch SnapshotPolicy(s) {
	case "", SnapshotPolicyFailClosed:
		return SnapshotPolicyFailClosed, nil
	case SnapshotPolicyDegrade:
		return SnapshotPolicyDegrade, nil
	}
	return "", fmt.Errorf("invalid snapshot policy: %q", s)
}

// Snapshot is the validator's view of the portfolio snapshot
type Snapshot struct {
	TotalValue  float64
	CashBalance float64
	DailyPnLPct float64
	Missing     bool // no snapshot exists for the account
	Stale       bool // latest snapshot is not for today
}

// SnapshotAt builds the validator view of the latest snapshot as seen at now
func SnapshotAt(latest *domain.PortfolioSnapshot, now time.Time) Snapshot {
	if latest == nil {
		return Snapshot{Missing: true, Stale: true}
	}
	snap := Snapshot{
		TotalValue:  latest.TotalValue,
		CashBalance: latest.CashBalance,
		DailyPnLPct: latest.DailyPnLPct,
	}
	if !latest.IsFor(now) {
		// Daily P&L only counts for the day it was recorded on
		snap.Stale = true
		snap.DailyPnLPct = 0
	}
	return snap
}

// Request is a proposed trade at a resolved price
type Request struct {
	StopLossPrice   *float64
	TakeProfitPrice *float64
	Symbol          string
	Side            domain.OrderSide
	Quantity        int64
	Price           float64
}

// Metrics are computed on acceptance and persisted on the order
type Metrics struct {
	TradeValue      float64 `json:"trade_value"`
	PositionSizePct float64 `json:"position_size_pct"`
	RiskAmount      float64 `json:"risk_amount"`
	PortfolioValue  float64 `json:"portfolio_value"`
}

// Options configure the validator
type Options struct {
	SnapshotPolicy SnapshotPolicy
}

// Validator applies account risk limits to trade requests
type Validator struct {
	opts Options
}

// NewValidator creates a validator
func NewValidator(opts Options) *Validator {
	if opts.SnapshotPolicy == "" {
		opts.SnapshotPolicy = SnapshotPolicyFailClosed
	}
	return &Validator{opts: opts}
}

// Policy returns the configured snapshot policy
func (v *Validator) Policy() SnapshotPolicy {
	return v.opts.SnapshotPolicy
}

// Validate checks req and returns metrics on success or a *Rejection.
//
// existing is the open position for the instrument, or nil. For sells its Quantity must
// already exclude shares reserved by other active sell orders.
func (v *Validator) Validate(
	settings domain.RiskSettings,
	snapshot Snapshot,
	openPositions int,
	existing *domain.Position,
	req Request,
) (*Metrics, error) {
	if req.Quantity <= 0 {
		return nil, reject(ReasonInvalidRequest, "quantity must be positive, got %d", req.Quantity)
	}
	if req.Price <= 0 {
		return nil, reject(ReasonInvalidRequest, "price must be positive, got %.4f", req.Price)
	}

	isBuy := req.Side.IsBuy()
	price := decimal.NewFromFloat(req.Price)
	tradeValue := price.Mul(decimal.NewFromInt(req.Quantity))

	if isBuy && v.opts.SnapshotPolicy == SnapshotPolicyFailClosed {
		if snapshot.Missing {
			return nil, reject(ReasonSnapshotUnavailable, "no portfolio snapshot available for validation")
		}
		if snapshot.Stale {
			return nil, reject(ReasonSnapshotStale, "portfolio snapshot is not from today")
		}
	}

	portfolioValue := decimal.NewFromFloat(snapshot.TotalValue)
	cashBalance := decimal.NewFromFloat(snapshot.CashBalance)

	// 1. Circuit breaker
	if isBuy && settings.CircuitBreakerEnabled && snapshot.DailyPnLPct < -settings.DailyLossLimitPct {
		return nil, reject(ReasonCircuitBreaker,
			"circuit breaker triggered: daily loss %.1f%% exceeds limit of %.1f%%",
			snapshot.DailyPnLPct, settings.DailyLossLimitPct)
	}

	// 2. Max positions
	if isBuy && openPositions >= settings.MaxOpenPositions {
		return nil, reject(ReasonMaxPositions, "maximum positions (%d) reached", settings.MaxOpenPositions)
	}

	// 3. Position sizing
	if isBuy {
		if portfolioValue.IsZero() {
			return nil, reject(ReasonPortfolioValueZero, "portfolio value is zero")
		}
		sizePct := tradeValue.Mul(decimal.NewFromInt(100)).Div(portfolioValue)
		if sizePct.GreaterThan(decimal.NewFromFloat(settings.PositionSizePct)) {
			return nil, reject(ReasonPositionSize,
				"position size %.1f%% exceeds limit of %.1f%%",
				sizePct.InexactFloat64(), settings.PositionSizePct)
		}
	}

	// 4. Sell-ability
	if !isBuy {
		if existing == nil || !existing.IsOpen {
			return nil, reject(ReasonNoOpenPosition, "no open position for %s", req.Symbol)
		}
		if existing.Quantity < req.Quantity {
			return nil, reject(ReasonInsufficientShares,
				"insufficient shares: have %d, trying to sell %d", existing.Quantity, req.Quantity)
		}
	}

	// 5. Cash availability
	if isBuy {
		reserve := portfolioValue.Mul(decimal.NewFromFloat(settings.MinCashReservePct)).Div(decimal.NewFromInt(100))
		available := cashBalance.Sub(reserve)
		if tradeValue.GreaterThan(available) {
			return nil, reject(ReasonInsufficientCash,
				"insufficient cash: need $%s, have $%s available (after $%s reserve)",
				tradeValue.StringFixed(2), available.StringFixed(2), reserve.StringFixed(2))
		}
	}

	// 6. Stop-loss presence and sanity
	if req.StopLossPrice == nil {
		if isBuy && settings.RequireStopLoss {
			return nil, reject(ReasonStopLossRequired, "stop loss is required but not provided")
		}
	} else {
		distancePct := decimal.NewFromFloat(*req.StopLossPrice).Sub(price).Abs().
			Mul(decimal.NewFromInt(100)).Div(price)
		if distancePct.LessThan(decimal.NewFromFloat(MinStopLossDistancePct)) {
			return nil, reject(ReasonStopLossTooTight, "stop loss too tight (< %.0f%%)", MinStopLossDistancePct)
		}
		if distancePct.GreaterThan(decimal.NewFromFloat(MaxStopLossDistancePct)) {
			return nil, reject(ReasonStopLossTooWide, "stop loss too wide (> %.0f%%)", MaxStopLossDistancePct)
		}
	}

	// 7. Risk/reward
	if req.StopLossPrice != nil && req.TakeProfitPrice != nil {
		risk := price.Sub(decimal.NewFromFloat(*req.StopLossPrice)).Abs()
		reward := decimal.NewFromFloat(*req.TakeProfitPrice).Sub(price).Abs()
		if risk.IsZero() {
			return nil, reject(ReasonZeroRisk, "risk cannot be zero")
		}
		ratio := reward.Div(risk)
		if ratio.LessThan(decimal.NewFromFloat(settings.MinRiskRewardRatio)) {
			return nil, reject(ReasonRiskReward,
				"risk/reward ratio %.2f is below minimum %.2f",
				ratio.InexactFloat64(), settings.MinRiskRewardRatio)
		}
	}

	metrics := &Metrics{
		TradeValue:     tradeValue.InexactFloat64(),
		PortfolioValue: portfolioValue.InexactFloat64(),
	}
	if portfolioValue.IsPositive() {
		metrics.PositionSizePct = tradeValue.Mul(decimal.NewFromInt(100)).Div(portfolioValue).InexactFloat64()
	}
	if req.StopLossPrice != nil {
		metrics.RiskAmount = price.Sub(decimal.NewFromFloat(*req.StopLossPrice)).Abs().
			Mul(decimal.NewFromInt(req.Quantity)).InexactFloat64()
	}

	return metrics, nil
}
