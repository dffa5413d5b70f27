package portfolio

import (
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// NewPosition returns an empty, not-yet-opened position for an account and instrument.
// The first buy fill opens it.
func NewPosition(accountID string, instrument *domain.Instrument) *domain.Position {
	return &domain.Position{
		AccountID:    accountID,
		InstrumentID: instrument.ID,
		Symbol:       instrument.Symbol,
	}
}

// ApplyBuyFill adds a buy fill to the position and recomputes the weighted average cost.
// A position at quantity 0 is (re)opened at the fill price.
func ApplyBuyFill(pos *domain.Position, qty int64, price float64, now time.Time) error {
	if pos == nil {
		return fmt.Errorf("position is nil")
	}
	if qty <= 0 {
		return fmt.Errorf("buy fill quantity must be positive, got %d", qty)
	}
	if price <= 0 {
		return fmt.Errorf("buy fill price must be positive, got %.4f", price)
	}

	fillQty := decimal.NewFromInt(qty)
	fillPrice := decimal.NewFromFloat(price)

	if pos.Quantity == 0 {
		pos.Quantity = qty
		pos.AverageCost = price
		pos.IsOpen = true
		pos.OpenedAt = domain.TimePtr(now)
		pos.ClosedAt = nil
	} else {
		oldQty := decimal.NewFromInt(pos.Quantity)
		totalCost := oldQty.Mul(decimal.NewFromFloat(pos.AverageCost)).Add(fillQty.Mul(fillPrice))
		newQty := oldQty.Add(fillQty)
		pos.Quantity = newQty.IntPart()
		pos.AverageCost = totalCost.Div(newQty).InexactFloat64()
	}

	recompute(pos, price)
	pos.UpdatedAt = now
	return nil
}

// ApplySellFill removes a sell fill from the position and books realized P&L.
// Average cost is never changed by a sell. Selling more than is held returns a
// *domain.ConsistencyError and leaves the position untouched.
func ApplySellFill(pos *domain.Position, qty int64, price float64, now time.Time) error {
	if pos == nil {
		return fmt.Errorf("position is nil")
	}
	if qty <= 0 {
		return fmt.Errorf("sell fill quantity must be positive, got %d", qty)
	}
	if price <= 0 {
		return fmt.Errorf("sell fill price must be positive, got %.4f", price)
	}
	if !pos.IsOpen || qty > pos.Quantity {
		return &domain.ConsistencyError{
			AccountID: pos.AccountID,
			Symbol:    pos.Symbol,
			Detail:    fmt.Sprintf("sell fill of %d exceeds held quantity %d", qty, pos.Quantity),
		}
	}

	fillPrice := decimal.NewFromFloat(price)
	realized := fillPrice.Sub(decimal.NewFromFloat(pos.AverageCost)).Mul(decimal.NewFromInt(qty))
	pos.RealizedPnL = decimal.NewFromFloat(pos.RealizedPnL).Add(realized).InexactFloat64()
	pos.Quantity -= qty

	if pos.Quantity == 0 {
		pos.IsOpen = false
		pos.ClosedAt = domain.TimePtr(now)
		pos.CurrentPrice = price
		pos.MarketValue = 0
		pos.UnrealizedPnL = 0
		pos.UnrealizedPnLPct = 0
	} else {
		recompute(pos, price)
	}

	pos.UpdatedAt = now
	return nil
}

// MarkToMarket refreshes price-derived fields without touching quantity or cost
func MarkToMarket(pos *domain.Position, price float64, now time.Time) {
	if pos == nil || price <= 0 {
		return
	}
	recompute(pos, price)
	pos.UpdatedAt = now
}

// recompute derives market value and unrealized P&L at price
func recompute(pos *domain.Position, price float64) {
	p := decimal.NewFromFloat(price)
	q := decimal.NewFromInt(pos.Quantity)
	avg := decimal.NewFromFloat(pos.AverageCost)

	pos.CurrentPrice = price
	pos.MarketValue = q.Mul(p).InexactFloat64()
	pos.UnrealizedPnL = p.Sub(avg).Mul(q).InexactFloat64()
	if avg.IsZero() {
		pos.UnrealizedPnLPct = 0
		return
	}
	pos.UnrealizedPnLPct = p.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
