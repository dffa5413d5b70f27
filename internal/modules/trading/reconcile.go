package trading

import (
	"fmt"
	"math"

	"github.com/aristath/tradeguard/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// priceTolerance absorbs float rounding when comparing a stored average to the
// one recomputed from executions
const priceTolerance = 1e-6

// FillTotals are the order fill figures derived from its executions
type FillTotals struct {
	FilledQuantity   int64
	AverageFillPrice float64
	Commission       float64
	Notional         float64
}

// SumExecutions derives filled quantity, average price and commission from executions
func SumExecutions(executions []domain.Execution) FillTotals {
	if len(executions) == 0 {
		return FillTotals{}
	}

	quantities := make([]float64, len(executions))
	prices := make([]float64, len(executions))
	commissions := make([]float64, len(executions))
	var filled int64
	for i, e := range executions {
		quantities[i] = float64(e.Quantity)
		prices[i] = e.Price
		commissions[i] = e.Commission
		filled += e.Quantity
	}

	notional := floats.Dot(quantities, prices)
	totals := FillTotals{
		FilledQuantity: filled,
		Commission:     floats.Sum(commissions),
		Notional:       notional,
	}
	if filled > 0 {
		totals.AverageFillPrice = notional / floats.Sum(quantities)
	}
	return totals
}

// Reconcile checks an order's stored fill state against its executions
func Reconcile(order *domain.Order, executions []domain.Execution) error {
	totals := SumExecutions(executions)

	if totals.FilledQuantity != order.FilledQuantity {
		return &domain.ConsistencyError{
			AccountID: order.AccountID,
			Symbol:    order.Symbol,
			OrderID:   order.ID,
			Detail: fmt.Sprintf("filled_quantity %d does not match executions total %d",
				order.FilledQuantity, totals.FilledQuantity),
		}
	}
	if totals.FilledQuantity > order.Quantity {
		return &domain.ConsistencyError{
			AccountID: order.AccountID,
			Symbol:    order.Symbol,
			OrderID:   order.ID,
			Detail:    fmt.Sprintf("executions total %d exceeds order quantity %d", totals.FilledQuantity, order.Quantity),
		}
	}

	if totals.FilledQuantity == 0 {
		if order.AverageFillPrice != nil {
			return &domain.ConsistencyError{
				AccountID: order.AccountID,
				Symbol:    order.Symbol,
				OrderID:   order.ID,
				Detail:    "average_fill_price set without executions",
			}
		}
		return nil
	}

	if order.AverageFillPrice == nil || math.Abs(*order.AverageFillPrice-totals.AverageFillPrice) > priceTolerance {
		stored := "null"
		if order.AverageFillPrice != nil {
			stored = fmt.Sprintf("%.6f", *order.AverageFillPrice)
		}
		return &domain.ConsistencyError{
			AccountID: order.AccountID,
			Symbol:    order.Symbol,
			OrderID:   order.ID,
			Detail: fmt.Sprintf("average_fill_price %s does not match executions average %.6f",
				stored, totals.AverageFillPrice),
		}
	}
	return nil
}
