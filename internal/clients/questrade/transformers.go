package questrade

import (
	"strconv"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
)

// Questrade order states
const (
	StateAccepted        = "Accepted"
	StatePartial         = "Partial"
	StateExecuted        = "Executed"
	StateCanceled        = "Canceled"
	StatePartialCanceled = "PartialCanceled"
	StateExpired         = "Expired"
	StateRejected        = "Rejected"
	StateFailed          = "Failed"
)

func orderTypeToQuestrade(t domain.OrderType) string {
	switch t {
	case domain.OrderTypeLimit:
		return "Limit"
	case domain.OrderTypeStop:
		return "Stop"
	case domain.OrderTypeStopLimit:
		return "StopLimit"
	default:
		return "Market"
	}
}

func sideToAction(s domain.OrderSide) string {
	if s == domain.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func isRejectedState(state string) bool {
	return state == StateRejected || state == StateFailed
}

// transformOrderStatus maps a broker order to the broker-agnostic status
func transformOrderStatus(o *Order) *domain.BrokerOrderStatus {
	status := &domain.BrokerOrderStatus{
		OrderID:        strconv.FormatInt(o.ID, 10),
		State:          o.State,
		FilledQuantity: o.FilledQuantity,
	}
	if o.AvgExecPrice != nil {
		status.AvgFillPrice = *o.AvgExecPrice
	}

	switch o.State {
	case StateExecuted:
		status.Filled = true
	case StateCanceled, StatePartialCanceled, StateExpired:
		status.Cancelled = true
	case StateRejected, StateFailed:
		status.Rejected = true
	}
	return status
}

// transformExecution maps a broker fill; every fee is folded into the commission
func transformExecution(e Execution, fallback time.Time) domain.BrokerExecution {
	executedAt, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		executedAt = fallback
	}
	return domain.BrokerExecution{
		ExecutedAt:  executedAt.UTC(),
		ExecutionID: strconv.FormatInt(e.ID, 10),
		OrderID:     strconv.FormatInt(e.OrderID, 10),
		Quantity:    e.Quantity,
		Price:       e.Price,
		Commission:  e.Commission + e.ExecutionFee + e.SecFee + e.CanadianExecutionFee,
	}
}

func transformQuote(symbol string, q *Quote) *domain.BrokerQuote {
	quote := &domain.BrokerQuote{
		Symbol:    symbol,
		Timestamp: q.LastTradeTime,
	}
	if q.LastTradePrice != nil {
		quote.Price = *q.LastTradePrice
	}
	if q.BidPrice != nil {
		quote.Bid = *q.BidPrice
	}
	if q.AskPrice != nil {
		quote.Ask = *q.AskPrice
	}
	return quote
}
