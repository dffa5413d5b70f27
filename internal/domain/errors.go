package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when no order matches the id
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotCancellable is returned when the order left PENDING/SUBMITTED
	ErrOrderNotCancellable = errors.New("order not cancellable")
	// ErrCancelTooLate is returned when the broker filled before the cancel landed
	ErrCancelTooLate = errors.New("cancel too late: order already filled at broker")
	// ErrOrderNotFillable is returned when a fill arrives for an order that cannot take one
	ErrOrderNotFillable = errors.New("order does not accept fills")
	// ErrInvalidOrder is returned for malformed order requests
	ErrInvalidOrder = errors.New("invalid order")
)

// MarketDataUnavailableError means no usable price could be obtained.
// There is never a fallback price.
type MarketDataUnavailableError struct {
	Err    error
	Symbol string
}

func (e *MarketDataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("market data unavailable for %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("market data unavailable for %s", e.Symbol)
}

func (e *MarketDataUnavailableError) Unwrap() error {
	return e.Err
}

// BrokerError wraps a brokerage transport, authorization or rejection failure.
// Rejected is set only when the broker explicitly refused the request; any other
// failure leaves the outcome ambiguous.
type BrokerError struct {
	Err        error
	Op         string
	Message    string
	StatusCode int
	Rejected   bool
}

func (e *BrokerError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("broker %s failed (status %d): %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("broker %s failed: %s", e.Op, msg)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// ConsistencyError signals a broken ledger invariant. The mutation that detected it
// must be aborted and the order left as is.
type ConsistencyError struct {
	AccountID string
	Symbol    string
	OrderID   string
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation (account=%s symbol=%s order=%s): %s",
		e.AccountID, e.Symbol, e.OrderID, e.Detail)
}

// IsBrokerRejection reports whether err is an explicit broker rejection
func IsBrokerRejection(err error) bool {
	var be *BrokerError
	return errors.As(err, &be) && be.Rejected
}

// IsConsistencyError reports whether err carries a ConsistencyError
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsMarketDataUnavailable reports whether err carries a MarketDataUnavailableError
func IsMarketDataUnavailable(err error) bool {
	var me *MarketDataUnavailableError
	return errors.As(err, &me)
}
