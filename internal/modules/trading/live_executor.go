package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultBrokerTimeout bounds every broker call when no timeout is configured
const DefaultBrokerTimeout = 15 * time.Second

// SubmitResult classifies a live placement
type SubmitResult string

const (
	SubmitAccepted  SubmitResult = "accepted"
	SubmitRejected  SubmitResult = "rejected"
	SubmitAmbiguous SubmitResult = "ambiguous"
)

// LiveExecutor routes orders to the broker. It never holds a position lock and never
// writes fills; fills come back through ApplyExecution.
type LiveExecutor struct {
	broker  domain.BrokerClient
	timeout time.Duration
	log     zerolog.Logger
}

// NewLiveExecutor creates a live executor. A zero timeout uses DefaultBrokerTimeout.
func NewLiveExecutor(broker domain.BrokerClient, timeout time.Duration, log zerolog.Logger) *LiveExecutor {
	if timeout <= 0 {
		timeout = DefaultBrokerTimeout
	}
	return &LiveExecutor{
		broker:  broker,
		timeout: timeout,
		log:     log.With().Str("component", "live_executor").Logger(),
	}
}

// Submit places order at the broker and updates it in memory.
//
// Accepted: broker id set, status SUBMITTED. Rejected: status REJECTED.
// Ambiguous: order untouched (still PENDING) and the error returned.
func (e *LiveExecutor) Submit(ctx context.Context, order *domain.Order, now time.Time) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.broker.PlaceOrder(ctx, domain.BrokerOrderRequest{
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Type:       order.Type,
		Side:       order.Side,
		Quantity:   order.Quantity,
	})
	if err != nil {
		if domain.IsBrokerRejection(err) {
			order.Status = domain.OrderStatusRejected
			e.log.Warn().Err(err).Str("order_id", order.ID).Str("symbol", order.Symbol).Msg("Broker rejected order")
			return SubmitRejected, err
		}
		e.log.Error().Err(err).Str("order_id", order.ID).Str("symbol", order.Symbol).
			Msg("Order placement outcome unknown, leaving order pending")
		return SubmitAmbiguous, asBrokerError("place_order", err)
	}
	if result == nil || result.OrderID == "" {
		return SubmitAmbiguous, &domain.BrokerError{Op: "place_order", Message: "broker returned no order id"}
	}

	order.BrokerOrderID = domain.StringPtr(result.OrderID)
	order.Status = domain.OrderStatusSubmitted
	order.SubmittedAt = domain.TimePtr(now.UTC())

	e.log.Info().
		Str("order_id", order.ID).
		Str("broker_order_id", result.OrderID).
		Str("state", result.State).
		Msg("Order submitted to broker")
	return SubmitAccepted, nil
}

// Cancel cancels the order at the broker. When the broker reports the order already
// filled, ErrCancelTooLate is returned.
func (e *LiveExecutor) Cancel(ctx context.Context, order *domain.Order) error {
	if order.BrokerOrderID == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cancelErr := e.broker.CancelOrder(ctx, order.AccountID, *order.BrokerOrderID)
	if cancelErr == nil {
		return nil
	}

	status, err := e.broker.GetOrderStatus(ctx, order.AccountID, *order.BrokerOrderID)
	if err == nil && status != nil && status.Filled {
		return domain.ErrCancelTooLate
	}
	return asBrokerError("cancel_order", cancelErr)
}

// FetchExecutions returns the broker's fills and status for a submitted order
func (e *LiveExecutor) FetchExecutions(ctx context.Context, order *domain.Order) ([]domain.Fill, *domain.BrokerOrderStatus, error) {
	if order.BrokerOrderID == nil {
		return nil, nil, fmt.Errorf("order %s has no broker order id", order.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	brokerExecs, err := e.broker.GetExecutions(ctx, order.AccountID, *order.BrokerOrderID)
	if err != nil {
		return nil, nil, asBrokerError("get_executions", err)
	}
	status, err := e.broker.GetOrderStatus(ctx, order.AccountID, *order.BrokerOrderID)
	if err != nil {
		return nil, nil, asBrokerError("get_order_status", err)
	}

	fills := make([]domain.Fill, 0, len(brokerExecs))
	for _, be := range brokerExecs {
		fills = append(fills, domain.Fill{
			ExecutedAt:        be.ExecutedAt,
			BrokerExecutionID: be.ExecutionID,
			Quantity:          be.Quantity,
			Price:             be.Price,
			Commission:        be.Commission,
		})
	}
	return fills, status, nil
}

// Connected reports the broker connection state
func (e *LiveExecutor) Connected() bool {
	return e.broker.IsConnected()
}

func asBrokerError(op string, err error) error {
	var be *domain.BrokerError
	if errors.As(err, &be) {
		return err
	}
	return &domain.BrokerError{Op: op, Err: err}
}
