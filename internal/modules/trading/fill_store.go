package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FillOutcome describes what recording one fill changed
type FillOutcome struct {
	Order     *domain.Order
	Execution *domain.Execution
	Position  *domain.Position
	// Duplicate is set when the broker execution was already recorded; nothing changed
	Duplicate      bool
	PositionOpened bool
	PositionClosed bool
}

// FillStore is the only writer of executions and fill-driven position changes.
// Each fill is recorded in a single ledger transaction: execution, order fill state
// and position move together or not at all.
type FillStore struct {
	ledgerDB   *sql.DB
	orders     *OrderRepository
	executions *ExecutionRepository
	positions  portfolio.PositionRepositoryInterface
	log        zerolog.Logger
}

// NewFillStore creates a new fill store
func NewFillStore(
	ledgerDB *sql.DB,
	orders *OrderRepository,
	executions *ExecutionRepository,
	positions portfolio.PositionRepositoryInterface,
	log zerolog.Logger,
) *FillStore {
	return &FillStore{
		ledgerDB:   ledgerDB,
		orders:     orders,
		executions: executions,
		positions:  positions,
		log:        log.With().Str("component", "fill_store").Logger(),
	}
}

// RecordFill applies fill to the order and its position.
//
// Paper orders accept their single fill from PENDING; live orders only from
// SUBMITTED or PARTIAL. A fill carrying an already recorded broker execution id is
// reported as Duplicate without changes.
func (s *FillStore) RecordFill(orderID string, fill domain.Fill, now time.Time) (*FillOutcome, error) {
	if fill.Quantity <= 0 {
		return nil, fmt.Errorf("%w: fill quantity must be positive", domain.ErrInvalidOrder)
	}
	if fill.Price <= 0 {
		return nil, fmt.Errorf("%w: fill price must be positive", domain.ErrInvalidOrder)
	}
	if fill.Commission < 0 {
		return nil, fmt.Errorf("%w: commission cannot be negative", domain.ErrInvalidOrder)
	}
	now = now.UTC()
	if fill.ExecutedAt.IsZero() {
		fill.ExecutedAt = now
	}

	var outcome *FillOutcome
	err := database.WithTransaction(s.ledgerDB, func(tx *sql.Tx) error {
		var err error
		outcome, err = s.recordFillTx(tx, orderID, fill, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *FillStore) recordFillTx(tx *sql.Tx, orderID string, fill domain.Fill, now time.Time) (*FillOutcome, error) {
	order, err := s.orders.GetByIDTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if fill.BrokerExecutionID != "" {
		exists, err := s.executions.ExistsTx(tx, order.ID, fill.BrokerExecutionID)
		if err != nil {
			return nil, err
		}
		if exists {
			return &FillOutcome{Order: order, Duplicate: true}, nil
		}
	}

	fillable := order.Status.AcceptsFills()
	if order.IsPaper {
		fillable = order.Status == domain.OrderStatusPending
	}
	if !fillable {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotFillable, order.ID, order.Status)
	}

	if fill.Quantity > order.RemainingQuantity() {
		return nil, &domain.ConsistencyError{
			AccountID: order.AccountID,
			Symbol:    order.Symbol,
			OrderID:   order.ID,
			Detail: fmt.Sprintf("fill of %d exceeds remaining quantity %d (ordered %d, filled %d)",
				fill.Quantity, order.RemainingQuantity(), order.Quantity, order.FilledQuantity),
		}
	}

	exec := &domain.Execution{
		ExecutedAt: fill.ExecutedAt.UTC(),
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
	}
	if fill.BrokerExecutionID != "" {
		exec.BrokerExecutionID = domain.StringPtr(fill.BrokerExecutionID)
	}
	if err := s.executions.CreateTx(tx, exec); err != nil {
		return nil, err
	}

	// Fill state is always derived from the full execution list
	executions, err := s.executions.ListByOrderTx(tx, order.ID)
	if err != nil {
		return nil, err
	}
	totals := SumExecutions(executions)
	order.FilledQuantity = totals.FilledQuantity
	order.AverageFillPrice = domain.Float64Ptr(totals.AverageFillPrice)
	if order.FilledQuantity == order.Quantity {
		order.Status = domain.OrderStatusFilled
		order.FilledAt = domain.TimePtr(now)
	} else {
		order.Status = domain.OrderStatusPartial
	}
	if err := Reconcile(order, executions); err != nil {
		return nil, err
	}

	outcome := &FillOutcome{Order: order, Execution: exec}
	if err := s.applyToPosition(tx, order, fill, now, outcome); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateTx(tx, order); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("account", order.AccountID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Str("status", string(order.Status)).
		Msg("Fill recorded")

	return outcome, nil
}

func (s *FillStore) applyToPosition(tx *sql.Tx, order *domain.Order, fill domain.Fill, now time.Time, outcome *FillOutcome) error {
	pos, err := s.positions.GetOpenTx(tx, order.AccountID, order.InstrumentID)
	if err != nil {
		return err
	}

	if order.Side.IsBuy() {
		if pos == nil {
			pos = portfolio.NewPosition(order.AccountID, &domain.Instrument{ID: order.InstrumentID, Symbol: order.Symbol})
			outcome.PositionOpened = true
		}
		if err := portfolio.ApplyBuyFill(pos, fill.Quantity, fill.Price, now); err != nil {
			return err
		}
		// Exit levels follow the latest buy that carried them
		if order.StopLossPrice != nil {
			pos.StopLossPrice = domain.Float64Ptr(*order.StopLossPrice)
		}
		if order.TakeProfitPrice != nil {
			pos.TakeProfitPrice = domain.Float64Ptr(*order.TakeProfitPrice)
		}
	} else {
		if pos == nil {
			return &domain.ConsistencyError{
				AccountID: order.AccountID,
				Symbol:    order.Symbol,
				OrderID:   order.ID,
				Detail:    "sell fill without an open position",
			}
		}
		if err := portfolio.ApplySellFill(pos, fill.Quantity, fill.Price, now); err != nil {
			var ce *domain.ConsistencyError
			if errors.As(err, &ce) {
				ce.OrderID = order.ID
			}
			return err
		}
		outcome.PositionClosed = !pos.IsOpen
	}

	pos.UpdatedAt = now
	if err := s.positions.SaveTx(tx, pos); err != nil {
		return err
	}
	outcome.Position = pos
	return nil
}
