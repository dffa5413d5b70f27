package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// ordersColumns is the column list for the orders table, in scanOrder order
const ordersColumns = `id, account_id, instrument_id, symbol, order_type, side, status, quantity,
	filled_quantity, limit_price, stop_price, stop_loss_price, take_profit_price, average_fill_price,
	trade_value, position_size_pct, risk_amount, broker_order_id, decision_id, reasoning, is_paper,
	created_at, updated_at, submitted_at, filled_at, cancelled_at`

// activeStatuses are statuses that may still produce fills
const activeStatuses = `'PENDING', 'SUBMITTED', 'PARTIAL'`

// OrderRepository handles order database operations (ledger.db)
type OrderRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(ledgerDB *sql.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "order").Logger(),
	}
}

// Create inserts a new order
func (r *OrderRepository) Create(order *domain.Order) error {
	return r.CreateTx(r.ledgerDB, order)
}

// CreateTx inserts a new order on q
func (r *OrderRepository) CreateTx(q database.Queryer, order *domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	_, err := q.Exec(`INSERT INTO orders (`+ordersColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.AccountID,
		order.InstrumentID,
		order.Symbol,
		string(order.Type),
		string(order.Side),
		string(order.Status),
		order.Quantity,
		order.FilledQuantity,
		database.NullFloat(order.LimitPrice),
		database.NullFloat(order.StopPrice),
		database.NullFloat(order.StopLossPrice),
		database.NullFloat(order.TakeProfitPrice),
		database.NullFloat(order.AverageFillPrice),
		order.TradeValue,
		order.PositionSizePct,
		order.RiskAmount,
		database.NullString(order.BrokerOrderID),
		database.NullString(order.DecisionID),
		order.Reasoning,
		database.BoolToInt(order.IsPaper),
		order.CreatedAt.Unix(),
		order.UpdatedAt.Unix(),
		database.NullUnix(order.SubmittedAt),
		database.NullUnix(order.FilledAt),
		database.NullUnix(order.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	r.log.Debug().
		Str("order_id", order.ID).
		Str("account", order.AccountID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Msg("Order created")
	return nil
}

// GetByID returns an order, or nil if not found
func (r *OrderRepository) GetByID(id string) (*domain.Order, error) {
	return r.GetByIDTx(r.ledgerDB, id)
}

// GetByIDTx is GetByID on q
func (r *OrderRepository) GetByIDTx(q database.Queryer, id string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRow("SELECT "+ordersColumns+" FROM orders WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

// GetByBrokerOrderID returns the order carrying a broker order id, or nil if not found
func (r *OrderRepository) GetByBrokerOrderID(brokerOrderID string) (*domain.Order, error) {
	order, err := scanOrder(r.ledgerDB.QueryRow("SELECT "+ordersColumns+" FROM orders WHERE broker_order_id = ?", brokerOrderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by broker id %s: %w", brokerOrderID, err)
	}
	return order, nil
}

// List returns an account's most recent orders, newest first
func (r *OrderRepository) List(accountID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list("SELECT "+ordersColumns+` FROM orders
		WHERE account_id = ? ORDER BY created_at DESC, id LIMIT ?`, accountID, limit)
}

// ListActiveLive returns live orders at the broker that may still fill
func (r *OrderRepository) ListActiveLive() ([]domain.Order, error) {
	return r.list("SELECT " + ordersColumns + ` FROM orders
		WHERE is_paper = 0 AND status IN ('SUBMITTED', 'PARTIAL') AND broker_order_id IS NOT NULL
		ORDER BY created_at`)
}

// ReservedSellQuantity returns the unfilled quantity of active sell orders for an
// instrument. Those shares are spoken for and cannot back another sell.
func (r *OrderRepository) ReservedSellQuantity(accountID string, instrumentID int64) (int64, error) {
	return r.ReservedSellQuantityTx(r.ledgerDB, accountID, instrumentID)
}

// ReservedSellQuantityTx is ReservedSellQuantity on q
func (r *OrderRepository) ReservedSellQuantityTx(q database.Queryer, accountID string, instrumentID int64) (int64, error) {
	var reserved int64
	err := q.QueryRow(`SELECT COALESCE(SUM(quantity - filled_quantity), 0) FROM orders
		WHERE account_id = ? AND instrument_id = ? AND side = 'SELL' AND status IN (`+activeStatuses+`)`,
		accountID, instrumentID,
	).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("failed to sum reserved sell quantity: %w", err)
	}
	return reserved, nil
}

// HasActiveSellOrder reports whether a sell order for the instrument may still fill
func (r *OrderRepository) HasActiveSellOrder(accountID string, instrumentID int64) (bool, error) {
	var count int
	err := r.ledgerDB.QueryRow(`SELECT COUNT(*) FROM orders
		WHERE account_id = ? AND instrument_id = ? AND side = 'SELL' AND status IN (`+activeStatuses+`)`,
		accountID, instrumentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active sell orders: %w", err)
	}
	return count > 0, nil
}

// UpdateTx persists the mutable order fields on q
func (r *OrderRepository) UpdateTx(q database.Queryer, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()

	result, err := q.Exec(`UPDATE orders SET
		status = ?, filled_quantity = ?, average_fill_price = ?, broker_order_id = ?,
		updated_at = ?, submitted_at = ?, filled_at = ?, cancelled_at = ?
		WHERE id = ?`,
		string(order.Status),
		order.FilledQuantity,
		database.NullFloat(order.AverageFillPrice),
		database.NullString(order.BrokerOrderID),
		order.UpdatedAt.Unix(),
		database.NullUnix(order.SubmittedAt),
		database.NullUnix(order.FilledAt),
		database.NullUnix(order.CancelledAt),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update order %s: %w", order.ID, domain.ErrOrderNotFound)
	}
	return nil
}

// Update persists the mutable order fields
func (r *OrderRepository) Update(order *domain.Order) error {
	return r.UpdateTx(r.ledgerDB, order)
}

func (r *OrderRepository) list(query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var orderType, side, status string
	var limitPrice, stopPrice, stopLoss, takeProfit, avgFill sql.NullFloat64
	var brokerOrderID, decisionID sql.NullString
	var isPaper int
	var createdAt, updatedAt int64
	var submittedAt, filledAt, cancelledAt sql.NullInt64

	err := row.Scan(
		&order.ID,
		&order.AccountID,
		&order.InstrumentID,
		&order.Symbol,
		&orderType,
		&side,
		&status,
		&order.Quantity,
		&order.FilledQuantity,
		&limitPrice,
		&stopPrice,
		&stopLoss,
		&takeProfit,
		&avgFill,
		&order.TradeValue,
		&order.PositionSizePct,
		&order.RiskAmount,
		&brokerOrderID,
		&decisionID,
		&order.Reasoning,
		&isPaper,
		&createdAt,
		&updatedAt,
		&submittedAt,
		&filledAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	order.Type = domain.OrderType(orderType)
	order.Side = domain.OrderSide(side)
	order.Status = domain.OrderStatus(status)
	order.LimitPrice = database.FloatFromNull(limitPrice)
	order.StopPrice = database.FloatFromNull(stopPrice)
	order.StopLossPrice = database.FloatFromNull(stopLoss)
	order.TakeProfitPrice = database.FloatFromNull(takeProfit)
	order.AverageFillPrice = database.FloatFromNull(avgFill)
	order.BrokerOrderID = database.StringFromNull(brokerOrderID)
	order.DecisionID = database.StringFromNull(decisionID)
	order.IsPaper = isPaper == 1
	order.CreatedAt = database.FromUnix(createdAt)
	order.UpdatedAt = database.FromUnix(updatedAt)
	order.SubmittedAt = database.TimeFromNull(submittedAt)
	order.FilledAt = database.TimeFromNull(filledAt)
	order.CancelledAt = database.TimeFromNull(cancelledAt)

	return &order, nil
}
