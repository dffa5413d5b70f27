package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

const executionColumns = `id, order_id, broker_execution_id, quantity, price, commission, executed_at`

// ExecutionRepository handles execution (fill) database operations (ledger.db).
// Executions are append-only.
type ExecutionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(ledgerDB *sql.DB, log zerolog.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "execution").Logger(),
	}
}

// CreateTx inserts an execution on q
func (r *ExecutionRepository) CreateTx(q database.Queryer, exec *domain.Execution) error {
	_, err := q.Exec(`INSERT INTO executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.OrderID,
		database.NullString(exec.BrokerExecutionID),
		exec.Quantity,
		exec.Price,
		exec.Commission,
		exec.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// ExistsTx reports whether a broker execution was already recorded for the order
func (r *ExecutionRepository) ExistsTx(q database.Queryer, orderID, brokerExecutionID string) (bool, error) {
	var count int
	err := q.QueryRow(
		"SELECT COUNT(*) FROM executions WHERE order_id = ? AND broker_execution_id = ?",
		orderID, brokerExecutionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check execution: %w", err)
	}
	return count > 0, nil
}

// ListByOrder returns an order's executions in execution order
func (r *ExecutionRepository) ListByOrder(orderID string) ([]domain.Execution, error) {
	return r.ListByOrderTx(r.ledgerDB, orderID)
}

// ListByOrderTx is ListByOrder on q
func (r *ExecutionRepository) ListByOrderTx(q database.Queryer, orderID string) ([]domain.Execution, error) {
	rows, err := q.Query("SELECT "+executionColumns+` FROM executions
		WHERE order_id = ? ORDER BY executed_at, rowid`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		var exec domain.Execution
		var brokerID sql.NullString
		var executedAt int64
		if err := rows.Scan(
			&exec.ID,
			&exec.OrderID,
			&brokerID,
			&exec.Quantity,
			&exec.Price,
			&exec.Commission,
			&executedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.BrokerExecutionID = database.StringFromNull(brokerID)
		exec.ExecutedAt = database.FromUnix(executedAt)
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return executions, nil
}

// NetCashFlowSince returns sell proceeds minus buy costs and commissions for fills
// executed after since
func (r *ExecutionRepository) NetCashFlowSince(accountID string, since time.Time) (float64, error) {
	var flow float64
	err := r.ledgerDB.QueryRow(`SELECT COALESCE(SUM(
			CASE WHEN o.side = 'SELL' THEN e.quantity * e.price ELSE -e.quantity * e.price END
			- e.commission), 0)
		FROM executions e
		JOIN orders o ON o.id = e.order_id
		WHERE o.account_id = ? AND e.executed_at > ?`,
		accountID, since.Unix(),
	).Scan(&flow)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cash flows: %w", err)
	}
	return flow, nil
}
