package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

const positionColumns = `id, account_id, instrument_id, symbol, quantity, average_cost,
	current_price, market_value, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
	stop_loss_price, take_profit_price, is_open, opened_at, closed_at, updated_at`

// PositionRepository handles position database operations (ledger.db)
type PositionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

var _ PositionRepositoryInterface = (*PositionRepository)(nil)

// NewPositionRepository creates a new position repository
func NewPositionRepository(ledgerDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "position").Logger(),
	}
}

// GetOpen returns the open position for (account, instrument), or nil if none
func (r *PositionRepository) GetOpen(accountID string, instrumentID int64) (*domain.Position, error) {
	return r.GetOpenTx(r.ledgerDB, accountID, instrumentID)
}

// GetOpenTx is GetOpen on an explicit connection or transaction
func (r *PositionRepository) GetOpenTx(q database.Queryer, accountID string, instrumentID int64) (*domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE account_id = ? AND instrument_id = ? AND is_open = 1"

	pos, err := scanPosition(q.QueryRow(query, accountID, instrumentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open position: %w", err)
	}
	return pos, nil
}

// GetByID returns a position by id, or nil if not found
func (r *PositionRepository) GetByID(id int64) (*domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE id = ?"

	pos, err := scanPosition(r.ledgerDB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, nil
}

// ListOpen returns all open positions for an account
func (r *PositionRepository) ListOpen(accountID string) ([]domain.Position, error) {
	return r.list("SELECT "+positionColumns+` FROM positions
		WHERE account_id = ? AND is_open = 1 ORDER BY symbol`, accountID)
}

// ListOpenWithExits returns open positions carrying a stop-loss or take-profit price
func (r *PositionRepository) ListOpenWithExits(accountID string) ([]domain.Position, error) {
	return r.list("SELECT "+positionColumns+` FROM positions
		WHERE account_id = ? AND is_open = 1
		AND (stop_loss_price IS NOT NULL OR take_profit_price IS NOT NULL)
		ORDER BY symbol`, accountID)
}

// List returns an account's positions, optionally including closed history
func (r *PositionRepository) List(accountID string, includeClosed bool) ([]domain.Position, error) {
	if !includeClosed {
		return r.ListOpen(accountID)
	}
	return r.list("SELECT "+positionColumns+` FROM positions
		WHERE account_id = ? ORDER BY is_open DESC, updated_at DESC`, accountID)
}

// CountOpen returns the number of open positions for an account
func (r *PositionRepository) CountOpen(accountID string) (int, error) {
	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM positions WHERE account_id = ? AND is_open = 1", accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count, nil
}

// ListAccounts returns the distinct accounts holding open positions
func (r *PositionRepository) ListAccounts() ([]string, error) {
	rows, err := r.ledgerDB.Query("SELECT DISTINCT account_id FROM positions WHERE is_open = 1 ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Save inserts a new position (ID == 0) or updates an existing one
func (r *PositionRepository) Save(pos *domain.Position) error {
	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		return r.SaveTx(tx, pos)
	})
}

// SaveTx is Save inside an existing transaction. pos.ID is set on insert.
func (r *PositionRepository) SaveTx(tx *sql.Tx, pos *domain.Position) error {
	if pos == nil {
		return fmt.Errorf("position is nil")
	}
	pos.Symbol = strings.ToUpper(strings.TrimSpace(pos.Symbol))
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}

	if pos.ID == 0 {
		result, err := tx.Exec(`INSERT INTO positions
			(account_id, instrument_id, symbol, quantity, average_cost, current_price,
			 market_value, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
			 stop_loss_price, take_profit_price, is_open, opened_at, closed_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.AccountID,
			pos.InstrumentID,
			pos.Symbol,
			pos.Quantity,
			pos.AverageCost,
			pos.CurrentPrice,
			pos.MarketValue,
			pos.UnrealizedPnL,
			pos.UnrealizedPnLPct,
			pos.RealizedPnL,
			database.NullFloat(pos.StopLossPrice),
			database.NullFloat(pos.TakeProfitPrice),
			database.BoolToInt(pos.IsOpen),
			database.NullUnix(pos.OpenedAt),
			database.NullUnix(pos.ClosedAt),
			pos.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get position id: %w", err)
		}
		pos.ID = id
		r.log.Debug().Int64("id", id).Str("account", pos.AccountID).Str("symbol", pos.Symbol).Msg("Position opened")
		return nil
	}

	_, err := tx.Exec(`UPDATE positions SET
		quantity = ?, average_cost = ?, current_price = ?, market_value = ?,
		unrealized_pnl = ?, unrealized_pnl_pct = ?, realized_pnl = ?,
		stop_loss_price = ?, take_profit_price = ?, is_open = ?,
		opened_at = ?, closed_at = ?, updated_at = ?
		WHERE id = ?`,
		pos.Quantity,
		pos.AverageCost,
		pos.CurrentPrice,
		pos.MarketValue,
		pos.UnrealizedPnL,
		pos.UnrealizedPnLPct,
		pos.RealizedPnL,
		database.NullFloat(pos.StopLossPrice),
		database.NullFloat(pos.TakeProfitPrice),
		database.BoolToInt(pos.IsOpen),
		database.NullUnix(pos.OpenedAt),
		database.NullUnix(pos.ClosedAt),
		pos.UpdatedAt.Unix(),
		pos.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

// UpdateMarket persists price-derived fields only. Quantity and cost are left alone
// so a concurrent fill is never overwritten by a stale mark.
func (r *PositionRepository) UpdateMarket(pos *domain.Position) error {
	_, err := r.ledgerDB.Exec(`UPDATE positions SET
		current_price = ?,
		market_value = quantity * ?,
		unrealized_pnl = (? - average_cost) * quantity,
		unrealized_pnl_pct = CASE WHEN average_cost > 0 THEN (? - average_cost) * 100.0 / average_cost ELSE 0 END,
		updated_at = ?
		WHERE id = ? AND is_open = 1`,
		pos.CurrentPrice, pos.CurrentPrice, pos.CurrentPrice, pos.CurrentPrice,
		pos.UpdatedAt.Unix(), pos.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update position market data: %w", err)
	}
	return nil
}

func (r *PositionRepository) list(query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row in positionColumns order
func scanPosition(row rowScanner) (*domain.Position, error) {
	var pos domain.Position
	var stopLoss, takeProfit sql.NullFloat64
	var openedAt, closedAt sql.NullInt64
	var isOpen int
	var updatedAt int64

	err := row.Scan(
		&pos.ID,
		&pos.AccountID,
		&pos.InstrumentID,
		&pos.Symbol,
		&pos.Quantity,
		&pos.AverageCost,
		&pos.CurrentPrice,
		&pos.MarketValue,
		&pos.UnrealizedPnL,
		&pos.UnrealizedPnLPct,
		&pos.RealizedPnL,
		&stopLoss,
		&takeProfit,
		&isOpen,
		&openedAt,
		&closedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	pos.StopLossPrice = database.FloatFromNull(stopLoss)
	pos.TakeProfitPrice = database.FloatFromNull(takeProfit)
	pos.IsOpen = isOpen == 1
	pos.OpenedAt = database.TimeFromNull(openedAt)
	pos.ClosedAt = database.TimeFromNull(closedAt)
	pos.UpdatedAt = database.FromUnix(updatedAt)

	return &pos, nil
}
