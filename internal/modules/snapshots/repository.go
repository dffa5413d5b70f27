// Package snapshots records daily portfolio aggregates per account.
//
// The latest snapshot feeds risk validation (portfolio value, cash, daily P&L).
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// DateLayout is the storage format of snapshot_date
const DateLayout = "2006-01-02"

const snapshotColumns = `id, account_id, snapshot_date, total_value, cash_balance, positions_value,
	daily_pnl, daily_pnl_pct, total_pnl, total_pnl_pct, num_positions, created_at`

// Repository handles portfolio snapshot database operations (ledger.db)
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

var _ domain.SnapshotProvider = (*Repository)(nil)

// NewRepository creates a new snapshot repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "snapshot").Logger(),
	}
}

// GetLatest returns the most recent snapshot for an account, or nil if none
func (r *Repository) GetLatest(accountID string) (*domain.PortfolioSnapshot, error) {
	return r.getOne("SELECT "+snapshotColumns+` FROM portfolio_snapshots
		WHERE account_id = ? ORDER BY snapshot_date DESC LIMIT 1`, accountID)
}

// GetLatestBefore returns the most recent snapshot dated strictly before day
func (r *Repository) GetLatestBefore(accountID string, day time.Time) (*domain.PortfolioSnapshot, error) {
	return r.getOne("SELECT "+snapshotColumns+` FROM portfolio_snapshots
		WHERE account_id = ? AND snapshot_date < ? ORDER BY snapshot_date DESC LIMIT 1`,
		accountID, day.UTC().Format(DateLayout))
}

// GetFirst returns the oldest snapshot for an account, the total P&L baseline
func (r *Repository) GetFirst(accountID string) (*domain.PortfolioSnapshot, error) {
	return r.getOne("SELECT "+snapshotColumns+` FROM portfolio_snapshots
		WHERE account_id = ? ORDER BY snapshot_date ASC LIMIT 1`, accountID)
}

// List returns up to limit snapshots, newest first
func (r *Repository) List(accountID string, limit int) ([]domain.PortfolioSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.ledgerDB.Query("SELECT "+snapshotColumns+` FROM portfolio_snapshots
		WHERE account_id = ? ORDER BY snapshot_date DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.PortfolioSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// ListAccounts returns every account with at least one snapshot
func (r *Repository) ListAccounts() ([]string, error) {
	rows, err := r.ledgerDB.Query("SELECT DISTINCT account_id FROM portfolio_snapshots ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot accounts: %w", err)
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
	return accounts, rows.Err()
}

// Record upserts the snapshot for (account, snapshot_date). snap.ID is set on return.
func (r *Repository) Record(snap *domain.PortfolioSnapshot) error {
	if snap == nil || snap.AccountID == "" {
		return fmt.Errorf("snapshot requires an account id")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	day := snap.SnapshotDate.UTC().Format(DateLayout)

	_, err := r.ledgerDB.Exec(`INSERT INTO portfolio_snapshots
		(account_id, snapshot_date, total_value, cash_balance, positions_value,
		 daily_pnl, daily_pnl_pct, total_pnl, total_pnl_pct, num_positions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, snapshot_date) DO UPDATE SET
			total_value = excluded.total_value,
			cash_balance = excluded.cash_balance,
			positions_value = excluded.positions_value,
			daily_pnl = excluded.daily_pnl,
			daily_pnl_pct = excluded.daily_pnl_pct,
			total_pnl = excluded.total_pnl,
			total_pnl_pct = excluded.total_pnl_pct,
			num_positions = excluded.num_positions,
			created_at = excluded.created_at`,
		snap.AccountID,
		day,
		snap.TotalValue,
		snap.CashBalance,
		snap.PositionsValue,
		snap.DailyPnL,
		snap.DailyPnLPct,
		snap.TotalPnL,
		snap.TotalPnLPct,
		snap.NumPositions,
		snap.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}

	if err := r.ledgerDB.QueryRow(
		"SELECT id FROM portfolio_snapshots WHERE account_id = ? AND snapshot_date = ?",
		snap.AccountID, day,
	).Scan(&snap.ID); err != nil {
		return fmt.Errorf("failed to read snapshot id: %w", err)
	}

	r.log.Debug().
		Str("account", snap.AccountID).
		Str("date", day).
		Float64("total_value", snap.TotalValue).
		Msg("Snapshot recorded")
	return nil
}

func (r *Repository) getOne(query string, args ...interface{}) (*domain.PortfolioSnapshot, error) {
	snap, err := scanSnapshot(r.ledgerDB.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*domain.PortfolioSnapshot, error) {
	var snap domain.PortfolioSnapshot
	var day string
	var createdAt int64

	err := row.Scan(
		&snap.ID,
		&snap.AccountID,
		&day,
		&snap.TotalValue,
		&snap.CashBalance,
		&snap.PositionsValue,
		&snap.DailyPnL,
		&snap.DailyPnLPct,
		&snap.TotalPnL,
		&snap.TotalPnLPct,
		&snap.NumPositions,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := time.ParseInLocation(DateLayout, day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot date %q: %w", day, err)
	}
	snap.SnapshotDate = parsed
	snap.CreatedAt = database.FromUnix(createdAt)
	return &snap, nil
}
