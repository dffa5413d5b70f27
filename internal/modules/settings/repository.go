// Package settings provides per-account risk settings storage.
// Settings live in ledger.db (risk_settings table) and are read-only to the
// trading engine; only the settings API mutates them.
package settings

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

const settingsColumns = `account_id, position_size_pct, stop_loss_pct, daily_loss_limit_pct,
	min_cash_reserve_pct, max_open_positions, min_risk_reward_ratio, paper_trading_enabled,
	auto_trading_enabled, require_stop_loss, circuit_breaker_enabled, updated_at`

// Update is a partial change to an account's settings. Nil fields are left unchanged.
type Update struct {
	PositionSizePct       *float64 `json:"position_size_pct,omitempty"`
	StopLossPct           *float64 `json:"stop_loss_pct,omitempty"`
	DailyLossLimitPct     *float64 `json:"daily_loss_limit_pct,omitempty"`
	MinCashReservePct     *float64 `json:"min_cash_reserve_pct,omitempty"`
	MinRiskRewardRatio    *float64 `json:"min_risk_reward_ratio,omitempty"`
	MaxOpenPositions      *int     `json:"max_open_positions,omitempty"`
	PaperTradingEnabled   *bool    `json:"paper_trading_enabled,omitempty"`
	AutoTradingEnabled    *bool    `json:"auto_trading_enabled,omitempty"`
	RequireStopLoss       *bool    `json:"require_stop_loss,omitempty"`
	CircuitBreakerEnabled *bool    `json:"circuit_breaker_enabled,omitempty"`
}

// Changes returns the set fields keyed by column name
func (u Update) Changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if u.PositionSizePct != nil {
		changes["position_size_pct"] = *u.PositionSizePct
	}
	if u.StopLossPct != nil {
		changes["stop_loss_pct"] = *u.StopLossPct
	}
	if u.DailyLossLimitPct != nil {
		changes["daily_loss_limit_pct"] = *u.DailyLossLimitPct
	}
	if u.MinCashReservePct != nil {
		changes["min_cash_reserve_pct"] = *u.MinCashReservePct
	}
	if u.MinRiskRewardRatio != nil {
		changes["min_risk_reward_ratio"] = *u.MinRiskRewardRatio
	}
	if u.MaxOpenPositions != nil {
		changes["max_open_positions"] = *u.MaxOpenPositions
	}
	if u.PaperTradingEnabled != nil {
		changes["paper_trading_enabled"] = *u.PaperTradingEnabled
	}
	if u.AutoTradingEnabled != nil {
		changes["auto_trading_enabled"] = *u.AutoTradingEnabled
	}
	if u.RequireStopLoss != nil {
		changes["require_stop_loss"] = *u.RequireStopLoss
	}
	if u.CircuitBreakerEnabled != nil {
		changes["circuit_breaker_enabled"] = *u.CircuitBreakerEnabled
	}
	return changes
}

func (u Update) applyTo(s *domain.RiskSettings) {
	Overrides{
		PositionSizePct:       u.PositionSizePct,
		StopLossPct:           u.StopLossPct,
		DailyLossLimitPct:     u.DailyLossLimitPct,
		MinCashReservePct:     u.MinCashReservePct,
		MinRiskRewardRatio:    u.MinRiskRewardRatio,
		MaxOpenPositions:      u.MaxOpenPositions,
		PaperTradingEnabled:   u.PaperTradingEnabled,
		AutoTradingEnabled:    u.AutoTradingEnabled,
		RequireStopLoss:       u.RequireStopLoss,
		CircuitBreakerEnabled: u.CircuitBreakerEnabled,
	}.apply(s)
}

// Repository handles risk settings database operations.
//
// Accounts get a row on first read, seeded from Defaults.
type Repository struct {
	db       *sql.DB
	defaults Defaults
	log      zerolog.Logger
}

var _ domain.RiskSettingsProvider = (*Repository)(nil)

// NewRepository creates a new settings repository
func NewRepository(db *sql.DB, defaults Defaults, log zerolog.Logger) *Repository {
	return &Repository{
		db:       db,
		defaults: defaults,
		log:      log.With().Str("repo", "settings").Logger(),
	}
}

// Get returns the settings for an account, creating the default row if absent.
//
// Parameters:
//   - accountID: Broker account number
//
// Returns:
//   - *domain.RiskSettings: Stored or newly created settings
//   - error: Error if the query or insert fails
func (r *Repository) Get(accountID string) (*domain.RiskSettings, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	s, err := r.find(accountID)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	defaults := r.defaults.For(accountID)
	defaults.UpdatedAt = time.Now().UTC()
	if err := r.insert(&defaults); err != nil {
		return nil, err
	}
	r.log.Info().Str("account", accountID).Msg("Created default risk settings")

	// Re-read in case a concurrent caller inserted first
	s, err = r.find(accountID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("risk settings for %s vanished after insert", accountID)
	}
	return s, nil
}

// Update applies a partial update and returns the new settings
func (r *Repository) Update(accountID string, update Update) (*domain.RiskSettings, error) {
	current, err := r.Get(accountID)
	if err != nil {
		return nil, err
	}

	next := *current
	update.applyTo(&next)
	if err := Validate(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	next.UpdatedAt = time.Now().UTC()

	_, err = r.db.Exec(`UPDATE risk_settings SET
		position_size_pct = ?, stop_loss_pct = ?, daily_loss_limit_pct = ?,
		min_cash_reserve_pct = ?, max_open_positions = ?, min_risk_reward_ratio = ?,
		paper_trading_enabled = ?, auto_trading_enabled = ?, require_stop_loss = ?,
		circuit_breaker_enabled = ?, updated_at = ?
		WHERE account_id = ?`,
		next.PositionSizePct,
		next.StopLossPct,
		next.DailyLossLimitPct,
		next.MinCashReservePct,
		next.MaxOpenPositions,
		next.MinRiskRewardRatio,
		database.BoolToInt(next.PaperTradingEnabled),
		database.BoolToInt(next.AutoTradingEnabled),
		database.BoolToInt(next.RequireStopLoss),
		database.BoolToInt(next.CircuitBreakerEnabled),
		next.UpdatedAt.Unix(),
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update risk settings: %w", err)
	}

	r.log.Info().Str("account", accountID).Interface("changes", update.Changes()).Msg("Risk settings updated")
	return &next, nil
}

// ListAccounts returns every account with stored settings
func (r *Repository) ListAccounts() ([]string, error) {
	rows, err := r.db.Query("SELECT account_id FROM risk_settings ORDER BY account_id")
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

func (r *Repository) find(accountID string) (*domain.RiskSettings, error) {
	var s domain.RiskSettings
	var paper, auto, requireStop, breaker int
	var updatedAt int64

	err := r.db.QueryRow("SELECT "+settingsColumns+" FROM risk_settings WHERE account_id = ?", accountID).Scan(
		&s.AccountID,
		&s.PositionSizePct,
		&s.StopLossPct,
		&s.DailyLossLimitPct,
		&s.MinCashReservePct,
		&s.MaxOpenPositions,
		&s.MinRiskRewardRatio,
		&paper,
		&auto,
		&requireStop,
		&breaker,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk settings for %s: %w", accountID, err)
	}

	s.PaperTradingEnabled = paper == 1
	s.AutoTradingEnabled = auto == 1
	s.RequireStopLoss = requireStop == 1
	s.CircuitBreakerEnabled = breaker == 1
	s.UpdatedAt = database.FromUnix(updatedAt)
	return &s, nil
}

func (r *Repository) insert(s *domain.RiskSettings) error {
	_, err := r.db.Exec(`INSERT OR IGNORE INTO risk_settings (`+settingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.AccountID,
		s.PositionSizePct,
		s.StopLossPct,
		s.DailyLossLimitPct,
		s.MinCashReservePct,
		s.MaxOpenPositions,
		s.MinRiskRewardRatio,
		database.BoolToInt(s.PaperTradingEnabled),
		database.BoolToInt(s.AutoTradingEnabled),
		database.BoolToInt(s.RequireStopLoss),
		database.BoolToInt(s.CircuitBreakerEnabled),
		s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert risk settings: %w", err)
	}
	return nil
}
