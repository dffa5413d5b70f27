package testing

import (
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
)

// NewTodaySnapshot returns a snapshot dated today with positions making up the rest
// of totalValue
func NewTodaySnapshot(accountID string, totalValue, cash float64) *domain.PortfolioSnapshot {
	now := time.Now().UTC()
	return &domain.PortfolioSnapshot{
		SnapshotDate:   now,
		CreatedAt:      now,
		AccountID:      accountID,
		TotalValue:     totalValue,
		CashBalance:    cash,
		PositionsValue: totalValue - cash,
	}
}

// NewPaperSettings returns default settings with paper trading on
func NewPaperSettings(accountID string) domain.RiskSettings {
	s := domain.DefaultRiskSettings(accountID)
	s.PaperTradingEnabled = true
	return s
}

// NewLiveSettings returns default settings with paper trading off
func NewLiveSettings(accountID string) domain.RiskSettings {
	s := domain.DefaultRiskSettings(accountID)
	s.PaperTradingEnabled = false
	return s
}

// SeedInstruments inserts instruments and returns their ids by symbol
func SeedInstruments(t *testing.T, db *database.DB, symbols ...string) map[string]int64 {
	t.Helper()
	ids := make(map[string]int64, len(symbols))
	for _, symbol := range symbols {
		result, err := db.Exec(
			"INSERT INTO instruments (symbol, name, exchange, created_at) VALUES (?, ?, 'TSX', ?)",
			symbol, symbol, time.Now().Unix(),
		)
		if err != nil {
			t.Fatalf("failed to seed instrument %s: %v", symbol, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			t.Fatalf("failed to get instrument id: %v", err)
		}
		ids[symbol] = id
	}
	return ids
}
