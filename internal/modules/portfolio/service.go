package portfolio

import (
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PortfolioSummary is an account's open positions plus the latest recorded snapshot
type PortfolioSummary struct {
	AsOf           time.Time                 `json:"as_of"`
	Snapshot       *domain.PortfolioSnapshot `json:"snapshot,omitempty"`
	AccountID      string                    `json:"account_id"`
	Positions      []domain.Position         `json:"positions"`
	PositionsValue float64                   `json:"positions_value"`
	CostBasis      float64                   `json:"cost_basis"`
	UnrealizedPnL  float64                   `json:"unrealized_pnl"`
	RealizedPnL    float64                   `json:"realized_pnl"`
	CashBalance    float64                   `json:"cash_balance"`
	TotalValue     float64                   `json:"total_value"`
	NumPositions   int                       `json:"num_positions"`
}

// PortfolioService builds portfolio views from the position ledger.
//
// Cash is not tracked by the ledger; it comes from the latest snapshot.
type PortfolioService struct {
	positionRepo PositionRepositoryInterface
	snapshots    domain.SnapshotProvider
	log          zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	positionRepo PositionRepositoryInterface,
	snapshots domain.SnapshotProvider,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		positionRepo: positionRepo,
		snapshots:    snapshots,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// GetSummary aggregates open positions for an account
func (s *PortfolioService) GetSummary(accountID string) (*PortfolioSummary, error) {
	positions, err := s.positionRepo.ListOpen(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	snapshot, err := s.snapshots.GetLatest(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	totals := SumPositions(positions)

	summary := &PortfolioSummary{
		AsOf:           time.Now().UTC(),
		Snapshot:       snapshot,
		AccountID:      accountID,
		Positions:      positions,
		PositionsValue: totals.MarketValue,
		CostBasis:      totals.CostBasis,
		UnrealizedPnL:  totals.UnrealizedPnL,
		RealizedPnL:    totals.RealizedPnL,
		NumPositions:   len(positions),
	}
	if summary.Positions == nil {
		summary.Positions = []domain.Position{}
	}

	if snapshot != nil {
		summary.CashBalance = snapshot.CashBalance
	} else {
		s.log.Debug().Str("account", accountID).Msg("No snapshot recorded, cash balance unknown")
	}
	summary.TotalValue = decimal.NewFromFloat(summary.CashBalance).
		Add(decimal.NewFromFloat(summary.PositionsValue)).InexactFloat64()

	return summary, nil
}

// PositionTotals are aggregate values over a set of positions
type PositionTotals struct {
	MarketValue   float64
	CostBasis     float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// SumPositions totals market value, cost basis and P&L
func SumPositions(positions []domain.Position) PositionTotals {
	marketValue := decimal.Zero
	costBasis := decimal.Zero
	unrealized := decimal.Zero
	realized := decimal.Zero

	for _, p := range positions {
		marketValue = marketValue.Add(decimal.NewFromFloat(p.MarketValue))
		costBasis = costBasis.Add(decimal.NewFromFloat(p.AverageCost).Mul(decimal.NewFromInt(p.Quantity)))
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL))
		realized = realized.Add(decimal.NewFromFloat(p.RealizedPnL))
	}

	return PositionTotals{
		MarketValue:   marketValue.InexactFloat64(),
		CostBasis:     costBasis.InexactFloat64(),
		UnrealizedPnL: unrealized.InexactFloat64(),
		RealizedPnL:   realized.InexactFloat64(),
	}
}
