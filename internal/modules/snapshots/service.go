package snapshots

import (
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionLister supplies an account's open positions
type PositionLister interface {
	ListOpen(accountID string) ([]domain.Position, error)
	ListAccounts() ([]string, error)
}

// CashFlowSource reports the net cash movement from fills since a point in time.
// Sells are positive, buys and commissions negative.
type CashFlowSource interface {
	NetCashFlowSince(accountID string, since time.Time) (float64, error)
}

// RolloverRequest controls one snapshot computation
type RolloverRequest struct {
	// CashBalance overrides the carried-forward cash, e.g. a broker-reported balance
	CashBalance *float64 `json:"cash_balance,omitempty"`
	AccountID   string   `json:"-"`
}

// Service computes and records daily snapshots
type Service struct {
	repo         *Repository
	positions    PositionLister
	cashFlows    CashFlowSource
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a new snapshot service. cashFlows may be nil, in which case cash
// is carried forward unchanged.
func NewService(
	repo *Repository,
	positions PositionLister,
	cashFlows CashFlowSource,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		positions:    positions,
		cashFlows:    cashFlows,
		eventManager: eventManager,
		log:          log.With().Str("service", "snapshots").Logger(),
	}
}

// Rollover records today's snapshot for an account.
//
// Cash is the override when given, otherwise the latest snapshot's cash plus fill cash
// flows since it was recorded. Daily P&L is measured against the previous day's total
// and total P&L against the account's first snapshot.
func (s *Service) Rollover(req RolloverRequest, now time.Time) (*domain.PortfolioSnapshot, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	now = now.UTC()

	positions, err := s.positions.ListOpen(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	totals := portfolio.SumPositions(positions)

	cash, err := s.resolveCash(req, now)
	if err != nil {
		return nil, err
	}

	previous, err := s.repo.GetLatestBefore(req.AccountID, now)
	if err != nil {
		return nil, err
	}
	first, err := s.repo.GetFirst(req.AccountID)
	if err != nil {
		return nil, err
	}

	total := cash.Add(decimal.NewFromFloat(totals.MarketValue))
	snap := &domain.PortfolioSnapshot{
		SnapshotDate:   now,
		CreatedAt:      now,
		AccountID:      req.AccountID,
		TotalValue:     total.InexactFloat64(),
		CashBalance:    cash.InexactFloat64(),
		PositionsValue: totals.MarketValue,
		NumPositions:   len(positions),
	}

	if previous != nil {
		snap.DailyPnL, snap.DailyPnLPct = change(total, previous.TotalValue)
	}
	if first != nil && !first.IsFor(now) {
		snap.TotalPnL, snap.TotalPnLPct = change(total, first.TotalValue)
	}

	if err := s.repo.Record(snap); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", snap.AccountID).
		Float64("total_value", snap.TotalValue).
		Float64("cash", snap.CashBalance).
		Float64("daily_pnl_pct", snap.DailyPnLPct).
		Int("positions", snap.NumPositions).
		Msg("Portfolio snapshot recorded")

	s.eventManager.EmitTyped("snapshots", &events.SnapshotRecordedData{
		AccountID:    snap.AccountID,
		SnapshotDate: snap.SnapshotDate.Format(DateLayout),
		TotalValue:   snap.TotalValue,
		CashBalance:  snap.CashBalance,
		DailyPnLPct:  snap.DailyPnLPct,
	})

	return snap, nil
}

// RolloverAll records today's snapshot for every known account.
// Failures are logged per account and the first one is returned after all ran.
func (s *Service) RolloverAll(now time.Time) (int, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return 0, err
	}

	recorded := 0
	var firstErr error
	for _, account := range accounts {
		if _, err := s.Rollover(RolloverRequest{AccountID: account}, now); err != nil {
			s.log.Error().Err(err).Str("account", account).Msg("Snapshot rollover failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recorded++
	}
	return recorded, firstErr
}

// Accounts returns the union of accounts with snapshots or open positions
func (s *Service) Accounts() ([]string, error) {
	seen := make(map[string]bool)
	var accounts []string

	fromSnapshots, err := s.repo.ListAccounts()
	if err != nil {
		return nil, err
	}
	fromPositions, err := s.positions.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list position accounts: %w", err)
	}

	for _, list := range [][]string{fromSnapshots, fromPositions} {
		for _, a := range list {
			if !seen[a] {
				seen[a] = true
				accounts = append(accounts, a)
			}
		}
	}
	return accounts, nil
}

func (s *Service) resolveCash(req RolloverRequest, now time.Time) (decimal.Decimal, error) {
	if req.CashBalance != nil {
		if *req.CashBalance < 0 {
			return decimal.Zero, fmt.Errorf("cash balance cannot be negative")
		}
		return decimal.NewFromFloat(*req.CashBalance), nil
	}

	latest, err := s.repo.GetLatest(req.AccountID)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		s.log.Warn().Str("account", req.AccountID).Msg("No previous snapshot, starting with zero cash")
		return decimal.Zero, nil
	}

	cash := decimal.NewFromFloat(latest.CashBalance)
	if s.cashFlows != nil {
		flow, err := s.cashFlows.NetCashFlowSince(req.AccountID, latest.CreatedAt)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get cash flows: %w", err)
		}
		cash = cash.Add(decimal.NewFromFloat(flow))
	}
	return cash, nil
}

// change returns the absolute and percent difference of current against base
func change(current decimal.Decimal, base float64) (float64, float64) {
	baseDec := decimal.NewFromFloat(base)
	diff := current.Sub(baseDec)
	if baseDec.IsZero() {
		return diff.InexactFloat64(), 0
	}
	return diff.InexactFloat64(), diff.Mul(decimal.NewFromInt(100)).Div(baseDec).InexactFloat64()
}
