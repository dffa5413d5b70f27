package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSnapshotProvider is a mock snapshot provider for testing
type MockSnapshotProvider struct {
	mock.Mock
}

func (m *MockSnapshotProvider) GetLatest(accountID string) (*domain.PortfolioSnapshot, error) {
	args := m.Called(accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PortfolioSnapshot), args.Error(1)
}

func TestPortfolioService_GetSummary(t *testing.T) {
	repo, _ := setupPositionRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	openTestPosition(t, repo, "A1", 1, "SHOP", 100, 100)
	ry := openTestPosition(t, repo, "A1", 2, "RY", 10, 50)
	require.NoError(t, ApplySellFill(ry, 5, 60, time.Now().UTC()))
	require.NoError(t, repo.Save(ry))

	snapshots := new(MockSnapshotProvider)
	snapshots.On("GetLatest", "A1").Return(&domain.PortfolioSnapshot{
		AccountID:   "A1",
		TotalValue:  20000,
		CashBalance: 9000,
	}, nil)

	service := NewPortfolioService(repo, snapshots, log)

	summary, err := service.GetSummary("A1")
	require.NoError(t, err)

	assert.Equal(t, "A1", summary.AccountID)
	assert.Equal(t, 2, summary.NumPositions)
	// 100*100 + 5*60
	assert.Equal(t, 10300.0, summary.PositionsValue)
	assert.Equal(t, 10250.0, summary.CostBasis)
	assert.Equal(t, 50.0, summary.UnrealizedPnL)
	assert.Equal(t, 50.0, summary.RealizedPnL)
	assert.Equal(t, 9000.0, summary.CashBalance)
	assert.Equal(t, 19300.0, summary.TotalValue)
	assert.NotNil(t, summary.Snapshot)

	snapshots.AssertExpectations(t)
}

func TestPortfolioService_GetSummaryWithoutSnapshot(t *testing.T) {
	repo, _ := setupPositionRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	snapshots := new(MockSnapshotProvider)
	snapshots.On("GetLatest", "EMPTY").Return(nil, nil)

	summary, err := NewPortfolioService(repo, snapshots, log).GetSummary("EMPTY")
	require.NoError(t, err)

	assert.Empty(t, summary.Positions)
	assert.NotNil(t, summary.Positions)
	assert.Nil(t, summary.Snapshot)
	assert.Equal(t, 0.0, summary.TotalValue)
}

func TestPortfolioService_GetSummarySnapshotError(t *testing.T) {
	repo, _ := setupPositionRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	snapshots := new(MockSnapshotProvider)
	snapshots.On("GetLatest", "A1").Return(nil, errors.New("db locked"))

	_, err := NewPortfolioService(repo, snapshots, log).GetSummary("A1")
	assert.Error(t, err)
}

func TestSumPositions(t *testing.T) {
	totals := SumPositions([]domain.Position{
		{Quantity: 3, AverageCost: 0.1, MarketValue: 0.3, UnrealizedPnL: 0.1, RealizedPnL: 0.2},
		{Quantity: 3, AverageCost: 0.2, MarketValue: 0.6, UnrealizedPnL: 0.2, RealizedPnL: 0.1},
	})

	assert.Equal(t, 0.9, totals.MarketValue)
	assert.Equal(t, 0.9, totals.CostBasis)
	assert.Equal(t, 0.3, totals.UnrealizedPnL)
	assert.Equal(t, 0.3, totals.RealizedPnL)

	assert.Equal(t, PositionTotals{}, SumPositions(nil))
}
