package portfolio

import (
	"database/sql"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
)

// PositionRepositoryInterface defines the contract for position repository operations
type PositionRepositoryInterface interface {
	GetOpen(accountID string, instrumentID int64) (*domain.Position, error)
	GetOpenTx(q database.Queryer, accountID string, instrumentID int64) (*domain.Position, error)
	GetByID(id int64) (*domain.Position, error)
	ListOpen(accountID string) ([]domain.Position, error)
	ListOpenWithExits(accountID string) ([]domain.Position, error)
	List(accountID string, includeClosed bool) ([]domain.Position, error)
	CountOpen(accountID string) (int, error)
	ListAccounts() ([]string, error)
	Save(pos *domain.Position) error
	SaveTx(tx *sql.Tx, pos *domain.Position) error
	UpdateMarket(pos *domain.Position) error
}
