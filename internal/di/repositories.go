package di

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/clients/questrade"
	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/settings"
	"github.com/aristath/tradeguard/internal/modules/snapshots"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/aristath/tradeguard/internal/modules/universe"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.LedgerDB == nil || container.ClientDataDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	defaults, err := settings.LoadDefaults(cfg.RiskDefaultsFile)
	if err != nil {
		return err
	}

	ledger := container.LedgerDB.Conn()

	container.InstrumentRepo = universe.NewInstrumentRepository(ledger, universe.DefaultExchange, log)
	container.PositionRepo = portfolio.NewPositionRepository(ledger, log)
	container.OrderRepo = trading.NewOrderRepository(ledger, log)
	container.ExecutionRepo = trading.NewExecutionRepository(ledger, log)
	container.SnapshotRepo = snapshots.NewRepository(ledger, log)
	container.SettingsRepo = settings.NewRepository(ledger, defaults, log)
	container.TokenRepo = questrade.NewTokenRepository(ledger, log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Info().Msg("Repositories initialized")
	return nil
}
