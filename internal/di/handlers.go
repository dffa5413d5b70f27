package di

import (
	"github.com/aristath/tradeguard/internal/config"
	monitorhandlers "github.com/aristath/tradeguard/internal/modules/monitor/handlers"
	portfoliohandlers "github.com/aristath/tradeguard/internal/modules/portfolio/handlers"
	riskhandlers "github.com/aristath/tradeguard/internal/modules/risk/handlers"
	settingshandlers "github.com/aristath/tradeguard/internal/modules/settings/handlers"
	snapshotshandlers "github.com/aristath/tradeguard/internal/modules/snapshots/handlers"
	tradinghandlers "github.com/aristath/tradeguard/internal/modules/trading/handlers"
	universehandlers "github.com/aristath/tradeguard/internal/modules/universe/handlers"
	"github.com/aristath/tradeguard/internal/server"
	"github.com/rs/zerolog"
)

// BuildHandlers creates the module route registrars mounted under /api
func BuildHandlers(container *Container, cfg *config.Config, log zerolog.Logger) []server.RouteRegistrar {
	return []server.RouteRegistrar{
		tradinghandlers.NewHandler(container.OrderManager, log),
		riskhandlers.NewHandler(container.OrderManager, log),
		portfoliohandlers.NewHandler(container.PositionRepo, container.PortfolioService, log),
		snapshotshandlers.NewHandler(container.SnapshotRepo, container.SnapshotService, log),
		settingshandlers.NewHandler(container.SettingsRepo, container.EventManager, log),
		monitorhandlers.NewHandler(container.Monitor, log),
		universehandlers.NewHandler(container.InstrumentRepo, container.PriceService, cfg.MarketPriceTimeout, log),
	}
}
