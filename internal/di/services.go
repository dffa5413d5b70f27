package di

import (
	"context"
	"fmt"

	"github.com/aristath/tradeguard/internal/clients/alphavantage"
	"github.com/aristath/tradeguard/internal/clients/questrade"
	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/monitor"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/aristath/tradeguard/internal/modules/snapshots"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/aristath/tradeguard/internal/scheduler"
	"github.com/aristath/tradeguard/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services. Repositories must exist.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.PositionRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	initializeClients(container, cfg, log)

	// Interfaces stay nil (not typed-nil) when a source is absent
	var marketData services.QuoteSource
	if container.AlphaVantageClient != nil {
		marketData = container.AlphaVantageClient
	}
	var brokerQuotes services.BrokerQuoter
	if container.BrokerAdapter != nil {
		brokerQuotes = container.BrokerAdapter
	}
	container.PriceService = services.NewPriceService(marketData, brokerQuotes, container.ClientDataRepo, log)

	container.Validator = risk.NewValidator(risk.Options{SnapshotPolicy: cfg.SnapshotPolicy})
	container.FillStore = trading.NewFillStore(
		container.LedgerDB.Conn(),
		container.OrderRepo,
		container.ExecutionRepo,
		container.PositionRepo,
		log,
	)
	container.PaperExecutor = trading.NewPaperExecutor(container.FillStore, log)
	if container.BrokerAdapter != nil {
		container.LiveExecutor = trading.NewLiveExecutor(container.BrokerAdapter, cfg.BrokerTimeout, log)
	}

	container.OrderManager = trading.NewOrderManager(trading.OrderManagerDeps{
		Orders:       container.OrderRepo,
		Executions:   container.ExecutionRepo,
		Positions:    container.PositionRepo,
		Instruments:  container.InstrumentRepo,
		Settings:     container.SettingsRepo,
		Snapshots:    container.SnapshotRepo,
		Prices:       container.PriceService,
		Validator:    container.Validator,
		Fills:        container.FillStore,
		Paper:        container.PaperExecutor,
		Live:         container.LiveExecutor,
		Events:       container.EventManager,
		PriceTimeout: cfg.MarketPriceTimeout,
	}, log)

	container.PortfolioService = portfolio.NewPortfolioService(container.PositionRepo, container.SnapshotRepo, log)
	container.SnapshotService = snapshots.NewService(
		container.SnapshotRepo,
		container.PositionRepo,
		container.ExecutionRepo,
		container.EventManager,
		log,
	)
	container.Monitor = monitor.NewMonitor(
		container.PositionRepo,
		container.PriceService,
		container.OrderManager,
		container.EventManager,
		cfg.MonitorPriceTimeout,
		log,
	)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			store,
			container.Databases(),
			cfg.DataDir,
			cfg.Backup.Prefix,
			log,
		)
	}

	container.Scheduler = scheduler.New(container.EventManager, log)

	log.Info().
		Bool("market_data", container.AlphaVantageClient != nil).
		Bool("live_broker", container.BrokerAdapter != nil).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}

func initializeClients(container *Container, cfg *config.Config, log zerolog.Logger) {
	if cfg.AlphaVantage.APIKey != "" {
		container.AlphaVantageClient = alphavantage.NewClient(
			cfg.AlphaVantage.APIKey,
			log,
			alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL),
			alphavantage.WithDailyLimit(cfg.AlphaVantage.DailyLimit),
			alphavantage.WithCache(container.ClientDataRepo),
		)
	}

	// A stored token is enough to resume a session after restart
	token, err := container.TokenRepo.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored broker token")
	}
	if cfg.Questrade.Enabled() || token != nil {
		container.QuestradeClient = questrade.NewClient(questrade.Config{
			LoginURL:          cfg.Questrade.LoginURL,
			RefreshToken:      cfg.Questrade.RefreshToken,
			Timeout:           cfg.BrokerTimeout,
			RequestsPerSecond: cfg.Questrade.RequestsPerSecond,
		}, container.TokenRepo, log)
		container.BrokerAdapter = questrade.NewQuestradeBrokerAdapter(container.QuestradeClient, container.ClientDataRepo, log)
	}
}
