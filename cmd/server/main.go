// Package main is the entry point for the TradeGuard trading engine.
// The engine validates orders against per-account risk limits, routes them to a
// paper or live broker, keeps the position ledger consistent with fills, and
// watches open positions for stop-loss and take-profit exits.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/di"
	"github.com/aristath/tradeguard/internal/server"
	"github.com/aristath/tradeguard/pkg/logger"
)

// brokerStatusInterval is how often broker connectivity is checked
const brokerStatusInterval = 30 * time.Second

// main is the application entry point. Startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging (console, plus rotating JSON file when LOG_FILE is set)
// 3. Wires all dependencies via DI container (databases, repositories, services, jobs)
// 4. Starts HTTP server, scheduler and broker status monitor
// 5. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 2-database architecture:
// - ledger.db: Orders, executions, positions, snapshots, risk settings, broker tokens
// - client_data.db: Cache for quotes and broker symbol ids
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		File:   cfg.LogFile,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("snapshot_policy", string(cfg.SnapshotPolicy)).
		Msg("Starting TradeGuard")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing stops the scheduler first so no job touches a closed database
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Databases: container.Databases(),
		EventBus:  container.EventBus,
		Scheduler: container.Scheduler,
		Jobs:      jobs.All(),
		Handlers:  di.BuildHandlers(container, cfg, log),
		DataDir:   cfg.DataDir,
		LogFile:   cfg.LogFile,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker connectivity is only tracked when a live broker is configured
	if container.BrokerAdapter != nil {
		statusMonitor := server.NewStatusMonitor(container.EventManager, container.BrokerAdapter, "questrade", log)
		statusMonitor.Start(ctx, brokerStatusInterval)
	} else {
		log.Warn().Msg("Questrade not configured - live orders will be rejected")
	}

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	log.Info().Msg("Shutting down server...")

	// In-flight requests (including order placement) get up to 10 seconds
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
