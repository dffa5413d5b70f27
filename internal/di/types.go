// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived component. It is built by Wire and is the
// single source of truth for service instances.
package di

import (
	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/clients/alphavantage"
	"github.com/aristath/tradeguard/internal/clients/questrade"
	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/monitor"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/aristath/tradeguard/internal/modules/settings"
	"github.com/aristath/tradeguard/internal/modules/snapshots"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/aristath/tradeguard/internal/modules/universe"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/aristath/tradeguard/internal/scheduler"
	"github.com/aristath/tradeguard/internal/services"
)

// Container holds all dependencies for the application.
//
// Optional integrations (market data, live broker, backups) are nil when not configured.
type Container struct {
	// Databases
	LedgerDB     *database.DB // Orders, executions, positions, snapshots, settings, broker tokens
	ClientDataDB *database.DB // External API response cache

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	InstrumentRepo *universe.InstrumentRepository
	PositionRepo   *portfolio.PositionRepository
	OrderRepo      *trading.OrderRepository
	ExecutionRepo  *trading.ExecutionRepository
	SnapshotRepo   *snapshots.Repository
	SettingsRepo   *settings.Repository
	ClientDataRepo *clientdata.Repository
	TokenRepo      *questrade.TokenRepository

	// Clients
	AlphaVantageClient *alphavantage.Client
	QuestradeClient    *questrade.Client
	BrokerAdapter      *questrade.QuestradeBrokerAdapter

	// Services
	PriceService     *services.PriceService
	Validator        *risk.Validator
	FillStore        *trading.FillStore
	PaperExecutor    *trading.PaperExecutor
	LiveExecutor     *trading.LiveExecutor
	OrderManager     *trading.OrderManager
	PortfolioService *portfolio.PortfolioService
	SnapshotService  *snapshots.Service
	Monitor          *monitor.Monitor
	BackupService    *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// Databases returns every open database keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.LedgerDB != nil {
		dbs[database.NameLedger] = c.LedgerDB
	}
	if c.ClientDataDB != nil {
		dbs[database.NameClientData] = c.ClientDataDB
	}
	return dbs
}

// Close stops the scheduler and closes every database
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}

// JobInstances holds references to all registered jobs
type JobInstances struct {
	PositionMonitor  scheduler.Job
	LiveOrderSync    scheduler.Job
	SnapshotRollover scheduler.Job
	WALCheckpoint    scheduler.Job
	IntegrityCheck   scheduler.Job
	CacheCleanup     scheduler.Job
	Vacuum           scheduler.Job
	Backup           scheduler.Job // nil when backups are not configured
}

// All returns the registered jobs, skipping unset ones
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	for _, job := range []scheduler.Job{
		j.PositionMonitor,
		j.LiveOrderSync,
		j.SnapshotRollover,
		j.WALCheckpoint,
		j.IntegrityCheck,
		j.CacheCleanup,
		j.Vacuum,
		j.Backup,
	} {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
