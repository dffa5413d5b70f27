package di

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/aristath/tradeguard/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates every background job and schedules it
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container.Scheduler == nil {
		return nil, fmt.Errorf("services must be initialized first")
	}

	instances := &JobInstances{
		PositionMonitor:  scheduler.NewPositionMonitorJob(container.Monitor, cfg.MonitorPriceTimeout*10, log),
		LiveOrderSync:    scheduler.NewLiveOrderSyncJob(container.OrderManager, cfg.BrokerTimeout*4, log),
		SnapshotRollover: scheduler.NewSnapshotRolloverJob(container.SnapshotService, log),
		WALCheckpoint:    scheduler.NewCheckWALCheckpointsJob(container.Databases(), log),
		IntegrityCheck:   scheduler.NewCheckCoreDatabasesJob(container.LedgerDB, log),
		CacheCleanup:     clientdata.NewCleanupJob(container.ClientDataRepo, log),
		Vacuum:           reliability.NewVacuumJob(container.Databases(), log),
	}
	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(
			container.BackupService,
			container.EventManager,
			cfg.DataDir,
			cfg.Backup.RetentionDays,
			log,
		)
	}

	schedules := []struct {
		job  scheduler.Job
		spec string
	}{
		{instances.PositionMonitor, cfg.Schedules.Monitor},
		{instances.LiveOrderSync, cfg.Schedules.LiveOrderSync},
		{instances.SnapshotRollover, cfg.Schedules.SnapshotRollover},
		{instances.WALCheckpoint, cfg.Schedules.WALCheckpoint},
		{instances.IntegrityCheck, cfg.Schedules.IntegrityCheck},
		{instances.CacheCleanup, cfg.Schedules.CacheCleanup},
		{instances.Vacuum, cfg.Schedules.Vacuum},
		{instances.Backup, cfg.Schedules.Backup},
	}
	for _, s := range schedules {
		if s.job == nil {
			continue
		}
		if err := container.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
		log.Debug().Str("job", s.job.Name()).Str("schedule", s.spec).Msg("Job scheduled")
	}

	log.Info().Int("jobs", len(instances.All())).Msg("Jobs registered")
	return instances, nil
}
