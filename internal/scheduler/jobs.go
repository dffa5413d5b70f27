package scheduler

import (
	"context"
	"time"

	"github.com/aristath/tradeguard/internal/modules/monitor"
	"github.com/aristath/tradeguard/internal/modules/trading"
	"github.com/rs/zerolog"
)

// MonitorRunner runs a monitor pass over every account
type MonitorRunner interface {
	RunAll(ctx context.Context) ([]*monitor.PassResult, error)
}

// LiveOrderSyncer polls the broker for open live orders
type LiveOrderSyncer interface {
	SyncLiveOrders(ctx context.Context) (*trading.SyncSummary, error)
}

// SnapshotRoller records the daily snapshot for every account
type SnapshotRoller interface {
	RolloverAll(now time.Time) (int, error)
}

// PositionMonitorJob checks open positions against their exit levels
type PositionMonitorJob struct {
	runner  MonitorRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewPositionMonitorJob creates a monitor job. timeout bounds one whole pass.
func NewPositionMonitorJob(runner MonitorRunner, timeout time.Duration, log zerolog.Logger) *PositionMonitorJob {
	return &PositionMonitorJob{
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "position_monitor").Logger(),
	}
}

// Name returns the job name
func (j *PositionMonitorJob) Name() string {
	return "position_monitor"
}

// Run executes one monitor pass over all accounts
func (j *PositionMonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	results, err := j.runner.RunAll(ctx)
	if err != nil {
		return err
	}

	triggered := 0
	for _, r := range results {
		triggered += r.Triggered
	}
	if triggered > 0 {
		j.log.Info().
			Int("accounts", len(results)).
			Int("triggered", triggered).
			Msg("Monitor pass placed exit orders")
	}
	return nil
}

// LiveOrderSyncJob applies broker executions to open live orders
type LiveOrderSyncJob struct {
	syncer  LiveOrderSyncer
	timeout time.Duration
	log     zerolog.Logger
}

// NewLiveOrderSyncJob creates a live order sync job
func NewLiveOrderSyncJob(syncer LiveOrderSyncer, timeout time.Duration, log zerolog.Logger) *LiveOrderSyncJob {
	return &LiveOrderSyncJob{
		syncer:  syncer,
		timeout: timeout,
		log:     log.With().Str("job", "live_order_sync").Logger(),
	}
}

// Name returns the job name
func (j *LiveOrderSyncJob) Name() string {
	return "live_order_sync"
}

// Run polls every active live order once
func (j *LiveOrderSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.syncer.SyncLiveOrders(ctx)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		j.log.Warn().
			Int("checked", summary.Checked).
			Int("failed", summary.Failed).
			Msg("Some live orders could not be synced")
	}
	return nil
}

// SnapshotRolloverJob records the end-of-day portfolio snapshot
type SnapshotRolloverJob struct {
	roller SnapshotRoller
	now    func() time.Time
	log    zerolog.Logger
}

// NewSnapshotRolloverJob creates a snapshot rollover job
func NewSnapshotRolloverJob(roller SnapshotRoller, log zerolog.Logger) *SnapshotRolloverJob {
	return &SnapshotRolloverJob{
		roller: roller,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.With().Str("job", "snapshot_rollover").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotRolloverJob) Name() string {
	return "snapshot_rollover"
}

// Run records today's snapshot for every account
func (j *SnapshotRolloverJob) Run() error {
	recorded, err := j.roller.RolloverAll(j.now())
	j.log.Info().Int("recorded", recorded).Msg("Snapshot rollover completed")
	return err
}
