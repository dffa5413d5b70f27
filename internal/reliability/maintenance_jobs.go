package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds in bytes
const (
	criticalFreeBytes = 500 * 1000 * 1000
	warningFreeBytes  = 2 * 1000 * 1000 * 1000
)

// DiskUsageFunc reports free bytes for the filesystem holding path
type DiskUsageFunc func(path string) (uint64, error)

// FreeDiskBytes reads free space via gopsutil
func FreeDiskBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return usage.Free, nil
}

// BackupJob archives the databases, uploads them and rotates old archives
type BackupJob struct {
	service       *BackupService
	events        *events.Manager
	diskUsage     DiskUsageFunc
	dataDir       string
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(
	service *BackupService,
	eventManager *events.Manager,
	dataDir string,
	retentionDays int,
	log zerolog.Logger,
) *BackupJob {
	return &BackupJob{
		service:       service,
		events:        eventManager,
		diskUsage:     FreeDiskBytes,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		timeout:       30 * time.Minute,
		log:           log.With().Str("job", "cloud_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "cloud_backup"
}

// Run executes the backup job.
// A low-disk condition aborts before staging because the archive needs room for a full copy.
func (j *BackupJob) Run() error {
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.service.CreateAndUploadBackup(ctx)
	if err != nil {
		return err
	}

	rotated, err := j.service.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		// The new archive is already stored
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.events.EmitTyped("reliability", &events.BackupCompletedData{
		Key:       result.Key,
		SizeBytes: result.SizeBytes,
		Duration:  result.Duration.Seconds(),
		Rotated:   rotated,
	})

	return nil
}

func (j *BackupJob) checkDiskSpace() error {
	free, err := j.diskUsage(j.dataDir)
	if err != nil {
		return err
	}

	availableGB := float64(free) / 1e9
	if free < criticalFreeBytes {
		j.log.Error().Float64("available_gb", availableGB).Msg("Insufficient disk space for backup")
		return fmt.Errorf("only %.2f GB free, backup skipped", availableGB)
	}
	if free < warningFreeBytes {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Low disk space")
	}
	return nil
}

// VacuumJob performs weekly VACUUM on the databases to reclaim space
type VacuumJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewVacuumJob creates a new weekly vacuum job
func NewVacuumJob(databases map[string]*database.DB, log zerolog.Logger) *VacuumJob {
	return &VacuumJob{
		databases: databases,
		log:       log.With().Str("job", "vacuum_databases").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *VacuumJob) Name() string {
	return "vacuum_databases"
}

// Run executes VACUUM on every database, continuing past failures
func (j *VacuumJob) Run() error {
	var failed []string
	for name, db := range j.databases {
		if err := j.vacuumDatabase(db, name); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Vacuum failed")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("vacuum failed for %v", failed)
	}
	return nil
}

func (j *VacuumJob) vacuumDatabase(db *database.DB, name string) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := db.Vacuum(); err != nil {
		return err
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", name).
		Int64("reclaimed_bytes", before.SizeBytes-after.SizeBytes).
		Dur("duration_ms", time.Since(start)).
		Msg("Database vacuumed")
	return nil
}
