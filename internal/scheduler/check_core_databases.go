package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

// CheckCoreDatabasesJob verifies integrity of the ledger database
type CheckCoreDatabasesJob struct {
	log     zerolog.Logger
	ledger  *database.DB
	timeout time.Duration
}

// NewCheckCoreDatabasesJob creates a new CheckCoreDatabasesJob
func NewCheckCoreDatabasesJob(ledger *database.DB, log zerolog.Logger) *CheckCoreDatabasesJob {
	return &CheckCoreDatabasesJob{
		log:     log.With().Str("job", "check_core_databases").Logger(),
		ledger:  ledger,
		timeout: time.Minute,
	}
}

// Name returns the job name
func (j *CheckCoreDatabasesJob) Name() string {
	return "check_core_databases"
}

// Run executes SQLite's integrity check on the ledger
func (j *CheckCoreDatabasesJob) Run() error {
	if j.ledger == nil {
		j.log.Warn().Msg("Ledger database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.ledger.HealthCheck(ctx); err != nil {
		// Ledger corruption cannot be auto-recovered; restore from backup
		j.log.Error().
			Err(err).
			Str("database", j.ledger.Name()).
			Msg("Core database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %w", j.ledger.Name(), err)
	}

	j.log.Debug().Str("database", j.ledger.Name()).Msg("Database integrity OK")
	return nil
}
