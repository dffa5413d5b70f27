package scheduler

import (
	"sort"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

// walFrameWarning is the WAL size in frames above which a full checkpoint is forced
const walFrameWarning = 1000

// CheckWALCheckpointsJob checkpoints the WAL of every open database
type CheckWALCheckpointsJob struct {
	log zerolog.Logger
	dbs map[string]*database.DB
}

// NewCheckWALCheckpointsJob creates a job over the given databases keyed by name
func NewCheckWALCheckpointsJob(dbs map[string]*database.DB, log zerolog.Logger) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log: log.With().Str("job", "check_wal_checkpoints").Logger(),
		dbs: dbs,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run runs a passive checkpoint on each database and truncates the WAL when it has grown large
func (j *CheckWALCheckpointsJob) Run() error {
	names := make([]string, 0, len(j.dbs))
	for name := range j.dbs {
		names = append(names, name)
	}
	sort.Strings(names)

	checkedCount := 0
	for _, name := range names {
		db := j.dbs[name]
		if db == nil {
			continue
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", name).
				Msg("Failed to check WAL checkpoint")
			continue
		}

		if frames > walFrameWarning {
			j.log.Warn().
				Str("database", name).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, truncating")
			if err := db.WALCheckpoint("TRUNCATE"); err != nil {
				j.log.Warn().Err(err).Str("database", name).Msg("WAL truncate failed")
			}
		} else {
			j.log.Debug().
				Str("database", name).
				Int("wal_frames", frames).
				Msg("WAL checkpoint status OK")
		}

		checkedCount++
	}

	j.log.Debug().
		Int("checked", checkedCount).
		Msg("WAL checkpoint check completed")

	return nil
}
