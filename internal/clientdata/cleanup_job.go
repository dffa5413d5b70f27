package clientdata

import (
	"github.com/rs/zerolog"
)

// CleanupJob purges expired cache entries
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}

// Run deletes expired rows from every cache table
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Cache cleanup failed")
		return err
	}

	event := j.log.Info()
	var total int64
	for table, n := range results {
		event = event.Int64(string(table), n)
		total += n
	}
	event.Int64("total", total).Msg("Cache cleanup completed")
	return nil
}
