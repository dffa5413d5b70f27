// Package scheduler drives the engine's periodic work on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/aristath/tradeguard/internal/events"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the last known outcome of a registered job
type JobStatus struct {
	LastRun   *time.Time `json:"last_run,omitempty"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastError string     `json:"last_error,omitempty"`
	Duration  float64    `json:"last_duration_seconds"`
	Runs      int        `json:"runs"`
	Failures  int        `json:"failures"`
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	events *events.Manager
	log    zerolog.Logger

	mu     sync.RWMutex
	status map[string]*JobStatus
}

// New creates a new scheduler. A run that is still going when its next tick
// fires is skipped, and a panicking job is recovered.
func New(eventManager *events.Manager, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		events: eventManager,
		log:    log.With().Str("component", "scheduler").Logger(),
		status: make(map[string]*JobStatus),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 5 16 * * MON-FRI" - 16:05 on weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.status[job.Name()] = &JobStatus{Name: job.Name(), Schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

// Statuses returns the status of every registered job, sorted by name
func (s *Scheduler) Statuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(job Job) error {
	name := job.Name()
	s.log.Debug().Str("job", name).Msg("Running job")

	start := time.Now()
	err := job.Run()
	duration := time.Since(start)

	s.record(name, start, duration, err)

	data := &events.JobStatusData{
		JobName:  name,
		Status:   "completed",
		Duration: duration.Seconds(),
	}
	if err != nil {
		data.Status = "failed"
		data.Error = err.Error()
		s.log.Error().
			Err(err).
			Str("job", name).
			Dur("duration", duration).
			Msg("Job failed")
	} else {
		s.log.Debug().
			Str("job", name).
			Dur("duration", duration).
			Msg("Job completed")
	}
	s.events.EmitTyped("scheduler", data)

	return err
}

func (s *Scheduler) record(name string, start time.Time, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[name]
	if !ok {
		st = &JobStatus{Name: name}
		s.status[name] = st
	}
	st.LastRun = &start
	st.Duration = duration.Seconds()
	st.Runs++
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
		st.Failures++
	}
}
