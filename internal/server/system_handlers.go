package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/scheduler"
)

// JobScheduler reports job statuses and runs jobs on demand
type JobScheduler interface {
	Statuses() []scheduler.JobStatus
	RunNow(job scheduler.Job) error
}

// SystemHandlers serves system status and job control endpoints
type SystemHandlers struct {
	databases map[string]*database.DB
	scheduler JobScheduler
	jobs      map[string]scheduler.Job
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger

	// Overridable for tests
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates system handlers. sched may be nil when no jobs are scheduled.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	sched *scheduler.Scheduler,
	jobs []scheduler.Job,
) *SystemHandlers {
	h := &SystemHandlers{
		databases: databases,
		jobs:      make(map[string]scheduler.Job, len(jobs)),
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
	if sched != nil {
		h.scheduler = sched
	}
	for _, job := range jobs {
		h.jobs[job.Name()] = job
	}
	h.systemStats = h.getSystemStats
	return h
}

// DBInfo describes one database's health
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Healthy   bool    `json:"healthy"`
	Error     string  `json:"error,omitempty"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	Databases     []DBInfo `json:"databases"`
	GoVersion     string   `json:"go_version"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	DiskFreeGB    float64  `json:"disk_free_gb"`
	Goroutines    int      `json:"goroutines"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// HandleSystemStatus returns database health and host resource usage.
// Status is "degraded" when any database fails its ping.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := SystemStatusResponse{
		Status:        "healthy",
		Databases:     h.databaseInfo(ctx),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	for _, db := range response.Databases {
		if !db.Healthy {
			response.Status = "degraded"
		}
	}

	response.CPUPercent, response.MemoryPercent = h.systemStats()
	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.DiskFreeGB = float64(usage.Free) / 1e9
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

func (h *SystemHandlers) databaseInfo(ctx context.Context) []DBInfo {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]DBInfo, 0, len(names))
	for _, name := range names {
		db := h.databases[name]
		info := DBInfo{Name: name, Path: db.Path(), Healthy: true}

		if err := db.QuickCheck(ctx); err != nil {
			info.Healthy = false
			info.Error = err.Error()
		} else if stats, err := db.GetStats(); err == nil {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}
		infos = append(infos, info)
	}
	return infos
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// JobsStatusResponse is returned by GET /api/system/jobs
type JobsStatusResponse struct {
	Jobs  []scheduler.JobStatus `json:"jobs"`
	Count int                   `json:"count"`
}

// HandleJobsStatus returns the last outcome of every scheduled job
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	statuses := []scheduler.JobStatus{}
	if h.scheduler != nil {
		statuses = append(statuses, h.scheduler.Statuses()...)
	}
	writeJSON(w, h.log, http.StatusOK, JobsStatusResponse{Jobs: statuses, Count: len(statuses)})
}

// HandleTriggerJob runs a job synchronously
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok || h.scheduler == nil {
		writeError(w, h.log, http.StatusNotFound, "unknown job: "+name)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	start := time.Now()
	if err := h.scheduler.RunNow(job); err != nil {
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]interface{}{
			"job":    name,
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"job":              name,
		"status":           "completed",
		"duration_seconds": time.Since(start).Seconds(),
	})
}
