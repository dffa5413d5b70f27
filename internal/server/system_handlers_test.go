package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/scheduler"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTestServer(t *testing.T, jobs ...scheduler.Job) *Server {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	sched := scheduler.New(nil, log)
	for _, job := range jobs {
		require.NoError(t, sched.AddJob("@every 1h", job))
	}

	srv := New(Config{
		Log:       log,
		Databases: map[string]*database.DB{"ledger": db},
		Scheduler: sched,
		Jobs:      jobs,
		Handlers:  []RouteRegistrar{pingRoutes{}},
		DataDir:   t.TempDir(),
		Port:      0,
		DevMode:   true,
	})
	srv.systemHandlers.systemStats = func() (float64, float64) { return 12.5, 40 }
	return srv
}

func get(t *testing.T, h http.Handler, method, path string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, get(t, srv.Router(), http.MethodGet, "/health", &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestModuleRoutesMountedUnderAPI(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNoContent, get(t, srv.Router(), http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv.Router(), http.MethodGet, "/ping", nil))
}

func TestHandleSystemStatus(t *testing.T) {
	srv := newTestServer(t)

	var resp SystemStatusResponse
	require.Equal(t, http.StatusOK, get(t, srv.Router(), http.MethodGet, "/api/system/status", &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.Len(t, resp.Databases, 1)
	assert.Equal(t, "ledger", resp.Databases[0].Name)
	assert.True(t, resp.Databases[0].Healthy)
	assert.Equal(t, 12.5, resp.CPUPercent)
	assert.Equal(t, 40.0, resp.MemoryPercent)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestHandleSystemStatus_DegradedWhenDatabaseClosed(t *testing.T) {
	srv := newTestServer(t)
	for _, db := range srv.systemHandlers.databases {
		require.NoError(t, db.Close())
	}

	var resp SystemStatusResponse
	require.Equal(t, http.StatusOK, get(t, srv.Router(), http.MethodGet, "/api/system/status", &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Databases[0].Healthy)
	assert.NotEmpty(t, resp.Databases[0].Error)
}

func TestHandleTriggerJob(t *testing.T) {
	ok := &stubJob{name: "position_monitor"}
	broken := &stubJob{name: "live_order_sync", err: errors.New("broker down")}
	srv := newTestServer(t, ok, broken)
	router := srv.Router()

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, get(t, router, http.MethodPost, "/api/system/jobs/position_monitor/run", &body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, 1, ok.runs)

	require.Equal(t, http.StatusInternalServerError, get(t, router, http.MethodPost, "/api/system/jobs/live_order_sync/run", &body))
	assert.Equal(t, "broker down", body["error"])

	assert.Equal(t, http.StatusNotFound, get(t, router, http.MethodPost, "/api/system/jobs/nope/run", nil))

	var jobs JobsStatusResponse
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/system/jobs", &jobs))
	require.Equal(t, 2, jobs.Count)
	assert.Equal(t, "live_order_sync", jobs.Jobs[0].Name)
	assert.Equal(t, 1, jobs.Jobs[0].Failures)
	assert.Equal(t, "position_monitor", jobs.Jobs[1].Name)
	assert.Equal(t, 1, jobs.Jobs[1].Runs)
}
