package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{status: http.StatusOK, response: `{"ok":true}`}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		status, response := f.status, f.response
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func run(t *testing.T, f *fakeServer, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", f.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPlaceOrder(t *testing.T) {
	f := newFakeServer(t)
	f.response = `{"id":"o-1","status":"FILLED"}`

	out, err := run(t, f, "orders", "place", "A1", "shop",
		"--side", "buy", "--qty", "100", "--limit", "150", "--stop-loss", "142.5", "--reason", "breakout")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "FILLED"`)

	req := f.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/accounts/A1/orders", req.Path)
	assert.Equal(t, "SHOP", req.Body["symbol"])
	assert.Equal(t, "BUY", req.Body["side"])
	assert.Equal(t, "LIMIT", req.Body["order_type"])
	assert.Equal(t, float64(100), req.Body["quantity"])
	assert.Equal(t, 150.0, req.Body["limit_price"])
	assert.Equal(t, 142.5, req.Body["stop_loss_price"])
	assert.Equal(t, "breakout", req.Body["reasoning"])
	assert.NotContains(t, req.Body, "take_profit_price")
}

func TestPlaceOrder_DryRunDefaultsToMarket(t *testing.T) {
	f := newFakeServer(t)

	_, err := run(t, f, "orders", "place", "A1", "RY", "--side", "sell", "--qty", "5", "--dry-run")
	require.NoError(t, err)

	req := f.last(t)
	assert.Equal(t, "/api/accounts/A1/risk/validate", req.Path)
	assert.Equal(t, "MARKET", req.Body["order_type"])
	assert.Equal(t, "SELL", req.Body["side"])
}

func TestPlaceOrder_InvalidFlags(t *testing.T) {
	f := newFakeServer(t)

	_, err := run(t, f, "orders", "place", "A1", "RY", "--side", "hold", "--qty", "5")
	assert.ErrorContains(t, err, "side must be BUY or SELL")

	_, err = run(t, f, "orders", "place", "A1", "RY", "--side", "buy", "--qty", "0")
	assert.ErrorContains(t, err, "quantity must be positive")

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.requests)
}

func TestPlaceOrder_Rejection(t *testing.T) {
	f := newFakeServer(t)
	f.status = http.StatusUnprocessableEntity
	f.response = `{"reason":"position_size_exceeded","message":"position size 25.0% exceeds limit of 20.0%"}`

	_, err := run(t, f, "orders", "place", "A1", "SHOP", "--side", "buy", "--qty", "1000")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "position_size_exceeded")
}

func TestOrderCommands(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		path   string
		query  string
	}{
		{[]string{"orders", "list", "A1", "--limit", "5"}, http.MethodGet, "/api/accounts/A1/orders", "limit=5"},
		{[]string{"orders", "get", "o-1"}, http.MethodGet, "/api/orders/o-1", ""},
		{[]string{"orders", "cancel", "o-1"}, http.MethodPost, "/api/orders/o-1/cancel", ""},
		{[]string{"orders", "sync", "o-1"}, http.MethodPost, "/api/orders/o-1/sync", ""},
		{[]string{"positions", "A1", "--all"}, http.MethodGet, "/api/accounts/A1/positions", "include_closed=true"},
		{[]string{"summary", "A1"}, http.MethodGet, "/api/accounts/A1/summary", ""},
		{[]string{"monitor", "A1"}, http.MethodPost, "/api/accounts/A1/monitor", ""},
		{[]string{"snapshots", "list", "A1", "--days", "7"}, http.MethodGet, "/api/accounts/A1/snapshots", "days=7"},
		{[]string{"snapshots", "record", "A1"}, http.MethodPost, "/api/accounts/A1/snapshots", ""},
		{[]string{"settings", "get", "A1"}, http.MethodGet, "/api/accounts/A1/settings", ""},
		{[]string{"status"}, http.MethodGet, "/api/system/status", ""},
		{[]string{"jobs", "list"}, http.MethodGet, "/api/system/jobs", ""},
		{[]string{"jobs", "run", "cloud_backup"}, http.MethodPost, "/api/system/jobs/cloud_backup/run", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := newFakeServer(t)
			_, err := run(t, f, tt.args...)
			require.NoError(t, err)

			req := f.last(t)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, tt.query, req.Query)
		})
	}
}

func TestSettingsSet(t *testing.T) {
	f := newFakeServer(t)

	_, err := run(t, f, "settings", "set", "A1", "position_size_pct=10", "paper_trading_enabled=false")
	require.NoError(t, err)

	req := f.last(t)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/accounts/A1/settings", req.Path)
	assert.Equal(t, 10.0, req.Body["position_size_pct"])
	assert.Equal(t, false, req.Body["paper_trading_enabled"])
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"max_open_positions=5", "require_stop_loss=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"max_open_positions": 5.0, "require_stop_loss": true}, got)

	_, err = parseAssignments([]string{"position_size_pct"})
	assert.Error(t, err)

	_, err = parseAssignments([]string{"position_size_pct=lots"})
	assert.Error(t, err)
}

func TestIndentJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", indentJSON([]byte(`{"a":1}`)))
	assert.Equal(t, "plain text", indentJSON([]byte("plain text\n")))
}
