package questrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTokenStore struct {
	mu    sync.Mutex
	token *Token
	saves int
}

func (s *memoryTokenStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, nil
	}
	t := *s.token
	return &t, nil
}

func (s *memoryTokenStore) Save(token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *token
	s.token = &t
	s.saves++
	return nil
}

// fakeQuestrade serves both the login and API hosts
type fakeQuestrade struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	refreshes     int
	searches      int
	validToken    string
	nextAccess    string
	unauthorized  bool
	lastOrderBody map[string]interface{}
	routes        map[string]http.HandlerFunc
}

func newFakeQuestrade(t *testing.T) *fakeQuestrade {
	f := &fakeQuestrade{t: t, validToken: "at-1", nextAccess: "at-1", routes: make(map[string]http.HandlerFunc)}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)

	f.routes["GET /v1/symbols/search"] = func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.searches++
		f.mu.Unlock()
		fmt.Fprintf(w, `{"symbols":[
			{"symbol":"%[1]s.W","symbolId":1,"isTradable":true},
			{"symbol":"%[1]s","symbolId":38738,"listingExchange":"TSX","isTradable":true}]}`, r.URL.Query().Get("prefix"))
	}
	return f
}

func (f *fakeQuestrade) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth2/token" {
		f.mu.Lock()
		f.refreshes++
		access := f.nextAccess
		f.validToken = access
		n := f.refreshes
		f.mu.Unlock()

		assert.Equal(f.t, "refresh_token", r.URL.Query().Get("grant_type"))
		fmt.Fprintf(w, `{"access_token":"%s","token_type":"Bearer","expires_in":1800,"refresh_token":"rt-%d","api_server":"%s/"}`,
			access, n+1, f.server.URL)
		return
	}

	f.mu.Lock()
	valid := f.validToken
	unauthorized := f.unauthorized
	f.mu.Unlock()
	if unauthorized || r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":1017,"message":"Access token is invalid"}`)
		return
	}

	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":1001,"message":"not found"}`)
		return
	}
	handler(w, r)
}

func (f *fakeQuestrade) newAdapter(store TokenStore, bootstrap string, cache *clientdata.Repository) *QuestradeBrokerAdapter {
	client := NewClient(Config{LoginURL: f.server.URL, RefreshToken: bootstrap}, store, zerolog.Nop())
	return NewQuestradeBrokerAdapter(client, cache, zerolog.Nop())
}

func TestPlaceOrder_BootstrapsTokenAndSendsPayload(t *testing.T) {
	f := newFakeQuestrade(t)
	f.routes["POST /v1/accounts/12345/orders"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastOrderBody = body
		f.mu.Unlock()
		fmt.Fprint(w, `{"orderId":991,"orders":[{"id":991,"symbol":"SHOP.TO","state":"Accepted","totalQuantity":100}]}`)
	}
	store := &memoryTokenStore{}
	adapter := f.newAdapter(store, "rt-1", nil)

	result, err := adapter.PlaceOrder(context.Background(), domain.BrokerOrderRequest{
		AccountID:  "12345",
		Symbol:     "SHOP.TO",
		Type:       domain.OrderTypeLimit,
		Side:       domain.OrderSideBuy,
		Quantity:   100,
		LimitPrice: domain.Float64Ptr(150),
	})
	require.NoError(t, err)
	assert.Equal(t, "991", result.OrderID)
	assert.Equal(t, "Accepted", result.State)

	body := f.lastOrderBody
	assert.Equal(t, "12345", body["accountNumber"])
	assert.Equal(t, float64(38738), body["symbolId"])
	assert.Equal(t, float64(100), body["quantity"])
	assert.Equal(t, "Limit", body["orderType"])
	assert.Equal(t, "Buy", body["action"])
	assert.Equal(t, "Day", body["timeInForce"])
	assert.Equal(t, float64(150), body["limitPrice"])
	_, hasStop := body["stopPrice"]
	assert.False(t, hasStop)

	assert.Equal(t, 1, f.refreshes)
	require.NotNil(t, store.token)
	assert.Equal(t, "at-1", store.token.AccessToken)
	assert.Equal(t, "rt-2", store.token.RefreshToken)
	assert.Equal(t, f.server.URL, store.token.APIServer)
	assert.True(t, adapter.IsConnected())
}

func TestClient_RefreshesOnceOn401(t *testing.T) {
	f := newFakeQuestrade(t)
	f.validToken = "at-new"
	f.nextAccess = "at-new"
	f.routes["GET /v1/markets/quotes/38738"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":[{"symbol":"SHOP.TO","symbolId":38738,"lastTradePrice":151.2,"bidPrice":151.1,"askPrice":151.3}]}`)
	}
	store := &memoryTokenStore{token: &Token{
		AccessToken:  "at-old",
		RefreshToken: "rt-stored",
		APIServer:    f.server.URL,
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	adapter := f.newAdapter(store, "", nil)

	quote, err := adapter.GetQuote(context.Background(), "SHOP.TO")
	require.NoError(t, err)
	assert.Equal(t, 151.2, quote.Price)
	assert.Equal(t, 151.1, quote.Bid)
	assert.Equal(t, 1, f.refreshes)
	assert.Equal(t, "at-new", store.token.AccessToken)
}

func TestClient_SecondUnauthorizedIsNotRetried(t *testing.T) {
	f := newFakeQuestrade(t)
	f.unauthorized = true
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

	_, err := adapter.GetOrderStatus(context.Background(), "12345", "991")
	require.Error(t, err)

	var be *domain.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.False(t, be.Rejected)
	// initial token fetch plus the single retry refresh
	assert.Equal(t, 2, f.refreshes)
}

func TestClient_NoCredentials(t *testing.T) {
	f := newFakeQuestrade(t)
	adapter := f.newAdapter(&memoryTokenStore{}, "", nil)

	_, err := adapter.GetExecutions(context.Background(), "12345", "991")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, adapter.IsConnected())
	assert.Equal(t, 0, f.refreshes)
}

func TestPlaceOrder_RejectionMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		rejected bool
		message  string
	}{
		{name: "client error", status: http.StatusBadRequest, body: `{"code":1019,"message":"Insufficient buying power"}`, rejected: true, message: "Insufficient buying power"},
		{name: "rejected state", status: http.StatusOK, body: `{"orders":[{"id":5,"state":"Rejected","rejectReason":"Market closed"}]}`, rejected: true, message: "Market closed"},
		{name: "server error", status: http.StatusInternalServerError, body: `{"code":1000,"message":"Internal error"}`},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"code":1006,"message":"Rate limit exceeded"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeQuestrade(t)
			f.routes["POST /v1/accounts/12345/orders"] = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}
			adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

			_, err := adapter.PlaceOrder(context.Background(), domain.BrokerOrderRequest{
				AccountID: "12345", Symbol: "SHOP.TO", Type: domain.OrderTypeMarket, Side: domain.OrderSideSell, Quantity: 10,
			})
			require.Error(t, err)
			assert.Equal(t, tt.rejected, domain.IsBrokerRejection(err))
			if tt.message != "" {
				var be *domain.BrokerError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, tt.message, be.Message)
			}
		})
	}
}

func TestPlaceOrder_UnknownSymbolIsRejected(t *testing.T) {
	f := newFakeQuestrade(t)
	f.routes["GET /v1/symbols/search"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[{"symbol":"SHOPX","symbolId":7}]}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

	_, err := adapter.PlaceOrder(context.Background(), domain.BrokerOrderRequest{
		AccountID: "12345", Symbol: "SHOP", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy, Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, domain.IsBrokerRejection(err))
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestSymbolLookupIsCached(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameClientData)
	defer cleanup()

	f := newFakeQuestrade(t)
	f.routes["GET /v1/markets/quotes/38738"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":[{"symbol":"RY.TO","symbolId":38738,"lastTradePrice":130.5}]}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", clientdata.NewRepository(db.Conn()))

	for i := 0; i < 3; i++ {
		quote, err := adapter.GetQuote(context.Background(), "RY.TO")
		require.NoError(t, err)
		assert.Equal(t, 130.5, quote.Price)
	}
	assert.Equal(t, 1, f.searches)
}

func TestSymbolLookup_FallsBackToExpiredCache(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameClientData)
	defer cleanup()

	cache := clientdata.NewRepository(db.Conn())
	require.NoError(t, cache.Store(clientdata.TableBrokerSymbols, "RY.TO", int64(38738), -time.Hour))

	f := newFakeQuestrade(t)
	f.routes["GET /v1/symbols/search"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"code":1000,"message":"unavailable"}`)
	}
	f.routes["GET /v1/markets/quotes/38738"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":[{"symbol":"RY.TO","symbolId":38738,"lastTradePrice":130.5}]}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", cache)

	quote, err := adapter.GetQuote(context.Background(), "RY.TO")
	require.NoError(t, err)
	assert.Equal(t, 130.5, quote.Price)
}

func TestGetQuote_NoLastTrade(t *testing.T) {
	f := newFakeQuestrade(t)
	f.routes["GET /v1/markets/quotes/38738"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":[{"symbol":"RY.TO","symbolId":38738,"lastTradePrice":null}]}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

	_, err := adapter.GetQuote(context.Background(), "RY.TO")
	var be *domain.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "get_quote", be.Op)
}

func TestGetOrderStatus(t *testing.T) {
	tests := []struct {
		state     string
		filled    bool
		cancelled bool
		rejected  bool
	}{
		{state: "Accepted"},
		{state: "Partial"},
		{state: "Executed", filled: true},
		{state: "Canceled", cancelled: true},
		{state: "Expired", cancelled: true},
		{state: "Rejected", rejected: true},
		{state: "Failed", rejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			f := newFakeQuestrade(t)
			f.routes["GET /v1/accounts/12345/orders/991"] = func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"orders":[{"id":991,"state":"%s","filledQuantity":40,"avgExecPrice":150.5}]}`, tt.state)
			}
			adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

			status, err := adapter.GetOrderStatus(context.Background(), "12345", "991")
			require.NoError(t, err)
			assert.Equal(t, "991", status.OrderID)
			assert.Equal(t, tt.state, status.State)
			assert.Equal(t, int64(40), status.FilledQuantity)
			assert.Equal(t, 150.5, status.AvgFillPrice)
			assert.Equal(t, tt.filled, status.Filled)
			assert.Equal(t, tt.cancelled, status.Cancelled)
			assert.Equal(t, tt.rejected, status.Rejected)
		})
	}
}

func TestGetExecutions(t *testing.T) {
	f := newFakeQuestrade(t)
	f.routes["GET /v1/accounts/12345/orders/991/executions"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"executions":[
			{"id":53817310,"orderId":991,"symbol":"SHOP.TO","quantity":40,"price":150,"commission":4.95,"executionFee":0.05,"secFee":0,"canadianExecutionFee":0.01,"timestamp":"2026-03-02T10:15:30.000000-05:00"},
			{"id":53817311,"orderId":991,"symbol":"SHOP.TO","quantity":60,"price":151,"commission":0,"timestamp":"bogus"}]}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

	execs, err := adapter.GetExecutions(context.Background(), "12345", "991")
	require.NoError(t, err)
	require.Len(t, execs, 2)

	assert.Equal(t, "53817310", execs[0].ExecutionID)
	assert.Equal(t, "991", execs[0].OrderID)
	assert.Equal(t, int64(40), execs[0].Quantity)
	assert.InDelta(t, 5.01, execs[0].Commission, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 15, 30, 0, time.UTC), execs[0].ExecutedAt)

	assert.False(t, execs[1].ExecutedAt.IsZero())
}

func TestCancelOrder(t *testing.T) {
	f := newFakeQuestrade(t)
	var cancelled bool
	f.routes["DELETE /v1/accounts/12345/orders/991"] = func(w http.ResponseWriter, r *http.Request) {
		cancelled = true
		fmt.Fprint(w, `{"orderId":991}`)
	}
	adapter := f.newAdapter(&memoryTokenStore{}, "rt-1", nil)

	require.NoError(t, adapter.CancelOrder(context.Background(), "12345", "991"))
	assert.True(t, cancelled)

	err := adapter.CancelOrder(context.Background(), "12345", "404")
	var be *domain.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusNotFound, be.StatusCode)
	assert.False(t, be.Rejected)
}

func TestTokenRepository(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	defer cleanup()

	repo := NewTokenRepository(db.Conn(), zerolog.Nop())

	missing, err := repo.Load()
	require.NoError(t, err)
	assert.Nil(t, missing)

	expires := time.Now().Add(30 * time.Minute).Truncate(time.Second).UTC()
	require.NoError(t, repo.Save(&Token{AccessToken: "a1", RefreshToken: "r1", APIServer: "https://api01.iq.questrade.com", ExpiresAt: expires}))
	require.NoError(t, repo.Save(&Token{AccessToken: "a2", RefreshToken: "r2", APIServer: "https://api02.iq.questrade.com", ExpiresAt: expires}))

	token, err := repo.Load()
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "a2", token.AccessToken)
	assert.Equal(t, "r2", token.RefreshToken)
	assert.Equal(t, "https://api02.iq.questrade.com", token.APIServer)
	assert.Equal(t, expires, token.ExpiresAt)
	assert.True(t, token.Valid(time.Now()))
	assert.False(t, token.Valid(expires.Add(time.Second)))
}
