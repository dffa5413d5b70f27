package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
)

// MockBrokerClient is a programmable in-memory implementation of domain.BrokerClient
type MockBrokerClient struct {
	mu          sync.Mutex
	connected   bool
	nextID      int
	placeErr    error
	cancelErr   error
	statusErr   error
	execErr     error
	quoteErr    error
	statuses    map[string]*domain.BrokerOrderStatus
	executions  map[string][]domain.BrokerExecution
	quotes      map[string]float64
	placed      []domain.BrokerOrderRequest
	cancelled   []string
	cancelCalls int
}

var _ domain.BrokerClient = (*MockBrokerClient)(nil)

// NewMockBrokerClient creates a connected mock broker
func NewMockBrokerClient() *MockBrokerClient {
	return &MockBrokerClient{
		connected:  true,
		statuses:   make(map[string]*domain.BrokerOrderStatus),
		executions: make(map[string][]domain.BrokerExecution),
		quotes:     make(map[string]float64),
	}
}

// SetPlaceError sets the error returned by PlaceOrder
func (m *MockBrokerClient) SetPlaceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeErr = err
}

// SetCancelError sets the error returned by CancelOrder
func (m *MockBrokerClient) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// SetStatusError sets the error returned by GetOrderStatus
func (m *MockBrokerClient) SetStatusError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErr = err
}

// SetExecutionsError sets the error returned by GetExecutions
func (m *MockBrokerClient) SetExecutionsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execErr = err
}

// SetQuoteError sets the error returned by GetQuote
func (m *MockBrokerClient) SetQuoteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteErr = err
}

// SetConnected sets the connection state
func (m *MockBrokerClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// SetOrderStatus sets the status reported for a broker order id
func (m *MockBrokerClient) SetOrderStatus(status domain.BrokerOrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.OrderID] = &status
}

// SetExecutions sets the executions reported for a broker order id
func (m *MockBrokerClient) SetExecutions(brokerOrderID string, executions []domain.BrokerExecution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[brokerOrderID] = executions
}

// SetQuote sets the last price for a symbol
func (m *MockBrokerClient) SetQuote(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[strings.ToUpper(symbol)] = price
}

// PlacedOrders returns every request PlaceOrder accepted
func (m *MockBrokerClient) PlacedOrders() []domain.BrokerOrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BrokerOrderRequest(nil), m.placed...)
}

// CancelledOrders returns the broker ids successfully cancelled
func (m *MockBrokerClient) CancelledOrders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

// CancelCalls returns the number of CancelOrder calls, successful or not
func (m *MockBrokerClient) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

// PlaceOrder assigns a sequential broker id (BRK-1, BRK-2, ...)
func (m *MockBrokerClient) PlaceOrder(ctx context.Context, req domain.BrokerOrderRequest) (*domain.BrokerOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.nextID++
	m.placed = append(m.placed, req)
	return &domain.BrokerOrderResult{OrderID: fmt.Sprintf("BRK-%d", m.nextID), State: "Accepted"}, nil
}

// CancelOrder cancels a broker order
func (m *MockBrokerClient) CancelOrder(ctx context.Context, accountID, brokerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, brokerOrderID)
	return nil
}

// GetOrderStatus returns the configured status, or an accepted open order
func (m *MockBrokerClient) GetOrderStatus(ctx context.Context, accountID, brokerOrderID string) (*domain.BrokerOrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if status, ok := m.statuses[brokerOrderID]; ok {
		s := *status
		return &s, nil
	}
	return &domain.BrokerOrderStatus{OrderID: brokerOrderID, State: "Accepted"}, nil
}

// GetExecutions returns the configured executions
func (m *MockBrokerClient) GetExecutions(ctx context.Context, accountID, brokerOrderID string) ([]domain.BrokerExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.execErr != nil {
		return nil, m.execErr
	}
	return append([]domain.BrokerExecution(nil), m.executions[brokerOrderID]...), nil
}

// GetQuote returns the configured quote
func (m *MockBrokerClient) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	price, ok := m.quotes[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &domain.BrokerQuote{Symbol: symbol, Price: price}, nil
}

// IsConnected returns the configured connection state
func (m *MockBrokerClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// MockPriceProvider is a programmable implementation of domain.PriceProvider
type MockPriceProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	delays map[string]time.Duration
	calls  map[string]int
}

var _ domain.PriceProvider = (*MockPriceProvider)(nil)

// NewMockPriceProvider creates an empty price provider
func NewMockPriceProvider() *MockPriceProvider {
	return &MockPriceProvider{
		prices: make(map[string]float64),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

// SetPrice sets the price returned for a symbol
func (m *MockPriceProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

// SetError sets the error returned for a symbol
func (m *MockPriceProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[strings.ToUpper(symbol)] = err
}

// SetDelay makes lookups for a symbol block for d or until the context ends
func (m *MockPriceProvider) SetDelay(symbol string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[strings.ToUpper(symbol)] = d
}

// Calls returns the number of lookups for a symbol
func (m *MockPriceProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(symbol)]
}

// GetLatestPrice returns the configured price
func (m *MockPriceProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	key := strings.ToUpper(symbol)

	m.mu.Lock()
	m.calls[key]++
	delay := m.delays[key]
	err := m.errs[key]
	price, ok := m.prices[key]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &domain.MarketDataUnavailableError{Symbol: key}
	}
	return price, nil
}

// StaticSettingsProvider serves fixed risk settings, falling back to the defaults
type StaticSettingsProvider struct {
	mu       sync.RWMutex
	settings map[string]domain.RiskSettings
	err      error
}

var _ domain.RiskSettingsProvider = (*StaticSettingsProvider)(nil)

// NewStaticSettingsProvider creates a provider serving the given settings
func NewStaticSettingsProvider(settings ...domain.RiskSettings) *StaticSettingsProvider {
	p := &StaticSettingsProvider{settings: make(map[string]domain.RiskSettings)}
	for _, s := range settings {
		p.settings[s.AccountID] = s
	}
	return p
}

// Set replaces an account's settings
func (p *StaticSettingsProvider) Set(s domain.RiskSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings[s.AccountID] = s
}

// SetError sets the error to return
func (p *StaticSettingsProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Get returns the account's settings
func (p *StaticSettingsProvider) Get(accountID string) (*domain.RiskSettings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.settings[accountID]
	if !ok {
		s = domain.DefaultRiskSettings(accountID)
	}
	return &s, nil
}

// StaticSnapshotProvider serves fixed snapshots
type StaticSnapshotProvider struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.PortfolioSnapshot
	err       error
}

var _ domain.SnapshotProvider = (*StaticSnapshotProvider)(nil)

// NewStaticSnapshotProvider creates a provider serving the given snapshots
func NewStaticSnapshotProvider(snapshots ...*domain.PortfolioSnapshot) *StaticSnapshotProvider {
	p := &StaticSnapshotProvider{snapshots: make(map[string]*domain.PortfolioSnapshot)}
	for _, s := range snapshots {
		p.snapshots[s.AccountID] = s
	}
	return p
}

// Set replaces an account's snapshot
func (p *StaticSnapshotProvider) Set(s *domain.PortfolioSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[s.AccountID] = s
}

// SetError sets the error to return
func (p *StaticSnapshotProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// GetLatest returns the account's snapshot, or nil
func (p *StaticSnapshotProvider) GetLatest(accountID string) (*domain.PortfolioSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}
