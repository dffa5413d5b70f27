package domain

import "context"

// BrokerClient defines the brokerage capability consumed by live execution.
// Every call is bounded by the context deadline.
type BrokerClient interface {
	// Trading operations
	PlaceOrder(ctx context.Context, req BrokerOrderRequest) (*BrokerOrderResult, error)
	CancelOrder(ctx context.Context, accountID, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, accountID, brokerOrderID string) (*BrokerOrderStatus, error)
	GetExecutions(ctx context.Context, accountID, brokerOrderID string) ([]BrokerExecution, error)

	// Market data operations
	GetQuote(ctx context.Context, symbol string) (*BrokerQuote, error)

	// Connection & health
	IsConnected() bool
}

// PriceProvider supplies the latest traded price for a symbol
type PriceProvider interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// InstrumentResolver resolves a symbol to an instrument record, creating it if needed
type InstrumentResolver interface {
	GetOrCreate(symbol string) (*Instrument, error)
}

// RiskSettingsProvider supplies an account's risk settings
type RiskSettingsProvider interface {
	Get(accountID string) (*RiskSettings, error)
}

// SnapshotProvider supplies an account's most recent portfolio snapshot.
// Returns nil, nil when the account has none.
type SnapshotProvider interface {
	GetLatest(accountID string) (*PortfolioSnapshot, error)
}
