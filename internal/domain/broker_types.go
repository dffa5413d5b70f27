package domain

import "time"

// Broker-agnostic types for order routing
// These types abstract away broker-specific implementations (Questrade, paper, etc.)

// BrokerOrderRequest describes an order to route to the broker
type BrokerOrderRequest struct {
	LimitPrice *float64  // Limit price (LIMIT, STOP_LIMIT)
	StopPrice  *float64  // Stop trigger price (STOP, STOP_LIMIT)
	AccountID  string    // Broker account number
	Symbol     string    // Security symbol
	Type       OrderType // Order type
	Side       OrderSide // BUY or SELL
	Quantity   int64     // Number of shares
}

// BrokerOrderResult represents the result of placing an order (broker-agnostic)
type BrokerOrderResult struct {
	OrderID string // Broker-assigned order id
	State   string // Broker order state at acceptance
}

// BrokerOrderStatus represents the broker's view of an order
type BrokerOrderStatus struct {
	OrderID        string  // Broker order id
	State          string  // Raw broker state
	FilledQuantity int64   // Quantity filled so far
	AvgFillPrice   float64 // Average execution price
	Filled         bool    // Fully executed
	Cancelled      bool    // Cancelled at broker
	Rejected       bool    // Rejected at broker
}

// BrokerExecution represents one broker-side fill
type BrokerExecution struct {
	ExecutedAt  time.Time // Execution timestamp
	ExecutionID string    // Broker execution id
	OrderID     string    // Broker order id
	Quantity    int64     // Executed quantity
	Price       float64   // Execution price
	Commission  float64   // Commission charged
}

// BrokerQuote represents a security quote (broker-agnostic)
type BrokerQuote struct {
	Symbol    string  // Security symbol
	Price     float64 // Last trade price
	Bid       float64 // Best bid
	Ask       float64 // Best ask
	Timestamp string  // Quote timestamp
}
