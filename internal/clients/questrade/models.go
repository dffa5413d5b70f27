package questrade

// Wire types for the Questrade REST API. Field names follow the API's camelCase.

// tokenResponse is returned by the OAuth token endpoint
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	APIServer    string `json:"api_server"`
	ExpiresIn    int    `json:"expires_in"`
}

// apiError is the error body of a non-2xx response
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Symbol is one symbol search result
type Symbol struct {
	Symbol          string `json:"symbol"`
	Description     string `json:"description"`
	SecurityType    string `json:"securityType"`
	ListingExchange string `json:"listingExchange"`
	Currency        string `json:"currency"`
	SymbolID        int64  `json:"symbolId"`
	IsTradable      bool   `json:"isTradable"`
	IsQuotable      bool   `json:"isQuotable"`
}

type symbolsResponse struct {
	Symbols []Symbol `json:"symbols"`
}

// Quote is a level 1 market quote
type Quote struct {
	BidPrice       *float64 `json:"bidPrice"`
	AskPrice       *float64 `json:"askPrice"`
	LastTradePrice *float64 `json:"lastTradePrice"`
	Symbol         string   `json:"symbol"`
	LastTradeTime  string   `json:"lastTradeTime"`
	SymbolID       int64    `json:"symbolId"`
}

type quotesResponse struct {
	Quotes []Quote `json:"quotes"`
}

// OrderRequest is the body of an order placement
type OrderRequest struct {
	LimitPrice     *float64 `json:"limitPrice,omitempty"`
	StopPrice      *float64 `json:"stopPrice,omitempty"`
	AccountNumber  string   `json:"accountNumber"`
	OrderType      string   `json:"orderType"`
	TimeInForce    string   `json:"timeInForce"`
	Action         string   `json:"action"`
	PrimaryRoute   string   `json:"primaryRoute"`
	SecondaryRoute string   `json:"secondaryRoute"`
	SymbolID       int64    `json:"symbolId"`
	Quantity       int64    `json:"quantity"`
	IsAllOrNone    bool     `json:"isAllOrNone"`
	IsAnonymous    bool     `json:"isAnonymous"`
}

// Order is the broker's view of an order
type Order struct {
	LimitPrice       *float64 `json:"limitPrice"`
	StopPrice        *float64 `json:"stopPrice"`
	AvgExecPrice     *float64 `json:"avgExecPrice"`
	Symbol           string   `json:"symbol"`
	Side             string   `json:"side"`
	OrderType        string   `json:"orderType"`
	State            string   `json:"state"`
	RejectReason     string   `json:"rejectReason"`
	CreationTime     string   `json:"creationTime"`
	UpdateTime       string   `json:"updateTime"`
	ID               int64    `json:"id"`
	SymbolID         int64    `json:"symbolId"`
	TotalQuantity    int64    `json:"totalQuantity"`
	OpenQuantity     int64    `json:"openQuantity"`
	FilledQuantity   int64    `json:"filledQuantity"`
	CanceledQuantity int64    `json:"canceledQuantity"`
}

type ordersResponse struct {
	Orders  []Order `json:"orders"`
	OrderID int64   `json:"orderId"`
}

// Execution is one fill reported by the broker
type Execution struct {
	Symbol               string  `json:"symbol"`
	Side                 string  `json:"side"`
	Timestamp            string  `json:"timestamp"`
	ID                   int64   `json:"id"`
	OrderID              int64   `json:"orderId"`
	Quantity             int64   `json:"quantity"`
	Price                float64 `json:"price"`
	Commission           float64 `json:"commission"`
	ExecutionFee         float64 `json:"executionFee"`
	SecFee               float64 `json:"secFee"`
	CanadianExecutionFee float64 `json:"canadianExecutionFee"`
}

type executionsResponse struct {
	Executions []Execution `json:"executions"`
}
