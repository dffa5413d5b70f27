// Package alphavantage provides a client for the Alpha Vantage market data API.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Alpha Vantage API host
	DefaultBaseURL = "https://www.alphavantage.co"
	// DefaultDailyLimit is the free tier's daily request allowance
	DefaultDailyLimit = 25
	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 10 * time.Second
)

// ErrRateLimitExceeded is returned when the daily request budget is spent
type ErrRateLimitExceeded struct {
	Limit int
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alpha vantage daily request limit of %d reached", e.Limit)
}

// Quote is a GLOBAL_QUOTE result
type Quote struct {
	FetchedAt        time.Time `json:"fetched_at" msgpack:"fetched_at"`
	Symbol           string    `json:"symbol" msgpack:"symbol"`
	LatestTradingDay string    `json:"latest_trading_day" msgpack:"latest_trading_day"`
	Price            float64   `json:"price" msgpack:"price"`
	PreviousClose    float64   `json:"previous_close" msgpack:"previous_close"`
	Volume           int64     `json:"volume" msgpack:"volume"`
}

// Client is an Alpha Vantage API client with a daily request budget,
// request pacing and a persistent quote cache.
type Client struct {
	http       *resty.Client
	cache      *clientdata.Repository
	limiter    *rate.Limiter
	apiKey     string
	log        zerolog.Logger
	mu         sync.Mutex
	dailyLimit int
	dailyCount int
	counterDay string
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API host
func WithBaseURL(url string) Option {
	return func(c *Client) { c.http.SetBaseURL(url) }
}

// WithCache enables the persistent quote cache
func WithCache(cache *clientdata.Repository) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLimiter replaces the request pacing limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithDailyLimit sets the daily request budget
func WithDailyLimit(n int) Option {
	return func(c *Client) { c.dailyLimit = n }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient creates a new Alpha Vantage client.
// Requests are paced to 5 per minute, the free tier's burst allowance.
func NewClient(apiKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
		limiter:    rate.NewLimiter(rate.Every(12*time.Second), 5),
		apiKey:     apiKey,
		dailyLimit: DefaultDailyLimit,
		now:        time.Now,
		log:        log.With().Str("client", "alphavantage").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.counterDay = c.today()
	return c
}

func (c *Client) today() string {
	return c.now().UTC().Format("2006-01-02")
}

// GetRemainingRequests returns how many requests are left today
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollCounter()
	return c.dailyLimit - c.dailyCount
}

// ResetDailyCounter restores the full daily budget
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyCount = 0
	c.counterDay = c.today()
}

func (c *Client) rollCounter() {
	if day := c.today(); day != c.counterDay {
		c.dailyCount = 0
		c.counterDay = day
	}
}

// checkRateLimit consumes one request from the daily budget
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollCounter()
	if c.dailyCount >= c.dailyLimit {
		return ErrRateLimitExceeded{Limit: c.dailyLimit}
	}
	c.dailyCount++
	return nil
}

// globalQuoteResponse mirrors the GLOBAL_QUOTE payload; every value is a string
type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
	ErrorMessage string            `json:"Error Message"`
}

// GetGlobalQuote returns the latest quote for a symbol, serving fresh cache hits
// without spending the request budget.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("alpha vantage API key not configured")
	}

	if c.cache != nil {
		var cached Quote
		found, err := c.cache.GetIfFresh(clientdata.TableAlphaVantageQuote, symbol, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   symbol,
			"apikey":   c.apiKey,
		}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("alpha vantage API error %d: %s", resp.StatusCode(), resp.String())
	}

	quote, err := parseGlobalQuote(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("quote for %s: %w", symbol, err)
	}
	quote.FetchedAt = c.now().UTC()
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}

	if c.cache != nil {
		if err := c.cache.Store(clientdata.TableAlphaVantageQuote, symbol, quote, clientdata.TTLQuote); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", quote.Price).
		Msg("Fetched global quote")
	return quote, nil
}

// GetLatestPrice returns the last traded price for a symbol
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	quote, err := c.GetGlobalQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return quote.Price, nil
}

func parseGlobalQuote(body []byte) (*Quote, error) {
	var raw globalQuoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch {
	case raw.ErrorMessage != "":
		return nil, fmt.Errorf("api error: %s", raw.ErrorMessage)
	case raw.Note != "":
		return nil, fmt.Errorf("throttled: %s", raw.Note)
	case raw.Information != "":
		return nil, fmt.Errorf("throttled: %s", raw.Information)
	}

	priceStr, ok := raw.GlobalQuote["05. price"]
	if !ok {
		return nil, fmt.Errorf("no quote in response")
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", priceStr, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price %v", price)
	}

	quote := &Quote{
		Symbol:           raw.GlobalQuote["01. symbol"],
		LatestTradingDay: raw.GlobalQuote["07. latest trading day"],
		Price:            price,
	}
	if v, err := strconv.ParseInt(raw.GlobalQuote["06. volume"], 10, 64); err == nil {
		quote.Volume = v
	}
	if v, err := strconv.ParseFloat(raw.GlobalQuote["08. previous close"], 64); err == nil {
		quote.PreviousClose = v
	}
	return quote, nil
}
