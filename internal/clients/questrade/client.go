// Package questrade provides a Questrade REST API client and a broker adapter
// implementing domain.BrokerClient on top of it.
package questrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultLoginURL is the OAuth host for live accounts
	DefaultLoginURL = "https://login.questrade.com"
	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 15 * time.Second
	// DefaultRequestsPerSecond stays under the market data call limit
	DefaultRequestsPerSecond = 20
)

// ErrNotAuthorized means no usable token exists and none could be obtained
var ErrNotAuthorized = errors.New("questrade: not authorized")

// APIError is a non-2xx response from the API
type APIError struct {
	Message    string
	StatusCode int
	Code       int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("questrade API error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("questrade API error %d: %s", e.StatusCode, e.Message)
}

// Config holds client settings
type Config struct {
	LoginURL          string
	RefreshToken      string // Bootstrap refresh token, used only when the store is empty
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client is a Questrade REST API client.
// It refreshes the access token when expired and retries a request once after a 401.
type Client struct {
	http      *resty.Client
	tokens    TokenStore
	limiter   *rate.Limiter
	loginURL  string
	bootstrap string
	log       zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	token      *Token
	authFailed bool
}

// NewClient creates a new Questrade client
func NewClient(cfg Config, tokens TokenStore, log zerolog.Logger) *Client {
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	return &Client{
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		loginURL:  strings.TrimRight(cfg.LoginURL, "/"),
		bootstrap: cfg.RefreshToken,
		log:       log.With().Str("client", "questrade").Logger(),
		now:       time.Now,
	}
}

// Authorized reports whether the client holds a token and the last refresh did not fail
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authFailed {
		return false
	}
	if c.token != nil {
		return true
	}
	return c.bootstrap != ""
}

// currentToken returns a usable token, refreshing when it is missing or expired
func (c *Client) currentToken(ctx context.Context) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil && c.tokens != nil {
		stored, err := c.tokens.Load()
		if err != nil {
			return nil, err
		}
		c.token = stored
	}
	if c.token.Valid(c.now()) {
		return c.token, nil
	}
	return c.refreshLocked(ctx)
}

// forceRefresh replaces the token after a 401, unless another caller already did
func (c *Client) forceRefresh(ctx context.Context, rejected *Token) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && rejected != nil && c.token.AccessToken != rejected.AccessToken && c.token.Valid(c.now()) {
		return c.token, nil
	}
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) (*Token, error) {
	refreshToken := c.bootstrap
	if c.token != nil && c.token.RefreshToken != "" {
		refreshToken = c.token.RefreshToken
	}
	if refreshToken == "" {
		c.authFailed = true
		return nil, ErrNotAuthorized
	}

	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(&body).
		Get(c.loginURL + "/oauth2/token")
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	if resp.IsError() {
		c.authFailed = true
		c.log.Error().Int("status", resp.StatusCode()).Msg("Refresh token rejected")
		return nil, fmt.Errorf("%w: token refresh returned %d", ErrNotAuthorized, resp.StatusCode())
	}
	if body.AccessToken == "" || body.APIServer == "" {
		return nil, fmt.Errorf("token refresh returned an incomplete response")
	}

	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 1800
	}
	token := &Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		APIServer:    strings.TrimRight(body.APIServer, "/"),
		ExpiresAt:    c.now().Add(time.Duration(expiresIn) * time.Second),
	}
	if c.tokens != nil {
		if err := c.tokens.Save(token); err != nil {
			// The old refresh token is already spent; keep going with the new one in memory
			c.log.Error().Err(err).Msg("Failed to persist refreshed token")
		}
	}

	c.token = token
	c.authFailed = false
	c.log.Info().Str("api_server", token.APIServer).Time("expires_at", token.ExpiresAt).Msg("Access token refreshed")
	return token, nil
}

// do performs an authorized request against the API server. path starts with /v1.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.currentToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, token, method, path, body, out)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.log.Warn().Str("path", path).Msg("Access token rejected, refreshing")
		token, err = c.forceRefresh(ctx, token)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, token, method, path, body, out)
		if err != nil {
			return err
		}
	}

	if resp.IsError() {
		return parseAPIError(resp)
	}
	return nil
}

func (c *Client) send(ctx context.Context, token *Token, method, path string, body, out interface{}) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, token.APIServer+path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func parseAPIError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	var body apiError
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// SearchSymbols returns symbols matching a ticker prefix
func (c *Client) SearchSymbols(ctx context.Context, prefix string) ([]Symbol, error) {
	var out symbolsResponse
	path := "/v1/symbols/search?prefix=" + url.QueryEscape(prefix)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// GetQuote returns the level 1 quote for a symbol id
func (c *Client) GetQuote(ctx context.Context, symbolID int64) (*Quote, error) {
	var out quotesResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/markets/quotes/%d", symbolID), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Quotes) == 0 {
		return nil, fmt.Errorf("no quote returned for symbol id %d", symbolID)
	}
	return &out.Quotes[0], nil
}

// PlaceOrder submits an order and returns the broker's order record
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var out ordersResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders", req.AccountNumber)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if len(out.Orders) == 0 {
		if out.OrderID != 0 {
			return &Order{ID: out.OrderID}, nil
		}
		return nil, fmt.Errorf("order placement returned no order")
	}
	return &out.Orders[0], nil
}

// GetOrder returns one order
func (c *Client) GetOrder(ctx context.Context, accountNumber string, orderID string) (*Order, error) {
	var out ordersResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s", accountNumber, orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Orders) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "order " + orderID + " not found"}
	}
	return &out.Orders[0], nil
}

// CancelOrder cancels an order
func (c *Client) CancelOrder(ctx context.Context, accountNumber string, orderID string) error {
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s", accountNumber, orderID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetExecutions returns the fills of an order
func (c *Client) GetExecutions(ctx context.Context, accountNumber string, orderID string) ([]Execution, error) {
	var out executionsResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s/executions", accountNumber, orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Executions, nil
}
