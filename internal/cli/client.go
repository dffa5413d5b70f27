// Package cli implements tradectl, the command-line client for the TradeGuard API.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// APIClient talks to a running TradeGuard server
type APIClient struct {
	http *resty.Client
}

// NewAPIClient creates a client for the server at baseURL
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/api").
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Do sends a request and returns the raw JSON body.
// Rejections (4xx/5xx) are returned as *APIError with the body intact.
func (c *APIClient) Do(ctx context.Context, method, path string, query map[string]string, body interface{}) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return json.RawMessage(resp.Body()), nil
}

// indentJSON pretty-prints a JSON document, passing through anything else
func indentJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
