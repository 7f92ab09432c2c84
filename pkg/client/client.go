// Package client provides the Crediflow Go SDK for submitting invoices
// and loans to a Crediflow gateway and querying their derived status.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client is the Crediflow SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// token state — guarded by mu
	mu          sync.Mutex
	address     string
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained token to every request. The
// token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithAddress sets the ledger address the client acts as. Tokens are
// fetched from the gateway's auth endpoint on demand and refreshed as
// they approach expiry.
func WithAddress(address string) Option {
	return func(c *Client) error {
		if address == "" {
			return fmt.Errorf("address must not be empty")
		}
		c.address = address
		return nil
	}
}

// New creates a Client connected to baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAddress("addr_issuer_1"),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FetchToken exchanges the configured address for a bearer token, caches
// it, and returns it.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshTokenLocked(ctx)
}

func (c *Client) refreshTokenLocked(ctx context.Context) (string, error) {
	if c.address == "" {
		return "", fmt.Errorf("no address configured; use WithAddress or WithBearerToken")
	}

	body, err := json.Marshal(map[string]string{"address": c.address})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint error %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("token endpoint returned no token")
	}

	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	const refreshBuffer = 60 * time.Second
	c.bearerToken = payload.Token
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - refreshBuffer)
	return c.bearerToken, nil
}

// ensureToken returns a valid bearer token, fetching a fresh one when the
// cached token is absent or approaching expiry. Thread-safe.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	return c.refreshTokenLocked(ctx)
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// do performs a JSON request against the gateway. reqBody and respBody
// may be nil. When authed is true a bearer token is attached, fetching
// one first if necessary.
func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any, authed bool) error {
	var reader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := string(raw)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, Body: raw}
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
