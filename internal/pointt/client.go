// Package pointt talks to the vendor cloud resource API for one gateway:
// bearer-authenticated GET/PUT plus the one-level reference walk the polling
// engine runs each cycle.
package pointt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pointtbridge/internal/auth"
)

// DefaultBaseURL is the production resource API. The device-scoped resource
// root is {base}/{deviceID}/resource/.
const DefaultBaseURL = "https://pointt-api.bosch-thermotechnology.com/pointt-api/api/v1/gateways"

// Value is one resource node's decoded JSON response.
type Value map[string]interface{}

// TokenProvider supplies bearer credentials. Implemented by auth.Manager.
type TokenProvider interface {
	Token(ctx context.Context) (auth.Token, error)
	ForceRefresh(ctx context.Context) (auth.Token, error)
}

// Config contains resource API settings for one device.
type Config struct {
	BaseURL  string
	DeviceID string
	Timeout  time.Duration
}

// Client issues authenticated requests against the resource API. Transport
// setup happens once here; request handling never blocks on it.
type Client struct {
	cfg        Config
	base       string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a resource API client for one device.
func NewClient(cfg Config, tokens TokenProvider, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		base:   fmt.Sprintf("%s/%s/resource", strings.TrimRight(cfg.BaseURL, "/"), cfg.DeviceID),
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Get fetches one resource path.
func (c *Client) Get(ctx context.Context, path string) (Value, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Put overwrites one resource path with {"value": v}. Writes are idempotent
// at path granularity; callers confirm the effect with a later read. The
// response body is returned when the API echoes one.
func (c *Client) Put(ctx context.Context, path string, value interface{}) (Value, error) {
	body, err := json.Marshal(map[string]interface{}{"value": value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPut, path, body)
}

// do issues the request with the current token. On 401/403 it forces exactly
// one refresh and retries once; a second auth failure means the session is
// dead. Transient failures are never retried here, the coordinator owns
// cycle-level retry policy.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (Value, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	value, status, err := c.send(ctx, method, path, body, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return value, nil
	}

	c.logger.Debug("Auth rejected, forcing token refresh",
		"component", "pointt",
		"method", method,
		"path", path,
		"status", status)

	token, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}

	value, status, err = c.send(ctx, method, path, body, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("%s %s rejected after refresh (status %d): %w",
			method, path, status, auth.ErrReauthRequired)
	}
	return value, nil
}

// send issues one HTTP call. It returns the parsed value and status for
// 2xx/401/403; every other outcome is an error.
func (c *Client) send(ctx context.Context, method, path string, body []byte, accessToken string) (Value, int, error) {
	url := c.base + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s failed: %v: %w", method, path, err, auth.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil

	case resp.StatusCode >= http.StatusInternalServerError:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%s %s returned status %d: %w",
			method, path, resp.StatusCode, auth.ErrTransient)

	case resp.StatusCode == http.StatusNoContent:
		return nil, resp.StatusCode, nil

	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%s %s returned status %d: %s",
			method, path, resp.StatusCode, string(respBody))
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var value Value
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return value, resp.StatusCode, nil
}
