package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8765/api"
	DefaultTimeout = 10 * time.Second
)

// Client provides HTTP client functionality to communicate with the runkeeper daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// New creates a new runkeeper API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Status returns the current runner state.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.state(ctx, http.MethodGet, "/status")
}

// Detail returns the runner snapshot.
func (c *Client) Detail(ctx context.Context) (Detail, error) {
	var d Detail
	err := c.do(ctx, http.MethodGet, "/status/detail", &d)
	return d, err
}

// Start starts the runner and returns the resulting state.
func (c *Client) Start(ctx context.Context) (string, error) {
	return c.state(ctx, http.MethodPost, "/start")
}

// Stop stops the runner and returns the resulting state.
func (c *Client) Stop(ctx context.Context) (string, error) {
	return c.state(ctx, http.MethodPost, "/stop")
}

// Restart restarts the runner and returns the resulting state.
func (c *Client) Restart(ctx context.Context) (string, error) {
	return c.state(ctx, http.MethodPost, "/restart")
}

func (c *Client) state(ctx context.Context, method, path string) (string, error) {
	var r StatusResponse
	if err := c.do(ctx, method, path, &r); err != nil {
		return "", err
	}
	return r.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, errorResp.Error)
}
