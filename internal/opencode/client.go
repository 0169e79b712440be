// ABOUTME: HTTP client for a workspace's agent server reached through the Coder app proxy
// ABOUTME: Provides the health probe used by connect and the server-sent event subscription

package opencode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEventPath streams directory-scoped envelopes for every project.
	DefaultEventPath = "/global/event"
	// healthPath is a cheap read that only succeeds when the server is up
	// and the proxy accepted the session token.
	healthPath = "/config"

	defaultHealthTimeout = 10 * time.Second
)

// sessionTokenHeader authenticates requests at the Coder app proxy.
const sessionTokenHeader = "Coder-Session-Token"

// Options tune a Client. The zero value is usable.
type Options struct {
	// HTTPClient is used for all requests. It must not set a global Timeout,
	// since event streams are long-lived.
	HTTPClient    *http.Client
	EventPath     string
	HealthTimeout time.Duration
	Logger        *slog.Logger
}

// Client talks to one agent server.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	eventPath     string
	healthTimeout time.Duration
	logger        *slog.Logger
}

// NewClient creates a client for the agent server at baseURL, authenticating
// with the Coder session token.
func NewClient(baseURL, token string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.EventPath == "" {
		opts.EventPath = DefaultEventPath
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = defaultHealthTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		httpClient:    opts.HTTPClient,
		eventPath:     opts.EventPath,
		healthTimeout: opts.HealthTimeout,
		logger:        opts.Logger.With("component", "opencode", "base_url", baseURL),
	}
}

// BaseURL returns the agent server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health performs a cheap read against the server.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, healthPath)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Op: "health check"}
	}
	return nil
}

// Subscribe opens the event stream. The stream ends when ctx is cancelled,
// the server closes it, or Close is called.
func (c *Client) Subscribe(ctx context.Context) (Stream, error) {
	req, err := c.newRequest(ctx, c.eventPath)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Op: "event stream"}
	}

	c.logger.Debug("event stream opened", "path", c.eventPath)
	return newSSEStream(resp.Body), nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set(sessionTokenHeader, c.token)
	}
	return req, nil
}

// StatusError reports an unexpected HTTP status from the agent server.
type StatusError struct {
	StatusCode int
	Op         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
}
