// ABOUTME: HTTP client for the subset of the Coder REST API used by opencoder
// ABOUTME: Lists workspaces, fetches a single workspace, the app wildcard host and the current user

package coder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionTokenHeader carries the Coder session token on every request.
const SessionTokenHeader = "Coder-Session-Token"

const defaultRequestTimeout = 15 * time.Second

// Error is returned when the Coder API answers with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("coder api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("coder api: status %d", e.StatusCode)
}

// Client talks to a Coder deployment on behalf of one session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Coder API client. Pass nil httpClient for a default
// client with a request timeout.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger.With("component", "coder"),
	}
}

// BaseURL returns the deployment URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type workspacesResponse struct {
	Workspaces []Workspace `json:"workspaces"`
	Count      int         `json:"count"`
}

// Workspaces lists the workspaces owned by the authenticated user.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	query := url.Values{}
	query.Set("q", "owner:me")

	var resp workspacesResponse
	if err := c.get(ctx, "/api/v2/workspaces", query, &resp); err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	return resp.Workspaces, nil
}

// Workspace fetches a single workspace by ID.
func (c *Client) Workspace(ctx context.Context, id string) (*Workspace, error) {
	var ws Workspace
	if err := c.get(ctx, "/api/v2/workspaces/"+url.PathEscape(id), nil, &ws); err != nil {
		return nil, fmt.Errorf("fetching workspace %s: %w", id, err)
	}
	return &ws, nil
}

type appHostResponse struct {
	Host string `json:"host"`
}

// AppHost returns the wildcard hostname used for subdomain apps, e.g.
// "*.coder.example.com". Empty when the deployment has none configured.
func (c *Client) AppHost(ctx context.Context) (string, error) {
	var resp appHostResponse
	if err := c.get(ctx, "/api/v2/applications/host", nil, &resp); err != nil {
		return "", fmt.Errorf("fetching app host: %w", err)
	}
	return resp.Host, nil
}

// Me returns the user the session token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/api/v2/users/me", nil, &u); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(SessionTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// decodeError extracts the "message" field Coder puts in error bodies.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &Error{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
		if payload.Detail != "" {
			apiErr.Message += ": " + payload.Detail
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
