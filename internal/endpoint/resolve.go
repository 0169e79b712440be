// ABOUTME: Locates the app that exposes a workspace's agent server and computes its URL
// ABOUTME: Pure function; failures are typed values, never panics

package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shekohex/opencoder-sub000/internal/coder"
)

const (
	// AppSlug is the slug of the app that serves the agent server.
	AppSlug = "opencode"
	// DefaultPort is the port the agent server listens on when the app
	// was registered under a different slug.
	DefaultPort = "4096"
)

// ErrorType classifies a resolution failure.
type ErrorType string

const (
	ErrWorkspaceNotRunning ErrorType = "workspace_not_running"
	ErrNoResources         ErrorType = "no_resources"
	ErrNoAgents            ErrorType = "no_agents"
	ErrNoApp               ErrorType = "no_app"
)

// Error is a resolution failure.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error with the same Type, so callers can write
// errors.Is(err, &endpoint.Error{Type: endpoint.ErrNoApp}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// Options tune how the reachable URL is built.
type Options struct {
	// WildcardHostname is the deployment's subdomain app host, e.g.
	// "*.coder.example.com". Empty disables subdomain URLs.
	WildcardHostname string
	// PathAppURL overrides the deployment URL for path-based app URLs.
	PathAppURL string
}

// AppInfo identifies where the matched app lives.
type AppInfo struct {
	App      coder.WorkspaceApp
	Agent    coder.WorkspaceAgent
	Resource coder.WorkspaceResource
}

// Result is a successful resolution.
type Result struct {
	BaseURL string
	AppInfo AppInfo
}

// Resolve finds the agent-server app of ws and returns its URL.
func Resolve(baseURL string, ws *coder.Workspace, opts Options) (*Result, error) {
	if ws == nil || ws.LatestBuild.Status != coder.StatusRunning {
		status := "unknown"
		if ws != nil {
			status = string(ws.LatestBuild.Status)
		}
		return nil, &Error{
			Type:    ErrWorkspaceNotRunning,
			Message: fmt.Sprintf("workspace is not running (status: %s)", status),
		}
	}

	resources := ws.LatestBuild.Resources
	if len(resources) == 0 {
		return nil, &Error{Type: ErrNoResources, Message: "workspace has no resources"}
	}

	hasAgent := false
	for _, r := range resources {
		if len(r.Agents) > 0 {
			hasAgent = true
			break
		}
	}
	if !hasAgent {
		return nil, &Error{Type: ErrNoAgents, Message: "workspace has no agents"}
	}

	info, ok := findApp(resources, func(app coder.WorkspaceApp) bool {
		return strings.EqualFold(app.Slug, AppSlug)
	})
	if !ok {
		info, ok = findApp(resources, func(app coder.WorkspaceApp) bool {
			return appPort(app.URL) == DefaultPort
		})
	}
	if !ok {
		return nil, &Error{
			Type:    ErrNoApp,
			Message: fmt.Sprintf("no opencode app found (expected slug %q or port %s)", AppSlug, DefaultPort),
		}
	}

	return &Result{
		BaseURL: appURL(baseURL, ws, info, opts),
		AppInfo: info,
	}, nil
}

func findApp(resources []coder.WorkspaceResource, match func(coder.WorkspaceApp) bool) (AppInfo, bool) {
	for _, r := range resources {
		for _, agent := range r.Agents {
			for _, app := range agent.Apps {
				if match(app) {
					return AppInfo{App: app, Agent: agent, Resource: r}, true
				}
			}
		}
	}
	return AppInfo{}, false
}

// appPort returns the explicit port of rawURL, or "" when it has none or
// does not parse.
func appPort(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Port()
}

func appURL(baseURL string, ws *coder.Workspace, info AppInfo, opts Options) string {
	app := info.App
	if app.Subdomain && opts.WildcardHostname != "" && app.SubdomainName != "" {
		scheme := "http"
		if isHTTPS(baseURL) {
			scheme = "https"
		}
		host := strings.Replace(opts.WildcardHostname, "*", app.SubdomainName, 1)
		return fmt.Sprintf("%s://%s/", scheme, host)
	}

	root := baseURL
	if opts.PathAppURL != "" {
		root = opts.PathAppURL
	}
	root = strings.TrimRight(root, "/")

	return fmt.Sprintf("%s/@%s/%s.%s/apps/%s/",
		root, ws.OwnerName, ws.Name, info.Agent.Name, url.PathEscape(app.Slug))
}

func isHTTPS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(rawURL), "https://")
	}
	return strings.EqualFold(u.Scheme, "https")
}
