// ABOUTME: Tests for agent-server endpoint resolution
// ABOUTME: Covers error ordering, slug/port precedence and subdomain/path URL shapes

package endpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shekohex/opencoder-sub000/internal/coder"
)

const testBaseURL = "https://coder.example.com"

func workspace(status coder.WorkspaceStatus, resources ...coder.WorkspaceResource) *coder.Workspace {
	return &coder.Workspace{
		ID:        "ws-1",
		Name:      "myws",
		OwnerName: "testuser",
		LatestBuild: coder.WorkspaceBuild{
			Status:    status,
			Resources: resources,
		},
	}
}

func resourceWithApps(agentName string, apps ...coder.WorkspaceApp) coder.WorkspaceResource {
	return coder.WorkspaceResource{
		Name:   "dev",
		Agents: []coder.WorkspaceAgent{{Name: agentName, Apps: apps}},
	}
}

func requireErrorType(t *testing.T, err error, want ErrorType) {
	t.Helper()
	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, want, resErr.Type)
}

func TestResolve_StatusCheckedBeforeResources(t *testing.T) {
	res, err := Resolve(testBaseURL, workspace(coder.StatusStopped), Options{})
	assert.Nil(t, res)
	requireErrorType(t, err, ErrWorkspaceNotRunning)
}

func TestResolve_NilWorkspaceIsNotRunning(t *testing.T) {
	_, err := Resolve(testBaseURL, nil, Options{})
	requireErrorType(t, err, ErrWorkspaceNotRunning)
}

func TestResolve_NoResources(t *testing.T) {
	_, err := Resolve(testBaseURL, workspace(coder.StatusRunning), Options{})
	requireErrorType(t, err, ErrNoResources)
	assert.Contains(t, err.Error(), "no resources")
}

func TestResolve_NoAgents(t *testing.T) {
	_, err := Resolve(testBaseURL, workspace(coder.StatusRunning, coder.WorkspaceResource{Name: "volume"}), Options{})
	requireErrorType(t, err, ErrNoAgents)
}

func TestResolve_NoApp(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main",
		coder.WorkspaceApp{Slug: "code-server", URL: "http://localhost:8080"},
		coder.WorkspaceApp{Slug: "broken", URL: "::not a url"},
	))
	_, err := Resolve(testBaseURL, ws, Options{})
	requireErrorType(t, err, ErrNoApp)
	assert.True(t, errors.Is(err, &Error{Type: ErrNoApp}))
}

func TestResolve_SlugPreferredOverEarlierPortMatch(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main",
		coder.WorkspaceApp{Slug: "agent-server", URL: "http://localhost:4096"},
		coder.WorkspaceApp{Slug: "OpenCode", URL: "http://localhost:5000"},
	))

	res, err := Resolve(testBaseURL, ws, Options{})
	require.NoError(t, err)
	assert.Equal(t, "OpenCode", res.AppInfo.App.Slug)
	assert.Equal(t, "main", res.AppInfo.Agent.Name)
	assert.Equal(t, "dev", res.AppInfo.Resource.Name)
}

func TestResolve_PortFallback(t *testing.T) {
	ws := workspace(coder.StatusRunning,
		coder.WorkspaceResource{Name: "empty"},
		resourceWithApps("second",
			coder.WorkspaceApp{Slug: "web", URL: "http://localhost:3000"},
			coder.WorkspaceApp{Slug: "oc server", URL: "http://127.0.0.1:4096/"},
		),
	)

	res, err := Resolve(testBaseURL, ws, Options{})
	require.NoError(t, err)
	assert.Equal(t, "oc server", res.AppInfo.App.Slug)
	assert.Equal(t, "https://coder.example.com/@testuser/myws.second/apps/oc%20server/", res.BaseURL)
}

func TestResolve_SubdomainURL(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main", coder.WorkspaceApp{
		Slug:          "opencode",
		Subdomain:     true,
		SubdomainName: "opencode--ws--owner",
	}))

	res, err := Resolve(testBaseURL, ws, Options{WildcardHostname: "*.coder.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://opencode--ws--owner.coder.example.com/", res.BaseURL)
}

func TestResolve_SubdomainURLKeepsHTTPScheme(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main", coder.WorkspaceApp{
		Slug:          "opencode",
		Subdomain:     true,
		SubdomainName: "opencode--ws--owner",
	}))

	res, err := Resolve("http://coder.local:3000", ws, Options{WildcardHostname: "*.apps.local:3000"})
	require.NoError(t, err)
	assert.Equal(t, "http://opencode--ws--owner.apps.local:3000/", res.BaseURL)
}

func TestResolve_SubdomainAppWithoutWildcardUsesPath(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main", coder.WorkspaceApp{
		Slug:          "opencode",
		Subdomain:     true,
		SubdomainName: "opencode--ws--owner",
	}))

	res, err := Resolve(testBaseURL+"/", ws, Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://coder.example.com/@testuser/myws.main/apps/opencode/", res.BaseURL)
}

func TestResolve_PathURL(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main", coder.WorkspaceApp{Slug: "opencode"}))

	res, err := Resolve(testBaseURL, ws, Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://coder.example.com/@testuser/myws.main/apps/opencode/", res.BaseURL)
}

func TestResolve_PathAppURLTakesPrecedence(t *testing.T) {
	ws := workspace(coder.StatusRunning, resourceWithApps("main", coder.WorkspaceApp{Slug: "opencode"}))

	res, err := Resolve(testBaseURL, ws, Options{PathAppURL: "https://proxy.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example.com/@testuser/myws.main/apps/opencode/", res.BaseURL)
}
