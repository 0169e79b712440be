// ABOUTME: Tests for the local API routes, auth middleware and event streams
// ABOUTME: Runs the chi router under httptest with a fake registry and a real bus

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shekohex/opencoder-sub000/internal/attention"
	"github.com/shekohex/opencoder-sub000/internal/auth"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/connection"
	"github.com/shekohex/opencoder-sub000/internal/endpoint"
	"github.com/shekohex/opencoder-sub000/internal/event"
)

type fakeRegistry struct {
	mu          sync.Mutex
	conns       map[string]connection.Connection
	connectErr  error
	streamErr   error
	connects    []string
	disconnects []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{conns: make(map[string]connection.Connection)}
}

func (f *fakeRegistry) Connect(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, id)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.conns[id] = connection.Connection{
		WorkspaceID: id,
		Status:      connection.StatusConnected,
		BaseURL:     "https://coder.example.com/@me/" + id + ".main/apps/opencode/",
		ConnectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	return nil
}

func (f *fakeRegistry) Disconnect(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
	f.disconnects = append(f.disconnects, id)
}

func (f *fakeRegistry) Connection(id string) (connection.Connection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[id]
	return c, ok
}

func (f *fakeRegistry) Connections() []connection.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []connection.Connection
	for _, c := range f.conns {
		out = append(out, c)
	}
	return out
}

func (f *fakeRegistry) StartStream(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[id]; !ok {
		return connection.ErrNotConnected
	}
	return f.streamErr
}

type fakeWorkspaces struct {
	list   []coder.Workspace
	loaded bool
}

func (f *fakeWorkspaces) Snapshot() ([]coder.Workspace, bool) { return f.list, f.loaded }

type testEnv struct {
	server     *httptest.Server
	registry   *fakeRegistry
	workspaces *fakeWorkspaces
	bus        *event.Bus
	tracker    *attention.Tracker
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	env := &testEnv{
		registry:   newFakeRegistry(),
		workspaces: &fakeWorkspaces{},
		bus:        event.NewBus(nil),
	}
	env.tracker = attention.NewTracker(env.bus, nil, nil)
	srv := New(Config{Token: token, HeartbeatInterval: time.Hour}, env.registry, env.workspaces, env.tracker, env.bus, nil)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz_NoAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	resp := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[HealthzResponse](t, resp).Status)
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/connections", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/connections", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/connections", "secret").StatusCode)
}

func TestNoTokenConfigured_OpenAccess(t *testing.T) {
	env := newTestEnv(t, "")
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/connections", "").StatusCode)
}

func TestConnectLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/v1/workspaces/ws-1/connection", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/workspaces/ws-1/connection", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[ConnectionResponse](t, resp)
	assert.Equal(t, "ws-1", got.WorkspaceID)
	assert.Equal(t, "connected", got.Status)
	require.NotNil(t, got.ConnectedAt)

	resp = env.do(t, http.MethodGet, "/v1/connections", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]ConnectionResponse](t, resp), 1)

	resp = env.do(t, http.MethodPost, "/v1/workspaces/ws-1/stream", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/v1/workspaces/ws-1/connection", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"ws-1"}, env.registry.disconnects)

	resp = env.do(t, http.MethodPost, "/v1/workspaces/ws-1/stream", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantType string
	}{
		{"unauthenticated", auth.ErrNotAuthenticated, http.StatusUnauthorized, ""},
		{"resolution", &endpoint.Error{Type: endpoint.ErrNoApp, Message: "no opencode app found"}, http.StatusUnprocessableEntity, "no_app"},
		{"aborted", connection.ErrConnectAborted, http.StatusConflict, ""},
		{"upstream", &coder.Error{StatusCode: 500, Message: "boom"}, http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.registry.connectErr = tt.err

			resp := env.do(t, http.MethodPost, "/v1/workspaces/ws-1/connection", "")
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantType, body.Type)
		})
	}
}

func TestListWorkspaces(t *testing.T) {
	env := newTestEnv(t, "")

	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/v1/workspaces", "").StatusCode)

	env.workspaces.loaded = true
	env.workspaces.list = []coder.Workspace{
		{ID: "ws-1", Name: "api", OwnerName: "me", LatestBuild: coder.WorkspaceBuild{Status: coder.StatusRunning}},
		{ID: "ws-2", Name: "web", OwnerName: "me", LatestBuild: coder.WorkspaceBuild{Status: coder.StatusStopped}},
	}
	require.NoError(t, env.registry.Connect(t.Context(), "ws-1"))

	ev, ok := event.Normalize([]byte(`{"type":"permission.updated","properties":{"id":"p1","sessionID":"s1","title":"edit"}}`))
	require.True(t, ok)
	env.bus.Emit("ws-1", ev)

	resp := env.do(t, http.MethodGet, "/v1/workspaces", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]WorkspaceResponse](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, WorkspaceResponse{ID: "ws-1", Name: "api", Owner: "me", Status: "running", Connection: "connected", NeedsAttention: true}, list[0])
	assert.Equal(t, WorkspaceResponse{ID: "ws-2", Name: "web", Owner: "me", Status: "stopped", Connection: "disconnected"}, list[1])

	resp = env.do(t, http.MethodGet, "/v1/attention", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode[[]attention.Item](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ID)
}

// readEvent returns the next "event:" name and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func openStream(t *testing.T, env *testEnv, path string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": subscribed\n", line)
	return r
}

func TestEvents_Global(t *testing.T) {
	env := newTestEnv(t, "")
	r := openStream(t, env, "/v1/events")

	ev, ok := event.Normalize([]byte(`{"directory":"/src","payload":{"type":"session.idle","properties":{"sessionID":"s1"}}}`))
	require.True(t, ok)
	env.bus.Emit("ws-2", ev)

	name, data := readEvent(t, r)
	assert.Equal(t, "session.idle", name)

	var msg EventMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, "ws-2", msg.WorkspaceID)
	assert.Equal(t, "session.idle", msg.Type)
	assert.Equal(t, "/src", msg.Properties["directory"])
}

func TestEvents_Scoped(t *testing.T) {
	env := newTestEnv(t, "")
	r := openStream(t, env, "/v1/workspaces/ws-1/events")

	other, _ := event.Normalize([]byte(`{"type":"file.edited","properties":{"file":"other.go"}}`))
	mine, _ := event.Normalize([]byte(`{"type":"file.edited","properties":{"file":"mine.go"}}`))
	env.bus.Emit("ws-2", other)
	env.bus.Emit("ws-1", mine)

	_, data := readEvent(t, r)
	var msg EventMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, "ws-1", msg.WorkspaceID)
	assert.Equal(t, "mine.go", msg.Properties["file"])
}
