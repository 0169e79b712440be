// ABOUTME: Registry of per-workspace agent-server connections and their lifecycle
// ABOUTME: Idempotent connect/disconnect guarded by an in-flight set, plus read-only accessors

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shekohex/opencoder-sub000/internal/auth"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/endpoint"
	"github.com/shekohex/opencoder-sub000/internal/event"
	"github.com/shekohex/opencoder-sub000/internal/opencode"
)

// Status is the lifecycle state of a workspace connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

var (
	// ErrConnectAborted is returned by Connect when the workspace was
	// disconnected while the attempt was still in flight.
	ErrConnectAborted = errors.New("connect aborted by disconnect")

	// ErrNotConnected is returned by StartStream for workspaces without an
	// established client.
	ErrNotConnected = errors.New("workspace not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("connection manager closed")
)

// AgentClient is the per-workspace agent-server handle.
type AgentClient interface {
	Health(ctx context.Context) error
	Subscribe(ctx context.Context) (opencode.Stream, error)
}

// ClientFactory builds an AgentClient bound to a resolved endpoint.
type ClientFactory interface {
	NewClient(baseURL, token string) (AgentClient, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(baseURL, token string) (AgentClient, error)

func (f ClientFactoryFunc) NewClient(baseURL, token string) (AgentClient, error) {
	return f(baseURL, token)
}

// SessionProvider supplies the current deployment session.
type SessionProvider interface {
	Session() (auth.Session, error)
}

// WorkspaceGetter looks up one workspace descriptor.
type WorkspaceGetter interface {
	Workspace(ctx context.Context, id string) (*coder.Workspace, error)
}

// Connection is a point-in-time copy of a workspace connection record.
type Connection struct {
	WorkspaceID string
	Client      AgentClient
	BaseURL     string
	Status      Status
	Error       string
	ConnectedAt time.Time
}

// Params wires a Manager to its collaborators.
type Params struct {
	Sessions   SessionProvider
	Workspaces WorkspaceGetter
	Factory    ClientFactory
	Bus        *event.Bus
	Endpoint   endpoint.Options
	Stream     StreamConfig
	Logger     *slog.Logger

	// OnDisconnect, if set, runs after a workspace's record is removed by
	// Disconnect. It is called without the manager's lock held.
	OnDisconnect func(workspaceID string)
}

// record is the registry-owned mutable state behind a Connection. Records are
// compared by pointer so a connect that outlives its record can tell.
type record struct {
	conn Connection
}

// Manager owns every workspace connection. It is safe for concurrent use; no
// I/O happens while its lock is held.
type Manager struct {
	mu       sync.Mutex
	conns    map[string]*record
	inflight map[string]*record
	streams  map[string]*worker
	closed   bool

	sessions   SessionProvider
	workspaces WorkspaceGetter
	factory    ClientFactory
	bus        *event.Bus
	endpoint   endpoint.Options
	stream     StreamConfig

	onDisconnect func(workspaceID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Manager. A nil Bus gets a fresh one.
func New(p Params) *Manager {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Bus == nil {
		p.Bus = event.NewBus(p.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		conns:        make(map[string]*record),
		inflight:     make(map[string]*record),
		streams:      make(map[string]*worker),
		sessions:     p.Sessions,
		workspaces:   p.Workspaces,
		factory:      p.Factory,
		bus:          p.Bus,
		endpoint:     p.Endpoint,
		stream:       p.Stream.withDefaults(),
		onDisconnect: p.OnDisconnect,
		ctx:          ctx,
		cancel:       cancel,
		logger:       p.Logger.With("component", "connection"),
		now:          time.Now,
	}
}

// Bus returns the bus events are published on.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

// Connect establishes a connection to the workspace's agent server and starts
// its event stream. It is a no-op while another connect for the same id is in
// flight or when the workspace is already connecting or connected. Failures
// after the auth check leave the record in StatusError and are returned.
func (m *Manager) Connect(ctx context.Context, workspaceID string) error {
	sess, err := m.sessions.Session()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, busy := m.inflight[workspaceID]; busy {
		m.mu.Unlock()
		return nil
	}
	if rec, ok := m.conns[workspaceID]; ok && (rec.conn.Status == StatusConnected || rec.conn.Status == StatusConnecting) {
		m.mu.Unlock()
		return nil
	}
	rec := &record{conn: Connection{WorkspaceID: workspaceID, Status: StatusConnecting}}
	m.conns[workspaceID] = rec
	m.inflight[workspaceID] = rec
	m.mu.Unlock()

	defer m.clearInflight(workspaceID, rec)

	logger := m.logger.With("workspace_id", workspaceID)
	logger.Debug("connecting")

	client, baseURL, err := m.establish(ctx, workspaceID, sess)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conns[workspaceID] != rec {
		logger.Info("connect discarded, workspace was disconnected")
		return ErrConnectAborted
	}
	if err != nil {
		rec.conn.Status = StatusError
		rec.conn.Error = err.Error()
		logger.Warn("connect failed", "error", err)
		return err
	}

	rec.conn.Client = client
	rec.conn.BaseURL = baseURL
	rec.conn.Status = StatusConnected
	rec.conn.Error = ""
	rec.conn.ConnectedAt = m.now()
	m.startStreamLocked(workspaceID, client)

	logger.Info("connected", "base_url", baseURL, "connections", len(m.conns))
	return nil
}

func (m *Manager) establish(ctx context.Context, workspaceID string, sess auth.Session) (AgentClient, string, error) {
	ws, err := m.workspaces.Workspace(ctx, workspaceID)
	if err != nil {
		return nil, "", fmt.Errorf("fetching workspace: %w", err)
	}

	res, err := endpoint.Resolve(sess.BaseURL, ws, m.endpoint)
	if err != nil {
		return nil, "", err
	}

	client, err := m.factory.NewClient(res.BaseURL, sess.Token)
	if err != nil {
		return nil, "", fmt.Errorf("creating client: %w", err)
	}
	if err := client.Health(ctx); err != nil {
		return nil, "", fmt.Errorf("health check: %w", err)
	}
	return client, res.BaseURL, nil
}

func (m *Manager) clearInflight(workspaceID string, rec *record) {
	m.mu.Lock()
	if m.inflight[workspaceID] == rec {
		delete(m.inflight, workspaceID)
	}
	m.mu.Unlock()
}

// Disconnect cancels the workspace's stream worker and removes its record.
// It never fails and may be called from a bus listener.
func (m *Manager) Disconnect(workspaceID string) {
	m.mu.Lock()
	w := m.streams[workspaceID]
	delete(m.streams, workspaceID)
	delete(m.inflight, workspaceID)
	_, existed := m.conns[workspaceID]
	delete(m.conns, workspaceID)
	remaining := len(m.conns)
	m.mu.Unlock()

	if w != nil {
		w.cancel()
	}
	if !existed {
		return
	}
	m.logger.Info("disconnected", "workspace_id", workspaceID, "connections", remaining)
	if m.onDisconnect != nil {
		m.onDisconnect(workspaceID)
	}
}

// Client returns the agent client of a workspace that has one.
func (m *Manager) Client(workspaceID string) (AgentClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conns[workspaceID]
	if !ok || rec.conn.Client == nil {
		return nil, false
	}
	return rec.conn.Client, true
}

// Connection returns a copy of the workspace's record.
func (m *Manager) Connection(workspaceID string) (Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conns[workspaceID]
	if !ok {
		return Connection{}, false
	}
	return rec.conn, true
}

// HasConnection reports whether the workspace is connected.
func (m *Manager) HasConnection(workspaceID string) bool {
	return m.StatusOf(workspaceID) == StatusConnected
}

// IsConnecting reports whether a connect is under way, including the window
// before its status is written.
func (m *Manager) IsConnecting(workspaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[workspaceID]; busy {
		return true
	}
	rec, ok := m.conns[workspaceID]
	return ok && rec.conn.Status == StatusConnecting
}

// StatusOf returns the workspace's status; absent records are disconnected.
func (m *Manager) StatusOf(workspaceID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conns[workspaceID]
	if !ok {
		return StatusDisconnected
	}
	return rec.conn.Status
}

// Connections returns a snapshot of every record, ordered by workspace ID.
func (m *Manager) Connections() []Connection {
	m.mu.Lock()
	out := make([]Connection, 0, len(m.conns))
	for _, rec := range m.conns {
		out = append(out, rec.conn)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out
}

// StartStream replaces the workspace's stream worker. A record whose stream
// gave up is moved back to connected.
func (m *Manager) StartStream(workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	rec, ok := m.conns[workspaceID]
	if !ok || rec.conn.Client == nil {
		return ErrNotConnected
	}
	rec.conn.Status = StatusConnected
	rec.conn.Error = ""
	m.startStreamLocked(workspaceID, rec.conn.Client)
	return nil
}

// Close disconnects every workspace, waits for stream workers to exit and
// clears the bus. It must not be called from a bus listener.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	n := len(m.conns)
	m.conns = make(map[string]*record)
	m.inflight = make(map[string]*record)
	m.streams = make(map[string]*worker)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.bus.Clear()

	m.logger.Info("connection manager closed", "dropped_connections", n)
}
