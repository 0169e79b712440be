// ABOUTME: Tests for reconciling open connections against workspace list refreshes
// ABOUTME: Covers the running-set rule and that failed refreshes never disconnect

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/connection"
)

type fakeRegistry struct {
	mu           sync.Mutex
	conns        map[string]connection.Status
	disconnected []string
}

func newFakeRegistry(conns map[string]connection.Status) *fakeRegistry {
	return &fakeRegistry{conns: conns}
}

func (f *fakeRegistry) Connections() []connection.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []connection.Connection
	for id, st := range f.conns {
		out = append(out, connection.Connection{WorkspaceID: id, Status: st})
	}
	return out
}

func (f *fakeRegistry) Disconnect(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
	f.disconnected = append(f.disconnected, id)
}

func workspace(id string, status coder.WorkspaceStatus) coder.Workspace {
	return coder.Workspace{ID: id, LatestBuild: coder.WorkspaceBuild{Status: status}}
}

func TestReconcile_DisconnectsOnlyStopped(t *testing.T) {
	reg := newFakeRegistry(map[string]connection.Status{
		"A": connection.StatusConnected,
		"B": connection.StatusConnected,
	})
	r := NewReconciler(reg, nil)

	got := r.Reconcile([]coder.Workspace{workspace("A", coder.StatusRunning)})

	assert.Equal(t, []string{"B"}, got)
	assert.Equal(t, []string{"B"}, reg.disconnected)
}

func TestReconcile_StoppedStatusCounts(t *testing.T) {
	reg := newFakeRegistry(map[string]connection.Status{
		"A": connection.StatusConnected,
		"B": connection.StatusError,
		"C": connection.StatusConnecting,
	})
	r := NewReconciler(reg, nil)

	got := r.Reconcile([]coder.Workspace{
		workspace("A", coder.StatusRunning),
		workspace("B", coder.StatusStopped),
		workspace("C", coder.StatusStarting),
	})

	assert.ElementsMatch(t, []string{"B", "C"}, got)
	assert.Len(t, reg.conns, 1)
	assert.Contains(t, reg.conns, "A")
}

func TestReconcile_NothingToDo(t *testing.T) {
	reg := newFakeRegistry(map[string]connection.Status{"A": connection.StatusConnected})
	r := NewReconciler(reg, nil)

	assert.Empty(t, r.Reconcile([]coder.Workspace{workspace("A", coder.StatusRunning)}))
	assert.Empty(t, reg.disconnected)
}

type scriptedLister struct {
	results [][]coder.Workspace
	errs    []error
	calls   int
}

func (s *scriptedLister) Workspaces(context.Context) ([]coder.Workspace, error) {
	i := s.calls
	s.calls++
	return s.results[i], s.errs[i]
}

func TestAttach_FailedRefreshDoesNotReconcile(t *testing.T) {
	reg := newFakeRegistry(map[string]connection.Status{
		"A": connection.StatusConnected,
		"B": connection.StatusConnected,
	})
	lister := &scriptedLister{
		results: [][]coder.Workspace{nil, {workspace("A", coder.StatusRunning)}},
		errs:    []error{errors.New("coder unreachable"), nil},
	}
	watcher := coder.NewWatcher(lister, 0, nil)

	detach := NewReconciler(reg, nil).Attach(watcher)

	require.Error(t, watcher.Refresh(t.Context()))
	assert.Empty(t, reg.disconnected, "no data must never disconnect")

	require.NoError(t, watcher.Refresh(t.Context()))
	assert.Equal(t, []string{"B"}, reg.disconnected)

	detach()
	reg.conns["A"] = connection.StatusConnected
	lister.results = append(lister.results, nil)
	lister.errs = append(lister.errs, nil)
	require.NoError(t, watcher.Refresh(t.Context()))
	assert.Equal(t, []string{"B"}, reg.disconnected)
}
