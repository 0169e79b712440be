// ABOUTME: Synchronous in-process event bus keyed by workspace ID
// ABOUTME: Global listeners see every workspace; scoped listeners see one; delivery is in registration order

package event

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type listener struct {
	id          string
	workspaceID string // empty for global listeners
	global      func(workspaceID string, ev Event)
	scoped      func(ev Event)
	removed     atomic.Bool
}

// Bus fans events out to subscribers. Emit calls every matching listener
// synchronously, in registration order, before returning. Nothing is buffered:
// a listener registered after an Emit never sees that event.
type Bus struct {
	mu        sync.RWMutex
	listeners []*listener
	logger    *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "event-bus")}
}

// Listen registers fn for events from every workspace.
func (b *Bus) Listen(fn func(workspaceID string, ev Event)) (unsubscribe func()) {
	return b.add(&listener{id: uuid.NewString(), global: fn})
}

// On registers fn for events from one workspace.
func (b *Bus) On(workspaceID string, fn func(ev Event)) (unsubscribe func()) {
	return b.add(&listener{id: uuid.NewString(), workspaceID: workspaceID, scoped: fn})
}

func (b *Bus) add(l *listener) func() {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	b.logger.Debug("listener added", "listener_id", l.id, "workspace_id", l.workspaceID)

	return func() { b.remove(l) }
}

func (b *Bus) remove(l *listener) {
	if l.removed.Swap(true) {
		return
	}
	b.mu.Lock()
	b.listeners = slices.DeleteFunc(b.listeners, func(x *listener) bool { return x == l })
	b.mu.Unlock()

	b.logger.Debug("listener removed", "listener_id", l.id, "workspace_id", l.workspaceID)
}

// Emit delivers ev for workspaceID. Listeners are called outside the lock and
// may unsubscribe themselves or others; a listener removed mid-delivery is
// not called afterwards.
func (b *Bus) Emit(workspaceID string, ev Event) {
	b.mu.RLock()
	targets := slices.Clone(b.listeners)
	b.mu.RUnlock()

	for _, l := range targets {
		if l.removed.Load() {
			continue
		}
		switch {
		case l.global != nil:
			l.global(workspaceID, ev)
		case l.workspaceID == workspaceID:
			l.scoped(ev)
		}
	}
}

// Clear drops every listener. Previously returned unsubscribe funcs become
// no-ops.
func (b *Bus) Clear() {
	b.mu.Lock()
	for _, l := range b.listeners {
		l.removed.Store(true)
	}
	n := len(b.listeners)
	b.listeners = nil
	b.mu.Unlock()

	b.logger.Debug("bus cleared", "listeners", n)
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
