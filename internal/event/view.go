// ABOUTME: Per-workspace typed view over the bus for a single UI scope
// ABOUTME: Subscribes once to the global bus, decodes matching events and re-emits them locally

package event

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

type viewHandler struct {
	id string
	fn func(Variant)
}

// View receives the events of one workspace as decoded variants. The owner
// must call Close when its scope ends.
type View struct {
	workspaceID string

	mu          sync.RWMutex
	handlers    []viewHandler
	unsubscribe func()
	closed      bool
}

// NewView subscribes a view for workspaceID to bus.
func NewView(bus *Bus, workspaceID string) *View {
	v := &View{workspaceID: workspaceID}
	v.unsubscribe = bus.Listen(func(id string, ev Event) {
		if id != v.workspaceID {
			return
		}
		v.dispatch(Decode(ev))
	})
	return v
}

// WorkspaceID returns the workspace the view is bound to.
func (v *View) WorkspaceID() string {
	return v.workspaceID
}

// OnEvent registers fn for every event of the workspace.
func (v *View) OnEvent(fn func(Variant)) (unsubscribe func()) {
	id := uuid.NewString()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return func() {}
	}
	v.handlers = append(v.handlers, viewHandler{id: id, fn: fn})
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.handlers = slices.DeleteFunc(v.handlers, func(h viewHandler) bool { return h.id == id })
	}
}

// Handle registers fn for events of variant type T only.
//
//	event.Handle(view, func(p event.PermissionUpdated) { ... })
func Handle[T Variant](v *View, fn func(T)) (unsubscribe func()) {
	return v.OnEvent(func(variant Variant) {
		if typed, ok := variant.(T); ok {
			fn(typed)
		}
	})
}

func (v *View) dispatch(variant Variant) {
	v.mu.RLock()
	handlers := slices.Clone(v.handlers)
	v.mu.RUnlock()

	for _, h := range handlers {
		h.fn(variant)
	}
}

// Close releases the bus subscription and drops all handlers.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.handlers = nil
	unsubscribe := v.unsubscribe
	v.mu.Unlock()

	unsubscribe()
}
