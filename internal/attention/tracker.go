// ABOUTME: Cross-workspace tracker of events that need the user's attention
// ABOUTME: Listens on the global bus for permission requests and session errors in every workspace

package attention

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shekohex/opencoder-sub000/internal/event"
)

// Kind classifies an attention item.
type Kind string

const (
	KindPermission   Kind = "permission"
	KindSessionError Kind = "session_error"
)

// Item is one outstanding thing the user should look at.
type Item struct {
	WorkspaceID string    `json:"workspace_id"`
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	Title       string    `json:"title"`
	Directory   string    `json:"directory,omitempty"`
	At          time.Time `json:"at"`
}

// itemKey identifies an item within a workspace.
type itemKey struct {
	kind Kind
	id   string
}

// Tracker keeps the pending permission requests and unresolved session errors
// of every workspace. A permission is pending until it is replied to; a
// session error stands until that session goes idle or is deleted.
type Tracker struct {
	mu    sync.Mutex
	items map[string]map[itemKey]Item // workspaceID -> key -> item

	notify      func(Item)
	unsubscribe func()
	now         func() time.Time
	logger      *slog.Logger
}

// NewTracker subscribes a tracker to bus. notify, if non-nil, is called once
// for every new item, from the goroutine that emitted the event.
func NewTracker(bus *event.Bus, notify func(Item), logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		items:  make(map[string]map[itemKey]Item),
		notify: notify,
		now:    time.Now,
		logger: logger.With("component", "attention"),
	}
	t.unsubscribe = bus.Listen(t.handle)
	return t
}

func (t *Tracker) handle(workspaceID string, ev event.Event) {
	switch v := event.Decode(ev).(type) {
	case event.PermissionUpdated:
		t.add(Item{
			WorkspaceID: workspaceID,
			Kind:        KindPermission,
			ID:          v.ID,
			SessionID:   v.SessionID,
			Title:       v.Title,
			Directory:   v.Directory,
		})
	case event.PermissionReplied:
		t.remove(workspaceID, func(k itemKey, _ Item) bool {
			return k.kind == KindPermission && k.id == v.PermissionID
		})
	case event.SessionError:
		t.add(Item{
			WorkspaceID: workspaceID,
			Kind:        KindSessionError,
			ID:          v.SessionID,
			SessionID:   v.SessionID,
			Title:       v.Message(),
			Directory:   v.Directory,
		})
	case event.SessionIdle:
		t.remove(workspaceID, func(k itemKey, _ Item) bool {
			return k.kind == KindSessionError && k.id == v.SessionID
		})
	case event.SessionDeleted:
		t.remove(workspaceID, func(_ itemKey, it Item) bool {
			return it.SessionID == v.Info.ID
		})
	}
}

func (t *Tracker) add(item Item) {
	if item.ID == "" {
		return
	}
	key := itemKey{kind: item.Kind, id: item.ID}

	t.mu.Lock()
	byKey, ok := t.items[item.WorkspaceID]
	if !ok {
		byKey = make(map[itemKey]Item)
		t.items[item.WorkspaceID] = byKey
	}
	_, seen := byKey[key]
	if seen && item.Kind == KindPermission {
		t.mu.Unlock()
		return
	}
	item.At = t.now()
	byKey[key] = item
	t.mu.Unlock()

	if seen {
		return
	}
	t.logger.Info("attention needed",
		"workspace_id", item.WorkspaceID,
		"kind", item.Kind,
		"id", item.ID,
	)
	if t.notify != nil {
		t.notify(item)
	}
}

func (t *Tracker) remove(workspaceID string, match func(itemKey, Item) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKey := t.items[workspaceID]
	for k, it := range byKey {
		if match(k, it) {
			delete(byKey, k)
		}
	}
	if len(byKey) == 0 {
		delete(t.items, workspaceID)
	}
}

// Forget drops every item of a workspace, e.g. after it is disconnected.
func (t *Tracker) Forget(workspaceID string) {
	t.mu.Lock()
	delete(t.items, workspaceID)
	t.mu.Unlock()
}

// NeedsAttention reports whether the workspace has any outstanding item.
func (t *Tracker) NeedsAttention(workspaceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items[workspaceID]) > 0
}

// Snapshot returns every outstanding item ordered by workspace, kind and ID.
func (t *Tracker) Snapshot() []Item {
	t.mu.Lock()
	out := make([]Item, 0)
	for _, byKey := range t.items {
		for _, it := range byKey {
			out = append(out, it)
		}
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Item) int {
		return cmp.Or(
			cmp.Compare(a.WorkspaceID, b.WorkspaceID),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// Close stops listening on the bus. Items are kept.
func (t *Tracker) Close() {
	t.unsubscribe()
}
