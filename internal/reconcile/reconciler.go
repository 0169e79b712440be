// ABOUTME: Disconnects workspaces whose latest build is no longer running
// ABOUTME: Driven by workspace list refreshes; a failed refresh reconciles nothing

package reconcile

import (
	"log/slog"

	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/connection"
)

// Registry is the part of the connection manager the reconciler needs.
type Registry interface {
	Connections() []connection.Connection
	Disconnect(workspaceID string)
}

// ListSource publishes refreshed workspace lists.
type ListSource interface {
	Subscribe(fn func([]coder.Workspace)) (unsubscribe func())
}

type Reconciler struct {
	registry Registry
	logger   *slog.Logger
}

func NewReconciler(registry Registry, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{registry: registry, logger: logger.With("component", "reconcile")}
}

// Reconcile disconnects every open connection whose workspace is not running
// in workspaces. A workspace missing from the list counts as not running.
// It returns the disconnected IDs.
func (r *Reconciler) Reconcile(workspaces []coder.Workspace) []string {
	running := make(map[string]struct{}, len(workspaces))
	for i := range workspaces {
		if workspaces[i].Running() {
			running[workspaces[i].ID] = struct{}{}
		}
	}

	var disconnected []string
	for _, conn := range r.registry.Connections() {
		if conn.Status == connection.StatusDisconnected {
			continue
		}
		if _, ok := running[conn.WorkspaceID]; ok {
			continue
		}
		r.registry.Disconnect(conn.WorkspaceID)
		disconnected = append(disconnected, conn.WorkspaceID)
	}

	if len(disconnected) > 0 {
		r.logger.Info("disconnected stopped workspaces", "workspace_ids", disconnected)
	}
	return disconnected
}

// Attach reconciles on every list src publishes until detach is called.
func (r *Reconciler) Attach(src ListSource) (detach func()) {
	return src.Subscribe(func(workspaces []coder.Workspace) {
		r.Reconcile(workspaces)
	})
}
