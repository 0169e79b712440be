// ABOUTME: Periodically refreshed workspace list with change subscribers
// ABOUTME: Only successful fetches are published; failures leave the last snapshot untouched

package coder

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRefreshInterval is how often the watcher refetches the workspace list.
const DefaultRefreshInterval = 10 * time.Second

// Lister fetches the current workspace list.
type Lister interface {
	Workspaces(ctx context.Context) ([]Workspace, error)
}

type watchSubscriber struct {
	id string
	fn func([]Workspace)
}

// Watcher keeps the latest workspace list and notifies subscribers whenever a
// refresh succeeds.
type Watcher struct {
	lister   Lister
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot []Workspace
	fetched  bool
	subs     []watchSubscriber
}

// NewWatcher creates a watcher. A zero interval uses DefaultRefreshInterval.
func NewWatcher(lister Lister, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		lister:   lister,
		interval: interval,
		logger:   logger.With("component", "workspace-watcher"),
	}
}

// Subscribe registers fn to receive every successful refresh. The returned
// func removes the subscription and is safe to call more than once.
func (w *Watcher) Subscribe(fn func([]Workspace)) func() {
	id := uuid.NewString()

	w.mu.Lock()
	w.subs = append(w.subs, watchSubscriber{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.subs = slices.DeleteFunc(w.subs, func(s watchSubscriber) bool { return s.id == id })
	}
}

// Snapshot returns a copy of the last successfully fetched list and whether
// any fetch has succeeded yet.
func (w *Watcher) Snapshot() ([]Workspace, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.snapshot), w.fetched
}

// Refresh fetches the list once and publishes it on success.
func (w *Watcher) Refresh(ctx context.Context) error {
	list, err := w.lister.Workspaces(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.snapshot = list
	w.fetched = true
	subs := slices.Clone(w.subs)
	w.mu.Unlock()

	for _, s := range subs {
		s.fn(slices.Clone(list))
	}
	return nil
}

// Run refreshes immediately and then on every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("workspace refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
