// ABOUTME: Per-connection event stream worker with bounded exponential backoff
// ABOUTME: Normalizes server-sent payloads and publishes them on the bus in arrival order

package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shekohex/opencoder-sub000/internal/event"
)

// Stream retry defaults.
const (
	DefaultMaxRetries  = 5
	DefaultBackoffBase = 3 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// StreamConfig bounds the stream worker's retries. Zero fields take defaults.
type StreamConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// Backoff returns the wait before attempt n: base doubled per prior retry,
// capped at BackoffMax. Attempt 0 does not wait.
func (c StreamConfig) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := c.BackoffBase
	for i := 1; i < attempt && d < c.BackoffMax; i++ {
		d *= 2
	}
	return min(d, c.BackoffMax)
}

type worker struct {
	id     string
	cancel context.CancelFunc
}

// startStreamLocked cancels any prior worker for workspaceID and starts a new
// one. Caller holds m.mu.
func (m *Manager) startStreamLocked(workspaceID string, client AgentClient) {
	if prev := m.streams[workspaceID]; prev != nil {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &worker{id: uuid.NewString(), cancel: cancel}
	m.streams[workspaceID] = w

	logger := m.logger.With("workspace_id", workspaceID, "worker_id", w.id)
	logger.Debug("stream worker started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		attempts, exhausted := m.runStream(ctx, workspaceID, client, logger)
		m.streamEnded(workspaceID, w, attempts, exhausted)
	}()
}

// runStream is the retry loop. It returns the number of attempts made and
// whether it stopped because retries ran out rather than by cancellation.
func (m *Manager) runStream(ctx context.Context, workspaceID string, client AgentClient, logger *slog.Logger) (int, bool) {
	for attempt := 0; ; attempt++ {
		if attempt >= m.stream.MaxRetries {
			logger.Warn("event stream retries exhausted", "attempts", attempt)
			return attempt, true
		}

		if attempt > 0 {
			if !sleep(ctx, m.stream.Backoff(attempt)) {
				return attempt, false
			}
		}

		err := m.consume(ctx, workspaceID, client)
		if ctx.Err() != nil {
			logger.Debug("stream worker cancelled", "attempt", attempt)
			return attempt + 1, false
		}
		if err != nil {
			logger.Warn("event stream failed", "attempt", attempt, "error", err)
		} else {
			logger.Info("event stream ended", "attempt", attempt)
		}
	}
}

// consume reads one subscription until it ends, errors or ctx is cancelled.
// A nil return means the server closed the stream cleanly.
func (m *Manager) consume(ctx context.Context, workspaceID string, client AgentClient) error {
	stream, err := client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer stream.Close()

	// Unblock Recv as soon as the worker is cancelled.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	for {
		raw, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		ev, ok := event.Normalize(raw)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.bus.Emit(workspaceID, ev)
	}
}

// streamEnded drops w from the worker table if it is still current. When it
// gave up on retries, the connected record is moved to StatusError so the
// usual retry path applies.
func (m *Manager) streamEnded(workspaceID string, w *worker, attempts int, exhausted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.streams[workspaceID] != w {
		return
	}
	delete(m.streams, workspaceID)

	if !exhausted {
		return
	}
	rec, ok := m.conns[workspaceID]
	if !ok || rec.conn.Status != StatusConnected {
		return
	}
	rec.conn.Status = StatusError
	rec.conn.Error = fmt.Sprintf("event stream unavailable after %d attempts", attempts)
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
