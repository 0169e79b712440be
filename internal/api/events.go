// ABOUTME: Server-sent event endpoints relaying bus events to HTTP clients
// ABOUTME: Bus delivery never blocks on a slow client; overflowing events are dropped

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shekohex/opencoder-sub000/internal/event"
)

// subscriberBufferSize is the per-client backlog before events are dropped.
const subscriberBufferSize = 64

// EventMessage is the data payload of one SSE frame.
type EventMessage struct {
	WorkspaceID string         `json:"workspace_id"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// handleEvents handles GET /v1/events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, "", func(ch chan<- EventMessage) func() {
		return s.bus.Listen(func(workspaceID string, ev event.Event) {
			s.offer(ch, EventMessage{WorkspaceID: workspaceID, Type: ev.Type, Properties: ev.Properties})
		})
	})
}

// handleWorkspaceEvents handles GET /v1/workspaces/{workspace_id}/events.
func (s *Server) handleWorkspaceEvents(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	s.serveEvents(w, r, workspaceID, func(ch chan<- EventMessage) func() {
		return s.bus.On(workspaceID, func(ev event.Event) {
			s.offer(ch, EventMessage{WorkspaceID: workspaceID, Type: ev.Type, Properties: ev.Properties})
		})
	})
}

// offer runs on the stream worker's goroutine and must not block.
func (s *Server) offer(ch chan<- EventMessage, msg EventMessage) {
	select {
	case ch <- msg:
	default:
		s.logger.Debug("dropped event for slow subscriber",
			"workspace_id", msg.WorkspaceID,
			"type", msg.Type,
		)
	}
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, workspaceID string, subscribe func(chan<- EventMessage) func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := make(chan EventMessage, subscriberBufferSize)
	unsubscribe := subscribe(ch)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The opening comment tells clients the subscription is live.
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	s.logger.Debug("event subscriber attached", "workspace_id", workspaceID)
	defer s.logger.Debug("event subscriber detached", "workspace_id", workspaceID)

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-ch:
			s.writeSSEEvent(w, msg.Type, msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, name string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
