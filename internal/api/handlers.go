// ABOUTME: JSON handlers for workspaces, connections and attention items
// ABOUTME: Maps connect failures onto HTTP statuses while keeping the registry's error record

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shekohex/opencoder-sub000/internal/attention"
	"github.com/shekohex/opencoder-sub000/internal/auth"
	"github.com/shekohex/opencoder-sub000/internal/connection"
	"github.com/shekohex/opencoder-sub000/internal/endpoint"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connections   int    `json:"connections"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
	// Type is the endpoint resolution failure type, when there is one.
	Type string `json:"type,omitempty"`
}

// ConnectionResponse describes one workspace connection.
type ConnectionResponse struct {
	WorkspaceID string     `json:"workspace_id"`
	Status      string     `json:"status"`
	BaseURL     string     `json:"base_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// WorkspaceResponse is one entry of GET /v1/workspaces.
type WorkspaceResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	Status         string `json:"status"`
	Connection     string `json:"connection"`
	NeedsAttention bool   `json:"needs_attention"`
}

func toConnectionResponse(c connection.Connection) ConnectionResponse {
	resp := ConnectionResponse{
		WorkspaceID: c.WorkspaceID,
		Status:      string(c.Status),
		BaseURL:     c.BaseURL,
		Error:       c.Error,
	}
	if !c.ConnectedAt.IsZero() {
		at := c.ConnectedAt
		resp.ConnectedAt = &at
	}
	return resp
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Connections:   len(s.registry.Connections()),
	})
}

// handleListWorkspaces handles GET /v1/workspaces.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, ok := s.workspaces.Snapshot()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "workspace list not loaded yet")
		return
	}

	status := make(map[string]connection.Status)
	for _, c := range s.registry.Connections() {
		status[c.WorkspaceID] = c.Status
	}

	out := make([]WorkspaceResponse, 0, len(list))
	for _, ws := range list {
		connStatus, ok := status[ws.ID]
		if !ok {
			connStatus = connection.StatusDisconnected
		}
		out = append(out, WorkspaceResponse{
			ID:             ws.ID,
			Name:           ws.Name,
			Owner:          ws.OwnerName,
			Status:         string(ws.LatestBuild.Status),
			Connection:     string(connStatus),
			NeedsAttention: s.attention.NeedsAttention(ws.ID),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleListConnections handles GET /v1/connections.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.registry.Connections()
	out := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionResponse(c))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetConnection handles GET /v1/workspaces/{workspace_id}/connection.
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")

	conn, ok := s.registry.Connection(workspaceID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no connection for workspace")
		return
	}
	respondJSON(w, http.StatusOK, toConnectionResponse(conn))
}

// handleConnect handles POST /v1/workspaces/{workspace_id}/connection.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")

	err := s.registry.Connect(r.Context(), workspaceID)
	if err != nil {
		s.writeConnectError(w, workspaceID, err)
		return
	}

	conn, ok := s.registry.Connection(workspaceID)
	if !ok {
		s.writeError(w, http.StatusConflict, "workspace was disconnected")
		return
	}
	respondJSON(w, http.StatusOK, toConnectionResponse(conn))
}

func (s *Server) writeConnectError(w http.ResponseWriter, workspaceID string, err error) {
	var epErr *endpoint.Error
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &epErr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: epErr.Message, Type: string(epErr.Type)})
	case errors.Is(err, connection.ErrConnectAborted):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, connection.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Warn("connect failed", "workspace_id", workspaceID, "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleDisconnect handles DELETE /v1/workspaces/{workspace_id}/connection.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.registry.Disconnect(chi.URLParam(r, "workspace_id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleRestartStream handles POST /v1/workspaces/{workspace_id}/stream.
func (s *Server) handleRestartStream(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")

	if err := s.registry.StartStream(workspaceID); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	conn, _ := s.registry.Connection(workspaceID)
	respondJSON(w, http.StatusAccepted, toConnectionResponse(conn))
}

// handleAttention handles GET /v1/attention.
func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	items := s.attention.Snapshot()
	if items == nil {
		items = []attention.Item{}
	}
	respondJSON(w, http.StatusOK, items)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
