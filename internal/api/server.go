// ABOUTME: Local HTTP API over the connection registry, workspace list and event bus
// ABOUTME: chi router with request logging and optional bearer token on /v1 routes

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shekohex/opencoder-sub000/internal/attention"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/connection"
	"github.com/shekohex/opencoder-sub000/internal/event"
)

const defaultHeartbeatInterval = 15 * time.Second

// Registry is the connection manager surface the API drives.
type Registry interface {
	Connect(ctx context.Context, workspaceID string) error
	Disconnect(workspaceID string)
	Connection(workspaceID string) (connection.Connection, bool)
	Connections() []connection.Connection
	StartStream(workspaceID string) error
}

// WorkspaceSource exposes the last fetched workspace list.
type WorkspaceSource interface {
	Snapshot() ([]coder.Workspace, bool)
}

// AttentionSource exposes outstanding attention items.
type AttentionSource interface {
	Snapshot() []attention.Item
	NeedsAttention(workspaceID string) bool
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Token protects /v1 routes when non-empty.
	Token             string
	HeartbeatInterval time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	config     Config
	registry   Registry
	workspaces WorkspaceSource
	attention  AttentionSource
	bus        *event.Bus
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance.
func New(config Config, registry Registry, workspaces WorkspaceSource, att AttentionSource, bus *event.Bus, logger *slog.Logger) *Server {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     config,
		registry:   registry,
		workspaces: workspaces,
		attention:  att,
		bus:        bus,
		logger:     logger.With("component", "api"),
		startedAt:  time.Now(),
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // event streams are long-lived
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.Token != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.Token != "" {
			r.Use(s.bearerAuth)
		}
		r.Get("/v1/workspaces", s.handleListWorkspaces)
		r.Get("/v1/connections", s.handleListConnections)
		r.Get("/v1/attention", s.handleAttention)
		r.Get("/v1/events", s.handleEvents)

		r.Route("/v1/workspaces/{workspace_id}", func(r chi.Router) {
			r.Get("/connection", s.handleGetConnection)
			r.Post("/connection", s.handleConnect)
			r.Delete("/connection", s.handleDisconnect)
			r.Post("/stream", s.handleRestartStream)
			r.Get("/events", s.handleWorkspaceEvents)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
