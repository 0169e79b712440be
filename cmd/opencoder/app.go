// ABOUTME: Wiring of config, persisted session, Coder client and connection manager
// ABOUTME: Shared by every subcommand that talks to the deployment

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shekohex/opencoder-sub000/internal/auth"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/config"
	"github.com/shekohex/opencoder-sub000/internal/connection"
	"github.com/shekohex/opencoder-sub000/internal/endpoint"
	"github.com/shekohex/opencoder-sub000/internal/event"
	"github.com/shekohex/opencoder-sub000/internal/opencode"
	"github.com/shekohex/opencoder-sub000/internal/store"
)

// app holds the long-lived collaborators of one CLI invocation.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	store      store.Store
	sessions   *auth.Sessions
}

// loadApp reads the config, sets up logging and opens the session store.
func loadApp(ctx context.Context) (*app, error) {
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, configPath: path, logger: logger, store: st}

	if cfg.Coder.URL != "" && cfg.Coder.Token != "" {
		// Credentials from the config file win and are not persisted.
		a.sessions = auth.NewSessions(nil, logger)
		err = a.sessions.Login(ctx, auth.Session{BaseURL: cfg.Coder.URL, Token: cfg.Coder.Token})
	} else {
		a.sessions = auth.NewSessions(st, logger)
		err = a.sessions.Restore(ctx)
	}
	if err != nil && !errors.Is(err, auth.ErrNotAuthenticated) {
		st.Close()
		return nil, err
	}
	if err != nil {
		logger.Debug("no usable session", "error", err)
	}

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// coderClient returns a client for the signed-in deployment.
func (a *app) coderClient() (*coder.Client, error) {
	sess, err := a.sessions.Session()
	if err != nil {
		return nil, fmt.Errorf("%w (run `opencoder login <url> <token>`)", err)
	}
	return coder.NewClient(sess.BaseURL, sess.Token, &http.Client{Timeout: 30 * time.Second}, a.logger), nil
}

// endpointOptions returns the app URL options, asking the deployment for its
// wildcard app host when the config does not pin one.
func (a *app) endpointOptions(ctx context.Context, client *coder.Client) endpoint.Options {
	opts := endpoint.Options{
		WildcardHostname: a.cfg.Coder.WildcardHostname,
		PathAppURL:       a.cfg.Coder.PathAppURL,
	}
	if opts.WildcardHostname != "" {
		return opts
	}

	host, err := client.AppHost(ctx)
	if err != nil {
		a.logger.Warn("could not fetch app host, using path-based app URLs", "error", err)
		return opts
	}
	opts.WildcardHostname = host
	return opts
}

// newManager builds a connection manager bound to client's deployment.
// onDisconnect runs after each workspace is disconnected.
func (a *app) newManager(client *coder.Client, opts endpoint.Options, bus *event.Bus, onDisconnect func(string)) *connection.Manager {
	logger := a.logger
	return connection.New(connection.Params{
		Sessions:   a.sessions,
		Workspaces: client,
		Factory: connection.ClientFactoryFunc(func(baseURL, token string) (connection.AgentClient, error) {
			return opencode.NewClient(baseURL, token, opencode.Options{Logger: logger}), nil
		}),
		Bus:      bus,
		Endpoint: opts,
		Stream: connection.StreamConfig{
			MaxRetries:  a.cfg.Stream.MaxRetries,
			BackoffBase: a.cfg.Stream.BackoffBase,
			BackoffMax:  a.cfg.Stream.BackoffMax,
		},
		Logger:       logger,
		OnDisconnect: onDisconnect,
	})
}
