// ABOUTME: Signed-in Coder session holder used as the connection manager's credential provider
// ABOUTME: Validates sessions on login and optionally persists them to the key-value store

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shekohex/opencoder-sub000/internal/store"
)

// ErrNotAuthenticated is returned when no valid session is present.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is a deployment URL plus the credential used against it.
type Session struct {
	BaseURL string
	Token   string
}

// Validate checks the session is usable at time now.
func (s Session) Validate(now time.Time) error {
	if s.BaseURL == "" || s.Token == "" {
		return ErrNotAuthenticated
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid deployment url %q", ErrNotAuthenticated, s.BaseURL)
	}
	if err := checkTokenExpiry(s.Token, now); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return nil
}

// Sessions holds the current session. It is safe for concurrent use.
type Sessions struct {
	mu      sync.RWMutex
	current Session
	store   store.Store
	now     func() time.Time
	logger  *slog.Logger
}

// NewSessions creates an empty holder. st may be nil to keep the session in
// memory only.
func NewSessions(st store.Store, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		store:  st,
		now:    time.Now,
		logger: logger.With("component", "auth"),
	}
}

// Session returns the current session, or an error wrapping
// ErrNotAuthenticated when there is none or it is no longer valid.
func (s *Sessions) Session() (Session, error) {
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()

	if err := sess.Validate(s.now()); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Login validates sess, makes it current and persists it.
func (s *Sessions) Login(ctx context.Context, sess Session) error {
	sess.BaseURL = strings.TrimRight(strings.TrimSpace(sess.BaseURL), "/")
	sess.Token = strings.TrimSpace(sess.Token)
	if err := sess.Validate(s.now()); err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Set(ctx, store.KeySessionURL, sess.BaseURL); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if err := s.store.Set(ctx, store.KeySessionToken, sess.Token); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.logger.Info("signed in", "base_url", sess.BaseURL)
	return nil
}

// Logout forgets the current session.
func (s *Sessions) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, store.KeySessionToken); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	if err := s.store.Delete(ctx, store.KeySessionURL); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Restore loads a previously persisted session. It returns
// ErrNotAuthenticated when nothing usable was stored.
func (s *Sessions) Restore(ctx context.Context) error {
	if s.store == nil {
		return ErrNotAuthenticated
	}

	baseURL, err := s.store.Get(ctx, store.KeySessionURL)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	token, err := s.store.Get(ctx, store.KeySessionToken)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	sess := Session{BaseURL: baseURL, Token: token}
	if err := sess.Validate(s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return nil
}
