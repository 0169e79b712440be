// ABOUTME: Key-value Store interface for opencoder's small persistent state
// ABOUTME: Holds the signed-in session so it survives restarts; connection state is never stored

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Well-known keys.
const (
	KeySessionURL   = "session.url"
	KeySessionToken = "session.token"
)

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
