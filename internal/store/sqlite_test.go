// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers file creation, key round-trips, overwrite and delete semantics

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Get(ctx, KeySessionToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeySessionToken, "first"))
	require.NoError(t, s.Set(ctx, KeySessionToken, "second"))

	got, err := s.Get(ctx, KeySessionToken)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.NoError(t, s.Delete(ctx, KeySessionToken))
	require.NoError(t, s.Delete(ctx, KeySessionToken))

	_, err = s.Get(ctx, KeySessionToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(t.Context(), KeySessionURL, "https://coder.example.com"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(t.Context(), KeySessionURL)
	require.NoError(t, err)
	assert.Equal(t, "https://coder.example.com", got)
}

func TestMockStore_MatchesSQLiteSemantics(t *testing.T) {
	m := NewMockStore()
	ctx := t.Context()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v"))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
