// Package store provides opencoder's persistent key-value storage.
//
// Only the signed-in session (deployment URL and token) is persisted.
// Connection state is deliberately in-memory and rebuilt after restart.
//
//	s, err := store.NewSQLiteStore(filepath.Join(dataDir, "opencoder.db"))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
// MockStore is an in-memory implementation for tests.
package store
