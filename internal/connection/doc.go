// Package connection is the registry of workspace connections.
//
// A Manager resolves a workspace's agent-server endpoint, builds and
// health-checks a client, and then keeps a stream worker running that
// republishes the server's events on an event.Bus keyed by workspace ID.
//
// Status transitions:
//
//	(absent) -> connecting -> connected | error
//	error    -> connecting   (Connect again)
//	any      -> (absent)     (Disconnect)
//
// A stream worker retries with exponential backoff up to StreamConfig.MaxRetries
// attempts. When it gives up, the record moves to error and a new Connect
// restores it.
package connection
