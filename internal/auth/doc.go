// Package auth holds the Coder session opencoder acts with.
//
// # Sessions
//
// A Session is a deployment URL plus a token sent as the Coder-Session-Token
// header. Sessions is the thread-safe holder the connection manager reads
// before every connect:
//
//	sessions := auth.NewSessions(st, logger)
//	if err := sessions.Restore(ctx); errors.Is(err, auth.ErrNotAuthenticated) {
//	    // ask the user to log in
//	}
//
// Login validates and persists a session; Logout forgets it. Session returns
// an error wrapping ErrNotAuthenticated when there is no usable session.
//
// # Token Expiry
//
// Coder API keys are opaque and accepted as-is. Tokens shaped like a JWT
// have their exp claim read without signature verification, so an expired
// token fails locally instead of at the first request. The deployment remains
// the authority on whether a token is valid.
package auth
