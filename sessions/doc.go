// Package sessions owns the server's session lifecycle: the process-wide
// Registry mapping session ids to live sessions, and the per-session
// Transport that bridges protocol messages onto the request/response and
// server-push delivery channels.
//
// A session's Transport is constructed exactly once, when the Registry mints
// the session, and is never replaced. Only the session's state transitions:
//
//	Uninitialized -> Active -> Closed
//
// Uninitialized exists only during the synchronous handling of the first
// (initialize) request. Closed is terminal; messages addressed to a closed
// session fail and the registry entry becomes eligible for eviction.
package sessions
