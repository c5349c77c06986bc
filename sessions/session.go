package sessions

import (
	"sync"
	"time"
)

// State describes the lifecycle position of a session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateClosed        State = "closed"
)

// Session is a logical, identifier-addressed conversation between one client
// and the server, backed by one Transport. Safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time
	transport *Transport

	mu              sync.RWMutex
	state           State
	protocolVersion string
	lastSeen        time.Time
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Transport returns the session's transport adapter. The returned value is
// the same instance for the session's whole lifetime.
func (s *Session) Transport() *Transport { return s.transport }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ProtocolVersion returns the protocol version negotiated at initialization,
// or "" while the session is uninitialized.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// Activate transitions the session from Uninitialized to Active, recording
// the negotiated protocol version. It is a no-op on any other state.
func (s *Session) Activate(protocolVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return
	}
	s.state = StateActive
	s.protocolVersion = protocolVersion
	s.lastSeen = time.Now()
}

// Touch records client activity for idle-eviction accounting.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the most recent client activity.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// close marks the session Closed and releases its transport. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()
	s.transport.Close()
}
