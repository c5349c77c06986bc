package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound indicates the id does not name a live session.
	ErrSessionNotFound = errors.New("session not found")
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the slog logger used by the registry and the transports it
// creates. Defaults to slog.Default().
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// WithIdleTimeout enables background eviction of sessions that have seen no
// client activity for at least d. Sessions with an attached push stream are
// never evicted; their idle clock restarts when the stream drops. Zero (the
// default) disables the sweep and sessions live until explicitly removed.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

// Registry is the sole authoritative mapping from session id to session. All
// components resolve sessions through it and never cache them beyond a single
// request's handling.
type Registry struct {
	log         *slog.Logger
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty in-memory session registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:      slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create mints a session with a fresh cryptographically random id and a
// transport bound to that id. The new session starts Uninitialized; the
// caller completes the initialization handshake and activates it.
func (r *Registry) Create() *Session {
	now := time.Now()
	sess := &Session{
		id:        uuid.NewString(),
		createdAt: now,
		state:     StateUninitialized,
		lastSeen:  now,
	}
	sess.transport = newTransport(sess.id, r.log)

	r.mu.Lock()
	r.sessions[sess.id] = sess
	r.mu.Unlock()

	r.log.Debug("session.create", slog.String("session_id", sess.id))
	return sess
}

// Get resolves a live session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove closes the session's transport, marks it Closed, and evicts it.
// Idempotent: removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	sess.close()
	r.log.Debug("session.remove", slog.String("session_id", id))
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run drives the idle-eviction sweep until ctx is canceled. It returns
// immediately when no idle timeout is configured. On shutdown every remaining
// session is closed so attached streams terminate.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		r.closeAll()
		return ctx.Err()
	}

	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return ctx.Err()
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.RLock()
	var stale []*Session
	for _, sess := range r.sessions {
		if sess.Transport().Attached() {
			continue
		}
		if sess.LastSeen().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	r.mu.RUnlock()

	for _, sess := range stale {
		r.log.Info("session.evict.idle",
			slog.String("session_id", sess.ID()),
			slog.Time("last_seen", sess.LastSeen()),
		)
		r.Remove(sess.ID())
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		all = append(all, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
}
