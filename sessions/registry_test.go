package sessions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryCreateMintsUniqueIDs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		sess := r.Create()
		if sess.ID() == "" {
			t.Fatalf("empty session id on trial %d", i)
		}
		if seen[sess.ID()] {
			t.Fatalf("duplicate session id %q on trial %d", sess.ID(), i)
		}
		seen[sess.ID()] = true
	}
	if got := r.Len(); got != 10000 {
		t.Fatalf("registry len = %d, want 10000", got)
	}
}

func TestRegistryGetReturnsSameInstance(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess := r.Create()

	got1, err := r.Get(sess.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got2, err := r.Get(sess.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got1 != sess || got2 != sess {
		t.Fatalf("get returned a different session instance")
	}
	if got1.Transport() != got2.Transport() {
		t.Fatalf("transport instance differs between lookups")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess := r.Create()

	r.Remove(sess.ID())
	if sess.State() != StateClosed {
		t.Fatalf("state = %q, want closed", sess.State())
	}
	if _, err := r.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("removed session still resolvable: %v", err)
	}

	// Removing again, or removing an unknown id, must not panic.
	r.Remove(sess.ID())
	r.Remove("never-existed")
}

func TestRegistryRemoveClosesTransport(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess := r.Create()
	r.Remove(sess.ID())

	if _, err := sess.Transport().Publish(context.Background(), []byte("{}")); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("publish after remove: err = %v, want ErrTransportClosed", err)
	}
}

func TestSessionActivate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess := r.Create()
	if sess.State() != StateUninitialized {
		t.Fatalf("new session state = %q, want uninitialized", sess.State())
	}

	sess.Activate("2025-06-18")
	if sess.State() != StateActive {
		t.Fatalf("state = %q, want active", sess.State())
	}
	if sess.ProtocolVersion() != "2025-06-18" {
		t.Fatalf("protocol version = %q", sess.ProtocolVersion())
	}

	// Activating again must not overwrite the negotiated version.
	sess.Activate("1999-01-01")
	if sess.ProtocolVersion() != "2025-06-18" {
		t.Fatalf("protocol version changed on redundant activate: %q", sess.ProtocolVersion())
	}
}

func TestRegistryIdleSweepEvicts(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithIdleTimeout(50 * time.Millisecond))
	sess := r.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle session was not evicted")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sess.State() != StateClosed {
		t.Fatalf("evicted session state = %q, want closed", sess.State())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRegistryTouchDefersEviction(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithIdleTimeout(10 * time.Minute))
	sess := r.Create()
	sess.Touch()

	r.sweep()
	if r.Len() != 1 {
		t.Fatalf("recently touched session was evicted")
	}
}

func TestRegistrySweepSparesAttachedStream(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithIdleTimeout(50 * time.Millisecond))
	sess := r.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sess.Transport().Subscribe(ctx, "", func(context.Context, string, []byte) error {
			return nil
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !sess.Transport().Attached() {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess.mu.Lock()
	sess.lastSeen = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	r.sweep()
	if r.Len() != 1 {
		t.Fatalf("session with live stream was evicted")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("subscribe ended with: %v", err)
	}

	r.sweep()
	if r.Len() != 0 {
		t.Fatalf("idle session survived sweep after its stream dropped")
	}
}

func TestRegistryRunClosesAllOnShutdown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess := r.Create()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}

	if r.Len() != 0 {
		t.Fatalf("registry not drained on shutdown: len = %d", r.Len())
	}
	if sess.State() != StateClosed {
		t.Fatalf("session state = %q, want closed", sess.State())
	}
}
