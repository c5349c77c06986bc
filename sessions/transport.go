package sessions

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
)

var (
	// ErrTransportClosed indicates the session ended; messages addressed to
	// it can no longer be delivered.
	ErrTransportClosed = errors.New("transport closed: stale session")
	// ErrStreamAttached indicates the push channel already has a consumer.
	ErrStreamAttached = errors.New("push channel already attached")
)

// MessageHandlerFunc receives ordered push-channel messages. Returning an
// error terminates the subscription with that error.
type MessageHandlerFunc func(ctx context.Context, msgID string, payload []byte) error

// Transport bridges one session's protocol messages onto its delivery
// channels. The request/response channel is the caller's HTTP exchange and
// needs no state here; Transport owns the push channel: an ordered buffer of
// server-initiated messages drained by at most one long-lived subscriber.
type Transport struct {
	sessID string
	log    *slog.Logger

	mu       sync.Mutex
	closed   bool
	messages []pushMessage
	counter  int64
	attached bool
	notify   chan struct{}
	closeCh  chan struct{}
}

type pushMessage struct {
	id   int64
	data []byte
}

func newTransport(sessID string, log *slog.Logger) *Transport {
	return &Transport{
		sessID:  sessID,
		log:     log,
		notify:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// SessionID returns the owning session's id. Held for logging only.
func (t *Transport) SessionID() string { return t.sessID }

// Publish enqueues one server-initiated message on the push channel and
// returns its event id. Messages published before a subscriber attaches are
// retained and replayed on attach.
func (t *Transport) Publish(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrTransportClosed
	}
	t.counter++
	id := t.counter
	data := make([]byte, len(payload))
	copy(data, payload)
	t.messages = append(t.messages, pushMessage{id: id, data: data})
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}

	return strconv.FormatInt(id, 10), nil
}

// Subscribe attaches the push channel's single consumer and blocks, invoking
// fn for each message in order, until ctx ends, the transport closes, or fn
// fails. Messages with event ids at or before lastEventID are skipped,
// allowing a dropped stream to resume where it left off.
func (t *Transport) Subscribe(ctx context.Context, lastEventID string, fn MessageHandlerFunc) error {
	stream, err := t.Attach()
	if err != nil {
		return err
	}
	return stream.Run(ctx, lastEventID, fn)
}

// Attach claims the push channel's single consumer slot without blocking,
// letting callers reject a duplicate stream before committing a response.
// The slot is held until the returned Stream's Run returns.
func (t *Transport) Attach() (*Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.attached {
		return nil, ErrStreamAttached
	}
	t.attached = true
	return &Stream{t: t}, nil
}

// Attached reports whether the push channel currently has a consumer.
func (t *Transport) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

// Stream is a claimed consumer slot on a transport's push channel.
type Stream struct {
	t *Transport
}

// Run blocks, invoking fn for each message in order, until ctx ends, the
// transport closes, or fn fails. Messages with event ids at or before
// lastEventID are skipped. The consumer slot is released on return.
func (s *Stream) Run(ctx context.Context, lastEventID string, fn MessageHandlerFunc) error {
	t := s.t
	defer func() {
		t.mu.Lock()
		t.attached = false
		t.mu.Unlock()
	}()

	cursor := int64(0)
	if lastEventID != "" {
		if n, err := strconv.ParseInt(lastEventID, 10, 64); err == nil {
			cursor = n
		}
	}

	for {
		pending := t.pendingAfter(cursor)
		for _, msg := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, strconv.FormatInt(msg.id, 10), msg.data); err != nil {
				return err
			}
			cursor = msg.id
		}
		// Everything at or before the cursor has been written to the wire
		// (or acknowledged via lastEventID); dropping it bounds the buffer
		// over a long-lived session.
		t.pruneThrough(cursor)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closeCh:
			// Session ended; undelivered messages are discarded with it.
			return nil
		case <-t.notify:
		}
	}
}

func (t *Transport) pendingAfter(cursor int64) []pushMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []pushMessage
	for _, msg := range t.messages {
		if msg.id > cursor {
			out = append(out, msg)
		}
	}
	return out
}

func (t *Transport) pruneThrough(cursor int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := 0
	for i < len(t.messages) && t.messages[i].id <= cursor {
		i++
	}
	if i > 0 {
		t.messages = append([]pushMessage(nil), t.messages[i:]...)
	}
}

// Close releases the push channel and fails all further delivery. Idempotent.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.messages = nil
	t.mu.Unlock()

	close(t.closeCh)
	t.log.Debug("transport.close", slog.String("session_id", t.sessID))
}
