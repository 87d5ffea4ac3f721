// ABOUTME: Subscription registry tracking live widget streams per session
// ABOUTME: Subscribers are buffered channels; close and send may race safely

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// defaultBufferSize is the per-subscriber channel buffer when the
// configured value is zero or negative.
const defaultBufferSize = 64

// Event is the payload pushed to a widget stream: one discrete message.
type Event struct {
	Text string `json:"text"`
}

// Subscriber is one open browser tab's live-update stream. It accepts
// writes until closed; a full buffer counts as a failed write and the
// relay retires the subscriber.
type Subscriber struct {
	id      string
	session string

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// ID returns the subscriber's registry key.
func (s *Subscriber) ID() string { return s.id }

// Session returns the owning session ID.
func (s *Subscriber) Session() string { return s.session }

// Events is the receive side consumed by the stream handler. It is closed
// when the subscriber is unsubscribed.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// send attempts a non-blocking write. It returns false when the
// subscriber is closed or its buffer is full. It never panics, even when
// racing a concurrent close.
func (s *Subscriber) send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// close is idempotent. Unsubscribe from the disconnect callback and from
// the relay's dead-channel path may both reach it.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Registry tracks which subscribers are live for each session. Mutations
// are single atomic steps under one mutex; no lock is held across a
// channel operation that could block.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscriber // session -> subID -> subscriber
	buffer int
	logger *slog.Logger
}

// NewRegistry creates a registry with the given per-subscriber buffer.
// Pass nil logger for default.
func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[string]map[string]*Subscriber),
		buffer: buffer,
		logger: logger.With("component", "registry"),
	}
}

// Subscribe registers a new subscriber for the session, creating the
// session's set if absent. The subscription is automatically removed when
// ctx is cancelled, which is how connection close deregisters the stream.
func (r *Registry) Subscribe(ctx context.Context, session string) *Subscriber {
	sub := &Subscriber{
		id:      uuid.New().String(),
		session: session,
		ch:      make(chan Event, r.buffer),
	}

	r.mu.Lock()
	if _, ok := r.subs[session]; !ok {
		r.subs[session] = make(map[string]*Subscriber)
	}
	r.subs[session][sub.id] = sub
	r.mu.Unlock()

	r.logger.Debug("subscriber added", "session", session, "sub_id", sub.id)

	go func() {
		<-ctx.Done()
		r.Unsubscribe(session, sub.id)
	}()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Calling it
// twice, or for a subscriber that was never registered, is a no-op.
func (r *Registry) Unsubscribe(session, subID string) {
	r.mu.Lock()
	subs, ok := r.subs[session]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub, ok := subs[subID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(r.subs, session)
	}
	r.mu.Unlock()

	sub.close()
	r.logger.Debug("subscriber removed", "session", session, "sub_id", subID)
}

// Subscribers returns a snapshot of the session's live subscribers. The
// slice may be empty: session known, no tab currently open.
func (r *Registry) Subscribers(session string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[session]
	out := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out
}

// Count reports the number of live subscribers for a session.
func (r *Registry) Count(session string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[session])
}

// Sessions reports the number of sessions with at least one live
// subscriber.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Total reports the number of live subscribers across all sessions.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	return n
}

// Close retires every subscriber. Used at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Subscriber, 0)
	for session, subs := range r.subs {
		for id, sub := range subs {
			all = append(all, sub)
			delete(subs, id)
		}
		delete(r.subs, session)
	}
	r.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
	r.logger.Debug("registry closed")
}
