// ABOUTME: Relay moving inbound page messages to the correct live widget streams
// ABOUTME: Resolves sessions for outbound sends; dead streams are retired, never retried

package session

import (
	"errors"
	"log/slog"
)

var (
	// ErrUnknownRecipient means an inbound message arrived for a PSID with
	// no linked session: either the visitor never completed the hand-off,
	// or they linked under a session this process has not seen. The event
	// is dropped; the webhook must still be ACKed to the platform.
	ErrUnknownRecipient = errors.New("no session linked to recipient")

	// ErrUnlinked means an outbound send was attempted before the visitor
	// completed the Messenger hand-off. Callers surface this as "connect
	// first", not as a generic failure, and make no platform call.
	ErrUnlinked = errors.New("session not linked to a recipient")
)

// Relay routes events between the Messenger adapters and the live widget
// streams using the correlation table and the subscription registry.
type Relay struct {
	links    *Links
	registry *Registry
	logger   *slog.Logger
}

// NewRelay creates a relay over the given table and registry. Pass nil
// logger for default.
func NewRelay(links *Links, registry *Registry, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		links:    links,
		registry: registry,
		logger:   logger.With("component", "relay"),
	}
}

// DeliverInbound pushes one page message to every live stream of the
// session linked to recipient. A failed write retires that subscriber
// only; the remaining streams of the same session still receive the
// event. For a fixed recipient, events reach each stream in the order
// DeliverInbound was called. An empty stream set is not an error: the
// session is known but no tab is open, and the event is dropped.
func (r *Relay) DeliverInbound(recipient, text string) error {
	sess, ok := r.links.SessionFor(recipient)
	if !ok {
		return ErrUnknownRecipient
	}

	ev := Event{Text: text}
	for _, sub := range r.registry.Subscribers(sess) {
		if !sub.send(ev) {
			r.registry.Unsubscribe(sess, sub.ID())
			r.logger.Debug("retired dead subscriber",
				"session", sess,
				"sub_id", sub.ID())
		}
	}
	return nil
}

// DeliverOutbound resolves the PSID for a widget-originated send. The
// caller performs the platform call only on success.
func (r *Relay) DeliverOutbound(session string) (string, error) {
	recipient, ok := r.links.RecipientFor(session)
	if !ok {
		return "", ErrUnlinked
	}
	return recipient, nil
}
