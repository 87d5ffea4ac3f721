// ABOUTME: Tests for the relay: inbound fan-out, outbound resolution, retirement
// ABOUTME: Includes the full connect/hand-off/disconnect scenario end to end

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Relay, *Links, *Registry) {
	t.Helper()
	links := NewLinks()
	registry := NewRegistry(0, nil)
	t.Cleanup(registry.Close)
	return NewRelay(links, registry, nil), links, registry
}

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev, open := <-sub.Events():
		require.True(t, open, "events channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRelay_DeliverInboundReachesAllTabs(t *testing.T) {
	relay, links, registry := newTestRelay(t)

	require.NoError(t, links.Link("s1", "psid-9"))
	sub1 := registry.Subscribe(context.Background(), "s1")
	sub2 := registry.Subscribe(context.Background(), "s1")

	require.NoError(t, relay.DeliverInbound("psid-9", "hello"))

	assert.Equal(t, Event{Text: "hello"}, recvEvent(t, sub1))
	assert.Equal(t, Event{Text: "hello"}, recvEvent(t, sub2))
}

func TestRelay_DeliverInboundPreservesOrder(t *testing.T) {
	relay, links, registry := newTestRelay(t)

	require.NoError(t, links.Link("s1", "psid-9"))
	sub := registry.Subscribe(context.Background(), "s1")

	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, relay.DeliverInbound("psid-9", text))
	}

	assert.Equal(t, "first", recvEvent(t, sub).Text)
	assert.Equal(t, "second", recvEvent(t, sub).Text)
	assert.Equal(t, "third", recvEvent(t, sub).Text)
}

func TestRelay_UnknownRecipientIsDropped(t *testing.T) {
	relay, _, _ := newTestRelay(t)

	err := relay.DeliverInbound("psid-nobody", "hello")
	assert.ErrorIs(t, err, ErrUnknownRecipient)
}

func TestRelay_OtherSessionsAreIsolated(t *testing.T) {
	relay, links, registry := newTestRelay(t)

	require.NoError(t, links.Link("s1", "psid-1"))
	require.NoError(t, links.Link("s2", "psid-2"))
	sub1 := registry.Subscribe(context.Background(), "s1")
	sub2 := registry.Subscribe(context.Background(), "s2")

	require.NoError(t, relay.DeliverInbound("psid-1", "for s1 only"))

	assert.Equal(t, "for s1 only", recvEvent(t, sub1).Text)
	assertNoEvent(t, sub2)
}

func TestRelay_DeadSubscriberDoesNotBlockSiblings(t *testing.T) {
	links := NewLinks()
	registry := NewRegistry(1, nil)
	t.Cleanup(registry.Close)
	relay := NewRelay(links, registry, nil)

	require.NoError(t, links.Link("s1", "psid-9"))

	dead := registry.Subscribe(context.Background(), "s1")
	live := registry.Subscribe(context.Background(), "s1")

	// Fill the dead subscriber's buffer so the next write fails.
	require.True(t, dead.send(Event{Text: "stuck"}))

	require.NoError(t, relay.DeliverInbound("psid-9", "hello"))

	// The live sibling still gets the event and the dead one is retired.
	assert.Equal(t, "hello", recvEvent(t, live).Text)
	assert.Equal(t, 1, registry.Count("s1"))

	// Retired means retired: later deliveries skip it.
	require.NoError(t, relay.DeliverInbound("psid-9", "again"))
	assert.Equal(t, 1, registry.Count("s1"))
}

func TestRelay_UnsubscribeMidDeliveryDoesNotPanic(t *testing.T) {
	relay, links, registry := newTestRelay(t)

	require.NoError(t, links.Link("s1", "psid-9"))
	sub1 := registry.Subscribe(context.Background(), "s1")
	sub2 := registry.Subscribe(context.Background(), "s1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = relay.DeliverInbound("psid-9", "burst")
		}
	}()

	// Concurrent close while the fan-out loop runs.
	registry.Unsubscribe("s1", sub1.ID())
	<-done

	// The surviving subscriber received at least one event.
	assert.Equal(t, "burst", recvEvent(t, sub2).Text)
}

func TestRelay_DeliverOutbound(t *testing.T) {
	relay, links, _ := newTestRelay(t)

	_, err := relay.DeliverOutbound("s1")
	assert.ErrorIs(t, err, ErrUnlinked)

	require.NoError(t, links.Link("s1", "psid-9"))

	recipient, err := relay.DeliverOutbound("s1")
	require.NoError(t, err)
	assert.Equal(t, "psid-9", recipient)
}

// Full widget lifecycle: a tab connects before any hand-off, a message for
// an unknown PSID is dropped, the hand-off links the session, the next
// message is delivered exactly once, and after disconnect delivery stops
// without error.
func TestRelay_HandoffScenario(t *testing.T) {
	relay, links, registry := newTestRelay(t)

	sub := registry.Subscribe(context.Background(), "s1")

	// Message before hand-off: unknown recipient, table unchanged.
	assert.ErrorIs(t, relay.DeliverInbound("psid-9", "hello"), ErrUnknownRecipient)
	assertNoEvent(t, sub)
	assert.Equal(t, 0, links.Len())

	// Hand-off fires.
	require.NoError(t, links.Link("s1", "psid-9"))

	// Next message is delivered exactly once.
	require.NoError(t, relay.DeliverInbound("psid-9", "hi again"))
	assert.Equal(t, Event{Text: "hi again"}, recvEvent(t, sub))
	assertNoEvent(t, sub)

	// Tab disconnects; delivery becomes a silent no-op.
	registry.Unsubscribe("s1", sub.ID())
	assert.NoError(t, relay.DeliverInbound("psid-9", "third"))
	assert.Equal(t, 0, registry.Count("s1"))
}
