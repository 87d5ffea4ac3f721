// ABOUTME: Tests for the subscription registry and subscriber lifecycle
// ABOUTME: Covers subscribe, idempotent unsubscribe, context cleanup, close races

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SubscribeAddsToSessionSet(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	sub := r.Subscribe(context.Background(), "s1")
	require.NotNil(t, sub)
	assert.Equal(t, "s1", sub.Session())
	assert.Equal(t, 1, r.Count("s1"))
}

func TestRegistry_MultipleTabsShareOneSession(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	ctx := context.Background()
	r.Subscribe(ctx, "s1")
	r.Subscribe(ctx, "s1")
	r.Subscribe(ctx, "s2")

	assert.Equal(t, 2, r.Count("s1"))
	assert.Equal(t, 1, r.Count("s2"))
	assert.Equal(t, 2, r.Sessions())
	assert.Equal(t, 3, r.Total())
}

func TestRegistry_UnsubscribeClosesEventsChannel(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	sub := r.Subscribe(context.Background(), "s1")
	r.Unsubscribe("s1", sub.ID())

	assert.Equal(t, 0, r.Count("s1"))

	select {
	case _, open := <-sub.Events():
		assert.False(t, open, "events channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	sub := r.Subscribe(context.Background(), "s1")

	// Client disconnect and server-side error handling may race; both
	// paths call Unsubscribe.
	r.Unsubscribe("s1", sub.ID())
	r.Unsubscribe("s1", sub.ID())
	r.Unsubscribe("s1", "never-registered")
	r.Unsubscribe("never-a-session", sub.ID())

	assert.Equal(t, 0, r.Total())
}

func TestRegistry_ContextCancellationUnsubscribes(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := r.Subscribe(ctx, "s1")
	require.Equal(t, 1, r.Count("s1"))

	cancel()

	require.Eventually(t, func() bool {
		return r.Count("s1") == 0
	}, time.Second, 5*time.Millisecond)

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after context cancel")
	}
}

func TestRegistry_SendAfterCloseFailsWithoutPanic(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	sub := r.Subscribe(context.Background(), "s1")
	r.Unsubscribe("s1", sub.ID())

	assert.False(t, sub.send(Event{Text: "late"}))
}

func TestRegistry_SendFailsWhenBufferFull(t *testing.T) {
	r := NewRegistry(2, nil)
	defer r.Close()

	sub := r.Subscribe(context.Background(), "s1")

	assert.True(t, sub.send(Event{Text: "one"}))
	assert.True(t, sub.send(Event{Text: "two"}))
	assert.False(t, sub.send(Event{Text: "three"}), "full buffer must fail the write")
}

func TestRegistry_ConcurrentSendAndCloseDoNotPanic(t *testing.T) {
	r := NewRegistry(1, nil)
	defer r.Close()

	for i := 0; i < 100; i++ {
		sub := r.Subscribe(context.Background(), "s1")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				sub.send(Event{Text: "x"})
			}
		}()
		go func() {
			defer wg.Done()
			r.Unsubscribe("s1", sub.ID())
		}()
		wg.Wait()
	}

	assert.Equal(t, 0, r.Total())
}

func TestRegistry_CloseRetiresEverySubscriber(t *testing.T) {
	r := NewRegistry(0, nil)

	ctx := context.Background()
	s1 := r.Subscribe(ctx, "s1")
	s2 := r.Subscribe(ctx, "s2")

	r.Close()

	assert.Equal(t, 0, r.Total())
	for _, sub := range []*Subscriber{s1, s2} {
		select {
		case _, open := <-sub.Events():
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("events channel not closed by Close")
		}
	}
}
