package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeCapEnforced(t *testing.T) {
	b := NewBus().WithLimits(2, time.Second, 100, time.Hour)

	sub1, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	defer b.Unsubscribe(sub1)

	sub2, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	defer b.Unsubscribe(sub2)

	_, err = b.Subscribe(Filter{})
	assert.ErrorAs(t, err, new(ErrBusFull))
}

func TestBroadcastDeliversToMatchingSubscriberOnly(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe(Filter{RunID: "run-a"})
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	b.Broadcast(New(TypeTaskStart, "run-b", SourceCLI, nil))
	b.Broadcast(New(TypeTaskStart, "run-a", SourceCLI, nil))

	select {
	case e := <-sub.Events:
		assert.Equal(t, "run-a", e.RunID)
		assert.Equal(t, 1, e.V)
	case <-time.After(time.Second):
		t.Fatal("expected event for run-a")
	}

	select {
	case e := <-sub.Events:
		t.Fatalf("unexpected second event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastDropsSlowSubscriberWithoutBlocking(t *testing.T) {
	b := NewBus().WithLimits(DefaultMaxSubscribers, 10*time.Millisecond, 100, time.Hour)
	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	// Fill the subscriber's buffer so the next send must block, then exceed
	// the per-subscriber timeout; Broadcast must still return promptly.
	for i := 0; i < 64; i++ {
		b.Broadcast(New(TypeTaskProgress, "run", SourceCLI, nil))
	}

	done := make(chan struct{})
	go func() {
		b.Broadcast(New(TypeTaskComplete, "run", SourceCLI, nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked past subscriber timeout")
	}
}

func TestListEventsOrderedAndFilteredByRun(t *testing.T) {
	b := NewBus()
	b.Broadcast(New(TypeTaskStart, "run-1", SourceCLI, nil))
	b.Broadcast(New(TypeTaskComplete, "run-1", SourceCLI, nil))
	b.Broadcast(New(TypeTaskStart, "run-2", SourceCLI, nil))

	got := b.ListEvents("run-1")
	require.Len(t, got, 2)
	assert.Equal(t, TypeTaskStart, got[0].Type)
	assert.Equal(t, TypeTaskComplete, got[1].Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// Broadcasting after unsubscribe must not panic (closed channel is not
	// a broadcast target anymore).
	b.Broadcast(New(TypeTaskStart, "run", SourceCLI, nil))
}
