package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_SyncMode(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	err := pub.Emit(context.Background(), Event{
		Actor:  "user-1",
		Action: ActionSignedIn,
	})
	require.NoError(t, err)

	events := sink.ByActor("user-1")
	require.Len(t, events, 1)
	assert.Equal(t, ActionSignedIn, events[0].Action)
}

func TestPublisher_AsyncMode(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), Event{
		Actor:  "user-1",
		Action: ActionListingCreated,
		Entity: "l1",
	})
	require.NoError(t, err)

	// Wait for async processing
	assert.Eventually(t, func() bool {
		return len(sink.ByActor("user-1")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), Event{
			Actor:  "user-1",
			Action: ActionListingUpdated,
		})
		require.NoError(t, err)
	}

	pub.Close()

	assert.Len(t, sink.ByActor("user-1"), 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(1))
	defer pub.Close()

	// Fill the buffer with concurrent writes; none may block or panic.
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), Event{
				Actor:  "user-1",
				Action: ActionSignedIn,
			})
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	before := time.Now()
	err := pub.Emit(context.Background(), Event{Actor: "user-1", Action: ActionSignedOut})
	require.NoError(t, err)
	after := time.Now()

	events := sink.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	stamp := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	err := pub.Emit(context.Background(), Event{
		Actor:     "user-1",
		Action:    ActionSignedIn,
		Timestamp: stamp,
	})
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(stamp))
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewPublisher(NewMemorySink(), WithAsyncBuffer(10))
	pub.Close()
	pub.Close()
}
