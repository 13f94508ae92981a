package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier()

	first, stopFirst := n.Subscribe()
	second, stopSecond := n.Subscribe()
	defer stopFirst()
	defer stopSecond()

	n.Notify(Event{Type: EventCacheUpdated, URL: "https://x.test/api/orgs"})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			require.Equal(t, EventCacheUpdated, event.Type)
			require.Equal(t, "https://x.test/api/orgs", event.URL)
			require.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier()

	events, unsubscribe := n.Subscribe()
	unsubscribe()

	// Channel is closed; notifying afterwards must not panic
	_, open := <-events
	require.False(t, open)

	n.Notify(Event{Type: EventNetworkStatus, Online: false})

	// Unsubscribing twice is harmless
	unsubscribe()
}

func TestNotifierNeverBlocks(t *testing.T) {
	n := NewNotifier()

	// A subscriber that never reads must not stall the broadcast
	_, unsubscribe := n.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			n.Notify(Event{Type: EventNetworkStatus, Online: true})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a slow subscriber")
	}
}
