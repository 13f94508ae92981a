package engine

import (
	"sync"
	"time"
)

// Event types broadcast to connected application instances
const (
	EventCacheUpdated  = "CACHE_UPDATED"
	EventNetworkStatus = "NETWORK_STATUS"
)

// Event is a broadcast notification. Delivery is best-effort: a missed
// event means the application re-derives state on its next read.
type Event struct {
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	Online    bool      `json:"online,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans events out to all current subscribers
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a listener and returns its event channel plus an
// unsubscribe function
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++

	ch := make(chan Event, 16)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if existing, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(existing)
		}
	}
}

// Notify broadcasts an event to every subscriber. Sends never block: a
// subscriber with a full buffer misses the event.
func (n *Notifier) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
