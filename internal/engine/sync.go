package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/store"
)

// Coordinator states
const (
	stateIdle int32 = iota
	stateSyncing
)

// Coordinator drains the offline mutation queue. At most one drain runs at
// a time: the Idle/Syncing transition is a compare-and-swap, so simultaneous
// triggers (reconnect plus a manual force-sync) cannot double-drain.
type Coordinator struct {
	queue   *store.Queue
	fetcher Fetcher
	timeout time.Duration
	state   atomic.Int32
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(queue *store.Queue, fetcher Fetcher, timeout time.Duration) *Coordinator {
	return &Coordinator{
		queue:   queue,
		fetcher: fetcher,
		timeout: timeout,
	}
}

// Syncing reports whether a drain is in progress
func (c *Coordinator) Syncing() bool {
	return c.state.Load() == stateSyncing
}

// Drain replays every queued operation oldest-first. Successful replays are
// removed, failed ones have their retry count bumped, and the drain keeps
// going regardless of individual outcomes. Returns false when another drain
// was already in progress (the trigger is a no-op).
func (c *Coordinator) Drain(ctx context.Context) (bool, error) {
	if !c.state.CompareAndSwap(stateIdle, stateSyncing) {
		logrus.Debugf("Sync already in progress, ignoring trigger")
		return false, nil
	}
	defer c.state.Store(stateIdle)

	ops, err := c.queue.ListPending()
	if err != nil {
		return true, err
	}
	if len(ops) == 0 {
		return true, nil
	}

	logrus.Infof("Draining offline queue: %d pending operations", len(ops))

	for _, op := range ops {
		c.replay(ctx, op)
	}

	return true, nil
}

// replay re-issues one operation exactly as enqueued. A completed HTTP
// exchange counts as delivered whatever the status; only a network failure
// feeds the retry bookkeeping.
func (c *Coordinator) replay(ctx context.Context, op *store.Operation) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &Request{
		Method: op.Method,
		URL:    op.URL,
		Header: op.Header,
		Body:   op.Body,
	}

	result, err := c.fetcher.Fetch(attemptCtx, req)
	if err == nil {
		logrus.Infof("Replayed %s %s -> %d", op.Method, op.URL, result.StatusCode)
		if err := c.queue.Remove(op.ID); err != nil {
			logrus.Errorf("Failed to remove replayed operation %s: %v", op.ID, err)
		}
		return
	}

	logrus.Warnf("Replay of %s %s failed: %v", op.Method, op.URL, err)

	if _, err := c.queue.IncrementRetry(op.ID); err != nil {
		if errors.Is(err, store.ErrDropped) {
			return
		}
		logrus.Errorf("Failed to update retry count for %s: %v", op.ID, err)
	}
}
