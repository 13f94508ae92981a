package engine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// queueMutation enqueues one operation by issuing a mutation while offline
func queueMutation(t *testing.T, e *Engine, fake *fakeFetcher, url string) {
	t.Helper()

	fake.setOffline(true)
	req := &Request{Method: http.MethodPost, URL: url, Header: http.Header{}, Body: []byte(`{}`)}
	result, err := e.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Queued)
}

func TestDrainReplaysInEnqueueOrder(t *testing.T) {
	e, fake := fixture_engine(t, nil)

	queueMutation(t, e, fake, "https://x.test/api/assets")
	queueMutation(t, e, fake, "https://x.test/api/assets/1")

	fake.setOffline(false)
	before := fake.callCount()

	ran, err := e.sync.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	calls := fake.callLog()[before:]
	require.Equal(t, []string{
		"POST https://x.test/api/assets",
		"POST https://x.test/api/assets/1",
	}, calls, "dependent writes must replay in original intent order")

	count, err := e.queue.Len()
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.False(t, e.sync.Syncing(), "coordinator must return to idle")
}

func TestDrainIncrementsRetryOnFailure(t *testing.T) {
	e, fake := fixture_engine(t, nil)

	queueMutation(t, e, fake, "https://x.test/api/assets")

	// Still offline during the drain
	ran, err := e.sync.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	ops, err := e.queue.ListPending()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, 1, ops[0].RetryCount)
}

func TestDrainContinuesPastFailures(t *testing.T) {
	e, fake := fixture_engine(t, nil)

	queueMutation(t, e, fake, "https://x.test/api/assets")
	queueMutation(t, e, fake, "https://x.test/api/vaults")

	// First replay fails, second succeeds; the drain must not abort early
	fake.handler = func(req *Request) (*Result, error) {
		if req.URL == "https://x.test/api/assets" {
			return nil, context.DeadlineExceeded
		}
		return &Result{StatusCode: http.StatusOK, Header: http.Header{}, Source: SourceNetwork}, nil
	}

	ran, err := e.sync.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	ops, err := e.queue.ListPending()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "https://x.test/api/assets", ops[0].URL)
	require.Equal(t, 1, ops[0].RetryCount)
}

func TestOperationDroppedAfterRetryBudget(t *testing.T) {
	e, fake := fixture_engine(t, nil)
	e.maxRetries = 2

	queueMutation(t, e, fake, "https://x.test/api/assets")

	// Stay offline: each drain is one failed replay. maxRetries=2 allows
	// retry counts 1 and 2; the third failure drops the operation.
	for i := 0; i < 3; i++ {
		ran, err := e.sync.Drain(context.Background())
		require.NoError(t, err)
		require.True(t, ran)
	}

	ops, err := e.queue.ListPending()
	require.NoError(t, err)
	require.Empty(t, ops, "an exhausted operation must vanish from the queue")
}

func TestConcurrentDrainIsNoOp(t *testing.T) {
	e, fake := fixture_engine(t, nil)

	queueMutation(t, e, fake, "https://x.test/api/assets")
	fake.setOffline(false)

	started := make(chan struct{})
	release := make(chan struct{})
	fake.handler = func(req *Request) (*Result, error) {
		close(started)
		<-release
		return &Result{StatusCode: http.StatusOK, Header: http.Header{}, Source: SourceNetwork}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ran, err := e.sync.Drain(context.Background())
		require.NoError(t, err)
		require.True(t, ran)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never started")
	}

	// A second trigger while syncing must not enter the drain
	ran, err := e.sync.Drain(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.True(t, e.sync.Syncing())

	close(release)
	<-done
	require.False(t, e.sync.Syncing())
}
