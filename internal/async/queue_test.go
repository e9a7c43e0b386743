package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
)

func fastRetry(maxRetries int) perrors.RetryConfig {
	return perrors.RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func testDoc(id int64) *store.IndexDocument {
	return &store.IndexDocument{ID: id, SenderName: "alice", Body: "hello", CreatedAt: time.Now()}
}

type outcome struct {
	id       int64
	attempts int
	err      error
}

// recorder collects queue callbacks.
type recorder struct {
	mu        sync.Mutex
	indexed   []outcome
	exhausted []outcome
	done      chan struct{}
}

func newRecorder(q *RetryQueue) *recorder {
	r := &recorder{done: make(chan struct{}, 16)}
	q.OnIndexed = func(job Job, attempts int) {
		r.mu.Lock()
		r.indexed = append(r.indexed, outcome{id: job.Doc.ID, attempts: attempts})
		r.mu.Unlock()
		r.done <- struct{}{}
	}
	q.OnExhausted = func(_ context.Context, job Job, attempts int, err error) {
		r.mu.Lock()
		r.exhausted = append(r.exhausted, outcome{id: job.Doc.ID, attempts: attempts, err: err})
		r.mu.Unlock()
		r.done <- struct{}{}
	}
	return r
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retry outcome")
	}
}

func TestRetryQueue_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: an index that fails twice more before recovering
	idx := newFlakyIndex(2)
	q := NewRetryQueue(idx, RetryQueueConfig{Capacity: 4, Retry: fastRetry(5)})
	rec := newRecorder(q)
	q.Start(context.Background())
	defer q.Stop()

	// When: a document is enqueued
	require.NoError(t, q.Enqueue(testDoc(1)))
	rec.wait(t)

	// Then: it is indexed on the third queue attempt
	assert.True(t, idx.has(1))
	require.Len(t, rec.indexed, 1)
	assert.Equal(t, 4, rec.indexed[0].attempts)
	assert.Empty(t, rec.exhausted)
	assert.Zero(t, q.Depth())
}

func TestRetryQueue_ExhaustionReportsLastError(t *testing.T) {
	// Given: an index that never recovers
	idx := newFlakyIndex(-1)
	q := NewRetryQueue(idx, RetryQueueConfig{Capacity: 4, Retry: fastRetry(3)})
	rec := newRecorder(q)
	q.Start(context.Background())
	defer q.Stop()

	// When: a document is enqueued
	require.NoError(t, q.Enqueue(testDoc(9)))
	rec.wait(t)

	// Then: exactly MaxRetries writes were attempted and the failure is reported
	assert.Equal(t, 3, idx.callCount())
	require.Len(t, rec.exhausted, 1)
	assert.Equal(t, int64(9), rec.exhausted[0].id)
	assert.Equal(t, 4, rec.exhausted[0].attempts)
	assert.ErrorIs(t, rec.exhausted[0].err, errIndexDown)
	assert.False(t, q.IsPending(9))
}

func TestRetryQueue_RejectsDuplicates(t *testing.T) {
	q := NewRetryQueue(newFlakyIndex(0), RetryQueueConfig{Capacity: 4, Retry: fastRetry(1)})

	require.NoError(t, q.Enqueue(testDoc(1)))
	err := q.Enqueue(testDoc(1))

	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, 1, q.Depth())
}

func TestRetryQueue_FullQueueNeverBlocks(t *testing.T) {
	// Given: a queue with room for two and no worker
	q := NewRetryQueue(newFlakyIndex(0), RetryQueueConfig{Capacity: 2, Retry: fastRetry(1)})
	require.NoError(t, q.Enqueue(testDoc(1)))
	require.NoError(t, q.Enqueue(testDoc(2)))

	// When: a third document arrives
	done := make(chan error, 1)
	go func() { done <- q.Enqueue(testDoc(3)) }()

	// Then: it is rejected immediately
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.False(t, q.IsPending(3))
}

func TestRetryQueue_DrainsJobsEnqueuedBeforeStart(t *testing.T) {
	idx := newFlakyIndex(0)
	q := NewRetryQueue(idx, RetryQueueConfig{Capacity: 4, Retry: fastRetry(2)})
	rec := newRecorder(q)
	require.NoError(t, q.Enqueue(testDoc(1)))
	require.NoError(t, q.Enqueue(testDoc(2)))

	q.Start(context.Background())
	defer q.Stop()
	rec.wait(t)
	rec.wait(t)

	assert.True(t, idx.has(1))
	assert.True(t, idx.has(2))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int64{1, 2}, []int64{rec.indexed[0].id, rec.indexed[1].id})
}

func TestRetryQueue_StopReportsUnresolvedJobs(t *testing.T) {
	// Given: a running queue whose backoff is far longer than the test
	q := NewRetryQueue(newFlakyIndex(0), RetryQueueConfig{
		Capacity: 4,
		Retry:    perrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2},
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(testDoc(1)))
	require.NoError(t, q.Enqueue(testDoc(2)))

	// When: stopping
	left := q.Stop()

	// Then: both jobs are reported and new work is refused
	assert.Equal(t, 2, left)
	assert.False(t, q.IsRunning())
	assert.ErrorIs(t, q.Enqueue(testDoc(3)), ErrQueueStopped)
	assert.Equal(t, 2, q.Stop())
}

func TestRetryQueue_ParentCancellationStopsWorker(t *testing.T) {
	q := NewRetryQueue(newFlakyIndex(0), RetryQueueConfig{Capacity: 1, Retry: fastRetry(1)})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	cancel()

	assert.Eventually(t, func() bool { return !q.IsRunning() }, time.Second, 5*time.Millisecond)
}
