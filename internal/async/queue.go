package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
)

// DefaultQueueCapacity bounds the number of documents awaiting a retry.
const DefaultQueueCapacity = 1024

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("retry queue full")

	// ErrAlreadyQueued is returned by Enqueue when the id is already pending.
	ErrAlreadyQueued = errors.New("document already queued for retry")

	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("retry queue stopped")
)

// Job is a document whose index write failed during ingest.
type Job struct {
	Doc      *store.IndexDocument
	Enqueued time.Time
}

// RetryQueueConfig configures a RetryQueue.
type RetryQueueConfig struct {
	// Capacity is the maximum number of pending jobs.
	Capacity int

	// Retry is the backoff applied to each job. MaxRetries is the number of
	// index writes the queue attempts, on top of the one made during ingest.
	Retry perrors.RetryConfig

	// IndexTimeout bounds each individual index write.
	IndexTimeout time.Duration
}

// RetryQueue re-attempts failed index writes in the background. Enqueue is
// safe for concurrent use and never blocks; a single worker drains jobs in
// FIFO order.
type RetryQueue struct {
	config RetryQueueConfig
	index  store.SearchIndex

	// OnIndexed is called after a job's document was written. attempts
	// counts every index write for the document, the ingest attempt included.
	OnIndexed func(job Job, attempts int)

	// OnExhausted is called once the retry budget for a job is spent.
	OnExhausted func(ctx context.Context, job Job, attempts int, err error)

	jobs chan Job

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	pending map[int64]struct{}
	running bool
	stopped bool
}

// NewRetryQueue creates a queue that writes to index. Call Start to run the worker.
func NewRetryQueue(index store.SearchIndex, cfg RetryQueueConfig) *RetryQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultQueueCapacity
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 1
	}
	return &RetryQueue{
		config:  cfg,
		index:   index,
		jobs:    make(chan Job, cfg.Capacity),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		pending: make(map[int64]struct{}),
	}
}

// Enqueue schedules doc for retry.
func (q *RetryQueue) Enqueue(doc *store.IndexDocument) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	if _, ok := q.pending[doc.ID]; ok {
		return ErrAlreadyQueued
	}

	select {
	case q.jobs <- Job{Doc: doc, Enqueued: time.Now()}:
		q.pending[doc.ID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of jobs not yet resolved, the one in flight included.
func (q *RetryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// IsPending reports whether id is queued or in flight.
func (q *RetryQueue) IsPending(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

// IsRunning returns true while the worker is running.
func (q *RetryQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Start runs the worker in a background goroutine until ctx is done or Stop
// is called. Retries are bound to ctx, not to the context of the ingest that
// enqueued them.
func (q *RetryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running || q.stopped {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.run(ctx)
}

func (q *RetryQueue) run(ctx context.Context) {
	defer close(q.doneCh)
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-q.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

// Stop cancels the worker, waits for it to exit and returns the number of
// jobs left unresolved. Those documents are picked up by reconciliation.
func (q *RetryQueue) Stop() int {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return q.Depth()
	}
	q.stopped = true
	running := q.running
	q.mu.Unlock()

	close(q.stopCh)
	if running {
		<-q.doneCh
	}

	left := q.Depth()
	if left > 0 {
		slog.Warn("retry_queue_abandoned", slog.Int("pending", left))
	}
	return left
}

func (q *RetryQueue) process(ctx context.Context, job Job) {
	id := job.Doc.ID
	cfg := q.config.Retry

	// The ingest attempt already failed, so the first retry waits too.
	if !sleep(ctx, cfg.Delay(1)) {
		return
	}

	tail := cfg
	tail.MaxRetries = cfg.MaxRetries - 1
	tail.InitialDelay = cfg.Delay(2)

	attempts := 1
	err := perrors.RetryWithNotify(ctx, tail, func() error {
		attempts++
		return q.upsert(ctx, job.Doc)
	}, func(attempt int, err error, next time.Duration) {
		slog.Debug("retry_scheduled",
			slog.Int64("message_id", id),
			slog.Int("attempt", attempts),
			slog.Duration("next", next),
			slog.String("error", err.Error()))
	})

	var exhausted *perrors.ExhaustedError
	switch {
	case err == nil:
		q.release(id)
		slog.Info("retry_succeeded",
			slog.Int64("message_id", id),
			slog.Int("attempts", attempts),
			slog.Duration("pending_for", time.Since(job.Enqueued)))
		if q.OnIndexed != nil {
			q.OnIndexed(job, attempts)
		}

	case errors.As(err, &exhausted):
		q.release(id)
		if q.OnExhausted != nil {
			q.OnExhausted(ctx, job, attempts, exhausted.Last)
		}

	default:
		// Cancelled mid-retry: stays pending until Stop reports it.
		slog.Debug("retry_interrupted", slog.Int64("message_id", id), slog.String("error", err.Error()))
	}
}

func (q *RetryQueue) upsert(ctx context.Context, doc *store.IndexDocument) error {
	if q.config.IndexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.IndexTimeout)
		defer cancel()
	}
	return q.index.Upsert(ctx, doc)
}

func (q *RetryQueue) release(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
}

// sleep waits for d or until ctx is done; false means ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
