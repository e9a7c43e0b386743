// Package index keeps the search index in step with the message store.
// Ingest writes the store first and the index second; index failures are
// retried in the background and repaired by reconciliation.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/parley-chat/parley/internal/async"
	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
)

// Default limits applied when CoordinatorConfig leaves them zero.
const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultIndexTimeout = 3 * time.Second
	DefaultMaxBodyBytes = 64 * 1024
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Store is the canonical message store.
	Store store.MessageStore

	// Index is the derived search index.
	Index store.SearchIndex

	// Alerter receives messages that could not be indexed. Defaults to LogAlerter.
	Alerter Alerter

	// StoreTimeout bounds each store write.
	StoreTimeout time.Duration

	// IndexTimeout bounds each index write, retries included.
	IndexTimeout time.Duration

	// MaxBodyBytes rejects larger bodies with ERR_407.
	MaxBodyBytes int

	// Retry is the backoff for failed index writes.
	Retry perrors.RetryConfig

	// QueueCapacity bounds the retry queue.
	QueueCapacity int

	// StateCapacity bounds how many messages have their state tracked.
	StateCapacity int

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// ingestRequest is validated after trimming; the stored values are not trimmed.
type ingestRequest struct {
	SenderName string `json:"sender_name" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

// Coordinator is the single entry point for posting and listing messages.
type Coordinator struct {
	store        store.MessageStore
	index        store.SearchIndex
	alerter      Alerter
	storeTimeout time.Duration
	indexTimeout time.Duration
	maxBodyBytes int

	validate *validator.Validate
	clock    *monotonicClock
	states   *StateTracker
	queue    *async.RetryQueue
}

// NewCoordinator creates a coordinator. Call Start to run the retry worker.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	if config.Alerter == nil {
		config.Alerter = LogAlerter{}
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if config.IndexTimeout <= 0 {
		config.IndexTimeout = DefaultIndexTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	config.Retry = withRetryDefaults(config.Retry)
	if config.Now == nil {
		config.Now = time.Now
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})

	c := &Coordinator{
		store:        config.Store,
		index:        config.Index,
		alerter:      config.Alerter,
		storeTimeout: config.StoreTimeout,
		indexTimeout: config.IndexTimeout,
		maxBodyBytes: config.MaxBodyBytes,
		validate:     validate,
		clock:        &monotonicClock{now: config.Now},
		states:       NewStateTracker(config.StateCapacity),
	}

	c.queue = async.NewRetryQueue(config.Index, async.RetryQueueConfig{
		Capacity:     config.QueueCapacity,
		Retry:        config.Retry,
		IndexTimeout: config.IndexTimeout,
	})
	c.queue.OnIndexed = func(job async.Job, attempts int) {
		c.states.Set(job.Doc.ID, StateIndexed)
	}
	c.queue.OnExhausted = func(ctx context.Context, job async.Job, attempts int, err error) {
		c.states.Set(job.Doc.ID, StateIndexFailedPermanently)
		c.alerter.IndexFailed(ctx, Alert{
			MessageID: job.Doc.ID,
			Attempts:  attempts,
			Err:       err,
			At:        config.Now(),
			Reason:    ReasonRetriesExhausted,
		})
	}

	return c
}

// withRetryDefaults fills each unset field of cfg from DefaultRetryConfig.
// Jitter is kept as given.
func withRetryDefaults(cfg perrors.RetryConfig) perrors.RetryConfig {
	def := perrors.DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	return cfg
}

// Ingest validates and stores a message, then indexes it. Once the store
// write succeeds Ingest reports success: an index failure is queued for
// retry and never returned to the caller.
func (c *Coordinator) Ingest(ctx context.Context, senderName, body string) (*store.Message, error) {
	if err := c.validateInput(senderName, body); err != nil {
		return nil, err
	}

	msg, err := c.append(ctx, store.NewMessage{
		SenderName: senderName,
		Body:       body,
		CreatedAt:  c.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	c.states.Set(msg.ID, StateStored)
	slog.Debug("ingest_stored", slog.Int64("message_id", msg.ID))

	doc := store.DocumentFromMessage(msg)
	if err := c.upsert(ctx, doc); err != nil {
		c.handleIndexFailure(ctx, doc, err)
		return msg, nil
	}

	c.states.Set(msg.ID, StateIndexed)
	slog.Debug("ingest_indexed", slog.Int64("message_id", msg.ID))
	return msg, nil
}

func (c *Coordinator) validateInput(senderName, body string) error {
	req := ingestRequest{
		SenderName: strings.TrimSpace(senderName),
		Body:       strings.TrimSpace(body),
	}
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			return perrors.ValidationError(field+" is required", nil).WithDetail("field", field)
		}
		return perrors.ValidationError("invalid message", err)
	}

	if len(body) > c.maxBodyBytes {
		return perrors.New(perrors.ErrCodeMessageTooBig,
			fmt.Sprintf("body is %d bytes, limit is %d", len(body), c.maxBodyBytes), nil).
			WithDetail("field", store.FieldBody)
	}
	return nil
}

func (c *Coordinator) append(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	stored, err := c.store.Append(ctx, msg)
	if err != nil {
		if _, ok := perrors.As(err); ok {
			return nil, err
		}
		return nil, perrors.PersistenceError("append message", err)
	}
	return stored, nil
}

func (c *Coordinator) upsert(ctx context.Context, doc *store.IndexDocument) error {
	ctx, cancel := context.WithTimeout(ctx, c.indexTimeout)
	defer cancel()
	return c.index.Upsert(ctx, doc)
}

func (c *Coordinator) handleIndexFailure(ctx context.Context, doc *store.IndexDocument, cause error) {
	c.states.Set(doc.ID, StateStoredUnindexed)
	slog.Warn("index_upsert_failed",
		append([]any{slog.Int64("message_id", doc.ID)}, perrors.LogAttrs(cause)...)...)

	err := c.queue.Enqueue(doc)
	switch {
	case err == nil:
		slog.Debug("retry_enqueued", slog.Int64("message_id", doc.ID), slog.Int("depth", c.queue.Depth()))
	case errors.Is(err, async.ErrQueueFull):
		c.alerter.IndexFailed(context.WithoutCancel(ctx), Alert{
			MessageID: doc.ID,
			Attempts:  1,
			Err:       cause,
			At:        c.clock.now(),
			Reason:    ReasonQueueFull,
		})
	default:
		slog.Warn("retry_not_enqueued",
			slog.Int64("message_id", doc.ID),
			slog.String("error", err.Error()))
	}
}

// List returns every message, newest first.
func (c *Coordinator) List(ctx context.Context) ([]*store.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	msgs, err := c.store.List(ctx)
	if err != nil {
		if _, ok := perrors.As(err); ok {
			return nil, err
		}
		return nil, perrors.PersistenceError("list messages", err)
	}
	return msgs, nil
}

// Get returns one message, or nil when id does not exist.
func (c *Coordinator) Get(ctx context.Context, id int64) (*store.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	msg, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, asPersistence("get message", err)
	}
	return msg, nil
}

// State returns the tracked index state of a recently ingested message.
func (c *Coordinator) State(id int64) (IndexState, bool) {
	return c.states.Get(id)
}

// StateCounts tallies tracked messages by state.
func (c *Coordinator) StateCounts() map[IndexState]int {
	return c.states.Counts()
}

// QueueDepth returns the number of documents awaiting an index retry.
func (c *Coordinator) QueueDepth() int {
	return c.queue.Depth()
}

// Start runs the retry worker until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.queue.Start(ctx)
}

// Stop halts the retry worker and returns the number of documents it left
// unindexed. Reconciliation picks them up on the next start.
func (c *Coordinator) Stop() int {
	return c.queue.Stop()
}

// monotonicClock never returns a time at or before one it already returned,
// so created_at strictly increases across ingests in this process.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (m *monotonicClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Nanosecond)
	}
	m.last = t
	return t
}
