package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
)

var errBackendDown = errors.New("backend down")

// switchableIndex wraps a real in-memory index and fails writes while down.
type switchableIndex struct {
	store.SearchIndex

	mu      sync.Mutex
	down    bool
	upserts int
}

func newSwitchableIndex(t *testing.T) *switchableIndex {
	t.Helper()
	idx, err := store.NewBleveIndex("", store.DefaultBleveIndexConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return &switchableIndex{SearchIndex: idx}
}

func (s *switchableIndex) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *switchableIndex) Upsert(ctx context.Context, doc *store.IndexDocument) error {
	s.mu.Lock()
	s.upserts++
	down := s.down
	s.mu.Unlock()
	if down {
		return perrors.IndexUnavailableError("upsert document", errBackendDown)
	}
	return s.SearchIndex.Upsert(ctx, doc)
}

func (s *switchableIndex) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *switchableIndex) has(t *testing.T, id int64) bool {
	t.Helper()
	ids, err := s.AllIDs(context.Background())
	require.NoError(t, err)
	for _, got := range ids {
		if got == id {
			return true
		}
	}
	return false
}

// failingStore fails every write with a plain error.
type failingStore struct {
	store.MessageStore
	appends int
}

func (f *failingStore) Append(context.Context, store.NewMessage) (*store.Message, error) {
	f.appends++
	return nil, errBackendDown
}

func (f *failingStore) List(context.Context) ([]*store.Message, error) {
	return nil, errBackendDown
}

func newMemoryStore(t *testing.T) store.MessageStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// alertRecorder collects alerts.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []Alert
	ch     chan Alert
}

func newAlertRecorder() *alertRecorder {
	return &alertRecorder{ch: make(chan Alert, 16)}
}

func (a *alertRecorder) IndexFailed(_ context.Context, alert Alert) {
	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()
	a.ch <- alert
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// hookedIndex runs afterAllIDs once, after the first AllIDs read.
type hookedIndex struct {
	store.SearchIndex
	once        sync.Once
	afterAllIDs func()
}

func (h *hookedIndex) AllIDs(ctx context.Context) ([]int64, error) {
	ids, err := h.SearchIndex.AllIDs(ctx)
	if h.afterAllIDs != nil {
		h.once.Do(h.afterAllIDs)
	}
	return ids, err
}

// hookedStore runs afterRead once, after the first AllIDs or List read.
type hookedStore struct {
	store.MessageStore
	once      sync.Once
	afterRead func()
}

func (h *hookedStore) AllIDs(ctx context.Context) ([]int64, error) {
	ids, err := h.MessageStore.AllIDs(ctx)
	h.fire()
	return ids, err
}

func (h *hookedStore) List(ctx context.Context) ([]*store.Message, error) {
	msgs, err := h.MessageStore.List(ctx)
	h.fire()
	return msgs, err
}

func (h *hookedStore) fire() {
	if h.afterRead != nil {
		h.once.Do(h.afterRead)
	}
}
