package async

import (
	"context"
	"errors"
	"sync"

	"github.com/parley-chat/parley/internal/store"
)

var errIndexDown = errors.New("index down")

// flakyIndex fails the first failures upserts, then succeeds.
type flakyIndex struct {
	mu       sync.Mutex
	failures int
	calls    int
	docs     map[int64]*store.IndexDocument
}

func newFlakyIndex(failures int) *flakyIndex {
	return &flakyIndex{failures: failures, docs: make(map[int64]*store.IndexDocument)}
}

func (f *flakyIndex) Upsert(_ context.Context, doc *store.IndexDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errIndexDown
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *flakyIndex) UpsertMany(ctx context.Context, docs []*store.IndexDocument) error {
	for _, d := range docs {
		if err := f.Upsert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (f *flakyIndex) Query(context.Context, store.QuerySpec) ([]*store.Hit, error) {
	return nil, nil
}

func (f *flakyIndex) Delete(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *flakyIndex) AllIDs(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *flakyIndex) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

func (f *flakyIndex) Close() error { return nil }

func (f *flakyIndex) has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok
}

func (f *flakyIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
