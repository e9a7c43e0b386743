package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

// MockMessages implements Messages for testing.
type MockMessages struct {
	IngestFn func(ctx context.Context, sender, body string) (*store.Message, error)
	ListFn   func(ctx context.Context) ([]*store.Message, error)
	GetFn    func(ctx context.Context, id int64) (*store.Message, error)

	mu      sync.Mutex
	ingests int
}

func (m *MockMessages) Ingest(ctx context.Context, sender, body string) (*store.Message, error) {
	m.mu.Lock()
	m.ingests++
	m.mu.Unlock()
	if m.IngestFn != nil {
		return m.IngestFn(ctx, sender, body)
	}
	return &store.Message{ID: 1, SenderName: sender, Body: body, CreatedAt: testTime}, nil
}

func (m *MockMessages) List(ctx context.Context) ([]*store.Message, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	return []*store.Message{}, nil
}

func (m *MockMessages) Get(ctx context.Context, id int64) (*store.Message, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, nil
}

func (m *MockMessages) ingestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingests
}

// MockSearcher implements Searcher for testing.
type MockSearcher struct {
	SearchFn func(ctx context.Context, query string) ([]*search.SearchResult, error)
}

func (m *MockSearcher) Search(ctx context.Context, query string) ([]*search.SearchResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query)
	}
	return []*search.SearchResult{}, nil
}

// MockStatus implements StatusReporter for testing.
type MockStatus struct {
	Result *index.StatusReport
	Err    error
}

func (m *MockStatus) Report(context.Context) (*index.StatusReport, error) {
	return m.Result, m.Err
}

var (
	_ Messages       = (*MockMessages)(nil)
	_ Searcher       = (*MockSearcher)(nil)
	_ StatusReporter = (*MockStatus)(nil)
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, messages *MockMessages, searcher *MockSearcher, status StatusReporter) *Server {
	if messages == nil {
		messages = &MockMessages{}
	}
	if searcher == nil {
		searcher = &MockSearcher{}
	}
	s, err := NewServer(messages, searcher, status)
	require.NoError(t, err)
	return s
}
