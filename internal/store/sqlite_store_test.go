package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a message written to an on-disk store
	path := filepath.Join(t.TempDir(), "messages.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	at := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	m, err := s.Append(context.Background(), NewMessage{SenderName: "alice", Body: "hello", CreatedAt: at})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the record is intact to the nanosecond
	got, err := s.Get(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at, got.CreatedAt)

	next, err := s.Append(context.Background(), NewMessage{SenderName: "bob", Body: "x", CreatedAt: at})
	require.NoError(t, err)
	assert.Greater(t, next.ID, m.ID)
}

func TestSQLiteStore_CorruptFileIsNotCleared(t *testing.T) {
	// Given: garbage where the database should be
	path := filepath.Join(t.TempDir(), "messages.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o644))

	// When: opening
	_, err := NewSQLiteStore(path)

	// Then: the open fails and the file is left for the operator
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeStoreCorrupted, perrors.GetCode(err))
	assert.FileExists(t, path)
}

func TestSQLiteStore_CancelledContext(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Append(ctx, NewMessage{SenderName: "a", Body: "b", CreatedAt: time.Now()})

	assert.True(t, perrors.IsPersistence(err))
}
