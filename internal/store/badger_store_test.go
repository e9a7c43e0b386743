package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore_PersistsAndContinuesSequence(t *testing.T) {
	// Given: two messages in an on-disk store
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewBadgerStore(dir)
	require.NoError(t, err)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.Append(ctx, NewMessage{SenderName: "alice", Body: "one", CreatedAt: at})
	require.NoError(t, err)
	_, err = s.Append(ctx, NewMessage{SenderName: "alice", Body: "two", CreatedAt: at.Add(time.Second)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening and appending again
	s, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	third, err := s.Append(ctx, NewMessage{SenderName: "bob", Body: "three", CreatedAt: at.Add(2 * time.Second)})
	require.NoError(t, err)

	// Then: ids never repeat and order survives
	assert.Greater(t, third.ID, first.ID+1)
	msgs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "three", msgs[0].Body)
	assert.Equal(t, "one", msgs[2].Body)
}

func TestBadgerMsgKey_SortsChronologically(t *testing.T) {
	early := badgerMsgKey(9, 100)
	late := badgerMsgKey(10, 1)

	assert.Less(t, string(early), string(late))
}
