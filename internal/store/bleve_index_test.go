package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("", DefaultBleveIndexConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seed(t *testing.T, idx SearchIndex, docs ...*IndexDocument) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, idx.Upsert(context.Background(), d))
	}
}

func doc(id int64, sender, body string) *IndexDocument {
	return &IndexDocument{
		ID:         id,
		SenderName: sender,
		Body:       body,
		CreatedAt:  time.Date(2026, 2, 3, 4, 5, 6, int(id), time.UTC),
	}
}

func single(kind ClauseKind, field, text string) QuerySpec {
	return QuerySpec{
		Clauses:         []Clause{{Kind: kind, Field: field, Text: text}},
		MinShouldMatch:  1,
		HighlightFields: []string{FieldBody, FieldSenderName},
		Size:            10,
	}
}

func hitIDs(hits []*Hit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Document.ID
	}
	return ids
}

func TestBleveIndex_MatchSenderWithHighlight(t *testing.T) {
	// Given: two documents from different senders
	idx := newTestIndex(t)
	seed(t, idx, doc(1, "alice", "hello world"), doc(2, "bob", "foo bar baz"))

	// When: matching on sender_name
	hits, err := idx.Query(context.Background(), single(ClauseMatch, FieldSenderName, "Alice"))

	// Then: only alice's message, with a marked-up sender fragment and stored fields
	require.NoError(t, err)
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, int64(1), h.Document.ID)
	assert.Equal(t, "hello world", h.Document.Body)
	assert.True(t, doc(1, "", "").CreatedAt.Equal(h.Document.CreatedAt))
	assert.Equal(t, []string{"<mark>alice</mark>"}, h.Highlights[FieldSenderName])
	assert.NotContains(t, h.Highlights, FieldBody)
}

func TestBleveIndex_WildcardSubstring(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, doc(1, "carol", "the foobar release"), doc(2, "dave", "nothing here"))

	hits, err := idx.Query(context.Background(), single(ClauseWildcard, FieldBody, "oba"))

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hitIDs(hits))
	assert.Contains(t, hits[0].Highlights[FieldBody][0], "<mark>foobar</mark>")
}

func TestBleveIndex_PhrasePrefix(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		doc(1, "bob", "foo bar baz"),
		doc(2, "eve", "bar foo"),
		doc(3, "zed", "foo qux"),
	)

	tests := []struct {
		name  string
		query string
		want  []int64
	}{
		{"single token prefix", "qu", []int64{3}},
		{"phrase with partial last word", "foo ba", []int64{1}},
		{"phrase in the middle", "bar b", []int64{1}},
		{"words out of order", "baz foo", []int64{}},
		{"prefix with no expansions", "foo zz", []int64{}},
		{"punctuation only", "?!", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Query(context.Background(), single(ClausePhrasePrefix, FieldBody, tt.query))
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, hitIDs(hits))
		})
	}
}

func TestBleveIndex_PhrasePrefixHonorsMaxExpansions(t *testing.T) {
	// Given: an index that may expand a prefix to a single term
	idx, err := NewBleveIndex("", BleveIndexConfig{MaxExpansions: 1})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	seed(t, idx, doc(1, "a", "go apple"), doc(2, "b", "go apricot"))

	// When: the trailing prefix matches two dictionary terms
	hits, err := idx.Query(context.Background(), single(ClausePhrasePrefix, FieldBody, "go ap"))

	// Then: only the first expansion in dictionary order is used
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hitIDs(hits))
}

func TestBleveIndex_DisjunctionMinShouldMatch(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, doc(1, "bar", "unrelated"), doc(2, "x", "foo bar baz"), doc(3, "y", "nope"))

	spec := QuerySpec{
		Clauses: []Clause{
			{Kind: ClauseWildcard, Field: FieldBody, Text: "bar"},
			{Kind: ClausePhrasePrefix, Field: FieldBody, Text: "bar"},
			{Kind: ClauseMatch, Field: FieldSenderName, Text: "bar"},
		},
		MinShouldMatch: 1,
		Size:           10,
	}

	hits, err := idx.Query(context.Background(), spec)

	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, hitIDs(hits))
}

func TestBleveIndex_SizeCapsResults(t *testing.T) {
	idx := newTestIndex(t)
	for i := int64(1); i <= 15; i++ {
		seed(t, idx, doc(i, "sender", fmt.Sprintf("common message %d", i)))
	}

	hits, err := idx.Query(context.Background(), single(ClauseMatch, FieldBody, "common"))

	require.NoError(t, err)
	assert.Len(t, hits, 10)
}

func TestBleveIndex_UpsertIsIdempotent(t *testing.T) {
	// Given: the same id written twice
	idx := newTestIndex(t)
	seed(t, idx, doc(7, "alice", "first version"))
	seed(t, idx, doc(7, "alice", "second version"))

	// Then: one document, carrying the latest content
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := idx.Query(context.Background(), single(ClauseMatch, FieldBody, "version"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second version", hits[0].Document.Body)
}

func TestBleveIndex_BlankClausesMatchNothing(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, doc(1, "a", "b"))

	hits, err := idx.Query(context.Background(), single(ClauseMatch, FieldBody, "   "))

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_AllIDsAndDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.UpsertMany(ctx, []*IndexDocument{doc(3, "a", "x"), doc(1, "b", "y"), doc(2, "c", "z")}))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	require.NoError(t, idx.Delete(ctx, []int64{2}))
	ids, err = idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestBleveIndex_ClosedIndexIsUnavailable(t *testing.T) {
	idx, err := NewBleveIndex("", DefaultBleveIndexConfig())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	err = idx.Upsert(context.Background(), doc(1, "a", "b"))
	assert.True(t, perrors.IsIndexUnavailable(err))

	_, err = idx.Query(context.Background(), single(ClauseMatch, FieldBody, "b"))
	assert.True(t, perrors.IsIndexUnavailable(err))
}

func TestBleveIndex_ExpiredContextIsUnavailable(t *testing.T) {
	idx := newTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := idx.Upsert(ctx, doc(1, "a", "b"))

	assert.True(t, perrors.IsIndexUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBleveIndex_ReopensFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.bleve")
	idx, err := NewBleveIndex(path, DefaultBleveIndexConfig())
	require.NoError(t, err)
	seed(t, idx, doc(1, "alice", "persisted"))
	require.NoError(t, idx.Close())

	idx, err = NewBleveIndex(path, DefaultBleveIndexConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBleveIndex_CorruptMetaIsRecreated(t *testing.T) {
	// Given: an index directory with a truncated meta file
	path := filepath.Join(t.TempDir(), "messages.bleve")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{"), 0o644))

	// When: opening
	idx, err := NewBleveIndex(path, DefaultBleveIndexConfig())

	// Then: a fresh empty index is usable
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
