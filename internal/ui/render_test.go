package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPrinter_Messages(t *testing.T) {
	// Given: a printer writing to a buffer (never colored)
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	// When: printing two messages, one multi-line
	p.Messages([]*store.Message{
		{ID: 2, SenderName: "bob", Body: "second\nline", CreatedAt: at},
		{ID: 1, SenderName: "alice", Body: "first", CreatedAt: at},
	})

	// Then: one row per message, in order
	out := buf.String()
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, "bob: second line")
	assert.Contains(t, out, "alice: first")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("bob")), bytes.Index(buf.Bytes(), []byte("alice")))
}

func TestPrinter_MessagesEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).Messages(nil)

	assert.Equal(t, "No messages yet.\n", buf.String())
}

func TestPrinter_ResultsUseHighlights(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Results("bar", []*search.SearchResult{
		{
			ID: 7, SenderName: "bob", Body: "foo bar baz", CreatedAt: at,
			Highlight: &search.Highlight{Body: []string{"foo <mark>bar</mark> baz"}},
		},
		{ID: 3, SenderName: "barbara", Body: "hello", CreatedAt: at},
	})

	out := buf.String()
	assert.Contains(t, out, `2 result(s) for "bar"`)
	assert.Contains(t, out, "bob: foo [bar] baz")
	assert.Contains(t, out, "barbara: hello")
}

func TestPrinter_ResultsDecodeHighlightsOnly(t *testing.T) {
	// Given: an escaped highlight and a raw body that happens to contain an entity
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	// When: printing the results
	p.Results("it", []*search.SearchResult{
		{
			ID: 1, SenderName: "dan", Body: "it's done", CreatedAt: at,
			Highlight: &search.Highlight{Body: []string{"<mark>it&#39;s</mark> done"}},
		},
		{
			ID: 2, SenderName: "itzel", Body: "write &amp; literally", CreatedAt: at,
			Highlight: &search.Highlight{SenderName: []string{"<mark>itzel</mark>"}},
		},
	})

	// Then: the fragment is decoded and the raw body is printed as stored
	out := buf.String()
	assert.Contains(t, out, "dan: [it's] done")
	assert.Contains(t, out, "[itzel]: write &amp; literally")
}

func TestPrinter_ResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).Results("zzz", nil)

	assert.Equal(t, "No messages found for \"zzz\"\n", buf.String())
}
