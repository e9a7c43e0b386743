// Package search answers free-text queries over posted messages.
// Relevance scoring is delegated to the search index; this package fixes
// the query shape and maps hits to results.
package search

import (
	"strings"
	"time"
)

// MaxResults caps every search response.
const MaxResults = 10

// Highlight holds marked-up fragments for the fields that matched.
type Highlight struct {
	SenderName []string `json:"sender_name,omitempty"`
	Body       []string `json:"body,omitempty"`
}

// SearchResult is one message matching a query.
type SearchResult struct {
	ID         int64      `json:"id"`
	SenderName string     `json:"sender_name"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	Score      float64    `json:"-"`
	Highlight  *Highlight `json:"highlight,omitempty"`
}

// DisplaySenderName returns the highlighted sender name when available,
// otherwise the raw value.
func (r *SearchResult) DisplaySenderName() string {
	if r.Highlight != nil && len(r.Highlight.SenderName) > 0 {
		return strings.Join(r.Highlight.SenderName, " … ")
	}
	return r.SenderName
}

// DisplayBody returns the highlighted body fragments when available,
// otherwise the raw body.
func (r *SearchResult) DisplayBody() string {
	if r.Highlight != nil && len(r.Highlight.Body) > 0 {
		return strings.Join(r.Highlight.Body, " … ")
	}
	return r.Body
}
