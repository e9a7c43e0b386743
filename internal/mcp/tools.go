package mcp

import (
	"time"

	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
)

// PostMessageInput defines the input schema for the post_message tool.
type PostMessageInput struct {
	SenderName string `json:"sender_name" jsonschema:"display name of the sender"`
	Body       string `json:"body" jsonschema:"message text"`
}

// MessageOutput is a stored message as returned to MCP clients.
type MessageOutput struct {
	ID         int64  `json:"id" jsonschema:"message id"`
	SenderName string `json:"sender_name" jsonschema:"display name of the sender"`
	Body       string `json:"body" jsonschema:"message text"`
	CreatedAt  string `json:"created_at" jsonschema:"RFC 3339 creation time (UTC)"`
}

// ListMessagesInput defines the input schema for the list_messages tool (no parameters).
type ListMessagesInput struct{}

// ListMessagesOutput defines the output schema for the list_messages tool.
type ListMessagesOutput struct {
	Messages []MessageOutput `json:"messages" jsonschema:"all messages, newest first"`
	Count    int             `json:"count" jsonschema:"number of messages"`
}

// SearchMessagesInput defines the input schema for the search_messages tool.
type SearchMessagesInput struct {
	Query string `json:"query" jsonschema:"free text matched against message body and sender name"`
}

// SearchMessagesOutput defines the output schema for the search_messages tool.
type SearchMessagesOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"at most 10 matches in relevance order"`
}

// SearchResultOutput is one matching message with its highlighted fragments.
type SearchResultOutput struct {
	ID         int64            `json:"id" jsonschema:"message id"`
	SenderName string           `json:"sender_name" jsonschema:"display name of the sender"`
	Body       string           `json:"body" jsonschema:"message text"`
	CreatedAt  string           `json:"created_at" jsonschema:"RFC 3339 creation time (UTC)"`
	Highlight  *HighlightOutput `json:"highlight,omitempty" jsonschema:"marked-up fragments for the fields that matched"`
}

// HighlightOutput holds <mark>-wrapped fragments per field.
type HighlightOutput struct {
	SenderName []string `json:"sender_name,omitempty"`
	Body       []string `json:"body,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Messages      int              `json:"messages"`
	Indexed       int              `json:"indexed"`
	Consistent    bool             `json:"consistent"`
	RetryQueue    int              `json:"retry_queue_depth"`
	States        map[string]int   `json:"states,omitempty"`
	SearchBreaker string           `json:"search_breaker,omitempty"`
	Reconcile     *ReconcileOutput `json:"reconcile,omitempty"` // Present once a reconcile has started
}

// ReconcileOutput reports background reconciliation progress.
type ReconcileOutput struct {
	Status         string  `json:"status"`                  // "running", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`         // "checking", "repairing", "rebuilding"
	Total          int     `json:"total"`                   // Items in the current stage
	Done           int     `json:"done"`                    // Items processed so far
	ProgressPct    float64 `json:"progress_pct"`            // Progress percentage (0-100)
	ElapsedSeconds int     `json:"elapsed_seconds"`         // Time since reconcile started
	ErrorMessage   string  `json:"error_message,omitempty"` // Error message if status is "error"
}

// ToMessageOutput converts a stored message to its wire form.
func ToMessageOutput(m *store.Message) MessageOutput {
	return MessageOutput{
		ID:         m.ID,
		SenderName: m.SenderName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToSearchResultOutput converts a search result to its wire form.
func ToSearchResultOutput(r *search.SearchResult) SearchResultOutput {
	out := SearchResultOutput{
		ID:         r.ID,
		SenderName: r.SenderName,
		Body:       r.Body,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Highlight != nil {
		out.Highlight = &HighlightOutput{
			SenderName: r.Highlight.SenderName,
			Body:       r.Highlight.Body,
		}
	}
	return out
}
