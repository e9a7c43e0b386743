package store

import (
	"context"
	"strconv"
	"time"
)

// Field names shared by the search index mapping and query construction.
const (
	FieldSenderName = "sender_name"
	FieldBody       = "body"
	FieldCreatedAt  = "created_at"
)

// Message is the canonical record of a posted message.
type Message struct {
	ID         int64     `json:"id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage is a validated, timestamped request to append a message.
type NewMessage struct {
	SenderName string
	Body       string
	CreatedAt  time.Time
}

// MessageStore is the durable source of truth for messages. It is append-only.
type MessageStore interface {
	// Append persists msg and returns it with a newly assigned id.
	Append(ctx context.Context, msg NewMessage) (*Message, error)

	// List returns every message, newest first (created_at, then id, descending).
	List(ctx context.Context) ([]*Message, error)

	// Get returns the message with the given id, or nil when absent.
	Get(ctx context.Context, id int64) (*Message, error)

	// AllIDs returns every stored id. Used for consistency checks.
	AllIDs(ctx context.Context) ([]int64, error)

	Count(ctx context.Context) (int, error)

	Close() error
}

// IndexDocument is the searchable projection of a Message.
type IndexDocument struct {
	ID         int64
	SenderName string
	Body       string
	CreatedAt  time.Time
}

// DocumentFromMessage copies a persisted message into its index projection.
func DocumentFromMessage(m *Message) *IndexDocument {
	return &IndexDocument{
		ID:         m.ID,
		SenderName: m.SenderName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// DocID is the string key a document is stored under in the index.
func DocID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ClauseKind selects a matching strategy for one query clause.
type ClauseKind string

const (
	// ClauseWildcard matches indexed terms containing Text as a substring.
	ClauseWildcard ClauseKind = "wildcard"
	// ClausePhrasePrefix matches Text as a phrase whose last word may be incomplete.
	ClausePhrasePrefix ClauseKind = "phrase_prefix"
	// ClauseMatch matches any analyzed token of Text.
	ClauseMatch ClauseKind = "match"
)

// Clause is one disjunct of a QuerySpec.
type Clause struct {
	Kind  ClauseKind
	Field string
	Text  string
}

// QuerySpec is a backend-neutral relevance query: a disjunction of clauses
// of which at least MinShouldMatch must match.
type QuerySpec struct {
	Clauses         []Clause
	MinShouldMatch  int
	HighlightFields []string
	Size            int
}

// Hit is one ranked query result.
type Hit struct {
	Document *IndexDocument
	Score    float64
	// Highlights holds marked-up fragments keyed by field, only for fields
	// that matched.
	Highlights map[string][]string
}

// SearchIndex is the derived, rebuildable text index over messages.
type SearchIndex interface {
	// Upsert writes doc under its id, replacing any previous version.
	Upsert(ctx context.Context, doc *IndexDocument) error

	// UpsertMany writes several documents at once. Used by rebuild and repair.
	UpsertMany(ctx context.Context, docs []*IndexDocument) error

	// Query executes spec and returns at most spec.Size hits by descending score.
	Query(ctx context.Context, spec QuerySpec) ([]*Hit, error)

	// Delete removes documents. Used only to drop orphans.
	Delete(ctx context.Context, ids []int64) error

	AllIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
