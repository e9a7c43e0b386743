package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
)

// Defaults applied when ServiceConfig leaves them zero.
const (
	DefaultTimeout        = 3 * time.Second
	DefaultMaxQueryLength = 256
)

// ServiceConfig contains configuration for the QueryService.
type ServiceConfig struct {
	// Index is the search index queried.
	Index store.SearchIndex

	// Timeout bounds each index query.
	Timeout time.Duration

	// MaxQueryLength rejects longer queries (in characters) with ERR_405.
	MaxQueryLength int

	// Breaker guards the index. Defaults to a breaker named "search".
	Breaker *perrors.CircuitBreaker

	// Metrics records each request when set.
	Metrics *telemetry.QueryMetrics
}

// QueryService runs message searches against the index.
type QueryService struct {
	index          store.SearchIndex
	timeout        time.Duration
	maxQueryLength int
	breaker        *perrors.CircuitBreaker
	metrics        *telemetry.QueryMetrics
}

// NewQueryService creates a query service.
func NewQueryService(cfg ServiceConfig) *QueryService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if cfg.Breaker == nil {
		cfg.Breaker = perrors.NewCircuitBreaker("search")
	}
	return &QueryService{
		index:          cfg.Index,
		timeout:        cfg.Timeout,
		maxQueryLength: cfg.MaxQueryLength,
		breaker:        cfg.Breaker,
		metrics:        cfg.Metrics,
	}
}

// BuildQuerySpec returns the query every search runs: a substring wildcard
// and a phrase prefix on the body, and a match on the sender name, any one
// of which suffices.
func BuildQuerySpec(text string) store.QuerySpec {
	return store.QuerySpec{
		Clauses: []store.Clause{
			{Kind: store.ClauseWildcard, Field: store.FieldBody, Text: text},
			{Kind: store.ClausePhrasePrefix, Field: store.FieldBody, Text: text},
			{Kind: store.ClauseMatch, Field: store.FieldSenderName, Text: text},
		},
		MinShouldMatch:  1,
		HighlightFields: []string{store.FieldBody, store.FieldSenderName},
		Size:            MaxResults,
	}
}

// Search returns up to MaxResults messages matching text, best first.
func (s *QueryService) Search(ctx context.Context, text string) ([]*SearchResult, error) {
	start := time.Now()
	q := strings.TrimSpace(text)

	if err := s.validate(q); err != nil {
		s.record(q, telemetry.OutcomeInvalid, 0, time.Since(start))
		return nil, err
	}

	hits, err := perrors.CircuitExecute(s.breaker, func() ([]*store.Hit, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.index.Query(ctx, BuildQuerySpec(q))
	})
	if err != nil {
		s.record(q, telemetry.OutcomeUnavailable, 0, time.Since(start))
		slog.Warn("search_failed",
			append([]any{slog.String("breaker", s.breaker.State().String())}, perrors.LogAttrs(err)...)...)
		return nil, perrors.SearchUnavailableError(err)
	}

	if len(hits) > MaxResults {
		hits = hits[:MaxResults]
	}
	results := lo.Map(hits, func(h *store.Hit, _ int) *SearchResult {
		return toResult(h)
	})

	elapsed := time.Since(start)
	s.record(q, telemetry.OutcomeOK, len(results), elapsed)
	slog.Debug("search_complete",
		slog.Int("query_len", len(q)),
		slog.Int("results", len(results)),
		slog.Duration("duration", elapsed))
	return results, nil
}

func (s *QueryService) validate(q string) error {
	if q == "" {
		return perrors.New(perrors.ErrCodeQueryEmpty, "query is required", nil).
			WithSuggestion("Provide at least one non-whitespace character")
	}
	if n := utf8.RuneCountInString(q); n > s.maxQueryLength {
		return perrors.New(perrors.ErrCodeQueryTooLong,
			fmt.Sprintf("query is %d characters, limit is %d", n, s.maxQueryLength), nil)
	}
	return nil
}

// BreakerState reports the state of the index circuit breaker.
func (s *QueryService) BreakerState() perrors.State {
	return s.breaker.State()
}

func (s *QueryService) record(q string, outcome telemetry.Outcome, n int, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Record(telemetry.QueryEvent{Query: q, Outcome: outcome, ResultCount: n, Latency: latency})
}

func toResult(h *store.Hit) *SearchResult {
	r := &SearchResult{
		ID:         h.Document.ID,
		SenderName: h.Document.SenderName,
		Body:       h.Document.Body,
		CreatedAt:  h.Document.CreatedAt,
		Score:      h.Score,
	}

	sender := h.Highlights[store.FieldSenderName]
	body := h.Highlights[store.FieldBody]
	if len(sender) > 0 || len(body) > 0 {
		r.Highlight = &Highlight{SenderName: sender, Body: body}
	}
	return r
}
