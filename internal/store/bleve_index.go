package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	perrors "github.com/parley-chat/parley/internal/errors"
)

const (
	// MessageAnalyzerName tokenizes on Unicode word boundaries and lowercases.
	// No stop words and no stemming, so short phrases stay matchable.
	MessageAnalyzerName = "message_text"

	// DefaultMaxExpansions bounds how many dictionary terms a trailing phrase
	// prefix may expand to.
	DefaultMaxExpansions = 50

	// DefaultQuerySize applies when a QuerySpec leaves Size unset.
	DefaultQuerySize = 10
)

var errIndexClosed = errors.New("index is closed")

// BleveIndexConfig tunes the Bleve backend.
type BleveIndexConfig struct {
	MaxExpansions int
}

// DefaultBleveIndexConfig returns the default Bleve settings.
func DefaultBleveIndexConfig() BleveIndexConfig {
	return BleveIndexConfig{MaxExpansions: DefaultMaxExpansions}
}

// BleveIndex implements SearchIndex on Bleve v2.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config BleveIndexConfig
	closed bool
}

var _ SearchIndex = (*BleveIndex)(nil)

// bleveDocument is the shape handed to Bleve; field names come from the json tags.
type bleveDocument struct {
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at"`
}

// validateIndexIntegrity checks index_meta.json before Bleve opens the directory.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// NewBleveIndex opens or creates the index at path; an empty path keeps it in
// memory. A corrupt on-disk index is cleared and recreated empty: the message
// store remains the source for a rebuild.
func NewBleveIndex(path string, config BleveIndexConfig) (*BleveIndex, error) {
	if config.MaxExpansions <= 0 {
		config.MaxExpansions = DefaultMaxExpansions
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, perrors.IndexUnavailableError("build index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openOrCreate(path, indexMapping)
	}
	if err != nil {
		return nil, perrors.IndexUnavailableError("open search index", err).WithDetail("path", path)
	}

	return &BleveIndex{index: idx, path: path, config: config}, nil
}

func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	if verr := validateIndexIntegrity(path); verr != nil {
		slog.Warn("search_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("clear corrupt index: %w (cause: %v)", err, verr)
		}
		slog.Info("search_index_cleared", slog.String("path", path), slog.String("reason", "run parley reindex"))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, m)
	case isCorruptionError(err):
		slog.Warn("search_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if rerr := os.RemoveAll(path); rerr != nil {
			return nil, fmt.Errorf("clear corrupt index: %w (cause: %v)", rerr, err)
		}
		return bleve.New(path, m)
	default:
		return idx, err
	}
}

// createIndexMapping declares every field explicitly. created_at is stored
// for display only and never indexed.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(MessageAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add message analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = MessageAnalyzerName

	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = MessageAnalyzerName
		fm.Store = true
		fm.IncludeTermVectors = true
		fm.IncludeInAll = false
		return fm
	}

	createdAt := bleve.NewTextFieldMapping()
	createdAt.Index = false
	createdAt.Store = true
	createdAt.IncludeInAll = false
	createdAt.IncludeTermVectors = false
	createdAt.DocValues = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldSenderName, textField())
	doc.AddFieldMappingsAt(FieldBody, textField())
	doc.AddFieldMappingsAt(FieldCreatedAt, createdAt)

	indexMapping.DefaultMapping = doc
	return indexMapping, nil
}

func toBleveDocument(doc *IndexDocument) bleveDocument {
	return bleveDocument{
		SenderName: doc.SenderName,
		Body:       doc.Body,
		CreatedAt:  doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// withIndex runs fn against the open index, returning early when ctx ends.
// Bleve's write calls take no context, so fn runs on its own goroutine; an
// abandoned call still completes and Close waits for it.
func (b *BleveIndex) withIndex(ctx context.Context, fn func(bleve.Index) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.closed {
			done <- errIndexClosed
			return
		}
		done <- fn(b.index)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upsert implements SearchIndex.
func (b *BleveIndex) Upsert(ctx context.Context, doc *IndexDocument) error {
	if doc == nil {
		return perrors.InternalError("upsert of nil document", nil)
	}

	err := b.withIndex(ctx, func(idx bleve.Index) error {
		return idx.Index(DocID(doc.ID), toBleveDocument(doc))
	})
	if err != nil {
		return perrors.IndexUnavailableError("upsert document", err).
			WithDetail("message_id", DocID(doc.ID))
	}
	return nil
}

// UpsertMany writes docs in one batch. Used by rebuild and repair.
func (b *BleveIndex) UpsertMany(ctx context.Context, docs []*IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	err := b.withIndex(ctx, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, doc := range docs {
			if err := batch.Index(DocID(doc.ID), toBleveDocument(doc)); err != nil {
				return fmt.Errorf("batch document %d: %w", doc.ID, err)
			}
		}
		return idx.Batch(batch)
	})
	if err != nil {
		return perrors.IndexUnavailableError("upsert documents", err).
			WithDetail("count", strconv.Itoa(len(docs)))
	}
	return nil
}

// Delete implements SearchIndex.
func (b *BleveIndex) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	err := b.withIndex(ctx, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, id := range ids {
			batch.Delete(DocID(id))
		}
		return idx.Batch(batch)
	})
	if err != nil {
		return perrors.IndexUnavailableError("delete documents", err)
	}
	return nil
}

// Query implements SearchIndex.
func (b *BleveIndex) Query(ctx context.Context, spec QuerySpec) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, perrors.IndexUnavailableError("query", errIndexClosed)
	}

	q, err := b.buildQuery(spec)
	if err != nil {
		return nil, perrors.IndexUnavailableError("build query", err)
	}
	if q == nil {
		return []*Hit{}, nil
	}

	size := spec.Size
	if size <= 0 {
		size = DefaultQuerySize
	}

	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{FieldSenderName, FieldBody, FieldCreatedAt}
	if len(spec.HighlightFields) > 0 {
		req.Highlight = bleve.NewHighlightWithStyle(html.Name)
		for _, f := range spec.HighlightFields {
			req.Highlight.AddField(f)
		}
	}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, perrors.IndexUnavailableError("execute query", err)
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, dm := range res.Hits {
		hit, err := convertHit(dm)
		if err != nil {
			slog.Warn("search_hit_skipped", slog.String("doc_id", dm.ID), slog.String("error", err.Error()))
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// buildQuery returns nil when no clause can match anything.
func (b *BleveIndex) buildQuery(spec QuerySpec) (query.Query, error) {
	disjuncts := make([]query.Query, 0, len(spec.Clauses))
	for _, c := range spec.Clauses {
		q, err := b.clauseQuery(c)
		if err != nil {
			return nil, err
		}
		if q != nil {
			disjuncts = append(disjuncts, q)
		}
	}
	if len(disjuncts) == 0 {
		return nil, nil
	}

	min := spec.MinShouldMatch
	if min < 1 {
		min = 1
	}
	if min > len(disjuncts) {
		min = len(disjuncts)
	}

	dq := bleve.NewDisjunctionQuery(disjuncts...)
	dq.SetMin(float64(min))
	return dq, nil
}

func (b *BleveIndex) clauseQuery(c Clause) (query.Query, error) {
	if strings.TrimSpace(c.Text) == "" {
		return nil, nil
	}

	switch c.Kind {
	case ClauseWildcard:
		// raw text, not analyzed: the pattern is compared against indexed terms
		wq := bleve.NewWildcardQuery("*" + c.Text + "*")
		wq.SetField(c.Field)
		return wq, nil

	case ClausePhrasePrefix:
		return b.phrasePrefixQuery(c.Field, c.Text)

	case ClauseMatch:
		mq := bleve.NewMatchQuery(c.Text)
		mq.SetField(c.Field)
		mq.Analyzer = MessageAnalyzerName
		return mq, nil

	default:
		return nil, fmt.Errorf("unsupported clause kind %q", c.Kind)
	}
}

// phrasePrefixQuery matches the analyzed text as a phrase whose final token is
// a prefix. A single token becomes a prefix query; longer input becomes a
// multi-phrase query with the last position expanded from the term dictionary.
func (b *BleveIndex) phrasePrefixQuery(field, text string) (query.Query, error) {
	analyzer := b.index.Mapping().AnalyzerNamed(MessageAnalyzerName)
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer %q not registered", MessageAnalyzerName)
	}

	tokens := analyzer.Analyze([]byte(text))
	if len(tokens) == 0 {
		return nil, nil
	}

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = string(tok.Term)
	}
	last := terms[len(terms)-1]

	if len(terms) == 1 {
		pq := bleve.NewPrefixQuery(last)
		pq.SetField(field)
		return pq, nil
	}

	expansions, err := b.expandPrefix(field, last)
	if err != nil {
		return nil, err
	}
	if len(expansions) == 0 {
		return nil, nil
	}

	positions := make([][]string, len(terms))
	for i, t := range terms[:len(terms)-1] {
		positions[i] = []string{t}
	}
	positions[len(terms)-1] = expansions
	return query.NewMultiPhraseQuery(positions, field), nil
}

// expandPrefix lists up to MaxExpansions indexed terms of field starting with prefix.
func (b *BleveIndex) expandPrefix(field, prefix string) ([]string, error) {
	dict, err := b.index.FieldDictPrefix(field, []byte(prefix))
	if err != nil {
		return nil, fmt.Errorf("read term dictionary: %w", err)
	}
	defer func() { _ = dict.Close() }()

	var (
		terms []string
		entry *index.DictEntry
	)
	for len(terms) < b.config.MaxExpansions {
		entry, err = dict.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate term dictionary: %w", err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, entry.Term)
	}
	return terms, nil
}

// AllIDs implements SearchIndex.
func (b *BleveIndex) AllIDs(ctx context.Context) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, perrors.IndexUnavailableError("list ids", errIndexClosed)
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, perrors.IndexUnavailableError("count documents", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = []string{}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, perrors.IndexUnavailableError("list ids", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			slog.Warn("search_index_foreign_id", slog.String("doc_id", hit.ID))
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count implements SearchIndex.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, perrors.IndexUnavailableError("count documents", errIndexClosed)
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, perrors.IndexUnavailableError("count documents", err)
	}
	return int(n), nil
}

// Close closes the index. Pending writes finish first.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func convertHit(dm *search.DocumentMatch) (*Hit, error) {
	id, err := strconv.ParseInt(dm.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("non-numeric document id: %w", err)
	}

	return &Hit{
		Document: &IndexDocument{
			ID:         id,
			SenderName: getStringField(dm.Fields, FieldSenderName),
			Body:       getStringField(dm.Fields, FieldBody),
			CreatedAt:  getTimeField(dm.Fields, FieldCreatedAt),
		},
		Score:      dm.Score,
		Highlights: convertHighlights(dm.Fragments),
	}, nil
}

// highlightMark is the opening tag the html highlighter wraps matches in.
const highlightMark = "<mark>"

// convertHighlights keeps only fragments that mark a match. The highlighter
// emits a leading fragment for requested fields that did not match at all.
// Returns nil when nothing matched.
func convertHighlights(fragments search.FieldFragmentMap) map[string][]string {
	var out map[string][]string
	for field, frags := range fragments {
		marked := make([]string, 0, len(frags))
		for _, f := range frags {
			if strings.Contains(f, highlightMark) {
				marked = append(marked, f)
			}
		}
		if len(marked) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string][]string, len(fragments))
		}
		out[field] = marked
	}
	return out
}

func getStringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func getTimeField(fields map[string]interface{}, key string) time.Time {
	s := getStringField(fields, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
