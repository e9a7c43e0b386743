package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParleyError_Unwrap_PreservesCause(t *testing.T) {
	// Given: a backend error
	cause := stderrors.New("disk I/O error")

	// When: wrapping it as a persistence error
	err := PersistenceError("append message", cause)

	// Then: the cause stays reachable
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "[ERR_207_STORE_FAILED] append message", err.Error())
}

func TestParleyError_Is_MatchesByCode(t *testing.T) {
	a := ValidationError("sender_name is required", nil)
	b := ValidationError("body is required", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, PersistenceError("x", nil)))
}

func TestTaxonomy_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  Category
		retryable bool
		check     func(error) bool
	}{
		{"validation", ValidationError("bad", nil), CategoryValidation, false, IsValidation},
		{"empty query", New(ErrCodeQueryEmpty, "query is empty", nil), CategoryValidation, false, IsValidation},
		{"persistence", PersistenceError("bad", nil), CategoryIO, false, IsPersistence},
		{"index", IndexUnavailableError("bad", nil), CategoryNetwork, true, IsIndexUnavailable},
		{"search", SearchUnavailableError(nil), CategoryNetwork, true, IsSearchUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, GetCategory(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestPredicates_SeeThroughFmtWrapping(t *testing.T) {
	// Given: a taxonomy error wrapped with %w
	err := fmt.Errorf("ingest: %w", PersistenceError("append", nil))

	// Then: predicates still classify it
	assert.True(t, IsPersistence(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, ErrCodeStoreFailed, GetCode(err))
}

func TestPredicates_PlainError(t *testing.T) {
	err := stderrors.New("boom")

	assert.Empty(t, GetCode(err))
	assert.False(t, IsRetryable(err))
	assert.False(t, IsSearchUnavailable(err))
	assert.False(t, IsRetryable(nil))
}

func TestSearchUnavailableError_HidesBackendDetail(t *testing.T) {
	// Given: a backend failure with internal detail
	err := SearchUnavailableError(stderrors.New("bleve: segment 0x1f missing"))

	// When: rendering for a client
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: only the generic message is exposed
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "search temporarily unavailable", out["message"])
	assert.NotContains(t, string(data), "segment")
}

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeDataDirLocked, "data directory is in use", nil).
		WithSuggestion("stop the other parley process")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: data directory is in use")
	assert.Contains(t, out, "Hint: stop the other parley process")
	assert.Contains(t, out, "Code: ERR_208_DATA_DIR_LOCKED")
	assert.True(t, IsFatal(err))
}

func TestLogAttrs_IncludesCauseAndDetails(t *testing.T) {
	err := IndexUnavailableError("upsert", stderrors.New("closed")).WithDetail("message_id", "7")

	attrs := LogAttrs(err)

	assert.Len(t, attrs, 6)
	assert.Nil(t, LogAttrs(nil))
}
