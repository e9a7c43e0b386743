package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageStoreWithBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		want    any
		detect  StoreBackend
	}{
		{"sqlite", &SQLiteStore{}, StoreBackendSQLite},
		{"badger", &BadgerStore{}, StoreBackendBadger},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			sub := filepath.Join(dir, tt.backend)
			s, err := NewMessageStoreWithBackend(MessagesBasePath(sub), tt.backend)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			assert.IsType(t, tt.want, s)
			assert.Equal(t, tt.detect, DetectStoreBackend(sub))
		})
	}
}

func TestNewMessageStoreWithBackend_Unknown(t *testing.T) {
	_, err := NewMessageStoreWithBackend("", "postgres")

	assert.ErrorContains(t, err, "unknown store backend")
}

func TestDetectStoreBackend_Empty(t *testing.T) {
	assert.Equal(t, StoreBackend(""), DetectStoreBackend(t.TempDir()))
}
