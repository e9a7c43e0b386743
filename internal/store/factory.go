package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoreBackend names a MessageStore implementation.
type StoreBackend string

const (
	// StoreBackendSQLite keeps messages in a single SQLite file (default).
	StoreBackendSQLite StoreBackend = "sqlite"

	// StoreBackendBadger keeps messages in a BadgerDB directory.
	StoreBackendBadger StoreBackend = "badger"
)

const (
	messagesBaseName = "messages"
	indexDirName     = "messages.bleve"
)

// NewMessageStoreWithBackend opens the message store for backend under
// basePath (without extension): basePath.db for SQLite, basePath.badger/ for
// Badger. An empty basePath opens an in-memory store.
func NewMessageStoreWithBackend(basePath string, backend string) (MessageStore, error) {
	switch StoreBackend(backend) {
	case StoreBackendSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteStore(path)

	case StoreBackendBadger:
		var path string
		if basePath != "" {
			path = basePath + ".badger"
		}
		return NewBadgerStore(path)

	default:
		return nil, fmt.Errorf("unknown store backend: %s (valid options: sqlite, badger)", backend)
	}
}

// MessagesBasePath returns the extension-less message store path in dataDir.
func MessagesBasePath(dataDir string) string {
	return filepath.Join(dataDir, messagesBaseName)
}

// IndexPath returns the search index directory in dataDir.
func IndexPath(dataDir string) string {
	return filepath.Join(dataDir, indexDirName)
}

// DetectStoreBackend reports which backend already holds data in dataDir,
// or "" when neither does.
func DetectStoreBackend(dataDir string) StoreBackend {
	base := MessagesBasePath(dataDir)
	if info, err := os.Stat(base + ".db"); err == nil && !info.IsDir() {
		return StoreBackendSQLite
	}
	if info, err := os.Stat(base + ".badger"); err == nil && info.IsDir() {
		return StoreBackendBadger
	}
	return ""
}
