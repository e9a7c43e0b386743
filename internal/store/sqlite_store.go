package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	perrors "github.com/parley-chat/parley/internal/errors"
)

// SQLiteStore implements MessageStore on SQLite.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MessageStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_name TEXT    NOT NULL,
	body        TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC, id DESC);
`

// checkSQLiteIntegrity runs a read-only integrity check on an existing file.
// Unlike the derived index, a damaged canonical store is never auto-cleared.
func checkSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (or creates) the message database at path.
// An empty path creates an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, perrors.PersistenceError("create data directory", err)
		}
		if err := checkSQLiteIntegrity(path); err != nil {
			return nil, perrors.New(perrors.ErrCodeStoreCorrupted, "message store failed integrity check", err).
				WithDetail("path", path).
				WithSuggestion("restore " + path + " from a backup")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, perrors.PersistenceError("open message store", err)
	}

	// One connection: serialises writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, perrors.PersistenceError("configure message store", fmt.Errorf("%s: %w", p, err))
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, perrors.PersistenceError("initialise message schema", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Append implements MessageStore.
func (s *SQLiteStore) Append(ctx context.Context, msg NewMessage) (*Message, error) {
	if err := checkNewMessage(msg); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	createdAt := msg.CreatedAt.UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender_name, body, created_at) VALUES (?, ?, ?)`,
		msg.SenderName, msg.Body, createdAt.UnixNano())
	if err != nil {
		return nil, perrors.PersistenceError("append message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, perrors.PersistenceError("read assigned message id", err)
	}

	return &Message{
		ID:         id,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		CreatedAt:  createdAt,
	}, nil
}

// List implements MessageStore.
func (s *SQLiteStore) List(ctx context.Context) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_name, body, created_at FROM messages ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, perrors.PersistenceError("list messages", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, perrors.PersistenceError("scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.PersistenceError("list messages", err)
	}
	return messages, nil
}

// Get implements MessageStore.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, sender_name, body, created_at FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, perrors.PersistenceError("get message", err)
	}
	return m, nil
}

// AllIDs implements MessageStore.
func (s *SQLiteStore) AllIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM messages ORDER BY id`)
	if err != nil {
		return nil, perrors.PersistenceError("list message ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, perrors.PersistenceError("scan message id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.PersistenceError("list message ids", err)
	}
	return ids, nil
}

// Count implements MessageStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed()
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, perrors.PersistenceError("count messages", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var (
		m       Message
		created int64
	)
	if err := r.Scan(&m.ID, &m.SenderName, &m.Body, &created); err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(0, created).UTC()
	return &m, nil
}

// checkNewMessage is the store's own guard; callers validate earlier.
func checkNewMessage(msg NewMessage) error {
	switch {
	case strings.TrimSpace(msg.SenderName) == "":
		return perrors.ValidationError("sender_name is required", nil).WithDetail("field", FieldSenderName)
	case strings.TrimSpace(msg.Body) == "":
		return perrors.ValidationError("body is required", nil).WithDetail("field", FieldBody)
	case msg.CreatedAt.IsZero():
		return perrors.ValidationError("created_at is required", nil).WithDetail("field", FieldCreatedAt)
	}
	return nil
}

func errStoreClosed() error {
	return perrors.PersistenceError("message store is closed", nil)
}
