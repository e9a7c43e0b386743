package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	perrors "github.com/parley-chat/parley/internal/errors"
)

// Key layout:
//
//	msg:{created_at 19-digit nanos}:{id 19-digit} -> JSON record
//	id:{id 19-digit}                              -> msg key
//
// Zero padding makes lexicographic order equal chronological order, so a
// reverse prefix scan yields newest first.
const (
	badgerMsgPrefix = "msg:"
	badgerIDPrefix  = "id:"
	badgerSeqKey    = "seq:messages"
	badgerSeqLease  = 128
)

// BadgerStore implements MessageStore on BadgerDB.
type BadgerStore struct {
	mu     sync.RWMutex
	db     *badger.DB
	seq    *badger.Sequence
	closed bool
}

var _ MessageStore = (*BadgerStore)(nil)

type badgerRecord struct {
	ID         int64  `json:"id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"created_at"`
}

// NewBadgerStore opens (or creates) a Badger directory at path. An empty path
// keeps everything in memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, perrors.PersistenceError("create data directory", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLoggingLevel(badger.ERROR).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, perrors.PersistenceError("open message store", err).WithDetail("path", path)
	}

	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqLease)
	if err != nil {
		_ = db.Close()
		return nil, perrors.PersistenceError("open id sequence", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func badgerMsgKey(createdAt int64, id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d", badgerMsgPrefix, createdAt, id))
}

func badgerIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d", badgerIDPrefix, id))
}

// Append implements MessageStore.
func (s *BadgerStore) Append(ctx context.Context, msg NewMessage) (*Message, error) {
	if err := checkNewMessage(msg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, perrors.PersistenceError("append message", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	n, err := s.seq.Next()
	if err != nil {
		return nil, perrors.PersistenceError("allocate message id", err)
	}
	// sequences start at zero; ids start at one like the SQLite backend
	id := int64(n) + 1

	createdAt := msg.CreatedAt.UTC()
	rec := badgerRecord{
		ID:         id,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		CreatedAt:  createdAt.UnixNano(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, perrors.PersistenceError("encode message", err)
	}

	key := badgerMsgKey(rec.CreatedAt, id)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(badgerIDKey(id), key)
	})
	if err != nil {
		return nil, perrors.PersistenceError("append message", err)
	}

	return &Message{ID: id, SenderName: msg.SenderName, Body: msg.Body, CreatedAt: createdAt}, nil
}

// List implements MessageStore.
func (s *BadgerStore) List(ctx context.Context) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	messages := make([]*Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerMsgPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// one past the largest possible key under the prefix
		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := decodeBadgerItem(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, perrors.PersistenceError("list messages", err)
	}
	return messages, nil
}

// Get implements MessageStore.
func (s *BadgerStore) Get(ctx context.Context, id int64) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	var msg *Message
	err := s.db.View(func(txn *badger.Txn) error {
		ref, err := txn.Get(badgerIDKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		key, err := ref.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		msg, err = decodeBadgerItem(item)
		return err
	})
	if err != nil {
		return nil, perrors.PersistenceError("get message", err)
	}
	return msg, nil
}

// AllIDs implements MessageStore. Only keys are read.
func (s *BadgerStore) AllIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerIDPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var id int64
			if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%d", &id); err != nil {
				return fmt.Errorf("malformed id key %q: %w", it.Item().Key(), err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, perrors.PersistenceError("list message ids", err)
	}
	return ids, nil
}

// Count implements MessageStore.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	ids, err := s.AllIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close releases the unused part of the id lease and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.seq.Release()
	return s.db.Close()
}

func decodeBadgerItem(item *badger.Item) (*Message, error) {
	var rec badgerRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", item.Key(), err)
	}
	return &Message{
		ID:         rec.ID,
		SenderName: rec.SenderName,
		Body:       rec.Body,
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}
