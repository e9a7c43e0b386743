package index

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStateCapacity is how many recent messages have their index state tracked.
const DefaultStateCapacity = 4096

// IndexState is where a message is in the store-then-index pipeline.
type IndexState int

const (
	// StatePending means ingest has not yet stored the message.
	StatePending IndexState = iota
	// StateStored means the message is durable and the index write is in progress.
	StateStored
	// StateIndexed means the message is durable and searchable.
	StateIndexed
	// StateStoredUnindexed means the index write failed and a retry is pending.
	StateStoredUnindexed
	// StateIndexFailedPermanently means retries were exhausted; reconciliation repairs it.
	StateIndexFailedPermanently
)

// String returns the snake_case name used in logs and status output.
func (s IndexState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStored:
		return "stored"
	case StateIndexed:
		return "indexed"
	case StateStoredUnindexed:
		return "stored_unindexed"
	case StateIndexFailedPermanently:
		return "index_failed_permanently"
	default:
		return "unknown"
	}
}

// StateTracker remembers the index state of recently ingested messages.
// Older entries are evicted; the canonical answer always comes from
// comparing store and index.
type StateTracker struct {
	cache *lru.Cache[int64, IndexState]
}

// NewStateTracker creates a tracker holding up to capacity messages.
func NewStateTracker(capacity int) *StateTracker {
	if capacity <= 0 {
		capacity = DefaultStateCapacity
	}
	cache, _ := lru.New[int64, IndexState](capacity)
	return &StateTracker{cache: cache}
}

// Set records the state of id.
func (t *StateTracker) Set(id int64, state IndexState) {
	t.cache.Add(id, state)
}

// Get returns the state of id, if still tracked.
func (t *StateTracker) Get(id int64) (IndexState, bool) {
	return t.cache.Peek(id)
}

// Counts tallies tracked messages by state.
func (t *StateTracker) Counts() map[IndexState]int {
	counts := make(map[IndexState]int)
	for _, id := range t.cache.Keys() {
		if s, ok := t.cache.Peek(id); ok {
			counts[s]++
		}
	}
	return counts
}
