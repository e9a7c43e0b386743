package index

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/async"
	"github.com/parley-chat/parley/internal/store"
)

// appendMessages stores n messages and returns them in insertion order.
func appendMessages(t *testing.T, s store.MessageStore, n int) []*store.Message {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*store.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := s.Append(context.Background(), store.NewMessage{
			SenderName: "sender",
			Body:       fmt.Sprintf("message %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func indexMessages(t *testing.T, idx store.SearchIndex, msgs ...*store.Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, idx.Upsert(context.Background(), store.DocumentFromMessage(m)))
	}
}

func TestConsistencyChecker_Check(t *testing.T) {
	// Given: three stored messages, two indexed, plus an orphan document
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	msgs := appendMessages(t, s, 3)
	indexMessages(t, idx, msgs[0], msgs[2])
	require.NoError(t, idx.Upsert(context.Background(), &store.IndexDocument{ID: 99, SenderName: "ghost", Body: "gone"}))
	checker := NewConsistencyChecker(s, idx)

	// When: checking
	result, err := checker.Check(context.Background())

	// Then: the missing and orphaned ids are reported
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, []int64{msgs[1].ID}, result.Missing)
	assert.Equal(t, []int64{99}, result.Orphans)
	assert.False(t, result.Consistent())
}

func TestConsistencyChecker_RepairConverges(t *testing.T) {
	// Given: an index missing most of the store and holding an orphan
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	msgs := appendMessages(t, s, 5)
	indexMessages(t, idx, msgs[0])
	require.NoError(t, idx.Upsert(context.Background(), &store.IndexDocument{ID: 1000, SenderName: "x", Body: "y"}))
	checker := NewConsistencyChecker(s, idx)
	ctx := context.Background()

	result, err := checker.Check(ctx)
	require.NoError(t, err)

	// When: repairing
	repaired, err := checker.Repair(ctx, result)

	// Then: missing documents were re-indexed, the orphan deleted and a recheck is clean
	require.NoError(t, err)
	assert.Equal(t, 4, repaired.Reindexed)
	assert.Equal(t, 1, repaired.Deleted)

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
	ok, err := checker.QuickCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyChecker_RepairStopsOnIndexFailure(t *testing.T) {
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	appendMessages(t, s, 2)
	checker := NewConsistencyChecker(s, idx)
	ctx := context.Background()

	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.NoError(t, idx.SearchIndex.Close())

	_, err = checker.Repair(ctx, result)

	assert.Error(t, err)
}

func TestConsistencyChecker_Rebuild(t *testing.T) {
	// Given: an empty index with a stale orphan
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	appendMessages(t, s, 300)
	require.NoError(t, idx.Upsert(context.Background(), &store.IndexDocument{ID: 5000, SenderName: "x", Body: "y"}))
	checker := NewConsistencyChecker(s, idx)

	// When: rebuilding
	result, err := checker.Rebuild(context.Background())

	// Then: every stored message is indexed and nothing else
	require.NoError(t, err)
	assert.Equal(t, 300, result.Reindexed)
	assert.Equal(t, 1, result.Deleted)
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, n)
}

func TestConsistencyChecker_QuickCheckMismatch(t *testing.T) {
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	appendMessages(t, s, 2)

	ok, err := NewConsistencyChecker(s, idx).QuickCheck(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsistencyChecker_ReconcileFuncReportsProgress(t *testing.T) {
	tests := []struct {
		name      string
		full      bool
		wantStage async.ReconcileStage
	}{
		{"check and repair", false, async.StageRepairing},
		{"full rebuild", true, async.StageRebuilding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: four stored messages, none indexed
			s := newMemoryStore(t)
			idx := newSwitchableIndex(t)
			appendMessages(t, s, 4)
			checker := NewConsistencyChecker(s, idx)

			// When: running through a background reconciler
			r := async.NewBackgroundReconciler(async.ReconcilerConfig{DataDir: t.TempDir()})
			r.ReconcileFunc = checker.ReconcileFunc(tt.full)
			r.Start(context.Background())
			require.NoError(t, r.Wait())

			// Then: progress reached the end of the expected stage
			snap := r.Progress().Snapshot()
			assert.Equal(t, "ready", snap.Status)
			assert.Equal(t, string(tt.wantStage), snap.Stage)
			assert.Equal(t, 4, snap.Done)

			result, err := checker.Check(context.Background())
			require.NoError(t, err)
			assert.True(t, result.Consistent())
		})
	}
}

func TestConsistencyChecker_ReconcileFuncNoopWhenConsistent(t *testing.T) {
	s := newMemoryStore(t)
	idx := newSwitchableIndex(t)
	indexMessages(t, idx, appendMessages(t, s, 2)...)

	progress := async.NewReconcileProgress()
	err := NewConsistencyChecker(s, idx).ReconcileFunc(false)(context.Background(), progress)

	require.NoError(t, err)
	assert.Equal(t, string(async.StageChecking), progress.Snapshot().Stage)
}

func TestConsistencyChecker_IngestBetweenSnapshotsIsKept(t *testing.T) {
	// Given: one indexed message and a checker whose index read is followed by an ingest
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.coord.Ingest(ctx, "alice", "early bird")
	require.NoError(t, err)

	var late *store.Message
	idx := &hookedIndex{SearchIndex: h.index, afterAllIDs: func() {
		var ingestErr error
		late, ingestErr = h.coord.Ingest(ctx, "carol", "late arrival")
		require.NoError(t, ingestErr)
	}}
	checker := NewConsistencyChecker(h.store, idx)

	// When: checking and repairing
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	repaired, err := checker.Repair(ctx, result)

	// Then: the late message is at most missing, never an orphan, and stays indexed
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Empty(t, result.Orphans)
	assert.Equal(t, []int64{late.ID}, result.Missing)
	assert.Zero(t, repaired.Deleted)
	assert.True(t, h.index.has(t, late.ID))
}

func TestConsistencyChecker_RepairKeepsStoredOrphan(t *testing.T) {
	// Given: a check result that lists a message ingested after it was taken
	h := newHarness(t, nil)
	ctx := context.Background()
	msg, err := h.coord.Ingest(ctx, "carol", "late arrival")
	require.NoError(t, err)
	require.NoError(t, h.index.Upsert(ctx, &store.IndexDocument{ID: 404, SenderName: "x", Body: "gone"}))
	stale := &CheckResult{Orphans: []int64{msg.ID, 404}}

	// When: repairing from the stale result
	repaired, err := NewConsistencyChecker(h.store, h.index).Repair(ctx, stale)

	// Then: only the id absent from the store is deleted
	require.NoError(t, err)
	assert.Equal(t, 1, repaired.Deleted)
	assert.True(t, h.index.has(t, msg.ID))
	assert.False(t, h.index.has(t, 404))
	state, ok := h.coord.State(msg.ID)
	require.True(t, ok)
	assert.Equal(t, StateIndexed, state)
}

func TestConsistencyChecker_RebuildKeepsIngestAfterStoreRead(t *testing.T) {
	// Given: a rebuild whose store snapshot is followed by an ingest
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.coord.Ingest(ctx, "alice", "early bird")
	require.NoError(t, err)

	var late *store.Message
	s := &hookedStore{MessageStore: h.store, afterRead: func() {
		var ingestErr error
		late, ingestErr = h.coord.Ingest(ctx, "carol", "late arrival")
		require.NoError(t, ingestErr)
	}}

	// When: rebuilding
	repaired, err := NewConsistencyChecker(s, h.index).Rebuild(ctx)

	// Then: the late document was not treated as an orphan
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, 1, repaired.Reindexed)
	assert.Zero(t, repaired.Deleted)
	assert.True(t, h.index.has(t, late.ID))
}

func TestConsistencyChecker_ReconcileDuringIngest(t *testing.T) {
	tests := []struct {
		name string
		full bool
	}{
		{"check and repair", false},
		{"full rebuild", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: writers ingesting while the index is reconciled in a loop
			h := newHarness(t, nil)
			ctx := context.Background()
			checker := NewConsistencyChecker(h.store, h.index)
			reconcile := checker.ReconcileFunc(tt.full)

			const writers, perWriter = 4, 25
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						_, err := h.coord.Ingest(ctx, fmt.Sprintf("writer%d", w), fmt.Sprintf("message %d", i))
						assert.NoError(t, err)
					}
				}(w)
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			// When: reconciling until every writer is finished
			for running := true; running; {
				select {
				case <-done:
					running = false
				default:
				}
				require.NoError(t, reconcile(ctx, async.NewReconcileProgress()))
			}

			// Then: every stored message is indexed without a further repair
			result, err := checker.Check(ctx)
			require.NoError(t, err)
			assert.Equal(t, writers*perWriter, result.Checked)
			assert.Empty(t, result.Missing)
			assert.Empty(t, result.Orphans)
		})
	}
}
