package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/parley-chat/parley/internal/async"
	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/store"
)

// repairBatchSize is how many documents go to the index per UpsertMany call.
const repairBatchSize = 256

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of stored messages verified.
	Checked int
	// Indexed is the number of documents found in the index.
	Indexed int
	// Missing lists stored message ids absent from the index.
	Missing []int64
	// Orphans lists indexed ids with no stored message.
	Orphans []int64
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether store and index hold the same ids.
func (r *CheckResult) Consistent() bool {
	return len(r.Missing) == 0 && len(r.Orphans) == 0
}

// RepairResult counts what Repair or Rebuild changed.
type RepairResult struct {
	Reindexed int
	Deleted   int
	// Skipped counts missing ids the store no longer returned.
	Skipped int
}

// ConsistencyChecker compares the message store (source of truth) with the
// search index and brings the index back in line.
type ConsistencyChecker struct {
	store store.MessageStore
	index store.SearchIndex
}

// NewConsistencyChecker creates a new checker over the given stores.
func NewConsistencyChecker(messages store.MessageStore, idx store.SearchIndex) *ConsistencyChecker {
	return &ConsistencyChecker{store: messages, index: idx}
}

// Check compares every stored id with every indexed id.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	// Index first: a message ingested between the two reads then shows up
	// as missing, never as an orphan.
	indexIDs, err := c.index.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	storeIDs, err := c.store.AllIDs(ctx)
	if err != nil {
		return nil, asPersistence("list stored ids", err)
	}

	missing, orphans := lo.Difference(storeIDs, indexIDs)
	sortIDs(missing)
	sortIDs(orphans)

	return &CheckResult{
		Checked:  len(storeIDs),
		Indexed:  len(indexIDs),
		Missing:  missing,
		Orphans:  orphans,
		Duration: time.Since(start),
	}, nil
}

// Repair re-indexes missing messages from the store and deletes orphans.
func (c *ConsistencyChecker) Repair(ctx context.Context, result *CheckResult) (*RepairResult, error) {
	return c.repair(ctx, result, nil)
}

func (c *ConsistencyChecker) repair(ctx context.Context, result *CheckResult, progress *async.ReconcileProgress) (*RepairResult, error) {
	out := &RepairResult{}

	for _, ids := range lo.Chunk(result.Missing, repairBatchSize) {
		docs := make([]*store.IndexDocument, 0, len(ids))
		for _, id := range ids {
			msg, err := c.store.Get(ctx, id)
			if err != nil {
				return out, asPersistence("load message", err)
			}
			if msg == nil {
				out.Skipped++
				continue
			}
			docs = append(docs, store.DocumentFromMessage(msg))
		}
		if err := c.index.UpsertMany(ctx, docs); err != nil {
			return out, err
		}
		out.Reindexed += len(docs)
		advance(progress, len(ids))
	}

	if len(result.Orphans) > 0 {
		deleted, err := c.deleteOrphans(ctx, result.Orphans)
		if err != nil {
			return out, err
		}
		out.Deleted = deleted
		advance(progress, len(result.Orphans))
	}

	if out.Reindexed > 0 || out.Deleted > 0 {
		slog.Info("index_repaired",
			slog.Int("reindexed", out.Reindexed),
			slog.Int("deleted", out.Deleted),
			slog.Int("skipped", out.Skipped))
	}
	return out, nil
}

// Rebuild re-indexes every stored message and drops anything else from the index.
func (c *ConsistencyChecker) Rebuild(ctx context.Context) (*RepairResult, error) {
	return c.rebuild(ctx, nil)
}

func (c *ConsistencyChecker) rebuild(ctx context.Context, progress *async.ReconcileProgress) (*RepairResult, error) {
	msgs, err := c.store.List(ctx)
	if err != nil {
		return nil, asPersistence("list messages", err)
	}
	if progress != nil {
		progress.SetStage(async.StageRebuilding, len(msgs))
	}

	out := &RepairResult{}
	for _, batch := range lo.Chunk(msgs, repairBatchSize) {
		docs := lo.Map(batch, func(m *store.Message, _ int) *store.IndexDocument {
			return store.DocumentFromMessage(m)
		})
		if err := c.index.UpsertMany(ctx, docs); err != nil {
			return out, err
		}
		out.Reindexed += len(docs)
		advance(progress, len(docs))
	}

	indexIDs, err := c.index.AllIDs(ctx)
	if err != nil {
		return out, err
	}
	stored := lo.SliceToMap(msgs, func(m *store.Message) (int64, struct{}) {
		return m.ID, struct{}{}
	})
	orphans := lo.Filter(indexIDs, func(id int64, _ int) bool {
		_, ok := stored[id]
		return !ok
	})
	if len(orphans) > 0 {
		deleted, err := c.deleteOrphans(ctx, orphans)
		if err != nil {
			return out, err
		}
		out.Deleted = deleted
	}

	slog.Info("index_rebuilt", slog.Int("reindexed", out.Reindexed), slog.Int("deleted", out.Deleted))
	return out, nil
}

// QuickCheck compares counts only. True means the counts match.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	storeCount, err := c.store.Count(ctx)
	if err != nil {
		return false, asPersistence("count messages", err)
	}
	indexCount, err := c.index.Count(ctx)
	if err != nil {
		return false, err
	}

	if storeCount != indexCount {
		slog.Debug("index_count_mismatch",
			slog.Int("store", storeCount),
			slog.Int("index", indexCount))
		return false, nil
	}
	return true, nil
}

// ReconcileFunc adapts the checker to a BackgroundReconciler. With full set
// it rebuilds the whole index; otherwise it checks and repairs the difference.
func (c *ConsistencyChecker) ReconcileFunc(full bool) async.ReconcileFunc {
	return func(ctx context.Context, progress *async.ReconcileProgress) error {
		if full {
			_, err := c.rebuild(ctx, progress)
			return err
		}

		progress.SetStage(async.StageChecking, 0)
		result, err := c.Check(ctx)
		if err != nil {
			return err
		}
		slog.Info("consistency_checked",
			slog.Int("checked", result.Checked),
			slog.Int("missing", len(result.Missing)),
			slog.Int("orphans", len(result.Orphans)),
			slog.Duration("duration", result.Duration))
		if result.Consistent() {
			return nil
		}

		progress.SetStage(async.StageRepairing, len(result.Missing)+len(result.Orphans))
		_, err = c.repair(ctx, result, progress)
		return err
	}
}

// deleteOrphans removes the ids the store still does not have. An id found
// in the store was ingested after the snapshot and keeps its document.
func (c *ConsistencyChecker) deleteOrphans(ctx context.Context, ids []int64) (int, error) {
	orphans := make([]int64, 0, len(ids))
	for _, id := range ids {
		msg, err := c.store.Get(ctx, id)
		if err != nil {
			return 0, asPersistence("verify orphan", err)
		}
		if msg == nil {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := c.index.Delete(ctx, orphans); err != nil {
		return 0, err
	}
	return len(orphans), nil
}

func advance(progress *async.ReconcileProgress, n int) {
	if progress != nil {
		progress.Advance(n)
	}
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func asPersistence(op string, err error) error {
	if _, ok := perrors.As(err); ok {
		return err
	}
	return perrors.PersistenceError(op, err)
}
