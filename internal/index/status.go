package index

import (
	"context"

	"github.com/parley-chat/parley/internal/async"
	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/telemetry"
)

// StatusReport summarizes the health of the store/index pair.
type StatusReport struct {
	Messages   int                              `json:"messages"`
	Indexed    int                              `json:"indexed"`
	Consistent bool                             `json:"consistent"`
	QueueDepth int                              `json:"queue_depth"`
	States     map[string]int                   `json:"states,omitempty"`
	Breaker    string                           `json:"search_breaker,omitempty"`
	Reconcile  *async.ReconcileProgressSnapshot `json:"reconcile,omitempty"`
	Queries    *telemetry.QueryMetricsSnapshot  `json:"queries,omitempty"`
}

// Reporter assembles a StatusReport. Only Checker is required.
type Reporter struct {
	Checker     *ConsistencyChecker
	Coordinator *Coordinator
	Progress    *async.ReconcileProgress
	Breaker     *perrors.CircuitBreaker
	Metrics     *telemetry.QueryMetrics
}

// Report counts both stores and collects whatever runtime state is wired.
func (r *Reporter) Report(ctx context.Context) (*StatusReport, error) {
	messages, err := r.Checker.store.Count(ctx)
	if err != nil {
		return nil, asPersistence("count messages", err)
	}
	indexed, err := r.Checker.index.Count(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Messages:   messages,
		Indexed:    indexed,
		Consistent: messages == indexed,
	}

	if r.Coordinator != nil {
		report.QueueDepth = r.Coordinator.QueueDepth()
		counts := r.Coordinator.StateCounts()
		if len(counts) > 0 {
			report.States = make(map[string]int, len(counts))
			for state, n := range counts {
				report.States[state.String()] = n
			}
		}
	}
	if r.Progress != nil {
		snap := r.Progress.Snapshot()
		report.Reconcile = &snap
	}
	if r.Breaker != nil {
		report.Breaker = r.Breaker.State().String()
	}
	if r.Metrics != nil {
		report.Queries = r.Metrics.Snapshot()
	}
	return report, nil
}
