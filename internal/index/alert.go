package index

import (
	"context"
	"log/slog"
	"time"
)

// Alert reasons.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonQueueFull        = "retry_queue_full"
)

// Alert describes a stored message that could not be indexed.
type Alert struct {
	MessageID int64
	Attempts  int
	Err       error
	At        time.Time
	Reason    string
}

// Alerter is notified when a message will not become searchable without
// operator action. Implementations must not block for long.
type Alerter interface {
	IndexFailed(ctx context.Context, alert Alert)
}

// LogAlerter reports alerts as ERROR log records.
type LogAlerter struct {
	Logger *slog.Logger
}

// IndexFailed implements Alerter.
func (a LogAlerter) IndexFailed(ctx context.Context, alert Alert) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		slog.Int64("message_id", alert.MessageID),
		slog.Int("attempts", alert.Attempts),
		slog.String("reason", alert.Reason),
		slog.Time("at", alert.At),
		slog.String("action", "run 'parley reconcile'"),
	}
	if alert.Err != nil {
		attrs = append(attrs, slog.String("error", alert.Err.Error()))
	}
	logger.ErrorContext(ctx, "index_failed_permanently", attrs...)
}
