// Package async runs the background work behind ingest: the index retry
// queue and store/index reconciliation.
package async

import (
	"sync"
	"time"
)

// ReconcileStatus represents the overall reconciliation state.
type ReconcileStatus string

const (
	// StatusRunning indicates reconciliation is in progress.
	StatusRunning ReconcileStatus = "running"
	// StatusReady indicates the index has converged with the store.
	StatusReady ReconcileStatus = "ready"
	// StatusError indicates reconciliation failed.
	StatusError ReconcileStatus = "error"
)

// ReconcileStage is the current step of a reconciliation run.
type ReconcileStage string

const (
	// StageChecking compares store and index ids.
	StageChecking ReconcileStage = "checking"
	// StageRepairing re-indexes missing documents and deletes orphans.
	StageRepairing ReconcileStage = "repairing"
	// StageRebuilding re-indexes every stored message.
	StageRebuilding ReconcileStage = "rebuilding"
)

// ReconcileProgressSnapshot is an immutable snapshot of reconciliation progress.
type ReconcileProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	Total          int     `json:"total"`
	Done           int     `json:"done"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ReconcileProgress provides thread-safe tracking of reconciliation progress.
type ReconcileProgress struct {
	mu sync.RWMutex

	status       ReconcileStatus
	stage        ReconcileStage
	total        int
	done         int
	startTime    time.Time
	errorMessage string
}

// NewReconcileProgress creates a tracker in the running/checking state.
func NewReconcileProgress() *ReconcileProgress {
	return &ReconcileProgress{
		status:    StatusRunning,
		stage:     StageChecking,
		startTime: time.Now(),
	}
}

// SetStage moves to stage with total units of work and resets the done count.
func (p *ReconcileProgress) SetStage(stage ReconcileStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.done = 0
}

// Advance records n more units of work as done.
func (p *ReconcileProgress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	if p.total > 0 && p.done > p.total {
		p.done = p.total
	}
}

// SetError marks the run as failed.
func (p *ReconcileProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the run as complete.
func (p *ReconcileProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsRunning reports whether the run is still in progress.
func (p *ReconcileProgress) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRunning
}

// Snapshot returns an immutable copy of the current progress state.
func (p *ReconcileProgress) Snapshot() ReconcileProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.total > 0 {
		progressPct = float64(p.done) / float64(p.total) * 100.0
	}

	return ReconcileProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		Total:          p.total,
		Done:           p.done,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
