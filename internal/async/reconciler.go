package async

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerFileName is present in the data directory while a reconciliation
// runs. Finding it at startup means the previous run was interrupted.
const MarkerFileName = "reconcile.lock"

// ReconcileFunc is the reconciliation work itself.
type ReconcileFunc func(ctx context.Context, progress *ReconcileProgress) error

// ReconcilerConfig configures the BackgroundReconciler.
type ReconcilerConfig struct {
	DataDir string
}

// BackgroundReconciler runs a ReconcileFunc in a background goroutine with
// progress tracking.
type BackgroundReconciler struct {
	config   ReconcilerConfig
	progress *ReconcileProgress

	// ReconcileFunc is the work to run. Injected by the caller.
	ReconcileFunc ReconcileFunc

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	started bool
	err     error
}

// NewBackgroundReconciler creates a reconciler that has not started yet.
func NewBackgroundReconciler(cfg ReconcilerConfig) *BackgroundReconciler {
	return &BackgroundReconciler{
		config:   cfg,
		progress: NewReconcileProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the progress tracker for this run.
func (b *BackgroundReconciler) Progress() *ReconcileProgress {
	return b.progress
}

// IsRunning returns true while the run is in progress.
func (b *BackgroundReconciler) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins the run in a background goroutine. A reconciler runs at most
// once; later calls are ignored. Use Wait to block until completion.
func (b *BackgroundReconciler) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *BackgroundReconciler) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := b.run0(ctx); err != nil {
		b.progress.SetError(err.Error())
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return
	}

	b.progress.SetReady()
}

func (b *BackgroundReconciler) run0(ctx context.Context) (err error) {
	if b.config.DataDir != "" {
		markerPath := filepath.Join(b.config.DataDir, MarkerFileName)
		if err := os.MkdirAll(b.config.DataDir, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(markerPath, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
			return err
		}
		// Left behind on failure so the next start rebuilds.
		defer func() {
			if err == nil {
				_ = os.Remove(markerPath)
			}
		}()
	}

	if b.ReconcileFunc == nil {
		return nil
	}
	return b.ReconcileFunc(ctx, b.progress)
}

// Stop signals the run to stop and waits for it to finish.
func (b *BackgroundReconciler) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	<-b.doneCh
}

// Wait blocks until the run completes and returns its error. It must only be
// called after Start.
func (b *BackgroundReconciler) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteReconcile reports whether a previous run left its marker behind.
func HasIncompleteReconcile(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, MarkerFileName))
	return err == nil
}
