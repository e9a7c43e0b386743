package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/parley-chat/parley/internal/config"
	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/lock"
	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
)

// app is the wired set of components one command runs against. It holds the
// data-dir lock until Close.
type app struct {
	cfg *config.Config

	lock     *lock.DirLock
	messages store.MessageStore
	index    *store.BleveIndex

	coordinator *index.Coordinator
	breaker     *perrors.CircuitBreaker
	metrics     *telemetry.QueryMetrics
	search      *search.QueryService
	checker     *index.ConsistencyChecker
	reporter    *index.Reporter
}

// openApp locks the data directory, opens the store and the index, and wires
// the services on top of them.
func openApp(cfg *config.Config) (a *app, err error) {
	dataDir := cfg.Paths.DataDir

	dirLock := lock.New(dataDir)
	if err := dirLock.TryLock(); err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, lock: dirLock}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	backend := cfg.Store.Backend
	if existing := store.DetectStoreBackend(dataDir); existing != "" && string(existing) != backend {
		slog.Warn("store_backend_mismatch",
			slog.String("configured", backend),
			slog.String("found", string(existing)))
		backend = string(existing)
	}

	a.messages, err = store.NewMessageStoreWithBackend(store.MessagesBasePath(dataDir), backend)
	if err != nil {
		return nil, perrors.PersistenceError("open message store", err).
			WithDetail("data_dir", dataDir)
	}

	a.index, err = store.NewBleveIndex(store.IndexPath(dataDir), store.BleveIndexConfig{
		MaxExpansions: cfg.Index.MaxExpansions,
	})
	if err != nil {
		if _, ok := perrors.As(err); ok {
			return nil, err
		}
		return nil, perrors.IndexUnavailableError("open search index", err).
			WithSuggestion("Delete the index directory and run 'parley reindex'.")
	}

	a.coordinator = index.NewCoordinator(index.CoordinatorConfig{
		Store:        a.messages,
		Index:        a.index,
		StoreTimeout: cfg.Store.Timeout,
		IndexTimeout: cfg.Index.Timeout,
		MaxBodyBytes: cfg.Store.MaxBodyBytes,
		Retry: perrors.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			Jitter:       cfg.Retry.Jitter,
		},
		QueueCapacity: cfg.Retry.QueueSize,
	})

	a.breaker = perrors.NewCircuitBreaker("search",
		perrors.WithMaxFailures(cfg.Search.BreakerFailures),
		perrors.WithResetTimeout(cfg.Search.BreakerReset))
	a.metrics = telemetry.NewQueryMetrics()
	a.search = search.NewQueryService(search.ServiceConfig{
		Index:          a.index,
		Timeout:        cfg.Search.Timeout,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		Breaker:        a.breaker,
		Metrics:        a.metrics,
	})

	a.checker = index.NewConsistencyChecker(a.messages, a.index)
	a.reporter = &index.Reporter{
		Checker:     a.checker,
		Coordinator: a.coordinator,
		Breaker:     a.breaker,
		Metrics:     a.metrics,
	}

	slog.Debug("app_opened",
		slog.String("data_dir", dataDir),
		slog.String("backend", backend))
	return a, nil
}

// Close releases the index, the store and the lock, in that order.
func (a *app) Close() error {
	var errs []error
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
	}
	if a.messages != nil {
		if err := a.messages.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}

// withApp loads config, opens the app, runs fn and closes the app.
func withApp(fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("app_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(a)
}
