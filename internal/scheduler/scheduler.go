// Package scheduler periodically syncs active bank connections through
// their provider adapters and the import pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/config"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// Errors returned by manual sync attempts.
var (
	// ErrConnectionNotSyncable is returned when syncing a connection in
	// expired or error state. The connection must be re-authorized.
	ErrConnectionNotSyncable = errors.New("connection is not syncable")
)

// Store is the storage surface the scheduler needs.
type Store interface {
	storage.AccountRepository
	storage.ConnectionRepository
}

// Scheduler drives periodic provider syncs.
type Scheduler struct {
	cfg      config.SchedulerConfig
	registry *providers.Registry
	pipeline *importer.Pipeline
	store    Store
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// New creates a scheduler.
func New(cfg config.SchedulerConfig, registry *providers.Registry, pipeline *importer.Pipeline, store Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sync loop until Stop is called or the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the loop and waits for in-flight syncs to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle syncs every due connection through a bounded worker pool.
// Connections are independent: one failure never blocks the others.
func (s *Scheduler) runCycle(ctx context.Context) {
	due, err := s.store.ListDueConnections(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("listing due connections failed", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug("sync cycle starting", slog.Int("due", len(due)))

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for _, conn := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(conn *storage.Connection) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.syncOne(ctx, conn); err != nil {
				s.logger.Warn("connection sync failed",
					slog.String("connection_id", conn.ID),
					slog.String("provider", conn.Provider),
					slog.String("error", err.Error()))
			}
		}(conn)
	}
	wg.Wait()
}

// SyncConnection runs one sync on demand. Unlike the scheduled cycle it
// refuses expired and errored connections loudly so the caller knows to
// re-authorize, and it retries errored windows by leaving last_sync_at
// untouched on failure.
func (s *Scheduler) SyncConnection(ctx context.Context, connectionID string) (*importer.Result, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	switch conn.Status {
	case storage.ConnectionActive, storage.ConnectionError:
		// error state is retryable on explicit request
	default:
		return nil, fmt.Errorf("%w: status %s", ErrConnectionNotSyncable, conn.Status)
	}

	return s.syncOne(ctx, conn)
}

// syncOne fetches the window since last_sync_at and commits it through
// the import pipeline. A provider error marks the connection errored and
// leaves last_sync_at unchanged so the next attempt retries the window.
func (s *Scheduler) syncOne(ctx context.Context, conn *storage.Connection) (*importer.Result, error) {
	now := time.Now().UTC()

	if conn.ExpiresAt != nil && conn.ExpiresAt.Before(now) {
		_ = s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionExpired, "authorization grant expired")
		return nil, fmt.Errorf("%w: grant expired at %s", ErrConnectionNotSyncable, conn.ExpiresAt.Format(time.RFC3339))
	}

	adapter, err := s.registry.Get(conn.Provider)
	if err != nil {
		_ = s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionError, err.Error())
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, conn.AccountID)
	if err != nil {
		_ = s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionError, err.Error())
		return nil, fmt.Errorf("resolving account %s: %w", conn.AccountID, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	since := importer.Since(conn.LastSyncAt, now)
	preview, err := adapter.FetchTransactions(fetchCtx, conn.RequisitionID, since)
	if err != nil {
		_ = s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionError, err.Error())
		return nil, fmt.Errorf("fetching from %s: %w", conn.Provider, err)
	}

	result, err := s.pipeline.CommitDecoded(ctx, account, conn.Provider, preview)
	if err != nil {
		_ = s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionError, err.Error())
		return nil, fmt.Errorf("committing sync batch: %w", err)
	}

	if conn.Status == storage.ConnectionError {
		// A successful retry clears the error state.
		if err := s.store.UpdateConnectionStatus(ctx, conn.ID, storage.ConnectionActive, ""); err != nil {
			return result, err
		}
	}
	if err := s.store.UpdateSyncTimes(ctx, conn.ID, now, now.Add(s.cfg.SyncEvery)); err != nil {
		return result, fmt.Errorf("advancing sync window: %w", err)
	}

	s.logger.Info("connection synced",
		slog.String("connection_id", conn.ID),
		slog.String("provider", conn.Provider),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))

	return result, nil
}
