// Package reaper deletes ledgers whose last member left longer ago than the grace period.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/household-ledger/internal/config"
	"github.com/panjf2000/ants/v2"
)

// LedgerSweeper lists and conditionally deletes abandoned ledgers.
type LedgerSweeper interface {
	ListAbandoned(ctx context.Context, before time.Time, limit int) ([]string, error)
	DeleteAbandoned(ctx context.Context, ledgerID string, before time.Time) (bool, error)
}

// TransactionPurger removes a deleted ledger's transactions from the transaction log.
type TransactionPurger interface {
	DeleteByLedger(ctx context.Context, ledgerID string) (int64, error)
}

// Result summarises one sweep.
type Result struct {
	Scanned int
	Deleted int
	Skipped int // rejoined or otherwise no longer eligible when deleted
	Failed  int
}

// Reaper periodically sweeps abandoned ledgers
type Reaper struct {
	sweeper   LedgerSweeper
	purger    TransactionPurger
	pool      *ants.Pool
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewReaper(
	cfg *config.ReaperConfig,
	sweeper LedgerSweeper,
	purger TransactionPurger,
	logger *slog.Logger,
) (*Reaper, error) {
	pool, err := ants.NewPool(max(cfg.Concurrency, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create reaper pool: %w", err)
	}
	return &Reaper{
		sweeper:   sweeper,
		purger:    purger,
		pool:      pool,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}, nil
}

// Start sweeps on every tick until ctx is canceled.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("Starting Reaper",
		"interval", r.interval.String(),
		"batch_size", r.batchSize,
		"concurrency", r.pool.Cap(),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Error during abandoned ledger sweep", "error", err)
			}
		}
	}
}

// Sweep deletes one batch of abandoned ledgers. Only a failure to list candidates
// is returned; per-ledger failures are logged and counted.
func (r *Reaper) Sweep(ctx context.Context) (Result, error) {
	before := r.now().UTC()
	ids, err := r.sweeper.ListAbandoned(ctx, before, r.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list abandoned ledgers: %w", err)
	}

	result := Result{Scanned: len(ids)}
	if len(ids) == 0 {
		r.logger.Debug("No abandoned ledgers found.")
		return result, nil
	}
	r.logger.Info("Fetched abandoned ledgers", "count", len(ids))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(fn func(*Result)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	for _, id := range ids {
		ledgerID := id
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			deleted, err := r.reap(ctx, ledgerID, before)
			record(func(res *Result) {
				switch {
				case err != nil:
					res.Failed++
				case deleted:
					res.Deleted++
				default:
					res.Skipped++
				}
			})
		})
		if err != nil {
			wg.Done()
			r.logger.Error("Failed to submit ledger deletion to pool", "ledger_id", ledgerID, "error", err)
			record(func(res *Result) { res.Failed++ })
		}
	}
	wg.Wait()

	r.logger.Info("Abandoned ledger sweep finished",
		"scanned", result.Scanned,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (r *Reaper) reap(ctx context.Context, ledgerID string, before time.Time) (bool, error) {
	logger := r.logger.With("ledger_id", ledgerID)

	deleted, err := r.sweeper.DeleteAbandoned(ctx, ledgerID, before)
	if err != nil {
		logger.Error("Failed to delete abandoned ledger", "error", err)
		return false, err
	}
	if !deleted {
		logger.Info("Ledger no longer abandoned, skipping")
		return false, nil
	}

	if r.purger != nil {
		purged, err := r.purger.DeleteByLedger(ctx, ledgerID)
		if err != nil {
			// The ledger document is gone; orphaned log rows are unreachable.
			logger.Error("Failed to purge transaction log for deleted ledger", "error", err)
		} else {
			logger.Debug("Purged transaction log", "transactions", purged)
		}
	}
	logger.Info("Deleted abandoned ledger")
	return true, nil
}

// Close releases the worker pool.
func (r *Reaper) Close() {
	r.pool.Release()
}
