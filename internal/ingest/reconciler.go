package ingest

import (
	"context"
	"log/slog"
	"time"
)

// OrphanDeleter removes chunks whose parent document no longer exists.
// Satisfied by *chunk.Store.
type OrphanDeleter interface {
	DeleteOrphans(ctx context.Context) (int64, error)
}

const defaultReconcileInterval = 15 * time.Minute

// Reconciler periodically sweeps the chunk store for orphans. Deletes
// remove chunks in the same transaction as their document, but an
// ingestion racing a delete can still land a chunk after the cascade ran;
// the sweep is what keeps the store eventually consistent.
type Reconciler struct {
	chunks   OrphanDeleter
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReconciler creates a Reconciler sweeping every interval. A
// non-positive interval uses the default.
func NewReconciler(chunks OrphanDeleter, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		chunks:   chunks,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs after one full
// interval, not immediately.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Reconciler) sweep(ctx context.Context) {
	deleted, err := r.chunks.DeleteOrphans(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("orphan sweep failed", "error", err)
		}
		return
	}
	if deleted > 0 {
		r.logger.Info("orphan sweep removed chunks", "deleted", deleted)
	}
}

// Stop halts the sweep loop and waits for it to exit. Safe to call before
// Start, in which case it does nothing.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
