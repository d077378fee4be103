package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ImportPruner deletes terminal import records past a cutoff.
type ImportPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// ImportCleanupWorker periodically prunes completed and failed import
// records older than the retention window.
type ImportCleanupWorker struct {
	imports   ImportPruner
	retention time.Duration
	interval  time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewImportCleanupWorker creates a cleanup worker. Retention defaults to 30
// days, checked every 24 hours.
func NewImportCleanupWorker(imports ImportPruner, retention, interval time.Duration, logger *zap.Logger) *ImportCleanupWorker {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ImportCleanupWorker{
		imports:   imports,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Name implements Worker.
func (w *ImportCleanupWorker) Name() string { return "import-cleanup" }

// Start launches the cleanup loop.
func (w *ImportCleanupWorker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to finish.
func (w *ImportCleanupWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *ImportCleanupWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.prune()
		}
	}
}

func (w *ImportCleanupWorker) prune() {
	cutoff := time.Now().Add(-w.retention)
	deleted, err := w.imports.DeleteOlderThan(cutoff)
	if err != nil {
		w.logger.Error("Import cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("Pruned old import records", zap.Int64("deleted", deleted))
	}
}
