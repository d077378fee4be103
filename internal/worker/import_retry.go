package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ImportJob is one queued re-processing attempt for an import.
type ImportJob struct {
	ImportID string
	Attempt  int
}

// ImportFailer marks an import as permanently failed.
type ImportFailer interface {
	MarkFailed(id string, errorMessage string) error
}

// ImportRetryWorker retries failed import processing in the background.
// Guarantees are deliberately weak: the queue is in-memory and best-effort,
// attempts are capped and the backoff is a fixed delay with no jitter. When
// the final attempt fails the import is marked failed and the job dropped.
type ImportRetryWorker struct {
	process     func(importID string) error
	imports     ImportFailer
	maxAttempts int
	backoff     time.Duration
	jobs        chan ImportJob
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewImportRetryWorker creates a retry worker. process re-runs one import
// by id; maxAttempts and backoff default to 3 attempts 60s apart.
func NewImportRetryWorker(
	process func(importID string) error,
	imports ImportFailer,
	maxAttempts int,
	backoff time.Duration,
	logger *zap.Logger,
) *ImportRetryWorker {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 60 * time.Second
	}
	return &ImportRetryWorker{
		process:     process,
		imports:     imports,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		jobs:        make(chan ImportJob, 64),
		logger:      logger,
	}
}

// Name implements Worker.
func (w *ImportRetryWorker) Name() string { return "import-retry" }

// Start launches the processing loop.
func (w *ImportRetryWorker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to drain.
func (w *ImportRetryWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Enqueue schedules an import for processing. Returns false when the queue
// is full; the job is dropped, consistent with best-effort semantics.
func (w *ImportRetryWorker) Enqueue(importID string) bool {
	select {
	case w.jobs <- ImportJob{ImportID: importID, Attempt: 1}:
		return true
	default:
		w.logger.Warn("Import retry queue full, dropping job",
			zap.String("import_id", importID))
		return false
	}
}

func (w *ImportRetryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.handle(ctx, job)
		}
	}
}

func (w *ImportRetryWorker) handle(ctx context.Context, job ImportJob) {
	err := w.process(job.ImportID)
	if err == nil {
		w.logger.Info("Import processed",
			zap.String("import_id", job.ImportID),
			zap.Int("attempt", job.Attempt))
		return
	}

	w.logger.Warn("Import processing attempt failed",
		zap.String("import_id", job.ImportID),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))

	if job.Attempt >= w.maxAttempts {
		if markErr := w.imports.MarkFailed(job.ImportID, err.Error()); markErr != nil {
			w.logger.Error("Failed to mark import failed after retries",
				zap.String("import_id", job.ImportID),
				zap.Error(markErr))
		}
		return
	}

	// Fixed backoff, re-queued from a timer so the loop keeps serving
	// other jobs in the meantime.
	attempt := job.Attempt + 1
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
			select {
			case w.jobs <- ImportJob{ImportID: job.ImportID, Attempt: attempt}:
			default:
				w.logger.Warn("Import retry queue full, dropping retry",
					zap.String("import_id", job.ImportID))
			}
		}
	}()
}
