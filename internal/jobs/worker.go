package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/types"
)

// Worker polls for claimable reconcile runs and executes them one at a
// time. Claiming uses SKIP LOCKED on postgres, so multiple replicas
// never run the same row; retryable failed runs and stale running runs
// (dead worker) are picked up again because every pass is idempotent.
type Worker struct {
	deps         ReconcileDeps
	log          *logger.Logger
	runs         repos.ReconcileRunRepo
	pollInterval time.Duration
	concurrency  int
}

func NewWorker(deps ReconcileDeps, pollInterval time.Duration, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		deps:         deps,
		log:          deps.Log.With("component", "ReconcileWorker"),
		runs:         deps.Runs,
		pollInterval: pollInterval,
		concurrency:  concurrency,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		const maxAttempts = 5
		retryDelay := 30 * time.Second
		staleRunning := 5 * time.Minute
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run, err := w.runs.ClaimNextRunnable(ctx, nil, maxAttempts, retryDelay, staleRunning)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if run == nil {
					continue
				}
				w.execute(ctx, run)
			}
		}
	}()
}

func (w *Worker) execute(ctx context.Context, run *types.ReconcileRun) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.runs.Heartbeat(hbCtx, nil, run.ID); err != nil {
					w.log.Warn("Heartbeat failed", "run_id", run.ID, "error", err)
				}
			}
		}
	}()
	defer stopHeartbeat()

	// A panicking pass must still release the run row as failed.
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Reconcile pass panic", "run_id", run.ID, "panic", r)
			now := time.Now()
			_ = w.runs.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
				"status":        types.ReconcileStatusFailed,
				"error":         fmt.Sprintf("panic: %v", r),
				"last_error_at": now,
				"finished_at":   now,
			})
		}
	}()

	out, err := Reconcile(ctx, w.deps, ReconcileInput{
		RunID:       run.ID,
		Mode:        run.Mode,
		Concurrency: w.concurrency,
	})
	if err != nil {
		w.log.Warn("Reconcile pass ended with error", "run_id", run.ID, "error", err)
		return
	}
	w.log.Info("Reconcile pass done",
		"run_id", run.ID,
		"status", out.Status,
		"posts_processed", out.PostsProcessed,
		"categories_created", out.CategoriesCreated,
		"categories_pruned", out.CategoriesPruned)
}
