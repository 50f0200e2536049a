package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vantor/intelpost-backend/internal/logger"
	pkgerrors "github.com/vantor/intelpost-backend/internal/pkg/errors"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/services"
	"github.com/vantor/intelpost-backend/internal/types"
)

type ReconcileDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Source     services.PostSource
	Resolver   services.AssignmentService
	Aggregator services.AggregationService
	Hierarchy  services.HierarchyService
	Runs       repos.ReconcileRunRepo
	// Tree is optional; when set its cache is invalidated after every pass.
	Tree services.CategoryTreeService
}

type ReconcileInput struct {
	// RunID references an already-claimed run row. When Nil a new
	// running row is created (direct invocation path).
	RunID uuid.UUID
	Mode  string // full|incremental
	// Concurrency bounds the resolver worker pool; <=0 defaults to 4.
	Concurrency int
}

type ReconcileOutput struct {
	RunID             uuid.UUID `json:"run_id"`
	Status            string    `json:"status"`
	PostsProcessed    int       `json:"posts_processed"`
	PostsFailed       int       `json:"posts_failed"`
	CategoriesCreated int       `json:"categories_created"`
	CategoriesPruned  int       `json:"categories_pruned"`
}

// Enqueue records a queued run for the worker to claim.
func Enqueue(ctx context.Context, runs repos.ReconcileRunRepo, mode string) (*types.ReconcileRun, error) {
	if mode != types.ReconcileModeFull && mode != types.ReconcileModeIncremental {
		return nil, fmt.Errorf("%w: mode %q", pkgerrors.ErrInvalidArgument, mode)
	}
	return runs.Create(ctx, nil, &types.ReconcileRun{
		Mode:   mode,
		Status: types.ReconcileStatusQueued,
	})
}

// Reconcile drives one reconciliation pass: fetch the post batch,
// resolve assignments through a bounded pool, and only after the pool
// has drained recompute counts and prune. Every step is
// idempotent, so an interrupted or failed run is safely reprocessed by
// the next invocation: the watermark only advances on success.
func Reconcile(ctx context.Context, deps ReconcileDeps, in ReconcileInput) (ReconcileOutput, error) {
	out := ReconcileOutput{Status: types.ReconcileStatusFailed}
	if deps.DB == nil || deps.Log == nil || deps.Source == nil || deps.Resolver == nil ||
		deps.Aggregator == nil || deps.Hierarchy == nil || deps.Runs == nil {
		return out, fmt.Errorf("reconcile: missing deps")
	}
	if in.Mode != types.ReconcileModeFull && in.Mode != types.ReconcileModeIncremental {
		return out, fmt.Errorf("%w: mode %q", pkgerrors.ErrInvalidArgument, in.Mode)
	}
	log := deps.Log.With("job", "reconcile", "mode", in.Mode)

	var span trace.Span
	ctx, span = otel.Tracer("intelpost/jobs").Start(ctx, "reconcile",
		trace.WithAttributes(attribute.String("reconcile.mode", in.Mode)))
	defer span.End()

	concurrency := in.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	run, err := ensureRunRow(ctx, deps, in)
	if err != nil {
		return out, err
	}
	out.RunID = run.ID
	log = log.With("run_id", run.ID)
	started := time.Now()

	if _, err := deps.Hierarchy.EnsureCatchAll(ctx); err != nil {
		finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, err)
		return out, err
	}

	// Incremental runs are bounded below by the watermark of the last
	// succeeded run; a full rebuild scans the whole corpus.
	var watermark *time.Time
	if in.Mode == types.ReconcileModeIncremental {
		last, err := deps.Runs.GetLatestSucceeded(ctx, nil)
		if err != nil {
			finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, err)
			return out, err
		}
		if last != nil {
			watermark = last.Watermark
		}
	}

	posts, err := deps.Source.FetchSince(ctx, watermark)
	if err != nil {
		finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, err)
		return out, fmt.Errorf("fetch posts: %w", err)
	}
	log.Info("Reconciliation pass starting", "posts", len(posts), "concurrency", concurrency)

	var (
		processed int32
		failed    int32
		created   int32
		maxSeenMu sync.Mutex
		maxSeen   time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, post := range posts {
		post := post
		g.Go(func() error {
			// Per-post cancellation checkpoint.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if post == nil || post.ID == uuid.Nil {
				return nil
			}
			_, n, err := deps.Resolver.Resolve(gctx, post)
			atomic.AddInt32(&created, int32(n))
			if err != nil {
				// Storage failure on one post is not fatal to the
				// batch; the run ends failed so the watermark stays
				// put and the post is retried next pass.
				atomic.AddInt32(&failed, 1)
				log.Warn("Post left unresolved", "post_id", post.ID, "error", err)
				return nil
			}
			atomic.AddInt32(&processed, 1)
			maxSeenMu.Lock()
			if post.UpdatedAt.After(maxSeen) {
				maxSeen = post.UpdatedAt
			}
			maxSeenMu.Unlock()
			return nil
		})
	}
	waitErr := g.Wait()

	out.PostsProcessed = int(atomic.LoadInt32(&processed))
	out.PostsFailed = int(atomic.LoadInt32(&failed))
	out.CategoriesCreated = int(atomic.LoadInt32(&created))

	if waitErr != nil {
		// Cancelled between posts: no watermark advance, the next
		// scheduled invocation resumes the same batch.
		finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, waitErr)
		return out, waitErr
	}

	// Pool drained: the aggregation barrier holds. Counts recompute is
	// safe to run even when some posts failed; it only reads the
	// assignment ground truth.
	pruned, err := deps.Aggregator.ReconcileCounts(ctx)
	if err != nil {
		finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, err)
		return out, err
	}
	out.CategoriesPruned = int(pruned)

	if deps.Tree != nil {
		deps.Tree.Invalidate(context.WithoutCancel(ctx))
	}

	if out.PostsFailed > 0 {
		err := fmt.Errorf("reconcile: %d posts unresolved, watermark not advanced", out.PostsFailed)
		finishRun(deps, run.ID, &out, types.ReconcileStatusFailed, nil, started, err)
		return out, nil
	}

	newWatermark := watermark
	if !maxSeen.IsZero() {
		newWatermark = &maxSeen
	}
	finishRun(deps, run.ID, &out, types.ReconcileStatusSucceeded, newWatermark, started, nil)
	log.Info("Reconciliation pass finished",
		"posts_processed", out.PostsProcessed,
		"categories_created", out.CategoriesCreated,
		"categories_pruned", out.CategoriesPruned,
		"duration", time.Since(started).String())
	return out, nil
}

func ensureRunRow(ctx context.Context, deps ReconcileDeps, in ReconcileInput) (*types.ReconcileRun, error) {
	if in.RunID != uuid.Nil {
		run, err := deps.Runs.GetByID(ctx, nil, in.RunID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("%w: run %s", pkgerrors.ErrNotFound, in.RunID)
		}
		return run, nil
	}
	now := time.Now()
	return deps.Runs.Create(ctx, nil, &types.ReconcileRun{
		Mode:      in.Mode,
		Status:    types.ReconcileStatusRunning,
		Attempts:  1,
		StartedAt: &now,
	})
}

// finishRun writes the terminal run state. It deliberately uses a
// non-cancellable context so bookkeeping survives the cancellation that
// may have ended the run.
func finishRun(deps ReconcileDeps, runID uuid.UUID, out *ReconcileOutput, status string, watermark *time.Time, started time.Time, cause error) {
	out.Status = status
	now := time.Now()
	updates := map[string]interface{}{
		"status":             status,
		"posts_processed":    out.PostsProcessed,
		"categories_created": out.CategoriesCreated,
		"categories_pruned":  out.CategoriesPruned,
		"finished_at":        now,
	}
	if watermark != nil {
		updates["watermark"] = *watermark
	}
	if cause != nil {
		updates["error"] = cause.Error()
		updates["last_error_at"] = now
	}
	if stats, err := json.Marshal(map[string]interface{}{
		"posts_failed": out.PostsFailed,
		"duration_ms":  time.Since(started).Milliseconds(),
	}); err == nil {
		updates["stats"] = datatypes.JSON(stats)
	}
	if err := deps.Runs.UpdateFields(context.Background(), nil, runID, updates); err != nil {
		deps.Log.Error("Failed to finalize reconcile run", "run_id", runID, "error", err)
	}
}
