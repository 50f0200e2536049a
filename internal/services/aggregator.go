package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantor/intelpost-backend/internal/logger"
	pkgerrors "github.com/vantor/intelpost-backend/internal/pkg/errors"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/types"
)

// AggregationService recomputes derived category counts from the
// assignment ground truth and prunes empty nodes. Must only run after
// all assignment writes of a pass have completed.
type AggregationService interface {
	// ReconcileCounts repairs orphan branches, recomputes every
	// post_count from scratch and deletes empty categories (the
	// catch-all excepted). Returns the number of pruned categories.
	ReconcileCounts(ctx context.Context) (int64, error)
}

type aggregationService struct {
	db         *gorm.DB
	categories repos.CategoryRepo
	posts      repos.PostRepo
	hierarchy  HierarchyService
	log        *logger.Logger
}

func NewAggregationService(
	db *gorm.DB,
	categories repos.CategoryRepo,
	posts repos.PostRepo,
	hierarchy HierarchyService,
	baseLog *logger.Logger,
) AggregationService {
	return &aggregationService{
		db:         db,
		categories: categories,
		posts:      posts,
		hierarchy:  hierarchy,
		log:        baseLog.With("service", "AggregationService"),
	}
}

func (s *aggregationService) ReconcileCounts(ctx context.Context) (int64, error) {
	catchAllID := s.hierarchy.CatchAllID()
	if catchAllID == uuid.Nil {
		return 0, fmt.Errorf("reconcile counts: catch-all not initialized")
	}

	var pruned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Invariant repair before counting: a child with a dangling
		// parent reference is fatal to that branch only. Its posts
		// fall back to the catch-all and the anomaly is surfaced.
		orphans, err := s.categories.GetOrphanChildren(ctx, tx)
		if err != nil {
			return fmt.Errorf("scan orphan children: %w", err)
		}
		if len(orphans) > 0 {
			ids := make([]uuid.UUID, 0, len(orphans))
			for _, o := range orphans {
				ids = append(ids, o.ID)
				s.log.Error("Orphan category branch detected, reassigning posts to catch-all",
					"category_id", o.ID, "slug", o.Slug, "parent_id", o.ParentID,
					"error", pkgerrors.ErrBranchAnomaly)
			}
			moved, err := s.posts.ReassignByCategoryIDs(ctx, tx, ids, catchAllID)
			if err != nil {
				return fmt.Errorf("reassign orphan posts: %w", err)
			}
			if err := s.categories.FullDeleteByIDs(ctx, tx, ids); err != nil {
				return fmt.Errorf("delete orphan categories: %w", err)
			}
			s.log.Warn("Orphan branches repaired", "categories", len(ids), "posts_moved", moved)
		}

		// Full recompute, never increment/decrement: the count can
		// not drift from ground truth even after a partial failure.
		if err := s.categories.RecomputePostCounts(ctx, tx); err != nil {
			return fmt.Errorf("recompute post counts: %w", err)
		}

		// Prune leaves first, then roots freed up by that pass; the
		// two-level tree converges in at most two rounds.
		for {
			n, err := s.categories.DeleteEmpty(ctx, tx, types.CatchAllSlug)
			if err != nil {
				return fmt.Errorf("prune empty categories: %w", err)
			}
			pruned += n
			if n == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.log.Info("Empty categories pruned", "count", pruned)
	}
	return pruned, nil
}
