package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	rediscache "github.com/vantor/intelpost-backend/internal/clients/redis"
	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/repos"
)

const treeCacheKey = "intelpost:category_tree"

// CategoryNode is the collaborator-facing shape of one taxonomy node.
type CategoryNode struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	PostCount int        `json:"post_count"`
}

// CategoryTreeService serves the browsing UI. The Redis cache is
// optional; a nil cache degrades to straight reads.
type CategoryTreeService interface {
	GetTree(ctx context.Context) ([]CategoryNode, error)
	// Invalidate drops the cached tree; called after every
	// reconciliation pass.
	Invalidate(ctx context.Context)
}

type categoryTreeService struct {
	categories repos.CategoryRepo
	cache      rediscache.Cache
	cacheTTL   time.Duration
	log        *logger.Logger
}

func NewCategoryTreeService(categories repos.CategoryRepo, cache rediscache.Cache, cacheTTL time.Duration, baseLog *logger.Logger) CategoryTreeService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &categoryTreeService{
		categories: categories,
		cache:      cache,
		cacheTTL:   cacheTTL,
		log:        baseLog.With("service", "CategoryTreeService"),
	}
}

func (s *categoryTreeService) GetTree(ctx context.Context) ([]CategoryNode, error) {
	if s.cache != nil {
		var cached []CategoryNode
		hit, err := s.cache.Get(ctx, treeCacheKey, &cached)
		if err != nil {
			s.log.Warn("Tree cache read failed, falling back to store", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	cats, err := s.categories.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	nodes := make([]CategoryNode, 0, len(cats))
	for _, c := range cats {
		nodes = append(nodes, CategoryNode{
			ID:        c.ID,
			Name:      c.Name,
			Slug:      c.Slug,
			ParentID:  c.ParentID,
			PostCount: c.PostCount,
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, treeCacheKey, nodes, s.cacheTTL); err != nil {
			s.log.Warn("Tree cache write failed", "error", err)
		}
	}
	return nodes, nil
}

func (s *categoryTreeService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, treeCacheKey); err != nil {
		s.log.Warn("Tree cache invalidation failed", "error", err)
	}
}
