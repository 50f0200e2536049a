package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/taxonomy"
	"github.com/vantor/intelpost-backend/internal/types"
)

// HierarchyService is the category graph. Creation is idempotent and
// keyed by unique slug; concurrent attempts for the same slug converge
// to one row, with the loser resolving to the winner's id.
type HierarchyService interface {
	// EnsureCatchAll creates the reserved catch-all root once and
	// memoizes it. Must be called before Resolve/GetOrCreate traffic.
	EnsureCatchAll(ctx context.Context) (*types.Category, error)
	CatchAllID() uuid.UUID
	// GetOrCreate resolves the classified slug to a category id,
	// creating the node (and, for year-keyed classes, its year root)
	// on first sight. Returns how many rows were newly created.
	GetOrCreate(ctx context.Context, cls taxonomy.Classification) (uuid.UUID, int, error)
}

type hierarchyService struct {
	categories repos.CategoryRepo
	log        *logger.Logger
	catchAll   *types.Category
}

func NewHierarchyService(categories repos.CategoryRepo, baseLog *logger.Logger) HierarchyService {
	return &hierarchyService{
		categories: categories,
		log:        baseLog.With("service", "HierarchyService"),
	}
}

func (s *hierarchyService) EnsureCatchAll(ctx context.Context) (*types.Category, error) {
	if s.catchAll != nil {
		return s.catchAll, nil
	}
	cat := &types.Category{
		Slug: types.CatchAllSlug,
		Name: taxonomy.DisplayName(types.CatchAllSlug),
	}
	row, created, err := s.categories.CreateIfAbsent(ctx, nil, cat)
	if err != nil {
		return nil, fmt.Errorf("ensure catch-all: %w", err)
	}
	if created {
		s.log.Info("Catch-all category created", "slug", row.Slug, "id", row.ID)
	}
	s.catchAll = row
	return row, nil
}

func (s *hierarchyService) CatchAllID() uuid.UUID {
	if s.catchAll == nil {
		return uuid.Nil
	}
	return s.catchAll.ID
}

func (s *hierarchyService) GetOrCreate(ctx context.Context, cls taxonomy.Classification) (uuid.UUID, int, error) {
	if cls.Slug == "" {
		return uuid.Nil, 0, fmt.Errorf("get-or-create: empty slug")
	}
	createdTotal := 0

	var parentID *uuid.UUID
	if !cls.IsRoot() {
		yearCls := taxonomy.Classification{
			Slug:        cls.YearKey,
			Class:       taxonomy.ClassYear,
			Specificity: 1,
			YearKey:     cls.YearKey,
		}
		pid, created, err := s.GetOrCreate(ctx, yearCls)
		if err != nil {
			return uuid.Nil, createdTotal, fmt.Errorf("resolve year root %q: %w", cls.YearKey, err)
		}
		createdTotal += created
		parentID = &pid
	}

	cat := &types.Category{
		Slug:     cls.Slug,
		Name:     taxonomy.DisplayName(cls.Slug),
		ParentID: parentID,
	}
	row, created, err := s.categories.CreateIfAbsent(ctx, nil, cat)
	if err != nil {
		return uuid.Nil, createdTotal, fmt.Errorf("get-or-create %q: %w", cls.Slug, err)
	}
	if created {
		createdTotal++
		s.log.Debug("Category created", "slug", row.Slug, "class", cls.Class, "parent_set", parentID != nil)
	}
	return row.ID, createdTotal, nil
}
