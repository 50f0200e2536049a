package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/taxonomy"
	"github.com/vantor/intelpost-backend/internal/types"
)

// AssignmentService turns a post body into a single category
// assignment. Deterministic for a given body and store state: highest
// specificity wins, ties break on extraction order.
type AssignmentService interface {
	// Resolve picks the winning slug for the post, get-or-creates its
	// category and writes post.category_id. Returns the assigned
	// category id and how many categories the call created.
	Resolve(ctx context.Context, post *types.Post) (uuid.UUID, int, error)
}

type assignmentService struct {
	extractor  *taxonomy.Extractor
	classifier *taxonomy.Classifier
	hierarchy  HierarchyService
	posts      repos.PostRepo
	log        *logger.Logger
}

func NewAssignmentService(
	extractor *taxonomy.Extractor,
	classifier *taxonomy.Classifier,
	hierarchy HierarchyService,
	posts repos.PostRepo,
	baseLog *logger.Logger,
) AssignmentService {
	return &assignmentService{
		extractor:  extractor,
		classifier: classifier,
		hierarchy:  hierarchy,
		posts:      posts,
		log:        baseLog.With("service", "AssignmentService"),
	}
}

func (s *assignmentService) Resolve(ctx context.Context, post *types.Post) (uuid.UUID, int, error) {
	if post == nil || post.ID == uuid.Nil {
		return uuid.Nil, 0, fmt.Errorf("resolve: missing post")
	}

	slugs := s.extractor.Extract(post.Body)
	candidates := make([]taxonomy.Classification, 0, len(slugs))
	for _, slug := range slugs {
		candidates = append(candidates, s.classifier.Classify(slug))
	}
	// Highest specificity first; SliceStable keeps extraction order
	// within equal ranks, which is the documented tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Specificity > candidates[j].Specificity
	})

	created := 0
	categoryID := uuid.Nil
	for _, cls := range candidates {
		id, n, err := s.hierarchy.GetOrCreate(ctx, cls)
		created += n
		if err != nil {
			// Branch anomalies are fatal to this candidate only; the
			// post falls through to the next candidate or the
			// catch-all.
			s.log.Error("Candidate category unresolvable, falling through",
				"post_id", post.ID, "slug", cls.Slug, "error", err)
			continue
		}
		categoryID = id
		break
	}
	if categoryID == uuid.Nil {
		categoryID = s.hierarchy.CatchAllID()
		if categoryID == uuid.Nil {
			return uuid.Nil, created, fmt.Errorf("resolve: catch-all not initialized")
		}
	}

	if err := s.posts.UpdateCategory(ctx, nil, post.ID, categoryID); err != nil {
		return uuid.Nil, created, fmt.Errorf("assign post %s: %w", post.ID, err)
	}
	post.CategoryID = categoryID
	return categoryID, created, nil
}
