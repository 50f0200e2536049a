package services

import (
	"context"
	"time"

	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/types"
)

// PostSource is the ingestion collaborator boundary: it hands the
// engine the posts created or modified since the watermark. The
// default implementation reads the post table the ingestion service
// writes into; a nil watermark means the whole corpus.
type PostSource interface {
	FetchSince(ctx context.Context, watermark *time.Time) ([]*types.Post, error)
}

type repoPostSource struct {
	posts repos.PostRepo
}

func NewRepoPostSource(posts repos.PostRepo) PostSource {
	return &repoPostSource{posts: posts}
}

func (s *repoPostSource) FetchSince(ctx context.Context, watermark *time.Time) ([]*types.Post, error) {
	return s.posts.GetModifiedSince(ctx, nil, watermark)
}
