package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/types"
)

type PostRepo interface {
	Create(ctx context.Context, tx *gorm.DB, posts []*types.Post) ([]*types.Post, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Post, error)
	// GetModifiedSince returns posts with updated_at strictly after
	// since, oldest first. A nil since returns the whole corpus.
	GetModifiedSince(ctx context.Context, tx *gorm.DB, since *time.Time) ([]*types.Post, error)
	UpdateCategory(ctx context.Context, tx *gorm.DB, postID, categoryID uuid.UUID) error
	// ReassignByCategoryIDs moves every post assigned to one of fromIDs
	// onto the target category. Used for orphan-branch repair.
	ReassignByCategoryIDs(ctx context.Context, tx *gorm.DB, fromIDs []uuid.UUID, to uuid.UUID) (int64, error)
	CountByCategoryID(ctx context.Context, tx *gorm.DB, categoryID uuid.UUID) (int64, error)
}

type postRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return &postRepo{
		db:  db,
		log: baseLog.With("repo", "PostRepo"),
	}
}

func (r *postRepo) Create(ctx context.Context, tx *gorm.DB, posts []*types.Post) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(posts) == 0 {
		return []*types.Post{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Post
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postRepo) GetModifiedSince(ctx context.Context, tx *gorm.DB, since *time.Time) ([]*types.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Order("updated_at ASC")
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	var out []*types.Post
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postRepo) UpdateCategory(ctx context.Context, tx *gorm.DB, postID, categoryID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if postID == uuid.Nil {
		return nil
	}
	// updated_at is deliberately left alone: assignment is engine
	// state, not a content modification, and must not move the
	// incremental watermark.
	return transaction.WithContext(ctx).
		Model(&types.Post{}).
		Where("id = ?", postID).
		UpdateColumn("category_id", categoryID).Error
}

func (r *postRepo) ReassignByCategoryIDs(ctx context.Context, tx *gorm.DB, fromIDs []uuid.UUID, to uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(fromIDs) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.Post{}).
		Where("category_id IN ?", fromIDs).
		UpdateColumn("category_id", to)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *postRepo) CountByCategoryID(ctx context.Context, tx *gorm.DB, categoryID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Post{}).
		Where("category_id = ?", categoryID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}
