package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/types"
)

type CategoryRepo interface {
	// CreateIfAbsent inserts the category unless a row with its slug
	// already exists. On conflict the winner's row is returned and
	// created is false. This is the single serialization point for
	// category creation.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, cat *types.Category) (*types.Category, bool, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Category, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Category, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Category, error)
	// GetOrphanChildren returns categories whose parent reference no
	// longer resolves to a live row.
	GetOrphanChildren(ctx context.Context, tx *gorm.DB) ([]*types.Category, error)
	// RecomputePostCounts sets every post_count to the exact number of
	// live posts assigned to the category. Always a full recompute.
	RecomputePostCounts(ctx context.Context, tx *gorm.DB) error
	// DeleteEmpty hard-deletes categories whose post_count is zero,
	// keeping the row identified by keepSlug and any row that still
	// has children (deleting those would orphan the child level).
	// Hard delete so the slug unique index stays free for later
	// re-creation.
	DeleteEmpty(ctx context.Context, tx *gorm.DB, keepSlug string) (int64, error)
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type categoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryRepo(db *gorm.DB, baseLog *logger.Logger) CategoryRepo {
	return &categoryRepo{
		db:  db,
		log: baseLog.With("repo", "CategoryRepo"),
	}
}

func (r *categoryRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, cat *types.Category) (*types.Category, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if cat == nil || strings.TrimSpace(cat.Slug) == "" {
		return nil, false, gorm.ErrInvalidData
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).
		Create(cat)
	if res.Error != nil {
		// A lost race can still surface as a unique violation on some
		// drivers; resolve by re-reading the winner.
		if isUniqueViolation(res.Error) {
			existing, readErr := r.GetBySlug(ctx, transaction, cat.Slug)
			if readErr != nil {
				return nil, false, readErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.GetBySlug(ctx, transaction, cat.Slug)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, gorm.ErrRecordNotFound
		}
		return existing, false, nil
	}
	return cat, true, nil
}

func (r *categoryRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var cat types.Category
	err := transaction.WithContext(ctx).
		Where("slug = ?", strings.ToLower(slug)).
		Limit(1).
		Find(&cat).Error
	if err != nil {
		return nil, err
	}
	if cat.ID == uuid.Nil {
		return nil, nil
	}
	return &cat, nil
}

func (r *categoryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var cat types.Category
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&cat).Error
	if err != nil {
		return nil, err
	}
	if cat.ID == uuid.Nil {
		return nil, nil
	}
	return &cat, nil
}

func (r *categoryRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Category
	if err := transaction.WithContext(ctx).
		Order("slug ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *categoryRepo) GetOrphanChildren(ctx context.Context, tx *gorm.DB) ([]*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Category
	err := transaction.WithContext(ctx).
		Where("parent_id IS NOT NULL AND parent_id NOT IN (SELECT id FROM category WHERE deleted_at IS NULL)").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *categoryRepo) RecomputePostCounts(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Exec(`
		UPDATE category
		SET post_count = (
			SELECT COUNT(*) FROM post
			WHERE post.category_id = category.id
			AND post.deleted_at IS NULL
		)
		WHERE category.deleted_at IS NULL
	`).Error
}

func (r *categoryRepo) DeleteEmpty(ctx context.Context, tx *gorm.DB, keepSlug string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Unscoped().
		Where("post_count = 0 AND slug <> ?", keepSlug).
		Where("id NOT IN (SELECT parent_id FROM category WHERE parent_id IS NOT NULL AND deleted_at IS NULL)").
		Delete(&types.Category{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *categoryRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("id IN ?", ids).
		Delete(&types.Category{}).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
