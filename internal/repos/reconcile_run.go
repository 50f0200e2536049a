package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/types"
)

type ReconcileRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.ReconcileRun) (*types.ReconcileRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReconcileRun, error)
	// GetLatestSucceeded returns the most recent succeeded run, whose
	// watermark bounds the next incremental pass. Nil when none exists.
	GetLatestSucceeded(ctx context.Context, tx *gorm.DB) (*types.ReconcileRun, error)
	// ClaimNextRunnable picks one queued (or retryable failed, or
	// stale running) run and marks it running. Uses SKIP LOCKED on
	// postgres so concurrent workers never claim the same row.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.ReconcileRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type reconcileRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReconcileRunRepo(db *gorm.DB, baseLog *logger.Logger) ReconcileRunRepo {
	return &reconcileRunRepo{
		db:  db,
		log: baseLog.With("repo", "ReconcileRunRepo"),
	}
}

func (r *reconcileRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.ReconcileRun) (*types.ReconcileRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, gorm.ErrInvalidData
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *reconcileRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReconcileRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.ReconcileRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *reconcileRunRepo) GetLatestSucceeded(ctx context.Context, tx *gorm.DB) (*types.ReconcileRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.ReconcileRun
	err := transaction.WithContext(ctx).
		Where("status = ?", types.ReconcileStatusSucceeded).
		Order("finished_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *reconcileRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.ReconcileRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.ReconcileRun
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.ReconcileRun{})
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var run types.ReconcileRun
		qErr := q.Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < ?
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, types.ReconcileStatusQueued,
			types.ReconcileStatusFailed, maxAttempts, retryCutoff,
			types.ReconcileStatusRunning, staleCutoff).
			Order("created_at ASC").
			First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ReconcileRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       types.ReconcileStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"started_at":   now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *reconcileRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ReconcileRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *reconcileRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ReconcileRun{}).
		Where("id = ? AND status = ?", id, types.ReconcileStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
