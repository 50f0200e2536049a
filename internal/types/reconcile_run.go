package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ReconcileModeFull        = "full"
	ReconcileModeIncremental = "incremental"

	ReconcileStatusQueued    = "queued"
	ReconcileStatusRunning   = "running"
	ReconcileStatusSucceeded = "succeeded"
	ReconcileStatusFailed    = "failed"
)

// ReconcileRun is one invocation of the reconciliation pipeline. The row
// doubles as the queue entry: the worker claims queued rows, and the
// watermark of the latest succeeded run bounds the next incremental run.
type ReconcileRun struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Mode   string    `gorm:"column:mode;not null;index" json:"mode"`     // full|incremental
	Status string    `gorm:"column:status;not null;index" json:"status"` // queued|running|succeeded|failed

	Watermark         *time.Time `gorm:"column:watermark" json:"watermark,omitempty"`
	PostsProcessed    int        `gorm:"column:posts_processed;not null;default:0" json:"posts_processed"`
	CategoriesCreated int        `gorm:"column:categories_created;not null;default:0" json:"categories_created"`
	CategoriesPruned  int        `gorm:"column:categories_pruned;not null;default:0" json:"categories_pruned"`

	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error       string         `gorm:"column:error" json:"error"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	Stats       datatypes.JSON `gorm:"type:jsonb;column:stats" json:"stats"`

	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReconcileRun) TableName() string { return "reconcile_run" }

func (r *ReconcileRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
