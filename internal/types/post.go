package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is an archived intelligence post. Rows are created and updated by
// the ingestion collaborator; the reconciliation engine only reads Body
// and writes CategoryID.
type Post struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string    `gorm:"column:title" json:"title"`
	Body       string    `gorm:"column:body;type:text" json:"body"`
	SourceURL  string    `gorm:"column:source_url" json:"source_url"`
	CategoryID uuid.UUID `gorm:"type:uuid;index" json:"category_id"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Post) TableName() string { return "post" }

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
