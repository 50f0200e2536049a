package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatchAllSlug identifies the single reserved root category that posts
// without an extractable slug are assigned to. It is created once at
// store initialization and never pruned.
const CatchAllSlug = "uncategorized"

// Category is one node of the two-level taxonomy. A node is either a
// root (year, memo or plain slug) or the child of exactly one root.
// PostCount is derived state and is always recomputable from the post
// table; it is never authoritative.
type Category struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Slug      string     `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Name      string     `gorm:"column:name;not null" json:"name"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	PostCount int        `gorm:"column:post_count;not null;default:0" json:"post_count"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Category) TableName() string { return "category" }

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
