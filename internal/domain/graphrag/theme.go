package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Theme is a community of claims/concepts detected within a document's
// build, summarized with extracted keywords for theme-first retrieval
// recall.
type Theme struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Label      string    `gorm:"type:text;not null;default:''" json:"label"`
	Summary    string    `gorm:"type:text;not null;default:''" json:"summary"`
	Keywords   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"keywords"`
	Modularity float64   `gorm:"not null;default:0" json:"modularity"`
	Embedding  datatypes.JSON `gorm:"type:jsonb" json:"embedding,omitempty"`

	// Level is "coarse" (communities over the full concept graph) or "fine"
	// (communities detected within one coarse theme). ParentThemeID is set
	// only on a fine theme, pointing at the coarse theme it was split from.
	Level         string     `gorm:"type:text;not null;default:'coarse'" json:"level"`
	ParentThemeID *uuid.UUID `gorm:"type:uuid;index" json:"parent_theme_id,omitempty"`

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Theme) TableName() string { return "graphrag_theme" }

// ThemeMember is the BELONGS_TO_THEME edge, from either a Claim or a
// Concept (MemberType discriminates) into a Theme.
type ThemeMember struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThemeID    uuid.UUID `gorm:"type:uuid;not null;index;index:idx_theme_member,unique,priority:1" json:"theme_id"`
	MemberType string    `gorm:"column:member_type;type:text;not null;index:idx_theme_member,unique,priority:2" json:"member_type"` // claim|concept
	MemberID   uuid.UUID `gorm:"column:member_id;type:uuid;not null;index:idx_theme_member,unique,priority:3" json:"member_id"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ThemeMember) TableName() string { return "graphrag_theme_member" }
