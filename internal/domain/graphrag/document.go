package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is a source text unit ingested into the graph. BuildVersion tags
// every node/edge this document's pipeline run produces, so a rollback can
// select by (doc_id, build_version) without touching other builds.
type Document struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ExternalID string `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	SourceKind string `gorm:"type:text;not null;default:'text';index" json:"source_kind"` // text|markdown|html|transcript
	Title      string `gorm:"type:text;not null;default:''" json:"title"`
	RawText    string `gorm:"type:text;not null" json:"raw_text"`

	BuildVersion string         `gorm:"type:text;not null;index" json:"build_version"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "graphrag_document" }
