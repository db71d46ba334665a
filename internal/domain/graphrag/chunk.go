package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk is a sentence-windowed slice of a Document, carrying the section
// heading path it was extracted under and the sentence IDs it spans. Every
// downstream provenance edge bottoms out at a Chunk.
type Chunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chunk_doc_index,unique,priority:1" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	ChunkIndex   int            `gorm:"column:chunk_index;not null;index:idx_chunk_doc_index,unique,priority:2" json:"chunk_index"`
	Text         string         `gorm:"type:text;not null" json:"text"`
	SectionPath  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"section_path"`
	SentenceIDs  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"sentence_ids"`
	WindowStart  int            `gorm:"column:window_start;not null" json:"window_start"`
	WindowEnd    int            `gorm:"column:window_end;not null" json:"window_end"`
	Embedding    datatypes.JSON `gorm:"type:jsonb" json:"embedding,omitempty"`
	BuildVersion string         `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Chunk) TableName() string { return "graphrag_chunk" }

// Evidence is the four-level provenance tuple every extracted node/edge must
// carry: which document, which chunk, where in the section tree, and which
// sentences within the chunk actually support the claim.
type Evidence struct {
	DocID       string   `json:"doc_id"`
	ChunkID     string   `json:"chunk_id"`
	SectionPath []string `json:"section_path"`
	SentenceIDs []string `json:"sentence_ids"`
}
