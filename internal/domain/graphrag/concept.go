package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Concept is a canonical entity/topic node. Key is the normalized name used
// for idempotent upserts across ingestion runs; Embedding backs vector
// recall during entity linking and retrieval.
type Concept struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Key         string         `gorm:"type:text;not null;uniqueIndex" json:"key"`
	Name        string         `gorm:"type:text;not null;index" json:"name"`
	Type        string         `gorm:"type:text;not null;default:'unknown';index" json:"type"`
	Domain      string         `gorm:"type:text;not null;default:''" json:"domain"`
	Description string         `gorm:"type:text;not null;default:''" json:"description"`
	Embedding   datatypes.JSON `gorm:"type:jsonb" json:"embedding,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	// MergedIntoID is nil for a live concept and set to the winner's ID once
	// Stage 8's merge() feedback operation has redirected this concept away,
	// the same live/redirect-shell shape Claim.CanonicalID uses.
	MergedIntoID *uuid.UUID `gorm:"column:merged_into_id;type:uuid;index" json:"merged_into_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Concept) TableName() string { return "graphrag_concept" }

// Alias maps a surface form to a Concept. The same surface form may legally
// map to more than one Concept (ambiguous alias); linking picks among them.
// Negative marks a surface->concept pair Stage 8's unlink() feedback has
// forbidden for a document's context; the dictionary compiler drops
// negative rows instead of registering them as lookup hits.
type Alias struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConceptID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_alias_concept_surface,unique,priority:1" json:"concept_id"`
	Concept   *Concept  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConceptID;references:ID" json:"concept,omitempty"`

	Surface       string `gorm:"type:text;not null;index;index:idx_alias_concept_surface,unique,priority:2" json:"surface"`
	SurfaceNorm   string `gorm:"column:surface_norm;type:text;not null;index" json:"surface_norm"`
	Source        string `gorm:"type:text;not null;default:'extracted'" json:"source"` // seed|extracted|feedback
	Confidence    float64 `gorm:"not null;default:0.7" json:"confidence"`
	DocID         *uuid.UUID `gorm:"column:doc_id;type:uuid;index" json:"doc_id,omitempty"`
	Negative      bool    `gorm:"not null;default:false;index" json:"negative"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Alias) TableName() string { return "graphrag_alias" }

// Mention is the MENTIONS edge: a Chunk referring to a Concept, with the
// surface form and character span that triggered the link plus its linking
// decision (accept/review/nil) and confidence.
type Mention struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID   uuid.UUID `gorm:"type:uuid;not null;index;index:idx_mention_chunk_span,unique,priority:1" json:"chunk_id"`
	ConceptID uuid.UUID `gorm:"type:uuid;not null;index" json:"concept_id"`

	Surface    string  `gorm:"type:text;not null;index:idx_mention_chunk_span,unique,priority:2" json:"surface"`
	SpanStart  int     `gorm:"column:span_start;not null;index:idx_mention_chunk_span,unique,priority:3" json:"span_start"`
	SpanEnd    int     `gorm:"column:span_end;not null" json:"span_end"`
	Decision   string  `gorm:"type:text;not null;default:'review'" json:"decision"` // accept|review|nil
	Confidence float64 `gorm:"not null;default:0" json:"confidence"`
	Method     string  `gorm:"type:text;not null;default:''" json:"method"` // alias|lexical|vector|llm

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Mention) TableName() string { return "graphrag_mention" }

// ConceptRelation is a typed, governed edge between two concepts (e.g.
// PART_OF, SIMILAR_TO), produced when the entity linker surfaces a
// (subject, predicate_text, object) triple whose subject and object both
// link to a Concept and whose predicate clears the same governance pass
// used for claim-to-claim relations.
type ConceptRelation struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceConceptID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_concept_relation,unique,priority:1" json:"source_concept_id"`
	TargetConceptID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_concept_relation,unique,priority:2" json:"target_concept_id"`
	Predicate       string    `gorm:"type:text;not null;index:idx_concept_relation,unique,priority:3" json:"predicate"`
	RawPredicate    string    `gorm:"column:raw_predicate;type:text;not null;default:''" json:"raw_predicate"`
	Confidence      float64   `gorm:"not null;default:0.7" json:"confidence"`

	Evidence datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"evidence"`

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConceptRelation) TableName() string { return "graphrag_concept_relation" }
