package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Claim is an atomic, grounded statement extracted from a Chunk. NormHash is
// the normalized-text dedup key, unique per DocumentID so that two different
// documents making the same statement each get their own row; CanonicalID,
// when set, redirects readers to the claim this one was merged into within
// the same document (§8 claim redirection invariant).
type Claim struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ChunkID    uuid.UUID `gorm:"type:uuid;not null;index" json:"chunk_id"`
	Chunk      *Chunk    `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_claim_doc_hash,unique,priority:1" json:"document_id"`

	NormHash   string  `gorm:"column:norm_hash;type:text;not null;index:idx_claim_doc_hash,unique,priority:2" json:"norm_hash"`
	Text       string  `gorm:"type:text;not null" json:"text"`
	Modality   string  `gorm:"type:text;not null;default:'assertive'" json:"modality"` // assertive|hedged|speculative
	Confidence float64 `gorm:"not null;default:0.7" json:"confidence"`
	Embedding  datatypes.JSON `gorm:"type:jsonb" json:"embedding,omitempty"`

	// CanonicalID is nil for a surviving claim and set to the winner's ID for
	// a claim that was deduplicated away; readers must follow this redirect.
	CanonicalID *uuid.UUID `gorm:"type:uuid;index" json:"canonical_id,omitempty"`

	Evidence datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"evidence"`
	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Claim) TableName() string { return "graphrag_claim" }

// ClaimConcept is the ABOUT_CONCEPT edge linking a claim to the concepts it
// discusses.
type ClaimConcept struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ClaimID   uuid.UUID `gorm:"type:uuid;not null;index;index:idx_claim_concept,unique,priority:1" json:"claim_id"`
	ConceptID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_claim_concept,unique,priority:2" json:"concept_id"`
	Weight    float64   `gorm:"not null;default:1" json:"weight"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ClaimConcept) TableName() string { return "graphrag_claim_concept" }

// ClaimRelation is a typed, governed edge between two claims (e.g.
// SUPPORTS, CONTRADICTS, ELABORATES) after predicate governance has mapped
// the surface predicate onto the whitelist or rejected it as OTHER.
type ClaimRelation struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceClaimID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_claim_relation,unique,priority:1" json:"source_claim_id"`
	TargetClaimID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_claim_relation,unique,priority:2" json:"target_claim_id"`
	Predicate     string    `gorm:"type:text;not null;index:idx_claim_relation,unique,priority:3" json:"predicate"`
	RawPredicate  string    `gorm:"column:raw_predicate;type:text;not null;default:''" json:"raw_predicate"`
	Confidence    float64   `gorm:"not null;default:0.7" json:"confidence"`

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ClaimRelation) TableName() string { return "graphrag_claim_relation" }

// PredicateReview is a rejected (OTHER) surface predicate, queued for human
// or feedback-driven governance rather than ever written as a graph edge
// label. The governor runs over both claim-pairs and concept-pairs against
// the same whitelist, so exactly one of the Claim/Concept ID pairs is set,
// discriminated by SubjectType.
type PredicateReview struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectType string    `gorm:"column:subject_type;type:text;not null;default:'claim'" json:"subject_type"` // claim|concept

	SourceClaimID *uuid.UUID `gorm:"type:uuid;index" json:"source_claim_id,omitempty"`
	TargetClaimID *uuid.UUID `gorm:"type:uuid;index" json:"target_claim_id,omitempty"`

	SourceConceptID *uuid.UUID `gorm:"type:uuid;index" json:"source_concept_id,omitempty"`
	TargetConceptID *uuid.UUID `gorm:"type:uuid;index" json:"target_concept_id,omitempty"`

	RawPredicate string `gorm:"column:raw_predicate;type:text;not null" json:"raw_predicate"`
	Reason       string `gorm:"type:text;not null;default:''" json:"reason"` // unmatched|type_violation
	Resolved     bool   `gorm:"not null;default:false;index" json:"resolved"`

	BuildVersion string    `gorm:"type:text;not null;index" json:"build_version"`
	CreatedAt    time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (PredicateReview) TableName() string { return "graphrag_predicate_review" }

// PredicateCorrectionCount tracks how many times a reviewer has corrected
// the same raw surface predicate to the same canonical predicate, so the
// governor's mapping table can be updated once the count clears the
// configured recurrence threshold.
type PredicateCorrectionCount struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RawPredicate    string    `gorm:"column:raw_predicate;type:text;not null;index:idx_predicate_correction,unique,priority:1" json:"raw_predicate"`
	CanonicalTarget string    `gorm:"column:canonical_target;type:text;not null;index:idx_predicate_correction,unique,priority:2" json:"canonical_target"`
	Count           int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt       time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PredicateCorrectionCount) TableName() string { return "graphrag_predicate_correction_count" }
