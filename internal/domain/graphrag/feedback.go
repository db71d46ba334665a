package graphrag

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FeedbackEvent records one reviewer action against the graph: merging two
// concepts/claims, correcting a predicate, or unlinking a mention. It is the
// audit record of those actions; how often a predicate correction has
// recurred is counted separately, through PredicateCorrectionRepo.
type FeedbackEvent struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Kind       string         `gorm:"type:text;not null;index" json:"kind"` // merge|correct|unlink
	TargetType string         `gorm:"column:target_type;type:text;not null" json:"target_type"`
	TargetID   uuid.UUID      `gorm:"column:target_id;type:uuid;not null;index" json:"target_id"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	ReviewerID string         `gorm:"column:reviewer_id;type:text;not null;default:''" json:"reviewer_id"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (FeedbackEvent) TableName() string { return "graphrag_feedback_event" }

// MetricsSnapshot is the structured output of a single Stage 8 metrics
// computation over one document's build.
type MetricsSnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	BuildVersion string `gorm:"type:text;not null;index" json:"build_version"`

	IsolatedNodeRatio     float64 `gorm:"column:isolated_node_ratio" json:"isolated_node_ratio"`
	AvgDegree             float64 `gorm:"column:avg_degree" json:"avg_degree"`
	OtherPredicateRatio   float64 `gorm:"column:other_predicate_ratio" json:"other_predicate_ratio"`
	AliasCount            int     `gorm:"column:alias_count" json:"alias_count"`
	Modularity            float64 `gorm:"column:modularity" json:"modularity"`
	EntityLinkAccuracy    float64 `gorm:"column:entity_link_accuracy" json:"entity_link_accuracy"`
	ThemeNMI              float64 `gorm:"column:theme_nmi" json:"theme_nmi"`
	ClaimRelationPrecision float64 `gorm:"column:claim_relation_precision" json:"claim_relation_precision"`
	ProvenanceCompleteness float64 `gorm:"column:provenance_completeness" json:"provenance_completeness"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (MetricsSnapshot) TableName() string { return "graphrag_metrics_snapshot" }
