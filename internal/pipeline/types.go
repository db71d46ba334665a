// Package pipeline defines the shared, dependency-injected context and
// immutable per-stage result types the eight ingestion stages pass to one
// another. No stage reaches for a global singleton: everything it needs
// arrives through *Context or a stage's own result struct.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
)

// ChunkResult is Stage 0's output: the document and its chunk set.
type ChunkResult struct {
	Document *domain.Document
	Chunks   []*domain.Chunk
}

// CorefResult is Stage 1's output: each chunk's text after coreference
// substitution, keyed by chunk ID so downstream stages can look up the
// resolved form without re-threading the whole slice.
type CorefResult struct {
	ResolvedTextByChunkID map[uuid.UUID]string
	Substitutions         int
}

// LinkResult is Stage 2's output: concepts touched or created, plus every
// mention (accepted, review, or nil) for provenance and metrics.
// CandidateTriples carries (subject, predicate_text, object) triples whose
// subject and object both resolved to a Concept, for Stage 5 to govern
// into ConceptRelations.
type LinkResult struct {
	Concepts         []*domain.Concept
	Aliases          []*domain.Alias
	Mentions         []*domain.Mention
	CandidateTriples []ConceptTriple
}

// ConceptTriple is an unresolved-predicate candidate edge between two
// concepts, surfaced by the entity linker from a sentence where both the
// subject and object surface forms linked to a Concept.
type ConceptTriple struct {
	SourceConceptID uuid.UUID
	TargetConceptID uuid.UUID
	RawPredicate    string
	Confidence      float64
	ChunkID         uuid.UUID
}

// ClaimResult is Stage 3a's output: claims after normalization and
// dedup, with CanonicalID already set on any claim that was redirected.
// CandidateTriples carries the LLM's proposed inter-claim relations, any
// NLI-downgraded RawPredicate already rewritten to RELATED_TO, for Stage 5
// to govern into ClaimRelations.
type ClaimResult struct {
	Claims           []*domain.Claim
	ClaimConcepts    []*domain.ClaimConcept
	CandidateTriples []ClaimTriple
}

// ClaimTriple is an unresolved-predicate candidate edge between two claims
// extracted from the same LLM window, restricted to the closed relation
// set {SUPPORTS, CONTRADICTS, CAUSES, COMPARES_WITH, CONDITIONS, RELATED_TO}
// before NLI downgrade, widened to free-text governance input afterward.
type ClaimTriple struct {
	SourceClaimID uuid.UUID
	TargetClaimID uuid.UUID
	RawPredicate  string
	Confidence    float64
}

// ThemeResult is Stage 4's output: detected communities plus their
// membership edges.
type ThemeResult struct {
	Themes  []*domain.Theme
	Members []*domain.ThemeMember
}

// GovernanceResult is Stage 5's output: governed inter-claim and
// inter-concept relations plus anything rejected to the review queue.
type GovernanceResult struct {
	ClaimRelations   []*domain.ClaimRelation
	ConceptRelations []*domain.ConceptRelation
	Reviews          []*domain.PredicateReview
}

// BuildResult is the terminal artifact of one document's run through
// Stages 0-5, handed to Stage 6 (Graph Service) for persistence.
type BuildResult struct {
	Document         *domain.Document
	Chunks           []*domain.Chunk
	Concepts         []*domain.Concept
	Aliases          []*domain.Alias
	Mentions         []*domain.Mention
	Claims           []*domain.Claim
	ClaimConcepts    []*domain.ClaimConcept
	ClaimRelations   []*domain.ClaimRelation
	ConceptRelations []*domain.ConceptRelation
	PredicateReviews []*domain.PredicateReview
	Themes           []*domain.Theme
	ThemeMembers     []*domain.ThemeMember

	StartedAt  time.Time
	FinishedAt time.Time
}
