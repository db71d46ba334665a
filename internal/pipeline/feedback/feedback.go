// Package feedback implements Stage 8 (Metrics & Feedback): computing a
// document build's health metrics and the three reviewer write operations
// that close the loop back into ingestion - merge(), correct(), and
// unlink(). Nothing here recomputes a build; every write is a direct,
// targeted mutation against already-persisted rows.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/predicates"
)

// causalMarkers and contrastMarkers mirror the lexical signal-phrase check
// claims.Extract uses to corroborate CAUSES/CONTRADICTS relations; here the
// same technique runs in reverse, scoring how many already-governed claim
// relations are actually backed by such a marker in their claims' text.
var causalMarkers = []string{"because", "therefore", "as a result", "due to", "leads to", "causes"}
var contrastMarkers = []string{"however", "in contrast", "on the other hand", "but ", "whereas"}

// ComputeMetrics assembles a MetricsSnapshot for one document's build by
// reading back everything Stage 6 persisted for it - no recomputation of
// the pipeline itself, only aggregation over already-committed rows.
func ComputeMetrics(ctx context.Context, pctx *pipeline.Context, documentID uuid.UUID, buildVersion string) (*domain.MetricsSnapshot, error) {
	if pctx == nil || pctx.Chunks == nil {
		return nil, fmt.Errorf("feedback: metrics require a chunk repo")
	}

	chunks, err := pctx.Chunks.GetByDocumentID(ctx, pctx.Postgres, documentID)
	if err != nil {
		return nil, fmt.Errorf("feedback: load chunks: %w", err)
	}
	chunkIDs := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		if c != nil {
			chunkIDs = append(chunkIDs, c.ID)
		}
	}

	claims, conceptIDs, err := loadClaimsAndConcepts(ctx, pctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	claimIDs := make([]uuid.UUID, 0, len(claims))
	for _, c := range claims {
		claimIDs = append(claimIDs, c.ID)
	}

	claimRelations, conceptRelations, err := loadRelations(ctx, pctx, claimIDs, conceptIDs)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.MetricsSnapshot{
		DocumentID:   documentID,
		BuildVersion: buildVersion,
	}
	snapshot.IsolatedNodeRatio, snapshot.AvgDegree = degreeStats(claimIDs, conceptIDs, claimRelations, conceptRelations)
	snapshot.OtherPredicateRatio = otherPredicateRatio(ctx, pctx, buildVersion, len(claimRelations)+len(conceptRelations))
	snapshot.AliasCount = aliasCount(ctx, pctx)
	snapshot.Modularity = averageModularity(ctx, pctx, documentID)
	snapshot.EntityLinkAccuracy = entityLinkAccuracy(ctx, pctx, buildVersion)
	snapshot.ClaimRelationPrecision = claimRelationPrecision(claims, claimRelations)
	snapshot.ProvenanceCompleteness = provenanceCompleteness(claims, chunkIDs)
	// ThemeNMI needs an externally supplied ground-truth partition the
	// closed system has no source for; it is left at its zero value until a
	// caller with labeled data provides one via a future comparison pass.

	if pctx.MetricsSnapshots != nil {
		if _, err := pctx.MetricsSnapshots.Create(ctx, pctx.Postgres, snapshot); err != nil {
			return nil, fmt.Errorf("feedback: persist metrics snapshot: %w", err)
		}
	}
	return snapshot, nil
}

func loadClaimsAndConcepts(ctx context.Context, pctx *pipeline.Context, chunkIDs []uuid.UUID) ([]*domain.Claim, []uuid.UUID, error) {
	var claims []*domain.Claim
	if pctx.Claims != nil && len(chunkIDs) > 0 {
		var err error
		claims, err = pctx.Claims.GetByChunkIDs(ctx, pctx.Postgres, chunkIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("feedback: load claims: %w", err)
		}
	}

	var conceptIDs []uuid.UUID
	if pctx.Mentions != nil && len(chunkIDs) > 0 {
		mentions, err := pctx.Mentions.GetByChunkIDs(ctx, pctx.Postgres, chunkIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("feedback: load mentions: %w", err)
		}
		seen := map[uuid.UUID]bool{}
		for _, m := range mentions {
			if m != nil && !seen[m.ConceptID] {
				seen[m.ConceptID] = true
				conceptIDs = append(conceptIDs, m.ConceptID)
			}
		}
	}
	return claims, conceptIDs, nil
}

func loadRelations(ctx context.Context, pctx *pipeline.Context, claimIDs, conceptIDs []uuid.UUID) ([]*domain.ClaimRelation, []*domain.ConceptRelation, error) {
	var claimRelations []*domain.ClaimRelation
	if pctx.ClaimRelations != nil && len(claimIDs) > 0 {
		var err error
		claimRelations, err = pctx.ClaimRelations.GetByClaimIDs(ctx, pctx.Postgres, claimIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("feedback: load claim relations: %w", err)
		}
	}
	var conceptRelations []*domain.ConceptRelation
	if pctx.ConceptRelations != nil && len(conceptIDs) > 0 {
		var err error
		conceptRelations, err = pctx.ConceptRelations.GetByConceptIDs(ctx, pctx.Postgres, conceptIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("feedback: load concept relations: %w", err)
		}
	}
	return claimRelations, conceptRelations, nil
}

// degreeStats computes isolated-node ratio and average degree over the
// combined claim+concept node set, treating each governed relation as one
// undirected edge contributing to both endpoints' degree.
func degreeStats(claimIDs, conceptIDs []uuid.UUID, claimRelations []*domain.ClaimRelation, conceptRelations []*domain.ConceptRelation) (isolatedRatio float64, avgDegree float64) {
	degree := map[uuid.UUID]int{}
	for _, id := range claimIDs {
		degree[id] = 0
	}
	for _, id := range conceptIDs {
		degree[id] = 0
	}
	for _, r := range claimRelations {
		if r == nil {
			continue
		}
		degree[r.SourceClaimID]++
		degree[r.TargetClaimID]++
	}
	for _, r := range conceptRelations {
		if r == nil {
			continue
		}
		degree[r.SourceConceptID]++
		degree[r.TargetConceptID]++
	}

	if len(degree) == 0 {
		return 0, 0
	}
	isolated, total := 0, 0
	for _, d := range degree {
		total += d
		if d == 0 {
			isolated++
		}
	}
	return float64(isolated) / float64(len(degree)), float64(total) / float64(len(degree))
}

func otherPredicateRatio(ctx context.Context, pctx *pipeline.Context, buildVersion string, governedCount int) float64 {
	if pctx.PredicateReviews == nil {
		return 0
	}
	rejected, err := pctx.PredicateReviews.CountUnresolved(ctx, pctx.Postgres, buildVersion)
	if err != nil {
		return 0
	}
	total := governedCount + int(rejected)
	if total == 0 {
		return 0
	}
	return float64(rejected) / float64(total)
}

func aliasCount(ctx context.Context, pctx *pipeline.Context) int {
	if pctx.Aliases == nil {
		return 0
	}
	n, err := pctx.Aliases.Count(ctx, pctx.Postgres)
	if err != nil {
		return 0
	}
	return int(n)
}

func averageModularity(ctx context.Context, pctx *pipeline.Context, documentID uuid.UUID) float64 {
	if pctx.Themes == nil {
		return 0
	}
	themes, err := pctx.Themes.GetByDocumentID(ctx, pctx.Postgres, documentID)
	if err != nil || len(themes) == 0 {
		return 0
	}
	var sum float64
	for _, t := range themes {
		if t != nil {
			sum += t.Modularity
		}
	}
	return sum / float64(len(themes))
}

// entityLinkAccuracy has no labeled gold-mention set anywhere in this
// closed system, so it proxies accuracy with the accepted share of
// mentions: a mention Stage 2 accepted outright is the closest available
// stand-in for "linked correctly" without a human-annotated benchmark.
func entityLinkAccuracy(ctx context.Context, pctx *pipeline.Context, buildVersion string) float64 {
	if pctx.Mentions == nil {
		return 0
	}
	counts, err := pctx.Mentions.CountByDecision(ctx, pctx.Postgres, buildVersion)
	if err != nil {
		return 0
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(counts["accept"]) / float64(total)
}

// claimRelationPrecision checks each CAUSES/CONTRADICTS claim relation
// against its source claim's own text for the corroborating marker phrase,
// the same signal-phrase technique claims.Extract's nliDowngrade applies at
// extraction time, run here as a post-hoc audit over what actually made it
// into the graph.
func claimRelationPrecision(claims []*domain.Claim, relations []*domain.ClaimRelation) float64 {
	if len(relations) == 0 {
		return 1
	}
	textByID := make(map[uuid.UUID]string, len(claims))
	for _, c := range claims {
		if c != nil {
			textByID[c.ID] = c.Text
		}
	}

	checked, corroborated := 0, 0
	for _, r := range relations {
		if r == nil {
			continue
		}
		markers, needsCheck := markersFor(r.Predicate)
		if !needsCheck {
			continue
		}
		checked++
		text := strings.ToLower(textByID[r.SourceClaimID] + " " + textByID[r.TargetClaimID])
		if containsAny(text, markers) {
			corroborated++
		}
	}
	if checked == 0 {
		return 1
	}
	return float64(corroborated) / float64(checked)
}

func markersFor(predicate string) ([]string, bool) {
	switch predicate {
	case "CAUSES":
		return causalMarkers, true
	case "CONTRADICTS":
		return contrastMarkers, true
	default:
		return nil, false
	}
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

// provenanceCompleteness is the fraction of claims whose Evidence points at
// a chunk that actually exists among the document's own chunks - the
// resolvable EVIDENCE_FROM chain check.
func provenanceCompleteness(claims []*domain.Claim, chunkIDs []uuid.UUID) float64 {
	if len(claims) == 0 {
		return 1
	}
	known := make(map[uuid.UUID]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		known[id] = true
	}
	resolvable := 0
	for _, c := range claims {
		if c != nil && known[c.ChunkID] {
			resolvable++
		}
	}
	return float64(resolvable) / float64(len(claims))
}

// Merge redirects sourceID's aliases, mentions, and concept relations onto
// targetID and marks sourceID with MergedIntoID, the concept-side analogue
// of Claim.CanonicalID redirection. It is idempotent: merging an
// already-merged concept a second time is a no-op past the first pass since
// its rows have already moved.
func Merge(ctx context.Context, pctx *pipeline.Context, sourceID, targetID uuid.UUID) error {
	if pctx == nil || pctx.Postgres == nil {
		return fmt.Errorf("feedback: merge requires a database handle")
	}
	if sourceID == uuid.Nil || targetID == uuid.Nil || sourceID == targetID {
		return fmt.Errorf("feedback: merge requires two distinct concepts")
	}

	err := pctx.Postgres.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pctx.Aliases != nil {
			if err := pctx.Aliases.ReassignConcept(ctx, tx, sourceID, targetID); err != nil {
				return fmt.Errorf("reassign aliases: %w", err)
			}
		}
		if pctx.Mentions != nil {
			if err := pctx.Mentions.ReassignConcept(ctx, tx, sourceID, targetID); err != nil {
				return fmt.Errorf("reassign mentions: %w", err)
			}
		}
		if pctx.ConceptRelations != nil {
			if err := pctx.ConceptRelations.ReassignConcept(ctx, tx, sourceID, targetID); err != nil {
				return fmt.Errorf("reassign concept relations: %w", err)
			}
		}
		if pctx.Concepts != nil {
			if err := pctx.Concepts.UpdateFields(ctx, tx, sourceID, map[string]any{"merged_into_id": targetID}); err != nil {
				return fmt.Errorf("mark merged: %w", err)
			}
		}
		if pctx.FeedbackEvents != nil {
			payload, _ := jsonMarshal(map[string]any{"target_concept_id": targetID})
			if _, err := pctx.FeedbackEvents.Create(ctx, tx, &domain.FeedbackEvent{
				Kind:       "merge",
				TargetType: "concept",
				TargetID:   sourceID,
				Payload:    payload,
			}); err != nil {
				return fmt.Errorf("record feedback event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("feedback: merge: %w", err)
	}
	return nil
}

// Correct overrides a governed relation's predicate directly. kind selects
// which repo owns edgeID ("claim" or "concept"). Once rawPredicate has been
// corrected to the same canonical target enough times to clear
// predicate_governance.correction_recurrence_threshold, the governor's
// mapping table is updated in place so future documents resolve that
// surface without a review round-trip.
func Correct(ctx context.Context, pctx *pipeline.Context, governor *predicates.Governor, kind string, edgeID uuid.UUID, rawPredicate, newPredicate string) error {
	if pctx == nil || pctx.Postgres == nil {
		return fmt.Errorf("feedback: correct requires a database handle")
	}
	newPredicate = strings.ToUpper(strings.TrimSpace(newPredicate))
	if newPredicate == "" {
		return fmt.Errorf("feedback: correct requires a non-empty predicate")
	}

	switch kind {
	case "claim":
		if pctx.ClaimRelations == nil {
			return fmt.Errorf("feedback: no claim relation repo configured")
		}
		if err := pctx.ClaimRelations.UpdatePredicate(ctx, pctx.Postgres, edgeID, newPredicate); err != nil {
			return fmt.Errorf("feedback: correct claim relation: %w", err)
		}
	case "concept":
		if pctx.ConceptRelations == nil {
			return fmt.Errorf("feedback: no concept relation repo configured")
		}
		if err := pctx.ConceptRelations.UpdatePredicate(ctx, pctx.Postgres, edgeID, newPredicate); err != nil {
			return fmt.Errorf("feedback: correct concept relation: %w", err)
		}
	default:
		return fmt.Errorf("feedback: unknown correction kind %q", kind)
	}

	if pctx.FeedbackEvents != nil {
		payload, _ := jsonMarshal(map[string]any{"raw_predicate": rawPredicate, "new_predicate": newPredicate})
		if _, err := pctx.FeedbackEvents.Create(ctx, pctx.Postgres, &domain.FeedbackEvent{
			Kind:       "correct",
			TargetType: kind,
			TargetID:   edgeID,
			Payload:    payload,
		}); err != nil {
			return fmt.Errorf("feedback: record correction event: %w", err)
		}
	}

	if pctx.PredicateCorrections == nil || rawPredicate == "" {
		return nil
	}
	count, err := pctx.PredicateCorrections.Increment(ctx, pctx.Postgres, rawPredicate, newPredicate)
	if err != nil {
		return fmt.Errorf("feedback: increment correction count: %w", err)
	}
	threshold := 3
	if pctx.Config != nil {
		threshold = int(pctx.Config.Thresholds.PredicatesF("correction_recurrence_threshold", float64(threshold)))
	}
	if count >= threshold && governor != nil {
		if err := governor.AddMapping(rawPredicate, newPredicate); err != nil {
			return fmt.Errorf("feedback: update governor mapping: %w", err)
		}
	}
	return nil
}

// Unlink forbids the surface form a mention used from resolving to that
// concept again within the mention's document, by writing a negative
// Alias row rather than deleting anything already persisted.
func Unlink(ctx context.Context, pctx *pipeline.Context, mentionID uuid.UUID) error {
	if pctx == nil || pctx.Mentions == nil || pctx.Aliases == nil {
		return fmt.Errorf("feedback: unlink requires mention and alias repos")
	}
	mention, err := pctx.Mentions.GetByID(ctx, pctx.Postgres, mentionID)
	if err != nil {
		return fmt.Errorf("feedback: load mention: %w", err)
	}
	if mention == nil {
		return fmt.Errorf("feedback: mention %s not found", mentionID)
	}

	var docID *uuid.UUID
	if pctx.Chunks != nil {
		if chunks, err := pctx.Chunks.GetByIDs(ctx, pctx.Postgres, []uuid.UUID{mention.ChunkID}); err == nil && len(chunks) == 1 && chunks[0] != nil {
			id := chunks[0].DocumentID
			docID = &id
		}
	}

	negative := &domain.Alias{
		ConceptID:   mention.ConceptID,
		Surface:     mention.Surface,
		SurfaceNorm: strings.ToLower(strings.TrimSpace(mention.Surface)),
		Source:      "feedback",
		Confidence:  0,
		DocID:       docID,
		Negative:    true,
	}
	if _, err := pctx.Aliases.Create(ctx, pctx.Postgres, []*domain.Alias{negative}); err != nil {
		return fmt.Errorf("feedback: create negative alias: %w", err)
	}

	if pctx.FeedbackEvents != nil {
		if _, err := pctx.FeedbackEvents.Create(ctx, pctx.Postgres, &domain.FeedbackEvent{
			Kind:       "unlink",
			TargetType: "mention",
			TargetID:   mentionID,
		}); err != nil {
			return fmt.Errorf("feedback: record unlink event: %w", err)
		}
	}
	return nil
}

func jsonMarshal(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
