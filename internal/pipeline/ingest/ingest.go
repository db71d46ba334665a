// Package ingest wires Stages 0-5 into the single synchronous call one
// document's build runs through: chunk, resolve coreference, link entities,
// extract claims, build themes over the linked concepts and extracted
// claims, then govern both stages' candidate relations onto the predicate
// whitelist. The assembled BuildResult is handed to the caller for
// persistence and graph sync (Stage 6), which this package does not do
// itself. No stage here reaches past *pipeline.Context for a dependency;
// the orchestrator only sequences calls and merges their results.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/chunker"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/claims"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/coref"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/linker"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/predicates"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/run"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/themes"
	"github.com/yungbote/neurobridge-backend/internal/platform/docparse"
)

// Build runs one document through Stages 0-5 and returns the assembled
// BuildResult Stage 6 (the caller) persists to Postgres and syncs to Neo4j.
// tracker may be nil; when set, each stage reports its own progress onto it
// so a status endpoint can show where a long-running build currently is.
func Build(ctx context.Context, pctx *pipeline.Context, doc *domain.Document, parsed *docparse.Parsed, governor *predicates.Governor, tracker *run.Run) (*pipeline.BuildResult, error) {
	result := &pipeline.BuildResult{Document: doc, StartedAt: time.Now().UTC()}
	progress(tracker, "chunk", 5, "splitting document into chunks")

	chunkCfg := chunker.DefaultConfig()
	if pctx.Config != nil {
		chunkCfg.WindowSentences = pctx.Config.Thresholds.ChunkingI("window_size", chunkCfg.WindowSentences)
		chunkCfg.StrideSentences = pctx.Config.Thresholds.ChunkingI("step_size", chunkCfg.StrideSentences)
		chunkCfg.MinChars = pctx.Config.Thresholds.ChunkingI("min_chunk_chars", chunkCfg.MinChars)
	}
	chunks := chunker.Chunk(doc, parsed, chunkCfg, pctx.BuildVersion())
	result.Chunks = chunks
	if len(chunks) == 0 {
		result.FinishedAt = time.Now().UTC()
		return result, nil
	}
	embedChunks(ctx, pctx, chunks)

	progress(tracker, "coref", 15, "resolving coreference within chunks")
	resolvedText := resolveCoref(pctx, chunks)

	progress(tracker, "link", 30, "linking entity mentions to concepts")
	linkResult, err := linker.Link(ctx, pctx, chunks, resolvedText)
	if err != nil {
		return nil, fmt.Errorf("ingest: link: %w", err)
	}
	result.Concepts = linkResult.Concepts
	result.Aliases = linkResult.Aliases
	result.Mentions = linkResult.Mentions
	embedConcepts(ctx, pctx, linkResult.Concepts)

	progress(tracker, "claims", 45, "extracting claims and inter-claim relations")
	claimResult, err := claims.Extract(ctx, pctx, chunks, resolvedText)
	if err != nil {
		return nil, fmt.Errorf("ingest: claims: %w", err)
	}
	embedClaims(ctx, pctx, claimResult.Claims)

	progress(tracker, "themes", 60, "detecting concept communities and building themes")
	themeResult, err := themes.Build(ctx, pctx, doc.ID, linkResult, claimResult)
	if err != nil {
		return nil, fmt.Errorf("ingest: themes: %w", err)
	}
	result.Claims = claimResult.Claims
	result.ClaimConcepts = claimResult.ClaimConcepts
	result.Themes = themeResult.Themes
	result.ThemeMembers = themeResult.Members

	progress(tracker, "govern", 75, "governing candidate relations onto the predicate whitelist")
	claimRelations, claimReviews := governor.GovernClaimTriples(ctx, pctx, claimResult.CandidateTriples)

	conceptTypes, err := conceptTypeIndex(ctx, pctx, linkResult.Concepts, linkResult.CandidateTriples)
	if err != nil {
		return nil, fmt.Errorf("ingest: load concept types: %w", err)
	}
	conceptRelations, conceptReviews := governor.GovernConceptTriples(ctx, pctx, linkResult.CandidateTriples, conceptTypes)

	result.ClaimRelations = claimRelations
	result.ConceptRelations = conceptRelations
	result.PredicateReviews = append(claimReviews, conceptReviews...)

	result.FinishedAt = time.Now().UTC()
	progress(tracker, "assembled", 90, "build result assembled, ready for persistence")
	return result, nil
}

// resolveCoref runs Stage 1 over every chunk independently (it has no
// cross-chunk state) and collects the rewritten text only for chunks whose
// mode actually substituted something, the same ModeRewrite gate the
// resolver's own doc comment describes.
func resolveCoref(pctx *pipeline.Context, chunks []*domain.Chunk) map[uuid.UUID]string {
	th := coref.DefaultThresholds()
	if pctx.Config != nil {
		t := pctx.Config.Thresholds
		th.RewriteMinCoverage = t.CorefF("rewrite_min_coverage", th.RewriteMinCoverage)
		th.RewriteMaxConflict = t.CorefF("rewrite_max_conflict", th.RewriteMaxConflict)
		th.LocalMinCoverage = t.CorefF("local_min_coverage", th.LocalMinCoverage)
		th.LocalWindow = t.CorefI("local_window", th.LocalWindow)
		th.MaxAntecedentDist = t.CorefI("max_antecedent_distance", th.MaxAntecedentDist)
	}

	out := map[uuid.UUID]string{}
	for _, c := range chunks {
		res := coref.Resolve(c, th)
		if res.Mode == coref.ModeRewrite && res.ResolvedText != "" {
			out[c.ID] = res.ResolvedText
		}
	}
	return out
}

// conceptTypeIndex builds a concept-ID -> node-type map for governance's
// type-constraint check. Newly linked concepts already carry their Type in
// memory; triples whose endpoints resolved to a pre-existing concept need a
// batch lookup since the linker only returns concepts it created this run.
func conceptTypeIndex(ctx context.Context, pctx *pipeline.Context, newConcepts []*domain.Concept, triples []pipeline.ConceptTriple) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(newConcepts))
	for _, c := range newConcepts {
		if c != nil {
			out[c.ID] = c.Type
		}
	}

	var missing []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, t := range triples {
		for _, id := range [2]uuid.UUID{t.SourceConceptID, t.TargetConceptID} {
			if _, ok := out[id]; !ok && !seen[id] {
				seen[id] = true
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 || pctx.Concepts == nil {
		return out, nil
	}

	found, err := pctx.Concepts.GetByIDs(ctx, pctx.Postgres, missing)
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		if c != nil {
			out[c.ID] = c.Type
		}
	}
	return out, nil
}

// embedChunks fills each new chunk's Embedding column so it is eligible for
// theme-first and claim/chunk vector recall as soon as Stage 6 commits it.
func embedChunks(ctx context.Context, pctx *pipeline.Context, chunks []*domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := pipeline.EmbedBatch(ctx, pctx, texts)
	for i, c := range chunks {
		c.Embedding = vectors[i]
	}
}

// embedConcepts only embeds concepts the linker minted this run; a concept
// resolved onto an existing row keeps whatever embedding it already has.
func embedConcepts(ctx context.Context, pctx *pipeline.Context, concepts []*domain.Concept) {
	if len(concepts) == 0 {
		return
	}
	texts := make([]string, len(concepts))
	for i, c := range concepts {
		texts[i] = c.Name + ". " + c.Description
	}
	vectors := pipeline.EmbedBatch(ctx, pctx, texts)
	for i, c := range concepts {
		c.Embedding = vectors[i]
	}
}

func embedClaims(ctx context.Context, pctx *pipeline.Context, claims []*domain.Claim) {
	if len(claims) == 0 {
		return
	}
	texts := make([]string, len(claims))
	for i, c := range claims {
		texts[i] = c.Text
	}
	vectors := pipeline.EmbedBatch(ctx, pctx, texts)
	for i, c := range claims {
		c.Embedding = vectors[i]
	}
}

func progress(tracker *run.Run, stage string, pct float64, message string) {
	if tracker != nil {
		tracker.Progress(stage, pct, message)
	}
}
