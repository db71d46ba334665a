// Package graphservice implements Stage 6 (Graph Service): committing one
// document's assembled BuildResult to Postgres inside a single transaction
// (the system of record), then best-effort projecting it into Neo4j for
// Query Service's bounded-hop graph expansion. A Neo4j sync failure never
// rolls back the Postgres commit — the document is simply left eligible
// for re-sync on a later run, the same contract internal/data/graph already
// documents.
package graphservice

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-backend/internal/config"
	"github.com/yungbote/neurobridge-backend/internal/data/graph"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

// Persist writes a BuildResult's rows inside one Postgres transaction
// (Document is assumed already created by the caller during document
// intake, ahead of the pipeline run) and then syncs the result into Neo4j.
// It returns an error only for the Postgres commit; the Neo4j sync is
// logged and swallowed.
func Persist(ctx context.Context, pctx *pipeline.Context, result *pipeline.BuildResult) error {
	if pctx == nil || pctx.Postgres == nil || result == nil || result.Document == nil {
		return nil
	}

	err := pctx.Postgres.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := pctx.WithTx(tx)

		if _, err := txc.Chunks.Create(ctx, tx, result.Chunks); err != nil {
			return fmt.Errorf("chunks: %w", err)
		}
		if err := upsertConcepts(ctx, txc, result.Concepts); err != nil {
			return fmt.Errorf("concepts: %w", err)
		}
		if _, err := txc.Aliases.Create(ctx, tx, result.Aliases); err != nil {
			return fmt.Errorf("aliases: %w", err)
		}
		if _, err := txc.Mentions.Create(ctx, tx, result.Mentions); err != nil {
			return fmt.Errorf("mentions: %w", err)
		}
		if _, err := txc.Claims.Create(ctx, tx, result.Claims); err != nil {
			return fmt.Errorf("claims: %w", err)
		}
		if _, err := txc.ClaimConcepts.Create(ctx, tx, result.ClaimConcepts); err != nil {
			return fmt.Errorf("claim_concepts: %w", err)
		}
		if _, err := txc.ClaimRelations.Create(ctx, tx, result.ClaimRelations); err != nil {
			return fmt.Errorf("claim_relations: %w", err)
		}
		if _, err := txc.Themes.Create(ctx, tx, result.Themes); err != nil {
			return fmt.Errorf("themes: %w", err)
		}
		if _, err := txc.ThemeMembers.Create(ctx, tx, result.ThemeMembers); err != nil {
			return fmt.Errorf("theme_members: %w", err)
		}
		if _, err := txc.ConceptRelations.Create(ctx, tx, result.ConceptRelations); err != nil {
			return fmt.Errorf("concept_relations: %w", err)
		}
		if _, err := txc.PredicateReviews.Create(ctx, tx, result.PredicateReviews); err != nil {
			return fmt.Errorf("predicate_reviews: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("graphservice: persist: %w", err)
	}

	syncToNeo4j(ctx, pctx, result)
	indexEmbeddings(ctx, pctx, result)
	return nil
}

// Rollback deletes every row a prior Persist call tagged with (documentID,
// buildVersion) across both stores. Concepts and Aliases are never touched:
// both are shared, cumulative knowledge that may already be referenced by
// other documents' builds, the same reason Persist's upsertConcepts never
// deletes a concept either. Deletes run in dependency order, children before
// parents, inside one Postgres transaction; the Neo4j purge runs afterward
// and, like the sync it undoes, is best-effort.
func Rollback(ctx context.Context, pctx *pipeline.Context, documentID uuid.UUID, buildVersion string) error {
	if pctx == nil || pctx.Postgres == nil || documentID == uuid.Nil || buildVersion == "" {
		return nil
	}

	err := pctx.Postgres.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmts := []struct {
			label string
			sql   string
		}{
			{"theme_members", `
DELETE FROM graphrag_theme_member
WHERE theme_id IN (SELECT id FROM graphrag_theme WHERE document_id = ? AND build_version = ?)`},
			{"themes", `DELETE FROM graphrag_theme WHERE document_id = ? AND build_version = ?`},
			{"claim_concepts", `
DELETE FROM graphrag_claim_concept
WHERE claim_id IN (SELECT id FROM graphrag_claim WHERE document_id = ? AND build_version = ?)`},
			{"claim_relations", `
DELETE FROM graphrag_claim_relation
WHERE build_version = ?
AND (source_claim_id IN (SELECT id FROM graphrag_claim WHERE document_id = ? AND build_version = ?)
  OR target_claim_id IN (SELECT id FROM graphrag_claim WHERE document_id = ? AND build_version = ?))`},
			{"concept_relations", `
DELETE FROM graphrag_concept_relation
WHERE build_version = ?
AND (source_concept_id IN (SELECT concept_id FROM graphrag_mention WHERE build_version = ? AND chunk_id IN (SELECT id FROM graphrag_chunk WHERE document_id = ?))
  OR target_concept_id IN (SELECT concept_id FROM graphrag_mention WHERE build_version = ? AND chunk_id IN (SELECT id FROM graphrag_chunk WHERE document_id = ?)))`},
			{"predicate_reviews", `
DELETE FROM graphrag_predicate_review
WHERE build_version = ?
AND (source_claim_id IN (SELECT id FROM graphrag_claim WHERE document_id = ? AND build_version = ?)
  OR target_claim_id IN (SELECT id FROM graphrag_claim WHERE document_id = ? AND build_version = ?)
  OR source_concept_id IN (SELECT concept_id FROM graphrag_mention WHERE build_version = ? AND chunk_id IN (SELECT id FROM graphrag_chunk WHERE document_id = ?))
  OR target_concept_id IN (SELECT concept_id FROM graphrag_mention WHERE build_version = ? AND chunk_id IN (SELECT id FROM graphrag_chunk WHERE document_id = ?)))`},
			{"claims", `DELETE FROM graphrag_claim WHERE document_id = ? AND build_version = ?`},
			{"mentions", `
DELETE FROM graphrag_mention
WHERE build_version = ? AND chunk_id IN (SELECT id FROM graphrag_chunk WHERE document_id = ?)`},
			{"chunks", `DELETE FROM graphrag_chunk WHERE document_id = ? AND build_version = ?`},
		}

		args := map[string][]any{
			"theme_members":     {documentID, buildVersion},
			"themes":            {documentID, buildVersion},
			"claim_concepts":    {documentID, buildVersion},
			"claim_relations":   {buildVersion, documentID, buildVersion, documentID, buildVersion},
			"concept_relations": {buildVersion, buildVersion, documentID, buildVersion, documentID},
			"predicate_reviews": {buildVersion, documentID, buildVersion, documentID, buildVersion, buildVersion, documentID, buildVersion, documentID},
			"claims":            {documentID, buildVersion},
			"mentions":          {buildVersion, documentID},
			"chunks":            {documentID, buildVersion},
		}

		for _, stmt := range stmts {
			if err := tx.Exec(stmt.sql, args[stmt.label]...).Error; err != nil {
				return fmt.Errorf("%s: %w", stmt.label, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("graphservice: rollback: %w", err)
	}

	if pctx.Neo4j != nil {
		if err := graph.PurgeBuildVersion(ctx, pctx.Neo4j, pctx.Log, buildVersion); err != nil && pctx.Log != nil {
			pctx.Log.Warn("graphservice: neo4j purge failed", "document_id", documentID, "build_version", buildVersion, "error", err)
		}
	}
	return nil
}

// upsertConcepts has no batch-create path: ConceptRepo.Upsert is one row at
// a time because a concept may already exist under the same key from a
// prior document's build, and the repo's Upsert is what carries the
// on-conflict-merge semantics (§4.2's "concepts are shared across
// documents" invariant).
func upsertConcepts(ctx context.Context, txc *pipeline.Context, concepts []*domain.Concept) error {
	for _, c := range concepts {
		if c == nil {
			continue
		}
		if _, err := txc.Concepts.Upsert(ctx, txc.Postgres, c); err != nil {
			return err
		}
	}
	return nil
}

func syncToNeo4j(ctx context.Context, pctx *pipeline.Context, result *pipeline.BuildResult) {
	if pctx.Neo4j == nil {
		return
	}
	var predicates *config.PredicateConfig
	if pctx.Config != nil {
		predicates = &pctx.Config.Predicates
	}
	err := graph.SyncDocumentGraph(ctx, pctx.Neo4j, pctx.Log, predicates, &graph.DocumentGraph{
		Document:         result.Document,
		Chunks:           result.Chunks,
		Concepts:         result.Concepts,
		Aliases:          result.Aliases,
		Mentions:         result.Mentions,
		Claims:           result.Claims,
		ClaimConcepts:    result.ClaimConcepts,
		ClaimRelations:   result.ClaimRelations,
		ConceptRelations: result.ConceptRelations,
		Themes:           result.Themes,
		ThemeMembers:     result.ThemeMembers,
	})
	if err != nil && pctx.Log != nil {
		pctx.Log.Warn("graphservice: neo4j sync failed, document eligible for resync", "document_id", result.Document.ID, "error", err)
	}
}

// indexEmbeddings pushes every committed row's embedding into the pgvector
// side index. Like syncToNeo4j this runs after the commit and is best
// effort: a row missing an embedding (provider unavailable during the
// build) is simply skipped, and an index write failure is logged rather
// than surfaced, since the index is a recall accelerant, not the system of
// record.
func indexEmbeddings(ctx context.Context, pctx *pipeline.Context, result *pipeline.BuildResult) {
	if pctx.Vectors == nil {
		return
	}
	buildVersion := pctx.BuildVersion()

	for _, c := range result.Chunks {
		indexOne(ctx, pctx, "chunk", c.ID, c.Embedding, buildVersion)
	}
	for _, c := range result.Concepts {
		indexOne(ctx, pctx, "concept", c.ID, c.Embedding, buildVersion)
	}
	for _, c := range result.Claims {
		indexOne(ctx, pctx, "claim", c.ID, c.Embedding, buildVersion)
	}
	for _, t := range result.Themes {
		indexOne(ctx, pctx, "theme", t.ID, t.Embedding, buildVersion)
	}
}

func indexOne(ctx context.Context, pctx *pipeline.Context, ownerType string, ownerID uuid.UUID, raw datatypes.JSON, buildVersion string) {
	vector := pipeline.DecodeEmbedding(raw)
	if len(vector) == 0 {
		return
	}
	if err := pctx.Vectors.Upsert(ctx, ownerType, ownerID, vector, buildVersion); err != nil && pctx.Log != nil {
		pctx.Log.Warn("graphservice: vector index upsert failed", "owner_type", ownerType, "owner_id", ownerID, "error", err)
	}
}
