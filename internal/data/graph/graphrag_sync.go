// Package graph holds the best-effort Postgres -> Neo4j projection sync.
// Postgres (via internal/data/repos/graphrag) is the system of record and
// the only store Query Service's bounded-hop expansion actually reads;
// this projection exists for ad hoc graph exploration and tooling outside
// the query path. A sync failure here never rolls back the Postgres
// transaction that produced the data — it is logged and the document is
// left eligible for re-sync on the next run.
package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-backend/internal/config"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
	"github.com/yungbote/neurobridge-backend/internal/platform/neo4jdb"
)

// DocumentGraph bundles everything one document build produced, the unit
// the sync function commits to Neo4j in a single managed transaction.
type DocumentGraph struct {
	Document       *domain.Document
	Chunks         []*domain.Chunk
	Concepts       []*domain.Concept
	Aliases        []*domain.Alias
	Mentions       []*domain.Mention
	Claims           []*domain.Claim
	ClaimConcepts    []*domain.ClaimConcept
	ClaimRelations   []*domain.ClaimRelation
	ConceptRelations []*domain.ConceptRelation
	Themes           []*domain.Theme
	ThemeMembers     []*domain.ThemeMember
}

// SyncDocumentGraph MERGEs one document's full build into Neo4j, keyed by
// build_version so re-ingesting the same document under a new build never
// mixes generations of the same node, matching the coalesce(created_at,
// datetime()) / EVIDENCE_FROM idiom the original graph service used.
func SyncDocumentGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, predicates *config.PredicateConfig, g *DocumentGraph) error {
	if client == nil || client.Driver == nil || g == nil || g.Document == nil {
		return nil
	}
	if predicates == nil {
		predicates = &config.PredicateConfig{}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	buildVersion := g.Document.BuildVersion

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	ensureConstraints(ctx, session, log)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := syncDocument(ctx, tx, g.Document, now); err != nil {
			return nil, err
		}
		if err := syncChunks(ctx, tx, g.Document.ID, g.Chunks, now); err != nil {
			return nil, err
		}
		if err := syncConcepts(ctx, tx, g.Concepts, now); err != nil {
			return nil, err
		}
		if err := syncAliases(ctx, tx, g.Aliases, now); err != nil {
			return nil, err
		}
		if err := syncMentions(ctx, tx, g.Mentions, buildVersion, now); err != nil {
			return nil, err
		}
		if err := syncClaims(ctx, tx, g.Claims, now); err != nil {
			return nil, err
		}
		if err := syncClaimConcepts(ctx, tx, g.ClaimConcepts, now); err != nil {
			return nil, err
		}
		if err := syncClaimRelations(ctx, tx, predicates, g.ClaimRelations, now); err != nil {
			return nil, err
		}
		if err := syncConceptRelations(ctx, tx, predicates, g.ConceptRelations, now); err != nil {
			return nil, err
		}
		if err := syncThemes(ctx, tx, g.Document.ID, g.Themes, now); err != nil {
			return nil, err
		}
		if err := syncThemeMembers(ctx, tx, g.ThemeMembers, now); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func ensureConstraints(ctx context.Context, session neo4j.SessionWithContext, log *logger.Logger) {
	stmts := []string{
		`CREATE CONSTRAINT graphrag_document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE CONSTRAINT graphrag_chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT graphrag_concept_id IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT graphrag_alias_id IF NOT EXISTS FOR (a:Alias) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT graphrag_claim_id IF NOT EXISTS FOR (c:Claim) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT graphrag_theme_id IF NOT EXISTS FOR (t:Theme) REQUIRE t.id IS UNIQUE`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			if log != nil {
				log.Warn("neo4j constraint init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func syncDocument(ctx context.Context, tx neo4j.ManagedTransaction, d *domain.Document, now string) error {
	if d == nil || d.ID == uuid.Nil {
		return nil
	}
	res, err := tx.Run(ctx, `
MERGE (d:Document {id: $id})
SET d.external_id = $external_id,
    d.source_kind = $source_kind,
    d.title = $title,
    d.build_version = $build_version,
    d.created_at = coalesce(d.created_at, datetime($created_at)),
    d.synced_at = $now
`, map[string]any{
		"id":            d.ID.String(),
		"external_id":   d.ExternalID,
		"source_kind":   d.SourceKind,
		"title":         d.Title,
		"build_version": d.BuildVersion,
		"created_at":    d.CreatedAt.UTC().Format(time.RFC3339Nano),
		"now":           now,
	})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func syncChunks(ctx context.Context, tx neo4j.ManagedTransaction, documentID uuid.UUID, chunks []*domain.Chunk, now string) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		if c == nil || c.ID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":            c.ID.String(),
			"document_id":   documentID.String(),
			"chunk_index":   c.ChunkIndex,
			"text":          truncate(c.Text, 4000),
			"section_path":  string(c.SectionPath),
			"sentence_ids":  string(c.SentenceIDs),
			"build_version": c.BuildVersion,
			"created_at":    c.CreatedAt.UTC().Format(time.RFC3339Nano),
			"now":           now,
		})
	}
	res, err := tx.Run(ctx, `
UNWIND $chunks AS row
MERGE (c:Chunk {id: row.id})
SET c.chunk_index = row.chunk_index,
    c.text = row.text,
    c.section_path = row.section_path,
    c.sentence_ids = row.sentence_ids,
    c.build_version = row.build_version,
    c.created_at = coalesce(c.created_at, datetime(row.created_at)),
    c.synced_at = row.now
WITH c, row
MERGE (d:Document {id: row.document_id})
MERGE (d)-[:HAS_CHUNK]->(c)
`, map[string]any{"chunks": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func syncConcepts(ctx context.Context, tx neo4j.ManagedTransaction, concepts []*domain.Concept, now string) error {
	if len(concepts) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c == nil || c.ID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":          c.ID.String(),
			"key":         c.Key,
			"name":        c.Name,
			"type":        c.Type,
			"domain":      c.Domain,
			"description": truncate(c.Description, 1600),
			"created_at":  c.CreatedAt.UTC().Format(time.RFC3339Nano),
			"now":         now,
		})
	}
	res, err := tx.Run(ctx, `
UNWIND $concepts AS row
MERGE (c:Concept {id: row.id})
SET c.key = row.key,
    c.name = row.name,
    c.type = row.type,
    c.domain = row.domain,
    c.description = row.description,
    c.created_at = coalesce(c.created_at, datetime(row.created_at)),
    c.synced_at = row.now
`, map[string]any{"concepts": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func syncAliases(ctx context.Context, tx neo4j.ManagedTransaction, aliases []*domain.Alias, now string) error {
	if len(aliases) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(aliases))
	for _, a := range aliases {
		if a == nil || a.ID == uuid.Nil || a.ConceptID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":         a.ID.String(),
			"concept_id": a.ConceptID.String(),
			"surface":    a.Surface,
			"source":     a.Source,
			"confidence": a.Confidence,
			"now":        now,
		})
	}
	res, err := tx.Run(ctx, `
UNWIND $aliases AS row
MERGE (a:Alias {id: row.id})
SET a.surface = row.surface,
    a.source = row.source,
    a.confidence = row.confidence,
    a.synced_at = row.now
WITH a, row
MERGE (c:Concept {id: row.concept_id})
MERGE (c)-[:HAS_ALIAS]->(a)
`, map[string]any{"aliases": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// syncMentions writes the MENTIONS_CONCEPT edge only for accepted
// decisions; review/nil mentions stay in Postgres for the reviewer queue
// and are never projected as a graph edge.
func syncMentions(ctx context.Context, tx neo4j.ManagedTransaction, mentions []*domain.Mention, buildVersion, now string) error {
	rows := make([]map[string]any, 0, len(mentions))
	for _, m := range mentions {
		if m == nil || m.Decision != "accept" || m.ChunkID == uuid.Nil || m.ConceptID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":            m.ID.String(),
			"chunk_id":      m.ChunkID.String(),
			"concept_id":    m.ConceptID.String(),
			"surface":       m.Surface,
			"confidence":    m.Confidence,
			"method":        m.Method,
			"build_version": buildVersion,
			"now":           now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	res, err := tx.Run(ctx, `
UNWIND $mentions AS row
MERGE (ch:Chunk {id: row.chunk_id})
MERGE (co:Concept {id: row.concept_id})
MERGE (ch)-[e:MENTIONS_CONCEPT]->(co)
SET e.id = row.id,
    e.surface = row.surface,
    e.confidence = row.confidence,
    e.method = row.method,
    e.build_version = row.build_version,
    e.synced_at = row.now
`, map[string]any{"mentions": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// syncClaims writes claims plus their EVIDENCE_FROM edge back to the chunk
// they were extracted from, carrying the four-level provenance tuple as
// edge properties. Claims that have been redirected (CanonicalID set) are
// skipped: only the surviving claim is projected.
func syncClaims(ctx context.Context, tx neo4j.ManagedTransaction, claims []*domain.Claim, now string) error {
	rows := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		if c == nil || c.ID == uuid.Nil || c.CanonicalID != nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":            c.ID.String(),
			"chunk_id":      c.ChunkID.String(),
			"norm_hash":     c.NormHash,
			"text":          truncate(c.Text, 1600),
			"modality":      c.Modality,
			"confidence":    c.Confidence,
			"evidence_json": string(c.Evidence),
			"build_version": c.BuildVersion,
			"created_at":    c.CreatedAt.UTC().Format(time.RFC3339Nano),
			"now":           now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	res, err := tx.Run(ctx, `
UNWIND $claims AS row
MERGE (c:Claim {id: row.id})
SET c.norm_hash = row.norm_hash,
    c.text = row.text,
    c.modality = row.modality,
    c.confidence = row.confidence,
    c.build_version = row.build_version,
    c.created_at = coalesce(c.created_at, datetime(row.created_at)),
    c.synced_at = row.now
WITH c, row
MERGE (ch:Chunk {id: row.chunk_id})
MERGE (c)-[ev:EVIDENCE_FROM]->(ch)
SET ev.evidence_json = row.evidence_json,
    ev.synced_at = row.now
`, map[string]any{"claims": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func syncClaimConcepts(ctx context.Context, tx neo4j.ManagedTransaction, edges []*domain.ClaimConcept, now string) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e == nil || e.ClaimID == uuid.Nil || e.ConceptID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"claim_id":   e.ClaimID.String(),
			"concept_id": e.ConceptID.String(),
			"weight":     e.Weight,
			"now":        now,
		})
	}
	res, err := tx.Run(ctx, `
UNWIND $edges AS row
MERGE (c:Claim {id: row.claim_id})
MERGE (co:Concept {id: row.concept_id})
MERGE (c)-[e:ABOUT_CONCEPT]->(co)
SET e.weight = row.weight,
    e.synced_at = row.now
`, map[string]any{"edges": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// syncClaimRelations writes only governed predicates: callers must not
// pass PredicateReview rows here, since OTHER predicates never become a
// graph edge label.
func syncClaimRelations(ctx context.Context, tx neo4j.ManagedTransaction, predicates *config.PredicateConfig, relations []*domain.ClaimRelation, now string) error {
	if len(relations) == 0 {
		return nil
	}
	byPredicate := make(map[string][]map[string]any)
	for _, r := range relations {
		if r == nil || r.SourceClaimID == uuid.Nil || r.TargetClaimID == uuid.Nil || r.Predicate == "" {
			continue
		}
		byPredicate[r.Predicate] = append(byPredicate[r.Predicate], map[string]any{
			"source_id":     r.SourceClaimID.String(),
			"target_id":     r.TargetClaimID.String(),
			"raw_predicate": r.RawPredicate,
			"confidence":    r.Confidence,
			"build_version": r.BuildVersion,
			"now":           now,
		})
	}

	for predicate, rows := range byPredicate {
		if !predicates.IsStandard(predicate) {
			continue
		}
		query := `
UNWIND $rels AS row
MERGE (s:Claim {id: row.source_id})
MERGE (t:Claim {id: row.target_id})
MERGE (s)-[e:` + predicate + `]->(t)
SET e.raw_predicate = row.raw_predicate,
    e.confidence = row.confidence,
    e.build_version = row.build_version,
    e.synced_at = row.now
`
		res, err := tx.Run(ctx, query, map[string]any{"rels": rows})
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

// syncConceptRelations mirrors syncClaimRelations for the Concept-to-Concept
// projection of entity-linker triples, after the same predicate governance
// pass. It shares the claim-relation whitelist: the two relation kinds draw
// from one governed predicate vocabulary rather than maintaining parallel
// whitelists.
func syncConceptRelations(ctx context.Context, tx neo4j.ManagedTransaction, predicates *config.PredicateConfig, relations []*domain.ConceptRelation, now string) error {
	if len(relations) == 0 {
		return nil
	}
	byPredicate := make(map[string][]map[string]any)
	for _, r := range relations {
		if r == nil || r.SourceConceptID == uuid.Nil || r.TargetConceptID == uuid.Nil || r.Predicate == "" {
			continue
		}
		byPredicate[r.Predicate] = append(byPredicate[r.Predicate], map[string]any{
			"source_id":     r.SourceConceptID.String(),
			"target_id":     r.TargetConceptID.String(),
			"raw_predicate": r.RawPredicate,
			"confidence":    r.Confidence,
			"build_version": r.BuildVersion,
			"now":           now,
		})
	}

	for predicate, rows := range byPredicate {
		if !predicates.IsStandard(predicate) {
			continue
		}
		query := `
UNWIND $rels AS row
MERGE (s:Concept {id: row.source_id})
MERGE (t:Concept {id: row.target_id})
MERGE (s)-[e:` + predicate + `]->(t)
SET e.raw_predicate = row.raw_predicate,
    e.confidence = row.confidence,
    e.build_version = row.build_version,
    e.synced_at = row.now
`
		res, err := tx.Run(ctx, query, map[string]any{"rels": rows})
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

func syncThemes(ctx context.Context, tx neo4j.ManagedTransaction, documentID uuid.UUID, themes []*domain.Theme, now string) error {
	if len(themes) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(themes))
	for _, t := range themes {
		if t == nil || t.ID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":            t.ID.String(),
			"document_id":   documentID.String(),
			"label":         t.Label,
			"keywords_json": string(t.Keywords),
			"modularity":    t.Modularity,
			"build_version": t.BuildVersion,
			"now":           now,
		})
	}
	res, err := tx.Run(ctx, `
UNWIND $themes AS row
MERGE (t:Theme {id: row.id})
SET t.label = row.label,
    t.keywords_json = row.keywords_json,
    t.modularity = row.modularity,
    t.build_version = row.build_version,
    t.synced_at = row.now
WITH t, row
MERGE (d:Document {id: row.document_id})
MERGE (d)-[:HAS_THEME]->(t)
`, map[string]any{"themes": rows})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func syncThemeMembers(ctx context.Context, tx neo4j.ManagedTransaction, members []*domain.ThemeMember, now string) error {
	claimRows := make([]map[string]any, 0)
	conceptRows := make([]map[string]any, 0)
	for _, m := range members {
		if m == nil || m.ThemeID == uuid.Nil || m.MemberID == uuid.Nil {
			continue
		}
		row := map[string]any{"theme_id": m.ThemeID.String(), "member_id": m.MemberID.String(), "now": now}
		switch m.MemberType {
		case "claim":
			claimRows = append(claimRows, row)
		case "concept":
			conceptRows = append(conceptRows, row)
		}
	}

	if len(claimRows) > 0 {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MERGE (t:Theme {id: row.theme_id})
MERGE (c:Claim {id: row.member_id})
MERGE (c)-[e:BELONGS_TO_THEME]->(t)
SET e.synced_at = row.now
`, map[string]any{"rows": claimRows})
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}

	if len(conceptRows) > 0 {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MERGE (t:Theme {id: row.theme_id})
MERGE (c:Concept {id: row.member_id})
MERGE (c)-[e:BELONGS_TO_THEME]->(t)
SET e.synced_at = row.now
`, map[string]any{"rows": conceptRows})
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}

	return nil
}

// PurgeBuildVersion deletes every node and edge this projection tagged with
// buildVersion, the Neo4j-side counterpart of graphservice.Rollback's
// Postgres deletes. Concept nodes are never build_version-tagged (concepts
// are shared across documents) and so survive a purge even when every
// edge into them from this build is removed.
func PurgeBuildVersion(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, buildVersion string) error {
	if client == nil || client.Driver == nil || buildVersion == "" {
		return nil
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH ()-[e]->() WHERE e.build_version = $build_version
DELETE e
`, map[string]any{"build_version": buildVersion})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (n) WHERE n.build_version = $build_version
DETACH DELETE n
`, map[string]any{"build_version": buildVersion})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil && log != nil {
		log.Warn("graph: purge build version failed", "build_version", buildVersion, "error", err)
	}
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
