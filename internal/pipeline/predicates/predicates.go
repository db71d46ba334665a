// Package predicates implements Stage 5 (Predicate Governor): mapping the
// free-text predicates Stage 3a and Stage 2's triple extraction propose onto
// the closed relationship whitelist, or rejecting them to a review queue
// rather than ever letting a surface string reach the graph (§8 invariant
// 2). The same whitelist and automaton technology govern both claim-to-claim
// and concept-to-concept relations.
package predicates

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-backend/internal/config"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/platform/aliasdict"
)

// Governor holds a compiled surface-predicate automaton plus a small cache
// of canonical-predicate embeddings, built once per config load and reused
// across every document in a build.
type Governor struct {
	cfg *config.PredicateConfig

	acMu      sync.RWMutex
	ac        *ahocorasick.Automaton
	canonical []string // index-aligned with the automaton's pattern IDs

	embedMu    sync.Mutex
	embedCache map[string][]float32
}

// NewGovernor compiles cfg.Mappings into an Aho-Corasick automaton, the same
// library §3's alias dictionary uses, over a distinct automaton instance
// scoped to predicate surface forms instead of concept aliases.
func NewGovernor(cfg *config.PredicateConfig) (*Governor, error) {
	g := &Governor{cfg: cfg, embedCache: map[string][]float32{}}
	if cfg == nil || len(cfg.Mappings) == 0 {
		return g, nil
	}
	if err := g.compile(); err != nil {
		return nil, err
	}
	return g, nil
}

// compile rebuilds the automaton from g.cfg.Mappings and installs it,
// taking acMu for writing itself; callers must not hold acMu.
func (g *Governor) compile() error {
	patterns := make([]string, 0, len(g.cfg.Mappings))
	canonical := make([]string, 0, len(g.cfg.Mappings))
	for surface, canon := range g.cfg.Mappings {
		key := aliasdict.Canonicalize(surface)
		if key == "" {
			continue
		}
		patterns = append(patterns, key)
		canonical = append(canonical, canon)
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return err
	}

	g.acMu.Lock()
	g.ac = automaton
	g.canonical = canonical
	g.acMu.Unlock()
	return nil
}

// AddMapping registers a new surface->canonical predicate mapping and
// recompiles the automaton in place, the mechanism Stage 8's correct()
// feedback uses once a raw predicate's correction recurrence clears the
// configured threshold: subsequent documents resolve that surface through
// the automaton's fast path instead of falling through to review.
func (g *Governor) AddMapping(surface, canonical string) error {
	surface = strings.TrimSpace(surface)
	canonical = strings.ToUpper(strings.TrimSpace(canonical))
	if surface == "" || canonical == "" || g.cfg == nil {
		return nil
	}
	g.acMu.Lock()
	if g.cfg.Mappings == nil {
		g.cfg.Mappings = map[string]string{}
	}
	g.cfg.Mappings[surface] = canonical
	g.acMu.Unlock()
	return g.compile()
}

// decision is the governor's internal verdict for one raw predicate before
// it is written back onto a ClaimRelation/ConceptRelation or a review row.
type decision struct {
	canonical string
	matched   bool
	reason    string // unmatched|type_violation
}

// GovernClaimTriples maps Stage 3a's candidate inter-claim triples onto the
// whitelist, enforcing the (Claim, Claim) type pair, and returns both the
// accepted relations and anything rejected to review.
func (g *Governor) GovernClaimTriples(ctx context.Context, pctx *pipeline.Context, triples []pipeline.ClaimTriple) ([]*domain.ClaimRelation, []*domain.PredicateReview) {
	relations := make([]*domain.ClaimRelation, 0, len(triples))
	var reviews []*domain.PredicateReview

	for _, t := range triples {
		d := g.resolve(ctx, pctx, t.RawPredicate)
		if !d.matched {
			reviews = append(reviews, claimReview(t, d.reason, pctx.BuildVersion()))
			continue
		}
		if !g.cfg.ValidateTypeConstraint(d.canonical, "Claim", "Claim") {
			reviews = append(reviews, claimReview(t, "type_violation", pctx.BuildVersion()))
			continue
		}
		relations = append(relations, &domain.ClaimRelation{
			ID:            relationID("claim_relation", t.SourceClaimID, t.TargetClaimID, d.canonical, pctx.BuildVersion()),
			SourceClaimID: t.SourceClaimID,
			TargetClaimID: t.TargetClaimID,
			Predicate:     d.canonical,
			RawPredicate:  t.RawPredicate,
			Confidence:    t.Confidence,
			BuildVersion:  pctx.BuildVersion(),
		})
	}
	return relations, reviews
}

// GovernConceptTriples maps the entity linker's candidate concept-to-concept
// triples onto the whitelist, enforcing the pair's registered node types
// from the already-resolved Concept rows.
func (g *Governor) GovernConceptTriples(ctx context.Context, pctx *pipeline.Context, triples []pipeline.ConceptTriple, conceptTypes map[uuid.UUID]string) ([]*domain.ConceptRelation, []*domain.PredicateReview) {
	relations := make([]*domain.ConceptRelation, 0, len(triples))
	var reviews []*domain.PredicateReview

	for _, t := range triples {
		d := g.resolve(ctx, pctx, t.RawPredicate)
		if !d.matched {
			reviews = append(reviews, conceptReview(t, d.reason, pctx.BuildVersion()))
			continue
		}
		sourceType := conceptTypes[t.SourceConceptID]
		targetType := conceptTypes[t.TargetConceptID]
		if !g.cfg.ValidateTypeConstraint(d.canonical, sourceType, targetType) {
			reviews = append(reviews, conceptReview(t, "type_violation", pctx.BuildVersion()))
			continue
		}
		relations = append(relations, &domain.ConceptRelation{
			ID:              relationID("concept_relation", t.SourceConceptID, t.TargetConceptID, d.canonical, pctx.BuildVersion()),
			SourceConceptID: t.SourceConceptID,
			TargetConceptID: t.TargetConceptID,
			Predicate:       d.canonical,
			RawPredicate:    t.RawPredicate,
			Confidence:      t.Confidence,
			BuildVersion:    pctx.BuildVersion(),
		})
	}
	return relations, reviews
}

// resolve runs the full governance decision for one raw predicate: already-
// standard passthrough, then the automaton's exact-surface fast path, then
// (if configured) the embedding-similarity fallback, and finally OTHER.
func (g *Governor) resolve(ctx context.Context, pctx *pipeline.Context, raw string) decision {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decision{reason: "unmatched"}
	}
	upper := strings.ToUpper(trimmed)
	if g.cfg != nil && g.cfg.IsStandard(upper) {
		return decision{canonical: upper, matched: true}
	}

	if canon, ok := g.surfaceMatch(trimmed); ok {
		return decision{canonical: canon, matched: true}
	}

	if g.cfg != nil && g.cfg.UnmatchedStrategy == "embedding_fallback" {
		threshold := 0.75
		if pctx != nil && pctx.Config != nil {
			threshold = pctx.Config.Thresholds.PredicatesF("embedding_fallback_threshold", 0.75)
		}
		if canon, score := g.embeddingFallback(ctx, pctx, trimmed); canon != "" && score >= threshold {
			return decision{canonical: canon, matched: true}
		}
	}
	return decision{reason: "unmatched"}
}

// surfaceMatch runs the compiled automaton over the canonicalized raw
// predicate and keeps the longest hit. (aliasdict.Scan, by contrast,
// returns every overlapping hit.)
func (g *Governor) surfaceMatch(raw string) (string, bool) {
	g.acMu.RLock()
	ac, canonical := g.ac, g.canonical
	g.acMu.RUnlock()
	if ac == nil {
		return "", false
	}
	key := aliasdict.Canonicalize(raw)
	hits := ac.FindAllOverlapping([]byte(key))
	bestLen := -1
	bestIdx := -1
	for _, h := range hits {
		if length := h.End - h.Start; length > bestLen {
			bestLen = length
			bestIdx = h.PatternID
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return canonical[bestIdx], true
}

// embeddingFallback compares raw's embedding against each standard
// predicate's own name embedding and returns the closest match by cosine
// similarity. There is no whitelist "description" text in config, so the
// canonical predicate name itself stands in as the text to embed; this
// keeps the lookup self-contained in the predicate whitelist rather than
// requiring a second authored text field.
func (g *Governor) embeddingFallback(ctx context.Context, pctx *pipeline.Context, raw string) (string, float64) {
	if pctx == nil || pctx.LLM == nil || g.cfg == nil || len(g.cfg.Standard) == 0 {
		return "", 0
	}
	rawEmbed, err := pctx.LLM.Embed(ctx, []string{raw})
	if err != nil || len(rawEmbed) != 1 {
		return "", 0
	}

	best := ""
	bestScore := 0.0
	for _, canon := range g.cfg.Standard {
		embed, ok := g.canonicalEmbedding(ctx, pctx, canon)
		if !ok {
			continue
		}
		if score := cosineSimilarity(rawEmbed[0], embed); score > bestScore {
			bestScore = score
			best = canon
		}
	}
	return best, bestScore
}

func (g *Governor) canonicalEmbedding(ctx context.Context, pctx *pipeline.Context, canon string) ([]float32, bool) {
	g.embedMu.Lock()
	if v, ok := g.embedCache[canon]; ok {
		g.embedMu.Unlock()
		return v, true
	}
	g.embedMu.Unlock()

	out, err := pctx.LLM.Embed(ctx, []string{canon})
	if err != nil || len(out) != 1 {
		return nil, false
	}

	g.embedMu.Lock()
	g.embedCache[canon] = out[0]
	g.embedMu.Unlock()
	return out[0], true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func claimReview(t pipeline.ClaimTriple, reason, buildVersion string) *domain.PredicateReview {
	source, target := t.SourceClaimID, t.TargetClaimID
	return &domain.PredicateReview{
		ID:            reviewID("claim", source, target, t.RawPredicate, buildVersion),
		SubjectType:   "claim",
		SourceClaimID: &source,
		TargetClaimID: &target,
		RawPredicate:  t.RawPredicate,
		Reason:        reason,
		BuildVersion:  buildVersion,
	}
}

func conceptReview(t pipeline.ConceptTriple, reason, buildVersion string) *domain.PredicateReview {
	source, target := t.SourceConceptID, t.TargetConceptID
	return &domain.PredicateReview{
		ID:              reviewID("concept", source, target, t.RawPredicate, buildVersion),
		SubjectType:     "concept",
		SourceConceptID: &source,
		TargetConceptID: &target,
		RawPredicate:    t.RawPredicate,
		Reason:          reason,
		BuildVersion:    buildVersion,
	}
}

func relationID(kind string, source, target uuid.UUID, predicate, buildVersion string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+"|"+source.String()+"|"+target.String()+"|"+predicate+"|"+buildVersion))
}

func reviewID(subjectType string, source, target uuid.UUID, rawPredicate, buildVersion string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("predicate_review|"+subjectType+"|"+source.String()+"|"+target.String()+"|"+rawPredicate+"|"+buildVersion))
}
