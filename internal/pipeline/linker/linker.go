// Package linker implements Stage 2 (Entity Linking): detecting mention
// spans in a chunk's resolved text, resolving each to a Concept through a
// blend of alias-dictionary lookup, BM25 lexical recall, vector similarity,
// and same-document reinforcement signals, gated by config/ontology.yaml's
// node-type schema, and surfacing (subject, predicate_text, object) triples
// for governed Concept-to-Concept relations (§4.2).
package linker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/orsinium-labs/stopwords"

	"github.com/yungbote/neurobridge-backend/internal/config"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/platform/aliasdict"
)

var enStopwords = stopwords.MustGet("en")

// candidate is one not-yet-decided mention: a detected surface span plus
// every concept the alias dictionary, lexical overlap, or vector search
// nominated for it.
type candidate struct {
	chunkID    uuid.UUID
	surface    string
	start, end int
	scores     map[uuid.UUID]float64 // conceptID -> blended score
	method     map[uuid.UUID]string  // conceptID -> winning method for that score
}

// linkState is the per-document scratch state resolveCandidate reads and
// updates across every candidate in a build: the BM25 index over already
// known concepts, an ID-keyed mirror of the same set for ontology gating,
// per-concept rerank weights, and a running count of how often each concept
// has already been accepted in this document (the co-occurrence signal).
type linkState struct {
	ontology *config.OntologyConfig

	existingByID map[uuid.UUID]*domain.Concept
	lexIndex     *bm25Index
	conceptFreq  map[uuid.UUID]int

	chunkEmbedding []float32

	lexWeight, vecWeight, contextWeight, cooccurWeight, priorWeight, typeWeight float64
}

// Link runs Stage 2 over one document's chunks, given Stage 1's resolved
// text per chunk. It never returns an error for a single chunk's failure:
// a chunk that can't be embedded or scanned simply contributes no mentions.
func Link(ctx context.Context, pctx *pipeline.Context, chunks []*domain.Chunk, resolvedText map[uuid.UUID]string) (*pipeline.LinkResult, error) {
	result := &pipeline.LinkResult{}
	if pctx == nil || pctx.Config == nil {
		return result, nil
	}
	th := pctx.Config.Thresholds
	high := th.LinkingF("high_confidence", 0.85)
	low := th.LinkingF("low_confidence", 0.65)

	existingByKey, err := loadExistingConcepts(ctx, pctx)
	if err != nil {
		return nil, fmt.Errorf("linker: load existing concepts: %w", err)
	}
	existingByID := make(map[uuid.UUID]*domain.Concept, len(existingByKey))
	for _, c := range existingByKey {
		existingByID[c.ID] = c
	}

	state := &linkState{
		ontology:      &pctx.Config.Ontology,
		existingByID:  existingByID,
		lexIndex:      buildLexicalIndex(existingByKey),
		conceptFreq:   map[uuid.UUID]int{},
		lexWeight:     th.LinkingF("lexical_weight", 0.35),
		vecWeight:     th.LinkingF("vector_weight", 0.65),
		contextWeight: th.LinkingF("context_fit_weight", 0.15),
		cooccurWeight: th.LinkingF("cooccurrence_weight", 0.1),
		priorWeight:   th.LinkingF("prior_confidence_weight", 0.1),
		typeWeight:    th.LinkingF("type_compatibility_weight", 0.1),
	}

	newConceptsByKey := map[string]*domain.Concept{}
	var mentions []*domain.Mention
	var newAliases []*domain.Alias
	var triples []pipeline.ConceptTriple

	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		text := chunk.Text
		if rt, ok := resolvedText[chunk.ID]; ok && rt != "" {
			text = rt
		}
		state.chunkEmbedding = pipeline.DecodeEmbedding(chunk.Embedding)

		cands := detectCandidates(pctx, chunk.ID, text)
		accepted := make(map[[2]int]*domain.Mention)

		for _, c := range cands {
			conceptID, method, score, resolvedConcept, isNew := resolveCandidate(ctx, pctx, c, existingByKey, newConceptsByKey, state)
			if conceptID == uuid.Nil {
				continue
			}
			if isNew {
				newConceptsByKey[resolvedConcept.Key] = resolvedConcept
				newAliases = append(newAliases, &domain.Alias{
					ConceptID:   conceptID,
					Surface:     c.surface,
					SurfaceNorm: aliasdict.Canonicalize(c.surface),
					Source:      "extracted",
					Confidence:  score,
				})
			}

			decision := decide(score, high, low)
			m := &domain.Mention{
				ChunkID:      c.chunkID,
				ConceptID:    conceptID,
				Surface:      c.surface,
				SpanStart:    c.start,
				SpanEnd:      c.end,
				Decision:     decision,
				Confidence:   score,
				Method:       method,
				BuildVersion: pctx.BuildVersion(),
			}
			mentions = append(mentions, m)
			if decision == "accept" {
				accepted[[2]int{c.start, c.end}] = m
			}
		}

		triples = append(triples, extractTriples(pctx.Config, chunk.ID, text, accepted)...)
	}

	result.Mentions = mentions
	result.Aliases = newAliases
	result.CandidateTriples = triples
	for _, c := range newConceptsByKey {
		result.Concepts = append(result.Concepts, c)
	}
	return result, nil
}

func loadExistingConcepts(ctx context.Context, pctx *pipeline.Context) (map[string]*domain.Concept, error) {
	out := map[string]*domain.Concept{}
	if pctx.Concepts == nil {
		return out, nil
	}
	concepts, err := pctx.Concepts.SearchByName(ctx, nil, "", 5000)
	if err != nil {
		return nil, err
	}
	for _, c := range concepts {
		out[c.Key] = c
	}
	return out, nil
}

// detectCandidates finds mention spans via the alias dictionary first (the
// fast, high-precision path), then falls back to the same nominal-phrase
// heuristic the coreference resolver uses for text it hasn't already
// matched, so every chunk also nominates never-seen concepts.
func detectCandidates(pctx *pipeline.Context, chunkID uuid.UUID, text string) []candidate {
	byspan := map[[2]int]*candidate{}

	if pctx.AliasDict != nil {
		for _, m := range pctx.AliasDict.Scan(text) {
			c := &candidate{chunkID: chunkID, surface: m.MatchedText, start: m.Start, end: m.End, scores: map[uuid.UUID]float64{}, method: map[uuid.UUID]string{}}
			for _, idStr := range m.ConceptIDs {
				if id, err := uuid.Parse(idStr); err == nil {
					c.scores[id] = 1.0
					c.method[id] = "alias"
				}
			}
			byspan[[2]int{m.Start, m.End}] = c
		}
	}

	for _, span := range nominalSpans(text) {
		key := [2]int{span.start, span.end}
		if _, exists := byspan[key]; exists {
			continue
		}
		byspan[key] = &candidate{chunkID: chunkID, surface: text[span.start:span.end], start: span.start, end: span.end, scores: map[uuid.UUID]float64{}, method: map[uuid.UUID]string{}}
	}

	out := make([]candidate, 0, len(byspan))
	for _, c := range byspan {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

type span struct{ start, end int }

// nominalSpans is the same "looks like an entity" heuristic coref uses for
// antecedents: capitalized English runs and Han phrases. It has no trained
// NER model behind it, so it only ever nominates a candidate; resolution and
// ontology gating downstream are what decide whether the nomination sticks.
func nominalSpans(text string) []span {
	var out []span
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case isHanRune(r):
			j := i
			for j < len(runes) && isHanRune(runes[j]) {
				j++
			}
			if j-i >= 2 {
				out = append(out, runeSpanToByteSpan(text, i, j))
			}
			i = j
		case isUpperRune(r):
			j := i
			for j < len(runes) && (isLetterOrDigitRune(runes[j])) {
				j++
			}
			if j-i >= 3 {
				out = append(out, runeSpanToByteSpan(text, i, j))
			}
			i = j
		default:
			i++
		}
	}
	return out
}

func runeSpanToByteSpan(text string, startRune, endRune int) span {
	runes := []rune(text)
	start := len(string(runes[:startRune]))
	end := len(string(runes[:endRune]))
	return span{start: start, end: end}
}

func isHanRune(r rune) bool   { return r >= 0x4E00 && r <= 0x9FFF }
func isUpperRune(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLetterOrDigitRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// resolveCandidate picks (or creates) the Concept a candidate's scores point
// to most strongly. Alias-dictionary hits are ranked and ontology-gated in
// place: a hard type violation disqualifies the top hit and the next best
// alias candidate is tried before falling through to lexical/vector
// resolution. Everything else goes through the same rerank blend.
func resolveCandidate(
	ctx context.Context,
	pctx *pipeline.Context,
	c candidate,
	existing map[string]*domain.Concept,
	pending map[string]*domain.Concept,
	state *linkState,
) (uuid.UUID, string, float64, *domain.Concept, bool) {
	if len(c.scores) > 0 {
		type ranked struct {
			id     uuid.UUID
			score  float64
			method string
		}
		list := make([]ranked, 0, len(c.scores))
		for id, score := range c.scores {
			list = append(list, ranked{id: id, score: score, method: c.method[id]})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].score > list[j].score })
		for _, r := range list {
			if concept, ok := state.existingByID[r.id]; ok && !passesOntologyGate(state.ontology, concept) {
				continue
			}
			state.conceptFreq[r.id]++
			return r.id, r.method, r.score, nil, false
		}
		// Every alias candidate failed ontology gating: fall through to
		// lexical/vector resolution rather than force a disqualified match.
	}

	key := normalizeKey(c.surface)
	queryTerms := tokenize(c.surface)

	if existingConcept, ok := existing[key]; ok && passesOntologyGate(state.ontology, existingConcept) {
		score := state.blend(existingConcept, queryTerms, nil)
		state.conceptFreq[existingConcept.ID]++
		return existingConcept.ID, "lexical", score, nil, false
	}
	if pendingConcept, ok := pending[key]; ok {
		state.conceptFreq[pendingConcept.ID]++
		return pendingConcept.ID, "lexical", 0.8, nil, false
	}

	// No candidate matched by name at all (or the name match was ontology-
	// disqualified): try vector recall against the embedding index, and only
	// mint a brand-new Concept when that also comes up empty or every
	// neighbor fails ontology gating.
	if pctx.Vectors != nil && pctx.LLM != nil {
		if embeddings, err := pctx.LLM.Embed(ctx, []string{c.surface}); err == nil && len(embeddings) == 1 {
			if neighbors, err := pctx.Vectors.Search(ctx, "concept", embeddings[0], 3); err == nil {
				for _, n := range neighbors {
					similarity := 1 - n.Distance/2
					if similarity < 0.5 {
						continue
					}
					neighborConcept := state.existingByID[n.OwnerID]
					if neighborConcept != nil && !passesOntologyGate(state.ontology, neighborConcept) {
						continue
					}
					sim := similarity
					blended := state.blend(neighborConcept, queryTerms, &sim)
					state.conceptFreq[n.OwnerID]++
					return n.OwnerID, "vector", blended, nil, false
				}
			}
		}
	}

	newConcept := &domain.Concept{
		ID:   uuid.New(),
		Key:  key,
		Name: c.surface,
		Type: "unknown",
	}
	return newConcept.ID, "lexical", 0.6, newConcept, true
}

// passesOntologyGate rejects a candidate concept whose type is known to
// config/ontology.yaml but is missing a required
// property, or whose domain isn't in that type's allowed-domains list, is a
// hard violation and disqualifies the candidate outright. A concept whose
// type isn't registered in the ontology at all is conservatively allowed,
// since the ontology is additive metadata, not a closed type system.
func passesOntologyGate(ontology *config.OntologyConfig, c *domain.Concept) bool {
	if ontology == nil || c == nil {
		return true
	}
	schema, ok := ontology.NodeTypes[c.Type]
	if !ok {
		return true
	}
	for _, prop := range schema.RequiredProperties {
		if !conceptHasProperty(c, prop) {
			return false
		}
	}
	allowed := ontology.AllowedDomains(c.Type)
	if len(allowed) > 0 && c.Domain != "" {
		found := false
		for _, d := range allowed {
			if strings.EqualFold(d, c.Domain) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func conceptHasProperty(c *domain.Concept, prop string) bool {
	switch strings.ToLower(prop) {
	case "name":
		return c.Name != ""
	case "description":
		return c.Description != ""
	case "domain":
		return c.Domain != ""
	case "type":
		return c.Type != "" && c.Type != "unknown"
	default:
		return true
	}
}

// blend combines BM25 lexical recall, vector similarity, context-fit
// (cosine between the candidate's owning chunk embedding and the concept's
// embedding), same-document co-occurrence (how often this concept has
// already been accepted elsewhere in the document), prior concept
// confidence (whether the concept is an established identity or a fresh
// mint), and type-compatibility (whether the concept carries a resolved,
// non-"unknown" type) into a single rerank score. Any factor whose inputs
// aren't available for this candidate (no
// embedding yet, no vector similarity computed) is left out of the weighted
// average rather than counted as zero.
func (s *linkState) blend(concept *domain.Concept, queryTerms []string, vectorSim *float64) float64 {
	var sumWeighted, sumWeights float64

	if s.lexIndex != nil && concept != nil {
		lex := normalizeBM25(s.lexIndex.score(concept.ID, queryTerms))
		sumWeighted += s.lexWeight * lex
		sumWeights += s.lexWeight
	}
	if vectorSim != nil {
		sumWeighted += s.vecWeight * clamp01(*vectorSim)
		sumWeights += s.vecWeight
	}
	if concept != nil && len(concept.Embedding) > 0 && len(s.chunkEmbedding) > 0 {
		fit := cosineSimilarity(pipeline.DecodeEmbedding(concept.Embedding), s.chunkEmbedding)
		sumWeighted += s.contextWeight * clamp01(fit)
		sumWeights += s.contextWeight
	}
	if concept != nil {
		freq := float64(s.conceptFreq[concept.ID])
		cooccur := freq / (freq + 2) // 0 on first sight, approaches 1 with reuse
		sumWeighted += s.cooccurWeight * cooccur
		sumWeights += s.cooccurWeight

		prior := 0.5
		if freq > 0 {
			prior = 0.85
		}
		sumWeighted += s.priorWeight * prior
		sumWeights += s.priorWeight

		typeScore := 0.7
		if concept.Type != "" && concept.Type != "unknown" {
			typeScore = 1.0
		}
		sumWeighted += s.typeWeight * typeScore
		sumWeights += s.typeWeight
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeKey(surface string) string {
	return aliasdict.Canonicalize(surface)
}

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is a local inverted index built once per Link call over the
// document's already-known concepts (Concept.Name + Concept.Description,
// stopword-filtered), giving resolveCandidate a real BM25 ranking function
// instead of a plain token-overlap ratio.
type bm25Index struct {
	docs   map[uuid.UUID][]string
	df     map[string]int
	avgLen float64
	n      int
}

func buildLexicalIndex(existing map[string]*domain.Concept) *bm25Index {
	idx := &bm25Index{docs: map[uuid.UUID][]string{}, df: map[string]int{}}
	var totalLen int
	for _, c := range existing {
		if c == nil {
			continue
		}
		terms := tokenize(c.Name + " " + c.Description)
		idx.docs[c.ID] = terms
		totalLen += len(terms)
		idx.n++
		seen := map[string]bool{}
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				idx.df[t]++
			}
		}
	}
	if idx.n > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.n)
	}
	return idx
}

// score computes the BM25 relevance of queryTerms against the document
// registered under conceptID. Concepts the index never saw (freshly minted
// this run) score zero, since there is nothing yet to rank against.
func (idx *bm25Index) score(conceptID uuid.UUID, queryTerms []string) float64 {
	doc, ok := idx.docs[conceptID]
	if !ok || len(doc) == 0 || idx.n == 0 || idx.avgLen == 0 {
		return 0
	}
	tf := map[string]int{}
	for _, t := range doc {
		tf[t]++
	}
	docLen := float64(len(doc))

	var score float64
	for _, qt := range queryTerms {
		freq, ok := tf[qt]
		if !ok {
			continue
		}
		df := idx.df[qt]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
		num := float64(freq) * (bm25K1 + 1)
		den := float64(freq) + bm25K1*(1-bm25B+bm25B*docLen/idx.avgLen)
		score += idf * num / den
	}
	return score
}

// normalizeBM25 squashes BM25's unbounded score into (0,1) so it can sit in
// the same weighted average as cosine-similarity components.
func normalizeBM25(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (raw + 2.0)
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if f == "" || enStopwords.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
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

func decide(score, high, low float64) string {
	switch {
	case score >= high:
		return "accept"
	case score >= low:
		return "review"
	default:
		return "nil"
	}
}

// extractTriples scans the text between every pair of accepted mentions in
// document order for a known predicate surface phrase (from
// config/predicates.yaml's mappings), nominating a ConceptTriple for
// governance when one is found. It only ever looks at immediately
// adjacent mention pairs, keeping this a same-sentence heuristic rather
// than a full dependency parse.
func extractTriples(cfg *config.GraphRAGConfig, chunkID uuid.UUID, text string, accepted map[[2]int]*domain.Mention) []pipeline.ConceptTriple {
	if len(accepted) < 2 || cfg == nil {
		return nil
	}
	ordered := make([]*domain.Mention, 0, len(accepted))
	for _, m := range accepted {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SpanStart < ordered[j].SpanStart })

	var out []pipeline.ConceptTriple
	for i := 0; i+1 < len(ordered); i++ {
		subj, obj := ordered[i], ordered[i+1]
		if subj.SpanEnd >= obj.SpanStart || obj.SpanStart > len(text) {
			continue
		}
		between := strings.ToLower(text[subj.SpanEnd:obj.SpanStart])
		if raw, ok := surfacePredicateIn(cfg, between); ok {
			out = append(out, pipeline.ConceptTriple{
				SourceConceptID: subj.ConceptID,
				TargetConceptID: obj.ConceptID,
				RawPredicate:    raw,
				Confidence:      0.6,
				ChunkID:         chunkID,
			})
		}
	}
	return out
}

func surfacePredicateIn(cfg *config.GraphRAGConfig, between string) (string, bool) {
	for surface := range cfg.Predicates.Mappings {
		if strings.Contains(between, strings.ToLower(surface)) {
			return surface, true
		}
	}
	return "", false
}
