// Package query implements Stage 7 (Query Service): hybrid theme-first,
// vector, and bounded-hop graph retrieval over an already-built graph,
// followed by scoped LLM generation with inline evidence citation. Nothing
// here writes to the graph; Answer only reads through *pipeline.Context's
// repos and the pgvector side index.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

// Request is one natural-language question against the built graph. Mode
// narrows recall: "local" skips theme-first recall and answers from
// chunk/claim vector recall alone; "global" skips vector recall and answers
// from theme-first recall (the matched themes' member concepts and claims)
// alone; "hybrid" (the default for an empty Mode) runs
// both passes and merges the results.
type Request struct {
	Question string
	Mode     string // hybrid|local|global, defaults to hybrid
	TopK     int
}

// EvidenceItem is one four-level provenance tuple resolved back to its
// source chunk, ready to show a reader or cite inline in generated text.
type EvidenceItem struct {
	DocID       string   `json:"doc_id"`
	ChunkID     string   `json:"chunk_id"`
	SectionPath []string `json:"section_path"`
	SentenceIDs []string `json:"sentence_ids"`
	Snippet     string   `json:"snippet"`
}

// ReasoningStep is one hop of the bounded graph expansion, returned as a
// first-class part of the response rather than folded into answer prose.
type ReasoningStep struct {
	ClaimID          uuid.UUID `json:"claim_id"`
	RelationToParent string    `json:"relation_to_parent"`
}

// Response is Stage 7's full result: a generated answer (when the LLM call
// succeeded and cited its evidence), the themes recall surfaced, the
// resolved evidence, and the reasoning chain the graph expansion walked.
// Degraded is set whenever the answer could not be trusted and the caller
// should fall back to presenting Evidence/ReasoningChain directly.
type Response struct {
	Answer         string          `json:"answer"`
	Themes         []string        `json:"themes"`
	Evidence       []EvidenceItem  `json:"evidence"`
	ReasoningChain []ReasoningStep `json:"reasoning_chain"`
	Degraded       bool            `json:"degraded"`
}

const (
	modeLocal  = "local"
	modeGlobal = "global"
)

// Answer runs the full retrieval and generation pipeline for one question.
// It never returns an error for retrieval-side failures (an unreachable
// vector index, an empty graph) - those degrade the response instead. An
// error is only returned when the question itself can't be embedded, since
// nothing downstream can proceed without that vector.
func Answer(ctx context.Context, pctx *pipeline.Context, req Request) (*Response, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	resp := &Response{}

	topKThemes := 5
	topKChunks := 10
	topKClaims := 10
	maxHops := 2
	if pctx.Config != nil {
		topKThemes = pctx.Config.Thresholds.QueryI("top_k_themes", topKThemes)
		topKChunks = pctx.Config.Thresholds.QueryI("top_k_chunks", topKChunks)
		topKClaims = pctx.Config.Thresholds.QueryI("top_k_claims", topKClaims)
		maxHops = pctx.Config.Thresholds.QueryI("max_hops", maxHops)
	}
	if req.TopK > 0 {
		topKChunks, topKClaims = req.TopK, req.TopK
	}

	qEmbed, err := embedQuestion(ctx, pctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("query: embed question: %w", err)
	}
	if qEmbed == nil {
		resp.Degraded = true
		return resp, nil
	}

	var themeConceptIDs, themeClaimIDs []uuid.UUID
	if mode != modeLocal {
		themes, conceptIDs, claimIDs := themeFirstRecall(ctx, pctx, qEmbed, topKThemes)
		resp.Themes = themeLabels(themes)
		themeConceptIDs = conceptIDs
		themeClaimIDs = claimIDs
	}

	var chunkIDs, vecClaimIDs []uuid.UUID
	if mode != modeGlobal {
		chunkIDs, vecClaimIDs = parallelVectorRecall(ctx, pctx, qEmbed, topKChunks, topKClaims)
	}

	seedClaims := dedupeUUIDs(append(themeClaimIDs, vecClaimIDs...))
	seedConcepts := dedupeUUIDs(themeConceptIDs)

	chain, expandedClaims := expandGraph(ctx, pctx, seedClaims, seedConcepts, maxHops)
	resp.ReasoningChain = chain

	allClaimIDs := dedupeUUIDs(append(seedClaims, expandedClaims...))
	evidence := assembleEvidence(ctx, pctx, chunkIDs, allClaimIDs)
	resp.Evidence = evidence

	if len(evidence) == 0 {
		resp.Degraded = true
		return resp, nil
	}

	answer, ok := generate(ctx, pctx, req.Question, evidence)
	if !ok {
		resp.Degraded = true
		return resp, nil
	}
	resp.Answer = answer
	return resp, nil
}

func embedQuestion(ctx context.Context, pctx *pipeline.Context, question string) ([]float32, error) {
	if pctx == nil || pctx.LLM == nil || strings.TrimSpace(question) == "" {
		return nil, nil
	}
	vectors, err := pctx.LLM.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, nil
	}
	return vectors[0], nil
}

// themeFirstRecall takes the question vector the caller already embedded,
// searches the "theme" partition of the vector index, then expands each
// matched theme to its member concepts and claims via ThemeMemberRepo, the
// same coarse-to-fine navigation themes.Build produces communities for.
func themeFirstRecall(ctx context.Context, pctx *pipeline.Context, qEmbed []float32, topK int) ([]*domain.Theme, []uuid.UUID, []uuid.UUID) {
	if pctx.Vectors == nil || pctx.Themes == nil {
		return nil, nil, nil
	}
	neighbors, err := pctx.Vectors.Search(ctx, "theme", qEmbed, topK)
	if err != nil || len(neighbors) == 0 {
		return nil, nil, nil
	}
	themeIDs := make([]uuid.UUID, 0, len(neighbors))
	for _, n := range neighbors {
		themeIDs = append(themeIDs, n.OwnerID)
	}

	themeRows, err := pctx.Themes.GetByIDs(ctx, pctx.Postgres, themeIDs)
	if err != nil {
		return nil, nil, nil
	}

	var conceptIDs, claimIDs []uuid.UUID
	if pctx.ThemeMembers != nil {
		members, err := pctx.ThemeMembers.GetByThemeIDs(ctx, pctx.Postgres, themeIDs)
		if err == nil {
			for _, m := range members {
				if m == nil {
					continue
				}
				switch m.MemberType {
				case "concept":
					conceptIDs = append(conceptIDs, m.MemberID)
				case "claim":
					claimIDs = append(claimIDs, m.MemberID)
				}
			}
		}
	}
	return themeRows, conceptIDs, claimIDs
}

func themeLabels(themes []*domain.Theme) []string {
	labels := make([]string, 0, len(themes))
	for _, t := range themes {
		if t == nil || t.Label == "" {
			continue
		}
		labels = append(labels, t.Label)
	}
	return labels
}

// parallelVectorRecall fans out the chunk and claim vector searches over
// the already-embedded question vector using a sync.WaitGroup, rather than
// running them sequentially against the same vector index.
func parallelVectorRecall(ctx context.Context, pctx *pipeline.Context, qEmbed []float32, topKChunks, topKClaims int) ([]uuid.UUID, []uuid.UUID) {
	if pctx.Vectors == nil {
		return nil, nil
	}
	var chunkIDs, claimIDs []uuid.UUID
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if neighbors, err := pctx.Vectors.Search(ctx, "chunk", qEmbed, topKChunks); err == nil {
			for _, n := range neighbors {
				chunkIDs = append(chunkIDs, n.OwnerID)
			}
		}
	}()
	go func() {
		defer wg.Done()
		if neighbors, err := pctx.Vectors.Search(ctx, "claim", qEmbed, topKClaims); err == nil {
			for _, n := range neighbors {
				claimIDs = append(claimIDs, n.OwnerID)
			}
		}
	}()
	wg.Wait()
	return chunkIDs, claimIDs
}

// expandGraph performs a bounded-hop BFS over the Postgres adjacency tables
// (ClaimRelation, ConceptRelation) rather than issuing Cypher against Neo4j,
// since Postgres is the system of record and this deployment profile has no
// guaranteed live Neo4j sync to expand against. Concepts reachable from the
// seed set pull in their claims through the concepts' mentions
// (claimsForConcepts) so the reasoning chain
// stays claim-centric even when the walk passed through a concept node.
func expandGraph(ctx context.Context, pctx *pipeline.Context, seedClaims, seedConcepts []uuid.UUID, maxHops int) ([]ReasoningStep, []uuid.UUID) {
	if maxHops <= 0 {
		return nil, nil
	}
	visitedClaims := map[uuid.UUID]bool{}
	for _, id := range seedClaims {
		visitedClaims[id] = true
	}
	frontierClaims := append([]uuid.UUID{}, seedClaims...)
	frontierConcepts := append([]uuid.UUID{}, seedConcepts...)

	var chain []ReasoningStep
	var discovered []uuid.UUID

	for hop := 0; hop < maxHops && (len(frontierClaims) > 0 || len(frontierConcepts) > 0); hop++ {
		var nextClaims, nextConcepts []uuid.UUID

		if len(frontierConcepts) > 0 && pctx.Mentions != nil {
			if edges, err := claimsForConcepts(ctx, pctx, frontierConcepts); err == nil {
				for _, id := range edges {
					if !visitedClaims[id] {
						visitedClaims[id] = true
						nextClaims = append(nextClaims, id)
						discovered = append(discovered, id)
					}
				}
			}
		}

		if len(frontierClaims) > 0 && pctx.ClaimRelations != nil {
			relations, err := pctx.ClaimRelations.GetByClaimIDs(ctx, pctx.Postgres, frontierClaims)
			if err == nil {
				for _, r := range relations {
					if r == nil {
						continue
					}
					for _, id := range [2]uuid.UUID{r.SourceClaimID, r.TargetClaimID} {
						if !visitedClaims[id] {
							visitedClaims[id] = true
							nextClaims = append(nextClaims, id)
							discovered = append(discovered, id)
							chain = append(chain, ReasoningStep{ClaimID: id, RelationToParent: r.Predicate})
						}
					}
				}
			}
		}

		if len(frontierConcepts) > 0 && pctx.ConceptRelations != nil {
			relations, err := pctx.ConceptRelations.GetByConceptIDs(ctx, pctx.Postgres, frontierConcepts)
			if err == nil {
				seen := map[uuid.UUID]bool{}
				for _, r := range relations {
					if r == nil {
						continue
					}
					for _, id := range [2]uuid.UUID{r.SourceConceptID, r.TargetConceptID} {
						if !seen[id] {
							seen[id] = true
							nextConcepts = append(nextConcepts, id)
						}
					}
				}
			}
		}

		frontierClaims = nextClaims
		frontierConcepts = nextConcepts
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].ClaimID.String() < chain[j].ClaimID.String() })
	return chain, discovered
}

func claimsForConcepts(ctx context.Context, pctx *pipeline.Context, conceptIDs []uuid.UUID) ([]uuid.UUID, error) {
	// There is no GetByConceptIDs on ClaimConceptRepo; concept-anchored
	// theme members reach their claims through the concepts' own mentions
	// instead, since every claim that is "about" a concept was extracted
	// from a chunk that concept was mentioned in.
	if pctx.Mentions == nil || pctx.Claims == nil {
		return nil, nil
	}
	mentions, err := pctx.Mentions.GetByConceptIDs(ctx, pctx.Postgres, conceptIDs)
	if err != nil {
		return nil, err
	}
	chunkIDs := make([]uuid.UUID, 0, len(mentions))
	for _, m := range mentions {
		if m != nil {
			chunkIDs = append(chunkIDs, m.ChunkID)
		}
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	claims, err := pctx.Claims.GetByChunkIDs(ctx, pctx.Postgres, chunkIDs)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(claims))
	for _, c := range claims {
		if c != nil {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

// assembleEvidence resolves every recalled chunk and every recalled claim's
// owning chunk into an EvidenceItem, deduplicated by chunk ID.
func assembleEvidence(ctx context.Context, pctx *pipeline.Context, chunkIDs, claimIDs []uuid.UUID) []EvidenceItem {
	if pctx.Chunks == nil {
		return nil
	}

	allChunkIDs := append([]uuid.UUID{}, chunkIDs...)
	if len(claimIDs) > 0 && pctx.Claims != nil {
		claims, err := pctx.Claims.GetByIDs(ctx, pctx.Postgres, claimIDs)
		if err == nil {
			for _, c := range claims {
				if c != nil {
					allChunkIDs = append(allChunkIDs, c.ChunkID)
				}
			}
		}
	}
	allChunkIDs = dedupeUUIDs(allChunkIDs)
	if len(allChunkIDs) == 0 {
		return nil
	}

	chunks, err := pctx.Chunks.GetByIDs(ctx, pctx.Postgres, allChunkIDs)
	if err != nil {
		return nil
	}

	var docExternalID func(uuid.UUID) string
	if pctx.Documents != nil {
		cache := map[uuid.UUID]string{}
		docExternalID = func(id uuid.UUID) string {
			if v, ok := cache[id]; ok {
				return v
			}
			doc, err := pctx.Documents.GetByID(ctx, pctx.Postgres, id)
			if err != nil || doc == nil {
				cache[id] = ""
				return ""
			}
			cache[id] = doc.ExternalID
			return doc.ExternalID
		}
	}

	out := make([]EvidenceItem, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		item := EvidenceItem{
			ChunkID: c.ID.String(),
			Snippet: snippet(c.Text, 240),
		}
		if docExternalID != nil {
			item.DocID = docExternalID(c.DocumentID)
		}
		item.SectionPath = jsonToStrings(c.SectionPath)
		item.SentenceIDs = jsonToStrings(c.SentenceIDs)
		out = append(out, item)
	}
	return out
}

var citationAnchor = regexp.MustCompile(`\[[0-9a-fA-F-]{8,}\]`)
var answerSentenceRE = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]*`)

const generationSystemPrompt = `You are answering a question using only the evidence snippets provided. Cite the evidence you use inline as [chunk_id]. If the evidence does not support an answer, say so plainly instead of guessing.`

// generate asks the LLM for a scoped answer and keeps only the sentences
// that carry their own citation anchor into an evidence chunk it was given;
// a response with no citable sentences at all gets exactly one repair retry
// with a sharper instruction before the caller degrades to presenting
// evidence directly.
func generate(ctx context.Context, pctx *pipeline.Context, question string, evidence []EvidenceItem) (string, bool) {
	if pctx.LLM == nil {
		return "", false
	}
	prompt := buildPrompt(question, evidence)

	answer, err := pctx.LLM.GenerateText(ctx, generationSystemPrompt, prompt)
	if err == nil {
		if cited, ok := citedSentences(answer, evidence); ok {
			return cited, true
		}
	}

	repairPrompt := prompt + "\n\nEvery sentence in your previous answer must cite an evidence snippet by its [chunk_id], or be dropped. Rewrite the answer so each sentence carries its own citation."
	answer, err = pctx.LLM.GenerateText(ctx, generationSystemPrompt, repairPrompt)
	if err != nil {
		return "", false
	}
	cited, ok := citedSentences(answer, evidence)
	if !ok {
		return "", false
	}
	return cited, true
}

func buildPrompt(question string, evidence []EvidenceItem) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nEvidence:\n")
	for _, e := range evidence {
		b.WriteString("[")
		b.WriteString(e.ChunkID)
		b.WriteString("] ")
		b.WriteString(e.Snippet)
		b.WriteString("\n")
	}
	return b.String()
}

// citedSentences splits answer into sentences and keeps only the ones
// carrying at least one citation anchor pointing at a chunk actually in
// evidence, so a hallucinated [chunk_id] anchor never counts. It accepts
// the response only when at least one sentence survives; an answer that
// cites nothing anywhere is rejected outright rather than partially kept.
func citedSentences(answer string, evidence []EvidenceItem) (string, bool) {
	if answer == "" {
		return "", false
	}
	valid := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		valid["["+e.ChunkID+"]"] = true
	}

	var kept []string
	for _, s := range answerSentenceRE.FindAllString(answer, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		anchors := citationAnchor.FindAllString(s, -1)
		if len(anchors) == 0 {
			continue
		}
		for _, a := range anchors {
			if valid[a] {
				kept = append(kept, s)
				break
			}
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}

func snippet(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "..."
}

func jsonToStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func dedupeUUIDs(ids []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
