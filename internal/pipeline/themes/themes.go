// Package themes implements Stage 4 (Theme Builder): community detection
// over the concepts touched by a document, summarized into Theme nodes
// with extracted keywords and an LLM-generated label (§4.4).
package themes

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/orsinium-labs/stopwords"
	"gorm.io/datatypes"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

var enStopwords = stopwords.MustGet("en")

var hanStopwords = map[string]bool{
	"的": true, "了": true, "和": true, "是": true, "在": true, "这": true,
	"也": true, "与": true, "及": true, "中": true, "为": true, "对": true,
}

const minCommunitySize = 2

// Build runs Stage 4 over one document's entity-linking and claim-extraction
// output. It never fails the document on its own: a document whose concept
// subgraph is too sparse to partition simply yields no themes.
func Build(ctx context.Context, pctx *pipeline.Context, documentID uuid.UUID, link *pipeline.LinkResult, claimResult *pipeline.ClaimResult) (*pipeline.ThemeResult, error) {
	result := &pipeline.ThemeResult{}
	if pctx == nil || link == nil {
		return result, nil
	}

	g := newGraph()
	conceptMentions := map[uuid.UUID][]string{} // conceptID -> surfaces mentioned, for keyword seeding
	for _, m := range link.Mentions {
		if m == nil || m.Decision != "accept" {
			continue
		}
		g.addNode(m.ConceptID)
		conceptMentions[m.ConceptID] = append(conceptMentions[m.ConceptID], m.Surface)
	}

	// Concept-concept co-mention edges: concepts accepted within the same
	// chunk are weakly related even before predicate governance runs.
	byChunk := map[uuid.UUID][]uuid.UUID{}
	for _, m := range link.Mentions {
		if m == nil || m.Decision != "accept" {
			continue
		}
		byChunk[m.ChunkID] = append(byChunk[m.ChunkID], m.ConceptID)
	}
	for _, concepts := range byChunk {
		for i := 0; i < len(concepts); i++ {
			for j := i + 1; j < len(concepts); j++ {
				g.addEdge(concepts[i], concepts[j], 0.5)
			}
		}
	}

	// Candidate (ungoverned) concept-concept triples carry a stronger edge
	// than bare co-mention, since a predicate phrase was actually found
	// between them.
	for _, t := range link.CandidateTriples {
		g.addEdge(t.SourceConceptID, t.TargetConceptID, 1.0+t.Confidence)
	}

	conceptText := map[uuid.UUID]string{}
	for _, c := range link.Concepts {
		if c != nil {
			conceptText[c.ID] = c.Name + " " + c.Description
		}
	}

	// Claims that share a concept pull those concepts' theme closer
	// together, proportional to how many concepts they co-mention.
	if claimResult != nil {
		byClaimConcepts := map[uuid.UUID][]uuid.UUID{}
		for _, cc := range claimResult.ClaimConcepts {
			if cc != nil {
				byClaimConcepts[cc.ClaimID] = append(byClaimConcepts[cc.ClaimID], cc.ConceptID)
			}
		}
		claimTextByID := map[uuid.UUID]string{}
		for _, c := range claimResult.Claims {
			if c != nil {
				claimTextByID[c.ID] = c.Text
			}
		}
		for claimID, concepts := range byClaimConcepts {
			for i := 0; i < len(concepts); i++ {
				for j := i + 1; j < len(concepts); j++ {
					g.addEdge(concepts[i], concepts[j], 0.3)
				}
				conceptText[concepts[i]] = conceptText[concepts[i]] + " " + claimTextByID[claimID]
			}
		}
	}

	if len(g.nodes) < minCommunitySize {
		return result, nil
	}

	coarse := louvain(g)

	minSize := minCommunitySize
	if pctx.Config != nil {
		if configured := int(pctx.Config.Thresholds.ThemesF("min_community_size", float64(minCommunitySize))); configured > 0 {
			minSize = configured
		}
	}

	var themes []*domain.Theme
	var members []*domain.ThemeMember

	for _, comm := range coarse {
		if len(comm.members) < minSize {
			continue
		}
		theme := buildTheme(documentID, comm.members, comm.modularity, "coarse", nil, conceptText, conceptMentions)
		themes = append(themes, theme)
		for _, memberID := range comm.members {
			members = append(members, &domain.ThemeMember{
				ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("theme_member|"+theme.ID.String()+"|concept|"+memberID.String())),
				ThemeID:    theme.ID,
				MemberType: "concept",
				MemberID:   memberID,
			})
		}

		if len(comm.members) < 6 {
			continue
		}
		sub := subgraph(g, comm.members)
		fine := louvain(sub)
		for _, fc := range fine {
			if len(fc.members) < minSize || len(fc.members) == len(comm.members) {
				continue
			}
			parentID := theme.ID
			fineTheme := buildTheme(documentID, fc.members, fc.modularity, "fine", &parentID, conceptText, conceptMentions)
			themes = append(themes, fineTheme)
			for _, memberID := range fc.members {
				members = append(members, &domain.ThemeMember{
					ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("theme_member|"+fineTheme.ID.String()+"|concept|"+memberID.String())),
					ThemeID:    fineTheme.ID,
					MemberType: "concept",
					MemberID:   memberID,
				})
			}
		}
	}

	var sampleClaims []string
	if claimResult != nil {
		for i, c := range claimResult.Claims {
			if i >= 5 || c == nil {
				break
			}
			sampleClaims = append(sampleClaims, c.Text)
		}
	}
	for _, theme := range themes {
		summarizeTheme(ctx, pctx, theme, sampleClaims)
	}
	embedThemes(ctx, pctx, themes)

	result.Themes = themes
	result.Members = members
	return result, nil
}

// embedThemes embeds each theme's label+summary so theme-first recall can
// run a vector search over "theme" the same way linking searches "concept".
func embedThemes(ctx context.Context, pctx *pipeline.Context, themes []*domain.Theme) {
	if len(themes) == 0 {
		return
	}
	texts := make([]string, len(themes))
	for i, t := range themes {
		texts[i] = strings.TrimSpace(t.Label + ". " + t.Summary)
	}
	vectors := pipeline.EmbedBatch(ctx, pctx, texts)
	for i, t := range themes {
		t.Embedding = vectors[i]
	}
}

const themeSummaryPrompt = `Given a set of related concept names and a few sample claims from the same document, write a one-sentence label (under 8 words) and a two-sentence summary of what ties them together.
Respond with JSON: {"label": "...", "summary": "..."}`

// summarizeTheme asks the LLM for a human label and summary. A missing
// client or a failed call leaves the TF-IDF-derived label in place and the
// summary empty rather than failing theme construction.
func summarizeTheme(ctx context.Context, pctx *pipeline.Context, theme *domain.Theme, sampleClaims []string) {
	if pctx.LLM == nil {
		return
	}
	var keywords []string
	_ = json.Unmarshal(theme.Keywords, &keywords)
	prompt := "Keywords: " + strings.Join(keywords, ", ")
	if len(sampleClaims) > 0 {
		prompt += "\nSample claims:\n- " + strings.Join(sampleClaims, "\n- ")
	}

	var out struct {
		Label   string `json:"label"`
		Summary string `json:"summary"`
	}
	if err := pctx.LLM.GenerateJSON(ctx, themeSummaryPrompt, prompt, &out); err != nil {
		if pctx.Log != nil {
			pctx.Log.Warn("theme summary generation failed (continuing with keyword label)", "error", err, "theme_id", theme.ID.String())
		}
		return
	}
	if strings.TrimSpace(out.Label) != "" {
		theme.Label = strings.TrimSpace(out.Label)
	}
	theme.Summary = strings.TrimSpace(out.Summary)
}

func subgraph(g *graph, keep []uuid.UUID) *graph {
	keepSet := map[uuid.UUID]bool{}
	for _, id := range keep {
		keepSet[id] = true
	}
	sub := newGraph()
	for key, w := range g.weights {
		a, b := g.nodes[key[0]], g.nodes[key[1]]
		if keepSet[a] && keepSet[b] {
			sub.addEdge(a, b, w)
		}
	}
	for _, id := range keep {
		sub.addNode(id)
	}
	return sub
}

func buildTheme(documentID uuid.UUID, memberIDs []uuid.UUID, modularityScore float64, level string, parentID *uuid.UUID, conceptText map[uuid.UUID]string, conceptMentions map[uuid.UUID][]string) *domain.Theme {
	sorted := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		sorted = append(sorted, id.String())
	}
	sort.Strings(sorted)

	keyInput := level + "|" + strings.Join(sorted, ",")
	themeID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("theme|"+keyInput))

	seeded := map[uuid.UUID]string{}
	for _, id := range memberIDs {
		seeded[id] = conceptText[id] + " " + strings.Join(conceptMentions[id], " ")
	}
	keywords := extractKeywords(memberIDs, seeded, 8)
	keywordsJSON, _ := marshalKeywords(keywords)

	label := strings.Join(keywords[:min(3, len(keywords))], ", ")
	if label == "" {
		label = "Untitled theme"
	}

	return &domain.Theme{
		ID:            themeID,
		DocumentID:    documentID,
		Label:         label,
		Keywords:      keywordsJSON,
		Modularity:    modularityScore,
		Level:         level,
		ParentThemeID: parentID,
	}
}

// extractKeywords runs TF-IDF over each member concept's accumulated text
// (name/description/co-mentioned claim text), treating every member as one
// document, then returns the top-N tokens by summed TF-IDF weight across
// the whole community. Stopwords use the same English list the entity
// linker's lexical scoring tokenizer ignores, plus a small Han stopword
// set for Chinese text (no general-purpose CJK stopword library exists in
// the dependency pack).
func extractKeywords(memberIDs []uuid.UUID, conceptText map[uuid.UUID]string, topN int) []string {
	docs := make([][]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		docs = append(docs, tokenize(conceptText[id]))
	}
	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]bool{}
		for _, tok := range doc {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			df[tok]++
		}
	}
	n := float64(len(docs))
	scores := map[string]float64{}
	for _, doc := range docs {
		tf := map[string]int{}
		for _, tok := range doc {
			tf[tok]++
		}
		for tok, count := range tf {
			idf := 1.0
			if d := df[tok]; d > 0 {
				idf = logSafe(n/float64(d)) + 1.0
			}
			scores[tok] += float64(count) * idf
		}
	}

	type scored struct {
		token string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for tok, s := range scores {
		ranked = append(ranked, scored{tok, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].token < ranked[j].token
	})

	out := make([]string, 0, topN)
	for _, r := range ranked {
		if len(out) >= topN {
			break
		}
		out = append(out, r.token)
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(isLetterDigit(r))
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if len(f) < 2 {
			continue
		}
		if isHanToken(f) {
			if hanStopwords[f] {
				continue
			}
		} else if enStopwords.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isLetterDigit(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 0x2E80
}

func isHanToken(s string) bool {
	for _, r := range s {
		if r < 0x2E80 {
			return false
		}
	}
	return true
}

func marshalKeywords(keywords []string) (datatypes.JSON, error) {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	return datatypes.JSON(raw), err
}

func logSafe(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}
