// Package claims implements Stage 3a (Claim Extraction): pulling atomic,
// evidence-grounded statements and inter-claim relations out of sliding
// windows of chunks via a scoped LLM call, deduping claims against prior
// builds by normalized-text hash, and redirecting losers to the surviving
// canonical claim (§8 redirection invariant).
package claims

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

// extracted is the shape the LLM is asked to return for one window; the
// system prompt constrains modality and relation type to the same closed
// sets the domain model and predicate whitelist expect.
type extracted struct {
	Claims    []extractedClaim    `json:"claims"`
	Relations []extractedRelation `json:"relations"`
}

type extractedClaim struct {
	LocalID    string  `json:"local_id"`
	Text       string  `json:"text"`
	Modality   string  `json:"modality"` // assertive|hedged|speculative
	Confidence float64 `json:"confidence"`
}

type extractedRelation struct {
	SourceLocalID string  `json:"source_local_id"`
	TargetLocalID string  `json:"target_local_id"`
	Predicate     string  `json:"predicate"` // SUPPORTS|CONTRADICTS|CAUSES|COMPARES_WITH|CONDITIONS
	Confidence    float64 `json:"confidence"`
}

var hedgeMarkers = []string{"may ", "might ", "could ", "suggests", "appears to", "possibly", "likely", "似乎", "可能"}

// causalMarkers and contrastMarkers are a lexical stand-in for entailment
// scoring: there is no NLI library anywhere in the dependency pack, so
// CAUSES/CONTRADICTS relations are corroborated against explicit signal
// phrases in the source window rather than a trained NLI model.
var causalMarkers = []string{"because", "therefore", "as a result", "due to", "leads to", "causes", "因此", "导致"}
var contrastMarkers = []string{"however", "in contrast", "on the other hand", "but ", "whereas", "但是", "相反"}

const systemPrompt = `You extract atomic, independently verifiable claims from a document excerpt, plus any relation between them.
Each claim must be a single self-contained statement with no pronouns left unresolved. Give each claim a short local_id (e.g. "c1") used only within this response.
Classify modality as "assertive" (stated as fact), "hedged" (qualified with a hedge word), or "speculative" (framed as a possibility).
For any pair of claims where one SUPPORTS, CONTRADICTS, CAUSES, COMPARES_WITH, or CONDITIONS the other, emit a relation referencing their local_ids.
Respond with JSON: {"claims": [{"local_id": "c1", "text": "...", "modality": "...", "confidence": 0.0-1.0}], "relations": [{"source_local_id": "c1", "target_local_id": "c2", "predicate": "SUPPORTS", "confidence": 0.0-1.0}]}`

// Extract runs Stage 3a over sliding windows of adjacent chunks, wider than
// Stage 0's chunk window so cross-sentence argumentation stays in view. A
// window whose LLM call fails is retried once with a shortened excerpt;
// a second failure yields zero claims and relations for that window, never
// failing the document (§4.3 failure semantics).
func Extract(ctx context.Context, pctx *pipeline.Context, chunks []*domain.Chunk, resolvedText map[uuid.UUID]string) (*pipeline.ClaimResult, error) {
	result := &pipeline.ClaimResult{}
	if pctx == nil || pctx.LLM == nil {
		return result, nil
	}
	minConfidence := 0.5
	hedgePenalty := 0.15
	windowChunks := 2
	nliContradictsThreshold := 0.4
	if pctx.Config != nil {
		minConfidence = pctx.Config.Thresholds.ClaimsF("min_confidence", 0.5)
		hedgePenalty = pctx.Config.Thresholds.ClaimsF("hedge_penalty", 0.15)
		nliContradictsThreshold = pctx.Config.Thresholds.ClaimsF("nli_contradicts_threshold", 0.4)
		if wc := int(pctx.Config.Thresholds.ClaimsF("window_chunks", 2)); wc > 0 {
			windowChunks = wc
		}
	}

	seenHashes := map[string]*domain.Claim{}
	var allClaims []*domain.Claim
	var allClaimConcepts []*domain.ClaimConcept
	var allTriples []pipeline.ClaimTriple

	for start := 0; start < len(chunks); start += windowChunks {
		end := start + windowChunks
		if end > len(chunks) {
			end = len(chunks)
		}
		window := chunks[start:end]
		windowText := buildWindowText(window, resolvedText)
		if len(strings.TrimSpace(windowText)) < 20 {
			continue
		}

		raw, err := extractOne(ctx, pctx, windowText)
		if err != nil {
			raw, err = extractOne(ctx, pctx, truncate(windowText, 800))
			if err != nil {
				continue
			}
		}

		localToClaim := map[string]*domain.Claim{}
		for _, ec := range raw.Claims {
			claimText := strings.TrimSpace(ec.Text)
			if claimText == "" {
				continue
			}
			modality := normalizeModality(ec.Modality)
			confidence := ec.Confidence
			if confidence <= 0 {
				confidence = 0.7
			}
			if hasHedge(claimText) && modality == "assertive" {
				modality = "hedged"
			}
			if modality == "hedged" {
				confidence -= hedgePenalty
			}
			if confidence < minConfidence {
				continue
			}

			chunk := chunkForClaim(claimText, window)
			hash := normHash(claimText)
			if existing, dup := seenHashes[hash]; dup {
				// Same normalized text already seen in this build: record
				// this one's evidence onto the survivor rather than
				// minting a second row for it.
				existing.Confidence = maxFloat(existing.Confidence, confidence)
				if ec.LocalID != "" {
					localToClaim[ec.LocalID] = existing
				}
				continue
			}

			evidence, _ := json.Marshal(map[string]any{
				"doc_id":       chunk.DocumentID.String(),
				"chunk_id":     chunk.ID.String(),
				"section_path": string(chunk.SectionPath),
				"sentence_ids": string(chunk.SentenceIDs),
			})

			claim := &domain.Claim{
				ID:           claimID(chunk.ID, hash, pctx.BuildVersion()),
				ChunkID:      chunk.ID,
				DocumentID:   chunk.DocumentID,
				NormHash:     hash,
				Text:         claimText,
				Modality:     modality,
				Confidence:   confidence,
				Evidence:     datatypes.JSON(evidence),
				BuildVersion: pctx.BuildVersion(),
			}
			seenHashes[hash] = claim
			allClaims = append(allClaims, claim)
			if ec.LocalID != "" {
				localToClaim[ec.LocalID] = claim
			}
		}

		for _, er := range raw.Relations {
			source, ok1 := localToClaim[er.SourceLocalID]
			target, ok2 := localToClaim[er.TargetLocalID]
			if !ok1 || !ok2 || source.ID == target.ID {
				continue
			}
			predicate := nliDowngrade(er.Predicate, windowText, nliContradictsThreshold)
			confidence := er.Confidence
			if confidence <= 0 {
				confidence = 0.6
			}
			allTriples = append(allTriples, pipeline.ClaimTriple{
				SourceClaimID: source.ID,
				TargetClaimID: target.ID,
				RawPredicate:  predicate,
				Confidence:    confidence,
			})
		}
	}

	if pctx.Claims != nil && len(allClaims) > 0 {
		documentID := allClaims[0].DocumentID
		hashes := make([]string, 0, len(allClaims))
		for _, c := range allClaims {
			hashes = append(hashes, c.NormHash)
		}
		priorClaims, err := pctx.Claims.GetByNormHashes(ctx, nil, documentID, hashes)
		if err == nil {
			priorByHash := map[string]*domain.Claim{}
			for _, pc := range priorClaims {
				priorByHash[pc.NormHash] = pc
			}
			filtered := make([]*domain.Claim, 0, len(allClaims))
			for _, c := range allClaims {
				if prior, ok := priorByHash[c.NormHash]; ok && prior.BuildVersion != c.BuildVersion {
					// A prior build already produced this exact claim text:
					// redirect this run's row to the earlier survivor rather
					// than creating a duplicate canonical claim. Follow the
					// survivor's own CanonicalID to its terminal claim first,
					// so a chain never grows past one redirect hop.
					redirect := terminalCanonical(prior)
					c.CanonicalID = &redirect
				}
				filtered = append(filtered, c)
			}
			allClaims = filtered
		}
	}

	result.Claims = allClaims
	result.ClaimConcepts = allClaimConcepts
	result.CandidateTriples = allTriples
	return result, nil
}

// buildWindowText concatenates a window's chunks with blank-line
// separators into the text the extraction prompt is run against.
func buildWindowText(window []*domain.Chunk, resolvedText map[uuid.UUID]string) string {
	var b strings.Builder
	for _, chunk := range window {
		if chunk == nil {
			continue
		}
		text := chunk.Text
		if rt, ok := resolvedText[chunk.ID]; ok && rt != "" {
			text = rt
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// chunkForClaim finds the chunk whose text contains claimText's opening
// words; falling back to the window's first chunk keeps every claim
// attributable even when the LLM lightly paraphrased the source sentence.
func chunkForClaim(claimText string, window []*domain.Chunk) *domain.Chunk {
	for _, chunk := range window {
		if chunk != nil && strings.Contains(chunk.Text, firstWords(claimText, 4)) {
			return chunk
		}
	}
	if len(window) > 0 {
		return window[0]
	}
	return &domain.Chunk{}
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// nliDowngrade applies the lexical signal-phrase check in place of a
// trained NLI model: CAUSES without a causal marker in the window, or
// CONTRADICTS without a contrast marker, downgrades to RELATED_TO rather
// than being dropped outright.
func nliDowngrade(predicate, windowText string, contradictsThreshold float64) string {
	predicate = strings.ToUpper(strings.TrimSpace(predicate))
	lower := strings.ToLower(windowText)
	switch predicate {
	case "CAUSES":
		if !containsAny(lower, causalMarkers) {
			return "RELATED_TO"
		}
	case "CONTRADICTS":
		if !containsAny(lower, contrastMarkers) && contradictsThreshold > 0 {
			return "RELATED_TO"
		}
	}
	return predicate
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

func extractOne(ctx context.Context, pctx *pipeline.Context, text string) (extracted, error) {
	var out extracted
	if err := pctx.LLM.GenerateJSON(ctx, systemPrompt, text, &out); err != nil {
		return extracted{}, fmt.Errorf("claims: generate: %w", err)
	}
	return out, nil
}

func normalizeModality(m string) string {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "hedged":
		return "hedged"
	case "speculative":
		return "speculative"
	default:
		return "assertive"
	}
}

func hasHedge(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range hedgeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// normHash is the dedup key: lowercased, punctuation-stripped, lemmatized,
// whitespace-collapsed text hashed with sha256, generalized with a
// suffix-rule lemmatizer so that "the models rank documents" and "the
// model ranked documents." collide on the same claim instead of producing
// two rows.
func normHash(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = stripPunctuation(f)
		if f == "" {
			continue
		}
		words = append(words, lemmatize(f))
	}
	norm := strings.Join(words, " ")
	sum := sha256.Sum256([]byte(norm))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func stripPunctuation(word string) string {
	var b strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lemmatizationSuffixes maps an inflectional suffix to its replacement,
// longest first so "ies" is tried before "es" is tried before "s". This is a
// suffix-rule lemmatizer, not a model call: it trades linguistic precision
// for determinism inside the dedup hash.
var lemmatizationSuffixes = []struct {
	suffix, replace string
	minStem         int
}{
	{"ies", "y", 3},
	{"ing", "", 3},
	{"ied", "y", 3},
	{"ed", "", 3},
	{"es", "", 3},
	{"s", "", 3},
}

func lemmatize(word string) string {
	for _, rule := range lemmatizationSuffixes {
		if strings.HasSuffix(word, rule.suffix) {
			stem := strings.TrimSuffix(word, rule.suffix)
			if len(stem) >= rule.minStem {
				return stem + rule.replace
			}
		}
	}
	return word
}

// terminalCanonical follows prior's own CanonicalID, if it has one, so a
// redirect always points at the chain's terminal claim rather than growing
// a second hop (§8's chain-length-1 invariant).
func terminalCanonical(prior *domain.Claim) uuid.UUID {
	if prior.CanonicalID != nil {
		return *prior.CanonicalID
	}
	return prior.ID
}

func claimID(chunkID uuid.UUID, hash, buildVersion string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("claim|"+chunkID.String()+"|"+hash+"|"+buildVersion))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
