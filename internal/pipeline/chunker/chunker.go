// Package chunker splits a parsed document into an ordered sequence of
// sentence-windowed Chunks, carrying the section-heading path each window
// falls under. It never calls an LLM or embedding provider — splitting is
// deterministic so re-chunking the same document under the same
// build_version is stable (§8 round-trip law).
package chunker

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/docparse"
)

// Config holds the sliding-window chunking parameters, tunable per corpus.
type Config struct {
	WindowSentences int
	StrideSentences int
	MaxChars        int
	MinChars        int
}

func DefaultConfig() Config {
	return Config{WindowSentences: 4, StrideSentences: 2, MaxChars: 4000, MinChars: 50}
}

// sentence is one document-wide-numbered sentence, still attached to the
// section it was split from.
type sentence struct {
	id          string
	text        string
	sectionPath []string
}

var sentenceSplitRE = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]*`)

// splitSentences is a deterministic, language-agnostic sentence splitter:
// it breaks on the union of Latin and CJK terminal punctuation and never
// calls a model. It is intentionally simple — the chunker's job is stable
// windowing, not linguistic precision.
func splitSentences(text string) []string {
	matches := sentenceSplitRE.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		trimmed := strings.TrimSpace(m)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Chunk splits a parsed document into Chunk values. An empty or
// below-minimum document produces an empty, non-error slice.
func Chunk(doc *domain.Document, parsed *docparse.Parsed, cfg Config, buildVersion string) []*domain.Chunk {
	if cfg.WindowSentences <= 0 {
		cfg = DefaultConfig()
	}
	if doc == nil || parsed == nil {
		return nil
	}

	var sentences []sentence
	seq := 0
	for _, sec := range parsed.Sections {
		for _, raw := range splitSentences(sec.Text) {
			sentences = append(sentences, sentence{
				id:          fmt.Sprintf("s%d", seq),
				text:        raw,
				sectionPath: sec.Path,
			})
			seq++
		}
	}

	if len(sentences) == 0 || totalChars(sentences) < cfg.MinChars {
		return nil
	}

	var chunks []*domain.Chunk
	idx := 0
	for start := 0; start < len(sentences); {
		end := start + cfg.WindowSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		// A sentence longer than the character cap becomes its own
		// single-sentence chunk (§4.0 edge case).
		window := capByChars(sentences[start:end], cfg.MaxChars)

		chunks = append(chunks, buildChunk(doc.ID, idx, window, buildVersion))
		idx++

		covered := start + len(window)
		if covered >= len(sentences) {
			break
		}
		// A window cut short by capByChars resumes at its first dropped
		// sentence, so no sentence is skipped.
		next := start + cfg.StrideSentences
		if next > covered {
			next = covered
		}
		start = next
	}

	return chunks
}

// capByChars trims a window down to the longest prefix under MaxChars; a
// single sentence already over MaxChars is kept alone (never dropped).
func capByChars(window []sentence, maxChars int) []sentence {
	if len(window) <= 1 {
		return window
	}
	total := 0
	for i, s := range window {
		total += len(s.text)
		if total > maxChars {
			if i == 0 {
				return window[:1]
			}
			return window[:i]
		}
	}
	return window
}

func totalChars(sentences []sentence) int {
	n := 0
	for _, s := range sentences {
		n += len(s.text)
	}
	return n
}

func buildChunk(docID uuid.UUID, index int, window []sentence, buildVersion string) *domain.Chunk {
	var textBuilder strings.Builder
	sentenceIDs := make([]string, 0, len(window))
	sectionPath := window[0].sectionPath
	if sectionPath == nil {
		sectionPath = []string{}
	}

	for i, s := range window {
		if i > 0 {
			textBuilder.WriteString(" ")
		}
		textBuilder.WriteString(s.text)
		sentenceIDs = append(sentenceIDs, s.id)
	}

	windowStart := sentenceSeq(window[0].id)
	windowEnd := sentenceSeq(window[len(window)-1].id)

	sectionJSON, _ := json.Marshal(sectionPath)
	sentenceJSON, _ := json.Marshal(sentenceIDs)

	return &domain.Chunk{
		ID:           chunkID(docID, windowStart, windowEnd, buildVersion),
		DocumentID:   docID,
		ChunkIndex:   index,
		Text:         textBuilder.String(),
		SectionPath:  datatypes.JSON(sectionJSON),
		SentenceIDs:  datatypes.JSON(sentenceJSON),
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		BuildVersion: buildVersion,
	}
}

// chunkID hashes (doc_id, window_start, window_end, build_version) into a
// deterministic UUID so re-running the same build_version is idempotent
// (§3 invariant 6, §8 Chunker round-trip law).
func chunkID(docID uuid.UUID, windowStart, windowEnd int, buildVersion string) uuid.UUID {
	h := sha256.New()
	h.Write([]byte(docID.String()))
	h.Write([]byte(fmt.Sprintf(":%d:%d:%s", windowStart, windowEnd, buildVersion)))
	sum := h.Sum(nil)
	return uuid.NewSHA1(uuid.Nil, sum[:16])
}

func sentenceSeq(id string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(id, "s"), "%d", &n)
	return n
}
