package chunker

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/docparse"
)

func newDoc() *domain.Document {
	return &domain.Document{ID: uuid.New(), BuildVersion: "v1"}
}

func TestChunk_EmptyDocumentProducesNoChunks(t *testing.T) {
	doc := newDoc()
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: ""}}}
	got := Chunk(doc, parsed, DefaultConfig(), "v1")
	require.Empty(t, got)
}

func TestChunk_BelowMinCharsProducesNoChunks(t *testing.T) {
	doc := newDoc()
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: "Hi."}}}
	got := Chunk(doc, parsed, DefaultConfig(), "v1")
	require.Empty(t, got)
}

func TestChunk_NoHeadingsYieldsEmptySectionPath(t *testing.T) {
	doc := newDoc()
	text := "This is sentence one of sufficient length. This is sentence two of sufficient length. " +
		"This is sentence three of sufficient length. This is sentence four of sufficient length."
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Path: nil, Text: text}}}
	got := Chunk(doc, parsed, DefaultConfig(), "v1")
	require.NotEmpty(t, got)

	var path []string
	require.NoError(t, json.Unmarshal(got[0].SectionPath, &path))
	require.Empty(t, path)
}

func TestChunk_FewerSentencesThanWindowYieldsOneChunk(t *testing.T) {
	doc := newDoc()
	text := "First sentence here is long enough to count. Second sentence here is long enough too."
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: text}}}
	got := Chunk(doc, parsed, DefaultConfig(), "v1")
	require.Len(t, got, 1)

	var sentences []string
	require.NoError(t, json.Unmarshal(got[0].SentenceIDs, &sentences))
	require.Len(t, sentences, 2)
}

func TestChunk_OverlapBetweenAdjacentChunks(t *testing.T) {
	doc := newDoc()
	text := ""
	for i := 0; i < 12; i++ {
		text += "This is sentence number in a long document about testing chunk overlap behavior. "
	}
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: text}}}
	cfg := Config{WindowSentences: 4, StrideSentences: 2, MaxChars: 4000, MinChars: 50}
	got := Chunk(doc, parsed, cfg, "v1")
	require.GreaterOrEqual(t, len(got), 2)

	require.Less(t, got[0].WindowStart, got[1].WindowStart)
	require.Greater(t, got[0].WindowEnd, got[1].WindowStart)
}

func TestChunk_OversizedSentenceBecomesOwnChunk(t *testing.T) {
	doc := newDoc()
	long := ""
	for i := 0; i < 200; i++ {
		long += "verylongword "
	}
	text := "Short lead in sentence here. " + long + ". Short trailing sentence here."
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: text}}}
	cfg := Config{WindowSentences: 4, StrideSentences: 2, MaxChars: 100, MinChars: 10}
	got := Chunk(doc, parsed, cfg, "v1")
	require.NotEmpty(t, got)

	found := false
	for _, c := range got {
		if len(c.Text) > cfg.MaxChars {
			found = true
		}
	}
	require.True(t, found, "the oversized sentence should appear whole in its own chunk even though it exceeds MaxChars")
}

func TestChunk_IsStableAcrossReruns(t *testing.T) {
	doc := newDoc()
	text := "Sentence alpha is here today. Sentence beta is here today. Sentence gamma is here today. " +
		"Sentence delta is here today. Sentence epsilon is here today."
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: text}}}
	cfg := DefaultConfig()

	first := Chunk(doc, parsed, cfg, "v1")
	second := Chunk(doc, parsed, cfg, "v1")
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestChunk_DifferentBuildVersionYieldsDifferentIDs(t *testing.T) {
	doc := newDoc()
	text := "Sentence alpha is here today. Sentence beta is here today. Sentence gamma is here today. " +
		"Sentence delta is here today."
	parsed := &docparse.Parsed{Sections: []docparse.Section{{Text: text}}}
	cfg := DefaultConfig()

	v1 := Chunk(doc, parsed, cfg, "v1")
	v2 := Chunk(doc, parsed, cfg, "v2")
	require.NotEqual(t, v1[0].ID, v2[0].ID)
}
