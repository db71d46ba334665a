package query

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/platform/vectorindex"
)

type stubLLM struct {
	embedding []float32
	answer    string
	embedErr  error
	genErr    error
}

func (s *stubLLM) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	return nil
}
func (s *stubLLM) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.answer, s.genErr
}
func (s *stubLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.embedding
	}
	return out, nil
}

type stubVectors struct {
	neighbors map[string][]vectorindex.Neighbor
}

func (s *stubVectors) Upsert(ctx context.Context, ownerType string, ownerID uuid.UUID, embedding []float32, buildVersion string) error {
	return nil
}
func (s *stubVectors) Search(ctx context.Context, ownerType string, embedding []float32, topK int) ([]vectorindex.Neighbor, error) {
	return s.neighbors[ownerType], nil
}
func (s *stubVectors) Delete(ctx context.Context, ownerType string, ownerID uuid.UUID) error {
	return nil
}

func TestCitedSentences_KeepsSentenceWithValidChunkAnchor(t *testing.T) {
	chunkID := uuid.New().String()
	evidence := []EvidenceItem{{ChunkID: chunkID}}
	answer := "Transformers use attention. [" + chunkID + "]"
	cited, ok := citedSentences(answer, evidence)
	require.True(t, ok)
	require.Contains(t, cited, chunkID)
}

func TestCitedSentences_RejectsAnswerWithNoAnchorAnywhere(t *testing.T) {
	evidence := []EvidenceItem{{ChunkID: uuid.New().String()}}
	_, ok := citedSentences("Transformers use attention.", evidence)
	require.False(t, ok)
}

func TestCitedSentences_RejectsAnchorNotInEvidenceSet(t *testing.T) {
	evidence := []EvidenceItem{{ChunkID: uuid.New().String()}}
	_, ok := citedSentences("Answer. ["+uuid.New().String()+"]", evidence)
	require.False(t, ok)
}

func TestCitedSentences_DropsUncitedSentenceButKeepsCitedOne(t *testing.T) {
	chunkID := uuid.New().String()
	evidence := []EvidenceItem{{ChunkID: chunkID}}
	answer := "This sentence has no citation. This one does. [" + chunkID + "]"
	cited, ok := citedSentences(answer, evidence)
	require.True(t, ok)
	require.NotContains(t, cited, "no citation")
	require.Contains(t, cited, chunkID)
}

func TestDedupeUUIDs_DropsNilAndDuplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	out := dedupeUUIDs([]uuid.UUID{a, uuid.Nil, b, a})
	require.ElementsMatch(t, []uuid.UUID{a, b}, out)
}

func TestAnswer_NoLLMDegradesImmediately(t *testing.T) {
	pctx := &pipeline.Context{}
	resp, err := Answer(context.Background(), pctx, Request{Question: "what is attention?"})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
}

func TestAnswer_EmptyQuestionDegrades(t *testing.T) {
	pctx := &pipeline.Context{LLM: &stubLLM{embedding: []float32{0.1, 0.2}}}
	resp, err := Answer(context.Background(), pctx, Request{Question: ""})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
}

type stubChunkRepo struct{ chunks map[uuid.UUID]*domain.Chunk }

func (s *stubChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) ([]*domain.Chunk, error) {
	return nil, nil
}
func (s *stubChunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*domain.Chunk, error) {
	return nil, nil
}
func (s *stubChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error) {
	var out []*domain.Chunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *stubChunkRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return nil
}

// TestAnswer_LocalModeCitesRecalledChunk exercises the local-mode path end
// to end: vector recall over a single chunk, evidence assembly, and a
// generated answer that cites that chunk's ID.
func TestAnswer_LocalModeCitesRecalledChunk(t *testing.T) {
	chunk := &domain.Chunk{ID: uuid.New(), Text: "Transformers rely on self-attention rather than recurrence."}
	answerText := "Transformers use self-attention. [" + chunk.ID.String() + "]"

	pctx := &pipeline.Context{
		LLM: &stubLLM{embedding: []float32{0.1, 0.2, 0.3}, answer: answerText},
		Vectors: &stubVectors{neighbors: map[string][]vectorindex.Neighbor{
			"chunk": {{OwnerID: chunk.ID, Distance: 0.1}},
		}},
		Chunks: &stubChunkRepo{chunks: map[uuid.UUID]*domain.Chunk{chunk.ID: chunk}},
	}

	resp, err := Answer(context.Background(), pctx, Request{Question: "how do transformers work?", Mode: "local"})
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.Len(t, resp.Evidence, 1)
	require.Contains(t, resp.Answer, chunk.ID.String())
}

// TestAnswer_NoEvidenceDegrades covers the case where recall finds nothing
// to cite: the response still reports its (empty) evidence and reasoning
// chain rather than fabricating an answer.
func TestAnswer_NoEvidenceDegrades(t *testing.T) {
	pctx := &pipeline.Context{
		LLM:     &stubLLM{embedding: []float32{0.1, 0.2}},
		Vectors: &stubVectors{neighbors: map[string][]vectorindex.Neighbor{}},
		Chunks:  &stubChunkRepo{chunks: map[uuid.UUID]*domain.Chunk{}},
	}
	resp, err := Answer(context.Background(), pctx, Request{Question: "what is attention?", Mode: "local"})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.Empty(t, resp.Evidence)
}
