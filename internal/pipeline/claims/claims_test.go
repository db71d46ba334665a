package claims

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
)

func TestNormHash_IsCaseAndWhitespaceInsensitive(t *testing.T) {
	require.Equal(t, normHash("The  Model  Improves Accuracy."), normHash("the model improves accuracy."))
}

func TestNormHash_DifferentTextDiffers(t *testing.T) {
	require.NotEqual(t, normHash("claim one"), normHash("claim two"))
}

func TestNormalizeModality_DefaultsToAssertive(t *testing.T) {
	require.Equal(t, "assertive", normalizeModality(""))
	require.Equal(t, "assertive", normalizeModality("unknown"))
	require.Equal(t, "hedged", normalizeModality("Hedged"))
	require.Equal(t, "speculative", normalizeModality("SPECULATIVE"))
}

func TestHasHedge_DetectsMarkerWords(t *testing.T) {
	require.True(t, hasHedge("This may improve throughput."))
	require.True(t, hasHedge("结果似乎支持这一假设。"))
	require.False(t, hasHedge("The model improves throughput by 12 percent."))
}

func TestTruncate_LeavesShortStringsUntouched(t *testing.T) {
	require.Equal(t, "short", truncate("short", 800))
}

func TestTruncate_CutsLongStrings(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	require.Len(t, truncate(string(long), 800), 800)
}

func TestClaimID_IsDeterministic(t *testing.T) {
	chunkID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	a := claimID(chunkID, "hash-a", "v1")
	b := claimID(chunkID, "hash-a", "v1")
	require.Equal(t, a, b)

	c := claimID(chunkID, "hash-b", "v1")
	require.NotEqual(t, a, c)
}

func TestNliDowngrade_CausesWithoutMarkerDowngradesToRelatedTo(t *testing.T) {
	require.Equal(t, "RELATED_TO", nliDowngrade("CAUSES", "the model improved and the dataset grew", 0.4))
}

func TestNliDowngrade_CausesWithMarkerSurvives(t *testing.T) {
	require.Equal(t, "CAUSES", nliDowngrade("causes", "throughput increased because the batch size grew", 0.4))
}

func TestNliDowngrade_ContradictsWithoutMarkerDowngrades(t *testing.T) {
	require.Equal(t, "RELATED_TO", nliDowngrade("CONTRADICTS", "both papers report similar numbers", 0.4))
}

func TestNliDowngrade_ContradictsWithMarkerSurvives(t *testing.T) {
	require.Equal(t, "CONTRADICTS", nliDowngrade("contradicts", "however, the second study found the opposite", 0.4))
}

func TestNliDowngrade_SupportsPassesThroughUnchanged(t *testing.T) {
	require.Equal(t, "SUPPORTS", nliDowngrade("supports", "anything", 0.4))
}

func TestBuildWindowText_ConcatenatesResolvedTextWhenPresent(t *testing.T) {
	chunkA := &domain.Chunk{ID: uuid.New(), Text: "Original A."}
	chunkB := &domain.Chunk{ID: uuid.New(), Text: "Original B."}
	resolved := map[uuid.UUID]string{chunkA.ID: "Resolved A."}

	text := buildWindowText([]*domain.Chunk{chunkA, chunkB}, resolved)
	require.Contains(t, text, "Resolved A.")
	require.Contains(t, text, "Original B.")
	require.NotContains(t, text, "Original A.")
}

func TestChunkForClaim_MatchesOpeningWords(t *testing.T) {
	chunkA := &domain.Chunk{ID: uuid.New(), Text: "The model trains quickly on small datasets."}
	chunkB := &domain.Chunk{ID: uuid.New(), Text: "Throughput increased after the batch size grew."}

	found := chunkForClaim("Throughput increased after the change.", []*domain.Chunk{chunkA, chunkB})
	require.Equal(t, chunkB.ID, found.ID)
}

func TestChunkForClaim_FallsBackToFirstChunkWhenNoMatch(t *testing.T) {
	chunkA := &domain.Chunk{ID: uuid.New(), Text: "Unrelated text entirely."}
	found := chunkForClaim("Something completely different.", []*domain.Chunk{chunkA})
	require.Equal(t, chunkA.ID, found.ID)
}
