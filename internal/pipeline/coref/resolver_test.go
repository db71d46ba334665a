package coref

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
)

func newChunk(text string) *domain.Chunk {
	return &domain.Chunk{ID: uuid.New(), Text: text}
}

func TestResolve_AliasRewrite(t *testing.T) {
	chunk := newChunk("人工智能（AI）是一种技术。AI 可以处理自然语言。")
	result := Resolve(chunk, DefaultThresholds())

	require.Equal(t, "人工智能", result.AliasMap["AI"])
	require.Equal(t, ModeRewrite, result.Mode)
	require.Contains(t, result.ResolvedText, "人工智能")
	require.NotContains(t, result.ResolvedText, "AI")
}

func TestResolve_RewriteSatisfiesRoundTripLaw(t *testing.T) {
	chunk := newChunk("人工智能（AI）是一种技术。AI 可以处理自然语言。AI 正在快速发展。")
	result := Resolve(chunk, DefaultThresholds())
	require.Equal(t, ModeRewrite, result.Mode)

	rewritten := chunk.Text
	for surface, canonical := range result.AliasMap {
		rewritten = strings.ReplaceAll(rewritten, surface, canonical)
	}
	require.Equal(t, result.ResolvedText, rewritten)
}

func TestResolve_PronounResolvesToNearestCompatibleAntecedent(t *testing.T) {
	chunk := newChunk("The researcher published a new model. She later presented it at a conference.")
	result := Resolve(chunk, DefaultThresholds())

	require.Equal(t, "researcher", strings.ToLower(result.AliasMap["She"]))
}

func TestResolve_NoAntecedentLeavesMentionUnresolved(t *testing.T) {
	chunk := newChunk("It was raining heavily outside yesterday evening.")
	result := Resolve(chunk, DefaultThresholds())

	_, resolved := result.AliasMap["It"]
	require.False(t, resolved)
}

func TestResolve_VeryShortChunkIsSkipped(t *testing.T) {
	chunk := newChunk("Chapter 3")
	result := Resolve(chunk, DefaultThresholds())

	require.Equal(t, ModeSkip, result.Mode)
	require.Empty(t, result.AliasMap)
}

func TestResolve_NilChunkDowngradesToSkip(t *testing.T) {
	result := Resolve(nil, DefaultThresholds())
	require.Equal(t, ModeSkip, result.Mode)
	require.NotNil(t, result.AliasMap)
}

func TestResolve_AliasOnlyWhenNoPronounsFollow(t *testing.T) {
	chunk := newChunk("神经网络（NN）是一种计算模型。")
	result := Resolve(chunk, DefaultThresholds())

	require.Equal(t, "神经网络", result.AliasMap["NN"])
	require.NotEqual(t, ModeSkip, result.Mode)
}
