package predicates

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-backend/internal/config"
)

func testConfig() *config.PredicateConfig {
	return &config.PredicateConfig{
		Standard: []string{"SUPPORTS", "CONTRADICTS", "USES"},
		Mappings: map[string]string{
			"supports":  "SUPPORTS",
			"reinforces": "SUPPORTS",
			"contradicts": "CONTRADICTS",
			"基于":        "USES",
			"采用":        "USES",
		},
		UnmatchedStrategy: "embedding_fallback",
	}
}

func TestSurfaceMatch_ExactEnglishSurfaceMapsToCanonical(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	canon, ok := g.surfaceMatch("reinforces")
	require.True(t, ok)
	require.Equal(t, "SUPPORTS", canon)
}

func TestSurfaceMatch_ChineseSurfaceMapsToCanonical(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	canon, ok := g.surfaceMatch("基于")
	require.True(t, ok)
	require.Equal(t, "USES", canon)
}

func TestSurfaceMatch_UnknownSurfaceFails(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	_, ok := g.surfaceMatch("随机词")
	require.False(t, ok)
}

func TestResolve_AlreadyStandardPassesThroughWithoutAutomaton(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	d := g.resolve(nil, nil, "supports")
	require.True(t, d.matched)
	require.Equal(t, "SUPPORTS", d.canonical)
}

func TestResolve_UnknownSurfaceWithNoLLMIsUnmatched(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	d := g.resolve(nil, nil, "随机词")
	require.False(t, d.matched)
	require.Equal(t, "unmatched", d.reason)
}

func TestResolve_EmptyPredicateIsUnmatched(t *testing.T) {
	g, err := NewGovernor(testConfig())
	require.NoError(t, err)

	d := g.resolve(nil, nil, "   ")
	require.False(t, d.matched)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	require.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthsScoreZero(t *testing.T) {
	require.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}
