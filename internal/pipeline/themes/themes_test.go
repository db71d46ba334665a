package themes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLouvain_SplitsTwoDisjointCliquesIntoTwoCommunities(t *testing.T) {
	a1, a2, a3 := uuid.New(), uuid.New(), uuid.New()
	b1, b2, b3 := uuid.New(), uuid.New(), uuid.New()

	g := newGraph()
	g.addEdge(a1, a2, 1)
	g.addEdge(a2, a3, 1)
	g.addEdge(a1, a3, 1)
	g.addEdge(b1, b2, 1)
	g.addEdge(b2, b3, 1)
	g.addEdge(b1, b3, 1)
	// one weak bridge edge, far lighter than the internal clique edges
	g.addEdge(a1, b1, 0.01)

	communities := louvain(g)
	require.Len(t, communities, 2)

	sizes := []int{len(communities[0].members), len(communities[1].members)}
	require.ElementsMatch(t, []int{3, 3}, sizes)
}

func TestLouvain_EmptyGraphReturnsNoCommunities(t *testing.T) {
	require.Empty(t, louvain(newGraph()))
}

func TestModularity_DisjointCliquesScoreHigherThanRandomSplit(t *testing.T) {
	a1, a2, a3 := uuid.New(), uuid.New(), uuid.New()
	b1, b2, b3 := uuid.New(), uuid.New(), uuid.New()

	g := newGraph()
	g.addEdge(a1, a2, 1)
	g.addEdge(a2, a3, 1)
	g.addEdge(a1, a3, 1)
	g.addEdge(b1, b2, 1)
	g.addEdge(b2, b3, 1)
	g.addEdge(b1, b3, 1)

	goodAssignment := []int{0, 0, 0, 1, 1, 1}
	badAssignment := []int{0, 1, 0, 1, 0, 1}

	require.Greater(t, modularity(g, goodAssignment), modularity(g, badAssignment))
}

func TestExtractKeywords_RanksSharedTermsOverUniqueOnes(t *testing.T) {
	c1, c2 := uuid.New(), uuid.New()
	text := map[uuid.UUID]string{
		c1: "neural network training optimizer",
		c2: "neural network inference latency",
	}
	keywords := extractKeywords([]uuid.UUID{c1, c2}, text, 3)
	require.Contains(t, keywords, "neural")
	require.Contains(t, keywords, "network")
}

func TestTokenize_DropsStopwordsAndShortTokens(t *testing.T) {
	tokens := tokenize("the model is a transformer")
	require.NotContains(t, tokens, "the")
	require.NotContains(t, tokens, "is")
	require.Contains(t, tokens, "model")
	require.Contains(t, tokens, "transformer")
}

func TestIsHanToken_DistinguishesScripts(t *testing.T) {
	require.True(t, isHanToken("神经网络"))
	require.False(t, isHanToken("network"))
}
