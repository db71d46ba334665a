package linker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-backend/internal/config"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
)

func TestBM25Index_ExactTermMatchScoresPositive(t *testing.T) {
	c := &domain.Concept{ID: uuid.New(), Name: "Neural Network", Description: "A machine learning model."}
	idx := buildLexicalIndex(map[string]*domain.Concept{c.Key: c})

	score := idx.score(c.ID, tokenize("neural network"))
	require.Greater(t, score, 0.0)
}

func TestBM25Index_UnknownConceptScoresZero(t *testing.T) {
	idx := buildLexicalIndex(map[string]*domain.Concept{})
	require.Equal(t, 0.0, idx.score(uuid.New(), tokenize("neural network")))
}

func TestBM25Index_NoOverlapScoresZero(t *testing.T) {
	c := &domain.Concept{ID: uuid.New(), Name: "Neural Network"}
	idx := buildLexicalIndex(map[string]*domain.Concept{c.Key: c})
	require.Equal(t, 0.0, idx.score(c.ID, tokenize("oranges")))
}

func TestTokenize_DropsStopwordsAndPunctuation(t *testing.T) {
	tokens := tokenize("The model, and the network.")
	require.NotContains(t, tokens, "the")
	require.NotContains(t, tokens, "and")
	require.Contains(t, tokens, "model")
	require.Contains(t, tokens, "network")
}

func TestPassesOntologyGate_UnknownTypeIsConservativelyAllowed(t *testing.T) {
	ontology := &config.OntologyConfig{NodeTypes: map[string]config.NodeTypeSchema{}}
	c := &domain.Concept{Type: "widget"}
	require.True(t, passesOntologyGate(ontology, c))
}

func TestPassesOntologyGate_MissingRequiredPropertyIsHardViolation(t *testing.T) {
	ontology := &config.OntologyConfig{NodeTypes: map[string]config.NodeTypeSchema{
		"organization": {RequiredProperties: []string{"description"}},
	}}
	c := &domain.Concept{Type: "organization", Name: "Acme", Description: ""}
	require.False(t, passesOntologyGate(ontology, c))
}

func TestPassesOntologyGate_DomainOutsideAllowedListIsHardViolation(t *testing.T) {
	ontology := &config.OntologyConfig{NodeTypes: map[string]config.NodeTypeSchema{
		"organization": {AllowedDomains: []string{"biology"}},
	}}
	c := &domain.Concept{Type: "organization", Domain: "finance"}
	require.False(t, passesOntologyGate(ontology, c))
}

func TestPassesOntologyGate_SatisfiesRequirementsAndDomain(t *testing.T) {
	ontology := &config.OntologyConfig{NodeTypes: map[string]config.NodeTypeSchema{
		"organization": {RequiredProperties: []string{"description"}, AllowedDomains: []string{"biology"}},
	}}
	c := &domain.Concept{Type: "organization", Description: "A lab.", Domain: "biology"}
	require.True(t, passesOntologyGate(ontology, c))
}

func TestLinkState_BlendFavorsRepeatedConcepts(t *testing.T) {
	c := &domain.Concept{ID: uuid.New(), Name: "Neural Network"}
	state := &linkState{
		lexIndex:      buildLexicalIndex(map[string]*domain.Concept{c.Key: c}),
		conceptFreq:   map[uuid.UUID]int{},
		lexWeight:     0.35,
		vecWeight:     0.65,
		cooccurWeight: 0.1,
		priorWeight:   0.1,
		typeWeight:    0.1,
	}
	first := state.blend(c, tokenize("neural network"), nil)
	state.conceptFreq[c.ID]++
	second := state.blend(c, tokenize("neural network"), nil)
	require.Greater(t, second, first)
}

func TestNominalSpans_FindsHanAndEnglishRuns(t *testing.T) {
	spans := nominalSpans("Stanford published 神经网络 research this year.")
	require.NotEmpty(t, spans)

	var surfaces []string
	text := "Stanford published 神经网络 research this year."
	for _, s := range spans {
		surfaces = append(surfaces, text[s.start:s.end])
	}
	require.Contains(t, surfaces, "Stanford")
	require.Contains(t, surfaces, "神经网络")
}

func TestNominalSpans_SkipsShortUppercaseRuns(t *testing.T) {
	spans := nominalSpans("An AI system.")
	for _, s := range spans {
		require.GreaterOrEqual(t, s.end-s.start, 3)
	}
}

func TestDecide_ThresholdBoundaries(t *testing.T) {
	require.Equal(t, "accept", decide(0.9, 0.85, 0.65))
	require.Equal(t, "review", decide(0.7, 0.85, 0.65))
	require.Equal(t, "nil", decide(0.3, 0.85, 0.65))
}
