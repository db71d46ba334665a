package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

type stubConceptRepo struct {
	byID map[uuid.UUID]*domain.Concept
}

func (s *stubConceptRepo) Upsert(ctx context.Context, tx *gorm.DB, concept *domain.Concept) (*domain.Concept, error) {
	return concept, nil
}

func (s *stubConceptRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*domain.Concept, error) {
	return nil, nil
}

func (s *stubConceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error) {
	out := make([]*domain.Concept, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubConceptRepo) SearchByName(ctx context.Context, tx *gorm.DB, q string, limit int) ([]*domain.Concept, error) {
	return nil, nil
}

func (s *stubConceptRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return nil
}

func TestConceptTypeIndex_UsesInMemoryTypeForNewConcepts(t *testing.T) {
	id := uuid.New()
	newConcepts := []*domain.Concept{{ID: id, Type: "organization"}}

	out, err := conceptTypeIndex(context.Background(), &pipeline.Context{}, newConcepts, nil)
	require.NoError(t, err)
	require.Equal(t, "organization", out[id])
}

func TestConceptTypeIndex_FetchesMissingTypesForPreexistingConcepts(t *testing.T) {
	existingID := uuid.New()
	otherID := uuid.New()
	triples := []pipeline.ConceptTriple{{SourceConceptID: existingID, TargetConceptID: otherID}}

	pctx := &pipeline.Context{
		Concepts: &stubConceptRepo{byID: map[uuid.UUID]*domain.Concept{
			existingID: {ID: existingID, Type: "person"},
			otherID:    {ID: otherID, Type: "product"},
		}},
	}

	out, err := conceptTypeIndex(context.Background(), pctx, nil, triples)
	require.NoError(t, err)
	require.Equal(t, "person", out[existingID])
	require.Equal(t, "product", out[otherID])
}

func TestConceptTypeIndex_NoTriplesSkipsRepoLookup(t *testing.T) {
	out, err := conceptTypeIndex(context.Background(), &pipeline.Context{}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestProgress_NilTrackerIsNoop(t *testing.T) {
	require.NotPanics(t, func() { progress(nil, "stage", 10, "message") })
}
