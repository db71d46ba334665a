package graphservice

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
)

type stubConceptRepo struct {
	upserted []*domain.Concept
	err      error
}

func (s *stubConceptRepo) Upsert(ctx context.Context, tx *gorm.DB, concept *domain.Concept) (*domain.Concept, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.upserted = append(s.upserted, concept)
	return concept, nil
}

func (s *stubConceptRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*domain.Concept, error) {
	return nil, nil
}
func (s *stubConceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error) {
	return nil, nil
}
func (s *stubConceptRepo) SearchByName(ctx context.Context, tx *gorm.DB, q string, limit int) ([]*domain.Concept, error) {
	return nil, nil
}
func (s *stubConceptRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return nil
}

func TestUpsertConcepts_CallsUpsertOnEachNonNilConcept(t *testing.T) {
	repo := &stubConceptRepo{}
	txc := &pipeline.Context{Concepts: repo}

	concepts := []*domain.Concept{
		{ID: uuid.New(), Name: "Alpha"},
		nil,
		{ID: uuid.New(), Name: "Beta"},
	}

	err := upsertConcepts(context.Background(), txc, concepts)
	require.NoError(t, err)
	require.Len(t, repo.upserted, 2)
}

func TestUpsertConcepts_StopsOnFirstError(t *testing.T) {
	repo := &stubConceptRepo{err: errors.New("upsert failed")}
	txc := &pipeline.Context{Concepts: repo}

	err := upsertConcepts(context.Background(), txc, []*domain.Concept{{ID: uuid.New()}})
	require.Error(t, err)
}

func TestPersist_NilPostgresIsNoop(t *testing.T) {
	pctx := &pipeline.Context{}
	result := &pipeline.BuildResult{Document: &domain.Document{ID: uuid.New()}}

	err := Persist(context.Background(), pctx, result)
	require.NoError(t, err)
}

func TestPersist_NilResultIsNoop(t *testing.T) {
	err := Persist(context.Background(), &pipeline.Context{}, nil)
	require.NoError(t, err)
}

func TestRollback_NilPostgresIsNoop(t *testing.T) {
	err := Rollback(context.Background(), &pipeline.Context{}, uuid.New(), "build-1")
	require.NoError(t, err)
}

func TestRollback_EmptyBuildVersionIsNoop(t *testing.T) {
	pctx := &pipeline.Context{Postgres: &gorm.DB{}}
	err := Rollback(context.Background(), pctx, uuid.New(), "")
	require.NoError(t, err)
}

func TestRollback_NilDocumentIDIsNoop(t *testing.T) {
	pctx := &pipeline.Context{Postgres: &gorm.DB{}}
	err := Rollback(context.Background(), pctx, uuid.Nil, "build-1")
	require.NoError(t, err)
}
