package feedback

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-backend/internal/config"
	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/pipeline/predicates"
)

func TestDegreeStats_IsolatedNodeHasZeroDegree(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	relations := []*domain.ClaimRelation{{SourceClaimID: a, TargetClaimID: b, Predicate: "SUPPORTS"}}

	isolatedRatio, avgDegree := degreeStats([]uuid.UUID{a, b, c}, nil, relations, nil)
	require.InDelta(t, 1.0/3.0, isolatedRatio, 0.0001)
	require.InDelta(t, 2.0/3.0, avgDegree, 0.0001)
}

func TestDegreeStats_EmptyGraphIsZero(t *testing.T) {
	isolatedRatio, avgDegree := degreeStats(nil, nil, nil, nil)
	require.Equal(t, 0.0, isolatedRatio)
	require.Equal(t, 0.0, avgDegree)
}

func TestClaimRelationPrecision_NoGovernedRelationsIsPerfect(t *testing.T) {
	require.Equal(t, 1.0, claimRelationPrecision(nil, nil))
}

func TestClaimRelationPrecision_UncheckedPredicatesAreIgnored(t *testing.T) {
	relations := []*domain.ClaimRelation{{Predicate: "ELABORATES"}}
	require.Equal(t, 1.0, claimRelationPrecision(nil, relations))
}

func TestClaimRelationPrecision_CausesWithMarkerCorroborated(t *testing.T) {
	source := &domain.Claim{ID: uuid.New(), Text: "Overfitting occurs because the model memorizes noise."}
	target := &domain.Claim{ID: uuid.New(), Text: "Validation loss rises."}
	relations := []*domain.ClaimRelation{{SourceClaimID: source.ID, TargetClaimID: target.ID, Predicate: "CAUSES"}}

	precision := claimRelationPrecision([]*domain.Claim{source, target}, relations)
	require.Equal(t, 1.0, precision)
}

func TestClaimRelationPrecision_CausesWithoutMarkerIsUncorroborated(t *testing.T) {
	source := &domain.Claim{ID: uuid.New(), Text: "Model accuracy dropped."}
	target := &domain.Claim{ID: uuid.New(), Text: "Users complained."}
	relations := []*domain.ClaimRelation{{SourceClaimID: source.ID, TargetClaimID: target.ID, Predicate: "CAUSES"}}

	precision := claimRelationPrecision([]*domain.Claim{source, target}, relations)
	require.Equal(t, 0.0, precision)
}

func TestProvenanceCompleteness_UnknownChunkLowersScore(t *testing.T) {
	knownChunk := uuid.New()
	claims := []*domain.Claim{
		{ID: uuid.New(), ChunkID: knownChunk},
		{ID: uuid.New(), ChunkID: uuid.New()},
	}
	require.Equal(t, 0.5, provenanceCompleteness(claims, []uuid.UUID{knownChunk}))
}

func TestProvenanceCompleteness_NoClaimsIsPerfect(t *testing.T) {
	require.Equal(t, 1.0, provenanceCompleteness(nil, nil))
}

type stubClaimRelationRepo struct {
	updated       map[uuid.UUID]string
	updatePredErr error
}

func (s *stubClaimRelationRepo) Create(ctx context.Context, tx *gorm.DB, relations []*domain.ClaimRelation) ([]*domain.ClaimRelation, error) {
	return relations, nil
}
func (s *stubClaimRelationRepo) GetByClaimIDs(ctx context.Context, tx *gorm.DB, claimIDs []uuid.UUID) ([]*domain.ClaimRelation, error) {
	return nil, nil
}
func (s *stubClaimRelationRepo) CountByBuildVersion(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error) {
	return 0, nil
}
func (s *stubClaimRelationRepo) UpdatePredicate(ctx context.Context, tx *gorm.DB, id uuid.UUID, newPredicate string) error {
	if s.updatePredErr != nil {
		return s.updatePredErr
	}
	if s.updated == nil {
		s.updated = map[uuid.UUID]string{}
	}
	s.updated[id] = newPredicate
	return nil
}

type stubFeedbackEventRepo struct {
	events []*domain.FeedbackEvent
}

func (s *stubFeedbackEventRepo) Create(ctx context.Context, tx *gorm.DB, event *domain.FeedbackEvent) (*domain.FeedbackEvent, error) {
	s.events = append(s.events, event)
	return event, nil
}
func (s *stubFeedbackEventRepo) GetByTarget(ctx context.Context, tx *gorm.DB, targetType string, targetID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	return s.events, nil
}

type stubPredicateCorrectionRepo struct {
	counts map[string]int
}

func (s *stubPredicateCorrectionRepo) Increment(ctx context.Context, tx *gorm.DB, rawPredicate, canonicalTarget string) (int, error) {
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	key := rawPredicate + "->" + canonicalTarget
	s.counts[key]++
	return s.counts[key], nil
}

func TestCorrect_UpdatesRelationAndRecordsEvent(t *testing.T) {
	relations := &stubClaimRelationRepo{}
	events := &stubFeedbackEventRepo{}
	corrections := &stubPredicateCorrectionRepo{}
	pctx := &pipeline.Context{Postgres: &gorm.DB{}, ClaimRelations: relations, FeedbackEvents: events, PredicateCorrections: corrections}
	edgeID := uuid.New()

	err := Correct(context.Background(), pctx, nil, "claim", edgeID, "is caused by", "CAUSES")
	require.NoError(t, err)
	require.Equal(t, "CAUSES", relations.updated[edgeID])
	require.Len(t, events.events, 1)
	require.Equal(t, "correct", events.events[0].Kind)
}

func TestCorrect_UpdatesGovernorAfterRecurrenceThreshold(t *testing.T) {
	relations := &stubClaimRelationRepo{}
	corrections := &stubPredicateCorrectionRepo{}
	pctx := &pipeline.Context{Postgres: &gorm.DB{}, ClaimRelations: relations, PredicateCorrections: corrections}
	cfg := &config.PredicateConfig{}
	governor, err := predicates.NewGovernor(cfg)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := Correct(context.Background(), pctx, governor, "claim", uuid.New(), "is caused by", "CAUSES")
		require.NoError(t, err)
	}
	require.Equal(t, "CAUSES", cfg.Mappings["is caused by"])
}

func TestCorrect_UnknownKindErrors(t *testing.T) {
	pctx := &pipeline.Context{Postgres: &gorm.DB{}}
	err := Correct(context.Background(), pctx, nil, "document", uuid.New(), "raw", "CAUSES")
	require.Error(t, err)
}

func TestCorrect_EmptyNewPredicateErrors(t *testing.T) {
	pctx := &pipeline.Context{Postgres: &gorm.DB{}}
	err := Correct(context.Background(), pctx, nil, "claim", uuid.New(), "raw", "  ")
	require.Error(t, err)
}

type stubMentionRepoForUnlink struct {
	mention *domain.Mention
}

func (s *stubMentionRepoForUnlink) Create(ctx context.Context, tx *gorm.DB, mentions []*domain.Mention) ([]*domain.Mention, error) {
	return mentions, nil
}
func (s *stubMentionRepoForUnlink) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Mention, error) {
	return nil, nil
}
func (s *stubMentionRepoForUnlink) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Mention, error) {
	return s.mention, nil
}
func (s *stubMentionRepoForUnlink) GetByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.Mention, error) {
	return nil, nil
}
func (s *stubMentionRepoForUnlink) CountByDecision(ctx context.Context, tx *gorm.DB, buildVersion string) (map[string]int64, error) {
	return nil, nil
}
func (s *stubMentionRepoForUnlink) ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	return nil
}

type stubAliasRepoForUnlink struct {
	created []*domain.Alias
}

func (s *stubAliasRepoForUnlink) Create(ctx context.Context, tx *gorm.DB, aliases []*domain.Alias) ([]*domain.Alias, error) {
	s.created = append(s.created, aliases...)
	return aliases, nil
}
func (s *stubAliasRepoForUnlink) GetAll(ctx context.Context, tx *gorm.DB) ([]*domain.Alias, error) {
	return nil, nil
}
func (s *stubAliasRepoForUnlink) GetByConceptID(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*domain.Alias, error) {
	return nil, nil
}
func (s *stubAliasRepoForUnlink) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	return int64(len(s.created)), nil
}
func (s *stubAliasRepoForUnlink) ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	return nil
}

func TestUnlink_CreatesNegativeAlias(t *testing.T) {
	conceptID := uuid.New()
	mentionID := uuid.New()
	mentions := &stubMentionRepoForUnlink{mention: &domain.Mention{ID: mentionID, ConceptID: conceptID, Surface: "the transformer"}}
	aliases := &stubAliasRepoForUnlink{}
	pctx := &pipeline.Context{Mentions: mentions, Aliases: aliases}

	err := Unlink(context.Background(), pctx, mentionID)
	require.NoError(t, err)
	require.Len(t, aliases.created, 1)
	require.True(t, aliases.created[0].Negative)
	require.Equal(t, conceptID, aliases.created[0].ConceptID)
}

func TestUnlink_MissingMentionErrors(t *testing.T) {
	mentions := &stubMentionRepoForUnlink{mention: nil}
	aliases := &stubAliasRepoForUnlink{}
	pctx := &pipeline.Context{Mentions: mentions, Aliases: aliases}

	err := Unlink(context.Background(), pctx, uuid.New())
	require.Error(t, err)
}

func TestMerge_RejectsSameSourceAndTarget(t *testing.T) {
	pctx := &pipeline.Context{Postgres: &gorm.DB{}}
	id := uuid.New()
	err := Merge(context.Background(), pctx, id, id)
	require.Error(t, err)
}

func TestMerge_RejectsNilPostgres(t *testing.T) {
	pctx := &pipeline.Context{}
	err := Merge(context.Background(), pctx, uuid.New(), uuid.New())
	require.Error(t, err)
}
