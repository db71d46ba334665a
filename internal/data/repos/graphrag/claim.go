package graphrag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type ClaimRepo interface {
	Create(ctx context.Context, tx *gorm.DB, claims []*domain.Claim) ([]*domain.Claim, error)
	GetByNormHashes(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, hashes []string) ([]*domain.Claim, error)
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Claim, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Claim, error)
	SetCanonical(ctx context.Context, tx *gorm.DB, loserID, winnerID uuid.UUID) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
}

type claimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRepo {
	return &claimRepo{db: db, log: baseLog.With("repo", "ClaimRepo")}
}

func (r *claimRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *claimRepo) Create(ctx context.Context, tx *gorm.DB, claims []*domain.Claim) ([]*domain.Claim, error) {
	if len(claims) == 0 {
		return []*domain.Claim{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("document_id", "norm_hash")).
		CreateInBatches(claims, 100).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

// GetByNormHashes looks up prior claims by normalized-text hash, scoped to a
// single document: the same statement made in two different documents gets
// two independent claim rows (§4.3's "prior Claim in the same document").
func (r *claimRepo) GetByNormHashes(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, hashes []string) ([]*domain.Claim, error) {
	var results []*domain.Claim
	if len(hashes) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Where("document_id = ? AND norm_hash IN ?", documentID, hashes).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *claimRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Claim, error) {
	var results []*domain.Claim
	if len(chunkIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *claimRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Claim, error) {
	var results []*domain.Claim
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SetCanonical redirects loserID to winnerID (§8 claim redirection
// invariant). Readers must always resolve CanonicalID chains before
// presenting a claim.
func (r *claimRepo) SetCanonical(ctx context.Context, tx *gorm.DB, loserID, winnerID uuid.UUID) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Claim{}).
		Where("id = ?", loserID).
		Updates(map[string]any{
			"canonical_id": winnerID,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *claimRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Claim{}).
		Where("id = ?", id).
		Updates(updates).Error
}

type ClaimConceptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, edges []*domain.ClaimConcept) ([]*domain.ClaimConcept, error)
	GetByClaimIDs(ctx context.Context, tx *gorm.DB, claimIDs []uuid.UUID) ([]*domain.ClaimConcept, error)
}

type claimConceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimConceptRepo(db *gorm.DB, baseLog *logger.Logger) ClaimConceptRepo {
	return &claimConceptRepo{db: db, log: baseLog.With("repo", "ClaimConceptRepo")}
}

func (r *claimConceptRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *claimConceptRepo) Create(ctx context.Context, tx *gorm.DB, edges []*domain.ClaimConcept) ([]*domain.ClaimConcept, error) {
	if len(edges) == 0 {
		return []*domain.ClaimConcept{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("claim_id", "concept_id")).
		CreateInBatches(edges, 200).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *claimConceptRepo) GetByClaimIDs(ctx context.Context, tx *gorm.DB, claimIDs []uuid.UUID) ([]*domain.ClaimConcept, error) {
	var results []*domain.ClaimConcept
	if len(claimIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("claim_id IN ?", claimIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type ClaimRelationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, relations []*domain.ClaimRelation) ([]*domain.ClaimRelation, error)
	GetByClaimIDs(ctx context.Context, tx *gorm.DB, claimIDs []uuid.UUID) ([]*domain.ClaimRelation, error)
	CountByBuildVersion(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error)
	UpdatePredicate(ctx context.Context, tx *gorm.DB, id uuid.UUID, newPredicate string) error
}

type claimRelationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRelationRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRelationRepo {
	return &claimRelationRepo{db: db, log: baseLog.With("repo", "ClaimRelationRepo")}
}

func (r *claimRelationRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *claimRelationRepo) Create(ctx context.Context, tx *gorm.DB, relations []*domain.ClaimRelation) ([]*domain.ClaimRelation, error) {
	if len(relations) == 0 {
		return []*domain.ClaimRelation{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("source_claim_id", "target_claim_id", "predicate")).
		CreateInBatches(relations, 200).Error; err != nil {
		return nil, err
	}
	return relations, nil
}

func (r *claimRelationRepo) GetByClaimIDs(ctx context.Context, tx *gorm.DB, claimIDs []uuid.UUID) ([]*domain.ClaimRelation, error) {
	var results []*domain.ClaimRelation
	if len(claimIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Where("source_claim_id IN ? OR target_claim_id IN ?", claimIDs, claimIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *claimRelationRepo) CountByBuildVersion(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error) {
	var n int64
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.ClaimRelation{}).
		Where("build_version = ?", buildVersion).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// UpdatePredicate implements Stage 8's correct() operation: a reviewer
// overrides a governed edge's predicate directly, bypassing re-governance.
func (r *claimRelationRepo) UpdatePredicate(ctx context.Context, tx *gorm.DB, id uuid.UUID, newPredicate string) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.ClaimRelation{}).
		Where("id = ?", id).
		Updates(map[string]any{"predicate": newPredicate, "updated_at": time.Now().UTC()}).Error
}

type PredicateReviewRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reviews []*domain.PredicateReview) ([]*domain.PredicateReview, error)
	CountUnresolved(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error)
	MarkResolved(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type predicateReviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredicateReviewRepo(db *gorm.DB, baseLog *logger.Logger) PredicateReviewRepo {
	return &predicateReviewRepo{db: db, log: baseLog.With("repo", "PredicateReviewRepo")}
}

func (r *predicateReviewRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *predicateReviewRepo) Create(ctx context.Context, tx *gorm.DB, reviews []*domain.PredicateReview) ([]*domain.PredicateReview, error) {
	if len(reviews) == 0 {
		return []*domain.PredicateReview{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).CreateInBatches(reviews, 200).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *predicateReviewRepo) CountUnresolved(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error) {
	var n int64
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.PredicateReview{}).
		Where("build_version = ? AND resolved = false", buildVersion).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *predicateReviewRepo) MarkResolved(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.PredicateReview{}).
		Where("id = ?", id).
		Update("resolved", true).Error
}

type PredicateCorrectionRepo interface {
	Increment(ctx context.Context, tx *gorm.DB, rawPredicate, canonicalTarget string) (int, error)
}

type predicateCorrectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredicateCorrectionRepo(db *gorm.DB, baseLog *logger.Logger) PredicateCorrectionRepo {
	return &predicateCorrectionRepo{db: db, log: baseLog.With("repo", "PredicateCorrectionRepo")}
}

// Increment implements the closed feedback loop's recurrence counter: each
// reviewer correction of rawPredicate -> canonicalTarget bumps a standing
// count, and the caller updates the governor's mapping once it clears the
// configured recurrence threshold.
func (r *predicateCorrectionRepo) Increment(ctx context.Context, tx *gorm.DB, rawPredicate, canonicalTarget string) (int, error) {
	t := r.db
	if tx != nil {
		t = tx
	}

	row := &domain.PredicateCorrectionCount{
		RawPredicate:    rawPredicate,
		CanonicalTarget: canonicalTarget,
		Count:           1,
		UpdatedAt:       time.Now().UTC(),
	}

	err := t.WithContext(ctx).
		Clauses(clauseOnConflictIncrement()).
		Create(row).Error
	if err != nil {
		return 0, err
	}

	var current domain.PredicateCorrectionCount
	if err := t.WithContext(ctx).
		Where("raw_predicate = ? AND canonical_target = ?", rawPredicate, canonicalTarget).
		First(&current).Error; err != nil {
		return 0, err
	}
	return current.Count, nil
}
