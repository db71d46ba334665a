package graphrag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type ConceptRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, concept *domain.Concept) (*domain.Concept, error)
	GetByKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*domain.Concept, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error)
	SearchByName(ctx context.Context, tx *gorm.DB, q string, limit int) ([]*domain.Concept, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

func (r *conceptRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Upsert keys on Concept.Key so repeated builds over the same document set
// converge rather than accumulating duplicate concept nodes.
func (r *conceptRepo) Upsert(ctx context.Context, tx *gorm.DB, concept *domain.Concept) (*domain.Concept, error) {
	var existing domain.Concept
	err := r.tx(tx).WithContext(ctx).Where("key = ?", concept.Key).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if err := r.tx(tx).WithContext(ctx).Create(concept).Error; err != nil {
			return nil, err
		}
		return concept, nil
	case err != nil:
		return nil, err
	default:
		concept.ID = existing.ID
		concept.CreatedAt = existing.CreatedAt
		if err := r.tx(tx).WithContext(ctx).Model(&existing).Updates(concept).Error; err != nil {
			return nil, err
		}
		return concept, nil
	}
}

func (r *conceptRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []string) ([]*domain.Concept, error) {
	var results []*domain.Concept
	if len(keys) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("key IN ?", keys).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error) {
	var results []*domain.Concept
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRepo) SearchByName(ctx context.Context, tx *gorm.DB, q string, limit int) ([]*domain.Concept, error) {
	if limit <= 0 {
		limit = 20
	}
	var results []*domain.Concept
	if err := r.tx(tx).WithContext(ctx).
		Where("name ILIKE ?", "%"+q+"%").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
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
		Model(&domain.Concept{}).
		Where("id = ?", id).
		Updates(updates).Error
}

type AliasRepo interface {
	Create(ctx context.Context, tx *gorm.DB, aliases []*domain.Alias) ([]*domain.Alias, error)
	// GetAll returns every non-negative alias, the input the dictionary
	// compiler needs; unlink()-forbidden pairs (Negative=true) are excluded
	// so they never resolve again even if their row is kept for audit.
	GetAll(ctx context.Context, tx *gorm.DB) ([]*domain.Alias, error)
	GetByConceptID(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*domain.Alias, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	// ReassignConcept moves every alias row pointing at fromID onto toID,
	// the alias-side half of Stage 8's merge() operation.
	ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type aliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAliasRepo(db *gorm.DB, baseLog *logger.Logger) AliasRepo {
	return &aliasRepo{db: db, log: baseLog.With("repo", "AliasRepo")}
}

func (r *aliasRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *aliasRepo) Create(ctx context.Context, tx *gorm.DB, aliases []*domain.Alias) ([]*domain.Alias, error) {
	if len(aliases) == 0 {
		return []*domain.Alias{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("concept_id", "surface")).
		CreateInBatches(aliases, 100).Error; err != nil {
		return nil, err
	}
	return aliases, nil
}

func (r *aliasRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*domain.Alias, error) {
	var results []*domain.Alias
	if err := r.tx(tx).WithContext(ctx).Where("negative = ?", false).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ReassignConcept repoints every alias owned by fromID onto toID. Rows that
// would collide with an alias toID already owns are left on fromID rather
// than deleted, so a merge never silently drops a surface form.
func (r *aliasRepo) ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	if fromID == uuid.Nil || toID == uuid.Nil || fromID == toID {
		return nil
	}
	return r.tx(tx).WithContext(ctx).Exec(`
		UPDATE graphrag_alias SET concept_id = ?, updated_at = now()
		WHERE concept_id = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM graphrag_alias existing
		    WHERE existing.concept_id = ? AND existing.surface = graphrag_alias.surface
		  )
	`, toID, fromID, toID).Error
}

func (r *aliasRepo) GetByConceptID(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*domain.Alias, error) {
	var results []*domain.Alias
	if err := r.tx(tx).WithContext(ctx).Where("concept_id = ?", conceptID).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *aliasRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	if err := r.tx(tx).WithContext(ctx).Model(&domain.Alias{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

type MentionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, mentions []*domain.Mention) ([]*domain.Mention, error)
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Mention, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Mention, error)
	GetByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.Mention, error)
	CountByDecision(ctx context.Context, tx *gorm.DB, buildVersion string) (map[string]int64, error)
	// ReassignConcept repoints every mention edge from fromID onto toID, the
	// mention-side half of Stage 8's merge() operation.
	ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type mentionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMentionRepo(db *gorm.DB, baseLog *logger.Logger) MentionRepo {
	return &mentionRepo{db: db, log: baseLog.With("repo", "MentionRepo")}
}

func (r *mentionRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *mentionRepo) Create(ctx context.Context, tx *gorm.DB, mentions []*domain.Mention) ([]*domain.Mention, error) {
	if len(mentions) == 0 {
		return []*domain.Mention{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("chunk_id", "surface", "span_start")).
		CreateInBatches(mentions, 200).Error; err != nil {
		return nil, err
	}
	return mentions, nil
}

func (r *mentionRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Mention, error) {
	var results []*domain.Mention
	if len(chunkIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mentionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Mention, error) {
	var result domain.Mention
	if err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&result).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *mentionRepo) GetByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.Mention, error) {
	var results []*domain.Mention
	if len(conceptIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("concept_id IN ?", conceptIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mentionRepo) ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	if fromID == uuid.Nil || toID == uuid.Nil || fromID == toID {
		return nil
	}
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Mention{}).
		Where("concept_id = ?", fromID).
		Update("concept_id", toID).Error
}

func (r *mentionRepo) CountByDecision(ctx context.Context, tx *gorm.DB, buildVersion string) (map[string]int64, error) {
	var rows []struct {
		Decision string
		Count    int64
	}
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.Mention{}).
		Select("decision, count(*) as count").
		Where("build_version = ?", buildVersion).
		Group("decision").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Decision] = r.Count
	}
	return out, nil
}

// ConceptRelationRepo persists governed Concept-to-Concept edges, the
// projection of entity-linker triples whose predicate cleared the same
// whitelist governance claim relations go through.
type ConceptRelationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, relations []*domain.ConceptRelation) ([]*domain.ConceptRelation, error)
	GetByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.ConceptRelation, error)
	CountByBuildVersion(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error)
	// ReassignConcept repoints edges touching fromID onto toID. Rows that
	// would then collide with an existing (source, target, predicate) triple
	// are skipped by the UPDATE's NOT EXISTS guard and stay on fromID, so the
	// merge does not error on the unique index.
	ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
	UpdatePredicate(ctx context.Context, tx *gorm.DB, id uuid.UUID, newPredicate string) error
}

type conceptRelationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRelationRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRelationRepo {
	return &conceptRelationRepo{db: db, log: baseLog.With("repo", "ConceptRelationRepo")}
}

func (r *conceptRelationRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *conceptRelationRepo) Create(ctx context.Context, tx *gorm.DB, relations []*domain.ConceptRelation) ([]*domain.ConceptRelation, error) {
	if len(relations) == 0 {
		return []*domain.ConceptRelation{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("source_concept_id", "target_concept_id", "predicate")).
		CreateInBatches(relations, 200).Error; err != nil {
		return nil, err
	}
	return relations, nil
}

func (r *conceptRelationRepo) GetByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.ConceptRelation, error) {
	var results []*domain.ConceptRelation
	if len(conceptIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Where("source_concept_id IN ? OR target_concept_id IN ?", conceptIDs, conceptIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRelationRepo) CountByBuildVersion(ctx context.Context, tx *gorm.DB, buildVersion string) (int64, error) {
	var n int64
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.ConceptRelation{}).
		Where("build_version = ?", buildVersion).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *conceptRelationRepo) ReassignConcept(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	if fromID == uuid.Nil || toID == uuid.Nil || fromID == toID {
		return nil
	}
	db := r.tx(tx).WithContext(ctx)
	if err := db.Exec(`
		UPDATE graphrag_concept_relation SET source_concept_id = ?, updated_at = now()
		WHERE source_concept_id = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM graphrag_concept_relation existing
		    WHERE existing.source_concept_id = ? AND existing.target_concept_id = graphrag_concept_relation.target_concept_id
		      AND existing.predicate = graphrag_concept_relation.predicate
		  )
	`, toID, fromID, toID).Error; err != nil {
		return err
	}
	return db.Exec(`
		UPDATE graphrag_concept_relation SET target_concept_id = ?, updated_at = now()
		WHERE target_concept_id = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM graphrag_concept_relation existing
		    WHERE existing.target_concept_id = ? AND existing.source_concept_id = graphrag_concept_relation.source_concept_id
		      AND existing.predicate = graphrag_concept_relation.predicate
		  )
	`, toID, fromID, toID).Error
}

func (r *conceptRelationRepo) UpdatePredicate(ctx context.Context, tx *gorm.DB, id uuid.UUID, newPredicate string) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.ConceptRelation{}).
		Where("id = ?", id).
		Updates(map[string]any{"predicate": newPredicate, "updated_at": time.Now().UTC()}).Error
}
