package graphrag

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type ThemeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, themes []*domain.Theme) ([]*domain.Theme, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*domain.Theme, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Theme, error)
}

type themeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThemeRepo(db *gorm.DB, baseLog *logger.Logger) ThemeRepo {
	return &themeRepo{db: db, log: baseLog.With("repo", "ThemeRepo")}
}

func (r *themeRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *themeRepo) Create(ctx context.Context, tx *gorm.DB, themes []*domain.Theme) ([]*domain.Theme, error) {
	if len(themes) == 0 {
		return []*domain.Theme{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).CreateInBatches(themes, 100).Error; err != nil {
		return nil, err
	}
	return themes, nil
}

func (r *themeRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*domain.Theme, error) {
	var results []*domain.Theme
	if err := r.tx(tx).WithContext(ctx).Where("document_id = ?", documentID).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *themeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Theme, error) {
	var results []*domain.Theme
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type ThemeMemberRepo interface {
	Create(ctx context.Context, tx *gorm.DB, members []*domain.ThemeMember) ([]*domain.ThemeMember, error)
	GetByThemeIDs(ctx context.Context, tx *gorm.DB, themeIDs []uuid.UUID) ([]*domain.ThemeMember, error)
}

type themeMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThemeMemberRepo(db *gorm.DB, baseLog *logger.Logger) ThemeMemberRepo {
	return &themeMemberRepo{db: db, log: baseLog.With("repo", "ThemeMemberRepo")}
}

func (r *themeMemberRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *themeMemberRepo) Create(ctx context.Context, tx *gorm.DB, members []*domain.ThemeMember) ([]*domain.ThemeMember, error) {
	if len(members) == 0 {
		return []*domain.ThemeMember{}, nil
	}
	if err := r.tx(tx).WithContext(ctx).
		Clauses(onConflictDoNothing("theme_id", "member_type", "member_id")).
		CreateInBatches(members, 200).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *themeMemberRepo) GetByThemeIDs(ctx context.Context, tx *gorm.DB, themeIDs []uuid.UUID) ([]*domain.ThemeMember, error) {
	var results []*domain.ThemeMember
	if len(themeIDs) == 0 {
		return results, nil
	}
	if err := r.tx(tx).WithContext(ctx).Where("theme_id IN ?", themeIDs).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
