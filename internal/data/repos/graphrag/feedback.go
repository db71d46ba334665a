package graphrag

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type FeedbackEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *domain.FeedbackEvent) (*domain.FeedbackEvent, error)
	GetByTarget(ctx context.Context, tx *gorm.DB, targetType string, targetID uuid.UUID) ([]*domain.FeedbackEvent, error)
}

type feedbackEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackEventRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackEventRepo {
	return &feedbackEventRepo{db: db, log: baseLog.With("repo", "FeedbackEventRepo")}
}

func (r *feedbackEventRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *feedbackEventRepo) Create(ctx context.Context, tx *gorm.DB, event *domain.FeedbackEvent) (*domain.FeedbackEvent, error) {
	if err := r.tx(tx).WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *feedbackEventRepo) GetByTarget(ctx context.Context, tx *gorm.DB, targetType string, targetID uuid.UUID) ([]*domain.FeedbackEvent, error) {
	var results []*domain.FeedbackEvent
	if err := r.tx(tx).WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type MetricsSnapshotRepo interface {
	Create(ctx context.Context, tx *gorm.DB, snapshot *domain.MetricsSnapshot) (*domain.MetricsSnapshot, error)
	GetLatestByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (*domain.MetricsSnapshot, error)
}

type metricsSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricsSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) MetricsSnapshotRepo {
	return &metricsSnapshotRepo{db: db, log: baseLog.With("repo", "MetricsSnapshotRepo")}
}

func (r *metricsSnapshotRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *metricsSnapshotRepo) Create(ctx context.Context, tx *gorm.DB, snapshot *domain.MetricsSnapshot) (*domain.MetricsSnapshot, error) {
	if err := r.tx(tx).WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *metricsSnapshotRepo) GetLatestByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (*domain.MetricsSnapshot, error) {
	var snapshot domain.MetricsSnapshot
	if err := r.tx(tx).WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}
