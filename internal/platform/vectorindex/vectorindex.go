// Package vectorindex is a pgvector-backed nearest-neighbor side index.
// Domain rows (graphrag_chunk, graphrag_claim, graphrag_concept) keep their
// embeddings as a portable jsonb column for serialization/export; this
// package maintains a second, queryable copy in a native `vector` column so
// entity linking and retrieval can run `<=>` cosine-distance search without
// a full table scan.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Entry is one row of the side index: an embedding owned by some domain
// row, scoped to the build that produced it.
type Entry struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerType    string          `gorm:"column:owner_type;type:text;not null;index:idx_vector_owner,unique,priority:1" json:"owner_type"` // chunk|claim|concept|theme
	OwnerID      uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index:idx_vector_owner,unique,priority:2" json:"owner_id"`
	Embedding    pgvector.Vector `gorm:"type:vector(1536);not null" json:"-"`
	BuildVersion string          `gorm:"type:text;not null;index" json:"build_version"`
	CreatedAt    time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (Entry) TableName() string { return "graphrag_vector_index" }

// Index is the nearest-neighbor query surface used by the entity linker and
// query service.
type Index interface {
	Upsert(ctx context.Context, ownerType string, ownerID uuid.UUID, embedding []float32, buildVersion string) error
	Search(ctx context.Context, ownerType string, embedding []float32, topK int) ([]Neighbor, error)
	Delete(ctx context.Context, ownerType string, ownerID uuid.UUID) error
}

// Neighbor is one ranked nearest-neighbor hit; Distance is cosine distance
// (0 = identical, 2 = opposite), lower is closer.
type Neighbor struct {
	OwnerID  uuid.UUID
	Distance float64
}

type pgvectorIndex struct {
	db *gorm.DB
}

func New(db *gorm.DB) Index {
	return &pgvectorIndex{db: db}
}

func (p *pgvectorIndex) Upsert(ctx context.Context, ownerType string, ownerID uuid.UUID, embedding []float32, buildVersion string) error {
	entry := Entry{
		OwnerType:    ownerType,
		OwnerID:      ownerID,
		Embedding:    pgvector.NewVector(embedding),
		BuildVersion: buildVersion,
	}
	return p.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Assign(entry).
		FirstOrCreate(&entry).Error
}

func (p *pgvectorIndex) Search(ctx context.Context, ownerType string, embedding []float32, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := pgvector.NewVector(embedding)

	var rows []struct {
		OwnerID  uuid.UUID
		Distance float64
	}
	err := p.db.WithContext(ctx).
		Table("graphrag_vector_index").
		Select("owner_id, embedding <=> ? AS distance", vec).
		Where("owner_type = ?", ownerType).
		Order("embedding <=> ?", vec).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	out := make([]Neighbor, len(rows))
	for i, r := range rows {
		out[i] = Neighbor{OwnerID: r.OwnerID, Distance: r.Distance}
	}
	return out, nil
}

func (p *pgvectorIndex) Delete(ctx context.Context, ownerType string, ownerID uuid.UUID) error {
	return p.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Delete(&Entry{}).Error
}
