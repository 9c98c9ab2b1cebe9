package models

import (
	"time"

	"github.com/itdd/backend/internal/domain/shared"
)

// AggregateModel provides common persistence fields for aggregate roots.
// Timestamps come from the domain clock, so GORM's automatic stamping is off.
type AggregateModel struct {
	Version   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.Version = a.Version
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// ToDomainAggregateRoot rebuilds a domain BaseAggregateRoot with the given id
func (m *AggregateModel) ToDomainAggregateRoot(id string) shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{
		BaseEntity: shared.BaseEntity{
			ID:        id,
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Version: m.Version,
	}
}
