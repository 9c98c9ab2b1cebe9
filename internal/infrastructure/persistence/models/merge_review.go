package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
)

// MergeReviewModel is the persistence model for the manual-review queue
type MergeReviewModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	DealID         uuid.UUID `gorm:"type:uuid;not null;index:idx_merge_reviews_scope,priority:1"`
	OwnershipScope string    `gorm:"type:varchar(16);not null;index:idx_merge_reviews_scope,priority:2"`
	RecordType     string    `gorm:"type:varchar(32);not null"`
	RecordA        string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_merge_reviews_pair,priority:1"`
	RecordB        string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_merge_reviews_pair,priority:2"`
	Score          float64   `gorm:"not null"`
	VendorScore    float64   `gorm:"not null"`
	Reason         string    `gorm:"type:varchar(32);not null"`
	Status         string    `gorm:"type:varchar(16);not null;index"`
	ResolvedBy     string    `gorm:"type:varchar(255)"`
	ResolutionNote string    `gorm:"type:text"`
	ResolvedAt     *time.Time
	AggregateModel
}

// TableName returns the table name for GORM
func (MergeReviewModel) TableName() string {
	return "merge_reviews"
}

// MergeReviewModelFromDomain converts a domain MergeReview into its persistence model
func MergeReviewModelFromDomain(r *resolution.MergeReview) *MergeReviewModel {
	m := &MergeReviewModel{
		ID:             r.ID,
		DealID:         r.DealID,
		OwnershipScope: string(r.OwnershipScope),
		RecordType:     string(r.RecordType),
		RecordA:        r.RecordA,
		RecordB:        r.RecordB,
		Score:          r.Score,
		VendorScore:    r.VendorScore,
		Reason:         string(r.Reason),
		Status:         string(r.Status),
		ResolvedBy:     r.ResolvedBy,
		ResolutionNote: r.ResolutionNote,
		ResolvedAt:     r.ResolvedAt,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// ToDomain converts the persistence model to a domain MergeReview
func (m *MergeReviewModel) ToDomain() *resolution.MergeReview {
	return &resolution.MergeReview{
		BaseAggregateRoot: m.ToDomainAggregateRoot(m.ID),
		DealID:            m.DealID,
		OwnershipScope:    resolution.OwnershipScope(m.OwnershipScope),
		RecordType:        resolution.RecordType(m.RecordType),
		RecordA:           m.RecordA,
		RecordB:           m.RecordB,
		Score:             m.Score,
		VendorScore:       m.VendorScore,
		Reason:            shared.MergeConflictReason(m.Reason),
		Status:            resolution.ReviewStatus(m.Status),
		ResolvedBy:        m.ResolvedBy,
		ResolutionNote:    m.ResolutionNote,
		ResolvedAt:        m.ResolvedAt,
	}
}
