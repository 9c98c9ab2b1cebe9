package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
)

// ListRecordsQuery filters the records of one scope
type ListRecordsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active merged_away removed"`
}

// SimilarRecordsQuery is a fuzzy lookup within one scope
type SimilarRecordsQuery struct {
	Name      string  `form:"name" binding:"required"`
	Type      string  `form:"type" binding:"omitempty,oneof=application infrastructure organizational_role"`
	Threshold float64 `form:"threshold" binding:"omitempty,gt=0,lte=1"`
}

// ExportQuery selects an export encoding and whether to store it
type ExportQuery struct {
	Format  string `form:"format"`
	Publish bool   `form:"publish"`
}

// ReconcileAcceptedResponse is returned when a pass is queued
// @Description Reconciliation pass queued for a scope
type ReconcileAcceptedResponse struct {
	Scope  string `json:"scope" example:"3f0c.../target"`
	Queued bool   `json:"queued" example:"true"`
}

// ConfirmAttributesRequest carries reviewer-confirmed attribute values
type ConfirmAttributesRequest struct {
	Reviewer string         `json:"reviewer" binding:"required"`
	Fields   map[string]any `json:"fields" binding:"required,min=1"`
}

// RemoveRecordRequest asks for a record to be removed from inventory
type RemoveRecordRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

// ReviewResponse is the API projection of a merge review
// @Description Candidate pair waiting for or resolved by a reviewer
type ReviewResponse struct {
	ID             string     `json:"id"`
	DealScope      uuid.UUID  `json:"deal_scope"`
	OwnershipScope string     `json:"ownership_scope"`
	RecordType     string     `json:"record_type"`
	RecordA        string     `json:"record_a"`
	RecordB        string     `json:"record_b"`
	Score          float64    `json:"score" example:"0.82"`
	VendorScore    float64    `json:"vendor_score"`
	Reason         string     `json:"reason" example:"boundary_score"`
	Status         string     `json:"status" example:"pending"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToReviewResponse projects a domain review
func ToReviewResponse(r *resolution.MergeReview) ReviewResponse {
	return ReviewResponse{
		ID:             r.ID,
		DealScope:      r.DealID,
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
		CreatedAt:      r.CreatedAt,
	}
}

// ToReviewResponses projects a page of reviews
func ToReviewResponses(reviews []*resolution.MergeReview) []ReviewResponse {
	out := make([]ReviewResponse, len(reviews))
	for i, r := range reviews {
		out[i] = ToReviewResponse(r)
	}
	return out
}

// ResolveReviewResponse reports the effect of a review decision
type ResolveReviewResponse struct {
	Review     ReviewResponse `json:"review"`
	SurvivorID string         `json:"survivor_id,omitempty"`
	LoserID    string         `json:"loser_id,omitempty"`
}
