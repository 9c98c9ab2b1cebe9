package resolution

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
)

// AggregateTypeMergeReview is the aggregate type name used on review events
const AggregateTypeMergeReview = "MergeReview"

// ReviewStatus is the state of a manual-review item
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewMerged   ReviewStatus = "merged"
	ReviewRejected ReviewStatus = "rejected"
	// ReviewSuperseded closes an item whose pair no longer exists because one
	// of its records was merged away or removed
	ReviewSuperseded ReviewStatus = "superseded"
)

// SupersededBy is recorded as the resolver of superseded items
const SupersededBy = "reconciliation"

// ReviewDecision is the action a reviewer takes on a flagged pair
type ReviewDecision string

const (
	DecisionMergePair  ReviewDecision = "merge"
	DecisionRejectPair ReviewDecision = "reject"
)

// PairKey identifies an unordered pair of record ids
type PairKey struct {
	A string
	B string
}

// NewPairKey orders the two ids so (a, b) and (b, a) give the same key
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// MergeReview is a candidate pair that reconciliation declined to merge on its own
type MergeReview struct {
	shared.BaseAggregateRoot
	DealID         uuid.UUID
	OwnershipScope OwnershipScope
	RecordType     RecordType
	RecordA        string
	RecordB        string
	Score          float64
	VendorScore    float64
	Reason         shared.MergeConflictReason
	Status         ReviewStatus
	ResolvedBy     string
	ResolutionNote string
	ResolvedAt     *time.Time
}

// NewMergeReview queues a merge conflict between two records of one scope
func NewMergeReview(conflict *shared.MergeConflict, a *InventoryRecord, now time.Time) *MergeReview {
	key := NewPairKey(conflict.RecordA, conflict.RecordB)
	review := &MergeReview{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(uuid.NewString(), now.UTC()),
		DealID:            a.DealID,
		OwnershipScope:    a.OwnershipScope,
		RecordType:        a.Type,
		RecordA:           key.A,
		RecordB:           key.B,
		Score:             conflict.Score,
		VendorScore:       conflict.VendorScore,
		Reason:            conflict.Reason,
		Status:            ReviewPending,
	}
	review.AddDomainEvent(NewMergeFlaggedEvent(review))
	return review
}

// Pair returns the ordered pair key
func (m *MergeReview) Pair() PairKey {
	return PairKey{A: m.RecordA, B: m.RecordB}
}

// Resolve records the reviewer's decision. Only pending items can be resolved.
func (m *MergeReview) Resolve(decision ReviewDecision, reviewer, note string, now time.Time) error {
	if m.Status != ReviewPending {
		return shared.NewDomainError("INVALID_STATE", "Review item is already "+string(m.Status))
	}
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return shared.NewValidationError("reviewer", "is required")
	}
	switch decision {
	case DecisionMergePair:
		m.Status = ReviewMerged
	case DecisionRejectPair:
		m.Status = ReviewRejected
	default:
		return shared.NewValidationError("decision", `must be "merge" or "reject"`)
	}
	now = now.UTC()
	m.ResolvedBy = reviewer
	m.ResolutionNote = note
	m.ResolvedAt = &now
	m.Touch(now)
	m.AddDomainEvent(NewMergeReviewResolvedEvent(m))
	return nil
}
