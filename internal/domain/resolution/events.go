package resolution

import (
	"github.com/itdd/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeRecordCreated       = "RecordCreated"
	EventTypeObservationAppended = "ObservationAppended"
	EventTypeRecordMerged        = "RecordMerged"
	EventTypeRecordRemoved       = "RecordRemoved"
	EventTypeMergeFlagged        = "MergeFlagged"
	EventTypeMergeReviewResolved = "MergeReviewResolved"
)

// RecordCreatedEvent is raised when a new identifier is first resolved
type RecordCreatedEvent struct {
	shared.BaseDomainEvent
	RecordType     RecordType     `json:"record_type"`
	OwnershipScope OwnershipScope `json:"ownership_scope"`
	NormalizedName string         `json:"normalized_name"`
}

// NewRecordCreatedEvent creates a new RecordCreatedEvent
func NewRecordCreatedEvent(r *InventoryRecord) *RecordCreatedEvent {
	return &RecordCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecordCreated, AggregateTypeInventoryRecord, r.ID, r.DealID),
		RecordType:      r.Type,
		OwnershipScope:  r.OwnershipScope,
		NormalizedName:  r.NormalizedName,
	}
}

// EventType returns the event type name
func (e *RecordCreatedEvent) EventType() string {
	return EventTypeRecordCreated
}

// ObservationAppendedEvent is raised when new evidence lands on a record
type ObservationAppendedEvent struct {
	shared.BaseDomainEvent
	RecordType      RecordType     `json:"record_type"`
	OwnershipScope  OwnershipScope `json:"ownership_scope"`
	SourceReference string         `json:"source_reference"`
	Kind            ExtractionKind `json:"extraction_kind"`
	HumanConfirmed  bool           `json:"human_confirmed"`
}

// NewObservationAppendedEvent creates a new ObservationAppendedEvent
func NewObservationAppendedEvent(r *InventoryRecord, obs Observation) *ObservationAppendedEvent {
	return &ObservationAppendedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeObservationAppended, AggregateTypeInventoryRecord, r.ID, r.DealID),
		RecordType:      r.Type,
		OwnershipScope:  r.OwnershipScope,
		SourceReference: obs.SourceReference,
		Kind:            obs.Kind,
		HumanConfirmed:  obs.HumanConfirmed,
	}
}

// EventType returns the event type name
func (e *ObservationAppendedEvent) EventType() string {
	return EventTypeObservationAppended
}

// RecordMergedEvent is raised on the survivor when a loser is folded into it
type RecordMergedEvent struct {
	shared.BaseDomainEvent
	RecordType     RecordType     `json:"record_type"`
	OwnershipScope OwnershipScope `json:"ownership_scope"`
	LoserID        string         `json:"loser_id"`
	Origin         MergeOrigin    `json:"origin"`
	Observations   int            `json:"observations"`
}

// NewRecordMergedEvent creates a new RecordMergedEvent
func NewRecordMergedEvent(survivor, loser *InventoryRecord, origin MergeOrigin) *RecordMergedEvent {
	return &RecordMergedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecordMerged, AggregateTypeInventoryRecord, survivor.ID, survivor.DealID),
		RecordType:      survivor.Type,
		OwnershipScope:  survivor.OwnershipScope,
		LoserID:         loser.ID,
		Origin:          origin,
		Observations:    len(survivor.Observations),
	}
}

// EventType returns the event type name
func (e *RecordMergedEvent) EventType() string {
	return EventTypeRecordMerged
}

// RecordRemovedEvent is raised when a reviewer tombstones a record
type RecordRemovedEvent struct {
	shared.BaseDomainEvent
	RecordType     RecordType     `json:"record_type"`
	OwnershipScope OwnershipScope `json:"ownership_scope"`
	Reviewer       string         `json:"reviewer"`
	Reason         string         `json:"reason,omitempty"`
}

// NewRecordRemovedEvent creates a new RecordRemovedEvent
func NewRecordRemovedEvent(r *InventoryRecord, reviewer, reason string) *RecordRemovedEvent {
	return &RecordRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecordRemoved, AggregateTypeInventoryRecord, r.ID, r.DealID),
		RecordType:      r.Type,
		OwnershipScope:  r.OwnershipScope,
		Reviewer:        reviewer,
		Reason:          reason,
	}
}

// EventType returns the event type name
func (e *RecordRemovedEvent) EventType() string {
	return EventTypeRecordRemoved
}

// MergeFlaggedEvent is raised when a candidate pair is queued for manual review
type MergeFlaggedEvent struct {
	shared.BaseDomainEvent
	OwnershipScope OwnershipScope             `json:"ownership_scope"`
	RecordA        string                     `json:"record_a"`
	RecordB        string                     `json:"record_b"`
	Score          float64                    `json:"score"`
	Reason         shared.MergeConflictReason `json:"reason"`
}

// NewMergeFlaggedEvent creates a new MergeFlaggedEvent
func NewMergeFlaggedEvent(review *MergeReview) *MergeFlaggedEvent {
	return &MergeFlaggedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMergeFlagged, AggregateTypeMergeReview, review.ID, review.DealID),
		OwnershipScope:  review.OwnershipScope,
		RecordA:         review.RecordA,
		RecordB:         review.RecordB,
		Score:           review.Score,
		Reason:          review.Reason,
	}
}

// EventType returns the event type name
func (e *MergeFlaggedEvent) EventType() string {
	return EventTypeMergeFlagged
}

// MergeReviewResolvedEvent is raised when a reviewer merges or rejects a flagged pair
type MergeReviewResolvedEvent struct {
	shared.BaseDomainEvent
	OwnershipScope OwnershipScope `json:"ownership_scope"`
	Status         ReviewStatus   `json:"status"`
	ResolvedBy     string         `json:"resolved_by"`
}

// NewMergeReviewResolvedEvent creates a new MergeReviewResolvedEvent
func NewMergeReviewResolvedEvent(review *MergeReview) *MergeReviewResolvedEvent {
	return &MergeReviewResolvedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMergeReviewResolved, AggregateTypeMergeReview, review.ID, review.DealID),
		OwnershipScope:  review.OwnershipScope,
		Status:          review.Status,
		ResolvedBy:      review.ResolvedBy,
	}
}

// EventType returns the event type name
func (e *MergeReviewResolvedEvent) EventType() string {
	return EventTypeMergeReviewResolved
}
