package resolution

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
)

// AggregateTypeInventoryRecord is the aggregate type name used on events
const AggregateTypeInventoryRecord = "InventoryRecord"

// Attributes are the derived display attributes common to every record type
type Attributes struct {
	DisplayName string `json:"display_name"`
	Vendor      string `json:"vendor,omitempty"`
	Version     string `json:"version,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ApplicationDetails are the derived attributes specific to applications
type ApplicationDetails struct {
	HostingModel string `json:"hosting_model,omitempty"`
	UserCount    *int   `json:"user_count,omitempty"`
	LicenseModel string `json:"license_model,omitempty"`
}

// InfrastructureDetails are the derived attributes specific to infrastructure items
type InfrastructureDetails struct {
	Environment string `json:"environment,omitempty"`
	Location    string `json:"location,omitempty"`
	Quantity    *int   `json:"quantity,omitempty"`
}

// RoleDetails are the derived attributes specific to organizational roles
type RoleDetails struct {
	Department string `json:"department,omitempty"`
	Headcount  *int   `json:"headcount,omitempty"`
	ReportsTo  string `json:"reports_to,omitempty"`
}

// InventoryRecord is one real-world item as understood within one deal and one
// ownership scope. Identity fields (type, normalized name, scope, deal) never
// change after creation; everything else is derived from Observations.
type InventoryRecord struct {
	shared.BaseAggregateRoot
	Type           RecordType
	OwnershipScope OwnershipScope
	DealID         uuid.UUID
	NormalizedName string
	// SourceName is the raw name the record was first resolved from
	SourceName string

	Attributes     Attributes
	Application    *ApplicationDetails
	Infrastructure *InfrastructureDetails
	Role           *RoleDetails
	Cost           Cost

	Observations []Observation
	Status       LifecycleStatus
	MergedInto   string
}

// NewInventoryRecord creates an active record with no observations.
// Seed attributes only fill the display attributes until evidence arrives.
func NewInventoryRecord(recordType RecordType, name string, scope OwnershipScope, dealID uuid.UUID, seed Attributes, now time.Time) (*InventoryRecord, error) {
	if !recordType.IsValid() {
		return nil, shared.NewValidationError("type", "unknown record type")
	}
	if !scope.IsValid() {
		return nil, shared.NewValidationError("ownership_scope", `must be "target" or "acquirer"`)
	}
	if dealID == uuid.Nil {
		return nil, shared.NewValidationError("deal_scope", "is required")
	}

	normalized := Normalize(name)
	now = now.UTC()
	r := &InventoryRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(IDForNormalized(recordType, normalized, scope, dealID), now),
		Type:              recordType,
		OwnershipScope:    scope,
		DealID:            dealID,
		NormalizedName:    normalized,
		SourceName:        strings.TrimSpace(name),
		Cost:              UnknownCost(),
		Observations:      make([]Observation, 0),
		Status:            StatusActive,
	}
	r.Attributes = seed
	if r.Attributes.DisplayName == "" {
		r.Attributes.DisplayName = r.SourceName
	}
	r.initDetails()

	r.AddDomainEvent(NewRecordCreatedEvent(r))
	return r, nil
}

func (r *InventoryRecord) initDetails() {
	switch r.Type {
	case RecordTypeApplication:
		if r.Application == nil {
			r.Application = &ApplicationDetails{}
		}
	case RecordTypeInfrastructure:
		if r.Infrastructure == nil {
			r.Infrastructure = &InfrastructureDetails{}
		}
	case RecordTypeOrganizationalRole:
		if r.Role == nil {
			r.Role = &RoleDetails{}
		}
	}
}

// IsActive returns true if the record takes part in queries and reconciliation
func (r *InventoryRecord) IsActive() bool {
	return r.Status == StatusActive
}

// HasSource returns true if evidence from the source reference is already on the record
func (r *InventoryRecord) HasSource(source string) bool {
	source = strings.TrimSpace(source)
	for _, o := range r.Observations {
		if o.SourceReference == source {
			return true
		}
	}
	return false
}

// AddObservation appends evidence and recomputes the derived attributes.
// It returns false when the source reference was already seen, leaving the record untouched.
// Removed records still accept evidence; merged-away records redirect to their survivor
// and reject it.
func (r *InventoryRecord) AddObservation(obs Observation, now time.Time) (bool, error) {
	if r.Status == StatusMergedAway {
		return false, shared.NewDomainError("RECORD_MERGED_AWAY", "Record "+r.ID+" was merged into "+r.MergedInto)
	}
	if r.HasSource(obs.SourceReference) {
		return false, nil
	}
	r.Observations = append(r.Observations, obs)
	r.Recompute()
	r.Touch(now.UTC())
	r.AddDomainEvent(NewObservationAppendedEvent(r, obs))
	return true, nil
}

// MergeOrigin identifies the path that requested a merge
type MergeOrigin string

const (
	MergeByReconciliation MergeOrigin = "reconciliation"
	MergeByReview         MergeOrigin = "review"
)

// Merge folds loser into r. Both must be active, of the same type, scope and deal.
// The survivor receives the union of both observation lists ordered by timestamp;
// the loser keeps its own observations and becomes a merged_away tombstone.
func (r *InventoryRecord) Merge(loser *InventoryRecord, origin MergeOrigin, now time.Time) error {
	switch {
	case origin != MergeByReconciliation && origin != MergeByReview:
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "Merge must be requested by reconciliation or review")
	case loser == nil || loser.ID == r.ID:
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "A record cannot be merged into itself")
	case r.OwnershipScope != loser.OwnershipScope:
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "Records from different ownership scopes are never merged")
	case r.DealID != loser.DealID:
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "Records from different deals are never merged")
	case r.Type != loser.Type:
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "Records of different types are never merged")
	case !r.IsActive() || !loser.IsActive():
		return shared.NewDomainError("MERGE_NOT_PERMITTED", "Only active records can be merged")
	}

	combined := make([]Observation, 0, len(r.Observations)+len(loser.Observations))
	combined = append(combined, r.Observations...)
	combined = append(combined, loser.Observations...)
	slices.SortStableFunc(combined, func(a, b Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	r.Observations = combined
	r.Recompute()

	now = now.UTC()
	r.Touch(now)
	loser.Status = StatusMergedAway
	loser.MergedInto = r.ID
	loser.Touch(now)

	r.AddDomainEvent(NewRecordMergedEvent(r, loser, origin))
	return nil
}

// MarkRemoved tombstones an active record on explicit review. The row and its evidence stay.
func (r *InventoryRecord) MarkRemoved(reviewer, reason string, now time.Time) error {
	if !r.IsActive() {
		return shared.NewDomainError("INVALID_STATE", "Only active records can be removed")
	}
	if strings.TrimSpace(reviewer) == "" {
		return shared.NewValidationError("reviewer", "is required")
	}
	r.Status = StatusRemoved
	r.Touch(now.UTC())
	r.AddDomainEvent(NewRecordRemovedEvent(r, reviewer, reason))
	return nil
}

// LatestObservationAt returns the newest observation timestamp, zero when there is none
func (r *InventoryRecord) LatestObservationAt() time.Time {
	var latest time.Time
	for _, o := range r.Observations {
		if o.Timestamp.After(latest) {
			latest = o.Timestamp
		}
	}
	return latest
}

// SurvivorOf picks which of two records survives a merge: more observations,
// then the more recent latest observation, then the smaller id.
func SurvivorOf(a, b *InventoryRecord) (survivor, loser *InventoryRecord) {
	if len(a.Observations) != len(b.Observations) {
		if len(a.Observations) > len(b.Observations) {
			return a, b
		}
		return b, a
	}
	la, lb := a.LatestObservationAt(), b.LatestObservationAt()
	if !la.Equal(lb) {
		if la.After(lb) {
			return a, b
		}
		return b, a
	}
	if a.ID < b.ID {
		return a, b
	}
	return b, a
}
