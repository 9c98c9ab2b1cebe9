package resolution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
)

// ScopeKey names one (ownership scope, deal) partition
type ScopeKey struct {
	Scope  OwnershipScope
	DealID uuid.UUID
}

// String returns the key used for scope locks and job coalescing
func (k ScopeKey) String() string {
	return k.DealID.String() + "/" + string(k.Scope)
}

// SimilarQuery describes a fuzzy lookup within one scope
type SimilarQuery struct {
	Name      string
	Type      RecordType // empty matches every type
	Scope     OwnershipScope
	DealID    uuid.UUID
	Threshold float64
}

// SimilarMatch is a record with its name similarity to the query
type SimilarMatch struct {
	Record *InventoryRecord
	Score  float64
}

// InventoryRecordRepository is the authoritative store for inventory records
type InventoryRecordRepository interface {
	// FindByID finds a record by identifier, returning shared.ErrNotFound when absent
	FindByID(ctx context.Context, id string) (*InventoryRecord, error)

	// FindOrCreate returns the record for the identifier derived from the inputs,
	// creating it with the seed attributes when absent. Seed is ignored on a hit.
	// The bool reports whether this call created the row; a lost creation race
	// re-reads the winner and reports false.
	FindOrCreate(ctx context.Context, recordType RecordType, name string, scope OwnershipScope, dealID uuid.UUID, seed Attributes) (*InventoryRecord, bool, error)

	// Save creates or fully replaces a record
	Save(ctx context.Context, record *InventoryRecord) error

	// SaveWithLock updates a record only if its version is unchanged since it was loaded
	SaveWithLock(ctx context.Context, record *InventoryRecord) error

	// FindByScope lists records of one scope with the given status, ordered by type, name and id
	FindByScope(ctx context.Context, scope OwnershipScope, dealID uuid.UUID, status LifecycleStatus) ([]*InventoryRecord, error)

	// FindSimilar lists active records whose name similarity meets the threshold, best first
	FindSimilar(ctx context.Context, query SimilarQuery) ([]SimilarMatch, error)

	// CountByScope counts active records of one scope
	CountByScope(ctx context.Context, scope OwnershipScope, dealID uuid.UUID) (int64, error)

	// MergeRecords persists survivor and loser of a merge in one transaction.
	// It fails without writing anything if the loser is no longer active or either
	// record changed since it was loaded.
	MergeRecords(ctx context.Context, survivor, loser *InventoryRecord) error
}

// MergeReviewRepository stores the manual-review queue
type MergeReviewRepository interface {
	// Enqueue stores a review unless one already exists for the pair; the bool reports insertion
	Enqueue(ctx context.Context, review *MergeReview) (bool, error)

	// FindByID finds a review item, returning shared.ErrNotFound when absent
	FindByID(ctx context.Context, id string) (*MergeReview, error)

	// FindPending lists pending items of one scope, newest first
	FindPending(ctx context.Context, scope OwnershipScope, dealID uuid.UUID, filter shared.Filter) (shared.Paginated[*MergeReview], error)

	// Save updates a review item
	Save(ctx context.Context, review *MergeReview) error

	// RejectedPairs returns pairs a reviewer has declined to merge in one scope
	RejectedPairs(ctx context.Context, scope OwnershipScope, dealID uuid.UUID) (map[PairKey]struct{}, error)

	// PendingRecordIDs returns the distinct record ids named by pending items of one scope
	PendingRecordIDs(ctx context.Context, scope OwnershipScope, dealID uuid.UUID) ([]string, error)

	// Supersede closes every pending item of one scope that names any of recordIDs
	// and returns how many were closed
	Supersede(ctx context.Context, scope OwnershipScope, dealID uuid.UUID, recordIDs []string, now time.Time) (int64, error)
}
