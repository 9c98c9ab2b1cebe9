package resolution

import (
	"context"
	"sort"
	"time"

	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/domain/shared/valueobject"
)

// QueryService answers read queries for downstream consumers
type QueryService struct {
	records resolution.InventoryRecordRepository
	reviews resolution.MergeReviewRepository
	now     func() time.Time
}

// NewQueryService creates a new QueryService
func NewQueryService(records resolution.InventoryRecordRepository, reviews resolution.MergeReviewRepository) *QueryService {
	return &QueryService{records: records, reviews: reviews, now: time.Now}
}

// WithClock overrides the clock used to stamp snapshots
func (s *QueryService) WithClock(now func() time.Time) *QueryService {
	s.now = now
	return s
}

// ListByScope lists records of one scope with their derived attributes. An empty status means active.
func (s *QueryService) ListByScope(ctx context.Context, key resolution.ScopeKey, status resolution.LifecycleStatus) ([]RecordView, error) {
	records, err := s.records.FindByScope(ctx, key.Scope, key.DealID, status)
	if err != nil {
		return nil, err
	}
	views := make([]RecordView, len(records))
	for i, r := range records {
		views[i] = ToRecordView(r)
	}
	return views, nil
}

// GetRecord returns one record by id, tombstones included
func (s *QueryService) GetRecord(ctx context.Context, id string) (*RecordView, error) {
	r, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := ToRecordView(r)
	return &v, nil
}

// GetEvidenceChain returns the full observation list of a record. Merge links are
// reported, not followed.
func (s *QueryService) GetEvidenceChain(ctx context.Context, id string) (*EvidenceChain, error) {
	r, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EvidenceChain{
		RecordID:        r.ID,
		LifecycleStatus: string(r.Status),
		MergedInto:      r.MergedInto,
		Observations:    r.Observations,
	}, nil
}

// FindSimilar lists active records resembling a name
func (s *QueryService) FindSimilar(ctx context.Context, q resolution.SimilarQuery) ([]SimilarView, error) {
	if !q.Scope.IsValid() {
		return nil, shared.NewValidationError("ownership_scope", `must be "target" or "acquirer"`)
	}
	if q.Threshold <= 0 || q.Threshold > 1 {
		q.Threshold = resolution.DefaultMatchPolicy().Threshold
	}
	matches, err := s.records.FindSimilar(ctx, q)
	if err != nil {
		return nil, err
	}
	views := make([]SimilarView, len(matches))
	for i, m := range matches {
		views[i] = SimilarView{Record: ToRecordView(m.Record), Score: m.Score}
	}
	return views, nil
}

// CountByScope counts active records of a scope
func (s *QueryService) CountByScope(ctx context.Context, key resolution.ScopeKey) (int64, error) {
	return s.records.CountByScope(ctx, key.Scope, key.DealID)
}

// Snapshot builds the export projection of a scope
func (s *QueryService) Snapshot(ctx context.Context, key resolution.ScopeKey) (*ScopeSnapshot, error) {
	records, err := s.records.FindByScope(ctx, key.Scope, key.DealID, resolution.StatusActive)
	if err != nil {
		return nil, err
	}
	views := make([]RecordView, len(records))
	for i, r := range records {
		views[i] = ToRecordView(r)
	}
	pending, err := s.reviews.FindPending(ctx, key.Scope, key.DealID, shared.Filter{Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	return &ScopeSnapshot{
		DealScope:      key.DealID,
		OwnershipScope: string(key.Scope),
		GeneratedAt:    s.now().UTC(),
		RecordCount:    len(views),
		PendingReviews: pending.Total,
		CostTotals:     costTotals(records),
		Records:        views,
	}, nil
}

// costTotals sums priced records per currency, ordered by currency code
func costTotals(records []*resolution.InventoryRecord) []CostTotal {
	sums := make(map[valueobject.Currency]valueobject.Money)
	totals := make(map[valueobject.Currency]*CostTotal)
	for _, r := range records {
		if !r.Cost.HasValue() {
			continue
		}
		cur := r.Cost.Value.Currency()
		sum, ok := sums[cur]
		if !ok {
			sum = valueobject.Zero(cur)
			totals[cur] = &CostTotal{Currency: string(cur)}
		}
		next, err := sum.Add(*r.Cost.Value)
		if err != nil {
			continue
		}
		sums[cur] = next
		t := totals[cur]
		t.Records++
		if r.Cost.Status == resolution.CostEstimated {
			t.Estimated++
		}
	}

	out := make([]CostTotal, 0, len(totals))
	for cur, t := range totals {
		t.Amount = sums[cur].Amount()
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
