package resolution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ResolveReviewRequest is a reviewer's decision on a queued pair
type ResolveReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=merge reject"`
	Reviewer string `json:"reviewer" binding:"required"`
	Note     string `json:"note"`
}

// ResolveReviewResult reports the effect of a review decision
type ResolveReviewResult struct {
	Review     *resolution.MergeReview `json:"-"`
	SurvivorID string                  `json:"survivor_id,omitempty"`
	LoserID    string                  `json:"loser_id,omitempty"`
	// Superseded counts other pending items closed because they named the loser
	Superseded int64                   `json:"superseded,omitempty"`
}

// ReviewService handles manual review of merge conflicts and record corrections
type ReviewService struct {
	records   resolution.InventoryRecordRepository
	reviews   resolution.MergeReviewRepository
	retry     RetryPolicy
	publisher shared.EventPublisher
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewReviewService creates a new ReviewService
func NewReviewService(records resolution.InventoryRecordRepository, reviews resolution.MergeReviewRepository, retry RetryPolicy, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.Attempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &ReviewService{
		records:   records,
		reviews:   reviews,
		retry:     retry,
		publisher: shared.NoopPublisher{},
		metrics:   NoopMetrics{},
		logger:    logger,
		now:       time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ReviewService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetMetrics sets the metrics sink
func (s *ReviewService) SetMetrics(m Metrics) {
	s.metrics = m
}

// WithClock overrides the clock
func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

// ListPending lists the open review items of one scope
func (s *ReviewService) ListPending(ctx context.Context, key resolution.ScopeKey, filter shared.Filter) (shared.Paginated[*resolution.MergeReview], error) {
	return s.reviews.FindPending(ctx, key.Scope, key.DealID, filter)
}

// Get returns one review item
func (s *ReviewService) Get(ctx context.Context, id string) (*resolution.MergeReview, error) {
	return s.reviews.FindByID(ctx, id)
}

// Resolve applies a reviewer decision. A merge goes through the same merge path as
// reconciliation; a rejection is remembered so the pair is never flagged again.
func (s *ReviewService) Resolve(ctx context.Context, reviewID string, req ResolveReviewRequest) (*ResolveReviewResult, error) {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	decision := resolution.ReviewDecision(strings.ToLower(strings.TrimSpace(req.Decision)))
	if err := review.Resolve(decision, req.Reviewer, req.Note, s.now()); err != nil {
		return nil, err
	}

	result := &ResolveReviewResult{Review: review}
	if decision == resolution.DecisionMergePair {
		survivor, loser, err := s.mergePair(ctx, review)
		if err != nil {
			return nil, err
		}
		result.SurvivorID, result.LoserID = survivor.ID, loser.ID
	}

	if err := s.reviews.Save(ctx, review); err != nil {
		return nil, err
	}
	if result.LoserID != "" {
		key := resolution.ScopeKey{Scope: review.OwnershipScope, DealID: review.DealID}
		result.Superseded = supersedeReviews(ctx, s.reviews, key, []string{result.LoserID}, s.now(), s.logger)
	}
	s.publish(ctx, review)
	s.metrics.ReviewResolved(decision)
	s.logger.Info("Review item resolved",
		zap.String("review_id", review.ID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", review.ResolvedBy))
	return result, nil
}

func (s *ReviewService) mergePair(ctx context.Context, review *resolution.MergeReview) (survivor, loser *resolution.InventoryRecord, err error) {
	_, err = s.retry.run(ctx, nil, nil, func(ctx context.Context) error {
		a, err := s.records.FindByID(ctx, review.RecordA)
		if err != nil {
			return err
		}
		b, err := s.records.FindByID(ctx, review.RecordB)
		if err != nil {
			return err
		}
		if !a.IsActive() || !b.IsActive() {
			return shared.NewDomainError("MERGE_NOT_PERMITTED", "Both records must still be active to merge")
		}
		survivor, loser = resolution.SurvivorOf(a, b)
		if err := survivor.Merge(loser, resolution.MergeByReview, s.now()); err != nil {
			return err
		}
		return s.records.MergeRecords(ctx, survivor, loser)
	})
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, survivor)
	return survivor, loser, nil
}

// ConfirmAttributes appends a human-confirmed observation that outranks all machine evidence
func (s *ReviewService) ConfirmAttributes(ctx context.Context, recordID, reviewer string, fields map[string]any) (*resolution.InventoryRecord, error) {
	if len(fields) == 0 {
		return nil, shared.NewValidationError("fields", "is required")
	}
	obs, err := resolution.NewConfirmedObservation(reviewer, fields, s.now())
	if err != nil {
		return nil, err
	}

	var rec *resolution.InventoryRecord
	_, err = s.retry.run(ctx, nil, func(int, error) { s.metrics.RetriedOperation("confirm") }, func(ctx context.Context) error {
		loaded, err := s.records.FindByID(ctx, recordID)
		if err != nil {
			return err
		}
		loaded, err = followMerged(ctx, s.records, loaded)
		if err != nil {
			return err
		}
		if _, err := loaded.AddObservation(obs, s.now()); err != nil {
			return err
		}
		if err := s.records.SaveWithLock(ctx, loaded); err != nil {
			return err
		}
		rec = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// RemoveRecord tombstones a record as removed. The row and its evidence are kept.
func (s *ReviewService) RemoveRecord(ctx context.Context, recordID, reviewer, reason string) (*resolution.InventoryRecord, error) {
	var rec *resolution.InventoryRecord
	_, err := s.retry.run(ctx, nil, nil, func(ctx context.Context) error {
		loaded, err := s.records.FindByID(ctx, recordID)
		if err != nil {
			return err
		}
		if err := loaded.MarkRemoved(reviewer, reason, s.now()); err != nil {
			return err
		}
		if err := s.records.SaveWithLock(ctx, loaded); err != nil {
			return err
		}
		rec = loaded
		return nil
	})
	if err != nil {
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			s.logger.Warn("Failed to remove record", zap.String("record_id", recordID), zap.Error(err))
		}
		return nil, err
	}
	supersedeReviews(ctx, s.reviews, resolution.ScopeKey{Scope: rec.OwnershipScope, DealID: rec.DealID}, []string{rec.ID}, s.now(), s.logger)
	s.publish(ctx, rec)
	return rec, nil
}

// supersedeReviews closes pending items naming any of ids. The records have
// already been committed, so a failure is only logged; the next reconciliation
// pass of the scope closes whatever is left.
func supersedeReviews(ctx context.Context, reviews resolution.MergeReviewRepository, key resolution.ScopeKey, ids []string, now time.Time, logger *zap.Logger) int64 {
	n, err := reviews.Supersede(ctx, key.Scope, key.DealID, ids, now)
	if err != nil {
		logger.Warn("Failed to supersede review items",
			zap.String("scope", key.String()),
			zap.Strings("record_ids", ids),
			zap.Error(err))
		return 0
	}
	if n > 0 {
		logger.Info("Review items superseded",
			zap.String("scope", key.String()),
			zap.Strings("record_ids", ids),
			zap.Int64("count", n))
	}
	return n
}

func (s *ReviewService) publish(ctx context.Context, agg shared.AggregateRoot) {
	publishPending(ctx, s.publisher, agg, s.logger)
}
