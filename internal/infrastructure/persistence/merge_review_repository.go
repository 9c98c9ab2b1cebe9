package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMergeReviewRepository implements MergeReviewRepository using GORM
type GormMergeReviewRepository struct {
	db *gorm.DB
}

// NewGormMergeReviewRepository creates a new GormMergeReviewRepository
func NewGormMergeReviewRepository(db *gorm.DB) *GormMergeReviewRepository {
	return &GormMergeReviewRepository{db: db}
}

// Enqueue inserts a review item unless the pair is already queued or decided
func (r *GormMergeReviewRepository) Enqueue(ctx context.Context, review *resolution.MergeReview) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_a"}, {Name: "record_b"}},
			DoNothing: true,
		}).
		Create(models.MergeReviewModelFromDomain(review))
	if result.Error != nil {
		return false, storageError("enqueue_review", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FindByID finds a review item by its ID
func (r *GormMergeReviewRepository) FindByID(ctx context.Context, id string) (*resolution.MergeReview, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.ErrNotFound
	}
	var model models.MergeReviewModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, storageError("find_review", err)
	}
	return model.ToDomain(), nil
}

// FindPending lists pending review items of one scope, newest first unless
// the filter names another whitelisted order
func (r *GormMergeReviewRepository) FindPending(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID, filter shared.Filter) (shared.Paginated[*resolution.MergeReview], error) {
	if filter.PageSize <= 0 {
		filter = shared.DefaultFilter()
	}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.MergeReviewModel{}).
			Where("ownership_scope = ? AND deal_id = ? AND status = ?", string(scope), dealID, string(resolution.ReviewPending))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return shared.Paginated[*resolution.MergeReview]{}, storageError("count_reviews", err)
	}

	var rows []models.MergeReviewModel
	if err := base().
		Order(reviewOrder(filter)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return shared.Paginated[*resolution.MergeReview]{}, storageError("find_reviews", err)
	}

	items := make([]*resolution.MergeReview, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

func reviewOrder(filter shared.Filter) string {
	field := ValidateSortField(filter.OrderBy, ReviewSortFields, "created_at")
	return field + " " + ValidateSortOrder(filter.OrderDir) + ", id ASC"
}

// Save updates a review item with optimistic locking
func (r *GormMergeReviewRepository) Save(ctx context.Context, review *resolution.MergeReview) error {
	m := models.MergeReviewModelFromDomain(review)
	result := r.db.WithContext(ctx).
		Model(&models.MergeReviewModel{}).
		Where("id = ? AND version = ?", review.ID, review.Version).
		Updates(map[string]any{
			"status":          m.Status,
			"resolved_by":     m.ResolvedBy,
			"resolution_note": m.ResolutionNote,
			"resolved_at":     m.ResolvedAt,
			"version":         review.Version + 1,
			"updated_at":      m.UpdatedAt,
		})
	if result.Error != nil {
		return storageError("save_review", result.Error)
	}
	if result.RowsAffected == 0 {
		return staleWrite("save_review")
	}
	review.Version++
	return nil
}

// RejectedPairs returns the pairs reviewers declined to merge within one scope
func (r *GormMergeReviewRepository) RejectedPairs(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID) (map[resolution.PairKey]struct{}, error) {
	var rows []models.MergeReviewModel
	if err := r.db.WithContext(ctx).
		Select("record_a", "record_b").
		Where("ownership_scope = ? AND deal_id = ? AND status = ?", string(scope), dealID, string(resolution.ReviewRejected)).
		Find(&rows).Error; err != nil {
		return nil, storageError("rejected_pairs", err)
	}
	pairs := make(map[resolution.PairKey]struct{}, len(rows))
	for _, row := range rows {
		pairs[resolution.NewPairKey(row.RecordA, row.RecordB)] = struct{}{}
	}
	return pairs, nil
}

// PendingRecordIDs returns the distinct record ids named by pending items of one scope
func (r *GormMergeReviewRepository) PendingRecordIDs(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID) ([]string, error) {
	var rows []models.MergeReviewModel
	if err := r.db.WithContext(ctx).
		Select("record_a", "record_b").
		Where("ownership_scope = ? AND deal_id = ? AND status = ?", string(scope), dealID, string(resolution.ReviewPending)).
		Find(&rows).Error; err != nil {
		return nil, storageError("pending_record_ids", err)
	}
	seen := make(map[string]struct{}, 2*len(rows))
	ids := make([]string, 0, 2*len(rows))
	for _, row := range rows {
		for _, id := range []string{row.RecordA, row.RecordB} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Supersede closes every pending item of one scope that names any of recordIDs
func (r *GormMergeReviewRepository) Supersede(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID, recordIDs []string, now time.Time) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.MergeReviewModel{}).
		Where("ownership_scope = ? AND deal_id = ? AND status = ? AND (record_a IN ? OR record_b IN ?)",
			string(scope), dealID, string(resolution.ReviewPending), recordIDs, recordIDs).
		Updates(map[string]any{
			"status":          string(resolution.ReviewSuperseded),
			"resolved_by":     resolution.SupersededBy,
			"resolution_note": "record no longer active",
			"resolved_at":     now,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      now,
		})
	if result.Error != nil {
		return 0, storageError("supersede_reviews", result.Error)
	}
	return result.RowsAffected, nil
}
