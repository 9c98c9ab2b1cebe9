package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInventoryRecordRepository implements InventoryRecordRepository using GORM.
// Records live in one table per type; the type is recovered from the id prefix.
type GormInventoryRecordRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormInventoryRecordRepository creates a new GormInventoryRecordRepository
func NewGormInventoryRecordRepository(db *gorm.DB) *GormInventoryRecordRepository {
	return &GormInventoryRecordRepository{db: db, now: time.Now}
}

// WithClock overrides the clock used to stamp newly created records
func (r *GormInventoryRecordRepository) WithClock(now func() time.Time) *GormInventoryRecordRepository {
	r.now = now
	return r
}

// FindByID finds a record by its identifier
func (r *GormInventoryRecordRepository) FindByID(ctx context.Context, id string) (*resolution.InventoryRecord, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

func (r *GormInventoryRecordRepository) findByID(db *gorm.DB, id string) (*resolution.InventoryRecord, error) {
	recordType, ok := resolution.RecordTypeFromID(id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	row := models.NewRecordRow(recordType)
	if err := db.First(row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, storageError("find_by_id", err)
	}
	return row.ToDomain(), nil
}

// FindOrCreate returns the record for the derived identifier, creating it when absent.
// A concurrent creator may win the insert; the unique index rejects ours and the
// winner's row is returned instead.
func (r *GormInventoryRecordRepository) FindOrCreate(ctx context.Context, recordType resolution.RecordType, name string, scope resolution.OwnershipScope, dealID uuid.UUID, seed resolution.Attributes) (*resolution.InventoryRecord, bool, error) {
	id := resolution.GenerateID(recordType, name, scope, dealID)

	existing, err := r.FindByID(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	record, err := resolution.NewInventoryRecord(recordType, name, scope, dealID, seed, r.now())
	if err != nil {
		return nil, false, err
	}
	row := models.RecordRowFromDomain(record)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, false, storageError("create", err)
		}
		conflict := &shared.ConflictError{Entity: row.TableName(), Key: id, Err: err}
		winner, ferr := r.FindByID(ctx, id)
		if ferr != nil {
			return nil, false, &shared.StorageError{Op: "create", Err: fmt.Errorf("%w; re-fetch: %w", conflict, ferr), Transient: true}
		}
		return winner, false, nil
	}
	return record, true, nil
}

// Save creates or fully replaces a record
func (r *GormInventoryRecordRepository) Save(ctx context.Context, record *resolution.InventoryRecord) error {
	row := models.RecordRowFromDomain(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	return storageError("save", err)
}

// SaveWithLock saves with optimistic locking (checks version) and advances the version
func (r *GormInventoryRecordRepository) SaveWithLock(ctx context.Context, record *resolution.InventoryRecord) error {
	if err := r.updateVersioned(r.db.WithContext(ctx), record, "", "save_with_lock"); err != nil {
		return err
	}
	record.Version++
	return nil
}

// updateVersioned writes the mutable columns if the stored version still matches.
// requireStatus additionally pins the stored lifecycle status.
func (r *GormInventoryRecordRepository) updateVersioned(db *gorm.DB, record *resolution.InventoryRecord, requireStatus resolution.LifecycleStatus, op string) error {
	row := models.RecordRowFromDomain(record)
	query := db.Table(row.TableName()).Where("id = ? AND version = ?", record.ID, record.Version)
	if requireStatus != "" {
		query = query.Where("lifecycle_status = ?", string(requireStatus))
	}
	result := query.Updates(row.UpdateColumns(record.Version + 1))
	if result.Error != nil {
		return storageError(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return staleWrite(op)
	}
	return nil
}

// FindByScope lists records of one scope with the given status, ordered by type, name and id
func (r *GormInventoryRecordRepository) FindByScope(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID, status resolution.LifecycleStatus) ([]*resolution.InventoryRecord, error) {
	if status == "" {
		status = resolution.StatusActive
	}
	var out []*resolution.InventoryRecord
	for _, t := range resolution.AllRecordTypes {
		records, err := r.findRecords(r.db.WithContext(ctx).
			Where("ownership_scope = ? AND deal_id = ? AND lifecycle_status = ?", string(scope), dealID, string(status)).
			Order("normalized_name ASC, id ASC"), t)
		if err != nil {
			return nil, storageError("find_by_scope", err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// FindSimilar lists active records whose name similarity to the query meets the threshold
func (r *GormInventoryRecordRepository) FindSimilar(ctx context.Context, q resolution.SimilarQuery) ([]resolution.SimilarMatch, error) {
	types := resolution.AllRecordTypes
	if q.Type != "" {
		types = []resolution.RecordType{q.Type}
	}
	target := resolution.Normalize(q.Name)

	var matches []resolution.SimilarMatch
	for _, t := range types {
		records, err := r.findRecords(r.db.WithContext(ctx).
			Where("ownership_scope = ? AND deal_id = ? AND lifecycle_status = ?", string(q.Scope), q.DealID, string(resolution.StatusActive)), t)
		if err != nil {
			return nil, storageError("find_similar", err)
		}
		for _, rec := range records {
			if score := resolution.NameSimilarity(target, rec.NormalizedName); score >= q.Threshold {
				matches = append(matches, resolution.SimilarMatch{Record: rec, Score: score})
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	return matches, nil
}

// CountByScope counts active records of one scope across all record tables
func (r *GormInventoryRecordRepository) CountByScope(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID) (int64, error) {
	var total int64
	for _, t := range resolution.AllRecordTypes {
		var count int64
		err := r.db.WithContext(ctx).
			Table(models.TableFor(t)).
			Where("ownership_scope = ? AND deal_id = ? AND lifecycle_status = ?", string(scope), dealID, string(resolution.StatusActive)).
			Count(&count).Error
		if err != nil {
			return 0, storageError("count_by_scope", err)
		}
		total += count
	}
	return total, nil
}

// ActiveScopes lists every (ownership scope, deal) partition holding at least one
// active record, ordered by deal then scope
func (r *GormInventoryRecordRepository) ActiveScopes(ctx context.Context) ([]resolution.ScopeKey, error) {
	type scopeRow struct {
		OwnershipScope string
		DealID         uuid.UUID
	}
	seen := map[resolution.ScopeKey]struct{}{}
	for _, t := range resolution.AllRecordTypes {
		var rows []scopeRow
		err := r.db.WithContext(ctx).
			Table(models.TableFor(t)).
			Distinct("ownership_scope", "deal_id").
			Where("lifecycle_status = ?", string(resolution.StatusActive)).
			Scan(&rows).Error
		if err != nil {
			return nil, storageError("active_scopes", err)
		}
		for _, row := range rows {
			seen[resolution.ScopeKey{Scope: resolution.OwnershipScope(row.OwnershipScope), DealID: row.DealID}] = struct{}{}
		}
	}
	keys := make([]resolution.ScopeKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// MergeRecords persists a merge already applied to the domain objects. The loser
// update is conditional on it still being active at its loaded version, so two
// racing merges of the same record cannot both commit.
func (r *GormInventoryRecordRepository) MergeRecords(ctx context.Context, survivor, loser *resolution.InventoryRecord) error {
	if loser.Status != resolution.StatusMergedAway || loser.MergedInto != survivor.ID {
		return shared.NewDomainError("INVALID_STATE", "Loser must be merged into the survivor before persisting")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.updateVersioned(tx, loser, resolution.StatusActive, "merge"); err != nil {
			return err
		}
		return r.updateVersioned(tx, survivor, resolution.StatusActive, "merge")
	})
	if err != nil {
		return storageError("merge", err)
	}
	survivor.Version++
	loser.Version++
	return nil
}

func (r *GormInventoryRecordRepository) findRecords(db *gorm.DB, t resolution.RecordType) ([]*resolution.InventoryRecord, error) {
	switch t {
	case resolution.RecordTypeInfrastructure:
		return findRows[models.InfrastructureItemModel](db)
	case resolution.RecordTypeOrganizationalRole:
		return findRows[models.OrganizationalRoleModel](db)
	default:
		return findRows[models.ApplicationModel](db)
	}
}

func findRows[M any, PM interface {
	*M
	models.RecordRow
}](db *gorm.DB) ([]*resolution.InventoryRecord, error) {
	var rows []M
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*resolution.InventoryRecord, 0, len(rows))
	for i := range rows {
		out = append(out, PM(&rows[i]).ToDomain())
	}
	return out, nil
}
