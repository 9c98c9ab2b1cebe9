package persistence

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repoClock = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newRecordRepo(t *testing.T) *GormInventoryRecordRepository {
	t.Helper()
	return NewGormInventoryRecordRepository(newSQLiteDB(t)).WithClock(func() time.Time { return repoClock })
}

func observe(t *testing.T, source string, fields map[string]any, at time.Time) resolution.Observation {
	t.Helper()
	o, err := resolution.NewStructuredObservation(source, fields, at)
	require.NoError(t, err)
	return o
}

func createWithEvidence(t *testing.T, repo *GormInventoryRecordRepository, name string, scope resolution.OwnershipScope, deal uuid.UUID, sources ...string) *resolution.InventoryRecord {
	t.Helper()
	ctx := context.Background()
	rec, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, name, scope, deal, resolution.Attributes{})
	require.NoError(t, err)
	for i, src := range sources {
		_, err := rec.AddObservation(observe(t, src, map[string]any{"name": name, "vendor": "Acme"}, repoClock.Add(time.Duration(i)*time.Minute)), repoClock)
		require.NoError(t, err)
	}
	if len(sources) > 0 {
		require.NoError(t, repo.SaveWithLock(ctx, rec))
	}
	return rec
}

func TestGormInventoryRecordRepository_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	deal := uuid.New()

	t.Run("creates on first call and finds on second", func(t *testing.T) {
		repo := newRecordRepo(t)

		first, created, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Salesforce", resolution.ScopeTarget, deal, resolution.Attributes{Vendor: "Salesforce"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 1, first.Version)

		second, created, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "  SALESFORCE ", resolution.ScopeTarget, deal, resolution.Attributes{})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Salesforce", second.Attributes.Vendor)
		assert.Equal(t, repoClock, second.CreatedAt)
	})

	t.Run("keeps scopes apart", func(t *testing.T) {
		repo := newRecordRepo(t)

		target, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Workday", resolution.ScopeTarget, deal, resolution.Attributes{})
		require.NoError(t, err)
		acquirer, created, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Workday", resolution.ScopeAcquirer, deal, resolution.Attributes{})
		require.NoError(t, err)

		assert.True(t, created)
		assert.NotEqual(t, target.ID, acquirer.ID)
	})

	t.Run("concurrent creators converge on one row", func(t *testing.T) {
		repo := newRecordRepo(t)

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[string]struct{}{}
			creates int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, created, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "ServiceNow", resolution.ScopeTarget, deal, resolution.Attributes{})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[rec.ID] = struct{}{}
				if created {
					creates++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, creates)
		count, err := repo.CountByScope(ctx, resolution.ScopeTarget, deal)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormInventoryRecordRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)
	deal := uuid.New()

	rec, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeInfrastructure, "Dell PowerEdge R740", resolution.ScopeAcquirer, deal, resolution.Attributes{})
	require.NoError(t, err)

	_, err = rec.AddObservation(observe(t, "inventory.xlsx#row-12", map[string]any{
		"name":        "Dell PowerEdge R740",
		"vendor":      "Dell",
		"environment": "production",
		"location":    "Frankfurt DC2",
		"quantity":    "12",
		"cost":        "48,000",
		"currency":    "EUR",
	}, repoClock), repoClock)
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithLock(ctx, rec))

	loaded, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, resolution.RecordTypeInfrastructure, loaded.Type)
	assert.Equal(t, 2, loaded.Version)
	assert.Equal(t, "Dell", loaded.Attributes.Vendor)
	require.NotNil(t, loaded.Infrastructure)
	assert.Equal(t, "production", loaded.Infrastructure.Environment)
	assert.Equal(t, "Frankfurt DC2", loaded.Infrastructure.Location)
	require.NotNil(t, loaded.Infrastructure.Quantity)
	assert.Equal(t, 12, *loaded.Infrastructure.Quantity)
	require.True(t, loaded.Cost.HasValue())
	assert.True(t, decimal.NewFromInt(48000).Equal(loaded.Cost.Value.Amount()))
	assert.Equal(t, resolution.CostKnown, loaded.Cost.Status)
	require.Len(t, loaded.Observations, 1)
	assert.Equal(t, "inventory.xlsx#row-12", loaded.Observations[0].SourceReference)
	assert.True(t, loaded.Observations[0].Timestamp.Equal(repoClock))
}

func TestGormInventoryRecordRepository_SaveWithLock(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)
	deal := uuid.New()

	rec := createWithEvidence(t, repo, "Jira", resolution.ScopeTarget, deal)
	stale, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)

	_, err = rec.AddObservation(observe(t, "apps.csv#1", map[string]any{"name": "Jira"}, repoClock), repoClock)
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithLock(ctx, rec))
	assert.Equal(t, 2, rec.Version)

	_, err = stale.AddObservation(observe(t, "apps.csv#2", map[string]any{"name": "Jira"}, repoClock), repoClock)
	require.NoError(t, err)
	err = repo.SaveWithLock(ctx, stale)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, 1, stale.Version)
}

func TestGormInventoryRecordRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)

	rec, err := resolution.NewInventoryRecord(resolution.RecordTypeOrganizationalRole, "Head of IT", resolution.ScopeTarget, uuid.New(), resolution.Attributes{}, repoClock)
	require.NoError(t, err)
	_, err = rec.AddObservation(observe(t, "org.csv#3", map[string]any{"name": "Head of IT", "department": "Technology", "headcount": 4}, repoClock), repoClock)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, rec))
	require.NoError(t, repo.Save(ctx, rec))

	loaded, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Role)
	assert.Equal(t, "Technology", loaded.Role.Department)
	require.NotNil(t, loaded.Role.Headcount)
	assert.Equal(t, 4, *loaded.Role.Headcount)
}

func TestGormInventoryRecordRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)

	_, err := repo.FindByID(ctx, "APP-0000000000000000")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormInventoryRecordRepository_FindByScope(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)
	deal := uuid.New()

	createWithEvidence(t, repo, "Zendesk", resolution.ScopeTarget, deal)
	createWithEvidence(t, repo, "Asana", resolution.ScopeTarget, deal)
	createWithEvidence(t, repo, "Okta", resolution.ScopeAcquirer, deal)
	createWithEvidence(t, repo, "Slack", resolution.ScopeTarget, uuid.New())
	_, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeInfrastructure, "Cisco ASA", resolution.ScopeTarget, deal, resolution.Attributes{})
	require.NoError(t, err)

	records, err := repo.FindByScope(ctx, resolution.ScopeTarget, deal, resolution.StatusActive)
	require.NoError(t, err)

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.NormalizedName
	}
	assert.Equal(t, []string{"asana", "zendesk", "cisco asa"}, names)

	removed, err := repo.FindByScope(ctx, resolution.ScopeTarget, deal, resolution.StatusRemoved)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestGormInventoryRecordRepository_ActiveScopes(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)
	dealA, dealB := uuid.New(), uuid.New()

	createWithEvidence(t, repo, "Zendesk", resolution.ScopeTarget, dealA)
	createWithEvidence(t, repo, "Asana", resolution.ScopeTarget, dealA)
	createWithEvidence(t, repo, "Okta", resolution.ScopeAcquirer, dealA)
	_, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeInfrastructure, "Cisco ASA", resolution.ScopeTarget, dealB, resolution.Attributes{})
	require.NoError(t, err)
	gone := createWithEvidence(t, repo, "Slack", resolution.ScopeAcquirer, dealB)
	require.NoError(t, gone.MarkRemoved("dana", "duplicate", repoClock))
	require.NoError(t, repo.SaveWithLock(ctx, gone))

	keys, err := repo.ActiveScopes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []resolution.ScopeKey{
		{Scope: resolution.ScopeTarget, DealID: dealA},
		{Scope: resolution.ScopeAcquirer, DealID: dealA},
		{Scope: resolution.ScopeTarget, DealID: dealB},
	}, keys)
}

func TestGormInventoryRecordRepository_FindSimilar(t *testing.T) {
	ctx := context.Background()
	repo := newRecordRepo(t)
	deal := uuid.New()

	createWithEvidence(t, repo, "SAP S/4HANA", resolution.ScopeTarget, deal)
	createWithEvidence(t, repo, "SAP S4", resolution.ScopeTarget, deal)
	createWithEvidence(t, repo, "Salesforce", resolution.ScopeTarget, deal)
	createWithEvidence(t, repo, "SAP S4", resolution.ScopeAcquirer, deal)

	matches, err := repo.FindSimilar(ctx, resolution.SimilarQuery{
		Name:      "SAP S/4HANA",
		Type:      resolution.RecordTypeApplication,
		Scope:     resolution.ScopeTarget,
		DealID:    deal,
		Threshold: 0.5,
	})
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "sap s4hana", matches[0].Record.NormalizedName)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "sap s4", matches[1].Record.NormalizedName)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestGormInventoryRecordRepository_MergeRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("persists survivor and tombstone", func(t *testing.T) {
		repo := newRecordRepo(t)
		deal := uuid.New()
		a := createWithEvidence(t, repo, "SAP S/4HANA", resolution.ScopeTarget, deal, "a1", "a2")
		b := createWithEvidence(t, repo, "SAP S4", resolution.ScopeTarget, deal, "b1")

		survivor, loser := resolution.SurvivorOf(a, b)
		require.NoError(t, survivor.Merge(loser, resolution.MergeByReconciliation, repoClock))
		require.NoError(t, repo.MergeRecords(ctx, survivor, loser))

		storedSurvivor, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, storedSurvivor.Observations, 3)
		assert.Equal(t, 3, storedSurvivor.Version)

		storedLoser, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, resolution.StatusMergedAway, storedLoser.Status)
		assert.Equal(t, a.ID, storedLoser.MergedInto)
		assert.Len(t, storedLoser.Observations, 1)

		count, err := repo.CountByScope(ctx, resolution.ScopeTarget, deal)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rolls back when the loser changed underneath", func(t *testing.T) {
		repo := newRecordRepo(t)
		deal := uuid.New()
		a := createWithEvidence(t, repo, "Confluence", resolution.ScopeTarget, deal, "a1", "a2")
		b := createWithEvidence(t, repo, "Confluence Wiki", resolution.ScopeTarget, deal, "b1")

		concurrent, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		_, err = concurrent.AddObservation(observe(t, "b2", map[string]any{"name": "Confluence Wiki"}, repoClock), repoClock)
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, concurrent))

		require.NoError(t, a.Merge(b, resolution.MergeByReconciliation, repoClock))
		err = repo.MergeRecords(ctx, a, b)
		assert.ErrorIs(t, err, shared.ErrOptimisticLock)

		storedSurvivor, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, storedSurvivor.Observations, 2)
		assert.Equal(t, 2, storedSurvivor.Version)
	})

	t.Run("rejects a loser not yet merged in memory", func(t *testing.T) {
		repo := newRecordRepo(t)
		deal := uuid.New()
		a := createWithEvidence(t, repo, "Tableau", resolution.ScopeTarget, deal, "a1")
		b := createWithEvidence(t, repo, "Tableau Server", resolution.ScopeTarget, deal, "b1")

		err := repo.MergeRecords(ctx, a, b)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestGormInventoryRecordRepository_FindOrCreate_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	deal := uuid.New()
	id := resolution.GenerateID(resolution.RecordTypeApplication, "Salesforce", resolution.ScopeTarget, deal)
	selectByID := regexp.QuoteMeta(`SELECT * FROM "applications" WHERE id = $1 ORDER BY "applications"."id" LIMIT $2`)

	t.Run("re-fetches the winning row", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormInventoryRecordRepository(db.DB)

		mock.ExpectQuery(selectByID).WithArgs(id, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`INSERT INTO "applications"`).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
		mock.ExpectQuery(selectByID).WithArgs(id, 1).WillReturnRows(
			sqlmock.NewRows([]string{"id", "record_type", "normalized_name", "ownership_scope", "deal_id", "source_name", "display_name", "cost_status", "observations", "lifecycle_status", "version", "created_at", "updated_at"}).
				AddRow(id, "application", "salesforce", "target", deal.String(), "Salesforce", "Salesforce", "unknown", "[]", "active", 3, repoClock, repoClock))

		rec, created, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Salesforce", resolution.ScopeTarget, deal, resolution.Attributes{})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, 3, rec.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a transient failure when the re-fetch fails", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormInventoryRecordRepository(db.DB)

		mock.ExpectQuery(selectByID).WithArgs(id, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`INSERT INTO "applications"`).WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectQuery(selectByID).WithArgs(id, 1).WillReturnError(errors.New("connection reset by peer"))

		_, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Salesforce", resolution.ScopeTarget, deal, resolution.Attributes{})
		require.Error(t, err)
		assert.True(t, shared.IsTransient(err))
		var conflict *shared.ConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.Equal(t, id, conflict.Key)
	})

	t.Run("surfaces permanent insert failures", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormInventoryRecordRepository(db.DB)

		mock.ExpectQuery(selectByID).WithArgs(id, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`INSERT INTO "applications"`).WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

		_, _, err := repo.FindOrCreate(ctx, resolution.RecordTypeApplication, "Salesforce", resolution.ScopeTarget, deal, resolution.Attributes{})
		var se *shared.StorageError
		require.ErrorAs(t, err, &se)
		assert.False(t, se.Transient)
	})
}
