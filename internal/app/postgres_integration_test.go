//go:build integration

package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/itdd/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// newPostgresApp starts a throwaway postgres, applies the embedded migrations and
// wires the application on it in inline mode
func newPostgresApp(t *testing.T) *App {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("itdd_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("itdd-test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            "postgres",
		Password:        "itdd-test",
		DBName:          "itdd_test",
		SSLMode:         "disable",
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 5,
	}

	a, err := New(ctx, cfg, zap.NewNop(), ModeInline)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	sqlDB, err := a.DB.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	st, err := m.Status()
	require.NoError(t, err)
	require.Zero(t, st.Pending)
	require.False(t, st.Dirty)

	require.NoError(t, a.Start(ctx))
	return a
}

func TestPostgres_ConcurrentFindOrCreate(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()
	deal := uuid.New()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, isNew, err := a.Records.FindOrCreate(ctx, resolution.RecordTypeApplication, "Workday HCM", resolution.ScopeTarget, deal, resolution.Attributes{})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[rec.ID]++
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1, "every caller resolves to one record")
	assert.Equal(t, 1, created, "exactly one caller inserts")
}

func TestPostgres_IngestReconcileReviewExport(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()
	deal := uuid.New()
	target := resolution.ScopeKey{Scope: resolution.ScopeTarget, DealID: deal}
	acquirer := resolution.ScopeKey{Scope: resolution.ScopeAcquirer, DealID: deal}

	result, err := a.Ingestion.IngestBatch(ctx, appresolution.Batch{
		Structured: []appresolution.StructuredEvent{
			{Type: "application", Name: "SAP S/4HANA", OwnershipScope: "target", DealScope: deal.String(), SourceReference: "erp.xlsx#A2", Attributes: map[string]any{"vendor": "SAP"}},
			{Type: "application", Name: "SAP S4", OwnershipScope: "target", DealScope: deal.String(), SourceReference: "memo.docx#p2", Attributes: map[string]any{"vendor": "SAP"}},
			{Type: "application", Name: "SAP S/4HANA", OwnershipScope: "acquirer", DealScope: deal.String(), SourceReference: "acq.xlsx#A9", Attributes: map[string]any{"vendor": "SAP"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)

	// post-batch reconciliation folds the target pair; the acquirer copy stays apart
	count, err := a.Query.CountByScope(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = a.Query.CountByScope(ctx, acquirer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	merged, err := a.Query.ListByScope(ctx, target, resolution.StatusMergedAway)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	chain, err := a.Query.GetEvidenceChain(ctx, merged[0].ID)
	require.NoError(t, err)
	assert.Len(t, chain.Observations, 1)
	assert.NotEmpty(t, chain.MergedInto)

	report, err := a.Reconciliation.Reconcile(ctx, target)
	require.NoError(t, err)
	assert.Empty(t, report.Merges, "reconciliation is a fixed point")

	pending, err := a.Review.ListPending(ctx, target, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Zero(t, pending.Total)

	active, err := a.Query.ListByScope(ctx, target, resolution.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	removed, err := a.Review.RemoveRecord(ctx, active[0].ID, "ana", "decommissioned before close")
	require.NoError(t, err)
	assert.Equal(t, resolution.StatusRemoved, removed.Status)

	rendered, err := a.Export.Render(ctx, target, appresolution.ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, string(rendered.Data), `"record_count": 0`)
}
