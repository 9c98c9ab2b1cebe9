package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/infrastructure/persistence"
	"github.com/itdd/backend/internal/infrastructure/storage"
	"github.com/itdd/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger(ctx context.Context, key resolution.ScopeKey) error {
	return m.Called(ctx, key).Error(0)
}

type testEnv struct {
	engine  *gin.Engine
	records *persistence.GormInventoryRecordRepository
	reviews *persistence.GormMergeReviewRepository
	trigger *mockTrigger
	store   *storage.MemoryExportStore
}

type envOption func(*envConfig)

type envConfig struct {
	noStore bool
}

func withoutExportStore() envOption {
	return func(c *envConfig) { c.noStore = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	env := &testEnv{
		records: persistence.NewGormInventoryRecordRepository(db),
		reviews: persistence.NewGormMergeReviewRepository(db),
		trigger: &mockTrigger{},
		store:   storage.NewMemoryExportStore("http://exports.test"),
	}

	ingestion := appresolution.NewIngestionService(env.records, appresolution.IngestionConfig{}, nil)
	query := appresolution.NewQueryService(env.records, env.reviews)
	reviewSvc := appresolution.NewReviewService(env.records, env.reviews, appresolution.RetryPolicy{}, nil)

	var store appresolution.ExportStore = env.store
	if cfg.noStore {
		store = nil
	}
	exports := appresolution.NewExportService(query, store, nil)

	ingest := NewIngestHandler(ingestion)
	records := NewRecordHandler(query, reviewSvc)
	reviews := NewReviewHandler(reviewSvc)
	reconcile := NewReconcileHandler(env.trigger)
	export := NewExportHandler(exports, 0)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(RequestIDKey, "req-test")
		c.Next()
	})
	api := engine.Group("/api/v1")
	api.POST("/deals/:deal_id/ingest", ingest.Ingest)
	scope := api.Group("/deals/:deal_id/scopes/:scope")
	scope.GET("/records", records.ListByScope)
	scope.GET("/similar", records.FindSimilar)
	scope.GET("/reviews", reviews.ListPending)
	scope.POST("/reconcile", reconcile.Reconcile)
	scope.GET("/export", export.Export)
	api.GET("/records/:id", records.Get)
	api.GET("/records/:id/evidence", records.GetEvidence)
	api.POST("/records/:id/confirm", records.Confirm)
	api.POST("/records/:id/remove", records.Remove)
	api.GET("/reviews/:id", reviews.Get)
	api.POST("/reviews/:id/resolve", reviews.Resolve)
	env.engine = engine
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// ingest posts one structured event per name and returns the record ids in order
func (e *testEnv) ingest(t *testing.T, deal uuid.UUID, scope string, names ...string) []string {
	t.Helper()
	batch := appresolution.Batch{}
	for i, name := range names {
		batch.Structured = append(batch.Structured, appresolution.StructuredEvent{
			Type:            "application",
			Name:            name,
			OwnershipScope:  scope,
			Attributes:      map[string]any{"vendor": name + " Inc"},
			SourceReference: fmt.Sprintf("inventory.xlsx#row%d", i+1),
		})
	}
	w := e.do(t, http.MethodPost, "/api/v1/deals/"+deal.String()+"/ingest", batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result appresolution.BatchResult
	decodeData(t, w, &result)
	ids := make([]string, len(result.Items))
	for i, item := range result.Items {
		require.NotEmpty(t, item.RecordID, "item %d: %s", i, item.Error)
		ids[i] = item.RecordID
	}
	return ids
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorInfo {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	return *resp.Error
}
