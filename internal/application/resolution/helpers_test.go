package resolution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/cache"
	"github.com/itdd/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testClock advances one second per reading so observations are strictly ordered
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type stores struct {
	records *persistence.GormInventoryRecordRepository
	reviews *persistence.GormMergeReviewRepository
	locker  *cache.InMemoryLocker
	clock   *testClock
}

func newStores(t *testing.T) *stores {
	t.Helper()
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

	clock := newTestClock()
	return &stores{
		records: persistence.NewGormInventoryRecordRepository(db).WithClock(clock.Now),
		reviews: persistence.NewGormMergeReviewRepository(db),
		locker:  cache.NewInMemoryLocker(),
		clock:   clock,
	}
}

func (s *stores) ingestion(cfg IngestionConfig) *IngestionService {
	svc := NewIngestionService(s.records, cfg, nil).WithClock(s.clock.Now)
	svc.timer = instantTimer{}
	return svc
}

func (s *stores) reconciliation() *ReconciliationService {
	return NewReconciliationService(s.records, s.reviews, s.locker, ReconciliationConfig{}, nil).WithClock(s.clock.Now)
}

func (s *stores) review() *ReviewService {
	return NewReviewService(s.records, s.reviews, RetryPolicy{}, nil).WithClock(s.clock.Now)
}

// instantTimer fires as soon as it is started
type instantTimer struct{}

var fired = func() chan time.Time {
	c := make(chan time.Time)
	close(c)
	return c
}()

func (instantTimer) Start(time.Duration) {}
func (instantTimer) Stop() {}
func (instantTimer) C() <-chan time.Time { return fired }

func structured(deal uuid.UUID, scope, name, source string, attrs map[string]any) StructuredEvent {
	return StructuredEvent{
		Type:            "application",
		Name:            name,
		OwnershipScope:  scope,
		DealScope:       deal.String(),
		Attributes:      attrs,
		SourceReference: source,
	}
}

func narrative(deal uuid.UUID, scope, text, source string, confidence float64, fields map[string]any) NarrativeEvent {
	return NarrativeEvent{
		ItemText:        text,
		OwnershipScope:  scope,
		DealScope:       deal.String(),
		ExtractedFields: fields,
		Confidence:      confidence,
		SourceReference: source,
	}
}

func targetKey(deal uuid.UUID) resolution.ScopeKey {
	return resolution.ScopeKey{Scope: resolution.ScopeTarget, DealID: deal}
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType()
	}
	return out
}

// recordingMetrics counts calls to the metrics port
type recordingMetrics struct {
	mu       sync.Mutex
	items    map[ItemOutcome]int
	retries  map[string]int
	reports  []*ReconciliationReport
	resolved []resolution.ReviewDecision
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{items: map[ItemOutcome]int{}, retries: map[string]int{}}
}

func (m *recordingMetrics) IngestedItem(_ resolution.ExtractionKind, outcome ItemOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[outcome]++
}

func (m *recordingMetrics) RetriedOperation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[op]++
}

func (m *recordingMetrics) ReconciliationFinished(r *ReconciliationReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *recordingMetrics) ReviewResolved(d resolution.ReviewDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, d)
}

// MockInventoryRecordRepository is a mock implementation of InventoryRecordRepository
type MockInventoryRecordRepository struct {
	mock.Mock
}

func (m *MockInventoryRecordRepository) FindByID(ctx context.Context, id string) (*resolution.InventoryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolution.InventoryRecord), args.Error(1)
}

func (m *MockInventoryRecordRepository) FindOrCreate(ctx context.Context, recordType resolution.RecordType, name string, scope resolution.OwnershipScope, dealID uuid.UUID, seed resolution.Attributes) (*resolution.InventoryRecord, bool, error) {
	args := m.Called(ctx, recordType, name, scope, dealID, seed)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*resolution.InventoryRecord), args.Bool(1), args.Error(2)
}

func (m *MockInventoryRecordRepository) Save(ctx context.Context, record *resolution.InventoryRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockInventoryRecordRepository) SaveWithLock(ctx context.Context, record *resolution.InventoryRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockInventoryRecordRepository) FindByScope(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID, status resolution.LifecycleStatus) ([]*resolution.InventoryRecord, error) {
	args := m.Called(ctx, scope, dealID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*resolution.InventoryRecord), args.Error(1)
}

func (m *MockInventoryRecordRepository) FindSimilar(ctx context.Context, q resolution.SimilarQuery) ([]resolution.SimilarMatch, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resolution.SimilarMatch), args.Error(1)
}

func (m *MockInventoryRecordRepository) CountByScope(ctx context.Context, scope resolution.OwnershipScope, dealID uuid.UUID) (int64, error) {
	args := m.Called(ctx, scope, dealID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInventoryRecordRepository) MergeRecords(ctx context.Context, survivor, loser *resolution.InventoryRecord) error {
	return m.Called(ctx, survivor, loser).Error(0)
}
