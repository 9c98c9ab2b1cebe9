package resolution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIngestionService_StructuredAndNarrativeConverge(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	pub := &MockEventPublisher{}
	svc.SetEventPublisher(pub)
	deal := uuid.New()

	result, err := svc.IngestBatch(ctx, Batch{
		Structured: []StructuredEvent{
			structured(deal, "target", "Salesforce", "inventory.xlsx#Applications!A2", map[string]any{
				"vendor":   "Salesforce",
				"cost":     "120000",
				"currency": "USD",
			}),
		},
		Narrative: []NarrativeEvent{
			narrative(deal, "target", "Salesforce CRM", "cim.pdf#p12", 0.8, map[string]any{
				"vendor":     "Salesforce Inc",
				"user_count": 450,
			}),
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	assert.Equal(t, OutcomeCreated, result.Items[0].Outcome)
	assert.Equal(t, OutcomeAppended, result.Items[1].Outcome)
	assert.Equal(t, result.Items[0].RecordID, result.Items[1].RecordID)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []resolution.ScopeKey{targetKey(deal)}, result.TouchedScopes)

	count, err := s.records.CountByScope(ctx, resolution.ScopeTarget, deal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rec, err := s.records.FindByID(ctx, result.Items[0].RecordID)
	require.NoError(t, err)
	require.Len(t, rec.Observations, 2)
	assert.Equal(t, "Salesforce", rec.Attributes.Vendor, "structured evidence outranks narrative")
	require.NotNil(t, rec.Application.UserCount)
	assert.Equal(t, 450, *rec.Application.UserCount, "narrative fills attributes structured did not provide")
	assert.Equal(t, resolution.CostKnown, rec.Cost.Status)

	assert.Equal(t, []string{
		resolution.EventTypeRecordCreated,
		resolution.EventTypeObservationAppended,
		resolution.EventTypeObservationAppended,
	}, pub.Types())
}

func TestIngestionService_ScopesStaySeparate(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	result, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", "Microsoft 365", "target.xlsx#A2", nil),
		structured(deal, "acquirer", "Microsoft 365", "acquirer.xlsx#A2", nil),
	}})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, OutcomeCreated, result.Items[0].Outcome)
	assert.Equal(t, OutcomeCreated, result.Items[1].Outcome)
	assert.NotEqual(t, result.Items[0].RecordID, result.Items[1].RecordID)
	assert.Len(t, result.TouchedScopes, 2)

	report, err := s.reconciliation().Reconcile(ctx, targetKey(deal))
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
}

func TestIngestionService_ReuploadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	batch := Batch{Structured: []StructuredEvent{
		structured(deal, "target", "Workday", "hr.xlsx#A2", map[string]any{"vendor": "Workday"}),
		structured(deal, "target", "Jira", "apps.xlsx#A3", nil),
	}}

	first, err := svc.IngestBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := svc.IngestBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Duplicates)
	assert.Empty(t, second.TouchedScopes, "duplicates do not touch a scope")

	rec, err := s.records.FindByID(ctx, first.Items[0].RecordID)
	require.NoError(t, err)
	assert.Len(t, rec.Observations, 1)
}

func TestIngestionService_ValidationFailures(t *testing.T) {
	deal := uuid.New()

	tests := []struct {
		name  string
		batch Batch
		field string
	}{
		{
			name:  "missing ownership scope",
			batch: Batch{Structured: []StructuredEvent{structured(deal, "", "Slack", "a#1", nil)}},
			field: "ownership_scope",
		},
		{
			name:  "unknown ownership scope",
			batch: Batch{Structured: []StructuredEvent{structured(deal, "buyer", "Slack", "a#1", nil)}},
			field: "ownership_scope",
		},
		{
			name: "deal scope not a uuid",
			batch: Batch{Structured: []StructuredEvent{{
				Type: "application", Name: "Slack", OwnershipScope: "target", DealScope: "deal-7", SourceReference: "a#1",
			}}},
			field: "deal_scope",
		},
		{
			name: "nil deal scope",
			batch: Batch{Structured: []StructuredEvent{{
				Type: "application", Name: "Slack", OwnershipScope: "target", DealScope: uuid.Nil.String(), SourceReference: "a#1",
			}}},
			field: "deal_scope",
		},
		{
			name:  "blank name",
			batch: Batch{Structured: []StructuredEvent{structured(deal, "target", "   ", "a#1", nil)}},
			field: "name",
		},
		{
			name: "unknown type",
			batch: Batch{Structured: []StructuredEvent{{
				Type: "printer", Name: "Slack", OwnershipScope: "target", DealScope: deal.String(), SourceReference: "a#1",
			}}},
			field: "type",
		},
		{
			name:  "narrative confidence of one",
			batch: Batch{Narrative: []NarrativeEvent{narrative(deal, "target", "Slack", "memo#1", 1.0, nil)}},
			field: "confidence",
		},
		{
			name:  "narrative confidence of zero",
			batch: Batch{Narrative: []NarrativeEvent{narrative(deal, "target", "Slack", "memo#1", 0, nil)}},
			field: "confidence",
		},
		{
			name:  "name longer than the identity column",
			batch: Batch{Structured: []StructuredEvent{structured(deal, "target", strings.Repeat("x", 513), "a#1", nil)}},
			field: "name",
		},
		{
			name:  "narrative item text longer than the identity column",
			batch: Batch{Narrative: []NarrativeEvent{narrative(deal, "target", strings.Repeat("é", 513), "memo#1", 0.5, nil)}},
			field: "item_text",
		},
		{
			name:  "missing source reference",
			batch: Batch{Narrative: []NarrativeEvent{narrative(deal, "target", "Slack", "", 0.5, nil)}},
			field: "source_reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockInventoryRecordRepository)
			svc := NewIngestionService(repo, IngestionConfig{}, nil)

			result, err := svc.IngestBatch(context.Background(), tt.batch)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			item := result.Items[0]
			assert.Equal(t, OutcomeInvalid, item.Outcome)
			assert.Equal(t, "VALIDATION_FAILED", item.ErrorCode)
			assert.Equal(t, tt.field, item.Field)
			assert.Equal(t, 1, result.Failed)
			repo.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIngestionService_NameAtColumnLimit(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	result, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", strings.Repeat("n", 512), "a#1", nil),
	}})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, OutcomeCreated, result.Items[0].Outcome, result.Items[0].Error)
}

func TestIngestionService_InvalidItemDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	result, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", "Okta", "a#1", nil),
		structured(deal, "nowhere", "Okta", "a#2", nil),
		structured(deal, "target", "Zoom", "a#3", nil),
	}})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, OutcomeCreated, result.Items[0].Outcome)
	assert.Equal(t, OutcomeInvalid, result.Items[1].Outcome)
	assert.Equal(t, OutcomeCreated, result.Items[2].Outcome)
	assert.Equal(t, []int{0, 1, 2}, []int{result.Items[0].Index, result.Items[1].Index, result.Items[2].Index})
}

func TestIngestionService_NarrativeTypeFallback(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	item, _ := svc.ingestNarrative(ctx, narrative(deal, "target", "Dell PowerEdge R740", "memo#4", 0.6, map[string]any{
		"type":     "server",
		"quantity": "12",
	}))
	require.False(t, item.Failed(), item.Error)
	assert.Equal(t, "INF-", item.RecordID[:4])

	item, _ = svc.ingestNarrative(ctx, narrative(deal, "target", "Notion", "memo#5", 0.6, nil))
	require.False(t, item.Failed(), item.Error)
	assert.Equal(t, "APP-", item.RecordID[:4])
}

func TestIngestionService_RoutesEvidenceToSurvivor(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	_, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", "SAP S/4HANA", "erp.xlsx#A2", map[string]any{"vendor": "SAP"}),
		structured(deal, "target", "SAP S/4HANA", "erp.xlsx#B2", map[string]any{"vendor": "SAP"}),
		structured(deal, "target", "SAP S4", "memo.xlsx#A9", map[string]any{"vendor": "SAP"}),
	}})
	require.NoError(t, err)

	report, err := s.reconciliation().Reconcile(ctx, targetKey(deal))
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	loserID := report.Merges[0].LoserID
	survivorID := report.Merges[0].SurvivorID

	item, _ := svc.ingestStructured(ctx, structured(deal, "target", "SAP S4", "late.xlsx#A1", map[string]any{"vendor": "SAP"}))
	require.False(t, item.Failed(), item.Error)
	assert.Equal(t, survivorID, item.RecordID)
	assert.Equal(t, OutcomeAppended, item.Outcome)

	loser, err := s.records.FindByID(ctx, loserID)
	require.NoError(t, err)
	assert.Equal(t, resolution.StatusMergedAway, loser.Status)
	assert.False(t, loser.HasSource("late.xlsx#A1"))
}

func TestIngestionService_TriggersReconciliation(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{ReconcileAfterBatch: true})
	svc.SetTrigger(NewDirectTrigger(s.reconciliation(), time.Minute, nil))
	deal := uuid.New()

	result, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", "SAP S/4HANA", "erp.xlsx#A2", map[string]any{"vendor": "SAP"}),
		structured(deal, "target", "SAP S4", "memo.xlsx#A9", map[string]any{"vendor": "SAP"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{targetKey(deal).String()}, result.Reconcile)

	count, err := s.records.CountByScope(ctx, resolution.ScopeTarget, deal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestionService_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	deal := uuid.New()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	transient := &shared.StorageError{Op: "save_record", Err: errors.New("connection reset"), Transient: true}

	t.Run("succeeds after a stale write", func(t *testing.T) {
		repo := new(MockInventoryRecordRepository)
		metrics := newRecordingMetrics()
		svc := NewIngestionService(repo, IngestionConfig{}, nil).WithClock(func() time.Time { return now })
		svc.timer = instantTimer{}
		svc.SetMetrics(metrics)

		loaded := func() *resolution.InventoryRecord {
			rec, err := resolution.NewInventoryRecord(resolution.RecordTypeApplication, "Slack", resolution.ScopeTarget, deal, resolution.Attributes{}, now)
			require.NoError(t, err)
			rec.ClearDomainEvents()
			return rec
		}

		// each attempt reloads the row
		repo.On("FindOrCreate", mock.Anything, resolution.RecordTypeApplication, "Slack", resolution.ScopeTarget, deal, mock.Anything).
			Return(loaded(), false, nil).Once()
		repo.On("FindOrCreate", mock.Anything, resolution.RecordTypeApplication, "Slack", resolution.ScopeTarget, deal, mock.Anything).
			Return(loaded(), false, nil).Once()
		repo.On("SaveWithLock", mock.Anything, mock.Anything).Return(&shared.StorageError{Op: "save_record", Err: shared.ErrOptimisticLock, Transient: true}).Once()
		repo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil).Once()

		item, _ := svc.ingestStructured(ctx, structured(deal, "target", "Slack", "apps#7", nil))
		assert.Equal(t, OutcomeAppended, item.Outcome)
		assert.Equal(t, 2, item.Attempts)
		assert.Equal(t, 1, metrics.retries["ingest"])
		repo.AssertNumberOfCalls(t, "SaveWithLock", 2)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		repo := new(MockInventoryRecordRepository)
		svc := NewIngestionService(repo, IngestionConfig{Retry: RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}, nil)
		svc.timer = instantTimer{}

		repo.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, false, transient)

		item, _ := svc.ingestStructured(ctx, structured(deal, "target", "Slack", "apps#7", nil))
		assert.Equal(t, OutcomeUnresolved, item.Outcome)
		assert.Equal(t, shared.ErrUnresolved.Code, item.ErrorCode)
		assert.Equal(t, 3, item.Attempts)
		repo.AssertNumberOfCalls(t, "FindOrCreate", 3)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		repo := new(MockInventoryRecordRepository)
		svc := NewIngestionService(repo, IngestionConfig{}, nil)
		svc.timer = instantTimer{}

		repo.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, false, &shared.StorageError{Op: "find_or_create", Err: errors.New("relation does not exist")})

		item, _ := svc.ingestStructured(ctx, structured(deal, "target", "Slack", "apps#7", nil))
		assert.Equal(t, OutcomeUnresolved, item.Outcome)
		assert.Equal(t, 1, item.Attempts)
	})
}

func TestIngestionService_CancelledContext(t *testing.T) {
	s := newStores(t)
	svc := s.ingestion(IngestionConfig{})
	deal := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.IngestBatch(ctx, Batch{Structured: []StructuredEvent{
		structured(deal, "target", "Slack", "apps#7", nil),
	}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Items)
}
