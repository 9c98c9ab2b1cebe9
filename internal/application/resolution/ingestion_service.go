package resolution

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// maxMergeRedirects bounds how many merged_away hops are followed to reach a survivor
const maxMergeRedirects = 8

// IngestionConfig tunes the orchestrator
type IngestionConfig struct {
	Retry               RetryPolicy
	ReconcileAfterBatch bool
}

// IngestionService turns extraction events into repository calls
type IngestionService struct {
	records   resolution.InventoryRecordRepository
	validate  *validator.Validate
	cfg       IngestionConfig
	publisher shared.EventPublisher
	trigger   ReconciliationTrigger
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
	timer     backoff.Timer
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(records resolution.InventoryRecordRepository, cfg IngestionConfig, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &IngestionService{
		records:   records,
		validate:  newEventValidator(),
		cfg:       cfg,
		publisher: shared.NoopPublisher{},
		metrics:   NoopMetrics{},
		logger:    logger,
		now:       time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *IngestionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetTrigger sets where post-batch reconciliation requests go
func (s *IngestionService) SetTrigger(trigger ReconciliationTrigger) {
	s.trigger = trigger
}

// SetMetrics sets the metrics sink
func (s *IngestionService) SetMetrics(m Metrics) {
	s.metrics = m
}

// WithClock overrides the clock used to timestamp observations
func (s *IngestionService) WithClock(now func() time.Time) *IngestionService {
	s.now = now
	return s
}

func newEventValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// resolveRequest is a validated event ready for resolution
type resolveRequest struct {
	kind       resolution.ExtractionKind
	recordType resolution.RecordType
	name       string
	scope      resolution.OwnershipScope
	dealID     uuid.UUID
	fields     map[string]any
	confidence float64
	source     string
}

func (r resolveRequest) key() resolution.ScopeKey {
	return resolution.ScopeKey{Scope: r.scope, DealID: r.dealID}
}

// IngestBatch resolves every event of the batch. A failing item never aborts the batch;
// the returned error is non-nil only when ctx ends before the batch completes.
func (s *IngestionService) IngestBatch(ctx context.Context, batch Batch) (*BatchResult, error) {
	result := &BatchResult{Items: make([]ItemResult, 0, batch.Size())}
	touched := map[resolution.ScopeKey]struct{}{}

	record := func(item ItemResult, key resolution.ScopeKey) {
		result.add(item)
		s.metrics.IngestedItem(item.Kind, item.Outcome)
		if item.Outcome == OutcomeCreated || item.Outcome == OutcomeAppended {
			touched[key] = struct{}{}
		}
	}

	index := 0
	for _, ev := range batch.Structured {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item, key := s.ingestStructured(ctx, ev)
		item.Index = index
		record(item, key)
		index++
	}
	for _, ev := range batch.Narrative {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item, key := s.ingestNarrative(ctx, ev)
		item.Index = index
		record(item, key)
		index++
	}

	for key := range touched {
		result.TouchedScopes = append(result.TouchedScopes, key)
	}
	sort.Slice(result.TouchedScopes, func(i, j int) bool {
		return result.TouchedScopes[i].String() < result.TouchedScopes[j].String()
	})

	s.logger.Info("Ingestion batch processed",
		zap.Int("events", batch.Size()),
		zap.Int("created", result.Created),
		zap.Int("appended", result.Appended),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed))

	if s.cfg.ReconcileAfterBatch && s.trigger != nil {
		for _, key := range result.TouchedScopes {
			if err := s.trigger.Trigger(ctx, key); err != nil {
				s.logger.Warn("Reconciliation trigger failed",
					zap.String("scope", key.String()),
					zap.Error(err))
				continue
			}
			result.Reconcile = append(result.Reconcile, key.String())
		}
	}
	return result, nil
}

func (s *IngestionService) ingestStructured(ctx context.Context, ev StructuredEvent) (ItemResult, resolution.ScopeKey) {
	item := ItemResult{Kind: resolution.ExtractionStructured, SourceReference: strings.TrimSpace(ev.SourceReference)}
	req, err := s.parseStructured(ev)
	if err != nil {
		return invalid(item, err), resolution.ScopeKey{}
	}
	return s.resolve(ctx, item, req), req.key()
}

func (s *IngestionService) ingestNarrative(ctx context.Context, ev NarrativeEvent) (ItemResult, resolution.ScopeKey) {
	item := ItemResult{Kind: resolution.ExtractionNarrative, SourceReference: strings.TrimSpace(ev.SourceReference)}
	req, err := s.parseNarrative(ev)
	if err != nil {
		return invalid(item, err), resolution.ScopeKey{}
	}
	return s.resolve(ctx, item, req), req.key()
}

func (s *IngestionService) parseStructured(ev StructuredEvent) (resolveRequest, error) {
	if err := s.validate.Struct(ev); err != nil {
		return resolveRequest{}, translateValidation(err)
	}
	recordType, err := resolution.ParseRecordType(ev.Type)
	if err != nil {
		return resolveRequest{}, err
	}
	scope, dealID, err := parseScope(ev.OwnershipScope, ev.DealScope)
	if err != nil {
		return resolveRequest{}, err
	}
	name := strings.TrimSpace(ev.Name)
	return resolveRequest{
		kind:       resolution.ExtractionStructured,
		recordType: recordType,
		name:       name,
		scope:      scope,
		dealID:     dealID,
		fields:     withName(ev.Attributes, name),
		confidence: resolution.StructuredConfidence,
		source:     strings.TrimSpace(ev.SourceReference),
	}, nil
}

func (s *IngestionService) parseNarrative(ev NarrativeEvent) (resolveRequest, error) {
	if err := s.validate.Struct(ev); err != nil {
		return resolveRequest{}, translateValidation(err)
	}
	typeName := strings.TrimSpace(ev.Type)
	if typeName == "" {
		typeName, _ = resolution.FieldValue(ev.ExtractedFields, resolution.AttrType)
	}
	recordType := resolution.RecordTypeApplication
	if typeName != "" {
		t, err := resolution.ParseRecordType(typeName)
		if err != nil {
			return resolveRequest{}, err
		}
		recordType = t
	}
	scope, dealID, err := parseScope(ev.OwnershipScope, ev.DealScope)
	if err != nil {
		return resolveRequest{}, err
	}
	name := strings.TrimSpace(ev.ItemText)
	return resolveRequest{
		kind:       resolution.ExtractionNarrative,
		recordType: recordType,
		name:       name,
		scope:      scope,
		dealID:     dealID,
		fields:     withName(ev.ExtractedFields, name),
		confidence: ev.Confidence,
		source:     strings.TrimSpace(ev.SourceReference),
	}, nil
}

func parseScope(scopeText, dealText string) (resolution.OwnershipScope, uuid.UUID, error) {
	scope, err := resolution.ParseOwnershipScope(scopeText)
	if err != nil {
		return "", uuid.Nil, err
	}
	dealID, err := uuid.Parse(strings.TrimSpace(dealText))
	if err != nil {
		return "", uuid.Nil, shared.NewValidationError("deal_scope", "must be a UUID")
	}
	if dealID == uuid.Nil {
		return "", uuid.Nil, shared.NewValidationError("deal_scope", "is required")
	}
	return scope, dealID, nil
}

// withName copies the payload and adds the event name when the payload carries none
func withName(fields map[string]any, name string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if _, ok := resolution.FieldValue(out, resolution.AttrName); !ok {
		out[resolution.AttrName] = name
	}
	return out
}

func (s *IngestionService) newObservation(req resolveRequest) (resolution.Observation, error) {
	if req.kind == resolution.ExtractionNarrative {
		return resolution.NewNarrativeObservation(req.source, req.fields, req.confidence, s.now())
	}
	return resolution.NewStructuredObservation(req.source, req.fields, s.now())
}

// resolve runs find-or-create, append and versioned save, retrying transient failures
func (s *IngestionService) resolve(ctx context.Context, item ItemResult, req resolveRequest) ItemResult {
	obs, err := s.newObservation(req)
	if err != nil {
		return invalid(item, err)
	}

	log := s.logger.With(
		zap.String("deal_id", req.dealID.String()),
		zap.String("ownership_scope", string(req.scope)),
		zap.String("source_reference", req.source))

	var (
		created  bool
		outcome  ItemOutcome
		recordID string
	)
	attempts, err := s.cfg.Retry.run(ctx, s.timer,
		func(attempt int, err error) {
			s.metrics.RetriedOperation("ingest")
			log.Debug("Retrying item after transient failure", zap.Int("attempt", attempt), zap.Error(err))
		},
		func(ctx context.Context) error {
			rec, isNew, err := s.records.FindOrCreate(ctx, req.recordType, req.name, req.scope, req.dealID, resolution.Attributes{DisplayName: req.name})
			if err != nil {
				return err
			}
			if isNew {
				created = true
				s.publish(ctx, rec)
			}
			rec, err = s.followMerged(ctx, rec)
			if err != nil {
				return err
			}
			recordID = rec.ID

			appended, err := rec.AddObservation(obs, s.now())
			if err != nil {
				return err
			}
			if !appended {
				outcome = OutcomeDuplicate
				return nil
			}
			if err := s.records.SaveWithLock(ctx, rec); err != nil {
				return err
			}
			s.publish(ctx, rec)
			outcome = OutcomeAppended
			return nil
		})

	item.Attempts = attempts
	item.RecordID = recordID
	if err != nil {
		log.Warn("Item could not be resolved", zap.Int("attempts", attempts), zap.Error(err))
		return unresolved(item, err)
	}
	if created && outcome == OutcomeAppended {
		outcome = OutcomeCreated
	}
	item.Outcome = outcome
	return item
}

// followMerged walks merged_away tombstones to the surviving record
func (s *IngestionService) followMerged(ctx context.Context, rec *resolution.InventoryRecord) (*resolution.InventoryRecord, error) {
	return followMerged(ctx, s.records, rec)
}

func followMerged(ctx context.Context, records resolution.InventoryRecordRepository, rec *resolution.InventoryRecord) (*resolution.InventoryRecord, error) {
	for hops := 0; rec.Status == resolution.StatusMergedAway; hops++ {
		if hops >= maxMergeRedirects || rec.MergedInto == "" {
			return nil, shared.NewDomainError("INVALID_STATE", "Merge chain of "+rec.ID+" does not end in a live record")
		}
		next, err := records.FindByID(ctx, rec.MergedInto)
		if err != nil {
			return nil, err
		}
		rec = next
	}
	return rec, nil
}

func (s *IngestionService) publish(ctx context.Context, agg shared.AggregateRoot) {
	publishPending(ctx, s.publisher, agg, s.logger)
}

func invalid(item ItemResult, err error) ItemResult {
	item.Outcome = OutcomeInvalid
	item.ErrorCode = "VALIDATION_FAILED"
	item.Error = err.Error()
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		item.Field = verr.Field
	}
	return item
}

func unresolved(item ItemResult, err error) ItemResult {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return invalid(item, err)
	}
	item.Outcome = OutcomeUnresolved
	item.ErrorCode = shared.ErrUnresolved.Code
	item.Error = shared.ErrUnresolved.Message + ": " + err.Error()
	return item
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return shared.NewValidationError("", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "notblank", "required":
		return shared.NewValidationError(fe.Field(), "is required")
	case "oneof":
		return shared.NewValidationError(fe.Field(), "must be one of: "+fe.Param())
	case "uuid":
		return shared.NewValidationError(fe.Field(), "must be a UUID")
	case "gt", "lt":
		return shared.NewValidationError(fe.Field(), "must be greater than 0 and less than 1")
	case "max":
		return shared.NewValidationError(fe.Field(), "must be at most "+fe.Param()+" characters")
	default:
		return shared.NewValidationError(fe.Field(), "failed "+fe.Tag()+" check")
	}
}
