package event

import (
	"context"
	"encoding/json"

	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// EventCounter counts delivered events by type
type EventCounter interface {
	EventPublished(eventType string)
}

// AuditHandler writes every resolution event to the audit log as JSON and counts it.
// Subscribed without event types, it receives all events.
type AuditHandler struct {
	serializer *EventSerializer
	logger     *zap.Logger
	counter    EventCounter
}

// NewAuditHandler creates an audit handler. counter may be nil.
func NewAuditHandler(serializer *EventSerializer, logger *zap.Logger, counter EventCounter) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{serializer: serializer, logger: logger.Named("audit"), counter: counter}
}

// EventTypes implements shared.EventHandler
func (h *AuditHandler) EventTypes() []string { return nil }

// Handle implements shared.EventHandler
func (h *AuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := h.serializer.Serialize(event)
	if err != nil {
		return err
	}
	if h.counter != nil {
		h.counter.EventPublished(event.EventType())
	}
	h.logger.Info("domain event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("deal_id", event.DealID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.Any("payload", json.RawMessage(payload)),
	)
	return nil
}

var _ shared.EventHandler = (*AuditHandler)(nil)
