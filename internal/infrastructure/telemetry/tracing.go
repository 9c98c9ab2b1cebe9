package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for resolution spans
const TracerName = "itdd-backend"

// Span attribute keys shared by resolution spans
const (
	AttrDealID         = attribute.Key("itdd.deal_id")
	AttrOwnershipScope = attribute.Key("itdd.ownership_scope")
	AttrRecordType     = attribute.Key("itdd.record_type")
)

// StartSpan starts an internal span on the global provider.
//
//	ctx, span := telemetry.StartSpan(ctx, "reconcile.job", AttrDealID.String(id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, opts...)
}

// EndSpan records err, if any, and ends the span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
