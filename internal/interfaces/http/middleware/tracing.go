// Package middleware provides HTTP middleware for the resolution API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength is the maximum length accepted for client request IDs
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing returns otelgin followed by a handler that tags the request span with
// the request id and, on scope routes, the deal and ownership scope. 4xx and 5xx
// responses mark the span as errored. Install with engine.Use(Tracing(cfg)...).
func Tracing(cfg TracingConfig) gin.HandlersChain {
	if !cfg.Enabled {
		return gin.HandlersChain{func(c *gin.Context) { c.Next() }}
	}
	return gin.HandlersChain{otelgin.Middleware(cfg.ServiceName), annotateSpan}
}

func annotateSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		c.Next()
		return
	}
	span.SetAttributes(requestAttributes(c)...)

	c.Next()

	markSpanStatus(span, c.Writer.Status())
}

// requestAttributes reads path values; malformed ones are left out so they never reach the trace
func requestAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := c.GetString(RequestIDKey); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	if deal, err := uuid.Parse(c.Param("deal_id")); err == nil {
		attrs = append(attrs, telemetry.AttrDealID.String(deal.String()))
	}
	if scope := resolution.OwnershipScope(c.Param("scope")); scope.IsValid() {
		attrs = append(attrs, telemetry.AttrOwnershipScope.String(string(scope)))
	}
	return attrs
}

func markSpanStatus(span trace.Span, status int) {
	if status < http.StatusBadRequest {
		return
	}
	message := "Client Error"
	switch {
	case status >= http.StatusInternalServerError:
		message = "Internal Server Error"
	case status == http.StatusNotFound:
		message = "Not Found"
	case status == http.StatusConflict:
		message = "Conflict"
	}
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.Int("http.status_code", status))
}
