package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const queryStartKey contextKey = "otel_query_start_time"

// RegisterDBTracing installs otelgorm on db and marks slow or failed statements on
// their spans. Query variables stay out of spans unless full SQL logging is on.
func RegisterDBTracing(db *gorm.DB, cfg config.TelemetryConfig, logger *zap.Logger) error {
	if !cfg.DBTraceEnabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(db.Dialector.Name())}
	if !cfg.DBLogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	threshold := cfg.DBSlowQueryThresh
	if threshold <= 0 {
		threshold = 200 * time.Millisecond
	}
	if err := registerTimingCallbacks(db, threshold); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.DBLogFullSQL),
		zap.Duration("slow_query_threshold", threshold),
	)
	return nil
}

// registerTimingCallbacks annotates the otelgorm span before otelgorm ends it
func registerTimingCallbacks(db *gorm.DB, threshold time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateSpan(tx, threshold) }

	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("itdd_timing:before_create", before) },
		func() error { return cb.Query().Before("gorm:query").Register("itdd_timing:before_query", before) },
		func() error { return cb.Update().Before("gorm:update").Register("itdd_timing:before_update", before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("itdd_timing:before_delete", before) },
		func() error { return cb.Row().Before("gorm:row").Register("itdd_timing:before_row", before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("itdd_timing:before_raw", before) },
		func() error { return cb.Create().After("gorm:create").Before("otel:after_create").Register("itdd_timing:after_create", after) },
		func() error { return cb.Query().After("gorm:query").Before("otel:after_query").Register("itdd_timing:after_query", after) },
		func() error { return cb.Update().After("gorm:update").Before("otel:after_update").Register("itdd_timing:after_update", after) },
		func() error { return cb.Delete().After("gorm:delete").Before("otel:after_delete").Register("itdd_timing:after_delete", after) },
		func() error { return cb.Row().After("gorm:row").Before("otel:after_row").Register("itdd_timing:after_row", after) },
		func() error { return cb.Raw().After("gorm:raw").Before("otel:after_raw").Register("itdd_timing:after_raw", after) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

func annotateSpan(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}
	if start, ok := ctx.Value(queryStartKey).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
