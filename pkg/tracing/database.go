package tracing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amc-simulator/amc_simulator/pkg/metrics"
)

const dbTracerName = "database"

// DBSpanConfig holds configuration for database span creation
type DBSpanConfig struct {
	Operation string // SELECT, INSERT, UPDATE, DELETE, UPSERT
	Table     string
}

// StartDBSpan creates a new span for database operations
func StartDBSpan(ctx context.Context, cfg DBSpanConfig) (context.Context, trace.Span) {
	spanName := cfg.Operation
	if cfg.Table != "" {
		spanName = cfg.Operation + " " + cfg.Table
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", cfg.Operation),
	}
	if cfg.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", cfg.Table))
	}

	return otel.Tracer(dbTracerName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// TraceQuery wraps a database call with a span and a latency observation.
// sql.ErrNoRows is not treated as a span error.
func TraceQuery(ctx context.Context, cfg DBSpanConfig, fn func(context.Context) error) error {
	ctx, span := StartDBSpan(ctx, cfg)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Float64("db.query.duration_ms", float64(elapsed.Microseconds())/1000))
	metrics.RecordDatabaseQuery(cfg.Operation, cfg.Table, elapsed.Seconds())

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, sql.ErrNoRows):
		span.SetStatus(codes.Ok, "no rows found")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// TraceExec wraps a write and records rows affected on the span.
func TraceExec(ctx context.Context, cfg DBSpanConfig, fn func(context.Context) (sql.Result, error)) (sql.Result, error) {
	var result sql.Result
	err := TraceQuery(ctx, cfg, func(ctx context.Context) error {
		var execErr error
		result, execErr = fn(ctx)
		if execErr == nil && result != nil {
			if n, rerr := result.RowsAffected(); rerr == nil {
				trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("db.rows_affected", n))
			}
		}
		return execErr
	})
	return result, err
}
