package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteWithSpan wraps a Mongo operation on the session recorder's
// collections with a DB span.
func ExecuteWithSpan(ctx context.Context, collection, operation string, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	tracer := otel.Tracer("vocalbridge-control")

	spanName := fmt.Sprintf("db.%s", operation)
	spanCtx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String("mongodb"),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", collection),
		),
	)
	defer span.End()

	result, count, err := fn()

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(
			attribute.Bool("db.error", true),
			attribute.String("db.error.message", err.Error()),
		)
	} else {
		span.SetAttributes(attribute.Bool("db.error", false))
	}

	if count > 0 {
		span.SetAttributes(attribute.Int64("db.result.count", count))
	}

	_ = spanCtx

	return result, count, err
}

func ExecuteSelect(ctx context.Context, collection string, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	return ExecuteWithSpan(ctx, collection, "SELECT", fn)
}

func ExecuteInsert(ctx context.Context, collection string, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	return ExecuteWithSpan(ctx, collection, "INSERT", fn)
}

func ExecuteUpdate(ctx context.Context, collection string, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	return ExecuteWithSpan(ctx, collection, "UPDATE", fn)
}

func ExecuteDelete(ctx context.Context, collection string, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	return ExecuteWithSpan(ctx, collection, "DELETE", fn)
}
