package mongodb

import (
	"context"
	"time"

	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation records spans, metrics and debug logs around collection operations.
// A nil *Instrumentation runs operations unobserved.
type Instrumentation struct {
	database string
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentation creates instrumentation for the named database
func NewInstrumentation(database string, m *metrics.Metrics, logger *logging.Logger) *Instrumentation {
	return &Instrumentation{
		database: database,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("mongodb"),
	}
}

// Observe runs fn as operation on collection
func (i *Instrumentation) Observe(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(i.database),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.mongodb.collection", collection),
		),
	)
	defer span.End()

	err := fn(ctx)
	duration := time.Since(start)
	success := err == nil

	i.metrics.RecordMongoDBOperation(collection, operation, success, duration)
	if i.logger != nil {
		i.logger.DatabaseQuery(ctx, collection, operation, duration, success)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
