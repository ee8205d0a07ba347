package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	"github.com/wms-platform/disposition-service/pkg/tracing"
)

// eventContext resumes the trace recorded on event, if any
func eventContext(ctx context.Context, event *cloudevents.WMSCloudEvent) context.Context {
	if event.TraceParent == "" {
		return ctx
	}
	return tracing.ExtractTraceContext(ctx, propagation.MapCarrier{
		"traceparent": event.TraceParent,
		"tracestate":  event.TraceState,
	})
}

func messagingSpan(ctx context.Context, tracer trace.Tracer, kind trace.SpanKind, operation, topic string, event *cloudevents.WMSCloudEvent, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKey.String("kafka"),
		semconv.MessagingDestinationNameKey.String(topic),
		semconv.MessagingOperationKey.String(operation),
		attribute.String("messaging.message_id", event.ID),
		attribute.String("messaging.kafka.event_type", event.Type),
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, attribute.String("wms.correlation_id", event.CorrelationID))
	}
	if event.WorkflowID != "" {
		attrs = append(attrs, attribute.String("wms.workflow_id", event.WorkflowID))
	}
	attrs = append(attrs, extra...)

	return tracer.Start(eventContext(ctx, event), "kafka."+operation,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InstrumentedProducer adds a producer span, publish metrics and a log line to each publish
type InstrumentedProducer struct {
	next    EventPublisher
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

func NewInstrumentedProducer(next EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		next:    next,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes under a span that continues the trace the event was
// created in, then rewrites the event's trace headers to point at that span.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) (err error) {
	start := time.Now()
	ctx, span := messagingSpan(ctx, p.tracer, trace.SpanKindProducer, "publish", topic, event)
	defer func() { endSpan(span, err) }()

	carrier := propagation.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	if tp := carrier.Get("traceparent"); tp != "" {
		event.TraceParent, event.TraceState = tp, carrier.Get("tracestate")
	}

	err = p.next.PublishEvent(ctx, topic, event)

	elapsed := time.Since(start)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, elapsed)
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, elapsed)
	}
	return err
}

// InstrumentHandler runs handler under a consumer span parented on the event's trace
func InstrumentHandler(topic, consumerGroup string, m *metrics.Metrics, handler EventHandler) EventHandler {
	tracer := otel.Tracer("kafka-consumer")

	return func(ctx context.Context, event *cloudevents.WMSCloudEvent) (err error) {
		ctx, span := messagingSpan(ctx, tracer, trace.SpanKindConsumer, "receive", topic, event,
			attribute.String("messaging.kafka.consumer_group", consumerGroup))
		defer func() { endSpan(span, err) }()

		err = handler(ctx, event)
		m.RecordKafkaConsume(topic, event.Type, err == nil)
		return err
	}
}
