package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelcodes "go.opentelemetry.io/otel/codes"
)

func TestInitialize_Disabled(t *testing.T) {
	cfg := DefaultConfig("disposition-test")
	cfg.Enabled = false

	tp, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTracedOperation_RecordsErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, err := TracedOperation(context.Background(), tracer, "disposition.confirm", func(ctx context.Context) (int, error) {
		return 0, errors.New("empty position")
	})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "disposition.confirm", spans[0].Name())
	assert.Equal(t, otelcodes.Error, spans[0].Status().Code)
}

func TestTraceContextRoundTrip(t *testing.T) {
	_, err := Initialize(context.Background(), &Config{ServiceName: "disposition-test"})
	require.NoError(t, err)

	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "root")
	defer span.End()

	carrier := propagation.MapCarrier{}
	InjectTraceContext(ctx, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))

	extracted := ExtractTraceContext(context.Background(), carrier)
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(extracted))
}
