package cloudevents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"github.com/wms-platform/disposition-service/pkg/logging"
)

func TestEventFactory_CreateEvent(t *testing.T) {
	factory := NewEventFactory(SourceDisposition)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")

	event := factory.CreateEvent(ctx, PositionConfirmed, "position/P1", map[string]string{"positionId": "P1"})

	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, PositionConfirmed, event.Type)
	assert.Equal(t, SourceDisposition, event.Source)
	assert.Equal(t, "position/P1", event.Subject)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Time.IsZero())
}

func TestEventFactory_CarriesWorkflowAndTrace(t *testing.T) {
	factory := NewEventFactory(SourceDisposition)

	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "confirm")
	defer span.End()
	ctx = ContextWithWorkflowID(ctx, "bulk-confirm-1")

	event := factory.CreateEvent(ctx, PositionConfirmed, "position/P1", nil)

	assert.Equal(t, "bulk-confirm-1", event.WorkflowID)
	assert.Empty(t, event.CorrelationID)
	assert.Contains(t, event.TraceParent, span.SpanContext().TraceID().String())
}

func TestEventFactory_NoTraceWithoutSpan(t *testing.T) {
	event := NewEventFactory(SourceDisposition).CreateEvent(context.Background(), PositionCreated, "position/P1", nil)

	assert.Empty(t, event.TraceParent)
	assert.Empty(t, event.WorkflowID)
}

func TestLoadData_DecodesMissingFieldsAsZero(t *testing.T) {
	raw := `{"loadId":"L1","direction":"export","items":[{"itemId":"I1","grossWeight":12.5}]}`

	var data LoadData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	require.Len(t, data.Items, 1)
	assert.Equal(t, 12.5, data.Items[0].GrossWeight)
	assert.Zero(t, data.Items[0].Volume)
	assert.Zero(t, data.Items[0].Lademetre)
}
