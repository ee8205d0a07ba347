package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/disposition-service/pkg/logging"
)

type workflowIDKey struct{}

// ContextWithWorkflowID marks ctx as running on behalf of a Temporal workflow;
// events created under it carry the wmsworkflowid extension.
func ContextWithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, workflowIDKey{}, workflowID)
}

var traceContext = propagation.TraceContext{}

// EventFactory stamps CloudEvents for one source
type EventFactory struct {
	source string
	now    func() time.Time
}

func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// CreateEvent builds an event and copies correlation, workflow and trace
// context from ctx so the outbox can publish it later under the original trace.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      map[string]any{},
	}
	if ctx == nil {
		return event
	}

	event.CorrelationID, _ = ctx.Value(logging.CorrelationIDKey).(string)
	event.WorkflowID, _ = ctx.Value(workflowIDKey{}).(string)

	carrier := propagation.MapCarrier{}
	traceContext.Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	event.TraceState = carrier.Get("tracestate")

	return event
}
