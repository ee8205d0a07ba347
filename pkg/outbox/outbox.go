// Package outbox stores integration events next to the aggregate write that
// produced them and relays them to Kafka afterwards.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
)

// MaxAttempts is the publish budget of an entry; exhausted entries stay parked
// in the collection for manual replay.
const MaxAttempts = 10

// Entry is one pending event in the outbox collection
type Entry struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	NextAttemptAt time.Time       `bson:"nextAttemptAt" json:"nextAttemptAt"`
	Attempts      int             `bson:"attempts" json:"attempts"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
}

// NewEntry serialises event for aggregateType/aggregateID, due immediately
func NewEntry(aggregateType, aggregateID, topic string, event *cloudevents.WMSCloudEvent) (*Entry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	now := time.Now().UTC()
	return &Entry{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}

// Parked reports whether the entry has used up its publish budget
func (e *Entry) Parked() bool {
	return e.PublishedAt == nil && e.Attempts >= MaxAttempts
}

// Event decodes the stored CloudEvent
func (e *Entry) Event() (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode outbox entry %s: %w", e.ID, err)
	}
	return &event, nil
}

// Backoff returns the delay before attempt n+1 after n failures: 1s doubling, capped at 5m
func Backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	delay := time.Second << min(attempts-1, 9)
	return min(delay, 5*time.Minute)
}
