package outbox

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/logging"
)

type fakeRepo struct {
	mu        sync.Mutex
	entries   []*Entry
	published []string
	failures  map[string]string
	retryAt   map[string]time.Time
}

func (r *fakeRepo) Append(ctx context.Context, entries []*Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *fakeRepo) Due(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*Entry, 0)
	for _, e := range r.entries {
		if e.PublishedAt == nil && !e.Parked() && !e.NextAttemptAt.After(now) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (r *fakeRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			e.PublishedAt = &at
		}
	}
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id, reason string, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string]string)
		r.retryAt = make(map[string]time.Time)
	}
	for _, e := range r.entries {
		if e.ID == id {
			e.Attempts++
			e.NextAttemptAt = retryAt
		}
	}
	r.failures[id] = reason
	r.retryAt[id] = retryAt
	return nil
}

type fakeProducer struct {
	failTypes map[string]bool
	sent      []string
}

func (p *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	if p.failTypes[event.Type] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic+"|"+event.Type)
	return nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("outbox-test")
	cfg.Level = logging.LevelError
	cfg.Output = &bytes.Buffer{}
	return logging.New(cfg)
}

func newEntry(t *testing.T, eventType string) *Entry {
	t.Helper()
	factory := cloudevents.NewEventFactory(cloudevents.SourceDisposition)
	ce := factory.CreateEvent(context.Background(), eventType, "position/P1", map[string]string{"positionId": "P1"})
	entry, err := NewEntry("Position", "P1", "wms.disposition.events", ce)
	require.NoError(t, err)
	return entry
}

func TestNewEntry(t *testing.T) {
	entry := newEntry(t, cloudevents.PositionConfirmed)

	assert.Equal(t, "P1", entry.AggregateID)
	assert.Equal(t, cloudevents.PositionConfirmed, entry.EventType)
	assert.Equal(t, entry.CreatedAt, entry.NextAttemptAt)
	assert.False(t, entry.Parked())

	ce, err := entry.Event()
	require.NoError(t, err)
	assert.Equal(t, "position/P1", ce.Subject)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff(0))
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(3))
	assert.Equal(t, 5*time.Minute, Backoff(MaxAttempts))
}

func TestPublisher_FlushDeliversAndSchedulesRetry(t *testing.T) {
	ok := newEntry(t, cloudevents.PositionCreated)
	failing := newEntry(t, cloudevents.PositionConfirmed)

	repo := &fakeRepo{entries: []*Entry{ok, failing}}
	producer := &fakeProducer{failTypes: map[string]bool{cloudevents.PositionConfirmed: true}}
	publisher := NewPublisher(repo, producer, testLogger(), nil, nil)
	// entries are stamped with the wall clock; flush just after they were written
	now := failing.CreatedAt.Add(time.Millisecond)
	publisher.now = func() time.Time { return now }

	delivered := publisher.Flush(context.Background())

	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{ok.ID}, repo.published)
	assert.Equal(t, "broker unavailable", repo.failures[failing.ID])
	assert.Equal(t, now.Add(time.Second), repo.retryAt[failing.ID])
	assert.Equal(t, []string{"wms.disposition.events|" + cloudevents.PositionCreated}, producer.sent)

	published, failed := publisher.Counts()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(1), failed)

	// the failed entry is not due again until its backoff elapses
	assert.Equal(t, 0, publisher.Flush(context.Background()))
}

func TestPublisher_SkipsParkedEntries(t *testing.T) {
	parked := newEntry(t, cloudevents.PositionCreated)
	parked.Attempts = MaxAttempts

	repo := &fakeRepo{entries: []*Entry{parked}}
	producer := &fakeProducer{}
	publisher := NewPublisher(repo, producer, testLogger(), nil, nil)

	assert.Equal(t, 0, publisher.Flush(context.Background()))
	assert.True(t, parked.Parked())
	assert.Empty(t, producer.sent)
}

func TestPublisher_StartStop(t *testing.T) {
	publisher := NewPublisher(&fakeRepo{}, &fakeProducer{}, testLogger(), nil, nil)

	require.NoError(t, publisher.Start(context.Background()))
	assert.True(t, publisher.Running())
	assert.ErrorIs(t, publisher.Start(context.Background()), ErrPublisherRunning)

	require.NoError(t, publisher.Stop())
	assert.False(t, publisher.Running())
	assert.ErrorIs(t, publisher.Stop(), ErrPublisherStopped)
}
