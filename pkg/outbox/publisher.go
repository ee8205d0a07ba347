package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wms-platform/disposition-service/pkg/kafka"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
)

var (
	ErrPublisherRunning = errors.New("outbox publisher already running")
	ErrPublisherStopped = errors.New("outbox publisher not running")
)

// PublisherConfig controls polling cadence and batch size
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig polls every second for up to 100 entries
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// Publisher relays due outbox entries to Kafka.
// Delivery is at-least-once: an entry published but not marked is sent again.
type Publisher struct {
	repo     Repository
	producer kafka.EventPublisher
	logger   *logging.Logger
	metrics  *metrics.Metrics
	config   PublisherConfig
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher wires a publisher; a nil config uses the defaults
func NewPublisher(repo Repository, producer kafka.EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   logger.WithComponent("outbox-publisher"),
		metrics:  m,
		config:   *config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the polling loop; it ends on Stop or when ctx is done
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrPublisherRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.config.PollInterval, "batchSize", p.config.BatchSize)
	go p.loop(loopCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch
func (p *Publisher) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return ErrPublisherStopped
	}
	cancel()
	<-done

	p.logger.Info("Outbox publisher stopped", "published", p.published.Load(), "failed", p.failed.Load())
	return nil
}

// Running reports whether Start has been called without a matching Stop
func (p *Publisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Publisher) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush publishes one batch of due entries and returns how many were delivered
func (p *Publisher) Flush(ctx context.Context) int {
	entries, err := p.repo.Due(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load due outbox entries")
		return 0
	}
	p.metrics.SetOutboxPending(len(entries))

	delivered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if p.deliver(ctx, entry) {
			delivered++
		}
	}
	return delivered
}

func (p *Publisher) deliver(ctx context.Context, entry *Entry) bool {
	start := time.Now()
	err := p.send(ctx, entry)
	p.metrics.RecordOutboxPublish(entry.EventType, err == nil, time.Since(start))

	log := p.logger.WithFields(map[string]any{
		"entryId":     entry.ID,
		"eventType":   entry.EventType,
		"aggregateId": entry.AggregateID,
	})

	if err != nil {
		p.failed.Add(1)
		p.metrics.RecordOutboxRetry(entry.EventType)

		attempts := entry.Attempts + 1
		retryAt := p.now().Add(Backoff(attempts))
		if attempts >= MaxAttempts {
			log.WithError(err).Error("Outbox entry parked after exhausting attempts", "attempts", attempts)
		} else {
			log.WithError(err).Warn("Failed to publish outbox entry", "attempts", attempts, "retryAt", retryAt)
		}
		if markErr := p.repo.MarkFailed(ctx, entry.ID, err.Error(), retryAt); markErr != nil {
			log.WithError(markErr).Error("Failed to record outbox failure")
		}
		return false
	}

	p.published.Add(1)
	if err := p.repo.MarkPublished(ctx, entry.ID, p.now()); err != nil {
		log.WithError(err).Error("Failed to mark outbox entry as published")
	}
	log.Debug("Published outbox entry", "topic", entry.Topic)
	return true
}

func (p *Publisher) send(ctx context.Context, entry *Entry) error {
	event, err := entry.Event()
	if err != nil {
		return err
	}
	return p.producer.PublishEvent(ctx, entry.Topic, event)
}

// Counts returns delivered and failed attempts since construction
func (p *Publisher) Counts() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}
