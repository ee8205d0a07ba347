package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
)

// EventPublisher publishes CloudEvents to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}

// extensionHeaders maps the WMS CloudEvent extensions onto binary-mode headers
var extensionHeaders = []struct {
	key   string
	field func(*cloudevents.WMSCloudEvent) *string
}{
	{"ce-wmscorrelationid", func(e *cloudevents.WMSCloudEvent) *string { return &e.CorrelationID }},
	{"ce-wmsworkflowid", func(e *cloudevents.WMSCloudEvent) *string { return &e.WorkflowID }},
	{"ce-traceparent", func(e *cloudevents.WMSCloudEvent) *string { return &e.TraceParent }},
	{"ce-tracestate", func(e *cloudevents.WMSCloudEvent) *string { return &e.TraceState }},
}

// Producer writes to Kafka through one synchronous writer per topic
type Producer struct {
	config  *Config
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewProducer(config *Config) *Producer {
	return &Producer{config: config, writers: make(map[string]*kafka.Writer)}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(p.config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    p.config.BatchSize,
			BatchTimeout: p.config.BatchTimeout,
			RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		}
		p.writers[topic] = w
	}
	return w
}

// NewMessage encodes event as a structured JSON body with binary-mode ce-*
// headers. The key is the event subject, so every event about one position
// lands on the same partition.
func NewMessage(event *cloudevents.WMSCloudEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	headers := make([]kafka.Header, 0, 6+len(extensionHeaders))
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	add("ce-specversion", event.SpecVersion)
	add("ce-type", event.Type)
	add("ce-source", event.Source)
	add("ce-id", event.ID)
	add("ce-time", event.Time.Format(time.RFC3339))
	add("content-type", event.DataContentType)
	for _, h := range extensionHeaders {
		add(h.key, *h.field(event))
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   body,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.Type, topic, err)
	}
	return nil
}

// Close flushes and closes every writer
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
