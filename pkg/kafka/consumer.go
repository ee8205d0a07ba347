package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/resilience"
)

// EventHandler handles a CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.WMSCloudEvent) error

// Consumer reads subscribed topics in one consumer group and routes each
// CloudEvent to the handler registered for its type.
type Consumer struct {
	config   *Config
	readers  map[string]*kafka.Reader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
	logger   *logging.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *logging.Logger) *Consumer {
	return &Consumer{
		config:   config,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger.WithComponent("kafka-consumer"),
	}
}

// Subscribe registers a handler for one event type on a topic. Must be called before Start.
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// Start consumes all subscribed topics until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        c.config.Brokers,
			GroupID:        c.config.ConsumerGroup,
			Topic:          topic,
			MinBytes:       c.config.MinBytes,
			MaxBytes:       c.config.MaxBytes,
			MaxWait:        c.config.MaxWait,
			CommitInterval: c.config.CommitInterval,
		})
		c.readers[topic] = reader
		go c.consumeTopic(ctx, topic, reader)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string, reader *kafka.Reader) {
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		event, err := ParseMessage(msg)
		if err != nil {
			// Poison message: commit so the partition is not blocked.
			c.logger.WithError(err).Error("Error parsing message", "topic", topic, "offset", msg.Offset)
			c.commit(ctx, reader, topic, msg)
			continue
		}

		c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

		if err := c.handle(ctx, topic, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			// offsets commit in order; the event is dropped once retries run out
			c.logger.WithError(err).Error("Dropping event after repeated handler failures",
				"topic", topic,
				"eventType", event.Type,
				"eventId", event.ID,
				"offset", msg.Offset,
			)
		}

		c.commit(ctx, reader, topic, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = max(c.config.HandlerAttempts, 1)
	retry.InitialDelay = c.config.HandlerBackoff

	return resilience.Retry(ctx, retry, func() error {
		return c.Dispatch(ctx, topic, event)
	})
}

func (c *Consumer) commit(ctx context.Context, reader *kafka.Reader, topic string, msg kafka.Message) {
	if err := reader.CommitMessages(ctx, msg); err != nil {
		c.logger.WithError(err).Error("Error committing message", "topic", topic)
	}
}

// ParseMessage decodes a Kafka message into a CloudEvent, applying extension headers
func ParseMessage(msg kafka.Message) (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		for _, h := range extensionHeaders {
			if h.key == header.Key {
				*h.field(&event) = string(header.Value)
			}
		}
	}

	return &event, nil
}

// Dispatch routes an event to the handler registered for its topic and type.
// Events without a handler are acknowledged and skipped.
func (c *Consumer) Dispatch(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	handlers, exists := c.handlers[topic]
	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}

	if handler, exists := handlers[event.Type]; exists {
		return handler(ctx, event)
	}

	c.logger.Debug("No handler found for event type", "topic", topic, "eventType", event.Type)
	return nil
}

// Close closes every reader opened by Start
func (c *Consumer) Close() error {
	var errs []error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
