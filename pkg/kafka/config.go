package kafka

import (
	"errors"
	"time"
)

// Config covers both directions: the outbox producer and the load event consumer.
type Config struct {
	Brokers       []string
	ClientID      string
	ConsumerGroup string

	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks follows kafka-go: -1 waits for all in-sync replicas
	RequiredAcks int

	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration

	// HandlerAttempts bounds how often a failing handler sees the same message
	HandlerAttempts int
	HandlerBackoff  time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ClientID:      "disposition-service",
		ConsumerGroup: "disposition-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 5 * time.Second,

		HandlerAttempts: 5,
		HandlerBackoff:  200 * time.Millisecond,
	}
}

// Validate rejects configs that cannot reach a broker
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 || c.Brokers[0] == "" {
		return errors.New("kafka: at least one broker is required")
	}
	if c.ConsumerGroup == "" {
		return errors.New("kafka: consumer group is required")
	}
	return nil
}

// Topics names the topics the disposition service writes to and reads from
var Topics = struct {
	DispositionEvents string
	LoadEvents        string
}{
	DispositionEvents: "wms.disposition.events",
	LoadEvents:        "wms.loads.events",
}
