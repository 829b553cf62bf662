// Package kafka publishes memory events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/branchmem/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "branchmem.memory"

// ErrNoBrokers is returned when the publisher is created without brokers.
var ErrNoBrokers = errors.New("at least one kafka broker is required")

// MessageWriter is the subset of *kafkago.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds each publish. Zero uses kafka-go's default.
	WriteTimeout time.Duration

	// Writer overrides the kafka writer. Tests use it to capture messages.
	Writer MessageWriter
}

// Publisher writes memory events as JSON, keyed by session and memory node.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}

	writer := cfg.Writer
	if writer == nil {
		brokers := make([]string, 0, len(cfg.Brokers))
		for _, b := range cfg.Brokers {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}

		writer = &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			WriteTimeout: cfg.WriteTimeout,
		}
	}

	return &Publisher{writer: writer, topic: topic}, nil
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishMemory encodes and writes the event.
func (p *Publisher) PublishMemory(ctx context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilMemoryEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding memory event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing memory event to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
