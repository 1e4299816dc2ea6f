package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Sink delivers outbox events outside the process.
type Sink interface {
	Deliver(ctx context.Context, eventType string, key string, payload []byte) error
	Close() error
}

// envelope is the message value put on the wire.
type envelope struct {
	Entity     string            `json:"entity"`
	Action     string            `json:"action"`
	ResourceID string            `json:"resourceId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Data       json.RawMessage   `json:"data"`
}

// splitType turns "booking_created" into ("booking", "created").
func splitType(eventType string) (string, string) {
	if idx := strings.Index(eventType, "_"); idx > 0 {
		return eventType[:idx], eventType[idx+1:]
	}
	return eventType, "unknown"
}

func encodeEnvelope(eventType, key string, payload []byte, at time.Time) ([]byte, error) {
	entity, action := splitType(eventType)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	return json.Marshal(envelope{
		Entity:     entity,
		Action:     action,
		ResourceID: key,
		Metadata:   map[string]string{"type": eventType, "emitted_at": at.UTC().Format(time.RFC3339Nano)},
		Data:       json.RawMessage(payload),
	})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes outbox events to a Kafka topic keyed by resource id, so
// all events of one booking land in one partition.
type KafkaSink struct {
	writer messageWriter
	logger *zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (s *KafkaSink) Deliver(ctx context.Context, eventType string, key string, payload []byte) error {
	value, err := encodeEnvelope(eventType, key, payload, time.Now())
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}

	s.logger.Debug().Str("type", eventType).Str("key", key).Msg("event delivered to kafka")
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, eventType string, key string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("null")
	}
	s.logger.Info().
		Str("type", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("event")
	return nil
}

func (s *LogSink) Close() error { return nil }
