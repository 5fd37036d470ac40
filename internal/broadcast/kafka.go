package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/model"
)

// Kafka header names set on every message.
const (
	HeaderMessageID = "message-id"
	HeaderExchange  = "exchange"
	HeaderKind      = "kind"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes JSON-encoded events to a Kafka topic, keyed by
// exchange:ticker so a ticker's events stay on one partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink backed by a kafka-go Writer. The writer
// connects lazily on the first publish.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	})
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Publish writes ev as a single message.
func (s *KafkaSink) Publish(ctx context.Context, ev model.Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func kafkaMessage(ev model.Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(topicKey(ev)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
			{Key: HeaderExchange, Value: []byte(ev.Exchange)},
			{Key: HeaderKind, Value: []byte(ev.Kind)},
		},
	}, nil
}
