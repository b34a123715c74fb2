package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"accounts-telemetry/internal/glean"
)

// kafkaWriteTimeout bounds a single ping write so a slow broker does not hold
// the caller's context open indefinitely.
const kafkaWriteTimeout = 5 * time.Second

// KafkaSink writes ping envelopes to a Kafka topic, keyed by document id so
// replays of the same ping land in one partition. Used when pings are
// forwarded to the log store by cmd/worker instead of logged in-process.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a Kafka sink for the given brokers and topic. Returns
// nil when brokers or topic are unset. Call Close when shutting down.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Submit serializes the envelope as JSON and writes it to the topic.
func (s *KafkaSink) Submit(ctx context.Context, env *glean.Envelope) error {
	if s == nil || s.writer == nil || env == nil {
		return nil
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode ping: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(env.DocumentID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("transport: kafka write: %w", err)
	}
	return nil
}

// Close closes the Kafka writer. Safe to call on a nil sink or twice.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
