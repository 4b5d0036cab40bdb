package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaEmitTimeout = 5 * time.Second

// KafkaSink mirrors status events to a Kafka topic. Delivery is best-effort:
// the writer runs async, delivery failures are logged, and a dead broker
// never stalls the worker loop.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ Emitter = (*KafkaSink)(nil)

// NewKafkaSink builds the mirror for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka status mirror delivery failed",
					slog.Int("messages", len(messages)),
					slog.String("error", err.Error()),
				)
			}
		},
	}

	return &KafkaSink{writer: writer, logger: logger}
}

// Emit implements Emitter. The event key is the worker ID (or run ID for
// pipeline events) so per-producer ordering survives partitioning.
func (s *KafkaSink) Emit(event Event) {
	event = Stamp(event)

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("drop status event", slog.String("error", err.Error()))

		return
	}

	key := event.WorkerID
	if key == "" {
		key = event.RunID
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaEmitTimeout)
	defer cancel()

	// Async writer: this only enqueues; completion is reported via the
	// Completion callback above.
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		s.logger.Warn("kafka status mirror enqueue failed", slog.String("error", err.Error()))
	}
}

// Close implements Emitter.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
