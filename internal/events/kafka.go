package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"flowguard/internal/models"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes events to a Kafka topic. The writer runs in async mode
// so Publish enqueues without waiting for broker acknowledgement; delivery
// failures are reported through the completion callback and logged.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaSink creates a sink writing to the configured brokers and topic.
func NewKafkaSink(cfg models.KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					"error", err,
					"message_count", len(messages),
				)
			}
		},
	}

	logger.Info("kafka event sink initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &KafkaSink{
		writer: writer,
		logger: logger,
	}, nil
}

// Publish enqueues one event keyed by identifier so per-identifier ordering
// is preserved within a partition. Failures are logged, never returned.
func (k *KafkaSink) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("failed to marshal event", "error", err, "identifier", event.Identifier)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.Identifier),
		Value: value,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("failed to enqueue kafka message",
			"error", err,
			"identifier", event.Identifier,
			"event_type", string(event.Type),
		)
	}
}

// Close flushes pending messages and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
