// Package events publishes limiter lifecycle notifications to a configurable
// sink. Publishing is fire and forget: a slow or failing sink never blocks or
// fails the flow that produced the event.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowguard/internal/models"
)

// Type identifies the kind of limiter event.
type Type string

const (
	// TypeParameterIncreased is emitted for flows that add to the tracked
	// parameter.
	TypeParameterIncreased Type = "parameter_increased"

	// TypeParameterDecreased is emitted for flows that remove from the
	// tracked parameter.
	TypeParameterDecreased Type = "parameter_decreased"

	// TypeRateLimited is emitted when a flow trips the breaker.
	TypeRateLimited Type = "rate_limited"
)

// Event is one limiter notification.
type Event struct {
	Type             Type      `json:"type"`
	Identifier       string    `json:"identifier"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	SettlementHandle string    `json:"settlement_handle,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Sink receives limiter events. Implementations must not block the caller
// beyond the context deadline and must swallow delivery failures.
type Sink interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// NewSink builds the sink selected by the events configuration.
func NewSink(cfg models.EventsConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Sink {
	case models.EventSinkNone:
		return NopSink{}, nil
	case models.EventSinkLog:
		return NewLogSink(logger), nil
	case models.EventSinkKafka:
		return NewKafkaSink(cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("unsupported event sink: %s", cfg.Sink)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

func (NopSink) Close() error { return nil }

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(_ context.Context, event Event) {
	l.logger.Info("limiter event",
		"event_type", string(event.Type),
		"identifier", event.Identifier,
		"amount", event.Amount,
		"status", event.Status,
		"settlement_handle", event.SettlementHandle,
	)
}

func (l *LogSink) Close() error { return nil }

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one. Publish order follows the argument
// order; Close closes every sink and returns the first error.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, event Event) {
	for _, sink := range m.sinks {
		sink.Publish(ctx, event)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
