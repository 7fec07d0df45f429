package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"flowguard/internal/models"
	"flowguard/internal/storage"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("flowguard/storage")
	meter := otel.Meter("flowguard/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) Limiters(ctx context.Context) ([]*models.LimiterConfig, error) {
	ctx, span := s.startSpan(ctx, "Limiters")
	start := time.Now()
	result, err := s.inner.Limiters(ctx)
	s.record(ctx, span, "Limiters", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error) {
	ctx, span := s.startSpan(ctx, "GetLimiter", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := s.inner.GetLimiter(ctx, identifier)
	s.record(ctx, span, "GetLimiter", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error {
	ctx, span := s.startSpan(ctx, "SaveLimiter", attribute.String("identifier", limiter.Identifier))
	start := time.Now()
	err := s.inner.SaveLimiter(ctx, limiter)
	s.record(ctx, span, "SaveLimiter", start, err)
	return err
}

func (s *InstrumentedStorage) SetOverridden(ctx context.Context, identifier string, overridden bool) error {
	ctx, span := s.startSpan(ctx, "SetOverridden",
		attribute.String("identifier", identifier),
		attribute.Bool("overridden", overridden),
	)
	start := time.Now()
	err := s.inner.SetOverridden(ctx, identifier, overridden)
	s.record(ctx, span, "SetOverridden", start, err)
	return err
}

func (s *InstrumentedStorage) AppendBreach(ctx context.Context, breach *models.BreachRecord) error {
	ctx, span := s.startSpan(ctx, "AppendBreach",
		attribute.String("identifier", breach.Identifier),
	)
	start := time.Now()
	err := s.inner.AppendBreach(ctx, breach)
	s.record(ctx, span, "AppendBreach", start, err)
	return err
}

func (s *InstrumentedStorage) Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error) {
	ctx, span := s.startSpan(ctx, "Breaches", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := s.inner.Breaches(ctx, identifier)
	s.record(ctx, span, "Breaches", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
