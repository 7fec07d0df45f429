package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"flowguard/internal/breaker"
	"flowguard/internal/guard"
	"flowguard/internal/models"
	"flowguard/internal/settlement"
)

// InstrumentedGuard wraps a guard.ServiceInterface with OpenTelemetry tracing
// and domain metrics. In addition to per-operation latency it counts recorded
// flows by resulting status and limiter trips.
type InstrumentedGuard struct {
	inner    guard.ServiceInterface
	tracer   trace.Tracer
	duration metric.Float64Histogram
	flows    metric.Int64Counter
	trips    metric.Int64Counter
}

// NewInstrumentedGuard creates a guard service wrapper that records trace spans,
// operation latency, flow counts, and limiter trip counts.
func NewInstrumentedGuard(inner guard.ServiceInterface) (*InstrumentedGuard, error) {
	tracer := otel.Tracer("flowguard/guard")
	meter := otel.Meter("flowguard/guard")

	duration, err := meter.Float64Histogram(
		"guard.operation.duration",
		metric.WithDescription("Duration of guard service operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	flows, err := meter.Int64Counter(
		"guard.flows.recorded",
		metric.WithDescription("Number of flow events recorded, by resulting status"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, err
	}

	trips, err := meter.Int64Counter(
		"guard.limiter.trips",
		metric.WithDescription("Number of times a limiter entered the triggered state"),
		metric.WithUnit("{trip}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedGuard{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		flows:    flows,
		trips:    trips,
	}, nil
}

func (g *InstrumentedGuard) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := g.tracer.Start(ctx, "guard."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("guard.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (g *InstrumentedGuard) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()

	g.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("operation", operation)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (g *InstrumentedGuard) CreateLimiter(ctx context.Context, req *models.CreateLimiterRequest) (*models.CreateLimiterResponse, error) {
	ctx, span := g.startSpan(ctx, "CreateLimiter", attribute.String("identifier", req.Identifier))
	start := time.Now()
	result, err := g.inner.CreateLimiter(ctx, req)
	g.record(ctx, span, "CreateLimiter", start, err)
	return result, err
}

func (g *InstrumentedGuard) ReconfigureLimiter(ctx context.Context, identifier string, req *models.ReconfigureLimiterRequest) (*models.LimiterConfig, error) {
	ctx, span := g.startSpan(ctx, "ReconfigureLimiter", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.ReconfigureLimiter(ctx, identifier, req)
	g.record(ctx, span, "ReconfigureLimiter", start, err)
	return result, err
}

func (g *InstrumentedGuard) SetOverride(ctx context.Context, identifier string, overridden bool) error {
	ctx, span := g.startSpan(ctx, "SetOverride",
		attribute.String("identifier", identifier),
		attribute.Bool("overridden", overridden),
	)
	start := time.Now()
	err := g.inner.SetOverride(ctx, identifier, overridden)
	g.record(ctx, span, "SetOverride", start, err)
	return err
}

func (g *InstrumentedGuard) RecordFlow(ctx context.Context, identifier string, req *models.RecordFlowRequest) (*models.FlowResult, error) {
	ctx, span := g.startSpan(ctx, "RecordFlow", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.RecordFlow(ctx, identifier, req)
	g.record(ctx, span, "RecordFlow", start, err)

	if err == nil && result.Tracked {
		g.flows.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status)))
		if result.Status == breaker.StatusTriggered.String() {
			g.trips.Add(ctx, 1, metric.WithAttributes(attribute.String("identifier", identifier)))
		}
	}

	return result, err
}

func (g *InstrumentedGuard) LimiterStatus(ctx context.Context, identifier string) (*models.StatusResponse, error) {
	ctx, span := g.startSpan(ctx, "LimiterStatus", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.LimiterStatus(ctx, identifier)
	g.record(ctx, span, "LimiterStatus", start, err)
	return result, err
}

func (g *InstrumentedGuard) InspectLimiter(ctx context.Context, identifier string) (*models.LimiterResponse, error) {
	ctx, span := g.startSpan(ctx, "InspectLimiter", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.InspectLimiter(ctx, identifier)
	g.record(ctx, span, "InspectLimiter", start, err)
	return result, err
}

func (g *InstrumentedGuard) ListLimiters(ctx context.Context) (*models.ListLimitersResponse, error) {
	ctx, span := g.startSpan(ctx, "ListLimiters")
	start := time.Now()
	result, err := g.inner.ListLimiters(ctx)
	g.record(ctx, span, "ListLimiters", start, err)
	return result, err
}

func (g *InstrumentedGuard) ClearBacklog(ctx context.Context, identifier string, req *models.SyncRequest) (*models.SyncResponse, error) {
	ctx, span := g.startSpan(ctx, "ClearBacklog", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.ClearBacklog(ctx, identifier, req)
	g.record(ctx, span, "ClearBacklog", start, err)
	return result, err
}

func (g *InstrumentedGuard) Breaches(ctx context.Context, identifier string) (*models.BreachesResponse, error) {
	ctx, span := g.startSpan(ctx, "Breaches", attribute.String("identifier", identifier))
	start := time.Now()
	result, err := g.inner.Breaches(ctx, identifier)
	g.record(ctx, span, "Breaches", start, err)
	return result, err
}

func (g *InstrumentedGuard) PendingSettlements(ctx context.Context) ([]*settlement.Action, error) {
	ctx, span := g.startSpan(ctx, "PendingSettlements")
	start := time.Now()
	result, err := g.inner.PendingSettlements(ctx)
	g.record(ctx, span, "PendingSettlements", start, err)
	return result, err
}

func (g *InstrumentedGuard) ExecuteSettlement(ctx context.Context, handle string) (*settlement.Action, error) {
	ctx, span := g.startSpan(ctx, "ExecuteSettlement", attribute.String("handle", handle))
	start := time.Now()
	result, err := g.inner.ExecuteSettlement(ctx, handle)
	g.record(ctx, span, "ExecuteSettlement", start, err)
	return result, err
}

func (g *InstrumentedGuard) GetSettlement(ctx context.Context, handle string) (*settlement.Action, error) {
	ctx, span := g.startSpan(ctx, "GetSettlement", attribute.String("handle", handle))
	start := time.Now()
	result, err := g.inner.GetSettlement(ctx, handle)
	g.record(ctx, span, "GetSettlement", start, err)
	return result, err
}

// Ensure InstrumentedGuard implements the service interface.
var _ guard.ServiceInterface = (*InstrumentedGuard)(nil)
