// Package guard wires the breaker engine to persistence, settlement, and
// event delivery. It owns the orchestration that individual packages stay out
// of: write-through registration, breach auditing, and routing rejected flows
// to the settlement module.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flowguard/internal/breaker"
	"flowguard/internal/clock"
	"flowguard/internal/events"
	"flowguard/internal/models"
	"flowguard/internal/settlement"
	"flowguard/internal/storage"

	"github.com/google/uuid"
)

// Service handles limiter lifecycle and flow evaluation business logic
type Service struct {
	engine     *breaker.Engine
	storage    storage.Storage
	settlement settlement.Module
	events     events.Sink
	clk        clock.Clock
	logger     *slog.Logger

	// syncMaxIterations is the eviction budget applied when a sync request
	// does not carry its own. 0 means unbounded.
	syncMaxIterations int
}

// Options carries the collaborators the service orchestrates.
type Options struct {
	Engine            *breaker.Engine
	Storage           storage.Storage
	Settlement        settlement.Module
	Events            events.Sink
	Clock             clock.Clock
	Logger            *slog.Logger
	SyncMaxIterations int
}

// NewService creates a guard service. Engine and Storage are required; the
// other collaborators fall back to no-op or default implementations.
func NewService(opts Options) *Service {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Events
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Service{
		engine:            opts.Engine,
		storage:           opts.Storage,
		settlement:        opts.Settlement,
		events:            sink,
		clk:               clk,
		logger:            logger,
		syncMaxIterations: opts.SyncMaxIterations,
	}
}

// Hydrate loads all stored limiter registrations into the breaker engine.
// Called once at startup so registrations survive restarts even though the
// window state does not.
func (s *Service) Hydrate(ctx context.Context) error {
	limiters, err := s.storage.Limiters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load limiters: %w", err)
	}

	for _, lc := range limiters {
		if err := s.engine.Create(lc.Identifier, lc.MinRetainedBps, lc.LimitBeginThreshold); err != nil {
			return fmt.Errorf("failed to hydrate limiter %s: %w", lc.Identifier, err)
		}
		if lc.Overridden {
			if err := s.engine.SetOverridden(lc.Identifier, true); err != nil {
				return fmt.Errorf("failed to restore override for %s: %w", lc.Identifier, err)
			}
		}
	}

	s.logger.Info("hydrated limiters from storage", "count", len(limiters))
	return nil
}

// CreateLimiter registers a new limiter for an identifier.
func (s *Service) CreateLimiter(ctx context.Context, req *models.CreateLimiterRequest) (*models.CreateLimiterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid limiter registration", err)
	}
	req.Normalize()

	if err := s.engine.Create(req.Identifier, req.MinRetainedBps, req.LimitBeginThreshold); err != nil {
		switch {
		case errors.Is(err, breaker.ErrInvalidThreshold):
			return nil, NewValidationError("min retained bps must be in (0, 10000]", err)
		case errors.Is(err, breaker.ErrAlreadyInitialized):
			return nil, NewConflictError(fmt.Sprintf("limiter '%s' already exists", req.Identifier))
		default:
			return nil, NewInternalError("failed to create limiter", err)
		}
	}

	now := s.clk.Now()
	lc := &models.LimiterConfig{
		Identifier:          req.Identifier,
		MinRetainedBps:      req.MinRetainedBps,
		LimitBeginThreshold: req.LimitBeginThreshold,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.storage.SaveLimiter(ctx, lc); err != nil {
		return nil, NewInternalError("failed to persist limiter", err)
	}

	s.logger.Info("created limiter",
		"identifier", req.Identifier,
		"min_retained_bps", req.MinRetainedBps,
		"limit_begin_threshold", req.LimitBeginThreshold,
	)

	return &models.CreateLimiterResponse{
		Identifier: req.Identifier,
		Message:    fmt.Sprintf("Limiter %s registered successfully", req.Identifier),
		CreatedAt:  now,
	}, nil
}

// ReconfigureLimiter overwrites the thresholds of an existing limiter. The
// accumulated window state is left untouched.
func (s *Service) ReconfigureLimiter(ctx context.Context, identifier string, req *models.ReconfigureLimiterRequest) (*models.LimiterConfig, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid limiter configuration", err)
	}

	existing, err := s.storage.GetLimiter(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewLimiterNotFoundError(identifier)
		}
		return nil, NewInternalError("failed to load limiter", err)
	}

	if err := s.engine.Reconfigure(identifier, req.MinRetainedBps, req.LimitBeginThreshold); err != nil {
		switch {
		case errors.Is(err, breaker.ErrInvalidThreshold):
			return nil, NewValidationError("min retained bps must be in (0, 10000]", err)
		case errors.Is(err, breaker.ErrNotInitialized):
			return nil, NewLimiterNotFoundError(identifier)
		default:
			return nil, NewInternalError("failed to reconfigure limiter", err)
		}
	}

	existing.MinRetainedBps = req.MinRetainedBps
	existing.LimitBeginThreshold = req.LimitBeginThreshold
	existing.UpdatedAt = s.clk.Now()
	if err := s.storage.SaveLimiter(ctx, existing); err != nil {
		return nil, NewInternalError("failed to persist limiter", err)
	}

	s.logger.Info("reconfigured limiter",
		"identifier", identifier,
		"min_retained_bps", req.MinRetainedBps,
		"limit_begin_threshold", req.LimitBeginThreshold,
	)

	return existing, nil
}

// SetOverride toggles the manual bypass for a limiter.
func (s *Service) SetOverride(ctx context.Context, identifier string, overridden bool) error {
	if err := s.engine.SetOverridden(identifier, overridden); err != nil {
		if errors.Is(err, breaker.ErrNotInitialized) {
			return NewLimiterNotFoundError(identifier)
		}
		return NewInternalError("failed to set override", err)
	}

	if err := s.storage.SetOverridden(ctx, identifier, overridden); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewLimiterNotFoundError(identifier)
		}
		return NewInternalError("failed to persist override", err)
	}

	s.logger.Info("set limiter override", "identifier", identifier, "overridden", overridden)
	return nil
}

// RecordFlow ingests one signed flow event, evaluates the limiter, and when
// the flow trips the breaker routes the rejected operation to the settlement
// module and records a breach audit entry. Flows for untracked identifiers
// are accepted and ignored so instrumentation can be unconditional.
func (s *Service) RecordFlow(ctx context.Context, identifier string, req *models.RecordFlowRequest) (*models.FlowResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid flow", err)
	}

	status, tracked := s.engine.RecordChange(identifier, req.Amount)
	result := &models.FlowResult{
		Identifier: identifier,
		Tracked:    tracked,
		Status:     status.String(),
	}
	if !tracked {
		return result, nil
	}

	snap, _ := s.engine.Snapshot(identifier)
	result.SettledTotal = snap.SettledTotal
	result.InWindowTotal = snap.InWindowTotal
	result.Projected = snap.SettledTotal + snap.InWindowTotal

	now := s.clk.Now()
	eventType := events.TypeParameterIncreased
	if req.Amount < 0 {
		eventType = events.TypeParameterDecreased
	}
	s.events.Publish(ctx, events.Event{
		Type:       eventType,
		Identifier: identifier,
		Amount:     req.Amount,
		Status:     result.Status,
		OccurredAt: now,
	})

	if status != breaker.StatusTriggered {
		return result, nil
	}

	// The flow tripped the breaker: park the rejected operation with the
	// settlement module and record the breach.
	var handle string
	if s.settlement != nil {
		action, err := s.settlement.Defer(ctx, identifier, req.Amount, req.Reference)
		if err != nil {
			s.logger.Error("failed to defer settlement action", "identifier", identifier, "error", err)
		} else {
			handle = action.Handle
		}
	}
	result.SettlementHandle = handle

	breach := &models.BreachRecord{
		ID:               uuid.New().String(),
		Identifier:       identifier,
		Amount:           req.Amount,
		SettledTotal:     snap.SettledTotal,
		InWindowTotal:    snap.InWindowTotal,
		SettlementHandle: handle,
		OccurredAt:       now,
	}
	if err := s.storage.AppendBreach(ctx, breach); err != nil {
		s.logger.Error("failed to record breach", "identifier", identifier, "error", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:             events.TypeRateLimited,
		Identifier:       identifier,
		Amount:           req.Amount,
		Status:           result.Status,
		SettlementHandle: handle,
		OccurredAt:       now,
	})

	s.logger.Warn("limiter triggered",
		"identifier", identifier,
		"amount", req.Amount,
		"settled_total", snap.SettledTotal,
		"in_window_total", snap.InWindowTotal,
		"settlement_handle", handle,
	)

	return result, nil
}

// LimiterStatus evaluates a limiter without mutating it.
func (s *Service) LimiterStatus(ctx context.Context, identifier string) (*models.StatusResponse, error) {
	status := s.engine.Status(identifier)
	return &models.StatusResponse{
		Identifier:  identifier,
		Status:      status.String(),
		Initialized: status != breaker.StatusUninitialized,
	}, nil
}

// InspectLimiter returns the durable registration plus live window state.
func (s *Service) InspectLimiter(ctx context.Context, identifier string) (*models.LimiterResponse, error) {
	lc, err := s.storage.GetLimiter(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewLimiterNotFoundError(identifier)
		}
		return nil, NewInternalError("failed to load limiter", err)
	}

	snap, ok := s.engine.Snapshot(identifier)
	if !ok {
		return nil, NewLimiterNotFoundError(identifier)
	}

	buckets := make([]models.BucketInfo, len(snap.Buckets))
	for i, b := range snap.Buckets {
		buckets[i] = models.BucketInfo{Timestamp: b.Timestamp, Delta: b.Delta}
	}

	return &models.LimiterResponse{
		Config:        *lc,
		Status:        s.engine.Status(identifier).String(),
		SettledTotal:  snap.SettledTotal,
		InWindowTotal: snap.InWindowTotal,
		ListHead:      snap.ListHead,
		ListTail:      snap.ListTail,
		Buckets:       buckets,
	}, nil
}

// ListLimiters returns all registered limiters.
func (s *Service) ListLimiters(ctx context.Context) (*models.ListLimitersResponse, error) {
	limiters, err := s.storage.Limiters(ctx)
	if err != nil {
		return nil, NewInternalError("failed to list limiters", err)
	}

	configs := make([]models.LimiterConfig, len(limiters))
	for i, lc := range limiters {
		configs[i] = *lc
	}

	return &models.ListLimitersResponse{
		Limiters:   configs,
		TotalCount: len(configs),
	}, nil
}

// ClearBacklog evicts aged buckets for an identifier. A request without an
// explicit budget uses the service default; exhausting the budget leaves a
// valid chain for a follow-up call.
func (s *Service) ClearBacklog(ctx context.Context, identifier string, req *models.SyncRequest) (*models.SyncResponse, error) {
	maxIterations := s.syncMaxIterations
	if req != nil {
		if err := req.Validate(); err != nil {
			return nil, NewValidationError("invalid sync request", err)
		}
		if req.MaxIterations > 0 {
			maxIterations = req.MaxIterations
		}
	}

	evicted, err := s.engine.Sync(identifier, maxIterations)
	if err != nil {
		if errors.Is(err, breaker.ErrNotInitialized) {
			return nil, NewLimiterNotFoundError(identifier)
		}
		return nil, NewInternalError("failed to sync limiter", err)
	}

	return &models.SyncResponse{
		Identifier: identifier,
		Evicted:    evicted,
	}, nil
}

// Breaches returns the breach audit trail for an identifier.
func (s *Service) Breaches(ctx context.Context, identifier string) (*models.BreachesResponse, error) {
	if !s.engine.IsInitialized(identifier) {
		return nil, NewLimiterNotFoundError(identifier)
	}

	records, err := s.storage.Breaches(ctx, identifier)
	if err != nil {
		return nil, NewInternalError("failed to load breaches", err)
	}

	breaches := make([]models.BreachRecord, len(records))
	for i, record := range records {
		breaches[i] = *record
	}

	return &models.BreachesResponse{
		Identifier: identifier,
		Breaches:   breaches,
		TotalCount: len(breaches),
	}, nil
}

// PendingSettlements lists deferred actions that have not executed yet.
func (s *Service) PendingSettlements(ctx context.Context) ([]*settlement.Action, error) {
	if s.settlement == nil {
		return []*settlement.Action{}, nil
	}
	pending, err := s.settlement.Pending(ctx)
	if err != nil {
		return nil, NewInternalError("failed to list settlements", err)
	}
	return pending, nil
}

// ExecuteSettlement releases a deferred action by handle.
func (s *Service) ExecuteSettlement(ctx context.Context, handle string) (*settlement.Action, error) {
	if s.settlement == nil {
		return nil, NewNotFoundError("settlement module is not configured")
	}
	action, err := s.settlement.Execute(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrUnknownHandle):
			return nil, NewNotFoundError(fmt.Sprintf("settlement '%s' not found", handle))
		case errors.Is(err, settlement.ErrNotReady):
			return nil, NewSettlementNotReadyError("settlement minimum delay has not elapsed")
		case errors.Is(err, settlement.ErrAlreadyExecuted):
			return nil, NewConflictError(fmt.Sprintf("settlement '%s' already executed", handle))
		default:
			return nil, NewInternalError("failed to execute settlement", err)
		}
	}
	return action, nil
}

// GetSettlement returns a deferred action by handle.
func (s *Service) GetSettlement(ctx context.Context, handle string) (*settlement.Action, error) {
	if s.settlement == nil {
		return nil, NewNotFoundError("settlement module is not configured")
	}
	action, err := s.settlement.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, settlement.ErrUnknownHandle) {
			return nil, NewNotFoundError(fmt.Sprintf("settlement '%s' not found", handle))
		}
		return nil, NewInternalError("failed to load settlement", err)
	}
	return action, nil
}

// SettlementToResponse converts a settlement action to its API shape.
func SettlementToResponse(action *settlement.Action) models.SettlementResponse {
	return models.SettlementResponse{
		Handle:       action.Handle,
		Identifier:   action.Identifier,
		Amount:       action.Amount,
		Reference:    action.Reference,
		DeferredAt:   action.DeferredAt,
		ExecutableAt: action.ExecutableAt,
		Executed:     action.Executed,
	}
}
