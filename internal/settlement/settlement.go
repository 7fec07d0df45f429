// Package settlement holds actions rejected by a triggered limiter until an
// operator (or a downstream process) executes them after a minimum delay.
// Each deferred action gets an opaque handle that callers use to query and
// execute it later.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flowguard/internal/clock"

	"github.com/google/uuid"
)

var (
	// ErrNotReady is returned when an action is executed before its minimum
	// delay has elapsed.
	ErrNotReady = errors.New("settlement action not ready for execution")

	// ErrUnknownHandle is returned for handles that do not match any
	// deferred action.
	ErrUnknownHandle = errors.New("unknown settlement handle")

	// ErrAlreadyExecuted is returned when an action is executed twice.
	ErrAlreadyExecuted = errors.New("settlement action already executed")
)

// Action is one deferred operation awaiting execution.
type Action struct {
	Handle       string    `json:"handle"`
	Identifier   string    `json:"identifier"`
	Amount       int64     `json:"amount"`
	Reference    string    `json:"reference,omitempty"`
	DeferredAt   time.Time `json:"deferred_at"`
	ExecutableAt time.Time `json:"executable_at"`
	Executed     bool      `json:"executed"`
	ExecutedAt   time.Time `json:"executed_at,omitempty"`
}

// Module is the deferred-action collaborator. Rejected flows are handed to
// Defer; Execute releases them once the minimum delay has passed.
type Module interface {
	// Defer parks an action and returns it with a fresh handle
	Defer(ctx context.Context, identifier string, amount int64, reference string) (*Action, error)

	// Execute releases a deferred action. Returns ErrUnknownHandle for
	// unrecognized handles, ErrNotReady before the minimum delay elapses,
	// and ErrAlreadyExecuted on repeat execution.
	Execute(ctx context.Context, handle string) (*Action, error)

	// Get returns a deferred action by handle
	Get(ctx context.Context, handle string) (*Action, error)

	// Pending returns all actions that have not been executed yet, oldest
	// first
	Pending(ctx context.Context) ([]*Action, error)
}

// DelayedModule is an in-memory Module that enforces a fixed minimum delay
// between deferral and execution.
type DelayedModule struct {
	minDelay time.Duration
	clk      clock.Clock
	logger   *slog.Logger

	mu      sync.RWMutex
	actions map[string]*Action
}

// NewDelayedModule creates a module enforcing the given minimum delay. A nil
// clock falls back to the real clock.
func NewDelayedModule(minDelay time.Duration, clk clock.Clock, logger *slog.Logger) *DelayedModule {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayedModule{
		minDelay: minDelay,
		clk:      clk,
		logger:   logger,
		actions:  make(map[string]*Action),
	}
}

// Defer parks an action and returns it with a fresh handle.
func (d *DelayedModule) Defer(ctx context.Context, identifier string, amount int64, reference string) (*Action, error) {
	now := d.clk.Now()
	action := &Action{
		Handle:       uuid.New().String(),
		Identifier:   identifier,
		Amount:       amount,
		Reference:    reference,
		DeferredAt:   now,
		ExecutableAt: now.Add(d.minDelay),
	}

	d.mu.Lock()
	d.actions[action.Handle] = action
	d.mu.Unlock()

	d.logger.Info("deferred settlement action",
		"handle", action.Handle,
		"identifier", identifier,
		"amount", amount,
		"executable_at", action.ExecutableAt,
	)

	result := *action
	return &result, nil
}

// Execute releases a deferred action once its minimum delay has elapsed.
func (d *DelayedModule) Execute(ctx context.Context, handle string) (*Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	action, exists := d.actions[handle]
	if !exists {
		return nil, ErrUnknownHandle
	}
	if action.Executed {
		return nil, ErrAlreadyExecuted
	}

	now := d.clk.Now()
	if now.Before(action.ExecutableAt) {
		return nil, ErrNotReady
	}

	action.Executed = true
	action.ExecutedAt = now

	d.logger.Info("executed settlement action",
		"handle", handle,
		"identifier", action.Identifier,
		"amount", action.Amount,
	)

	result := *action
	return &result, nil
}

// Get returns a deferred action by handle.
func (d *DelayedModule) Get(ctx context.Context, handle string) (*Action, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	action, exists := d.actions[handle]
	if !exists {
		return nil, ErrUnknownHandle
	}

	result := *action
	return &result, nil
}

// Pending returns all unexecuted actions, oldest first.
func (d *DelayedModule) Pending(ctx context.Context) ([]*Action, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pending := []*Action{}
	for _, action := range d.actions {
		if !action.Executed {
			actionCopy := *action
			pending = append(pending, &actionCopy)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].DeferredAt.Before(pending[j].DeferredAt)
	})

	return pending, nil
}
