// Package models - API request types and input validation.
// All incoming request bodies are validated before reaching the service
// layer; validation failures map to 400/422 responses.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// CreateLimiterRequest registers a new limiter for an identifier.
type CreateLimiterRequest struct {
	Identifier          string `json:"identifier"`
	MinRetainedBps      int64  `json:"min_retained_bps"`
	LimitBeginThreshold int64  `json:"limit_begin_threshold"`
}

// Validate checks required fields and value ranges.
func (r *CreateLimiterRequest) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return errors.New("identifier is required")
	}
	if r.MinRetainedBps <= 0 || r.MinRetainedBps > BpsDenominator {
		return fmt.Errorf("min_retained_bps must be in (0, %d]", BpsDenominator)
	}
	if r.LimitBeginThreshold < 0 {
		return errors.New("limit_begin_threshold cannot be negative")
	}
	return nil
}

// Normalize trims surrounding whitespace from the identifier.
func (r *CreateLimiterRequest) Normalize() {
	r.Identifier = strings.TrimSpace(r.Identifier)
}

// ReconfigureLimiterRequest overwrites the threshold fields of an existing
// limiter. Accumulated totals are never touched.
type ReconfigureLimiterRequest struct {
	MinRetainedBps      int64 `json:"min_retained_bps"`
	LimitBeginThreshold int64 `json:"limit_begin_threshold"`
}

func (r *ReconfigureLimiterRequest) Validate() error {
	if r.MinRetainedBps <= 0 || r.MinRetainedBps > BpsDenominator {
		return fmt.Errorf("min_retained_bps must be in (0, %d]", BpsDenominator)
	}
	if r.LimitBeginThreshold < 0 {
		return errors.New("limit_begin_threshold cannot be negative")
	}
	return nil
}

// OverrideRequest toggles the manual bypass for a limiter.
type OverrideRequest struct {
	Overridden bool `json:"overridden"`
}

// RecordFlowRequest reports one signed change of the tracked quantity.
// Positive amounts are inflows, negative amounts outflows. A zero amount is
// rejected as it carries no information.
type RecordFlowRequest struct {
	Amount int64 `json:"amount"`

	// Reference is an optional caller-supplied correlation id carried into
	// the settlement action when the flow is rate limited.
	Reference string `json:"reference,omitempty"`
}

func (r *RecordFlowRequest) Validate() error {
	if r.Amount == 0 {
		return errors.New("amount cannot be zero")
	}
	return nil
}

// SyncRequest clears eviction backlog for a limiter. MaxIterations bounds the
// work done in this call; 0 or absent means unbounded.
type SyncRequest struct {
	MaxIterations int `json:"max_iterations"`
}

func (r *SyncRequest) Validate() error {
	if r.MaxIterations < 0 {
		return errors.New("max_iterations cannot be negative")
	}
	return nil
}
