package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// LimiterConfig is the durable registration of one rate limiter. The volatile
// window state (bucket chain, totals) lives in the breaker engine and is not
// persisted; this record is what survives a restart.
type LimiterConfig struct {
	// Identifier names the tracked resource, e.g. a pool or asset id.
	Identifier string `json:"identifier" yaml:"identifier"`

	// MinRetainedBps is the minimum fraction of the settled total, in basis
	// points, that must remain after projecting the window's net change.
	MinRetainedBps int64 `json:"min_retained_bps" yaml:"min_retained_bps"`

	// LimitBeginThreshold disables enforcement while the settled total is
	// below this magnitude (bootstrapping / dust exemption).
	LimitBeginThreshold int64 `json:"limit_begin_threshold" yaml:"limit_begin_threshold"`

	// Overridden reports whether the manual bypass is active.
	Overridden bool `json:"overridden" yaml:"overridden"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the registration fields.
func (lc *LimiterConfig) Validate() error {
	if strings.TrimSpace(lc.Identifier) == "" {
		return errors.New("identifier cannot be empty")
	}
	if lc.MinRetainedBps <= 0 || lc.MinRetainedBps > BpsDenominator {
		return fmt.Errorf("min retained bps must be in (0, %d]", BpsDenominator)
	}
	if lc.LimitBeginThreshold < 0 {
		return errors.New("limit begin threshold cannot be negative")
	}
	return nil
}

// BreachRecord is one audit entry for a triggered limiter: the flow event
// that tripped the breach and the aggregate state at that moment.
type BreachRecord struct {
	ID               string    `json:"id"`
	Identifier       string    `json:"identifier"`
	Amount           int64     `json:"amount"`
	SettledTotal     int64     `json:"settled_total"`
	InWindowTotal    int64     `json:"in_window_total"`
	SettlementHandle string    `json:"settlement_handle,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
