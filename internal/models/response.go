// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent
// formatting: machine-readable error codes, RFC3339 timestamps, and optional
// fields marked omitempty.
package models

import (
	"time"
)

// FlowResult reports the outcome of recording one flow event: the status
// evaluated after the change and the aggregate state backing that decision.
// When the flow tripped the breaker, SettlementHandle correlates the deferred
// action routed to the settlement module.
type FlowResult struct {
	Identifier       string `json:"identifier"`
	Tracked          bool   `json:"tracked"`
	Status           string `json:"status"`
	SettledTotal     int64  `json:"settled_total"`
	InWindowTotal    int64  `json:"in_window_total"`
	Projected        int64  `json:"projected"`
	SettlementHandle string `json:"settlement_handle,omitempty"`
}

// StatusResponse answers a status query without exposing bucket internals.
type StatusResponse struct {
	Identifier  string `json:"identifier"`
	Status      string `json:"status"`
	Initialized bool   `json:"initialized"`
}

// LimiterResponse is the diagnostic inspection view: durable registration
// plus the live aggregate state and bucket chain.
type LimiterResponse struct {
	Config        LimiterConfig `json:"config"`
	Status        string        `json:"status"`
	SettledTotal  int64         `json:"settled_total"`
	InWindowTotal int64         `json:"in_window_total"`
	ListHead      int64         `json:"list_head"`
	ListTail      int64         `json:"list_tail"`
	Buckets       []BucketInfo  `json:"buckets"`
}

// BucketInfo is one tick bucket in head-to-tail order.
type BucketInfo struct {
	Timestamp int64 `json:"timestamp"`
	Delta     int64 `json:"delta"`
}

type ListLimitersResponse struct {
	Limiters   []LimiterConfig `json:"limiters"`
	TotalCount int             `json:"total_count"`
}

// SyncResponse reports how much backlog an explicit sync call cleared.
type SyncResponse struct {
	Identifier string `json:"identifier"`
	Evicted    int    `json:"evicted"`
}

type CreateLimiterResponse struct {
	Identifier string    `json:"identifier"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type BreachesResponse struct {
	Identifier string         `json:"identifier"`
	Breaches   []BreachRecord `json:"breaches"`
	TotalCount int            `json:"total_count"`
}

// SettlementResponse describes one deferred action held by the settlement
// module.
type SettlementResponse struct {
	Handle       string    `json:"handle"`
	Identifier   string    `json:"identifier"`
	Amount       int64     `json:"amount"`
	Reference    string    `json:"reference,omitempty"`
	DeferredAt   time.Time `json:"deferred_at"`
	ExecutableAt time.Time `json:"executable_at"`
	Executed     bool      `json:"executed"`
}

// HealthResponse reports service and dependency health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse provides structured error information with debugging context.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"            // 404: Resource doesn't exist
	ErrorCodeLimiterNotFound    = "LIMITER_NOT_FOUND"    // 404: Limiter doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"          // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"      // 400: Invalid request data
	ErrorCodeValidation         = "VALIDATION_ERROR"     // 422: Input validation failed
	ErrorCodeInternalError      = "INTERNAL_ERROR"       // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"         // 401: Authentication required
	ErrorCodeConflict           = "CONFLICT"             // 409: Resource conflict
	ErrorCodeSettlementNotReady = "SETTLEMENT_NOT_READY" // 409: Minimum delay not elapsed
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"  // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
