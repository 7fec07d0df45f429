package guard

import (
	"context"

	"flowguard/internal/models"
	"flowguard/internal/settlement"
)

// ServiceInterface defines the interface for guard service operations
type ServiceInterface interface {
	// CreateLimiter registers a new limiter for an identifier
	CreateLimiter(ctx context.Context, req *models.CreateLimiterRequest) (*models.CreateLimiterResponse, error)

	// ReconfigureLimiter overwrites the thresholds of an existing limiter
	ReconfigureLimiter(ctx context.Context, identifier string, req *models.ReconfigureLimiterRequest) (*models.LimiterConfig, error)

	// SetOverride toggles the manual bypass for a limiter
	SetOverride(ctx context.Context, identifier string, overridden bool) error

	// RecordFlow ingests one signed flow event and evaluates the limiter
	RecordFlow(ctx context.Context, identifier string, req *models.RecordFlowRequest) (*models.FlowResult, error)

	// LimiterStatus evaluates a limiter without mutating it
	LimiterStatus(ctx context.Context, identifier string) (*models.StatusResponse, error)

	// InspectLimiter returns the durable registration plus live window state
	InspectLimiter(ctx context.Context, identifier string) (*models.LimiterResponse, error)

	// ListLimiters returns all registered limiters
	ListLimiters(ctx context.Context) (*models.ListLimitersResponse, error)

	// ClearBacklog evicts aged buckets for an identifier, bounded per call
	ClearBacklog(ctx context.Context, identifier string, req *models.SyncRequest) (*models.SyncResponse, error)

	// Breaches returns the breach audit trail for an identifier
	Breaches(ctx context.Context, identifier string) (*models.BreachesResponse, error)

	// PendingSettlements lists deferred actions that have not executed yet
	PendingSettlements(ctx context.Context) ([]*settlement.Action, error)

	// ExecuteSettlement releases a deferred action by handle
	ExecuteSettlement(ctx context.Context, handle string) (*settlement.Action, error)

	// GetSettlement returns a deferred action by handle
	GetSettlement(ctx context.Context, handle string) (*settlement.Action, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
