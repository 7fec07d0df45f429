package storage

import (
	"context"

	"flowguard/internal/models"
)

// Storage defines the interface for limiter registration and breach audit
// persistence. It provides a clean abstraction that can be implemented by
// different backends such as JSON files, databases, or external APIs.
//
// Only the durable registration is stored here; the volatile window state
// (bucket chain, running totals) is rebuilt by the breaker engine.
type Storage interface {
	// Limiters returns all registered limiter configurations
	Limiters(ctx context.Context) ([]*models.LimiterConfig, error)

	// GetLimiter retrieves a limiter configuration by its identifier.
	// Returns ErrNotFound if no limiter is registered for the identifier.
	GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error)

	// SaveLimiter stores or updates a limiter configuration
	SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error

	// SetOverridden toggles the manual bypass flag on a stored limiter.
	// Returns ErrNotFound if the limiter does not exist.
	SetOverridden(ctx context.Context, identifier string, overridden bool) error

	// AppendBreach records one breach audit entry
	AppendBreach(ctx context.Context, breach *models.BreachRecord) error

	// Breaches returns the breach audit trail for an identifier, most
	// recent first
	Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error)

	// Ping verifies the storage backend is reachable and operational
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (json, database, etc.)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// CacheTTL specifies how long to cache data in memory
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}
