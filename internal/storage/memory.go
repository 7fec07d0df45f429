package storage

import (
	"context"
	"sort"
	"sync"

	"flowguard/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development, testing, and scenarios where data
// persistence is not required. It provides fast access but data is lost on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	limiters map[string]*models.LimiterConfig
	breaches map[string][]*models.BreachRecord // key: identifier
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		limiters: make(map[string]*models.LimiterConfig),
		breaches: make(map[string][]*models.BreachRecord),
	}, nil
}

// Limiters returns all registered limiter configurations
func (m *MemoryStorage) Limiters(ctx context.Context) ([]*models.LimiterConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limiters := make([]*models.LimiterConfig, 0, len(m.limiters))
	for _, lc := range m.limiters {
		// Return a copy to prevent external modification
		lcCopy := *lc
		limiters = append(limiters, &lcCopy)
	}

	sort.Slice(limiters, func(i, j int) bool {
		return limiters[i].Identifier < limiters[j].Identifier
	})

	return limiters, nil
}

// GetLimiter retrieves a limiter configuration by its identifier
func (m *MemoryStorage) GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lc, exists := m.limiters[identifier]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy
	lcCopy := *lc
	return &lcCopy, nil
}

// SaveLimiter stores or updates a limiter configuration
func (m *MemoryStorage) SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a copy to prevent external modification
	lcCopy := *limiter
	m.limiters[limiter.Identifier] = &lcCopy

	return nil
}

// SetOverridden toggles the manual bypass flag on a stored limiter
func (m *MemoryStorage) SetOverridden(ctx context.Context, identifier string, overridden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lc, exists := m.limiters[identifier]
	if !exists {
		return ErrNotFound
	}

	lc.Overridden = overridden
	return nil
}

// AppendBreach records one breach audit entry
func (m *MemoryStorage) AppendBreach(ctx context.Context, breach *models.BreachRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	breachCopy := *breach
	m.breaches[breach.Identifier] = append(m.breaches[breach.Identifier], &breachCopy)

	return nil
}

// Breaches returns the breach audit trail for an identifier, most recent first
func (m *MemoryStorage) Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.breaches[identifier]
	if !exists {
		return []*models.BreachRecord{}, nil
	}

	// Return copies to prevent external modification
	result := make([]*models.BreachRecord, len(records))
	for i, record := range records {
		recordCopy := *record
		result[i] = &recordCopy
	}

	// Sort by occurrence time (latest first)
	sort.Slice(result, func(i, j int) bool {
		return result[j].OccurredAt.Before(result[i].OccurredAt)
	})

	return result, nil
}

// Ping verifies the storage backend is reachable and operational.
func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

// Close closes the storage connection and cleans up resources
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Clear all data
	m.limiters = make(map[string]*models.LimiterConfig)
	m.breaches = make(map[string][]*models.BreachRecord)

	return nil
}
