package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"flowguard/internal/models"
)

// JSONStorage implements the Storage interface using JSON files for persistence.
// It provides an in-memory cache for performance and supports concurrent access.
type JSONStorage struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
	cacheExpiry  time.Time
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Limiters    []*models.LimiterConfig `json:"limiters"`
	Breaches    []*models.BreachRecord  `json:"breaches"`
	LastUpdated time.Time               `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	cacheTTL := 5 * time.Minute
	if config.CacheTTL != "" {
		if duration, err := time.ParseDuration(config.CacheTTL); err == nil {
			cacheTTL = duration
		}
	}

	storage := &JSONStorage{
		filePath: config.Path,
		cacheTTL: cacheTTL,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		// Create empty JSON file
		emptyData := &JSONData{
			Limiters:    []*models.LimiterConfig{},
			Breaches:    []*models.BreachRecord{},
			LastUpdated: time.Now(),
		}

		return j.saveData(emptyData)
	}
	return nil
}

// loadData loads data from the JSON file with caching.
// It uses double-checked locking: a fast read-lock path for cache hits,
// and a write-lock slow path with re-validation to prevent TOCTOU races.
func (j *JSONStorage) loadData() error {
	// Fast path: cache is still valid.
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	// Slow path: acquire write lock and re-validate before doing any I/O.
	j.mu.Lock()
	defer j.mu.Unlock()

	// Another goroutine may have loaded while we waited for the write lock.
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	// Stat and all subsequent reads are done under the write lock.
	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// If the file hasn't changed, extend the cache and return.
	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	j.data = &data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData saves data to the JSON file
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(j.filePath, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Limiters returns all registered limiter configurations
func (j *JSONStorage) Limiters(ctx context.Context) ([]*models.LimiterConfig, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	// Return copies to prevent external modification
	limiters := make([]*models.LimiterConfig, 0, len(j.data.Limiters))
	for _, lc := range j.data.Limiters {
		lcCopy := *lc
		limiters = append(limiters, &lcCopy)
	}

	sort.Slice(limiters, func(a, b int) bool {
		return limiters[a].Identifier < limiters[b].Identifier
	})

	return limiters, nil
}

// GetLimiter retrieves a limiter configuration by its identifier
func (j *JSONStorage) GetLimiter(ctx context.Context, identifier string) (*models.LimiterConfig, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, lc := range j.data.Limiters {
		if lc.Identifier == identifier {
			// Return a copy
			lcCopy := *lc
			return &lcCopy, nil
		}
	}

	return nil, ErrNotFound
}

// SaveLimiter stores or updates a limiter configuration
func (j *JSONStorage) SaveLimiter(ctx context.Context, limiter *models.LimiterConfig) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	// Find existing limiter
	for i, existing := range j.data.Limiters {
		if existing.Identifier == limiter.Identifier {
			// Update existing
			lcCopy := *limiter
			j.data.Limiters[i] = &lcCopy
			return j.saveData(j.data)
		}
	}

	// Add new limiter
	lcCopy := *limiter
	j.data.Limiters = append(j.data.Limiters, &lcCopy)
	return j.saveData(j.data)
}

// SetOverridden toggles the manual bypass flag on a stored limiter
func (j *JSONStorage) SetOverridden(ctx context.Context, identifier string, overridden bool) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, lc := range j.data.Limiters {
		if lc.Identifier == identifier {
			lc.Overridden = overridden
			lc.UpdatedAt = time.Now()
			return j.saveData(j.data)
		}
	}

	return ErrNotFound
}

// AppendBreach records one breach audit entry
func (j *JSONStorage) AppendBreach(ctx context.Context, breach *models.BreachRecord) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	breachCopy := *breach
	j.data.Breaches = append(j.data.Breaches, &breachCopy)
	return j.saveData(j.data)
}

// Breaches returns the breach audit trail for an identifier, most recent first
func (j *JSONStorage) Breaches(ctx context.Context, identifier string) ([]*models.BreachRecord, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	records := []*models.BreachRecord{}
	for _, breach := range j.data.Breaches {
		if breach.Identifier == identifier {
			breachCopy := *breach
			records = append(records, &breachCopy)
		}
	}

	// Sort by occurrence time (latest first)
	sort.Slice(records, func(a, b int) bool {
		return records[b].OccurredAt.Before(records[a].OccurredAt)
	})

	return records, nil
}

// Ping verifies the storage backend is reachable and operational.
func (j *JSONStorage) Ping(_ context.Context) error {
	return nil
}

// Close closes the storage connection and cleans up resources
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Clear cache
	j.data = nil
	j.cacheExpiry = time.Time{}

	return nil
}
