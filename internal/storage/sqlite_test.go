package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"flowguard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStorage(t *testing.T) Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := NewSQLiteStorage(Config{Type: "sqlite", ConnectionString: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSQLiteStorage_LimiterRoundTrip(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()

	lc := &models.LimiterConfig{
		Identifier:          "pool-eth",
		MinRetainedBps:      7000,
		LimitBeginThreshold: 10000,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	require.NoError(t, storage.SaveLimiter(ctx, lc))

	retrieved, err := storage.GetLimiter(ctx, "pool-eth")
	require.NoError(t, err)
	assert.Equal(t, "pool-eth", retrieved.Identifier)
	assert.Equal(t, int64(7000), retrieved.MinRetainedBps)
	assert.Equal(t, int64(10000), retrieved.LimitBeginThreshold)
	assert.False(t, retrieved.Overridden)
	assert.False(t, retrieved.CreatedAt.IsZero())

	_, err = storage.GetLimiter(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	// Upsert path
	lc.MinRetainedBps = 8500
	require.NoError(t, storage.SaveLimiter(ctx, lc))
	retrieved, err = storage.GetLimiter(ctx, "pool-eth")
	require.NoError(t, err)
	assert.Equal(t, int64(8500), retrieved.MinRetainedBps)

	limiters, err := storage.Limiters(ctx)
	require.NoError(t, err)
	assert.Len(t, limiters, 1)
}

func TestSQLiteStorage_SetOverridden(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveLimiter(ctx, &models.LimiterConfig{
		Identifier:     "pool-eth",
		MinRetainedBps: 7000,
	}))

	require.NoError(t, storage.SetOverridden(ctx, "pool-eth", true))

	retrieved, err := storage.GetLimiter(ctx, "pool-eth")
	require.NoError(t, err)
	assert.True(t, retrieved.Overridden)

	assert.ErrorIs(t, storage.SetOverridden(ctx, "unknown", true), ErrNotFound)
}

func TestSQLiteStorage_Breaches(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveLimiter(ctx, &models.LimiterConfig{
		Identifier:     "pool-eth",
		MinRetainedBps: 7000,
	}))

	breaches, err := storage.Breaches(ctx, "pool-eth")
	require.NoError(t, err)
	assert.Empty(t, breaches)

	require.NoError(t, storage.AppendBreach(ctx, &models.BreachRecord{
		ID:               "breach-1",
		Identifier:       "pool-eth",
		Amount:           -2000,
		SettledTotal:     5000,
		InWindowTotal:    -2000,
		SettlementHandle: "handle-1",
		OccurredAt:       time.Now().Add(-time.Hour),
	}))
	require.NoError(t, storage.AppendBreach(ctx, &models.BreachRecord{
		ID:         "breach-2",
		Identifier: "pool-eth",
		Amount:     -100,
		OccurredAt: time.Now(),
	}))

	breaches, err = storage.Breaches(ctx, "pool-eth")
	require.NoError(t, err)
	require.Len(t, breaches, 2)
	assert.Equal(t, "breach-2", breaches[0].ID)
	assert.Equal(t, "breach-1", breaches[1].ID)
	assert.Equal(t, "handle-1", breaches[1].SettlementHandle)
	assert.Equal(t, int64(5000), breaches[1].SettledTotal)
}

func TestSQLiteStorage_Ping(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	assert.NoError(t, storage.Ping(context.Background()))
}

func TestNewSQLiteStorage_MissingDSN(t *testing.T) {
	_, err := NewSQLiteStorage(Config{Type: "sqlite"})
	assert.Error(t, err)
}
