package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowguard/internal/breaker"
	"flowguard/internal/clock"
	"flowguard/internal/guard"
	"flowguard/internal/models"
)

func setupGuardService(t *testing.T) guard.ServiceInterface {
	t.Helper()
	clk := clock.NewVirtualClock(time.Unix(1_700_000_000, 0))
	engine := breaker.NewEngine(breaker.Config{
		Window: 24 * time.Hour,
		Tick:   time.Hour,
	}, clk)
	return guard.NewService(guard.Options{
		Engine:  engine,
		Storage: setupMemoryStorage(t),
		Clock:   clk,
	})
}

func TestNewInstrumentedGuard(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedGuard(setupGuardService(t))
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
}

func TestInstrumentedGuard_LimiterLifecycle(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedGuard(setupGuardService(t))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = instrumented.CreateLimiter(ctx, &models.CreateLimiterRequest{
		Identifier:          "pool-eth",
		MinRetainedBps:      7000,
		LimitBeginThreshold: 1000,
	})
	require.NoError(t, err)

	result, err := instrumented.RecordFlow(ctx, "pool-eth", &models.RecordFlowRequest{Amount: 500})
	require.NoError(t, err)
	assert.True(t, result.Tracked)

	status, err := instrumented.LimiterStatus(ctx, "pool-eth")
	require.NoError(t, err)
	assert.Equal(t, "inactive", status.Status)

	list, err := instrumented.ListLimiters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)

	detail, err := instrumented.InspectLimiter(ctx, "pool-eth")
	require.NoError(t, err)
	assert.Equal(t, int64(500), detail.InWindowTotal)
}

func TestInstrumentedGuard_ErrorPropagation(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedGuard(setupGuardService(t))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = instrumented.Breaches(ctx, "missing")
	require.Error(t, err)

	var svcErr *guard.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 404, svcErr.StatusCode)
}

func TestInstrumentedGuard_ImplementsInterface(t *testing.T) {
	_ = setupTestProvider(t)

	instrumented, err := NewInstrumentedGuard(setupGuardService(t))
	require.NoError(t, err)

	var _ guard.ServiceInterface = instrumented
}
