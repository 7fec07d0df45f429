package settlement

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"flowguard/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T) (*DelayedModule, *clock.VirtualClock) {
	t.Helper()
	clk := clock.NewVirtualClock(time.Unix(1_700_000_000, 0))
	mod := NewDelayedModule(time.Hour, clk, slog.Default())
	return mod, clk
}

func TestDelayedModule_DeferAndGet(t *testing.T) {
	mod, clk := newTestModule(t)
	ctx := context.Background()

	action, err := mod.Defer(ctx, "pool-eth", -2000, "withdrawal-42")
	require.NoError(t, err)
	assert.NotEmpty(t, action.Handle)
	assert.Equal(t, "pool-eth", action.Identifier)
	assert.Equal(t, int64(-2000), action.Amount)
	assert.Equal(t, "withdrawal-42", action.Reference)
	assert.Equal(t, clk.Now(), action.DeferredAt)
	assert.Equal(t, clk.Now().Add(time.Hour), action.ExecutableAt)
	assert.False(t, action.Executed)

	got, err := mod.Get(ctx, action.Handle)
	require.NoError(t, err)
	assert.Equal(t, action.Handle, got.Handle)

	_, err = mod.Get(ctx, "no-such-handle")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestDelayedModule_ExecuteBeforeDelay(t *testing.T) {
	mod, clk := newTestModule(t)
	ctx := context.Background()

	action, err := mod.Defer(ctx, "pool-eth", -2000, "")
	require.NoError(t, err)

	_, err = mod.Execute(ctx, action.Handle)
	assert.ErrorIs(t, err, ErrNotReady)

	// One second short of the minimum delay still fails
	clk.Advance(time.Hour - time.Second)
	_, err = mod.Execute(ctx, action.Handle)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDelayedModule_ExecuteAfterDelay(t *testing.T) {
	mod, clk := newTestModule(t)
	ctx := context.Background()

	action, err := mod.Defer(ctx, "pool-eth", -2000, "")
	require.NoError(t, err)

	clk.Advance(time.Hour)

	executed, err := mod.Execute(ctx, action.Handle)
	require.NoError(t, err)
	assert.True(t, executed.Executed)
	assert.Equal(t, clk.Now(), executed.ExecutedAt)

	// Repeat execution is rejected
	_, err = mod.Execute(ctx, action.Handle)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestDelayedModule_ExecuteUnknownHandle(t *testing.T) {
	mod, _ := newTestModule(t)

	_, err := mod.Execute(context.Background(), "no-such-handle")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestDelayedModule_Pending(t *testing.T) {
	mod, clk := newTestModule(t)
	ctx := context.Background()

	first, err := mod.Defer(ctx, "pool-eth", -100, "")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	second, err := mod.Defer(ctx, "pool-btc", -200, "")
	require.NoError(t, err)

	pending, err := mod.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Oldest first
	assert.Equal(t, first.Handle, pending[0].Handle)
	assert.Equal(t, second.Handle, pending[1].Handle)

	// Executed actions drop out of the pending list
	clk.Advance(time.Hour)
	_, err = mod.Execute(ctx, first.Handle)
	require.NoError(t, err)

	pending, err = mod.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Handle, pending[0].Handle)
}

func TestDelayedModule_ZeroDelayExecutesImmediately(t *testing.T) {
	clk := clock.NewVirtualClock(time.Unix(1_700_000_000, 0))
	mod := NewDelayedModule(0, clk, nil)
	ctx := context.Background()

	action, err := mod.Defer(ctx, "pool-eth", -2000, "")
	require.NoError(t, err)

	executed, err := mod.Execute(ctx, action.Handle)
	require.NoError(t, err)
	assert.True(t, executed.Executed)
}
