package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVirtualClock_AdvanceAndSet(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := NewVirtualClock(start)

	assert.Equal(t, start, clk.Now())

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())
	assert.Equal(t, 90*time.Minute, clk.Since(start))

	clk.Advance(-time.Hour)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now(), "negative advance is ignored")

	jump := start.Add(48 * time.Hour)
	clk.Set(jump)
	assert.Equal(t, jump, clk.Now())
}

func TestRealClock_Since(t *testing.T) {
	clk := NewRealClock()
	earlier := clk.Now()
	assert.GreaterOrEqual(t, clk.Since(earlier), time.Duration(0))
}
