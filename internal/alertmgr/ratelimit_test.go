package alertmgr

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	l := newRateLimiter(zerolog.Nop(), 2, time.Minute)
	clk := newTestClock()
	l.now = clk.Now

	assert.True(t, l.Allow("device-001|threshold_exceeded"))
	assert.True(t, l.Allow("device-001|threshold_exceeded"))
	assert.False(t, l.Allow("device-001|threshold_exceeded"))

	// Independent keys have independent budgets
	assert.True(t, l.Allow("device-002|threshold_exceeded"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	l := newRateLimiter(zerolog.Nop(), 1, time.Minute)
	clk := newTestClock()
	l.now = clk.Now

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	clk.Advance(61 * time.Second)
	assert.True(t, l.Allow("k"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	l := newRateLimiter(zerolog.Nop(), 5, time.Minute)
	clk := newTestClock()
	l.now = clk.Now

	l.Allow("stale")
	clk.Advance(2 * time.Minute)
	l.Allow("fresh")

	l.Cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.events, "stale")
	assert.Contains(t, l.events, "fresh")
}
