package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magpie-trading/magpie/internal/strategy"
)

func TestDailyCapsLimit(t *testing.T) {
	c := newDailyCaps()

	assert.True(t, c.Allow(strategy.UltraEarly, 2))
	c.Inc(strategy.UltraEarly)
	assert.True(t, c.Allow(strategy.UltraEarly, 2))
	c.Inc(strategy.UltraEarly)
	assert.False(t, c.Allow(strategy.UltraEarly, 2))

	// Other strategies keep their own budget.
	assert.True(t, c.Allow(strategy.WhaleCommunity, 2))
}

func TestDailyCapsUnlimitedWhenZero(t *testing.T) {
	c := newDailyCaps()
	for i := 0; i < 100; i++ {
		c.Inc(strategy.TrendAnalyst)
	}
	assert.True(t, c.Allow(strategy.TrendAnalyst, 0))
}

func TestDailyCapsRollAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC)
	c := newDailyCaps()
	c.now = func() time.Time { return now }

	c.Inc(strategy.UltraEarly)
	c.Inc(strategy.UltraEarly)
	assert.False(t, c.Allow(strategy.UltraEarly, 2))

	now = now.Add(20 * time.Minute) // past midnight UTC
	assert.True(t, c.Allow(strategy.UltraEarly, 2))
	assert.Equal(t, 0, c.Count(strategy.UltraEarly))
}
