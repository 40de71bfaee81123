package orchestrator

import (
	"sync"
	"time"

	"github.com/magpie-trading/magpie/internal/strategy"
)

// dailyCaps counts confirmed buys per strategy within the current UTC day.
// The window rolls lazily on the first check after midnight.
type dailyCaps struct {
	mu     sync.Mutex
	dayKey string
	counts map[strategy.Strategy]int

	now func() time.Time
}

func newDailyCaps() *dailyCaps {
	return &dailyCaps{
		counts: make(map[strategy.Strategy]int),
		now:    time.Now,
	}
}

func (c *dailyCaps) roll() {
	today := c.now().UTC().Format("2006-01-02")
	if c.dayKey != today {
		c.dayKey = today
		c.counts = make(map[strategy.Strategy]int)
	}
}

// Allow reports whether the strategy may open another position today.
// maxTrades <= 0 means unlimited.
func (c *dailyCaps) Allow(strat strategy.Strategy, maxTrades int) bool {
	if maxTrades <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll()
	return c.counts[strat] < maxTrades
}

// Inc records one confirmed buy. Called only after the fill is confirmed so
// rejected and unknown attempts do not consume the budget.
func (c *dailyCaps) Inc(strat strategy.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll()
	c.counts[strat]++
}

// Count returns today's confirmed buy count for a strategy.
func (c *dailyCaps) Count(strat strategy.Strategy) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll()
	return c.counts[strat]
}
