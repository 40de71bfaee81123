package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/strategy"
)

// Book owns the live position set and its aggregates. All access goes
// through the book so exposure and counters can never drift from the
// positions themselves.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position

	wins          int
	losses        int
	realizedTotal decimal.Decimal
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Add inserts a freshly opened position. A token already in the book is
// rejected; admission dedupe depends on this.
func (b *Book) Add(pos *Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[pos.Token]; exists {
		return fmt.Errorf("position for %s already open", pos.Token)
	}
	b.positions[pos.Token] = pos
	return nil
}

// Has reports whether a token has an open position.
func (b *Book) Has(token string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[token]
	return ok
}

// Get returns a copy of one position.
func (b *Book) Get(token string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[token]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Remove drops a position from the live set.
func (b *Book) Remove(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, token)
}

// UpdateMark records a fresh price on one position.
func (b *Book) UpdateMark(token string, price decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[token]
	if !ok {
		return false
	}
	pos.UpdateMark(price)
	return true
}

// ApplySell applies a confirmed sell to a position and updates the book's
// win/loss tally when the position fully closes.
func (b *Book) ApplySell(token string, pct float64, price decimal.Decimal) (sold, pl decimal.Decimal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, found := b.positions[token]
	if !found {
		return decimal.Zero, decimal.Zero, false
	}

	sold, pl = pos.ApplySell(pct, price)
	b.realizedTotal = b.realizedTotal.Add(pl)
	if pos.Closed() {
		if pos.RealizedPL.IsPositive() {
			b.wins++
		} else {
			b.losses++
		}
	}
	return sold, pl, true
}

// Evaluate runs fn against one position under the book's lock and returns
// its decision without mutating anything.
func (b *Book) Evaluate(token string, now time.Time, policy *ExitPolicy) (ExitDecision, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[token]
	if !ok {
		return ExitDecision{}, false
	}
	return policy.Evaluate(pos, now), true
}

// Exposure is the total SOL value of all open positions at their last marks,
// recomputed from the positions on every call so it cannot drift.
func (b *Book) Exposure() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.Value())
	}
	return total
}

// Tokens snapshots the open tokens for iteration outside the lock.
func (b *Book) Tokens() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.positions))
	for token := range b.positions {
		out = append(out, token)
	}
	return out
}

// Snapshot copies every open position for telemetry and the ops endpoint.
func (b *Book) Snapshot() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out
}

// CountByStrategy returns how many open positions a strategy holds.
func (b *Book) CountByStrategy(strat strategy.Strategy) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, pos := range b.positions {
		if pos.Strategy == strat {
			n++
		}
	}
	return n
}

// BookStats are the book's aggregates for telemetry.
type BookStats struct {
	Open          int             `json:"open"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	RealizedTotal decimal.Decimal `json:"realized_total_sol"`
	ExposureSOL   decimal.Decimal `json:"exposure_sol"`
}

func (b *Book) Stats() BookStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	exposure := decimal.Zero
	for _, pos := range b.positions {
		exposure = exposure.Add(pos.Value())
	}
	return BookStats{
		Open:          len(b.positions),
		Wins:          b.wins,
		Losses:        b.losses,
		RealizedTotal: b.realizedTotal,
		ExposureSOL:   exposure,
	}
}
