package store

import (
	"context"
	"sync"

	"github.com/magpie-trading/magpie/internal/position"
)

// MemoryStore is an in-process PositionStore and TradeStore used by tests
// and dry-run mode.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[string]position.Position
	trades    []Trade
	tradeIDs  map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]position.Position),
		tradeIDs:  make(map[string]struct{}),
	}
}

var (
	_ PositionStore = (*MemoryStore)(nil)
	_ TradeStore    = (*MemoryStore)(nil)
)

func (m *MemoryStore) SavePosition(ctx context.Context, pos position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Token] = pos
	return nil
}

func (m *MemoryStore) DeletePosition(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, token)
	return nil
}

func (m *MemoryStore) LoadPositions(ctx context.Context) ([]position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]position.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (m *MemoryStore) RecordTrade(ctx context.Context, trade Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.tradeIDs[trade.ID]; dup {
		return ErrDuplicateKey
	}
	m.tradeIDs[trade.ID] = struct{}{}
	m.trades = append(m.trades, trade)
	return nil
}

// Trades snapshots the recorded fills for assertions.
func (m *MemoryStore) Trades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trade, len(m.trades))
	copy(out, m.trades)
	return out
}
