package executor

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// StubAdapter is a scriptable Adapter for tests and dry-run mode. The zero
// value confirms everything.
type StubAdapter struct {
	mu sync.Mutex

	// BuyResults / SellResults are consumed in order; when exhausted the
	// stub returns Confirmed.
	BuyResults  []Result
	SellResults []Result

	Buys  []StubBuy
	Sells []StubSell
}

type StubBuy struct {
	Token  string
	Amount decimal.Decimal
}

type StubSell struct {
	Token   string
	Percent float64
}

func (s *StubAdapter) Buy(ctx context.Context, token string, amountSOL decimal.Decimal) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Buys = append(s.Buys, StubBuy{Token: token, Amount: amountSOL})
	if len(s.BuyResults) > 0 {
		r := s.BuyResults[0]
		s.BuyResults = s.BuyResults[1:]
		return r
	}
	return Confirmed
}

func (s *StubAdapter) Sell(ctx context.Context, token string, percent float64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Sells = append(s.Sells, StubSell{Token: token, Percent: percent})
	if len(s.SellResults) > 0 {
		r := s.SellResults[0]
		s.SellResults = s.SellResults[1:]
		return r
	}
	return Confirmed
}

// BuyCount and SellCount are safe snapshots for assertions.
func (s *StubAdapter) BuyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Buys)
}

func (s *StubAdapter) SellCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sells)
}
