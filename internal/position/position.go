package position

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/strategy"
)

// sizeEpsilon is the dust threshold: a position whose token size falls below
// it is considered fully closed.
var sizeEpsilon = decimal.New(1, -9)

// Position is one open holding. Size is the token amount held, prices are
// SOL per token, so SOL value = Size * price and the SOL originally spent is
// Size * EntryPrice.
type Position struct {
	Token    string            `json:"token"`
	Strategy strategy.Strategy `json:"strategy"`

	EntryPrice decimal.Decimal `json:"entry_price"`
	Size       decimal.Decimal `json:"size"` // tokens currently held
	EntryTime  time.Time       `json:"entry_time"`

	LastPrice decimal.Decimal `json:"last_price"`
	LocalHigh decimal.Decimal `json:"local_high"` // monotonic high-water mark

	TotalSoldPct float64         `json:"total_sold_pct"`
	RealizedPL   decimal.Decimal `json:"realized_pl"` // SOL
}

// Open builds a position from a confirmed buy: spent SOL at the given entry
// price.
func Open(token string, strat strategy.Strategy, spentSOL, entryPrice decimal.Decimal, at time.Time) *Position {
	return &Position{
		Token:      token,
		Strategy:   strat,
		EntryPrice: entryPrice,
		Size:       spentSOL.Div(entryPrice),
		EntryTime:  at,
		LastPrice:  entryPrice,
		LocalHigh:  entryPrice,
	}
}

// UpdateMark records a fresh price. The local high only ratchets upward.
func (p *Position) UpdateMark(price decimal.Decimal) {
	p.LastPrice = price
	if price.GreaterThan(p.LocalHigh) {
		p.LocalHigh = price
	}
}

// ApplySell mutates the position after a confirmed sell of pct percent of
// the current size at the given price. It returns the tokens sold and the
// realized P/L in SOL. Invariants are clamped and logged, never panicked on:
// one bad position must not take the mark loop down.
func (p *Position) ApplySell(pct float64, price decimal.Decimal) (sold, pl decimal.Decimal) {
	if pct < 0 {
		log.Warn().Str("token", p.Token).Float64("pct", pct).Msg("negative sell percent clamped to 0")
		pct = 0
	}
	if pct > 100 {
		log.Warn().Str("token", p.Token).Float64("pct", pct).Msg("sell percent clamped to 100")
		pct = 100
	}

	sold = p.Size.Mul(decimal.NewFromFloat(pct / 100))
	p.Size = p.Size.Sub(sold)
	if p.Size.IsNegative() {
		log.Warn().Str("token", p.Token).Str("size", p.Size.String()).Msg("negative size clamped to 0")
		p.Size = decimal.Zero
	}

	p.TotalSoldPct += pct
	if p.TotalSoldPct > 100 {
		p.TotalSoldPct = 100
	}

	pl = price.Sub(p.EntryPrice).Mul(sold)
	p.RealizedPL = p.RealizedPL.Add(pl)
	return sold, pl
}

// Closed reports whether the position is fully exited (size below dust).
func (p *Position) Closed() bool {
	return p.Size.LessThan(sizeEpsilon)
}

// Value is the position's current SOL value at its last mark.
func (p *Position) Value() decimal.Decimal {
	return p.Size.Mul(p.LastPrice)
}

// UnrealizedPL is the SOL gain on the remaining size at the last mark.
func (p *Position) UnrealizedPL() decimal.Decimal {
	return p.LastPrice.Sub(p.EntryPrice).Mul(p.Size)
}

// Multiple is last/entry, the headline "x" number.
func (p *Position) Multiple() float64 {
	if !p.EntryPrice.IsPositive() {
		return 0
	}
	m, _ := p.LastPrice.Div(p.EntryPrice).Float64()
	return m
}

// Age of the position at the given instant.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
