package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/config"
)

// BalanceProvider reports the wallet's current balance in SOL.
type BalanceProvider interface {
	WalletBalance(ctx context.Context) (decimal.Decimal, error)
}

// Governor is the capital allocator and the kill switch.
// SAFETY > PROFIT > SPEED
//
// Hardcoded minimums (not configurable, not disableable):
// - daily loss limit: ALWAYS active
// - wallet exposure cap: ALWAYS active
// - kill switch: ALWAYS responsive, in-process
type Governor struct {
	cfg      config.RiskConfig
	balances BalanceProvider

	mu           sync.RWMutex
	balance      decimal.Decimal
	dayStart     decimal.Decimal
	dayKey       string // UTC date of the current daily window
	flattenArmed bool   // one emergency flatten per breach

	// Kill switch - atomic for lock-free check
	killed atomic.Bool
	frozen atomic.Bool

	// Metrics
	sized  atomic.Int64
	zeroed atomic.Int64
}

func NewGovernor(cfg config.RiskConfig, balances BalanceProvider) *Governor {
	return &Governor{cfg: cfg, balances: balances}
}

// AdmitTrade reports whether new positions may be opened at all.
func (g *Governor) AdmitTrade() bool {
	return !g.killed.Load() && !g.frozen.Load()
}

// SizeFor computes the buy size for a candidate. The caller passes the
// current total exposure, read under the same lock that will commit the
// position, so the check-then-act window is closed upstream.
//
// size = min(base * multiplier, available, per-trade cap), where
// available = balance * MaxExposureFraction - exposure and the multiplier
// maps score affinely into [0.5x, 1.5x]. Returns zero when trading is
// disabled or available capital is below the minimum trade size.
func (g *Governor) SizeFor(sc config.StrategyConfig, score float64, exposure decimal.Decimal) decimal.Decimal {
	if !g.AdmitTrade() {
		g.zeroed.Add(1)
		return decimal.Zero
	}

	g.mu.RLock()
	balance := g.balance
	g.mu.RUnlock()

	budget := balance.Mul(decimal.NewFromFloat(g.cfg.MaxExposureFraction))
	available := budget.Sub(exposure)
	if available.LessThan(decimal.NewFromFloat(g.cfg.MinTradeSOL)) {
		g.zeroed.Add(1)
		return decimal.Zero
	}

	mult := 0.5 + score/100
	if mult < 0.5 {
		mult = 0.5
	}
	if mult > 1.5 {
		mult = 1.5
	}

	size := decimal.NewFromFloat(sc.BaseBuySOL).Mul(decimal.NewFromFloat(mult))
	if size.GreaterThan(available) {
		size = available
	}
	if tradeCap := decimal.NewFromFloat(g.cfg.PerTradeCapSOL); size.GreaterThan(tradeCap) {
		size = tradeCap
	}

	g.sized.Add(1)
	return size
}

// Refresh pulls the wallet balance, rolls the daily window at UTC midnight,
// and enforces the daily loss limit. It returns true when an emergency
// flatten of all open positions should run now; that signal fires exactly
// once per breach.
func (g *Governor) Refresh(ctx context.Context) bool {
	balance, err := g.balances.WalletBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("wallet balance refresh failed")
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.balance = balance

	today := time.Now().UTC().Format("2006-01-02")
	if g.dayKey != today {
		g.dayKey = today
		g.dayStart = balance
		g.flattenArmed = false
		if g.frozen.Load() && !g.killed.Load() {
			g.frozen.Store(false)
			log.Info().Str("day", today).Msg("daily window rolled, trading re-enabled")
		}
		return false
	}

	if g.dayStart.IsZero() {
		g.dayStart = balance
		return false
	}

	loss := g.dayStart.Sub(balance)
	ratio := decimal.Zero
	if g.dayStart.IsPositive() {
		ratio = loss.Div(g.dayStart)
	}
	limit := decimal.NewFromFloat(g.cfg.DailyLossLimit)

	if ratio.GreaterThanOrEqual(limit) {
		if !g.frozen.Load() {
			g.frozen.Store(true)
			log.Error().
				Str("loss", loss.String()).
				Str("ratio", ratio.String()).
				Msg("daily loss limit breached, trading disabled")
		}
		if g.cfg.AggressiveFlatten && !g.flattenArmed {
			g.flattenArmed = true
			return true
		}
		return false
	}

	// Back under the limit: re-enable and re-arm for the next breach.
	if g.frozen.Load() && !g.killed.Load() {
		g.frozen.Store(false)
		g.flattenArmed = false
		log.Info().Str("ratio", ratio.String()).Msg("daily loss recovered, trading re-enabled")
	}
	return false
}

// Kill activates the kill switch. Terminal until restart.
func (g *Governor) Kill() {
	g.killed.Store(true)
	log.Error().Msg("KILL SWITCH ACTIVATED - all trading stopped")
}

// Pause freezes trading (resumable, unlike Kill).
func (g *Governor) Pause(reason string) {
	g.frozen.Store(true)
	log.Warn().Str("reason", reason).Msg("trading paused")
}

// Resume unfreezes trading.
func (g *Governor) Resume() {
	if g.killed.Load() {
		log.Warn().Msg("cannot resume: kill switch is active (requires restart)")
		return
	}
	g.frozen.Store(false)
	log.Info().Msg("trading resumed")
}

// Snapshot is the governor's state for telemetry and the ops endpoint.
type Snapshot struct {
	Balance    decimal.Decimal `json:"balance_sol"`
	DayStart   decimal.Decimal `json:"day_start_sol"`
	Killed     bool            `json:"killed"`
	Frozen     bool            `json:"frozen"`
	SizedTotal int64           `json:"sized_total"`
	ZeroTotal  int64           `json:"zeroed_total"`
}

func (g *Governor) Stats() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{
		Balance:    g.balance,
		DayStart:   g.dayStart,
		Killed:     g.killed.Load(),
		Frozen:     g.frozen.Load(),
		SizedTotal: g.sized.Load(),
		ZeroTotal:  g.zeroed.Load(),
	}
}
