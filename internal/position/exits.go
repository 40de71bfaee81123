package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/config"
)

// Exit reasons.
const (
	ReasonTakeProfit   = "TAKE_PROFIT"
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTrailingStop = "TRAILING_STOP"
	ReasonMaxHold      = "MAX_HOLD"
)

func tierReason(i int) string {
	return fmt.Sprintf("%s_T%d", ReasonTakeProfit, i+1)
}

// ExitDecision is what the policy wants done with a position right now.
type ExitDecision struct {
	ShouldSell bool
	SellPct    float64 // percent of the current size
	Reason     string
	FullClose  bool
}

// ExitPolicy evaluates one strategy's exit rules against a position. It is
// pure: all state lives on the position, so the same inputs always produce
// the same decision.
type ExitPolicy struct {
	rules config.ExitRules
}

func NewExitPolicy(rules config.ExitRules) *ExitPolicy {
	return &ExitPolicy{rules: rules}
}

// Evaluate returns the first matching exit, checked in priority order:
// take-profit (single target or tiers, highest tier first), stop loss,
// trailing stop, max hold.
func (e *ExitPolicy) Evaluate(pos *Position, now time.Time) ExitDecision {
	if pos.Closed() || !pos.EntryPrice.IsPositive() {
		return ExitDecision{}
	}

	if d := e.checkTakeProfit(pos); d.ShouldSell {
		return d
	}
	if d := e.checkStopLoss(pos); d.ShouldSell {
		return d
	}
	if d := e.checkTrailing(pos); d.ShouldSell {
		return d
	}
	if d := e.checkMaxHold(pos, now); d.ShouldSell {
		return d
	}
	return ExitDecision{}
}

func (e *ExitPolicy) checkTakeProfit(pos *Position) ExitDecision {
	if e.rules.TakeProfitX > 0 {
		target := pos.EntryPrice.Mul(decimal.NewFromFloat(e.rules.TakeProfitX))
		if pos.LastPrice.GreaterThanOrEqual(target) {
			return ExitDecision{ShouldSell: true, SellPct: 100, Reason: ReasonTakeProfit, FullClose: true}
		}
		return ExitDecision{}
	}

	// Tiers are cumulative caps on total sold percent; the highest reached
	// tier wins, so a gap up through several tiers sells in one order.
	for i := len(e.rules.Tiers) - 1; i >= 0; i-- {
		tier := e.rules.Tiers[i]
		target := pos.EntryPrice.Mul(decimal.NewFromFloat(tier.Ratio))
		if pos.LastPrice.LessThan(target) {
			continue
		}
		if pos.TotalSoldPct >= tier.CapPct {
			break // already sold up to this tier
		}
		sellPct := tier.CapPct - pos.TotalSoldPct
		return ExitDecision{
			ShouldSell: true,
			SellPct:    sellPct,
			Reason:     tierReason(i),
			FullClose:  tier.CapPct >= 100,
		}
	}
	return ExitDecision{}
}

func (e *ExitPolicy) checkStopLoss(pos *Position) ExitDecision {
	if e.rules.StopLossX <= 0 {
		return ExitDecision{}
	}
	floor := pos.EntryPrice.Mul(decimal.NewFromFloat(e.rules.StopLossX))
	if pos.LastPrice.LessThanOrEqual(floor) {
		return ExitDecision{ShouldSell: true, SellPct: 100, Reason: ReasonStopLoss, FullClose: true}
	}
	return ExitDecision{}
}

func (e *ExitPolicy) checkTrailing(pos *Position) ExitDecision {
	if e.rules.TrailPct <= 0 || e.rules.TrailArmX <= 0 {
		return ExitDecision{}
	}
	arm := pos.EntryPrice.Mul(decimal.NewFromFloat(e.rules.TrailArmX))
	if pos.LocalHigh.LessThanOrEqual(arm) {
		return ExitDecision{}
	}
	stop := pos.LocalHigh.Mul(decimal.NewFromFloat(1 - e.rules.TrailPct))
	if pos.LastPrice.LessThanOrEqual(stop) {
		return ExitDecision{ShouldSell: true, SellPct: 100, Reason: ReasonTrailingStop, FullClose: true}
	}
	return ExitDecision{}
}

func (e *ExitPolicy) checkMaxHold(pos *Position, now time.Time) ExitDecision {
	if e.rules.MaxHold <= 0 {
		return ExitDecision{}
	}
	if pos.Age(now) >= e.rules.MaxHold {
		return ExitDecision{ShouldSell: true, SellPct: 100, Reason: ReasonMaxHold, FullClose: true}
	}
	return ExitDecision{}
}
