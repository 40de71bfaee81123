package scoring

import (
	"fmt"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/gateway"
)

// Verdict is the admission gate's decision. Reason is always populated on
// rejection so the activity journal can show why a candidate was dropped.
type Verdict struct {
	Passed bool
	Reason string
}

func pass() Verdict { return Verdict{Passed: true} }

func reject(format string, args ...any) Verdict {
	return Verdict{Passed: false, Reason: fmt.Sprintf(format, args...)}
}

// Gate checks a candidate against one strategy's admission thresholds. It is
// a pure predicate over already-fetched data; it never calls upstream.
func Gate(sc config.StrategyConfig, stats gateway.MarketStats, report gateway.RiskReport, score float64) Verdict {
	if report.Danger {
		return reject("risk screener flagged danger: %v", report.Reasons)
	}
	if report.Recommendation == gateway.RecommendationRisky {
		return reject("risk screener recommendation RISKY (score %.0f)", report.Score)
	}
	if stats.LiquidityUSD < sc.MinLiquidityUSD {
		return reject("liquidity $%.0f below minimum $%.0f", stats.LiquidityUSD, sc.MinLiquidityUSD)
	}
	if sc.MaxPoolAge > 0 && stats.PoolAge > sc.MaxPoolAge {
		return reject("pool age %s above maximum %s", stats.PoolAge.Round(0), sc.MaxPoolAge)
	}
	if sc.MinHolders > 0 && report.Holders < sc.MinHolders {
		return reject("holder count %d below minimum %d", report.Holders, sc.MinHolders)
	}
	if sc.MaxTopHolderPct > 0 && report.TopHolderPct > sc.MaxTopHolderPct {
		return reject("top holder %.1f%% above maximum %.1f%%", report.TopHolderPct, sc.MaxTopHolderPct)
	}
	if score < sc.MinScore {
		return reject("score %.1f below minimum %.1f", score, sc.MinScore)
	}
	return pass()
}
