package strategy

import "github.com/magpie-trading/magpie/internal/config"

// Strategy identifies one of the trading variants. The value is stable: it is
// persisted with positions and appears in logs and telemetry.
type Strategy string

const (
	UltraEarly     Strategy = "ultra_early"
	TrendAnalyst   Strategy = "trend_analyst"
	WhaleCommunity Strategy = "whale_community"
)

// All lists every variant in a fixed order.
func All() []Strategy {
	return []Strategy{UltraEarly, TrendAnalyst, WhaleCommunity}
}

// Valid reports whether s names a known variant.
func (s Strategy) Valid() bool {
	switch s {
	case UltraEarly, TrendAnalyst, WhaleCommunity:
		return true
	}
	return false
}

// Params returns the variant's StrategyConfig out of the loaded config.
// Unknown strategies fall back to the most conservative variant.
func (s Strategy) Params(cfgs config.StrategiesConfig) config.StrategyConfig {
	switch s {
	case UltraEarly:
		return cfgs.UltraEarly
	case TrendAnalyst:
		return cfgs.TrendAnalyst
	case WhaleCommunity:
		return cfgs.WhaleCommunity
	default:
		return cfgs.WhaleCommunity
	}
}
