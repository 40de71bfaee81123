package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/gateway"
)

func safeReport() gateway.RiskReport {
	return gateway.RiskReport{Recommendation: gateway.RecommendationSafe, Score: 20}
}

func TestGateAdmitsQualifiedCandidate(t *testing.T) {
	sc := config.DefaultUltraEarly()
	stats := gateway.MarketStats{LiquidityUSD: 10_000, PoolAge: 100 * time.Second}

	v := Gate(sc, stats, safeReport(), 88)
	assert.True(t, v.Passed)
	assert.Empty(t, v.Reason)
}

func TestGateRejections(t *testing.T) {
	sc := config.DefaultUltraEarly()
	goodStats := gateway.MarketStats{LiquidityUSD: 10_000, PoolAge: 100 * time.Second}

	tests := []struct {
		name   string
		stats  gateway.MarketStats
		report gateway.RiskReport
		score  float64
	}{
		{
			name:   "danger flag",
			stats:  goodStats,
			report: gateway.RiskReport{Danger: true, Reasons: []string{"freezable"}},
			score:  90,
		},
		{
			name:   "risky recommendation",
			stats:  goodStats,
			report: gateway.RiskReport{Recommendation: gateway.RecommendationRisky, Score: 80},
			score:  90,
		},
		{
			name:   "thin liquidity",
			stats:  gateway.MarketStats{LiquidityUSD: 2_000, PoolAge: 100 * time.Second},
			report: safeReport(),
			score:  90,
		},
		{
			name:   "stale pool",
			stats:  gateway.MarketStats{LiquidityUSD: 10_000, PoolAge: time.Hour},
			report: safeReport(),
			score:  90,
		},
		{
			name:   "score below minimum",
			stats:  goodStats,
			report: safeReport(),
			score:  60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Gate(sc, tt.stats, tt.report, tt.score)
			assert.False(t, v.Passed)
			assert.NotEmpty(t, v.Reason, "rejection must carry a reason")
		})
	}
}

func TestGateHolderChecksOnlyWhenConfigured(t *testing.T) {
	whale := config.DefaultWhaleCommunity()
	ultra := config.DefaultUltraEarly()
	stats := gateway.MarketStats{LiquidityUSD: 50_000, PoolAge: time.Hour}

	report := safeReport()
	report.Holders = 40
	report.TopHolderPct = 30

	v := Gate(whale, stats, report, 80)
	assert.False(t, v.Passed)
	assert.Contains(t, v.Reason, "holder count")

	// Ultra-early does not enforce holder distribution.
	stats.PoolAge = 100 * time.Second
	v = Gate(ultra, stats, report, 80)
	assert.True(t, v.Passed)
}
