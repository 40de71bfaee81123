package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magpie-trading/magpie/internal/gateway"
)

func TestScoreFreshLiquidCandidate(t *testing.T) {
	s := NewScorer(DefaultWeights())

	// 10k liquidity, 100s old pool, 1h volume well above the 6h hourly
	// average. Must clear the ultra-early admission bar.
	stats := gateway.MarketStats{
		LiquidityUSD: 10_000,
		Vol1hUSD:     5_000,
		Vol6hUSD:     10_000,
		PoolAge:      100 * time.Second,
	}
	report := gateway.RiskReport{
		Recommendation: gateway.RecommendationSafe,
		Score:          20,
	}

	score := s.Score(stats, report)
	// base 50 + medium liquidity 10 + momentum 15 + fresh pool 10 + risk 3
	assert.InDelta(t, 88, score, 0.01)
	assert.GreaterOrEqual(t, score, 65.0)
}

func TestScoreClampRange(t *testing.T) {
	s := NewScorer(DefaultWeights())

	t.Run("worst case floors at 5", func(t *testing.T) {
		score := s.Score(gateway.MarketStats{}, gateway.RiskReport{Score: 100})
		assert.GreaterOrEqual(t, score, 5.0)
	})

	t.Run("best case caps at 95", func(t *testing.T) {
		stats := gateway.MarketStats{
			LiquidityUSD:  100_000,
			Vol1hUSD:      50_000,
			Vol6hUSD:      60_000,
			PriceChange1h: 40,
			PoolAge:       time.Minute,
		}
		report := gateway.RiskReport{Score: 0, Holders: 500, TopHolderPct: 5}
		score := s.Score(stats, report)
		assert.Equal(t, 95.0, score)
	})
}

func TestScoreLiquidityTiers(t *testing.T) {
	s := NewScorer(DefaultWeights())
	base := gateway.RiskReport{Score: 50} // risk term zero

	thin := s.Score(gateway.MarketStats{LiquidityUSD: 6_000}, base)
	medium := s.Score(gateway.MarketStats{LiquidityUSD: 20_000}, base)
	deep := s.Score(gateway.MarketStats{LiquidityUSD: 80_000}, base)

	assert.Equal(t, 55.0, thin)
	assert.Equal(t, 60.0, medium)
	assert.Equal(t, 70.0, deep)
}

func TestScoreRiskTermPenalizes(t *testing.T) {
	s := NewScorer(DefaultWeights())
	stats := gateway.MarketStats{LiquidityUSD: 20_000}

	safe := s.Score(stats, gateway.RiskReport{Score: 10})
	risky := s.Score(stats, gateway.RiskReport{Score: 90})

	assert.Greater(t, safe, risky)
	assert.InDelta(t, 8, safe-risky, 0.01)
}
