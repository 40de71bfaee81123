package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-trading/magpie/internal/config"
)

// StubMarketData is a scriptable MarketDataProvider.
type StubMarketData struct {
	Stats MarketStats
	Err   error
	Calls int
}

func (s *StubMarketData) FetchMarketStats(ctx context.Context, token string) (MarketStats, error) {
	s.Calls++
	if s.Err != nil {
		return MarketStats{}, s.Err
	}
	return s.Stats, nil
}

// StubRisk is a scriptable RiskProvider.
type StubRisk struct {
	Report RiskReport
	Err    error
	Calls  int
}

func (s *StubRisk) FetchRiskReport(ctx context.Context, token string) (RiskReport, error) {
	s.Calls++
	if s.Err != nil {
		return RiskReport{}, s.Err
	}
	return s.Report, nil
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		CacheTTL:         30 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  300 * time.Second,
		Retry:            config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
	}
}

func TestGatewayPriceHappyPath(t *testing.T) {
	market := &StubMarketData{Stats: MarketStats{
		PriceSOL:     decimal.RequireFromString("0.0000021"),
		LiquidityUSD: 12_000,
	}}
	g := New(testGatewayConfig(), market, &StubRisk{})

	price, ok := g.Price(context.Background(), "TokA")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("0.0000021")))
}

func TestGatewayPriceFailOpen(t *testing.T) {
	market := &StubMarketData{Err: errors.New("upstream down")}
	g := New(testGatewayConfig(), market, &StubRisk{})

	price, ok := g.Price(context.Background(), "TokA")
	assert.False(t, ok)
	assert.True(t, price.IsZero())
}

func TestGatewayStatsServedFromCache(t *testing.T) {
	market := &StubMarketData{Stats: MarketStats{LiquidityUSD: 9_000}}
	g := New(testGatewayConfig(), market, &StubRisk{})

	_, ok := g.Stats(context.Background(), "TokA")
	require.True(t, ok)
	_, ok = g.Stats(context.Background(), "TokA")
	require.True(t, ok)

	assert.Equal(t, 1, market.Calls, "second read must hit the cache")
	assert.Equal(t, int64(1), g.Counters().CacheHits)
}

func TestGatewayRiskFailClosed(t *testing.T) {
	g := New(testGatewayConfig(), &StubMarketData{}, &StubRisk{Err: errors.New("down")})

	report := g.Risk(context.Background(), "TokA")
	assert.Equal(t, RecommendationRisky, report.Recommendation)
	assert.Equal(t, 100.0, report.Score)
	assert.NotEmpty(t, report.Reasons)
}

func TestGatewayBreakerShortCircuits(t *testing.T) {
	market := &StubMarketData{Err: errors.New("down")}
	cfg := testGatewayConfig()
	cfg.BreakerThreshold = 3
	g := New(cfg, market, &StubRisk{})

	for i := 0; i < 3; i++ {
		_, ok := g.Stats(context.Background(), "TokA")
		assert.False(t, ok)
	}
	require.Equal(t, 3, market.Calls)
	assert.Equal(t, BreakerOpen, g.BreakerStates()["market_data"])

	// Open breaker: no further upstream calls.
	_, ok := g.Stats(context.Background(), "TokA")
	assert.False(t, ok)
	assert.Equal(t, 3, market.Calls)
}

func TestGatewayBreakersIndependentPerService(t *testing.T) {
	market := &StubMarketData{Err: errors.New("down")}
	risk := &StubRisk{Report: RiskReport{Recommendation: RecommendationSafe, Score: 10}}
	cfg := testGatewayConfig()
	cfg.BreakerThreshold = 2
	g := New(cfg, market, risk)

	g.Stats(context.Background(), "TokA")
	g.Stats(context.Background(), "TokB")
	assert.Equal(t, BreakerOpen, g.BreakerStates()["market_data"])

	report := g.Risk(context.Background(), "TokA")
	assert.Equal(t, RecommendationSafe, report.Recommendation)
	assert.Equal(t, 1, risk.Calls)
}
