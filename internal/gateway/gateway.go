package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/config"
)

// Service names used by the breaker table.
const (
	serviceMarketData = "market_data"
	serviceRiskCheck  = "risk_check"
)

// Recommendation is the risk screener's verdict for a token.
type Recommendation string

const (
	RecommendationSafe    Recommendation = "SAFE"
	RecommendationCaution Recommendation = "CAUTION"
	RecommendationRisky   Recommendation = "RISKY"
)

// MarketStats is a snapshot of a token's market activity. A zero value means
// the data was unavailable.
type MarketStats struct {
	PriceSOL       decimal.Decimal
	LiquidityUSD   float64
	MarketCapUSD   float64
	Vol1hUSD       float64
	Vol6hUSD       float64
	PriceChange1h  float64 // percent
	PriceChange24h float64 // percent
	PoolAge        time.Duration
}

// RiskReport is the screener's assessment of a token. Danger short-circuits
// every admission gate.
type RiskReport struct {
	Recommendation Recommendation
	Score          float64 // 0 safest, 100 worst
	Danger         bool
	Holders        int
	TopHolderPct   float64
	Reasons        []string
}

// MarketDataProvider fetches live market stats for a token.
type MarketDataProvider interface {
	FetchMarketStats(ctx context.Context, token string) (MarketStats, error)
}

// RiskProvider fetches a risk assessment for a token.
type RiskProvider interface {
	FetchRiskReport(ctx context.Context, token string) (RiskReport, error)
}

// Gateway is the single entry point for external token data. It never
// returns errors: every upstream failure degrades into an absent or default
// value so callers stay simple and conservative.
type Gateway struct {
	market MarketDataProvider
	risk   RiskProvider

	breaker    *Breaker
	retry      RetryPolicy
	statsCache *ttlCache[MarketStats]
	riskCache  *ttlCache[RiskReport]

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

func New(cfg config.GatewayConfig, market MarketDataProvider, risk RiskProvider) *Gateway {
	return &Gateway{
		market:  market,
		risk:    risk,
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Jitter:      cfg.Retry.Jitter,
		},
		statsCache: newTTLCache[MarketStats](cfg.CacheTTL),
		riskCache:  newTTLCache[RiskReport](cfg.CacheTTL),
	}
}

// Price returns the token's last price. The second return is false when no
// price could be obtained; callers must skip the tick, not treat it as zero.
func (g *Gateway) Price(ctx context.Context, token string) (decimal.Decimal, bool) {
	stats, ok := g.Stats(ctx, token)
	if !ok || stats.PriceSOL.IsZero() {
		return decimal.Zero, false
	}
	return stats.PriceSOL, true
}

// Stats returns market stats for the token, served from cache inside the TTL
// window. On failure it returns a zero struct and false.
func (g *Gateway) Stats(ctx context.Context, token string) (MarketStats, bool) {
	if cached, ok := g.statsCache.Get(token); ok {
		g.hits.Add(1)
		return cached, true
	}
	g.misses.Add(1)

	if !g.breaker.Allow(serviceMarketData) {
		return MarketStats{}, false
	}

	var stats MarketStats
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = g.market.FetchMarketStats(ctx, token)
		return err
	})
	if err != nil {
		g.errors.Add(1)
		g.breaker.Failure(serviceMarketData)
		log.Debug().Err(err).Str("token", token).Msg("market stats fetch failed")
		return MarketStats{}, false
	}

	g.breaker.Success(serviceMarketData)
	g.statsCache.Set(token, stats)
	return stats, true
}

// Risk returns the screener's report. The default on failure is fail-closed:
// RISKY with a worst score, so admission gates reject rather than guess.
func (g *Gateway) Risk(ctx context.Context, token string) RiskReport {
	if cached, ok := g.riskCache.Get(token); ok {
		g.hits.Add(1)
		return cached
	}
	g.misses.Add(1)

	unavailable := RiskReport{
		Recommendation: RecommendationRisky,
		Score:          100,
		Danger:         false,
		Reasons:        []string{"risk data unavailable"},
	}

	if !g.breaker.Allow(serviceRiskCheck) {
		return unavailable
	}

	var report RiskReport
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		report, err = g.risk.FetchRiskReport(ctx, token)
		return err
	})
	if err != nil {
		g.errors.Add(1)
		g.breaker.Failure(serviceRiskCheck)
		log.Debug().Err(err).Str("token", token).Msg("risk report fetch failed")
		return unavailable
	}

	g.breaker.Success(serviceRiskCheck)
	g.riskCache.Set(token, report)
	return report
}

// BreakerStates exposes the breaker table for the ops endpoint.
func (g *Gateway) BreakerStates() map[string]BreakerState {
	return g.breaker.States()
}

// Stats counters for telemetry.
type GatewayStats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	FetchErrors int64 `json:"fetch_errors"`
}

func (g *Gateway) Counters() GatewayStats {
	return GatewayStats{
		CacheHits:   g.hits.Load(),
		CacheMisses: g.misses.Load(),
		FetchErrors: g.errors.Load(),
	}
}
