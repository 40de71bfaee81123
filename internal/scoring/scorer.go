package scoring

import (
	"time"

	"github.com/magpie-trading/magpie/internal/gateway"
)

// ScoreWeights are the fixed bumps of the heuristic candidate score. They are
// a value object so backtests can sweep them without touching the scorer.
type ScoreWeights struct {
	Base float64

	LiquidityDeep   float64 // >= 50k USD
	LiquidityMedium float64 // >= 10k USD
	LiquidityThin   float64 // >= 5k USD

	VolumeMomentum float64 // 1h volume running hot vs the 6h average
	PriceStrong    float64 // 1h change above the strong threshold
	PriceMild      float64

	HolderBase   float64 // healthy holder count
	HolderSpread float64 // top holder below the concentration threshold

	AgeFresh  float64 // brand-new pool
	AgeRecent float64

	RiskDivisor float64 // (50 - riskScore) / RiskDivisor
}

func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Base:            50,
		LiquidityDeep:   20,
		LiquidityMedium: 10,
		LiquidityThin:   5,
		VolumeMomentum:  15,
		PriceStrong:     8,
		PriceMild:       4,
		HolderBase:      6,
		HolderSpread:    4,
		AgeFresh:        10,
		AgeRecent:       5,
		RiskDivisor:     10,
	}
}

const (
	scoreMin = 5
	scoreMax = 95

	momentumRatio     = 1.5 // 1h volume vs the 6h hourly average
	priceStrongPct    = 20
	priceMildPct      = 5
	healthyHolders    = 100
	spreadTopHolder   = 15 // percent
	freshPoolAge      = 5 * time.Minute
	recentPoolAge     = 30 * time.Minute
	neutralRiskScore  = 50
	liqDeepUSD        = 50_000
	liqMediumUSD      = 10_000
	liqThinUSD        = 5_000
)

// Scorer produces a heuristic attractiveness score for a candidate token.
type Scorer struct {
	w ScoreWeights
}

func NewScorer(w ScoreWeights) *Scorer {
	return &Scorer{w: w}
}

// Score maps market stats plus the risk report onto [5,95]. Higher is more
// attractive. The clamp keeps downstream sizing multipliers bounded even if
// the weights are retuned.
func (s *Scorer) Score(stats gateway.MarketStats, report gateway.RiskReport) float64 {
	score := s.w.Base

	switch {
	case stats.LiquidityUSD >= liqDeepUSD:
		score += s.w.LiquidityDeep
	case stats.LiquidityUSD >= liqMediumUSD:
		score += s.w.LiquidityMedium
	case stats.LiquidityUSD >= liqThinUSD:
		score += s.w.LiquidityThin
	}

	if stats.Vol6hUSD > 0 {
		hourlyAvg := stats.Vol6hUSD / 6
		if stats.Vol1hUSD > hourlyAvg*momentumRatio {
			score += s.w.VolumeMomentum
		}
	}

	switch {
	case stats.PriceChange1h >= priceStrongPct:
		score += s.w.PriceStrong
	case stats.PriceChange1h >= priceMildPct:
		score += s.w.PriceMild
	}

	if report.Holders >= healthyHolders {
		score += s.w.HolderBase
	}
	if report.Holders > 0 && report.TopHolderPct > 0 && report.TopHolderPct <= spreadTopHolder {
		score += s.w.HolderSpread
	}

	if stats.PoolAge > 0 {
		switch {
		case stats.PoolAge < freshPoolAge:
			score += s.w.AgeFresh
		case stats.PoolAge < recentPoolAge:
			score += s.w.AgeRecent
		}
	}

	if s.w.RiskDivisor > 0 {
		score += (neutralRiskScore - report.Score) / s.w.RiskDivisor
	}

	if score < scoreMin {
		score = scoreMin
	}
	if score > scoreMax {
		score = scoreMax
	}
	return score
}
