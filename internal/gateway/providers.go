package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPMarketData fetches pair data from a dexscreener-style pairs API.
type HTTPMarketData struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPMarketData(baseURL string, timeout time.Duration) *HTTPMarketData {
	return &HTTPMarketData{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pairsResponse struct {
	Pairs []struct {
		PriceNative string `json:"priceNative"`
		Liquidity   struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		MarketCap float64 `json:"marketCap"`
		Volume    struct {
			H1 float64 `json:"h1"`
			H6 float64 `json:"h6"`
		} `json:"volume"`
		PriceChange struct {
			H1  float64 `json:"h1"`
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		PairCreatedAt int64 `json:"pairCreatedAt"` // unix millis
	} `json:"pairs"`
}

func (m *HTTPMarketData) FetchMarketStats(ctx context.Context, token string) (MarketStats, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", m.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MarketStats{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return MarketStats{}, fmt.Errorf("market data request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MarketStats{}, fmt.Errorf("market data status %d", resp.StatusCode)
	}

	var body pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return MarketStats{}, fmt.Errorf("decode market data: %w", err)
	}
	if len(body.Pairs) == 0 {
		return MarketStats{}, fmt.Errorf("no pairs for token %s", token)
	}

	// First pair is the primary pool.
	p := body.Pairs[0]
	price, err := decimal.NewFromString(p.PriceNative)
	if err != nil {
		return MarketStats{}, fmt.Errorf("parse price %q: %w", p.PriceNative, err)
	}

	var age time.Duration
	if p.PairCreatedAt > 0 {
		age = time.Since(time.UnixMilli(p.PairCreatedAt))
	}

	return MarketStats{
		PriceSOL:       price,
		LiquidityUSD:   p.Liquidity.USD,
		MarketCapUSD:   p.MarketCap,
		Vol1hUSD:       p.Volume.H1,
		Vol6hUSD:       p.Volume.H6,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange24h: p.PriceChange.H24,
		PoolAge:        age,
	}, nil
}

// HTTPRiskCheck fetches a token safety report from a rugcheck-style API.
type HTTPRiskCheck struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRiskCheck(baseURL string, timeout time.Duration) *HTTPRiskCheck {
	return &HTTPRiskCheck{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type riskResponse struct {
	Score int `json:"score"`
	Risks []struct {
		Name  string `json:"name"`
		Level string `json:"level"`
	} `json:"risks"`
	TotalHolders int `json:"totalHolders"`
	TopHolders   []struct {
		Pct float64 `json:"pct"`
	} `json:"topHolders"`
}

func (r *HTTPRiskCheck) FetchRiskReport(ctx context.Context, token string) (RiskReport, error) {
	url := fmt.Sprintf("%s/v1/tokens/%s/report/summary", r.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RiskReport{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return RiskReport{}, fmt.Errorf("risk check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RiskReport{}, fmt.Errorf("risk check status %d", resp.StatusCode)
	}

	var body riskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RiskReport{}, fmt.Errorf("decode risk report: %w", err)
	}

	report := RiskReport{
		Score:        normalizeRiskScore(body.Score),
		Holders:      body.TotalHolders,
		TopHolderPct: 0,
	}
	for _, risk := range body.Risks {
		report.Reasons = append(report.Reasons, risk.Name)
		if strings.EqualFold(risk.Level, "danger") {
			report.Danger = true
		}
	}
	if len(body.TopHolders) > 0 {
		report.TopHolderPct = body.TopHolders[0].Pct
	}

	switch {
	case report.Danger || report.Score >= 60:
		report.Recommendation = RecommendationRisky
	case report.Score >= 30:
		report.Recommendation = RecommendationCaution
	default:
		report.Recommendation = RecommendationSafe
	}
	return report, nil
}

// normalizeRiskScore maps the upstream's unbounded score onto 0-100.
func normalizeRiskScore(raw int) float64 {
	score := float64(raw) / 100
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
