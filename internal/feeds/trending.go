package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/strategy"
)

// TrendingFeed polls the market-data search endpoint for tokens with surging
// volume and forwards the top results to the trend-analyst strategy. A seen
// set keeps each token from being emitted more than once per run.
type TrendingFeed struct {
	cfg        config.TrendingFeedConfig
	intake     chan<- Candidate
	httpClient *http.Client

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewTrendingFeed(cfg config.TrendingFeedConfig, intake chan<- Candidate) *TrendingFeed {
	return &TrendingFeed{
		cfg:        cfg,
		intake:     intake,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		seen:       make(map[string]struct{}),
	}
}

type searchResponse struct {
	Pairs []struct {
		ChainID   string `json:"chainId"`
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		Volume struct {
			H1 float64 `json:"h1"`
		} `json:"volume"`
	} `json:"pairs"`
}

// Run polls until the context is cancelled. Poll errors are logged and the
// next tick tries again.
func (f *TrendingFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", f.cfg.PollInterval).Str("query", f.cfg.Query).Msg("trending feed started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.poll(ctx); err != nil {
				log.Warn().Err(err).Msg("trending poll failed")
			}
		}
	}
}

func (f *TrendingFeed) poll(ctx context.Context) error {
	u := fmt.Sprintf("%s?q=%s", f.cfg.SearchURL, url.QueryEscape(f.cfg.Query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}

	emitted := 0
	for _, pair := range body.Pairs {
		if emitted >= f.cfg.TopN {
			break
		}
		addr := pair.BaseToken.Address
		if pair.ChainID != "solana" || !ValidToken(addr) {
			continue
		}
		if f.alreadySeen(addr) {
			continue
		}

		emit(f.intake, Candidate{
			Token:  addr,
			Symbol: pair.BaseToken.Symbol,
			Source: strategy.TrendAnalyst,
			SeenAt: time.Now(),
		})
		emitted++
	}
	return nil
}

func (f *TrendingFeed) alreadySeen(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[addr]; ok {
		return true
	}
	f.seen[addr] = struct{}{}
	return false
}
