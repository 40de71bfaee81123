package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/strategy"
)

// Mints that show up in nearly every swap and never are the candidate.
var ignoredMints = map[string]struct{}{
	"So11111111111111111111111111111111111111112":  {}, // wrapped SOL
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {}, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {}, // USDT
}

// SignalTracker counts distinct whale wallets touching a token inside a
// sliding window. A token qualifies once minSignals wallets have traded it.
type SignalTracker struct {
	mu         sync.Mutex
	minSignals int
	window     time.Duration
	signals    map[string]map[string]time.Time // token -> wallet -> last seen
	emitted    map[string]time.Time

	now func() time.Time
}

func NewSignalTracker(minSignals int, window time.Duration) *SignalTracker {
	return &SignalTracker{
		minSignals: minSignals,
		window:     window,
		signals:    make(map[string]map[string]time.Time),
		emitted:    make(map[string]time.Time),
		now:        time.Now,
	}
}

// Record notes that a wallet touched a token and reports whether the token
// just crossed the signal threshold. Each token qualifies at most once per
// window.
func (t *SignalTracker) Record(token, wallet string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	wallets, ok := t.signals[token]
	if !ok {
		wallets = make(map[string]time.Time)
		t.signals[token] = wallets
	}
	wallets[wallet] = now

	// Expire stale wallet signals.
	live := 0
	for w, seen := range wallets {
		if now.Sub(seen) > t.window {
			delete(wallets, w)
			continue
		}
		live++
	}

	if live < t.minSignals {
		return false
	}
	if last, ok := t.emitted[token]; ok && now.Sub(last) <= t.window {
		return false
	}
	t.emitted[token] = now
	return true
}

// WhaleFeed polls tracked wallets' recent transactions over JSON-RPC and
// surfaces tokens that several whales touched close together.
type WhaleFeed struct {
	cfg        config.WhaleFeedConfig
	intake     chan<- Candidate
	tracker    *SignalTracker
	httpClient *http.Client

	mu       sync.Mutex
	lastSigs map[string]string // wallet -> newest processed signature
}

func NewWhaleFeed(cfg config.WhaleFeedConfig, intake chan<- Candidate) *WhaleFeed {
	return &WhaleFeed{
		cfg:        cfg,
		intake:     intake,
		tracker:    NewSignalTracker(cfg.MinSignals, 30*time.Minute),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		lastSigs:   make(map[string]string),
	}
}

// Run polls until the context is cancelled.
func (f *WhaleFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().
		Int("wallets", len(f.cfg.Wallets)).
		Dur("interval", f.cfg.PollInterval).
		Msg("whale feed started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, wallet := range f.cfg.Wallets {
				if err := f.pollWallet(ctx, wallet); err != nil {
					log.Warn().Err(err).Str("wallet", wallet).Msg("whale poll failed")
				}
			}
		}
	}
}

func (f *WhaleFeed) pollWallet(ctx context.Context, wallet string) error {
	sigs, err := f.recentSignatures(ctx, wallet)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	f.mu.Lock()
	last := f.lastSigs[wallet]
	f.lastSigs[wallet] = sigs[0]
	f.mu.Unlock()

	for _, sig := range sigs {
		if sig == last {
			break
		}
		mints, err := f.transactionMints(ctx, sig)
		if err != nil {
			log.Debug().Err(err).Str("signature", sig).Msg("transaction fetch skipped")
			continue
		}
		for _, mint := range mints {
			if !ValidToken(mint) {
				continue
			}
			if _, ignore := ignoredMints[mint]; ignore {
				continue
			}
			if f.tracker.Record(mint, wallet) {
				emit(f.intake, Candidate{
					Token:  mint,
					Source: strategy.WhaleCommunity,
					SeenAt: time.Now(),
				})
			}
		}
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (f *WhaleFeed) rpcCall(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode rpc %s response: %w", method, err)
	}
	return nil
}

func (f *WhaleFeed) recentSignatures(ctx context.Context, wallet string) ([]string, error) {
	var body struct {
		Result []struct {
			Signature string `json:"signature"`
			Err       any    `json:"err"`
		} `json:"result"`
	}
	params := []any{wallet, map[string]any{"limit": 10}}
	if err := f.rpcCall(ctx, "getSignaturesForAddress", params, &body); err != nil {
		return nil, err
	}

	sigs := make([]string, 0, len(body.Result))
	for _, r := range body.Result {
		if r.Err != nil {
			continue
		}
		sigs = append(sigs, r.Signature)
	}
	return sigs, nil
}

func (f *WhaleFeed) transactionMints(ctx context.Context, signature string) ([]string, error) {
	var body struct {
		Result struct {
			Meta struct {
				PostTokenBalances []struct {
					Mint string `json:"mint"`
				} `json:"postTokenBalances"`
			} `json:"meta"`
		} `json:"result"`
	}
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := f.rpcCall(ctx, "getTransaction", params, &body); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var mints []string
	for _, b := range body.Result.Meta.PostTokenBalances {
		if _, dup := seen[b.Mint]; dup || b.Mint == "" {
			continue
		}
		seen[b.Mint] = struct{}{}
		mints = append(mints, b.Mint)
	}
	return mints, nil
}
