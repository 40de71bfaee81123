package orchestrator

import (
	"sync"
	"time"
)

// WatchEntry is a token parked for later: it failed admission but looked
// interesting enough to re-check.
type WatchEntry struct {
	Token            string    `json:"token"`
	Start            time.Time `json:"start"`
	InitialMarketCap float64   `json:"initial_market_cap"`
	RiskScore        float64   `json:"risk_score"`
}

// Watchlist holds at most one entry per token. Entries either expire after
// the TTL or get promoted back into the intake when their market cap grows
// past the configured multiple.
type Watchlist struct {
	mu              sync.Mutex
	entries         map[string]WatchEntry
	ttl             time.Duration
	promoteMultiple float64
}

func NewWatchlist(ttl time.Duration, promoteMultiple float64) *Watchlist {
	return &Watchlist{
		entries:         make(map[string]WatchEntry),
		ttl:             ttl,
		promoteMultiple: promoteMultiple,
	}
}

// Add parks a token. A token already watched is not replaced.
func (w *Watchlist) Add(entry WatchEntry) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.entries[entry.Token]; exists {
		return false
	}
	w.entries[entry.Token] = entry
	return true
}

// Has reports whether a token is currently watched.
func (w *Watchlist) Has(token string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[token]
	return ok
}

// Remove drops a token from the watchlist.
func (w *Watchlist) Remove(token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, token)
}

// Sweep walks every entry: expired entries are discarded, entries whose
// market cap reached the promote multiple are removed and returned for
// re-admission. marketCap returning false leaves the entry untouched.
func (w *Watchlist) Sweep(now time.Time, marketCap func(token string) (float64, bool)) []WatchEntry {
	w.mu.Lock()
	tokens := make([]WatchEntry, 0, len(w.entries))
	for _, e := range w.entries {
		tokens = append(tokens, e)
	}
	w.mu.Unlock()

	var promoted []WatchEntry
	for _, e := range tokens {
		if now.Sub(e.Start) >= w.ttl {
			w.Remove(e.Token)
			continue
		}

		mc, ok := marketCap(e.Token)
		if !ok || e.InitialMarketCap <= 0 {
			continue
		}
		if mc >= e.InitialMarketCap*w.promoteMultiple {
			w.Remove(e.Token)
			promoted = append(promoted, e)
		}
	}
	return promoted
}

// Len reports the watched token count.
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Snapshot copies the entries for telemetry.
func (w *Watchlist) Snapshot() []WatchEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]WatchEntry, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e)
	}
	return out
}
