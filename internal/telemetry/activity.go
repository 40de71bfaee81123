package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// Event kinds shown in the activity journal.
const (
	EventCandidate = "candidate"
	EventRejected  = "rejected"
	EventBuy       = "buy"
	EventSell      = "sell"
	EventRisk      = "risk"
	EventSystem    = "system"
)

// Entry is one human-readable line of the activity journal.
type Entry struct {
	Kind      string    `json:"kind"`
	Token     string    `json:"token,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Journal keeps the last maxBuf activity entries in memory (FIFO). It backs
// the dashboard's activity pane; durable history lives in the trade stores.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	maxBuf  int
}

func NewJournal(maxBuf int) *Journal {
	if maxBuf <= 0 {
		maxBuf = 1000
	}
	return &Journal{
		entries: make([]Entry, 0, maxBuf),
		maxBuf:  maxBuf,
	}
}

// Record appends an entry, discarding the oldest when the buffer is full.
func (j *Journal) Record(kind, token, strat, format string, args ...any) {
	entry := Entry{
		Kind:      kind,
		Token:     token,
		Strategy:  strat,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) >= j.maxBuf {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, entry)
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = j.entries[len(j.entries)-1-i]
	}
	return out
}

// Len reports how many entries are buffered.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
