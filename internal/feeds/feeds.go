package feeds

import (
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/magpie-trading/magpie/internal/strategy"
)

// Candidate is one token surfaced by a feed, tagged with the strategy that
// should evaluate it.
type Candidate struct {
	Token  string
	Symbol string
	Source strategy.Strategy
	SeenAt time.Time
}

// ValidToken checks that an address is plausible Solana base58: decodes and
// is 32 bytes. Feeds drop anything else at the boundary so garbage never
// reaches the pipeline.
func ValidToken(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(raw) == 32
}

// emit pushes a candidate into the bounded intake without blocking the feed.
// A full intake means the orchestrator is behind; dropping the newest
// candidate is safer than stalling a websocket read loop.
func emit(intake chan<- Candidate, c Candidate) {
	select {
	case intake <- c:
	default:
		log.Warn().
			Str("token", c.Token).
			Str("source", string(c.Source)).
			Msg("intake full, candidate dropped")
	}
}
