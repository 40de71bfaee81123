package feeds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/strategy"
)

// LaunchpadFeed streams brand-new token mints from the launchpad's
// websocket. Every message is a freshly created token, so candidates go to
// the ultra-early strategy.
type LaunchpadFeed struct {
	cfg    config.LaunchpadFeedConfig
	intake chan<- Candidate
}

func NewLaunchpadFeed(cfg config.LaunchpadFeedConfig, intake chan<- Candidate) *LaunchpadFeed {
	return &LaunchpadFeed{cfg: cfg, intake: intake}
}

type launchpadMessage struct {
	Mint   string `json:"mint"`
	Symbol string `json:"symbol"`
	TxType string `json:"txType"`
}

// Run connects and reads until the context is cancelled, reconnecting with a
// fixed delay on any failure.
func (f *LaunchpadFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Dur("delay", f.cfg.ReconnectDelay).Msg("launchpad feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *LaunchpadFeed) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when the context dies so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := map[string]string{"method": "subscribeNewToken"}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Info().Str("url", f.cfg.WSURL).Msg("launchpad feed connected")

	for {
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(data)
	}
}

func (f *LaunchpadFeed) handleMessage(data []byte) {
	var msg launchpadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("launchpad message skipped")
		return
	}
	if msg.Mint == "" || !ValidToken(msg.Mint) {
		return
	}
	// Subscription acks and trade events share the stream with creations.
	if msg.TxType != "" && msg.TxType != "create" {
		return
	}

	emit(f.intake, Candidate{
		Token:  msg.Mint,
		Symbol: msg.Symbol,
		Source: strategy.UltraEarly,
		SeenAt: time.Now(),
	})
}
