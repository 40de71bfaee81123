package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Commander sends one text command to the trading agent and returns its
// reply. Errors cover transport failure or reply timeout.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

// AgentClient drives a text-command trading agent. Commands are serialized:
// a single in-flight command at a time with a minimum delay between sends,
// because the agent processes its inbox strictly in order.
type AgentClient struct {
	commander Commander
	delay     time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

func NewAgentClient(commander Commander, commandDelay time.Duration) *AgentClient {
	return &AgentClient{commander: commander, delay: commandDelay}
}

func (a *AgentClient) Buy(ctx context.Context, token string, amountSOL decimal.Decimal) Result {
	reply, err := a.send(ctx, fmt.Sprintf("buy %s %s", token, amountSOL.String()))
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("buy command outcome unknown")
		return a.reconcileBuy(ctx, token)
	}

	switch parseReply(reply) {
	case Confirmed:
		return Confirmed
	case Rejected:
		log.Info().Str("token", token).Str("reply", reply).Msg("buy rejected by agent")
		return Rejected
	default:
		return a.reconcileBuy(ctx, token)
	}
}

func (a *AgentClient) Sell(ctx context.Context, token string, percent float64) Result {
	reply, err := a.send(ctx, fmt.Sprintf("sell %s %.0f%%", token, percent))
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("sell command outcome unknown")
		return a.reconcileSell(ctx, token, percent)
	}

	switch parseReply(reply) {
	case Confirmed:
		return Confirmed
	case Rejected:
		log.Info().Str("token", token).Str("reply", reply).Msg("sell rejected by agent")
		return Rejected
	default:
		return a.reconcileSell(ctx, token, percent)
	}
}

// send serializes command dispatch and enforces the inter-command delay.
func (a *AgentClient) send(ctx context.Context, command string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if wait := a.delay - time.Since(a.lastSend); wait > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	a.lastSend = time.Now()

	return a.commander.Execute(ctx, command)
}

// reconcileBuy resolves an Unknown buy by asking the agent what it holds.
// Holding the token means the buy landed.
func (a *AgentClient) reconcileBuy(ctx context.Context, token string) Result {
	holding, err := a.holds(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("buy reconciliation failed, staying unknown")
		return Unknown
	}
	if holding {
		log.Info().Str("token", token).Msg("unknown buy reconciled to confirmed")
		return Confirmed
	}
	return Rejected
}

// reconcileSell resolves an Unknown sell. A full-close sell is settled by
// the token disappearing from holdings; a partial sell cannot be told apart
// from no fill by presence alone, so it stays Unknown and the exit policy
// re-fires it on a later tick.
func (a *AgentClient) reconcileSell(ctx context.Context, token string, percent float64) Result {
	if percent < 100 {
		return Unknown
	}
	holding, err := a.holds(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("sell reconciliation failed, staying unknown")
		return Unknown
	}
	if !holding {
		log.Info().Str("token", token).Msg("unknown sell reconciled to confirmed")
		return Confirmed
	}
	return Rejected
}

// WalletBalance asks the agent for the wallet's SOL balance. It satisfies
// the risk governor's balance provider.
func (a *AgentClient) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	reply, err := a.send(ctx, "balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance query: %w", err)
	}
	balance, ok := parseBalance(reply)
	if !ok {
		return decimal.Zero, fmt.Errorf("no balance in agent reply %q", reply)
	}
	return balance, nil
}

// parseBalance pulls the balance out of the agent's free-text reply. The
// number right before a currency word wins ("Balance: 4.20 SOL"), so
// incidental numerals ("Wallet 1: ...") cannot shadow it; without a currency
// word the last numeric field is taken.
func parseBalance(reply string) (decimal.Decimal, bool) {
	fields := strings.Fields(reply)

	for i, field := range fields {
		if !strings.EqualFold(strings.Trim(field, ",.;:()"), "SOL") || i == 0 {
			continue
		}
		if d, err := decimal.NewFromString(strings.Trim(fields[i-1], ",;:()")); err == nil {
			return d, true
		}
	}
	for i := len(fields) - 1; i >= 0; i-- {
		if d, err := decimal.NewFromString(strings.Trim(fields[i], ",;:()")); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

func (a *AgentClient) holds(ctx context.Context, token string) (bool, error) {
	reply, err := a.send(ctx, "holdings")
	if err != nil {
		return false, err
	}
	return strings.Contains(reply, token), nil
}

// parseReply keyword-matches the agent's free-text reply.
func parseReply(reply string) Result {
	lower := strings.ToLower(reply)
	for _, kw := range []string{"success", "confirmed", "bought", "sold", "filled"} {
		if strings.Contains(lower, kw) {
			return Confirmed
		}
	}
	for _, kw := range []string{"insufficient", "rejected", "failed", "error", "not found"} {
		if strings.Contains(lower, kw) {
			return Rejected
		}
	}
	return Unknown
}

// HTTPCommander talks to the agent's HTTP bridge: one POST per command, the
// reply body is the agent's text response.
type HTTPCommander struct {
	url        string
	httpClient *http.Client
}

func NewHTTPCommander(url string, timeout time.Duration) *HTTPCommander {
	return &HTTPCommander{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCommander) Execute(ctx context.Context, command string) (string, error) {
	payload, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return "", fmt.Errorf("encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read agent reply: %w", err)
	}
	return string(body), nil
}
