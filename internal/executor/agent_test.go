package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StubCommander scripts agent replies per command prefix and records the
// order commands were sent in.
type StubCommander struct {
	mu       sync.Mutex
	Replies  map[string]string // command prefix -> reply
	Errs     map[string]error
	Commands []string
}

func (s *StubCommander) Execute(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commands = append(s.Commands, command)

	for prefix, err := range s.Errs {
		if len(command) >= len(prefix) && command[:len(prefix)] == prefix {
			return "", err
		}
	}
	for prefix, reply := range s.Replies {
		if len(command) >= len(prefix) && command[:len(prefix)] == prefix {
			return reply, nil
		}
	}
	return "", nil
}

func TestBuyConfirmedByReply(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"buy": "Bought 1234 TokA"}}
	client := NewAgentClient(cmd, 0)

	r := client.Buy(context.Background(), "TokA", decimal.RequireFromString("0.05"))
	assert.Equal(t, Confirmed, r)
	require.Len(t, cmd.Commands, 1)
	assert.Equal(t, "buy TokA 0.05", cmd.Commands[0])
}

func TestBuyRejectedByReply(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"buy": "Error: insufficient balance"}}
	client := NewAgentClient(cmd, 0)

	r := client.Buy(context.Background(), "TokA", decimal.RequireFromString("0.05"))
	assert.Equal(t, Rejected, r)
	assert.Len(t, cmd.Commands, 1, "a definitive rejection needs no reconciliation")
}

func TestBuyUnknownReconciledAgainstHoldings(t *testing.T) {
	t.Run("holding present upgrades to confirmed", func(t *testing.T) {
		cmd := &StubCommander{
			Errs:    map[string]error{"buy": errors.New("reply timeout")},
			Replies: map[string]string{"holdings": "TokA: 1234\nTokB: 99"},
		}
		client := NewAgentClient(cmd, 0)

		r := client.Buy(context.Background(), "TokA", decimal.RequireFromString("0.05"))
		assert.Equal(t, Confirmed, r)
	})

	t.Run("holding absent downgrades to rejected", func(t *testing.T) {
		cmd := &StubCommander{
			Errs:    map[string]error{"buy": errors.New("reply timeout")},
			Replies: map[string]string{"holdings": "TokB: 99"},
		}
		client := NewAgentClient(cmd, 0)

		r := client.Buy(context.Background(), "TokA", decimal.RequireFromString("0.05"))
		assert.Equal(t, Rejected, r)
	})

	t.Run("reconciliation failure stays unknown", func(t *testing.T) {
		down := errors.New("agent down")
		cmd := &StubCommander{Errs: map[string]error{"buy": down, "holdings": down}}
		client := NewAgentClient(cmd, 0)

		r := client.Buy(context.Background(), "TokA", decimal.RequireFromString("0.05"))
		assert.Equal(t, Unknown, r)
	})
}

func TestSellReconciliation(t *testing.T) {
	t.Run("full close confirmed when token gone", func(t *testing.T) {
		cmd := &StubCommander{
			Errs:    map[string]error{"sell": errors.New("reply timeout")},
			Replies: map[string]string{"holdings": "TokB: 99"},
		}
		client := NewAgentClient(cmd, 0)

		r := client.Sell(context.Background(), "TokA", 100)
		assert.Equal(t, Confirmed, r)
	})

	t.Run("partial sell stays unknown", func(t *testing.T) {
		cmd := &StubCommander{Errs: map[string]error{"sell": errors.New("reply timeout")}}
		client := NewAgentClient(cmd, 0)

		r := client.Sell(context.Background(), "TokA", 30)
		assert.Equal(t, Unknown, r)
		assert.Len(t, cmd.Commands, 1, "partial sells must not reconcile by presence")
	})
}

func TestSellCommandFormat(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"sell": "Sold"}}
	client := NewAgentClient(cmd, 0)

	client.Sell(context.Background(), "TokA", 30)
	require.Len(t, cmd.Commands, 1)
	assert.Equal(t, "sell TokA 30%", cmd.Commands[0])
}

func TestSendEnforcesCommandDelay(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"sell": "Sold"}}
	client := NewAgentClient(cmd, 30*time.Millisecond)

	start := time.Now()
	client.Sell(context.Background(), "TokA", 100)
	client.Sell(context.Background(), "TokB", 100)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestWalletBalance(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"balance": "Balance: 4.20 SOL"}}
	client := NewAgentClient(cmd, 0)

	balance, err := client.WalletBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("4.20")))
	require.Len(t, cmd.Commands, 1)
	assert.Equal(t, "balance", cmd.Commands[0])
}

func TestWalletBalanceUnparseableReply(t *testing.T) {
	cmd := &StubCommander{Replies: map[string]string{"balance": "no idea"}}
	client := NewAgentClient(cmd, 0)

	_, err := client.WalletBalance(context.Background())
	assert.Error(t, err)
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"Balance: 4.20 SOL", "4.20", true},
		{"10", "10", true},
		{"wallet holds 0.5 SOL (staked: 2)", "0.5", true},
		{"Wallet 1: 4.20 SOL", "4.20", true},
		{"Wallet 1: balance 4.20", "4.20", true},
		{"7 sol", "7", true},
		{"error", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, ok := parseBalance(tt.reply)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)))
			}
		})
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		reply string
		want  Result
	}{
		{"Transaction confirmed", Confirmed},
		{"SUCCESS: swap executed", Confirmed},
		{"Sold 50% of TokA", Confirmed},
		{"Error: slippage exceeded", Rejected},
		{"token not found", Rejected},
		{"processing...", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, parseReply(tt.reply))
		})
	}
}
