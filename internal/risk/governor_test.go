package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-trading/magpie/internal/config"
)

// StubBalances is a scriptable BalanceProvider.
type StubBalances struct {
	Balance decimal.Decimal
	Err     error
}

func (s *StubBalances) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	if s.Err != nil {
		return decimal.Zero, s.Err
	}
	return s.Balance, nil
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxExposureFraction: 0.5,
		DailyLossLimit:      0.5,
		PerTradeCapSOL:      0.1,
		MinTradeSOL:         0.01,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func refreshedGovernor(t *testing.T, balance string) (*Governor, *StubBalances) {
	t.Helper()
	balances := &StubBalances{Balance: dec(balance)}
	g := NewGovernor(testRiskConfig(), balances)
	require.False(t, g.Refresh(context.Background()))
	return g, balances
}

func TestSizeForScoreMultiplier(t *testing.T) {
	g, _ := refreshedGovernor(t, "10") // budget 5 SOL, nothing deployed

	sc := config.StrategyConfig{BaseBuySOL: 0.05}

	// Scores in [65,95] land sizes in [0.0575, 0.0725].
	low := g.SizeFor(sc, 65, decimal.Zero)
	high := g.SizeFor(sc, 95, decimal.Zero)

	assert.True(t, low.Equal(dec("0.0575")), "got %s", low)
	assert.True(t, high.Equal(dec("0.0725")), "got %s", high)
	assert.True(t, high.GreaterThan(low))
}

func TestSizeForPerTradeCap(t *testing.T) {
	g, _ := refreshedGovernor(t, "100")

	sc := config.StrategyConfig{BaseBuySOL: 0.5}
	size := g.SizeFor(sc, 90, decimal.Zero)
	assert.True(t, size.Equal(dec("0.1")), "cap must bound the size, got %s", size)
}

func TestSizeForAvailableBudget(t *testing.T) {
	g, _ := refreshedGovernor(t, "1") // budget 0.5 SOL

	sc := config.StrategyConfig{BaseBuySOL: 0.05}

	t.Run("exposure shrinks available", func(t *testing.T) {
		size := g.SizeFor(sc, 80, dec("0.48")) // 0.02 left
		assert.True(t, size.Equal(dec("0.02")), "got %s", size)
	})

	t.Run("below minimum trade size yields zero", func(t *testing.T) {
		size := g.SizeFor(sc, 80, dec("0.495")) // 0.005 left
		assert.True(t, size.IsZero())
	})
}

func TestSizeForZeroWhenDisabled(t *testing.T) {
	g, _ := refreshedGovernor(t, "10")
	sc := config.StrategyConfig{BaseBuySOL: 0.05}

	g.Pause("test")
	assert.True(t, g.SizeFor(sc, 90, decimal.Zero).IsZero())
	assert.False(t, g.AdmitTrade())

	g.Resume()
	assert.False(t, g.SizeFor(sc, 90, decimal.Zero).IsZero())

	g.Kill()
	assert.True(t, g.SizeFor(sc, 90, decimal.Zero).IsZero())
	g.Resume() // kill switch is terminal
	assert.False(t, g.AdmitTrade())
}

func TestRefreshDailyLossKillSwitch(t *testing.T) {
	cfg := testRiskConfig()
	cfg.AggressiveFlatten = true
	balances := &StubBalances{Balance: dec("10")}
	g := NewGovernor(cfg, balances)

	require.False(t, g.Refresh(context.Background()))
	require.True(t, g.AdmitTrade())

	// Balance drops 51% within the same day: trading disabled, flatten
	// requested exactly once.
	balances.Balance = dec("4.9")
	assert.True(t, g.Refresh(context.Background()))
	assert.False(t, g.AdmitTrade())
	assert.False(t, g.Refresh(context.Background()), "flatten must fire once per breach")

	// Recovery above the limit re-enables and re-arms.
	balances.Balance = dec("9")
	assert.False(t, g.Refresh(context.Background()))
	assert.True(t, g.AdmitTrade())

	balances.Balance = dec("4")
	assert.True(t, g.Refresh(context.Background()), "new breach re-fires the flatten")
}

func TestRefreshNoFlattenWithoutAggressiveMode(t *testing.T) {
	balances := &StubBalances{Balance: dec("10")}
	g := NewGovernor(testRiskConfig(), balances)
	require.False(t, g.Refresh(context.Background()))

	balances.Balance = dec("4")
	assert.False(t, g.Refresh(context.Background()))
	assert.False(t, g.AdmitTrade(), "trading still disabled on breach")
}

func TestRefreshBalanceErrorKeepsState(t *testing.T) {
	g, balances := refreshedGovernor(t, "10")

	balances.Err = errors.New("rpc down")
	assert.False(t, g.Refresh(context.Background()))
	assert.True(t, g.AdmitTrade())
	assert.True(t, g.Stats().Balance.Equal(dec("10")))
}
