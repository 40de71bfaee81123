package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-trading/magpie/internal/strategy"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOpenDerivesTokenSize(t *testing.T) {
	pos := Open("TokA", strategy.UltraEarly, dec("0.06"), dec("0.001"), time.Now())

	assert.True(t, pos.Size.Equal(dec("60")), "0.06 SOL at 0.001 buys 60 tokens, got %s", pos.Size)
	assert.True(t, pos.LastPrice.Equal(dec("0.001")))
	assert.True(t, pos.LocalHigh.Equal(dec("0.001")))
	assert.Equal(t, 0.0, pos.TotalSoldPct)
}

func TestUpdateMarkHighWaterMark(t *testing.T) {
	pos := Open("TokA", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())

	pos.UpdateMark(dec("0.002"))
	assert.True(t, pos.LocalHigh.Equal(dec("0.002")))

	// High only ratchets up.
	pos.UpdateMark(dec("0.0015"))
	assert.True(t, pos.LastPrice.Equal(dec("0.0015")))
	assert.True(t, pos.LocalHigh.Equal(dec("0.002")))
}

func TestApplySellFullCloseRealizedPL(t *testing.T) {
	pos := Open("TokA", strategy.UltraEarly, dec("0.06"), dec("0.001"), time.Now())
	pos.UpdateMark(dec("0.0031")) // 3.1x

	sold, pl := pos.ApplySell(100, dec("0.0031"))

	assert.True(t, sold.Equal(dec("60")))
	// (0.0031 - 0.001) * 60 = 0.126 = 2.1x the 0.06 SOL spent
	assert.True(t, pl.Equal(dec("0.126")), "got %s", pl)
	assert.True(t, pos.Closed())
	assert.Equal(t, 100.0, pos.TotalSoldPct)
}

func TestApplySellPartial(t *testing.T) {
	pos := Open("TokA", strategy.TrendAnalyst, dec("0.05"), dec("0.001"), time.Now())

	sold, pl := pos.ApplySell(30, dec("0.0016"))

	assert.True(t, sold.Equal(dec("15")))
	assert.True(t, pl.Equal(dec("0.009")), "got %s", pl) // 0.0006 * 15
	assert.True(t, pos.Size.Equal(dec("35")))
	assert.Equal(t, 30.0, pos.TotalSoldPct)
	assert.False(t, pos.Closed())
}

func TestApplySellClampsInvariants(t *testing.T) {
	pos := Open("TokA", strategy.TrendAnalyst, dec("0.05"), dec("0.001"), time.Now())

	t.Run("percent above 100 clamps", func(t *testing.T) {
		pos.ApplySell(150, dec("0.001"))
		assert.Equal(t, 100.0, pos.TotalSoldPct)
		assert.False(t, pos.Size.IsNegative())
	})

	t.Run("negative percent is a no-op", func(t *testing.T) {
		before := pos.Size
		sold, _ := pos.ApplySell(-10, dec("0.001"))
		assert.True(t, sold.IsZero())
		assert.True(t, pos.Size.Equal(before))
	})
}

func TestValueAndUnrealized(t *testing.T) {
	pos := Open("TokA", strategy.WhaleCommunity, dec("0.1"), dec("0.002"), time.Now())
	pos.UpdateMark(dec("0.003"))

	require.True(t, pos.Size.Equal(dec("50")))
	assert.True(t, pos.Value().Equal(dec("0.15")))
	assert.True(t, pos.UnrealizedPL().Equal(dec("0.05")))
	assert.InDelta(t, 1.5, pos.Multiple(), 0.0001)
}
