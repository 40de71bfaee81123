package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-trading/magpie/internal/strategy"
)

func TestBookRejectsDuplicateToken(t *testing.T) {
	b := NewBook()

	require.NoError(t, b.Add(Open("TokA", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))
	err := b.Add(Open("TokA", strategy.TrendAnalyst, dec("0.05"), dec("0.001"), time.Now()))
	assert.Error(t, err)
	assert.True(t, b.Has("TokA"))
}

func TestBookExposureTracksMarks(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Add(Open("TokA", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))
	require.NoError(t, b.Add(Open("TokB", strategy.TrendAnalyst, dec("0.1"), dec("0.002"), time.Now())))

	// At entry the exposure equals the SOL spent.
	assert.True(t, b.Exposure().Equal(dec("0.15")), "got %s", b.Exposure())

	// TokA doubles: its 0.05 leg becomes 0.10.
	b.UpdateMark("TokA", dec("0.002"))
	assert.True(t, b.Exposure().Equal(dec("0.2")), "got %s", b.Exposure())

	// A partial sell shrinks the leg proportionally.
	b.ApplySell("TokA", 50, dec("0.002"))
	assert.True(t, b.Exposure().Equal(dec("0.15")), "got %s", b.Exposure())

	b.Remove("TokB")
	assert.True(t, b.Exposure().Equal(dec("0.05")), "got %s", b.Exposure())
}

func TestBookWinLossTally(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Add(Open("Win", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))
	require.NoError(t, b.Add(Open("Loss", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))

	_, pl, ok := b.ApplySell("Win", 100, dec("0.003"))
	require.True(t, ok)
	assert.True(t, pl.IsPositive())

	_, pl, ok = b.ApplySell("Loss", 100, dec("0.0005"))
	require.True(t, ok)
	assert.True(t, pl.IsNegative())

	stats := b.Stats()
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.True(t, stats.RealizedTotal.Equal(pl.Add(dec("0.1"))), "got %s", stats.RealizedTotal)
}

func TestBookPartialSellIsNotAClose(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Add(Open("TokA", strategy.TrendAnalyst, dec("0.05"), dec("0.001"), time.Now())))

	b.ApplySell("TokA", 30, dec("0.0016"))

	pos, ok := b.Get("TokA")
	require.True(t, ok)
	assert.False(t, pos.Closed())
	assert.Equal(t, 0, b.Stats().Wins)
}

func TestBookCountByStrategy(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Add(Open("A", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))
	require.NoError(t, b.Add(Open("B", strategy.UltraEarly, dec("0.05"), dec("0.001"), time.Now())))
	require.NoError(t, b.Add(Open("C", strategy.WhaleCommunity, dec("0.05"), dec("0.001"), time.Now())))

	assert.Equal(t, 2, b.CountByStrategy(strategy.UltraEarly))
	assert.Equal(t, 1, b.CountByStrategy(strategy.WhaleCommunity))
	assert.Equal(t, 0, b.CountByStrategy(strategy.TrendAnalyst))
}

func TestBookApplySellUnknownToken(t *testing.T) {
	b := NewBook()
	_, _, ok := b.ApplySell("Ghost", 100, dec("0.001"))
	assert.False(t, ok)
	assert.False(t, b.UpdateMark("Ghost", dec("0.001")))
}
