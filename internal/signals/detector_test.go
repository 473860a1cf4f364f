package signals_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/crossover-trader/internal/indicators"
	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

var (
	// 2/4 windows: short crosses above long on index 5.
	goldenCloses = []int64{10, 9, 8, 7, 6, 10, 14}
	// 2/4 windows: short crosses below long on index 5.
	deathCloses = []int64{6, 7, 8, 9, 10, 6, 2}
)

func barsOf(closes ...int64) []types.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = types.PriceBar{Date: start.AddDate(0, 0, i), Close: decimal.NewFromInt(c)}
	}
	return bars
}

func newDetector(t *testing.T, recency int) *signals.Detector {
	t.Helper()
	engine, err := indicators.NewEngine(2, 4)
	require.NoError(t, err)
	return signals.NewDetector(engine, recency)
}

func TestCrossAt(t *testing.T) {
	t.Parallel()
	d := newDetector(t, 3)

	golden := d.Engine().Compute(barsOf(goldenCloses...))
	death := d.Engine().Compute(barsOf(deathCloses...))

	for i := range goldenCloses {
		want := types.SignalTypeNone
		if i == 5 {
			want = types.SignalTypeGoldenCross
		}
		assert.Equal(t, want, signals.CrossAt(golden, i), "golden index %d", i)
	}
	assert.Equal(t, types.SignalTypeDeathCross, signals.CrossAt(death, 5))
	assert.Equal(t, types.SignalTypeNone, signals.CrossAt(death, 6))
	assert.Equal(t, types.SignalTypeNone, signals.CrossAt(death, 0))
}

func TestDetectMostRecent(t *testing.T) {
	t.Parallel()
	d := newDetector(t, 3)

	bars := barsOf(goldenCloses...)
	c, ok := d.Detect(bars, d.Engine().Compute(bars))
	require.True(t, ok)
	assert.Equal(t, types.SignalTypeGoldenCross, c.Type)
	assert.Equal(t, 5, c.Index)
	assert.Equal(t, 1, c.DaysSince)

	// Fewer than long+1 bars never reports a crossover.
	short := barsOf(10, 9, 8, 7)
	_, ok = d.Detect(short, d.Engine().Compute(short))
	assert.False(t, ok)
}

func TestActionableBuy(t *testing.T) {
	t.Parallel()

	bars := barsOf(goldenCloses...)
	d := newDetector(t, 3)
	p := d.Engine().Compute(bars)
	assert.True(t, d.IsActionableBuy(bars, p))
	assert.False(t, d.IsActionableSell(bars, p))

	stale := newDetector(t, 0)
	assert.False(t, stale.IsActionableBuy(bars, p), "cross is one bar old")

	// Recent golden cross but the last close sits below the long average.
	weak := barsOf(10, 9, 8, 7, 6, 14, 8)
	wp := d.Engine().Compute(weak)
	c, ok := d.Detect(weak, wp)
	require.True(t, ok)
	assert.Equal(t, types.SignalTypeGoldenCross, c.Type)
	assert.False(t, d.IsActionableBuy(weak, wp))
}

func TestActionableSell(t *testing.T) {
	t.Parallel()

	bars := barsOf(deathCloses...)
	d := newDetector(t, 3)
	p := d.Engine().Compute(bars)
	assert.True(t, d.IsActionableSell(bars, p))
	assert.False(t, d.IsActionableBuy(bars, p))
	assert.False(t, newDetector(t, 0).IsActionableSell(bars, p))
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	d := newDetector(t, 3)

	sig := d.Evaluate("AAPL", barsOf(goldenCloses...))
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, types.SignalTypeGoldenCross, sig.SignalType)
	assert.True(t, sig.Price.Equal(decimal.NewFromInt(14)))
	require.NotNil(t, sig.SMAShort)
	require.NotNil(t, sig.SMALong)
	assert.True(t, sig.SMAShort.Equal(decimal.NewFromInt(12)))
	assert.True(t, sig.SMALong.Equal(decimal.RequireFromString("9.25")))
	require.NotNil(t, sig.DaysSinceSignal)
	assert.Equal(t, 1, *sig.DaysSinceSignal)
	assert.True(t, sig.ActionableBuy)

	empty := d.Evaluate("MSFT", nil)
	assert.Equal(t, types.SignalTypeNone, empty.SignalType)
	assert.Nil(t, empty.DaysSinceSignal)

	warm := d.Evaluate("SPY", barsOf(1, 2, 3))
	assert.Nil(t, warm.SMALong)
	assert.NotNil(t, warm.SMAShort)
}

func TestEvaluateEntry(t *testing.T) {
	t.Parallel()
	d := newDetector(t, 3)
	p := d.Engine().Compute(barsOf(goldenCloses...))

	assert.True(t, signals.EvaluateEntry(p, 5, decimal.NewFromInt(10)))
	assert.False(t, signals.EvaluateEntry(p, 5, decimal.NewFromInt(7)), "close below long average")
	assert.False(t, signals.EvaluateEntry(p, 6, decimal.NewFromInt(14)), "cross must be on this bar")
}
