package stoploss_test

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewManagerLevels(t *testing.T) {
	t.Parallel()

	m := stoploss.New(d("150"), stoploss.DefaultParams())

	assert.True(t, m.InitialStop().Equal(d("139.5")), "initial %s", m.InitialStop())
	assert.True(t, m.TrailingStop().Equal(d("135")), "trailing %s", m.TrailingStop())
	assert.True(t, m.HighestPrice().Equal(d("150")))
	assert.True(t, m.ActiveStop().Equal(d("139.5")))
}

func TestManagerRatchet(t *testing.T) {
	t.Parallel()

	m := stoploss.New(d("150"), stoploss.DefaultParams())

	assert.True(t, m.Update(d("160")))
	assert.True(t, m.TrailingStop().Equal(d("144")))
	assert.True(t, m.HighestPrice().Equal(d("160")))

	assert.False(t, m.Update(d("155")))
	assert.True(t, m.TrailingStop().Equal(d("144")))
	assert.True(t, m.HighestPrice().Equal(d("160")))

	stopped, reason := m.IsStoppedOut(d("143"))
	assert.True(t, stopped)
	assert.Equal(t, types.ExitReasonTrailingStop, reason)
}

func TestManagerInitialStopDominates(t *testing.T) {
	t.Parallel()

	m := stoploss.New(d("100"), stoploss.DefaultParams())

	stopped, reason := m.IsStoppedOut(d("93.5"))
	assert.False(t, stopped)
	assert.Equal(t, types.ExitReasonInitialStop, reason)

	stopped, reason = m.IsStoppedOut(d("92.99"))
	assert.True(t, stopped)
	assert.Equal(t, types.ExitReasonInitialStop, reason)

	// Exactly at the stop is not a breach.
	stopped, _ = m.IsStoppedOut(d("93"))
	assert.False(t, stopped)
}

func TestManagerReasonFollowsDominantStop(t *testing.T) {
	t.Parallel()

	m := stoploss.New(d("100"), stoploss.DefaultParams())
	// 104*0.9 = 93.6 > 93, trailing now dominates
	m.Update(d("104"))

	stopped, reason := m.IsStoppedOut(d("93.5"))
	assert.True(t, stopped)
	assert.Equal(t, types.ExitReasonTrailingStop, reason)
}

func TestManagerRatchetLaw(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	m := stoploss.New(d("100"), stoploss.DefaultParams())
	prev := m.TrailingStop()

	for i := 0; i < 500; i++ {
		price := decimal.NewFromFloat(50 + rng.Float64()*100).Round(2)
		m.Update(price)

		assert.True(t, m.TrailingStop().GreaterThanOrEqual(prev), "trailing stop moved down at step %d", i)
		assert.True(t, m.ActiveStop().Equal(decimal.Max(m.InitialStop(), m.TrailingStop())))
		assert.True(t, m.InitialStop().Equal(d("93")))
		prev = m.TrailingStop()
	}
}

func TestManagerState(t *testing.T) {
	t.Parallel()

	m := stoploss.New(d("50"), stoploss.Params{InitialPct: d("0.05"), TrailingPct: d("0.2")})
	m.Update(d("60"))

	s := m.State()
	assert.True(t, s.EntryPrice.Equal(d("50")))
	assert.True(t, s.InitialStop.Equal(d("47.5")))
	assert.True(t, s.HighestPrice.Equal(d("60")))
	assert.True(t, s.TrailingStop.Equal(d("48")))
	assert.True(t, s.ActiveStop.Equal(d("48")))
}

func TestInitialStop(t *testing.T) {
	t.Parallel()

	assert.True(t, stoploss.InitialStop(d("100"), d("0.07")).Equal(d("93")))
	assert.True(t, stoploss.InitialStop(d("123.45"), d("0.07")).Equal(d("114.81")))
}
