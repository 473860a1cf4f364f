package indicators_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/crossover-trader/internal/indicators"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

func decs(vals ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestSMAWarmupIsUndefined(t *testing.T) {
	t.Parallel()

	s, err := indicators.SMA(decs(1, 2, 3, 4, 5), 3)
	require.NoError(t, err)
	require.Len(t, s, 5)

	for i := 0; i < 2; i++ {
		_, ok := s.At(i)
		assert.False(t, ok, "index %d should be undefined", i)
		assert.Nil(t, s.Ptr(i))
	}

	want := []int64{2, 3, 4}
	for i, w := range want {
		v, ok := s.At(i + 2)
		require.True(t, ok)
		assert.True(t, v.Equal(decimal.NewFromInt(w)), "index %d got %s", i+2, v)
	}
}

func TestSMAOutOfRange(t *testing.T) {
	t.Parallel()

	s, err := indicators.SMA(decs(1, 2), 1)
	require.NoError(t, err)
	_, ok := s.At(-1)
	assert.False(t, ok)
	_, ok = s.At(2)
	assert.False(t, ok)
}

func TestSMAShorterThanPeriod(t *testing.T) {
	t.Parallel()

	s, err := indicators.SMA(decs(1, 2), 5)
	require.NoError(t, err)
	for i := range s {
		assert.False(t, s[i].OK)
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	t.Parallel()

	_, err := indicators.SMA(decs(1, 2, 3), 0)
	assert.Error(t, err)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	_, err := indicators.NewEngine(50, 10)
	assert.Error(t, err)
	_, err = indicators.NewEngine(0, 10)
	assert.Error(t, err)

	e, err := indicators.NewEngineFromConfig(types.DefaultStrategyConfig())
	require.NoError(t, err)
	assert.Equal(t, 10, e.ShortPeriod())
	assert.Equal(t, 50, e.LongPeriod())
}

func TestEngineCompute(t *testing.T) {
	t.Parallel()

	e, err := indicators.NewEngine(2, 3)
	require.NoError(t, err)

	bars := make([]types.PriceBar, 4)
	for i, c := range decs(10, 20, 30, 40) {
		bars[i].Close = c
	}

	p := e.Compute(bars)
	v, ok := p.Short.At(1)
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(15)))

	_, ok = p.Long.At(1)
	assert.False(t, ok)
	v, ok = p.Long.At(3)
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(30)))
}
