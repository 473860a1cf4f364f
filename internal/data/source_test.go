package data

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

type fakeFetcher struct {
	bars  []types.PriceBar
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchBars(_ context.Context, _ string, start, end time.Time) ([]types.PriceBar, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.PriceBar
	for _, b := range f.bars {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

var testNow = time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)

func fixedBars(closes ...int64) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	first := testNow.AddDate(0, 0, -len(closes)+1)
	for i, c := range closes {
		y, m, d := first.AddDate(0, 0, i).Date()
		bars[i] = types.PriceBar{
			Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Close:  decimal.NewFromInt(c),
			Volume: 1000 + int64(i),
		}
	}
	return bars
}

func newTestService(f BarFetcher, ttl time.Duration) *Service {
	s := NewService(zap.NewNop(), f, ttl)
	s.now = func() time.Time { return testNow }
	return s
}

func TestServiceCachesPerSymbolAndWindow(t *testing.T) {
	f := &fakeFetcher{bars: fixedBars(10, 11, 12, 13, 14, 15)}
	s := newTestService(f, time.Minute)
	ctx := context.Background()

	a, err := s.GetBars(ctx, "aapl", 30)
	require.NoError(t, err)
	_, err = s.GetBars(ctx, "AAPL", 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls.Load())

	b, err := s.GetBars(ctx, "AAPL", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load(), "different window is a different key")
	assert.Len(t, a, 6)
	assert.Len(t, b, 3)

	s.ClearCache()
	_, err = s.GetBars(ctx, "AAPL", 30)
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestServiceValidation(t *testing.T) {
	s := newTestService(&fakeFetcher{}, time.Minute)

	_, err := s.GetBars(context.Background(), " ", 10)
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = s.GetBars(context.Background(), "AAPL", 0)
	assert.ErrorAs(t, err, &verr)

	_, err = s.GetBars(context.Background(), "AAPL", 10)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGetLatestPrice(t *testing.T) {
	s := newTestService(&fakeFetcher{bars: fixedBars(100, 110)}, time.Minute)

	q, err := s.GetLatestPrice(context.Background(), "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", q.Symbol)
	assert.Equal(t, "fake", q.Source)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(110)))
	assert.True(t, q.Change.Equal(decimal.NewFromInt(10)))
	assert.True(t, q.ChangePercent.Equal(decimal.NewFromInt(10)))

	s = newTestService(&fakeFetcher{bars: fixedBars(100)}, time.Minute)
	_, err = s.GetLatestPrice(context.Background(), "MSFT")
	assert.ErrorIs(t, err, ErrInsufficientBars)
}

func TestBarCacheExpiry(t *testing.T) {
	c := NewBarCache(5 * time.Minute)
	now := testNow
	c.now = func() time.Time { return now }

	c.Set("k", fixedBars(1, 2))
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(5 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	disabled := NewBarCache(0)
	disabled.Set("k", fixedBars(1))
	assert.Equal(t, 0, disabled.Len())
}
