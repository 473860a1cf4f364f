package backtester_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/backtester"
	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func barsOf(closes ...float64) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = types.PriceBar{Date: epoch.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return bars
}

type fakeSource struct {
	mu       sync.Mutex
	bars     map[string][]types.PriceBar
	lookback int
}

func (f *fakeSource) GetBars(_ context.Context, symbol string, days int) ([]types.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookback = days
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.New("no data found")
	}
	return bars, nil
}

func (f *fakeSource) GetLatestPrice(context.Context, string) (types.Quote, error) {
	return types.Quote{}, errors.New("not implemented")
}

func newEngine(t *testing.T, src *fakeSource) *backtester.Engine {
	t.Helper()
	strategy := types.DefaultStrategyConfig()
	strategy.ShortMAPeriod = 2
	strategy.LongMAPeriod = 4

	e, err := backtester.NewEngine(zap.NewNop(), src, strategy, types.DefaultDataConfig(), 10000)
	require.NoError(t, err)
	return e
}

func TestReplayWithoutCrossovers(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	res, err := e.Replay("FLAT", bars, nil, nil, d("10000"))
	require.NoError(t, err)

	assert.Zero(t, res.TotalTrades)
	assert.Empty(t, res.Trades)
	require.Len(t, res.EquityCurve, len(bars)-1)
	for _, p := range res.EquityCurve {
		assert.True(t, p.Value.Equal(d("10000")))
	}
	assert.True(t, res.FinalValue.Equal(d("10000")))
	assert.True(t, res.MaxDrawdown.IsZero())
	assert.True(t, res.WinRate.IsZero())
}

func TestReplayTrailingStopBeatsSignal(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 98, 96, 94, 92, 100, 108, 110, 104, 96, 90)
	res, err := e.Replay("TEST", bars, nil, nil, d("10000"))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, bars[5].Date, tr.EntryDate)
	assert.True(t, tr.EntryPrice.Equal(d("100")))
	assert.Equal(t, int64(28), tr.Shares)
	assert.Equal(t, bars[9].Date, tr.ExitDate)
	assert.True(t, tr.ExitPrice.Equal(d("96")))
	assert.Equal(t, types.ExitReasonTrailingStop, tr.ExitReason)
	assert.True(t, tr.PnL.Equal(d("-112")), "pnl %s", tr.PnL)
	assert.True(t, tr.PnLPercent.Equal(d("-4")), "pnl%% %s", tr.PnLPercent)

	assert.True(t, res.FinalValue.Equal(d("9888")))
	assert.True(t, res.TotalReturn.Equal(d("-112")))
	assert.True(t, res.TotalReturnPercent.Equal(d("-1.12")))
	assert.Equal(t, 0, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.True(t, res.WinRate.IsZero())

	wantCurve := []string{"10000", "10000", "10000", "10000", "10000", "10224", "10280", "10112", "9888", "9888"}
	require.Len(t, res.EquityCurve, len(wantCurve))
	for i, w := range wantCurve {
		assert.True(t, res.EquityCurve[i].Value.Equal(d(w)), "point %d: %s", i, res.EquityCurve[i].Value)
	}

	assert.True(t, res.MaxDrawdown.Equal(d("392")))
	assert.True(t, res.MaxDrawdownPercent.Equal(d("3.81")), "dd%% %s", res.MaxDrawdownPercent)
}

func TestReplaySignalExit(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 98, 96, 94, 92, 100, 102, 101, 99, 97, 96)
	res, err := e.Replay("TEST", bars, nil, nil, d("10000"))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.ExitReasonSignal, res.Trades[0].ExitReason)
	assert.Equal(t, bars[8].Date, res.Trades[0].ExitDate)
	assert.True(t, res.Trades[0].PnL.Equal(d("-28")))
	assert.True(t, res.FinalValue.Equal(d("9972")))
}

func TestReplayClosesAtEndOfPeriod(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 98, 96, 94, 92, 100, 104, 108)
	res, err := e.Replay("TEST", bars, nil, nil, d("10000"))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, types.ExitReasonEndOfPeriod, tr.ExitReason)
	assert.Equal(t, bars[7].Date, tr.ExitDate)
	assert.True(t, tr.PnL.Equal(d("224")))
	assert.True(t, tr.PnLPercent.Equal(d("8")))
	assert.True(t, res.FinalValue.Equal(d("10224")))
	assert.True(t, res.WinRate.Equal(d("100")))
	assert.Equal(t, 1, res.WinningTrades)
}

func TestReplayDateWindowUsesPriorHistory(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 98, 96, 94, 92, 100, 108, 110, 104, 96, 90)
	start := bars[3].Date
	res, err := e.Replay("TEST", bars, &start, nil, d("10000"))
	require.NoError(t, err)

	assert.Equal(t, start, res.StartDate)
	assert.Equal(t, bars[10].Date, res.EndDate)
	require.Len(t, res.EquityCurve, 7)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, bars[5].Date, res.Trades[0].EntryDate)
}

func TestReplayInsufficientData(t *testing.T) {
	t.Parallel()
	e := newEngine(t, &fakeSource{})

	bars := barsOf(100, 98, 96, 94, 92, 100, 108)
	end := bars[3].Date
	_, err := e.Replay("TEST", bars, nil, &end, d("10000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, backtester.ErrInsufficientData)

	var ide *backtester.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 4, ide.Have)
	assert.Equal(t, 5, ide.Need)
}

func TestRun(t *testing.T) {
	t.Parallel()
	src := &fakeSource{bars: map[string][]types.PriceBar{
		"TEST": barsOf(100, 98, 96, 94, 92, 100, 104, 108),
	}}
	e := newEngine(t, src)

	res, err := e.Run(context.Background(), types.BacktestRequest{Symbol: " test "})
	require.NoError(t, err)
	assert.Equal(t, "TEST", res.Symbol)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 500, src.lookback)
	assert.True(t, res.InitialCapital.Equal(d("10000")))

	capital := d("50000")
	res, err = e.Run(context.Background(), types.BacktestRequest{Symbol: "TEST", InitialCapital: &capital})
	require.NoError(t, err)
	assert.True(t, res.InitialCapital.Equal(capital))

	_, err = e.Run(context.Background(), types.BacktestRequest{Symbol: "NONE"})
	assert.Error(t, err)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	low := d("99.99")
	high := d("10000000.01")
	later := epoch.AddDate(0, 1, 0)

	tests := []struct {
		name string
		req  types.BacktestRequest
	}{
		{"empty symbol", types.BacktestRequest{Symbol: "  "}},
		{"long symbol", types.BacktestRequest{Symbol: "ABCDEFGHIJK"}},
		{"capital too low", types.BacktestRequest{Symbol: "AAPL", InitialCapital: &low}},
		{"capital too high", types.BacktestRequest{Symbol: "AAPL", InitialCapital: &high}},
		{"inverted range", types.BacktestRequest{Symbol: "AAPL", StartDate: &later, EndDate: &epoch}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := backtester.ValidateRequest(&tt.req)
			var verr *types.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	ok := types.BacktestRequest{Symbol: "spy", StartDate: &epoch, EndDate: &later}
	require.NoError(t, backtester.ValidateRequest(&ok))
	assert.Equal(t, "SPY", ok.Symbol)
}

func TestRunBatch(t *testing.T) {
	t.Parallel()
	src := &fakeSource{bars: map[string][]types.PriceBar{
		"AAA": barsOf(100, 98, 96, 94, 92, 100, 104, 108),
	}}
	e := newEngine(t, src)

	pool := workers.NewPool(zap.NewNop(), workers.DefaultPoolConfig("batch-test"))
	pool.Start()
	defer func() { _ = pool.Stop() }()

	out := e.RunBatch(context.Background(), pool, []types.BacktestRequest{
		{Symbol: "AAA"},
		{Symbol: "BBB"},
	})
	require.Len(t, out, 2)
	require.NoError(t, out[0].Err)
	assert.Equal(t, 1, out[0].Result.TotalTrades)
	assert.Error(t, out[1].Err)
	assert.Nil(t, out[1].Result)
}
