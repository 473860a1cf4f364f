package portfolio_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/internal/portfolio"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func i64(v int64) *int64 { return &v }

type prices struct {
	mu     sync.Mutex
	quotes map[string]decimal.Decimal
	fail   map[string]bool
}

func newPrices() *prices {
	return &prices{quotes: map[string]decimal.Decimal{}, fail: map[string]bool{}}
}

func (p *prices) set(symbol, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = d(price)
	delete(p.fail, symbol)
}

func (p *prices) breaks(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[symbol] = true
}

func (p *prices) GetLatestPrice(_ context.Context, symbol string) (types.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[symbol] {
		return types.Quote{}, errors.New("price source unavailable")
	}
	price, ok := p.quotes[symbol]
	if !ok {
		return types.Quote{}, fmt.Errorf("no data found for symbol: %s", symbol)
	}
	return types.Quote{Symbol: symbol, Price: price}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newLedger(src *prices, opts ...portfolio.Option) *portfolio.Ledger {
	return portfolio.NewLedger(zap.NewNop(), src, types.DefaultStrategyConfig(), types.DefaultPaperTradingConfig(), opts...)
}

func TestBuyAutoSizes(t *testing.T) {
	src := newPrices()
	src.set("AAPL", "100")
	l := newLedger(src)

	trade, err := l.Buy(context.Background(), "aapl", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, types.TradeActionBuy, trade.Action)
	assert.Equal(t, int64(28), trade.Shares)
	assert.True(t, trade.TotalValue.Equal(d("2800")))
	assert.Nil(t, trade.PnL)
	assert.Empty(t, trade.ExitReason)

	snap := l.Snapshot(context.Background())
	assert.True(t, snap.Cash.Equal(d("7200")))
	require.Len(t, snap.Positions, 1)
	pos := snap.Positions[0]
	assert.True(t, pos.InitialStop.Equal(d("93")))
	assert.True(t, pos.TrailingStop.Equal(d("90")))
	assert.True(t, pos.ActiveStop.Equal(d("93")))
	assert.True(t, snap.TotalValue.Equal(d("10000")))
}

func TestBuyRejections(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	src.set("AAPL", "100")
	l := newLedger(src)

	_, err := l.Buy(ctx, "AAPL", i64(0))
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = l.Buy(ctx, "AAPL", i64(101))
	assert.ErrorIs(t, err, portfolio.ErrInsufficientCash)
	assert.ErrorIs(t, err, portfolio.ErrDomainRule)

	_, err = l.Buy(ctx, "MISSING", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, portfolio.ErrDomainRule)

	_, err = l.Buy(ctx, "AAPL", i64(10))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "AAPL", i64(10))
	assert.ErrorIs(t, err, portfolio.ErrDuplicatePosition)

	assert.Len(t, l.Trades(), 1)
	assert.True(t, l.Snapshot(ctx).Cash.Equal(d("9000")))
}

func TestFourthBuyLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	for _, s := range []string{"AAA", "BBB", "CCC", "DDD"} {
		src.set(s, "50")
	}
	l := newLedger(src)

	for _, s := range []string{"AAA", "BBB", "CCC"} {
		_, err := l.Buy(ctx, s, i64(10))
		require.NoError(t, err)
	}
	before := l.Snapshot(ctx)
	trades := len(l.Trades())

	_, err := l.Buy(ctx, "DDD", i64(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, portfolio.ErrMaxPositions)
	assert.ErrorIs(t, err, portfolio.ErrDomainRule)

	after := l.Snapshot(ctx)
	assert.True(t, before.Cash.Equal(after.Cash))
	assert.Equal(t, before.Positions, after.Positions)
	assert.Len(t, l.Trades(), trades)
}

func TestSell(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	src.set("AAPL", "100")
	l := newLedger(src)

	_, err := l.Buy(ctx, "AAPL", nil)
	require.NoError(t, err)

	src.set("AAPL", "110")
	trade, err := l.Sell(ctx, "aapl", "")
	require.NoError(t, err)
	assert.Equal(t, types.TradeActionSell, trade.Action)
	assert.Equal(t, types.ExitReasonManual, trade.ExitReason)
	require.NotNil(t, trade.PnL)
	assert.True(t, trade.PnL.Equal(d("280")))
	assert.True(t, trade.PnLPercent.Equal(d("10")))
	assert.True(t, trade.EntryPrice.Equal(d("100")))
	assert.True(t, trade.TotalValue.Equal(d("3080")))

	snap := l.Snapshot(ctx)
	assert.True(t, snap.Cash.Equal(d("10280")))
	assert.Empty(t, snap.Positions)
	assert.True(t, snap.TotalReturn.Equal(d("280")))
	assert.True(t, snap.TotalReturnPercent.Equal(d("2.8")))

	_, err = l.Sell(ctx, "AAPL", types.ExitReasonManual)
	assert.ErrorIs(t, err, portfolio.ErrNoPosition)

	_, err = l.Sell(ctx, "AAPL", types.ExitReason("panic"))
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	got, ok := l.GetTrade(trade.ID)
	require.True(t, ok)
	assert.Equal(t, trade.ID, got.ID)
	_, ok = l.GetTrade("missing")
	assert.False(t, ok)
}

func TestCheckStops(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	src.set("AAPL", "100")
	src.set("MSFT", "200")
	rec := &recorder{}
	l := newLedger(src, portfolio.WithPublisher(rec))

	_, err := l.Buy(ctx, "AAPL", i64(10))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "MSFT", i64(10))
	require.NoError(t, err)

	src.set("AAPL", "120")
	assert.Empty(t, l.CheckStops(ctx))

	src.set("AAPL", "107")
	src.breaks("MSFT")
	triggered := l.CheckStops(ctx)
	require.Len(t, triggered, 1)
	assert.Equal(t, "AAPL", triggered[0].Symbol)
	assert.Equal(t, types.ExitReasonTrailingStop, triggered[0].ExitReason)
	assert.True(t, triggered[0].PnL.Equal(d("70")))

	snap := l.Snapshot(ctx)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "MSFT", snap.Positions[0].Symbol)
	assert.True(t, snap.Positions[0].CurrentPrice.Equal(d("200")), "falls back to entry price")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 3)
	assert.Equal(t, events.EventTypeStopTriggered, rec.events[2].GetType())
}

func TestSnapshotDailyPnL(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	src.set("AAPL", "100")
	l := newLedger(src)

	_, err := l.Buy(ctx, "AAPL", i64(20))
	require.NoError(t, err)
	src.set("AAPL", "105")

	snap := l.Snapshot(ctx)
	assert.True(t, snap.InvestedValue.Equal(d("2100")))
	assert.True(t, snap.TotalValue.Equal(d("10100")))
	assert.True(t, snap.DailyPnL.Equal(d("100")))
	assert.True(t, snap.DailyPnLPercent.Equal(d("1")))
	assert.True(t, snap.Positions[0].UnrealizedPnL.Equal(d("100")))
	assert.True(t, snap.Positions[0].UnrealizedPnLPercent.Equal(d("5")))
	assert.True(t, snap.Positions[0].HighestPrice.Equal(d("105")))

	point := l.RecordDailyValue(ctx)
	assert.True(t, point.Value.Equal(d("10100")))
	assert.Len(t, l.History(), 2)

	snap = l.Snapshot(ctx)
	assert.True(t, snap.DailyPnL.IsZero())
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	l := newLedger(src)

	empty := l.Stats()
	assert.Zero(t, empty.TotalTrades)
	assert.True(t, empty.WinRate.IsZero())

	src.set("AAA", "100")
	src.set("BBB", "100")
	src.set("CCC", "100")
	for _, s := range []string{"AAA", "BBB", "CCC"} {
		_, err := l.Buy(ctx, s, i64(10))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, l.Stats().TotalTrades)

	src.set("AAA", "120")
	src.set("BBB", "90")
	src.set("CCC", "95")
	assert.True(t, l.RecordDailyValue(ctx).Value.Equal(d("10050")))
	src.set("AAA", "100")
	assert.True(t, l.RecordDailyValue(ctx).Value.Equal(d("9850")))
	src.set("AAA", "120")
	for _, s := range []string{"AAA", "BBB", "CCC"} {
		_, err := l.Sell(ctx, s, types.ExitReasonManual)
		require.NoError(t, err)
	}

	stats := l.Stats()
	assert.Equal(t, 6, stats.TotalTrades)
	assert.Equal(t, 1, stats.WinningTrades)
	assert.Equal(t, 2, stats.LosingTrades)
	assert.True(t, stats.WinRate.Equal(d("33.3")), "win rate %s", stats.WinRate)
	assert.True(t, stats.AverageWin.Equal(d("200")))
	assert.True(t, stats.AverageLoss.Equal(d("-75")))
	assert.True(t, stats.LargestWin.Equal(d("200")))
	assert.True(t, stats.LargestLoss.Equal(d("-100")))
	assert.True(t, stats.MaxDrawdown.Equal(d("200")))
	assert.True(t, stats.MaxDrawdownPercent.Equal(d("1.99")), "dd%% %s", stats.MaxDrawdownPercent)
}

func TestResetThenSnapshot(t *testing.T) {
	ctx := context.Background()
	src := newPrices()
	src.set("AAPL", "100")
	rec := &recorder{}
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := newLedger(src, portfolio.WithPublisher(rec), portfolio.WithClock(func() time.Time { return clock }))

	_, err := l.Buy(ctx, "AAPL", nil)
	require.NoError(t, err)
	l.RecordDailyValue(ctx)

	l.Reset()
	snap := l.Snapshot(ctx)
	assert.True(t, snap.Cash.Equal(l.InitialBalance()))
	assert.Empty(t, snap.Positions)
	assert.Empty(t, l.Trades())
	require.Len(t, l.History(), 1)
	assert.Equal(t, clock, l.History()[0].Timestamp)
	assert.True(t, snap.DailyPnL.IsZero())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, events.EventTypeReset, rec.events[len(rec.events)-1].GetType())
}

func TestConcurrentBuysOpenOnePosition(t *testing.T) {
	src := newPrices()
	src.set("SPY", "100")
	l := newLedger(src)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Buy(context.Background(), "SPY", i64(1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, portfolio.ErrDuplicatePosition) {
				dup++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 15, dup)
	assert.True(t, l.Snapshot(context.Background()).Cash.Equal(d("9900")))
}
