// Package portfolio implements the live paper-trading account.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/internal/metrics"
	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/sizing"
	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

// PriceSource supplies the latest price of a symbol
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (types.Quote, error)
}

// Publisher receives ledger events
type Publisher interface {
	Publish(event events.Event)
}

// Option configures a Ledger
type Option func(*Ledger)

// WithPublisher sends trade and reset events to p
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the paper account. Every exported method takes mu exactly once;
// methods named *Locked expect it held and never take it.
type Ledger struct {
	logger         *zap.Logger
	source         PriceSource
	sizer          *sizing.PositionSizer
	stops          stoploss.Params
	maxPositions   int
	initialBalance decimal.Decimal
	publisher      Publisher
	now            func() time.Time

	mu      sync.Mutex
	cash    decimal.Decimal
	book    *book
	trades  []types.Trade
	history []types.EquityPoint
}

// NewLedger creates a ledger funded with the configured initial balance
func NewLedger(logger *zap.Logger, source PriceSource, strategy types.StrategyConfig, paper types.PaperTradingConfig, opts ...Option) *Ledger {
	logger = logger.Named("portfolio")
	maxPositions := strategy.MaxPositions
	if maxPositions < 1 {
		maxPositions = 1
	}

	l := &Ledger{
		logger:         logger,
		source:         source,
		sizer:          sizing.NewPositionSizer(logger, sizing.SizingConfigFromStrategy(strategy)),
		stops:          stoploss.ParamsFromConfig(strategy),
		maxPositions:   maxPositions,
		initialBalance: decimal.NewFromFloat(paper.InitialBalance),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.resetLocked()
	return l
}

// InitialBalance returns the balance the account starts from
func (l *Ledger) InitialBalance() decimal.Decimal { return l.initialBalance }

func (l *Ledger) resetLocked() {
	l.cash = l.initialBalance
	l.book = newBook(l.maxPositions)
	l.trades = nil
	l.history = []types.EquityPoint{{Timestamp: l.now().UTC(), Value: l.cash}}
	metrics.OpenPositions.Set(0)
}

// Reset restores the initial balance and clears positions, trades and
// value history.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetLocked()
	l.publish(events.NewResetEvent(l.cash))
	l.logger.Info("Portfolio reset", zap.String("cash", l.cash.String()))
}

func (l *Ledger) publish(e events.Event) {
	if l.publisher != nil {
		l.publisher.Publish(e)
	}
}

// Buy opens a position in symbol at the latest price. When shares is nil
// the position is sized against the account's current total value.
func (l *Ledger) Buy(ctx context.Context, symbol string, shares *int64) (types.Trade, error) {
	symbol = utils.FormatSymbol(symbol)
	if symbol == "" {
		return types.Trade{}, types.NewValidationError("symbol", "must not be empty")
	}
	if shares != nil && *shares <= 0 {
		return types.Trade{}, types.NewValidationError("shares", "must be positive, got %d", *shares)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.book.get(symbol) != nil {
		return types.Trade{}, violation(ErrDuplicatePosition, fmt.Sprintf("already have a position in %s", symbol))
	}
	if l.book.full() {
		return types.Trade{}, violation(ErrMaxPositions, fmt.Sprintf("maximum positions (%d) reached", l.maxPositions))
	}

	quote, err := l.source.GetLatestPrice(ctx, symbol)
	if err != nil {
		return types.Trade{}, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}
	price := quote.Price

	var qty int64
	if shares != nil {
		qty = *shares
	} else {
		snap := l.snapshotLocked(ctx)
		size, err := l.sizer.CalculateSize(sizing.SizingRequest{
			Equity:     snap.TotalValue,
			EntryPrice: price,
			StopPrice:  stoploss.InitialStop(price, l.stops.InitialPct),
		})
		if err != nil {
			return types.Trade{}, err
		}
		qty = size.Shares
	}
	if qty <= 0 {
		return types.Trade{}, violation(ErrZeroShares, "cannot buy zero shares")
	}

	cost := price.Mul(decimal.NewFromInt(qty))
	if cost.GreaterThan(l.cash) {
		return types.Trade{}, violation(ErrInsufficientCash,
			fmt.Sprintf("insufficient cash: need $%s, have $%s", cost.StringFixed(2), l.cash.StringFixed(2)))
	}

	now := l.now().UTC()
	pos := &position{
		symbol:     symbol,
		shares:     qty,
		entryPrice: price,
		entryDate:  now,
		stop:       stoploss.New(price, l.stops),
	}
	if !l.book.add(pos) {
		return types.Trade{}, violation(ErrMaxPositions, fmt.Sprintf("maximum positions (%d) reached", l.maxPositions))
	}
	l.cash = l.cash.Sub(cost)

	trade := types.Trade{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Action:     types.TradeActionBuy,
		Shares:     qty,
		Price:      price,
		TotalValue: utils.Round2(cost),
		Timestamp:  now,
	}
	l.trades = append(l.trades, trade)

	metrics.PaperTrades.WithLabelValues(string(types.TradeActionBuy)).Inc()
	metrics.OpenPositions.Set(float64(l.book.len()))
	l.publish(events.NewTradeEvent(trade))
	l.logger.Info("Bought",
		zap.String("symbol", symbol),
		zap.Int64("shares", qty),
		zap.String("price", price.String()),
		zap.String("stop", pos.stop.ActiveStop().String()),
	)
	return trade, nil
}

// Sell closes the whole position in symbol at the latest price.
func (l *Ledger) Sell(ctx context.Context, symbol string, reason types.ExitReason) (types.Trade, error) {
	symbol = utils.FormatSymbol(symbol)
	if reason == "" {
		reason = types.ExitReasonManual
	}
	if !reason.Valid() {
		return types.Trade{}, types.NewValidationError("exit reason", "unknown reason %q", reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.book.get(symbol)
	if pos == nil {
		return types.Trade{}, violation(ErrNoPosition, fmt.Sprintf("no position in %s", symbol))
	}

	quote, err := l.source.GetLatestPrice(ctx, symbol)
	if err != nil {
		return types.Trade{}, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}
	return l.sellLocked(pos, quote.Price, reason), nil
}

func (l *Ledger) sellLocked(pos *position, price decimal.Decimal, reason types.ExitReason) types.Trade {
	total := pos.value(price)
	entryValue := pos.cost()
	pnl := total.Sub(entryValue)
	pnlPct := utils.Round2(utils.Percent(pnl, entryValue))
	pnl = utils.Round2(pnl)
	entry := pos.entryPrice

	l.cash = l.cash.Add(total)
	l.book.remove(pos.symbol)

	trade := types.Trade{
		ID:         uuid.New().String(),
		Symbol:     pos.symbol,
		Action:     types.TradeActionSell,
		Shares:     pos.shares,
		Price:      price,
		TotalValue: utils.Round2(total),
		Timestamp:  l.now().UTC(),
		EntryPrice: &entry,
		PnL:        &pnl,
		PnLPercent: &pnlPct,
		ExitReason: reason,
	}
	l.trades = append(l.trades, trade)

	metrics.PaperTrades.WithLabelValues(string(types.TradeActionSell)).Inc()
	metrics.OpenPositions.Set(float64(l.book.len()))
	l.publish(events.NewTradeEvent(trade))
	l.logger.Info("Sold",
		zap.String("symbol", pos.symbol),
		zap.Int64("shares", pos.shares),
		zap.String("price", price.String()),
		zap.String("pnl", pnl.String()),
		zap.String("reason", string(reason)),
	)
	return trade
}

// CheckStops refreshes every open position and sells those whose stop is
// breached. Symbols whose price cannot be fetched are logged and skipped.
func (l *Ledger) CheckStops(ctx context.Context) []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	triggered := make([]types.Trade, 0)
	for _, pos := range l.book.all() {
		quote, err := l.source.GetLatestPrice(ctx, pos.symbol)
		if err != nil {
			l.logger.Error("Error checking stop", zap.String("symbol", pos.symbol), zap.Error(err))
			continue
		}

		// No bar context here, so only the stop can close the position.
		decision := signals.EvaluateExit(quote.Price, types.SignalTypeNone, pos.stop)
		if decision.Action != signals.ExitByStop {
			continue
		}
		metrics.StopTriggers.WithLabelValues(string(decision.Reason)).Inc()
		triggered = append(triggered, l.sellLocked(pos, quote.Price, decision.Reason))
	}
	return triggered
}

// Snapshot values the account at the latest prices. A position whose price
// cannot be fetched is valued at its entry price.
func (l *Ledger) Snapshot(ctx context.Context) types.AccountSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(ctx)
}

func (l *Ledger) snapshotLocked(ctx context.Context) types.AccountSnapshot {
	snap := types.AccountSnapshot{
		Positions:   make([]types.PositionView, 0, l.book.len()),
		LastUpdated: l.now().UTC(),
	}

	invested := decimal.Zero
	for _, pos := range l.book.all() {
		price := pos.entryPrice
		if quote, err := l.source.GetLatestPrice(ctx, pos.symbol); err == nil {
			price = quote.Price
		} else {
			l.logger.Debug("Valuing at entry price", zap.String("symbol", pos.symbol), zap.Error(err))
		}
		pos.stop.Update(price)

		current := pos.value(price)
		unrealized := current.Sub(pos.cost())
		invested = invested.Add(current)

		st := pos.stop.State()
		snap.Positions = append(snap.Positions, types.PositionView{
			Symbol:               pos.symbol,
			Shares:               pos.shares,
			EntryPrice:           pos.entryPrice,
			EntryDate:            pos.entryDate,
			CurrentPrice:         price,
			HighestPrice:         st.HighestPrice,
			InitialStop:          st.InitialStop,
			TrailingStop:         st.TrailingStop,
			ActiveStop:           st.ActiveStop,
			UnrealizedPnL:        utils.Round2(unrealized),
			UnrealizedPnLPercent: utils.Round2(utils.Percent(unrealized, pos.cost())),
		})
	}

	total := l.cash.Add(invested)
	last := l.history[len(l.history)-1].Value
	daily := total.Sub(last)
	totalReturn := total.Sub(l.initialBalance)

	snap.Cash = utils.Round2(l.cash)
	snap.InvestedValue = utils.Round2(invested)
	snap.TotalValue = utils.Round2(total)
	snap.DailyPnL = utils.Round2(daily)
	snap.DailyPnLPercent = utils.Round2(utils.Percent(daily, last))
	snap.TotalReturn = utils.Round2(totalReturn)
	snap.TotalReturnPercent = utils.Round2(utils.Percent(totalReturn, l.initialBalance))

	metrics.PortfolioValue.Set(snap.TotalValue.InexactFloat64())
	return snap
}

// RecordDailyValue appends the current total value to the value history.
func (l *Ledger) RecordDailyValue(ctx context.Context) types.EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.snapshotLocked(ctx)
	point := types.EquityPoint{Timestamp: snap.LastUpdated, Value: snap.TotalValue}
	l.history = append(l.history, point)
	return point
}

// History returns a copy of the recorded value history
func (l *Ledger) History() []types.EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.EquityPoint(nil), l.history...)
}

// Trades returns a copy of every executed trade in order
func (l *Ledger) Trades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Trade{}, l.trades...)
}

// GetTrade looks up a trade by id
func (l *Ledger) GetTrade(id string) (types.Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.trades {
		if t.ID == id {
			return t, true
		}
	}
	return types.Trade{}, false
}

// Stats summarizes closed trades and the value history
func (l *Ledger) Stats() types.PortfolioStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := types.PortfolioStats{TotalTrades: len(l.trades)}

	var sells int
	winSum, lossSum := decimal.Zero, decimal.Zero
	for _, t := range l.trades {
		if t.Action != types.TradeActionSell || t.PnL == nil {
			continue
		}
		sells++
		pnl := *t.PnL
		switch {
		case pnl.IsPositive():
			stats.WinningTrades++
			winSum = winSum.Add(pnl)
			if pnl.GreaterThan(stats.LargestWin) {
				stats.LargestWin = pnl
			}
		case pnl.IsNegative():
			stats.LosingTrades++
			lossSum = lossSum.Add(pnl)
			if pnl.LessThan(stats.LargestLoss) {
				stats.LargestLoss = pnl
			}
		}
	}
	if sells == 0 {
		return stats
	}

	stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
		Div(decimal.NewFromInt(int64(sells))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
	if stats.WinningTrades > 0 {
		stats.AverageWin = utils.Round2(winSum.Div(decimal.NewFromInt(int64(stats.WinningTrades))))
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = utils.Round2(lossSum.Div(decimal.NewFromInt(int64(stats.LosingTrades))))
	}
	stats.LargestWin = utils.Round2(stats.LargestWin)
	stats.LargestLoss = utils.Round2(stats.LargestLoss)

	values := make([]decimal.Decimal, len(l.history))
	for i, p := range l.history {
		values[i] = p.Value
	}
	dd := utils.CalculateMaxDrawdown(l.initialBalance, values)
	stats.MaxDrawdown = utils.Round2(dd.Amount)
	stats.MaxDrawdownPercent = utils.Round2(dd.Percent)

	return stats
}
