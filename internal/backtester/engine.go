// Package backtester replays the moving-average crossover strategy over
// historical daily bars.
package backtester

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/internal/indicators"
	"github.com/atlas-desktop/crossover-trader/internal/metrics"
	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/sizing"
	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

// Engine runs backtests. It holds configuration only; every run owns its
// state, so one Engine may serve concurrent runs.
type Engine struct {
	logger         *zap.Logger
	source         data.PriceSource
	indicators     *indicators.Engine
	sizer          *sizing.PositionSizer
	stops          stoploss.Params
	initialCapital decimal.Decimal
	minLookback    int
	warmupBuffer   int
	now            func() time.Time
}

// NewEngine creates a new backtesting engine
func NewEngine(logger *zap.Logger, source data.PriceSource, strategy types.StrategyConfig, dataCfg types.DataConfig, initialCapital float64) (*Engine, error) {
	ind, err := indicators.NewEngineFromConfig(strategy)
	if err != nil {
		return nil, err
	}

	logger = logger.Named("backtester")
	return &Engine{
		logger:         logger,
		source:         source,
		indicators:     ind,
		sizer:          sizing.NewPositionSizer(logger, sizing.SizingConfigFromStrategy(strategy)),
		stops:          stoploss.ParamsFromConfig(strategy),
		initialCapital: decimal.NewFromFloat(initialCapital),
		minLookback:    dataCfg.BacktestMinLookback,
		warmupBuffer:   dataCfg.BacktestWarmupBuffer,
		now:            time.Now,
	}, nil
}

// DefaultCapital is the capital used when a request names none
func (e *Engine) DefaultCapital() decimal.Decimal { return e.initialCapital }

// lookbackDays sizes the fetch so the long average is warm at the start of
// the requested window.
func (e *Engine) lookbackDays(start *time.Time) int {
	if start == nil {
		return e.minLookback
	}
	days := int(e.now().Sub(*start).Hours()/24) + e.warmupBuffer
	if days < e.minLookback {
		days = e.minLookback
	}
	return days
}

// Run fetches history for the request and replays it.
func (e *Engine) Run(ctx context.Context, req types.BacktestRequest) (*types.BacktestResult, error) {
	started := time.Now()
	result, err := e.run(ctx, req)
	metrics.BacktestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.Backtests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Backtests.WithLabelValues("ok").Inc()
	return result, nil
}

func (e *Engine) run(ctx context.Context, req types.BacktestRequest) (*types.BacktestResult, error) {
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	capital := e.initialCapital
	if req.InitialCapital != nil {
		capital = *req.InitialCapital
	}

	bars, err := e.source.GetBars(ctx, req.Symbol, e.lookbackDays(req.StartDate))
	if err != nil {
		return nil, err
	}

	result, err := e.Replay(req.Symbol, bars, req.StartDate, req.EndDate, capital)
	if err != nil {
		return nil, err
	}
	result.RunID = uuid.New().String()

	e.logger.Info("Backtest completed",
		zap.String("runId", result.RunID),
		zap.String("symbol", result.Symbol),
		zap.Int("bars", len(result.EquityCurve)+1),
		zap.Int("trades", result.TotalTrades),
		zap.String("totalReturn", result.TotalReturn.String()),
	)
	return result, nil
}

// openPosition is the single position a replay may hold
type openPosition struct {
	shares     int64
	entryPrice decimal.Decimal
	entryDate  time.Time
	stop       *stoploss.Manager
}

func (p *openPosition) value(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.shares))
}

// replay is the mutable state of one run
type replay struct {
	cash     decimal.Decimal
	position *openPosition
	trades   []types.ClosedTrade
	curve    []types.EquityPoint
}

func (r *replay) equity(price decimal.Decimal) decimal.Decimal {
	if r.position == nil {
		return r.cash
	}
	return r.cash.Add(r.position.value(price))
}

func (r *replay) record(date time.Time, price decimal.Decimal) {
	r.curve = append(r.curve, types.EquityPoint{Timestamp: date, Value: r.equity(price)})
}

func (r *replay) exit(date time.Time, price decimal.Decimal, reason types.ExitReason) {
	p := r.position
	pnl := price.Sub(p.entryPrice).Mul(decimal.NewFromInt(p.shares))
	pnlPct := price.Div(p.entryPrice).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))

	r.trades = append(r.trades, types.ClosedTrade{
		EntryDate:  p.entryDate,
		EntryPrice: p.entryPrice,
		ExitDate:   date,
		ExitPrice:  price,
		Shares:     p.shares,
		PnL:        utils.Round2(pnl),
		PnLPercent: utils.Round2(pnlPct),
		ExitReason: reason,
	})
	r.cash = r.cash.Add(p.value(price))
	r.position = nil
}

// Replay runs the strategy over bars. Indicators are computed over every
// bar so history before start warms the averages; trading is restricted
// to [start, end].
func (e *Engine) Replay(symbol string, bars []types.PriceBar, start, end *time.Time, capital decimal.Decimal) (*types.BacktestResult, error) {
	full := e.indicators.Compute(bars)

	lo, hi := 0, len(bars)
	for lo < hi && start != nil && bars[lo].Date.Before(*start) {
		lo++
	}
	for hi > lo && end != nil && bars[hi-1].Date.After(*end) {
		hi--
	}

	need := e.indicators.LongPeriod() + 1
	if hi-lo < need {
		return nil, &InsufficientDataError{Have: hi - lo, Need: need}
	}

	window := bars[lo:hi]
	pair := indicators.Pair{Short: full.Short[lo:hi], Long: full.Long[lo:hi]}

	r := &replay{cash: capital}
	for i := 1; i < len(window); i++ {
		bar := window[i]
		price := bar.Close

		if !warm(pair, i) {
			r.record(bar.Date, price)
			continue
		}

		if r.position != nil {
			decision := signals.EvaluateExit(price, signals.CrossAt(pair, i), r.position.stop)
			if decision.ShouldExit() {
				r.exit(bar.Date, price, decision.Reason)
			}
		} else if signals.EvaluateEntry(pair, i, price) {
			e.enter(r, bar, symbol)
		}

		r.record(bar.Date, price)
	}

	if r.position != nil {
		last := window[len(window)-1]
		r.exit(last.Date, last.Close, types.ExitReasonEndOfPeriod)
	}

	return summarize(symbol, window, capital, r), nil
}

func (e *Engine) enter(r *replay, bar types.PriceBar, symbol string) {
	price := bar.Close
	size, err := e.sizer.CalculateSize(sizing.SizingRequest{
		Equity:     r.cash,
		EntryPrice: price,
		StopPrice:  stoploss.InitialStop(price, e.stops.InitialPct),
	})
	if err != nil {
		e.logger.Debug("Skipping entry", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	cost := price.Mul(decimal.NewFromInt(size.Shares))
	if size.Shares <= 0 || cost.GreaterThan(r.cash) {
		return
	}

	r.cash = r.cash.Sub(cost)
	r.position = &openPosition{
		shares:     size.Shares,
		entryPrice: price,
		entryDate:  bar.Date,
		stop:       stoploss.New(price, e.stops),
	}
}

// warm reports whether both averages are defined on bars i-1 and i.
func warm(p indicators.Pair, i int) bool {
	for _, j := range []int{i - 1, i} {
		if _, ok := p.Short.At(j); !ok {
			return false
		}
		if _, ok := p.Long.At(j); !ok {
			return false
		}
	}
	return true
}

// ValidateRequest normalizes the symbol and checks dates and capital.
func ValidateRequest(req *types.BacktestRequest) error {
	req.Symbol = utils.FormatSymbol(req.Symbol)
	if req.Symbol == "" || len(req.Symbol) > 10 {
		return types.NewValidationError("symbol", "must be 1 to 10 characters")
	}
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return types.NewValidationError("date range", "start date %s is after end date %s",
			req.StartDate.Format(utils.DateLayout), req.EndDate.Format(utils.DateLayout))
	}
	if req.InitialCapital != nil {
		c := *req.InitialCapital
		if c.LessThan(MinCapital) || c.GreaterThan(MaxCapital) {
			return types.NewValidationError("initial capital", "%s is outside [%s, %s]", c, MinCapital, MaxCapital)
		}
	}
	return nil
}

// Capital bounds accepted by ValidateRequest
var (
	MinCapital = decimal.NewFromInt(100)
	MaxCapital = decimal.NewFromInt(10_000_000)
)

// String renders a short description of a result for logs and the CLI
func String(r *types.BacktestResult) string {
	return fmt.Sprintf("%s %s..%s: %s -> %s (%s%%), %d trades, win rate %s%%, max drawdown %s (%s%%)",
		r.Symbol, r.StartDate.Format(utils.DateLayout), r.EndDate.Format(utils.DateLayout),
		r.InitialCapital.StringFixed(2), r.FinalValue.StringFixed(2), r.TotalReturnPercent.StringFixed(2),
		r.TotalTrades, r.WinRate.StringFixed(1), r.MaxDrawdown.StringFixed(2), r.MaxDrawdownPercent.StringFixed(2))
}
