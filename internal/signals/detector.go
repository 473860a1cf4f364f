// Package signals detects moving-average crossovers and turns them into
// entry and exit decisions.
package signals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/internal/indicators"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// CrossAt classifies bar i of p. Bars where any of the four readings
// (previous and current, short and long) is undefined report none.
func CrossAt(p indicators.Pair, i int) types.SignalType {
	if i < 1 {
		return types.SignalTypeNone
	}
	prevS, ok1 := p.Short.At(i - 1)
	prevL, ok2 := p.Long.At(i - 1)
	curS, ok3 := p.Short.At(i)
	curL, ok4 := p.Long.At(i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.SignalTypeNone
	}

	switch {
	case prevS.LessThanOrEqual(prevL) && curS.GreaterThan(curL):
		return types.SignalTypeGoldenCross
	case prevS.GreaterThanOrEqual(prevL) && curS.LessThan(curL):
		return types.SignalTypeDeathCross
	}
	return types.SignalTypeNone
}

// Crossover is a crossover event located in a series
type Crossover struct {
	Type      types.SignalType
	Index     int
	DaysSince int
}

// MostRecent scans backward from the last bar and returns the first
// crossover found.
func MostRecent(p indicators.Pair) (Crossover, bool) {
	last := len(p.Short) - 1
	for i := last; i >= 1; i-- {
		if t := CrossAt(p, i); t != types.SignalTypeNone {
			return Crossover{Type: t, Index: i, DaysSince: last - i}, true
		}
	}
	return Crossover{Type: types.SignalTypeNone}, false
}

// Detector classifies the live signal state of a bar sequence.
type Detector struct {
	engine      *indicators.Engine
	recencyDays int
}

// NewDetector creates a new Detector. Crossovers older than recencyDays bars
// are not actionable.
func NewDetector(engine *indicators.Engine, recencyDays int) *Detector {
	return &Detector{engine: engine, recencyDays: recencyDays}
}

// NewDetectorFromConfig creates a detector from strategy tunables
func NewDetectorFromConfig(cfg types.StrategyConfig) (*Detector, error) {
	engine, err := indicators.NewEngineFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewDetector(engine, cfg.SignalRecencyDays), nil
}

// Engine returns the indicator engine the detector uses
func (d *Detector) Engine() *indicators.Engine { return d.engine }

// Detect returns the most recent crossover of bars. Sequences shorter than
// the long window plus one report none.
func (d *Detector) Detect(bars []types.PriceBar, p indicators.Pair) (Crossover, bool) {
	if len(bars) < d.engine.LongPeriod()+1 {
		return Crossover{Type: types.SignalTypeNone}, false
	}
	return MostRecent(p)
}

// IsActionableBuy reports a recent golden cross with the last close above
// the long average.
func (d *Detector) IsActionableBuy(bars []types.PriceBar, p indicators.Pair) bool {
	c, ok := d.Detect(bars, p)
	if !ok || c.Type != types.SignalTypeGoldenCross || c.DaysSince > d.recencyDays {
		return false
	}
	last := len(bars) - 1
	long, ok := p.Long.At(last)
	if !ok {
		return false
	}
	return bars[last].Close.GreaterThan(long)
}

// IsActionableSell reports a recent death cross. No trend filter applies.
func (d *Detector) IsActionableSell(bars []types.PriceBar, p indicators.Pair) bool {
	c, ok := d.Detect(bars, p)
	return ok && c.Type == types.SignalTypeDeathCross && c.DaysSince <= d.recencyDays
}

// Evaluate builds the signal view of symbol from its bars.
func (d *Detector) Evaluate(symbol string, bars []types.PriceBar) types.Signal {
	sig := types.Signal{
		Symbol:     symbol,
		SignalType: types.SignalTypeNone,
		Timestamp:  time.Now().UTC(),
	}
	if len(bars) == 0 {
		return sig
	}

	p := d.engine.Compute(bars)
	last := len(bars) - 1
	sig.Price = bars[last].Close
	sig.Timestamp = bars[last].Date
	sig.SMAShort = p.Short.Ptr(last)
	sig.SMALong = p.Long.Ptr(last)

	if c, ok := d.Detect(bars, p); ok {
		days := c.DaysSince
		sig.SignalType = c.Type
		sig.DaysSinceSignal = &days
	}
	sig.ActionableBuy = d.IsActionableBuy(bars, p)
	sig.ActionableSell = d.IsActionableSell(bars, p)

	return sig
}

// EvaluateEntry reports whether bar i opens a position: a golden cross on
// exactly this bar confirmed by a close above the long average.
func EvaluateEntry(p indicators.Pair, i int, price decimal.Decimal) bool {
	if CrossAt(p, i) != types.SignalTypeGoldenCross {
		return false
	}
	long, ok := p.Long.At(i)
	return ok && price.GreaterThan(long)
}
