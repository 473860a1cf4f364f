// Package indicators computes moving averages over daily closes.
package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// Value is an indicator reading. OK is false during warm-up.
type Value struct {
	V  decimal.Decimal
	OK bool
}

// Series is an indicator aligned index-for-index with its bars.
type Series []Value

// At returns the reading at i and whether it is defined. Out of range
// indexes are undefined.
func (s Series) At(i int) (decimal.Decimal, bool) {
	if i < 0 || i >= len(s) || !s[i].OK {
		return decimal.Decimal{}, false
	}
	return s[i].V, true
}

// Ptr returns the reading at i as a pointer, nil when undefined.
func (s Series) Ptr(i int) *decimal.Decimal {
	v, ok := s.At(i)
	if !ok {
		return nil
	}
	return &v
}

// SMA returns the simple moving average of values over period. The first
// period-1 entries are undefined.
func SMA(values []decimal.Decimal, period int) (Series, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}

	out := make(Series, len(values))
	n := decimal.NewFromInt(int64(period))
	sum := decimal.Zero

	for i, v := range values {
		sum = sum.Add(v)
		if i >= period {
			sum = sum.Sub(values[i-period])
		}
		if i >= period-1 {
			out[i] = Value{V: sum.Div(n), OK: true}
		}
	}

	return out, nil
}

// Closes extracts closing prices from bars.
func Closes(bars []types.PriceBar) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Pair is the short and long moving averages of one bar sequence.
type Pair struct {
	Short Series
	Long  Series
}

// Engine computes the configured short and long averages.
type Engine struct {
	shortPeriod int
	longPeriod  int
}

// NewEngine creates a new indicator engine
func NewEngine(shortPeriod, longPeriod int) (*Engine, error) {
	if shortPeriod <= 0 || longPeriod <= 0 {
		return nil, fmt.Errorf("periods must be positive, got %d/%d", shortPeriod, longPeriod)
	}
	if shortPeriod >= longPeriod {
		return nil, fmt.Errorf("short period %d must be less than long period %d", shortPeriod, longPeriod)
	}
	return &Engine{shortPeriod: shortPeriod, longPeriod: longPeriod}, nil
}

// NewEngineFromConfig creates an engine from strategy tunables
func NewEngineFromConfig(cfg types.StrategyConfig) (*Engine, error) {
	return NewEngine(cfg.ShortMAPeriod, cfg.LongMAPeriod)
}

// ShortPeriod returns the fast window length
func (e *Engine) ShortPeriod() int { return e.shortPeriod }

// LongPeriod returns the slow window length
func (e *Engine) LongPeriod() int { return e.longPeriod }

// Compute returns both averages for bars.
func (e *Engine) Compute(bars []types.PriceBar) Pair {
	closes := Closes(bars)
	// periods are validated by NewEngine
	short, _ := SMA(closes, e.shortPeriod)
	long, _ := SMA(closes, e.longPeriod)
	return Pair{Short: short, Long: long}
}
