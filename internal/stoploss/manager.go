// Package stoploss tracks the initial and trailing stop of an open position.
//
// The initial stop is fixed when the position opens. The trailing stop follows
// the highest price seen and never moves down. The level that matters is
// always the higher of the two.
package stoploss

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var one = decimal.NewFromInt(1)

// Params holds the stop distances as fractions of price
type Params struct {
	InitialPct  decimal.Decimal
	TrailingPct decimal.Decimal
}

// DefaultParams returns a 7% initial and 10% trailing stop
func DefaultParams() Params {
	return ParamsFromConfig(types.DefaultStrategyConfig())
}

// ParamsFromConfig reads the stop distances from strategy tunables
func ParamsFromConfig(cfg types.StrategyConfig) Params {
	return Params{
		InitialPct:  decimal.NewFromFloat(cfg.InitialStopPct),
		TrailingPct: decimal.NewFromFloat(cfg.TrailingStopPct),
	}
}

// InitialStop returns entry*(1-pct) rounded to cents.
func InitialStop(entry, pct decimal.Decimal) decimal.Decimal {
	return utils.Round2(entry.Mul(one.Sub(pct)))
}

// State is a read-only copy of a manager's levels
type State struct {
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	InitialStop  decimal.Decimal `json:"initialStop"`
	HighestPrice decimal.Decimal `json:"highestPrice"`
	TrailingStop decimal.Decimal `json:"trailingStop"`
	ActiveStop   decimal.Decimal `json:"activeStop"`
}

// Manager is the stop state of one position. It is not safe for concurrent
// use; the owner serializes access.
type Manager struct {
	trailingPct  decimal.Decimal
	entryPrice   decimal.Decimal
	initialStop  decimal.Decimal
	highestPrice decimal.Decimal
	trailingStop decimal.Decimal
}

// New creates a stop manager for a position entered at entry
func New(entry decimal.Decimal, p Params) *Manager {
	return &Manager{
		trailingPct:  p.TrailingPct,
		entryPrice:   entry,
		initialStop:  InitialStop(entry, p.InitialPct),
		highestPrice: entry,
		trailingStop: utils.Round2(entry.Mul(one.Sub(p.TrailingPct))),
	}
}

// Update feeds a new price. The trailing stop is recomputed only on a new
// high. Reports whether the stop moved.
func (m *Manager) Update(price decimal.Decimal) bool {
	if !price.GreaterThan(m.highestPrice) {
		return false
	}
	m.highestPrice = price
	m.trailingStop = utils.Round2(price.Mul(one.Sub(m.trailingPct)))
	return true
}

// ActiveStop returns max(initial, trailing).
func (m *Manager) ActiveStop() decimal.Decimal {
	return decimal.Max(m.initialStop, m.trailingStop)
}

// IsStoppedOut reports whether price is below the active stop. The reason
// names whichever stop currently dominates.
func (m *Manager) IsStoppedOut(price decimal.Decimal) (bool, types.ExitReason) {
	reason := types.ExitReasonInitialStop
	if m.trailingStop.GreaterThanOrEqual(m.initialStop) {
		reason = types.ExitReasonTrailingStop
	}
	return price.LessThan(m.ActiveStop()), reason
}

// EntryPrice returns the fill price the stops were derived from
func (m *Manager) EntryPrice() decimal.Decimal { return m.entryPrice }

// InitialStop returns the fixed initial stop
func (m *Manager) InitialStop() decimal.Decimal { return m.initialStop }

// TrailingStop returns the current trailing stop
func (m *Manager) TrailingStop() decimal.Decimal { return m.trailingStop }

// HighestPrice returns the highest price observed since entry
func (m *Manager) HighestPrice() decimal.Decimal { return m.highestPrice }

// State returns a copy of all levels
func (m *Manager) State() State {
	return State{
		EntryPrice:   m.entryPrice,
		InitialStop:  m.initialStop,
		HighestPrice: m.highestPrice,
		TrailingStop: m.trailingStop,
		ActiveStop:   m.ActiveStop(),
	}
}
