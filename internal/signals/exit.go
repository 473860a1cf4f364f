package signals

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// ExitAction is the outcome of an exit evaluation
type ExitAction int

const (
	Hold ExitAction = iota
	ExitBySignal
	ExitByStop
)

func (a ExitAction) String() string {
	switch a {
	case ExitBySignal:
		return "exit_by_signal"
	case ExitByStop:
		return "exit_by_stop"
	}
	return "hold"
}

// ExitDecision is what to do with an open position at a price
type ExitDecision struct {
	Action ExitAction
	Reason types.ExitReason
}

// ShouldExit reports whether the position closes
func (d ExitDecision) ShouldExit() bool { return d.Action != Hold }

// EvaluateExit feeds price into the stop, then decides. A stop breach wins
// over a crossover on the same bar. cross is the crossover observed on
// exactly this bar; pass none when no bar context exists.
func EvaluateExit(price decimal.Decimal, cross types.SignalType, stop *stoploss.Manager) ExitDecision {
	stop.Update(price)

	if stopped, reason := stop.IsStoppedOut(price); stopped {
		return ExitDecision{Action: ExitByStop, Reason: reason}
	}
	if cross == types.SignalTypeDeathCross {
		return ExitDecision{Action: ExitBySignal, Reason: types.ExitReasonSignal}
	}
	return ExitDecision{Action: Hold}
}
