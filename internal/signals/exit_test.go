package signals_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

func TestEvaluateExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prices []int64
		cross  types.SignalType
		action signals.ExitAction
		reason types.ExitReason
	}{
		{"hold above stop", []int64{101}, types.SignalTypeNone, signals.Hold, ""},
		{"initial stop", []int64{92}, types.SignalTypeNone, signals.ExitByStop, types.ExitReasonInitialStop},
		{"death cross", []int64{95}, types.SignalTypeDeathCross, signals.ExitBySignal, types.ExitReasonSignal},
		{"golden cross holds", []int64{95}, types.SignalTypeGoldenCross, signals.Hold, ""},
		{"stop beats signal", []int64{120, 107}, types.SignalTypeDeathCross, signals.ExitByStop, types.ExitReasonTrailingStop},
		{"trailing stop", []int64{120, 110, 107}, types.SignalTypeNone, signals.ExitByStop, types.ExitReasonTrailingStop},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stop := stoploss.New(decimal.NewFromInt(100), stoploss.DefaultParams())

			var got signals.ExitDecision
			for i, p := range tt.prices {
				cross := types.SignalTypeNone
				if i == len(tt.prices)-1 {
					cross = tt.cross
				}
				got = signals.EvaluateExit(decimal.NewFromInt(p), cross, stop)
			}

			assert.Equal(t, tt.action, got.Action, got.Action.String())
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.action != signals.Hold, got.ShouldExit())
		})
	}
}

func TestEvaluateExitRaisesStop(t *testing.T) {
	t.Parallel()
	stop := stoploss.New(decimal.NewFromInt(100), stoploss.DefaultParams())

	signals.EvaluateExit(decimal.NewFromInt(130), types.SignalTypeNone, stop)
	assert.True(t, stop.ActiveStop().Equal(decimal.NewFromInt(117)))
}
