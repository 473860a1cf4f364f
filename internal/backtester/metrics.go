package backtester

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

// summarize builds the result of a finished replay. window holds at least
// two bars.
func summarize(symbol string, window []types.PriceBar, capital decimal.Decimal, r *replay) *types.BacktestResult {
	res := &types.BacktestResult{
		Symbol:         symbol,
		StartDate:      window[0].Date,
		EndDate:        window[len(window)-1].Date,
		InitialCapital: capital,
		FinalValue:     utils.Round2(r.cash),
		TotalTrades:    len(r.trades),
		EquityCurve:    r.curve,
		Trades:         r.trades,
	}
	if res.Trades == nil {
		res.Trades = []types.ClosedTrade{}
	}

	totalReturn := r.cash.Sub(capital)
	res.TotalReturn = utils.Round2(totalReturn)
	res.TotalReturnPercent = utils.Round2(utils.Percent(totalReturn, capital))

	for _, t := range r.trades {
		switch {
		case t.PnL.IsPositive():
			res.WinningTrades++
		case t.PnL.IsNegative():
			res.LosingTrades++
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = decimal.NewFromInt(int64(res.WinningTrades)).
			Div(decimal.NewFromInt(int64(res.TotalTrades))).
			Mul(decimal.NewFromInt(100)).
			Round(1)
	}

	values := make([]decimal.Decimal, len(r.curve))
	for i, p := range r.curve {
		values[i] = p.Value
	}
	dd := utils.CalculateMaxDrawdown(capital, values)
	res.MaxDrawdown = utils.Round2(dd.Amount)
	res.MaxDrawdownPercent = utils.Round2(dd.Percent)

	return res
}
