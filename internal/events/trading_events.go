package events

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// TradeEvent carries an executed paper trade
type TradeEvent struct {
	BaseEvent
	Trade types.Trade `json:"trade"`
}

// NewTradeEvent wraps a trade. Sells closed by a stop are published as
// stop_triggered so subscribers can alert on them.
func NewTradeEvent(trade types.Trade) *TradeEvent {
	kind := EventTypeTrade
	if trade.ExitReason == types.ExitReasonInitialStop || trade.ExitReason == types.ExitReasonTrailingStop {
		kind = EventTypeStopTriggered
	}
	return &TradeEvent{BaseEvent: newBaseEvent(kind), Trade: trade}
}

// TickEvent carries a real-time quote
type TickEvent struct {
	BaseEvent
	Quote types.Quote `json:"quote"`
}

// NewTickEvent wraps a quote
func NewTickEvent(q types.Quote) *TickEvent {
	return &TickEvent{BaseEvent: newBaseEvent(EventTypeTick), Quote: q}
}

// SignalEvent carries a freshly evaluated signal
type SignalEvent struct {
	BaseEvent
	Signal types.Signal `json:"signal"`
}

// NewSignalEvent wraps a signal
func NewSignalEvent(s types.Signal) *SignalEvent {
	return &SignalEvent{BaseEvent: newBaseEvent(EventTypeSignal), Signal: s}
}

// BacktestEvent announces a finished backtest
type BacktestEvent struct {
	BaseEvent
	RunID              string          `json:"runId"`
	Symbol             string          `json:"symbol"`
	TotalTrades        int             `json:"totalTrades"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`
}

// NewBacktestEvent summarizes a result
func NewBacktestEvent(r *types.BacktestResult) *BacktestEvent {
	return &BacktestEvent{
		BaseEvent:          newBaseEvent(EventTypeBacktest),
		RunID:              r.RunID,
		Symbol:             r.Symbol,
		TotalTrades:        r.TotalTrades,
		TotalReturnPercent: r.TotalReturnPercent,
	}
}

// ResetEvent announces a paper account reset
type ResetEvent struct {
	BaseEvent
	Cash decimal.Decimal `json:"cash"`
}

// NewResetEvent records the balance after reset
func NewResetEvent(cash decimal.Decimal) *ResetEvent {
	return &ResetEvent{BaseEvent: newBaseEvent(EventTypeReset), Cash: cash}
}
