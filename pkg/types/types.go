// Package types provides shared type definitions for the crossover trader.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction represents buy or sell
type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// ExitReason explains why a position was closed
type ExitReason string

const (
	ExitReasonSignal       ExitReason = "signal"
	ExitReasonInitialStop  ExitReason = "initial_stop"
	ExitReasonTrailingStop ExitReason = "trailing_stop"
	ExitReasonManual       ExitReason = "manual"
	ExitReasonEndOfPeriod  ExitReason = "end_of_period"
)

// Valid reports whether r is one of the known exit reasons
func (r ExitReason) Valid() bool {
	switch r {
	case ExitReasonSignal, ExitReasonInitialStop, ExitReasonTrailingStop,
		ExitReasonManual, ExitReasonEndOfPeriod:
		return true
	}
	return false
}

// SignalType represents the kind of moving-average crossover
type SignalType string

const (
	SignalTypeGoldenCross SignalType = "golden_cross"
	SignalTypeDeathCross  SignalType = "death_cross"
	SignalTypeNone        SignalType = "none"
)

// PriceBar represents a single daily candlestick
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Quote is the latest known price of a symbol
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source,omitempty"`
}

// Trade is an executed paper trade. Sell trades carry the pnl fields.
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Action     TradeAction      `json:"action"`
	Shares     int64            `json:"shares"`
	Price      decimal.Decimal  `json:"price"`
	TotalValue decimal.Decimal  `json:"totalValue"`
	Timestamp  time.Time        `json:"timestamp"`
	EntryPrice *decimal.Decimal `json:"entryPrice,omitempty"`
	PnL        *decimal.Decimal `json:"pnl,omitempty"`
	PnLPercent *decimal.Decimal `json:"pnlPercent,omitempty"`
	ExitReason ExitReason       `json:"exitReason,omitempty"`
}

// ClosedTrade is a completed round trip in a backtest
type ClosedTrade struct {
	EntryDate  time.Time       `json:"entryDate"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitDate   time.Time       `json:"exitDate"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	Shares     int64           `json:"shares"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnlPercent"`
	ExitReason ExitReason      `json:"exitReason"`
}

// EquityPoint is one sample of total account value
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// PositionView is an open position valued at the latest price
type PositionView struct {
	Symbol               string          `json:"symbol"`
	Shares               int64           `json:"shares"`
	EntryPrice           decimal.Decimal `json:"entryPrice"`
	EntryDate            time.Time       `json:"entryDate"`
	CurrentPrice         decimal.Decimal `json:"currentPrice"`
	HighestPrice         decimal.Decimal `json:"highestPrice"`
	InitialStop          decimal.Decimal `json:"initialStop"`
	TrailingStop         decimal.Decimal `json:"trailingStop"`
	ActiveStop           decimal.Decimal `json:"activeStop"`
	UnrealizedPnL        decimal.Decimal `json:"unrealizedPnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealizedPnlPercent"`
}

// AccountSnapshot is a consistent valuation of the paper account
type AccountSnapshot struct {
	Cash               decimal.Decimal `json:"cash"`
	Positions          []PositionView  `json:"positions"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	InvestedValue      decimal.Decimal `json:"investedValue"`
	DailyPnL           decimal.Decimal `json:"dailyPnl"`
	DailyPnLPercent    decimal.Decimal `json:"dailyPnlPercent"`
	TotalReturn        decimal.Decimal `json:"totalReturn"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`
	LastUpdated        time.Time       `json:"lastUpdated"`
}

// PortfolioStats summarizes closed paper trades
type PortfolioStats struct {
	TotalTrades        int             `json:"totalTrades"`
	WinningTrades      int             `json:"winningTrades"`
	LosingTrades       int             `json:"losingTrades"`
	WinRate            decimal.Decimal `json:"winRate"`
	AverageWin         decimal.Decimal `json:"averageWin"`
	AverageLoss        decimal.Decimal `json:"averageLoss"`
	LargestWin         decimal.Decimal `json:"largestWin"`
	LargestLoss        decimal.Decimal `json:"largestLoss"`
	MaxDrawdown        decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownPercent decimal.Decimal `json:"maxDrawdownPercent"`
}

// BacktestRequest describes a historical replay
type BacktestRequest struct {
	Symbol         string           `json:"symbol"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
	EndDate        *time.Time       `json:"endDate,omitempty"`
	InitialCapital *decimal.Decimal `json:"initialCapital,omitempty"`
}

// BacktestResult contains the outcome of a historical replay
type BacktestResult struct {
	RunID              string          `json:"runId,omitempty"`
	Symbol             string          `json:"symbol"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	InitialCapital     decimal.Decimal `json:"initialCapital"`
	FinalValue         decimal.Decimal `json:"finalValue"`
	TotalReturn        decimal.Decimal `json:"totalReturn"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`
	TotalTrades        int             `json:"totalTrades"`
	WinningTrades      int             `json:"winningTrades"`
	LosingTrades       int             `json:"losingTrades"`
	WinRate            decimal.Decimal `json:"winRate"`
	MaxDrawdown        decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownPercent decimal.Decimal `json:"maxDrawdownPercent"`
	EquityCurve        []EquityPoint   `json:"equityCurve"`
	Trades             []ClosedTrade   `json:"trades"`
}

// Signal is the current crossover state of a symbol
type Signal struct {
	Symbol          string           `json:"symbol"`
	SignalType      SignalType       `json:"signalType"`
	Price           decimal.Decimal  `json:"price"`
	SMAShort        *decimal.Decimal `json:"smaShort"`
	SMALong         *decimal.Decimal `json:"smaLong"`
	Timestamp       time.Time        `json:"timestamp"`
	DaysSinceSignal *int             `json:"daysSinceSignal"`
	ActionableBuy   bool             `json:"actionableBuy"`
	ActionableSell  bool             `json:"actionableSell"`
}

// SignalSummary groups signals for several symbols
type SignalSummary struct {
	Signals     []Signal  `json:"signals"`
	LastUpdated time.Time `json:"lastUpdated"`
}
