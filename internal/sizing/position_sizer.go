// Package sizing provides risk-based position sizing.
//
// A position is sized so that a stop-out loses at most a fixed fraction of
// equity, and so that no single position exceeds a fixed fraction of equity.
package sizing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var (
	// ErrInvalidEntryPrice is returned when the entry price is not positive
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
	// ErrInvalidStopPrice is returned when the stop is not strictly between zero and entry
	ErrInvalidStopPrice = errors.New("stop price must be positive and below entry price")
	// ErrInvalidEquity is returned when equity is not positive
	ErrInvalidEquity = errors.New("equity must be positive")
)

// Limiting factors reported in SizingResult
const (
	LimitRisk        = "risk"
	LimitPositionCap = "position_cap"
	LimitMinimumLot  = "minimum_one_share"
)

// SizingConfig configures position sizing
type SizingConfig struct {
	MaxRiskPct     decimal.Decimal // Equity fraction lost if the stop is hit (default 2%)
	MaxPositionPct decimal.Decimal // Equity fraction held in one position (default 33%)
}

// DefaultSizingConfig returns the 2% risk / 33% cap defaults
func DefaultSizingConfig() *SizingConfig {
	return SizingConfigFromStrategy(types.DefaultStrategyConfig())
}

// SizingConfigFromStrategy reads the caps from strategy tunables
func SizingConfigFromStrategy(cfg types.StrategyConfig) *SizingConfig {
	return &SizingConfig{
		MaxRiskPct:     decimal.NewFromFloat(cfg.MaxRiskPerTradePct),
		MaxPositionPct: decimal.NewFromFloat(cfg.MaxPositionPct),
	}
}

// PositionSizer calculates order sizes. It holds no mutable state and is
// safe for concurrent use.
type PositionSizer struct {
	logger *zap.Logger
	config *SizingConfig
}

// NewPositionSizer creates a new position sizer
func NewPositionSizer(logger *zap.Logger, config *SizingConfig) *PositionSizer {
	if config == nil {
		config = DefaultSizingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionSizer{
		logger: logger.Named("position-sizer"),
		config: config,
	}
}

// SizingRequest contains inputs for position sizing
type SizingRequest struct {
	Equity     decimal.Decimal
	EntryPrice decimal.Decimal
	StopPrice  decimal.Decimal
}

// SizingResult contains the calculated position size
type SizingResult struct {
	Shares         int64           `json:"shares"`
	PositionValue  decimal.Decimal `json:"positionValue"`
	RiskAmount     decimal.Decimal `json:"riskAmount"`
	RiskPercent    decimal.Decimal `json:"riskPercent"`
	RiskPerShare   decimal.Decimal `json:"riskPerShare"`
	LimitingFactor string          `json:"limitingFactor"`
}

// CalculateSize determines the share count for req.
func (ps *PositionSizer) CalculateSize(req SizingRequest) (*SizingResult, error) {
	if !req.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntryPrice, req.EntryPrice)
	}
	if !req.StopPrice.IsPositive() || !req.StopPrice.LessThan(req.EntryPrice) {
		return nil, fmt.Errorf("%w: stop %s, entry %s", ErrInvalidStopPrice, req.StopPrice, req.EntryPrice)
	}
	if !req.Equity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEquity, req.Equity)
	}

	riskPerShare := req.EntryPrice.Sub(req.StopPrice)
	byRisk := req.Equity.Mul(ps.config.MaxRiskPct).Div(riskPerShare).Floor().IntPart()
	byCap := req.Equity.Mul(ps.config.MaxPositionPct).Div(req.EntryPrice).Floor().IntPart()

	shares, limit := byRisk, LimitRisk
	if byCap < byRisk {
		shares, limit = byCap, LimitPositionCap
	}
	if shares <= 0 && req.Equity.GreaterThanOrEqual(req.EntryPrice) {
		shares, limit = 1, LimitMinimumLot
	}
	if shares < 0 {
		shares = 0
	}

	n := decimal.NewFromInt(shares)
	riskAmount := n.Mul(riskPerShare)
	result := &SizingResult{
		Shares:         shares,
		PositionValue:  utils.Round2(n.Mul(req.EntryPrice)),
		RiskAmount:     utils.Round2(riskAmount),
		RiskPercent:    utils.Round2(utils.Percent(riskAmount, req.Equity)),
		RiskPerShare:   utils.Round2(riskPerShare),
		LimitingFactor: limit,
	}

	ps.logger.Debug("Position sized",
		zap.Int64("shares", shares),
		zap.String("limit", limit),
		zap.String("equity", req.Equity.String()),
		zap.String("entry", req.EntryPrice.String()),
	)

	return result, nil
}
