// Package data provides historical and real-time market data for the
// crossover trader.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var (
	// ErrNoData is returned when a provider has no bars for a symbol
	ErrNoData = errors.New("no data found")
	// ErrInsufficientBars is returned when too few bars exist to derive a quote
	ErrInsufficientBars = errors.New("insufficient data")
)

// quoteLookbackDays covers a long weekend and still yields two sessions.
const quoteLookbackDays = 5

// BarFetcher loads daily bars in [start, end] from a provider.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]types.PriceBar, error)
}

// PriceSource is what the trading core consumes.
type PriceSource interface {
	GetBars(ctx context.Context, symbol string, lookbackDays int) ([]types.PriceBar, error)
	GetLatestPrice(ctx context.Context, symbol string) (types.Quote, error)
}

// Service serves bars from a fetcher through a TTL cache.
type Service struct {
	logger  *zap.Logger
	fetcher BarFetcher
	cache   *BarCache
	source  string
	now     func() time.Time
}

// NewService creates a new market data service
func NewService(logger *zap.Logger, fetcher BarFetcher, cacheTTL time.Duration) *Service {
	return &Service{
		logger:  logger.Named("market-data"),
		fetcher: fetcher,
		cache:   NewBarCache(cacheTTL),
		source:  sourceName(fetcher),
		now:     time.Now,
	}
}

func sourceName(f BarFetcher) string {
	if n, ok := f.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

// GetBars returns bars for the last lookbackDays calendar days in
// ascending date order.
func (s *Service) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]types.PriceBar, error) {
	symbol = utils.FormatSymbol(symbol)
	if symbol == "" {
		return nil, types.NewValidationError("symbol", "must not be empty")
	}
	if lookbackDays <= 0 {
		return nil, types.NewValidationError("days", "must be positive, got %d", lookbackDays)
	}

	key := fmt.Sprintf("%s:%d", symbol, lookbackDays)
	if bars, ok := s.cache.Get(key); ok {
		return bars, nil
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	raw, err := s.fetcher.FetchBars(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	bars, issues := Normalize(raw)
	if len(issues) > 0 {
		s.logger.Warn("Data quality issues",
			zap.String("symbol", symbol),
			zap.Int("issues", len(issues)),
			zap.String("first", issues[0].Message),
		)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for symbol: %s", ErrNoData, symbol)
	}

	s.cache.Set(key, bars)
	return bars, nil
}

// GetLatestPrice derives a quote from the last two daily bars.
func (s *Service) GetLatestPrice(ctx context.Context, symbol string) (types.Quote, error) {
	bars, err := s.GetBars(ctx, symbol, quoteLookbackDays)
	if err != nil {
		return types.Quote{}, err
	}
	if len(bars) < 2 {
		return types.Quote{}, fmt.Errorf("%w for symbol: %s", ErrInsufficientBars, symbol)
	}
	return QuoteFromBars(utils.FormatSymbol(symbol), bars, s.source), nil
}

// QuoteFromBars builds a quote from the last two bars. bars must hold at
// least two entries.
func QuoteFromBars(symbol string, bars []types.PriceBar, source string) types.Quote {
	latest := bars[len(bars)-1]
	previous := bars[len(bars)-2]
	change := latest.Close.Sub(previous.Close)

	changePct := decimal.Zero
	if !previous.Close.IsZero() {
		changePct = change.Div(previous.Close).Mul(decimal.NewFromInt(100))
	}

	return types.Quote{
		Symbol:        symbol,
		Price:         latest.Close,
		Change:        change,
		ChangePercent: changePct,
		Volume:        latest.Volume,
		Timestamp:     latest.Date,
		Source:        source,
	}
}

// ClearCache drops all cached bars
func (s *Service) ClearCache() {
	s.cache.Clear()
}
