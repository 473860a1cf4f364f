package signals

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/metrics"
	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

// BarSource loads recent daily bars for a symbol.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, lookbackDays int) ([]types.PriceBar, error)
}

// Scanner evaluates signals for many symbols concurrently.
type Scanner struct {
	logger       *zap.Logger
	detector     *Detector
	source       BarSource
	pool         *workers.Pool
	lookbackDays int

	mu     sync.RWMutex
	latest map[string]types.Signal
}

// NewScanner creates a scanner. The pool must be started by the caller.
func NewScanner(logger *zap.Logger, detector *Detector, source BarSource, pool *workers.Pool, lookbackDays int) *Scanner {
	return &Scanner{
		logger:       logger.Named("signal-scanner"),
		detector:     detector,
		source:       source,
		pool:         pool,
		lookbackDays: lookbackDays,
		latest:       make(map[string]types.Signal),
	}
}

// Scan evaluates a single symbol
func (s *Scanner) Scan(ctx context.Context, symbol string) (types.Signal, error) {
	symbol = utils.FormatSymbol(symbol)
	bars, err := s.source.GetBars(ctx, symbol, s.lookbackDays)
	if err != nil {
		return types.Signal{}, err
	}

	sig := s.detector.Evaluate(symbol, bars)
	s.mu.Lock()
	s.latest[symbol] = sig
	s.mu.Unlock()
	return sig, nil
}

// ScanAll evaluates every symbol. Symbols whose data cannot be loaded are
// logged and left out of the summary.
func (s *Scanner) ScanAll(ctx context.Context, symbols []string) types.SignalSummary {
	var mu sync.Mutex
	results := make([]types.Signal, len(symbols))
	ok := make([]bool, len(symbols))

	tasks := make([]workers.Task, len(symbols))
	for i, symbol := range symbols {
		i, symbol := i, symbol
		tasks[i] = workers.TaskFunc(func(ctx context.Context) error {
			sig, err := s.Scan(ctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i], ok[i] = sig, true
			mu.Unlock()
			return nil
		})
	}

	errs := s.pool.RunAll(ctx, tasks)
	for i, err := range errs {
		if err != nil {
			metrics.SignalScanErrors.Inc()
			s.logger.Warn("Skipping symbol", zap.String("symbol", symbols[i]), zap.Error(err))
		}
	}

	summary := types.SignalSummary{
		Signals:     make([]types.Signal, 0, len(symbols)),
		LastUpdated: time.Now().UTC(),
	}
	mu.Lock()
	for i := range results {
		if ok[i] {
			summary.Signals = append(summary.Signals, results[i])
		}
	}
	mu.Unlock()
	sort.Slice(summary.Signals, func(a, b int) bool {
		return summary.Signals[a].Symbol < summary.Signals[b].Symbol
	})

	return summary
}

// Latest returns the last signal computed for symbol
func (s *Scanner) Latest(symbol string) (types.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.latest[utils.FormatSymbol(symbol)]
	return sig, ok
}
