// Package app wires the crossover trader components from a configuration.
package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/crossover-trader/internal/backtester"
	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/internal/journal"
	"github.com/atlas-desktop/crossover-trader/internal/portfolio"
	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/watchlist"
	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// NewLogger builds the console logger used by the binaries
func NewLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// NewBarFetcher returns the provider named by cfg.Provider
func NewBarFetcher(logger *zap.Logger, cfg types.DataConfig) (data.BarFetcher, error) {
	switch cfg.Provider {
	case "sample", "file":
		store, err := data.NewStore(logger, cfg.DataDir, cfg.Provider == "sample")
		if err != nil {
			return nil, err
		}
		return store, nil
	case "yahoo":
		return data.NewYahooSource(logger, cfg.RequestTimeout), nil
	}
	return nil, types.NewValidationError("data.provider", "unknown provider %q", cfg.Provider)
}

// App holds every long-lived component.
type App struct {
	Config     *types.Config
	Market     *data.Service
	Detector   *signals.Detector
	Pool       *workers.Pool
	Scanner    *signals.Scanner
	Bus        *events.EventBus
	Ledger     *portfolio.Ledger
	Backtester *backtester.Engine
	Watchlist  *watchlist.Watchlist
	Journal    *journal.SQLiteJournal
	Feed       *data.FinnhubFeed

	logger *zap.Logger
}

// Build constructs the components. The journal is nil when disabled. The
// feed is created but not started.
func Build(logger *zap.Logger, cfg *types.Config) (*App, error) {
	fetcher, err := NewBarFetcher(logger, cfg.Data)
	if err != nil {
		return nil, err
	}
	market := data.NewService(logger, fetcher, cfg.Data.CacheTTL)

	detector, err := signals.NewDetectorFromConfig(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	engine, err := backtester.NewEngine(logger, market, cfg.Strategy, cfg.Data, cfg.Paper.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("backtester: %w", err)
	}

	wl, err := watchlist.New(logger, cfg.Watchlist, watchlist.SourceValidator{Source: market})
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}

	a := &App{
		Config:     cfg,
		Market:     market,
		Detector:   detector,
		Backtester: engine,
		Watchlist:  wl,
		Feed:       data.NewFinnhubFeed(logger, cfg.Feed),
		logger:     logger,
	}

	if cfg.Journal.Enabled {
		j, err := journal.NewSQLite(logger, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.Journal = j
	}

	a.Pool = workers.NewPool(logger, workers.DefaultPoolConfig("signal-scan"))
	a.Pool.Start()
	a.Scanner = signals.NewScanner(logger, detector, market, a.Pool, cfg.Data.LookbackDays)

	a.Bus = events.NewEventBus(logger, events.DefaultEventBusConfig())
	a.Ledger = portfolio.NewLedger(logger, market, cfg.Strategy, cfg.Paper, portfolio.WithPublisher(a.Bus))

	return a, nil
}

// Close stops background workers and releases the journal
func (a *App) Close() {
	a.Feed.Stop()
	if err := a.Pool.Stop(); err != nil {
		a.logger.Warn("Worker pool stop", zap.Error(err))
	}
	a.Bus.Stop()
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.logger.Warn("Journal close", zap.Error(err))
		}
	}
}
