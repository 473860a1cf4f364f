// Package main runs the crossover trader API server with its paper account,
// live price feed and background stop checks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/api"
	"github.com/atlas-desktop/crossover-trader/internal/app"
	"github.com/atlas-desktop/crossover-trader/internal/config"
	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	host := flag.String("host", "", "Override server host")
	port := flag.Int("port", 0, "Override server port")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting Crossover Trader",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("provider", cfg.Data.Provider),
		zap.Int("shortMa", cfg.Strategy.ShortMAPeriod),
		zap.Int("longMa", cfg.Strategy.LongMAPeriod),
	)

	a, err := app.Build(logger, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live prints feed the WebSocket price channel
	a.Feed.OnPrice(func(q types.Quote) {
		a.Bus.Publish(events.NewTickEvent(q))
	})
	startFeed(ctx, logger, a)

	server := api.NewServer(logger, &cfg.Server, api.Deps{
		Market:       a.Market,
		Indicators:   a.Detector.Engine(),
		Scanner:      a.Scanner,
		Ledger:       a.Ledger,
		Backtester:   a.Backtester,
		Watchlist:    a.Watchlist,
		Journal:      a.Journal,
		Bus:          a.Bus,
		Feed:         a.Feed,
		Pool:         a.Pool,
		LookbackDays: cfg.Data.LookbackDays,
	})

	go runEvery(ctx, cfg.Paper.StopCheckInterval, func() {
		if trades := a.Ledger.CheckStops(ctx); len(trades) > 0 {
			logger.Info("Stops triggered", zap.Int("count", len(trades)))
		}
	})
	go runEvery(ctx, cfg.Paper.ValueRecordInterval, func() {
		p := a.Ledger.RecordDailyValue(ctx)
		logger.Debug("Account value recorded", zap.String("value", p.Value.StringFixed(2)))
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started successfully",
		zap.String("http", fmt.Sprintf("http://%s:%d/api", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
	a.Close()

	logger.Info("Server stopped")
}

// startFeed connects the live feed and subscribes the watchlist. Without an
// API key the server runs on historical quotes only.
func startFeed(ctx context.Context, logger *zap.Logger, a *app.App) {
	if err := a.Feed.Start(ctx); err != nil {
		if errors.Is(err, data.ErrFeedDisabled) {
			logger.Info("Live price feed disabled")
			return
		}
		logger.Warn("Live price feed failed to start", zap.Error(err))
		return
	}
	for _, symbol := range a.Watchlist.List() {
		if err := a.Feed.Subscribe(symbol); err != nil {
			logger.Warn("Live feed subscription failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
