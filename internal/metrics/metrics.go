// Package metrics exposes Prometheus collectors for the crossover trader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crossover"

var (
	// PaperTrades counts executed paper trades by action
	PaperTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "paper_trades_total",
		Help:      "Executed paper trades.",
	}, []string{"action"})

	// StopTriggers counts positions closed by a stop, by exit reason
	StopTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stop_triggers_total",
		Help:      "Positions closed by a protective stop.",
	}, []string{"reason"})

	// PortfolioValue is the total value of the paper account at the last snapshot
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_value",
		Help:      "Total paper account value at the last snapshot.",
	})

	// OpenPositions is the number of open paper positions
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_positions",
		Help:      "Open paper positions.",
	})

	// BacktestDuration observes backtest wall time
	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Wall time of backtest runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	// Backtests counts backtest runs by outcome
	Backtests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtests_total",
		Help:      "Backtest runs by outcome.",
	}, []string{"outcome"})

	// SignalScanErrors counts symbols skipped during a signal scan
	SignalScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signal_scan_errors_total",
		Help:      "Symbols skipped during signal scans.",
	})

	// FeedQuotes counts real-time prints received
	FeedQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_quotes_total",
		Help:      "Real-time trade prints received.",
	})

	// HTTPRequests counts API requests by route and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
