// Package types provides configuration types for the crossover trader.
package types

import (
	"time"
)

// Config is the root configuration of the service
type Config struct {
	Server    ServerConfig       `json:"server" mapstructure:"server" yaml:"server"`
	Strategy  StrategyConfig     `json:"strategy" mapstructure:"strategy" yaml:"strategy"`
	Paper     PaperTradingConfig `json:"paper" mapstructure:"paper" yaml:"paper"`
	Data      DataConfig         `json:"data" mapstructure:"data" yaml:"data"`
	Watchlist WatchlistConfig    `json:"watchlist" mapstructure:"watchlist" yaml:"watchlist"`
	Feed      FeedConfig         `json:"feed" mapstructure:"feed" yaml:"feed"`
	Journal   JournalConfig      `json:"journal" mapstructure:"journal" yaml:"journal"`
	LogLevel  string             `json:"logLevel" mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a configuration with every section at its default
func DefaultConfig() Config {
	return Config{
		Server:    DefaultServerConfig(),
		Strategy:  DefaultStrategyConfig(),
		Paper:     DefaultPaperTradingConfig(),
		Data:      DefaultDataConfig(),
		Watchlist: DefaultWatchlistConfig(),
		Feed:      DefaultFeedConfig(),
		Journal:   DefaultJournalConfig(),
		LogLevel:  "info",
	}
}

// StrategyConfig holds the moving-average crossover tunables
type StrategyConfig struct {
	ShortMAPeriod      int     `json:"shortMaPeriod" mapstructure:"short_ma_period" yaml:"short_ma_period"`
	LongMAPeriod       int     `json:"longMaPeriod" mapstructure:"long_ma_period" yaml:"long_ma_period"`
	InitialStopPct     float64 `json:"initialStopPct" mapstructure:"initial_stop_pct" yaml:"initial_stop_pct"`
	TrailingStopPct    float64 `json:"trailingStopPct" mapstructure:"trailing_stop_pct" yaml:"trailing_stop_pct"`
	MaxRiskPerTradePct float64 `json:"maxRiskPerTradePct" mapstructure:"max_risk_per_trade_pct" yaml:"max_risk_per_trade_pct"`
	MaxPositionPct     float64 `json:"maxPositionPct" mapstructure:"max_position_pct" yaml:"max_position_pct"`
	MaxPositions       int     `json:"maxPositions" mapstructure:"max_positions" yaml:"max_positions"`
	SignalRecencyDays  int     `json:"signalRecencyDays" mapstructure:"signal_recency_days" yaml:"signal_recency_days"`
}

// DefaultStrategyConfig returns the 10/50 crossover defaults
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		ShortMAPeriod:      10,
		LongMAPeriod:       50,
		InitialStopPct:     0.07,
		TrailingStopPct:    0.10,
		MaxRiskPerTradePct: 0.02,
		MaxPositionPct:     0.33,
		MaxPositions:       3,
		SignalRecencyDays:  3,
	}
}

// PaperTradingConfig configures the live paper account
type PaperTradingConfig struct {
	InitialBalance      float64       `json:"initialBalance" mapstructure:"initial_balance" yaml:"initial_balance"`
	Currency            string        `json:"currency" mapstructure:"currency" yaml:"currency"`
	StopCheckInterval   time.Duration `json:"stopCheckInterval" mapstructure:"stop_check_interval" yaml:"stop_check_interval"`
	ValueRecordInterval time.Duration `json:"valueRecordInterval" mapstructure:"value_record_interval" yaml:"value_record_interval"`
}

// DefaultPaperTradingConfig returns a $10,000 USD account
func DefaultPaperTradingConfig() PaperTradingConfig {
	return PaperTradingConfig{
		InitialBalance:      10000.0,
		Currency:            "USD",
		StopCheckInterval:   5 * time.Minute,
		ValueRecordInterval: 24 * time.Hour,
	}
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host" mapstructure:"host" yaml:"host"`
	Port           int           `json:"port" mapstructure:"port" yaml:"port"`
	WebSocketPath  string        `json:"websocketPath" mapstructure:"websocket_path" yaml:"websocket_path"`
	ReadTimeout    time.Duration `json:"readTimeout" mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" mapstructure:"write_timeout" yaml:"write_timeout"`
	AllowedOrigins []string      `json:"allowedOrigins" mapstructure:"allowed_origins" yaml:"allowed_origins"`
	EnableMetrics  bool          `json:"enableMetrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "localhost",
		Port:           8000,
		WebSocketPath:  "/ws",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		AllowedOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		EnableMetrics:  true,
	}
}

// DataConfig represents market data configuration
type DataConfig struct {
	Provider             string        `json:"provider" mapstructure:"provider" yaml:"provider"` // "sample" or "yahoo"
	DataDir              string        `json:"dataDir" mapstructure:"data_dir" yaml:"data_dir"`
	LookbackDays         int           `json:"lookbackDays" mapstructure:"lookback_days" yaml:"lookback_days"`
	CacheTTL             time.Duration `json:"cacheTtl" mapstructure:"cache_ttl" yaml:"cache_ttl"`
	BacktestMinLookback  int           `json:"backtestMinLookback" mapstructure:"backtest_min_lookback" yaml:"backtest_min_lookback"`
	BacktestWarmupBuffer int           `json:"backtestWarmupBuffer" mapstructure:"backtest_warmup_buffer" yaml:"backtest_warmup_buffer"`
	RequestTimeout       time.Duration `json:"requestTimeout" mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DefaultDataConfig returns sensible defaults
func DefaultDataConfig() DataConfig {
	return DataConfig{
		Provider:             "sample",
		DataDir:              "./data",
		LookbackDays:         365,
		CacheTTL:             5 * time.Minute,
		BacktestMinLookback:  500,
		BacktestWarmupBuffer: 100,
		RequestTimeout:       10 * time.Second,
	}
}

// WatchlistConfig configures the persisted watchlist
type WatchlistConfig struct {
	File     string   `json:"file" mapstructure:"file" yaml:"file"`
	MaxSize  int      `json:"maxSize" mapstructure:"max_size" yaml:"max_size"`
	Defaults []string `json:"defaults" mapstructure:"defaults" yaml:"defaults"`
}

// DefaultWatchlistConfig returns sensible defaults
func DefaultWatchlistConfig() WatchlistConfig {
	return WatchlistConfig{
		File:     "./data/watchlist.json",
		MaxSize:  50,
		Defaults: []string{"AAPL", "MSFT", "GOOGL", "SPY"},
	}
}

// FeedConfig configures the real-time price feed
type FeedConfig struct {
	APIKey         string        `json:"-" mapstructure:"api_key" yaml:"api_key"`
	URL            string        `json:"url" mapstructure:"url" yaml:"url"`
	MaxSymbols     int           `json:"maxSymbols" mapstructure:"max_symbols" yaml:"max_symbols"`
	ReconnectDelay time.Duration `json:"reconnectDelay" mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// DefaultFeedConfig returns sensible defaults
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		URL:            "wss://ws.finnhub.io",
		MaxSymbols:     50,
		ReconnectDelay: 5 * time.Second,
	}
}

// JournalConfig configures the backtest archive
type JournalConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Path    string `json:"path" mapstructure:"path" yaml:"path"`
}

// DefaultJournalConfig returns sensible defaults
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled: true,
		Path:    "./data/backtests.sqlite",
	}
}
