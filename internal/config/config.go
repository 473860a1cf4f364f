// Package config loads the crossover trader configuration from defaults, an
// optional YAML file and CROSSOVER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "CROSSOVER"

func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()

	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.websocket_path", d.Server.WebSocketPath)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.enable_metrics", d.Server.EnableMetrics)

	v.SetDefault("strategy.short_ma_period", d.Strategy.ShortMAPeriod)
	v.SetDefault("strategy.long_ma_period", d.Strategy.LongMAPeriod)
	v.SetDefault("strategy.initial_stop_pct", d.Strategy.InitialStopPct)
	v.SetDefault("strategy.trailing_stop_pct", d.Strategy.TrailingStopPct)
	v.SetDefault("strategy.max_risk_per_trade_pct", d.Strategy.MaxRiskPerTradePct)
	v.SetDefault("strategy.max_position_pct", d.Strategy.MaxPositionPct)
	v.SetDefault("strategy.max_positions", d.Strategy.MaxPositions)
	v.SetDefault("strategy.signal_recency_days", d.Strategy.SignalRecencyDays)

	v.SetDefault("paper.initial_balance", d.Paper.InitialBalance)
	v.SetDefault("paper.currency", d.Paper.Currency)
	v.SetDefault("paper.stop_check_interval", d.Paper.StopCheckInterval)
	v.SetDefault("paper.value_record_interval", d.Paper.ValueRecordInterval)

	v.SetDefault("data.provider", d.Data.Provider)
	v.SetDefault("data.data_dir", d.Data.DataDir)
	v.SetDefault("data.lookback_days", d.Data.LookbackDays)
	v.SetDefault("data.cache_ttl", d.Data.CacheTTL)
	v.SetDefault("data.backtest_min_lookback", d.Data.BacktestMinLookback)
	v.SetDefault("data.backtest_warmup_buffer", d.Data.BacktestWarmupBuffer)
	v.SetDefault("data.request_timeout", d.Data.RequestTimeout)

	v.SetDefault("watchlist.file", d.Watchlist.File)
	v.SetDefault("watchlist.max_size", d.Watchlist.MaxSize)
	v.SetDefault("watchlist.defaults", d.Watchlist.Defaults)

	v.SetDefault("feed.api_key", d.Feed.APIKey)
	v.SetDefault("feed.url", d.Feed.URL)
	v.SetDefault("feed.max_symbols", d.Feed.MaxSymbols)
	v.SetDefault("feed.reconnect_delay", d.Feed.ReconnectDelay)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
}

// Load reads configuration. An empty path looks for config.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*types.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("feed.api_key", EnvPrefix+"_FEED_API_KEY", "FINNHUB_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &types.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent tunables
func Validate(cfg *types.Config) error {
	s := cfg.Strategy
	switch {
	case s.ShortMAPeriod < 1:
		return types.NewValidationError("strategy.short_ma_period", "must be at least 1")
	case s.LongMAPeriod <= s.ShortMAPeriod:
		return types.NewValidationError("strategy.long_ma_period", "must be greater than short period %d", s.ShortMAPeriod)
	case s.MaxPositions < 1:
		return types.NewValidationError("strategy.max_positions", "must be at least 1")
	case s.SignalRecencyDays < 1:
		return types.NewValidationError("strategy.signal_recency_days", "must be at least 1")
	}

	fractions := []struct {
		field string
		value float64
	}{
		{"strategy.initial_stop_pct", s.InitialStopPct},
		{"strategy.trailing_stop_pct", s.TrailingStopPct},
		{"strategy.max_risk_per_trade_pct", s.MaxRiskPerTradePct},
		{"strategy.max_position_pct", s.MaxPositionPct},
	}
	for _, f := range fractions {
		if f.value <= 0 || f.value >= 1 {
			return types.NewValidationError(f.field, "must be between 0 and 1, got %v", f.value)
		}
	}

	if cfg.Paper.InitialBalance <= 0 {
		return types.NewValidationError("paper.initial_balance", "must be positive")
	}
	switch cfg.Data.Provider {
	case "sample", "file", "yahoo":
	default:
		return types.NewValidationError("data.provider", "unknown provider %q", cfg.Data.Provider)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return types.NewValidationError("server.port", "out of range: %d", cfg.Server.Port)
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *types.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, raw, 0o600)
}
