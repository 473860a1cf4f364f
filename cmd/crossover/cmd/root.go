// Package cmd implements the crossover command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/app"
	"github.com/atlas-desktop/crossover-trader/internal/config"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "crossover",
	Short: "Moving-average crossover research and paper trading",
	Long: `Crossover replays a short/long simple moving average crossover strategy
over daily bars and reports the current signal state of a watchlist.

The API server lives in cmd/server; this tool runs the same engine offline.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// loadConfig reads the config file and environment
func loadConfig() (*types.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildApp wires every component from cfg. The caller must Close it.
func buildApp(cfg *types.Config) (*app.App, *zap.Logger, error) {
	logger, err := app.NewLogger(logLevel)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
