package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlas-desktop/crossover-trader/internal/config"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		cfg := types.DefaultConfig()
		if err := config.Save(path, &cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration valid")
		fmt.Fprintf(out, "  Strategy: SMA %d/%d, stop %.1f%%, trail %.1f%%\n",
			cfg.Strategy.ShortMAPeriod, cfg.Strategy.LongMAPeriod,
			cfg.Strategy.InitialStopPct*100, cfg.Strategy.TrailingStopPct*100)
		fmt.Fprintf(out, "  Paper: $%.2f %s\n", cfg.Paper.InitialBalance, cfg.Paper.Currency)
		fmt.Fprintf(out, "  Data: %s (%s)\n", cfg.Data.Provider, cfg.Data.DataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
