package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "List or edit the watched symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatchlist(cmd, "", nil)
	},
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add SYMBOL...",
	Short: "Validate and watch symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatchlist(cmd, "add", args)
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove SYMBOL...",
	Short: "Stop watching symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatchlist(cmd, "remove", args)
	},
}

func init() {
	rootCmd.AddCommand(watchlistCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
}

func runWatchlist(cmd *cobra.Command, action string, symbols []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, _, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var failed int
	for _, symbol := range symbols {
		symbol = utils.FormatSymbol(symbol)
		if action == "add" {
			err = a.Watchlist.Add(cmd.Context(), symbol)
		} else {
			err = a.Watchlist.Remove(symbol)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", symbol, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: %sed\n", symbol, strings.TrimSuffix(action, "e"))
	}

	list := a.Watchlist.List()
	fmt.Fprintf(out, "Watching %d/%d: %s\n", len(list), a.Watchlist.MaxSize(), strings.Join(list, ", "))
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", failed, len(symbols))
	}
	return nil
}
