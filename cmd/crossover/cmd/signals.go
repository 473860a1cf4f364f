package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

var signalsCmd = &cobra.Command{
	Use:   "signals [SYMBOL...]",
	Short: "Show the crossover state of symbols (default: the watchlist)",
	RunE:  runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}

func fixed(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func runSignals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, _, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	symbols := args
	if len(symbols) == 0 {
		symbols = a.Watchlist.List()
	}
	summary := a.Scanner.ScanAll(cmd.Context(), symbols)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SYMBOL\tPRICE\tSMA%d\tSMA%d\tSIGNAL\tDAYS\tBUY\n",
		cfg.Strategy.ShortMAPeriod, cfg.Strategy.LongMAPeriod)
	for _, s := range summary.Signals {
		days := "-"
		if s.DaysSinceSignal != nil && s.SignalType != types.SignalTypeNone {
			days = fmt.Sprint(*s.DaysSinceSignal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.Symbol, s.Price.StringFixed(2),
			fixed(s.SMAShort), fixed(s.SMALong),
			s.SignalType, days, s.ActionableBuy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if skipped := len(symbols) - len(summary.Signals); skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d symbol(s) skipped for lack of data\n", skipped)
	}
	return nil
}
