package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/app"
	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage locally stored daily bars",
	Long: `Data downloads daily bars into the data directory so backtests can run
with provider "file" and no network access.`,
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch SYMBOL...",
	Short: "Download daily bars from Yahoo and save them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDataFetch,
}

var dataListCmd = &cobra.Command{
	Use:   "list",
	Short: "List symbols with saved bars",
	RunE:  runDataList,
}

var (
	fetchDays     int
	fetchYahooURL string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)
	dataCmd.AddCommand(dataListCmd)

	dataFetchCmd.Flags().IntVar(&fetchDays, "days", 3650, "calendar days of history to download")
	dataFetchCmd.Flags().StringVar(&fetchYahooURL, "yahoo-url", "", "chart endpoint override")
}

func openStore(cfg *types.Config) (*data.Store, *zap.Logger, error) {
	logger, err := app.NewLogger(logLevel)
	if err != nil {
		return nil, nil, err
	}
	store, err := data.NewStore(logger, cfg.Data.DataDir, false)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, logger, err := openStore(cfg)
	if err != nil {
		return err
	}

	yahoo := data.NewYahooSource(logger, cfg.Data.RequestTimeout)
	if fetchYahooURL != "" {
		yahoo.WithBaseURL(fetchYahooURL)
	}

	end := utils.TruncateDay(time.Now().UTC())
	start := end.AddDate(0, 0, -fetchDays)
	out := cmd.OutOrStdout()

	var failed int
	for _, symbol := range args {
		symbol = utils.FormatSymbol(symbol)
		raw, err := yahoo.FetchBars(cmd.Context(), symbol, start, end)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", symbol, err)
			failed++
			continue
		}
		bars, issues := data.Normalize(raw)
		if len(bars) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: no usable bars\n", symbol)
			failed++
			continue
		}
		if err := store.SaveBars(symbol, bars); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d bars %s..%s (%d issues)\n", symbol, len(bars),
			bars[0].Date.Format(utils.DateLayout), bars[len(bars)-1].Date.Format(utils.DateLayout), len(issues))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", failed, len(args))
	}
	return nil
}

func runDataList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}

	symbols := store.Symbols()
	if len(symbols) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved bars.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBARS\tFIRST\tLAST")
	for _, symbol := range symbols {
		m, _ := store.Metadata(symbol)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", symbol, m.BarCount,
			m.StartDate.Format(utils.DateLayout), m.EndDate.Format(utils.DateLayout))
	}
	return tw.Flush()
}
