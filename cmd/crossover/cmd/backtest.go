package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/backtester"
	"github.com/atlas-desktop/crossover-trader/internal/journal"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest SYMBOL...",
	Short: "Replay the crossover strategy over symbol histories",
	Long: `Backtest replays the strategy bar by bar between two dates. Each run is
archived in the SQLite journal unless --no-journal is given. Several symbols
run concurrently, each against its own account.

Examples:
  crossover backtest AAPL --start 2023-01-01 --end 2023-12-31 --capital 25000
  crossover backtest AAPL MSFT SPY --start 2020-01-02`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBacktest,
}

var (
	btStart     string
	btEnd       string
	btCapital   float64
	btProvider  string
	btDataDir   string
	btNoJournal bool
	btJSON      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btStart, "start", "", "first date to trade (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "last date to trade (YYYY-MM-DD)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "starting capital (default paper.initial_balance)")
	backtestCmd.Flags().StringVar(&btProvider, "provider", "", "bar provider override (sample, file, yahoo)")
	backtestCmd.Flags().StringVar(&btDataDir, "data-dir", "", "bar directory override")
	backtestCmd.Flags().BoolVar(&btNoJournal, "no-journal", false, "do not archive the run")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")
}

func backtestRequest(symbol string) (types.BacktestRequest, error) {
	req := types.BacktestRequest{Symbol: symbol}
	if btStart != "" {
		t, err := utils.ParseDate(btStart)
		if err != nil {
			return req, types.NewValidationError("start", "expected YYYY-MM-DD, got %q", btStart)
		}
		req.StartDate = &t
	}
	if btEnd != "" {
		t, err := utils.ParseDate(btEnd)
		if err != nil {
			return req, types.NewValidationError("end", "expected YYYY-MM-DD, got %q", btEnd)
		}
		req.EndDate = &t
	}
	if btCapital != 0 {
		c := decimal.NewFromFloat(btCapital)
		req.InitialCapital = &c
	}
	return req, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btProvider != "" {
		cfg.Data.Provider = btProvider
	}
	if btDataDir != "" {
		cfg.Data.DataDir = btDataDir
	}
	if btNoJournal {
		cfg.Journal.Enabled = false
	}

	reqs := make([]types.BacktestRequest, len(args))
	for i, symbol := range args {
		if reqs[i], err = backtestRequest(symbol); err != nil {
			return err
		}
	}

	a, logger, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(reqs) == 1 {
		result, err := a.Backtester.Run(ctx, reqs[0])
		if err != nil {
			return fmt.Errorf("backtest: %w", err)
		}
		archive(cmd, a.Journal, logger, result)
		if btJSON {
			return encodeJSON(out, result)
		}
		return printResult(out, result)
	}

	var (
		results []*types.BacktestResult
		failed  int
	)
	for _, br := range a.Backtester.RunBatch(ctx, a.Pool, reqs) {
		if br.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", br.Request.Symbol, br.Err)
			failed++
			continue
		}
		archive(cmd, a.Journal, logger, br.Result)
		results = append(results, br.Result)
	}

	if btJSON {
		if err := encodeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintln(out, backtester.String(r))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d backtests failed", failed, len(reqs))
	}
	return nil
}

func archive(cmd *cobra.Command, j *journal.SQLiteJournal, logger *zap.Logger, result *types.BacktestResult) {
	if j == nil {
		return
	}
	if err := j.RecordBacktest(cmd.Context(), result.RunID, result); err != nil {
		logger.Error("Failed to archive backtest", zap.String("symbol", result.Symbol), zap.Error(err))
	}
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(out io.Writer, result *types.BacktestResult) error {
	fmt.Fprintln(out, backtester.String(result))
	if result.RunID != "" {
		fmt.Fprintf(out, "Run: %s\n", result.RunID)
	}
	if len(result.Trades) == 0 {
		fmt.Fprintln(out, "No trades.")
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tPRICE\tEXIT\tPRICE\tSHARES\tPNL\tPNL%\tREASON")
	for _, t := range result.Trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			t.EntryDate.Format(utils.DateLayout), t.EntryPrice.StringFixed(2),
			t.ExitDate.Format(utils.DateLayout), t.ExitPrice.StringFixed(2),
			t.Shares, t.PnL.StringFixed(2), t.PnLPercent.StringFixed(2), t.ExitReason)
	}
	return tw.Flush()
}
