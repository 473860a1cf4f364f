// Package journal archives backtest runs in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// ErrRunNotFound is returned when no archived run has the requested id
var ErrRunNotFound = errors.New("backtest run not found")

// SQLiteJournal stores backtest results in a SQLite file.
type SQLiteJournal struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLite opens (or creates) the journal at path and applies the schema.
func NewSQLite(logger *zap.Logger, path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under the API.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteJournal{logger: logger.Named("journal"), db: db}, nil
}

// RecordBacktest stores the summary, trades and equity curve of one run in a
// single transaction.
func (j *SQLiteJournal) RecordBacktest(ctx context.Context, runID string, r *types.BacktestResult) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, symbol, start_date, end_date, initial_capital, final_value,
		 total_return, total_return_pct, trades, wins, losses, win_rate, max_dd, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), r.Symbol, r.StartDate, r.EndDate,
		r.InitialCapital.String(), r.FinalValue.String(),
		r.TotalReturn.String(), r.TotalReturnPercent.String(),
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate.String(),
		r.MaxDrawdown.String(), r.MaxDrawdownPercent.String(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(run_id, seq, entry_date, entry_price, exit_date, exit_price, shares, pnl, pnl_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()

	for i, t := range r.Trades {
		if _, err = tradeStmt.ExecContext(ctx, runID, i, t.EntryDate, t.EntryPrice.String(),
			t.ExitDate, t.ExitPrice.String(), t.Shares, t.PnL.String(), t.PnLPercent.String(),
			string(t.ExitReason)); err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `INSERT INTO equity (run_id, time, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer equityStmt.Close()

	for _, p := range r.EquityCurve {
		if _, err = equityStmt.ExecContext(ctx, runID, p.Timestamp, p.Value.String()); err != nil {
			return fmt.Errorf("insert equity: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	j.logger.Debug("Backtest archived",
		zap.String("runId", runID),
		zap.String("symbol", r.Symbol),
		zap.Int("trades", len(r.Trades)),
	)
	return nil
}

// GetBacktestRun loads a complete archived run.
func (j *SQLiteJournal) GetBacktestRun(ctx context.Context, runID string) (*types.BacktestResult, error) {
	r := &types.BacktestResult{RunID: runID}
	var created time.Time

	err := j.db.QueryRowContext(ctx, `
		SELECT created, symbol, start_date, end_date, initial_capital, final_value,
		       total_return, total_return_pct, trades, wins, losses, win_rate, max_dd, max_dd_pct
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&created, &r.Symbol, &r.StartDate, &r.EndDate, &r.InitialCapital, &r.FinalValue,
		&r.TotalReturn, &r.TotalReturnPercent, &r.TotalTrades, &r.WinningTrades, &r.LosingTrades,
		&r.WinRate, &r.MaxDrawdown, &r.MaxDrawdownPercent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	if r.Trades, err = j.ListTrades(ctx, runID); err != nil {
		return nil, err
	}
	if r.EquityCurve, err = j.ListEquity(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListTrades returns the closed trades of a run in execution order.
func (j *SQLiteJournal) ListTrades(ctx context.Context, runID string) ([]types.ClosedTrade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT entry_date, entry_price, exit_date, exit_price, shares, pnl, pnl_pct, reason
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []types.ClosedTrade{}
	for rows.Next() {
		var (
			t      types.ClosedTrade
			reason string
		)
		if err := rows.Scan(&t.EntryDate, &t.EntryPrice, &t.ExitDate, &t.ExitPrice,
			&t.Shares, &t.PnL, &t.PnLPercent, &reason); err != nil {
			return nil, err
		}
		t.ExitReason = types.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListEquity returns the equity curve of a run.
func (j *SQLiteJournal) ListEquity(ctx context.Context, runID string) ([]types.EquityPoint, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT time, value FROM equity WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []types.EquityPoint{}
	for rows.Next() {
		var p types.EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close releases the database handle
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
