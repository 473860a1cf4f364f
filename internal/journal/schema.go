package journal

// Money columns hold decimal strings so archived runs read back exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	initial_capital TEXT NOT NULL,
	final_value TEXT NOT NULL,
	total_return TEXT NOT NULL,
	total_return_pct TEXT NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate TEXT NOT NULL,
	max_dd TEXT NOT NULL,
	max_dd_pct TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	entry_date DATETIME NOT NULL,
	entry_price TEXT NOT NULL,
	exit_date DATETIME NOT NULL,
	exit_price TEXT NOT NULL,
	shares INTEGER NOT NULL,
	pnl TEXT NOT NULL,
	pnl_pct TEXT NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	time DATETIME NOT NULL,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run_time ON equity(run_id, time);
`
