package storage

// schemaSQL creates the five cache tables plus the job log. Statements are
// idempotent so Open can run them on every start.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS ticker_master (
    ticker TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    market TEXT NOT NULL,
    active_flag INTEGER NOT NULL DEFAULT 1,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prices_daily (
    date TEXT NOT NULL,
    ticker TEXT NOT NULL,
    open REAL,
    high REAL,
    low REAL,
    close REAL,
    volume REAL,
    value REAL,
    source_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (date, ticker)
);

CREATE TABLE IF NOT EXISTS cap_daily (
    date TEXT NOT NULL,
    ticker TEXT NOT NULL,
    mcap REAL,
    shares REAL,
    volume REAL,
    value REAL,
    source_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (date, ticker)
);

CREATE TABLE IF NOT EXISTS fundamental_daily (
    date TEXT NOT NULL,
    ticker TEXT NOT NULL,
    per REAL,
    pbr REAL,
    eps REAL,
    bps REAL,
    div REAL,
    dps REAL,
    source_ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (date, ticker)
);

CREATE TABLE IF NOT EXISTS snapshot_metrics (
    asof_date TEXT NOT NULL,
    ticker TEXT NOT NULL,
    name TEXT,
    market TEXT,
    close REAL,
    mcap REAL,
    avg_value_20d REAL,
    turnover_20d REAL,
    per REAL,
    pbr REAL,
    div REAL,
    dps REAL,
    eps REAL,
    bps REAL,
    roe_proxy REAL,
    eps_positive INTEGER,
    sma20 REAL,
    sma50 REAL,
    sma200 REAL,
    dist_sma20 REAL,
    dist_sma50 REAL,
    dist_sma200 REAL,
    high_52w REAL,
    low_52w REAL,
    pos_52w REAL,
    near_52w_high_ratio REAL,
    vol_20d REAL,
    ret_1w REAL,
    ret_1m REAL,
    ret_3m REAL,
    ret_6m REAL,
    ret_1y REAL,
    eps_cagr_5y REAL,
    eps_yoy_q REAL,
    reserve_ratio REAL,
    calc_version TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (asof_date, ticker)
);

CREATE TABLE IF NOT EXISTS job_log (
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    message TEXT,
    row_count INTEGER,
    PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_prices_ticker_date ON prices_daily(ticker, date);
CREATE INDEX IF NOT EXISTS idx_cap_ticker_date ON cap_daily(ticker, date);
CREATE INDEX IF NOT EXISTS idx_fund_ticker_date ON fundamental_daily(ticker, date);
CREATE INDEX IF NOT EXISTS idx_snapshot_asof ON snapshot_metrics(asof_date);
`

// snapshotColumns lists snapshot_metrics insert columns in write order
var snapshotColumns = []string{
	"asof_date", "ticker", "name", "market", "close", "mcap", "avg_value_20d", "turnover_20d",
	"per", "pbr", "div", "dps", "eps", "bps", "roe_proxy", "eps_positive", "sma20", "sma50", "sma200",
	"dist_sma20", "dist_sma50", "dist_sma200", "high_52w", "low_52w", "pos_52w", "near_52w_high_ratio",
	"vol_20d", "ret_1w", "ret_1m", "ret_3m", "ret_6m", "ret_1y", "eps_cagr_5y", "eps_yoy_q",
	"reserve_ratio", "calc_version",
}

// evolvedColumns are snapshot_metrics columns introduced after the first
// released schema. Open adds any that are missing so databases created by
// older builds keep working without data loss.
var evolvedColumns = []struct {
	name    string
	colType string
}{
	{"dps", "REAL"},
	{"near_52w_high_ratio", "REAL"},
	{"eps_cagr_5y", "REAL"},
	{"eps_yoy_q", "REAL"},
	{"reserve_ratio", "REAL"},
}
