package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// UpsertTickers inserts or refreshes listed-equity master rows.
// Re-running with the same input leaves the same row count.
func (s *Store) UpsertTickers(ctx context.Context, rows []contracts.TickerInfo) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticker_master(ticker, name, market, active_flag, updated_at)
		VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(ticker) DO UPDATE SET
		    name=excluded.name,
		    market=excluded.market,
		    active_flag=excluded.active_flag,
		    updated_at=CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare ticker upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Ticker, r.Name, r.Market); err != nil {
			return 0, fmt.Errorf("upsert ticker %s: %w", r.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ticker upsert: %w", err)
	}
	return len(rows), nil
}

// UpsertPrices inserts or replaces daily OHLCV rows keyed by (date, ticker)
func (s *Store) UpsertPrices(ctx context.Context, rows []contracts.PriceRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices_daily(date, ticker, open, high, low, close, volume, value, source_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, ticker) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    value=excluded.value,
		    source_ts=CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Date.Format(dateLayout), r.Ticker,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Value)
		if err != nil {
			return 0, fmt.Errorf("upsert price %s/%s: %w", r.Ticker, r.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit price upsert: %w", err)
	}
	return len(rows), nil
}

// UpsertCaps inserts or replaces daily market-cap rows keyed by (date, ticker)
func (s *Store) UpsertCaps(ctx context.Context, rows []contracts.CapRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cap_daily(date, ticker, mcap, shares, volume, value, source_ts)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, ticker) DO UPDATE SET
		    mcap=excluded.mcap,
		    shares=excluded.shares,
		    volume=excluded.volume,
		    value=excluded.value,
		    source_ts=CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare cap upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Date.Format(dateLayout), r.Ticker,
			r.Mcap, r.Shares, r.Volume, r.Value)
		if err != nil {
			return 0, fmt.Errorf("upsert cap %s/%s: %w", r.Ticker, r.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cap upsert: %w", err)
	}
	return len(rows), nil
}

// UpsertFundamentals inserts or replaces anchor-date fundamental rows
func (s *Store) UpsertFundamentals(ctx context.Context, rows []contracts.FundamentalRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fundamental_daily(date, ticker, per, pbr, eps, bps, div, dps, source_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, ticker) DO UPDATE SET
		    per=excluded.per,
		    pbr=excluded.pbr,
		    eps=excluded.eps,
		    bps=excluded.bps,
		    div=excluded.div,
		    dps=excluded.dps,
		    source_ts=CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare fundamental upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Date.Format(dateLayout), r.Ticker,
			r.Per, r.Pbr, r.Eps, r.Bps, r.Div, r.Dps)
		if err != nil {
			return 0, fmt.Errorf("upsert fundamental %s/%s: %w", r.Ticker, r.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit fundamental upsert: %w", err)
	}
	return len(rows), nil
}

// ReplaceSnapshot atomically swaps the snapshot for one as-of date: delete
// and insert run in a single transaction, so a failure leaves the previous
// snapshot untouched and a reader never observes a partial rewrite.
// ⭐ SSOT: 스냅샷 교체는 이 함수에서만 수행
func (s *Store) ReplaceSnapshot(ctx context.Context, asof string, rows []contracts.SnapshotRow) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_metrics WHERE asof_date = ?", asof); err != nil {
		return 0, fmt.Errorf("delete snapshot %s: %w", asof, err)
	}

	if len(rows) > 0 {
		insertSQL := fmt.Sprintf(
			"INSERT INTO snapshot_metrics(%s) VALUES (%s)",
			strings.Join(snapshotColumns, ", "),
			placeholders(len(snapshotColumns)),
		)
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return 0, fmt.Errorf("prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			epsPositive := 0
			if r.EpsPositive {
				epsPositive = 1
			}
			_, err := stmt.ExecContext(ctx,
				asof, r.Ticker, r.Name, r.Market, r.Close, r.Mcap, r.AvgValue20d, r.Turnover20d,
				r.Per, r.Pbr, r.Div, r.Dps, r.Eps, r.Bps, r.RoeProxy, epsPositive,
				r.Sma20, r.Sma50, r.Sma200,
				r.DistSma20, r.DistSma50, r.DistSma200,
				r.High52w, r.Low52w, r.Pos52w, r.Near52wHighRatio,
				r.Vol20d, r.Ret1w, r.Ret1m, r.Ret3m, r.Ret6m, r.Ret1y,
				r.EpsCagr5y, r.EpsYoyQ, r.ReserveRatio, r.CalcVersion)
			if err != nil {
				return 0, fmt.Errorf("insert snapshot row %s: %w", r.Ticker, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot replace: %w", err)
	}
	return len(rows), nil
}

// UpdateSnapshotReserve stamps scraped reserve ratios onto the snapshot
// rows of one as-of date. Tickers without a snapshot row are skipped;
// the returned count is the number of rows actually updated.
func (s *Store) UpdateSnapshotReserve(ctx context.Context, asof string, results []contracts.ReserveResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE snapshot_metrics SET reserve_ratio = ? WHERE asof_date = ? AND ticker = ?")
	if err != nil {
		return 0, fmt.Errorf("prepare reserve update: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, r := range results {
		if !r.OK() {
			continue
		}
		res, err := stmt.ExecContext(ctx, r.Ratio, asof, r.Ticker)
		if err != nil {
			return 0, fmt.Errorf("update reserve %s: %w", r.Ticker, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reserve update: %w", err)
	}
	return updated, nil
}

// PriceWindow returns, for every ticker, up to window most-recent price
// rows with date <= endDate, ordered (ticker, date ascending). The value
// column prefers the market-cap table's trade value when present.
func (s *Store) PriceWindow(ctx context.Context, endDate string, window int) ([]contracts.PriceRow, error) {
	query := `
	WITH ranked AS (
	    SELECT p.date,
	           p.ticker,
	           p.open,
	           p.high,
	           p.low,
	           p.close,
	           p.volume,
	           COALESCE(c.value, p.value) AS value,
	           ROW_NUMBER() OVER (PARTITION BY p.ticker ORDER BY p.date DESC) AS rn
	    FROM prices_daily p
	    LEFT JOIN cap_daily c ON c.date = p.date AND c.ticker = p.ticker
	    WHERE p.date <= ?
	)
	SELECT date, ticker, open, high, low, close, volume, value
	FROM ranked
	WHERE rn <= ?
	ORDER BY ticker, date`

	rows, err := s.db.QueryContext(ctx, query, endDate, window)
	if err != nil {
		return nil, fmt.Errorf("query price window: %w", err)
	}
	defer rows.Close()

	var out []contracts.PriceRow
	for rows.Next() {
		var (
			r       contracts.PriceRow
			dateStr string
		)
		if err := rows.Scan(&dateStr, &r.Ticker, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Value); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		r.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse price date %q: %w", dateStr, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyJoin returns every active ticker left-joined with its cap and
// fundamental rows at exactly the given date
func (s *Store) DailyJoin(ctx context.Context, dt string) ([]contracts.DailyJoinRow, error) {
	query := `
	SELECT t.ticker, t.name, t.market,
	       c.mcap,
	       f.per, f.pbr, f.eps, f.bps, f.div, f.dps
	FROM ticker_master t
	LEFT JOIN cap_daily c ON c.ticker = t.ticker AND c.date = ?
	LEFT JOIN fundamental_daily f ON f.ticker = t.ticker AND f.date = ?
	WHERE t.active_flag = 1`

	rows, err := s.db.QueryContext(ctx, query, dt, dt)
	if err != nil {
		return nil, fmt.Errorf("query daily join: %w", err)
	}
	defer rows.Close()

	var out []contracts.DailyJoinRow
	for rows.Next() {
		var r contracts.DailyJoinRow
		if err := rows.Scan(&r.Ticker, &r.Name, &r.Market, &r.Mcap,
			&r.Per, &r.Pbr, &r.Eps, &r.Bps, &r.Div, &r.Dps); err != nil {
			return nil, fmt.Errorf("scan daily join row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FundamentalWindow returns all fundamental rows within years of endDate,
// ordered (ticker, date ascending)
func (s *Store) FundamentalWindow(ctx context.Context, endDate string, years int) ([]contracts.FundamentalRow, error) {
	query := `
	SELECT date, ticker, per, pbr, eps, bps, div, dps
	FROM fundamental_daily
	WHERE date <= ?
	  AND date >= date(?, ?)
	ORDER BY ticker, date`

	rows, err := s.db.QueryContext(ctx, query, endDate, endDate, fmt.Sprintf("-%d years", years))
	if err != nil {
		return nil, fmt.Errorf("query fundamental window: %w", err)
	}
	defer rows.Close()

	var out []contracts.FundamentalRow
	for rows.Next() {
		var (
			r       contracts.FundamentalRow
			dateStr string
		)
		if err := rows.Scan(&dateStr, &r.Ticker, &r.Per, &r.Pbr, &r.Eps, &r.Bps, &r.Div, &r.Dps); err != nil {
			return nil, fmt.Errorf("scan fundamental row: %w", err)
		}
		r.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse fundamental date %q: %w", dateStr, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestPriceDate returns the newest cached price date, or "" when the
// price cache is empty
func (s *Store) LatestPriceDate(ctx context.Context) (string, error) {
	var d sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(date) FROM prices_daily").Scan(&d); err != nil {
		return "", fmt.Errorf("query latest price date: %w", err)
	}
	return d.String, nil
}

// LatestSnapshotDate returns the newest snapshot as-of date, or ""
func (s *Store) LatestSnapshotDate(ctx context.Context) (string, error) {
	var d sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(asof_date) FROM snapshot_metrics").Scan(&d); err != nil {
		return "", fmt.Errorf("query latest snapshot date: %w", err)
	}
	return d.String, nil
}

// CountActiveTickers returns the number of active rows in ticker_master
func (s *Store) CountActiveTickers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ticker_master WHERE active_flag = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("count active tickers: %w", err)
	}
	return n, nil
}

// ActiveTickers returns all active master rows ordered by ticker
func (s *Store) ActiveTickers(ctx context.Context) ([]contracts.TickerInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ticker, name, market FROM ticker_master WHERE active_flag = 1 ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("query active tickers: %w", err)
	}
	defer rows.Close()

	var out []contracts.TickerInfo
	for rows.Next() {
		var t contracts.TickerInfo
		if err := rows.Scan(&t.Ticker, &t.Name, &t.Market); err != nil {
			return nil, fmt.Errorf("scan ticker row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestReserveRatios returns the reserve ratios stored on the newest
// snapshot, keyed by ticker. Rebuilds use this to carry the latest scraped
// values onto the replacement snapshot.
func (s *Store) LatestReserveRatios(ctx context.Context) (map[string]float64, error) {
	query := `
	SELECT ticker, reserve_ratio
	FROM snapshot_metrics
	WHERE asof_date = (SELECT MAX(asof_date) FROM snapshot_metrics)
	  AND reserve_ratio IS NOT NULL`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest reserve ratios: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			ticker string
			ratio  float64
		)
		if err := rows.Scan(&ticker, &ratio); err != nil {
			return nil, fmt.Errorf("scan reserve row: %w", err)
		}
		out[ticker] = ratio
	}
	return out, rows.Err()
}

// LoadSnapshot returns all snapshot rows for one as-of date ordered by ticker
func (s *Store) LoadSnapshot(ctx context.Context, asof string) ([]contracts.SnapshotRow, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM snapshot_metrics WHERE asof_date = ? ORDER BY ticker",
		strings.Join(snapshotColumns, ", "))

	rows, err := s.db.QueryContext(ctx, query, asof)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var out []contracts.SnapshotRow
	for rows.Next() {
		var (
			r           contracts.SnapshotRow
			asofStr     string
			epsPositive sql.NullInt64
		)
		err := rows.Scan(
			&asofStr, &r.Ticker, &r.Name, &r.Market, &r.Close, &r.Mcap, &r.AvgValue20d, &r.Turnover20d,
			&r.Per, &r.Pbr, &r.Div, &r.Dps, &r.Eps, &r.Bps, &r.RoeProxy, &epsPositive,
			&r.Sma20, &r.Sma50, &r.Sma200,
			&r.DistSma20, &r.DistSma50, &r.DistSma200,
			&r.High52w, &r.Low52w, &r.Pos52w, &r.Near52wHighRatio,
			&r.Vol20d, &r.Ret1w, &r.Ret1m, &r.Ret3m, &r.Ret6m, &r.Ret1y,
			&r.EpsCagr5y, &r.EpsYoyQ, &r.ReserveRatio, &r.CalcVersion)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		r.AsofDate, err = time.Parse(dateLayout, asofStr)
		if err != nil {
			return nil, fmt.Errorf("parse asof date %q: %w", asofStr, err)
		}
		r.EpsPositive = epsPositive.Valid && epsPositive.Int64 == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSnapshotRows returns the snapshot row count for one as-of date
func (s *Store) CountSnapshotRows(ctx context.Context, asof string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshot_metrics WHERE asof_date = ?", asof).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshot rows: %w", err)
	}
	return n, nil
}

// SnapshotDates returns every as-of date with snapshot rows, newest first
func (s *Store) SnapshotDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT asof_date FROM snapshot_metrics ORDER BY asof_date DESC")
	if err != nil {
		return nil, fmt.Errorf("query snapshot dates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan snapshot date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
