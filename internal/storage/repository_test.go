package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func f64(v float64) *float64 { return &v }

func seedTickers(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.UpsertTickers(context.Background(), []contracts.TickerInfo{
		{Ticker: "005930", Name: "삼성전자", Market: "KOSPI"},
		{Ticker: "035720", Name: "카카오", Market: "KOSPI"},
	})
	require.NoError(t, err)
}

func TestUpsertPricesIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []contracts.PriceRow{
		{Date: day(t, "2025-08-21"), Ticker: "005930", Open: 69000, High: 70500, Low: 68800, Close: 70000, Volume: 1000, Value: f64(7.0e10)},
		{Date: day(t, "2025-08-22"), Ticker: "005930", Open: 70000, High: 71000, Low: 69500, Close: 70500, Volume: 1200},
	}

	n, err := s.UpsertPrices(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second run replaces in place: same count, updated values stick
	rows[1].Close = 70800
	n, err = s.UpsertPrices(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var total int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM prices_daily").Scan(&total))
	assert.Equal(t, 2, total)

	var close float64
	require.NoError(t, s.DB().QueryRow(
		"SELECT close FROM prices_daily WHERE date = '2025-08-22' AND ticker = '005930'").Scan(&close))
	assert.Equal(t, 70800.0, close)
}

func TestUpsertEmptyBatchesAreNoops(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertPrices(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.UpsertCaps(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.UpsertFundamentals(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPriceWindowPrefersCapValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPrices(ctx, []contracts.PriceRow{
		{Date: day(t, "2025-08-21"), Ticker: "005930", Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
		{Date: day(t, "2025-08-22"), Ticker: "005930", Open: 2, High: 2, Low: 2, Close: 2, Volume: 20, Value: f64(999)},
	})
	require.NoError(t, err)

	_, err = s.UpsertCaps(ctx, []contracts.CapRow{
		{Date: day(t, "2025-08-22"), Ticker: "005930", Mcap: 4.2e14, Value: f64(123)},
	})
	require.NoError(t, err)

	rows, err := s.PriceWindow(ctx, "2025-08-22", 400)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// ascending date order per ticker
	assert.Equal(t, day(t, "2025-08-21"), rows[0].Date)
	assert.Equal(t, day(t, "2025-08-22"), rows[1].Date)

	// no cap row: price value stays (null here)
	assert.Nil(t, rows[0].Value)
	// cap row present: its trade value wins over the price one
	require.NotNil(t, rows[1].Value)
	assert.Equal(t, 123.0, *rows[1].Value)
}

func TestPriceWindowLimitsPerTicker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var rows []contracts.PriceRow
	base := day(t, "2025-08-01")
	for i := 0; i < 10; i++ {
		rows = append(rows, contracts.PriceRow{
			Date: base.AddDate(0, 0, i), Ticker: "005930",
			Open: 1, High: 1, Low: 1, Close: float64(i + 1), Volume: 1,
		})
	}
	_, err := s.UpsertPrices(ctx, rows)
	require.NoError(t, err)

	got, err := s.PriceWindow(ctx, "2025-08-31", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// the three most recent, still ascending
	assert.Equal(t, 8.0, got[0].Close)
	assert.Equal(t, 9.0, got[1].Close)
	assert.Equal(t, 10.0, got[2].Close)
}

func TestDailyJoinYieldsNullsForMissingSides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTickers(t, s)

	_, err := s.UpsertCaps(ctx, []contracts.CapRow{
		{Date: day(t, "2025-08-22"), Ticker: "005930", Mcap: 4.2e14, Shares: f64(5.9e9)},
	})
	require.NoError(t, err)
	_, err = s.UpsertFundamentals(ctx, []contracts.FundamentalRow{
		{Date: day(t, "2025-08-22"), Ticker: "005930", Per: f64(12.5), Eps: f64(5600), Bps: f64(57000)},
	})
	require.NoError(t, err)

	rows, err := s.DailyJoin(ctx, "2025-08-22")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byTicker := map[string]contracts.DailyJoinRow{}
	for _, r := range rows {
		byTicker[r.Ticker] = r
	}

	samsung := byTicker["005930"]
	require.NotNil(t, samsung.Mcap)
	assert.Equal(t, 4.2e14, *samsung.Mcap)
	require.NotNil(t, samsung.Eps)
	assert.Equal(t, 5600.0, *samsung.Eps)
	assert.Nil(t, samsung.Div)

	kakao := byTicker["035720"]
	assert.Nil(t, kakao.Mcap)
	assert.Nil(t, kakao.Per)
}

func TestFundamentalWindowHonorsYearBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertFundamentals(ctx, []contracts.FundamentalRow{
		{Date: day(t, "2018-08-22"), Ticker: "005930", Eps: f64(1000)}, // 7y back: outside
		{Date: day(t, "2020-08-22"), Ticker: "005930", Eps: f64(2000)},
		{Date: day(t, "2025-08-22"), Ticker: "005930", Eps: f64(5600)},
	})
	require.NoError(t, err)

	rows, err := s.FundamentalWindow(ctx, "2025-08-22", 6)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, day(t, "2020-08-22"), rows[0].Date)
	assert.Equal(t, day(t, "2025-08-22"), rows[1].Date)
}

func snapshotRow(ticker string, close float64) contracts.SnapshotRow {
	return contracts.SnapshotRow{
		Ticker:      ticker,
		Name:        "테스트",
		Market:      "KOSPI",
		Close:       close,
		CalcVersion: "v1.1",
	}
}

func TestReplaceSnapshotSwapsOneDateOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReplaceSnapshot(ctx, "2025-08-21", []contracts.SnapshotRow{
		snapshotRow("005930", 70000), snapshotRow("035720", 42000),
	})
	require.NoError(t, err)

	n, err := s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{
		snapshotRow("005930", 70500), snapshotRow("035720", 42500), snapshotRow("000660", 180000),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// replacing the 22nd again shrinks it without touching the 21st
	n, err = s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{snapshotRow("005930", 70600)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c21, err := s.CountSnapshotRows(ctx, "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 2, c21)

	c22, err := s.CountSnapshotRows(ctx, "2025-08-22")
	require.NoError(t, err)
	assert.Equal(t, 1, c22)
}

func TestReplaceSnapshotRollsBackOnMidwayFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{
		snapshotRow("005930", 70000), snapshotRow("035720", 42000),
	})
	require.NoError(t, err)

	before, err := s.LoadSnapshot(ctx, "2025-08-22")
	require.NoError(t, err)

	// duplicate ticker violates the primary key midway through the insert
	_, err = s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{
		snapshotRow("000660", 180000), snapshotRow("000660", 180000),
	})
	require.Error(t, err)

	after, err := s.LoadSnapshot(ctx, "2025-08-22")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateSnapshotReserveSkipsUnknownTickers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{
		snapshotRow("005930", 70000), snapshotRow("035720", 42000),
	})
	require.NoError(t, err)

	updated, err := s.UpdateSnapshotReserve(ctx, "2025-08-22", []contracts.ReserveResult{
		{Ticker: "005930", Outcome: contracts.ReserveSuccess, Ratio: f64(35490.6)},
		{Ticker: "999999", Outcome: contracts.ReserveSuccess, Ratio: f64(100)},
		{Ticker: "035720", Outcome: contracts.ReserveFetchFail},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rows, err := s.LoadSnapshot(ctx, "2025-08-22")
	require.NoError(t, err)
	byTicker := map[string]contracts.SnapshotRow{}
	for _, r := range rows {
		byTicker[r.Ticker] = r
	}
	require.NotNil(t, byTicker["005930"].ReserveRatio)
	assert.Equal(t, 35490.6, *byTicker["005930"].ReserveRatio)
	assert.Nil(t, byTicker["035720"].ReserveRatio)
}

func TestLatestReserveRatiosReadsNewestSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := snapshotRow("005930", 69000)
	old.ReserveRatio = f64(30000)
	_, err := s.ReplaceSnapshot(ctx, "2025-08-21", []contracts.SnapshotRow{old})
	require.NoError(t, err)

	cur := snapshotRow("005930", 70000)
	cur.ReserveRatio = f64(35490.6)
	_, err = s.ReplaceSnapshot(ctx, "2025-08-22", []contracts.SnapshotRow{cur, snapshotRow("035720", 42000)})
	require.NoError(t, err)

	got, err := s.LatestReserveRatios(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"005930": 35490.6}, got)
}

func TestAccessorsOnEmptyDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.LatestPriceDate(ctx)
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = s.LatestSnapshotDate(ctx)
	require.NoError(t, err)
	assert.Empty(t, d)

	n, err := s.CountActiveTickers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobLogLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginStage(ctx, "run-1", "prices"))
	require.NoError(t, s.EndStage(ctx, "run-1", "prices", StageSuccess, "upserted", 1234))
	require.NoError(t, s.BeginStage(ctx, "run-1", "snapshot"))
	require.NoError(t, s.EndStage(ctx, "run-1", "snapshot", StageFailed, "boom", 0))

	entries, err := s.RecentJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byStage := map[string]JobLogEntry{}
	for _, e := range entries {
		byStage[e.Stage] = e
	}
	assert.Equal(t, StageSuccess, byStage["prices"].Status)
	assert.Equal(t, 1234, byStage["prices"].RowCount)
	assert.Equal(t, StageFailed, byStage["snapshot"].Status)
	assert.NotEmpty(t, byStage["snapshot"].EndedAt)
}
