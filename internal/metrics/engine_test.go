package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

func f64(v float64) *float64 { return &v }

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

// linearSeries builds a date-consecutive price series ending on endDate
// with close 1000, 1001, ... and a constant trade value
func linearSeries(ticker string, endDate time.Time, n int, value *float64) []contracts.PriceRow {
	rows := make([]contracts.PriceRow, n)
	for i := 0; i < n; i++ {
		close := 1000.0 + float64(i)
		rows[i] = contracts.PriceRow{
			Date:   endDate.AddDate(0, 0, i-n+1),
			Ticker: ticker,
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1000,
			Value:  value,
		}
	}
	return rows
}

func TestBuildSnapshotFullHistory(t *testing.T) {
	asof := day(t, "2025-08-22")
	prices := linearSeries("005930", asof, 260, f64(1e9))

	daily := []contracts.DailyJoinRow{{
		Ticker: "005930", Name: "삼성전자", Market: "KOSPI",
		Mcap: f64(4e14), Per: f64(12.5), Pbr: f64(1.2),
		Eps: f64(5600), Bps: f64(56000), Div: f64(2.0), Dps: f64(1444),
	}}

	rows := BuildSnapshot(Inputs{Prices: prices, Daily: daily, AsofDate: asof})
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "005930", row.Ticker)
	assert.Equal(t, "삼성전자", row.Name)
	assert.Equal(t, "KOSPI", row.Market)
	assert.Equal(t, 1259.0, row.Close)
	assert.Equal(t, CalcVersion, row.CalcVersion)

	// 이동평균: 등차수열이라 손으로 검산 가능
	require.NotNil(t, row.Sma20)
	assert.InDelta(t, 1249.5, *row.Sma20, 1e-9)
	require.NotNil(t, row.Sma50)
	assert.InDelta(t, 1234.5, *row.Sma50, 1e-9)
	require.NotNil(t, row.Sma200)
	assert.InDelta(t, 1159.5, *row.Sma200, 1e-9)

	require.NotNil(t, row.DistSma20)
	assert.InDelta(t, 1259.0/1249.5-1, *row.DistSma20, 1e-12)

	// 52주 구간: 최근 252일 = close 1008..1259
	require.NotNil(t, row.High52w)
	assert.Equal(t, 1259.0, *row.High52w)
	require.NotNil(t, row.Low52w)
	assert.Equal(t, 1008.0, *row.Low52w)
	require.NotNil(t, row.Pos52w)
	assert.InDelta(t, 1.0, *row.Pos52w, 1e-12)
	require.NotNil(t, row.Near52wHighRatio)
	assert.InDelta(t, 1.0, *row.Near52wHighRatio, 1e-12)

	require.NotNil(t, row.Ret1y)
	assert.InDelta(t, 1259.0/1007.0-1, *row.Ret1y, 1e-12)
	require.NotNil(t, row.Ret1w)
	assert.InDelta(t, 1259.0/1254.0-1, *row.Ret1w, 1e-12)

	assert.NotNil(t, row.Vol20d)

	require.NotNil(t, row.AvgValue20d)
	assert.InDelta(t, 1e9, *row.AvgValue20d, 1e-3)
	require.NotNil(t, row.Turnover20d)
	assert.InDelta(t, 1e9/4e14, *row.Turnover20d, 1e-18)

	// 당일 펀더멘털 기반 파생치
	require.NotNil(t, row.RoeProxy)
	assert.InDelta(t, 5600.0/56000.0, *row.RoeProxy, 1e-12)
	assert.True(t, row.EpsPositive)
	require.NotNil(t, row.Dps)
	assert.Equal(t, 1444.0, *row.Dps)
}

func TestBuildSnapshotShortHistoryYieldsNulls(t *testing.T) {
	asof := day(t, "2025-08-22")
	prices := linearSeries("005930", asof, 30, f64(1e9))

	rows := BuildSnapshot(Inputs{Prices: prices, AsofDate: asof})
	require.Len(t, rows, 1)
	row := rows[0]

	assert.NotNil(t, row.Sma20)
	assert.Nil(t, row.Sma50)
	assert.Nil(t, row.Sma200)
	assert.Nil(t, row.High52w)
	assert.Nil(t, row.Low52w)
	assert.Nil(t, row.Pos52w)
	assert.Nil(t, row.Near52wHighRatio)
	assert.Nil(t, row.Ret1y)
	assert.NotNil(t, row.Ret1m, "21-day lookback fits inside 30 rows")
	assert.Nil(t, row.Ret3m)
	assert.Nil(t, row.DistSma50)
	assert.NotNil(t, row.Vol20d)
}

func TestBuildSnapshotExactWindowEdge(t *testing.T) {
	asof := day(t, "2025-08-22")
	// 정확히 20행: sma20은 계산되지만 vol_20d는 첫 수익률이 없어 null
	prices := linearSeries("005930", asof, 20, nil)

	rows := BuildSnapshot(Inputs{Prices: prices, AsofDate: asof})
	require.Len(t, rows, 1)
	row := rows[0]

	assert.NotNil(t, row.Sma20)
	assert.Nil(t, row.Vol20d)
	assert.Nil(t, row.AvgValue20d, "value column was never observed")
	assert.Nil(t, row.Turnover20d)
}

func TestBuildSnapshotSkipsSeriesNotEndingOnAsof(t *testing.T) {
	asof := day(t, "2025-08-22")

	fresh := linearSeries("005930", asof, 30, nil)
	stale := linearSeries("035720", asof.AddDate(0, 0, -1), 30, nil)

	prices := append(fresh, stale...)
	rows := BuildSnapshot(Inputs{Prices: prices, AsofDate: asof})

	require.Len(t, rows, 1)
	assert.Equal(t, "005930", rows[0].Ticker)
}

func TestBuildSnapshotFlat52wRange(t *testing.T) {
	asof := day(t, "2025-08-22")

	prices := make([]contracts.PriceRow, 260)
	for i := range prices {
		prices[i] = contracts.PriceRow{
			Date: asof.AddDate(0, 0, i-259), Ticker: "005930",
			Open: 1000, High: 1000, Low: 1000, Close: 1000, Volume: 10,
		}
	}

	rows := BuildSnapshot(Inputs{Prices: prices, AsofDate: asof})
	require.Len(t, rows, 1)
	row := rows[0]

	// 고가=저가인 횡보 종목: 분모 0이므로 위치는 정의 불가, 고점비는 1
	assert.Nil(t, row.Pos52w)
	require.NotNil(t, row.Near52wHighRatio)
	assert.InDelta(t, 1.0, *row.Near52wHighRatio, 1e-12)
	require.NotNil(t, row.DistSma20)
	assert.InDelta(t, 0.0, *row.DistSma20, 1e-12)
}

func TestBuildSnapshotRoeProxyRules(t *testing.T) {
	asof := day(t, "2025-08-22")

	tests := []struct {
		name string
		eps  *float64
		bps  *float64
		want *float64
	}{
		{"normal", f64(500), f64(10000), f64(0.05)},
		{"zero bps", f64(500), f64(0), nil},
		{"negative bps", f64(500), f64(-100), nil},
		{"missing bps", f64(500), nil, nil},
		{"missing eps", nil, f64(10000), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := linearSeries("005930", asof, 30, nil)
			daily := []contracts.DailyJoinRow{{Ticker: "005930", Eps: tt.eps, Bps: tt.bps}}

			rows := BuildSnapshot(Inputs{Prices: prices, Daily: daily, AsofDate: asof})
			require.Len(t, rows, 1)

			if tt.want == nil {
				assert.Nil(t, rows[0].RoeProxy)
			} else {
				require.NotNil(t, rows[0].RoeProxy)
				assert.InDelta(t, *tt.want, *rows[0].RoeProxy, 1e-12)
			}
		})
	}
}

func TestBuildSnapshotCarriesReserveRatio(t *testing.T) {
	asof := day(t, "2025-08-22")
	prices := append(
		linearSeries("005930", asof, 30, nil),
		linearSeries("035720", asof, 30, nil)...,
	)

	rows := BuildSnapshot(Inputs{
		Prices:   prices,
		Reserve:  map[string]float64{"005930": 35490.6},
		AsofDate: asof,
	})
	require.Len(t, rows, 2)

	byTicker := map[string]contracts.SnapshotRow{}
	for _, r := range rows {
		byTicker[r.Ticker] = r
	}
	require.NotNil(t, byTicker["005930"].ReserveRatio)
	assert.Equal(t, 35490.6, *byTicker["005930"].ReserveRatio)
	assert.Nil(t, byTicker["035720"].ReserveRatio)
}

func TestEpsCagr5y(t *testing.T) {
	asof := day(t, "2025-08-22")

	t.Run("both endpoints positive", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2020-08-22"), eps: 100},
			{date: day(t, "2025-06-30"), eps: 200},
		}
		got := epsCagr5y(points, asof)
		require.NotNil(t, got)
		// (200/100)^(1/5) - 1
		assert.InDelta(t, 0.148698354997035, *got, 1e-12)
	})

	t.Run("negative past eps", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2020-08-22"), eps: -100},
			{date: day(t, "2025-06-30"), eps: 200},
		}
		assert.Nil(t, epsCagr5y(points, asof))
	})

	t.Run("no observation before 5y mark", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2021-01-04"), eps: 100},
			{date: day(t, "2025-06-30"), eps: 200},
		}
		assert.Nil(t, epsCagr5y(points, asof))
	})
}

func TestEpsYoyQuarter(t *testing.T) {
	asof := day(t, "2025-08-22") // Q3: qEnd 2025-09-30, qPrev 2024-09-30

	t.Run("growth", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2024-09-30"), eps: 100},
			{date: day(t, "2025-06-30"), eps: 130},
		}
		got := epsYoyQuarter(points, asof)
		require.NotNil(t, got)
		assert.InDelta(t, 0.30, *got, 1e-12)
	})

	t.Run("prior quarter eps not positive", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2024-09-30"), eps: -50},
			{date: day(t, "2025-06-30"), eps: 130},
		}
		assert.Nil(t, epsYoyQuarter(points, asof))
	})

	t.Run("no prior-year observation", func(t *testing.T) {
		points := []epsPoint{
			{date: day(t, "2025-06-30"), eps: 130},
		}
		assert.Nil(t, epsYoyQuarter(points, asof))
	})
}

func TestEpsAtPicksLatestObservation(t *testing.T) {
	points := []epsPoint{
		{date: day(t, "2024-03-31"), eps: 10},
		{date: day(t, "2024-06-30"), eps: 20},
		{date: day(t, "2024-09-30"), eps: 30},
	}

	got := epsAt(points, day(t, "2024-08-15"))
	require.NotNil(t, got)
	assert.Equal(t, 20.0, *got)

	got = epsAt(points, day(t, "2024-09-30"))
	require.NotNil(t, got)
	assert.Equal(t, 30.0, *got, "observation dated exactly t counts")

	assert.Nil(t, epsAt(points, day(t, "2024-01-01")))
}

func TestQuarterEnd(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-01-15", "2025-03-31"},
		{"2025-05-01", "2025-06-30"},
		{"2025-08-22", "2025-09-30"},
		{"2025-10-01", "2025-12-31"},
		{"2025-12-31", "2025-12-31"},
		{"2024-02-29", "2024-03-31"},
	}

	for _, tt := range tests {
		got := quarterEnd(day(t, tt.in))
		assert.Equal(t, tt.want, got.Format("2006-01-02"), "quarterEnd(%s)", tt.in)
	}
}
