package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// twoTickerMarket seeds a 30-day cache for 005930 and 035720
func twoTickerMarket(t *testing.T) *fakeMarket {
	t.Helper()
	days := tradingDaysEnding(day(t, "2025-08-22"), 30)
	return &fakeMarket{
		businessDay: days[len(days)-1],
		tradingDays: days,
		tickers: []contracts.TickerInfo{
			{Ticker: "005930", Name: "삼성전자", Market: "KOSPI"},
			{Ticker: "035720", Name: "카카오", Market: "KOSPI"},
		},
		prices: map[string][]contracts.PriceRow{
			"005930": priceSeries("005930", days),
			"035720": priceSeries("035720", days),
		},
		caps: capsByDate(days, "005930", "035720"),
		fundTemplate: []contracts.FundamentalRow{
			{Ticker: "005930", Eps: f64(5600), Bps: f64(56000)},
			{Ticker: "035720", Eps: f64(120), Bps: f64(9000)},
		},
	}
}

func TestUpdateReserveOnlyStampsScrapedTickers(t *testing.T) {
	store := newTestStore(t)
	market := twoTickerMarket(t)
	scraper := &fakeScraper{
		results: []contracts.ReserveResult{
			{Ticker: "005930", Outcome: contracts.ReserveSuccess, Ratio: f64(30529.6)},
		},
		stats: contracts.ScrapeStats{Total: 2, Success: 1, FetchFail: 1},
	}
	pl := New(market, scraper, store, testLogger())
	ctx := context.Background()

	_, err := pl.Run(ctx, RunConfig{AsofDate: "2025-08-22", LookbackDays: 30})
	require.NoError(t, err)

	result, err := pl.UpdateReserveOnly(ctx, RunConfig{}, false)
	require.NoError(t, err)

	assert.Equal(t, "2025-08-22", result.AsofDate)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Stats.Success)
	assert.Zero(t, result.SnapshotRows, "no rebuild was requested")

	// 스크레이퍼는 캐시된 활성 종목 목록을 입력받는다
	require.Len(t, scraper.calls, 1)
	assert.Equal(t, []string{"005930", "035720"}, scraper.calls[0])

	rows, err := store.LoadSnapshot(ctx, "2025-08-22")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byTicker := map[string]*float64{}
	for _, r := range rows {
		byTicker[r.Ticker] = r.ReserveRatio
	}
	require.NotNil(t, byTicker["005930"])
	assert.Equal(t, 30529.6, *byTicker["005930"])
	assert.Nil(t, byTicker["035720"])
}

func TestUpdateReserveOnlyChainsRebuildAndKeepsCarriedValues(t *testing.T) {
	store := newTestStore(t)
	market := twoTickerMarket(t)
	first := &fakeScraper{
		results: []contracts.ReserveResult{
			{Ticker: "005930", Outcome: contracts.ReserveSuccess, Ratio: f64(100.5)},
		},
		stats: contracts.ScrapeStats{Total: 2, Success: 1, FetchFail: 1},
	}
	pl := New(market, first, store, testLogger())
	ctx := context.Background()

	_, err := pl.Run(ctx, RunConfig{AsofDate: "2025-08-22", LookbackDays: 30})
	require.NoError(t, err)
	_, err = pl.UpdateReserveOnly(ctx, RunConfig{}, false)
	require.NoError(t, err)

	// 두 번째 수집은 035720만 성공하고 스냅샷 재계산을 체인한다.
	// 005930의 직전 값은 이월을 거쳐 살아남아야 한다.
	second := &fakeScraper{
		results: []contracts.ReserveResult{
			{Ticker: "035720", Outcome: contracts.ReserveSuccess, Ratio: f64(555.5)},
		},
		stats: contracts.ScrapeStats{Total: 2, Success: 1, ParseError: 1},
	}
	pl2 := New(market, second, store, testLogger())

	result, err := pl2.UpdateReserveOnly(ctx, RunConfig{LookbackDays: 30}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SnapshotRows)
	assert.Equal(t, 1, result.Updated)

	rows, err := store.LoadSnapshot(ctx, "2025-08-22")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byTicker := map[string]*float64{}
	for _, r := range rows {
		byTicker[r.Ticker] = r.ReserveRatio
	}
	require.NotNil(t, byTicker["005930"], "carried-forward ratio must survive the rebuild")
	assert.Equal(t, 100.5, *byTicker["005930"])
	require.NotNil(t, byTicker["035720"])
	assert.Equal(t, 555.5, *byTicker["035720"])
}

func TestUpdateReserveOnlyRefreshesTickersWhenCacheEmpty(t *testing.T) {
	store := newTestStore(t)
	market := twoTickerMarket(t)
	scraper := &fakeScraper{stats: contracts.ScrapeStats{Total: 2, FetchFail: 2}}
	pl := New(market, scraper, store, testLogger())
	ctx := context.Background()

	// 종목 캐시가 비어 있으면 시장 소스에서 새로 받아온다
	result, err := pl.UpdateReserveOnly(ctx, RunConfig{AsofDate: "2025-08-22"}, false)
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	require.Len(t, scraper.calls, 1)
	assert.Len(t, scraper.calls[0], 2)

	active, err := store.CountActiveTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestUpdateReserveOnlyFailsWithoutAnyCache(t *testing.T) {
	store := newTestStore(t)
	pl := New(&fakeMarket{}, &fakeScraper{}, store, testLogger())

	_, err := pl.UpdateReserveOnly(context.Background(), RunConfig{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache")
}
