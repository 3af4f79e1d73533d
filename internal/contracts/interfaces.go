package contracts

import (
	"context"
	"time"
)

// MarketData is the market-data source the pipeline collects from
// ⭐ SSOT: 시장 데이터 수집 인터페이스
type MarketData interface {
	// RecentBusinessDay probes backward from today for the most recent
	// trading day
	RecentBusinessDay(ctx context.Context) (time.Time, error)

	// TradingDates enumerates the trading days inside [from, to]
	TradingDates(ctx context.Context, from, to time.Time) ([]time.Time, error)

	// Tickers lists KOSPI and KOSDAQ equities with display names
	Tickers(ctx context.Context) ([]TickerInfo, error)

	// OHLCV returns one ticker's daily rows inside [from, to], date ascending
	OHLCV(ctx context.Context, from, to time.Time, ticker string) ([]PriceRow, error)

	// MarketCaps returns whole-market capitalization rows for one date
	MarketCaps(ctx context.Context, dt time.Time) ([]CapRow, error)

	// Fundamentals returns whole-market valuation rows for one date,
	// falling back up to 7 prior calendar days when the date is empty
	Fundamentals(ctx context.Context, dt time.Time) ([]FundamentalRow, error)
}

// ReserveScraper crawls per-ticker reserve ratios
// ⭐ SSOT: 유보율 수집 인터페이스
type ReserveScraper interface {
	// CollectReserveRatios fetches and parses every input ticker; the
	// returned rows keep the input order restricted to successes
	CollectReserveRatios(ctx context.Context, tickers []string) ([]ReserveResult, ScrapeStats)
}
