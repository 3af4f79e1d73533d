package contracts

import "time"

// TickerInfo represents one listed equity
// ⭐ SSOT: KOSPI/KOSDAQ 상장 종목 식별 정보
type TickerInfo struct {
	Ticker string `json:"ticker"` // 종목코드 (6자리)
	Name   string `json:"name"`   // 종목명
	Market string `json:"market"` // KOSPI | KOSDAQ
}

// PriceRow represents one daily OHLCV observation for one ticker.
// Value(거래대금) is nullable: some datasets omit it and the market cap
// table fills the gap on read.
type PriceRow struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Value  *float64  `json:"value,omitempty"` // 거래대금
}

// CapRow represents one daily market capitalization observation
type CapRow struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Mcap   float64   `json:"mcap"`             // 시가총액
	Shares *float64  `json:"shares,omitempty"` // 상장주식수
	Volume *float64  `json:"volume,omitempty"`
	Value  *float64  `json:"value,omitempty"`
}

// FundamentalRow represents per-ticker valuation fields observed at one
// anchor date. Individual fields are nullable because the source omits
// them for loss-making or newly listed companies.
type FundamentalRow struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Per    *float64  `json:"per,omitempty"`
	Pbr    *float64  `json:"pbr,omitempty"`
	Eps    *float64  `json:"eps,omitempty"`
	Bps    *float64  `json:"bps,omitempty"`
	Div    *float64  `json:"div,omitempty"` // 배당수익률
	Dps    *float64  `json:"dps,omitempty"` // 주당배당금
}

// HasEps reports whether an EPS observation is present
func (f *FundamentalRow) HasEps() bool {
	return f.Eps != nil
}

// DailyJoinRow is one active ticker joined with its cap and fundamental
// observations at a single date. Missing observations stay null.
type DailyJoinRow struct {
	Ticker string   `json:"ticker"`
	Name   string   `json:"name"`
	Market string   `json:"market"`
	Mcap   *float64 `json:"mcap,omitempty"`
	Per    *float64 `json:"per,omitempty"`
	Pbr    *float64 `json:"pbr,omitempty"`
	Eps    *float64 `json:"eps,omitempty"`
	Bps    *float64 `json:"bps,omitempty"`
	Div    *float64 `json:"div,omitempty"`
	Dps    *float64 `json:"dps,omitempty"`
}
