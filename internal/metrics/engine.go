package metrics

import (
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// CalcVersion stamps every snapshot row with the algorithm revision
// that produced it. Bump it when a metric definition changes so stored
// snapshots remain comparable.
const CalcVersion = "v1.1"

// 특정 구간 수익률의 거래일 기준 창 길이
var returnWindows = []struct {
	days int
	set  func(*contracts.SnapshotRow, *float64)
}{
	{5, func(r *contracts.SnapshotRow, v *float64) { r.Ret1w = v }},
	{21, func(r *contracts.SnapshotRow, v *float64) { r.Ret1m = v }},
	{63, func(r *contracts.SnapshotRow, v *float64) { r.Ret3m = v }},
	{126, func(r *contracts.SnapshotRow, v *float64) { r.Ret6m = v }},
	{252, func(r *contracts.SnapshotRow, v *float64) { r.Ret1y = v }},
}

// Inputs carries everything the engine needs for one as-of date
type Inputs struct {
	Prices       []contracts.PriceRow       // 전 종목 시세 창, (ticker, date asc) 정렬
	Daily        []contracts.DailyJoinRow   // asof 당일의 시총+펀더멘털 조인
	Fundamentals []contracts.FundamentalRow // 6년 펀더멘털 이력
	Reserve      map[string]float64         // 종목별 최신 유보율 (없으면 비움)
	AsofDate     time.Time
}

// BuildSnapshot derives the per-ticker analytical snapshot for the
// as-of date. A ticker is emitted only when its price series actually
// ends on that date; a stale series means the stock did not trade and
// has no snapshot row.
func BuildSnapshot(in Inputs) []contracts.SnapshotRow {
	if len(in.Prices) == 0 {
		return nil
	}

	dailyByTicker := make(map[string]contracts.DailyJoinRow, len(in.Daily))
	for _, d := range in.Daily {
		dailyByTicker[d.Ticker] = d
	}
	epsHist := groupEpsHistory(in.Fundamentals)

	var out []contracts.SnapshotRow

	start := 0
	for i := 1; i <= len(in.Prices); i++ {
		if i < len(in.Prices) && in.Prices[i].Ticker == in.Prices[start].Ticker {
			continue
		}
		series := in.Prices[start:i]
		start = i

		row, ok := buildTickerRow(series, in.AsofDate)
		if !ok {
			continue
		}

		ticker := row.Ticker
		if daily, found := dailyByTicker[ticker]; found {
			row.Name = daily.Name
			row.Market = daily.Market
			row.Mcap = daily.Mcap
			row.Per = daily.Per
			row.Pbr = daily.Pbr
			row.Eps = daily.Eps
			row.Bps = daily.Bps
			row.Div = daily.Div
			row.Dps = daily.Dps
		}

		deriveValuation(&row)
		row.EpsCagr5y = epsCagr5y(epsHist[ticker], in.AsofDate)
		row.EpsYoyQ = epsYoyQuarter(epsHist[ticker], in.AsofDate)

		if v, found := in.Reserve[ticker]; found {
			ratio := v
			row.ReserveRatio = &ratio
		}

		row.CalcVersion = CalcVersion
		out = append(out, row)
	}

	return out
}

// buildTickerRow computes the price-derived metrics from one ticker's
// date-ascending series
func buildTickerRow(series []contracts.PriceRow, asof time.Time) (contracts.SnapshotRow, bool) {
	last := series[len(series)-1]
	if !sameDay(last.Date, asof) {
		return contracts.SnapshotRow{}, false
	}

	closes := make([]*float64, len(series))
	values := make([]*float64, len(series))
	for i := range series {
		c := series[i].Close
		closes[i] = &c
		values[i] = series[i].Value
	}
	retDaily := pctChange(closes)

	row := contracts.SnapshotRow{
		AsofDate: asof,
		Ticker:   last.Ticker,
		Close:    last.Close,

		Sma20:  tailMean(closes, 20),
		Sma50:  tailMean(closes, 50),
		Sma200: tailMean(closes, 200),

		High52w: tailMax(closes, 252),
		Low52w:  tailMin(closes, 252),

		Vol20d:      tailStd(retDaily, 20),
		AvgValue20d: tailMean(values, 20),
	}

	for _, rw := range returnWindows {
		rw.set(&row, tailPctChange(closes, rw.days))
	}

	return row, true
}

// deriveValuation fills the fields that mix price metrics with the
// day's cap and fundamentals
func deriveValuation(row *contracts.SnapshotRow) {
	if row.Bps != nil && *row.Bps > 0 && row.Eps != nil {
		v := *row.Eps / *row.Bps
		row.RoeProxy = &v
	}
	row.EpsPositive = row.Eps != nil && *row.Eps > 0

	row.DistSma20 = distanceFrom(row.Close, row.Sma20)
	row.DistSma50 = distanceFrom(row.Close, row.Sma50)
	row.DistSma200 = distanceFrom(row.Close, row.Sma200)

	if row.High52w != nil && row.Low52w != nil {
		if denom := *row.High52w - *row.Low52w; denom > 0 {
			v := (row.Close - *row.Low52w) / denom
			row.Pos52w = &v
		}
	}
	if row.High52w != nil && *row.High52w > 0 {
		v := row.Close / *row.High52w
		row.Near52wHighRatio = &v
	}
	if row.AvgValue20d != nil && row.Mcap != nil && *row.Mcap > 0 {
		v := *row.AvgValue20d / *row.Mcap
		row.Turnover20d = &v
	}
}

func distanceFrom(close float64, sma *float64) *float64 {
	if sma == nil || *sma == 0 {
		return nil
	}
	v := close / *sma - 1
	return &v
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
