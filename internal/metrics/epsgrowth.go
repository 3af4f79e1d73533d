package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// epsPoint is one dated EPS observation
type epsPoint struct {
	date time.Time
	eps  float64
}

// groupEpsHistory collects each ticker's non-null EPS observations,
// date ascending
func groupEpsHistory(rows []contracts.FundamentalRow) map[string][]epsPoint {
	hist := make(map[string][]epsPoint)
	for _, r := range rows {
		if r.Eps == nil {
			continue
		}
		hist[r.Ticker] = append(hist[r.Ticker], epsPoint{date: r.Date, eps: *r.Eps})
	}
	for ticker := range hist {
		points := hist[ticker]
		sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })
	}
	return hist
}

// epsAt returns the EPS of the latest observation dated at or before t
func epsAt(points []epsPoint, t time.Time) *float64 {
	idx := sort.Search(len(points), func(i int) bool { return points[i].date.After(t) })
	if idx == 0 {
		return nil
	}
	return &points[idx-1].eps
}

// epsCagr5y is the 5-year compound EPS growth rate, defined only when
// both endpoint observations are positive
func epsCagr5y(points []epsPoint, asof time.Time) *float64 {
	now := epsAt(points, asof)
	past := epsAt(points, asof.AddDate(-5, 0, 0))
	if now == nil || past == nil || *now <= 0 || *past <= 0 {
		return nil
	}
	v := math.Pow(*now / *past, 1.0/5.0) - 1
	return &v
}

// epsYoyQuarter compares EPS at the end of the as-of quarter against
// the same quarter end one year earlier
func epsYoyQuarter(points []epsPoint, asof time.Time) *float64 {
	qEnd := quarterEnd(asof)
	qPrev := qEnd.AddDate(-1, 0, 0)

	cur := epsAt(points, qEnd)
	prev := epsAt(points, qPrev)
	if cur == nil || prev == nil || *prev <= 0 {
		return nil
	}
	v := *cur / *prev - 1
	return &v
}

// quarterEnd is the last calendar day of the quarter containing t
func quarterEnd(t time.Time) time.Time {
	quarter := (int(t.Month()) - 1) / 3
	firstOfLastMonth := time.Date(t.Year(), time.Month(quarter*3+3), 1, 0, 0, 0, 0, t.Location())
	return firstOfLastMonth.AddDate(0, 1, -1)
}
