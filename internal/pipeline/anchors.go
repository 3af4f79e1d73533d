package pipeline

import (
	"fmt"
	"sort"
	"time"
)

// fundamentalAnchors picks the sparse set of trading dates at which
// valuation fundamentals are fetched: the last trading day of every
// calendar month and quarter inside the window, the last trading day at
// or before asof minus k years (k = 1..5), and the final trading date.
// 연 단위 앵커가 있어야 eps_cagr_5y의 과거 끝점 관측치가 존재한다
func fundamentalAnchors(dates []time.Time, asof time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}

	keep := make(map[string]time.Time)
	add := func(dt time.Time) {
		keep[dt.Format(dateLayout)] = dt
	}

	monthLast := make(map[string]time.Time)
	quarterLast := make(map[string]time.Time)
	for _, dt := range dates {
		monthKey := dt.Format("2006-01")
		if cur, ok := monthLast[monthKey]; !ok || dt.After(cur) {
			monthLast[monthKey] = dt
		}
		quarterKey := fmt.Sprintf("%d-Q%d", dt.Year(), (int(dt.Month())-1)/3+1)
		if cur, ok := quarterLast[quarterKey]; !ok || dt.After(cur) {
			quarterLast[quarterKey] = dt
		}
	}
	for _, dt := range monthLast {
		add(dt)
	}
	for _, dt := range quarterLast {
		add(dt)
	}

	for k := 1; k <= 5; k++ {
		if dt, ok := lastOnOrBefore(dates, asof.AddDate(-k, 0, 0)); ok {
			add(dt)
		}
	}

	add(dates[len(dates)-1])

	out := make([]time.Time, 0, len(keep))
	for _, dt := range keep {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// lastOnOrBefore returns the latest entry <= target from an ascending list
func lastOnOrBefore(dates []time.Time, target time.Time) (time.Time, bool) {
	idx := sort.Search(len(dates), func(i int) bool { return dates[i].After(target) })
	if idx == 0 {
		return time.Time{}, false
	}
	return dates[idx-1], true
}
