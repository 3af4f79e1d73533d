package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// RecentBusinessDay walks backward from today, at most 10 calendar days,
// and returns the first day the reference ticker traded
func (c *Client) RecentBusinessDay(ctx context.Context) (time.Time, error) {
	candidate := time.Now()

	for i := 0; i < 10; i++ {
		rows, err := c.OHLCV(ctx, candidate, candidate, c.referenceTicker)
		if err != nil {
			return time.Time{}, fmt.Errorf("probe business day: %w", err)
		}
		if len(rows) > 0 {
			day := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 0, 0, 0, 0, time.UTC)
			c.logger.WithField("date", day.Format("2006-01-02")).Info("Resolved recent business day")
			return day, nil
		}
		candidate = candidate.AddDate(0, 0, -1)
	}

	return time.Time{}, fmt.Errorf("could not determine business day within 10 days")
}

// TradingDates enumerates the trading days in [from, to] from the
// reference ticker's price index, sorted and unique
func (c *Client) TradingDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := c.OHLCV(ctx, from, to, c.referenceTicker)
	if err != nil {
		return nil, fmt.Errorf("trading dates: %w", err)
	}
	if len(rows) == 0 {
		c.logger.WithFields(map[string]interface{}{
			"from": from.Format("2006-01-02"),
			"to":   to.Format("2006-01-02"),
		}).Warn("No trading dates found in range")
		return nil, nil
	}

	dates := uniqueDates(rows)

	c.logger.WithFields(map[string]interface{}{
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"count": len(dates),
	}).Info("Resolved trading dates")

	return dates, nil
}

// uniqueDates extracts the distinct dates from an already date-sorted series
func uniqueDates(rows []contracts.PriceRow) []time.Time {
	dates := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		if n := len(dates); n > 0 && dates[n-1].Equal(r.Date) {
			continue
		}
		dates = append(dates, r.Date)
	}
	return dates
}
