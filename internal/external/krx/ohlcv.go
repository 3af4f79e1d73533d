package krx

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// ohlcvColumns maps normalized names to the candidate column names the
// portal serves, raw codes first, then Korean and English labels
var ohlcvColumns = map[string][]string{
	"date":   {"TRD_DD", "날짜", "Date", "date"},
	"open":   {"TDD_OPNPRC", "시가", "Open", "open"},
	"high":   {"TDD_HGPRC", "고가", "High", "high"},
	"low":    {"TDD_LWPRC", "저가", "Low", "low"},
	"close":  {"TDD_CLSPRC", "종가", "Close", "close"},
	"volume": {"ACC_TRDVOL", "거래량", "Volume", "volume"},
	"value":  {"ACC_TRDVAL", "거래대금", "거래대금(원)", "거래대금(백만원)", "Value", "value"},
}

// requiredOHLCV must all resolve or the frame is unusable
var requiredOHLCV = []string{"open", "high", "low", "close", "volume"}

// OHLCV fetches the daily price series for one ticker over [from, to].
// An empty result means the ticker had no trading in the range.
func (c *Client) OHLCV(ctx context.Context, from, to time.Time, ticker string) ([]contracts.PriceRow, error) {
	isin, err := c.resolveISIN(ctx, ticker)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"isuCd":  isin,
		"strtDd": from.Format(krxDateLayout),
		"endDd":  to.Format(krxDateLayout),
		"share":  "1",
		"money":  "1",
	}

	var rows []map[string]string
	err = c.withRetry(ctx, "ohlcv "+ticker, func() error {
		var ferr error
		rows, ferr = c.fetchRows(ctx, bldOHLCV, params)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		c.logger.WithField("ticker", ticker).Debug("No OHLCV rows")
		return nil, nil
	}

	out, err := normalizeOHLCV(ticker, rows)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"rows":   len(out),
	}).Debug("Collected OHLCV")

	return out, nil
}

// normalizeOHLCV maps raw portal rows onto PriceRow. Rows whose date or
// close cannot be parsed are dropped; a frame missing any required
// column fails with the missing targets and what was actually served.
func normalizeOHLCV(ticker string, rows []map[string]string) ([]contracts.PriceRow, error) {
	resolved := make(map[string]string, len(ohlcvColumns))
	var missing []string

	for _, target := range requiredOHLCV {
		src, ok := resolveColumn(rows, ohlcvColumns[target])
		if !ok {
			missing = append(missing, target)
			continue
		}
		resolved[target] = src
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required OHLCV columns %v for %s: available=%v",
			missing, ticker, observedColumns(rows))
	}

	dateCol, ok := resolveColumn(rows, ohlcvColumns["date"])
	if !ok {
		return nil, fmt.Errorf("missing date column for %s: available=%v", ticker, observedColumns(rows))
	}
	valueCol, hasValue := resolveColumn(rows, ohlcvColumns["value"])

	out := make([]contracts.PriceRow, 0, len(rows))
	for _, row := range rows {
		dt, err := parseTradeDate(row[dateCol])
		if err != nil {
			continue
		}
		closePrice := parseNumber(row[resolved["close"]])
		if closePrice == nil {
			continue
		}

		price := contracts.PriceRow{
			Date:   dt,
			Ticker: ticker,
			Close:  *closePrice,
		}
		if v := parseNumber(row[resolved["open"]]); v != nil {
			price.Open = *v
		}
		if v := parseNumber(row[resolved["high"]]); v != nil {
			price.High = *v
		}
		if v := parseNumber(row[resolved["low"]]); v != nil {
			price.Low = *v
		}
		if v := parseNumber(row[resolved["volume"]]); v != nil {
			price.Volume = *v
		}
		if hasValue {
			price.Value = parseNumber(row[valueCol])
		}
		out = append(out, price)
	}

	// 과거→현재 순으로 정렬 (포털은 최신일 우선으로 내려줌)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
