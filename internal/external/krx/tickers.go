package krx

import (
	"context"
	"fmt"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// finder market selectors
var marketSelectors = []struct {
	mktsel string
	market string
}{
	{"STK", "KOSPI"},
	{"KSQ", "KOSDAQ"},
}

// Tickers returns the KOSPI and KOSDAQ listings with names, all active.
// ISIN codes learned here are cached for per-ticker price queries.
func (c *Client) Tickers(ctx context.Context) ([]contracts.TickerInfo, error) {
	var all []contracts.TickerInfo

	for _, sel := range marketSelectors {
		rows, err := c.listStocks(ctx, sel.mktsel)
		if err != nil {
			return nil, fmt.Errorf("list %s stocks: %w", sel.market, err)
		}

		for _, row := range rows {
			short := row["short_code"]
			if short == "" {
				continue
			}
			all = append(all, contracts.TickerInfo{
				Ticker: short,
				Name:   row["codeName"],
				Market: sel.market,
			})
			c.cacheISIN(short, row["full_code"])
		}

		c.logger.WithFields(map[string]interface{}{
			"market": sel.market,
			"count":  len(rows),
		}).Info("Fetched KRX listing")
	}

	return all, nil
}

// listStocks queries the stock finder for one market selector
func (c *Client) listStocks(ctx context.Context, mktsel string) ([]map[string]string, error) {
	params := map[string]string{
		"mktsel":     mktsel,
		"typeNo":     "0",
		"searchText": "",
	}

	var rows []map[string]string
	err := c.withRetry(ctx, "finder "+mktsel, func() error {
		var ferr error
		rows, ferr = c.fetchRows(ctx, bldFinder, params)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) cacheISIN(short, full string) {
	if full == "" {
		return
	}
	c.isinMu.Lock()
	c.isinCache[short] = full
	c.isinMu.Unlock()
}

// resolveISIN maps a 6-digit ticker to its full ISIN, loading the
// listing on first use
func (c *Client) resolveISIN(ctx context.Context, ticker string) (string, error) {
	c.isinMu.Lock()
	code, ok := c.isinCache[ticker]
	c.isinMu.Unlock()
	if ok {
		return code, nil
	}

	rows, err := c.listStocks(ctx, "ALL")
	if err != nil {
		return "", fmt.Errorf("load ISIN table: %w", err)
	}
	for _, row := range rows {
		c.cacheISIN(row["short_code"], row["full_code"])
	}

	c.isinMu.Lock()
	defer c.isinMu.Unlock()
	code, ok = c.isinCache[ticker]
	if !ok {
		return "", fmt.Errorf("ticker %s not found in KRX listing", ticker)
	}
	return code, nil
}
