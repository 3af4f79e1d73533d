package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

var fundamentalColumns = map[string][]string{
	"ticker": {"ISU_SRT_CD", "종목코드", "Ticker", "ticker"},
	"per":    {"PER", "per"},
	"pbr":    {"PBR", "pbr"},
	"eps":    {"EPS", "eps"},
	"bps":    {"BPS", "bps"},
	"div":    {"DVD_YLD", "DIV", "div"},
	"dps":    {"DPS", "dps"},
}

// Fundamentals fetches per-ticker valuation fundamentals for the given
// day across both markets. Quarter and month ends can fall on holidays,
// so an empty day falls back to up to 7 prior calendar days; the rows
// carry the date actually used.
func (c *Client) Fundamentals(ctx context.Context, dt time.Time) ([]contracts.FundamentalRow, error) {
	queryDt := dt
	rows, err := c.fetchFundamentals(ctx, queryDt)
	if err != nil {
		return nil, err
	}

	for offset := 1; offset <= 7 && len(rows) == 0; offset++ {
		queryDt = dt.AddDate(0, 0, -offset)
		rows, err = c.fetchFundamentals(ctx, queryDt)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			c.logger.WithFields(map[string]interface{}{
				"target": dt.Format("2006-01-02"),
				"actual": queryDt.Format("2006-01-02"),
			}).Debug("Fundamental fallback date used")
		}
	}

	if len(rows) == 0 {
		c.logger.WithField("date", dt.Format("2006-01-02")).Warn("No fundamental data")
		return nil, nil
	}

	out, err := normalizeFundamentals(queryDt, rows)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"date": queryDt.Format("2006-01-02"),
		"rows": len(out),
	}).Debug("Collected fundamentals")

	return out, nil
}

func (c *Client) fetchFundamentals(ctx context.Context, dt time.Time) ([]map[string]string, error) {
	params := map[string]string{
		"searchType": "1",
		"mktId":      "ALL",
		"trdDd":      dt.Format(krxDateLayout),
	}

	var rows []map[string]string
	err := c.withRetry(ctx, "fundamental", func() error {
		var ferr error
		rows, ferr = c.fetchRows(ctx, bldFundamental, params)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func normalizeFundamentals(dt time.Time, rows []map[string]string) ([]contracts.FundamentalRow, error) {
	tickerCol, ok := resolveColumn(rows, fundamentalColumns["ticker"])
	if !ok {
		return nil, fmt.Errorf("missing ticker column: available=%v", observedColumns(rows))
	}

	perCol, hasPer := resolveColumn(rows, fundamentalColumns["per"])
	pbrCol, hasPbr := resolveColumn(rows, fundamentalColumns["pbr"])
	epsCol, hasEps := resolveColumn(rows, fundamentalColumns["eps"])
	bpsCol, hasBps := resolveColumn(rows, fundamentalColumns["bps"])
	divCol, hasDiv := resolveColumn(rows, fundamentalColumns["div"])
	dpsCol, hasDps := resolveColumn(rows, fundamentalColumns["dps"])

	out := make([]contracts.FundamentalRow, 0, len(rows))
	for _, row := range rows {
		ticker := row[tickerCol]
		if ticker == "" {
			continue
		}

		fr := contracts.FundamentalRow{Date: dt, Ticker: ticker}
		if hasPer {
			fr.Per = parseNumber(row[perCol])
		}
		if hasPbr {
			fr.Pbr = parseNumber(row[pbrCol])
		}
		if hasEps {
			fr.Eps = parseNumber(row[epsCol])
		}
		if hasBps {
			fr.Bps = parseNumber(row[bpsCol])
		}
		if hasDiv {
			fr.Div = parseNumber(row[divCol])
		}
		if hasDps {
			fr.Dps = parseNumber(row[dpsCol])
		}
		out = append(out, fr)
	}

	return out, nil
}
