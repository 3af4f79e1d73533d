package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

var capColumns = map[string][]string{
	"ticker": {"ISU_SRT_CD", "종목코드", "Ticker", "ticker"},
	"mcap":   {"MKTCAP", "시가총액", "Mcap", "mcap"},
	"shares": {"LIST_SHRS", "상장주식수", "Shares", "shares"},
	"volume": {"ACC_TRDVOL", "거래량", "Volume", "volume"},
	"value":  {"ACC_TRDVAL", "거래대금", "Value", "value"},
}

// MarketCaps fetches market cap, listed shares and trade value for every
// KOSPI and KOSDAQ stock on the given trading day
// ⭐ SSOT: KRX 시가총액/상장주식수 조회는 이 함수에서만
func (c *Client) MarketCaps(ctx context.Context, dt time.Time) ([]contracts.CapRow, error) {
	var all []contracts.CapRow

	for _, sel := range marketSelectors {
		rows, err := c.fetchMarketCaps(ctx, sel.mktsel, dt)
		if err != nil {
			return nil, fmt.Errorf("fetch %s market caps: %w", sel.market, err)
		}
		all = append(all, rows...)
	}

	c.logger.WithFields(map[string]interface{}{
		"date":  dt.Format("2006-01-02"),
		"count": len(all),
	}).Debug("Collected market caps")

	return all, nil
}

func (c *Client) fetchMarketCaps(ctx context.Context, mktID string, dt time.Time) ([]contracts.CapRow, error) {
	params := map[string]string{
		"mktId": mktID,
		"trdDd": dt.Format(krxDateLayout),
		"share": "1",
		"money": "1",
	}

	var rows []map[string]string
	err := c.withRetry(ctx, "marketcap "+mktID, func() error {
		var ferr error
		rows, ferr = c.fetchRows(ctx, bldMarketCap, params)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tickerCol, ok := resolveColumn(rows, capColumns["ticker"])
	if !ok {
		return nil, fmt.Errorf("missing ticker column: available=%v", observedColumns(rows))
	}
	mcapCol, ok := resolveColumn(rows, capColumns["mcap"])
	if !ok {
		return nil, fmt.Errorf("missing mcap column: available=%v", observedColumns(rows))
	}
	sharesCol, hasShares := resolveColumn(rows, capColumns["shares"])
	volumeCol, hasVolume := resolveColumn(rows, capColumns["volume"])
	valueCol, hasValue := resolveColumn(rows, capColumns["value"])

	out := make([]contracts.CapRow, 0, len(rows))
	for _, row := range rows {
		ticker := row[tickerCol]
		mcap := parseNumber(row[mcapCol])
		if ticker == "" || mcap == nil {
			continue
		}

		cap := contracts.CapRow{
			Date:   dt,
			Ticker: ticker,
			Mcap:   *mcap,
		}
		if hasShares {
			cap.Shares = parseNumber(row[sharesCol])
		}
		if hasVolume {
			cap.Volume = parseNumber(row[volumeCol])
		}
		if hasValue {
			cap.Value = parseNumber(row[valueCol])
		}
		out = append(out, cap)
	}

	return out, nil
}
