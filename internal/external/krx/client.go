package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/httputil"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

const (
	krxDateLayout = "20060102"

	bldFinder      = "dbms/comm/finder/finder_stkisu"
	bldOHLCV       = "dbms/MDC/STAT/standard/MDCSTAT01701"
	bldMarketCap   = "dbms/MDC/STAT/standard/MDCSTAT01501"
	bldFundamental = "dbms/MDC/STAT/standard/MDCSTAT03501"
)

// Client fetches market data from the KRX data portal
// ⭐ SSOT: KRX 시장 데이터 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string

	referenceTicker string
	maxRetries      int
	retryDelay      time.Duration

	// 종목코드 → ISIN 캐시 (MDCSTAT01701은 풀코드를 요구함)
	isinMu    sync.Mutex
	isinCache map[string]string
}

// NewClient creates a new KRX data portal client
func NewClient(cfg config.KRXConfig, log *logger.Logger) *Client {
	// Retries are driven here so every attempt gets a fresh request body;
	// the shared client only contributes timeout and logging.
	httpClient := httputil.NewWithTimeout(log, cfg.Timeout).DisableRetry()

	return &Client{
		httpClient:      httpClient,
		logger:          log,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		referenceTicker: cfg.ReferenceTicker,
		maxRetries:      max(1, cfg.MaxRetries),
		retryDelay:      cfg.RetryDelay,
		isinCache:       make(map[string]string),
	}
}

// withRetry runs fn up to maxRetries times with exponential backoff
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		c.logger.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
			"retries": c.maxRetries,
			"error":   lastErr.Error(),
		}).Warn("KRX call failed")

		if attempt+1 < c.maxRetries {
			delay := c.retryDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("KRX %s failed after %d attempts: %w", op, c.maxRetries, lastErr)
}

// fetchRows posts a bld dataset request and returns the first data block as rows.
// An empty slice means the portal had no data for the query, not an error.
func (c *Client) fetchRows(ctx context.Context, bld string, params map[string]string) ([]map[string]string, error) {
	form := url.Values{
		"bld":         {bld},
		"locale":      {"ko_KR"},
		"csvxls_isNo": {"false"},
	}
	for k, v := range params {
		form.Set(k, v)
	}

	endpoint := c.baseURL + "/comm/bldAttendant/getJsonData.cmd"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Browser-like headers (KRX blocks bot requests)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/contents/MDC/MDI/mdiLoader/index.cmd?menuId=MDC0201020101")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("KRX API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("KRX API returned status %d: %s", resp.StatusCode, string(body[:min(200, len(body))]))
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		preview := string(body)
		if len(preview) > 500 {
			preview = preview[:500]
		}
		c.logger.WithField("response_preview", preview).Error("Failed to parse KRX response")
		return nil, fmt.Errorf("decode KRX response: %w", err)
	}

	// Dataset rows land under different keys depending on the bld
	for _, key := range []string{"OutBlock_1", "output", "block1"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		return decodeRows(key, raw)
	}

	return nil, nil
}

// decodeRows flattens a JSON data block into string-valued rows
func decodeRows(key string, raw json.RawMessage) ([]map[string]string, error) {
	var generic []map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", key, err)
	}

	rows := make([]map[string]string, 0, len(generic))
	for _, g := range generic {
		row := make(map[string]string, len(g))
		for col, v := range g {
			switch t := v.(type) {
			case string:
				row[col] = t
			case float64:
				row[col] = strconv.FormatFloat(t, 'f', -1, 64)
			case nil:
				row[col] = ""
			default:
				row[col] = fmt.Sprint(t)
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// resolveColumn returns the first candidate name present in the rows
func resolveColumn(rows []map[string]string, candidates []string) (string, bool) {
	if len(rows) == 0 {
		return "", false
	}
	for _, name := range candidates {
		if _, ok := rows[0][name]; ok {
			return name, true
		}
	}
	return "", false
}

// observedColumns lists the column names seen in the first row, sorted
func observedColumns(rows []map[string]string) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// parseNumber parses a KRX comma-grouped numeric cell; "" and "-" mean missing
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseTradeDate parses the date column, which KRX serves in several shapes
func parseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006/01/02", "2006-01-02", "20060102"} {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized trade date %q", s)
}
