package naver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"

	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/httputil"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// blockedMarkers flag throttling or bot-wall pages; such responses are
// retried like transport failures
var blockedMarkers = []string{"비정상적인 접근", "접근이 제한", "Access Denied", "자동화된 요청"}

var errBlocked = errors.New("blocked or throttled response")

// Client scrapes company report pages from the Naver finance portal
// ⭐ SSOT: 유보율 수집 HTTP 호출은 이 클라이언트에서만
type Client struct {
	httpClient  *httputil.Client
	logger      *logger.Logger
	baseURL     string
	referrerURL string

	maxRetries int
	retryDelay time.Duration
	maxWorkers int
	sampleDir  string

	// 테스트에서 HTTP 왕복을 대체하기 위한 주입 지점
	fetch func(ctx context.Context, ticker string) (string, error)
}

// NewClient creates a new report-page scraper client
func NewClient(cfg config.NaverConfig, log *logger.Logger) *Client {
	// The portal throttles aggressively; one shared limiter paces all
	// workers and retries run here with a fresh request per attempt.
	httpClient := httputil.NewWithTimeout(log, cfg.Timeout).
		DisableRetry().
		WithRateLimit(cfg.RatePerSec, 1)

	c := &Client{
		httpClient:  httpClient,
		logger:      log,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		referrerURL: strings.TrimRight(cfg.ReferrerURL, "/"),
		maxRetries:  max(1, cfg.MaxRetries),
		retryDelay:  cfg.RetryDelay,
		maxWorkers:  cfg.MaxWorkers,
		sampleDir:   cfg.SampleDir,
	}
	c.fetch = c.fetchHTML
	return c
}

// fetchHTML fetches and decodes the annual-financials report page for one ticker
func (c *Client) fetchHTML(ctx context.Context, ticker string) (string, error) {
	query := url.Values{
		"cmp_cd":   {ticker},
		"fin_typ":  {"0"},
		"freq_typ": {"Y"},
	}
	pageURL := fmt.Sprintf("%s/v2/company/cF1001.aspx?%s", c.baseURL, query.Encode())

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		html, err := c.fetchOnce(ctx, pageURL, ticker)
		if err != nil {
			lastErr = err
			continue
		}
		return html, nil
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"error":  lastErr.Error(),
	}).Warn("Failed to fetch reserve-ratio page")

	return "", fmt.Errorf("fetch reserve page for %s: %w", ticker, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, pageURL, ticker string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", fmt.Sprintf("%s/item/main.naver?code=%s", c.referrerURL, ticker))
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	html := decodeResponse(raw, resp.Header.Get("Content-Type"))
	if isBlockedResponse(html) {
		return "", errBlocked
	}
	return html, nil
}

// decodeResponse decodes a report page, trying the declared charset,
// then UTF-8, then EUC-KR (which subsumes CP949), and finally UTF-8
// with replacement characters
func decodeResponse(raw []byte, contentType string) string {
	if name := charsetFromContentType(contentType); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil && cleanUTF8(decoded) {
				return string(decoded)
			}
		}
	}

	if utf8.Valid(raw) {
		return string(raw)
	}

	if decoded, err := korean.EUCKR.NewDecoder().Bytes(raw); err == nil && cleanUTF8(decoded) {
		return string(decoded)
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

// cleanUTF8 reports whether a decode produced valid text without
// having substituted replacement characters
func cleanUTF8(b []byte) bool {
	return utf8.Valid(b) && !strings.ContainsRune(string(b), utf8.RuneError)
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func isBlockedResponse(html string) bool {
	for _, marker := range blockedMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}
