package naver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// indexedResult tags a result with its input position so the collector
// can restore input order
type indexedResult struct {
	idx     int
	result  contracts.ReserveResult
	preview string
}

// CollectReserveRatios scrapes the latest reserve ratio for every input
// ticker with a bounded worker pool. The returned rows keep the input
// ticker order, restricted to successful extractions.
func (c *Client) CollectReserveRatios(ctx context.Context, tickers []string) ([]contracts.ReserveResult, contracts.ScrapeStats) {
	total := len(tickers)
	stats := contracts.ScrapeStats{Total: total}
	if total == 0 {
		return nil, stats
	}

	c.logger.WithField("tickers", total).Info("Starting reserve-ratio crawl")

	workers := c.maxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	jobCh := make(chan int)
	resultCh := make(chan indexedResult)

	// 파싱 실패 샘플은 실행당 1건만 저장
	var sampleMu sync.Mutex
	sampleSaved := false

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				resultCh <- c.collectOne(ctx, idx, tickers[idx], &sampleMu, &sampleSaved)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for idx := range tickers {
			select {
			case <-ctx.Done():
				return
			case jobCh <- idx:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]contracts.ReserveResult, total)
	done := 0
	parseIssueExamples := 0
	startedAt := time.Now()

	for ir := range resultCh {
		results[ir.idx] = ir.result
		done++

		switch ir.result.Outcome {
		case contracts.ReserveSuccess:
			stats.Success++
		case contracts.ReserveFetchFail:
			stats.FetchFail++
		case contracts.ReserveNoData:
			stats.NoData++
		case contracts.ReserveParseError, contracts.ReserveMarkerMissing:
			stats.ParseError++
			if parseIssueExamples < 5 {
				parseIssueExamples++
				c.logger.WithFields(map[string]interface{}{
					"ticker":       ir.result.Ticker,
					"status":       string(ir.result.Outcome),
					"html_preview": ir.preview,
				}).Warn("Reserve-ratio parse issue sample")
			}
		}

		if done%50 == 0 || done == total {
			c.logProgress(done, total, stats, startedAt)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"total":       total,
		"success":     stats.Success,
		"fetch_fail":  stats.FetchFail,
		"no_data":     stats.NoData,
		"parse_error": stats.ParseError,
	}).Info("Reserve-ratio crawl completed")

	ordered := make([]contracts.ReserveResult, 0, stats.Success)
	for _, r := range results {
		if r.OK() {
			ordered = append(ordered, r)
		}
	}
	return ordered, stats
}

func (c *Client) collectOne(ctx context.Context, idx int, ticker string, sampleMu *sync.Mutex, sampleSaved *bool) indexedResult {
	html, err := c.fetch(ctx, ticker)
	if err != nil {
		return indexedResult{
			idx:    idx,
			result: contracts.ReserveResult{Ticker: ticker, Outcome: contracts.ReserveFetchFail},
		}
	}

	ratio, outcome := ParseReserveRatio(html)
	if outcome == contracts.ReserveSuccess {
		return indexedResult{
			idx:    idx,
			result: contracts.ReserveResult{Ticker: ticker, Outcome: outcome, Ratio: ratio},
		}
	}

	if outcome == contracts.ReserveParseError || outcome == contracts.ReserveMarkerMissing {
		c.saveSampleOnce(ticker, html, sampleMu, sampleSaved)
	}

	return indexedResult{
		idx:     idx,
		result:  contracts.ReserveResult{Ticker: ticker, Outcome: outcome},
		preview: previewHTML(html, 120),
	}
}

func (c *Client) logProgress(done, total int, stats contracts.ScrapeStats, startedAt time.Time) {
	elapsed := time.Since(startedAt)
	perItem := elapsed / time.Duration(done)
	eta := perItem * time.Duration(total-done)

	c.logger.WithFields(map[string]interface{}{
		"done":        done,
		"total":       total,
		"success":     stats.Success,
		"fetch_fail":  stats.FetchFail,
		"no_data":     stats.NoData,
		"parse_error": stats.ParseError,
		"elapsed":     elapsed.Round(time.Second).String(),
		"eta":         eta.Round(time.Second).String(),
	}).Info("Reserve-ratio crawl progress")
}

// saveSampleOnce persists at most one parse-miss page per crawl so a
// layout change can be diagnosed without flooding the disk
func (c *Client) saveSampleOnce(ticker, html string, mu *sync.Mutex, saved *bool) {
	if c.sampleDir == "" {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if *saved {
		return
	}

	if err := os.MkdirAll(c.sampleDir, 0o755); err != nil {
		c.logger.WithError(err).Warn("Could not create sample directory")
		return
	}

	path := filepath.Join(c.sampleDir, "reserve_parse_miss.html")
	content := fmt.Sprintf("<!-- ticker=%s -->\n%s", ticker, html)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		c.logger.WithError(err).Warn("Could not save parse-miss sample")
		return
	}

	*saved = true
	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"path":   path,
	}).Warn("Saved parse-miss HTML sample")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// previewHTML collapses whitespace and truncates to maxChars runes
func previewHTML(html string, maxChars int) string {
	compact := whitespaceRun.ReplaceAllString(html, " ")
	runes := []rune(compact)
	if len(runes) > maxChars {
		return string(runes[:maxChars])
	}
	return compact
}
