package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab-kr/kscreener/internal/contracts"
	"github.com/quantlab-kr/kscreener/internal/storage"
)

// ReserveRunResult summarizes one reserve-only update
type ReserveRunResult struct {
	RunID        string                `json:"run_id"`
	AsofDate     string                `json:"asof_date"`
	Stats        contracts.ScrapeStats `json:"stats"`
	Updated      int                   `json:"updated"`
	SnapshotRows int                   `json:"snapshot_rows,omitempty"`
	Duration     time.Duration         `json:"duration"`
}

// UpdateReserveOnly scrapes reserve ratios for every active ticker and
// stamps them onto the snapshot at the resolved as-of date. When
// rebuildSnapshot is set the snapshot is recomputed between scraping and
// stamping, so fresh ratios land on the fresh snapshot and tickers the
// scrape missed keep their carried-forward value.
func (p *Pipeline) UpdateReserveOnly(ctx context.Context, cfg RunConfig, rebuildSnapshot bool) (*ReserveRunResult, error) {
	startedAt := time.Now()
	runID := uuid.NewString()

	asofStr, err := p.resolveCachedAsof(ctx, cfg.AsofDate)
	if err != nil {
		return nil, err
	}

	tickers, err := p.ensureTickers(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReserveRunResult{RunID: runID, AsofDate: asofStr}

	p.logger.WithFields(map[string]interface{}{
		"run_id":  runID,
		"asof":    asofStr,
		"tickers": len(tickers),
		"rebuild": rebuildSnapshot,
	}).Info("Starting reserve-ratio update")

	codes := make([]string, len(tickers))
	for i, t := range tickers {
		codes[i] = t.Ticker
	}

	// reserve 스테이지는 수집과 스탬프를 함께 감싼다; 중간의 스냅샷
	// 재계산은 별도 스테이지 행으로 남는다
	if err := p.store.BeginStage(ctx, runID, contracts.StageReserve.String()); err != nil {
		p.logger.WithError(err).Warn("Could not record stage start")
	}

	results, stats := p.scraper.CollectReserveRatios(ctx, codes)
	result.Stats = stats

	if rebuildSnapshot {
		lookback := cfg.LookbackDays
		if lookback <= 0 {
			lookback = DefaultLookbackDays
		}
		asof, parseErr := time.Parse(dateLayout, asofStr)
		if parseErr != nil {
			err = fmt.Errorf("invalid cached asof date %q: %w", asofStr, parseErr)
		} else {
			result.SnapshotRows, err = p.runStage(ctx, runID, contracts.StageSnapshot, func() (int, error) {
				return p.buildSnapshot(ctx, asof, lookback)
			})
		}
	}

	if err == nil {
		result.Updated, err = p.store.UpdateSnapshotReserve(ctx, asofStr, results)
	}

	status := storage.StageSuccess
	if err != nil {
		status = storage.StageFailed
	}
	message := fmt.Sprintf("success=%d fetch_fail=%d no_data=%d parse_error=%d updated=%d",
		stats.Success, stats.FetchFail, stats.NoData, stats.ParseError, result.Updated)
	if err != nil {
		message = err.Error()
	}
	if logErr := p.store.EndStage(ctx, runID, contracts.StageReserve.String(), status, message, result.Updated); logErr != nil {
		p.logger.WithError(logErr).Warn("Could not record stage end")
	}
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StageReserve, err)
	}

	result.Duration = time.Since(startedAt)

	p.logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"asof":     asofStr,
		"success":  stats.Success,
		"updated":  result.Updated,
		"duration": result.Duration.Round(time.Second).String(),
	}).Info("Reserve-ratio update completed")

	return result, nil
}

// ensureTickers loads the cached ticker list, refreshing it from the
// market source when the cache is empty
func (p *Pipeline) ensureTickers(ctx context.Context) ([]contracts.TickerInfo, error) {
	tickers, err := p.store.ActiveTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached tickers: %w", err)
	}
	if len(tickers) > 0 {
		return tickers, nil
	}

	p.logger.Info("Ticker cache empty, refreshing from market source")
	return p.refreshTickers(ctx)
}
