package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab-kr/kscreener/internal/contracts"
	"github.com/quantlab-kr/kscreener/internal/metrics"
	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

const (
	dateLayout = "2006-01-02"

	// DefaultLookbackDays is the collection window when the caller gives none
	DefaultLookbackDays = 400

	// fundamentalYears is the valuation history depth read for EPS growth
	fundamentalYears = 6
)

// Pipeline drives the collect-compute-publish batch end to end
// ⭐ SSOT: 수집 파이프라인 조율은 이 패키지에서만
type Pipeline struct {
	market  contracts.MarketData
	scraper contracts.ReserveScraper
	store   *storage.Store
	logger  *logger.Logger
}

// New creates a Pipeline over the given clients and store
func New(market contracts.MarketData, scraper contracts.ReserveScraper, store *storage.Store, log *logger.Logger) *Pipeline {
	return &Pipeline{
		market:  market,
		scraper: scraper,
		store:   store,
		logger:  log.WithField("module", "pipeline"),
	}
}

// RunConfig holds the arguments of one batch invocation
type RunConfig struct {
	AsofDate     string // "2006-01-02"; empty resolves to the latest business day
	LookbackDays int    // 0 uses DefaultLookbackDays
}

// BatchResult summarizes one run for the CLI and the scheduler
type BatchResult struct {
	RunID           string        `json:"run_id"`
	AsofDate        string        `json:"asof_date"`
	Tickers         int           `json:"tickers"`
	PriceRows       int           `json:"price_rows"`
	CapRows         int           `json:"cap_rows"`
	FundamentalRows int           `json:"fundamental_rows"`
	SnapshotRows    int           `json:"snapshot_rows"`
	CompletedStages []string      `json:"completed_stages"`
	Duration        time.Duration `json:"duration"`
}

// Run executes the full collection batch:
// tickers → prices → caps → fundamentals → snapshot.
// A stage failure aborts the run; stages already committed stay cached.
func (p *Pipeline) Run(ctx context.Context, cfg RunConfig) (*BatchResult, error) {
	startedAt := time.Now()
	runID := uuid.NewString()

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}

	asof, err := p.resolveAsof(ctx, cfg.AsofDate)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		RunID:           runID,
		AsofDate:        asof.Format(dateLayout),
		CompletedStages: make([]string, 0, 5),
	}

	p.logger.WithFields(map[string]interface{}{
		"run_id":        runID,
		"asof":          result.AsofDate,
		"lookback_days": lookback,
	}).Info("Starting batch run")

	// 수집 구간: 주말/휴장일을 감안해 달력일 기준 2배를 잡는다
	from := asof.AddDate(0, 0, -2*lookback)

	var tickers []contracts.TickerInfo
	result.Tickers, err = p.runStage(ctx, runID, contracts.StageTickers, func() (int, error) {
		var stageErr error
		tickers, stageErr = p.refreshTickers(ctx)
		return len(tickers), stageErr
	})
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StageTickers, err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageTickers.String())

	result.PriceRows, err = p.runStage(ctx, runID, contracts.StagePrices, func() (int, error) {
		return p.collectPrices(ctx, from, asof, tickers)
	})
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StagePrices, err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StagePrices.String())

	result.CapRows, err = p.runStage(ctx, runID, contracts.StageCaps, func() (int, error) {
		return p.collectCaps(ctx, from, asof)
	})
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StageCaps, err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageCaps.String())

	result.FundamentalRows, err = p.runStage(ctx, runID, contracts.StageFundamentals, func() (int, error) {
		return p.collectFundamentals(ctx, asof)
	})
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StageFundamentals, err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageFundamentals.String())

	result.SnapshotRows, err = p.runStage(ctx, runID, contracts.StageSnapshot, func() (int, error) {
		return p.buildSnapshot(ctx, asof, lookback)
	})
	if err != nil {
		return result, fmt.Errorf("%s stage failed: %w", contracts.StageSnapshot, err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageSnapshot.String())

	result.Duration = time.Since(startedAt)

	p.logger.WithFields(map[string]interface{}{
		"run_id":        runID,
		"asof":          result.AsofDate,
		"tickers":       result.Tickers,
		"price_rows":    result.PriceRows,
		"cap_rows":      result.CapRows,
		"fund_rows":     result.FundamentalRows,
		"snapshot_rows": result.SnapshotRows,
		"duration":      result.Duration.Round(time.Second).String(),
	}).Info("Batch run completed")

	return result, nil
}

// resolveAsof returns the explicit date or probes for the latest business day
func (p *Pipeline) resolveAsof(ctx context.Context, given string) (time.Time, error) {
	if given != "" {
		dt, err := time.Parse(dateLayout, given)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid asof date %q: %w", given, err)
		}
		return dt, nil
	}
	return p.market.RecentBusinessDay(ctx)
}

// runStage brackets one unit of work with job_log begin/end rows.
// Audit writes are best effort: a job_log failure is logged, not fatal.
func (p *Pipeline) runStage(ctx context.Context, runID string, stage contracts.Stage, fn func() (int, error)) (int, error) {
	if err := p.store.BeginStage(ctx, runID, stage.String()); err != nil {
		p.logger.WithError(err).WithField("stage", stage.String()).Warn("Could not record stage start")
	}

	n, err := fn()

	status := storage.StageSuccess
	message := ""
	if err != nil {
		status = storage.StageFailed
		message = err.Error()
	}
	if logErr := p.store.EndStage(ctx, runID, stage.String(), status, message, n); logErr != nil {
		p.logger.WithError(logErr).WithField("stage", stage.String()).Warn("Could not record stage end")
	}
	return n, err
}

// refreshTickers pulls the current KOSPI+KOSDAQ listing and upserts it
func (p *Pipeline) refreshTickers(ctx context.Context) ([]contracts.TickerInfo, error) {
	tickers, err := p.market.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("ticker listing came back empty")
	}

	if _, err := p.store.UpsertTickers(ctx, tickers); err != nil {
		return nil, fmt.Errorf("upsert tickers: %w", err)
	}

	p.logger.WithField("count", len(tickers)).Info("Ticker master refreshed")
	return tickers, nil
}

// collectPrices fetches per-ticker OHLCV over [from, to] and upserts it
func (p *Pipeline) collectPrices(ctx context.Context, from, to time.Time, tickers []contracts.TickerInfo) (int, error) {
	p.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"from":    from.Format(dateLayout),
		"to":      to.Format(dateLayout),
	}).Info("Starting price collection")

	total := 0
	for i, t := range tickers {
		rows, err := p.market.OHLCV(ctx, from, to, t.Ticker)
		if err != nil {
			return total, err
		}

		if len(rows) > 0 {
			if _, err := p.store.UpsertPrices(ctx, rows); err != nil {
				return total, fmt.Errorf("upsert prices %s: %w", t.Ticker, err)
			}
			total += len(rows)
		}

		if (i+1)%200 == 0 || i+1 == len(tickers) {
			p.logger.WithFields(map[string]interface{}{
				"done":  i + 1,
				"total": len(tickers),
				"rows":  total,
			}).Info("Price collection progress")
		}
	}
	return total, nil
}

// collectCaps fetches whole-market caps for every trading day in [from, to]
func (p *Pipeline) collectCaps(ctx context.Context, from, to time.Time) (int, error) {
	dates, err := p.market.TradingDates(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("enumerate trading dates: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"dates": len(dates),
		"from":  from.Format(dateLayout),
		"to":    to.Format(dateLayout),
	}).Info("Starting market-cap collection")

	total := 0
	for i, dt := range dates {
		rows, err := p.market.MarketCaps(ctx, dt)
		if err != nil {
			return total, err
		}

		if len(rows) > 0 {
			if _, err := p.store.UpsertCaps(ctx, rows); err != nil {
				return total, fmt.Errorf("upsert caps %s: %w", dt.Format(dateLayout), err)
			}
			total += len(rows)
		}

		if (i+1)%30 == 0 || i+1 == len(dates) {
			p.logger.WithFields(map[string]interface{}{
				"done":  i + 1,
				"total": len(dates),
				"rows":  total,
			}).Info("Market-cap collection progress")
		}
	}
	return total, nil
}

// collectFundamentals fetches valuation rows at the sparse anchor dates
// of the trailing 6-year window
func (p *Pipeline) collectFundamentals(ctx context.Context, asof time.Time) (int, error) {
	from := asof.AddDate(-fundamentalYears, 0, 0)
	dates, err := p.market.TradingDates(ctx, from, asof)
	if err != nil {
		return 0, fmt.Errorf("enumerate trading dates: %w", err)
	}

	anchors := fundamentalAnchors(dates, asof)
	p.logger.WithFields(map[string]interface{}{
		"anchors": len(anchors),
		"from":    from.Format(dateLayout),
		"to":      asof.Format(dateLayout),
	}).Info("Starting fundamental collection")

	total := 0
	for _, anchor := range anchors {
		rows, err := p.market.Fundamentals(ctx, anchor)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			continue
		}

		if _, err := p.store.UpsertFundamentals(ctx, rows); err != nil {
			return total, fmt.Errorf("upsert fundamentals %s: %w", anchor.Format(dateLayout), err)
		}
		total += len(rows)

		p.logger.WithFields(map[string]interface{}{
			"anchor": anchor.Format(dateLayout),
			"rows":   len(rows),
		}).Debug("Fetched fundamentals")
	}

	p.logger.WithFields(map[string]interface{}{
		"anchors": len(anchors),
		"rows":    total,
	}).Info("Fundamental collection completed")
	return total, nil
}

// buildSnapshot reads the cached windows, computes the metric rows and
// atomically replaces the snapshot for asof
func (p *Pipeline) buildSnapshot(ctx context.Context, asof time.Time, window int) (int, error) {
	asofStr := asof.Format(dateLayout)

	prices, err := p.store.PriceWindow(ctx, asofStr, window)
	if err != nil {
		return 0, fmt.Errorf("read price window: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("price cache has no rows at or before %s: run full collection first", asofStr)
	}

	daily, err := p.store.DailyJoin(ctx, asofStr)
	if err != nil {
		return 0, fmt.Errorf("read daily join: %w", err)
	}

	funds, err := p.store.FundamentalWindow(ctx, asofStr, fundamentalYears)
	if err != nil {
		return 0, fmt.Errorf("read fundamental window: %w", err)
	}

	// 직전 스냅샷의 유보율을 이월해 전체 재계산이 값을 지우지 않게 한다
	reserve, err := p.store.LatestReserveRatios(ctx)
	if err != nil {
		return 0, fmt.Errorf("read latest reserve ratios: %w", err)
	}

	rows := metrics.BuildSnapshot(metrics.Inputs{
		Prices:       prices,
		Daily:        daily,
		Fundamentals: funds,
		Reserve:      reserve,
		AsofDate:     asof,
	})
	if len(rows) == 0 {
		return 0, fmt.Errorf("price cache has no rows dated %s: run full collection first", asofStr)
	}

	count, err := p.store.ReplaceSnapshot(ctx, asofStr, rows)
	if err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"asof":         asofStr,
		"rows":         count,
		"calc_version": metrics.CalcVersion,
	}).Info("Snapshot replaced")
	return count, nil
}
