package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// ErrEmptyCache is returned when a sub-pipeline needs cached data that a
// full collection run has not produced yet
var ErrEmptyCache = errors.New("cache is empty: run full collection first")

// RebuildSnapshotOnly recomputes and replaces the snapshot from cached
// data without touching any external source
func (p *Pipeline) RebuildSnapshotOnly(ctx context.Context, cfg RunConfig) (*BatchResult, error) {
	startedAt := time.Now()
	runID := uuid.NewString()

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}

	asofStr, err := p.resolveCachedAsof(ctx, cfg.AsofDate)
	if err != nil {
		return nil, err
	}
	asof, err := time.Parse(dateLayout, asofStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cached asof date %q: %w", asofStr, err)
	}

	active, err := p.store.CountActiveTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active tickers: %w", err)
	}
	if active == 0 {
		return nil, fmt.Errorf("ticker %w", ErrEmptyCache)
	}

	result := &BatchResult{
		RunID:           runID,
		AsofDate:        asofStr,
		Tickers:         active,
		CompletedStages: make([]string, 0, 1),
	}

	p.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"asof":   asofStr,
		"window": lookback,
	}).Info("Starting snapshot-only rebuild")

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
		"asof":          asofStr,
		"snapshot_rows": result.SnapshotRows,
		"duration":      result.Duration.Round(time.Second).String(),
	}).Info("Snapshot-only rebuild completed")

	return result, nil
}

// resolveCachedAsof picks the as-of date for cache-driven sub-pipelines:
// the explicit date, else the latest cached price date, else the latest
// snapshot date
func (p *Pipeline) resolveCachedAsof(ctx context.Context, given string) (string, error) {
	if given != "" {
		if _, err := time.Parse(dateLayout, given); err != nil {
			return "", fmt.Errorf("invalid asof date %q: %w", given, err)
		}
		return given, nil
	}

	latest, err := p.store.LatestPriceDate(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve asof from price cache: %w", err)
	}
	if latest != "" {
		return latest, nil
	}

	latest, err = p.store.LatestSnapshotDate(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve asof from snapshot: %w", err)
	}
	if latest != "" {
		return latest, nil
	}

	return "", fmt.Errorf("price %w", ErrEmptyCache)
}
