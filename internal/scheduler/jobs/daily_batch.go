package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab-kr/kscreener/internal/pipeline"
	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// DailyBatchJob runs the full collection pipeline after market close
// ⭐ SSOT: 일일 배치 스케줄은 이 Job에서만
type DailyBatchJob struct {
	pipeline *pipeline.Pipeline
	config   *config.Config
	logger   *logger.Logger
}

// NewDailyBatchJob creates the nightly full-collection job
func NewDailyBatchJob(pl *pipeline.Pipeline, cfg *config.Config, log *logger.Logger) *DailyBatchJob {
	return &DailyBatchJob{
		pipeline: pl,
		config:   cfg,
		logger:   log,
	}
}

// Name returns the job name
func (j *DailyBatchJob) Name() string {
	return "daily_batch"
}

// Schedule returns the cron spec (기본: 평일 18:30, KRX 일일 데이터 확정 이후)
func (j *DailyBatchJob) Schedule() string {
	return j.config.Scheduler.DailyBatchSpec
}

// Run executes one full collection and snapshot rebuild
func (j *DailyBatchJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled daily batch")

	result, err := j.pipeline.Run(ctx, pipeline.RunConfig{
		LookbackDays: j.config.Batch.LookbackDays,
	})
	if err != nil {
		return fmt.Errorf("daily batch: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":        result.RunID,
		"asof":          result.AsofDate,
		"tickers":       result.Tickers,
		"snapshot_rows": result.SnapshotRows,
		"duration":      result.Duration.Round(time.Second).String(),
	}).Info("Scheduled daily batch completed")

	return nil
}
