package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab-kr/kscreener/internal/pipeline"
	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// ReserveRefreshJob scrapes reserve ratios and stamps the latest snapshot
// ⭐ SSOT: 유보율 갱신 스케줄은 이 Job에서만
type ReserveRefreshJob struct {
	pipeline *pipeline.Pipeline
	config   *config.Config
	logger   *logger.Logger
}

// NewReserveRefreshJob creates the evening reserve-ratio refresh job
func NewReserveRefreshJob(pl *pipeline.Pipeline, cfg *config.Config, log *logger.Logger) *ReserveRefreshJob {
	return &ReserveRefreshJob{
		pipeline: pl,
		config:   cfg,
		logger:   log,
	}
}

// Name returns the job name
func (j *ReserveRefreshJob) Name() string {
	return "reserve_refresh"
}

// Schedule returns the cron spec (기본: 평일 21:00, 일일 배치 이후)
func (j *ReserveRefreshJob) Schedule() string {
	return j.config.Scheduler.ReserveRefreshSpec
}

// Run scrapes every active ticker and stamps the snapshot in place.
// 스냅샷 재계산은 18:30 일일 배치의 몫이므로 여기서는 스탬프만 한다.
func (j *ReserveRefreshJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled reserve refresh")

	result, err := j.pipeline.UpdateReserveOnly(ctx, pipeline.RunConfig{}, false)
	if err != nil {
		return fmt.Errorf("reserve refresh: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":   result.RunID,
		"asof":     result.AsofDate,
		"success":  result.Stats.Success,
		"failed":   result.Stats.FetchFail + result.Stats.ParseError,
		"updated":  result.Updated,
		"duration": result.Duration.Round(time.Second).String(),
	}).Info("Scheduled reserve refresh completed")

	return nil
}
