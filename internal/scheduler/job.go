package scheduler

import (
	"context"
	"time"
)

// Job represents a recurring batch job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name used in logs and history
	Name() string

	// Run executes one job cycle
	Run(ctx context.Context) error

	// Schedule returns the cron spec (seconds field included)
	// 예: "0 30 18 * * MON-FRI" (평일 18:30)
	Schedule() string
}

// JobResult records one job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the most recent execution results for one job
type JobHistory struct {
	Results []JobResult
}

const historyLimit = 100

// AddResult appends a result, trimming history to the last 100 runs
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// LatestResults returns up to n most recent results, oldest first
func (h *JobHistory) LatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n == 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// SuccessRate returns the fraction of recorded runs that succeeded
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}
	success := 0
	for _, result := range h.Results {
		if result.Success {
			success++
		}
	}
	return float64(success) / float64(len(h.Results))
}
