package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/scheduler"
	"github.com/quantlab-kr/kscreener/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

등록되는 작업:
- daily_batch:     평일 18:30 (전체 수집 + 스냅샷 재계산)
- reserve_refresh: 평일 21:00 (유보율 수집 + 스탬프)

스케줄은 SCHEDULE_DAILY_BATCH / SCHEDULE_RESERVE_REFRESH로 바꿀 수 있습니다.

Subcommands:
  start   - 스케줄러 시작 (포그라운드)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/kscreener scheduler start
  go run ./cmd/kscreener scheduler list
  go run ./cmd/kscreener scheduler run daily_batch`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 작업을 스케줄합니다.

Ctrl+C로 종료하면 실행 중인 작업이 끝나기를 기다린 뒤
작업별 실행 통계를 출력합니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listScheduledJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행 (완료까지 대기)",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduledJobOnce,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// buildJobs constructs every recurring job against one pipeline
func buildJobs(deps *pipelineDeps) []scheduler.Job {
	return []scheduler.Job{
		jobs.NewDailyBatchJob(deps.pipeline, deps.cfg, deps.log),
		jobs.NewReserveRefreshJob(deps.pipeline, deps.cfg, deps.log),
	}
}

func initScheduler(deps *pipelineDeps) (*scheduler.Scheduler, error) {
	sched := scheduler.New(deps.log)
	for _, job := range buildJobs(deps) {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== KScreener Scheduler ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := initScheduler(deps)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println()
	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for name, stat := range sched.Stats() {
		fmt.Printf("  - %-16s %s\n", name, stat.Schedule)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	printSchedulerStats(sched)
	return nil
}

func listScheduledJobs(cmd *cobra.Command, args []string) error {
	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := initScheduler(deps)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	for name, stat := range sched.Stats() {
		fmt.Printf("  - %-16s %s\n", name, stat.Schedule)
	}
	return nil
}

// runScheduledJobOnce runs one job synchronously so the process exits with
// the job's outcome
func runScheduledJobOnce(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	for _, job := range buildJobs(deps) {
		if job.Name() != jobName {
			continue
		}
		fmt.Printf("Running job: %s\n\n", jobName)
		if err := job.Run(cmd.Context()); err != nil {
			PrintError(fmt.Sprintf("Job failed: %v", err))
			return err
		}
		PrintSuccess(fmt.Sprintf("Job %s completed", jobName))
		return nil
	}

	return fmt.Errorf("job %s not found (valid: daily_batch, reserve_refresh)", jobName)
}

func printSchedulerStats(sched *scheduler.Scheduler) {
	stats := sched.Stats()

	fmt.Println("\nJob Statistics:")
	fmt.Println()
	for jobName, stat := range stats {
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
		if stat.LastSuccess != nil {
			fmt.Printf("   Last Success: %s\n", stat.LastSuccess.Format("2006-01-02 15:04:05"))
		}
		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}

	fmt.Println("Scheduler stopped")
}
