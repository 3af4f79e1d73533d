package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "캐시/작업 상태 조회",
	Long: `캐시 테이블 행 수, 최신 날짜, 최근 작업 이력을 출력합니다.

표시 정보:
- DB 경로와 테이블별 행 수
- 최신 시세 날짜 / 최신 스냅샷 날짜
- job_log의 최근 스테이지 실행 이력

Example:
  go run ./cmd/kscreener status
  go run ./cmd/kscreener status --db data/kscreener.db`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("  KScreener Cache Status")
	PrintSeparator()
	PrintKeyValue("DB", store.Path(), 20)
	fmt.Println()

	// 테이블별 행 수
	counts, err := store.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	for _, table := range []string{"ticker_master", "prices_daily", "cap_daily", "fundamental_daily", "snapshot_metrics", "job_log"} {
		PrintKeyValue(table, formatCount(counts[table]), 20)
	}
	fmt.Println()

	// 최신 날짜
	priceDate, err := store.LatestPriceDate(ctx)
	if err != nil {
		return fmt.Errorf("latest price date: %w", err)
	}
	snapshotDate, err := store.LatestSnapshotDate(ctx)
	if err != nil {
		return fmt.Errorf("latest snapshot date: %w", err)
	}
	PrintKeyValue("Latest Price Date", orDefault(priceDate, "-"), 20)
	PrintKeyValue("Latest Snapshot", orDefault(snapshotDate, "-"), 20)

	if snapshotDate != "" {
		rows, err := store.CountSnapshotRows(ctx, snapshotDate)
		if err != nil {
			return fmt.Errorf("count snapshot rows: %w", err)
		}
		PrintKeyValue("Snapshot Rows", formatCount(rows), 20)
	}
	fmt.Println()

	// 최근 작업 이력
	jobs, err := store.RecentJobs(ctx, 10)
	if err != nil {
		return fmt.Errorf("recent jobs: %w", err)
	}

	PrintSeparator()
	fmt.Println("  Recent Jobs")
	PrintSeparator()

	if len(jobs) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		PrintWarning("작업 이력이 없습니다. 'run'으로 전체 수집을 먼저 실행하세요.")
		return nil
	}

	widths := []int{21, 13, 8, 10, 28}
	PrintTableHeader([]string{"STARTED", "STAGE", "STATUS", "ROWS", "MESSAGE"}, widths)
	for _, job := range jobs {
		message := job.Message
		if runes := []rune(message); len(runes) > 28 {
			message = string(runes[:25]) + "..."
		}
		PrintTableRow([]string{
			job.StartedAt,
			job.Stage,
			job.Status,
			formatCount(job.RowCount),
			message,
		}, widths)
	}
	fmt.Println()

	return nil
}
