package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/pipeline"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "전체 수집 + 스냅샷 재계산",
	Long: `전체 배치를 실행합니다.

단계:
  tickers      - KRX 상장 종목 목록 갱신
  prices       - 종목별 일별 OHLCV 수집
  caps         - 거래일별 시가총액/거래대금 수집
  fundamentals - 앵커 날짜별 PER/EPS/BPS/배당 수집
  snapshot     - 분석 스냅샷 재계산 (원자적 교체)

유보율은 직전 스냅샷에서 이월되며, 갱신은 reserve 명령의 몫입니다.

Example:
  go run ./cmd/kscreener run
  go run ./cmd/kscreener run --asof 2025-08-22
  go run ./cmd/kscreener run --lookback-days 500`,
	RunE: runBatch,
}

var (
	// Run flags
	runAsof     string
	runLookback int
)

func init() {
	rootCmd.AddCommand(runCmd)

	// Flags
	runCmd.Flags().StringVar(&runAsof, "asof", "", "기준일 (YYYY-MM-DD, 기본: 최근 영업일)")
	runCmd.Flags().IntVar(&runLookback, "lookback-days", 0, "시세 수집 거래일 수 (기본: LOOKBACK_DAYS)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	fmt.Println("=== KScreener Daily Batch ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	lookback := runLookback
	if lookback <= 0 {
		lookback = deps.cfg.Batch.LookbackDays
	}

	fmt.Println()
	PrintKeyValue("As-of", orDefault(runAsof, "최근 영업일"), 14)
	PrintKeyValue("Lookback Days", fmt.Sprintf("%d", lookback), 14)
	PrintKeyValue("DB", deps.store.Path(), 14)
	fmt.Println()

	result, err := deps.pipeline.Run(cmd.Context(), pipeline.RunConfig{
		AsofDate:     runAsof,
		LookbackDays: lookback,
	})
	if err != nil {
		PrintError(fmt.Sprintf("Batch run failed: %v", err))
		return err
	}

	printBatchResult(result)
	return nil
}

func printBatchResult(result *pipeline.BatchResult) {
	fmt.Println()
	PrintSuccess("Batch Run Completed")
	fmt.Println()

	PrintKeyValue("Run ID", result.RunID, 14)
	PrintKeyValue("As-of", result.AsofDate, 14)
	PrintKeyValue("Duration", fmt.Sprintf("%.2fs", result.Duration.Seconds()), 14)
	fmt.Println()

	fmt.Println("Completed Stages:")
	for _, stage := range result.CompletedStages {
		fmt.Printf("  ✅ %s\n", stage)
	}
	fmt.Println()

	PrintKeyValue("Tickers", formatCount(result.Tickers), 17)
	PrintKeyValue("Price Rows", formatCount(result.PriceRows), 17)
	PrintKeyValue("Cap Rows", formatCount(result.CapRows), 17)
	PrintKeyValue("Fundamental Rows", formatCount(result.FundamentalRows), 17)
	PrintKeyValue("Snapshot Rows", formatCount(result.SnapshotRows), 17)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
