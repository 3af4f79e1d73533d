package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/pipeline"
)

// reserveCmd represents the reserve command
var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "유보율 수집 + 스냅샷 스탬프",
	Long: `네이버 기업정보에서 전 종목의 유보율을 수집해
스냅샷의 reserve_ratio 컬럼에 기록합니다.

--rebuild-snapshot을 주면 수집과 기록 사이에 스냅샷을
재계산합니다. 수집에 실패한 종목은 직전 값을 유지합니다.

Example:
  go run ./cmd/kscreener reserve
  go run ./cmd/kscreener reserve --rebuild-snapshot
  go run ./cmd/kscreener reserve --asof 2025-08-22`,
	RunE: runReserve,
}

var (
	// Reserve flags
	reserveAsof     string
	reserveRebuild  bool
	reserveLookback int
)

func init() {
	rootCmd.AddCommand(reserveCmd)

	// Flags
	reserveCmd.Flags().StringVar(&reserveAsof, "asof", "", "기준일 (YYYY-MM-DD, 기본: 캐시 최신 날짜)")
	reserveCmd.Flags().BoolVar(&reserveRebuild, "rebuild-snapshot", false, "기록 전에 스냅샷 재계산")
	reserveCmd.Flags().IntVar(&reserveLookback, "lookback-days", 0, "재계산 창 거래일 수 (기본: LOOKBACK_DAYS)")
}

func runReserve(cmd *cobra.Command, args []string) error {
	fmt.Println("=== KScreener Reserve Update ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	lookback := reserveLookback
	if lookback <= 0 {
		lookback = deps.cfg.Batch.LookbackDays
	}

	result, err := deps.pipeline.UpdateReserveOnly(cmd.Context(), pipeline.RunConfig{
		AsofDate:     reserveAsof,
		LookbackDays: lookback,
	}, reserveRebuild)
	if err != nil {
		PrintError(fmt.Sprintf("Reserve update failed: %v", err))
		return err
	}

	fmt.Println()
	PrintSuccess("Reserve Update Completed")
	fmt.Println()
	PrintKeyValue("Run ID", result.RunID, 14)
	PrintKeyValue("As-of", result.AsofDate, 14)
	PrintKeyValue("Duration", fmt.Sprintf("%.2fs", result.Duration.Seconds()), 14)
	fmt.Println()

	stats := result.Stats
	PrintKeyValue("Total", formatCount(stats.Total), 14)
	PrintKeyValue("Success", formatCount(stats.Success), 14)
	PrintKeyValue("Fetch Fail", formatCount(stats.FetchFail), 14)
	PrintKeyValue("No Data", formatCount(stats.NoData), 14)
	PrintKeyValue("Parse Error", formatCount(stats.ParseError), 14)
	fmt.Println()
	PrintKeyValue("Stamped Rows", formatCount(result.Updated), 14)
	if reserveRebuild {
		PrintKeyValue("Snapshot Rows", formatCount(result.SnapshotRows), 14)
	}

	if stats.Success == 0 && stats.Total > 0 {
		PrintWarning("수집 성공이 0건입니다. 포털 차단 또는 마크업 변경을 확인하세요.")
	}

	return nil
}
