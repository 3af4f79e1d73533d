package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/pipeline"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "캐시만으로 스냅샷 재계산",
	Long: `네트워크 수집 없이 캐시된 시세/시총/펀더멘털만으로
분석 스냅샷을 다시 계산합니다.

기준일은 --asof, 없으면 캐시의 최신 시세 날짜, 그것도 없으면
최신 스냅샷 날짜를 사용합니다. 캐시가 비어 있으면 실패합니다.

Example:
  go run ./cmd/kscreener snapshot
  go run ./cmd/kscreener snapshot --asof 2025-08-22`,
	RunE: runSnapshotOnly,
}

var (
	// Snapshot flags
	snapshotAsof     string
	snapshotLookback int
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	// Flags
	snapshotCmd.Flags().StringVar(&snapshotAsof, "asof", "", "기준일 (YYYY-MM-DD, 기본: 캐시 최신 날짜)")
	snapshotCmd.Flags().IntVar(&snapshotLookback, "lookback-days", 0, "계산 창 거래일 수 (기본: LOOKBACK_DAYS)")
}

func runSnapshotOnly(cmd *cobra.Command, args []string) error {
	fmt.Println("=== KScreener Snapshot Rebuild ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}
	defer deps.Close()

	lookback := snapshotLookback
	if lookback <= 0 {
		lookback = deps.cfg.Batch.LookbackDays
	}

	result, err := deps.pipeline.RebuildSnapshotOnly(cmd.Context(), pipeline.RunConfig{
		AsofDate:     snapshotAsof,
		LookbackDays: lookback,
	})
	if err != nil {
		PrintError(fmt.Sprintf("Snapshot rebuild failed: %v", err))
		return err
	}

	fmt.Println()
	PrintSuccess("Snapshot Rebuilt")
	fmt.Println()
	PrintKeyValue("Run ID", result.RunID, 14)
	PrintKeyValue("As-of", result.AsofDate, 14)
	PrintKeyValue("Snapshot Rows", formatCount(result.SnapshotRows), 14)
	PrintKeyValue("Duration", fmt.Sprintf("%.2fs", result.Duration.Seconds()), 14)

	return nil
}
