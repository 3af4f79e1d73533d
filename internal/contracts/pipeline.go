package contracts

// Pipeline Stage 정의 (SSOT)
// job_log와 모든 진행 로그에서 이 상수를 사용해야 함
//
// 전체 배치 흐름:
//   tickers → prices → caps → fundamentals → snapshot
//   (reserve는 별도 서브 파이프라인에서 수집)

// Stage represents one unit of work inside a batch run
type Stage string

const (
	// StageTickers 종목 마스터 갱신
	// 책임: KOSPI/KOSDAQ 상장 목록 수집, ticker_master upsert
	StageTickers Stage = "tickers"

	// StagePrices 종목별 일봉 수집
	// 책임: [asof-2*lookback, asof] 구간 OHLCV 수집, prices_daily upsert
	StagePrices Stage = "prices"

	// StageCaps 시가총액 수집
	// 책임: 구간 내 거래일별 전 종목 시총/상장주식수, cap_daily upsert
	StageCaps Stage = "caps"

	// StageFundamentals 밸류에이션 지표 수집
	// 책임: 앵커 날짜별 PER/PBR/EPS/BPS/DIV/DPS, fundamental_daily upsert
	StageFundamentals Stage = "fundamentals"

	// StageSnapshot 스냅샷 재계산
	// 책임: 캐시 조회 → 지표 계산 → snapshot_metrics 원자적 교체
	StageSnapshot Stage = "snapshot"

	// StageReserve 유보율 수집
	// 책임: 종목별 리포트 페이지 크롤링, 스냅샷 유보율 갱신
	StageReserve Stage = "reserve"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Description returns Korean description of the stage
func (s Stage) Description() string {
	switch s {
	case StageTickers:
		return "종목 마스터 갱신"
	case StagePrices:
		return "일봉 수집"
	case StageCaps:
		return "시가총액 수집"
	case StageFundamentals:
		return "밸류에이션 수집"
	case StageSnapshot:
		return "스냅샷 재계산"
	case StageReserve:
		return "유보율 수집"
	default:
		return "알 수 없음"
	}
}

// BatchStages returns the full-run stages in execution order
func BatchStages() []Stage {
	return []Stage{
		StageTickers,
		StagePrices,
		StageCaps,
		StageFundamentals,
		StageSnapshot,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range append(BatchStages(), StageReserve) {
		if string(stage) == s {
			return true
		}
	}
	return false
}
