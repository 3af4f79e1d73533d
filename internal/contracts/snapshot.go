package contracts

import "time"

// SnapshotRow is the wide per-ticker analytical record published for one
// as-of date. Derived fields are nullable: a metric whose inputs are not
// fully available stays null rather than being approximated.
// ⭐ SSOT: 스냅샷 산출 결과는 이 타입으로만 전달
type SnapshotRow struct {
	AsofDate time.Time `json:"asof_date"`
	Ticker   string    `json:"ticker"`
	Name     string    `json:"name"`
	Market   string    `json:"market"`

	// 시세/규모
	Close float64  `json:"close"`
	Mcap  *float64 `json:"mcap,omitempty"`

	// 펀더멘털 (asof 당일 관측치)
	Per *float64 `json:"per,omitempty"`
	Pbr *float64 `json:"pbr,omitempty"`
	Eps *float64 `json:"eps,omitempty"`
	Bps *float64 `json:"bps,omitempty"`
	Div *float64 `json:"div,omitempty"`
	Dps *float64 `json:"dps,omitempty"`

	RoeProxy    *float64 `json:"roe_proxy,omitempty"` // eps/bps
	EpsPositive bool     `json:"eps_positive"`

	// 이동평균/추세
	Sma20      *float64 `json:"sma20,omitempty"`
	Sma50      *float64 `json:"sma50,omitempty"`
	Sma200     *float64 `json:"sma200,omitempty"`
	DistSma20  *float64 `json:"dist_sma20,omitempty"`
	DistSma50  *float64 `json:"dist_sma50,omitempty"`
	DistSma200 *float64 `json:"dist_sma200,omitempty"`

	// 52주 구간
	High52w          *float64 `json:"high_52w,omitempty"`
	Low52w           *float64 `json:"low_52w,omitempty"`
	Pos52w           *float64 `json:"pos_52w,omitempty"`
	Near52wHighRatio *float64 `json:"near_52w_high_ratio,omitempty"`

	// 변동성/유동성
	Vol20d      *float64 `json:"vol_20d,omitempty"`
	AvgValue20d *float64 `json:"avg_value_20d,omitempty"`
	Turnover20d *float64 `json:"turnover_20d,omitempty"`

	// 구간 수익률
	Ret1w *float64 `json:"ret_1w,omitempty"`
	Ret1m *float64 `json:"ret_1m,omitempty"`
	Ret3m *float64 `json:"ret_3m,omitempty"`
	Ret6m *float64 `json:"ret_6m,omitempty"`
	Ret1y *float64 `json:"ret_1y,omitempty"`

	// 이익 성장
	EpsCagr5y *float64 `json:"eps_cagr_5y,omitempty"`
	EpsYoyQ   *float64 `json:"eps_yoy_q,omitempty"`

	// 유보율 (스크레이퍼 최신값)
	ReserveRatio *float64 `json:"reserve_ratio,omitempty"`

	CalcVersion string `json:"calc_version"`
}
