package contracts

// ReserveOutcome classifies one scrape attempt
type ReserveOutcome string

const (
	ReserveSuccess       ReserveOutcome = "success"
	ReserveFetchFail     ReserveOutcome = "fetch_fail"
	ReserveNoData        ReserveOutcome = "no_data"
	ReserveParseError    ReserveOutcome = "parse_error"
	ReserveMarkerMissing ReserveOutcome = "marker_missing"
)

// ReserveResult is the per-ticker result of one reserve-ratio scrape
// ⭐ SSOT: 유보율 수집 결과는 이 타입으로만 전달
type ReserveResult struct {
	Ticker  string         `json:"ticker"`
	Outcome ReserveOutcome `json:"outcome"`
	Ratio   *float64       `json:"ratio,omitempty"` // 유보율 (%)
}

// OK reports whether the scrape produced a usable ratio
func (r *ReserveResult) OK() bool {
	return r.Outcome == ReserveSuccess && r.Ratio != nil
}

// ScrapeStats aggregates one crawl's per-outcome counts
type ScrapeStats struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	FetchFail  int `json:"fetch_fail"`
	NoData     int `json:"no_data"`
	ParseError int `json:"parse_error"` // parse_error와 marker_missing 합산
}
