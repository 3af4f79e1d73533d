package naver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantlab-kr/kscreener/internal/contracts"
)

// 유보율 행을 찾는 기준 마커 (긴 쪽 우선)
var reserveMarkers = []string{"자본유보율", "유보율"}

var (
	numberPattern    = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)
	tagNumberPattern = regexp.MustCompile(`>\s*(-?\d+(?:,\d{3})*(?:\.\d+)?)\s*<`)
	// 마커 직후 30자 이내에 붙어 나오는 숫자 (라벨:값 꼴의 변형 페이지)
	nearNumberPattern = regexp.MustCompile(`유보율[^0-9-]{0,30}(-?\d+(?:,\d{3})*(?:\.\d+)?)`)
)

// Reserve-ratio cells hold percentages; anything outside this range is
// a stray figure from elsewhere in the page.
const (
	minReserveRatio = -1000.0
	maxReserveRatio = 100000.0
)

// ParseReserveRatio extracts the latest-period reserve ratio from a
// company report page.
//
// The primary path locates the table row whose header cell mentions the
// ratio and reads its data cells; a row of blank or "-" cells is a
// listed company without the figure (no_data), not a parse failure.
// Pages that render the figure outside a regular table fall back to a
// proximity scan around the marker text.
func ParseReserveRatio(html string) (*float64, contracts.ReserveOutcome) {
	if cells, found := findReserveRow(html); found {
		return parseRowCells(cells)
	}
	return fallbackScan(html)
}

// findReserveRow returns the stripped td texts of the first table row
// whose th contains a reserve-ratio marker
func findReserveRow(html string) ([]string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	var cells []string
	found := false

	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		header := row.Find("th").FilterFunction(func(_ int, th *goquery.Selection) bool {
			text := th.Text()
			for _, marker := range reserveMarkers {
				if strings.Contains(text, marker) {
					return true
				}
			}
			return false
		})
		if header.Length() == 0 {
			return true
		}

		found = true
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		return false
	})

	return cells, found
}

func parseRowCells(cells []string) (*float64, contracts.ReserveOutcome) {
	// 셀이 아예 없는 행도 값이 없는 상장사로 취급
	if allBlankOrDash(cells) {
		return nil, contracts.ReserveNoData
	}

	var values []float64
	for _, cell := range cells {
		for _, raw := range numberPattern.FindAllString(cell, -1) {
			if v, ok := parseRatioValue(raw); ok {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return nil, contracts.ReserveParseError
	}
	return pickRatio(values), contracts.ReserveSuccess
}

// fallbackScan gathers candidate numbers from ±3000-char windows around
// the first occurrence of each marker
func fallbackScan(html string) (*float64, contracts.ReserveOutcome) {
	var values []float64
	markerFound := false

	for _, marker := range reserveMarkers {
		idx := strings.Index(html, marker)
		if idx < 0 {
			continue
		}
		markerFound = true

		start := max(0, idx-3000)
		end := min(len(html), idx+3000)
		snippet := html[start:end]

		for _, m := range tagNumberPattern.FindAllStringSubmatch(snippet, -1) {
			if v, ok := parseRatioValue(m[1]); ok {
				values = append(values, v)
			}
		}
		for _, m := range nearNumberPattern.FindAllStringSubmatch(snippet, -1) {
			if v, ok := parseRatioValue(m[1]); ok {
				values = append(values, v)
			}
		}
	}

	if !markerFound {
		return nil, contracts.ReserveMarkerMissing
	}
	if len(values) == 0 {
		return nil, contracts.ReserveParseError
	}
	return pickRatio(values), contracts.ReserveSuccess
}

func allBlankOrDash(cells []string) bool {
	for _, cell := range cells {
		if cell != "" && cell != "-" {
			return false
		}
	}
	return true
}

func parseRatioValue(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if v < minReserveRatio || v > maxReserveRatio {
		return 0, false
	}
	return v, true
}

// pickRatio returns the first positive candidate, else the first one
func pickRatio(values []float64) *float64 {
	for _, v := range values {
		if v > 0 {
			return &v
		}
	}
	return &values[0]
}
