package tennis

import "fmt"

// MatchExternalID builds the deterministic match identity:
//
//	"{year}_{tournament_code}_{round}_{id_low}_{id_high}"
//
// where id_low/id_high are the two player references in lexicographic order.
// A player reference is the tour-site player ID when one exists, else the
// hyphenated normalized name (names.Slug). Sorting makes the identity
// independent of which side a scraper listed first, so draw, schedule, and
// results ingestion all converge on the same row.
func MatchExternalID(year int, tournamentCode string, round Round, playerRefA, playerRefB string) string {
	low, high := playerRefA, playerRefB
	if high < low {
		low, high = high, low
	}

	return fmt.Sprintf("%d_%s_%s_%s_%s", year, tournamentCode, round, low, high)
}
