package tennis

import "time"

const (
	temporalDateMultiplier    = 10_000_000
	temporalEditionMultiplier = 100

	// farFutureDatePart sorts matches with no usable date after every dated
	// match: YYYYMMDD for 9999-12-31.
	farFutureDatePart = 99_991_231
)

// TemporalOrder computes the integer sort key that totally orders matches:
//
//	date_part · 10^7 + edition_id · 10^2 + round_rank
//
// date_part is the real match date when present, else the tournament
// edition's end date, else a far-future fallback so undated matches sort
// last. The key is reproducible from (match date or edition window,
// edition ID, round); ties break by match ID at query time.
func TemporalOrder(matchDate, editionEnd *time.Time, editionID int64, round Round) int64 {
	datePart := int64(farFutureDatePart)

	switch {
	case matchDate != nil:
		datePart = DateKey(*matchDate)
	case editionEnd != nil:
		datePart = DateKey(*editionEnd)
	}

	return datePart*temporalDateMultiplier + editionID*temporalEditionMultiplier + int64(round.Rank())
}

// DateKey converts a time into its YYYYMMDD integer form.
func DateKey(t time.Time) int64 {
	year, month, day := t.Date()

	return int64(year)*10_000 + int64(month)*100 + int64(day)
}
