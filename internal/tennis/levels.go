package tennis

import "strings"

// Round is a draw round code.
type Round string

// Draw rounds, qualifying through final.
const (
	RoundQ1   Round = "Q1"
	RoundQ2   Round = "Q2"
	RoundQ3   Round = "Q3"
	RoundRR   Round = "RR"
	RoundR128 Round = "R128"
	RoundR64  Round = "R64"
	RoundR32  Round = "R32"
	RoundR16  Round = "R16"
	RoundQF   Round = "QF"
	RoundSF   Round = "SF"
	RoundF    Round = "F"
)

// roundRanks is the explicit, single sorted enum over rounds. Qualifying
// rounds sort before everything in the main draw, round robin before the
// first knockout round. Knockout ranks run 1..7 rather than zero-based so RR
// can hold 0: temporal keys built from this table sit one rank above a
// zero-based R128..F numbering. The rank participates directly in
// temporal_order, so changing a value reorders history; treat this table as
// frozen.
var roundRanks = map[Round]int{
	RoundQ1:   -3,
	RoundQ2:   -2,
	RoundQ3:   -1,
	RoundRR:   0,
	RoundR128: 1,
	RoundR64:  2,
	RoundR32:  3,
	RoundR16:  4,
	RoundQF:   5,
	RoundSF:   6,
	RoundF:    7,
}

// Rank returns the round's position in the sorted round enum. Unknown rounds
// rank 0 so malformed input still produces a usable (if coarse) ordering.
func (r Round) Rank() int {
	return roundRanks[r]
}

// IsValid returns true when the round is one of the recognized codes.
func (r Round) IsValid() bool {
	_, ok := roundRanks[r]

	return ok
}

// Level is a tournament tier. ITF events carry their prize band in the
// value ("itf_15k"); everything ITF classifies as Futures for rating
// purposes regardless of band.
type Level string

// Tournament levels.
const (
	LevelGrandSlam   Level = "grand_slam"
	LevelMasters1000 Level = "masters_1000"
	LevelTour500     Level = "tour_500"
	LevelTour250     Level = "tour_250"
	LevelChallenger  Level = "challenger"
	LevelWTA125      Level = "wta_125"
)

const itfLevelPrefix = "itf"

// IsValid returns true for known levels and any ITF prize band.
func (l Level) IsValid() bool {
	switch l {
	case LevelGrandSlam, LevelMasters1000, LevelTour500, LevelTour250,
		LevelChallenger, LevelWTA125:
		return true
	default:
		return strings.HasPrefix(string(l), itfLevelPrefix)
	}
}

// LevelCode selects the K and S parameters for a match: one-letter men's
// codes and W-prefixed women's variants.
type LevelCode string

// Level codes, men then women.
const (
	CodeFutures         LevelCode = "F"
	CodeChallenger      LevelCode = "C"
	CodeTour            LevelCode = "A"
	CodeMasters         LevelCode = "M"
	CodeGrandSlam       LevelCode = "G"
	CodeWomenFutures    LevelCode = "WF"
	CodeWomenChallenger LevelCode = "WC"
	CodeWomenTour       LevelCode = "WA"
	CodeWomenMasters    LevelCode = "WM"
	CodeWomenGrandSlam  LevelCode = "WG"
)

// AllLevelCodes enumerates every parameter-bearing code.
var AllLevelCodes = []LevelCode{
	CodeFutures, CodeChallenger, CodeTour, CodeMasters, CodeGrandSlam,
	CodeWomenFutures, CodeWomenChallenger, CodeWomenTour, CodeWomenMasters, CodeWomenGrandSlam,
}

// IsWomen reports whether the code is a W-prefixed women's variant.
func (c LevelCode) IsWomen() bool {
	return strings.HasPrefix(string(c), "W")
}

// IsValid returns true for the ten parameter-bearing codes.
func (c LevelCode) IsValid() bool {
	switch c {
	case CodeFutures, CodeChallenger, CodeTour, CodeMasters, CodeGrandSlam,
		CodeWomenFutures, CodeWomenChallenger, CodeWomenTour, CodeWomenMasters, CodeWomenGrandSlam:
		return true
	default:
		return false
	}
}

// LevelCodeFor maps a tournament level and gender onto the parameter code.
// WTA 125 events rate as challenger-tier; every ITF band rates as Futures.
func LevelCodeFor(level Level, gender Gender) LevelCode {
	var code LevelCode

	switch {
	case level == LevelGrandSlam:
		code = CodeGrandSlam
	case level == LevelMasters1000:
		code = CodeMasters
	case level == LevelChallenger || level == LevelWTA125:
		code = CodeChallenger
	case strings.HasPrefix(string(level), itfLevelPrefix):
		code = CodeFutures
	default:
		code = CodeTour
	}

	if gender == GenderWomen {
		return "W" + code
	}

	return code
}
