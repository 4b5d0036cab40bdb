package tennis

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrEmptyScore is returned when the raw score string is empty.
	ErrEmptyScore = errors.New("empty score")

	// ErrInvalidScore is returned when the raw score does not match the
	// accepted grammar.
	ErrInvalidScore = errors.New("invalid score")
)

const (
	maxStandardGames = 7  // standard set games run 0..7
	minSuperTiebreak = 10 // 10+ in either slot marks a super tiebreak
	maxSuperTiebreak = 99
	standardTBTarget = 7 // winner of a standard tiebreak reaches at least 7
)

// setToken matches "6-4", "7-6(5)" and "7-6(10-8)".
var setToken = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})(?:\((\d{1,3})(?:-(\d{1,3}))?\))?$`)

// SetScore is one set in a structured score. The a side is the side the raw
// score was written from (winner-first by tour convention). A single-number
// tiebreak in the raw form ("7-6(5)") expands to both sides, loser's points
// as given, winner's points inferred.
type SetScore struct {
	A       int  `json:"a"`
	B       int  `json:"b"`
	TBA     *int `json:"tb_a,omitempty"`
	TBB     *int `json:"tb_b,omitempty"`
	Retired bool `json:"retired,omitempty"`
}

// Score is a fully parsed match score.
type Score struct {
	Sets          []SetScore
	Status        MatchStatus // completed, retired, walkover, or default
	RetirementSet int         // 1-based set during which retirement occurred; 0 when none
}

// ParseScore parses a raw score string into its structured form.
//
// Accepted grammar:
//
//	score    = set (" " set)* (" RET")?
//	         | "W/O" | "WO" | "walkover"
//	         | "DEF" | "default"
//	set      = games_a "-" games_b tiebreak?
//	tiebreak = "(" digits ("-" digits)? ")"
//
// Standard set games run 0..7; a value of 10 or more in either slot marks a
// super tiebreak (0..99). Values of 8 or 9 are rejected. Parse failures are
// per-record conditions for callers: count them, keep the batch going.
func ParseScore(raw string) (Score, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Score{}, ErrEmptyScore
	}

	switch strings.ToLower(trimmed) {
	case "w/o", "wo", "walkover":
		return Score{Status: StatusWalkover}, nil
	case "def", "default":
		return Score{Status: StatusDefault}, nil
	}

	tokens := strings.Fields(trimmed)
	retired := false

	if last := tokens[len(tokens)-1]; strings.EqualFold(last, "RET") {
		retired = true
		tokens = tokens[:len(tokens)-1]
	}

	sets := make([]SetScore, 0, len(tokens))

	for _, token := range tokens {
		set, err := parseSetToken(token)
		if err != nil {
			return Score{}, err
		}

		sets = append(sets, set)
	}

	score := Score{Sets: sets, Status: StatusCompleted}

	if retired {
		score.Status = StatusRetired

		if len(sets) > 0 {
			score.Sets[len(sets)-1].Retired = true
			score.RetirementSet = len(sets)
		}
	}

	return score, nil
}

func parseSetToken(token string) (SetScore, error) {
	groups := setToken.FindStringSubmatch(token)
	if groups == nil {
		return SetScore{}, fmt.Errorf("%w: set token %q", ErrInvalidScore, token)
	}

	a, _ := strconv.Atoi(groups[1])
	b, _ := strconv.Atoi(groups[2])

	if err := validateGames(a, b, token); err != nil {
		return SetScore{}, err
	}

	set := SetScore{A: a, B: b}

	if groups[3] != "" {
		first, _ := strconv.Atoi(groups[3])

		if groups[4] != "" {
			// Explicit "(x-y)" form: points in a-b order as written.
			second, _ := strconv.Atoi(groups[4])
			set.TBA, set.TBB = &first, &second
		} else {
			// Conventional "(n)" form: n is the set loser's points.
			winnerPoints := standardTBTarget
			if first+2 > winnerPoints {
				winnerPoints = first + 2
			}

			if a > b {
				set.TBA, set.TBB = &winnerPoints, &first
			} else {
				set.TBA, set.TBB = &first, &winnerPoints
			}
		}
	}

	return set, nil
}

func validateGames(a, b int, token string) error {
	if a <= maxStandardGames && b <= maxStandardGames {
		return nil
	}

	// Super tiebreak: at least one side reaches 10; 8 and 9 fit neither form.
	maxGames := a
	if b > maxGames {
		maxGames = b
	}

	if maxGames >= minSuperTiebreak && a <= maxSuperTiebreak && b <= maxSuperTiebreak {
		return nil
	}

	return fmt.Errorf("%w: games out of range in %q", ErrInvalidScore, token)
}

// String renders the score back into its display form. The rendered string
// re-parses to an equivalent structure (tiebreaks always render two-sided).
func (s Score) String() string {
	switch s.Status {
	case StatusWalkover:
		return "W/O"
	case StatusDefault:
		return "DEF"
	}

	parts := make([]string, 0, len(s.Sets)+1)

	for _, set := range s.Sets {
		token := fmt.Sprintf("%d-%d", set.A, set.B)
		if set.TBA != nil && set.TBB != nil {
			token += fmt.Sprintf("(%d-%d)", *set.TBA, *set.TBB)
		}

		parts = append(parts, token)
	}

	if s.Status == StatusRetired {
		parts = append(parts, "RET")
	}

	return strings.Join(parts, " ")
}

// SetsWon counts sets taken by each side. Super-tiebreak sets count like any
// other set.
func (s Score) SetsWon() (a, b int) {
	for _, set := range s.Sets {
		switch {
		case set.A > set.B:
			a++
		case set.B > set.A:
			b++
		}
	}

	return a, b
}

// IsSuperTiebreak reports whether a set is a standalone super tiebreak
// (match tiebreak played in place of a final set).
func (set SetScore) IsSuperTiebreak() bool {
	return set.A >= minSuperTiebreak || set.B >= minSuperTiebreak
}

// DominanceRatio measures how one-sided the match was, in [0, 1], from the
// a side's (score-writer's, i.e. winner's) perspective: games won minus
// games lost over total games. Super-tiebreak sets contribute a single game
// to whichever side took them; walkovers and defaults have no played games
// and return 0.
func (s Score) DominanceRatio() float64 {
	gamesA, gamesB := 0, 0

	for _, set := range s.Sets {
		if set.IsSuperTiebreak() {
			if set.A > set.B {
				gamesA++
			} else if set.B > set.A {
				gamesB++
			}

			continue
		}

		gamesA += set.A
		gamesB += set.B
	}

	total := gamesA + gamesB
	if total == 0 {
		return 0
	}

	ratio := float64(gamesA-gamesB) / float64(total)
	if ratio < 0 {
		return 0
	}

	return ratio
}
