package elo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

var (
	// ErrNotTerminal is returned when a non-terminal match reaches the engine.
	ErrNotTerminal = errors.New("match is not terminal")

	// ErrInvalidLevelCode is returned when a match carries a level code the
	// parameter set does not know.
	ErrInvalidLevelCode = errors.New("invalid level code")
)

// Margin multiplier bounds. The clamp keeps one lopsided scoreline from
// moving a rating more than double a normal win would.
const (
	marginFloor = 0.5
	marginCeil  = 2.0
)

// PlayerState is one player's rating state. Rating arithmetic stays float64
// end to end; rounding to two decimals happens once, at the persistence
// boundary.
type PlayerState struct {
	PlayerID          int64
	Rating            float64
	MatchCount        int
	LastTemporalOrder int64
	LastMatchDate     *time.Time
	PeakRating        float64
	UpdatedAt         time.Time
}

// NewPlayerState seeds a player at the baseline rating.
func NewPlayerState(playerID int64, baseline float64) *PlayerState {
	return &PlayerState{
		PlayerID:   playerID,
		Rating:     baseline,
		PeakRating: baseline,
	}
}

// RatedMatch is the engine's view of one terminal match: the fields the
// rating computation needs, joined with the edition's level code.
type RatedMatch struct {
	MatchID       int64
	ExternalID    string
	PlayerAID     int64
	PlayerBID     int64
	WinnerID      int64
	Score         string
	Status        tennis.MatchStatus
	MatchDate     *time.Time
	TemporalOrder int64
	LevelCode     tennis.LevelCode
}

// MatchUpdate is the per-match output of the engine: the pre ratings after
// decay and the post ratings after the exchange.
type MatchUpdate struct {
	MatchID  int64
	PreA     float64
	PreB     float64
	PostA    float64
	PostB    float64
	WinnerID int64
}

// Engine is the pure per-match rating computation. It has no storage and no
// clock; callers feed it matches in temporal order and carry the states.
type Engine struct {
	params *Params
}

// NewEngine builds an engine over a validated parameter set.
func NewEngine(params *Params) *Engine {
	return &Engine{params: params}
}

// Params exposes the engine's parameter set.
func (e *Engine) Params() *Params {
	return e.params
}

// RateMatch rates one terminal match and mutates both player states in
// place: decayed rating, the exchange, match count, last-match markers, and
// peak tracking. The two deltas are symmetric before the per-player boost,
// so the exchange is zero-sum whenever both boosts are 1.
func (e *Engine) RateMatch(match RatedMatch, stateA, stateB *PlayerState) (MatchUpdate, error) {
	if !match.Status.IsTerminal() {
		return MatchUpdate{}, fmt.Errorf("%w: match %s status %s", ErrNotTerminal, match.ExternalID, match.Status)
	}

	k, ok := e.params.K[match.LevelCode]
	if !ok {
		return MatchUpdate{}, fmt.Errorf("%w: %q", ErrInvalidLevelCode, match.LevelCode)
	}

	scale := e.params.S[match.LevelCode]
	baseline := e.params.Baseline(match.LevelCode)

	beforeA := e.decayedRating(stateA, match.MatchDate, baseline)
	beforeB := e.decayedRating(stateB, match.MatchDate, baseline)

	margin, err := e.marginMultiplier(match)
	if err != nil {
		return MatchUpdate{}, fmt.Errorf("match %s: %w", match.ExternalID, err)
	}

	boostA := e.boost(stateA, match.MatchDate)
	boostB := e.boost(stateB, match.MatchDate)

	expectedA := expectedScore(beforeA, beforeB, scale)

	actualA := 0.0
	if match.WinnerID == match.PlayerAID {
		actualA = 1.0
	}

	postA := beforeA + k*margin*boostA*(actualA-expectedA)
	postB := beforeB + k*margin*boostB*((1.0-actualA)-(1.0-expectedA))

	applyOutcome(stateA, postA, match)
	applyOutcome(stateB, postB, match)

	return MatchUpdate{
		MatchID:  match.MatchID,
		PreA:     beforeA,
		PreB:     beforeB,
		PostA:    postA,
		PostB:    postB,
		WinnerID: match.WinnerID,
	}, nil
}

// expectedScore is the logistic win expectancy for the a side.
func expectedScore(ratingA, ratingB, scale float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/scale))
}

// decayedRating pulls an inactive player's rating toward the baseline. The
// pull starts after DecayStartDays of inactivity and grows linearly with the
// excess at DecayRate per year of it, capped at full regression.
func (e *Engine) decayedRating(state *PlayerState, matchDate *time.Time, baseline float64) float64 {
	days := daysBetween(state.LastMatchDate, matchDate)
	if days <= e.params.DecayStartDays || e.params.DecayRate == 0 {
		return state.Rating
	}

	excess := float64(days - e.params.DecayStartDays)

	fraction := excess / 365.0 * e.params.DecayRate
	if fraction > 1 {
		fraction = 1
	}

	return state.Rating + (baseline-state.Rating)*fraction
}

// boost combines the new-player and returning-player K multipliers. A player
// with no prior match counts as new but not as returning.
func (e *Engine) boost(state *PlayerState, matchDate *time.Time) float64 {
	boost := 1.0

	if state.MatchCount < e.params.NewThreshold {
		boost *= e.params.NewBoost
	}

	if state.LastMatchDate != nil && daysBetween(state.LastMatchDate, matchDate) >= e.params.ReturningDays {
		boost *= e.params.ReturningBoost
	}

	return boost
}

// marginMultiplier scales K by how one-sided the scoreline was. Walkovers
// and defaults have no played games and get the bare base.
func (e *Engine) marginMultiplier(match RatedMatch) (float64, error) {
	dominance := 0.0

	if match.Status != tennis.StatusWalkover && match.Status != tennis.StatusDefault {
		score, err := tennis.ParseScore(match.Score)
		if err != nil {
			return 0, err
		}

		dominance = score.DominanceRatio()
	}

	margin := e.params.MarginBase + dominance*e.params.MarginScale

	switch {
	case margin < marginFloor:
		return marginFloor, nil
	case margin > marginCeil:
		return marginCeil, nil
	default:
		return margin, nil
	}
}

func applyOutcome(state *PlayerState, post float64, match RatedMatch) {
	state.Rating = post
	state.MatchCount++
	state.LastTemporalOrder = match.TemporalOrder
	state.UpdatedAt = time.Now().UTC()

	if match.MatchDate != nil {
		date := *match.MatchDate
		state.LastMatchDate = &date
	}

	if post > state.PeakRating {
		state.PeakRating = post
	}
}

// daysBetween is the whole-day gap between two dates; unknown dates gap 0.
func daysBetween(from, to *time.Time) int {
	if from == nil || to == nil {
		return 0
	}

	gap := to.Sub(*from)
	if gap < 0 {
		return 0
	}

	return int(gap.Hours() / 24)
}

// Round2 rounds a rating to two decimals, half away from zero. Ratings stay
// float64 in memory; the decimal pass happens once, at the persistence and
// display boundary, so the stored value is exact at two places.
func Round2(rating float64) float64 {
	rounded, _ := decimal.NewFromFloat(rating).Round(2).Float64()

	return rounded
}
