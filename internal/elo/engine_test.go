package elo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// flatParams returns a parameter set with every multiplier neutralized, so a
// single knob can be exercised per test.
func flatParams() *Params {
	params := DefaultParams()
	params.MarginBase = 1.0
	params.MarginScale = 0.0
	params.NewThreshold = 0
	params.DecayRate = 0
	params.ReturningDays = 100000

	return params
}

func date(value string) *time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}

	return &parsed
}

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, expectedScore(1500, 1500, 400), 1e-9)
	assert.InDelta(t, 0.909091, expectedScore(1900, 1500, 400), 1e-5)

	// The two perspectives always sum to one.
	sum := expectedScore(1800, 1600, 400) + expectedScore(1600, 1800, 400)
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestRateMatch_FavoriteWins(t *testing.T) {
	params := flatParams()
	params.K[tennis.CodeTour] = 108
	params.S[tennis.CodeTour] = 1670

	engine := NewEngine(params)

	stateA := NewPlayerState(1, 1500)
	stateA.Rating = 1800
	stateB := NewPlayerState(2, 1500)
	stateB.Rating = 1600

	update, err := engine.RateMatch(RatedMatch{
		MatchID:       10,
		ExternalID:    "2026_indian-wells_F_a_b",
		PlayerAID:     1,
		PlayerBID:     2,
		WinnerID:      1,
		Score:         "6-4 6-4",
		Status:        tennis.StatusCompleted,
		MatchDate:     date("2026-03-22"),
		TemporalOrder: 202603220000107,
		LevelCode:     tennis.CodeTour,
	}, stateA, stateB)
	require.NoError(t, err)

	// Every expectation below derives from the update formula at face value:
	// E = 1/(1+10^((1600-1800)/1670)) = 0.568506; delta = 108 * 0.431494.
	assert.InDelta(t, 0.568506, expectedScore(1800, 1600, 1670), 1e-5)
	assert.InDelta(t, 1846.60, update.PostA, 0.01)
	assert.InDelta(t, 1553.40, update.PostB, 0.01)
	assert.InDelta(t, 1800, update.PreA, 1e-9)
	assert.InDelta(t, 1600, update.PreB, 1e-9)

	// Equal boosts make the exchange zero-sum.
	assert.InDelta(t, 0.0, (update.PostA-update.PreA)+(update.PostB-update.PreB), 1e-9)

	assert.Equal(t, 1, stateA.MatchCount)
	assert.Equal(t, 1, stateB.MatchCount)
	assert.Equal(t, int64(202603220000107), stateA.LastTemporalOrder)
	assert.InDelta(t, 1846.60, stateA.PeakRating, 0.01)
	assert.InDelta(t, 1500, stateB.PeakRating, 1e-9) // losing never raises the peak
}

func TestRateMatch_UpsetMovesMoreThanExpectedWin(t *testing.T) {
	engine := NewEngine(flatParams())

	favorite := func() (*PlayerState, *PlayerState) {
		a := NewPlayerState(1, 1500)
		a.Rating = 1800
		b := NewPlayerState(2, 1500)
		b.Rating = 1600

		return a, b
	}

	match := RatedMatch{
		MatchID: 1, ExternalID: "m", PlayerAID: 1, PlayerBID: 2,
		Score: "6-4 6-4", Status: tennis.StatusCompleted,
		TemporalOrder: 1, LevelCode: tennis.CodeTour,
	}

	match.WinnerID = 1
	a1, b1 := favorite()
	expected, err := engine.RateMatch(match, a1, b1)
	require.NoError(t, err)

	match.WinnerID = 2
	a2, b2 := favorite()
	upset, err := engine.RateMatch(match, a2, b2)
	require.NoError(t, err)

	assert.Greater(t, upset.PostB-upset.PreB, expected.PostA-expected.PreA)
}

// Whatever the expected score comes out to, the favorite's reward for
// winning and the underdog's reward for the upset are two halves of one
// budget: together they account for exactly K.
func TestRateMatch_GainsAreComplementaryToK(t *testing.T) {
	params := flatParams()
	params.K[tennis.CodeTour] = 108
	params.S[tennis.CodeTour] = 1670

	engine := NewEngine(params)

	pairing := func() (*PlayerState, *PlayerState) {
		a := NewPlayerState(1, 1500)
		a.Rating = 1800
		b := NewPlayerState(2, 1500)
		b.Rating = 1600

		return a, b
	}

	match := RatedMatch{
		MatchID: 1, ExternalID: "m", PlayerAID: 1, PlayerBID: 2,
		Score: "6-4 6-4", Status: tennis.StatusCompleted,
		TemporalOrder: 1, LevelCode: tennis.CodeTour,
	}

	match.WinnerID = 1
	a1, b1 := pairing()
	favoriteWin, err := engine.RateMatch(match, a1, b1)
	require.NoError(t, err)

	match.WinnerID = 2
	a2, b2 := pairing()
	upset, err := engine.RateMatch(match, a2, b2)
	require.NoError(t, err)

	favoriteGain := favoriteWin.PostA - favoriteWin.PreA
	underdogGain := upset.PostB - upset.PreB

	assert.InDelta(t, 108.0, favoriteGain+underdogGain, 1e-9)

	// Both outcomes stay zero-sum.
	assert.InDelta(t, 0.0, favoriteGain+(favoriteWin.PostB-favoriteWin.PreB), 1e-9)
	assert.InDelta(t, 0.0, underdogGain+(upset.PostA-upset.PreA), 1e-9)
}

func TestRateMatch_RetirementRatesNormally(t *testing.T) {
	engine := NewEngine(flatParams())

	stateA := NewPlayerState(1, 1500)
	stateB := NewPlayerState(2, 1500)

	update, err := engine.RateMatch(RatedMatch{
		MatchID: 1, ExternalID: "m", PlayerAID: 1, PlayerBID: 2, WinnerID: 1,
		Score: "6-4 2-1 RET", Status: tennis.StatusRetired,
		TemporalOrder: 1, LevelCode: tennis.CodeTour,
	}, stateA, stateB)
	require.NoError(t, err)

	assert.Greater(t, update.PostA, update.PreA)
	assert.Less(t, update.PostB, update.PreB)
}

func TestRateMatch_RejectsNonTerminal(t *testing.T) {
	engine := NewEngine(flatParams())

	_, err := engine.RateMatch(RatedMatch{
		MatchID: 1, ExternalID: "m", PlayerAID: 1, PlayerBID: 2,
		Status: tennis.StatusScheduled, LevelCode: tennis.CodeTour,
	}, NewPlayerState(1, 1500), NewPlayerState(2, 1500))

	assert.ErrorIs(t, err, ErrNotTerminal)
}

func TestRateMatch_UnknownLevelCode(t *testing.T) {
	engine := NewEngine(flatParams())

	_, err := engine.RateMatch(RatedMatch{
		MatchID: 1, ExternalID: "m", PlayerAID: 1, PlayerBID: 2, WinnerID: 1,
		Score: "6-0 6-0", Status: tennis.StatusCompleted, LevelCode: "X",
	}, NewPlayerState(1, 1500), NewPlayerState(2, 1500))

	assert.ErrorIs(t, err, ErrInvalidLevelCode)
}

func TestMarginMultiplier(t *testing.T) {
	params := DefaultParams() // base 0.8, scale 0.7
	engine := NewEngine(params)

	tests := []struct {
		name   string
		score  string
		status tennis.MatchStatus
		want   float64
	}{
		{"double bagel maxes dominance", "6-0 6-0", tennis.StatusCompleted, 1.5},
		{"tight three setter stays near base", "7-6(5) 6-7(4) 7-6(10-8)", tennis.StatusCompleted, 0.8 + 0.7*(1.0/39.0)},
		{"walkover has no played games", "W/O", tennis.StatusWalkover, 0.8},
		{"default has no played games", "DEF", tennis.StatusDefault, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			margin, err := engine.marginMultiplier(RatedMatch{Score: tt.score, Status: tt.status})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, margin, 1e-9)
		})
	}
}

func TestMarginMultiplier_Clamped(t *testing.T) {
	params := DefaultParams()
	params.MarginBase = 3.0
	ceiling, err := NewEngine(params).marginMultiplier(RatedMatch{Score: "6-4 6-4", Status: tennis.StatusCompleted})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ceiling, 1e-9)

	params.MarginBase = 0.1
	params.MarginScale = 0.0
	floor, err := NewEngine(params).marginMultiplier(RatedMatch{Score: "6-4 6-4", Status: tennis.StatusCompleted})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, floor, 1e-9)
}

func TestDecayedRating(t *testing.T) {
	params := DefaultParams() // rate 0.4/year after 180 days
	engine := NewEngine(params)

	state := NewPlayerState(1, 1500)
	state.Rating = 1800
	state.LastMatchDate = date("2024-01-01")

	// Inside the grace window: untouched.
	assert.InDelta(t, 1800, engine.decayedRating(state, date("2024-06-01"), 1500), 1e-9)

	// 545 days since last match: 365 excess days, 40% of the way to baseline.
	assert.InDelta(t, 1680, engine.decayedRating(state, date("2025-06-29"), 1500), 0.5)

	// Decay never overshoots the baseline.
	assert.InDelta(t, 1500, engine.decayedRating(state, date("2099-01-01"), 1500), 1e-9)

	// No prior match date means no measurable inactivity.
	fresh := NewPlayerState(2, 1500)
	fresh.Rating = 1700
	assert.InDelta(t, 1700, engine.decayedRating(fresh, date("2025-06-29"), 1500), 1e-9)
}

func TestBoost(t *testing.T) {
	params := DefaultParams() // threshold 20, new 1.5, returning 365d 1.2
	engine := NewEngine(params)

	newcomer := NewPlayerState(1, 1500)
	assert.InDelta(t, 1.5, engine.boost(newcomer, date("2026-01-01")), 1e-9)

	veteran := NewPlayerState(2, 1500)
	veteran.MatchCount = 200
	veteran.LastMatchDate = date("2025-12-01")
	assert.InDelta(t, 1.0, engine.boost(veteran, date("2026-01-01")), 1e-9)

	returning := NewPlayerState(3, 1500)
	returning.MatchCount = 200
	returning.LastMatchDate = date("2024-06-01")
	assert.InDelta(t, 1.2, engine.boost(returning, date("2026-01-01")), 1e-9)

	// New and returning multiply.
	both := NewPlayerState(4, 1500)
	both.MatchCount = 5
	both.LastMatchDate = date("2024-06-01")
	assert.InDelta(t, 1.8, engine.boost(both, date("2026-01-01")), 1e-9)
}

func TestDetectBackfill(t *testing.T) {
	states := map[int64]*PlayerState{
		1: {PlayerID: 1, LastTemporalOrder: 202606010000507},
		2: {PlayerID: 2, LastTemporalOrder: 0}, // never rated
	}

	_, detected := detectBackfill([]RatedMatch{
		{MatchID: 1, PlayerAID: 1, PlayerBID: 2, TemporalOrder: 202607010000103},
	}, states)
	assert.False(t, detected)

	point, detected := detectBackfill([]RatedMatch{
		{MatchID: 2, PlayerAID: 1, PlayerBID: 2, TemporalOrder: 202501150000203},
		{MatchID: 3, PlayerAID: 1, PlayerBID: 2, TemporalOrder: 202401150000203},
	}, states)
	assert.True(t, detected)
	assert.Equal(t, int64(202401150000203), point)
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 1846.6, Round2(1846.6014), 1e-9)
	assert.InDelta(t, 1553.4, Round2(1553.3986), 1e-9)
	assert.InDelta(t, -0.13, Round2(-0.125), 1e-9)
}
