package tennis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore_StraightSets(t *testing.T) {
	score, err := ParseScore("6-3 6-4")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, score.Status)
	require.Len(t, score.Sets, 2)
	assert.Equal(t, SetScore{A: 6, B: 3}, score.Sets[0])
	assert.Equal(t, SetScore{A: 6, B: 4}, score.Sets[1])
	assert.Zero(t, score.RetirementSet)
}

func TestParseScore_TiebreakLoserPoints(t *testing.T) {
	score, err := ParseScore("7-6(5) 6-4")

	require.NoError(t, err)
	require.Len(t, score.Sets, 2)

	first := score.Sets[0]
	require.NotNil(t, first.TBA)
	require.NotNil(t, first.TBB)
	assert.Equal(t, 7, *first.TBA, "winner of the set takes the tiebreak")
	assert.Equal(t, 5, *first.TBB)
}

func TestParseScore_TiebreakLoserPointsOnBSide(t *testing.T) {
	score, err := ParseScore("6-7(3) 6-1 6-2")

	require.NoError(t, err)
	first := score.Sets[0]
	require.NotNil(t, first.TBA)
	require.NotNil(t, first.TBB)
	assert.Equal(t, 3, *first.TBA)
	assert.Equal(t, 7, *first.TBB)
}

func TestParseScore_ExtendedTiebreakInference(t *testing.T) {
	score, err := ParseScore("7-6(10)")

	require.NoError(t, err)
	first := score.Sets[0]
	assert.Equal(t, 12, *first.TBA, "winner needs two clear points beyond 10")
	assert.Equal(t, 10, *first.TBB)
}

func TestParseScore_ExplicitTwoSidedTiebreak(t *testing.T) {
	score, err := ParseScore("7-6(10-8) 3-6 10-7")

	require.NoError(t, err)
	require.Len(t, score.Sets, 3)
	assert.Equal(t, 10, *score.Sets[0].TBA)
	assert.Equal(t, 8, *score.Sets[0].TBB)
	assert.True(t, score.Sets[2].IsSuperTiebreak())
}

func TestParseScore_Retirement(t *testing.T) {
	score, err := ParseScore("6-4 2-1 RET")

	require.NoError(t, err)
	assert.Equal(t, StatusRetired, score.Status)
	assert.Equal(t, 2, score.RetirementSet)
	require.Len(t, score.Sets, 2)
	assert.Equal(t, SetScore{A: 6, B: 4}, score.Sets[0])
	assert.Equal(t, SetScore{A: 2, B: 1, Retired: true}, score.Sets[1])
}

func TestParseScore_LowercaseRet(t *testing.T) {
	score, err := ParseScore("6-0 ret")

	require.NoError(t, err)
	assert.Equal(t, StatusRetired, score.Status)
	assert.Equal(t, 1, score.RetirementSet)
}

func TestParseScore_Walkover(t *testing.T) {
	for _, raw := range []string{"W/O", "WO", "walkover", "Walkover"} {
		t.Run(raw, func(t *testing.T) {
			score, err := ParseScore(raw)

			require.NoError(t, err)
			assert.Equal(t, StatusWalkover, score.Status)
			assert.Empty(t, score.Sets)
		})
	}
}

func TestParseScore_Default(t *testing.T) {
	for _, raw := range []string{"DEF", "default"} {
		t.Run(raw, func(t *testing.T) {
			score, err := ParseScore(raw)

			require.NoError(t, err)
			assert.Equal(t, StatusDefault, score.Status)
		})
	}
}

func TestParseScore_RejectsInvalidInput(t *testing.T) {
	tests := []string{
		"",
		"6-3 banana",
		"8-6",       // 8 and 9 fit neither standard nor super-tiebreak form
		"9-7 6-4",
		"6--3",
		"101-3",
		"6-3 6-4 FIN",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseScore(raw)
			require.Error(t, err)
		})
	}
}

func TestParseScore_EmptyIsSentinel(t *testing.T) {
	_, err := ParseScore("   ")

	assert.ErrorIs(t, err, ErrEmptyScore)
}

func TestScoreString_RoundTrips(t *testing.T) {
	tests := []string{
		"6-3 6-4",
		"7-6(5) 6-4",
		"6-7(3) 6-1 6-2",
		"6-4 2-1 RET",
		"7-6(10-8) 3-6 10-7",
		"W/O",
		"DEF",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			parsed, err := ParseScore(raw)
			require.NoError(t, err)

			reparsed, err := ParseScore(parsed.String())
			require.NoError(t, err)

			assert.Equal(t, parsed.Status, reparsed.Status)
			assert.Equal(t, parsed.RetirementSet, reparsed.RetirementSet)
			assert.Equal(t, parsed.Sets, reparsed.Sets)
		})
	}
}

func TestSetsWon(t *testing.T) {
	score, err := ParseScore("6-3 4-6 7-5")
	require.NoError(t, err)

	a, b := score.SetsWon()

	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b)
}

func TestDominanceRatio(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected float64
	}{
		{
			name:     "double bagel is maximal",
			raw:      "6-0 6-0",
			expected: 1.0,
		},
		{
			name:     "tight three setter is low",
			raw:      "7-6(5) 6-7(4) 7-6(8-6)",
			expected: 1.0 / 39.0,
		},
		{
			name:     "retirement uses completed games",
			raw:      "6-4 2-1 RET",
			expected: 3.0 / 13.0,
		},
		{
			name:     "walkover has no dominance",
			raw:      "W/O",
			expected: 0,
		},
		{
			name:     "super tiebreak counts one game",
			raw:      "6-0 0-6 10-8",
			expected: 1.0 / 13.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := ParseScore(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, score.DominanceRatio(), 1e-9)
		})
	}
}

func TestDominanceRatio_NeverNegative(t *testing.T) {
	// Winner listed first but out-gamed overall (won two tight sets, lost a bagel).
	score, err := ParseScore("7-6(5) 0-6 7-6(5)")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.DominanceRatio(), 0.0)
}
