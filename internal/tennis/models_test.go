package tennis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   MatchStatus
		terminal bool
	}{
		{StatusUpcoming, false},
		{StatusScheduled, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusRetired, true},
		{StatusWalkover, true},
		{StatusDefault, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestMatchStatus_InvalidValue(t *testing.T) {
	assert.False(t, MatchStatus("cancelled").IsValid())
	assert.False(t, MatchStatus("").IsValid())
}

func TestMatchValidate_TerminalRequiresWinnerAndScore(t *testing.T) {
	winner := int64(1)

	match := Match{
		ExternalID: "2024_metz_F_a_b",
		PlayerAID:  1,
		PlayerBID:  2,
		Status:     StatusCompleted,
		Round:      RoundF,
	}

	err := match.Validate()
	require.ErrorIs(t, err, ErrMissingWinner)

	match.WinnerID = &winner
	err = match.Validate()
	require.ErrorIs(t, err, ErrMissingScore)

	match.Score = "6-3 6-4"
	require.NoError(t, match.Validate())
}

func TestMatchValidate_WinnerMustParticipate(t *testing.T) {
	outsider := int64(99)

	match := Match{
		ExternalID: "2024_metz_F_a_b",
		PlayerAID:  1,
		PlayerBID:  2,
		WinnerID:   &outsider,
		Score:      "6-3 6-4",
		Status:     StatusCompleted,
		Round:      RoundF,
	}

	assert.ErrorIs(t, match.Validate(), ErrWinnerNotParticipant)
}

func TestMatchValidate_WalkoverNeedsNoScore(t *testing.T) {
	winner := int64(2)

	match := Match{
		ExternalID: "2024_metz_SF_a_b",
		PlayerAID:  1,
		PlayerBID:  2,
		WinnerID:   &winner,
		Status:     StatusWalkover,
		Round:      RoundSF,
	}

	assert.NoError(t, match.Validate())
}

func TestMatchValidate_PendingMatchNeedsNothing(t *testing.T) {
	match := Match{
		ExternalID: "2024_metz_R32_a_b",
		PlayerAID:  1,
		PlayerBID:  2,
		Status:     StatusUpcoming,
		Round:      RoundR32,
	}

	require.NoError(t, match.Validate())
	assert.True(t, match.IsPending())
}

func TestPlayerExternalID(t *testing.T) {
	player := Player{ID: 1, CanonicalName: "Casper Ruud"}

	assert.Nil(t, player.ExternalID(SourceATP))
	assert.True(t, player.SetExternalID(SourceATP, "atp-rx01"))
	require.NotNil(t, player.ExternalID(SourceATP))
	assert.Equal(t, "atp-rx01", *player.ExternalID(SourceATP))

	// External IDs are never reassigned.
	assert.False(t, player.SetExternalID(SourceATP, "atp-other"))
	assert.Equal(t, "atp-rx01", *player.ExternalID(SourceATP))

	assert.True(t, player.SetExternalID(SourceITF, "itf-rx01"))
	assert.Equal(t, 2, player.ExternalIDCount())
}

func TestMatchInvolvesPlayer(t *testing.T) {
	match := Match{PlayerAID: 10, PlayerBID: 20}

	assert.True(t, match.InvolvesPlayer(10))
	assert.True(t, match.InvolvesPlayer(20))
	assert.False(t, match.InvolvesPlayer(30))
}

func TestRoundRanks_StrictlyOrdered(t *testing.T) {
	ordered := []Round{RoundQ1, RoundQ2, RoundQ3, RoundRR, RoundR128, RoundR64, RoundR32, RoundR16, RoundQF, RoundSF, RoundF}

	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank(),
			"%s must rank below %s", ordered[i-1], ordered[i])
	}
}

func TestRound_IsValid(t *testing.T) {
	assert.True(t, RoundQF.IsValid())
	assert.False(t, Round("R256").IsValid())
	assert.Zero(t, Round("R256").Rank())
}

func TestLevelCodeFor(t *testing.T) {
	tests := []struct {
		name     string
		level    Level
		gender   Gender
		expected LevelCode
	}{
		{"mens grand slam", LevelGrandSlam, GenderMen, CodeGrandSlam},
		{"womens grand slam", LevelGrandSlam, GenderWomen, CodeWomenGrandSlam},
		{"masters", LevelMasters1000, GenderMen, CodeMasters},
		{"atp 500", LevelTour500, GenderMen, CodeTour},
		{"wta 250", LevelTour250, GenderWomen, CodeWomenTour},
		{"challenger", LevelChallenger, GenderMen, CodeChallenger},
		{"wta 125 rates as challenger tier", LevelWTA125, GenderWomen, CodeWomenChallenger},
		{"itf mens band", Level("itf_25k"), GenderMen, CodeFutures},
		{"itf womens band", Level("itf_60k"), GenderWomen, CodeWomenFutures},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := LevelCodeFor(tt.level, tt.gender)
			assert.Equal(t, tt.expected, code)
			assert.True(t, code.IsValid())
			assert.Equal(t, tt.gender == GenderWomen, code.IsWomen())
		})
	}
}

func TestAllLevelCodes_CoversTenCodes(t *testing.T) {
	assert.Len(t, AllLevelCodes, 10)

	seen := make(map[LevelCode]struct{}, len(AllLevelCodes))
	for _, code := range AllLevelCodes {
		assert.True(t, code.IsValid())
		seen[code] = struct{}{}
	}

	assert.Len(t, seen, 10, "level codes must be distinct")
}
