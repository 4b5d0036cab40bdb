package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// SplitOptions tunes one mixed-gender pass.
type SplitOptions struct {
	// Apply performs the splits; otherwise the report only lists them.
	Apply bool
}

// SplitResult is one executed (or planned) mixed-gender split.
type SplitResult struct {
	PlayerID     int64         `json:"playerId"`
	PlayerName   string        `json:"playerName"`
	NewPlayerID  int64         `json:"newPlayerId,omitempty"`
	MovedGender  tennis.Gender `json:"movedGender"`
	MatchesMoved int           `json:"matchesMoved"`
}

// SplitReport summarizes a mixed-gender pass.
type SplitReport struct {
	PlayersScanned int           `json:"playersScanned"`
	MixedPlayers   int           `json:"mixedPlayers"`
	Splits         []SplitResult `json:"splits,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Applied        bool          `json:"applied"`

	// RebuildRecommended is set whenever matches moved: split players'
	// rating histories are wrong until the next full rebuild.
	RebuildRecommended bool `json:"rebuildRecommended"`
}

// SplitMixedGender finds players whose matches span both tournament genders
// — always the residue of a bad merge, since rating pools never mix — and
// moves the minority-gender matches onto a freshly created player row. The
// underlying split flags every moved match for recompute.
func (s *Service) SplitMixedGender(ctx context.Context, opts SplitOptions) (*SplitReport, error) {
	snapshots, err := s.store.PlayerSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load player snapshots: %w", err)
	}

	report := &SplitReport{
		PlayersScanned: len(snapshots),
		Applied:        opts.Apply,
	}

	for _, snapshot := range snapshots {
		if snapshot.MenMatches == 0 || snapshot.WomenMatches == 0 {
			continue
		}

		report.MixedPlayers++

		minority := tennis.GenderWomen
		if snapshot.WomenMatches > snapshot.MenMatches {
			minority = tennis.GenderMen
		}

		matchIDs, err := s.store.PlayerMatchIDs(ctx, snapshot.ID, minority)
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("player %d: load %s matches: %v", snapshot.ID, minority, err))

			continue
		}

		result := SplitResult{
			PlayerID:     snapshot.ID,
			PlayerName:   snapshot.CanonicalName,
			MovedGender:  minority,
			MatchesMoved: len(matchIDs),
		}

		if opts.Apply {
			newID, err := s.identity.SplitPlayer(ctx, snapshot.ID, snapshot.CanonicalName, matchIDs)
			if err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("player %d: split: %v", snapshot.ID, err))

				continue
			}

			result.NewPlayerID = newID
			report.RebuildRecommended = true

			s.logger.Info("mixed-gender player split",
				slog.Int64("player_id", snapshot.ID),
				slog.Int64("new_player_id", newID),
				slog.String("moved_gender", string(minority)),
				slog.Int("matches_moved", len(matchIDs)),
			)
		}

		report.Splits = append(report.Splits, result)
	}

	return report, nil
}
