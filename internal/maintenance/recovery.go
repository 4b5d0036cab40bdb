package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/names"
)

// RecoveryOptions tunes one merge-recovery pass.
type RecoveryOptions struct {
	// Apply writes the recovered aliases; otherwise the report only lists
	// what would be added.
	Apply bool

	// Limit bounds how many merge-log rows are scanned, newest first.
	Limit int
}

// RecoveredAlias is one alias the pass added (or would add).
type RecoveredAlias struct {
	PlayerID int64  `json:"playerId"`
	Alias    string `json:"alias"`
}

// RecoveryReport summarizes a merge-recovery pass.
type RecoveryReport struct {
	RecordsScanned  int              `json:"recordsScanned"`
	Recovered       []RecoveredAlias `json:"recovered,omitempty"`
	SkippedExisting int              `json:"skippedExisting"`
	SkippedUnsafe   int              `json:"skippedUnsafe"`
	SkippedMissing  int              `json:"skippedMissing"`
	Errors          []string         `json:"errors,omitempty"`
	Applied         bool             `json:"applied"`
}

// RecoverMerges replays the merge audit log: when a merged-away canonical
// name is not an alias of any player, it is restored onto the keep side as a
// merge_recovery alias, so the name resolves again instead of landing in the
// review queue.
//
// Restoration is gated: the merged name's last name must match the keeper's,
// and the first names must be the same or form an unambiguous abbreviation
// pair. A sibling who shares only the surname never becomes an alias.
func (s *Service) RecoverMerges(ctx context.Context, opts RecoveryOptions) (*RecoveryReport, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultMergeLogLimit
	}

	records, err := s.store.MergeLog(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load merge log: %w", err)
	}

	report := &RecoveryReport{
		RecordsScanned: len(records),
		Applied:        opts.Apply,
	}

	for _, record := range records {
		normalized := names.Normalize(record.MergedCanonicalName)
		if normalized == "" {
			continue
		}

		if _, err := s.store.PlayerByAlias(ctx, normalized); err == nil {
			report.SkippedExisting++

			continue
		} else if !errors.Is(err, identity.ErrPlayerNotFound) {
			return nil, fmt.Errorf("alias lookup %q: %w", normalized, err)
		}

		kept, err := s.identity.Player(ctx, record.KeptPlayerID)
		if errors.Is(err, identity.ErrPlayerNotFound) {
			// The keep side was itself merged away later; the chain's
			// final row already went through its own merge-log entry.
			report.SkippedMissing++

			continue
		} else if err != nil {
			return nil, err
		}

		if !s.safeToRestore(normalized, names.Normalize(kept.CanonicalName)) {
			report.SkippedUnsafe++

			continue
		}

		if opts.Apply {
			if err := s.store.AddAlias(ctx, kept.ID, normalized, SourceMergeRecovery); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("add alias %q to %d: %v", normalized, kept.ID, err))

				continue
			}

			s.logger.Info("merge alias recovered",
				slog.Int64("player_id", kept.ID),
				slog.String("alias", normalized),
			)
		}

		report.Recovered = append(report.Recovered, RecoveredAlias{
			PlayerID: kept.ID,
			Alias:    normalized,
		})
	}

	return report, nil
}

// safeToRestore decides whether a merged-away name may become an alias of
// the keeper. Both arguments are normalized.
func (s *Service) safeToRestore(merged, keeper string) bool {
	if merged == "" || keeper == "" {
		return false
	}

	if names.LastName(merged) != names.LastName(keeper) {
		return false
	}

	if names.FirstToken(merged) == names.FirstToken(keeper) {
		return true
	}

	return s.compare.AbbreviationMatch(merged, keeper)
}
