package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// CreatePlayer inserts a new canonical player with its first alias and, when
// externalID is non-empty, the per-source ID column set. Used only by
// explicit create flows: review resolution and trusted backfills.
func (s *Service) CreatePlayer(
	ctx context.Context,
	name string,
	source tennis.Source,
	externalID string,
	nationality string,
) (int64, error) {
	normalized := names.Normalize(name)
	if normalized == "" {
		return 0, fmt.Errorf("%w: empty name", ErrPlayerNotFound)
	}

	player := &tennis.Player{
		CanonicalName: name,
		Nationality:   nationality,
	}
	player.SetExternalID(source, externalID)

	playerID, err := s.store.CreatePlayer(ctx, player, normalized, source)
	if err != nil {
		return 0, err
	}

	s.logger.Info("player created",
		slog.Int64("player_id", playerID),
		slog.String("name", name),
		slog.String("source", string(source)),
	)

	return playerID, nil
}

// MergePlayers migrates every reference from mergeID onto keepID and deletes
// the merged row. Both players' Elo state is cleared and every touched match
// is flagged for recompute, so the next Elo run rebuilds their history.
func (s *Service) MergePlayers(ctx context.Context, keepID, mergeID int64) (*MergeStats, error) {
	if keepID == mergeID {
		return nil, fmt.Errorf("%w: id %d", ErrSamePlayer, keepID)
	}

	// Verify both rows exist up front so the failure mode is a clean
	// not-found instead of a half-understood transaction error.
	if _, err := s.store.PlayerByID(ctx, keepID); err != nil {
		return nil, fmt.Errorf("keep side: %w", err)
	}

	if _, err := s.store.PlayerByID(ctx, mergeID); err != nil {
		return nil, fmt.Errorf("merge side: %w", err)
	}

	stats, err := s.store.MergePlayers(ctx, keepID, mergeID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("players merged",
		slog.Int64("keep_id", keepID),
		slog.Int64("merged_id", mergeID),
		slog.Int("aliases_moved", stats.AliasesMoved),
		slog.Int("matches_moved", stats.MatchesMoved),
	)

	return stats, nil
}

// SplitPlayer moves the given matches off playerID onto a freshly created
// player. The inverse of a bad merge, used by mixed-gender recovery. Returns
// the new player's ID.
func (s *Service) SplitPlayer(
	ctx context.Context,
	playerID int64,
	newName string,
	matchIDs []int64,
) (int64, error) {
	if _, err := s.store.PlayerByID(ctx, playerID); err != nil {
		return 0, err
	}

	newPlayer := &tennis.Player{CanonicalName: newName}

	newID, err := s.store.SplitPlayer(ctx, playerID, newPlayer, matchIDs)
	if err != nil {
		return 0, err
	}

	s.logger.Info("player split",
		slog.Int64("player_id", playerID),
		slog.Int64("new_player_id", newID),
		slog.Int("matches_moved", len(matchIDs)),
	)

	return newID, nil
}

// LinkExternalID exposes external-ID linking for administrative flows.
func (s *Service) LinkExternalID(ctx context.Context, playerID int64, source tennis.Source, externalID string) error {
	return s.store.LinkExternalID(ctx, playerID, source, externalID)
}

// Player fetches one player by ID.
func (s *Service) Player(ctx context.Context, id int64) (*tennis.Player, error) {
	return s.store.PlayerByID(ctx, id)
}

// PendingReviews lists unresolved review items, oldest first.
func (s *Service) PendingReviews(ctx context.Context, limit int) ([]*ReviewItem, error) {
	return s.store.PendingReviewItems(ctx, limit)
}

// ResolveReviewItem executes a human decision over a pending review item:
//
//   - match: attach the scraped name to playerID as an alias, link the
//     external ID when the item carried one.
//   - create: insert a new player from the scraped name.
//   - ignore: mark the item ignored, write nothing else.
func (s *Service) ResolveReviewItem(
	ctx context.Context,
	reviewID int64,
	action ReviewAction,
	playerID int64,
	resolvedBy string,
) error {
	item, err := s.store.ReviewItemByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if item.Status != ReviewPending {
		return fmt.Errorf("%w: id %d is %s", ErrReviewAlreadyResolved, reviewID, item.Status)
	}

	normalized := names.Normalize(item.ScrapedName)

	switch action {
	case ActionMatch:
		if _, err := s.store.PlayerByID(ctx, playerID); err != nil {
			return err
		}

		if err := s.linkMatch(ctx, playerID, normalized, item.Source, item.ExternalID); err != nil {
			return err
		}

		item.Status = ReviewMatched
		item.ResolvedPlayerID = &playerID

	case ActionCreate:
		newID, err := s.CreatePlayer(ctx, item.ScrapedName, item.Source, item.ExternalID, "")
		if err != nil {
			return err
		}

		item.Status = ReviewNewPlayer
		item.ResolvedPlayerID = &newID

	case ActionIgnore:
		item.Status = ReviewIgnored

	default:
		return fmt.Errorf("%w: %q", ErrInvalidReviewAction, action)
	}

	now := time.Now()
	item.ResolvedAt = &now
	item.ResolvedBy = resolvedBy

	if err := s.store.UpdateReviewItem(ctx, item); err != nil {
		return err
	}

	s.logger.Info("review item resolved",
		slog.Int64("review_id", reviewID),
		slog.String("action", string(action)),
		slog.String("name", item.ScrapedName),
	)

	return nil
}
