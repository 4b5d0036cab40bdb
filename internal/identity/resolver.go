package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// Service implements player identity resolution and the identity write
// operations. Thread-safe: all state is immutable after construction.
type Service struct {
	store      Store
	comparator *names.Comparator
	logger     *slog.Logger

	autoMatchThreshold  float64
	suggestionThreshold float64
}

// Config carries the resolver thresholds. Values clamp to [0, 1].
type Config struct {
	// AutoMatchThreshold is the similarity at or above which a fuzzy hit
	// is accepted without review. Default 0.98.
	AutoMatchThreshold float64

	// SuggestionThreshold is the similarity at or above which a candidate
	// is attached to a review item. Default 0.85.
	SuggestionThreshold float64

	// AbbreviationBonus is added when last names match exactly and one
	// side abbreviates the other's first name. Default 0.15.
	AbbreviationBonus float64
}

// NewService creates the identity service.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:               store,
		comparator:          names.NewComparator(clamp01(cfg.AbbreviationBonus)),
		logger:              logger,
		autoMatchThreshold:  clamp01(cfg.AutoMatchThreshold),
		suggestionThreshold: clamp01(cfg.SuggestionThreshold),
	}
}

// FindOrQueuePlayer resolves a scraped name to a canonical player, trying
// each strategy in order and short-circuiting on the first hit:
//
//  1. Exact external ID on the source's ID column.
//  2. Exact alias match on the normalized name, any source.
//  3. Fuzzy similarity over candidate aliases; an uncontested score at or
//     above the auto-match threshold is accepted and also links the
//     external ID.
//  4. Abbreviated-name fallback: last-name equality plus first-initial
//     compatibility, accepted only when exactly one player qualifies.
//  5. Otherwise a review item is queued with up to three suggestions.
//
// Every successful match records the incoming name as an alias so the next
// lookup short-circuits at strategy 2.
func (s *Service) FindOrQueuePlayer(
	ctx context.Context,
	name string,
	source tennis.Source,
	externalID string,
	matchContext *MatchContext,
) (Resolution, error) {
	normalized := names.Normalize(name)
	if normalized == "" {
		return Resolution{}, fmt.Errorf("%w: empty name", ErrPlayerNotFound)
	}

	// Strategy 1: exact external ID.
	if externalID != "" {
		player, err := s.store.PlayerByExternalID(ctx, source, externalID)

		switch {
		case err == nil:
			if err := s.store.AddAlias(ctx, player.ID, normalized, source); err != nil {
				return Resolution{}, err
			}

			return Resolution{PlayerID: player.ID, Status: StatusMatched}, nil
		case !errors.Is(err, ErrPlayerNotFound):
			return Resolution{}, err
		}
	}

	// Strategy 2: exact alias match.
	player, err := s.store.PlayerByAlias(ctx, normalized)

	switch {
	case err == nil:
		if err := s.linkMatch(ctx, player.ID, normalized, source, externalID); err != nil {
			return Resolution{}, err
		}

		return Resolution{PlayerID: player.ID, Status: StatusMatched}, nil
	case !errors.Is(err, ErrPlayerNotFound):
		return Resolution{}, err
	}

	// Strategy 3: fuzzy similarity over candidate aliases.
	suggestions, err := s.fuzzyCandidates(ctx, name, normalized)
	if err != nil {
		return Resolution{}, err
	}

	// A contested top score is ambiguity, not a match: "K. Pliskova" scores
	// identically against both Pliskovas and must go to review.
	contested := len(suggestions) > 1 && suggestions[1].Confidence >= s.autoMatchThreshold

	if len(suggestions) > 0 && suggestions[0].Confidence >= s.autoMatchThreshold && !contested {
		playerID := suggestions[0].PlayerID

		if err := s.linkMatch(ctx, playerID, normalized, source, externalID); err != nil {
			return Resolution{}, err
		}

		s.logger.Info("fuzzy auto-match",
			slog.String("name", name),
			slog.Int64("player_id", playerID),
			slog.Float64("confidence", suggestions[0].Confidence),
		)

		return Resolution{PlayerID: playerID, Status: StatusMatched}, nil
	}

	// Strategy 4: abbreviated-name fallback, only when unique.
	if names.IsAbbreviated(normalized) {
		playerID, unique, err := s.abbreviatedFallback(ctx, normalized)
		if err != nil {
			return Resolution{}, err
		}

		if unique {
			if err := s.linkMatch(ctx, playerID, normalized, source, externalID); err != nil {
				return Resolution{}, err
			}

			return Resolution{PlayerID: playerID, Status: StatusMatched}, nil
		}
	}

	// Strategy 5: queue for human review.
	item := &ReviewItem{
		ScrapedName:  name,
		Source:       source,
		ExternalID:   externalID,
		MatchContext: matchContext,
		Suggestions:  suggestions,
		Status:       ReviewPending,
	}

	reviewID, err := s.store.InsertReviewItem(ctx, item)
	if err != nil {
		return Resolution{}, err
	}

	s.logger.Info("player queued for review",
		slog.String("name", name),
		slog.String("source", string(source)),
		slog.Int64("review_id", reviewID),
		slog.Int("suggestions", len(suggestions)),
	)

	return Resolution{Status: StatusQueued, ReviewID: reviewID}, nil
}

// fuzzyCandidates scores candidate aliases against the name, keeping the
// best score per player, and returns up to MaxSuggestions at or above the
// suggestion threshold, best first.
func (s *Service) fuzzyCandidates(ctx context.Context, raw, normalized string) ([]Suggestion, error) {
	candidates, err := s.store.CandidateAliases(ctx, normalized)
	if err != nil {
		return nil, err
	}

	best := make(map[int64]float64)

	for _, candidate := range candidates {
		score := s.comparator.Similarity(raw, candidate.Alias)
		if score < s.suggestionThreshold {
			continue
		}

		if score > best[candidate.PlayerID] {
			best[candidate.PlayerID] = score
		}
	}

	suggestions := make([]Suggestion, 0, len(best))
	for playerID, score := range best {
		suggestions = append(suggestions, Suggestion{PlayerID: playerID, Confidence: score})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}

		// Equal confidence ties break by player ID for determinism.
		return suggestions[i].PlayerID < suggestions[j].PlayerID
	})

	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}

	return suggestions, nil
}

// abbreviatedFallback finds players whose alias shares the abbreviated
// name's last name and whose first name is initial-compatible. The match is
// accepted only when exactly one player qualifies; two Pliskovas mean review.
func (s *Service) abbreviatedFallback(ctx context.Context, normalized string) (int64, bool, error) {
	lastName := names.LastName(normalized)
	if lastName == "" {
		return 0, false, nil
	}

	entries, err := s.store.AliasesByLastName(ctx, lastName)
	if err != nil {
		return 0, false, err
	}

	qualified := make(map[int64]struct{})
	var match int64

	for _, entry := range entries {
		if !s.comparator.AbbreviationMatch(normalized, entry.Alias) {
			continue
		}

		qualified[entry.PlayerID] = struct{}{}
		match = entry.PlayerID
	}

	if len(qualified) == 1 {
		return match, true, nil
	}

	return 0, false, nil
}

// linkMatch records the alias for a successful match and links the external
// ID when the player's column for this source is still empty.
func (s *Service) linkMatch(ctx context.Context, playerID int64, normalized string, source tennis.Source, externalID string) error {
	if err := s.store.AddAlias(ctx, playerID, normalized, source); err != nil {
		return err
	}

	if externalID == "" {
		return nil
	}

	return s.store.LinkExternalID(ctx, playerID, source, externalID)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
