package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// IngestDraw upserts one match row per non-bye draw entry, status upcoming.
// New rows get their elo_pre_* snapshot from current Elo state and a
// temporal order estimated from the edition window. Entries for rounds
// beyond the draw's first round count as propagations (partially played
// draws publish later rounds too).
func (ing *Ingestor) IngestDraw(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	entries []scrape.ScrapedDrawEntry,
) (*DrawResult, error) {
	result := &DrawResult{}
	if len(entries) == 0 {
		return result, nil
	}

	_, edition, err := ing.resolveEdition(ctx, tournament)
	if err != nil {
		return result, err
	}

	firstRound := firstRoundRank(entries)

	sampler := &errorSampler{}

	for _, entry := range entries {
		if entry.HasBye() {
			result.Byes++

			continue
		}

		created, propagated, err := ing.ingestDrawEntry(ctx, tournament, edition, entry, firstRound)

		switch {
		case errors.Is(err, errEntrySkipped):
			result.Skipped++
		case err != nil:
			sampler.record(err)
		case created:
			result.Created++

			if propagated {
				result.Propagations++
			}
		default:
			result.Updated++
		}
	}

	result.Errors = sampler.count
	result.ErrorExamples = sampler.examples

	ing.logger.Info("draw ingested",
		slog.String("tournament", tournament.Code),
		slog.Int("year", tournament.Year),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("byes", result.Byes),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)

	return result, nil
}

// errEntrySkipped marks entries skipped because a player is queued for review.
var errEntrySkipped = errors.New("entry skipped")

func (ing *Ingestor) ingestDrawEntry(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	edition *tennis.TournamentEdition,
	entry scrape.ScrapedDrawEntry,
	firstRound int,
) (created, propagated bool, err error) {
	pair, err := ing.resolvePair(ctx, tournament, entry.Round, entry.PlayerA, entry.PlayerB)
	if err != nil {
		return false, false, err
	}

	if pair.queued {
		return false, false, errEntrySkipped
	}

	externalID := tennis.MatchExternalID(tournament.Year, tournament.Code, entry.Round, pair.refA, pair.refB)

	existing, err := ing.matches.MatchByExternalID(ctx, externalID)

	switch {
	case err == nil:
		return false, false, ing.enrichDrawMatch(ctx, existing, entry)
	case !errors.Is(err, ErrMatchNotFound):
		return false, false, err
	}

	match := &tennis.Match{
		ExternalID:         externalID,
		Source:             tournament.Tour.Source(),
		EditionID:          edition.ID,
		Round:              entry.Round,
		MatchNum:           entry.Position,
		PlayerAID:          pair.aID,
		PlayerBID:          pair.bID,
		SeedA:              entry.PlayerA.Seed,
		SeedB:              entry.PlayerB.Seed,
		Status:             tennis.StatusUpcoming,
		MatchDateEstimated: true,
		TemporalOrder:      tennis.TemporalOrder(nil, edition.EndDate, edition.ID, entry.Round),
	}

	ratings, err := ing.matches.CurrentRatings(ctx, []int64{pair.aID, pair.bID})
	if err != nil {
		return false, false, err
	}

	if rating, ok := ratings[pair.aID]; ok {
		match.EloPreA = &rating
	}

	if rating, ok := ratings[pair.bID]; ok {
		match.EloPreB = &rating
	}

	if _, err := ing.matches.CreateMatch(ctx, match); err != nil {
		return false, false, err
	}

	return true, entry.Round.Rank() > firstRound, nil
}

// enrichDrawMatch applies monotonic enrichment to an existing row: seeds are
// filled when absent, never overwritten, and nothing else moves. Re-running
// a draw over an already-scheduled or played match must not regress it.
func (ing *Ingestor) enrichDrawMatch(ctx context.Context, match *tennis.Match, entry scrape.ScrapedDrawEntry) error {
	changed := false

	if match.SeedA == nil && entry.PlayerA.Seed != nil {
		match.SeedA = entry.PlayerA.Seed
		changed = true
	}

	if match.SeedB == nil && entry.PlayerB.Seed != nil {
		match.SeedB = entry.PlayerB.Seed
		changed = true
	}

	if match.MatchNum == 0 && entry.Position != 0 {
		match.MatchNum = entry.Position
		changed = true
	}

	if !changed {
		return nil
	}

	return ing.matches.UpdateMatch(ctx, match)
}

// firstRoundRank finds the earliest round present among non-bye entries.
func firstRoundRank(entries []scrape.ScrapedDrawEntry) int {
	first := 0
	found := false

	for _, entry := range entries {
		if entry.HasBye() {
			continue
		}

		rank := entry.Round.Rank()
		if !found || rank < first {
			first = rank
			found = true
		}
	}

	return first
}
