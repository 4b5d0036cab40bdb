package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// IngestSchedule applies order-of-play fixtures to existing matches: sets
// the scheduled date, datetime, and court, and transitions upcoming rows to
// scheduled. A fixture whose match cannot be found (by external ID, then by
// (edition, round, players)) counts as missing; schedules never create rows.
func (ing *Ingestor) IngestSchedule(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	fixtures []scrape.ScrapedFixture,
) (*ScheduleResult, error) {
	result := &ScheduleResult{}
	if len(fixtures) == 0 {
		return result, nil
	}

	_, edition, err := ing.resolveEdition(ctx, tournament)
	if err != nil {
		return result, err
	}

	sampler := &errorSampler{}

	for _, fixture := range fixtures {
		err := ing.ingestFixture(ctx, tournament, edition, fixture)

		switch {
		case errors.Is(err, errEntrySkipped):
			result.Skipped++
		case errors.Is(err, ErrMatchNotFound):
			result.Missing++
		case err != nil:
			sampler.record(err)
		default:
			result.Updated++
		}
	}

	result.Errors = sampler.count
	result.ErrorExamples = sampler.examples

	ing.logger.Info("schedule ingested",
		slog.String("tournament", tournament.Code),
		slog.Int("year", tournament.Year),
		slog.Int("updated", result.Updated),
		slog.Int("missing", result.Missing),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)

	return result, nil
}

func (ing *Ingestor) ingestFixture(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	edition *tennis.TournamentEdition,
	fixture scrape.ScrapedFixture,
) error {
	pair, err := ing.resolvePair(ctx, tournament, fixture.Round, fixture.PlayerA, fixture.PlayerB)
	if err != nil {
		return err
	}

	if pair.queued {
		return errEntrySkipped
	}

	externalID := tennis.MatchExternalID(tournament.Year, tournament.Code, fixture.Round, pair.refA, pair.refB)

	match, err := ing.matches.MatchByExternalID(ctx, externalID)
	if errors.Is(err, ErrMatchNotFound) {
		// Scrapers sometimes disagree on a player's external ID between
		// the draw and the order of play; the semantic identity still holds.
		match, err = ing.matches.FindMatch(ctx, edition.ID, fixture.Round, pair.aID, pair.bID)
	}

	if err != nil {
		return err
	}

	match.ScheduledDate = fixture.ScheduledDate
	match.ScheduledDatetime = fixture.ScheduledDatetime

	if fixture.Court != "" {
		match.Court = fixture.Court
	}

	if match.Status == tennis.StatusUpcoming {
		match.Status = tennis.StatusScheduled
	}

	// A scheduling date refines the estimated match date, which moves the
	// temporal order. Real dates from results always win over this.
	if fixture.ScheduledDate != nil && match.MatchDateEstimated {
		match.MatchDate = fixture.ScheduledDate
		match.TemporalOrder = tennis.TemporalOrder(fixture.ScheduledDate, edition.EndDate, edition.ID, match.Round)
	}

	return ing.matches.UpdateMatch(ctx, match)
}
