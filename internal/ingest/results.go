package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

var (
	// errUnknownWinner is a per-record condition: the scraped winner name
	// matches neither side of the pairing.
	errUnknownWinner = errors.New("winner name matches neither player")
)

// IngestResults applies finished (or abandoned) matches: parses the score,
// sets the winner and terminal status, and recomputes the temporal order
// from the real match date. Batch entries deduplicate by external ID; score
// parse failures are counted per record and never abort the run.
func (ing *Ingestor) IngestResults(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	matches []scrape.ScrapedMatch,
) (*ResultsResult, error) {
	result := &ResultsResult{}
	if len(matches) == 0 {
		return result, nil
	}

	_, edition, err := ing.resolveEdition(ctx, tournament)
	if err != nil {
		return result, err
	}

	sampler := &errorSampler{}
	seen := make(map[string]struct{}, len(matches))

	for _, scraped := range matches {
		created, err := ing.ingestResult(ctx, tournament, edition, scraped, seen)

		switch {
		case errors.Is(err, errEntrySkipped):
			result.Skipped++
		case errors.Is(err, errDuplicateInBatch):
			result.Duplicates++
		case err != nil:
			sampler.record(err)
		case created:
			result.Created++
		default:
			result.Updated++
		}
	}

	result.Errors = sampler.count
	result.ErrorExamples = sampler.examples

	ing.logger.Info("results ingested",
		slog.String("tournament", tournament.Code),
		slog.Int("year", tournament.Year),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)

	return result, nil
}

var errDuplicateInBatch = errors.New("duplicate result in batch")

func (ing *Ingestor) ingestResult(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	edition *tennis.TournamentEdition,
	scraped scrape.ScrapedMatch,
	seen map[string]struct{},
) (created bool, err error) {
	pair, err := ing.resolvePair(ctx, tournament, scraped.Round, scraped.PlayerA, scraped.PlayerB)
	if err != nil {
		return false, err
	}

	if pair.queued {
		return false, errEntrySkipped
	}

	externalID := tennis.MatchExternalID(tournament.Year, tournament.Code, scraped.Round, pair.refA, pair.refB)

	if _, dup := seen[externalID]; dup {
		return false, errDuplicateInBatch
	}

	seen[externalID] = struct{}{}

	score, err := tennis.ParseScore(scraped.Score)
	if err != nil {
		return false, fmt.Errorf("match %s: %w", externalID, err)
	}

	winnerID, err := winnerFor(scraped, pair)
	if err != nil {
		return false, fmt.Errorf("match %s: %w", externalID, err)
	}

	match, err := ing.matches.MatchByExternalID(ctx, externalID)

	switch {
	case errors.Is(err, ErrMatchNotFound):
		match, err = ing.matches.FindMatch(ctx, edition.ID, scraped.Round, pair.aID, pair.bID)
		if errors.Is(err, ErrMatchNotFound) {
			return true, ing.createResultMatch(ctx, tournament, edition, scraped, pair, externalID, score, winnerID)
		}

		if err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	}

	return false, ing.updateResultMatch(ctx, edition, match, scraped, score, winnerID)
}

func (ing *Ingestor) createResultMatch(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	edition *tennis.TournamentEdition,
	scraped scrape.ScrapedMatch,
	pair resolvedPair,
	externalID string,
	score tennis.Score,
	winnerID int64,
) error {
	match := &tennis.Match{
		ExternalID:         externalID,
		Source:             tournament.Tour.Source(),
		EditionID:          edition.ID,
		Round:              scraped.Round,
		MatchNum:           scraped.MatchNum,
		PlayerAID:          pair.aID,
		PlayerBID:          pair.bID,
		WinnerID:           &winnerID,
		Score:              scraped.Score,
		ScoreStructured:    score.Sets,
		Status:             score.Status,
		MatchDate:          scraped.MatchDate,
		MatchDateEstimated: scraped.MatchDate == nil,
		DurationMinutes:    scraped.DurationMinutes,
		TemporalOrder:      tennis.TemporalOrder(scraped.MatchDate, edition.EndDate, edition.ID, scraped.Round),
	}

	if score.RetirementSet > 0 {
		retirementSet := score.RetirementSet
		match.RetirementSet = &retirementSet
	}

	if err := match.Validate(); err != nil {
		return err
	}

	_, err := ing.matches.CreateMatch(ctx, match)

	return err
}

func (ing *Ingestor) updateResultMatch(
	ctx context.Context,
	edition *tennis.TournamentEdition,
	match *tennis.Match,
	scraped scrape.ScrapedMatch,
	score tennis.Score,
	winnerID int64,
) error {
	wasProcessed := match.EloProcessedAt != nil
	outcomeChanged := match.Score != scraped.Score ||
		match.WinnerID == nil || *match.WinnerID != winnerID ||
		match.Status != score.Status

	match.WinnerID = &winnerID
	match.Score = scraped.Score
	match.ScoreStructured = score.Sets
	match.Status = score.Status

	match.RetirementSet = nil
	if score.RetirementSet > 0 {
		retirementSet := score.RetirementSet
		match.RetirementSet = &retirementSet
	}

	// Real dates always override estimates, never vice versa.
	if scraped.MatchDate != nil {
		match.MatchDate = scraped.MatchDate
		match.MatchDateEstimated = false
	}

	if scraped.DurationMinutes != nil {
		match.DurationMinutes = scraped.DurationMinutes
	}

	match.TemporalOrder = tennis.TemporalOrder(match.MatchDate, edition.EndDate, edition.ID, match.Round)

	// An already-rated match whose outcome moved must be rated again.
	if wasProcessed && outcomeChanged {
		match.EloNeedsRecompute = true
	}

	if err := match.Validate(); err != nil {
		return err
	}

	return ing.matches.UpdateMatch(ctx, match)
}

// winnerFor maps the scraped winner name onto one of the resolved player
// IDs. Names compare in normalized form; a winner matching neither side is
// a per-record error.
func winnerFor(scraped scrape.ScrapedMatch, pair resolvedPair) (int64, error) {
	winner := names.Normalize(scraped.WinnerName)

	switch winner {
	case names.Normalize(scraped.PlayerA.Name):
		return pair.aID, nil
	case names.Normalize(scraped.PlayerB.Name):
		return pair.bID, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownWinner, scraped.WinnerName)
	}
}
