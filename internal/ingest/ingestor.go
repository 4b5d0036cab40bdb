package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// Ingestor executes draw, schedule, and results ingestion against one store
// pair. Single-threaded per call; the worker pool gives each worker its own
// call scope.
type Ingestor struct {
	tournaments TournamentStore
	matches     MatchStore
	resolver    PlayerResolver
	logger      *slog.Logger
}

// NewIngestor wires an ingestor.
func NewIngestor(
	tournaments TournamentStore,
	matches MatchStore,
	resolver PlayerResolver,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		tournaments: tournaments,
		matches:     matches,
		resolver:    resolver,
		logger:      logger,
	}
}

// ApplyResult aggregates one full tournament scrape's ingestion.
type ApplyResult struct {
	Draw     *DrawResult     `json:"draw,omitempty"`
	Schedule *ScheduleResult `json:"schedule,omitempty"`
	Results  *ResultsResult  `json:"results,omitempty"`
}

// Apply ingests everything a tournament scrape produced: draw entries first
// (they create rows), then fixtures (they schedule rows), then results
// (they terminalize rows).
func (ing *Ingestor) Apply(ctx context.Context, result *scrape.Result) (*ApplyResult, error) {
	applied := &ApplyResult{}

	if len(result.DrawEntries) > 0 {
		draw, err := ing.IngestDraw(ctx, result.Tournament, result.DrawEntries)
		if err != nil {
			return applied, err
		}

		applied.Draw = draw
	}

	if len(result.Fixtures) > 0 {
		schedule, err := ing.IngestSchedule(ctx, result.Tournament, result.Fixtures)
		if err != nil {
			return applied, err
		}

		applied.Schedule = schedule
	}

	if len(result.Matches) > 0 {
		results, err := ing.IngestResults(ctx, result.Tournament, result.Matches)
		if err != nil {
			return applied, err
		}

		applied.Results = results
	}

	return applied, nil
}

// resolveEdition upserts the tournament identity and its edition for the
// scraped year, returning the edition with its row ID set.
func (ing *Ingestor) resolveEdition(
	ctx context.Context,
	scraped scrape.ScrapedTournament,
) (*tennis.Tournament, *tennis.TournamentEdition, error) {
	tournament := &tennis.Tournament{
		Code:    scraped.Code,
		Tour:    scraped.Tour,
		Gender:  scraped.Gender,
		Level:   scraped.Level,
		Surface: scraped.Surface,
		City:    scraped.City,
		Country: scraped.Country,
	}

	tournamentID, err := ing.tournaments.UpsertTournament(ctx, tournament)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert tournament %s: %w", scraped.Code, err)
	}

	tournament.ID = tournamentID

	edition := &tennis.TournamentEdition{
		TournamentID: tournamentID,
		Year:         scraped.Year,
		StartDate:    scraped.StartDate,
		EndDate:      scraped.EndDate,
		Surface:      scraped.Surface,
	}

	editionID, err := ing.tournaments.UpsertEdition(ctx, edition)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert edition %s %d: %w", scraped.Code, scraped.Year, err)
	}

	edition.ID = editionID

	return tournament, edition, nil
}

// resolvedPair is the outcome of resolving both sides of a scraped pairing.
type resolvedPair struct {
	aID, bID   int64
	refA, refB string // external-ID components (tour ID or name slug)
	queued     bool   // at least one side went to review
}

// resolvePair resolves both players of a pairing through the identity
// service. queued=true means at least one name went to the review queue and
// the caller should skip this entry.
func (ing *Ingestor) resolvePair(
	ctx context.Context,
	tournament scrape.ScrapedTournament,
	round tennis.Round,
	playerA, playerB scrape.ScrapedPlayer,
) (resolvedPair, error) {
	source := tournament.Tour.Source()

	pair := resolvedPair{
		refA: playerRef(playerA),
		refB: playerRef(playerB),
	}

	contextA := &identity.MatchContext{
		TournamentCode: tournament.Code,
		Year:           tournament.Year,
		Round:          round,
		Opponent:       playerB.Name,
	}

	resolutionA, err := ing.resolver.FindOrQueuePlayer(ctx, playerA.Name, source, playerA.ExternalID, contextA)
	if err != nil {
		return pair, err
	}

	contextB := &identity.MatchContext{
		TournamentCode: tournament.Code,
		Year:           tournament.Year,
		Round:          round,
		Opponent:       playerA.Name,
	}

	resolutionB, err := ing.resolver.FindOrQueuePlayer(ctx, playerB.Name, source, playerB.ExternalID, contextB)
	if err != nil {
		return pair, err
	}

	if resolutionA.Status == identity.StatusQueued || resolutionB.Status == identity.StatusQueued {
		pair.queued = true

		return pair, nil
	}

	pair.aID = resolutionA.PlayerID
	pair.bID = resolutionB.PlayerID

	return pair, nil
}

// playerRef is the external-ID component for one side: the tour-site player
// ID when present, else the hyphenated normalized name.
func playerRef(player scrape.ScrapedPlayer) string {
	if player.ExternalID != "" {
		return player.ExternalID
	}

	return names.Slug(player.Name)
}
