package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/elo"
	"github.com/matchpoint-io/matchpoint/internal/events"
	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/pipeline"
	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/storage"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
	"github.com/matchpoint-io/matchpoint/internal/worker"
)

// enrichmentBatchLimit caps how many players one enrichment stage run queues.
const enrichmentBatchLimit = 200

type stageDeps struct {
	workers int
	emitter events.Emitter
}

// stageRegistry builds the pipeline's stage set. Defaults are the nightly
// pair: scrape-and-ingest current events, then the incremental Elo pass.
// Player enrichment is opt-in via --stages.
func (a *app) stageRegistry(deps stageDeps) (*pipeline.Registry, error) {
	queueManager, err := a.queueManager()
	if err != nil {
		return nil, err
	}

	ingestor, err := a.ingestor()
	if err != nil {
		return nil, err
	}

	players, err := a.playerStore()
	if err != nil {
		return nil, err
	}

	updater, err := a.updater()
	if err != nil {
		return nil, err
	}

	factory := a.scraperFactory()

	registry := pipeline.NewRegistry()

	registry.Register(pipeline.Stage{
		Name:             "current_events_ingest",
		Description:      "discover current tournaments, scrape and ingest them",
		EnabledByDefault: true,
		Run: func(ctx context.Context, stage pipeline.StageContext) (*pipeline.StageResult, error) {
			return a.runIngestStage(ctx, stage, queueManager, ingestor, players, factory, deps)
		},
	})

	registry.Register(pipeline.Stage{
		Name:             "elo_incremental",
		Description:      "rate newly terminal matches in temporal order",
		EnabledByDefault: true,
		Run: func(ctx context.Context, stage pipeline.StageContext) (*pipeline.StageResult, error) {
			metrics, err := updater.Run(ctx, updaterOptions(stage))
			if err != nil {
				return nil, err
			}

			result := &pipeline.StageResult{Metrics: asMetrics(metrics)}
			if metrics.Errors > 0 {
				result.Status = pipeline.StatusPartial
			}

			return result, nil
		},
	})

	registry.Register(pipeline.Stage{
		Name:             "player_enrichment_incremental",
		Description:      "queue and scrape missing player demographics",
		EnabledByDefault: false,
		Run: func(ctx context.Context, stage pipeline.StageContext) (*pipeline.StageResult, error) {
			return a.runEnrichmentStage(ctx, stage, queueManager, ingestor, players, factory, deps)
		},
	})

	return registry, nil
}

// runIngestStage discovers the current year's tournaments on every tour with
// a registered scraper, queues them, and drains the queue with a worker pool.
func (a *app) runIngestStage(
	ctx context.Context,
	stage pipeline.StageContext,
	queueManager *queue.Manager,
	ingestor *ingest.Ingestor,
	players *storage.PersistentPlayerStore,
	factory scrape.Factory,
	deps stageDeps,
) (*pipeline.StageResult, error) {
	year := time.Now().UTC().Year()
	enqueued := 0

	for _, tour := range scrape.RegisteredTours() {
		scraper, err := factory(ctx, tour)
		if err != nil {
			return nil, fmt.Errorf("open %s session: %w", tour, err)
		}

		tournaments, err := scraper.DiscoverTournaments(ctx, year)
		closeErr := scraper.Close()

		if err != nil {
			return nil, fmt.Errorf("discover %s tournaments: %w", tour, err)
		}

		if closeErr != nil {
			a.logger.Warn("close discovery session", "tour", string(tour), "error", closeErr.Error())
		}

		batch := make([]scrape.TaskParams, 0, len(tournaments))
		for _, tournament := range tournaments {
			batch = append(batch, scrape.TaskParams{
				Tour:           tournament.Tour,
				TournamentCode: tournament.Code,
				Year:           tournament.Year,
			})
		}

		created, err := queueManager.EnqueueBatch(ctx, queue.TaskCurrentTournament, batch, queue.PriorityHigh)
		if err != nil {
			return nil, err
		}

		enqueued += created
	}

	if stage.DryRun {
		return &pipeline.StageResult{
			Metrics: map[string]any{"enqueued": enqueued, "drained": false},
		}, nil
	}

	metrics, err := a.drainQueue(ctx, stage, queueManager, ingestor, players, factory, deps)
	if err != nil {
		return nil, err
	}

	result := &pipeline.StageResult{
		Metrics: map[string]any{
			"enqueued":  enqueued,
			"completed": metrics.Completed,
			"failed":    metrics.Failed,
		},
	}
	if metrics.Failed > 0 {
		result.Status = pipeline.StatusPartial
	}

	return result, nil
}

// runEnrichmentStage queues enrichment tasks for players with demographic
// gaps and drains them.
func (a *app) runEnrichmentStage(
	ctx context.Context,
	stage pipeline.StageContext,
	queueManager *queue.Manager,
	ingestor *ingest.Ingestor,
	players *storage.PersistentPlayerStore,
	factory scrape.Factory,
	deps stageDeps,
) (*pipeline.StageResult, error) {
	limit := stage.MaxItems
	if limit <= 0 {
		limit = enrichmentBatchLimit
	}

	missing, err := players.PlayersNeedingEnrichment(ctx, limit)
	if err != nil {
		return nil, err
	}

	enqueued := 0

	for _, player := range missing {
		tour, ok := enrichmentTour(player)
		if !ok {
			continue
		}

		_, existing, err := queueManager.Enqueue(ctx, queue.TaskPlayerEnrichment, scrape.TaskParams{
			Tour:     tour,
			PlayerID: player.ID,
		}, queue.PriorityLow)
		if err != nil {
			return nil, err
		}

		if !existing {
			enqueued++
		}
	}

	if stage.DryRun {
		return &pipeline.StageResult{
			Metrics: map[string]any{"enqueued": enqueued, "drained": false},
		}, nil
	}

	metrics, err := a.drainQueue(ctx, stage, queueManager, ingestor, players, factory, deps)
	if err != nil {
		return nil, err
	}

	result := &pipeline.StageResult{
		Metrics: map[string]any{
			"enqueued":  enqueued,
			"completed": metrics.Completed,
			"failed":    metrics.Failed,
		},
	}
	if metrics.Failed > 0 {
		result.Status = pipeline.StatusPartial
	}

	return result, nil
}

func (a *app) drainQueue(
	ctx context.Context,
	stage pipeline.StageContext,
	queueManager *queue.Manager,
	ingestor *ingest.Ingestor,
	players *storage.PersistentPlayerStore,
	factory scrape.Factory,
	deps stageDeps,
) (*worker.Metrics, error) {
	pool := worker.NewPool(queueManager, ingestor, players, factory, deps.emitter, a.logger, worker.Options{
		Workers:  deps.workers,
		MaxTasks: stage.MaxItems,
		Drain:    true,
		DelayMin: a.settings.ScrapeDelayMin,
		DelayMax: a.settings.ScrapeDelayMax,
	})

	return pool.Run(ctx)
}

// enrichmentTour picks which tour site can enrich a player, preferring the
// site whose ID the player already carries.
func enrichmentTour(player *tennis.Player) (tennis.Tour, bool) {
	switch {
	case player.ATPID != nil && *player.ATPID != "":
		return tennis.TourATP, true
	case player.WTAID != nil && *player.WTAID != "":
		return tennis.TourWTA, true
	case player.ITFID != nil && *player.ITFID != "":
		return tennis.TourITF, true
	default:
		return "", false
	}
}

func updaterOptions(stage pipeline.StageContext) elo.Options {
	return elo.Options{
		BatchSize:  stage.BatchSize,
		MaxMatches: stage.MaxItems,
		Resume:     true,
		DryRun:     stage.DryRun,
	}
}
