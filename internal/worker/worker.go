// Package worker runs the scrape worker pool: N goroutines cooperatively
// draining the scrape queue, each holding lazily opened scraper sessions per
// tour. A worker claims a task, scrapes, ingests, and acknowledges; failures
// go back through the queue's retry policy. Cancellation (Ctrl-C) lets each
// worker finish its current task before exiting.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/matchpoint-io/matchpoint/internal/events"
	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/storage"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

const (
	defaultIdleWait   = 15 * time.Second
	defaultStaleLease = time.Hour

	claimRetryInitialInterval = 500 * time.Millisecond
	claimRetryMaxElapsed      = 30 * time.Second
)

var (
	// ErrUnknownTaskType is a per-task failure for queue rows whose type the
	// worker does not understand. Such tasks burn their attempts and fail.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrPlayerRefMissing is a per-task failure for enrichment tasks whose
	// player has no external ID on the task's tour.
	ErrPlayerRefMissing = errors.New("player has no external id for tour")
)

// PlayerEnricher is the slice of the player store enrichment tasks need.
type PlayerEnricher interface {
	PlayerByID(ctx context.Context, id int64) (*tennis.Player, error)
	EnrichPlayer(ctx context.Context, playerID int64, profile *scrape.PlayerProfile) error
}

// Options tunes a pool run.
type Options struct {
	// Workers is the goroutine count. Defaults to 1.
	Workers int

	// MaxTasks bounds how many tasks the whole pool processes. 0 is unbounded.
	MaxTasks int

	// Drain makes workers exit when the queue is empty instead of idling.
	Drain bool

	// IdleWait is the poll interval when not draining.
	IdleWait time.Duration

	// DelayMin and DelayMax bound the per-session scrape pacing window.
	DelayMin time.Duration
	DelayMax time.Duration

	// StaleLease is the claim age after which an in_progress task left by a
	// dead worker returns to the queue at pool startup. Defaults to an hour.
	StaleLease time.Duration
}

// Metrics aggregates what a pool run did.
type Metrics struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool is the worker pool.
type Pool struct {
	queue    *queue.Manager
	ingestor *ingest.Ingestor
	enricher PlayerEnricher
	factory  scrape.Factory
	emitter  events.Emitter
	logger   *slog.Logger
	opts     Options

	claimed   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool wires a pool. A nil emitter disables status events.
func NewPool(
	queueManager *queue.Manager,
	ingestor *ingest.Ingestor,
	enricher PlayerEnricher,
	factory scrape.Factory,
	emitter events.Emitter,
	logger *slog.Logger,
	opts Options,
) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if opts.IdleWait <= 0 {
		opts.IdleWait = defaultIdleWait
	}

	if opts.StaleLease <= 0 {
		opts.StaleLease = defaultStaleLease
	}

	if emitter == nil {
		emitter = events.Nop{}
	}

	return &Pool{
		queue:    queueManager,
		ingestor: ingestor,
		enricher: enricher,
		factory:  factory,
		emitter:  emitter,
		logger:   logger,
		opts:     opts,
	}
}

// Run starts the workers and blocks until they all exit: queue drained (in
// drain mode), task budget reached, context cancelled, or a worker hit an
// unrecoverable error.
func (p *Pool) Run(ctx context.Context) (*Metrics, error) {
	// A worker killed mid-lease leaves its task in_progress. Reclaim those
	// before starting so the pool processes them instead of waiting for an
	// operator to run requeue-stale.
	requeued, err := p.queue.RequeueStale(ctx, p.opts.StaleLease)
	if err != nil {
		return nil, fmt.Errorf("requeue stale leases: %w", err)
	}

	if requeued > 0 {
		p.logger.Info("requeued abandoned task leases", slog.Int64("requeued", requeued))
	}

	group, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.opts.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)

		group.Go(func() error {
			return p.runWorker(ctx, workerID)
		})
	}

	err = group.Wait()

	metrics := &Metrics{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}

	p.logger.Info("worker pool finished",
		slog.Int64("completed", metrics.Completed),
		slog.Int64("failed", metrics.Failed),
	)

	// Cancellation is the normal shutdown path, not a pool failure.
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	return metrics, err
}

func (p *Pool) runWorker(ctx context.Context, workerID string) error {
	sessions := newSessionSet(p.factory, p.opts.DelayMin, p.opts.DelayMax)
	defer sessions.Close(p.logger)

	defer p.emit(events.Event{Type: events.WorkerStopped, WorkerID: workerID})

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !p.reserveTaskBudget() {
			return nil
		}

		task, err := p.claim(ctx)

		switch {
		case errors.Is(err, queue.ErrQueueEmpty):
			p.releaseTaskBudget()
			p.emit(events.Event{Type: events.WorkerIdle, WorkerID: workerID})

			if p.opts.Drain {
				return nil
			}

			if err := sleepCtx(ctx, p.opts.IdleWait); err != nil {
				return nil
			}

			continue
		case errors.Is(err, context.Canceled):
			p.releaseTaskBudget()

			return nil
		case err != nil:
			p.releaseTaskBudget()

			return fmt.Errorf("%s: claim: %w", workerID, err)
		}

		p.emit(events.Event{
			Type:     events.TaskStarted,
			WorkerID: workerID,
			Tour:     string(task.Params.Tour),
			TaskID:   task.ID,
			TaskType: string(task.Type),
		})

		taskErr := p.process(ctx, sessions, task)
		if taskErr != nil {
			p.failed.Add(1)

			if err := p.queue.Fail(ctx, task, taskErr); err != nil {
				return fmt.Errorf("%s: acknowledge failure of task %d: %w", workerID, task.ID, err)
			}

			p.emit(events.Event{
				Type:     events.TaskFailed,
				WorkerID: workerID,
				Tour:     string(task.Params.Tour),
				TaskID:   task.ID,
				TaskType: string(task.Type),
				Detail:   taskErr.Error(),
			})

			continue
		}

		p.completed.Add(1)

		if err := p.queue.Complete(ctx, task); err != nil {
			return fmt.Errorf("%s: acknowledge task %d: %w", workerID, task.ID, err)
		}

		p.emit(events.Event{
			Type:     events.TaskCompleted,
			WorkerID: workerID,
			Tour:     string(task.Params.Tour),
			TaskID:   task.ID,
			TaskType: string(task.Type),
		})
	}
}

// claim leases the next task, retrying transient database unavailability so a
// flapping connection does not kill the pool mid-run.
func (p *Pool) claim(ctx context.Context) (*queue.Task, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = claimRetryInitialInterval
	policy.MaxElapsedTime = claimRetryMaxElapsed

	return backoff.RetryWithData(func() (*queue.Task, error) {
		task, err := p.queue.Next(ctx)

		switch {
		case err == nil:
			return task, nil
		case errors.Is(err, storage.ErrDatabaseUnavailable):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}, backoff.WithContext(policy, ctx))
}

func (p *Pool) process(ctx context.Context, sessions *sessionSet, task *queue.Task) error {
	scraper, err := sessions.get(ctx, task.Params.Tour)
	if err != nil {
		return fmt.Errorf("open %s session: %w", task.Params.Tour, err)
	}

	if err := sessions.pace(ctx, task.Params.Tour); err != nil {
		return err
	}

	switch task.Type {
	case queue.TaskHistoricalTournament, queue.TaskCurrentTournament:
		result, err := scraper.ScrapeTournament(ctx, task.Params)
		if err != nil {
			return fmt.Errorf("scrape %s %s %d: %w",
				task.Params.Tour, task.Params.TournamentCode, task.Params.Year, err)
		}

		if _, err := p.ingestor.Apply(ctx, result); err != nil {
			return fmt.Errorf("ingest %s %s %d: %w",
				task.Params.Tour, task.Params.TournamentCode, task.Params.Year, err)
		}

		return nil
	case queue.TaskPlayerEnrichment:
		return p.enrich(ctx, scraper, task.Params)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, task.Type)
	}
}

func (p *Pool) enrich(ctx context.Context, scraper scrape.Scraper, params scrape.TaskParams) error {
	player, err := p.enricher.PlayerByID(ctx, params.PlayerID)
	if err != nil {
		return fmt.Errorf("enrich player %d: %w", params.PlayerID, err)
	}

	ref := player.ExternalID(params.Tour.Source())
	if ref == nil {
		return fmt.Errorf("%w: player %d, tour %s", ErrPlayerRefMissing, params.PlayerID, params.Tour)
	}

	profile, err := scraper.EnrichPlayer(ctx, *ref)
	if err != nil {
		return fmt.Errorf("scrape profile of player %d: %w", params.PlayerID, err)
	}

	return p.enricher.EnrichPlayer(ctx, params.PlayerID, profile)
}

// reserveTaskBudget claims one slot of MaxTasks. Callers that end up not
// processing a task must release it.
func (p *Pool) reserveTaskBudget() bool {
	if p.opts.MaxTasks <= 0 {
		return true
	}

	return p.claimed.Add(1) <= int64(p.opts.MaxTasks)
}

func (p *Pool) releaseTaskBudget() {
	if p.opts.MaxTasks > 0 {
		p.claimed.Add(-1)
	}
}

func (p *Pool) emit(event events.Event) {
	p.emitter.Emit(events.Stamp(event))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
