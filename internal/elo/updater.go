package elo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrBackfillInDryRun is returned when a dry run hits a backfill boundary:
// recovery rewrites history and cannot be simulated without mutating state.
var ErrBackfillInDryRun = errors.New("backfill detected during dry run")

// DefaultCheckpointKey is the cursor key for the incremental update stage.
const DefaultCheckpointKey = "elo:incremental"

const (
	defaultBatchSize = 500
	maxErrorExamples = 10
)

// Store is the persistence surface the updater runs against.
type Store interface {
	// ActiveParams loads the single active parameter set.
	// Returns ErrNoActiveParameterSet when none is active.
	ActiveParams(ctx context.Context) (*Params, error)

	// UnprocessedMatches returns terminal matches that still need rating
	// (never processed, or flagged for recompute), ordered by
	// (temporal_order, id) strictly after the cursor position. A non-empty
	// playerIDs filter restricts to matches touching those players.
	UnprocessedMatches(ctx context.Context, playerIDs []int64, afterOrder, afterID int64, limit int) ([]RatedMatch, error)

	// PlayerStates loads rating states for the given players. Players with
	// no state row are absent from the result.
	PlayerStates(ctx context.Context, playerIDs []int64) (map[int64]*PlayerState, error)

	// RecoverBackfill rewinds history from the backfill point in one
	// transaction: clears the Elo columns of every match at or after the
	// point and rebuilds each affected player's state from their most
	// recent processed match before it. Returns how many matches were
	// cleared.
	RecoverBackfill(ctx context.Context, backfillPoint int64) (int64, error)

	// ApplyUpdates persists one rated batch in one transaction: per-match
	// snapshot columns and the mutated player states.
	ApplyUpdates(ctx context.Context, paramsID int64, updates []MatchUpdate, states []*PlayerState) error

	// RefreshPendingSnapshots rewrites elo_pre_* on pending matches of the
	// given players so upcoming rows show current ratings.
	RefreshPendingSnapshots(ctx context.Context, playerIDs []int64) (int64, error)

	// ResetAllRatings wipes every player state and match Elo column.
	ResetAllRatings(ctx context.Context) error
}

// Checkpointer persists the resumable run cursor.
type Checkpointer interface {
	Get(ctx context.Context, key string, dst any) error
	Put(ctx context.Context, key string, cursor any) error
	Delete(ctx context.Context, key string) error
}

// Checkpoint is the updater's resume cursor. Matches sort by
// (temporal_order, id); the cursor is exclusive.
type Checkpoint struct {
	LastTemporalOrder int64 `json:"last_temporal_order"`
	LastMatchID       int64 `json:"last_match_id"`
	Processed         int   `json:"processed"`
}

// Options tunes one updater run.
type Options struct {
	BatchSize     int
	MaxMatches    int // 0 = no cap
	CheckpointKey string
	Resume        bool
	DryRun        bool
	PlayerIDs     []int64 // restrict to matches touching these players
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}

	if o.CheckpointKey == "" {
		o.CheckpointKey = DefaultCheckpointKey
	}

	return o
}

// RunMetrics summarizes one updater run for logs and the metrics JSON.
type RunMetrics struct {
	ParamsName         string   `json:"params_name"`
	Processed          int      `json:"processed"`
	Skipped            int      `json:"skipped"`
	Errors             int      `json:"errors"`
	ErrorExamples      []string `json:"error_examples,omitempty"`
	Batches            int      `json:"batches"`
	BackfillRecoveries int      `json:"backfill_recoveries"`
	BackfillCleared    int64    `json:"backfill_cleared"`
	SnapshotsRefreshed int64    `json:"snapshots_refreshed"`
	DryRun             bool     `json:"dry_run"`
}

// Updater drives the incremental rating computation: claim unprocessed
// terminal matches in temporal order, rate them in batches, recover from
// backfills, checkpoint after every batch.
type Updater struct {
	store       Store
	checkpoints Checkpointer
	logger      *slog.Logger
}

// NewUpdater wires an updater.
func NewUpdater(store Store, checkpoints Checkpointer, logger *slog.Logger) *Updater {
	return &Updater{store: store, checkpoints: checkpoints, logger: logger}
}

// Run performs one incremental update pass and returns its metrics.
func (u *Updater) Run(ctx context.Context, opts Options) (*RunMetrics, error) {
	opts = opts.withDefaults()

	params, err := u.store.ActiveParams(ctx)
	if err != nil {
		return nil, err
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	engine := NewEngine(params)
	metrics := &RunMetrics{ParamsName: params.Name, DryRun: opts.DryRun}

	cursor := Checkpoint{}
	if opts.Resume {
		if err := u.checkpoints.Get(ctx, opts.CheckpointKey, &cursor); err != nil {
			u.logger.Warn("no usable checkpoint, starting from the beginning",
				slog.String("key", opts.CheckpointKey),
				slog.String("error", err.Error()),
			)

			cursor = Checkpoint{}
		}

		if err := u.rewindPastStragglers(ctx, opts, &cursor); err != nil {
			return nil, err
		}
	}

	states := make(map[int64]*PlayerState)
	touched := make(map[int64]struct{})

	for {
		limit := opts.BatchSize
		if opts.MaxMatches > 0 {
			remaining := opts.MaxMatches - metrics.Processed - metrics.Skipped
			if remaining <= 0 {
				break
			}

			if remaining < limit {
				limit = remaining
			}
		}

		batch, err := u.store.UnprocessedMatches(ctx, opts.PlayerIDs,
			cursor.LastTemporalOrder, cursor.LastMatchID, limit)
		if err != nil {
			return metrics, fmt.Errorf("load unprocessed matches: %w", err)
		}

		if len(batch) == 0 {
			break
		}

		if err := u.loadMissingStates(ctx, batch, states); err != nil {
			return metrics, err
		}

		backfillPoint, detected := detectBackfill(batch, states)
		if detected {
			if opts.DryRun {
				return metrics, fmt.Errorf("%w: backfill point %d", ErrBackfillInDryRun, backfillPoint)
			}

			cleared, err := u.recoverBackfill(ctx, backfillPoint, states, &cursor, opts.CheckpointKey)
			if err != nil {
				return metrics, err
			}

			metrics.BackfillRecoveries++
			metrics.BackfillCleared += cleared

			continue
		}

		if err := u.processBatch(ctx, engine, batch, states, touched, &cursor, opts, metrics); err != nil {
			return metrics, err
		}

		metrics.Batches++
	}

	if !opts.DryRun && len(touched) > 0 {
		refreshed, err := u.store.RefreshPendingSnapshots(ctx, playerIDList(touched))
		if err != nil {
			return metrics, fmt.Errorf("refresh pending snapshots: %w", err)
		}

		metrics.SnapshotsRefreshed = refreshed
	}

	u.logger.Info("elo run finished",
		slog.String("params", metrics.ParamsName),
		slog.Int("processed", metrics.Processed),
		slog.Int("skipped", metrics.Skipped),
		slog.Int("errors", metrics.Errors),
		slog.Int("batches", metrics.Batches),
		slog.Int("backfill_recoveries", metrics.BackfillRecoveries),
		slog.Bool("dry_run", opts.DryRun),
	)

	return metrics, nil
}

// Rebuild wipes all rating state and replays every terminal match from
// scratch. Backfill-then-run and rebuild must land on identical ratings.
func (u *Updater) Rebuild(ctx context.Context, opts Options) (*RunMetrics, error) {
	opts = opts.withDefaults()
	opts.Resume = false

	if opts.DryRun {
		return nil, errors.New("rebuild cannot run dry")
	}

	if err := u.store.ResetAllRatings(ctx); err != nil {
		return nil, fmt.Errorf("reset ratings: %w", err)
	}

	if err := u.checkpoints.Delete(ctx, opts.CheckpointKey); err != nil {
		return nil, fmt.Errorf("clear checkpoint: %w", err)
	}

	u.logger.Info("elo state reset, replaying history")

	return u.Run(ctx, opts)
}

func (u *Updater) processBatch(
	ctx context.Context,
	engine *Engine,
	batch []RatedMatch,
	states map[int64]*PlayerState,
	touched map[int64]struct{},
	cursor *Checkpoint,
	opts Options,
	metrics *RunMetrics,
) error {
	updates := make([]MatchUpdate, 0, len(batch))
	dirty := make(map[int64]*PlayerState, len(batch)*2)

	for _, match := range batch {
		stateA := u.stateFor(engine, states, match.PlayerAID, match)
		stateB := u.stateFor(engine, states, match.PlayerBID, match)

		update, err := engine.RateMatch(match, stateA, stateB)
		if err != nil {
			metrics.Skipped++
			metrics.Errors++

			if len(metrics.ErrorExamples) < maxErrorExamples {
				metrics.ErrorExamples = append(metrics.ErrorExamples, err.Error())
			}

			cursor.LastTemporalOrder = match.TemporalOrder
			cursor.LastMatchID = match.MatchID

			continue
		}

		updates = append(updates, update)
		dirty[stateA.PlayerID] = stateA
		dirty[stateB.PlayerID] = stateB
		touched[stateA.PlayerID] = struct{}{}
		touched[stateB.PlayerID] = struct{}{}

		metrics.Processed++
		cursor.LastTemporalOrder = match.TemporalOrder
		cursor.LastMatchID = match.MatchID
		cursor.Processed = metrics.Processed
	}

	if opts.DryRun || len(updates) == 0 {
		return nil
	}

	dirtyStates := make([]*PlayerState, 0, len(dirty))
	for _, state := range dirty {
		dirtyStates = append(dirtyStates, state)
	}

	if err := u.store.ApplyUpdates(ctx, engine.Params().ID, updates, dirtyStates); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}

	if err := u.checkpoints.Put(ctx, opts.CheckpointKey, cursor); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	return nil
}

// stateFor returns the cached state for a player, seeding a fresh one at the
// baseline of the match's level when the player has never been rated.
func (u *Updater) stateFor(
	engine *Engine,
	states map[int64]*PlayerState,
	playerID int64,
	match RatedMatch,
) *PlayerState {
	if state, ok := states[playerID]; ok {
		return state
	}

	state := NewPlayerState(playerID, engine.Params().Baseline(match.LevelCode))
	states[playerID] = state

	return state
}

func (u *Updater) loadMissingStates(
	ctx context.Context,
	batch []RatedMatch,
	states map[int64]*PlayerState,
) error {
	missing := make([]int64, 0, len(batch)*2)
	queued := make(map[int64]struct{})

	for _, match := range batch {
		for _, playerID := range []int64{match.PlayerAID, match.PlayerBID} {
			if _, cached := states[playerID]; cached {
				continue
			}

			if _, dup := queued[playerID]; dup {
				continue
			}

			queued[playerID] = struct{}{}
			missing = append(missing, playerID)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	loaded, err := u.store.PlayerStates(ctx, missing)
	if err != nil {
		return fmt.Errorf("load player states: %w", err)
	}

	for playerID, state := range loaded {
		states[playerID] = state
	}

	return nil
}

// rewindPastStragglers guards a resumed cursor against rows that landed
// behind it: a backfilled historical match, or a match flagged for recompute
// after a merge. The cursor only exists to skip work already done; when the
// earliest unprocessed row sorts at or below it, the cursor moves back to
// just before that row so the run (and backfill detection) can see it.
func (u *Updater) rewindPastStragglers(ctx context.Context, opts Options, cursor *Checkpoint) error {
	if cursor.LastTemporalOrder == 0 && cursor.LastMatchID == 0 {
		return nil
	}

	earliest, err := u.store.UnprocessedMatches(ctx, opts.PlayerIDs, 0, 0, 1)
	if err != nil {
		return fmt.Errorf("find earliest unprocessed match: %w", err)
	}

	if len(earliest) == 0 {
		return nil
	}

	first := earliest[0]

	behindCursor := first.TemporalOrder < cursor.LastTemporalOrder ||
		(first.TemporalOrder == cursor.LastTemporalOrder && first.MatchID <= cursor.LastMatchID)
	if !behindCursor {
		return nil
	}

	u.logger.Warn("unprocessed match behind the resume cursor, rewinding",
		slog.Int64("match_id", first.MatchID),
		slog.Int64("temporal_order", first.TemporalOrder),
		slog.Int64("cursor_order", cursor.LastTemporalOrder),
	)

	cursor.LastTemporalOrder = first.TemporalOrder
	cursor.LastMatchID = first.MatchID - 1

	return nil
}

// recoverBackfill rewinds history from the backfill point and drops the
// whole in-memory cache (rewound states must reload from the store). The
// cursor stays put: nothing from the triggering batch was processed, and the
// cleared range sorts after the cursor, so the next query re-reads both.
func (u *Updater) recoverBackfill(
	ctx context.Context,
	backfillPoint int64,
	states map[int64]*PlayerState,
	cursor *Checkpoint,
	checkpointKey string,
) (int64, error) {
	u.logger.Warn("backfill detected, rewinding history",
		slog.Int64("backfill_point", backfillPoint),
	)

	cleared, err := u.store.RecoverBackfill(ctx, backfillPoint)
	if err != nil {
		return 0, fmt.Errorf("recover backfill at %d: %w", backfillPoint, err)
	}

	for playerID := range states {
		delete(states, playerID)
	}

	if err := u.checkpoints.Put(ctx, checkpointKey, cursor); err != nil {
		return cleared, fmt.Errorf("write checkpoint: %w", err)
	}

	u.logger.Info("backfill recovery complete",
		slog.Int64("backfill_point", backfillPoint),
		slog.Int64("matches_cleared", cleared),
	)

	return cleared, nil
}

// detectBackfill scans a batch for any match that predates a participant's
// last rated match. The backfill point is the smallest such temporal order:
// everything from there forward must be re-rated.
func detectBackfill(batch []RatedMatch, states map[int64]*PlayerState) (int64, bool) {
	var point int64

	detected := false

	for _, match := range batch {
		for _, playerID := range []int64{match.PlayerAID, match.PlayerBID} {
			state, ok := states[playerID]
			if !ok || state.LastTemporalOrder == 0 {
				continue
			}

			if match.TemporalOrder < state.LastTemporalOrder {
				if !detected || match.TemporalOrder < point {
					point = match.TemporalOrder
				}

				detected = true
			}
		}
	}

	return point, detected
}

func playerIDList(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	return ids
}
