package elo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// fakeEloStore replays the Store contract in memory. It snapshots player
// states after every processed match so RecoverBackfill can rewind exactly.
type fakeEloStore struct {
	params    *Params
	matches   []RatedMatch
	processed map[int64]bool
	states    map[int64]*PlayerState
	history   []stateSnapshot

	applyCalls   int
	recoverCalls []int64
	refreshed    [][]int64
	resets       int
}

type stateSnapshot struct {
	order  int64
	states map[int64]PlayerState
}

func newFakeEloStore(params *Params) *fakeEloStore {
	return &fakeEloStore{
		params:    params,
		processed: make(map[int64]bool),
		states:    make(map[int64]*PlayerState),
	}
}

func (f *fakeEloStore) ActiveParams(context.Context) (*Params, error) {
	if f.params == nil {
		return nil, ErrNoActiveParameterSet
	}

	return f.params, nil
}

func (f *fakeEloStore) UnprocessedMatches(
	_ context.Context, _ []int64, afterOrder, afterID int64, limit int,
) ([]RatedMatch, error) {
	pending := make([]RatedMatch, 0, len(f.matches))

	for _, match := range f.matches {
		if f.processed[match.MatchID] {
			continue
		}

		if match.TemporalOrder < afterOrder ||
			(match.TemporalOrder == afterOrder && match.MatchID <= afterID) {
			continue
		}

		pending = append(pending, match)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].TemporalOrder != pending[j].TemporalOrder {
			return pending[i].TemporalOrder < pending[j].TemporalOrder
		}

		return pending[i].MatchID < pending[j].MatchID
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (f *fakeEloStore) PlayerStates(_ context.Context, playerIDs []int64) (map[int64]*PlayerState, error) {
	out := make(map[int64]*PlayerState)

	for _, id := range playerIDs {
		if state, ok := f.states[id]; ok {
			copied := *state
			out[id] = &copied
		}
	}

	return out, nil
}

func (f *fakeEloStore) RecoverBackfill(_ context.Context, backfillPoint int64) (int64, error) {
	f.recoverCalls = append(f.recoverCalls, backfillPoint)

	cleared := int64(0)

	for _, match := range f.matches {
		if match.TemporalOrder >= backfillPoint && f.processed[match.MatchID] {
			delete(f.processed, match.MatchID)
			cleared++
		}
	}

	kept := f.history[:0]

	for _, snapshot := range f.history {
		if snapshot.order < backfillPoint {
			kept = append(kept, snapshot)
		}
	}

	f.history = kept
	f.states = make(map[int64]*PlayerState)

	if len(kept) > 0 {
		for id, state := range kept[len(kept)-1].states {
			copied := state
			f.states[id] = &copied
		}
	}

	return cleared, nil
}

func (f *fakeEloStore) ApplyUpdates(_ context.Context, _ int64, updates []MatchUpdate, states []*PlayerState) error {
	f.applyCalls++

	for _, state := range states {
		copied := *state
		f.states[state.PlayerID] = &copied
	}

	for _, update := range updates {
		f.processed[update.MatchID] = true

		order := int64(0)

		for _, match := range f.matches {
			if match.MatchID == update.MatchID {
				order = match.TemporalOrder

				break
			}
		}

		frozen := make(map[int64]PlayerState, len(f.states))
		for id, state := range f.states {
			frozen[id] = *state
		}

		f.history = append(f.history, stateSnapshot{order: order, states: frozen})
	}

	return nil
}

func (f *fakeEloStore) RefreshPendingSnapshots(_ context.Context, playerIDs []int64) (int64, error) {
	f.refreshed = append(f.refreshed, playerIDs)

	return int64(len(playerIDs)), nil
}

func (f *fakeEloStore) ResetAllRatings(context.Context) error {
	f.resets++
	f.processed = make(map[int64]bool)
	f.states = make(map[int64]*PlayerState)
	f.history = nil

	return nil
}

var _ Store = (*fakeEloStore)(nil)

type fakeCheckpoints struct {
	cursors map[string][]byte
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{cursors: make(map[string][]byte)}
}

func (f *fakeCheckpoints) Get(_ context.Context, key string, dst any) error {
	payload, ok := f.cursors[key]
	if !ok {
		return fmt.Errorf("no checkpoint %q", key)
	}

	return json.Unmarshal(payload, dst)
}

func (f *fakeCheckpoints) Put(_ context.Context, key string, cursor any) error {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return err
	}

	f.cursors[key] = payload

	return nil
}

func (f *fakeCheckpoints) Delete(_ context.Context, key string) error {
	delete(f.cursors, key)

	return nil
}

func testMatch(id int64, order int64, playerA, playerB, winner int64) RatedMatch {
	return RatedMatch{
		MatchID:       id,
		ExternalID:    fmt.Sprintf("match-%d", id),
		PlayerAID:     playerA,
		PlayerBID:     playerB,
		WinnerID:      winner,
		Score:         "6-4 6-4",
		Status:        tennis.StatusCompleted,
		TemporalOrder: order,
		LevelCode:     tennis.CodeTour,
	}
}

func newTestUpdater(store Store) (*Updater, *fakeCheckpoints) {
	checkpoints := newFakeCheckpoints()

	return NewUpdater(store, checkpoints, slog.New(slog.DiscardHandler)), checkpoints
}

func TestUpdaterRun_ProcessesInTemporalOrder(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{
		testMatch(3, 300, 1, 3, 1),
		testMatch(1, 100, 1, 2, 1),
		testMatch(2, 200, 2, 3, 2),
	}

	updater, checkpoints := newTestUpdater(store)

	metrics, err := updater.Run(context.Background(), Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, metrics.Processed)
	assert.Equal(t, 0, metrics.Errors)
	assert.Equal(t, 2, metrics.Batches)

	// Player 1 won twice and must sit above the baseline.
	assert.Greater(t, store.states[1].Rating, 1500.0)
	assert.Equal(t, 2, store.states[1].MatchCount)
	assert.Equal(t, int64(300), store.states[1].LastTemporalOrder)

	// Checkpoint landed on the last processed match.
	var cursor Checkpoint
	require.NoError(t, checkpoints.Get(context.Background(), DefaultCheckpointKey, &cursor))
	assert.Equal(t, int64(300), cursor.LastTemporalOrder)
	assert.Equal(t, int64(3), cursor.LastMatchID)

	// Pending snapshots refreshed for everyone touched.
	require.Len(t, store.refreshed, 1)
	assert.Len(t, store.refreshed[0], 3)
}

func TestUpdaterRun_SkipsUnparsableScore(t *testing.T) {
	store := newFakeEloStore(flatParams())

	bad := testMatch(2, 200, 1, 2, 1)
	bad.Score = "6-4 9-1"

	store.matches = []RatedMatch{testMatch(1, 100, 1, 2, 1), bad, testMatch(3, 300, 1, 2, 1)}

	updater, _ := newTestUpdater(store)

	metrics, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Processed)
	assert.Equal(t, 1, metrics.Skipped)
	assert.Equal(t, 1, metrics.Errors)
	require.Len(t, metrics.ErrorExamples, 1)
	assert.Contains(t, metrics.ErrorExamples[0], "match-2")

	// The bad match stays unprocessed but never blocks the ones behind it.
	assert.False(t, store.processed[2])
	assert.True(t, store.processed[3])
}

func TestUpdaterRun_MaxMatches(t *testing.T) {
	store := newFakeEloStore(flatParams())
	for i := int64(1); i <= 5; i++ {
		store.matches = append(store.matches, testMatch(i, i*100, 1, 2, 1))
	}

	updater, _ := newTestUpdater(store)

	metrics, err := updater.Run(context.Background(), Options{MaxMatches: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.Processed)

	// The rest remains claimable for the next run.
	assert.False(t, store.processed[4])
	assert.False(t, store.processed[5])
}

func TestUpdaterRun_DryRunWritesNothing(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{testMatch(1, 100, 1, 2, 1)}

	updater, checkpoints := newTestUpdater(store)

	metrics, err := updater.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.Processed)
	assert.Zero(t, store.applyCalls)
	assert.Empty(t, store.states)
	assert.Empty(t, checkpoints.cursors)
	assert.Empty(t, store.refreshed)
}

func TestUpdaterRun_NoActiveParams(t *testing.T) {
	updater, _ := newTestUpdater(newFakeEloStore(nil))

	_, err := updater.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoActiveParameterSet)
}

func TestUpdaterRun_Resume(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{testMatch(1, 100, 1, 2, 1), testMatch(2, 200, 1, 2, 1)}

	updater, checkpoints := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	// A resumed run starts past the checkpoint and finds nothing new.
	metrics, err := updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)
	assert.Zero(t, metrics.Processed)

	// Corrupt checkpoint degrades to a full scan, not a failure.
	checkpoints.cursors[DefaultCheckpointKey] = []byte("{")
	metrics, err = updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)
	assert.Zero(t, metrics.Processed) // everything already processed
}

func TestUpdaterRun_BackfillEqualsRebuild(t *testing.T) {
	early := testMatch(1, 100, 1, 2, 1)
	late := testMatch(3, 300, 1, 3, 3)
	middle := testMatch(2, 200, 2, 1, 2) // arrives after late was rated

	// Incremental path: rate {early, late}, then the middle match lands.
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{early, late}

	updater, _ := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	store.matches = append(store.matches, middle)

	metrics, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.BackfillRecoveries)
	require.Len(t, store.recoverCalls, 1)
	assert.Equal(t, int64(200), store.recoverCalls[0])
	assert.Equal(t, int64(1), metrics.BackfillCleared) // only the late match rewound
	assert.Equal(t, 2, metrics.Processed)              // middle and late replayed

	// Rebuild path: all three matches from scratch.
	reference := newFakeEloStore(flatParams())
	reference.matches = []RatedMatch{early, middle, late}

	referenceUpdater, _ := newTestUpdater(reference)

	_, err = referenceUpdater.Run(context.Background(), Options{})
	require.NoError(t, err)

	for _, playerID := range []int64{1, 2, 3} {
		require.Contains(t, store.states, playerID)
		require.Contains(t, reference.states, playerID)
		assert.InDelta(t, reference.states[playerID].Rating, store.states[playerID].Rating, 1e-9,
			"player %d diverged from rebuild", playerID)
		assert.Equal(t, reference.states[playerID].MatchCount, store.states[playerID].MatchCount)
	}
}

func TestUpdaterRun_ResumedRunDetectsBackfill(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{
		testMatch(1, 100, 1, 2, 1),
		testMatch(3, 300, 1, 3, 3),
	}

	updater, _ := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	// A historical match lands behind the checkpoint cursor.
	store.matches = append(store.matches, testMatch(2, 200, 2, 1, 2))

	metrics, err := updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.BackfillRecoveries)
	assert.True(t, store.processed[2], "historical match never rated")
	assert.True(t, store.processed[3], "rewound match never re-rated")

	// Ratings equal a from-scratch replay of all three matches.
	reference := newFakeEloStore(flatParams())
	reference.matches = []RatedMatch{
		testMatch(1, 100, 1, 2, 1),
		testMatch(2, 200, 2, 1, 2),
		testMatch(3, 300, 1, 3, 3),
	}

	referenceUpdater, _ := newTestUpdater(reference)

	_, err = referenceUpdater.Run(context.Background(), Options{})
	require.NoError(t, err)

	for _, playerID := range []int64{1, 2, 3} {
		require.Contains(t, store.states, playerID)
		assert.InDelta(t, reference.states[playerID].Rating, store.states[playerID].Rating, 1e-9,
			"player %d diverged from rebuild", playerID)
	}
}

func TestUpdaterRun_ResumedRunSeesRecomputeFlag(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{
		testMatch(1, 100, 1, 2, 1),
		testMatch(2, 200, 1, 3, 3),
	}

	updater, _ := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	// A merge flags an already-rated match for recompute; it now sorts
	// behind the cursor.
	delete(store.processed, 1)

	metrics, err := updater.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.BackfillRecoveries)
	assert.True(t, store.processed[1], "flagged match never re-rated")
	assert.True(t, store.processed[2])
}

func TestUpdaterRun_BackfillDuringDryRun(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{testMatch(1, 300, 1, 2, 1)}

	updater, _ := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	store.matches = append(store.matches, testMatch(2, 100, 1, 2, 1))

	_, err = updater.Run(context.Background(), Options{DryRun: true})
	assert.ErrorIs(t, err, ErrBackfillInDryRun)
	assert.Empty(t, store.recoverCalls)
}

func TestUpdaterRebuild(t *testing.T) {
	store := newFakeEloStore(flatParams())
	store.matches = []RatedMatch{testMatch(1, 100, 1, 2, 1), testMatch(2, 200, 1, 2, 1)}

	updater, checkpoints := newTestUpdater(store)

	_, err := updater.Run(context.Background(), Options{})
	require.NoError(t, err)

	metrics, err := updater.Rebuild(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.resets)
	assert.Equal(t, 2, metrics.Processed)

	var cursor Checkpoint
	require.NoError(t, checkpoints.Get(context.Background(), DefaultCheckpointKey, &cursor))
	assert.Equal(t, int64(2), cursor.LastMatchID)
}
