package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/pipeline"
	"github.com/matchpoint-io/matchpoint/internal/storage"
)

func succeedStage(metrics map[string]any) pipeline.StageFunc {
	return func(context.Context, pipeline.StageContext) (*pipeline.StageResult, error) {
		return &pipeline.StageResult{Status: pipeline.StatusSuccess, Metrics: metrics}, nil
	}
}

func failStage(err error) pipeline.StageFunc {
	return func(context.Context, pipeline.StageContext) (*pipeline.StageResult, error) {
		return nil, err
	}
}

func newOrchestrator(registry *pipeline.Registry) (*pipeline.Orchestrator, *storage.MemoryPipelineStore, *storage.MemoryLocker) {
	store := storage.NewMemoryPipelineStore()
	locker := storage.NewMemoryLocker()

	orchestrator := pipeline.NewOrchestrator(registry, store, locker, nil, slog.New(slog.DiscardHandler))

	return orchestrator, store, locker
}

func TestRegistry_Resolve(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register(pipeline.Stage{Name: "ingest", EnabledByDefault: true, Run: succeedStage(nil)})
	registry.Register(pipeline.Stage{Name: "elo", EnabledByDefault: true, Run: succeedStage(nil)})
	registry.Register(pipeline.Stage{Name: "enrichment", EnabledByDefault: false, Run: succeedStage(nil)})

	t.Run("defaults", func(t *testing.T) {
		stages, err := registry.Resolve(nil, nil)
		require.NoError(t, err)
		require.Len(t, stages, 2)
		assert.Equal(t, "ingest", stages[0].Name)
		assert.Equal(t, "elo", stages[1].Name)
	})

	t.Run("include optional stage", func(t *testing.T) {
		stages, err := registry.Resolve([]string{"enrichment"}, nil)
		require.NoError(t, err)
		require.Len(t, stages, 3)
		assert.Equal(t, "enrichment", stages[2].Name)
	})

	t.Run("skip default stage", func(t *testing.T) {
		stages, err := registry.Resolve(nil, []string{"ingest"})
		require.NoError(t, err)
		require.Len(t, stages, 1)
		assert.Equal(t, "elo", stages[0].Name)
	})

	t.Run("unknown stage name", func(t *testing.T) {
		_, err := registry.Resolve([]string{"nope"}, nil)
		assert.ErrorIs(t, err, pipeline.ErrUnknownStage)
	})

	t.Run("everything skipped", func(t *testing.T) {
		_, err := registry.Resolve(nil, []string{"ingest", "elo"})
		assert.ErrorIs(t, err, pipeline.ErrNoStages)
	})
}

func TestExecute_RunsStagesAndPersistsMetrics(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run:              succeedStage(map[string]any{"created": 12}),
	})
	registry.Register(pipeline.Stage{
		Name:             "elo",
		EnabledByDefault: true,
		Run:              succeedStage(map[string]any{"processed": 12}),
	})

	orchestrator, store, _ := newOrchestrator(registry)

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		FailFast:    true,
		LockTimeout: time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, pipeline.StatusSuccess, run.Status)
	assert.NotNil(t, run.FinishedAt)
	require.Len(t, run.Stages, 2)

	persisted := store.Run(run.ID)
	require.NotNil(t, persisted)
	assert.Equal(t, pipeline.StatusSuccess, persisted.Status)

	stageRuns := store.StageRuns(run.ID)
	require.Len(t, stageRuns, 2)
	assert.Equal(t, "ingest", stageRuns[0].Stage)
	assert.Equal(t, pipeline.StatusSuccess, stageRuns[0].Status)
	assert.Equal(t, 12, stageRuns[0].Metrics["created"])
	assert.Equal(t, "elo", stageRuns[1].Stage)
}

func TestExecute_FailFastStopsAtFirstFailure(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run:              failStage(errors.New("scrape source down")),
	})

	ranSecond := false
	registry.Register(pipeline.Stage{
		Name:             "elo",
		EnabledByDefault: true,
		Run: func(context.Context, pipeline.StageContext) (*pipeline.StageResult, error) {
			ranSecond = true

			return &pipeline.StageResult{Status: pipeline.StatusSuccess}, nil
		},
	})

	orchestrator, store, _ := newOrchestrator(registry)

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		FailFast:    true,
		LockTimeout: time.Second,
	})
	require.ErrorIs(t, err, pipeline.ErrStageFailed)
	require.NotNil(t, run)

	assert.False(t, ranSecond, "elo must not run after the ingest failure")
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "scrape source down")

	stageRuns := store.StageRuns(run.ID)
	require.Len(t, stageRuns, 1)
	assert.Equal(t, pipeline.StatusFailed, stageRuns[0].Status)
}

func TestExecute_WithoutFailFastContinues(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run:              failStage(errors.New("boom")),
	})
	registry.Register(pipeline.Stage{
		Name:             "elo",
		EnabledByDefault: true,
		Run:              succeedStage(nil),
	})

	orchestrator, store, _ := newOrchestrator(registry)

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		LockTimeout: time.Second,
	})
	require.ErrorIs(t, err, pipeline.ErrStageFailed)

	stageRuns := store.StageRuns(run.ID)
	require.Len(t, stageRuns, 2)
	assert.Equal(t, pipeline.StatusFailed, stageRuns[0].Status)
	assert.Equal(t, pipeline.StatusSuccess, stageRuns[1].Status)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
}

func TestExecute_PartialStageMakesRunPartial(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run: func(context.Context, pipeline.StageContext) (*pipeline.StageResult, error) {
			return &pipeline.StageResult{
				Status:  pipeline.StatusPartial,
				Metrics: map[string]any{"errors": 3},
			}, nil
		},
	})

	orchestrator, _, _ := newOrchestrator(registry)

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		LockTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPartial, run.Status)
}

func TestExecute_HeldLockFailsTheRun(t *testing.T) {
	registry := pipeline.NewRegistry()

	ran := false
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run: func(context.Context, pipeline.StageContext) (*pipeline.StageResult, error) {
			ran = true

			return nil, nil
		},
	})

	orchestrator, store, locker := newOrchestrator(registry)

	// Another run holds the pipeline.
	release, err := locker.Acquire(context.Background(), pipeline.LockName, time.Second)
	require.NoError(t, err)
	defer func() { _ = release() }()

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		LockTimeout: 10 * time.Millisecond,
	})
	require.ErrorIs(t, err, storage.ErrLockNotAcquired)
	require.NotNil(t, run)

	assert.False(t, ran, "no stage may run without the lock")
	assert.Equal(t, pipeline.StatusFailed, run.Status)

	persisted := store.Run(run.ID)
	require.NotNil(t, persisted)
	assert.Equal(t, pipeline.StatusFailed, persisted.Status)
}

func TestExecute_StageContextCarriesRunID(t *testing.T) {
	registry := pipeline.NewRegistry()

	var seenRunID string
	registry.Register(pipeline.Stage{
		Name:             "ingest",
		EnabledByDefault: true,
		Run: func(_ context.Context, stage pipeline.StageContext) (*pipeline.StageResult, error) {
			seenRunID = stage.RunID

			return nil, nil
		},
	})

	orchestrator, _, _ := newOrchestrator(registry)

	run, err := orchestrator.Execute(context.Background(), pipeline.Options{
		LockTimeout: time.Second,
		Stage:       pipeline.StageContext{BatchSize: 250, DryRun: true},
	})
	require.NoError(t, err)
	assert.Equal(t, run.ID, seenRunID)
}

func TestNewRunID_SortableAndUnique(t *testing.T) {
	now := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)

	first := pipeline.NewRunID(now)
	second := pipeline.NewRunID(now)

	assert.True(t, len(first) > len("20260825T030000Z-"))
	assert.Contains(t, first, "20260825T030000Z-")
	assert.NotEqual(t, first, second)
}
