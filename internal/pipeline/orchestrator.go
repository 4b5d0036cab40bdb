package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint-io/matchpoint/internal/events"
)

// Registry holds the known stages in registration order.
type Registry struct {
	stages []Stage
	byName map[string]int
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a stage. Re-registering a name replaces the earlier entry.
func (r *Registry) Register(stage Stage) {
	if index, ok := r.byName[stage.Name]; ok {
		r.stages[index] = stage

		return
	}

	r.byName[stage.Name] = len(r.stages)
	r.stages = append(r.stages, stage)
}

// Stages returns the registered stages in order.
func (r *Registry) Stages() []Stage {
	return r.stages
}

// Resolve computes the stage list for a run: the defaults, plus includes,
// minus skips, in registration order. Unknown names in either list are
// configuration errors.
func (r *Registry) Resolve(include, skip []string) ([]Stage, error) {
	for _, name := range append(append([]string{}, include...), skip...) {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStage, name, r.names())
		}
	}

	included := make(map[string]bool, len(include))
	for _, name := range include {
		included[name] = true
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	var resolved []Stage

	for _, stage := range r.stages {
		if skipped[stage.Name] {
			continue
		}

		if stage.EnabledByDefault || included[stage.Name] {
			resolved = append(resolved, stage)
		}
	}

	if len(resolved) == 0 {
		return nil, ErrNoStages
	}

	return resolved, nil
}

func (r *Registry) names() string {
	names := make([]string, 0, len(r.stages))
	for _, stage := range r.stages {
		names = append(names, stage.Name)
	}

	return strings.Join(names, ", ")
}

// Options tunes one pipeline run.
type Options struct {
	Include []string
	Skip    []string

	// FailFast aborts the run on the first stage failure. On by default.
	FailFast bool

	// LockTimeout bounds the advisory-lock wait.
	LockTimeout time.Duration

	// Stage forwards the per-stage knobs.
	Stage StageContext
}

// Orchestrator executes pipeline runs.
type Orchestrator struct {
	registry *Registry
	store    Store
	locker   Locker
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewOrchestrator wires an orchestrator. A nil emitter disables status events.
func NewOrchestrator(
	registry *Registry,
	store Store,
	locker Locker,
	emitter events.Emitter,
	logger *slog.Logger,
) *Orchestrator {
	if emitter == nil {
		emitter = events.Nop{}
	}

	return &Orchestrator{
		registry: registry,
		store:    store,
		locker:   locker,
		emitter:  emitter,
		logger:   logger,
	}
}

// NewRunID builds a pipeline run ID: UTC timestamp plus a short random
// suffix, sortable and unique enough for concurrent-attempt forensics.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Execute runs the resolved stages under the pipeline advisory lock and
// returns the finalized run record. The returned run is non-nil whenever a
// run row was persisted, including failed runs.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) (*Run, error) {
	stages, err := o.registry.Resolve(opts.Include, opts.Skip)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        NewRunID(time.Now()),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist pipeline run: %w", err)
	}

	o.logger.Info("pipeline run started",
		slog.String("run_id", run.ID),
		slog.Int("stages", len(stages)),
	)

	release, err := o.locker.Acquire(ctx, LockName, opts.LockTimeout)
	if err != nil {
		// Another run holds the pipeline. Record the attempt and fail clean.
		o.finalize(ctx, run, StatusFailed, err.Error())

		return run, err
	}

	defer func() {
		if err := release(); err != nil {
			o.logger.Warn("release pipeline lock", slog.String("error", err.Error()))
		}
	}()

	var firstFailure error

	for _, stage := range stages {
		stageRun, stageErr := o.executeStage(ctx, run, stage, opts.Stage)
		run.Stages = append(run.Stages, stageRun)

		if stageErr != nil && firstFailure == nil {
			firstFailure = fmt.Errorf("%w: %s: %w", ErrStageFailed, stage.Name, stageErr)
		}

		if stageErr != nil && opts.FailFast {
			break
		}
	}

	status, summary := aggregate(run.Stages)
	o.finalize(ctx, run, status, summary)

	return run, firstFailure
}

func (o *Orchestrator) executeStage(
	ctx context.Context,
	run *Run,
	stage Stage,
	stageOpts StageContext,
) (*StageRun, error) {
	stageOpts.RunID = run.ID

	stageRun := &StageRun{
		RunID:     run.ID,
		Stage:     stage.Name,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	id, err := o.store.CreateStageRun(ctx, stageRun)
	if err != nil {
		return stageRun, fmt.Errorf("persist stage run %s: %w", stage.Name, err)
	}

	stageRun.ID = id

	o.emit(events.Event{Type: events.StageStarted, RunID: run.ID, Stage: stage.Name})
	o.logger.Info("stage started", slog.String("run_id", run.ID), slog.String("stage", stage.Name))

	result, stageErr := stage.Run(ctx, stageOpts)

	finished := time.Now().UTC()
	stageRun.FinishedAt = &finished

	switch {
	case stageErr != nil:
		stageRun.Status = StatusFailed
		stageRun.Error = stageErr.Error()
	case result != nil && result.Status != "":
		stageRun.Status = result.Status
	default:
		stageRun.Status = StatusSuccess
	}

	if result != nil {
		stageRun.Metrics = result.Metrics
	}

	if err := o.store.FinishStageRun(ctx, stageRun); err != nil {
		o.logger.Error("persist stage outcome",
			slog.String("stage", stage.Name),
			slog.String("error", err.Error()),
		)
	}

	o.emit(events.Event{
		Type:   events.StageFinished,
		RunID:  run.ID,
		Stage:  stage.Name,
		Status: string(stageRun.Status),
		Detail: stageRun.Error,
	})

	o.logger.Info("stage finished",
		slog.String("run_id", run.ID),
		slog.String("stage", stage.Name),
		slog.String("status", string(stageRun.Status)),
		slog.Duration("duration", finished.Sub(stageRun.StartedAt)),
	)

	return stageRun, stageErr
}

func (o *Orchestrator) finalize(ctx context.Context, run *Run, status Status, summary string) {
	finished := time.Now().UTC()

	run.Status = status
	run.FinishedAt = &finished
	run.Duration = finished.Sub(run.StartedAt)
	run.Error = summary

	if status == StatusSuccess || status == StatusPartial {
		run.Error = ""
	}

	if err := o.store.FinishRun(ctx, run); err != nil {
		o.logger.Error("persist run outcome",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Info("pipeline run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(status)),
		slog.Duration("duration", run.Duration),
	)
}

func (o *Orchestrator) emit(event events.Event) {
	o.emitter.Emit(events.Stamp(event))
}

// aggregate folds stage outcomes into the run outcome: any failure fails the
// run, any partial makes it partial, otherwise success.
func aggregate(stages []*StageRun) (Status, string) {
	status := StatusSuccess

	var failures []string

	for _, stageRun := range stages {
		switch stageRun.Status {
		case StatusFailed:
			status = StatusFailed

			failures = append(failures, fmt.Sprintf("%s: %s", stageRun.Stage, stageRun.Error))
		case StatusPartial:
			if status != StatusFailed {
				status = StatusPartial
			}
		}
	}

	return status, strings.Join(failures, "; ")
}
