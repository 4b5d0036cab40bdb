// Package pipeline orchestrates the nightly stage sequence: a registry of
// named stages, an advisory-locked run loop, and durable run/stage records
// with per-stage metrics. One pipeline run executes at a time across all
// hosts; concurrent invocations fail cleanly instead of racing.
package pipeline

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownStage is returned when include/skip name a stage the
	// registry does not carry.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNoStages is returned when stage resolution leaves nothing to run.
	ErrNoStages = errors.New("no stages selected")

	// ErrStageFailed wraps the first stage failure when fail-fast aborts a run.
	ErrStageFailed = errors.New("stage failed")
)

// LockName is the advisory lock guarding pipeline execution.
const LockName = "matchpoint:pipeline"

// Status classifies a run or stage outcome.
type Status string

// Run and stage statuses.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
)

// StageContext is what a stage runner gets to work with.
type StageContext struct {
	// RunID identifies the enclosing pipeline run.
	RunID string

	// BatchSize, MaxItems, and DryRun forward the CLI stage flags.
	BatchSize int
	MaxItems  int
	DryRun    bool
}

// StageResult is a stage runner's report. Metrics lands in the stage-run row
// as JSON.
type StageResult struct {
	Status  Status
	Metrics map[string]any
}

// StageFunc executes one stage.
type StageFunc func(ctx context.Context, stage StageContext) (*StageResult, error)

// Stage is a registered pipeline stage.
type Stage struct {
	Name             string
	Description      string
	EnabledByDefault bool
	Run              StageFunc
}

// Run is one durable pipeline run record.
type Run struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	Stages     []*StageRun   `json:"stages,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// StageRun is one stage execution inside a run.
type StageRun struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"runId"`
	Stage      string         `json:"stage"`
	Status     Status         `json:"status"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Store persists run and stage records. Implemented by
// storage.PersistentPipelineStore and storage.MemoryPipelineStore.
type Store interface {
	// CreateRun inserts a running pipeline run row.
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun finalizes the run row with its aggregate outcome.
	FinishRun(ctx context.Context, run *Run) error

	// CreateStageRun inserts a running stage row and returns its ID.
	CreateStageRun(ctx context.Context, stageRun *StageRun) (int64, error)

	// FinishStageRun finalizes a stage row.
	FinishStageRun(ctx context.Context, stageRun *StageRun) error
}

// Locker serializes pipeline runs. Satisfied by storage.AdvisoryLocker.
type Locker interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (func() error, error)
}
