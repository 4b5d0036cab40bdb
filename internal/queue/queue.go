// Package queue implements the durable scrape task queue: priority-ordered,
// retry-aware, with cooperative multi-worker leasing. The Store interface is
// implemented by storage.PersistentQueueStore (FOR UPDATE SKIP LOCKED) and
// storage.MemoryQueueStore (tests, dry runs).
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
)

var (
	// ErrQueueEmpty is returned by ClaimNext when no task is ready.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrTaskNotFound is returned when operating on an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskType identifies what kind of work a queue row represents.
type TaskType string

// Task types.
const (
	TaskHistoricalTournament TaskType = "historical_tournament"
	TaskCurrentTournament    TaskType = "current_tournament"
	TaskPlayerEnrichment     TaskType = "player_enrichment"
)

// IsValid returns true for the known task types.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskHistoricalTournament, TaskCurrentTournament, TaskPlayerEnrichment:
		return true
	default:
		return false
	}
}

// Priority orders tasks; lower numbers are claimed first.
type Priority int

// The fixed priority scale.
const (
	PriorityUrgent   Priority = 1 // today's matches
	PriorityHigh     Priority = 3 // current tournament
	PriorityNormal   Priority = 5
	PriorityLow      Priority = 7
	PriorityBackfill Priority = 9
)

// Status tracks a task through its lifecycle.
type Status string

// Task statuses. completed and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusRetry      Status = "retry"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsLive reports whether the status counts against enqueue idempotency:
// a live task with the same (type, params) blocks a new row.
func (s Status) IsLive() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusRetry:
		return true
	default:
		return false
	}
}

// Task is one durable queue row.
type Task struct {
	ID          int64             `json:"id"`
	Type        TaskType          `json:"type"`
	Params      scrape.TaskParams `json:"params"`
	ParamsHash  string            `json:"paramsHash"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	NextRetryAt *time.Time        `json:"nextRetryAt,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Stats is the queue health snapshot.
type Stats struct {
	ByStatus          map[Status]int `json:"byStatus"`
	Ready             int            `json:"ready"`
	AvgFailedAttempts float64        `json:"avgFailedAttempts"`
}

// Store is the persistence contract for the queue.
type Store interface {
	// Enqueue inserts a task unless a live task with the same
	// (type, params hash) already exists, in which case it returns the
	// existing row's ID with existing=true.
	Enqueue(ctx context.Context, task *Task) (id int64, existing bool, err error)

	// ClaimNext atomically leases the highest-priority ready task:
	// status pending or retry, next_retry_at absent or due, ordered by
	// priority then created_at. The claim marks the task in_progress,
	// stamps started_at, and increments attempts. Concurrent claimers
	// never receive the same task. Returns ErrQueueEmpty when nothing is
	// ready.
	ClaimNext(ctx context.Context) (*Task, error)

	// MarkCompleted transitions a leased task to completed.
	MarkCompleted(ctx context.Context, id int64) error

	// MarkRetry schedules a leased task for another attempt.
	MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error

	// MarkFailed transitions a leased task to permanent failure.
	MarkFailed(ctx context.Context, id int64, lastError string) error

	// ResetTask returns a task to pending with zeroed attempts.
	ResetTask(ctx context.Context, id int64) error

	// CancelTask marks a live task failed with a cancellation note.
	CancelTask(ctx context.Context, id int64) error

	// RequeueStale returns in_progress tasks older than age to retry.
	// Crash recovery: a worker that died mid-lease leaves its task
	// in_progress forever otherwise.
	RequeueStale(ctx context.Context, age time.Duration) (int64, error)

	// CleanupOldCompleted deletes completed tasks older than the given
	// number of days and returns how many rows went away.
	CleanupOldCompleted(ctx context.Context, days int) (int64, error)

	// Stats returns counts by status, the ready-to-process count, and the
	// average attempts of permanently failed tasks.
	Stats(ctx context.Context) (*Stats, error)
}
