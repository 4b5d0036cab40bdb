package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
)

const (
	defaultMaxAttempts = 3

	retryBaseDelay = 5 * time.Minute
	retryMaxJitter = 60 * time.Second
)

// Manager wraps a Store with the lifecycle policy: idempotent enqueue with
// canonical params hashing, and the retry-vs-permanent-failure decision with
// exponential backoff.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a queue manager over the given store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enqueue inserts one task, hashing its params for the idempotency key.
// Returns the row ID and whether a live task already covered the work.
func (m *Manager) Enqueue(
	ctx context.Context,
	taskType TaskType,
	params scrape.TaskParams,
	priority Priority,
) (int64, bool, error) {
	if !taskType.IsValid() {
		return 0, false, fmt.Errorf("%w: unknown task type %q", ErrTaskNotFound, taskType)
	}

	hash, err := params.Hash()
	if err != nil {
		return 0, false, err
	}

	task := &Task{
		Type:        taskType,
		Params:      params,
		ParamsHash:  hash,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: defaultMaxAttempts,
	}

	id, existing, err := m.store.Enqueue(ctx, task)
	if err != nil {
		return 0, false, err
	}

	if existing {
		m.logger.Debug("task already queued",
			slog.Int64("task_id", id),
			slog.String("task_type", string(taskType)),
		)
	} else {
		m.logger.Info("task enqueued",
			slog.Int64("task_id", id),
			slog.String("task_type", string(taskType)),
			slog.Int("priority", int(priority)),
		)
	}

	return id, existing, nil
}

// EnqueueBatch enqueues many tasks at the same priority, returning how many
// were newly created (the rest already had live rows).
func (m *Manager) EnqueueBatch(
	ctx context.Context,
	taskType TaskType,
	batch []scrape.TaskParams,
	priority Priority,
) (int, error) {
	created := 0

	for _, params := range batch {
		_, existing, err := m.Enqueue(ctx, taskType, params, priority)
		if err != nil {
			return created, err
		}

		if !existing {
			created++
		}
	}

	return created, nil
}

// Next leases the next ready task. Returns ErrQueueEmpty when drained.
func (m *Manager) Next(ctx context.Context) (*Task, error) {
	return m.store.ClaimNext(ctx)
}

// Complete acknowledges a successfully processed task.
func (m *Manager) Complete(ctx context.Context, task *Task) error {
	if err := m.store.MarkCompleted(ctx, task.ID); err != nil {
		return err
	}

	m.logger.Info("task completed",
		slog.Int64("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
		slog.Int("attempts", task.Attempts),
	)

	return nil
}

// Fail records a failed attempt. Tasks below their attempt budget go back to
// retry with an exponentially delayed next_retry_at; the rest fail permanently.
func (m *Manager) Fail(ctx context.Context, task *Task, taskErr error) error {
	message := taskErr.Error()

	if task.Attempts < task.MaxAttempts {
		delay := RetryDelay(task.Attempts) + m.jitter()
		nextRetryAt := time.Now().Add(delay)

		if err := m.store.MarkRetry(ctx, task.ID, nextRetryAt, message); err != nil {
			return err
		}

		m.logger.Warn("task attempt failed, scheduled for retry",
			slog.Int64("task_id", task.ID),
			slog.Int("attempts", task.Attempts),
			slog.Duration("retry_in", delay),
			slog.String("error", message),
		)

		return nil
	}

	if err := m.store.MarkFailed(ctx, task.ID, message); err != nil {
		return err
	}

	m.logger.Error("task failed permanently",
		slog.Int64("task_id", task.ID),
		slog.Int("attempts", task.Attempts),
		slog.String("error", message),
	)

	return nil
}

// Stats returns the queue health snapshot.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	return m.store.Stats(ctx)
}

// Reset returns a task to pending with zeroed attempts.
func (m *Manager) Reset(ctx context.Context, id int64) error {
	return m.store.ResetTask(ctx, id)
}

// Cancel marks a live task failed with a cancellation note.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	return m.store.CancelTask(ctx, id)
}

// RequeueStale returns crashed-worker leases older than age to retry.
func (m *Manager) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	return m.store.RequeueStale(ctx, age)
}

// CleanupOldCompleted deletes completed tasks older than days.
func (m *Manager) CleanupOldCompleted(ctx context.Context, days int) (int64, error) {
	return m.store.CleanupOldCompleted(ctx, days)
}

// RetryDelay computes the backoff before the next attempt: 5·2^(attempts−1)
// minutes, so 5m, 10m, 20m, ... Jitter is added separately.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	return retryBaseDelay * (1 << (attempts - 1))
}

func (m *Manager) jitter() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return time.Duration(m.rng.Int63n(int64(retryMaxJitter)))
}
