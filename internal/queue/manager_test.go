package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// fakeStore records lifecycle transitions for policy tests.
type fakeStore struct {
	Store

	enqueued   []*Task
	retryAt    time.Time
	retryErr   string
	failedErr  string
	completed  bool
	markedFail bool
}

func (f *fakeStore) Enqueue(_ context.Context, task *Task) (int64, bool, error) {
	for _, existing := range f.enqueued {
		if existing.Type == task.Type && existing.ParamsHash == task.ParamsHash {
			return existing.ID, true, nil
		}
	}

	task.ID = int64(len(f.enqueued) + 1)
	f.enqueued = append(f.enqueued, task)

	return task.ID, false, nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, _ int64) error {
	f.completed = true

	return nil
}

func (f *fakeStore) MarkRetry(_ context.Context, _ int64, nextRetryAt time.Time, lastError string) error {
	f.retryAt = nextRetryAt
	f.retryErr = lastError

	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, _ int64, lastError string) error {
	f.markedFail = true
	f.failedErr = lastError

	return nil
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{name: "first attempt", attempts: 1, want: 5 * time.Minute},
		{name: "second attempt", attempts: 2, want: 10 * time.Minute},
		{name: "third attempt", attempts: 3, want: 20 * time.Minute},
		{name: "fourth attempt", attempts: 4, want: 40 * time.Minute},
		{name: "zero clamps to first", attempts: 0, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryDelay(tt.attempts))
		})
	}
}

func TestManagerFail_SchedulesRetryBelowBudget(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(store, slog.Default())

	task := &Task{ID: 7, Type: TaskCurrentTournament, Attempts: 1, MaxAttempts: 3}

	require.NoError(t, manager.Fail(context.Background(), task, assert.AnError))

	assert.False(t, store.markedFail)
	assert.Equal(t, assert.AnError.Error(), store.retryErr)

	// 5·2^0 minutes plus at most 60s jitter.
	delay := time.Until(store.retryAt)
	assert.Greater(t, delay, 4*time.Minute)
	assert.Less(t, delay, 7*time.Minute)
}

func TestManagerFail_PermanentAtBudget(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(store, slog.Default())

	task := &Task{ID: 7, Type: TaskCurrentTournament, Attempts: 3, MaxAttempts: 3}

	require.NoError(t, manager.Fail(context.Background(), task, assert.AnError))

	assert.True(t, store.markedFail)
	assert.Equal(t, assert.AnError.Error(), store.failedErr)
	assert.True(t, store.retryAt.IsZero(), "permanent failure must not schedule a retry")
}

func TestManagerEnqueue_IdempotentOnLiveTask(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(store, slog.Default())
	ctx := context.Background()

	params := scrape.TaskParams{Tour: tennis.TourATP, TournamentCode: "halle", Year: 2026}

	first, existing, err := manager.Enqueue(ctx, TaskCurrentTournament, params, PriorityHigh)
	require.NoError(t, err)
	assert.False(t, existing)

	second, existing, err := manager.Enqueue(ctx, TaskCurrentTournament, params, PriorityHigh)
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first, second)
}

func TestManagerEnqueue_RejectsUnknownTaskType(t *testing.T) {
	manager := NewManager(&fakeStore{}, slog.Default())

	_, _, err := manager.Enqueue(context.Background(), TaskType("bogus"), scrape.TaskParams{}, PriorityNormal)
	require.Error(t, err)
}

func TestStatusIsLive(t *testing.T) {
	assert.True(t, StatusPending.IsLive())
	assert.True(t, StatusInProgress.IsLive())
	assert.True(t, StatusRetry.IsLive())
	assert.False(t, StatusCompleted.IsLive())
	assert.False(t, StatusFailed.IsLive())
}
