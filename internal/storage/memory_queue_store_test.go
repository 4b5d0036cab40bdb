package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

func newTestTask(t *testing.T, code string, priority queue.Priority) *queue.Task {
	t.Helper()

	params := scrape.TaskParams{Tour: tennis.TourATP, TournamentCode: code, Year: 2026}

	hash, err := params.Hash()
	require.NoError(t, err)

	return &queue.Task{
		Type:        queue.TaskCurrentTournament,
		Params:      params,
		ParamsHash:  hash,
		Priority:    priority,
		MaxAttempts: 3,
	}
}

func TestMemoryQueueStore_EnqueueIdempotentOnLiveStatus(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	first, existing, err := store.Enqueue(ctx, newTestTask(t, "halle", queue.PriorityHigh))
	require.NoError(t, err)
	assert.False(t, existing)

	second, existing, err := store.Enqueue(ctx, newTestTask(t, "halle", queue.PriorityHigh))
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first, second)

	// Completing the live task frees the idempotency slot.
	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, claimed.ID))

	third, existing, err := store.Enqueue(ctx, newTestTask(t, "halle", queue.PriorityHigh))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, first, third)
}

func TestMemoryQueueStore_ClaimOrdersByPriorityThenFIFO(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	lowID, _, err := store.Enqueue(ctx, newTestTask(t, "backfill-1990", queue.PriorityBackfill))
	require.NoError(t, err)

	urgentID, _, err := store.Enqueue(ctx, newTestTask(t, "us-open", queue.PriorityUrgent))
	require.NoError(t, err)

	firstNormalID, _, err := store.Enqueue(ctx, newTestTask(t, "metz", queue.PriorityNormal))
	require.NoError(t, err)

	secondNormalID, _, err := store.Enqueue(ctx, newTestTask(t, "chengdu", queue.PriorityNormal))
	require.NoError(t, err)

	wantOrder := []int64{urgentID, firstNormalID, secondNormalID, lowID}

	for _, want := range wantOrder {
		task, err := store.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, task.ID)
		assert.Equal(t, queue.StatusInProgress, task.Status)
		assert.Equal(t, 1, task.Attempts)
	}

	_, err = store.ClaimNext(ctx)
	require.ErrorIs(t, err, queue.ErrQueueEmpty)
}

func TestMemoryQueueStore_RetryNotReadyUntilDue(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	id, _, err := store.Enqueue(ctx, newTestTask(t, "halle", queue.PriorityNormal))
	require.NoError(t, err)

	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, store.MarkRetry(ctx, id, time.Now().Add(time.Hour), "timeout"))

	_, err = store.ClaimNext(ctx)
	require.ErrorIs(t, err, queue.ErrQueueEmpty)

	require.NoError(t, store.MarkRetry(ctx, id, time.Now().Add(-time.Second), "timeout"))

	task, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, 2, task.Attempts)
}

// TestMemoryQueueStore_ConcurrentLeasing is the exactly-once delivery
// scenario: 10 tasks, 3 workers, no task delivered twice and none lost.
func TestMemoryQueueStore_ConcurrentLeasing(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	const taskCount = 10

	for i := range taskCount {
		_, _, err := store.Enqueue(ctx, newTestTask(t, fmt.Sprintf("event-%d", i), queue.PriorityNormal))
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)

	for range 3 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				task, err := store.ClaimNext(ctx)
				if errors.Is(err, queue.ErrQueueEmpty) {
					return
				}

				require.NoError(t, err)

				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()

				require.NoError(t, store.MarkCompleted(ctx, task.ID))
			}
		}()
	}

	wg.Wait()

	assert.Len(t, claimed, taskCount, "every task delivered")

	for id, count := range claimed {
		assert.Equal(t, 1, count, "task %d delivered exactly once", id)
	}
}

func TestMemoryQueueStore_RequeueStale(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	id, _, err := store.Enqueue(ctx, newTestTask(t, "halle", queue.PriorityNormal))
	require.NoError(t, err)

	task, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, id, task.ID)

	// Fresh lease is not stale.
	requeued, err := store.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, requeued)

	requeued, err = store.RequeueStale(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, requeued)

	task, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, 2, task.Attempts)
}

func TestMemoryQueueStore_Stats(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	for i := range 3 {
		_, _, err := store.Enqueue(ctx, newTestTask(t, fmt.Sprintf("event-%d", i), queue.PriorityNormal))
		require.NoError(t, err)
	}

	task, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, task.ID, "permanent"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ByStatus[queue.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[queue.StatusFailed])
	assert.Equal(t, 2, stats.Ready)
	assert.InDelta(t, 1.0, stats.AvgFailedAttempts, 0.001)
}
