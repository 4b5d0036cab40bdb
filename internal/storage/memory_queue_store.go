package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/queue"
)

// MemoryQueueStore implements queue.Store in memory. It mirrors the
// PersistentQueueStore semantics, including lease exclusivity: ClaimNext is
// serialized by a mutex so concurrent claimers never receive the same task.
type MemoryQueueStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*queue.Task
}

var _ queue.Store = (*MemoryQueueStore)(nil)

// NewMemoryQueueStore creates an empty in-memory queue.
func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{tasks: make(map[int64]*queue.Task)}
}

// Enqueue implements queue.Store.
func (s *MemoryQueueStore) Enqueue(_ context.Context, task *queue.Task) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		if existing.Type == task.Type && existing.ParamsHash == task.ParamsHash && existing.Status.IsLive() {
			return existing.ID, true, nil
		}
	}

	s.nextID++

	stored := *task
	stored.ID = s.nextID
	stored.Status = queue.StatusPending
	stored.CreatedAt = time.Now()
	s.tasks[stored.ID] = &stored

	return stored.ID, false, nil
}

// ClaimNext implements queue.Store.
func (s *MemoryQueueStore) ClaimNext(_ context.Context) (*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	ready := make([]*queue.Task, 0, len(s.tasks))

	for _, task := range s.tasks {
		if task.Status != queue.StatusPending && task.Status != queue.StatusRetry {
			continue
		}

		if task.NextRetryAt != nil && task.NextRetryAt.After(now) {
			continue
		}

		ready = append(ready, task)
	}

	if len(ready) == 0 {
		return nil, queue.ErrQueueEmpty
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}

		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	task := ready[0]
	task.Status = queue.StatusInProgress
	task.Attempts++
	task.StartedAt = &now

	claimed := *task

	return &claimed, nil
}

// MarkCompleted implements queue.Store.
func (s *MemoryQueueStore) MarkCompleted(_ context.Context, id int64) error {
	return s.update(id, func(task *queue.Task) {
		now := time.Now()
		task.Status = queue.StatusCompleted
		task.CompletedAt = &now
	})
}

// MarkRetry implements queue.Store.
func (s *MemoryQueueStore) MarkRetry(_ context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	return s.update(id, func(task *queue.Task) {
		task.Status = queue.StatusRetry
		task.NextRetryAt = &nextRetryAt
		task.LastError = lastError
	})
}

// MarkFailed implements queue.Store.
func (s *MemoryQueueStore) MarkFailed(_ context.Context, id int64, lastError string) error {
	return s.update(id, func(task *queue.Task) {
		now := time.Now()
		task.Status = queue.StatusFailed
		task.LastError = lastError
		task.CompletedAt = &now
	})
}

// ResetTask implements queue.Store.
func (s *MemoryQueueStore) ResetTask(_ context.Context, id int64) error {
	return s.update(id, func(task *queue.Task) {
		task.Status = queue.StatusPending
		task.Attempts = 0
		task.NextRetryAt = nil
		task.LastError = ""
		task.StartedAt = nil
		task.CompletedAt = nil
	})
}

// CancelTask implements queue.Store.
func (s *MemoryQueueStore) CancelTask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || !task.Status.IsLive() {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}

	now := time.Now()
	task.Status = queue.StatusFailed
	task.LastError = "cancelled by operator"
	task.CompletedAt = &now

	return nil
}

// RequeueStale implements queue.Store.
func (s *MemoryQueueStore) RequeueStale(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-age)
	requeued := int64(0)

	for _, task := range s.tasks {
		if task.Status != queue.StatusInProgress || task.StartedAt == nil || !task.StartedAt.Before(cutoff) {
			continue
		}

		now := time.Now()
		task.Status = queue.StatusRetry
		task.NextRetryAt = &now
		task.LastError = "requeued: stale in_progress lease"
		requeued++
	}

	return requeued, nil
}

// CleanupOldCompleted implements queue.Store.
func (s *MemoryQueueStore) CleanupOldCompleted(_ context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted := int64(0)

	for id, task := range s.tasks {
		if task.Status == queue.StatusCompleted && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}

	return deleted, nil
}

// Stats implements queue.Store.
func (s *MemoryQueueStore) Stats(_ context.Context) (*queue.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &queue.Stats{ByStatus: make(map[queue.Status]int)}

	now := time.Now()
	failedAttempts := 0
	failedCount := 0

	for _, task := range s.tasks {
		stats.ByStatus[task.Status]++

		switch task.Status {
		case queue.StatusPending, queue.StatusRetry:
			if task.NextRetryAt == nil || !task.NextRetryAt.After(now) {
				stats.Ready++
			}
		case queue.StatusFailed:
			failedAttempts += task.Attempts
			failedCount++
		}
	}

	if failedCount > 0 {
		stats.AvgFailedAttempts = float64(failedAttempts) / float64(failedCount)
	}

	return stats, nil
}

func (s *MemoryQueueStore) update(id int64, apply func(*queue.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}

	apply(task)

	return nil
}
