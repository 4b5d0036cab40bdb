package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/pipeline"
)

// PersistentPipelineStore implements pipeline.Store on PostgreSQL. Run and
// stage rows are append-mostly: one insert at start, one update at finish.
type PersistentPipelineStore struct {
	conn *Connection
}

var _ pipeline.Store = (*PersistentPipelineStore)(nil)

// NewPersistentPipelineStore creates a Postgres-backed pipeline store.
func NewPersistentPipelineStore(conn *Connection) (*PersistentPipelineStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentPipelineStore{conn: conn}, nil
}

// CreateRun implements pipeline.Store.
func (s *PersistentPipelineStore) CreateRun(ctx context.Context, run *pipeline.Run) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, status, started_at)
		VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt,
	)

	return classifyError(err)
}

// FinishRun implements pipeline.Store.
func (s *PersistentPipelineStore) FinishRun(ctx context.Context, run *pipeline.Run) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = $1, finished_at = $2, duration_ms = $3, error = $4
		WHERE id = $5`,
		string(run.Status), run.FinishedAt, run.Duration.Milliseconds(),
		nullString(run.Error), run.ID,
	)

	return classifyError(err)
}

// CreateStageRun implements pipeline.Store.
func (s *PersistentPipelineStore) CreateStageRun(
	ctx context.Context,
	stageRun *pipeline.StageRun,
) (int64, error) {
	var id int64

	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO pipeline_stage_runs (run_id, stage, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		stageRun.RunID, stageRun.Stage, string(stageRun.Status), stageRun.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	return id, nil
}

// FinishStageRun implements pipeline.Store.
func (s *PersistentPipelineStore) FinishStageRun(
	ctx context.Context,
	stageRun *pipeline.StageRun,
) error {
	metrics, err := marshalStageMetrics(stageRun.Metrics)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, `
		UPDATE pipeline_stage_runs
		SET status = $1, finished_at = $2, metrics = $3, error = $4
		WHERE id = $5`,
		string(stageRun.Status), stageRun.FinishedAt, metrics,
		nullString(stageRun.Error), stageRun.ID,
	)

	return classifyError(err)
}

func marshalStageMetrics(metrics map[string]any) ([]byte, error) {
	if metrics == nil {
		return nil, nil
	}

	payload, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal stage metrics: %w", err)
	}

	return payload, nil
}

// MemoryPipelineStore is the in-memory pipeline.Store for tests and dry runs.
type MemoryPipelineStore struct {
	mu          sync.Mutex
	nextStageID int64
	runs        map[string]*pipeline.Run
	stageRuns   map[int64]*pipeline.StageRun
}

var _ pipeline.Store = (*MemoryPipelineStore)(nil)

// NewMemoryPipelineStore creates an empty in-memory pipeline store.
func NewMemoryPipelineStore() *MemoryPipelineStore {
	return &MemoryPipelineStore{
		runs:      make(map[string]*pipeline.Run),
		stageRuns: make(map[int64]*pipeline.StageRun),
	}
}

// CreateRun implements pipeline.Store.
func (s *MemoryPipelineStore) CreateRun(_ context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.ID] = &copied

	return nil
}

// FinishRun implements pipeline.Store.
func (s *MemoryPipelineStore) FinishRun(_ context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.ID] = &copied

	return nil
}

// CreateStageRun implements pipeline.Store.
func (s *MemoryPipelineStore) CreateStageRun(
	_ context.Context,
	stageRun *pipeline.StageRun,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextStageID++

	copied := *stageRun
	copied.ID = s.nextStageID
	s.stageRuns[copied.ID] = &copied

	return copied.ID, nil
}

// FinishStageRun implements pipeline.Store.
func (s *MemoryPipelineStore) FinishStageRun(_ context.Context, stageRun *pipeline.StageRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *stageRun
	s.stageRuns[stageRun.ID] = &copied

	return nil
}

// Run returns a stored run snapshot. Test helper.
func (s *MemoryPipelineStore) Run(id string) *pipeline.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil
	}

	copied := *run

	return &copied
}

// StageRuns returns the stored stage rows for a run, oldest first. Test helper.
func (s *MemoryPipelineStore) StageRuns(runID string) []*pipeline.StageRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*pipeline.StageRun

	for id := int64(1); id <= s.nextStageID; id++ {
		stageRun, ok := s.stageRuns[id]
		if !ok || stageRun.RunID != runID {
			continue
		}

		copied := *stageRun
		result = append(result, &copied)
	}

	return result
}

// MemoryLocker is an in-process pipeline.Locker for tests and the dry-run
// path, mimicking the advisory lock's fail-on-held behavior.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ pipeline.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an unheld in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

// Acquire implements pipeline.Locker. There is no bounded wait: a held lock
// fails immediately, which is the behavior the orchestrator tests need.
func (l *MemoryLocker) Acquire(_ context.Context, name string, _ time.Duration) (func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, fmt.Errorf("%w: %q", ErrLockNotAcquired, name)
	}

	l.held[name] = true

	release := func() error {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.held[name] = false

		return nil
	}

	return release, nil
}
