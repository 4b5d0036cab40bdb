package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
)

// PersistentQueueStore implements queue.Store on PostgreSQL. Lease
// exclusivity comes from FOR UPDATE SKIP LOCKED inside a single claim
// statement: concurrent workers never block on each other and never receive
// the same row.
type PersistentQueueStore struct {
	conn   *Connection
	logger *slog.Logger
}

var _ queue.Store = (*PersistentQueueStore)(nil)

// NewPersistentQueueStore creates a Postgres-backed queue store.
func NewPersistentQueueStore(conn *Connection, logger *slog.Logger) (*PersistentQueueStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentQueueStore{conn: conn, logger: logger}, nil
}

// Enqueue implements queue.Store. The partial unique index on
// (task_type, task_params_hash) over live statuses backs idempotency; a
// conflicting insert falls through to returning the existing live row.
func (s *PersistentQueueStore) Enqueue(ctx context.Context, task *queue.Task) (int64, bool, error) {
	params, err := task.Params.CanonicalJSON()
	if err != nil {
		return 0, false, err
	}

	var id int64

	err = s.conn.QueryRowContext(ctx, `
		INSERT INTO scrape_queue (task_type, task_params, task_params_hash, priority, status, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		ON CONFLICT (task_type, task_params_hash) WHERE status IN ('pending', 'in_progress', 'retry')
		DO NOTHING
		RETURNING id`,
		task.Type, params, task.ParamsHash, task.Priority, task.MaxAttempts,
	).Scan(&id)

	if err == nil {
		return id, false, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, classifyError(err)
	}

	// Conflict path: find the live row that blocked the insert.
	err = s.conn.QueryRowContext(ctx, `
		SELECT id FROM scrape_queue
		WHERE task_type = $1 AND task_params_hash = $2
		  AND status IN ('pending', 'in_progress', 'retry')
		LIMIT 1`,
		task.Type, task.ParamsHash,
	).Scan(&id)
	if err != nil {
		return 0, false, classifyError(err)
	}

	return id, true, nil
}

// ClaimNext implements queue.Store. One statement selects the best ready row
// under SKIP LOCKED and flips it to in_progress, so the lease and the status
// change are atomic even against concurrent claimers.
func (s *PersistentQueueStore) ClaimNext(ctx context.Context) (*queue.Task, error) {
	row := s.conn.QueryRowContext(ctx, `
		UPDATE scrape_queue SET
			status = 'in_progress',
			started_at = NOW(),
			attempts = attempts + 1,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM scrape_queue
			WHERE status IN ('pending', 'retry')
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_type, task_params, task_params_hash, priority, status,
		          attempts, max_attempts, next_retry_at, COALESCE(last_error, ''),
		          created_at, started_at, completed_at`)

	task, err := scanTask(row)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, queue.ErrQueueEmpty
	case err != nil:
		return nil, classifyError(err)
	}

	return task, nil
}

// MarkCompleted implements queue.Store.
func (s *PersistentQueueStore) MarkCompleted(ctx context.Context, id int64) error {
	return s.transition(ctx, id, `
		UPDATE scrape_queue SET
			status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`)
}

// MarkRetry implements queue.Store.
func (s *PersistentQueueStore) MarkRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE scrape_queue SET
			status = 'retry', next_retry_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, nextRetryAt, lastError,
	)
	if err != nil {
		return classifyError(err)
	}

	return requireRow(result, id)
}

// MarkFailed implements queue.Store.
func (s *PersistentQueueStore) MarkFailed(ctx context.Context, id int64, lastError string) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE scrape_queue SET
			status = 'failed', last_error = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return classifyError(err)
	}

	return requireRow(result, id)
}

// ResetTask implements queue.Store.
func (s *PersistentQueueStore) ResetTask(ctx context.Context, id int64) error {
	return s.transition(ctx, id, `
		UPDATE scrape_queue SET
			status = 'pending', attempts = 0, next_retry_at = NULL,
			last_error = NULL, started_at = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1`)
}

// CancelTask implements queue.Store.
func (s *PersistentQueueStore) CancelTask(ctx context.Context, id int64) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE scrape_queue SET
			status = 'failed', last_error = 'cancelled by operator',
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'in_progress', 'retry')`,
		id,
	)
	if err != nil {
		return classifyError(err)
	}

	return requireRow(result, id)
}

// RequeueStale implements queue.Store.
func (s *PersistentQueueStore) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE scrape_queue SET
			status = 'retry', next_retry_at = NOW(), updated_at = NOW(),
			last_error = 'requeued: stale in_progress lease'
		WHERE status = 'in_progress' AND started_at < NOW() - $1::interval`,
		fmt.Sprintf("%f seconds", age.Seconds()),
	)
	if err != nil {
		return 0, classifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		s.logger.Warn("requeued stale leases", slog.Int64("count", affected))
	}

	return affected, nil
}

// CleanupOldCompleted implements queue.Store.
func (s *PersistentQueueStore) CleanupOldCompleted(ctx context.Context, days int) (int64, error) {
	result, err := s.conn.ExecContext(ctx, `
		DELETE FROM scrape_queue
		WHERE status = 'completed' AND completed_at < NOW() - ($1 || ' days')::interval`,
		days,
	)
	if err != nil {
		return 0, classifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// Stats implements queue.Store.
func (s *PersistentQueueStore) Stats(ctx context.Context) (*queue.Stats, error) {
	stats := &queue.Stats{ByStatus: make(map[queue.Status]int)}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM scrape_queue GROUP BY status`)
	if err != nil {
		return nil, classifyError(err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			status queue.Status
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}

		stats.ByStatus[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	err = s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scrape_queue
		WHERE status IN ('pending', 'retry')
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())`,
	).Scan(&stats.Ready)
	if err != nil {
		return nil, classifyError(err)
	}

	err = s.conn.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(attempts), 0) FROM scrape_queue WHERE status = 'failed'`,
	).Scan(&stats.AvgFailedAttempts)
	if err != nil {
		return nil, classifyError(err)
	}

	return stats, nil
}

func (s *PersistentQueueStore) transition(ctx context.Context, id int64, query string) error {
	result, err := s.conn.ExecContext(ctx, query, id)
	if err != nil {
		return classifyError(err)
	}

	return requireRow(result, id)
}

func requireRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*queue.Task, error) {
	var (
		task        queue.Task
		params      []byte
		nextRetryAt sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&task.ID, &task.Type, &params, &task.ParamsHash, &task.Priority, &task.Status,
		&task.Attempts, &task.MaxAttempts, &nextRetryAt, &task.LastError,
		&task.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Params, err = scrape.ParseTaskParams(params)
	if err != nil {
		return nil, err
	}

	if nextRetryAt.Valid {
		task.NextRetryAt = &nextRetryAt.Time
	}

	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}

	return &task, nil
}
