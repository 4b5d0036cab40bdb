package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	lockRetryInitialInterval = 250 * time.Millisecond
	lockRetryMaxInterval     = 2 * time.Second
)

var (
	// ErrLockNotAcquired is returned when the advisory lock could not be
	// obtained within the bounded wait. Callers treat this as a clean
	// failure: record it, exit non-zero, commit nothing.
	ErrLockNotAcquired = errors.New("advisory lock not acquired")
)

// LockKey derives the namespaced 64-bit advisory lock key for a stage name.
// The key is the first 8 bytes of SHA-256 over the name, so it is stable
// across processes and releases without a central registry.
func LockKey(name string) int64 {
	digest := sha256.Sum256([]byte(name))

	return int64(binary.BigEndian.Uint64(digest[:8]))
}

// AdvisoryLocker acquires session-scoped PostgreSQL advisory locks with a
// bounded wait. Locks are tied to the session holding them, so each acquire
// pins one pool connection until release.
type AdvisoryLocker struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAdvisoryLocker creates a locker over the shared connection.
func NewAdvisoryLocker(conn *Connection, logger *slog.Logger) (*AdvisoryLocker, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &AdvisoryLocker{conn: conn, logger: logger}, nil
}

// Acquire obtains the advisory lock for name, retrying with exponential
// backoff until timeout. On success it returns a release function; the caller
// must invoke it exactly once. Failure to acquire within the window returns
// ErrLockNotAcquired.
func (l *AdvisoryLocker) Acquire(ctx context.Context, name string, timeout time.Duration) (func() error, error) {
	key := LockKey(name)

	// pg_advisory_lock is session-scoped: acquire and release must happen on
	// the same connection, so pin one for the lock's lifetime.
	sqlConn, err := l.conn.DB().Conn(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = lockRetryInitialInterval
	policy.MaxInterval = lockRetryMaxInterval
	policy.MaxElapsedTime = timeout

	attempt := func() error {
		var acquired bool
		if err := sqlConn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			return backoff.Permanent(classifyError(err))
		}

		if !acquired {
			return fmt.Errorf("%w: %q", ErrLockNotAcquired, name)
		}

		return nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		_ = sqlConn.Close()

		if errors.Is(err, ErrLockNotAcquired) {
			l.logger.Warn("advisory lock wait exhausted",
				slog.String("lock", name),
				slog.Duration("timeout", timeout),
			)
		}

		return nil, err
	}

	l.logger.Debug("advisory lock acquired", slog.String("lock", name), slog.Int64("key", key))

	release := func() error {
		defer func() {
			_ = sqlConn.Close()
		}()

		var released bool
		if err := sqlConn.QueryRowContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key).Scan(&released); err != nil {
			return fmt.Errorf("release advisory lock %q: %w", name, err)
		}

		if !released {
			return fmt.Errorf("advisory lock %q was not held at release", name)
		}

		return nil
	}

	return release, nil
}
