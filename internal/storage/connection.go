// Package storage provides the PostgreSQL persistence layer: the shared
// connection pool, advisory locks, checkpoints, and the store implementations
// behind the identity, queue, ingest, elo, and pipeline packages. Every
// Postgres store has an in-memory counterpart satisfying the same interface
// for hermetic tests and dry runs.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq" // PostgreSQL driver, registered on import
)

const (
	connectTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second

	pqConnectionClass  = "08"    // Class 08: Connection Exception
	pqUniqueViolation  = "23505" // unique_violation
	pqForeignKeyError  = "23503" // foreign_key_violation
	pqSerializationErr = "40001" // serialization_failure
)

var (
	// ErrNoDatabaseConnection is returned when a store is constructed without a connection.
	ErrNoDatabaseConnection = errors.New("no database connection")

	// ErrDatabaseUnavailable is returned when the database cannot be reached
	// (PostgreSQL Class 08 errors and driver-level connection failures).
	ErrDatabaseUnavailable = errors.New("database unavailable")
)

// Connection wraps *sql.DB with pool configuration and error classification.
// One Connection is shared by every store in the process; ownership (and
// Close) stays with the caller that built it.
type Connection struct {
	db     *sql.DB
	config *Config
}

// NewConnection opens a PostgreSQL connection pool and verifies it with a
// ping. The returned connection is safe for concurrent use.
func NewConnection(config *Config) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", config.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: ping failed: %w", ErrDatabaseUnavailable, err)
	}

	return &Connection{db: db, config: config}, nil
}

// Close closes the underlying connection pool.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}

// HealthCheck verifies the database is reachable and ready to serve requests.
// Used by CLI preflight checks before long-running stages.
func (c *Connection) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}

	return nil
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, classifyError(err)
	}

	return tx, nil
}

// ExecContext executes a statement on the pool.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}

	return result, nil
}

// QueryContext runs a query on the pool.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}

	return rows, nil
}

// QueryRowContext runs a single-row query on the pool.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// DB exposes the raw pool for components that need driver-level access
// (the migration runner, testcontainers harnesses).
func (c *Connection) DB() *sql.DB {
	return c.db
}

// classifyError wraps connection-class failures in ErrDatabaseUnavailable so
// callers can distinguish "database is down" from per-record errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if IsConnectionError(err) {
		return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}

	return err
}

// IsConnectionError checks if an error indicates database connection failure.
// Uses PostgreSQL error codes (Class 08) and standard database/sql errors.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), pqConnectionClass)
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

// IsUniqueViolation reports whether an error is a PostgreSQL unique
// constraint violation. Ingestors treat these as the idempotent
// already-present path rather than failures.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}
