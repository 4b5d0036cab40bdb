package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCheckpointNotFound is returned when no cursor exists for a key.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// CheckpointStore persists resumable stage cursors as key → JSON rows.
// The Elo updater stores {last_temporal_order, last_match_id} here.
type CheckpointStore interface {
	// Get unmarshals the cursor stored under key into dst.
	// Returns ErrCheckpointNotFound when the key has never been written.
	Get(ctx context.Context, key string, dst any) error

	// Put upserts the cursor stored under key.
	Put(ctx context.Context, key string, cursor any) error

	// Delete removes the cursor. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// PersistentCheckpointStore implements CheckpointStore on PostgreSQL.
type PersistentCheckpointStore struct {
	conn *Connection
}

var _ CheckpointStore = (*PersistentCheckpointStore)(nil)

// NewPersistentCheckpointStore creates a Postgres-backed checkpoint store.
func NewPersistentCheckpointStore(conn *Connection) (*PersistentCheckpointStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentCheckpointStore{conn: conn}, nil
}

// Get implements CheckpointStore.
func (s *PersistentCheckpointStore) Get(ctx context.Context, key string, dst any) error {
	var payload []byte

	err := s.conn.QueryRowContext(ctx,
		`SELECT cursor FROM pipeline_checkpoints WHERE key = $1`, key,
	).Scan(&payload)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %q", ErrCheckpointNotFound, key)
	case err != nil:
		return classifyError(err)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("unmarshal checkpoint %q: %w", key, err)
	}

	return nil
}

// Put implements CheckpointStore.
func (s *PersistentCheckpointStore) Put(ctx context.Context, key string, cursor any) error {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %q: %w", key, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO pipeline_checkpoints (key, cursor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()`,
		key, payload,
	)

	return classifyError(err)
}

// Delete implements CheckpointStore.
func (s *PersistentCheckpointStore) Delete(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM pipeline_checkpoints WHERE key = $1`, key)

	return classifyError(err)
}

// MemoryCheckpointStore is the in-memory CheckpointStore for tests and dry runs.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	cursors map[string][]byte
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cursors: make(map[string][]byte)}
}

// Get implements CheckpointStore.
func (s *MemoryCheckpointStore) Get(_ context.Context, key string, dst any) error {
	s.mu.RLock()
	payload, ok := s.cursors[key]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrCheckpointNotFound, key)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("unmarshal checkpoint %q: %w", key, err)
	}

	return nil
}

// Put implements CheckpointStore.
func (s *MemoryCheckpointStore) Put(_ context.Context, key string, cursor any) error {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %q: %w", key, err)
	}

	s.mu.Lock()
	s.cursors[key] = payload
	s.mu.Unlock()

	return nil
}

// Delete implements CheckpointStore.
func (s *MemoryCheckpointStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.cursors, key)
	s.mu.Unlock()

	return nil
}
