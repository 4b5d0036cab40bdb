//go:build integration

package main

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("migrator_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return url
}

func newTestRunner(t *testing.T, url string) MigrationRunner {
	t.Helper()

	runner, err := NewMigrationRunner(&Config{
		DatabaseURL:    url,
		MigrationTable: "schema_migrations",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = runner.Close()
	})

	return runner
}

func tableExists(t *testing.T, url, table string) bool {
	t.Helper()

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)

	defer db.Close()

	var exists bool

	err = db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	require.NoError(t, err)

	return exists
}

func TestMigrator_UpCreatesFullSchema(t *testing.T) {
	url := startPostgres(t)
	runner := newTestRunner(t, url)

	require.NoError(t, runner.Up())

	for _, table := range []string{
		"players", "player_aliases", "player_review_queue", "player_merge_log",
		"tournaments", "tournament_editions", "matches",
		"elo_params", "player_elo_state",
		"scrape_queue",
		"pipeline_checkpoints", "pipeline_runs", "pipeline_stage_runs",
	} {
		assert.True(t, tableExists(t, url, table), "missing table %s", table)
	}
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	url := startPostgres(t)
	runner := newTestRunner(t, url)

	require.NoError(t, runner.Up())
	require.NoError(t, runner.Up())
}

func TestMigrator_DownRollsBackLastMigration(t *testing.T) {
	url := startPostgres(t)
	runner := newTestRunner(t, url)

	require.NoError(t, runner.Up())
	require.True(t, tableExists(t, url, "pipeline_runs"))

	require.NoError(t, runner.Down())

	assert.False(t, tableExists(t, url, "pipeline_runs"))
	assert.True(t, tableExists(t, url, "scrape_queue"))
}

func TestMigrator_FullDownCycle(t *testing.T) {
	url := startPostgres(t)
	runner := newTestRunner(t, url)

	require.NoError(t, runner.Up())

	for i := 0; i < 6; i++ {
		require.NoError(t, runner.Down())
	}

	assert.False(t, tableExists(t, url, "players"))
}
