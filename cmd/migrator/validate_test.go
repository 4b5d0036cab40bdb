package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/migrations"
)

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func validPair(t *testing.T, dir string, seq, name string) {
	t.Helper()
	writeMigration(t, dir, seq+"_"+name+".up.sql", "CREATE TABLE "+name+" (id BIGINT);")
	writeMigration(t, dir, seq+"_"+name+".down.sql", "DROP TABLE "+name+";")
}

func TestMigrationSet_ValidSetPasses(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "001", "players")
	validPair(t, dir, "002", "matches")

	set := newMigrationSet(os.DirFS(dir))
	require.NoError(t, set.Validate())

	files, err := set.List()
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestMigrationSet_IgnoresNonconformingFiles(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "001", "players")
	writeMigration(t, dir, "notes.txt", "not a migration")
	writeMigration(t, dir, "extra.sql", "SELECT 1;")

	files, err := newMigrationSet(os.DirFS(dir)).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_players.down.sql", "001_players.up.sql"}, files)
}

func TestMigrationSet_MissingDownIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_players.up.sql", "CREATE TABLE players (id BIGINT);")

	err := newMigrationSet(os.DirFS(dir)).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing down migration")
}

func TestMigrationSet_OrphanedDownIsRejected(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "001", "players")
	writeMigration(t, dir, "002_matches.down.sql", "DROP TABLE matches;")

	err := newMigrationSet(os.DirFS(dir)).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing up migration")
}

func TestMigrationSet_SequenceGapIsRejected(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "001", "players")
	validPair(t, dir, "003", "matches")

	err := newMigrationSet(os.DirFS(dir)).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap in migration sequence")
}

func TestMigrationSet_SequenceMustStartAtOne(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "002", "players")

	err := newMigrationSet(os.DirFS(dir)).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should start with 001")
}

func TestMigrationSet_EmptyDirectoryIsRejected(t *testing.T) {
	err := newMigrationSet(os.DirFS(t.TempDir())).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migration files")
}

func TestMigrationSet_DetectsModifiedFiles(t *testing.T) {
	dir := t.TempDir()
	validPair(t, dir, "001", "players")

	set := newMigrationSet(os.DirFS(dir))
	require.NoError(t, set.Validate())

	writeMigration(t, dir, "001_players.up.sql", "CREATE TABLE players (id BIGINT, altered BOOLEAN);")

	err := set.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestParseMigrationFilename(t *testing.T) {
	parsed, err := parseMigrationFilename("004_elo.up.sql")
	require.NoError(t, err)
	assert.Equal(t, 4, parsed.Sequence)
	assert.Equal(t, "elo", parsed.Name)
	assert.Equal(t, "up", parsed.Direction)

	_, err = parseMigrationFilename("4_elo.up.sql")
	require.Error(t, err)

	_, err = parseMigrationFilename("004_elo.sideways.sql")
	require.Error(t, err)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	err := newMigrationSet(migrations.FS).Validate()
	require.NoError(t, err)
}
