package main

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// migrationSet validates migration files before golang-migrate ever sees
// them: filename format, up/down pairing, a gap-free sequence, and checksum
// drift between validation passes. It works over any fs.FS, so the embedded
// set and an on-disk override validate the same way.
type migrationSet struct {
	fsys      fs.FS
	checksums map[string]string // filename -> sha256
}

// migrationFile is one parsed migration filename.
type migrationFile struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

// 001_migration_name.up.sql / 001_migration_name.down.sql
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

func newMigrationSet(fsys fs.FS) *migrationSet {
	return &migrationSet{
		fsys:      fsys,
		checksums: make(map[string]string),
	}
}

// List returns the migration filenames that conform to the naming standard,
// sorted. Nonconforming .sql files are ignored rather than applied.
func (m *migrationSet) List() ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate runs the full validation pass and records checksums so a later
// pass can detect modified files.
func (m *migrationSet) Validate() error {
	files, err := m.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no migration files found")
	}

	if err := m.validateFilenames(files); err != nil {
		return err
	}

	if err := m.validatePairing(files); err != nil {
		return err
	}

	if err := m.validateSequence(files); err != nil {
		return err
	}

	if len(m.checksums) > 0 {
		if err := m.validateChecksums(files); err != nil {
			return err
		}
	}

	for _, file := range files {
		content, err := fs.ReadFile(m.fsys, file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		m.checksums[file] = checksum(content)
	}

	return nil
}

func parseMigrationFilename(filename string) (*migrationFile, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename format: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &migrationFile{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

func (m *migrationSet) validateFilenames(files []string) error {
	for _, file := range files {
		if _, err := parseMigrationFilename(file); err != nil {
			return fmt.Errorf("filename validation failed for %s: %w", file, err)
		}
	}

	return nil
}

// validatePairing ensures every up migration has its down counterpart.
func (m *migrationSet) validatePairing(files []string) error {
	directionsByKey := make(map[string]map[string]bool)

	for _, file := range files {
		migration, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", migration.Sequence, migration.Name)
		if directionsByKey[key] == nil {
			directionsByKey[key] = make(map[string]bool)
		}

		directionsByKey[key][migration.Direction] = true
	}

	for key, directions := range directionsByKey {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

// validateSequence ensures sequence numbers start at 001 with no gaps.
func (m *migrationSet) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		migration, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		seen[migration.Sequence] = true
	}

	var sequences []int

	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if expected := sequences[i-1] + 1; sequences[i] != expected {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d",
				expected, sequences[i])
		}
	}

	return nil
}

func (m *migrationSet) validateChecksums(files []string) error {
	for _, file := range files {
		content, err := fs.ReadFile(m.fsys, file)
		if err != nil {
			return fmt.Errorf("failed to read file %s for checksum validation: %w", file, err)
		}

		if stored, exists := m.checksums[file]; exists && checksum(content) != stored {
			return fmt.Errorf("checksum mismatch for %s: file has been modified", file)
		}
	}

	return nil
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
