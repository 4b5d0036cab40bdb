package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the migrator's configuration, loaded from the environment.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationsPath optionally points at an on-disk migrations directory.
	// Empty means the embedded migration set, the zero-config default.
	MigrationsPath string

	// MigrationTable is the schema-version tracking table.
	MigrationTable string
}

// LoadConfig reads the environment with sensible defaults and validates.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", ""),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks the configuration and resolves the migrations path when
// one is set.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	if c.MigrationsPath != "" {
		absPath, err := filepath.Abs(c.MigrationsPath)
		if err != nil {
			return fmt.Errorf("failed to resolve migrations path: %w", err)
		}
		c.MigrationsPath = absPath

		if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
			return fmt.Errorf("migrations directory does not exist: %s", c.MigrationsPath)
		}
	}

	return nil
}

// String renders the configuration with the database password masked.
func (c *Config) String() string {
	source := "embedded"
	if c.MigrationsPath != "" {
		source = c.MigrationsPath
	}

	return fmt.Sprintf("Config{DatabaseURL: %s, Migrations: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), source, c.MigrationTable)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// maskDatabaseURL hides the password component of a connection URL so the
// config can be logged.
func maskDatabaseURL(url string) string {
	if url == "" {
		return ""
	}

	authStart := -1

	for i := 0; i < len(url)-1; i++ {
		if url[i] == '/' && url[i+1] == '/' {
			authStart = i + 2

			break
		}
	}

	if authStart == -1 {
		return url
	}

	// The last "@" before the path bounds the user info, in case the
	// password itself contains "@".
	atPos := -1

	for i := authStart; i < len(url); i++ {
		if url[i] == '@' {
			atPos = i
		}

		if url[i] == '/' || url[i] == '?' || url[i] == '#' {
			break
		}
	}

	if atPos == -1 {
		return url
	}

	colonPos := -1

	for i := authStart; i < atPos; i++ {
		if url[i] == ':' {
			colonPos = i

			break
		}
	}

	if colonPos == -1 || atPos-(colonPos+1) == 0 {
		return url
	}

	return url[:colonPos+1] + "***" + url[atPos:]
}
