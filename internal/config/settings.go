package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultDBPoolSize    = 10
	defaultDBMaxOverflow = 5

	defaultScrapeTimeout    = 30 * time.Second
	defaultScrapeDelayMin   = 2 * time.Second
	defaultScrapeDelayMax   = 5 * time.Second
	defaultScrapeMaxRetries = 3

	defaultExactMatchThreshold = 0.98
	defaultSuggestionThreshold = 0.85
	defaultAbbreviationBonus   = 0.15

	defaultPipelineLockTimeout = 30 * time.Second
)

var (
	// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

	// ErrInvalidPoolSize is returned when the connection pool sizing is not positive.
	ErrInvalidPoolSize = errors.New("DB_POOL_SIZE must be at least 1")

	// ErrInvalidDelayWindow is returned when the scrape delay window is inverted.
	ErrInvalidDelayWindow = errors.New("SCRAPE_DELAY_MIN must not exceed SCRAPE_DELAY_MAX")
)

// Settings is the immutable process configuration, loaded once at startup and
// threaded through component constructors. Nothing in this codebase reads the
// environment after LoadSettings returns.
type Settings struct {
	databaseURL   string
	DBPoolSize    int
	DBMaxOverflow int

	ScrapeHeadless       bool
	ScrapeVirtualDisplay bool
	ScrapeTimeout        time.Duration
	ScrapeDelayMin       time.Duration
	ScrapeDelayMax       time.Duration
	ScrapeMaxRetries     int

	ExactMatchThreshold float64
	SuggestionThreshold float64
	AbbreviationBonus   float64

	PipelineLockTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string

	KafkaBrokers []string
	KafkaTopic   string
}

// LoadSettings reads all recognized environment variables, applying defaults
// for everything optional. Callers that need .env support must load it before
// calling this (the CLI does).
func LoadSettings() Settings {
	return Settings{
		databaseURL:   GetEnvStr("DATABASE_URL", ""), // private for obvious reasons
		DBPoolSize:    GetEnvInt("DB_POOL_SIZE", defaultDBPoolSize),
		DBMaxOverflow: GetEnvInt("DB_MAX_OVERFLOW", defaultDBMaxOverflow),

		ScrapeHeadless:       GetEnvBool("SCRAPE_HEADLESS", true),
		ScrapeVirtualDisplay: GetEnvBool("SCRAPE_VIRTUAL_DISPLAY", false),
		ScrapeTimeout:        GetEnvDuration("SCRAPE_TIMEOUT", defaultScrapeTimeout),
		ScrapeDelayMin:       GetEnvDuration("SCRAPE_DELAY_MIN", defaultScrapeDelayMin),
		ScrapeDelayMax:       GetEnvDuration("SCRAPE_DELAY_MAX", defaultScrapeDelayMax),
		ScrapeMaxRetries:     GetEnvInt("SCRAPE_MAX_RETRIES", defaultScrapeMaxRetries),

		ExactMatchThreshold: clamp01(GetEnvFloat("PLAYER_EXACT_MATCH_THRESHOLD", defaultExactMatchThreshold)),
		SuggestionThreshold: clamp01(GetEnvFloat("PLAYER_SUGGESTION_THRESHOLD", defaultSuggestionThreshold)),
		AbbreviationBonus:   clamp01(GetEnvFloat("PLAYER_ABBREVIATION_BONUS", defaultAbbreviationBonus)),

		PipelineLockTimeout: GetEnvDuration("PIPELINE_LOCK_TIMEOUT", defaultPipelineLockTimeout),

		LogLevel:  GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat: GetEnvStr("LOG_FORMAT", "json"),

		KafkaBrokers: ParseCommaSeparatedList(GetEnvStr("EVENTS_KAFKA_BROKERS", "")),
		KafkaTopic:   GetEnvStr("EVENTS_KAFKA_TOPIC", "matchpoint.events"),
	}
}

// Validate checks invariants that cannot be repaired by defaulting. A non-nil
// error here is a configuration error (process exit code 2).
func (s Settings) Validate() error {
	if strings.TrimSpace(s.databaseURL) == "" {
		return ErrMissingDatabaseURL
	}

	if s.DBPoolSize < 1 || s.DBMaxOverflow < 0 {
		return ErrInvalidPoolSize
	}

	if s.ScrapeDelayMin > s.ScrapeDelayMax {
		return fmt.Errorf("%w: min=%s max=%s", ErrInvalidDelayWindow, s.ScrapeDelayMin, s.ScrapeDelayMax)
	}

	return nil
}

// DatabaseURL exposes the connection string to the storage layer. Use
// MaskDatabaseURL for anything that ends up in logs.
func (s Settings) DatabaseURL() string {
	return s.databaseURL
}

// WithDatabaseURL returns a copy of the settings with the database URL
// replaced. Used by tests and by integration harnesses that provision
// throwaway databases.
func (s Settings) WithDatabaseURL(url string) Settings {
	s.databaseURL = url

	return s
}

// MaskDatabaseURL returns a masked databaseURL safe for logging.
func (s Settings) MaskDatabaseURL() string {
	if s.databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(s.databaseURL, "://")
	if schemeEnd == -1 {
		return s.databaseURL
	}

	afterScheme := s.databaseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		// No @ found, no userinfo
		return s.databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		// No password
		return s.databaseURL
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		return s.databaseURL
	}

	scheme := s.databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
