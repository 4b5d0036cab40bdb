package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/matchpoint-io/matchpoint/internal/config"
	"github.com/matchpoint-io/matchpoint/internal/elo"
	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/maintenance"
	"github.com/matchpoint-io/matchpoint/internal/pipeline"
	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/storage"
)

// errUsage marks command-line misuse so main can exit with the
// configuration-error code.
var errUsage = errors.New("invalid usage")

// app carries the process-wide wiring: settings loaded once, a shared logger,
// and a lazily opened database connection. Every subcommand builds its
// components through here.
type app struct {
	settings config.Settings
	logger   *slog.Logger

	conn *storage.Connection
}

// initialize loads .env (when present), the settings, and the logger. Called
// from the root command's PersistentPreRun, before any subcommand runs.
func (a *app) initialize() {
	_ = godotenv.Load()

	a.settings = config.LoadSettings()
	a.logger = newLogger(a.settings)
}

func newLogger(settings config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.LogLevel}

	if settings.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// connect validates the settings and opens the shared connection once.
func (a *app) connect() (*storage.Connection, error) {
	if a.conn != nil {
		return a.conn, nil
	}

	if err := a.settings.Validate(); err != nil {
		return nil, err
	}

	conn, err := storage.NewConnection(storage.NewConfig(a.settings))
	if err != nil {
		return nil, err
	}

	a.conn = conn

	return conn, nil
}

func (a *app) close() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func (a *app) playerStore() (*storage.PersistentPlayerStore, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewPersistentPlayerStore(conn)
}

func (a *app) matchStore() (*storage.PersistentMatchStore, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewPersistentMatchStore(conn)
}

func (a *app) eloStore() (*storage.PersistentEloStore, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewPersistentEloStore(conn)
}

func (a *app) checkpoints() (*storage.PersistentCheckpointStore, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewPersistentCheckpointStore(conn)
}

func (a *app) locker() (*storage.AdvisoryLocker, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewAdvisoryLocker(conn, a.logger)
}

func (a *app) pipelineStore() (*storage.PersistentPipelineStore, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	return storage.NewPersistentPipelineStore(conn)
}

func (a *app) queueManager() (*queue.Manager, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewPersistentQueueStore(conn, a.logger)
	if err != nil {
		return nil, err
	}

	return queue.NewManager(store, a.logger), nil
}

func (a *app) resolver() (*identity.Service, *storage.PersistentPlayerStore, error) {
	players, err := a.playerStore()
	if err != nil {
		return nil, nil, err
	}

	service := identity.NewService(players, identity.Config{
		AutoMatchThreshold:  a.settings.ExactMatchThreshold,
		SuggestionThreshold: a.settings.SuggestionThreshold,
		AbbreviationBonus:   a.settings.AbbreviationBonus,
	}, a.logger)

	return service, players, nil
}

func (a *app) ingestor() (*ingest.Ingestor, error) {
	resolver, _, err := a.resolver()
	if err != nil {
		return nil, err
	}

	matches, err := a.matchStore()
	if err != nil {
		return nil, err
	}

	return ingest.NewIngestor(matches, matches, resolver, a.logger), nil
}

func (a *app) updater() (*elo.Updater, error) {
	store, err := a.eloStore()
	if err != nil {
		return nil, err
	}

	checkpoints, err := a.checkpoints()
	if err != nil {
		return nil, err
	}

	return elo.NewUpdater(store, checkpoints, a.logger), nil
}

func (a *app) maintenanceService() (*maintenance.Service, error) {
	resolver, players, err := a.resolver()
	if err != nil {
		return nil, err
	}

	return maintenance.NewService(players, resolver, maintenance.Config{
		AbbreviationBonus: a.settings.AbbreviationBonus,
	}, a.logger), nil
}

func (a *app) scraperFactory() scrape.Factory {
	return scrape.NewFactory(scrape.SessionOptions{
		Headless:       a.settings.ScrapeHeadless,
		VirtualDisplay: a.settings.ScrapeVirtualDisplay,
		Timeout:        a.settings.ScrapeTimeout,
	})
}

// exitCode classifies an error for the process exit status: configuration
// problems exit 2, everything else 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	configErrors := []error{
		errUsage,
		config.ErrMissingDatabaseURL,
		config.ErrInvalidPoolSize,
		config.ErrInvalidDelayWindow,
		elo.ErrNoActiveParameterSet,
		elo.ErrInvalidParams,
		pipeline.ErrUnknownStage,
		pipeline.ErrNoStages,
		storage.ErrParamsNotFound,
	}

	for _, configErr := range configErrors {
		if errors.Is(err, configErr) {
			return 2
		}
	}

	return 1
}
