package worker_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-io/matchpoint/internal/events"
	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/queue"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/storage"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
	"github.com/matchpoint-io/matchpoint/internal/worker"
)

// fakeScraper serves canned results and counts how often each tournament was
// scraped so the tests can assert exactly-once processing.
type fakeScraper struct {
	tour tennis.Tour

	mu        sync.Mutex
	scrapes   map[string]int
	enriched  []string
	failCodes map[string]error
	closed    bool
}

func (f *fakeScraper) Tour() tennis.Tour { return f.tour }

func (f *fakeScraper) DiscoverTournaments(context.Context, int) ([]scrape.ScrapedTournament, error) {
	return nil, nil
}

func (f *fakeScraper) ScrapeTournament(_ context.Context, params scrape.TaskParams) (*scrape.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scrapes[params.TournamentCode]++

	if err, ok := f.failCodes[params.TournamentCode]; ok {
		return nil, err
	}

	// An empty result is a valid scrape; ingestion has nothing to do.
	return &scrape.Result{
		Tournament: scrape.ScrapedTournament{
			Code:   params.TournamentCode,
			Tour:   f.tour,
			Gender: tennis.GenderMen,
			Level:  tennis.LevelTour250,
			Year:   params.Year,
		},
	}, nil
}

func (f *fakeScraper) ScrapeFixtures(context.Context, scrape.TaskParams) ([]scrape.ScrapedFixture, error) {
	return nil, nil
}

func (f *fakeScraper) ScrapeDraw(context.Context, scrape.TaskParams) ([]scrape.ScrapedDrawEntry, error) {
	return nil, nil
}

func (f *fakeScraper) EnrichPlayer(_ context.Context, externalID string) (*scrape.PlayerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enriched = append(f.enriched, externalID)

	height := 183

	return &scrape.PlayerProfile{
		Nationality: "NOR",
		HeightCM:    &height,
		Plays:       "right",
	}, nil
}

func (f *fakeScraper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeScraper) scrapeCount(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.scrapes[code]
}

// scraperRegistry hands every worker the same fake per tour and counts
// factory invocations.
type scraperRegistry struct {
	mu       sync.Mutex
	scrapers map[tennis.Tour]*fakeScraper
	opened   int
}

func newScraperRegistry() *scraperRegistry {
	return &scraperRegistry{scrapers: make(map[tennis.Tour]*fakeScraper)}
}

func (r *scraperRegistry) factory(_ context.Context, tour tennis.Tour) (scrape.Scraper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opened++

	if scraper, ok := r.scrapers[tour]; ok {
		return scraper, nil
	}

	scraper := &fakeScraper{
		tour:      tour,
		scrapes:   make(map[string]int),
		failCodes: make(map[string]error),
	}
	r.scrapers[tour] = scraper

	return scraper, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recordingEmitter) Close() error { return nil }

func (r *recordingEmitter) countByType(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, event := range r.events {
		if event.Type == eventType {
			count++
		}
	}

	return count
}

type poolFixture struct {
	pool     *worker.Pool
	manager  *queue.Manager
	store    *storage.MemoryStore
	registry *scraperRegistry
	emitter  *recordingEmitter
	service  *identity.Service
}

func newPoolFixture(t *testing.T, opts worker.Options) *poolFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	store := storage.NewMemoryStore()
	queueStore := storage.NewMemoryQueueStore()
	manager := queue.NewManager(queueStore, logger)

	service := identity.NewService(store, identity.Config{
		AutoMatchThreshold:  0.98,
		SuggestionThreshold: 0.85,
		AbbreviationBonus:   0.15,
	}, logger)

	ingestor := ingest.NewIngestor(store, store, service, logger)

	registry := newScraperRegistry()
	emitter := &recordingEmitter{}

	pool := worker.NewPool(manager, ingestor, store, registry.factory, emitter, logger, opts)

	return &poolFixture{
		pool:     pool,
		manager:  manager,
		store:    store,
		registry: registry,
		emitter:  emitter,
		service:  service,
	}
}

func enqueueTournaments(t *testing.T, manager *queue.Manager, count int) []string {
	t.Helper()

	codes := make([]string, 0, count)

	for i := 0; i < count; i++ {
		code := fmt.Sprintf("event-%02d", i)
		codes = append(codes, code)

		_, existing, err := manager.Enqueue(context.Background(), queue.TaskCurrentTournament,
			scrape.TaskParams{Tour: tennis.TourATP, TournamentCode: code, Year: 2026},
			queue.PriorityHigh,
		)
		require.NoError(t, err)
		require.False(t, existing)
	}

	return codes
}

func TestPool_DrainsQueueExactlyOnce(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 3, Drain: true})

	codes := enqueueTournaments(t, fixture.manager, 10)

	metrics, err := fixture.pool.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), metrics.Completed)
	assert.Zero(t, metrics.Failed)

	scraper := fixture.registry.scrapers[tennis.TourATP]
	require.NotNil(t, scraper)

	for _, code := range codes {
		assert.Equal(t, 1, scraper.scrapeCount(code), "tournament %s should scrape exactly once", code)
	}

	stats, err := fixture.manager.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.ByStatus[queue.StatusCompleted])
	assert.Zero(t, stats.Ready)

	assert.Equal(t, 10, fixture.emitter.countByType(events.TaskCompleted))
	assert.Equal(t, 3, fixture.emitter.countByType(events.WorkerStopped))
}

func TestPool_SessionsReusedAcrossTasks(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, Drain: true})

	enqueueTournaments(t, fixture.manager, 5)

	_, err := fixture.pool.Run(context.Background())
	require.NoError(t, err)

	// One worker, one tour: the factory runs once, the session closes once.
	assert.Equal(t, 1, fixture.registry.opened)
	assert.True(t, fixture.registry.scrapers[tennis.TourATP].closed)
}

func TestPool_FailedTaskGoesToRetry(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, Drain: true})

	// Seed the fake before the run so the first scrape of the bad code fails.
	scraper, err := fixture.registry.factory(context.Background(), tennis.TourATP)
	require.NoError(t, err)
	scraper.(*fakeScraper).failCodes["event-00"] = errors.New("site timed out")
	fixture.registry.opened = 0

	enqueueTournaments(t, fixture.manager, 2)

	metrics, err := fixture.pool.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.Completed)
	assert.Equal(t, int64(1), metrics.Failed)

	stats, err := fixture.manager.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByStatus[queue.StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[queue.StatusRetry], "first failure should schedule a retry")

	assert.Equal(t, 1, fixture.emitter.countByType(events.TaskFailed))
}

func TestPool_ReclaimsAbandonedLeases(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, Drain: true, StaleLease: time.Nanosecond})
	ctx := context.Background()

	codes := enqueueTournaments(t, fixture.manager, 2)

	// A previous worker claimed a task and died without acknowledging it.
	abandoned, err := fixture.manager.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, codes[0], abandoned.Params.TournamentCode)

	time.Sleep(time.Millisecond)

	metrics, err := fixture.pool.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics.Completed)

	stats, err := fixture.manager.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[queue.StatusCompleted])
	assert.Zero(t, stats.ByStatus[queue.StatusInProgress])

	scraper := fixture.registry.scrapers[tennis.TourATP]
	require.NotNil(t, scraper)

	for _, code := range codes {
		assert.Equal(t, 1, scraper.scrapeCount(code), "tournament %s should scrape exactly once", code)
	}
}

func TestPool_MaxTasksBoundsTheRun(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 2, Drain: true, MaxTasks: 3})

	enqueueTournaments(t, fixture.manager, 10)

	metrics, err := fixture.pool.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), metrics.Completed)

	stats, err := fixture.manager.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Ready)
}

func TestPool_EnrichmentTaskFillsDemographics(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, Drain: true})
	ctx := context.Background()

	playerID, err := fixture.service.CreatePlayer(ctx, "Casper Ruud", tennis.SourceATP, "r001", "")
	require.NoError(t, err)

	_, _, err = fixture.manager.Enqueue(ctx, queue.TaskPlayerEnrichment,
		scrape.TaskParams{Tour: tennis.TourATP, PlayerID: playerID},
		queue.PriorityLow,
	)
	require.NoError(t, err)

	metrics, err := fixture.pool.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), metrics.Completed)

	player, err := fixture.service.Player(ctx, playerID)
	require.NoError(t, err)

	assert.Equal(t, "NOR", player.Nationality)
	require.NotNil(t, player.HeightCM)
	assert.Equal(t, 183, *player.HeightCM)
	assert.Equal(t, "right", player.Plays)

	scraper := fixture.registry.scrapers[tennis.TourATP]
	assert.Equal(t, []string{"r001"}, scraper.enriched)
}

func TestPool_EnrichmentWithoutExternalIDFails(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, Drain: true})
	ctx := context.Background()

	// The player exists but carries no WTA ID, so a WTA enrichment task has
	// nothing to scrape by.
	playerID, err := fixture.service.CreatePlayer(ctx, "Casper Ruud", tennis.SourceATP, "r001", "")
	require.NoError(t, err)

	_, _, err = fixture.manager.Enqueue(ctx, queue.TaskPlayerEnrichment,
		scrape.TaskParams{Tour: tennis.TourWTA, PlayerID: playerID},
		queue.PriorityLow,
	)
	require.NoError(t, err)

	metrics, err := fixture.pool.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.Failed)
}

func TestPool_CancellationStopsCleanly(t *testing.T) {
	fixture := newPoolFixture(t, worker.Options{Workers: 1, IdleWait: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		// No drain: the worker idles until cancelled.
		_, err := fixture.pool.Run(ctx)
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestDashboard_LineModePrintsTransitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.out")

	file, err := os.Create(path)
	require.NoError(t, err)

	dashboard := worker.NewDashboard(file)

	dashboard.Emit(events.Event{
		Type:     events.TaskStarted,
		WorkerID: "worker-1",
		TaskID:   7,
		TaskType: "current_tournament",
		Tour:     "atp",
	})
	dashboard.Emit(events.Event{Type: events.WorkerIdle, WorkerID: "worker-1"})

	require.NoError(t, dashboard.Close())
	require.NoError(t, file.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	output := string(content)
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "#7 current_tournament atp")
	assert.Contains(t, output, "idle")
	assert.NotContains(t, output, "\x1b[", "regular files must not get ANSI control sequences")
}
