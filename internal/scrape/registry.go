package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// ErrNoScraper is returned when no extraction implementation is registered
// for a tour. Site scrapers live outside this module and register themselves
// at init, the way database/sql drivers do.
var ErrNoScraper = errors.New("no scraper registered for tour")

// SessionOptions carries the browser/session knobs a scraper constructor
// receives, straight from the SCRAPE_* settings.
type SessionOptions struct {
	Headless       bool
	VirtualDisplay bool
	Timeout        time.Duration
}

// Constructor builds one scraper session for a tour.
type Constructor func(ctx context.Context, tour tennis.Tour, opts SessionOptions) (Scraper, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[tennis.Tour]Constructor)
)

// Register installs a scraper constructor for a tour, replacing any earlier
// registration. Typically called from an implementation package's init.
func Register(tour tennis.Tour, build Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[tour] = build
}

// RegisteredTours lists the tours that currently have a scraper.
func RegisteredTours() []tennis.Tour {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tours := make([]tennis.Tour, 0, len(registry))
	for tour := range registry {
		tours = append(tours, tour)
	}

	return tours
}

// NewFactory returns a Factory backed by the registry. Requesting a tour
// without a registered constructor yields ErrNoScraper.
func NewFactory(opts SessionOptions) Factory {
	return func(ctx context.Context, tour tennis.Tour) (Scraper, error) {
		registryMu.RLock()
		build, ok := registry[tour]
		registryMu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoScraper, tour)
		}

		return build(ctx, tour, opts)
	}
}
