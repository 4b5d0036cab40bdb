package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// sessionSet holds one lazily opened scraper session per tour for a single
// worker. Sessions are expensive (a browser, a warmed HTTP client), so they
// are reused across tasks and closed when the worker exits. Not safe for
// concurrent use; each worker owns its own set.
type sessionSet struct {
	factory  scrape.Factory
	delayMin time.Duration
	delayMax time.Duration

	sessions map[tennis.Tour]scrape.Scraper
	pacers   map[tennis.Tour]*scrape.Pacer
}

func newSessionSet(factory scrape.Factory, delayMin, delayMax time.Duration) *sessionSet {
	return &sessionSet{
		factory:  factory,
		delayMin: delayMin,
		delayMax: delayMax,
		sessions: make(map[tennis.Tour]scrape.Scraper),
		pacers:   make(map[tennis.Tour]*scrape.Pacer),
	}
}

func (s *sessionSet) get(ctx context.Context, tour tennis.Tour) (scrape.Scraper, error) {
	if session, ok := s.sessions[tour]; ok {
		return session, nil
	}

	session, err := s.factory(ctx, tour)
	if err != nil {
		return nil, err
	}

	s.sessions[tour] = session
	s.pacers[tour] = scrape.NewPacer(s.delayMin, s.delayMax)

	return session, nil
}

// pace blocks until the tour's delay window allows the next request.
func (s *sessionSet) pace(ctx context.Context, tour tennis.Tour) error {
	pacer, ok := s.pacers[tour]
	if !ok {
		return nil
	}

	return pacer.Wait(ctx)
}

// Close releases every open session. Close errors are logged, not returned:
// the worker is already on its way out.
func (s *sessionSet) Close(logger *slog.Logger) {
	for tour, session := range s.sessions {
		if err := session.Close(); err != nil {
			logger.Warn("close scraper session",
				slog.String("tour", string(tour)),
				slog.String("error", err.Error()),
			)
		}
	}
}
