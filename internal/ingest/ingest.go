// Package ingest writes scraped draws, schedules, and results into match
// rows. The three ingestors are idempotent over the deterministic match
// external ID: re-running any of them on the same input creates zero new
// rows and only enriches monotonically. Players resolve through the identity
// service; names queued for review skip their entry without failing the run.
package ingest

import (
	"context"
	"errors"

	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

const (
	// maxErrorExamples caps how many per-record error strings a run keeps
	// for the metrics payload.
	maxErrorExamples = 10
)

var (
	// ErrMatchNotFound is returned when a match lookup misses.
	ErrMatchNotFound = errors.New("match not found")

	// ErrTournamentNotFound is returned when a tournament lookup misses.
	ErrTournamentNotFound = errors.New("tournament not found")
)

// TournamentStore persists tournament identities and editions.
type TournamentStore interface {
	// UpsertTournament creates or refreshes a tournament identified by
	// (code, tour, gender) and returns its row ID.
	UpsertTournament(ctx context.Context, tournament *tennis.Tournament) (int64, error)

	// UpsertEdition creates or refreshes an edition identified by
	// (tournament, year) and returns its row ID.
	UpsertEdition(ctx context.Context, edition *tennis.TournamentEdition) (int64, error)
}

// MatchStore persists match rows for the ingestors.
type MatchStore interface {
	// MatchByExternalID fetches one match. Returns ErrMatchNotFound on miss.
	MatchByExternalID(ctx context.Context, externalID string) (*tennis.Match, error)

	// FindMatch looks a match up by its semantic identity when the
	// reconstructed external ID misses: edition, round, and the two
	// player IDs in either order.
	FindMatch(ctx context.Context, editionID int64, round tennis.Round, playerAID, playerBID int64) (*tennis.Match, error)

	// CreateMatch inserts a match and returns its row ID.
	CreateMatch(ctx context.Context, match *tennis.Match) (int64, error)

	// UpdateMatch persists every mutable column of an existing match.
	UpdateMatch(ctx context.Context, match *tennis.Match) error

	// CurrentRatings returns the current Elo state rating per player for
	// those players that have one. Used for the elo_pre_* snapshot on
	// pending matches.
	CurrentRatings(ctx context.Context, playerIDs []int64) (map[int64]float64, error)
}

// PlayerResolver is the slice of the identity service the ingestors need.
type PlayerResolver interface {
	FindOrQueuePlayer(
		ctx context.Context,
		name string,
		source tennis.Source,
		externalID string,
		matchContext *identity.MatchContext,
	) (identity.Resolution, error)
}

// DrawResult counts what a draw ingestion run did.
type DrawResult struct {
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Byes          int      `json:"byes"`
	Propagations  int      `json:"propagations"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorExamples []string `json:"errorExamples,omitempty"`
}

// ScheduleResult counts what a schedule ingestion run did.
type ScheduleResult struct {
	Updated       int      `json:"updated"`
	Missing       int      `json:"missing"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorExamples []string `json:"errorExamples,omitempty"`
}

// ResultsResult counts what a results ingestion run did.
type ResultsResult struct {
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Duplicates    int      `json:"duplicates"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorExamples []string `json:"errorExamples,omitempty"`
}

// errorSampler counts errors and keeps the first few messages.
type errorSampler struct {
	count    int
	examples []string
}

func (e *errorSampler) record(err error) {
	e.count++

	if len(e.examples) < maxErrorExamples {
		e.examples = append(e.examples, err.Error())
	}
}
