// Package maintenance holds the batch tools that repair the player graph
// after ingestion has done its best: duplicate detection and merging,
// mixed-gender splits, and merge-log recovery. Every operation works on a
// snapshot of the graph and reports what it did (or would do, under dry run).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

const (
	// DefaultDuplicateThreshold is the pairwise similarity above which two
	// players are reported as duplicates.
	DefaultDuplicateThreshold = 0.95

	// DefaultMergeLogLimit bounds how far back merge recovery scans.
	DefaultMergeLogLimit = 1000
)

// SourceMergeRecovery tags aliases restored from the merge log, so a later
// audit can tell them apart from scraped ones.
const SourceMergeRecovery = tennis.Source("merge_recovery")

// PlayerSnapshot is one player's view for maintenance decisions: every alias,
// the external-ID count, and how the player's matches split by gender.
type PlayerSnapshot struct {
	ID              int64
	CanonicalName   string
	Aliases         []string
	ExternalIDCount int
	MatchCount      int
	MenMatches      int
	WomenMatches    int
	CreatedAt       time.Time
}

// MajorityGender returns the gender most of the player's matches belong to,
// or "" when the player has no matches to infer from.
func (p PlayerSnapshot) MajorityGender() tennis.Gender {
	switch {
	case p.MenMatches == 0 && p.WomenMatches == 0:
		return ""
	case p.MenMatches >= p.WomenMatches:
		return tennis.GenderMen
	default:
		return tennis.GenderWomen
	}
}

// Store is the read surface maintenance needs, plus the alias write used by
// merge recovery. Implemented by storage.PersistentPlayerStore and
// storage.MemoryStore.
type Store interface {
	// PlayerSnapshots returns every player with aliases and per-gender
	// match counts, ordered by ID.
	PlayerSnapshots(ctx context.Context) ([]PlayerSnapshot, error)

	// PlayerMatchIDs returns the IDs of the player's matches played in
	// tournaments of the given gender.
	PlayerMatchIDs(ctx context.Context, playerID int64, gender tennis.Gender) ([]int64, error)

	// PlayerByAlias fetches the player owning an exact normalized alias.
	PlayerByAlias(ctx context.Context, alias string) (*tennis.Player, error)

	// AddAlias records a normalized alias for a player.
	AddAlias(ctx context.Context, playerID int64, alias string, source tennis.Source) error

	// MergeLog returns the most recent merge-log rows, newest first.
	MergeLog(ctx context.Context, limit int) ([]identity.MergeRecord, error)
}

// Identity is the slice of the identity service maintenance mutates through.
type Identity interface {
	MergePlayers(ctx context.Context, keepID, mergeID int64) (*identity.MergeStats, error)
	SplitPlayer(ctx context.Context, playerID int64, newName string, matchIDs []int64) (int64, error)
	Player(ctx context.Context, id int64) (*tennis.Player, error)
}

// Config tunes the maintenance service.
type Config struct {
	// DuplicateThreshold is the report threshold for pairwise similarity.
	DuplicateThreshold float64

	// AbbreviationBonus feeds the name comparator, matching the resolver's
	// configured bonus so both see names the same way.
	AbbreviationBonus float64
}

// Service runs the maintenance operations.
type Service struct {
	store    Store
	identity Identity
	compare  *names.Comparator
	logger   *slog.Logger

	threshold float64
}

// NewService wires a maintenance service.
func NewService(store Store, ident Identity, cfg Config, logger *slog.Logger) *Service {
	threshold := cfg.DuplicateThreshold
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}

	return &Service{
		store:     store,
		identity:  ident,
		compare:   names.NewComparator(cfg.AbbreviationBonus),
		logger:    logger,
		threshold: threshold,
	}
}
