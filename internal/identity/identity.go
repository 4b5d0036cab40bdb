// Package identity resolves scraped player names across tour sites onto
// canonical player rows. The resolver tries four strategies in order (exact
// external ID, exact alias, fuzzy similarity, abbreviated-name fallback) and
// defers everything ambiguous to a human review queue. The package also owns
// the write operations over player identity: create, merge, split, link, and
// review resolution.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

const (
	// MaxSuggestions caps how many candidate players a review item carries.
	MaxSuggestions = 3
)

var (
	// ErrPlayerNotFound is returned when a player lookup misses.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrReviewItemNotFound is returned when a review queue lookup misses.
	ErrReviewItemNotFound = errors.New("review item not found")

	// ErrSamePlayer is returned when a merge names the same row twice.
	ErrSamePlayer = errors.New("cannot merge a player into itself")

	// ErrInvalidReviewAction is returned for unknown review resolutions.
	ErrInvalidReviewAction = errors.New("invalid review action")

	// ErrReviewAlreadyResolved is returned when resolving a non-pending item.
	ErrReviewAlreadyResolved = errors.New("review item already resolved")
)

// ResolveStatus describes how FindOrQueuePlayer settled a name.
type ResolveStatus string

// Resolution outcomes.
const (
	StatusMatched ResolveStatus = "matched"
	StatusCreated ResolveStatus = "created"
	StatusQueued  ResolveStatus = "queued"
)

// Resolution is the outcome of a FindOrQueuePlayer call. PlayerID is zero
// when the name was queued for review; ReviewID is set only in that case.
type Resolution struct {
	PlayerID int64
	Status   ResolveStatus
	ReviewID int64
}

// MatchContext ties a queued name back to the match it was scraped from, so
// a reviewer sees where the unknown name appeared.
type MatchContext struct {
	TournamentCode string       `json:"tournamentCode,omitempty"`
	Year           int          `json:"year,omitempty"`
	Round          tennis.Round `json:"round,omitempty"`
	Opponent       string       `json:"opponent,omitempty"`
}

// Suggestion is one candidate player attached to a review item.
type Suggestion struct {
	PlayerID   int64   `json:"playerId"`
	Confidence float64 `json:"confidence"`
}

// ReviewStatus tracks a review item's resolution state.
type ReviewStatus string

// Review item states.
const (
	ReviewPending   ReviewStatus = "pending"
	ReviewMatched   ReviewStatus = "matched"
	ReviewNewPlayer ReviewStatus = "new_player"
	ReviewIgnored   ReviewStatus = "ignored"
)

// ReviewAction is a human decision over a pending review item.
type ReviewAction string

// Review actions.
const (
	ActionMatch  ReviewAction = "match"  // attach the name to an existing player
	ActionCreate ReviewAction = "create" // the name is a genuinely new player
	ActionIgnore ReviewAction = "ignore" // noise, drop it
)

// ReviewItem is one deferred identity decision.
type ReviewItem struct {
	ID               int64         `json:"id"`
	ScrapedName      string        `json:"scrapedName"`
	Source           tennis.Source `json:"source"`
	ExternalID       string        `json:"externalId,omitempty"`
	MatchContext     *MatchContext `json:"matchContext,omitempty"`
	Suggestions      []Suggestion  `json:"suggestions,omitempty"`
	Status           ReviewStatus  `json:"status"`
	ResolvedPlayerID *int64        `json:"resolvedPlayerId,omitempty"`
	ResolvedBy       string        `json:"resolvedBy,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	ResolvedAt       *time.Time    `json:"resolvedAt,omitempty"`
}

// AliasEntry is one (player, alias) pair surfaced by candidate queries.
type AliasEntry struct {
	PlayerID int64
	Alias    string
}

// MergeStats summarizes what a merge migrated before deleting the row.
type MergeStats struct {
	AliasesMoved        int
	AliasesDeduplicated int
	MatchesMoved        int
	SuggestionsMoved    int
}

// MergeRecord is one audit-log row written by a merge, consumed by
// merge-recovery maintenance.
type MergeRecord struct {
	ID                  int64
	KeptPlayerID        int64
	MergedPlayerID      int64
	MergedCanonicalName string
	MergedExternalIDs   map[string]string
	AliasesMoved        int
	MatchesMoved        int
	CreatedAt           time.Time
}

// Store is the persistence contract for player identity. Implemented by
// storage.PersistentPlayerStore (PostgreSQL) and storage.MemoryStore (tests).
type Store interface {
	// PlayerByID fetches one player. Returns ErrPlayerNotFound on miss.
	PlayerByID(ctx context.Context, id int64) (*tennis.Player, error)

	// PlayerByExternalID fetches the player carrying the given tour-site ID.
	PlayerByExternalID(ctx context.Context, source tennis.Source, externalID string) (*tennis.Player, error)

	// PlayerByAlias fetches the player owning an exact normalized alias,
	// regardless of which source recorded it.
	PlayerByAlias(ctx context.Context, alias string) (*tennis.Player, error)

	// CandidateAliases returns alias entries worth scoring against the
	// normalized name. PostgreSQL accelerates this with a trigram index
	// when pg_trgm is installed; otherwise it is a full alias scan.
	CandidateAliases(ctx context.Context, normalized string) ([]AliasEntry, error)

	// AliasesByLastName returns alias entries whose extracted last name
	// equals the given one. Used by the abbreviated-name fallback.
	AliasesByLastName(ctx context.Context, lastName string) ([]AliasEntry, error)

	// CreatePlayer inserts a player and, when alias is non-empty, its
	// first alias row in one transaction. Returns the new player ID.
	CreatePlayer(ctx context.Context, player *tennis.Player, alias string, source tennis.Source) (int64, error)

	// AddAlias records a normalized alias for a player. Adding an alias
	// that already exists for that (alias, source) pair is a no-op.
	AddAlias(ctx context.Context, playerID int64, alias string, source tennis.Source) error

	// LinkExternalID sets the per-source external ID column when it is
	// currently empty. Linking an already-set column is a no-op: external
	// IDs are never reassigned.
	LinkExternalID(ctx context.Context, playerID int64, source tennis.Source, externalID string) error

	// InsertReviewItem queues a deferred identity decision.
	InsertReviewItem(ctx context.Context, item *ReviewItem) (int64, error)

	// ReviewItemByID fetches one review item.
	ReviewItemByID(ctx context.Context, id int64) (*ReviewItem, error)

	// PendingReviewItems lists unresolved items, oldest first.
	PendingReviewItems(ctx context.Context, limit int) ([]*ReviewItem, error)

	// UpdateReviewItem persists a resolution.
	UpdateReviewItem(ctx context.Context, item *ReviewItem) error

	// MergePlayers migrates every reference from mergeID onto keepID in a
	// single transaction and deletes the merged row: match sides and
	// winners, aliases (deduplicating (alias, source) collisions), review
	// suggestions, absent external IDs and demographics. It clears Elo
	// state for both players, flags every affected match for recompute,
	// and writes a merge-log row.
	MergePlayers(ctx context.Context, keepID, mergeID int64) (*MergeStats, error)

	// SplitPlayer creates newPlayer, moves the given match rows from
	// playerID onto it, clears both players' Elo state, and flags the
	// moved matches for recompute. Returns the new player ID.
	SplitPlayer(ctx context.Context, playerID int64, newPlayer *tennis.Player, matchIDs []int64) (int64, error)

	// MergeLog returns the most recent merge-log rows, newest first.
	MergeLog(ctx context.Context, limit int) ([]MergeRecord, error)
}
