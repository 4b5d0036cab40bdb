// Package tennis provides the core domain models shared by ingestion, the
// identity service, and the Elo engine: tours, tournaments, matches, players,
// round ordering, score structures, and the temporal ordering key.
package tennis

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingWinner is returned when a terminal match has no winner.
	ErrMissingWinner = errors.New("terminal match requires a winner")

	// ErrWinnerNotParticipant is returned when the winner is neither player A nor player B.
	ErrWinnerNotParticipant = errors.New("winner must be one of the match participants")

	// ErrMissingScore is returned when a terminal match has an empty score.
	ErrMissingScore = errors.New("terminal match requires a score")

	// ErrInvalidStatus is returned when a match carries an unknown status.
	ErrInvalidStatus = errors.New("invalid match status")

	// ErrInvalidRound is returned when a match carries an unknown round code.
	ErrInvalidRound = errors.New("invalid round code")
)

// Tour identifies the tournament circuit a tournament belongs to.
type Tour string

// Tournament circuits.
const (
	TourATP        Tour = "atp"
	TourChallenger Tour = "challenger"
	TourWTA        Tour = "wta"
	TourWTA125     Tour = "wta125"
	TourITF        Tour = "itf"
)

// IsValid returns true when the tour is one of the known circuits.
func (t Tour) IsValid() bool {
	switch t {
	case TourATP, TourChallenger, TourWTA, TourWTA125, TourITF:
		return true
	default:
		return false
	}
}

// Source returns the tour site that publishes this circuit's data:
// Challenger events live on the ATP site, WTA 125 on the WTA site.
func (t Tour) Source() Source {
	switch t {
	case TourATP, TourChallenger:
		return SourceATP
	case TourWTA, TourWTA125:
		return SourceWTA
	default:
		return SourceITF
	}
}

// Source identifies which tour site a piece of scraped data came from.
// It also selects the external-ID column on Player.
type Source string

// Scrape sources.
const (
	SourceATP Source = "atp"
	SourceWTA Source = "wta"
	SourceITF Source = "itf"
)

// IsValid returns true when the source is one of the known tour sites.
func (s Source) IsValid() bool {
	switch s {
	case SourceATP, SourceWTA, SourceITF:
		return true
	default:
		return false
	}
}

// Gender partitions tournaments (and thus rating pools and baselines).
type Gender string

// Tournament genders.
const (
	GenderMen   Gender = "men"
	GenderWomen Gender = "women"
)

// IsValid returns true for the two recognized values.
func (g Gender) IsValid() bool {
	return g == GenderMen || g == GenderWomen
}

// MatchStatus tracks a match through its lifecycle. Terminal statuses
// qualify the match for Elo processing.
type MatchStatus string

// Match lifecycle statuses.
const (
	StatusUpcoming   MatchStatus = "upcoming"
	StatusScheduled  MatchStatus = "scheduled"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusRetired    MatchStatus = "retired"
	StatusWalkover   MatchStatus = "walkover"
	StatusDefault    MatchStatus = "default"
)

// IsValid returns true when the status is one of the lifecycle states.
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusScheduled, StatusInProgress,
		StatusCompleted, StatusRetired, StatusWalkover, StatusDefault:
		return true
	default:
		return false
	}
}

// IsTerminal returns true when the match can no longer change outcome:
// completed, retired, walkover, or default. Only terminal matches enter the
// Elo computation.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRetired, StatusWalkover, StatusDefault:
		return true
	default:
		return false
	}
}

// Player is a canonical player identity. Exactly one logical person per row;
// external IDs are globally unique and never reassigned.
type Player struct {
	ID            int64      `json:"id"`
	CanonicalName string     `json:"canonicalName"`
	ATPID         *string    `json:"atpId,omitempty"`
	WTAID         *string    `json:"wtaId,omitempty"`
	ITFID         *string    `json:"itfId,omitempty"`
	Nationality   string     `json:"nationality,omitempty"` // IOC code
	BirthDate     *time.Time `json:"birthDate,omitempty"`
	HeightCM      *int       `json:"heightCm,omitempty"`
	Plays         string     `json:"plays,omitempty"` // right | left
	Backhand      string     `json:"backhand,omitempty"`
	TurnedPro     *int       `json:"turnedPro,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ExternalID returns the player's ID on the given tour site, or nil.
func (p *Player) ExternalID(source Source) *string {
	switch source {
	case SourceATP:
		return p.ATPID
	case SourceWTA:
		return p.WTAID
	case SourceITF:
		return p.ITFID
	default:
		return nil
	}
}

// SetExternalID sets the per-source external ID column. It does not
// overwrite an existing value: external IDs are never reassigned.
func (p *Player) SetExternalID(source Source, id string) bool {
	if id == "" || p.ExternalID(source) != nil {
		return false
	}

	switch source {
	case SourceATP:
		p.ATPID = &id
	case SourceWTA:
		p.WTAID = &id
	case SourceITF:
		p.ITFID = &id
	default:
		return false
	}

	return true
}

// ExternalIDCount returns how many tour-site IDs the player carries.
// Used by duplicate maintenance when picking the keep side of a merge.
func (p *Player) ExternalIDCount() int {
	count := 0

	for _, id := range []*string{p.ATPID, p.WTAID, p.ITFID} {
		if id != nil && *id != "" {
			count++
		}
	}

	return count
}

// PlayerAlias links a normalized name variant to a player. (alias, source)
// is globally unique, which forces merges to deduplicate before moving rows.
type PlayerAlias struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"playerId"`
	Alias     string    `json:"alias"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tournament is a stable tournament identity across years.
type Tournament struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"` // slug, e.g. "roland-garros"
	Tour    Tour   `json:"tour"`
	Gender  Gender `json:"gender"`
	Level   Level  `json:"level"`
	Surface string `json:"surface,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// TournamentEdition is one occurrence of a tournament in a given year.
type TournamentEdition struct {
	ID           int64      `json:"id"`
	TournamentID int64      `json:"tournamentId"`
	Year         int        `json:"year"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	Surface      string     `json:"surface,omitempty"`
}

// Match is one scheduled or played match. PlayerA/PlayerB ordering is
// positional, not semantic; external_id sorting makes the identity symmetric.
type Match struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId"`
	Source     Source `json:"source"`
	EditionID  int64  `json:"editionId"`
	Round      Round  `json:"round"`
	MatchNum   int    `json:"matchNum,omitempty"`

	PlayerAID int64  `json:"playerAId"`
	PlayerBID int64  `json:"playerBId"`
	SeedA     *int   `json:"seedA,omitempty"`
	SeedB     *int   `json:"seedB,omitempty"`
	WinnerID  *int64 `json:"winnerId,omitempty"`

	Score           string     `json:"score,omitempty"`
	ScoreStructured []SetScore `json:"scoreStructured,omitempty"`
	RetirementSet   *int       `json:"retirementSet,omitempty"`

	MatchDate          *time.Time `json:"matchDate,omitempty"`
	MatchDateEstimated bool       `json:"matchDateEstimated"`
	ScheduledDate      *time.Time `json:"scheduledDate,omitempty"`
	ScheduledDatetime  *time.Time `json:"scheduledDatetime,omitempty"`
	Court              string     `json:"court,omitempty"`
	DurationMinutes    *int       `json:"durationMinutes,omitempty"`

	Status        MatchStatus `json:"status"`
	TemporalOrder int64       `json:"temporalOrder"`

	EloPreA           *float64   `json:"eloPreA,omitempty"`
	EloPreB           *float64   `json:"eloPreB,omitempty"`
	EloPostA          *float64   `json:"eloPostA,omitempty"`
	EloPostB          *float64   `json:"eloPostB,omitempty"`
	EloParamsVersion  *int64     `json:"eloParamsVersion,omitempty"`
	EloProcessedAt    *time.Time `json:"eloProcessedAt,omitempty"`
	EloNeedsRecompute bool       `json:"eloNeedsRecompute"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the structural invariants every persisted match must hold.
func (m *Match) Validate() error {
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, m.Status)
	}

	if !m.Round.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRound, m.Round)
	}

	if m.Status.IsTerminal() {
		switch {
		case m.Status == StatusWalkover || m.Status == StatusDefault:
			// Walkovers and defaults carry a winner but no played score.
			if m.WinnerID == nil {
				return fmt.Errorf("%w: match %s", ErrMissingWinner, m.ExternalID)
			}
		case m.WinnerID == nil:
			return fmt.Errorf("%w: match %s", ErrMissingWinner, m.ExternalID)
		case m.Score == "":
			return fmt.Errorf("%w: match %s", ErrMissingScore, m.ExternalID)
		}

		if m.WinnerID != nil && *m.WinnerID != m.PlayerAID && *m.WinnerID != m.PlayerBID {
			return fmt.Errorf("%w: match %s winner %d", ErrWinnerNotParticipant, m.ExternalID, *m.WinnerID)
		}
	}

	return nil
}

// InvolvesPlayer reports whether the player appears on either side.
func (m *Match) InvolvesPlayer(playerID int64) bool {
	return m.PlayerAID == playerID || m.PlayerBID == playerID
}

// IsPending reports whether the match is still awaiting a result.
func (m *Match) IsPending() bool {
	return m.Status == StatusUpcoming || m.Status == StatusScheduled || m.Status == StatusInProgress
}
