// Package scrape defines the boundary between tour-site scrapers and the
// ingestion core: the value types scrapers produce, the task parameter
// schema queued for workers, and the Scraper interface each tour implements.
// Site-specific extraction lives outside this repository; everything here is
// what the core consumes.
package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// ScrapedPlayer is one side of a scraped pairing as the site presented it.
type ScrapedPlayer struct {
	Name        string `json:"name"`
	ExternalID  string `json:"externalId,omitempty"` // tour-site player ID, "" when absent
	Seed        *int   `json:"seed,omitempty"`
	Nationality string `json:"nationality,omitempty"`
	IsBye       bool   `json:"isBye,omitempty"`
}

// ScrapedTournament describes a tournament edition discovered on a tour site.
type ScrapedTournament struct {
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Tour      tennis.Tour   `json:"tour"`
	Gender    tennis.Gender `json:"gender"`
	Level     tennis.Level  `json:"level"`
	Surface   string        `json:"surface,omitempty"`
	City      string        `json:"city,omitempty"`
	Country   string        `json:"country,omitempty"`
	Year      int           `json:"year"`
	StartDate *time.Time    `json:"startDate,omitempty"`
	EndDate   *time.Time    `json:"endDate,omitempty"`
}

// ScrapedDrawEntry is one pairing from a tournament draw. Entries may cover
// rounds beyond the first when the site publishes a partially played draw.
type ScrapedDrawEntry struct {
	Round    tennis.Round  `json:"round"`
	Position int           `json:"position,omitempty"`
	PlayerA  ScrapedPlayer `json:"playerA"`
	PlayerB  ScrapedPlayer `json:"playerB"`
}

// HasBye reports whether either side of the pairing is a bye.
func (e ScrapedDrawEntry) HasBye() bool {
	return e.PlayerA.IsBye || e.PlayerB.IsBye
}

// ScrapedFixture is a scheduled match from an order-of-play page.
type ScrapedFixture struct {
	Round             tennis.Round  `json:"round"`
	PlayerA           ScrapedPlayer `json:"playerA"`
	PlayerB           ScrapedPlayer `json:"playerB"`
	ScheduledDate     *time.Time    `json:"scheduledDate,omitempty"`
	ScheduledDatetime *time.Time    `json:"scheduledDatetime,omitempty"`
	Court             string        `json:"court,omitempty"`
}

// ScrapedMatch is a finished (or abandoned) match from a results page. The
// score string is written winner-first; WinnerName names that side.
type ScrapedMatch struct {
	Round           tennis.Round  `json:"round"`
	MatchNum        int           `json:"matchNum,omitempty"`
	PlayerA         ScrapedPlayer `json:"playerA"`
	PlayerB         ScrapedPlayer `json:"playerB"`
	WinnerName      string        `json:"winnerName"`
	Score           string        `json:"score"`
	MatchDate       *time.Time    `json:"matchDate,omitempty"`
	DurationMinutes *int          `json:"durationMinutes,omitempty"`
}

// Result aggregates everything a single tournament scrape produced.
type Result struct {
	Tournament  ScrapedTournament  `json:"tournament"`
	DrawEntries []ScrapedDrawEntry `json:"drawEntries,omitempty"`
	Fixtures    []ScrapedFixture   `json:"fixtures,omitempty"`
	Matches     []ScrapedMatch     `json:"matches,omitempty"`
}

// PlayerProfile carries the demographic fields an enrichment scrape can fill.
type PlayerProfile struct {
	Nationality string     `json:"nationality,omitempty"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	HeightCM    *int       `json:"heightCm,omitempty"`
	Plays       string     `json:"plays,omitempty"`
	Backhand    string     `json:"backhand,omitempty"`
	TurnedPro   *int       `json:"turnedPro,omitempty"`
}

// TaskParams is the JSON payload of a scrape_queue task. Field order is
// fixed by the struct, which makes the marshaled form canonical: the same
// params always hash identically, and enqueue idempotency depends on that.
type TaskParams struct {
	Tour           tennis.Tour `json:"tour"`
	TournamentCode string      `json:"tournamentCode,omitempty"`
	Year           int         `json:"year,omitempty"`
	URL            string      `json:"url,omitempty"`
	PlayerID       int64       `json:"playerId,omitempty"` // enrichment tasks
}

// CanonicalJSON returns the deterministic serialized form of the params.
func (p TaskParams) CanonicalJSON() ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal task params: %w", err)
	}

	return payload, nil
}

// Hash returns the hex-encoded SHA-256 of the canonical JSON form, the
// queue's idempotency key component.
func (p TaskParams) Hash() (string, error) {
	payload, err := p.CanonicalJSON()
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(payload)

	return hex.EncodeToString(digest[:]), nil
}

// ParseTaskParams decodes a stored task payload.
func ParseTaskParams(payload []byte) (TaskParams, error) {
	var params TaskParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return TaskParams{}, fmt.Errorf("unmarshal task params: %w", err)
	}

	return params, nil
}

// Scraper is a long-lived session against one tour site. Implementations
// own whatever browser or HTTP machinery they need; sessions are reused
// across tasks and closed when the owning worker exits.
type Scraper interface {
	// Tour identifies which circuit this session scrapes.
	Tour() tennis.Tour

	// DiscoverTournaments lists the tournaments visible for a year.
	DiscoverTournaments(ctx context.Context, year int) ([]ScrapedTournament, error)

	// ScrapeTournament fetches a tournament's draw, fixtures, and results.
	ScrapeTournament(ctx context.Context, params TaskParams) (*Result, error)

	// ScrapeFixtures fetches the current order of play.
	ScrapeFixtures(ctx context.Context, params TaskParams) ([]ScrapedFixture, error)

	// ScrapeDraw fetches the draw only.
	ScrapeDraw(ctx context.Context, params TaskParams) ([]ScrapedDrawEntry, error)

	// EnrichPlayer fetches profile demographics for a tour-site player ID.
	EnrichPlayer(ctx context.Context, externalID string) (*PlayerProfile, error)

	// Close releases the session.
	Close() error
}

// Factory constructs a scraper session for a tour. The worker pool calls it
// lazily, once per (worker, tour).
type Factory func(ctx context.Context, tour tennis.Tour) (Scraper, error)
