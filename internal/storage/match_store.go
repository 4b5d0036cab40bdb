package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// PersistentMatchStore implements the ingestion stores on PostgreSQL:
// tournament and edition upserts plus the match row lifecycle.
type PersistentMatchStore struct {
	conn *Connection
}

var (
	_ ingest.TournamentStore = (*PersistentMatchStore)(nil)
	_ ingest.MatchStore      = (*PersistentMatchStore)(nil)
)

// NewPersistentMatchStore creates a Postgres-backed match store.
func NewPersistentMatchStore(conn *Connection) (*PersistentMatchStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentMatchStore{conn: conn}, nil
}

// UpsertTournament implements ingest.TournamentStore. (code, tour, gender)
// is the stable identity; descriptive columns refresh on every scrape.
func (s *PersistentMatchStore) UpsertTournament(ctx context.Context, tournament *tennis.Tournament) (int64, error) {
	var id int64

	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO tournaments (code, tour, gender, level, surface, city, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code, tour, gender) DO UPDATE SET
			level   = EXCLUDED.level,
			surface = EXCLUDED.surface,
			city    = EXCLUDED.city,
			country = EXCLUDED.country
		RETURNING id`,
		tournament.Code, string(tournament.Tour), string(tournament.Gender),
		string(tournament.Level), nullString(tournament.Surface),
		nullString(tournament.City), nullString(tournament.Country),
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	return id, nil
}

// UpsertEdition implements ingest.TournamentStore. Dates refresh only when
// the scrape provides them: a later draw-only scrape must not blank out
// dates a calendar scrape already set.
func (s *PersistentMatchStore) UpsertEdition(ctx context.Context, edition *tennis.TournamentEdition) (int64, error) {
	var id int64

	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO tournament_editions (tournament_id, year, start_date, end_date, surface)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, year) DO UPDATE SET
			start_date = COALESCE(EXCLUDED.start_date, tournament_editions.start_date),
			end_date   = COALESCE(EXCLUDED.end_date, tournament_editions.end_date),
			surface    = COALESCE(NULLIF(EXCLUDED.surface, ''), tournament_editions.surface)
		RETURNING id`,
		edition.TournamentID, edition.Year,
		edition.StartDate, edition.EndDate, nullString(edition.Surface),
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	return id, nil
}

const matchColumns = `
	id, external_id, source, edition_id, round, match_num,
	player_a_id, player_b_id, seed_a, seed_b, winner_id,
	score, score_structured, retirement_set,
	match_date, match_date_estimated, scheduled_date, scheduled_datetime,
	court, duration_minutes, status, temporal_order,
	elo_pre_a, elo_pre_b, elo_post_a, elo_post_b,
	elo_params_version, elo_processed_at, elo_needs_recompute,
	created_at, updated_at`

// MatchByExternalID implements ingest.MatchStore.
func (s *PersistentMatchStore) MatchByExternalID(ctx context.Context, externalID string) (*tennis.Match, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE external_id = $1`, externalID)

	return scanMatch(row)
}

// FindMatch implements ingest.MatchStore. Player order is positional on the
// row but not semantic, so both orientations match.
func (s *PersistentMatchStore) FindMatch(
	ctx context.Context,
	editionID int64,
	round tennis.Round,
	playerAID, playerBID int64,
) (*tennis.Match, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE edition_id = $1 AND round = $2
		  AND ((player_a_id = $3 AND player_b_id = $4)
		    OR (player_a_id = $4 AND player_b_id = $3))
		LIMIT 1`,
		editionID, string(round), playerAID, playerBID,
	)

	return scanMatch(row)
}

// CreateMatch implements ingest.MatchStore.
func (s *PersistentMatchStore) CreateMatch(ctx context.Context, match *tennis.Match) (int64, error) {
	scoreStructured, err := marshalSets(match.ScoreStructured)
	if err != nil {
		return 0, err
	}

	var id int64

	err = s.conn.QueryRowContext(ctx, `
		INSERT INTO matches (
			external_id, source, edition_id, round, match_num,
			player_a_id, player_b_id, seed_a, seed_b, winner_id,
			score, score_structured, retirement_set,
			match_date, match_date_estimated, scheduled_date, scheduled_datetime,
			court, duration_minutes, status, temporal_order,
			elo_pre_a, elo_pre_b, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
		        $22, $23, NOW(), NOW())
		RETURNING id`,
		match.ExternalID, string(match.Source), match.EditionID, string(match.Round), match.MatchNum,
		match.PlayerAID, match.PlayerBID, match.SeedA, match.SeedB, match.WinnerID,
		nullString(match.Score), scoreStructured, match.RetirementSet,
		match.MatchDate, match.MatchDateEstimated, match.ScheduledDate, match.ScheduledDatetime,
		nullString(match.Court), match.DurationMinutes, string(match.Status), match.TemporalOrder,
		nullNumeric2(match.EloPreA), nullNumeric2(match.EloPreB),
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	match.ID = id

	return id, nil
}

// UpdateMatch implements ingest.MatchStore. Every mutable column writes;
// ingestors enforce their monotonic-enrichment rules before calling.
func (s *PersistentMatchStore) UpdateMatch(ctx context.Context, match *tennis.Match) error {
	scoreStructured, err := marshalSets(match.ScoreStructured)
	if err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx, `
		UPDATE matches SET
			match_num = $1, seed_a = $2, seed_b = $3, winner_id = $4,
			score = $5, score_structured = $6, retirement_set = $7,
			match_date = $8, match_date_estimated = $9,
			scheduled_date = $10, scheduled_datetime = $11, court = $12,
			duration_minutes = $13, status = $14, temporal_order = $15,
			elo_needs_recompute = $16, updated_at = NOW()
		WHERE id = $17`,
		match.MatchNum, match.SeedA, match.SeedB, match.WinnerID,
		nullString(match.Score), scoreStructured, match.RetirementSet,
		match.MatchDate, match.MatchDateEstimated,
		match.ScheduledDate, match.ScheduledDatetime, nullString(match.Court),
		match.DurationMinutes, string(match.Status), match.TemporalOrder,
		match.EloNeedsRecompute, match.ID,
	)
	if err != nil {
		return classifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyError(err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: id %d", ingest.ErrMatchNotFound, match.ID)
	}

	return nil
}

// CurrentRatings implements ingest.MatchStore.
func (s *PersistentMatchStore) CurrentRatings(ctx context.Context, playerIDs []int64) (map[int64]float64, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT player_id, rating FROM player_elo_state WHERE player_id = ANY($1)`,
		pq.Array(playerIDs),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	ratings := make(map[int64]float64, len(playerIDs))

	for rows.Next() {
		var (
			playerID int64
			rating   decimal.Decimal
		)

		if err := rows.Scan(&playerID, &rating); err != nil {
			return nil, classifyError(err)
		}

		ratings[playerID] = rating.InexactFloat64()
	}

	return ratings, rows.Err()
}

// nullNumeric2 is the nullable NUMERIC(7,2) wire form of a rating snapshot.
func nullNumeric2(rating *float64) decimal.NullDecimal {
	if rating == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*rating).Round(2), Valid: true}
}

func floatPtr(value decimal.NullDecimal) *float64 {
	if !value.Valid {
		return nil
	}

	converted := value.Decimal.InexactFloat64()

	return &converted
}

func marshalSets(sets []tennis.SetScore) ([]byte, error) {
	if len(sets) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(sets)
	if err != nil {
		return nil, fmt.Errorf("marshal structured score: %w", err)
	}

	return payload, nil
}

func scanMatch(row rowScanner) (*tennis.Match, error) {
	var (
		match           tennis.Match
		source          string
		round           string
		status          string
		score           sql.NullString
		court           sql.NullString
		scoreStructured []byte

		preA, preB, postA, postB decimal.NullDecimal
	)

	err := row.Scan(
		&match.ID, &match.ExternalID, &source, &match.EditionID, &round, &match.MatchNum,
		&match.PlayerAID, &match.PlayerBID, &match.SeedA, &match.SeedB, &match.WinnerID,
		&score, &scoreStructured, &match.RetirementSet,
		&match.MatchDate, &match.MatchDateEstimated, &match.ScheduledDate, &match.ScheduledDatetime,
		&court, &match.DurationMinutes, &status, &match.TemporalOrder,
		&preA, &preB, &postA, &postB,
		&match.EloParamsVersion, &match.EloProcessedAt, &match.EloNeedsRecompute,
		&match.CreatedAt, &match.UpdatedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ingest.ErrMatchNotFound
	case err != nil:
		return nil, classifyError(err)
	}

	match.Source = tennis.Source(source)
	match.Round = tennis.Round(round)
	match.Status = tennis.MatchStatus(status)
	match.Score = score.String
	match.Court = court.String
	match.EloPreA = floatPtr(preA)
	match.EloPreB = floatPtr(preB)
	match.EloPostA = floatPtr(postA)
	match.EloPostB = floatPtr(postB)

	if len(scoreStructured) > 0 {
		if err := json.Unmarshal(scoreStructured, &match.ScoreStructured); err != nil {
			return nil, fmt.Errorf("unmarshal structured score for match %d: %w", match.ID, err)
		}
	}

	return &match, nil
}
