package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/matchpoint-io/matchpoint/internal/elo"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// ErrParamsNotFound is returned when a named parameter set does not exist.
var ErrParamsNotFound = errors.New("elo parameter set not found")

// PersistentEloStore implements elo.Store on PostgreSQL, plus the parameter
// set management the CLI uses (save, activate, list).
type PersistentEloStore struct {
	conn *Connection
}

var _ elo.Store = (*PersistentEloStore)(nil)

// NewPersistentEloStore creates a Postgres-backed Elo store.
func NewPersistentEloStore(conn *Connection) (*PersistentEloStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentEloStore{conn: conn}, nil
}

// ActiveParams implements elo.Store. A partial unique index guarantees at
// most one active row.
func (s *PersistentEloStore) ActiveParams(ctx context.Context) (*elo.Params, error) {
	var (
		params  elo.Params
		payload []byte
	)

	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, payload FROM elo_params WHERE active`,
	).Scan(&params.ID, &params.Name, &payload)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, elo.ErrNoActiveParameterSet
	case err != nil:
		return nil, classifyError(err)
	}

	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("unmarshal params %q: %w", params.Name, err)
	}

	params.Active = true

	return &params, nil
}

// SaveParams upserts a parameter set by name, inactive. Activation is a
// separate, deliberate step.
func (s *PersistentEloStore) SaveParams(ctx context.Context, params *elo.Params) (int64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshal params %q: %w", params.Name, err)
	}

	var id int64

	err = s.conn.QueryRowContext(ctx, `
		INSERT INTO elo_params (name, payload, active, created_at)
		VALUES ($1, $2, FALSE, NOW())
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload
		RETURNING id`,
		params.Name, payload,
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	params.ID = id

	return id, nil
}

// ActivateParams makes the named set the single active one.
func (s *PersistentEloStore) ActivateParams(ctx context.Context, name string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE elo_params SET active = FALSE WHERE active`); err != nil {
		return classifyError(err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE elo_params SET active = TRUE WHERE name = $1`, name)
	if err != nil {
		return classifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyError(err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrParamsNotFound, name)
	}

	return tx.Commit()
}

// ListParams returns every stored parameter set, newest first, payloads
// included.
func (s *PersistentEloStore) ListParams(ctx context.Context) ([]*elo.Params, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, active, payload FROM elo_params ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var sets []*elo.Params

	for rows.Next() {
		var (
			params  elo.Params
			payload []byte
		)

		if err := rows.Scan(&params.ID, &params.Name, &params.Active, &payload); err != nil {
			return nil, classifyError(err)
		}

		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("unmarshal params %q: %w", params.Name, err)
		}

		sets = append(sets, &params)
	}

	return sets, rows.Err()
}

// terminalStatuses is the SQL-side mirror of tennis.MatchStatus.IsTerminal.
const terminalStatuses = `('completed', 'retired', 'walkover', 'default')`

// UnprocessedMatches implements elo.Store. Matches join through their
// edition to the tournament so the level code comes back with each row.
func (s *PersistentEloStore) UnprocessedMatches(
	ctx context.Context,
	playerIDs []int64,
	afterOrder, afterID int64,
	limit int,
) ([]elo.RatedMatch, error) {
	query := `
		SELECT m.id, m.external_id, m.player_a_id, m.player_b_id, m.winner_id,
		       m.score, m.status, m.match_date, m.temporal_order,
		       t.level, t.gender
		FROM matches m
		JOIN tournament_editions e ON e.id = m.edition_id
		JOIN tournaments t ON t.id = e.tournament_id
		WHERE m.status IN ` + terminalStatuses + `
		  AND (m.elo_processed_at IS NULL OR m.elo_needs_recompute)
		  AND (m.temporal_order, m.id) > ($1, $2)`

	args := []any{afterOrder, afterID}

	if len(playerIDs) > 0 {
		query += ` AND (m.player_a_id = ANY($3) OR m.player_b_id = ANY($3))`

		args = append(args, pq.Array(playerIDs))
	}

	query += fmt.Sprintf(` ORDER BY m.temporal_order ASC, m.id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	matches := make([]elo.RatedMatch, 0, limit)

	for rows.Next() {
		var (
			match  elo.RatedMatch
			winner sql.NullInt64
			score  sql.NullString
			status string
			level  string
			gender string
		)

		err := rows.Scan(
			&match.MatchID, &match.ExternalID, &match.PlayerAID, &match.PlayerBID, &winner,
			&score, &status, &match.MatchDate, &match.TemporalOrder,
			&level, &gender,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		match.WinnerID = winner.Int64
		match.Score = score.String
		match.Status = tennis.MatchStatus(status)
		match.LevelCode = tennis.LevelCodeFor(tennis.Level(level), tennis.Gender(gender))

		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// PlayerStates implements elo.Store.
func (s *PersistentEloStore) PlayerStates(ctx context.Context, playerIDs []int64) (map[int64]*elo.PlayerState, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT player_id, rating, match_count, last_temporal_order,
		       last_match_date, peak_rating, updated_at
		FROM player_elo_state
		WHERE player_id = ANY($1)`,
		pq.Array(playerIDs),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	states := make(map[int64]*elo.PlayerState, len(playerIDs))

	for rows.Next() {
		var (
			state        elo.PlayerState
			rating, peak decimal.Decimal
		)

		err := rows.Scan(
			&state.PlayerID, &rating, &state.MatchCount, &state.LastTemporalOrder,
			&state.LastMatchDate, &peak, &state.UpdatedAt,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		state.Rating = rating.InexactFloat64()
		state.PeakRating = peak.InexactFloat64()
		states[state.PlayerID] = &state
	}

	return states, rows.Err()
}

// RecoverBackfill implements elo.Store. One transaction: clear the Elo
// columns of everything at or after the point, then rebuild each affected
// player's state from their most recent still-processed match before it.
func (s *PersistentEloStore) RecoverBackfill(ctx context.Context, backfillPoint int64) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT player_a_id FROM matches
		WHERE temporal_order >= $1 AND elo_processed_at IS NOT NULL
		UNION
		SELECT player_b_id FROM matches
		WHERE temporal_order >= $1 AND elo_processed_at IS NOT NULL`,
		backfillPoint,
	)
	if err != nil {
		return 0, classifyError(err)
	}

	affected, err := scanInt64s(rows)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE matches
		SET elo_pre_a = NULL, elo_pre_b = NULL,
		    elo_post_a = NULL, elo_post_b = NULL,
		    elo_params_version = NULL, elo_processed_at = NULL,
		    elo_needs_recompute = FALSE, updated_at = NOW()
		WHERE temporal_order >= $1
		  AND (elo_processed_at IS NOT NULL OR elo_needs_recompute)`,
		backfillPoint,
	)
	if err != nil {
		return 0, classifyError(err)
	}

	cleared, err := result.RowsAffected()
	if err != nil {
		return 0, classifyError(err)
	}

	if len(affected) > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM player_elo_state WHERE player_id = ANY($1)`, pq.Array(affected))
		if err != nil {
			return 0, classifyError(err)
		}

		// Rebuild each player's state from their side of the most recent
		// match that survived the clear. Players with no surviving history
		// get no row and restart at the baseline.
		_, err = tx.ExecContext(ctx, `
			WITH sides AS (
				SELECT m.player_a_id AS player_id, m.elo_post_a AS rating,
				       m.temporal_order, m.match_date, m.id
				FROM matches m
				WHERE m.player_a_id = ANY($2) AND m.elo_processed_at IS NOT NULL
				  AND m.temporal_order < $1
				UNION ALL
				SELECT m.player_b_id, m.elo_post_b, m.temporal_order, m.match_date, m.id
				FROM matches m
				WHERE m.player_b_id = ANY($2) AND m.elo_processed_at IS NOT NULL
				  AND m.temporal_order < $1
			),
			latest AS (
				SELECT DISTINCT ON (player_id)
				       player_id, rating, temporal_order, match_date
				FROM sides
				ORDER BY player_id, temporal_order DESC, id DESC
			),
			totals AS (
				SELECT player_id, COUNT(*) AS match_count, MAX(rating) AS peak_rating
				FROM sides
				GROUP BY player_id
			)
			INSERT INTO player_elo_state (
				player_id, rating, match_count, last_temporal_order,
				last_match_date, peak_rating, updated_at
			)
			SELECT l.player_id, l.rating, t.match_count, l.temporal_order,
			       l.match_date, t.peak_rating, NOW()
			FROM latest l
			JOIN totals t USING (player_id)`,
			backfillPoint, pq.Array(affected),
		)
		if err != nil {
			return 0, classifyError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyError(err)
	}

	return cleared, nil
}

// numeric2 is the NUMERIC(7,2) wire form of a rating: an exact decimal,
// rounded half away from zero, so the database never sees a float artifact.
func numeric2(rating float64) decimal.Decimal {
	return decimal.NewFromFloat(rating).Round(2)
}

// ApplyUpdates implements elo.Store. Ratings round to two decimals here, at
// the persistence boundary.
func (s *PersistentEloStore) ApplyUpdates(
	ctx context.Context,
	paramsID int64,
	updates []elo.MatchUpdate,
	states []*elo.PlayerState,
) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	matchStmt, err := tx.PrepareContext(ctx, `
		UPDATE matches
		SET elo_pre_a = $1, elo_pre_b = $2, elo_post_a = $3, elo_post_b = $4,
		    elo_params_version = $5, elo_processed_at = NOW(),
		    elo_needs_recompute = FALSE, updated_at = NOW()
		WHERE id = $6`)
	if err != nil {
		return classifyError(err)
	}
	defer matchStmt.Close()

	for _, update := range updates {
		_, err := matchStmt.ExecContext(ctx,
			numeric2(update.PreA), numeric2(update.PreB),
			numeric2(update.PostA), numeric2(update.PostB),
			paramsID, update.MatchID,
		)
		if err != nil {
			return classifyError(err)
		}
	}

	stateStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO player_elo_state (
			player_id, rating, match_count, last_temporal_order,
			last_match_date, peak_rating, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			match_count = EXCLUDED.match_count,
			last_temporal_order = EXCLUDED.last_temporal_order,
			last_match_date = EXCLUDED.last_match_date,
			peak_rating = EXCLUDED.peak_rating,
			updated_at = NOW()`)
	if err != nil {
		return classifyError(err)
	}
	defer stateStmt.Close()

	for _, state := range states {
		_, err := stateStmt.ExecContext(ctx,
			state.PlayerID, numeric2(state.Rating), state.MatchCount,
			state.LastTemporalOrder, state.LastMatchDate,
			numeric2(state.PeakRating),
		)
		if err != nil {
			return classifyError(err)
		}
	}

	return tx.Commit()
}

// RefreshPendingSnapshots implements elo.Store.
func (s *PersistentEloStore) RefreshPendingSnapshots(ctx context.Context, playerIDs []int64) (int64, error) {
	const pendingStatuses = `('upcoming', 'scheduled', 'in_progress')`

	refreshed := int64(0)

	for _, side := range []struct{ player, snapshot string }{
		{"player_a_id", "elo_pre_a"},
		{"player_b_id", "elo_pre_b"},
	} {
		result, err := s.conn.ExecContext(ctx, `
			UPDATE matches m
			SET `+side.snapshot+` = s.rating, updated_at = NOW()
			FROM player_elo_state s
			WHERE s.player_id = m.`+side.player+`
			  AND s.player_id = ANY($1)
			  AND m.status IN `+pendingStatuses,
			pq.Array(playerIDs),
		)
		if err != nil {
			return refreshed, classifyError(err)
		}

		count, err := result.RowsAffected()
		if err != nil {
			return refreshed, classifyError(err)
		}

		refreshed += count
	}

	return refreshed, nil
}

// ResetAllRatings implements elo.Store.
func (s *PersistentEloStore) ResetAllRatings(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_elo_state`); err != nil {
		return classifyError(err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET elo_pre_a = NULL, elo_pre_b = NULL,
		    elo_post_a = NULL, elo_post_b = NULL,
		    elo_params_version = NULL, elo_processed_at = NULL,
		    elo_needs_recompute = FALSE, updated_at = NOW()
		WHERE elo_processed_at IS NOT NULL
		   OR elo_needs_recompute
		   OR elo_pre_a IS NOT NULL
		   OR elo_pre_b IS NOT NULL`)
	if err != nil {
		return classifyError(err)
	}

	return tx.Commit()
}

func scanInt64s(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var values []int64

	for rows.Next() {
		var value int64

		if err := rows.Scan(&value); err != nil {
			return nil, classifyError(err)
		}

		values = append(values, value)
	}

	return values, rows.Err()
}
