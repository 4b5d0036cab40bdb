package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// PersistentPlayerStore implements identity.Store on PostgreSQL. Merge and
// split run as single transactions: a half-migrated player identity is worse
// than a failed maintenance run.
type PersistentPlayerStore struct {
	conn *Connection
}

var _ identity.Store = (*PersistentPlayerStore)(nil)

// NewPersistentPlayerStore creates a Postgres-backed player store.
func NewPersistentPlayerStore(conn *Connection) (*PersistentPlayerStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentPlayerStore{conn: conn}, nil
}

const playerColumns = `
	id, canonical_name, atp_id, wta_id, itf_id, nationality, birth_date,
	height_cm, plays, backhand, turned_pro, created_at, updated_at`

// PlayerByID implements identity.Store.
func (s *PersistentPlayerStore) PlayerByID(ctx context.Context, id int64) (*tennis.Player, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id)

	return scanPlayer(row)
}

// PlayerByExternalID implements identity.Store.
func (s *PersistentPlayerStore) PlayerByExternalID(
	ctx context.Context,
	source tennis.Source,
	externalID string,
) (*tennis.Player, error) {
	column, err := externalIDColumn(source)
	if err != nil {
		return nil, err
	}

	row := s.conn.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE `+column+` = $1`, externalID)

	return scanPlayer(row)
}

// PlayerByAlias implements identity.Store. Any source's alias row resolves:
// the alias table is the cross-source name memory.
func (s *PersistentPlayerStore) PlayerByAlias(ctx context.Context, alias string) (*tennis.Player, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+playerColumns+`
		FROM players
		WHERE id = (
			SELECT player_id FROM player_aliases WHERE alias = $1 LIMIT 1
		)`, alias)

	return scanPlayer(row)
}

// CandidateAliases implements identity.Store. The % operator rides the
// pg_trgm GIN index on player_aliases.alias, so the fuzzy strategy never
// scans the whole alias table.
func (s *PersistentPlayerStore) CandidateAliases(
	ctx context.Context,
	normalized string,
) ([]identity.AliasEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT player_id, alias
		FROM player_aliases
		WHERE alias % $1`, normalized)
	if err != nil {
		return nil, classifyError(err)
	}

	return scanAliasEntries(rows)
}

// AliasesByLastName implements identity.Store. The extracted last name is a
// suffix of the normalized alias ("j. del potro" → "del potro"), so a
// suffix match plus an exact single-token match covers both shapes.
func (s *PersistentPlayerStore) AliasesByLastName(
	ctx context.Context,
	lastName string,
) ([]identity.AliasEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT player_id, alias
		FROM player_aliases
		WHERE alias = $1 OR alias LIKE '%' || ' ' || $1`, lastName)
	if err != nil {
		return nil, classifyError(err)
	}

	return scanAliasEntries(rows)
}

// CreatePlayer implements identity.Store.
func (s *PersistentPlayerStore) CreatePlayer(
	ctx context.Context,
	player *tennis.Player,
	alias string,
	source tennis.Source,
) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64

	err = tx.QueryRowContext(ctx, `
		INSERT INTO players (
			canonical_name, atp_id, wta_id, itf_id, nationality, birth_date,
			height_cm, plays, backhand, turned_pro, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		player.CanonicalName, player.ATPID, player.WTAID, player.ITFID,
		nullString(player.Nationality), player.BirthDate, player.HeightCM,
		nullString(player.Plays), nullString(player.Backhand), player.TurnedPro,
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	if alias != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_aliases (player_id, alias, source, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (alias, source) DO NOTHING`,
			id, alias, string(source),
		)
		if err != nil {
			return 0, classifyError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyError(err)
	}

	player.ID = id

	return id, nil
}

// AddAlias implements identity.Store.
func (s *PersistentPlayerStore) AddAlias(
	ctx context.Context,
	playerID int64,
	alias string,
	source tennis.Source,
) error {
	if alias == "" {
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO player_aliases (player_id, alias, source, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (alias, source) DO NOTHING`,
		playerID, alias, string(source),
	)

	return classifyError(err)
}

// LinkExternalID implements identity.Store. The WHERE clause makes the
// never-reassign rule a database guarantee, not a code-path hope.
func (s *PersistentPlayerStore) LinkExternalID(
	ctx context.Context,
	playerID int64,
	source tennis.Source,
	externalID string,
) error {
	if externalID == "" {
		return nil
	}

	column, err := externalIDColumn(source)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx,
		`UPDATE players SET `+column+` = $1, updated_at = NOW()
		 WHERE id = $2 AND `+column+` IS NULL`,
		externalID, playerID,
	)

	return classifyError(err)
}

// EnrichPlayer fills absent demographic columns from a scraped profile.
// Present values never move: enrichment only adds, so re-running it (or
// running it against a hand-corrected row) cannot regress data.
func (s *PersistentPlayerStore) EnrichPlayer(
	ctx context.Context,
	playerID int64,
	profile *scrape.PlayerProfile,
) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE players SET
			nationality = CASE WHEN nationality = '' THEN $1 ELSE nationality END,
			birth_date  = COALESCE(birth_date, $2),
			height_cm   = COALESCE(height_cm, $3),
			plays       = CASE WHEN plays = '' THEN $4 ELSE plays END,
			backhand    = CASE WHEN backhand = '' THEN $5 ELSE backhand END,
			turned_pro  = COALESCE(turned_pro, $6),
			updated_at  = NOW()
		WHERE id = $7`,
		profile.Nationality, profile.BirthDate, profile.HeightCM,
		profile.Plays, profile.Backhand, profile.TurnedPro, playerID,
	)
	if err != nil {
		return classifyError(err)
	}

	if affectedCount(result) == 0 {
		return fmt.Errorf("%w: id %d", identity.ErrPlayerNotFound, playerID)
	}

	return nil
}

// PlayersNeedingEnrichment lists players with any demographic gap, oldest
// rows first. The enrichment pipeline stage feeds these into the queue.
func (s *PersistentPlayerStore) PlayersNeedingEnrichment(ctx context.Context, limit int) ([]*tennis.Player, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+playerColumns+`
		FROM players
		WHERE nationality = '' OR birth_date IS NULL OR height_cm IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	var players []*tennis.Player

	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}

		players = append(players, player)
	}

	return players, classifyError(rows.Err())
}

// InsertReviewItem implements identity.Store. Suggestions land in three
// fixed column pairs rather than JSON so merges can remap candidate player
// IDs with a plain UPDATE.
func (s *PersistentPlayerStore) InsertReviewItem(ctx context.Context, item *identity.ReviewItem) (int64, error) {
	matchContext, err := marshalMatchContext(item.MatchContext)
	if err != nil {
		return 0, err
	}

	suggested, confidence := suggestionColumns(item.Suggestions)

	var id int64

	err = s.conn.QueryRowContext(ctx, `
		INSERT INTO player_review_queue (
			scraped_name, source, external_id, match_context,
			suggested_player_id_1, confidence_1,
			suggested_player_id_2, confidence_2,
			suggested_player_id_3, confidence_3,
			status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id`,
		item.ScrapedName, string(item.Source), nullString(item.ExternalID), matchContext,
		suggested[0], confidence[0], suggested[1], confidence[1], suggested[2], confidence[2],
		string(identity.ReviewPending),
	).Scan(&id)
	if err != nil {
		return 0, classifyError(err)
	}

	item.ID = id
	item.Status = identity.ReviewPending

	return id, nil
}

const reviewColumns = `
	id, scraped_name, source, external_id, match_context,
	suggested_player_id_1, confidence_1,
	suggested_player_id_2, confidence_2,
	suggested_player_id_3, confidence_3,
	status, resolved_player_id, resolved_by, created_at, resolved_at`

// ReviewItemByID implements identity.Store.
func (s *PersistentPlayerStore) ReviewItemByID(ctx context.Context, id int64) (*identity.ReviewItem, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM player_review_queue WHERE id = $1`, id)

	return scanReviewItem(row)
}

// PendingReviewItems implements identity.Store.
func (s *PersistentPlayerStore) PendingReviewItems(ctx context.Context, limit int) ([]*identity.ReviewItem, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM player_review_queue
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		string(identity.ReviewPending), limit,
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	items := make([]*identity.ReviewItem, 0, limit)

	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

// UpdateReviewItem implements identity.Store.
func (s *PersistentPlayerStore) UpdateReviewItem(ctx context.Context, item *identity.ReviewItem) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE player_review_queue
		SET status = $1, resolved_player_id = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5`,
		string(item.Status), item.ResolvedPlayerID, nullString(item.ResolvedBy),
		item.ResolvedAt, item.ID,
	)
	if err != nil {
		return classifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyError(err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: id %d", identity.ErrReviewItemNotFound, item.ID)
	}

	return nil
}

// MergePlayers implements identity.Store.
func (s *PersistentPlayerStore) MergePlayers(ctx context.Context, keepID, mergeID int64) (*identity.MergeStats, error) {
	if keepID == mergeID {
		return nil, identity.ErrSamePlayer
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	merged, err := lockPlayer(ctx, tx, mergeID)
	if err != nil {
		return nil, err
	}

	if _, err := lockPlayer(ctx, tx, keepID); err != nil {
		return nil, err
	}

	stats := &identity.MergeStats{}

	// Deduplicate (alias, source) collisions before moving the rest.
	result, err := tx.ExecContext(ctx, `
		DELETE FROM player_aliases a
		USING player_aliases k
		WHERE a.player_id = $1 AND k.player_id = $2
		  AND a.alias = k.alias AND a.source = k.source`,
		mergeID, keepID,
	)
	if err != nil {
		return nil, classifyError(err)
	}

	stats.AliasesDeduplicated = affectedCount(result)

	result, err = tx.ExecContext(ctx,
		`UPDATE player_aliases SET player_id = $1 WHERE player_id = $2`, keepID, mergeID)
	if err != nil {
		return nil, classifyError(err)
	}

	stats.AliasesMoved = affectedCount(result)

	for _, column := range []string{"player_a_id", "player_b_id", "winner_id"} {
		result, err = tx.ExecContext(ctx,
			`UPDATE matches SET `+column+` = $1, updated_at = NOW() WHERE `+column+` = $2`,
			keepID, mergeID,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		if column != "winner_id" {
			stats.MatchesMoved += affectedCount(result)
		}
	}

	for _, column := range []string{"suggested_player_id_1", "suggested_player_id_2", "suggested_player_id_3"} {
		result, err = tx.ExecContext(ctx,
			`UPDATE player_review_queue SET `+column+` = $1 WHERE `+column+` = $2`,
			keepID, mergeID,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		stats.SuggestionsMoved += affectedCount(result)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE player_review_queue SET resolved_player_id = $1 WHERE resolved_player_id = $2`,
		keepID, mergeID,
	)
	if err != nil {
		return nil, classifyError(err)
	}

	// Fill the keep side's gaps from the merged row; never overwrite.
	_, err = tx.ExecContext(ctx, `
		UPDATE players k
		SET atp_id      = COALESCE(k.atp_id, m.atp_id),
		    wta_id      = COALESCE(k.wta_id, m.wta_id),
		    itf_id      = COALESCE(k.itf_id, m.itf_id),
		    nationality = COALESCE(k.nationality, m.nationality),
		    birth_date  = COALESCE(k.birth_date, m.birth_date),
		    height_cm   = COALESCE(k.height_cm, m.height_cm),
		    plays       = COALESCE(k.plays, m.plays),
		    backhand    = COALESCE(k.backhand, m.backhand),
		    turned_pro  = COALESCE(k.turned_pro, m.turned_pro),
		    updated_at  = NOW()
		FROM players m
		WHERE k.id = $1 AND m.id = $2`,
		keepID, mergeID,
	)
	if err != nil {
		return nil, classifyError(err)
	}

	if err := resetEloForPlayers(ctx, tx, []int64{keepID, mergeID}); err != nil {
		return nil, err
	}

	mergedIDs, err := json.Marshal(externalIDMap(merged))
	if err != nil {
		return nil, fmt.Errorf("marshal merged external ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO player_merge_log (
			kept_player_id, merged_player_id, merged_canonical_name,
			merged_external_ids, aliases_moved, matches_moved, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		keepID, mergeID, merged.CanonicalName, mergedIDs,
		stats.AliasesMoved, stats.MatchesMoved,
	)
	if err != nil {
		return nil, classifyError(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE id = $1`, mergeID); err != nil {
		return nil, classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyError(err)
	}

	return stats, nil
}

// SplitPlayer implements identity.Store.
func (s *PersistentPlayerStore) SplitPlayer(
	ctx context.Context,
	playerID int64,
	newPlayer *tennis.Player,
	matchIDs []int64,
) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockPlayer(ctx, tx, playerID); err != nil {
		return 0, err
	}

	var newID int64

	err = tx.QueryRowContext(ctx, `
		INSERT INTO players (
			canonical_name, atp_id, wta_id, itf_id, nationality, birth_date,
			height_cm, plays, backhand, turned_pro, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		newPlayer.CanonicalName, newPlayer.ATPID, newPlayer.WTAID, newPlayer.ITFID,
		nullString(newPlayer.Nationality), newPlayer.BirthDate, newPlayer.HeightCM,
		nullString(newPlayer.Plays), nullString(newPlayer.Backhand), newPlayer.TurnedPro,
	).Scan(&newID)
	if err != nil {
		return 0, classifyError(err)
	}

	for _, column := range []string{"player_a_id", "player_b_id", "winner_id"} {
		_, err = tx.ExecContext(ctx,
			`UPDATE matches SET `+column+` = $1, updated_at = NOW()
			 WHERE `+column+` = $2 AND id = ANY($3)`,
			newID, playerID, pq.Array(matchIDs),
		)
		if err != nil {
			return 0, classifyError(err)
		}
	}

	if err := resetEloForPlayers(ctx, tx, []int64{playerID, newID}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyError(err)
	}

	newPlayer.ID = newID

	return newID, nil
}

// MergeLog implements identity.Store.
func (s *PersistentPlayerStore) MergeLog(ctx context.Context, limit int) ([]identity.MergeRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, kept_player_id, merged_player_id, merged_canonical_name,
		       merged_external_ids, aliases_moved, matches_moved, created_at
		FROM player_merge_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	records := make([]identity.MergeRecord, 0, limit)

	for rows.Next() {
		var (
			record  identity.MergeRecord
			payload []byte
		)

		err := rows.Scan(
			&record.ID, &record.KeptPlayerID, &record.MergedPlayerID,
			&record.MergedCanonicalName, &payload,
			&record.AliasesMoved, &record.MatchesMoved, &record.CreatedAt,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record.MergedExternalIDs); err != nil {
				return nil, fmt.Errorf("unmarshal merge log %d: %w", record.ID, err)
			}
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// resetEloForPlayers clears rating state and flags rated matches of the
// given players for recompute. The next updater run sees the flagged rows,
// detects the rewind, and replays from the earliest one.
func resetEloForPlayers(ctx context.Context, tx *sql.Tx, playerIDs []int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM player_elo_state WHERE player_id = ANY($1)`, pq.Array(playerIDs))
	if err != nil {
		return classifyError(err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET elo_needs_recompute = TRUE, updated_at = NOW()
		WHERE (player_a_id = ANY($1) OR player_b_id = ANY($1))
		  AND elo_processed_at IS NOT NULL`,
		pq.Array(playerIDs),
	)

	return classifyError(err)
}

func lockPlayer(ctx context.Context, tx *sql.Tx, id int64) (*tennis.Player, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id)

	return scanPlayer(row)
}

func externalIDColumn(source tennis.Source) (string, error) {
	switch source {
	case tennis.SourceATP:
		return "atp_id", nil
	case tennis.SourceWTA:
		return "wta_id", nil
	case tennis.SourceITF:
		return "itf_id", nil
	default:
		return "", fmt.Errorf("unknown source %q", source)
	}
}

func scanPlayer(row rowScanner) (*tennis.Player, error) {
	var (
		player      tennis.Player
		nationality sql.NullString
		plays       sql.NullString
		backhand    sql.NullString
	)

	err := row.Scan(
		&player.ID, &player.CanonicalName,
		&player.ATPID, &player.WTAID, &player.ITFID,
		&nationality, &player.BirthDate, &player.HeightCM,
		&plays, &backhand, &player.TurnedPro,
		&player.CreatedAt, &player.UpdatedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, identity.ErrPlayerNotFound
	case err != nil:
		return nil, classifyError(err)
	}

	player.Nationality = nationality.String
	player.Plays = plays.String
	player.Backhand = backhand.String

	return &player, nil
}

func scanAliasEntries(rows *sql.Rows) ([]identity.AliasEntry, error) {
	defer rows.Close()

	entries := make([]identity.AliasEntry, 0, 16)

	for rows.Next() {
		var entry identity.AliasEntry

		if err := rows.Scan(&entry.PlayerID, &entry.Alias); err != nil {
			return nil, classifyError(err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanReviewItem(row rowScanner) (*identity.ReviewItem, error) {
	var (
		item         identity.ReviewItem
		source       string
		externalID   sql.NullString
		matchContext []byte
		status       string
		resolvedBy   sql.NullString
		suggested    [identity.MaxSuggestions]sql.NullInt64
		confidence   [identity.MaxSuggestions]sql.NullFloat64
	)

	err := row.Scan(
		&item.ID, &item.ScrapedName, &source, &externalID, &matchContext,
		&suggested[0], &confidence[0],
		&suggested[1], &confidence[1],
		&suggested[2], &confidence[2],
		&status, &item.ResolvedPlayerID, &resolvedBy, &item.CreatedAt, &item.ResolvedAt,
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, identity.ErrReviewItemNotFound
	case err != nil:
		return nil, classifyError(err)
	}

	item.Source = tennis.Source(source)
	item.ExternalID = externalID.String
	item.Status = identity.ReviewStatus(status)
	item.ResolvedBy = resolvedBy.String

	if len(matchContext) > 0 {
		item.MatchContext = &identity.MatchContext{}
		if err := json.Unmarshal(matchContext, item.MatchContext); err != nil {
			return nil, fmt.Errorf("unmarshal match context for review %d: %w", item.ID, err)
		}
	}

	for i := range suggested {
		if suggested[i].Valid {
			item.Suggestions = append(item.Suggestions, identity.Suggestion{
				PlayerID:   suggested[i].Int64,
				Confidence: confidence[i].Float64,
			})
		}
	}

	return &item, nil
}

func marshalMatchContext(matchContext *identity.MatchContext) ([]byte, error) {
	if matchContext == nil {
		return nil, nil
	}

	payload, err := json.Marshal(matchContext)
	if err != nil {
		return nil, fmt.Errorf("marshal match context: %w", err)
	}

	return payload, nil
}

func suggestionColumns(suggestions []identity.Suggestion) ([identity.MaxSuggestions]*int64, [identity.MaxSuggestions]*float64) {
	var (
		ids    [identity.MaxSuggestions]*int64
		scores [identity.MaxSuggestions]*float64
	)

	for i := range suggestions {
		if i >= identity.MaxSuggestions {
			break
		}

		id := suggestions[i].PlayerID
		score := suggestions[i].Confidence
		ids[i] = &id
		scores[i] = &score
	}

	return ids, scores
}

func externalIDMap(player *tennis.Player) map[string]string {
	ids := make(map[string]string)

	for source, value := range map[string]*string{
		"atp": player.ATPID,
		"wta": player.WTAID,
		"itf": player.ITFID,
	} {
		if value != nil && *value != "" {
			ids[source] = *value
		}
	}

	return ids
}

func affectedCount(result sql.Result) int {
	count, err := result.RowsAffected()
	if err != nil {
		return 0
	}

	return int(count)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
