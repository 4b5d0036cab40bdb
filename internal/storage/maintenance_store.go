package storage

import (
	"context"
	"sort"

	"github.com/matchpoint-io/matchpoint/internal/maintenance"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

var (
	_ maintenance.Store = (*PersistentPlayerStore)(nil)
	_ maintenance.Store = (*MemoryStore)(nil)
)

// PlayerSnapshots implements maintenance.Store. Three scans — players,
// aliases, per-gender match counts — assembled in memory; maintenance runs
// offline, so one big read beats a per-player query storm.
func (s *PersistentPlayerStore) PlayerSnapshots(ctx context.Context) ([]maintenance.PlayerSnapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, canonical_name, atp_id, wta_id, itf_id, created_at
		FROM players
		ORDER BY id`)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	var (
		snapshots []maintenance.PlayerSnapshot
		index     = make(map[int64]int)
	)

	for rows.Next() {
		var (
			snapshot            maintenance.PlayerSnapshot
			atpID, wtaID, itfID *string
		)

		if err := rows.Scan(
			&snapshot.ID, &snapshot.CanonicalName,
			&atpID, &wtaID, &itfID, &snapshot.CreatedAt,
		); err != nil {
			return nil, classifyError(err)
		}

		for _, id := range []*string{atpID, wtaID, itfID} {
			if id != nil && *id != "" {
				snapshot.ExternalIDCount++
			}
		}

		index[snapshot.ID] = len(snapshots)
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	if err := s.loadSnapshotAliases(ctx, snapshots, index); err != nil {
		return nil, err
	}

	if err := s.loadSnapshotMatchCounts(ctx, snapshots, index); err != nil {
		return nil, err
	}

	return snapshots, nil
}

func (s *PersistentPlayerStore) loadSnapshotAliases(
	ctx context.Context,
	snapshots []maintenance.PlayerSnapshot,
	index map[int64]int,
) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT player_id, alias FROM player_aliases ORDER BY id`)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			playerID int64
			alias    string
		)

		if err := rows.Scan(&playerID, &alias); err != nil {
			return classifyError(err)
		}

		if i, ok := index[playerID]; ok {
			snapshots[i].Aliases = append(snapshots[i].Aliases, alias)
		}
	}

	return classifyError(rows.Err())
}

func (s *PersistentPlayerStore) loadSnapshotMatchCounts(
	ctx context.Context,
	snapshots []maintenance.PlayerSnapshot,
	index map[int64]int,
) error {
	// Each match contributes one count to each side's player.
	rows, err := s.conn.QueryContext(ctx, `
		SELECT sides.player_id, t.gender, COUNT(*)
		FROM matches m
		JOIN tournament_editions e ON e.id = m.edition_id
		JOIN tournaments t ON t.id = e.tournament_id
		CROSS JOIN LATERAL (VALUES (m.player_a_id), (m.player_b_id)) AS sides(player_id)
		GROUP BY sides.player_id, t.gender`)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			playerID int64
			gender   string
			count    int
		)

		if err := rows.Scan(&playerID, &gender, &count); err != nil {
			return classifyError(err)
		}

		i, ok := index[playerID]
		if !ok {
			continue
		}

		snapshots[i].MatchCount += count

		switch tennis.Gender(gender) {
		case tennis.GenderMen:
			snapshots[i].MenMatches += count
		case tennis.GenderWomen:
			snapshots[i].WomenMatches += count
		}
	}

	return classifyError(rows.Err())
}

// PlayerMatchIDs implements maintenance.Store.
func (s *PersistentPlayerStore) PlayerMatchIDs(
	ctx context.Context,
	playerID int64,
	gender tennis.Gender,
) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT m.id
		FROM matches m
		JOIN tournament_editions e ON e.id = m.edition_id
		JOIN tournaments t ON t.id = e.tournament_id
		WHERE (m.player_a_id = $1 OR m.player_b_id = $1) AND t.gender = $2
		ORDER BY m.id`,
		playerID, string(gender),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classifyError(err)
		}

		ids = append(ids, id)
	}

	return ids, classifyError(rows.Err())
}

// PlayerSnapshots implements maintenance.Store.
func (s *MemoryStore) PlayerSnapshots(_ context.Context) ([]maintenance.PlayerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]maintenance.PlayerSnapshot, 0, len(s.players))

	for _, player := range s.players {
		snapshot := maintenance.PlayerSnapshot{
			ID:              player.ID,
			CanonicalName:   player.CanonicalName,
			ExternalIDCount: player.ExternalIDCount(),
			CreatedAt:       player.CreatedAt,
		}

		for _, alias := range s.aliases {
			if alias.PlayerID == player.ID {
				snapshot.Aliases = append(snapshot.Aliases, alias.Alias)
			}
		}

		for _, match := range s.matches {
			if !match.InvolvesPlayer(player.ID) {
				continue
			}

			snapshot.MatchCount++

			switch s.matchGenderLocked(match) {
			case tennis.GenderMen:
				snapshot.MenMatches++
			case tennis.GenderWomen:
				snapshot.WomenMatches++
			}
		}

		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })

	return snapshots, nil
}

// PlayerMatchIDs implements maintenance.Store.
func (s *MemoryStore) PlayerMatchIDs(
	_ context.Context,
	playerID int64,
	gender tennis.Gender,
) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64

	for _, match := range s.matches {
		if match.InvolvesPlayer(playerID) && s.matchGenderLocked(match) == gender {
			ids = append(ids, match.ID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (s *MemoryStore) matchGenderLocked(match *tennis.Match) tennis.Gender {
	edition, ok := s.editions[match.EditionID]
	if !ok {
		return ""
	}

	tournament, ok := s.tournaments[edition.TournamentID]
	if !ok {
		return ""
	}

	return tournament.Gender
}
