package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchpoint-io/matchpoint/internal/elo"
	"github.com/matchpoint-io/matchpoint/internal/identity"
	"github.com/matchpoint-io/matchpoint/internal/ingest"
	"github.com/matchpoint-io/matchpoint/internal/names"
	"github.com/matchpoint-io/matchpoint/internal/scrape"
	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

// MemoryStore is the in-memory implementation of the player, tournament,
// match, and Elo stores, sharing one state so merge and split stay coherent
// across players, matches, and ratings. Hermetic tests run the full
// resolve-ingest-rate path against it; a single mutex serializes access the
// way the tests use it.
type MemoryStore struct {
	mu sync.Mutex

	nextPlayerID     int64
	nextAliasID      int64
	nextReviewID     int64
	nextMergeID      int64
	nextTournamentID int64
	nextEditionID    int64
	nextMatchID      int64

	players     map[int64]*tennis.Player
	aliases     []tennis.PlayerAlias
	reviews     map[int64]*identity.ReviewItem
	mergeLog    []identity.MergeRecord
	tournaments map[int64]*tennis.Tournament
	editions    map[int64]*tennis.TournamentEdition
	matches     map[int64]*tennis.Match
	states      map[int64]*elo.PlayerState
	params      *elo.Params
}

var (
	_ identity.Store         = (*MemoryStore)(nil)
	_ ingest.TournamentStore = (*MemoryStore)(nil)
	_ ingest.MatchStore      = (*MemoryStore)(nil)
	_ elo.Store              = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:     make(map[int64]*tennis.Player),
		reviews:     make(map[int64]*identity.ReviewItem),
		tournaments: make(map[int64]*tennis.Tournament),
		editions:    make(map[int64]*tennis.TournamentEdition),
		matches:     make(map[int64]*tennis.Match),
		states:      make(map[int64]*elo.PlayerState),
	}
}

// --- identity.Store ---

// PlayerByID implements identity.Store.
func (s *MemoryStore) PlayerByID(_ context.Context, id int64) (*tennis.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[id]
	if !ok {
		return nil, identity.ErrPlayerNotFound
	}

	return copyPlayer(player), nil
}

// PlayerByExternalID implements identity.Store.
func (s *MemoryStore) PlayerByExternalID(
	_ context.Context,
	source tennis.Source,
	externalID string,
) (*tennis.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, player := range s.players {
		if id := player.ExternalID(source); id != nil && *id == externalID {
			return copyPlayer(player), nil
		}
	}

	return nil, identity.ErrPlayerNotFound
}

// PlayerByAlias implements identity.Store.
func (s *MemoryStore) PlayerByAlias(_ context.Context, alias string) (*tennis.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.aliases {
		if entry.Alias == alias {
			if player, ok := s.players[entry.PlayerID]; ok {
				return copyPlayer(player), nil
			}
		}
	}

	return nil, identity.ErrPlayerNotFound
}

// CandidateAliases implements identity.Store. The memory store has no
// trigram index, so every alias is a candidate.
func (s *MemoryStore) CandidateAliases(_ context.Context, _ string) ([]identity.AliasEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]identity.AliasEntry, 0, len(s.aliases))
	for _, alias := range s.aliases {
		entries = append(entries, identity.AliasEntry{PlayerID: alias.PlayerID, Alias: alias.Alias})
	}

	return entries, nil
}

// AliasesByLastName implements identity.Store.
func (s *MemoryStore) AliasesByLastName(_ context.Context, lastName string) ([]identity.AliasEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []identity.AliasEntry

	for _, alias := range s.aliases {
		if names.LastName(alias.Alias) == lastName {
			entries = append(entries, identity.AliasEntry{PlayerID: alias.PlayerID, Alias: alias.Alias})
		}
	}

	return entries, nil
}

// CreatePlayer implements identity.Store.
func (s *MemoryStore) CreatePlayer(
	_ context.Context,
	player *tennis.Player,
	alias string,
	source tennis.Source,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPlayerID++
	player.ID = s.nextPlayerID
	player.CreatedAt = time.Now().UTC()
	player.UpdatedAt = player.CreatedAt

	s.players[player.ID] = copyPlayer(player)

	if alias != "" {
		s.addAliasLocked(player.ID, alias, source)
	}

	return player.ID, nil
}

// AddAlias implements identity.Store.
func (s *MemoryStore) AddAlias(_ context.Context, playerID int64, alias string, source tennis.Source) error {
	if alias == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.addAliasLocked(playerID, alias, source)

	return nil
}

func (s *MemoryStore) addAliasLocked(playerID int64, alias string, source tennis.Source) {
	for _, existing := range s.aliases {
		if existing.Alias == alias && existing.Source == string(source) {
			return
		}
	}

	s.nextAliasID++
	s.aliases = append(s.aliases, tennis.PlayerAlias{
		ID:        s.nextAliasID,
		PlayerID:  playerID,
		Alias:     alias,
		Source:    string(source),
		CreatedAt: time.Now().UTC(),
	})
}

// LinkExternalID implements identity.Store.
func (s *MemoryStore) LinkExternalID(
	_ context.Context,
	playerID int64,
	source tennis.Source,
	externalID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return identity.ErrPlayerNotFound
	}

	if player.SetExternalID(source, externalID) {
		player.UpdatedAt = time.Now().UTC()
	}

	return nil
}

// EnrichPlayer fills absent demographic fields from a scraped profile.
// Present values never move.
func (s *MemoryStore) EnrichPlayer(_ context.Context, playerID int64, profile *scrape.PlayerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return identity.ErrPlayerNotFound
	}

	if player.Nationality == "" {
		player.Nationality = profile.Nationality
	}

	if player.BirthDate == nil {
		player.BirthDate = copyTimePtr(profile.BirthDate)
	}

	if player.HeightCM == nil {
		player.HeightCM = copyIntPtr(profile.HeightCM)
	}

	if player.Plays == "" {
		player.Plays = profile.Plays
	}

	if player.Backhand == "" {
		player.Backhand = profile.Backhand
	}

	if player.TurnedPro == nil {
		player.TurnedPro = copyIntPtr(profile.TurnedPro)
	}

	player.UpdatedAt = time.Now().UTC()

	return nil
}

// PlayersNeedingEnrichment lists players with any demographic gap, oldest
// rows first.
func (s *MemoryStore) PlayersNeedingEnrichment(_ context.Context, limit int) ([]*tennis.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var players []*tennis.Player

	for _, id := range ids {
		player := s.players[id]
		if player.Nationality != "" && player.BirthDate != nil && player.HeightCM != nil {
			continue
		}

		players = append(players, copyPlayer(player))
		if len(players) == limit {
			break
		}
	}

	return players, nil
}

// InsertReviewItem implements identity.Store.
func (s *MemoryStore) InsertReviewItem(_ context.Context, item *identity.ReviewItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReviewID++
	item.ID = s.nextReviewID
	item.Status = identity.ReviewPending
	item.CreatedAt = time.Now().UTC()

	if len(item.Suggestions) > identity.MaxSuggestions {
		item.Suggestions = item.Suggestions[:identity.MaxSuggestions]
	}

	s.reviews[item.ID] = copyReviewItem(item)

	return item.ID, nil
}

// ReviewItemByID implements identity.Store.
func (s *MemoryStore) ReviewItemByID(_ context.Context, id int64) (*identity.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.reviews[id]
	if !ok {
		return nil, identity.ErrReviewItemNotFound
	}

	return copyReviewItem(item), nil
}

// PendingReviewItems implements identity.Store.
func (s *MemoryStore) PendingReviewItems(_ context.Context, limit int) ([]*identity.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*identity.ReviewItem

	for _, item := range s.reviews {
		if item.Status == identity.ReviewPending {
			pending = append(pending, copyReviewItem(item))
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}

		return pending[i].ID < pending[j].ID
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

// UpdateReviewItem implements identity.Store.
func (s *MemoryStore) UpdateReviewItem(_ context.Context, item *identity.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.reviews[item.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", identity.ErrReviewItemNotFound, item.ID)
	}

	stored.Status = item.Status
	stored.ResolvedPlayerID = item.ResolvedPlayerID
	stored.ResolvedBy = item.ResolvedBy
	stored.ResolvedAt = item.ResolvedAt

	return nil
}

// MergePlayers implements identity.Store.
func (s *MemoryStore) MergePlayers(_ context.Context, keepID, mergeID int64) (*identity.MergeStats, error) {
	if keepID == mergeID {
		return nil, identity.ErrSamePlayer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keep, ok := s.players[keepID]
	if !ok {
		return nil, identity.ErrPlayerNotFound
	}

	merged, ok := s.players[mergeID]
	if !ok {
		return nil, identity.ErrPlayerNotFound
	}

	stats := &identity.MergeStats{}

	// Aliases: drop (alias, source) collisions, move the rest.
	kept := s.aliases[:0]

	for _, alias := range s.aliases {
		if alias.PlayerID != mergeID {
			kept = append(kept, alias)

			continue
		}

		duplicate := false

		for _, other := range s.aliases {
			if other.PlayerID == keepID && other.Alias == alias.Alias && other.Source == alias.Source {
				duplicate = true

				break
			}
		}

		if duplicate {
			stats.AliasesDeduplicated++

			continue
		}

		alias.PlayerID = keepID
		kept = append(kept, alias)
		stats.AliasesMoved++
	}

	s.aliases = kept

	for _, match := range s.matches {
		moved := false

		if match.PlayerAID == mergeID {
			match.PlayerAID = keepID
			moved = true
		}

		if match.PlayerBID == mergeID {
			match.PlayerBID = keepID
			moved = true
		}

		if match.WinnerID != nil && *match.WinnerID == mergeID {
			winner := keepID
			match.WinnerID = &winner
		}

		if moved {
			stats.MatchesMoved++
		}
	}

	for _, item := range s.reviews {
		for i := range item.Suggestions {
			if item.Suggestions[i].PlayerID == mergeID {
				item.Suggestions[i].PlayerID = keepID
				stats.SuggestionsMoved++
			}
		}

		if item.ResolvedPlayerID != nil && *item.ResolvedPlayerID == mergeID {
			resolved := keepID
			item.ResolvedPlayerID = &resolved
		}
	}

	// Fill gaps from the merged row; never overwrite.
	for _, source := range []tennis.Source{tennis.SourceATP, tennis.SourceWTA, tennis.SourceITF} {
		if id := merged.ExternalID(source); id != nil {
			keep.SetExternalID(source, *id)
		}
	}

	coalesceDemographics(keep, merged)
	keep.UpdatedAt = time.Now().UTC()

	s.resetEloLocked([]int64{keepID, mergeID})

	s.nextMergeID++
	s.mergeLog = append(s.mergeLog, identity.MergeRecord{
		ID:                  s.nextMergeID,
		KeptPlayerID:        keepID,
		MergedPlayerID:      mergeID,
		MergedCanonicalName: merged.CanonicalName,
		MergedExternalIDs:   externalIDMap(merged),
		AliasesMoved:        stats.AliasesMoved,
		MatchesMoved:        stats.MatchesMoved,
		CreatedAt:           time.Now().UTC(),
	})

	delete(s.players, mergeID)

	return stats, nil
}

// SplitPlayer implements identity.Store.
func (s *MemoryStore) SplitPlayer(
	_ context.Context,
	playerID int64,
	newPlayer *tennis.Player,
	matchIDs []int64,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; !ok {
		return 0, identity.ErrPlayerNotFound
	}

	s.nextPlayerID++
	newPlayer.ID = s.nextPlayerID
	newPlayer.CreatedAt = time.Now().UTC()
	newPlayer.UpdatedAt = newPlayer.CreatedAt
	s.players[newPlayer.ID] = copyPlayer(newPlayer)

	moving := make(map[int64]struct{}, len(matchIDs))
	for _, id := range matchIDs {
		moving[id] = struct{}{}
	}

	for id, match := range s.matches {
		if _, move := moving[id]; !move {
			continue
		}

		if match.PlayerAID == playerID {
			match.PlayerAID = newPlayer.ID
		}

		if match.PlayerBID == playerID {
			match.PlayerBID = newPlayer.ID
		}

		if match.WinnerID != nil && *match.WinnerID == playerID {
			winner := newPlayer.ID
			match.WinnerID = &winner
		}
	}

	s.resetEloLocked([]int64{playerID, newPlayer.ID})

	return newPlayer.ID, nil
}

// MergeLog implements identity.Store.
func (s *MemoryStore) MergeLog(_ context.Context, limit int) ([]identity.MergeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]identity.MergeRecord, len(s.mergeLog))
	copy(records, s.mergeLog)

	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// resetEloLocked mirrors the Postgres store: drop rating state for the
// given players and flag their rated matches for recompute.
func (s *MemoryStore) resetEloLocked(playerIDs []int64) {
	for _, id := range playerIDs {
		delete(s.states, id)
	}

	for _, match := range s.matches {
		if match.EloProcessedAt == nil {
			continue
		}

		for _, id := range playerIDs {
			if match.InvolvesPlayer(id) {
				match.EloNeedsRecompute = true

				break
			}
		}
	}
}

// --- ingest.TournamentStore ---

// UpsertTournament implements ingest.TournamentStore.
func (s *MemoryStore) UpsertTournament(_ context.Context, tournament *tennis.Tournament) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.tournaments {
		if existing.Code == tournament.Code && existing.Tour == tournament.Tour && existing.Gender == tournament.Gender {
			existing.Level = tournament.Level
			existing.Surface = tournament.Surface
			existing.City = tournament.City
			existing.Country = tournament.Country

			return id, nil
		}
	}

	s.nextTournamentID++

	stored := *tournament
	stored.ID = s.nextTournamentID
	s.tournaments[stored.ID] = &stored

	return stored.ID, nil
}

// UpsertEdition implements ingest.TournamentStore.
func (s *MemoryStore) UpsertEdition(_ context.Context, edition *tennis.TournamentEdition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.editions {
		if existing.TournamentID == edition.TournamentID && existing.Year == edition.Year {
			if edition.StartDate != nil {
				existing.StartDate = edition.StartDate
			}

			if edition.EndDate != nil {
				existing.EndDate = edition.EndDate
			}

			if edition.Surface != "" {
				existing.Surface = edition.Surface
			}

			return id, nil
		}
	}

	s.nextEditionID++

	stored := *edition
	stored.ID = s.nextEditionID
	s.editions[stored.ID] = &stored

	return stored.ID, nil
}

// --- ingest.MatchStore ---

// MatchByExternalID implements ingest.MatchStore.
func (s *MemoryStore) MatchByExternalID(_ context.Context, externalID string) (*tennis.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, match := range s.matches {
		if match.ExternalID == externalID {
			return copyMatch(match), nil
		}
	}

	return nil, ingest.ErrMatchNotFound
}

// FindMatch implements ingest.MatchStore.
func (s *MemoryStore) FindMatch(
	_ context.Context,
	editionID int64,
	round tennis.Round,
	playerAID, playerBID int64,
) (*tennis.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, match := range s.matches {
		if match.EditionID != editionID || match.Round != round {
			continue
		}

		if (match.PlayerAID == playerAID && match.PlayerBID == playerBID) ||
			(match.PlayerAID == playerBID && match.PlayerBID == playerAID) {
			return copyMatch(match), nil
		}
	}

	return nil, ingest.ErrMatchNotFound
}

// CreateMatch implements ingest.MatchStore.
func (s *MemoryStore) CreateMatch(_ context.Context, match *tennis.Match) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.matches {
		if existing.ExternalID == match.ExternalID {
			return 0, fmt.Errorf("duplicate match external id %q", match.ExternalID)
		}
	}

	s.nextMatchID++
	match.ID = s.nextMatchID
	match.CreatedAt = time.Now().UTC()
	match.UpdatedAt = match.CreatedAt

	s.matches[match.ID] = copyMatch(match)

	return match.ID, nil
}

// UpdateMatch implements ingest.MatchStore.
func (s *MemoryStore) UpdateMatch(_ context.Context, match *tennis.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.matches[match.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ingest.ErrMatchNotFound, match.ID)
	}

	updated := copyMatch(match)
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	updated.EloPreA = stored.EloPreA
	updated.EloPreB = stored.EloPreB
	updated.EloPostA = stored.EloPostA
	updated.EloPostB = stored.EloPostB
	updated.EloParamsVersion = stored.EloParamsVersion
	updated.EloProcessedAt = stored.EloProcessedAt

	s.matches[match.ID] = updated

	return nil
}

// CurrentRatings implements ingest.MatchStore.
func (s *MemoryStore) CurrentRatings(_ context.Context, playerIDs []int64) (map[int64]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := make(map[int64]float64, len(playerIDs))

	for _, id := range playerIDs {
		if state, ok := s.states[id]; ok {
			ratings[id] = state.Rating
		}
	}

	return ratings, nil
}

// --- elo.Store ---

// SetActiveParams installs a parameter set as the active one.
func (s *MemoryStore) SetActiveParams(params *elo.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = params
}

// ActiveParams implements elo.Store.
func (s *MemoryStore) ActiveParams(context.Context) (*elo.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.params == nil {
		return nil, elo.ErrNoActiveParameterSet
	}

	return s.params, nil
}

// UnprocessedMatches implements elo.Store.
func (s *MemoryStore) UnprocessedMatches(
	_ context.Context,
	playerIDs []int64,
	afterOrder, afterID int64,
	limit int,
) ([]elo.RatedMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := make(map[int64]struct{}, len(playerIDs))
	for _, id := range playerIDs {
		filter[id] = struct{}{}
	}

	var rated []elo.RatedMatch

	for _, match := range s.matches {
		if !match.Status.IsTerminal() {
			continue
		}

		if match.EloProcessedAt != nil && !match.EloNeedsRecompute {
			continue
		}

		if match.TemporalOrder < afterOrder ||
			(match.TemporalOrder == afterOrder && match.ID <= afterID) {
			continue
		}

		if len(filter) > 0 {
			_, hasA := filter[match.PlayerAID]
			_, hasB := filter[match.PlayerBID]

			if !hasA && !hasB {
				continue
			}
		}

		rated = append(rated, s.ratedMatchLocked(match))
	}

	sort.Slice(rated, func(i, j int) bool {
		if rated[i].TemporalOrder != rated[j].TemporalOrder {
			return rated[i].TemporalOrder < rated[j].TemporalOrder
		}

		return rated[i].MatchID < rated[j].MatchID
	})

	if limit > 0 && len(rated) > limit {
		rated = rated[:limit]
	}

	return rated, nil
}

func (s *MemoryStore) ratedMatchLocked(match *tennis.Match) elo.RatedMatch {
	rated := elo.RatedMatch{
		MatchID:       match.ID,
		ExternalID:    match.ExternalID,
		PlayerAID:     match.PlayerAID,
		PlayerBID:     match.PlayerBID,
		Score:         match.Score,
		Status:        match.Status,
		MatchDate:     match.MatchDate,
		TemporalOrder: match.TemporalOrder,
	}

	if match.WinnerID != nil {
		rated.WinnerID = *match.WinnerID
	}

	if edition, ok := s.editions[match.EditionID]; ok {
		if tournament, ok := s.tournaments[edition.TournamentID]; ok {
			rated.LevelCode = tennis.LevelCodeFor(tournament.Level, tournament.Gender)
		}
	}

	return rated
}

// PlayerStates implements elo.Store.
func (s *MemoryStore) PlayerStates(_ context.Context, playerIDs []int64) (map[int64]*elo.PlayerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[int64]*elo.PlayerState, len(playerIDs))

	for _, id := range playerIDs {
		if state, ok := s.states[id]; ok {
			copied := *state
			states[id] = &copied
		}
	}

	return states, nil
}

// RecoverBackfill implements elo.Store.
func (s *MemoryStore) RecoverBackfill(_ context.Context, backfillPoint int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make(map[int64]struct{})
	cleared := int64(0)

	for _, match := range s.matches {
		if match.TemporalOrder < backfillPoint {
			continue
		}

		if match.EloProcessedAt == nil && !match.EloNeedsRecompute {
			continue
		}

		if match.EloProcessedAt != nil {
			affected[match.PlayerAID] = struct{}{}
			affected[match.PlayerBID] = struct{}{}
		}

		match.EloPreA = nil
		match.EloPreB = nil
		match.EloPostA = nil
		match.EloPostB = nil
		match.EloParamsVersion = nil
		match.EloProcessedAt = nil
		match.EloNeedsRecompute = false
		cleared++
	}

	for playerID := range affected {
		delete(s.states, playerID)

		if state := s.rebuildStateLocked(playerID, backfillPoint); state != nil {
			s.states[playerID] = state
		}
	}

	return cleared, nil
}

// rebuildStateLocked recomputes one player's state from their processed
// matches before the backfill point.
func (s *MemoryStore) rebuildStateLocked(playerID, backfillPoint int64) *elo.PlayerState {
	state := &elo.PlayerState{PlayerID: playerID}

	var latestOrder int64 = -1

	latestID := int64(-1)

	for _, match := range s.matches {
		if match.EloProcessedAt == nil || match.TemporalOrder >= backfillPoint {
			continue
		}

		if !match.InvolvesPlayer(playerID) {
			continue
		}

		rating := match.EloPostA
		if match.PlayerBID == playerID {
			rating = match.EloPostB
		}

		if rating == nil {
			continue
		}

		state.MatchCount++

		if *rating > state.PeakRating {
			state.PeakRating = *rating
		}

		if match.TemporalOrder > latestOrder ||
			(match.TemporalOrder == latestOrder && match.ID > latestID) {
			latestOrder = match.TemporalOrder
			latestID = match.ID
			state.Rating = *rating
			state.LastTemporalOrder = match.TemporalOrder
			state.LastMatchDate = match.MatchDate
		}
	}

	if state.MatchCount == 0 {
		return nil
	}

	state.UpdatedAt = time.Now().UTC()

	return state
}

// ApplyUpdates implements elo.Store.
func (s *MemoryStore) ApplyUpdates(
	_ context.Context,
	paramsID int64,
	updates []elo.MatchUpdate,
	states []*elo.PlayerState,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	for _, update := range updates {
		match, ok := s.matches[update.MatchID]
		if !ok {
			return fmt.Errorf("%w: id %d", ingest.ErrMatchNotFound, update.MatchID)
		}

		preA, preB := elo.Round2(update.PreA), elo.Round2(update.PreB)
		postA, postB := elo.Round2(update.PostA), elo.Round2(update.PostB)
		version := paramsID
		processedAt := now

		match.EloPreA = &preA
		match.EloPreB = &preB
		match.EloPostA = &postA
		match.EloPostB = &postB
		match.EloParamsVersion = &version
		match.EloProcessedAt = &processedAt
		match.EloNeedsRecompute = false
		match.UpdatedAt = now
	}

	for _, state := range states {
		copied := *state
		copied.Rating = elo.Round2(copied.Rating)
		copied.PeakRating = elo.Round2(copied.PeakRating)
		copied.UpdatedAt = now
		s.states[copied.PlayerID] = &copied
	}

	return nil
}

// RefreshPendingSnapshots implements elo.Store.
func (s *MemoryStore) RefreshPendingSnapshots(_ context.Context, playerIDs []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshed := int64(0)

	for _, match := range s.matches {
		if !match.IsPending() {
			continue
		}

		for _, playerID := range playerIDs {
			state, ok := s.states[playerID]
			if !ok {
				continue
			}

			if match.PlayerAID == playerID {
				rating := state.Rating
				match.EloPreA = &rating
				refreshed++
			}

			if match.PlayerBID == playerID {
				rating := state.Rating
				match.EloPreB = &rating
				refreshed++
			}
		}
	}

	return refreshed, nil
}

// ResetAllRatings implements elo.Store.
func (s *MemoryStore) ResetAllRatings(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[int64]*elo.PlayerState)

	for _, match := range s.matches {
		match.EloPreA = nil
		match.EloPreB = nil
		match.EloPostA = nil
		match.EloPostB = nil
		match.EloParamsVersion = nil
		match.EloProcessedAt = nil
		match.EloNeedsRecompute = false
	}

	return nil
}

// --- copy helpers ---

func copyPlayer(player *tennis.Player) *tennis.Player {
	copied := *player
	copied.ATPID = copyStringPtr(player.ATPID)
	copied.WTAID = copyStringPtr(player.WTAID)
	copied.ITFID = copyStringPtr(player.ITFID)
	copied.BirthDate = copyTimePtr(player.BirthDate)
	copied.HeightCM = copyIntPtr(player.HeightCM)
	copied.TurnedPro = copyIntPtr(player.TurnedPro)

	return &copied
}

func copyMatch(match *tennis.Match) *tennis.Match {
	copied := *match
	copied.SeedA = copyIntPtr(match.SeedA)
	copied.SeedB = copyIntPtr(match.SeedB)
	copied.WinnerID = copyInt64Ptr(match.WinnerID)
	copied.RetirementSet = copyIntPtr(match.RetirementSet)
	copied.MatchDate = copyTimePtr(match.MatchDate)
	copied.ScheduledDate = copyTimePtr(match.ScheduledDate)
	copied.ScheduledDatetime = copyTimePtr(match.ScheduledDatetime)
	copied.DurationMinutes = copyIntPtr(match.DurationMinutes)
	copied.EloPreA = copyFloatPtr(match.EloPreA)
	copied.EloPreB = copyFloatPtr(match.EloPreB)
	copied.EloPostA = copyFloatPtr(match.EloPostA)
	copied.EloPostB = copyFloatPtr(match.EloPostB)
	copied.EloParamsVersion = copyInt64Ptr(match.EloParamsVersion)
	copied.EloProcessedAt = copyTimePtr(match.EloProcessedAt)
	copied.ScoreStructured = append([]tennis.SetScore(nil), match.ScoreStructured...)

	return &copied
}

func copyReviewItem(item *identity.ReviewItem) *identity.ReviewItem {
	copied := *item
	copied.ResolvedPlayerID = copyInt64Ptr(item.ResolvedPlayerID)
	copied.ResolvedAt = copyTimePtr(item.ResolvedAt)
	copied.Suggestions = append([]identity.Suggestion(nil), item.Suggestions...)

	if item.MatchContext != nil {
		matchContext := *item.MatchContext
		copied.MatchContext = &matchContext
	}

	return &copied
}

func coalesceDemographics(keep, merged *tennis.Player) {
	if keep.Nationality == "" {
		keep.Nationality = merged.Nationality
	}

	if keep.BirthDate == nil {
		keep.BirthDate = copyTimePtr(merged.BirthDate)
	}

	if keep.HeightCM == nil {
		keep.HeightCM = copyIntPtr(merged.HeightCM)
	}

	if keep.Plays == "" {
		keep.Plays = merged.Plays
	}

	if keep.Backhand == "" {
		keep.Backhand = merged.Backhand
	}

	if keep.TurnedPro == nil {
		keep.TurnedPro = copyIntPtr(merged.TurnedPro)
	}
}

func copyStringPtr(value *string) *string {
	if value == nil {
		return nil
	}

	copied := *value

	return &copied
}

func copyIntPtr(value *int) *int {
	if value == nil {
		return nil
	}

	copied := *value

	return &copied
}

func copyInt64Ptr(value *int64) *int64 {
	if value == nil {
		return nil
	}

	copied := *value

	return &copied
}

func copyFloatPtr(value *float64) *float64 {
	if value == nil {
		return nil
	}

	copied := *value

	return &copied
}

func copyTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}

	copied := *value

	return &copied
}
