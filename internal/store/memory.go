// internal/store/memory.go
//
// In-memory implementation of Store.
// A lightweight persistence layer for tests and ephemeral sessions.
//
// Characteristics:
//   - Entities kept in maps keyed by ID; values are copied in and out so
//     callers never alias stored state.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive);
//     each mutation and its event happen under one write lock, which gives the
//     same all-or-nothing behavior as the SQL transaction.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
)

type proofKey struct {
	gameID, teamID string
	tile           int
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu            sync.RWMutex
	games         map[string]game.Game
	teams         map[string]game.Team
	registrations map[string]game.Registration // keyed by gameID|participantKey
	boards        map[string]game.BoardRevision
	overrides     map[string]board.Overrides
	proofs        map[proofKey]game.ProofRecord
	events        map[string][]game.Event
	nextEvent     int64
}

var _ Store = (*memory)(nil)

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		games:         make(map[string]game.Game),
		teams:         make(map[string]game.Team),
		registrations: make(map[string]game.Registration),
		boards:        make(map[string]game.BoardRevision),
		overrides:     make(map[string]board.Overrides),
		proofs:        make(map[proofKey]game.ProofRecord),
		events:        make(map[string][]game.Event),
	}
}

func (m *memory) Close() error { return nil }

// appendLocked records ev; callers hold the write lock.
func (m *memory) appendLocked(ev game.Event) {
	m.nextEvent++
	ev.ID = m.nextEvent
	m.events[ev.GameID] = append(m.events[ev.GameID], ev)
}

// ------------------------------- games --------------------------------------

func (m *memory) CreateGame(ctx context.Context, g game.Game, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("%w: game %s", ErrConflict, g.ID)
	}
	if g.Status == game.StatusActive && g.JoinCodeDigest != "" {
		key := game.NameKey(g.Clan)
		for _, other := range m.games {
			if other.Status == game.StatusActive && other.JoinCodeDigest == g.JoinCodeDigest && game.NameKey(other.Clan) == key {
				return fmt.Errorf("%w: join code in use by game %s", ErrConflict, other.ID)
			}
		}
	}
	m.games[g.ID] = cloneGame(g)
	m.appendLocked(ev)
	return nil
}

func (m *memory) GetGame(ctx context.Context, id string) (game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return game.Game{}, ErrNotFound
	}
	return cloneGame(g), nil
}

func (m *memory) FindActiveGameByJoinCode(ctx context.Context, clan, digest string) (game.Game, error) {
	if digest == "" {
		return game.Game{}, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  game.Game
		found bool
	)
	key := game.NameKey(clan)
	for _, g := range m.games {
		if game.NameKey(g.Clan) != key || g.JoinCodeDigest != digest || g.Status != game.StatusActive {
			continue
		}
		if !found || g.CreatedAt.After(best.CreatedAt) {
			best, found = g, true
		}
	}
	if !found {
		return game.Game{}, ErrNotFound
	}
	return cloneGame(best), nil
}

func (m *memory) ListGames(ctx context.Context, clan string) ([]game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := game.NameKey(clan)
	out := []game.Game{}
	for _, g := range m.games {
		if game.NameKey(g.Clan) == key {
			out = append(out, cloneGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memory) FinishGame(ctx context.Context, id string, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return ErrNotFound
	}
	g.Status = game.StatusFinished
	m.games[id] = g
	m.appendLocked(ev)
	return nil
}

// ------------------------------- teams --------------------------------------

func (m *memory) CreateTeam(ctx context.Context, t game.Team, ev game.Event) (game.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[t.GameID]; !ok {
		return game.Team{}, ErrNotFound
	}
	next := 0
	key := game.NameKey(t.Name)
	for _, existing := range m.teams {
		if existing.GameID != t.GameID {
			continue
		}
		if game.NameKey(existing.Name) == key {
			return game.Team{}, fmt.Errorf("%w: team name %q", ErrConflict, t.Name)
		}
		if existing.Ordinal+1 > next {
			next = existing.Ordinal + 1
		}
	}
	if _, ok := m.teams[t.ID]; ok {
		return game.Team{}, fmt.Errorf("%w: team %s", ErrConflict, t.ID)
	}
	t.Ordinal = next
	m.teams[t.ID] = cloneTeam(t)
	ev.TeamID = t.ID
	m.appendLocked(ev)
	return cloneTeam(t), nil
}

func (m *memory) GetTeam(ctx context.Context, gameID, teamID string) (game.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[teamID]
	if !ok || t.GameID != gameID {
		return game.Team{}, ErrNotFound
	}
	return cloneTeam(t), nil
}

func (m *memory) FindTeamByName(ctx context.Context, gameID, name string) (game.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := game.NameKey(name)
	for _, t := range m.teams {
		if t.GameID == gameID && game.NameKey(t.Name) == key {
			return cloneTeam(t), nil
		}
	}
	return game.Team{}, ErrNotFound
}

func (m *memory) ListTeams(ctx context.Context, gameID string) ([]game.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []game.Team{}
	for _, t := range m.teams {
		if t.GameID == gameID {
			out = append(out, cloneTeam(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// --------------------------- registrations ----------------------------------

func regKey(gameID, participantKey string) string { return gameID + "|" + participantKey }

func (m *memory) CreateRegistration(ctx context.Context, r game.Registration, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[r.TeamID]; !ok {
		return ErrNotFound
	}
	k := regKey(r.GameID, r.ParticipantKey)
	if _, ok := m.registrations[k]; ok {
		return fmt.Errorf("%w: participant %q", ErrConflict, r.Participant)
	}
	m.registrations[k] = r
	m.appendLocked(ev)
	return nil
}

func (m *memory) FindRegistration(ctx context.Context, gameID, participantKey string) (game.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.registrations[regKey(gameID, participantKey)]
	if !ok {
		return game.Registration{}, ErrNotFound
	}
	return r, nil
}

func (m *memory) ListRegistrations(ctx context.Context, gameID string) ([]game.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []game.Registration{}
	for _, r := range m.registrations {
		if r.GameID == gameID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ------------------------------- board --------------------------------------

func (m *memory) Overrides(ctx context.Context, gameID string) (board.Overrides, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := board.Overrides{}
	for i, t := range m.overrides[gameID] {
		out[i] = cloneTile(t)
	}
	return out, nil
}

func (m *memory) GetBoard(ctx context.Context, gameID string) (game.BoardRevision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev, ok := m.boards[gameID]
	if !ok {
		return game.BoardRevision{}, ErrNotFound
	}
	return rev, nil
}

func (m *memory) SaveBoard(ctx context.Context, rev game.BoardRevision, tiles []board.Tile, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[rev.GameID]; !ok {
		return ErrNotFound
	}
	if cur, ok := m.boards[rev.GameID]; ok && cur.Locked {
		return ErrLocked
	}
	rev.Locked = false
	m.boards[rev.GameID] = rev
	ov := make(board.Overrides, len(tiles))
	for _, t := range tiles {
		ov[t.Index] = cloneTile(t)
	}
	m.overrides[rev.GameID] = ov
	m.appendLocked(ev)
	return nil
}

func (m *memory) SetBoardLock(ctx context.Context, gameID string, locked bool, fallback game.BoardRevision, ev game.Event) (game.BoardRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[gameID]; !ok {
		return game.BoardRevision{}, ErrNotFound
	}
	rev, ok := m.boards[gameID]
	if !ok {
		rev = fallback
		rev.GameID = gameID
	}
	rev.Locked = locked
	m.boards[gameID] = rev
	m.appendLocked(ev)
	return rev, nil
}

// ------------------------------- gating -------------------------------------

func (m *memory) ApplyRoll(ctx context.Context, gameID, teamID string, out game.RollOutcome, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok || t.GameID != gameID {
		return ErrNotFound
	}
	if t.AwaitingProof || t.PendingTile != nil || t.Position != out.From {
		return ErrStale
	}
	t.Position = out.To
	t.AwaitingProof = out.AwaitingProof
	t.PendingTile = nil
	if out.PendingTile != nil {
		p := *out.PendingTile
		t.PendingTile = &p
	}
	m.teams[teamID] = t
	m.appendLocked(ev)
	return nil
}

func (m *memory) RecordProof(ctx context.Context, p game.ProofRecord, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[p.TeamID]
	if !ok || t.GameID != p.GameID {
		return ErrNotFound
	}
	k := proofKey{p.GameID, p.TeamID, p.TileIndex}
	if _, dup := m.proofs[k]; dup {
		return fmt.Errorf("%w: proof for tile %d", ErrConflict, p.TileIndex)
	}
	if !t.AwaitingProof || t.PendingTile == nil || *t.PendingTile != p.TileIndex {
		return ErrStale
	}
	m.proofs[k] = p
	t.AwaitingProof = false
	t.PendingTile = nil
	m.teams[p.TeamID] = t
	m.appendLocked(ev)
	return nil
}

func (m *memory) ListProofs(ctx context.Context, gameID string) ([]game.ProofRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []game.ProofRecord{}
	for _, p := range m.proofs {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ------------------------------- events -------------------------------------

func (m *memory) CountEvents(ctx context.Context, gameID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events[gameID])), nil
}

// ------------------------------- copies -------------------------------------

func cloneGame(g game.Game) game.Game {
	if g.StartsAt != nil {
		t := *g.StartsAt
		g.StartsAt = &t
	}
	if g.EndsAt != nil {
		t := *g.EndsAt
		g.EndsAt = &t
	}
	return g
}

func cloneTeam(t game.Team) game.Team {
	if t.PendingTile != nil {
		p := *t.PendingTile
		t.PendingTile = &p
	}
	return t
}

func cloneTile(t board.Tile) board.Tile {
	if t.JumpTo != nil {
		j := *t.JumpTo
		t.JumpTo = &j
	}
	return t
}
