package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/cache"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

// StateView is the spectator projection of a game. Found is false (and
// Teams empty) for an unknown game.
type StateView struct {
	Found bool        `json:"found"`
	Game  *GameView   `json:"game,omitempty"`
	Teams []TeamState `json:"teams"`
}

// GameView is the public part of a game.
type GameView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Clan        string      `json:"clan"`
	BoardSize   int         `json:"boardSize"`
	Status      game.Status `json:"status"`
	Phase       game.Phase  `json:"phase"`
	StartsAt    *time.Time  `json:"startsAt,omitempty"`
	EndsAt      *time.Time  `json:"endsAt,omitempty"`
	CurrentTurn int         `json:"currentTurn"`
}

// TeamState is one team in the spectator view.
type TeamState struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Ordinal       int        `json:"ordinal"`
	Position      int        `json:"position"`
	AwaitingProof bool       `json:"awaitingProof"`
	PendingTile   *int       `json:"pendingTile,omitempty"`
	Members       []string   `json:"members"`
	Tile          board.Tile `json:"tile"`
	ActiveTile    board.Tile `json:"activeTile"`
	Proofs        int        `json:"proofs"`
}

func gameView(g game.Game, phase game.Phase) *GameView {
	return &GameView{
		ID: g.ID, Name: g.Name, Clan: g.Clan, BoardSize: g.BoardSize, Status: g.Status,
		Phase: phase, StartsAt: g.StartsAt, EndsAt: g.EndsAt, CurrentTurn: g.CurrentTurn,
	}
}

// State builds the full spectator view.
func (s *Service) State(ctx context.Context, gameID string) (StateView, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return StateView{Teams: []TeamState{}}, nil
	}
	if err != nil {
		return StateView{}, fmt.Errorf("get game: %w", err)
	}
	teams, err := s.store.ListTeams(ctx, g.ID)
	if err != nil {
		return StateView{}, fmt.Errorf("list teams: %w", err)
	}
	regs, err := s.store.ListRegistrations(ctx, g.ID)
	if err != nil {
		return StateView{}, fmt.Errorf("list registrations: %w", err)
	}
	proofs, err := s.store.ListProofs(ctx, g.ID)
	if err != nil {
		return StateView{}, fmt.Errorf("list proofs: %w", err)
	}
	ov, err := s.store.Overrides(ctx, g.ID)
	if err != nil {
		return StateView{}, fmt.Errorf("load tiles: %w", err)
	}

	members := make(map[string][]string, len(teams))
	for _, r := range regs {
		members[r.TeamID] = append(members[r.TeamID], r.Participant)
	}
	proofCount := make(map[string]int, len(teams))
	for _, p := range proofs {
		proofCount[p.TeamID]++
	}

	view := StateView{Found: true, Game: gameView(g, game.PhaseAt(g, s.clock())), Teams: make([]TeamState, 0, len(teams))}
	for _, t := range teams {
		m := members[t.ID]
		if m == nil {
			m = []string{}
		}
		view.Teams = append(view.Teams, TeamState{
			ID:            t.ID,
			Name:          t.Name,
			Color:         t.Color,
			Ordinal:       t.Ordinal,
			Position:      t.Position,
			AwaitingProof: t.AwaitingProof,
			PendingTile:   t.PendingTile,
			Members:       m,
			Tile:          board.Resolve(ov, t.Position, g.BoardSize),
			ActiveTile:    board.Resolve(ov, t.ActiveIndex(), g.BoardSize),
			Proofs:        proofCount[t.ID],
		})
	}
	return view, nil
}

// OverlayView is the compact single-team projection for stream overlays.
type OverlayView struct {
	GameID      string         `json:"gameId"`
	Name        string         `json:"name,omitempty"`
	BoardSize   int            `json:"boardSize"`
	Status      game.Status    `json:"status"`
	Phase       game.Phase     `json:"phase"`
	StartsAt    *time.Time     `json:"startsAt,omitempty"`
	EndsAt      *time.Time     `json:"endsAt,omitempty"`
	Revision    int64          `json:"revision"`
	Token       string         `json:"etag"`
	Participant string         `json:"participant"`
	CanRoll     bool           `json:"canRoll"`
	Team        *OverlayTeam   `json:"team,omitempty"`
	Standings   []OverlayEntry `json:"standings"`
}

// OverlayTeam is the participant's own team.
type OverlayTeam struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Position      int        `json:"position"`
	AwaitingProof bool       `json:"awaitingProof"`
	PendingTile   *int       `json:"pendingTile,omitempty"`
	Tile          board.Tile `json:"tile"`
}

// OverlayEntry is one row of the standings strip.
type OverlayEntry struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

// OverlayResult is a serialized overlay, or NotModified when the caller's
// validator still matches.
type OverlayResult struct {
	Token       string
	NotModified bool
	Body        []byte
}

// revision is the cheap part of an overlay: everything its token depends on.
type revision struct {
	game     game.Game
	phase    game.Phase
	events   int64
	revision int64
	token    string
}

func (s *Service) overlayRevision(ctx context.Context, gameID string) (revision, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return revision{}, err
	}
	events, err := s.store.CountEvents(ctx, g.ID)
	if err != nil {
		return revision{}, fmt.Errorf("count events: %w", err)
	}
	var boardMillis int64
	rev, err := s.store.GetBoard(ctx, g.ID)
	switch {
	case err == nil:
		boardMillis = rev.UpdatedAt.UnixMilli()
	case !errors.Is(err, store.ErrNotFound):
		return revision{}, fmt.Errorf("get board: %w", err)
	}
	r := revision{game: g, phase: game.PhaseAt(g, s.clock()), events: events, revision: max(events, boardMillis)}
	r.token = strconv.FormatInt(r.revision, 10) + "-" + strconv.FormatInt(events, 10) + "-" + string(r.phase)
	return r, nil
}

// Overlay returns the serialized overlay for participant. When any validator
// equals the current token, or is "*", it short-circuits with NotModified.
func (s *Service) Overlay(ctx context.Context, gameID, participant string, validators ...string) (OverlayResult, error) {
	r, err := s.overlayRevision(ctx, gameID)
	if err != nil {
		return OverlayResult{}, err
	}
	for _, v := range validators {
		if v == "*" || (v != "" && v == r.token) {
			return OverlayResult{Token: r.token, NotModified: true}, nil
		}
	}

	key := cache.OverlayKey(r.game.ID, game.NameKey(participant), r.token)
	if body, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("gameId", r.game.ID).Msg("overlay cache read")
	} else if ok {
		return OverlayResult{Token: r.token, Body: body}, nil
	}

	view, err := s.buildOverlay(ctx, r, participant)
	if err != nil {
		return OverlayResult{}, err
	}
	body, err := json.Marshal(view)
	if err != nil {
		return OverlayResult{}, fmt.Errorf("encode overlay: %w", err)
	}
	if err := s.cache.Set(ctx, key, body); err != nil {
		log.Warn().Err(err).Str("gameId", r.game.ID).Msg("overlay cache write")
	}
	return OverlayResult{Token: r.token, Body: body}, nil
}

// BuildOverlay builds the overlay without caching or validators.
func (s *Service) BuildOverlay(ctx context.Context, gameID, participant string) (OverlayView, error) {
	r, err := s.overlayRevision(ctx, gameID)
	if err != nil {
		return OverlayView{}, err
	}
	return s.buildOverlay(ctx, r, participant)
}

func (s *Service) buildOverlay(ctx context.Context, r revision, participant string) (OverlayView, error) {
	g := r.game
	teams, err := s.store.ListTeams(ctx, g.ID)
	if err != nil {
		return OverlayView{}, fmt.Errorf("list teams: %w", err)
	}
	view := OverlayView{
		GameID:      g.ID,
		Name:        g.Name,
		BoardSize:   g.BoardSize,
		Status:      g.Status,
		Phase:       r.phase,
		StartsAt:    g.StartsAt,
		EndsAt:      g.EndsAt,
		Revision:    r.revision,
		Token:       r.token,
		Participant: cleanName(participant),
		Standings:   make([]OverlayEntry, 0, len(teams)),
	}
	for _, t := range teams {
		view.Standings = append(view.Standings, OverlayEntry{Name: t.Name, Color: t.Color, Position: t.Position})
	}

	key := game.NameKey(participant)
	if key == "" {
		return view, nil
	}
	reg, err := s.store.FindRegistration(ctx, g.ID, key)
	if errors.Is(err, store.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return OverlayView{}, fmt.Errorf("find registration: %w", err)
	}
	view.Participant = reg.Participant

	var team *game.Team
	for i := range teams {
		if teams[i].ID == reg.TeamID {
			team = &teams[i]
			break
		}
	}
	if team == nil {
		return view, nil
	}
	ov, err := s.store.Overrides(ctx, g.ID)
	if err != nil {
		return OverlayView{}, fmt.Errorf("load tiles: %w", err)
	}
	view.Team = &OverlayTeam{
		ID:            team.ID,
		Name:          team.Name,
		Color:         team.Color,
		Position:      team.Position,
		AwaitingProof: team.AwaitingProof,
		PendingTile:   team.PendingTile,
		Tile:          board.Resolve(ov, team.ActiveIndex(), g.BoardSize),
	}
	view.CanRoll = !team.AwaitingProof &&
		r.phase == game.PhaseRunning &&
		g.Status == game.StatusActive &&
		team.Ordinal == g.CurrentTurn
	return view, nil
}
