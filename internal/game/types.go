// internal/game/types.go
//
// Core type definitions for the ladders game.
// Defines:
//   - Game, Team, Registration: identity and per-team position/gating state.
//   - ProofRecord: one accepted proof for a (game, team, tile).
//   - BoardRevision: the saved editor document plus its lock flag.
//   - Event: one row of the append-only domain event log.
//   - RollOutcome / Jump: result of resolving a die roll.

package game

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/robalobadob/ladders/internal/board"
)

// Status is the administrative lifecycle state of a game.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Phase is the time-derived view of a game used by projections.
type Phase string

const (
	PhasePrestart Phase = "prestart"
	PhaseRunning  Phase = "running"
	PhaseEnded    Phase = "ended"
)

// Event types recorded in the domain event log.
const (
	EventGameCreated      = "game_created"
	EventGameFinished     = "game_finished"
	EventTeamCreated      = "team_created"
	EventPlayerRegistered = "player_registered"
	EventRoll             = "roll"
	EventProof            = "proof"
	EventBoardSaved       = "board_saved"
	EventBoardLocked      = "board_locked"
	EventBoardUnlocked    = "board_unlocked"
)

// Game is one board-game session owned by a clan.
type Game struct {
	ID             string     `json:"id"`
	Clan           string     `json:"clan"`
	Name           string     `json:"name,omitempty"`
	BoardSize      int        `json:"boardSize"`
	Status         Status     `json:"status"`
	StartsAt       *time.Time `json:"startsAt,omitempty"`
	EndsAt         *time.Time `json:"endsAt,omitempty"`
	CurrentTurn    int        `json:"currentTurn"`
	JoinCodeDigest string     `json:"-"`
	HostHash       string     `json:"-"`
	WebhookURL     string     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Team is a group of players sharing one board position.
//
// AwaitingProof and PendingTile move together: PendingTile is non-nil iff
// AwaitingProof, and then equals Position.
type Team struct {
	ID             string    `json:"id"`
	GameID         string    `json:"gameId"`
	Ordinal        int       `json:"ordinal"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	CredentialHash string    `json:"-"`
	Position       int       `json:"position"`
	AwaitingProof  bool      `json:"awaitingProof"`
	PendingTile    *int      `json:"pendingTile,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// GatingConsistent reports whether the AwaitingProof/PendingTile pairing holds.
func (t Team) GatingConsistent() bool {
	if t.AwaitingProof != (t.PendingTile != nil) {
		return false
	}
	return t.PendingTile == nil || *t.PendingTile == t.Position
}

// ActiveIndex is the tile a team is currently working on.
func (t Team) ActiveIndex() int {
	if t.AwaitingProof && t.PendingTile != nil {
		return *t.PendingTile
	}
	return t.Position
}

// Registration is a participant's membership in a team. Immutable once created.
type Registration struct {
	ID             string    `json:"id"`
	GameID         string    `json:"gameId"`
	TeamID         string    `json:"teamId"`
	Participant    string    `json:"participant"`
	ParticipantKey string    `json:"-"`
	SessionID      string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ProofRecord is one accepted proof. At most one per (game, team, tile).
type ProofRecord struct {
	ID        string    `json:"id"`
	GameID    string    `json:"gameId"`
	TeamID    string    `json:"teamId"`
	TileIndex int       `json:"tileIndex"`
	Submitter string    `json:"submitter"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// BoardRevision is the saved editor document for a game.
type BoardRevision struct {
	GameID    string         `json:"gameId"`
	Document  board.Document `json:"document"`
	Locked    bool           `json:"locked"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Event is one entry of the append-only domain log.
type Event struct {
	ID      int64           `json:"id"`
	GameID  string          `json:"gameId"`
	TeamID  string          `json:"teamId,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewEvent builds an event with a JSON-encoded payload.
func NewEvent(gameID, teamID, typ string, payload any, at time.Time) Event {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return Event{GameID: gameID, TeamID: teamID, Type: typ, Payload: raw, At: at}
}

// Jump records a single redirect applied during a roll.
type Jump struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// RollOutcome is the result of resolving one die value.
type RollOutcome struct {
	Roll          int   `json:"roll"`
	From          int   `json:"from"`
	To            int   `json:"to"`
	Jump          *Jump `json:"jump,omitempty"`
	AwaitingProof bool  `json:"awaitingProof"`
	PendingTile   *int  `json:"pendingTile,omitempty"`
}

// NameKey is the comparison form of team names, clans and participant identities:
// trimmed, inner whitespace collapsed, lower-cased.
func NameKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
