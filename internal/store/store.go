// internal/store/store.go
//
// Persistence interface for the ladders engine.
//
// Each mutating method is one atomic unit of work: the entity change and
// its domain event are committed together or not at all. Reads return
// ErrNotFound for missing rows so callers never inspect zero values.
//
// Implementations:
//   - SQLite (sqlite.go): durable, WAL journaled, migrations embedded.
//   - Memory (memory.go): process-local, used by tests and ephemeral runs.

package store

import (
	"context"
	"errors"

	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")
	// ErrLocked is returned when saving a board whose revision is locked.
	ErrLocked = errors.New("board locked")
	// ErrStale is returned when gating fields changed between read and write.
	ErrStale = errors.New("stale team state")
)

// Store defines typed read/write operations per entity.
type Store interface {
	// CreateGame returns ErrConflict when another active game of the same clan
	// uses the same join-code digest.
	CreateGame(ctx context.Context, g game.Game, ev game.Event) error
	GetGame(ctx context.Context, id string) (game.Game, error)
	// FindActiveGameByJoinCode matches a clan's active game by join-code digest.
	FindActiveGameByJoinCode(ctx context.Context, clan, digest string) (game.Game, error)
	ListGames(ctx context.Context, clan string) ([]game.Game, error)
	FinishGame(ctx context.Context, id string, ev game.Event) error

	// CreateTeam assigns the next ordinal (current max + 1) and returns the stored team.
	CreateTeam(ctx context.Context, t game.Team, ev game.Event) (game.Team, error)
	GetTeam(ctx context.Context, gameID, teamID string) (game.Team, error)
	FindTeamByName(ctx context.Context, gameID, name string) (game.Team, error)
	ListTeams(ctx context.Context, gameID string) ([]game.Team, error)

	CreateRegistration(ctx context.Context, r game.Registration, ev game.Event) error
	FindRegistration(ctx context.Context, gameID, participantKey string) (game.Registration, error)
	ListRegistrations(ctx context.Context, gameID string) ([]game.Registration, error)

	Overrides(ctx context.Context, gameID string) (board.Overrides, error)
	GetBoard(ctx context.Context, gameID string) (game.BoardRevision, error)
	// SaveBoard stores rev and replaces every override of the game with tiles.
	SaveBoard(ctx context.Context, rev game.BoardRevision, tiles []board.Tile, ev game.Event) error
	// SetBoardLock toggles the lock flag, inserting fallback first when no revision exists.
	SetBoardLock(ctx context.Context, gameID string, locked bool, fallback game.BoardRevision, ev game.Event) (game.BoardRevision, error)

	// ApplyRoll writes position and gating for a team that is not awaiting proof
	// and still stands on out.From; otherwise it returns ErrStale.
	ApplyRoll(ctx context.Context, gameID, teamID string, out game.RollOutcome, ev game.Event) error
	// RecordProof inserts p and clears the team's gating on p.TileIndex.
	RecordProof(ctx context.Context, p game.ProofRecord, ev game.Event) error
	ListProofs(ctx context.Context, gameID string) ([]game.ProofRecord, error)

	CountEvents(ctx context.Context, gameID string) (int64, error)

	Close() error
}
