// internal/game/engine.go
//
// Pure movement rules for a single roll.
// Responsibilities:
//   - Advance a team by a die value and clamp to the board.
//   - Apply at most one jump redirect (targets are never re-resolved).
//   - Derive gating from the tile at the final position.
//   - Derive the time phase of a game.
//
// Nothing here touches storage; callers supply tile lookups.

package game

import (
	"time"

	"github.com/robalobadob/ladders/internal/board"
)

// TileFunc resolves the effective tile at an index.
type TileFunc func(index int) board.Tile

// Move resolves die from position from on a board of the given size.
func Move(from, die, size int, tileAt TileFunc) RollOutcome {
	from = board.Clamp(from, size)
	to := board.Clamp(from+die, size)
	out := RollOutcome{Roll: die, From: from}

	landed := tileAt(to)
	if landed.Kind == board.KindJump && landed.JumpTo != nil {
		target := board.Clamp(*landed.JumpTo, size)
		out.Jump = &Jump{From: to, To: target}
		to = target
	}
	out.To = to

	if tileAt(to).Gating() {
		out.AwaitingProof = true
		pending := to
		out.PendingTile = &pending
	}
	return out
}

// PhaseAt derives the phase of g at now.
func PhaseAt(g Game, now time.Time) Phase {
	if g.StartsAt != nil && now.Before(*g.StartsAt) {
		return PhasePrestart
	}
	if g.Status == StatusFinished {
		return PhaseEnded
	}
	if g.EndsAt != nil && !now.Before(*g.EndsAt) {
		return PhaseEnded
	}
	return PhaseRunning
}
