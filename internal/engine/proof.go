package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

const maxReferenceLen = 2048

// ProofInput is the payload of POST /games/:id/proof. TileIndex is optional;
// when present it must equal the team's pending tile.
type ProofInput struct {
	Reference string `json:"reference"`
	TileIndex *int   `json:"tileIndex"`
}

// SubmitProof records proof for the session team's pending tile and clears
// its gating.
func (s *Service) SubmitProof(ctx context.Context, gameID string, sess auth.Session, in ProofInput) (game.ProofRecord, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return game.ProofRecord{}, err
	}
	if g.Status != game.StatusActive {
		return game.ProofRecord{}, apperr.State(apperr.CodeInactive, "game is finished")
	}
	if _, err := s.authorizeSession(ctx, g.ID, sess); err != nil {
		return game.ProofRecord{}, err
	}
	ref := strings.TrimSpace(in.Reference)
	if ref == "" || len(ref) > maxReferenceLen {
		return game.ProofRecord{}, apperr.Validationf(apperr.CodeInvalidReference, "reference",
			"reference must be 1-%d characters", maxReferenceLen)
	}

	unlock := s.locks.Lock(sess.TeamID)
	defer unlock()

	team, err := s.store.GetTeam(ctx, g.ID, sess.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return game.ProofRecord{}, apperr.NotFound(apperr.CodeTeamNotFound)
	}
	if err != nil {
		return game.ProofRecord{}, fmt.Errorf("get team: %w", err)
	}
	if !team.AwaitingProof || team.PendingTile == nil {
		return game.ProofRecord{}, apperr.State(apperr.CodeNoProofExpected, "team is not awaiting proof")
	}
	pending := *team.PendingTile
	if in.TileIndex != nil && *in.TileIndex != pending {
		return game.ProofRecord{}, apperr.State(apperr.CodeTileMismatch,
			fmt.Sprintf("proof is for tile %d but team is on tile %d", *in.TileIndex, pending))
	}

	ov, err := s.store.Overrides(ctx, g.ID)
	if err != nil {
		return game.ProofRecord{}, fmt.Errorf("load tiles: %w", err)
	}
	tile := board.Resolve(ov, pending, g.BoardSize)
	if !tile.Gating() {
		return game.ProofRecord{}, apperr.State(apperr.CodeNotATaskTile,
			fmt.Sprintf("tile %d is no longer a task", pending))
	}

	now := s.clock()
	p := game.ProofRecord{
		ID:        s.newID(),
		GameID:    g.ID,
		TeamID:    team.ID,
		TileIndex: pending,
		Submitter: sess.Participant,
		Reference: ref,
		CreatedAt: now,
	}
	ev := game.NewEvent(g.ID, team.ID, game.EventProof, map[string]any{"tile": pending, "submitter": p.Submitter}, now)
	err = s.store.RecordProof(ctx, p, ev)
	switch {
	case errors.Is(err, store.ErrConflict):
		return game.ProofRecord{}, apperr.Conflict(apperr.CodeDuplicateProof, "proof for this tile was already accepted")
	case errors.Is(err, store.ErrStale):
		return game.ProofRecord{}, apperr.State(apperr.CodeNoProofExpected, "team is not awaiting proof")
	case err != nil:
		return game.ProofRecord{}, fmt.Errorf("record proof: %w", err)
	}

	log.Info().Str("gameId", g.ID).Str("teamId", team.ID).Int("tile", pending).Msg("proof accepted")
	s.notifier.Send(g.WebhookURL, proofMessage(team, p, tile))
	return p, nil
}

func proofMessage(t game.Team, p game.ProofRecord, tile board.Tile) string {
	title := tile.Title
	if title == "" {
		title = fmt.Sprintf("tile %d", tile.Index)
	}
	return fmt.Sprintf("%s completed %s (submitted by %s): %s", t.Name, title, p.Submitter, p.Reference)
}
