package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

// GetBoard returns the saved document, or the Start/Finish default when the
// game has none yet.
func (s *Service) GetBoard(ctx context.Context, gameID string) (game.BoardRevision, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return game.BoardRevision{}, err
	}
	rev, err := s.store.GetBoard(ctx, g.ID)
	if errors.Is(err, store.ErrNotFound) {
		return game.BoardRevision{GameID: g.ID, Document: board.DefaultDocument(g.BoardSize)}, nil
	}
	if err != nil {
		return game.BoardRevision{}, fmt.Errorf("get board: %w", err)
	}
	return rev, nil
}

// SaveBoard validates raw as a board document for the game, stores it and
// rebuilds the tile overrides from it.
func (s *Service) SaveBoard(ctx context.Context, gameID, hostPassword string, raw []byte) (game.BoardRevision, error) {
	g, err := s.authorizeHost(ctx, gameID, hostPassword)
	if err != nil {
		return game.BoardRevision{}, err
	}
	doc, err := board.Parse(raw)
	if err != nil {
		return game.BoardRevision{}, err
	}
	if err := doc.Validate(g.BoardSize); err != nil {
		return game.BoardRevision{}, err
	}

	prev, err := s.store.GetBoard(ctx, g.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return game.BoardRevision{}, fmt.Errorf("get board: %w", err)
	}
	if err == nil && prev.Locked {
		return game.BoardRevision{}, apperr.Conflict(apperr.CodeBoardLocked, "board is locked")
	}

	rev := game.BoardRevision{GameID: g.ID, Document: doc, Locked: prev.Locked, UpdatedAt: s.nextUpdate(prev.UpdatedAt)}
	tiles := doc.Overrides()
	ev := game.NewEvent(g.ID, "", game.EventBoardSaved, map[string]any{"tiles": len(tiles)}, rev.UpdatedAt)
	err = s.store.SaveBoard(ctx, rev, tiles, ev)
	if errors.Is(err, store.ErrLocked) {
		return game.BoardRevision{}, apperr.Conflict(apperr.CodeBoardLocked, "board is locked")
	}
	if err != nil {
		return game.BoardRevision{}, fmt.Errorf("save board: %w", err)
	}
	log.Info().Str("gameId", g.ID).Int("tiles", len(tiles)).Msg("board saved")
	return rev, nil
}

// LockBoard freezes the board document. Requires the host password.
func (s *Service) LockBoard(ctx context.Context, gameID, hostPassword string) (game.BoardRevision, error) {
	return s.setLock(ctx, gameID, hostPassword, true)
}

// UnlockBoard reopens the board document for edits. Requires the host password.
func (s *Service) UnlockBoard(ctx context.Context, gameID, hostPassword string) (game.BoardRevision, error) {
	return s.setLock(ctx, gameID, hostPassword, false)
}

func (s *Service) setLock(ctx context.Context, gameID, hostPassword string, locked bool) (game.BoardRevision, error) {
	g, err := s.authorizeHost(ctx, gameID, hostPassword)
	if err != nil {
		return game.BoardRevision{}, err
	}
	now := s.clock()
	fallback := game.BoardRevision{GameID: g.ID, Document: board.DefaultDocument(g.BoardSize), UpdatedAt: now}
	typ := game.EventBoardUnlocked
	if locked {
		typ = game.EventBoardLocked
	}
	rev, err := s.store.SetBoardLock(ctx, g.ID, locked, fallback, game.NewEvent(g.ID, "", typ, nil, now))
	if err != nil {
		return game.BoardRevision{}, fmt.Errorf("set board lock: %w", err)
	}
	log.Info().Str("gameId", g.ID).Bool("locked", locked).Msg("board lock changed")
	return rev, nil
}

// FinishGame marks the game finished. It is the only status transition.
func (s *Service) FinishGame(ctx context.Context, gameID, hostPassword string) (game.Game, error) {
	g, err := s.authorizeHost(ctx, gameID, hostPassword)
	if err != nil {
		return game.Game{}, err
	}
	if g.Status == game.StatusFinished {
		return game.Game{}, apperr.State(apperr.CodeEnded, "game is already finished")
	}
	now := s.clock()
	if err := s.store.FinishGame(ctx, g.ID, game.NewEvent(g.ID, "", game.EventGameFinished, nil, now)); err != nil {
		return game.Game{}, fmt.Errorf("finish game: %w", err)
	}
	g.Status = game.StatusFinished
	log.Info().Str("gameId", g.ID).Msg("game finished")
	return g, nil
}

// nextUpdate keeps board timestamps strictly increasing at millisecond
// resolution so the overlay revision advances on every save.
func (s *Service) nextUpdate(prev time.Time) time.Time {
	now := s.clock().Truncate(time.Millisecond)
	if !prev.IsZero() && !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
