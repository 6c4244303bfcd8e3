package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

// RollResult is either an applied outcome (OK) or a refusal with a reason.
// Refusals are expected outcomes that clients poll for, not errors.
type RollResult struct {
	OK                bool              `json:"ok"`
	Reason            string            `json:"reason,omitempty"`
	RetryAfterSeconds int64             `json:"retryAfterSeconds,omitempty"`
	Outcome           *game.RollOutcome `json:"-"`
}

const maxRollAttempts = 3

func refuse(reason string) RollResult { return RollResult{Reason: reason} }

// Roll draws a die for the session's team and moves it.
//
// Refusal order: inactive, unauthorized, awaiting_proof, not_started, ended.
// A missing game is a NotFound error; storage failures are errors.
func (s *Service) Roll(ctx context.Context, gameID string, sess auth.Session) (RollResult, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return RollResult{}, err
	}
	if g.Status != game.StatusActive {
		return refuse(apperr.CodeInactive), nil
	}
	if _, err := s.authorizeSession(ctx, g.ID, sess); err != nil {
		if apperr.HasCode(err, apperr.CodeUnauthorized) {
			return refuse(apperr.CodeUnauthorized), nil
		}
		return RollResult{}, err
	}

	unlock := s.locks.Lock(sess.TeamID)
	defer unlock()

	team, err := s.store.GetTeam(ctx, g.ID, sess.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return refuse(apperr.CodeUnauthorized), nil
	}
	if err != nil {
		return RollResult{}, fmt.Errorf("get team: %w", err)
	}
	if team.AwaitingProof {
		return refuse(apperr.CodeAwaitingProof), nil
	}
	now := s.clock()
	if g.StartsAt != nil && now.Before(*g.StartsAt) {
		res := refuse(apperr.CodeNotStarted)
		res.RetryAfterSeconds = int64(math.Ceil(g.StartsAt.Sub(now).Seconds()))
		return res, nil
	}
	if g.EndsAt != nil && !now.Before(*g.EndsAt) {
		return refuse(apperr.CodeEnded), nil
	}

	die, err := s.dice.Roll()
	if err != nil {
		return RollResult{}, fmt.Errorf("roll die: %w", err)
	}
	ov, err := s.store.Overrides(ctx, g.ID)
	if err != nil {
		return RollResult{}, fmt.Errorf("load tiles: %w", err)
	}
	tileAt := func(i int) board.Tile { return board.Resolve(ov, i, g.BoardSize) }

	// The store rejects the write if the team moved since it was read, which
	// only happens when another process shares the database. Replay the same
	// die from the fresh position.
	var out game.RollOutcome
	for attempt := 1; ; attempt++ {
		out = game.Move(team.Position, die, g.BoardSize, tileAt)
		ev := game.NewEvent(g.ID, team.ID, game.EventRoll, out, now)
		err = s.store.ApplyRoll(ctx, g.ID, team.ID, out, ev)
		if !errors.Is(err, store.ErrStale) {
			break
		}
		if attempt == maxRollAttempts {
			return RollResult{}, fmt.Errorf("apply roll: %w", err)
		}
		if team, err = s.store.GetTeam(ctx, g.ID, team.ID); err != nil {
			return RollResult{}, fmt.Errorf("get team: %w", err)
		}
		if team.AwaitingProof {
			return refuse(apperr.CodeAwaitingProof), nil
		}
	}
	if err != nil {
		return RollResult{}, fmt.Errorf("apply roll: %w", err)
	}

	log.Info().Str("gameId", g.ID).Str("teamId", team.ID).Int("roll", die).
		Int("from", out.From).Int("to", out.To).Bool("awaitingProof", out.AwaitingProof).Msg("roll applied")
	s.notifier.Send(g.WebhookURL, rollMessage(team, sess.Participant, out, tileAt(out.To)))
	return RollResult{OK: true, Outcome: &out}, nil
}

func rollMessage(t game.Team, who string, out game.RollOutcome, landed board.Tile) string {
	msg := fmt.Sprintf("%s (%s) rolled a %d: %d -> %d", t.Name, who, out.Roll, out.From, out.To)
	if out.Jump != nil {
		msg += fmt.Sprintf(" via jump %d -> %d", out.Jump.From, out.Jump.To)
	}
	if out.AwaitingProof {
		title := landed.Title
		if title == "" {
			title = fmt.Sprintf("tile %d", landed.Index)
		}
		msg += ". Next task: " + title
	}
	return msg
}
