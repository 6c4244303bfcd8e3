// internal/engine/service.go
//
// Service is the game engine: registry, board definition, turn resolution,
// proof ledger and read projections, all over one store.Store.
//
// Mutations that read and then write a team's gating fields (roll, proof)
// run under a per-team lock; the store additionally refuses a write whose
// gating precondition no longer holds (store.ErrStale).

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/cache"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/notify"
	"github.com/robalobadob/ladders/internal/store"
)

// Service implements every game operation.
type Service struct {
	store    store.Store
	signer   *auth.Signer
	dice     game.Dice
	now      func() time.Time
	notifier notify.Notifier
	cache    cache.Cache
	joinSalt string
	locks    *keyedMutex
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithDice replaces the crypto die (tests).
func WithDice(d game.Dice) Option { return func(s *Service) { s.dice = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithNotifier sets the roll/proof notification sink.
func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithCache enables overlay payload caching.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// WithJoinCodeSalt sets the HMAC key for join-code digests.
func WithJoinCodeSalt(salt string) Option { return func(s *Service) { s.joinSalt = salt } }

// New returns a Service over st that issues sessions with signer.
func New(st store.Store, signer *auth.Signer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		signer:   signer,
		dice:     game.NewCryptoDie(),
		now:      time.Now,
		notifier: notify.Noop{},
		cache:    cache.Noop{},
		joinSalt: "local_dev_salt",
		locks:    newKeyedMutex(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// loadGame maps a missing game to a 404-class error.
func (s *Service) loadGame(ctx context.Context, id string) (game.Game, error) {
	g, err := s.store.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return game.Game{}, apperr.NotFound(apperr.CodeGameNotFound)
	}
	if err != nil {
		return game.Game{}, fmt.Errorf("get game %s: %w", id, err)
	}
	return g, nil
}

// authorizeHost loads the game and checks the host password.
func (s *Service) authorizeHost(ctx context.Context, gameID, password string) (game.Game, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return game.Game{}, err
	}
	if !auth.CheckPassword(g.HostHash, password) {
		return game.Game{}, apperr.Auth(apperr.CodeHostMismatch)
	}
	return g, nil
}

// authorizeSession checks that sess belongs to gameID and still matches the
// registration it was issued for.
func (s *Service) authorizeSession(ctx context.Context, gameID string, sess auth.Session) (game.Registration, error) {
	if sess.GameID != gameID || sess.SessionID == "" {
		return game.Registration{}, apperr.Auth(apperr.CodeUnauthorized)
	}
	reg, err := s.store.FindRegistration(ctx, gameID, game.NameKey(sess.Participant))
	if errors.Is(err, store.ErrNotFound) {
		return game.Registration{}, apperr.Auth(apperr.CodeUnauthorized)
	}
	if err != nil {
		return game.Registration{}, fmt.Errorf("find registration: %w", err)
	}
	if reg.SessionID != sess.SessionID || reg.TeamID != sess.TeamID {
		return game.Registration{}, apperr.Auth(apperr.CodeUnauthorized)
	}
	return reg, nil
}
