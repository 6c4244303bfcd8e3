package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

const (
	maxNameLen          = 40
	maxJoinCodeAttempts = 5
)

// Palette supplies team colors when none is given, by ordinal.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#469990", "#9a6324",
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// CreateGameInput is the payload of POST /games.
type CreateGameInput struct {
	Clan         string     `json:"clan"`
	Name         string     `json:"name"`
	BoardSize    int        `json:"boardSize"`
	StartsAt     *time.Time `json:"startsAt"`
	EndsAt       *time.Time `json:"endsAt"`
	HostPassword string     `json:"hostPassword"`
	JoinCode     string     `json:"joinCode"`
	WebhookURL   string     `json:"webhookUrl"`
}

// CreatedGame is returned once at creation; JoinCode is never shown again.
type CreatedGame struct {
	Game     game.Game `json:"game"`
	JoinCode string    `json:"joinCode"`
}

// GameSummary is a listing row. It carries neither id nor join code.
type GameSummary struct {
	Name      string      `json:"name"`
	BoardSize int         `json:"boardSize"`
	Status    game.Status `json:"status"`
	Phase     game.Phase  `json:"phase"`
	StartsAt  *time.Time  `json:"startsAt,omitempty"`
	EndsAt    *time.Time  `json:"endsAt,omitempty"`
	Teams     int         `json:"teams"`
	CreatedAt time.Time   `json:"createdAt"`
}

// TeamInput is the payload of POST /games/:id/teams.
type TeamInput struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Password string `json:"password"`
}

// RegisterInput is the payload of POST /games/:id/register.
type RegisterInput struct {
	Team        string `json:"team"`
	Password    string `json:"password"`
	Participant string `json:"participant"`
}

// Registered is a freshly issued session.
type Registered struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	GameID      string    `json:"gameId"`
	TeamID      string    `json:"teamId"`
	Team        string    `json:"team"`
	Participant string    `json:"participant"`
	Reissued    bool      `json:"reissued"`
}

func cleanName(s string) string { return strings.Join(strings.Fields(s), " ") }

func validName(field, s string) error {
	if s == "" || utf8.RuneCountInString(s) > maxNameLen {
		return apperr.Validationf(apperr.CodeInvalidName, field, "%s must be 1-%d characters", field, maxNameLen)
	}
	return nil
}

// CreateGame validates in, hashes the host password and stores a new active game.
func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (CreatedGame, error) {
	clan := cleanName(in.Clan)
	if err := validName("clan", clan); err != nil {
		return CreatedGame{}, err
	}
	name := cleanName(in.Name)
	if utf8.RuneCountInString(name) > maxNameLen {
		return CreatedGame{}, apperr.Validationf(apperr.CodeInvalidName, "name", "name must be at most %d characters", maxNameLen)
	}
	if !board.ValidSize(in.BoardSize) {
		return CreatedGame{}, apperr.Validationf(apperr.CodeInvalidBoardSize, "boardSize",
			"boardSize must be between %d and %d", board.MinSize, board.MaxSize)
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.StartsAt.Before(*in.EndsAt) {
		return CreatedGame{}, apperr.Validation(apperr.CodeInvalidSchedule, "endsAt", "endsAt must be after startsAt")
	}
	if !auth.ValidPassword(in.HostPassword) {
		return CreatedGame{}, apperr.Validationf(apperr.CodeInvalidPassword, "hostPassword",
			"hostPassword must be %d-%d characters", auth.MinPasswordLen, auth.MaxPasswordLen)
	}
	hook, err := cleanWebhook(in.WebhookURL)
	if err != nil {
		return CreatedGame{}, err
	}
	code := auth.NormalizeJoinCode(in.JoinCode)
	generated := code == ""
	if !generated && (len(code) < 4 || len(code) > 16) {
		return CreatedGame{}, apperr.Validation(apperr.CodeInvalidName, "joinCode", "joinCode must be 4-16 characters")
	}
	hostHash, err := auth.HashPassword(in.HostPassword)
	if err != nil {
		return CreatedGame{}, fmt.Errorf("hash host password: %w", err)
	}

	now := s.clock()
	g := game.Game{
		Clan:       clan,
		Name:       name,
		BoardSize:  in.BoardSize,
		Status:     game.StatusActive,
		StartsAt:   utcPtr(in.StartsAt),
		EndsAt:     utcPtr(in.EndsAt),
		HostHash:   hostHash,
		WebhookURL: hook,
		CreatedAt:  now,
	}
	// A generated code that collides with another active game of the clan is
	// drawn again; a chosen one is reported back to the host.
	for attempt := 1; ; attempt++ {
		if generated {
			if code, err = auth.NewJoinCode(); err != nil {
				return CreatedGame{}, fmt.Errorf("join code: %w", err)
			}
		}
		g.ID = s.newID()
		g.JoinCodeDigest = auth.JoinCodeDigest(s.joinSalt, code)
		ev := game.NewEvent(g.ID, "", game.EventGameCreated, map[string]any{"boardSize": g.BoardSize}, now)
		err = s.store.CreateGame(ctx, g, ev)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return CreatedGame{}, fmt.Errorf("create game: %w", err)
		}
		if !generated {
			return CreatedGame{}, apperr.Conflict(apperr.CodeDuplicateJoinCode, "joinCode is already used by an active game of this clan")
		}
		if attempt == maxJoinCodeAttempts {
			return CreatedGame{}, fmt.Errorf("create game: no free join code after %d attempts: %w", attempt, err)
		}
	}
	log.Info().Str("gameId", g.ID).Str("clan", clan).Int("boardSize", g.BoardSize).Msg("game created")
	return CreatedGame{Game: g, JoinCode: code}, nil
}

// ResolveJoinCode finds the clan's most recent active game for code.
func (s *Service) ResolveJoinCode(ctx context.Context, clan, code string) (game.Game, error) {
	if cleanName(clan) == "" || auth.NormalizeJoinCode(code) == "" {
		return game.Game{}, apperr.NotFound(apperr.CodeGameNotFound)
	}
	g, err := s.store.FindActiveGameByJoinCode(ctx, clan, auth.JoinCodeDigest(s.joinSalt, code))
	if errors.Is(err, store.ErrNotFound) {
		return game.Game{}, apperr.NotFound(apperr.CodeGameNotFound)
	}
	if err != nil {
		return game.Game{}, fmt.Errorf("resolve join code: %w", err)
	}
	return g, nil
}

// ListGames summarizes a clan's games, newest first.
func (s *Service) ListGames(ctx context.Context, clan string) ([]GameSummary, error) {
	games, err := s.store.ListGames(ctx, clan)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	now := s.clock()
	out := make([]GameSummary, 0, len(games))
	for _, g := range games {
		teams, err := s.store.ListTeams(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("list teams: %w", err)
		}
		out = append(out, GameSummary{
			Name:      g.Name,
			BoardSize: g.BoardSize,
			Status:    g.Status,
			Phase:     game.PhaseAt(g, now),
			StartsAt:  g.StartsAt,
			EndsAt:    g.EndsAt,
			Teams:     len(teams),
			CreatedAt: g.CreatedAt,
		})
	}
	return out, nil
}

// CreateTeam adds a team to an active game. Requires the host password.
func (s *Service) CreateTeam(ctx context.Context, gameID, hostPassword string, in TeamInput) (game.Team, error) {
	g, err := s.authorizeHost(ctx, gameID, hostPassword)
	if err != nil {
		return game.Team{}, err
	}
	if g.Status != game.StatusActive {
		return game.Team{}, apperr.State(apperr.CodeInactive, "game is finished")
	}
	name := cleanName(in.Name)
	if err := validName("name", name); err != nil {
		return game.Team{}, err
	}
	if !auth.ValidPassword(in.Password) {
		return game.Team{}, apperr.Validationf(apperr.CodeInvalidPassword, "password",
			"password must be %d-%d characters", auth.MinPasswordLen, auth.MaxPasswordLen)
	}
	color := strings.TrimSpace(in.Color)
	if color != "" && !hexColor.MatchString(color) {
		return game.Team{}, apperr.Validation(apperr.CodeInvalidColor, "color", "color must be #rrggbb")
	}
	if color == "" {
		existing, err := s.store.ListTeams(ctx, g.ID)
		if err != nil {
			return game.Team{}, fmt.Errorf("list teams: %w", err)
		}
		color = Palette[len(existing)%len(Palette)]
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return game.Team{}, fmt.Errorf("hash team password: %w", err)
	}

	now := s.clock()
	t := game.Team{
		ID:             s.newID(),
		GameID:         g.ID,
		Name:           name,
		Color:          strings.ToLower(color),
		CredentialHash: hash,
		CreatedAt:      now,
	}
	ev := game.NewEvent(g.ID, t.ID, game.EventTeamCreated, map[string]any{"name": name}, now)
	stored, err := s.store.CreateTeam(ctx, t, ev)
	if errors.Is(err, store.ErrConflict) {
		return game.Team{}, apperr.Conflict(apperr.CodeDuplicateTeam, "a team with that name already exists")
	}
	if err != nil {
		return game.Team{}, fmt.Errorf("create team: %w", err)
	}
	log.Info().Str("gameId", g.ID).Str("teamId", stored.ID).Int("ordinal", stored.Ordinal).Msg("team created")
	return stored, nil
}

// Register joins participant to a team and issues a session token.
// A participant already on the same team gets a new token for the same session.
func (s *Service) Register(ctx context.Context, gameID string, in RegisterInput) (Registered, error) {
	g, err := s.loadGame(ctx, gameID)
	if err != nil {
		return Registered{}, err
	}
	if g.Status != game.StatusActive {
		return Registered{}, apperr.State(apperr.CodeInactive, "game is finished")
	}
	participant := cleanName(in.Participant)
	if err := validName("participant", participant); err != nil {
		return Registered{}, err
	}
	team, err := s.store.FindTeamByName(ctx, g.ID, in.Team)
	if errors.Is(err, store.ErrNotFound) {
		return Registered{}, apperr.Auth(apperr.CodeUnauthorized)
	}
	if err != nil {
		return Registered{}, fmt.Errorf("find team: %w", err)
	}
	if !auth.CheckPassword(team.CredentialHash, in.Password) {
		return Registered{}, apperr.Auth(apperr.CodeUnauthorized)
	}

	key := game.NameKey(participant)
	existing, err := s.store.FindRegistration(ctx, g.ID, key)
	switch {
	case err == nil:
		if existing.TeamID != team.ID {
			return Registered{}, apperr.Conflict(apperr.CodeDuplicateParticipant, "participant is registered to another team")
		}
		return s.issue(g, team, existing, true)
	case !errors.Is(err, store.ErrNotFound):
		return Registered{}, fmt.Errorf("find registration: %w", err)
	}

	now := s.clock()
	reg := game.Registration{
		ID:             s.newID(),
		GameID:         g.ID,
		TeamID:         team.ID,
		Participant:    participant,
		ParticipantKey: key,
		SessionID:      s.newID(),
		CreatedAt:      now,
	}
	ev := game.NewEvent(g.ID, team.ID, game.EventPlayerRegistered, map[string]any{"participant": participant}, now)
	if err := s.store.CreateRegistration(ctx, reg, ev); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return Registered{}, fmt.Errorf("create registration: %w", err)
		}
		// Lost an insert race; the winner may be this participant on this team.
		winner, ferr := s.store.FindRegistration(ctx, g.ID, key)
		if ferr == nil && winner.TeamID == team.ID {
			return s.issue(g, team, winner, true)
		}
		return Registered{}, apperr.Conflict(apperr.CodeDuplicateParticipant, "participant is already registered")
	}
	log.Info().Str("gameId", g.ID).Str("teamId", team.ID).Str("participant", participant).Msg("player registered")
	return s.issue(g, team, reg, false)
}

func (s *Service) issue(g game.Game, t game.Team, reg game.Registration, reissued bool) (Registered, error) {
	token, exp, err := s.signer.Sign(auth.Session{
		GameID:      g.ID,
		TeamID:      t.ID,
		Participant: reg.Participant,
		SessionID:   reg.SessionID,
	})
	if err != nil {
		return Registered{}, fmt.Errorf("sign session: %w", err)
	}
	return Registered{
		Token:       token,
		ExpiresAt:   exp,
		GameID:      g.ID,
		TeamID:      t.ID,
		Team:        t.Name,
		Participant: reg.Participant,
		Reissued:    reissued,
	}, nil
}

func cleanWebhook(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Validation(apperr.CodeInvalidReference, "webhookUrl", "webhookUrl must be an http(s) URL")
	}
	return raw, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
