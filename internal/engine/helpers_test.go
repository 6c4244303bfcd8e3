package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/game"
	"github.com/robalobadob/ladders/internal/store"
)

const (
	hostPW = "hostpass"
	redPW  = "redpass"
	bluePW = "bluepass"
)

var base = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(_, content string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, content)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type mapCache struct {
	mu         sync.Mutex
	data       map[string][]byte
	hits, sets int
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = val
	c.sets++
	return nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	svc   *Service
	st    store.Store
	clock *fakeClock
	dice  *game.FixedDice
	notes *recorder
	cache *mapCache
	game  game.Game
	code  string
	red   game.Team
	sess  auth.Session
}

func defaultGame() CreateGameInput {
	return CreateGameInput{Clan: "Iron Owls", Name: "Summer Bingo", BoardSize: 20, HostPassword: hostPW, JoinCode: "abcd23"}
}

// newFixture creates a game with team Red and participant Zezima registered to it.
func newFixture(t *testing.T, in CreateGameInput) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemoryStore(), in)
}

func newFixtureOn(t *testing.T, st store.Store, in CreateGameInput) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		st:    st,
		clock: &fakeClock{t: base},
		dice:  &game.FixedDice{Values: []int{1}},
		notes: &recorder{},
		cache: &mapCache{},
	}
	f.svc = New(st, auth.NewSigner("test-secret", 1),
		WithDice(f.dice), WithClock(f.clock.Now), WithNotifier(f.notes), WithCache(f.cache), WithJoinCodeSalt("salt"))

	created, err := f.svc.CreateGame(f.ctx, in)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	f.game, f.code = created.Game, created.JoinCode
	f.red = f.team("Red", redPW)
	f.sess = f.register("Red", redPW, "Zezima")
	return f
}

func (f *fixture) team(name, pw string) game.Team {
	f.t.Helper()
	team, err := f.svc.CreateTeam(f.ctx, f.game.ID, hostPW, TeamInput{Name: name, Password: pw})
	if err != nil {
		f.t.Fatalf("CreateTeam(%s): %v", name, err)
	}
	return team
}

func (f *fixture) register(team, pw, who string) auth.Session {
	f.t.Helper()
	reg, err := f.svc.Register(f.ctx, f.game.ID, RegisterInput{Team: team, Password: pw, Participant: who})
	if err != nil {
		f.t.Fatalf("Register(%s): %v", who, err)
	}
	sess, err := f.svc.signer.Verify(reg.Token)
	if err != nil {
		f.t.Fatalf("Verify: %v", err)
	}
	return sess
}

func (f *fixture) saveBoard(raw string) {
	f.t.Helper()
	if _, err := f.svc.SaveBoard(f.ctx, f.game.ID, hostPW, []byte(raw)); err != nil {
		f.t.Fatalf("SaveBoard: %v", err)
	}
}

// place moves teamID to pos with the given gating, bypassing the die.
func (f *fixture) place(teamID string, pos int, gated bool) {
	f.t.Helper()
	out := game.RollOutcome{From: f.teamNow(teamID).Position, To: pos}
	if gated {
		p := pos
		out.AwaitingProof, out.PendingTile = true, &p
	}
	if err := f.st.ApplyRoll(f.ctx, f.game.ID, teamID, out, game.NewEvent(f.game.ID, teamID, game.EventRoll, out, f.clock.Now())); err != nil {
		f.t.Fatalf("place: %v", err)
	}
}

func (f *fixture) teamNow(id string) game.Team {
	f.t.Helper()
	team, err := f.st.GetTeam(f.ctx, f.game.ID, id)
	if err != nil {
		f.t.Fatalf("GetTeam: %v", err)
	}
	if !team.GatingConsistent() {
		f.t.Fatalf("gating invariant broken: %+v", team)
	}
	return team
}

func (f *fixture) roll(die int) RollResult {
	f.t.Helper()
	f.dice.Values = []int{die}
	res, err := f.svc.Roll(f.ctx, f.game.ID, f.sess)
	if err != nil {
		f.t.Fatalf("Roll: %v", err)
	}
	return res
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperr.HasCode(err, code) {
		t.Fatalf("err = %v, want code %s", err, code)
	}
}

func ptr[T any](v T) *T { return &v }

// testContext returns a context cancelled when the test finishes
// (equivalent to testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
