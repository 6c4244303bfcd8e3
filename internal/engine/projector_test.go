package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
)

func TestBoardEditing(t *testing.T) {
	f := newFixture(t, defaultGame())

	rev, err := f.svc.GetBoard(f.ctx, f.game.ID)
	if err != nil || rev.Locked || len(rev.Document.Tiles) != 2 || rev.Document.BoardSize != 20 {
		t.Fatalf("default board = %+v, %v", rev, err)
	}

	_, err = f.svc.SaveBoard(f.ctx, f.game.ID, "wrong", []byte(jumpBoard))
	wantCode(t, err, apperr.CodeHostMismatch)
	_, err = f.svc.SaveBoard(f.ctx, f.game.ID, hostPW, []byte(`{"version":1,"boardSize":30,"tiles":[]}`))
	wantCode(t, err, apperr.CodeSizeMismatch)
	_, err = f.svc.SaveBoard(f.ctx, f.game.ID, hostPW, []byte(`{"version":1,"boardSize":20,"tiles":[{"index":5,"type":"jump"}]}`))
	wantCode(t, err, apperr.CodeBadJumpTarget)
	_, err = f.svc.SaveBoard(f.ctx, f.game.ID, hostPW, []byte(`{"version":2,"boardSize":20,"tiles":[]}`))
	wantCode(t, err, apperr.CodeUnsupportedVersion)

	f.saveBoard(jumpBoard)
	locked, err := f.svc.LockBoard(f.ctx, f.game.ID, hostPW)
	if err != nil || !locked.Locked || len(locked.Document.Tiles) != 1 {
		t.Fatalf("LockBoard = %+v, %v", locked, err)
	}
	_, err = f.svc.SaveBoard(f.ctx, f.game.ID, hostPW, []byte(`{"version":1,"boardSize":20,"tiles":[]}`))
	wantCode(t, err, apperr.CodeBoardLocked)
	ov, _ := f.st.Overrides(f.ctx, f.game.ID)
	if ov[10].Kind != board.KindJump {
		t.Fatalf("locked save changed overrides: %+v", ov)
	}

	_, err = f.svc.UnlockBoard(f.ctx, f.game.ID, "wrong")
	wantCode(t, err, apperr.CodeHostMismatch)
	if _, err := f.svc.UnlockBoard(f.ctx, f.game.ID, hostPW); err != nil {
		t.Fatal(err)
	}
	f.saveBoard(`{"version":1,"boardSize":20,"tiles":[]}`)
	if ov, _ := f.st.Overrides(f.ctx, f.game.ID); len(ov) != 0 {
		t.Fatalf("overrides not replaced: %+v", ov)
	}
}

func TestLockMaterializesDefaultBoard(t *testing.T) {
	f := newFixture(t, defaultGame())
	rev, err := f.svc.LockBoard(f.ctx, f.game.ID, hostPW)
	if err != nil || !rev.Locked {
		t.Fatalf("LockBoard = %+v, %v", rev, err)
	}
	got, _ := f.svc.GetBoard(f.ctx, f.game.ID)
	if !got.Locked || got.Document.Tiles[0].Title != board.StartTitle || got.Document.Tiles[1].Index != 20 {
		t.Fatalf("materialized board = %+v", got)
	}
}

func TestStateView(t *testing.T) {
	f := newFixture(t, defaultGame())

	empty, err := f.svc.State(f.ctx, "missing")
	if err != nil || empty.Found || empty.Teams == nil || len(empty.Teams) != 0 {
		t.Fatalf("missing state = %+v, %v", empty, err)
	}

	blue := f.team("Blue", bluePW)
	f.place(blue.ID, 20, false)
	f.roll(3)

	view, err := f.svc.State(f.ctx, f.game.ID)
	if err != nil || !view.Found || len(view.Teams) != 2 {
		t.Fatalf("state = %+v, %v", view, err)
	}
	red, bl := view.Teams[0], view.Teams[1]
	if red.Members[0] != "Zezima" || len(bl.Members) != 0 {
		t.Fatalf("members = %v / %v", red.Members, bl.Members)
	}
	if !red.AwaitingProof || red.ActiveTile.Index != 3 || red.ActiveTile.Kind != board.KindTask || red.Tile.Index != 3 {
		t.Fatalf("red = %+v", red)
	}
	if bl.Tile.Kind != board.KindEmpty || bl.Tile.Title != board.FinishTitle {
		t.Fatalf("blue tile = %+v", bl.Tile)
	}
}

func TestDefaultTileAgreesAcrossViews(t *testing.T) {
	f := newFixture(t, defaultGame())

	view, _ := f.svc.State(f.ctx, f.game.ID)
	if tile := view.Teams[0].Tile; tile.Kind != board.KindEmpty || tile.Title != board.StartTitle {
		t.Fatalf("state start tile = %+v", tile)
	}
	ov, _ := f.svc.BuildOverlay(f.ctx, f.game.ID, "Zezima")
	if ov.Team.Tile != view.Teams[0].Tile {
		t.Fatalf("overlay %+v != state %+v", ov.Team.Tile, view.Teams[0].Tile)
	}

	// A roll onto an unconfigured tile gates, proof accepts it, and both views
	// report the same task tile in between.
	f.roll(4)
	view, _ = f.svc.State(f.ctx, f.game.ID)
	ov, _ = f.svc.BuildOverlay(f.ctx, f.game.ID, "zezima")
	if view.Teams[0].ActiveTile != ov.Team.Tile || ov.Team.Tile.Kind != board.KindTask {
		t.Fatalf("views disagree: %+v vs %+v", view.Teams[0].ActiveTile, ov.Team.Tile)
	}
	if _, err := f.svc.SubmitProof(f.ctx, f.game.ID, f.sess, ProofInput{Reference: "x"}); err != nil {
		t.Fatalf("proof on default task tile: %v", err)
	}
}

func TestOverlayCanRoll(t *testing.T) {
	in := defaultGame()
	in.StartsAt = ptr(base.Add(time.Minute))
	f := newFixture(t, in)
	f.team("Blue", bluePW)
	f.register("Blue", bluePW, "Lynx")

	check := func(who string, want bool) {
		t.Helper()
		v, err := f.svc.BuildOverlay(f.ctx, f.game.ID, who)
		if err != nil {
			t.Fatal(err)
		}
		if v.CanRoll != want {
			t.Fatalf("%s canRoll = %v, want %v (phase %s)", who, v.CanRoll, want, v.Phase)
		}
	}
	check("Zezima", false)
	f.clock.Advance(time.Minute)
	check("Zezima", true)
	check("Lynx", false)
	check("Nobody", false)

	f.roll(2)
	check("Zezima", false)

	v, _ := f.svc.BuildOverlay(f.ctx, f.game.ID, "Nobody")
	if v.Team != nil || len(v.Standings) != 2 {
		t.Fatalf("anonymous overlay = %+v", v)
	}

	_, err := f.svc.BuildOverlay(f.ctx, "missing", "Zezima")
	wantCode(t, err, apperr.CodeGameNotFound)
}

func TestOverlayRevision(t *testing.T) {
	f := newFixture(t, defaultGame())

	first, err := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", "")
	if err != nil || first.NotModified || len(first.Body) == 0 {
		t.Fatalf("Overlay = %+v, %v", first, err)
	}
	second, _ := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", "")
	if second.Token != first.Token || string(second.Body) != string(first.Body) {
		t.Fatal("token changed without a mutation")
	}
	if f.cache.hits != 1 || f.cache.sets != 1 {
		t.Fatalf("cache hits=%d sets=%d", f.cache.hits, f.cache.sets)
	}
	nm, _ := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", first.Token)
	if !nm.NotModified || nm.Body != nil {
		t.Fatalf("validator match = %+v", nm)
	}
	if nm, _ := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", "0-0-running", first.Token); !nm.NotModified {
		t.Fatalf("match in validator list = %+v", nm)
	}
	if nm, _ := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", "0-0-running"); nm.NotModified {
		t.Fatalf("stale validator matched = %+v", nm)
	}

	revOf := func(r OverlayResult) int64 {
		var v OverlayView
		if err := json.Unmarshal(r.Body, &v); err != nil {
			t.Fatal(err)
		}
		return v.Revision
	}
	last := revOf(first)
	tokens := map[string]bool{first.Token: true}
	steps := []func(){
		func() { f.roll(1) },
		func() { f.svc.SubmitProof(f.ctx, f.game.ID, f.sess, ProofInput{Reference: "x"}) },
		func() { f.saveBoard(jumpBoard) },
		func() { f.svc.LockBoard(f.ctx, f.game.ID, hostPW) },
		func() { f.team("Blue", bluePW) },
		func() { f.svc.FinishGame(f.ctx, f.game.ID, hostPW) },
	}
	for i, step := range steps {
		step()
		cur, err := f.svc.Overlay(f.ctx, f.game.ID, "Zezima", "")
		if err != nil {
			t.Fatal(err)
		}
		if tokens[cur.Token] {
			t.Fatalf("step %d: token %q repeated", i, cur.Token)
		}
		tokens[cur.Token] = true
		if r := revOf(cur); r < last {
			t.Fatalf("step %d: revision went back %d -> %d", i, last, r)
		} else {
			last = r
		}
	}

	g, _ := f.st.GetGame(f.ctx, f.game.ID)
	if game.PhaseAt(g, f.clock.Now()) != game.PhaseEnded {
		t.Fatal("finished game should project as ended")
	}
}

func TestOverlayRevisionTracksBoardSave(t *testing.T) {
	f := newFixture(t, defaultGame())
	before, _ := f.svc.BuildOverlay(f.ctx, f.game.ID, "")
	f.saveBoard(jumpBoard)
	after, _ := f.svc.BuildOverlay(f.ctx, f.game.ID, "")
	if after.Revision != base.UnixMilli() || after.Revision <= before.Revision {
		t.Fatalf("revision %d -> %d", before.Revision, after.Revision)
	}
	// A second save in the same millisecond still advances.
	f.saveBoard(jumpBoard)
	again, _ := f.svc.BuildOverlay(f.ctx, f.game.ID, "")
	if again.Revision != after.Revision+1 {
		t.Fatalf("revision %d -> %d", after.Revision, again.Revision)
	}
}
