package game

import (
	"testing"
	"time"

	"github.com/robalobadob/ladders/internal/board"
)

func intp(v int) *int { return &v }

func tilesOf(size int, tiles ...board.Tile) TileFunc {
	ov := board.Table(tiles)
	return func(i int) board.Tile { return board.Resolve(ov, i, size) }
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		tiles    []board.Tile
		from     int
		die      int
		wantTo   int
		wantJump *Jump
		wantGate bool
	}{
		{
			name: "overshoot clamps to finish",
			size: 20, from: 15, die: 6,
			wantTo: 20,
		},
		{
			name:  "jump then default task",
			size:  20,
			tiles: []board.Tile{{Index: 10, Kind: board.KindJump, JumpTo: intp(3)}},
			from:  8, die: 2,
			wantTo: 3, wantJump: &Jump{From: 10, To: 3}, wantGate: true,
		},
		{
			name: "chained jump resolves once",
			size: 20,
			tiles: []board.Tile{
				{Index: 10, Kind: board.KindJump, JumpTo: intp(3)},
				{Index: 3, Kind: board.KindJump, JumpTo: intp(18)},
			},
			from: 8, die: 2,
			wantTo: 3, wantJump: &Jump{From: 10, To: 3},
		},
		{
			name:  "empty tile does not gate",
			size:  20,
			tiles: []board.Tile{{Index: 4, Kind: board.KindEmpty}},
			from:  0, die: 4,
			wantTo: 4,
		},
		{
			name: "plain task gates",
			size: 12, from: 2, die: 5,
			wantTo: 7, wantGate: true,
		},
		{
			name:  "jump to start",
			size:  20,
			tiles: []board.Tile{{Index: 6, Kind: board.KindJump, JumpTo: intp(0)}},
			from:  1, die: 5,
			wantTo: 0, wantJump: &Jump{From: 6, To: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Move(tt.from, tt.die, tt.size, tilesOf(tt.size, tt.tiles...))
			if got.Roll != tt.die || got.From != tt.from || got.To != tt.wantTo {
				t.Fatalf("Move() = %+v, want to=%d", got, tt.wantTo)
			}
			if (got.Jump == nil) != (tt.wantJump == nil) || (got.Jump != nil && *got.Jump != *tt.wantJump) {
				t.Fatalf("jump = %+v, want %+v", got.Jump, tt.wantJump)
			}
			if got.AwaitingProof != tt.wantGate {
				t.Fatalf("awaitingProof = %v, want %v", got.AwaitingProof, tt.wantGate)
			}
			if got.AwaitingProof && (got.PendingTile == nil || *got.PendingTile != got.To) {
				t.Fatalf("pendingTile %v must equal to=%d", got.PendingTile, got.To)
			}
			if !got.AwaitingProof && got.PendingTile != nil {
				t.Fatalf("pendingTile set without gating")
			}
		})
	}
}

func TestGatingConsistent(t *testing.T) {
	tests := []struct {
		name string
		team Team
		want bool
	}{
		{"idle", Team{Position: 4}, true},
		{"gated", Team{Position: 4, AwaitingProof: true, PendingTile: intp(4)}, true},
		{"flag without tile", Team{Position: 4, AwaitingProof: true}, false},
		{"tile without flag", Team{Position: 4, PendingTile: intp(4)}, false},
		{"tile behind position", Team{Position: 6, AwaitingProof: true, PendingTile: intp(4)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.team.GatingConsistent(); got != tt.want {
				t.Fatalf("GatingConsistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhaseAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		g    Game
		want Phase
	}{
		{"no schedule", Game{Status: StatusActive}, PhaseRunning},
		{"before start", Game{Status: StatusActive, StartsAt: &future}, PhasePrestart},
		{"inside window", Game{Status: StatusActive, StartsAt: &past, EndsAt: &future}, PhaseRunning},
		{"after end", Game{Status: StatusActive, EndsAt: &past}, PhaseEnded},
		{"finished", Game{Status: StatusFinished}, PhaseEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhaseAt(tt.g, now); got != tt.want {
				t.Fatalf("PhaseAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCryptoDieRange(t *testing.T) {
	d := NewCryptoDie()
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v, err := d.Roll()
		if err != nil {
			t.Fatalf("Roll: %v", err)
		}
		if v < 1 || v > DieSides {
			t.Fatalf("die value %d outside 1..%d", v, DieSides)
		}
		seen[v] = true
	}
	if len(seen) != DieSides {
		t.Fatalf("expected every face in 2000 rolls, saw %v", seen)
	}
}

func TestFixedDice(t *testing.T) {
	d := &FixedDice{Values: []int{2, 5}}
	for _, want := range []int{2, 5, 2} {
		if got, _ := d.Roll(); got != want {
			t.Fatalf("Roll() = %d, want %d", got, want)
		}
	}
	if _, err := (&FixedDice{}).Roll(); err == nil {
		t.Fatalf("expected error for empty dice")
	}
}
