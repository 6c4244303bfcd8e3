// internal/board/tile.go
//
// Tile semantics shared by every component that needs to know what a
// board index means: roll resolution, proof validation, state projection
// and the overlay all go through Resolve.
//
// Default rule (no override stored for an index):
//   - 0          → empty, "Start"
//   - boardSize  → empty, "Finish"
//   - otherwise  → task

package board

import "strings"

// Kind is the stored mechanics of a tile.
type Kind string

const (
	KindEmpty Kind = "empty"
	KindTask  Kind = "task"
	KindJump  Kind = "jump"
)

const (
	// MinSize is the smallest playable board (indices 0..MinSize).
	MinSize = 10
	// MaxSize bounds board documents and override tables.
	MaxSize = 10000

	StartTitle  = "Start"
	FinishTitle = "Finish"
)

// Tile is one resolved board position.
type Tile struct {
	Index       int    `json:"index"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	JumpTo      *int   `json:"jumpTo,omitempty"`
}

// Gating reports whether landing on t requires a proof before rolling again.
func (t Tile) Gating() bool { return t.Kind == KindTask }

// Overrides is the per-game table of explicitly configured tiles.
type Overrides map[int]Tile

// ValidSize reports whether n is an acceptable board size.
func ValidSize(n int) bool { return n >= MinSize && n <= MaxSize }

// Clamp bounds p to [0, size].
func Clamp(p, size int) int {
	if p < 0 {
		return 0
	}
	if p > size {
		return size
	}
	return p
}

// DefaultTile is the tile at index when nothing is configured for it.
func DefaultTile(index, size int) Tile {
	switch index {
	case 0:
		return Tile{Index: 0, Kind: KindEmpty, Title: StartTitle}
	case size:
		return Tile{Index: size, Kind: KindEmpty, Title: FinishTitle}
	default:
		return Tile{Index: index, Kind: KindTask}
	}
}

// Resolve returns the effective tile at index. Overrides win; a blank title
// on the first or last index falls back to Start/Finish.
func Resolve(ov Overrides, index, size int) Tile {
	t, ok := ov[index]
	if !ok {
		return DefaultTile(index, size)
	}
	t.Index = index
	if t.Title == "" {
		t.Title = DefaultTile(index, size).Title
	}
	if t.Kind != KindJump {
		t.JumpTo = nil
	}
	return t
}

// ParseKind maps a stored or legacy kind name to a Kind. The legacy "boss"
// alias is a mechanics synonym for task.
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "empty":
		return KindEmpty, true
	case "task", "boss":
		return KindTask, true
	case "jump":
		return KindJump, true
	}
	return "", false
}
