// internal/board/document.go
//
// The editor-authored board document and its mapping to stored tiles.
//
// Documents are tagged with a schema version; only SchemaVersion is
// accepted. A saved document is the source of truth from which the
// override table is rebuilt (Overrides).
//
// Mechanics mapping (editor type → stored kind):
//   - jump                    → jump (never gates)
//   - task, boss              → task, or empty when requiresProof=false
//   - start, finish, empty    → empty
//
// The category tag is presentation only and never changes mechanics.

package board

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/robalobadob/ladders/internal/apperr"
)

// SchemaVersion is the only document version this server understands.
const SchemaVersion = 1

// Document is a board as authored in the editor.
type Document struct {
	Version   int       `json:"version"`
	Title     string    `json:"title"`
	BoardSize int       `json:"boardSize"`
	Tiles     []DocTile `json:"tiles"`
}

// DocTile is one tile entry of a Document.
type DocTile struct {
	Index         int            `json:"index"`
	Type          string         `json:"type"`
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	RequiresProof *bool          `json:"requiresProof,omitempty"`
	JumpTo        *int           `json:"jumpTo,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

var editorTypes = map[string]struct{}{
	"start": {}, "finish": {}, "empty": {}, "task": {}, "boss": {}, "jump": {},
}

// DefaultDocument is the minimal board: a Start and a Finish tile.
func DefaultDocument(size int) Document {
	return Document{
		Version:   SchemaVersion,
		BoardSize: size,
		Tiles: []DocTile{
			{Index: 0, Type: "start", Title: StartTitle},
			{Index: size, Type: "finish", Title: FinishTitle},
		},
	}
}

// Parse decodes raw JSON into a Document and rejects unknown versions.
// It does not validate tiles; see Validate.
func Parse(raw []byte) (Document, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Document{}, apperr.Validation(apperr.CodeInvalidDocument, "", "document is not valid JSON")
	}
	if probe.Version == nil || *probe.Version != SchemaVersion {
		return Document{}, apperr.Validationf(apperr.CodeUnsupportedVersion, "version",
			"only schema version %d is supported", SchemaVersion)
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return Document{}, apperr.Validation(apperr.CodeInvalidDocument, "", err.Error())
	}
	return doc, nil
}

// Validate checks d against the owning game's board size.
func (d Document) Validate(boardSize int) error {
	if d.Version != SchemaVersion {
		return apperr.Validationf(apperr.CodeUnsupportedVersion, "version",
			"only schema version %d is supported", SchemaVersion)
	}
	if d.BoardSize != boardSize {
		return apperr.Validationf(apperr.CodeSizeMismatch, "boardSize",
			"document size %d does not match game size %d", d.BoardSize, boardSize)
	}
	seen := make(map[int]struct{}, len(d.Tiles))
	for _, t := range d.Tiles {
		if t.Index < 0 || t.Index > boardSize {
			return apperr.Validationf(apperr.CodeTileOutOfRange, "tiles",
				"tile index %d outside 0..%d", t.Index, boardSize)
		}
		if _, dup := seen[t.Index]; dup {
			return apperr.Validationf(apperr.CodeDuplicateTile, "tiles", "tile %d listed twice", t.Index)
		}
		seen[t.Index] = struct{}{}
		typ := strings.ToLower(strings.TrimSpace(t.Type))
		if _, ok := editorTypes[typ]; !ok {
			return apperr.Validationf(apperr.CodeUnknownTileType, "tiles", "tile %d has unknown type %q", t.Index, t.Type)
		}
		if typ == "jump" {
			if t.JumpTo == nil {
				return apperr.Validationf(apperr.CodeBadJumpTarget, "tiles", "jump tile %d has no target", t.Index)
			}
			if *t.JumpTo < 0 || *t.JumpTo > boardSize {
				return apperr.Validationf(apperr.CodeBadJumpTarget, "tiles",
					"jump tile %d targets %d outside 0..%d", t.Index, *t.JumpTo, boardSize)
			}
		}
	}
	return nil
}

// Mechanics maps an editor tile to its stored kind.
func Mechanics(t DocTile) Kind {
	switch strings.ToLower(strings.TrimSpace(t.Type)) {
	case "jump":
		return KindJump
	case "task", "boss":
		if t.RequiresProof != nil && !*t.RequiresProof {
			return KindEmpty
		}
		return KindTask
	default:
		return KindEmpty
	}
}

// Overrides rebuilds the stored tile table from a validated document.
func (d Document) Overrides() []Tile {
	out := make([]Tile, 0, len(d.Tiles))
	for _, t := range d.Tiles {
		tile := Tile{
			Index:       t.Index,
			Kind:        Mechanics(t),
			Title:       strings.TrimSpace(t.Title),
			Description: strings.TrimSpace(t.Description),
			Category:    strings.TrimSpace(t.Category),
		}
		if tile.Kind == KindJump {
			target := *t.JumpTo
			tile.JumpTo = &target
		}
		out = append(out, tile)
	}
	return out
}

// Table indexes a tile list by position.
func Table(tiles []Tile) Overrides {
	ov := make(Overrides, len(tiles))
	for _, t := range tiles {
		ov[t.Index] = t
	}
	return ov
}
