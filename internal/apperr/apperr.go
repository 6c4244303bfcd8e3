// internal/apperr/apperr.go
//
// Error taxonomy shared by the engine and the HTTP layer.
//
// Every failure surfaced to a caller is an *Error carrying:
//   - Kind:    coarse class that decides the HTTP status.
//   - Code:    machine-readable reason (e.g. "duplicate_team").
//   - Field:   offending input field for validation failures (optional).
//   - Message: human-readable detail (never shown for Auth errors).
//
// Persistence failures are not wrapped here; they bubble up as plain errors
// and map to Internal.

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindState
	KindNotFound
)

// Reason codes.
const (
	CodeInvalidSchedule      = "invalid_schedule"
	CodeInvalidBoardSize     = "invalid_board_size"
	CodeInvalidName          = "invalid_name"
	CodeInvalidColor         = "invalid_color"
	CodeInvalidPassword      = "invalid_password"
	CodeInvalidReference     = "invalid_reference"
	CodeInvalidDocument      = "invalid_document"
	CodeBadJSON              = "bad_json"
	CodeUnsupportedVersion   = "unsupported_version"
	CodeSizeMismatch         = "size_mismatch"
	CodeTileOutOfRange       = "tile_out_of_range"
	CodeBadJumpTarget        = "bad_jump_target"
	CodeUnknownTileType      = "unknown_tile_type"
	CodeDuplicateTile        = "duplicate_tile"
	CodeUnauthorized         = "unauthorized"
	CodeHostMismatch         = "host_mismatch"
	CodeDuplicateTeam        = "duplicate_team"
	CodeDuplicateParticipant = "duplicate_participant"
	CodeDuplicateJoinCode    = "duplicate_join_code"
	CodeDuplicateProof       = "duplicate_proof"
	CodeBoardLocked          = "board_locked"
	CodeInactive             = "inactive"
	CodeAwaitingProof        = "awaiting_proof"
	CodeNotStarted           = "not_started"
	CodeEnded                = "ended"
	CodeNoProofExpected      = "no_proof_expected"
	CodeNotATaskTile         = "not_a_task_tile"
	CodeTileMismatch         = "tile_mismatch"
	CodeGameNotFound         = "game_not_found"
	CodeTeamNotFound         = "team_not_found"
	CodeInternal             = "internal"
)

// Error is a classified domain failure.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, field, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: msg}
}

func Validationf(code, field, format string, args ...any) *Error {
	return Validation(code, field, fmt.Sprintf(format, args...))
}

// Auth errors carry no detail beyond the code.
func Auth(code string) *Error {
	return &Error{Kind: KindAuth, Code: code}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func State(code, msg string) *Error {
	return &Error{Kind: KindState, Code: code, Message: msg}
}

func NotFound(code string) *Error {
	return &Error{Kind: KindNotFound, Code: code}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries the given reason code.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// HTTPStatus maps an error to a response status.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict, KindState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
