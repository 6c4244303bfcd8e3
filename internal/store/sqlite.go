// internal/store/sqlite.go
//
// SQLite implementation of Store.
// Responsibilities:
//   - Opening the database with safe defaults (WAL, busy timeout, foreign keys,
//     immediate transactions so writers queue instead of failing to upgrade).
//   - Applying embedded migrations with golang-migrate.
//   - Executing every mutation and its event inside one transaction.
//
// Timestamps are stored as fixed-width RFC3339 text in UTC (nanosecond
// fraction always present) so ORDER BY on the text is chronological.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/assets"
	"github.com/robalobadob/ladders/internal/board"
	"github.com/robalobadob/ladders/internal/game"
)

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and creates if missing) the database at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// migrateUp applies embedded migrations. The migrate instance is not closed:
// its sqlite driver would close the shared *sql.DB.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(assets.Migrations, assets.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if v, dirty, err := m.Version(); err == nil {
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema ready")
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ------------------------------- games --------------------------------------

const gameColumns = `id, clan, name, board_size, status, starts_at, ends_at, current_turn,
	join_code_digest, host_hash, webhook_url, created_at`

func (s *SQLite) CreateGame(ctx context.Context, g game.Game, ev game.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO games (`+gameColumns+`, clan_key)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			g.ID, g.Clan, g.Name, g.BoardSize, string(g.Status), nullTime(g.StartsAt), nullTime(g.EndsAt),
			g.CurrentTurn, g.JoinCodeDigest, g.HostHash, g.WebhookURL, fmtTime(g.CreatedAt), game.NameKey(g.Clan))
		if err != nil {
			return mapWriteErr(err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLite) GetGame(ctx context.Context, id string) (game.Game, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id=?`, id)
	return scanGame(row)
}

func (s *SQLite) FindActiveGameByJoinCode(ctx context.Context, clan, digest string) (game.Game, error) {
	if digest == "" {
		return game.Game{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games
		WHERE clan_key=? AND join_code_digest=? AND status='active'
		ORDER BY created_at DESC LIMIT 1`, game.NameKey(clan), digest)
	return scanGame(row)
}

func (s *SQLite) ListGames(ctx context.Context, clan string) ([]game.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games
		WHERE clan_key=? ORDER BY created_at DESC`, game.NameKey(clan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) FinishGame(ctx context.Context, id string, ev game.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE games SET status='finished' WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return insertEvent(ctx, tx, ev)
	})
}

func scanGame(row rowScanner) (game.Game, error) {
	var (
		g                game.Game
		status, created  string
		startsAt, endsAt sql.NullString
	)
	err := row.Scan(&g.ID, &g.Clan, &g.Name, &g.BoardSize, &status, &startsAt, &endsAt, &g.CurrentTurn,
		&g.JoinCodeDigest, &g.HostHash, &g.WebhookURL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Game{}, ErrNotFound
	}
	if err != nil {
		return game.Game{}, err
	}
	g.Status = game.Status(status)
	g.StartsAt = parseNullTime(startsAt)
	g.EndsAt = parseNullTime(endsAt)
	g.CreatedAt = parseTime(created)
	return g, nil
}

// ------------------------------- teams --------------------------------------

const teamColumns = `id, game_id, ordinal, name, color, credential_hash, position,
	awaiting_proof, pending_tile, created_at`

func (s *SQLite) CreateTeam(ctx context.Context, t game.Team, ev game.Event) (game.Team, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id=?`, t.GameID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM teams WHERE game_id=?`, t.GameID,
		).Scan(&t.Ordinal); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO teams (`+teamColumns+`, name_key)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.GameID, t.Ordinal, t.Name, t.Color, t.CredentialHash, t.Position,
			boolInt(t.AwaitingProof), nullInt(t.PendingTile), fmtTime(t.CreatedAt), game.NameKey(t.Name))
		if err != nil {
			return mapWriteErr(err)
		}
		ev.TeamID = t.ID
		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return game.Team{}, err
	}
	return t, nil
}

func (s *SQLite) GetTeam(ctx context.Context, gameID, teamID string) (game.Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=? AND game_id=?`, teamID, gameID)
	return scanTeam(row)
}

func (s *SQLite) FindTeamByName(ctx context.Context, gameID, name string) (game.Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE game_id=? AND name_key=?`,
		gameID, game.NameKey(name))
	return scanTeam(row)
}

func (s *SQLite) ListTeams(ctx context.Context, gameID string) ([]game.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE game_id=? ORDER BY ordinal`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTeam(row rowScanner) (game.Team, error) {
	var (
		t        game.Team
		awaiting int
		pending  sql.NullInt64
		created  string
	)
	err := row.Scan(&t.ID, &t.GameID, &t.Ordinal, &t.Name, &t.Color, &t.CredentialHash, &t.Position,
		&awaiting, &pending, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Team{}, ErrNotFound
	}
	if err != nil {
		return game.Team{}, err
	}
	t.AwaitingProof = awaiting == 1
	if pending.Valid {
		p := int(pending.Int64)
		t.PendingTile = &p
	}
	t.CreatedAt = parseTime(created)
	return t, nil
}

// --------------------------- registrations ----------------------------------

const registrationColumns = `id, game_id, team_id, participant, participant_key, session_id, created_at`

func (s *SQLite) CreateRegistration(ctx context.Context, r game.Registration, ev game.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO registrations (`+registrationColumns+`) VALUES (?,?,?,?,?,?,?)`,
			r.ID, r.GameID, r.TeamID, r.Participant, r.ParticipantKey, r.SessionID, fmtTime(r.CreatedAt))
		if err != nil {
			return mapWriteErr(err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLite) FindRegistration(ctx context.Context, gameID, participantKey string) (game.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE game_id=? AND participant_key=?`, gameID, participantKey)
	return scanRegistration(row)
}

func (s *SQLite) ListRegistrations(ctx context.Context, gameID string) ([]game.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE game_id=? ORDER BY created_at, id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Registration{}
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRegistration(row rowScanner) (game.Registration, error) {
	var (
		r       game.Registration
		created string
	)
	err := row.Scan(&r.ID, &r.GameID, &r.TeamID, &r.Participant, &r.ParticipantKey, &r.SessionID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Registration{}, ErrNotFound
	}
	if err != nil {
		return game.Registration{}, err
	}
	r.CreatedAt = parseTime(created)
	return r, nil
}

// ------------------------------- board --------------------------------------

func (s *SQLite) Overrides(ctx context.Context, gameID string) (board.Overrides, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, kind, title, description, category, jump_to
		FROM tile_overrides WHERE game_id=?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ov := board.Overrides{}
	for rows.Next() {
		var (
			t      board.Tile
			kind   string
			jumpTo sql.NullInt64
		)
		if err := rows.Scan(&t.Index, &kind, &t.Title, &t.Description, &t.Category, &jumpTo); err != nil {
			return nil, err
		}
		k, ok := board.ParseKind(kind)
		if !ok {
			return nil, fmt.Errorf("tile %d: unknown stored kind %q", t.Index, kind)
		}
		t.Kind = k
		if jumpTo.Valid {
			j := int(jumpTo.Int64)
			t.JumpTo = &j
		}
		ov[t.Index] = t
	}
	return ov, rows.Err()
}

func (s *SQLite) GetBoard(ctx context.Context, gameID string) (game.BoardRevision, error) {
	return getBoard(ctx, s.db, gameID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBoard(ctx context.Context, q queryer, gameID string) (game.BoardRevision, error) {
	var (
		rev            game.BoardRevision
		doc, updatedAt string
		locked         int
	)
	err := q.QueryRowContext(ctx, `SELECT document, locked, updated_at FROM board_revisions WHERE game_id=?`, gameID).
		Scan(&doc, &locked, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return game.BoardRevision{}, ErrNotFound
	}
	if err != nil {
		return game.BoardRevision{}, err
	}
	if err := json.Unmarshal([]byte(doc), &rev.Document); err != nil {
		return game.BoardRevision{}, fmt.Errorf("decode board document: %w", err)
	}
	rev.GameID = gameID
	rev.Locked = locked == 1
	rev.UpdatedAt = parseTime(updatedAt)
	return rev, nil
}

func (s *SQLite) SaveBoard(ctx context.Context, rev game.BoardRevision, tiles []board.Tile, ev game.Event) error {
	doc, err := json.Marshal(rev.Document)
	if err != nil {
		return fmt.Errorf("encode board document: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var locked int
		err := tx.QueryRowContext(ctx, `SELECT locked FROM board_revisions WHERE game_id=?`, rev.GameID).Scan(&locked)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if locked == 1 {
			return ErrLocked
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO board_revisions (game_id, document, locked, updated_at)
			VALUES (?,?,0,?)
			ON CONFLICT(game_id) DO UPDATE SET document=excluded.document, updated_at=excluded.updated_at`,
			rev.GameID, string(doc), fmtTime(rev.UpdatedAt)); err != nil {
			return mapWriteErr(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tile_overrides WHERE game_id=?`, rev.GameID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tile_overrides
			(game_id, idx, kind, title, description, category, jump_to) VALUES (?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range tiles {
			if _, err := stmt.ExecContext(ctx, rev.GameID, t.Index, string(t.Kind), t.Title, t.Description,
				t.Category, nullInt(t.JumpTo)); err != nil {
				return mapWriteErr(err)
			}
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLite) SetBoardLock(ctx context.Context, gameID string, locked bool, fallback game.BoardRevision, ev game.Event) (game.BoardRevision, error) {
	var out game.BoardRevision
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := getBoard(ctx, tx, gameID)
		switch {
		case errors.Is(err, ErrNotFound):
			doc, err := json.Marshal(fallback.Document)
			if err != nil {
				return fmt.Errorf("encode board document: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO board_revisions (game_id, document, locked, updated_at)
				VALUES (?,?,?,?)`, gameID, string(doc), boolInt(locked), fmtTime(fallback.UpdatedAt)); err != nil {
				return mapWriteErr(err)
			}
		case err != nil:
			return err
		default:
			if _, err := tx.ExecContext(ctx, `UPDATE board_revisions SET locked=? WHERE game_id=?`,
				boolInt(locked), gameID); err != nil {
				return err
			}
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		out, err = getBoard(ctx, tx, gameID)
		return err
	})
	return out, err
}

// ------------------------------- gating -------------------------------------

func (s *SQLite) ApplyRoll(ctx context.Context, gameID, teamID string, out game.RollOutcome, ev game.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE teams SET position=?, awaiting_proof=?, pending_tile=?
			WHERE id=? AND game_id=? AND awaiting_proof=0 AND pending_tile IS NULL AND position=?`,
			out.To, boolInt(out.AwaitingProof), nullInt(out.PendingTile), teamID, gameID, out.From)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return teamMissingOr(ctx, tx, gameID, teamID, ErrStale)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLite) RecordProof(ctx context.Context, p game.ProofRecord, ev game.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO proofs
			(id, game_id, team_id, tile_index, submitter, reference, created_at) VALUES (?,?,?,?,?,?,?)`,
			p.ID, p.GameID, p.TeamID, p.TileIndex, p.Submitter, p.Reference, fmtTime(p.CreatedAt)); err != nil {
			return mapWriteErr(err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE teams SET awaiting_proof=0, pending_tile=NULL
			WHERE id=? AND game_id=? AND awaiting_proof=1 AND pending_tile=?`, p.TeamID, p.GameID, p.TileIndex)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return teamMissingOr(ctx, tx, p.GameID, p.TeamID, ErrStale)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *SQLite) ListProofs(ctx context.Context, gameID string) ([]game.ProofRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, game_id, team_id, tile_index, submitter, reference, created_at
		FROM proofs WHERE game_id=? ORDER BY created_at, id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.ProofRecord{}
	for rows.Next() {
		var (
			p       game.ProofRecord
			created string
		)
		if err := rows.Scan(&p.ID, &p.GameID, &p.TeamID, &p.TileIndex, &p.Submitter, &p.Reference, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func teamMissingOr(ctx context.Context, tx *sql.Tx, gameID, teamID string, otherwise error) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id=? AND game_id=?`, teamID, gameID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return otherwise
}

// ------------------------------- events -------------------------------------

func (s *SQLite) CountEvents(ctx context.Context, gameID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events WHERE game_id=?`, gameID).Scan(&n)
	return n, err
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev game.Event) error {
	payload := "{}"
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO events (game_id, team_id, type, payload, at) VALUES (?,?,?,?,?)`,
		ev.GameID, ev.TeamID, ev.Type, payload, fmtTime(ev.At))
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}

// ------------------------------- helpers ------------------------------------

// mapWriteErr converts constraint violations into store sentinels.
func mapWriteErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrConflict, se.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrNotFound, se.Error())
		}
	}
	return err
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
