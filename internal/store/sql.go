package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

var sessionSchema = []string{
	`CREATE TABLE IF NOT EXISTS game_sessions (
		id               TEXT PRIMARY KEY,
		starting_fen     TEXT NOT NULL,
		current_fen      TEXT NOT NULL,
		side_to_move     TEXT NOT NULL,
		status           TEXT NOT NULL,
		winner           TEXT NOT NULL DEFAULT '',
		white_id         TEXT,
		white_name       TEXT,
		black_id         TEXT,
		black_name       TEXT,
		transcript       TEXT NOT NULL DEFAULT '',
		pending_draw     TEXT NOT NULL DEFAULT '',
		pending_takeback TEXT NOT NULL DEFAULT '',
		version          BIGINT NOT NULL DEFAULT 0,
		created_at       BIGINT NOT NULL,
		updated_at       BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS game_moves (
		session_id    TEXT NOT NULL REFERENCES game_sessions(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		notation      TEXT NOT NULL,
		resulting_fen TEXT NOT NULL,
		played_at     BIGINT NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS game_sessions_white_idx ON game_sessions (white_id)`,
	`CREATE INDEX IF NOT EXISTS game_sessions_black_idx ON game_sessions (black_id)`,
}

// SQL stores sessions in game_sessions and their logs in game_moves.
type SQL struct {
	db *DB
}

func NewSQL(db *DB) *SQL {
	return &SQL{db: db}
}

// Migrate creates the tables when they are missing.
func (r *SQL) Migrate(ctx context.Context) error {
	return r.db.ExecAll(ctx, sessionSchema)
}

func (r *SQL) Create(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSession
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, r.db.Rebind(`SELECT 1 FROM game_sessions WHERE id = ?`), s.ID).Scan(&exists)
	if err == nil {
		return ErrDuplicateSession
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check session: %w", err)
	}

	wID, wName := participantColumns(s.White)
	bID, bName := participantColumns(s.Black)
	const query = `
		INSERT INTO game_sessions (
			id, starting_fen, current_fen, side_to_move, status, winner,
			white_id, white_name, black_id, black_name, transcript,
			pending_draw, pending_takeback, version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, r.db.Rebind(query),
		s.ID, s.StartingFEN, s.CurrentFEN, string(s.SideToMove), string(s.Status), string(s.Winner),
		wID, wName, bID, bName, s.Transcript,
		s.PendingDraw, s.PendingTakeback, s.Version, millis(s.CreatedAt), millis(s.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for _, e := range s.Moves {
		if err := r.insertMove(ctx, tx, s.ID, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load reads the record and its log inside one transaction.
func (r *SQL) Load(ctx context.Context, id string) (*domain.Session, error) {
	var opts *sql.TxOptions
	if r.db.Dialect == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s, err := r.loadTx(ctx, tx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return s, tx.Commit()
}

func (r *SQL) loadTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Session, error) {
	const query = `
		SELECT id, starting_fen, current_fen, side_to_move, status, winner,
		       white_id, white_name, black_id, black_name, transcript,
		       pending_draw, pending_takeback, version, created_at, updated_at
		FROM game_sessions
		WHERE id = ?`
	var (
		s                      domain.Session
		side, status, winner   string
		wID, wName, bID, bName sql.NullString
		createdAt, updatedAt   int64
	)
	err := tx.QueryRowContext(ctx, r.db.Rebind(query), id).Scan(
		&s.ID, &s.StartingFEN, &s.CurrentFEN, &side, &status, &winner,
		&wID, &wName, &bID, &bName, &s.Transcript,
		&s.PendingDraw, &s.PendingTakeback, &s.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	s.SideToMove = domain.Color(side)
	s.Status = domain.Status(status)
	s.Winner = domain.Winner(winner)
	s.White = participantFrom(wID, wName)
	s.Black = participantFrom(bID, bName)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)

	rows, err := tx.QueryContext(ctx, r.db.Rebind(`
		SELECT seq, notation, resulting_fen, played_at
		FROM game_moves
		WHERE session_id = ?
		ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e        domain.MoveEntry
			playedAt int64
		)
		if err := rows.Scan(&e.Seq, &e.Notation, &e.ResultingFEN, &playedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		e.PlayedAt = fromMillis(playedAt)
		s.Moves = append(s.Moves, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return &s, nil
}

// Commit updates the record with a version check and reconciles game_moves
// with s.Moves in the same transaction. On PostgreSQL the row is locked first.
func (r *SQL) Commit(ctx context.Context, s *domain.Session, expectedVersion int64) error {
	if s == nil {
		return ErrInvalidSession
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lock := `SELECT version FROM game_sessions WHERE id = ?`
	if r.db.Dialect == Postgres {
		lock += ` FOR UPDATE`
	}
	var stored int64
	err = tx.QueryRowContext(ctx, r.db.Rebind(lock), s.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	if stored != expectedVersion {
		return domain.ErrConcurrentUpdate
	}

	next := expectedVersion + 1
	wID, wName := participantColumns(s.White)
	bID, bName := participantColumns(s.Black)
	const update = `
		UPDATE game_sessions SET
			current_fen = ?, side_to_move = ?, status = ?, winner = ?,
			white_id = ?, white_name = ?, black_id = ?, black_name = ?,
			transcript = ?, pending_draw = ?, pending_takeback = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, r.db.Rebind(update),
		s.CurrentFEN, string(s.SideToMove), string(s.Status), string(s.Winner),
		wID, wName, bID, bName,
		s.Transcript, s.PendingDraw, s.PendingTakeback,
		next, millis(s.UpdatedAt),
		s.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrConcurrentUpdate
	}
	if err := r.syncMoves(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.Version = next
	return nil
}

// syncMoves deletes stored rows that are no longer in the log and inserts the
// new ones. Rows present on both sides are left untouched.
func (r *SQL) syncMoves(ctx context.Context, tx *sql.Tx, s *domain.Session) error {
	rows, err := tx.QueryContext(ctx, r.db.Rebind(`SELECT seq, notation FROM game_moves WHERE session_id = ?`), s.ID)
	if err != nil {
		return fmt.Errorf("select stored moves: %w", err)
	}
	stored := make(map[int]string)
	for rows.Next() {
		var (
			seq      int
			notation string
		)
		if err := rows.Scan(&seq, &notation); err != nil {
			rows.Close()
			return fmt.Errorf("scan stored move: %w", err)
		}
		stored[seq] = notation
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate stored moves: %w", err)
	}

	wanted := make(map[int]domain.MoveEntry, len(s.Moves))
	for _, e := range s.Moves {
		wanted[e.Seq] = e
	}
	for seq, notation := range stored {
		if e, ok := wanted[seq]; ok && e.Notation == notation {
			continue
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM game_moves WHERE session_id = ? AND seq = ?`), s.ID, seq); err != nil {
			return fmt.Errorf("delete move %d: %w", seq, err)
		}
		delete(stored, seq)
	}
	for _, e := range s.Moves {
		if _, ok := stored[e.Seq]; ok {
			continue
		}
		if err := r.insertMove(ctx, tx, s.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQL) insertMove(ctx context.Context, tx *sql.Tx, sessionID string, e domain.MoveEntry) error {
	const query = `INSERT INTO game_moves (session_id, seq, notation, resulting_fen, played_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, r.db.Rebind(query), sessionID, e.Seq, e.Notation, e.ResultingFEN, millis(e.PlayedAt)); err != nil {
		return fmt.Errorf("insert move %d: %w", e.Seq, err)
	}
	return nil
}

// Delete removes the session and its log.
func (r *SQL) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	id = strings.TrimSpace(id)
	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM game_moves WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("delete moves: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM game_sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

func (r *SQL) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Session, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id FROM game_sessions
		WHERE white_id = ? OR black_id = ?
		ORDER BY updated_at DESC, id
		LIMIT ?`), playerID, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func participantColumns(p *domain.Participant) (sql.NullString, sql.NullString) {
	if p == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: p.ID, Valid: true}, sql.NullString{String: p.Name, Valid: true}
}

func participantFrom(id, name sql.NullString) *domain.Participant {
	if !id.Valid || id.String == "" {
		return nil
	}
	return &domain.Participant{ID: id.String, Name: name.String}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// IDs lists every session id.
func (r *SQL) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM game_sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
