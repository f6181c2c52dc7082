// Package archive keeps finished games as PGN records.
package archive

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/YassineElZaart/learn-chess/internal/domain"
    "github.com/YassineElZaart/learn-chess/internal/session"
    "github.com/YassineElZaart/learn-chess/internal/store"
)

// ErrNotFound is returned by Get for an unknown game.
var ErrNotFound = errors.New("archived game not found")

var schema = []string{
    `CREATE TABLE IF NOT EXISTS game_results (
        game_id       TEXT PRIMARY KEY,
        white_id      TEXT NOT NULL DEFAULT '',
        white_name    TEXT NOT NULL DEFAULT '',
        black_id      TEXT NOT NULL DEFAULT '',
        black_name    TEXT NOT NULL DEFAULT '',
        starting_fen  TEXT NOT NULL,
        final_fen     TEXT NOT NULL,
        result        TEXT NOT NULL,
        result_method TEXT NOT NULL DEFAULT '',
        moves_san     TEXT NOT NULL,
        pgn           TEXT NOT NULL,
        started_at    BIGINT NOT NULL,
        ended_at      BIGINT NOT NULL,
        duration_ms   BIGINT NOT NULL
    )`,
    `CREATE INDEX IF NOT EXISTS game_results_white ON game_results (white_id)`,
    `CREATE INDEX IF NOT EXISTS game_results_black ON game_results (black_id)`,
}

// Result is one archived game.
type Result struct {
    GameID     string
    WhiteID    string
    WhiteName  string
    BlackID    string
    BlackName  string
    StartFEN   string
    FinalFEN   string
    Result     string // white | black | draw
    Method     string
    MovesSAN   []string
    PGN        string
    StartedAt  time.Time
    EndedAt    time.Time
    DurationMS int64
}

// Archive writes finished sessions to game_results.
type Archive struct {
    db    *store.DB
    event string
    site  string
}

// Option configures PGN headers.
type Option func(*Archive)

func WithEvent(name string) Option { return func(a *Archive) { a.event = name } }
func WithSite(name string) Option  { return func(a *Archive) { a.site = name } }

func New(db *store.DB, opts ...Option) *Archive {
    a := &Archive{db: db, event: "Casual Game", site: "learn-chess"}
    for _, o := range opts {
        o(a)
    }
    return a
}

var _ session.ResultSink = (*Archive)(nil)

func (a *Archive) Migrate(ctx context.Context) error {
    return a.db.ExecAll(ctx, schema)
}

// SessionEnded implements session.ResultSink.
func (a *Archive) SessionEnded(ctx context.Context, s *domain.Session, reason string) error {
    if a == nil || a.db == nil || s == nil {
        return nil
    }
    return a.Save(ctx, FromSession(s, reason), a.pgnHeaders())
}

func (a *Archive) pgnHeaders() Headers {
    return Headers{Event: a.event, Site: a.site}
}

// FromSession converts a terminal session into an archive record (without PGN).
func FromSession(s *domain.Session, reason string) Result {
    r := Result{
        GameID:    s.ID,
        StartFEN:  s.StartingFEN,
        FinalFEN:  s.CurrentFEN,
        Result:    string(s.Winner),
        Method:    strings.TrimSpace(reason),
        MovesSAN:  s.Moves.Notations(),
        StartedAt: s.CreatedAt,
        EndedAt:   s.UpdatedAt,
    }
    if s.White != nil {
        r.WhiteID, r.WhiteName = s.White.ID, nameOr(s.White)
    }
    if s.Black != nil {
        r.BlackID, r.BlackName = s.Black.ID, nameOr(s.Black)
    }
    r.DurationMS = r.EndedAt.Sub(r.StartedAt).Milliseconds()
    if r.DurationMS < 0 {
        r.DurationMS = 0
    }
    return r
}

func nameOr(p *domain.Participant) string {
    if strings.TrimSpace(p.Name) != "" {
        return p.Name
    }
    return p.ID
}

// Save upserts r, building its PGN from h.
func (a *Archive) Save(ctx context.Context, r Result, h Headers) error {
    r.PGN = BuildPGN(r, h)
    movesRaw, err := json.Marshal(r.MovesSAN)
    if err != nil {
        return err
    }

    q := a.db.Rebind(`INSERT INTO game_results (
        game_id, white_id, white_name, black_id, black_name,
        starting_fen, final_fen, result, result_method, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
      ON CONFLICT (game_id) DO UPDATE SET
        white_id=EXCLUDED.white_id,
        white_name=EXCLUDED.white_name,
        black_id=EXCLUDED.black_id,
        black_name=EXCLUDED.black_name,
        starting_fen=EXCLUDED.starting_fen,
        final_fen=EXCLUDED.final_fen,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`)

    _, err = a.db.ExecContext(ctx, q,
        r.GameID,
        r.WhiteID, r.WhiteName,
        r.BlackID, r.BlackName,
        r.StartFEN, r.FinalFEN, r.Result, r.Method, string(movesRaw), r.PGN,
        r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(), r.DurationMS,
    )
    if err != nil {
        return fmt.Errorf("archive %s: %w", r.GameID, err)
    }
    return nil
}

// Get loads one archived game.
func (a *Archive) Get(ctx context.Context, gameID string) (*Result, error) {
    row := a.db.QueryRowContext(ctx, a.db.Rebind(`SELECT
        game_id, white_id, white_name, black_id, black_name,
        starting_fen, final_fen, result, result_method, moves_san, pgn,
        started_at, ended_at, duration_ms
      FROM game_results WHERE game_id = ?`), gameID)

    var (
        r          Result
        movesRaw   string
        start, end int64
    )
    err := row.Scan(&r.GameID, &r.WhiteID, &r.WhiteName, &r.BlackID, &r.BlackName,
        &r.StartFEN, &r.FinalFEN, &r.Result, &r.Method, &movesRaw, &r.PGN,
        &start, &end, &r.DurationMS)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    if err := json.Unmarshal([]byte(movesRaw), &r.MovesSAN); err != nil {
        return nil, fmt.Errorf("decode moves of %s: %w", gameID, err)
    }
    r.StartedAt = time.UnixMilli(start).UTC()
    r.EndedAt = time.UnixMilli(end).UTC()
    return &r, nil
}
