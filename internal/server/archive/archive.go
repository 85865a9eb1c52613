// Package archive keeps finished games in PostgreSQL
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/obslog"
)

const Schema = `
CREATE TABLE IF NOT EXISTS chess_results (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    white_name  TEXT NOT NULL DEFAULT '',
    black_name  TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL,
    moves_uci   JSONB NOT NULL,
    final_fen   TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    UNIQUE (session_id, started_at)
);
`

// upsertResult keys a game on its id and start time, since short session
// ids come back around for unrelated games
const upsertResult = `INSERT INTO chess_results (
        session_id, white_name, black_name, status, reason, result,
        moves_uci, final_fen, started_at, ended_at, duration_ms
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
      ON CONFLICT (session_id, started_at) DO UPDATE SET
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        status=EXCLUDED.status,
        reason=EXCLUDED.reason,
        result=EXCLUDED.result,
        moves_uci=EXCLUDED.moves_uci,
        final_fen=EXCLUDED.final_fen,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

// Repository writes final results. A nil Repository accepts every call.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Migrate creates the results table if needed
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Deliver archives game_over events and ignores the rest
func (r *Repository) Deliver(ctx context.Context, ev core.Event) error {
	if ev.Type != core.EventGameOver || ev.State == nil {
		return nil
	}
	if err := r.SaveResult(ctx, ev.State); err != nil {
		obslog.L().Warn("archive_save_failed", zap.String("session", ev.SessionID), zap.Error(err))
		return err
	}
	return nil
}

// SaveResult upserts the final state of a finished session
func (r *Repository) SaveResult(ctx context.Context, st *core.SessionState) error {
	if r == nil || r.db == nil || st == nil {
		return nil
	}
	if !st.Status.IsTerminal() {
		return fmt.Errorf("session %s is not finished", st.SessionID)
	}

	row := resultRow(st)
	_, err := r.db.ExecContext(ctx, upsertResult,
		row.SessionID, row.WhiteName, row.BlackName,
		row.Status, row.Reason, row.Result,
		row.MovesUCI, row.FinalFEN,
		row.StartedAt, row.EndedAt, row.DurationMs,
	)
	return err
}

// row is the flattened form of a finished session
type row struct {
	SessionID  string
	WhiteName  string
	BlackName  string
	Status     string
	Reason     string
	Result     string
	MovesUCI   string
	FinalFEN   string
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
}

func resultRow(st *core.SessionState) row {
	r := row{
		SessionID: st.SessionID,
		Status:    st.Status.String(),
		Result:    ResultToken(st.Winner, st.Status),
		FinalFEN:  st.FEN,
		StartedAt: st.CreatedAt.UTC(),
		EndedAt:   st.UpdatedAt.UTC(),
	}
	if st.Reason != core.ReasonNone {
		r.Reason = st.Reason.String()
	}
	for _, p := range st.Players {
		switch p.Color {
		case core.ColorWhite:
			r.WhiteName = p.Name
		case core.ColorBlack:
			r.BlackName = p.Name
		}
	}
	uci := make([]string, 0, len(st.Moves))
	for _, m := range st.Moves {
		uci = append(uci, m.UCI)
	}
	raw, _ := json.Marshal(uci)
	r.MovesUCI = string(raw)
	if d := r.EndedAt.Sub(r.StartedAt).Milliseconds(); d > 0 {
		r.DurationMs = d
	}
	return r
}

// ResultToken renders the outcome in PGN notation
func ResultToken(winner core.Color, status core.Status) string {
	switch {
	case winner == core.ColorWhite:
		return "1-0"
	case winner == core.ColorBlack:
		return "0-1"
	case status == core.StatusDraw || status == core.StatusStalemate:
		return "1/2-1/2"
	default:
		return "*"
	}
}
