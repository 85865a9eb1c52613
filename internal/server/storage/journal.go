package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chessmatch/internal/server/obslog"
)

// enqueue hands fn to the writer, dropping it when degraded or the queue is full
func (s *Store) enqueue(kind string, fn func(*sql.Tx) error) {
	if !s.healthStatus.Load() {
		return
	}
	select {
	case s.writeChan <- fn:
	default:
		obslog.L().Warn("storage_queue_full", zap.String("record", kind))
	}
}

// RecordSession asynchronously inserts a new session row
func (s *Store) RecordSession(record SessionRecord) {
	s.enqueue("session", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions (
			session_id, initial_fen, status, created_at_utc
		) VALUES (?, ?, ?, ?)`,
			record.SessionID, record.InitialFEN, record.Status, utc(record.CreatedAtUTC),
		)
		return err
	})
}

// RecordJoin stores the display name of the player seated as color ("w" or "b")
func (s *Store) RecordJoin(sessionID, color, name, status string) {
	column := "white_name"
	if color == "b" {
		column = "black_name"
	}
	s.enqueue("join", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE sessions SET `+column+` = ?, status = ? WHERE journal_id = `+latestJournal,
			name, status, sessionID)
		return err
	})
}

// RecordMove asynchronously records a move
func (s *Store) RecordMove(record MoveRecord) {
	s.enqueue("move", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO moves (
			journal_id, session_id, move_number, move_uci, fen_after_move, player_color, move_time_utc
		) VALUES (`+latestJournal+`, ?, ?, ?, ?, ?, ?)`,
			record.SessionID, record.SessionID, record.MoveNumber, record.MoveUCI,
			record.FENAfterMove, record.PlayerColor, utc(record.MoveTimeUTC),
		)
		return err
	})
}

// RecordResult asynchronously marks a session finished
func (s *Store) RecordResult(record ResultRecord) {
	s.enqueue("result", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE sessions
			SET status = ?, reason = ?, winner = ?, move_count = ?, ended_at_utc = ?
			WHERE journal_id = `+latestJournal,
			record.Status, record.Reason, record.Winner, record.MoveCount,
			utc(record.EndedAtUTC), record.SessionID,
		)
		return err
	})
}

// QuerySessions lists sessions newest first. Empty or "*" filters match all;
// player matches either seat's name.
func (s *Store) QuerySessions(sessionID, player string) ([]SessionRecord, error) {
	query := `SELECT
		journal_id, session_id, initial_fen, white_name, black_name,
		status, reason, winner, move_count, created_at_utc, ended_at_utc
	FROM sessions WHERE 1=1`

	var args []any
	if sessionID != "" && sessionID != "*" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	if player != "" && player != "*" {
		query += " AND (white_name = ? OR black_name = ?)"
		args = append(args, player, player)
	}
	query += " ORDER BY created_at_utc DESC, journal_id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var ended sql.NullTime
		if err := rows.Scan(
			&r.JournalID, &r.SessionID, &r.InitialFEN, &r.WhiteName, &r.BlackName,
			&r.Status, &r.Reason, &r.Winner, &r.MoveCount, &r.CreatedAtUTC, &ended,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAtUTC = &t
		}
		sessions = append(sessions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return sessions, nil
}

// QueryMoves returns the journaled moves of the newest session recorded
// under sessionID, in order
func (s *Store) QueryMoves(sessionID string) ([]MoveRecord, error) {
	rows, err := s.db.Query(`SELECT
		move_id, journal_id, session_id, move_number, move_uci, fen_after_move, player_color, move_time_utc
	FROM moves WHERE journal_id = `+latestJournal+` ORDER BY move_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var moves []MoveRecord
	for rows.Next() {
		var m MoveRecord
		if err := rows.Scan(&m.MoveID, &m.JournalID, &m.SessionID, &m.MoveNumber, &m.MoveUCI,
			&m.FENAfterMove, &m.PlayerColor, &m.MoveTimeUTC); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// HasSession reports whether sessionID was ever journaled
func (s *Store) HasSession(sessionID string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	return n > 0, nil
}

// utc truncates t for storage
func utc(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }
