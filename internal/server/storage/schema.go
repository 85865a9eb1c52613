package storage

import "time"

// SessionRecord represents a row in the sessions table. Session ids are
// short and get reused over time, so JournalID is the row key.
type SessionRecord struct {
	JournalID    int64      `db:"journal_id"`
	SessionID    string     `db:"session_id"`
	InitialFEN   string     `db:"initial_fen"`
	WhiteName    string     `db:"white_name"`
	BlackName    string     `db:"black_name"`
	Status       string     `db:"status"`
	Reason       string     `db:"reason"`
	Winner       string     `db:"winner"` // "w", "b" or empty
	MoveCount    int        `db:"move_count"`
	CreatedAtUTC time.Time  `db:"created_at_utc"`
	EndedAtUTC   *time.Time `db:"ended_at_utc"`
}

// MoveRecord represents a row in the moves table
type MoveRecord struct {
	MoveID       int64     `db:"move_id"`
	JournalID    int64     `db:"journal_id"`
	SessionID    string    `db:"session_id"`
	MoveNumber   int       `db:"move_number"`
	MoveUCI      string    `db:"move_uci"`
	FENAfterMove string    `db:"fen_after_move"`
	PlayerColor  string    `db:"player_color"`
	MoveTimeUTC  time.Time `db:"move_time_utc"`
}

// ResultRecord closes a session row
type ResultRecord struct {
	SessionID  string
	Status     string
	Reason     string
	Winner     string
	MoveCount  int
	EndedAtUTC time.Time
}

// Schema defines the SQLite database structure. Rows for a session id are
// addressed through its newest journal entry.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	journal_id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	initial_fen TEXT NOT NULL,
	white_name TEXT NOT NULL DEFAULT '',
	black_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'waiting',
	reason TEXT NOT NULL DEFAULT '',
	winner TEXT NOT NULL DEFAULT '' CHECK(winner IN ('', 'w', 'b')),
	move_count INTEGER NOT NULL DEFAULT 0,
	created_at_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at_utc DATETIME
);

CREATE TABLE IF NOT EXISTS moves (
	move_id INTEGER PRIMARY KEY AUTOINCREMENT,
	journal_id INTEGER NOT NULL,
	session_id TEXT NOT NULL,
	move_number INTEGER NOT NULL,
	move_uci TEXT NOT NULL,
	fen_after_move TEXT NOT NULL,
	player_color TEXT NOT NULL CHECK(player_color IN ('w', 'b')),
	move_time_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (journal_id) REFERENCES sessions(journal_id) ON DELETE CASCADE,
	UNIQUE(journal_id, move_number)
);

CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id);
CREATE INDEX IF NOT EXISTS idx_moves_journal_id ON moves(journal_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_white_name ON sessions(white_name);
CREATE INDEX IF NOT EXISTS idx_sessions_black_name ON sessions(black_name);
`

// latestJournal selects the newest journal entry of a session id
const latestJournal = `(SELECT MAX(journal_id) FROM sessions WHERE session_id = ?)`
