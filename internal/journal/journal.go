// Package journal keeps an append-only SQLite record of sessions, rounds and bets.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	round       INTEGER NOT NULL,
	at          INTEGER NOT NULL,
	game_window TEXT    NOT NULL,
	left_face   INTEGER NOT NULL,
	right_face  INTEGER NOT NULL,
	winner      TEXT    NOT NULL,
	draw        INTEGER NOT NULL,
	confidence  REAL    NOT NULL,
	bootstrap   INTEGER NOT NULL,
	outcome     TEXT    NOT NULL,
	profit      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS rounds_session ON rounds(session_id, id);

CREATE TABLE IF NOT EXISTS bets (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	round       INTEGER NOT NULL,
	at          INTEGER NOT NULL,
	game_window TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	amount      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stops (
	session_id  TEXT    PRIMARY KEY,
	at          INTEGER NOT NULL,
	rounds      INTEGER NOT NULL,
	profit      INTEGER NOT NULL,
	error       TEXT    NOT NULL
);
`

// Round is one journaled result.
type Round struct {
	SessionID  string    `json:"session_id"`
	Round      int       `json:"round"`
	At         time.Time `json:"at"`
	Window     string    `json:"window"`
	Left       int       `json:"left"`
	Right      int       `json:"right"`
	Winner     string    `json:"winner"`
	Draw       bool      `json:"draw"`
	Confidence float64   `json:"confidence"`
	Bootstrap  bool      `json:"bootstrap"`
	Outcome    string    `json:"outcome"`
	Profit     int       `json:"profit"`
}

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

var _ game.Observer = (*DB)(nil)

// Open opens or creates the journal at dbPath.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Observe writes result, bet and stop events. Failures are logged, never
// propagated to the session.
func (db *DB) Observe(ctx context.Context, e game.Event) {
	var err error
	switch e.Kind {
	case game.EventResult:
		err = db.insertRound(ctx, e)
	case game.EventBet:
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO bets (session_id, round, at, game_window, side, amount) VALUES (?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.Round, e.At.UnixNano(), e.Bet.Window.String(), e.Bet.Side.String(), e.Bet.Amount)
	case game.EventStopped:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		_, err = db.conn.ExecContext(ctx,
			`INSERT OR REPLACE INTO stops (session_id, at, rounds, profit, error) VALUES (?, ?, ?, ?, ?)`,
			e.SessionID, e.At.UnixNano(), e.State.TotalRounds, e.State.TotalProfit, msg)
	}
	if err != nil {
		trace.Logger(ctx).Warn("journal write failed", "kind", e.Kind, "error", err)
	}
}

func (db *DB) insertRound(ctx context.Context, e game.Event) error {
	r := e.Result
	outcome := ""
	if !e.Bootstrap {
		outcome = e.Outcome.String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO rounds (session_id, round, at, game_window, left_face, right_face, winner, draw, confidence, bootstrap, outcome, profit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Round, e.At.UnixNano(), e.Window.String(), r.Left, r.Right, r.Winner.String(),
		r.Draw, r.Confidence, e.Bootstrap, outcome, e.State.TotalProfit)
	return err
}

// Rounds returns up to limit journaled rounds of a session, oldest first.
func (db *DB) Rounds(ctx context.Context, sessionID string, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT session_id, round, at, game_window, left_face, right_face, winner, draw, confidence, bootstrap, outcome, profit
		 FROM (SELECT * FROM rounds WHERE session_id = ? ORDER BY id DESC LIMIT ?) ORDER BY id`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var r Round
		var at int64
		if err := rows.Scan(&r.SessionID, &r.Round, &at, &r.Window, &r.Left, &r.Right, &r.Winner,
			&r.Draw, &r.Confidence, &r.Bootstrap, &r.Outcome, &r.Profit); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.At = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BetCount returns the number of bets journaled for a session.
func (db *DB) BetCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// StopReason returns the recorded stop error of a session ("" for a clean stop).
func (db *DB) StopReason(ctx context.Context, sessionID string) (string, bool, error) {
	var msg string
	err := db.conn.QueryRowContext(ctx, `SELECT error FROM stops WHERE session_id = ?`, sessionID).Scan(&msg)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return msg, true, nil
}
