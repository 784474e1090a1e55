package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists the single live session record in SQLite. Every append
// is written through immediately so a crash loses at most the in-flight,
// not-yet-appended fragment. The coordinator is the only writer.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	state              TEXT NOT NULL,
	start_time         INTEGER NOT NULL,
	notes_text         TEXT,
	notes_generated_at INTEGER
);
CREATE TABLE IF NOT EXISTS entries (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	speaker    TEXT NOT NULL,
	text       TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Open opens (creating if necessary) the session database at path with
// WAL journaling enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace deletes any superseded session records and persists sess as
// the single live session. Called on every successful start command.
func (s *Store) Replace(sess *Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO sessions (id, state, start_time) VALUES (?, ?, ?)`,
		sess.ID, string(sess.State), sess.StartTime.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, e := range sess.Entries {
		if err := insertEntry(tx, sess.ID, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// SetState updates the persisted state of the session.
func (s *Store) SetState(sessionID string, state State) error {
	if _, err := s.db.Exec(
		`UPDATE sessions SET state = ? WHERE id = ?`,
		string(state), sessionID,
	); err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

// AppendEntry writes one transcript entry through to disk.
func (s *Store) AppendEntry(sessionID string, e Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := insertEntry(tx, sessionID, e); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// SaveNotes persists generated notes, overwriting any previous value.
func (s *Store) SaveNotes(sessionID string, n Notes) error {
	if _, err := s.db.Exec(
		`UPDATE sessions SET notes_text = ?, notes_generated_at = ? WHERE id = ?`,
		n.Text, n.GeneratedAt.UnixNano(), sessionID,
	); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}

// Load returns the persisted session record with its full ordered
// transcript, or nil if no session has ever been recorded.
func (s *Store) Load() (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, state, start_time, notes_text, notes_generated_at
		FROM sessions
		LIMIT 1
	`)

	var sess Session
	var state string
	var startNanos int64
	var notesText sql.NullString
	var notesAt sql.NullInt64

	if err := row.Scan(&sess.ID, &state, &startNanos, &notesText, &notesAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.State = State(state)
	sess.StartTime = time.Unix(0, startNanos)
	if notesText.Valid {
		sess.Notes = &Notes{Text: notesText.String}
		if notesAt.Valid {
			sess.Notes.GeneratedAt = time.Unix(0, notesAt.Int64)
		}
	}

	rows, err := s.db.Query(`
		SELECT seq, speaker, text, ts
		FROM entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var tsNanos int64
		if err := rows.Scan(&e.Sequence, &e.Speaker, &e.Text, &tsNanos); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp = time.Unix(0, tsNanos)
		sess.Entries = append(sess.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return &sess, nil
}

func insertEntry(tx *sql.Tx, sessionID string, e Entry) error {
	if _, err := tx.Exec(
		`INSERT INTO entries (session_id, seq, speaker, text, ts) VALUES (?, ?, ?, ?, ?)`,
		sessionID, e.Sequence, e.Speaker, e.Text, e.Timestamp.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert entry %d: %w", e.Sequence, err)
	}
	return nil
}
