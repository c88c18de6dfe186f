package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexcodex/quill/session"
)

// ErrSessionNotFound is returned when a transcript id has no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is one stored session's metadata.
type SessionRecord struct {
	ID        string
	WorkDir   string
	StartedAt time.Time
	SavedAt   time.Time
	TurnCount int
}

// TranscriptStore persists finished session transcripts in a SQLite
// database so they can be listed and replayed later.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore opens/creates the database at dbPath.
func NewTranscriptStore(dbPath string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}
	store := &TranscriptStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *TranscriptStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		work_dir TEXT NOT NULL,
		started_at TIMESTAMP,
		saved_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		mode TEXT NOT NULL,
		content TEXT,
		incomplete BOOLEAN,
		created_at TIMESTAMP,
		PRIMARY KEY(session_id, seq),
		FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *TranscriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession upserts a session and replaces its stored turns.
func (s *TranscriptStore) SaveSession(ctx context.Context, id string, sess *session.Session) error {
	if id == "" {
		return errors.New("session id required")
	}
	if sess == nil {
		return errors.New("session required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
	INSERT INTO sessions (id, work_dir, started_at, saved_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		work_dir=excluded.work_dir,
		started_at=excluded.started_at,
		saved_at=excluded.saved_at
	`
	if _, err := tx.ExecContext(ctx, query, id, sess.WorkDir(), sess.StartedAt(), time.Now()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return err
	}
	for i, turn := range sess.Turns() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, mode, content, incomplete, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, string(turn.Role), string(turn.Mode), turn.Content, turn.Incomplete, turn.Timestamp)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSessions returns stored sessions, newest first.
func (s *TranscriptStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT s.id, s.work_dir, s.started_at, s.saved_at, COUNT(t.seq)
	FROM sessions s
	LEFT JOIN turns t ON t.session_id = s.id
	GROUP BY s.id
	ORDER BY s.saved_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.WorkDir, &rec.StartedAt, &rec.SavedAt, &rec.TurnCount); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Turns returns a stored transcript in recorded order.
func (s *TranscriptStore) Turns(ctx context.Context, id string) ([]session.Turn, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT role, mode, content, incomplete, created_at
	FROM turns WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var (
			role, mode, content string
			incomplete          bool
			created             time.Time
		)
		if err := rows.Scan(&role, &mode, &content, &incomplete, &created); err != nil {
			return nil, err
		}
		turns = append(turns, session.Turn{
			Role:       session.Role(role),
			Mode:       session.Mode(mode),
			Content:    content,
			Incomplete: incomplete,
			Timestamp:  created,
		})
	}
	return turns, rows.Err()
}

// DeleteSession removes a stored transcript.
func (s *TranscriptStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
