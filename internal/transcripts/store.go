// Package transcripts persists final transcripts to a local sqlite database
// so recognized speech survives the connection that produced it.
package transcripts

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one stored final transcript.
type Record struct {
	ID         int64
	SessionID  string
	Language   string
	Source     string // stream, batch
	Text       string
	Confidence float64
	CreatedAt  time.Time
}

// Store wraps the sqlite-backed transcript log.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the database file (and parent directory) if needed and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    language TEXT NOT NULL,
    source TEXT NOT NULL,
    text TEXT NOT NULL,
    confidence REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes one final transcript. Empty text is not stored.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.Text == "" {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(session_id, language, source, text, confidence, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Language, rec.Source, rec.Text, rec.Confidence, rec.CreatedAt)
	return err
}

// Recent returns up to limit transcripts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, language, source, text, confidence, created_at
		 FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Language, &r.Source, &r.Text, &r.Confidence, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune keeps at most maxRows transcripts, discarding the oldest.
func (s *Store) Prune(ctx context.Context, maxRows int) error {
	if maxRows <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id IN (
		SELECT id FROM transcripts ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
	)`, maxRows)
	return err
}
