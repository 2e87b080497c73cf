package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    session_id INTEGER NOT NULL,
    mode TEXT NOT NULL,
    input TEXT,
    source_width INTEGER DEFAULT 0,
    source_height INTEGER DEFAULT 0,
    width INTEGER DEFAULT 0,
    height INTEGER DEFAULT 0,
    quality INTEGER DEFAULT 0,
    bytes INTEGER DEFAULT 0,
    outcome TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
`

// NewSQLiteStore opens (creating if needed) the history database.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dbPath, err := GetDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("get db path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// Record inserts job, assigning an ID and timestamp when missing, then
// prunes the table down to MaxCount rows.
func (s *SQLiteStore) Record(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, session_id, mode, input, source_width, source_height,
			width, height, quality, bytes, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, job.Mode, job.Input, job.SourceWidth, job.SourceHeight,
		job.Width, job.Height, job.Quality, job.Bytes, string(job.Outcome), job.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if s.cfg.MaxCount > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM jobs WHERE rowid NOT IN (
				SELECT rowid FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, s.cfg.MaxCount)
		if err != nil {
			return fmt.Errorf("prune jobs: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, mode, input, source_width, source_height,
			width, height, quality, bytes, outcome, created_at
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			j       Job
			input   sql.NullString
			outcome string
			created int64
		)
		if err := rows.Scan(&j.ID, &j.SessionID, &j.Mode, &input, &j.SourceWidth, &j.SourceHeight,
			&j.Width, &j.Height, &j.Quality, &j.Bytes, &outcome, &created); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Input = input.String
		j.Outcome = Outcome(outcome)
		j.CreatedAt = time.Unix(0, created)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
