// Package history keeps a local SQLite ledger of sbatch submissions. Entries
// are bookkeeping for `gridlaunch history`; nothing reads them back to decide
// what to submit.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// Status values stored with each submission.
const (
	StatusSubmitted = "SUBMITTED"
	StatusFailed    = "FAILED"
)

// Submission is one ledger row.
type Submission struct {
	ID         int64
	RunID      string
	JobName    string
	SweepFile  string
	ScriptPath string
	Configs    int
	PerJob     int
	NumJobs    int
	JobID      string
	Status     string
	Output     string
	CreatedAt  time.Time
}

// Ledger wraps the submissions database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const createSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id      TEXT NOT NULL,
  job_name    TEXT,
  sweep_file  TEXT,
  script_path TEXT NOT NULL,
  configs     INTEGER,
  per_job     INTEGER,
  num_jobs    INTEGER,
  job_id      TEXT,
  status      TEXT NOT NULL,
  output      TEXT,
  created_at  TEXT NOT NULL
);`
	_, err := db.Exec(createSubmissions)
	return err
}

// Close releases the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts s and returns its id. CreatedAt defaults to now.
func (l *Ledger) Record(ctx context.Context, s Submission) (int64, error) {
	if l == nil {
		return 0, errors.New("history: ledger not open")
	}
	if s.Status == "" {
		s.Status = StatusSubmitted
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = l.now()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO submissions (run_id, job_name, sweep_file, script_path, configs, per_job, num_jobs,
                                  job_id, status, output, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.JobName, s.SweepFile, s.ScriptPath, s.Configs, s.PerJob, s.NumJobs,
		s.JobID, s.Status, s.Output, s.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert submission: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit submissions, newest first. limit <= 0 means all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Submission, error) {
	if l == nil {
		return nil, errors.New("history: ledger not open")
	}
	query := `SELECT id, run_id, job_name, sweep_file, script_path, configs, per_job, num_jobs,
                     job_id, status, output, created_at
              FROM submissions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			s       Submission
			created string
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.JobName, &s.SweepFile, &s.ScriptPath, &s.Configs,
			&s.PerJob, &s.NumJobs, &s.JobID, &s.Status, &s.Output, &created); err != nil {
			return nil, fmt.Errorf("history: scan submission: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, s)
	}
	return out, rows.Err()
}
