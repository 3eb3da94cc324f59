package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/batch"
)

// Status summarizes how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusEmpty     Status = "empty"
	StatusAborted   Status = "aborted"
)

var ErrRunNotFound = errors.New("run not found")

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one stored run.
type Run struct {
	ID        string
	RunID     string
	Status    Status
	Started   time.Time
	Finished  time.Time
	Succeeded int
	Failed    int
	Fault     string
}

// File is one file outcome within a stored run.
type File struct {
	Name      string
	Accepted  bool
	ErrorText string
	Relocated string
	ErrorLog  string
}

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. ":memory:" is accepted.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores res and its per-file records. fault is the error that
// aborted the run, if any. It returns the generated row ID.
func (s *Store) Record(ctx context.Context, res *batch.Result, fault error) (string, error) {
	status := StatusCompleted
	switch {
	case fault != nil:
		status = StatusAborted
	case res.Empty():
		status = StatusEmpty
	}
	var faultText sql.NullString
	if fault != nil {
		faultText = sql.NullString{String: fault.Error(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, run_id, status, started_at, finished_at, succeeded, failed, fault)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		res.RunID,
		string(status),
		res.Started.UTC().Format(timeLayout),
		res.Finished.UTC().Format(timeLayout),
		len(res.Succeeded),
		len(res.Failed),
		faultText,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, rec := range res.Records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_files (id, run, position, name, accepted, error_text, relocated, error_log)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), id, i, rec.Name, rec.Accepted, rec.ErrorText, rec.Relocated, rec.ErrorLog)
		if err != nil {
			return "", fmt.Errorf("insert file %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns the newest runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, run_id, status, started_at, finished_at, succeeded, failed, fault
		FROM runs ORDER BY started_at DESC, run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun looks a run up by its run ID (the timestamp), returning the most
// recent row if the ID was recorded more than once.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, []File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, status, started_at, finished_at, succeeded, failed, fault
		FROM runs WHERE run_id = ? ORDER BY started_at DESC LIMIT 1
	`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, accepted, error_text, relocated, error_log
		FROM run_files WHERE run = ? ORDER BY position
	`, r.ID)
	if err != nil {
		return Run{}, nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var errText, relocated, errLog sql.NullString
		if err := rows.Scan(&f.Name, &f.Accepted, &errText, &relocated, &errLog); err != nil {
			return Run{}, nil, err
		}
		f.ErrorText, f.Relocated, f.ErrorLog = errText.String, relocated.String, errLog.String
		files = append(files, f)
	}
	return r, files, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var status, started, finished string
	var fault sql.NullString
	if err := sc.Scan(&r.ID, &r.RunID, &status, &started, &finished, &r.Succeeded, &r.Failed, &fault); err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	r.Fault = fault.String

	var err error
	if r.Started, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("run %s started_at: %w", r.RunID, err)
	}
	if r.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("run %s finished_at: %w", r.RunID, err)
	}
	return r, nil
}
