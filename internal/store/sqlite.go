package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/roamline/trip-cli/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	intent     TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS stages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stages_run ON stages(run_id, started_at);
`

// SQLiteStore is the default, file-backed RunStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite run store at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open sqlite %s", path)
	}
	// Single writer; WAL keeps readers unblocked during pipeline updates.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "store: apply pragmas")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "store: apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	intent, err := json.Marshal(run.Intent)
	if err != nil {
		return eris.Wrap(err, "store: marshal intent")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, intent, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, string(intent), string(run.Status), run.CreatedAt, run.UpdatedAt)
	return eris.Wrapf(err, "store: create run %s", run.ID)
}

// UpdateRunStatus advances a run's lifecycle status.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "store: update run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRunResult stores a finished run's summary.
func (s *SQLiteStore) SetRunResult(ctx context.Context, runID string, result model.RunResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "store: set result for run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, intent, status, result, created_at, updated_at
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns a session's runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, intent, status, result, created_at, updated_at
		 FROM runs WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list runs for %s", sessionID)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "store: iterate runs")
}

// RecordStage appends one stage transition.
func (s *SQLiteStore) RecordStage(ctx context.Context, record model.StageRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (id, run_id, name, status, error, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RunID, record.Name, string(record.Status),
		record.Error, record.Duration, record.StartedAt)
	return eris.Wrapf(err, "store: record stage %s/%s", record.RunID, record.Name)
}

// ListStages returns a run's stage records in execution order.
func (s *SQLiteStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, error, duration_ms, started_at
		 FROM stages WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list stages for %s", runID)
	}
	defer rows.Close()

	var records []model.StageRecord
	for rows.Next() {
		var r model.StageRecord
		var status, errMsg string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Name, &status, &errMsg, &r.Duration, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan stage")
		}
		r.Status = model.StageStatus(status)
		r.Error = errMsg
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "store: iterate stages")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var run model.Run
	var intent, status string
	var result sql.NullString
	err := row.Scan(&run.ID, &run.SessionID, &intent, &status, &result, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	if err != nil {
		return run, eris.Wrap(err, "store: scan run")
	}
	run.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(intent), &run.Intent); err != nil {
		return run, eris.Wrap(err, "store: decode intent")
	}
	if result.Valid && result.String != "" {
		run.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(result.String), run.Result); err != nil {
			return run, eris.Wrap(err, "store: decode result")
		}
	}
	return run, nil
}
