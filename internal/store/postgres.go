package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/roamline/trip-cli/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	intent     JSONB NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS stages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stages_run ON stages(run_id, started_at);
`

// PgxIface is the subset of pgxpool.Pool the store uses; tests substitute a
// mock for it.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is a Postgres-backed RunStore for shared deployments.
type PostgresStore struct {
	pool PgxIface
}

// NewPostgres connects to Postgres and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: create postgres pool")
	}
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: apply postgres schema")
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool (or mock).
func NewPostgresWithPool(pool PgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateRun inserts a new run record.
func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	intent, err := json.Marshal(run.Intent)
	if err != nil {
		return eris.Wrap(err, "store: marshal intent")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, intent, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SessionID, intent, string(run.Status), run.CreatedAt, run.UpdatedAt)
	return eris.Wrapf(err, "store: create run %s", run.ID)
}

// UpdateRunStatus advances a run's lifecycle status.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "store: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRunResult stores a finished run's summary.
func (s *PostgresStore) SetRunResult(ctx context.Context, runID string, result model.RunResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, updated_at = $2 WHERE id = $3`,
		encoded, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "store: set result for run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, intent, status, result, created_at, updated_at
		 FROM runs WHERE id = $1`, runID)
	return scanPgRun(row)
}

// ListRuns returns a session's runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, intent, status, result, created_at, updated_at
		 FROM runs WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list runs for %s", sessionID)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "store: iterate runs")
}

// RecordStage appends one stage transition.
func (s *PostgresStore) RecordStage(ctx context.Context, record model.StageRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stages (id, run_id, name, status, error, duration_ms, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.RunID, record.Name, string(record.Status),
		record.Error, record.Duration, record.StartedAt)
	return eris.Wrapf(err, "store: record stage %s/%s", record.RunID, record.Name)
}

// ListStages returns a run's stage records in execution order.
func (s *PostgresStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, error, duration_ms, started_at
		 FROM stages WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list stages for %s", runID)
	}
	defer rows.Close()

	var records []model.StageRecord
	for rows.Next() {
		var r model.StageRecord
		var status string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Name, &status, &r.Error, &r.Duration, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan stage")
		}
		r.Status = model.StageStatus(status)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "store: iterate stages")
}

func scanPgRun(row pgx.Row) (model.Run, error) {
	var run model.Run
	var intent []byte
	var result []byte
	var status string
	err := row.Scan(&run.ID, &run.SessionID, &intent, &status, &result, &run.CreatedAt, &run.UpdatedAt)
	if err == pgx.ErrNoRows {
		return run, ErrNotFound
	}
	if err != nil {
		return run, eris.Wrap(err, "store: scan run")
	}
	run.Status = model.RunStatus(status)
	if err := json.Unmarshal(intent, &run.Intent); err != nil {
		return run, eris.Wrap(err, "store: decode intent")
	}
	if len(result) > 0 {
		run.Result = &model.RunResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return run, eris.Wrap(err, "store: decode result")
		}
	}
	return run, nil
}
