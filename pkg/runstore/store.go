// Package runstore keeps an optional Postgres registry of training runs so
// past sweeps and their metrics stay queryable.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

// Run is one trainer invocation's registry row.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	DatasetRows int
	Families    []string
	Labels      []string
	Metrics     any
	Params      any
}

// Store persists training runs.
type Store struct {
	db *sql.DB
}

// NewFromEnv opens the registry using RUNS_DATABASE_URL with DATABASE_URL
// and METADATA_DATABASE_URL fallbacks.
func NewFromEnv() (*Store, error) {
	dsn := os.Getenv("RUNS_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = os.Getenv("METADATA_DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("RUNS_DATABASE_URL or DATABASE_URL is required")
	}
	return New(dsn)
}

// New opens the registry against a DSN and ensures the schema exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewWithDB(db)
}

// NewWithDB reuses an existing *sql.DB.
func NewWithDB(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := ensureTable(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureTable(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS training_runs (
  id text PRIMARY KEY,
  started_at timestamptz NOT NULL,
  finished_at timestamptz NOT NULL,
  dataset_rows integer NOT NULL DEFAULT 0,
  families text[] NOT NULL DEFAULT '{}',
  labels text[] NOT NULL DEFAULT '{}',
  metrics jsonb,
  params jsonb
);
`
	_, err := db.Exec(ddl)
	return err
}

// RecordRun upserts a run keyed by id.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Families == nil {
		run.Families = []string{}
	}
	if run.Labels == nil {
		run.Labels = []string{}
	}
	metricsJSON, _ := json.Marshal(run.Metrics)
	paramsJSON, _ := json.Marshal(run.Params)
	const stmt = `
INSERT INTO training_runs
  (id, started_at, finished_at, dataset_rows, families, labels, metrics, params)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  finished_at=EXCLUDED.finished_at,
  dataset_rows=EXCLUDED.dataset_rows,
  families=EXCLUDED.families,
  labels=EXCLUDED.labels,
  metrics=EXCLUDED.metrics,
  params=EXCLUDED.params;`
	_, err := s.db.ExecContext(ctx, stmt,
		run.ID, run.StartedAt, run.FinishedAt, run.DatasetRows,
		pq.Array(run.Families), pq.Array(run.Labels), metricsJSON, paramsJSON,
	)
	return err
}

// GetRun fetches one run, returning nil when the id is unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	var metrics, params []byte
	err := s.db.QueryRowContext(ctx, `
SELECT id, started_at, finished_at, dataset_rows, families, labels, metrics, params
FROM training_runs WHERE id=$1`, id).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.DatasetRows,
		pq.Array(&run.Families), pq.Array(&run.Labels), &metrics, &params,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(metrics) > 0 {
		var v any
		if err := json.Unmarshal(metrics, &v); err == nil {
			run.Metrics = v
		}
	}
	if len(params) > 0 {
		var v any
		if err := json.Unmarshal(params, &v); err == nil {
			run.Params = v
		}
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, dataset_rows, families, labels
FROM training_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.DatasetRows,
			pq.Array(&run.Families), pq.Array(&run.Labels)); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
