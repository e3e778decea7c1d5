// Package history records batch run outcomes to Postgres. Recording is
// optional and best-effort: a sync run never fails because its report could
// not be persisted.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	runsTableName    = "notionsync_runs"
	operationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// FailureRecord is one failed event, flattened for storage.
type FailureRecord struct {
	Title string `json:"title"`
	When  string `json:"when"`
	Error string `json:"error"`
}

// RunRecord is one batch run's outcome.
type RunRecord struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	EventCount    int
	Created       int
	Updated       int
	IndexDegraded bool
	Failures      []FailureRecord
}

// Recorder appends run records to a Postgres table, creating it on first
// use.
type Recorder struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewRecorder(dsn string) (*Recorder, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return &Recorder{
		dsn:       dsn,
		tableName: runsTableName,
		openDB:    sql.Open,
	}, nil
}

func (r *Recorder) Record(ctx context.Context, record RunRecord) error {
	if r == nil {
		return nil
	}
	if err := r.ensureReady(); err != nil {
		return err
	}
	failures := record.Failures
	if failures == nil {
		failures = []FailureRecord{}
	}
	payload, err := json.Marshal(failures)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (started_at, finished_at, event_count, created_count, updated_count, index_degraded, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, quoteIdentifier(r.tableName))
	_, err = r.db.ExecContext(ctx, query,
		record.StartedAt, record.FinishedAt,
		record.EventCount, record.Created, record.Updated,
		record.IndexDegraded, string(payload))
	return err
}

func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Recorder) ensureReady() error {
	r.initOnce.Do(func() {
		db, err := r.openDB("postgres", r.dsn)
		if err != nil {
			r.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL,
				event_count INT NOT NULL,
				created_count INT NOT NULL,
				updated_count INT NOT NULL,
				index_degraded BOOLEAN NOT NULL DEFAULT FALSE,
				failures TEXT NOT NULL DEFAULT '[]'
			)`, quoteIdentifier(r.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			r.initErr = err
			return
		}
		r.db = db
	})
	return r.initErr
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
