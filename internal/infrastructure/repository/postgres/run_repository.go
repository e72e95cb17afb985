package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

const (
	schemaLockKey   = int64(2026101801)
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// RunRepository stores the history of processing runs.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS processing_runs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	source_uri TEXT NOT NULL,
	result_uri TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	entity_count INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processing_runs_session ON processing_runs(session_id, started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) RecordRun(ctx context.Context, run domain.ProcessingRun) error {
	if run.ID == "" || run.SessionID == "" {
		return domain.NewError(domain.ErrInvalidInput, "run id and session id are required")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processing_runs (
	id, session_id, mode, source_uri, result_uri, status, error_message, entity_count, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		run.ID, run.SessionID, string(run.Mode), run.SourceURI, run.ResultURI, string(run.Status),
		run.Error, run.EntityCount, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert processing run: %w", err)
	}
	return nil
}

// ListRuns returns a session's runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.ProcessingRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, mode, source_uri, result_uri, status, error_message, entity_count, started_at, finished_at
FROM processing_runs
WHERE session_id = $1
ORDER BY started_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list processing runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProcessingRun, 0)
	for rows.Next() {
		var run domain.ProcessingRun
		var mode, status string
		if err := rows.Scan(
			&run.ID, &run.SessionID, &mode, &run.SourceURI, &run.ResultURI, &status,
			&run.Error, &run.EntityCount, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan processing run: %w", err)
		}
		run.Mode = domain.Mode(mode)
		run.Status = domain.RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing runs: %w", err)
	}
	return out, nil
}
