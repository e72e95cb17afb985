package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*RunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewRunRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS processing_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordRunInsertsRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	run := domain.ProcessingRun{
		ID:          "run-1",
		SessionID:   "s-1",
		Mode:        domain.ModeCrop,
		SourceURI:   "file:///docs/in.pdf",
		ResultURI:   "https://files.example/out.pdf",
		Status:      domain.RunSucceeded,
		EntityCount: 1,
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
	}

	mock.ExpectExec("INSERT INTO processing_runs").
		WithArgs("run-1", "s-1", "crop", "file:///docs/in.pdf", "https://files.example/out.pdf", "succeeded", "", 1, started, started.Add(2*time.Second)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.RecordRun(context.Background(), run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordRunRequiresIdentifiers(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.RecordRun(context.Background(), domain.ProcessingRun{ID: "run-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRunsScansRowsAndClampsLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_id", "mode", "source_uri", "result_uri", "status", "error_message", "entity_count", "started_at", "finished_at"}).
		AddRow("run-2", "s-1", "redact", "file:///a.pdf", "", "failed", "no redactions to apply", 0, now, now).
		AddRow("run-1", "s-1", "crop", "file:///a.pdf", "file:///b.pdf", "succeeded", "", 1, now.Add(-time.Minute), now)

	mock.ExpectQuery("FROM processing_runs").
		WithArgs("s-1", maxRunLimit).
		WillReturnRows(rows)

	runs, err := repo.ListRuns(context.Background(), "s-1", 10_000)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Status != domain.RunFailed || runs[0].Mode != domain.ModeRedact || runs[0].Error != "no redactions to apply" {
		t.Fatalf("unexpected first run %+v", runs[0])
	}
	if runs[1].ResultURI != "file:///b.pdf" {
		t.Fatalf("unexpected second run %+v", runs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRunsWrapsQueryError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	boom := errors.New("connection reset")
	mock.ExpectQuery("FROM processing_runs").
		WithArgs("s-1", defaultRunLimit).
		WillReturnError(boom)

	if _, err := repo.ListRuns(context.Background(), "s-1", 0); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
