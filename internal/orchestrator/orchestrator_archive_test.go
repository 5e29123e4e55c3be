package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/db"
	"github.com/scanward/scanward/internal/registry"
	"github.com/scanward/scanward/internal/storage"
)

func newArchivedOrchestrator(t *testing.T, scanner scanRunner) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	database := &db.DB{DB: sqlx.NewDb(mockDB, "sqlmock")}

	cfg := config.Default()
	cfg.Scanning.TargetNetwork = "192.168.1.0/24"
	cfg.Storage.ResultsDir = t.TempDir()

	store, err := storage.New(cfg.Storage, nil)
	require.NoError(t, err)

	o := New(cfg, registry.New(), store, scanner, &fakeMapper{}, nil,
		WithArchive(db.NewJobRepository(database)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, mock
}

const archiveCountQuery = `SELECT COUNT\(\*\) FROM jobs WHERE kind = \$1`

const archiveRecentQuery = `SELECT \* FROM jobs WHERE kind = \$1 ORDER BY submitted_at DESC LIMIT \$2`

func TestStatusIncludesArchivedCounts(t *testing.T) {
	o, mock := newArchivedOrchestrator(t, &fakeScanner{})

	mock.ExpectQuery(archiveCountQuery).WithArgs("scan").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(archiveCountQuery).WithArgs("topology").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"scan": 12, "topology": 3}, report.ArchivedJobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusWithoutArchiveOmitsCounts(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeScanner{}, &fakeMapper{})

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.ArchivedJobs)
}

func TestStatusSurvivesArchiveOutage(t *testing.T) {
	o, mock := newArchivedOrchestrator(t, &fakeScanner{})

	mock.ExpectQuery(archiveCountQuery).WithArgs("scan").
		WillReturnError(fmt.Errorf("connection refused"))

	report, err := o.Status(context.Background())
	require.NoError(t, err, "an unreachable archive must not fail the status report")
	assert.Nil(t, report.ArchivedJobs)
}

func TestJobsMergesArchivedJobs(t *testing.T) {
	scanner := &fakeScanner{ref: storage.Ref{Name: "scan_new.xml"}}
	o, mock := newArchivedOrchestrator(t, scanner)

	mock.ExpectQuery(`INSERT INTO jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	job, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)
	waitTerminal(t, o, job.ID)
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 5*time.Millisecond, "terminal job should be archived")

	// The archive returns the job just run plus one that has aged out of
	// the in-memory history.
	archivedID := uuid.New()
	older := time.Now().Add(-time.Hour).UTC()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "target", "status", "submitted_at", "started_at",
		"completed_at", "result_ref", "error_code", "error_message", "created_at",
	}).
		AddRow(job.ID.String(), "scan", "10.0.0.0/24", "succeeded", job.SubmittedAt,
			nil, nil, "scan_new.xml", nil, nil, time.Now().UTC()).
		AddRow(archivedID.String(), "scan", "10.0.0.0/24", "failed", older,
			older, older, nil, "TIMEOUT", "scan timed out", older)
	mock.ExpectQuery(archiveRecentQuery).WithArgs("scan", archiveRecentLimit).
		WillReturnRows(rows)

	jobs := o.Jobs(registry.KindScan)
	require.Len(t, jobs, 2, "archived jobs are merged without duplicating live ones")
	assert.Equal(t, job.ID, jobs[0].ID, "newest first")
	assert.Equal(t, archivedID, jobs[1].ID)
	assert.Equal(t, registry.StatusFailed, jobs[1].Status)
	assert.Equal(t, "TIMEOUT", string(jobs[1].ErrorCode))
	assert.Equal(t, "scan timed out", jobs[1].ErrorMessage)
	require.NotNil(t, jobs[1].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobsSurvivesArchiveOutage(t *testing.T) {
	scanner := &fakeScanner{ref: storage.Ref{Name: "scan_x.xml"}}
	o, mock := newArchivedOrchestrator(t, scanner)

	mock.ExpectQuery(`INSERT INTO jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	job, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)
	waitTerminal(t, o, job.ID)
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 5*time.Millisecond)

	mock.ExpectQuery(archiveRecentQuery).WithArgs("scan", archiveRecentLimit).
		WillReturnError(fmt.Errorf("connection refused"))

	jobs := o.Jobs(registry.KindScan)
	require.Len(t, jobs, 1, "in-memory history still answers when the archive is down")
	assert.Equal(t, job.ID, jobs[0].ID)
}
