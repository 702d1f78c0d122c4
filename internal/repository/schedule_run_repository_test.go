package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

var runColumns = []string{"id", "job_id", "sport", "format", "status", "seed", "iterations", "hard_violations", "soft_score", "fixtures", "error_message", "started_at", "completed_at", "created_at"}

type observerStub struct {
	labels []string
}

func (o *observerStub) ObserveDBQuery(label string, _ time.Duration) {
	o.labels = append(o.labels, label)
}

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestScheduleRunRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	observer := &observerStub{}
	repo := NewScheduleRunRepository(db, observer)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_runs")).
		WithArgs(sqlmock.AnyArg(), "job-1", "basketball", "double_round_robin", "PENDING", int64(42), 1000, 0, 0.0, []byte("[]"), nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.ScheduleRun{JobID: "job-1", Sport: "basketball", Format: "double_round_robin", Seed: 42, Iterations: 1000}
	require.NoError(t, repo.Create(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.JobStatusPending, run.Status)

	fixtures := `[{"homeTeamId":"a","awayTeamId":"b","week":1,"date":"2025-01-10T00:00:00Z","type":"conference"}]`
	rows := sqlmock.NewRows(runColumns).
		AddRow(run.ID, "job-1", "basketball", "double_round_robin", "COMPLETED", 42, 1000, 0, 0.31, fixtures, nil, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	fetched, err := repo.FindByJobID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, fetched.Status)
	require.Len(t, fetched.Fixtures, 1)
	assert.Equal(t, "a", fetched.Fixtures[0].HomeTeamID)
	assert.Equal(t, []string{"schedule_runs.insert", "schedule_runs.find"}, observer.labels)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE job_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))

	_, err := repo.FindByJobID(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	now := time.Now()
	warning := "constraints unsatisfied"
	run := &models.ScheduleRun{
		JobID:          "job-1",
		Status:         models.JobStatusCompleted,
		Iterations:     500,
		HardViolations: 2,
		SoftScore:      0.4,
		ErrorMessage:   &warning,
		StartedAt:      &now,
		CompletedAt:    &now,
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs SET status = $1, iterations = $2, hard_violations = $3, soft_score = $4, fixtures = $5, error_message = $6, started_at = $7, completed_at = $8 WHERE job_id = $9")).
		WithArgs("COMPLETED", 500, 2, 0.4, []byte("[]"), warning, now, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), run))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), &models.ScheduleRun{JobID: "ghost"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryList(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedule_runs WHERE status = $1 AND sport = $2")).
		WithArgs(models.JobStatusCompleted, "hockey").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE status = $1 AND sport = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(models.JobStatusCompleted, "hockey", 2, 2).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("run-3", "job-3", "hockey", "single_round_robin", "COMPLETED", 7, 100, 0, 0.2, "[]", nil, nil, time.Now(), time.Now()))

	runs, total, err := repo.List(context.Background(), models.ScheduleRunFilter{Status: models.JobStatusCompleted, Sport: "Hockey", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "job-3", runs[0].JobID)
	assert.Empty(t, runs[0].Fixtures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryDeleteCompletedBefore(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	cutoff := time.Now().Add(-72 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE completed_at IS NOT NULL AND completed_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := repo.DeleteCompletedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryEnsureSchema(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schedule_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
