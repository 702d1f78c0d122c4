package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

const scheduleRunColumns = `id, job_id, sport, format, status, seed, iterations, hard_violations, soft_score, fixtures, error_message, started_at, completed_at, created_at`

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// ScheduleRunRepository persists optimization runs and their best fixtures.
type ScheduleRunRepository struct {
	db       *sqlx.DB
	observer queryObserver
}

// NewScheduleRunRepository constructs the repository. observer may be nil.
func NewScheduleRunRepository(db *sqlx.DB, observer queryObserver) *ScheduleRunRepository {
	return &ScheduleRunRepository{db: db, observer: observer}
}

func (r *ScheduleRunRepository) observe(label string, started time.Time) {
	if r.observer != nil {
		r.observer.ObserveDBQuery(label, time.Since(started))
	}
}

const scheduleRunSchema = `CREATE TABLE IF NOT EXISTS schedule_runs (
	id UUID PRIMARY KEY,
	job_id TEXT NOT NULL UNIQUE,
	sport TEXT NOT NULL,
	format TEXT NOT NULL,
	status TEXT NOT NULL,
	seed BIGINT NOT NULL,
	iterations INTEGER NOT NULL DEFAULT 0,
	hard_violations INTEGER NOT NULL DEFAULT 0,
	soft_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	fixtures JSONB NOT NULL DEFAULT '[]',
	error_message TEXT,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS schedule_runs_status_created_idx ON schedule_runs (status, created_at DESC)`

// EnsureSchema creates the runs table and its listing index when missing.
func (r *ScheduleRunRepository) EnsureSchema(ctx context.Context) error {
	defer r.observe("schedule_runs.schema", time.Now())
	if _, err := r.db.ExecContext(ctx, scheduleRunSchema); err != nil {
		return fmt.Errorf("ensure schedule_runs schema: %w", err)
	}
	return nil
}

// Create inserts a run row with generated defaults.
func (r *ScheduleRunRepository) Create(ctx context.Context, run *models.ScheduleRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.JobStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_runs (` + scheduleRunColumns + `)
VALUES (:id, :job_id, :sport, :format, :status, :seed, :iterations, :hard_violations, :soft_score, :fixtures, :error_message, :started_at, :completed_at, :created_at)`
	defer r.observe("schedule_runs.insert", time.Now())
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create schedule run: %w", err)
	}
	return nil
}

// Update stores the outcome fields of a run identified by its job id.
func (r *ScheduleRunRepository) Update(ctx context.Context, run *models.ScheduleRun) error {
	const query = `UPDATE schedule_runs SET status = $1, iterations = $2, hard_violations = $3, soft_score = $4, fixtures = $5, error_message = $6, started_at = $7, completed_at = $8 WHERE job_id = $9`
	defer r.observe("schedule_runs.update", time.Now())
	res, err := r.db.ExecContext(ctx, query, run.Status, run.Iterations, run.HardViolations, run.SoftScore,
		run.Fixtures, run.ErrorMessage, run.StartedAt, run.CompletedAt, run.JobID)
	if err != nil {
		return fmt.Errorf("update schedule run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule run rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
	}
	return nil
}

// FindByJobID returns the run recorded for a job.
func (r *ScheduleRunRepository) FindByJobID(ctx context.Context, jobID string) (*models.ScheduleRun, error) {
	const query = `SELECT ` + scheduleRunColumns + ` FROM schedule_runs WHERE job_id = $1`
	defer r.observe("schedule_runs.find", time.Now())
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return nil, fmt.Errorf("get schedule run: %w", err)
	}
	return &run, nil
}

// List returns runs newest first, without their fixture payloads, plus the total count.
func (r *ScheduleRunRepository) List(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Sport != "" {
		args = append(args, strings.ToLower(filter.Sport))
		conditions = append(conditions, fmt.Sprintf("sport = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	defer r.observe("schedule_runs.list", time.Now())
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM schedule_runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule runs: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT id, job_id, sport, format, status, seed, iterations, hard_violations, soft_score, '[]' AS fixtures, error_message, started_at, completed_at, created_at
FROM schedule_runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	runs := make([]models.ScheduleRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule runs: %w", err)
	}
	return runs, total, nil
}

// DeleteCompletedBefore removes finished runs older than cutoff.
func (r *ScheduleRunRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM schedule_runs WHERE completed_at IS NOT NULL AND completed_at < $1`
	defer r.observe("schedule_runs.delete", time.Now())
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete schedule runs: %w", err)
	}
	return res.RowsAffected()
}
