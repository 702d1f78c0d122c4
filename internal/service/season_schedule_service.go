package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/dto"
	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
	"github.com/noah-isme/season-scheduler/pkg/jobs"
	"github.com/noah-isme/season-scheduler/pkg/storage"
)

// SeasonJobType tags queued optimization jobs.
const SeasonJobType = "season_schedule"

type scheduleRunRepository interface {
	Create(ctx context.Context, run *models.ScheduleRun) error
	Update(ctx context.Context, run *models.ScheduleRun) error
	FindByJobID(ctx context.Context, jobID string) (*models.ScheduleRun, error)
	List(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, int, error)
}

// progressSnapshotReader exposes progress published by any instance.
type progressSnapshotReader interface {
	Latest(ctx context.Context, jobID string) (*models.ProgressEvent, error)
	Listen(ctx context.Context, jobID string) (<-chan models.ProgressEvent, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SeasonScheduleConfig tunes the service.
type SeasonScheduleConfig struct {
	RunTTL           time.Duration
	ProgressEvery    int
	SubscriberBuffer int
	Cooling          CoolingOptions
}

// SeasonScheduleService accepts season configurations, runs them as background optimization
// jobs and serves their progress, results and exports.
type SeasonScheduleService struct {
	builder   *SeasonConfigBuilder
	generator *MatchupGenerator
	optimizer *AnnealingOptimizer
	queue     jobEnqueuer
	runs      scheduleRunRepository
	snapshots progressSnapshotReader
	reporter  ProgressReporter
	metrics   *MetricsService
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SeasonScheduleConfig
	registry  *jobRegistry
	now       func() time.Time
}

// SeasonScheduleDeps groups the optional collaborators of the service.
type SeasonScheduleDeps struct {
	Queue     jobEnqueuer
	Runs      scheduleRunRepository
	Snapshots progressSnapshotReader
	Reporter  ProgressReporter
	Metrics   *MetricsService
	Exporter  *ExportService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewSeasonScheduleService wires the service. Only the builder and queue are required.
func NewSeasonScheduleService(builder *SeasonConfigBuilder, deps SeasonScheduleDeps, cfg SeasonScheduleConfig) *SeasonScheduleService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Exporter == nil {
		deps.Exporter = NewExportService(nil, nil, ExportConfig{}, deps.Logger, nil, nil)
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 24 * time.Hour
	}
	reporter := MultiProgressReporter{deps.Reporter}
	if deps.Metrics != nil {
		reporter = append(reporter, deps.Metrics)
	}
	now := func() time.Time { return time.Now().UTC() }
	return &SeasonScheduleService{
		builder:   builder,
		generator: NewMatchupGenerator(),
		optimizer: NewAnnealingOptimizer(deps.Logger),
		queue:     deps.Queue,
		runs:      deps.Runs,
		snapshots: deps.Snapshots,
		reporter:  reporter,
		metrics:   deps.Metrics,
		exporter:  deps.Exporter,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		registry:  newJobRegistry(cfg.RunTTL, now),
		now:       now,
	}
}

// AttachQueue sets the queue after construction, for queues whose handler is this service.
func (s *SeasonScheduleService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Submit validates req synchronously and enqueues an optimization job for it. Matchup
// generation failures surface later as a FAILED job.
func (s *SeasonScheduleService) Submit(ctx context.Context, req dto.SeasonScheduleRequest) (*dto.SeasonJobResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrQueueUnavailable, "optimization queue not configured")
	}
	cfg, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	s.registry.Prune()

	id := uuid.NewString()
	job := NewOptimizationJob(cfg, JobOptions{
		ID:               id,
		ConfigurationRef: configurationRef(cfg),
		Generator:        s.generator,
		Optimizer:        s.optimizer,
		Reporter:         s.reporter,
		Logger:           s.logger,
		ProgressEvery:    s.cfg.ProgressEvery,
		SubscriberBuffer: s.cfg.SubscriberBuffer,
		Cooling:          s.cfg.Cooling,
	})
	s.registry.Save(job)

	if s.runs != nil {
		run := &models.ScheduleRun{
			ID:         uuid.NewString(),
			JobID:      id,
			Sport:      cfg.Sport,
			Format:     string(cfg.Format),
			Status:     models.JobStatusPending,
			Seed:       cfg.Seed,
			Iterations: cfg.Iterations,
			CreatedAt:  s.now(),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Sugar().Warnw("failed to persist schedule run", "job_id", id, "error", err)
		}
	}

	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: SeasonJobType, Payload: id}); err != nil {
		s.registry.Delete(id)
		return nil, appErrors.Wrap(err, appErrors.ErrQueueUnavailable.Code, appErrors.ErrQueueUnavailable.Status, "failed to enqueue optimization job")
	}
	s.logger.Sugar().Infow("season job submitted", "job_id", id, "sport", cfg.Sport, "format", cfg.Format, "teams", len(cfg.Teams), "seed", cfg.Seed)
	return &dto.SeasonJobResponse{ID: id, Status: models.JobStatusPending}, nil
}

// HandleJob is the queue handler. It runs the job to completion and persists the outcome.
// It never returns an error: a deterministic job would only fail the same way on retry.
func (s *SeasonScheduleService) HandleJob(ctx context.Context, queued jobs.Job) error {
	id, _ := queued.Payload.(string)
	if id == "" {
		id = queued.ID
	}
	job, ok := s.registry.Get(id)
	if !ok {
		s.logger.Sugar().Warnw("queued season job no longer registered", "job_id", id)
		return nil
	}

	s.metrics.JobStarted()
	started := time.Now()
	_, err := job.Run(ctx)
	snapshot := job.Snapshot()
	s.metrics.JobFinished(snapshot.Status, time.Since(started), snapshot.Iteration)

	var unsatisfied *ConstraintsUnsatisfiedError
	if err != nil && !errors.As(err, &unsatisfied) {
		s.logger.Sugar().Warnw("season job ended with error", "job_id", id, "status", snapshot.Status, "error", err)
	}
	s.persist(context.WithoutCancel(ctx), snapshot)
	return nil
}

func (s *SeasonScheduleService) persist(ctx context.Context, snapshot models.OptimizationJob) {
	if s.runs == nil {
		return
	}
	run, err := s.runs.FindByJobID(ctx, snapshot.ID)
	if err != nil {
		s.logger.Sugar().Warnw("schedule run missing, recreating", "job_id", snapshot.ID, "error", err)
		run = &models.ScheduleRun{ID: uuid.NewString(), JobID: snapshot.ID, CreatedAt: s.now()}
		if job, ok := s.registry.Get(snapshot.ID); ok {
			cfg := job.Configuration()
			run.Sport, run.Format, run.Seed = cfg.Sport, string(cfg.Format), cfg.Seed
		}
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Sugar().Errorw("failed to persist schedule run", "job_id", snapshot.ID, "error", err)
			return
		}
	}
	run.Status = snapshot.Status
	run.Iterations = snapshot.Iteration
	run.HardViolations = snapshot.HardViolations
	run.SoftScore = snapshot.Score
	run.StartedAt = snapshot.StartedAt
	run.CompletedAt = snapshot.CompletedAt
	run.Fixtures = nil
	if snapshot.Best != nil {
		run.Fixtures = models.ScheduleFixtures(snapshot.Best.Matchups)
	}
	run.ErrorMessage = nil
	if msg := firstNonEmpty(snapshot.Error, snapshot.Warning); msg != "" {
		run.ErrorMessage = &msg
	}
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Sugar().Errorw("failed to update schedule run", "job_id", snapshot.ID, "error", err)
	}
}

// Status reports the live job state, falling back to the persisted run and then to the last
// progress snapshot published by another instance.
func (s *SeasonScheduleService) Status(ctx context.Context, id string) (*dto.SeasonJobStatusResponse, error) {
	if job, ok := s.registry.Get(id); ok {
		return statusFromSnapshot(job.Snapshot()), nil
	}
	if s.runs != nil {
		if run, err := s.runs.FindByJobID(ctx, id); err == nil && run != nil {
			return statusFromRun(run), nil
		} else if err != nil && !errors.Is(err, appErrors.ErrNotFound) {
			return nil, err
		}
	}
	if s.snapshots != nil {
		started := time.Now()
		event, err := s.snapshots.Latest(ctx, id)
		s.metrics.RecordCacheOperation(err == nil && event != nil, time.Since(started))
		if err == nil && event != nil {
			return statusFromEvent(event), nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("season job %s not found", id))
}

// List returns the jobs known to this instance, newest first.
func (s *SeasonScheduleService) List() []dto.SeasonJobStatusResponse {
	entries := s.registry.List()
	out := make([]dto.SeasonJobStatusResponse, 0, len(entries))
	for _, job := range entries {
		out = append(out, *statusFromSnapshot(job.Snapshot()))
	}
	return out
}

// Result returns the best schedule of a finished job.
func (s *SeasonScheduleService) Result(ctx context.Context, id string) (*dto.SeasonScheduleResult, error) {
	if job, ok := s.registry.Get(id); ok {
		schedule, err := job.Result()
		var unsatisfied *ConstraintsUnsatisfiedError
		if err != nil && !errors.As(err, &unsatisfied) {
			return nil, err
		}
		snapshot := job.Snapshot()
		result := &dto.SeasonScheduleResult{
			JobID:          id,
			Status:         snapshot.Status,
			Schedule:       schedule,
			Score:          snapshot.Score,
			HardViolations: snapshot.HardViolations,
			Iterations:     snapshot.Iteration,
			Warning:        snapshot.Warning,
		}
		if schedule != nil {
			evaluation := EvaluateSchedule(job.Configuration(), schedule)
			result.Breakdown = evaluation.Breakdown
			for _, v := range evaluation.Violations {
				result.Violations = append(result.Violations, v.String())
			}
		}
		return result, nil
	}
	if s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("season job %s not found", id))
	}
	run, err := s.runs.FindByJobID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrJobNotFinished, fmt.Sprintf("job %s is %s", id, run.Status))
	}
	if run.Status == models.JobStatusFailed {
		return nil, appErrors.Clone(appErrors.ErrJob, deref(run.ErrorMessage))
	}
	return &dto.SeasonScheduleResult{
		JobID:          id,
		Status:         run.Status,
		Schedule:       scheduleFromRun(run),
		Score:          run.SoftScore,
		HardViolations: run.HardViolations,
		Iterations:     run.Iterations,
		Warning:        deref(run.ErrorMessage),
	}, nil
}

// Command applies a monitor command to a live job.
func (s *SeasonScheduleService) Command(ctx context.Context, id string, req dto.SeasonJobCommandRequest) (*dto.SeasonJobStatusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	job, ok := s.registry.Get(id)
	if !ok {
		if status, err := s.Status(ctx, id); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("job %s is %s and not controllable here", id, status.Status))
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("season job %s not found", id))
	}
	if err := job.Handle(models.JobCommand{Type: models.JobCommandType(req.Type), Parameters: req.Parameters}); err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("season job command applied", "job_id", id, "command", req.Type)
	return statusFromSnapshot(job.Snapshot()), nil
}

// Subscribe attaches to a job's progress stream. Jobs running on another instance are
// followed through the shared progress channel.
func (s *SeasonScheduleService) Subscribe(ctx context.Context, id string) (<-chan models.ProgressEvent, func(), error) {
	if job, ok := s.registry.Get(id); ok {
		events, unsubscribe := job.Subscribe()
		return events, unsubscribe, nil
	}
	if s.snapshots != nil {
		if _, err := s.snapshots.Latest(ctx, id); err == nil {
			ctx, cancel := context.WithCancel(ctx)
			events, err := s.snapshots.Listen(ctx, id)
			if err == nil {
				return events, cancel, nil
			}
			cancel()
			s.logger.Sugar().Warnw("failed to follow remote season job", "job_id", id, "error", err)
		}
	}
	return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("season job %s not found", id))
}

// History lists persisted runs, newest first.
func (s *SeasonScheduleService) History(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}
	if s.runs == nil {
		return []models.ScheduleRun{}, pagination, nil
	}
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule runs")
	}
	pagination.TotalCount = total
	return runs, pagination, nil
}

// Export renders the finished schedule inline.
func (s *SeasonScheduleService) Export(ctx context.Context, id string, format models.ExportFormat) ([]byte, error) {
	schedule, err := s.finishedSchedule(ctx, id, format)
	if err != nil {
		return nil, err
	}
	return s.exporter.Render(schedule, format)
}

// PublishExport stores the rendered schedule and returns a signed download link.
func (s *SeasonScheduleService) PublishExport(ctx context.Context, id string, format models.ExportFormat) (*ExportResult, error) {
	schedule, err := s.finishedSchedule(ctx, id, format)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Generate(id, schedule, format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	return result, nil
}

// OpenExport resolves a signed token to the stored file and its download name.
func (s *SeasonScheduleService) OpenExport(token string) (*os.File, string, error) {
	_, relPath, _, err := s.exporter.ParseToken(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrExportExpired, "")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return file, filepath.Base(relPath), nil
}

// CleanupExports removes stored exports older than the configured TTL.
func (s *SeasonScheduleService) CleanupExports() ([]string, error) {
	return s.exporter.Cleanup(0)
}

// Sweep evicts expired jobs from the registry and deletes stale exports.
func (s *SeasonScheduleService) Sweep() {
	pruned := s.registry.Prune()
	removed, err := s.CleanupExports()
	if err != nil {
		s.logger.Sugar().Warnw("export cleanup failed", "error", err)
	}
	if pruned > 0 || len(removed) > 0 {
		s.logger.Sugar().Infow("season sweep", "jobs_evicted", pruned, "exports_removed", len(removed))
	}
}

// CancelAll aborts every job that has not finished, keeping their best schedules. It is
// used on shutdown so queued and running jobs end CANCELLED instead of vanishing.
func (s *SeasonScheduleService) CancelAll(ctx context.Context) int {
	cancelled := 0
	for _, job := range s.registry.List() {
		status := job.Snapshot().Status
		if status.Terminal() {
			continue
		}
		job.Cancel()
		cancelled++
		if status == models.JobStatusPending {
			// never reaches a worker once the queue stops
			s.persist(ctx, job.Snapshot())
		}
	}
	return cancelled
}

func (s *SeasonScheduleService) finishedSchedule(ctx context.Context, id string, format models.ExportFormat) (*models.Schedule, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	result, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.Schedule == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("job %s has no schedule", id))
	}
	return result.Schedule, nil
}

func configurationRef(cfg *models.SeasonConfiguration) string {
	return fmt.Sprintf("%s/%s/%d-teams/%s/seed-%d", cfg.Sport, cfg.Format, len(cfg.Teams), cfg.SeasonStart.Format(dateLayout), cfg.Seed)
}

func statusFromSnapshot(snapshot models.OptimizationJob) *dto.SeasonJobStatusResponse {
	progress := percent(snapshot.Iteration, snapshot.Iterations)
	if snapshot.Status == models.JobStatusCompleted {
		progress = 100
	}
	resp := &dto.SeasonJobStatusResponse{
		ID:               snapshot.ID,
		ConfigurationRef: snapshot.ConfigurationRef,
		Status:           snapshot.Status,
		Stage:            snapshot.Stage,
		Iteration:        snapshot.Iteration,
		Iterations:       snapshot.Iterations,
		Score:            snapshot.Score,
		HardViolations:   snapshot.HardViolations,
		Progress:         progress,
		Error:            snapshot.Error,
		Warning:          snapshot.Warning,
		StartedAt:        snapshot.StartedAt,
		CompletedAt:      snapshot.CompletedAt,
	}
	if snapshot.Best != nil {
		resp.Metrics = snapshot.Best.Metrics.Breakdown.Map()
	}
	return resp
}

func statusFromRun(run *models.ScheduleRun) *dto.SeasonJobStatusResponse {
	resp := &dto.SeasonJobStatusResponse{
		ID:             run.JobID,
		Status:         run.Status,
		Iteration:      run.Iterations,
		Score:          run.SoftScore,
		HardViolations: run.HardViolations,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}
	switch run.Status {
	case models.JobStatusCompleted:
		resp.Stage, resp.Progress = models.StageCompleted, 100
	case models.JobStatusFailed:
		resp.Stage, resp.Error = models.StageFailed, deref(run.ErrorMessage)
	case models.JobStatusCancelled:
		resp.Stage, resp.Warning = models.StageCancelled, deref(run.ErrorMessage)
	}
	return resp
}

func statusFromEvent(event *models.ProgressEvent) *dto.SeasonJobStatusResponse {
	resp := &dto.SeasonJobStatusResponse{
		ID:       event.JobID,
		Stage:    event.Stage,
		Progress: event.Progress,
		Metrics:  event.Metrics,
		Status:   models.JobStatusRunning,
	}
	switch event.Stage {
	case models.StageValidating, models.StageGenerating:
		resp.Status = models.JobStatusPending
	case models.StagePaused:
		resp.Status = models.JobStatusPaused
	case models.StageCompleted:
		resp.Status = models.JobStatusCompleted
	case models.StageFailed:
		resp.Status = models.JobStatusFailed
	case models.StageCancelled:
		resp.Status = models.JobStatusCancelled
	}
	if v, ok := event.Metrics["iteration"]; ok {
		resp.Iteration = int(v)
	}
	if v, ok := event.Metrics["softScore"]; ok {
		resp.Score = v
	}
	if v, ok := event.Metrics["hardViolations"]; ok {
		resp.HardViolations = int(v)
	}
	return resp
}

func scheduleFromRun(run *models.ScheduleRun) *models.Schedule {
	schedule := &models.Schedule{
		Sport:    run.Sport,
		Format:   models.CompetitionFormat(run.Format),
		Matchups: append([]models.Matchup(nil), run.Fixtures...),
		Metrics: models.ScheduleMetrics{
			HardViolations: run.HardViolations,
			SoftScore:      run.SoftScore,
			Iterations:     run.Iterations,
			Seed:           run.Seed,
		},
	}
	if n := len(schedule.Matchups); n > 0 {
		schedule.SeasonStart = models.DateOnly(schedule.Matchups[0].Date)
		schedule.SeasonEnd = models.DateOnly(schedule.Matchups[n-1].Date)
	}
	return schedule
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// jobRegistry keeps jobs in memory. Finished jobs expire ttl after completion.
type jobRegistry struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]registeredJob
}

type registeredJob struct {
	job         *OptimizationJob
	submittedAt time.Time
}

func newJobRegistry(ttl time.Duration, now func() time.Time) *jobRegistry {
	return &jobRegistry{
		ttl:   ttl,
		now:   now,
		items: make(map[string]registeredJob),
	}
}

func (r *jobRegistry) Save(job *OptimizationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[job.ID()] = registeredJob{job: job, submittedAt: r.now()}
}

func (r *jobRegistry) Get(id string) (*OptimizationJob, bool) {
	r.mu.RLock()
	entry, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.expired(entry) {
		r.Delete(id)
		return nil, false
	}
	return entry.job, true
}

func (r *jobRegistry) Delete(id string) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// List returns live entries, newest submission first.
func (r *jobRegistry) List() []*OptimizationJob {
	r.mu.RLock()
	entries := make([]registeredJob, 0, len(r.items))
	for _, entry := range r.items {
		if !r.expired(entry) {
			entries = append(entries, entry)
		}
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].submittedAt.Equal(entries[j].submittedAt) {
			return entries[i].submittedAt.After(entries[j].submittedAt)
		}
		return entries[i].job.ID() < entries[j].job.ID()
	})
	out := make([]*OptimizationJob, len(entries))
	for i, entry := range entries {
		out[i] = entry.job
	}
	return out
}

// Prune drops expired entries and returns how many were removed.
func (r *jobRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.items {
		if r.expired(entry) {
			delete(r.items, id)
			removed++
		}
	}
	return removed
}

func (r *jobRegistry) expired(entry registeredJob) bool {
	completed := entry.job.Snapshot().CompletedAt
	return completed != nil && r.now().Sub(*completed) > r.ttl
}
