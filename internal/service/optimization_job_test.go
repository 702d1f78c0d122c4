package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

type recordingReporter struct {
	mu      sync.Mutex
	events  []models.ProgressEvent
	onEvent func(models.ProgressEvent)
}

func (r *recordingReporter) Report(_ context.Context, event models.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	hook := r.onEvent
	r.mu.Unlock()
	if hook != nil {
		hook(event)
	}
}

func (r *recordingReporter) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

func (r *recordingReporter) last() models.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestJob(cfg *models.SeasonConfiguration, reporter ProgressReporter) *OptimizationJob {
	return NewOptimizationJob(cfg, JobOptions{ID: "job-1", Reporter: reporter, ProgressEvery: 10})
}

func TestOptimizationJobCompletes(t *testing.T) {
	cfg := testSeason(4, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 200
	reporter := &recordingReporter{}
	job := newTestJob(cfg, reporter)
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	schedule, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, schedule)

	snapshot := job.Snapshot()
	assert.Equal(t, models.JobStatusCompleted, snapshot.Status)
	assert.Equal(t, models.StageCompleted, snapshot.Stage)
	assert.NotNil(t, snapshot.StartedAt)
	assert.NotNil(t, snapshot.CompletedAt)
	assert.Equal(t, 0, snapshot.HardViolations)
	assert.Empty(t, snapshot.Warning)

	final := reporter.last()
	assert.Equal(t, models.StageCompleted, final.Stage)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "job-1", final.JobID)
	assert.Contains(t, reporter.stages(), models.StageOptimizing)

	received := 0
	for range events {
		received++
	}
	assert.Positive(t, received, "subscriber channel drains and closes")

	select {
	case <-job.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestOptimizationJobRunsImpliedFormatWithoutGamesPerTeam(t *testing.T) {
	cfg := testSeason(4, models.FormatDoubleRoundRobin, 0)
	cfg.GamesPerTeam = 0
	cfg.Iterations = 200
	job := newTestJob(cfg, nil)

	schedule, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, schedule)
	assert.Len(t, schedule.Matchups, 12)
	assert.Equal(t, models.JobStatusCompleted, job.Snapshot().Status)
}

func TestOptimizationJobValidationFailureNeverRuns(t *testing.T) {
	cfg := testSeason(1, models.FormatSingleRoundRobin, 0)
	reporter := &recordingReporter{}
	job := newTestJob(cfg, reporter)

	schedule, err := job.Run(context.Background())
	assert.Nil(t, schedule)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	snapshot := job.Snapshot()
	assert.Equal(t, models.JobStatusFailed, snapshot.Status)
	assert.Nil(t, snapshot.StartedAt)
	assert.NotEmpty(t, snapshot.Error)
	assert.NotContains(t, reporter.stages(), models.StageOptimizing)
}

func TestOptimizationJobGenerationFailure(t *testing.T) {
	cfg := testSeason(4, models.FormatPartialRoundRobin, 7)
	job := newTestJob(cfg, nil)

	_, err := job.Run(context.Background())
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, models.JobStatusFailed, job.Snapshot().Status)
	assert.Nil(t, job.Snapshot().StartedAt)
}

func TestOptimizationJobCompletesWithWarningWhenUnsatisfied(t *testing.T) {
	cfg := testSeason(4, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 100
	cfg.Constraints = []models.Constraint{
		models.NoPlayDateRange{TeamID: "t01", Start: cfg.SeasonStart, End: cfg.SeasonEnd},
	}
	job := newTestJob(cfg, nil)

	schedule, err := job.Run(context.Background())
	var unsatisfied *ConstraintsUnsatisfiedError
	require.True(t, errors.As(err, &unsatisfied))
	require.NotNil(t, schedule)
	assert.False(t, schedule.Valid())

	snapshot := job.Snapshot()
	assert.Equal(t, models.JobStatusCompleted, snapshot.Status)
	assert.Contains(t, snapshot.Warning, "constraints unsatisfied")
	assert.Equal(t, 3, snapshot.HardViolations)
}

func TestOptimizationJobPauseAndResume(t *testing.T) {
	cfg := testSeason(6, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 400
	var job *OptimizationJob
	var once sync.Once
	paused := make(chan struct{})
	reporter := &recordingReporter{onEvent: func(e models.ProgressEvent) {
		if e.Stage == models.StageOptimizing && e.Progress > 0 {
			once.Do(func() {
				assert.NoError(t, job.Pause())
				close(paused)
			})
		}
	}}
	job = newTestJob(cfg, reporter)

	go func() { _, _ = job.Run(context.Background()) }()
	select {
	case <-paused:
	case <-job.Done():
		t.Fatalf("job finished before it could be paused: %s", job.Snapshot().Error)
	case <-time.After(5 * time.Second):
		t.Fatal("job never reported optimizing progress")
	}

	assert.Equal(t, models.JobStatusPaused, job.Snapshot().Status)
	require.NoError(t, job.Pause(), "pause is idempotent")
	frozen := job.Snapshot().Iteration
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, job.Snapshot().Iteration)

	require.NoError(t, job.Resume())
	require.NoError(t, job.Resume(), "resume is idempotent")

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish after resume")
	}
	assert.Equal(t, models.JobStatusCompleted, job.Snapshot().Status)
	assert.Contains(t, reporter.stages(), models.StagePaused)
}

func TestOptimizationJobAbortKeepsBestSchedule(t *testing.T) {
	cfg := testSeason(6, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 1000
	var job *OptimizationJob
	reporter := &recordingReporter{onEvent: func(e models.ProgressEvent) {
		if e.Stage == models.StageOptimizing && e.Progress > 0 {
			job.Cancel()
		}
	}}
	job = newTestJob(cfg, reporter)

	schedule, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, schedule)

	snapshot := job.Snapshot()
	assert.Equal(t, models.JobStatusCancelled, snapshot.Status)
	assert.Less(t, snapshot.Iteration, 1000)
	assert.NotNil(t, snapshot.Best)
	assert.Equal(t, models.StageCancelled, reporter.last().Stage)

	job.Cancel()
	require.NoError(t, job.Handle(models.JobCommand{Type: models.JobCommandAbort}), "abort is idempotent")
}

func TestOptimizationJobAbortBeforeStart(t *testing.T) {
	job := newTestJob(testSeason(4, models.FormatSingleRoundRobin, 0), nil)
	job.Cancel()

	assert.Equal(t, models.JobStatusCancelled, job.Snapshot().Status)
	<-job.Done()

	schedule, err := job.Run(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, schedule)

	events, _ := job.Subscribe()
	final, ok := <-events
	require.True(t, ok)
	assert.Equal(t, models.StageCancelled, final.Stage)
	_, ok = <-events
	assert.False(t, ok)
}

func TestOptimizationJobTimeout(t *testing.T) {
	cfg := testSeason(6, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 1_000_000
	cfg.Timeout = time.Nanosecond
	job := newTestJob(cfg, nil)

	schedule, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, schedule)
	snapshot := job.Snapshot()
	assert.Equal(t, models.JobStatusCancelled, snapshot.Status)
	assert.Contains(t, snapshot.Warning, "timed out")
}

func TestOptimizationJobRecoversFromPanics(t *testing.T) {
	cfg := testSeason(4, models.FormatSingleRoundRobin, 0)
	reporter := ProgressReporterFunc(func(_ context.Context, e models.ProgressEvent) {
		if e.Stage == models.StageOptimizing {
			panic("reporter exploded")
		}
	})
	job := newTestJob(cfg, reporter)

	_, err := job.Run(context.Background())
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, "job-1", jobErr.JobID)
	assert.Equal(t, models.StageOptimizing, jobErr.Stage)
	assert.Equal(t, models.JobStatusFailed, job.Snapshot().Status)
}

func TestOptimizationJobAdjustParameters(t *testing.T) {
	cfg := testSeason(6, models.FormatSingleRoundRobin, 0)
	cfg.Iterations = 5000
	var job *OptimizationJob
	var once sync.Once
	reporter := &recordingReporter{onEvent: func(e models.ProgressEvent) {
		if e.Stage == models.StageOptimizing && e.Progress > 0 {
			once.Do(func() {
				iterations := 50
				assert.NoError(t, job.Handle(models.JobCommand{
					Type:       models.JobCommandAdjustParameters,
					Parameters: models.JobParameters{Iterations: &iterations},
				}))
			})
		}
	}}
	job = newTestJob(cfg, reporter)

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	snapshot := job.Snapshot()
	assert.Equal(t, 50, snapshot.Iteration)
	assert.Equal(t, 50, snapshot.Iterations)
}

func TestOptimizationJobCommandErrors(t *testing.T) {
	job := newTestJob(testSeason(4, models.FormatSingleRoundRobin, 0), nil)

	err := job.Pause()
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	err = job.Handle(models.JobCommand{Type: "rewind"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	negative := -5
	err = job.AdjustParameters(models.JobParameters{ProgressEvery: &negative})
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("parameters.progressEvery"))

	_, err = job.Result()
	assert.ErrorIs(t, err, appErrors.ErrJobNotFinished)
}
