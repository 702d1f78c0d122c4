package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

const defaultSubscriberBuffer = 16

var errJobAborted = errors.New("job aborted")

// JobOptions wires an OptimizationJob. Nil collaborators fall back to defaults.
type JobOptions struct {
	ID               string
	ConfigurationRef string
	Generator        *MatchupGenerator
	Optimizer        *AnnealingOptimizer
	Reporter         ProgressReporter
	Logger           *zap.Logger
	Clock            func() time.Time
	ProgressEvery    int
	SubscriberBuffer int
	Cooling          CoolingOptions
}

// OptimizationJob drives one configuration through validation, generation and search, and
// accepts monitor commands while it runs. All methods are safe for concurrent use.
type OptimizationJob struct {
	id        string
	cfg       *models.SeasonConfiguration
	generator *MatchupGenerator
	optimizer *AnnealingOptimizer
	reporter  ProgressReporter
	logger    *zap.Logger
	now       func() time.Time
	subBuffer int
	cooling   CoolingOptions

	mu            sync.RWMutex
	state         models.OptimizationJob
	err           error
	iterations    int
	progressEvery int
	started       bool
	paused        bool
	resume        chan struct{}
	cancel        context.CancelFunc
	aborted       bool
	lastEvent     *models.ProgressEvent

	subMu       sync.Mutex
	subscribers map[int]chan models.ProgressEvent
	nextSub     int
	closed      bool

	done chan struct{}
}

// NewOptimizationJob creates a PENDING job for cfg.
func NewOptimizationJob(cfg *models.SeasonConfiguration, opts JobOptions) *OptimizationJob {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Generator == nil {
		opts.Generator = NewMatchupGenerator()
	}
	if opts.Optimizer == nil {
		opts.Optimizer = NewAnnealingOptimizer(opts.Logger)
	}
	if opts.Reporter == nil {
		opts.Reporter = MultiProgressReporter(nil)
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	iterations := 0
	if cfg != nil {
		iterations = cfg.Iterations
	}
	return &OptimizationJob{
		id:            opts.ID,
		cfg:           cfg,
		generator:     opts.Generator,
		optimizer:     opts.Optimizer,
		reporter:      opts.Reporter,
		logger:        opts.Logger.With(zap.String("job_id", opts.ID)),
		now:           opts.Clock,
		subBuffer:     opts.SubscriberBuffer,
		cooling:       opts.Cooling,
		iterations:    iterations,
		progressEvery: opts.ProgressEvery,
		subscribers:   make(map[int]chan models.ProgressEvent),
		done:          make(chan struct{}),
		state: models.OptimizationJob{
			ID:               opts.ID,
			ConfigurationRef: opts.ConfigurationRef,
			Status:           models.JobStatusPending,
			Iterations:       iterations,
		},
	}
}

// ID returns the job identifier.
func (j *OptimizationJob) ID() string { return j.id }

// Configuration returns the configuration the job optimises.
func (j *OptimizationJob) Configuration() *models.SeasonConfiguration { return j.cfg }

// Done is closed once the job reaches a terminal status.
func (j *OptimizationJob) Done() <-chan struct{} { return j.done }

// Run executes the job on the calling goroutine and returns the best schedule. Validation
// and generation failures end in FAILED without entering RUNNING. Abort or timeout end in
// CANCELLED with the best schedule found so far. Residual hard violations complete the
// job with a warning and a *ConstraintsUnsatisfiedError.
func (j *OptimizationJob) Run(ctx context.Context) (*models.Schedule, error) {
	j.mu.Lock()
	if j.started || j.state.Status != models.JobStatusPending {
		status := j.state.Status
		j.mu.Unlock()
		if status.Terminal() {
			return j.Result()
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("job %s already %s", j.id, status))
	}
	j.started = true
	j.mu.Unlock()

	var (
		result *SearchResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = &JobError{JobID: j.id, Stage: j.stage(), Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err = j.execute(ctx)
	}()
	j.finish(result, err)
	return j.Result()
}

func (j *OptimizationJob) execute(ctx context.Context) (*SearchResult, error) {
	j.setStage(models.StageValidating)
	if report := ValidateSeasonConfiguration(j.cfg); !report.Valid {
		verr := &ValidationError{}
		for _, msg := range report.Errors {
			verr.add("configuration", msg)
		}
		return nil, verr
	}

	j.setStage(models.StageGenerating)
	universe, err := j.generator.Generate(j.cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if j.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
	}
	defer cancel()

	j.mu.Lock()
	if j.aborted {
		j.mu.Unlock()
		return nil, errJobAborted
	}
	started := j.now()
	j.cancel = cancel
	j.state.Status = models.JobStatusRunning
	j.state.Stage = models.StageOptimizing
	j.state.StartedAt = &started
	j.mu.Unlock()

	j.logger.Info("season job running", zap.Int("matchups", len(universe.Matchups)), zap.Int("iterations", j.cfg.Iterations))
	j.emit(ctx, models.StageOptimizing, 0, map[string]float64{"matchups": float64(len(universe.Matchups))})

	return j.optimizer.Optimize(runCtx, j.cfg, universe, SearchOptions{
		Iterations:         j.cfg.Iterations,
		ProgressEvery:      j.progressEvery,
		Patience:           j.cooling.Patience,
		InitialTemperature: j.cooling.InitialTemperature,
		FinalTemperature:   j.cooling.FinalTemperature,
		Checkpoint:         j.checkpoint,
		Progress:           func(p SearchProgress) { j.onProgress(ctx, p) },
		Limits:             j.limits,
	})
}

func (j *OptimizationJob) finish(result *SearchResult, err error) {
	var (
		unsatisfied *ConstraintsUnsatisfiedError
		status      models.JobStatus
		stage       string
	)
	j.mu.Lock()
	aborted := j.aborted
	switch {
	case err == nil:
		status, stage = models.JobStatusCompleted, models.StageCompleted
	case errors.As(err, &unsatisfied):
		status, stage = models.JobStatusCompleted, models.StageCompleted
		j.state.Warning = err.Error()
	case aborted || errors.Is(err, errJobAborted) || errors.Is(err, context.Canceled):
		status, stage = models.JobStatusCancelled, models.StageCancelled
		j.state.Warning = "job aborted; best schedule so far retained"
	case errors.Is(err, context.DeadlineExceeded):
		status, stage = models.JobStatusCancelled, models.StageCancelled
		j.state.Warning = fmt.Sprintf("job timed out after %s; best schedule so far retained", j.cfg.Timeout)
	default:
		status, stage = models.JobStatusFailed, models.StageFailed
		j.state.Error = err.Error()
	}
	j.err = nil
	if unsatisfied != nil || status == models.JobStatusFailed {
		j.err = err
	}
	if result != nil && result.Schedule != nil {
		j.state.Best = result.Schedule
		j.state.Score = result.Evaluation.SoftScore
		j.state.HardViolations = result.Evaluation.HardViolations
		j.state.Iteration = result.Iterations
	}
	completed := j.now()
	j.state.Status = status
	j.state.Stage = stage
	j.state.CompletedAt = &completed
	j.paused = false
	if j.resume != nil {
		close(j.resume)
		j.resume = nil
	}
	snapshot := j.state
	j.mu.Unlock()

	metrics := map[string]float64{
		"iteration":      float64(snapshot.Iteration),
		"softScore":      snapshot.Score,
		"hardViolations": float64(snapshot.HardViolations),
	}
	if snapshot.Best != nil {
		for k, v := range snapshot.Best.Metrics.Breakdown.Map() {
			metrics[k] = v
		}
	}
	progress := 100
	if status != models.JobStatusCompleted {
		progress = percent(snapshot.Iteration, snapshot.Iterations)
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("iterations", snapshot.Iteration),
		zap.Int("hard_violations", snapshot.HardViolations),
		zap.Float64("soft_score", snapshot.Score),
	}
	if status == models.JobStatusFailed {
		j.logger.Error("season job failed", append(fields, zap.Error(err))...)
	} else {
		j.logger.Info("season job finished", fields...)
	}

	j.emit(context.Background(), stage, progress, metrics)
	j.closeSubscribers()
	close(j.done)
}

func percent(iteration, iterations int) int {
	if iterations <= 0 {
		return 0
	}
	p := iteration * 100 / iterations
	if p > 100 {
		return 100
	}
	return p
}

func (j *OptimizationJob) setStage(stage string) {
	j.mu.Lock()
	j.state.Stage = stage
	j.mu.Unlock()
}

func (j *OptimizationJob) stage() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.Stage
}

// checkpoint blocks while the job is paused. Pause is cooperative, so it takes effect at
// the top of the next iteration.
func (j *OptimizationJob) checkpoint(ctx context.Context) error {
	j.mu.RLock()
	paused, resume, aborted := j.paused, j.resume, j.aborted
	j.mu.RUnlock()
	if aborted {
		return errJobAborted
	}
	if !paused || resume == nil {
		return nil
	}
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *OptimizationJob) limits() SearchLimits {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return SearchLimits{Iterations: j.iterations, ProgressEvery: j.progressEvery}
}

func (j *OptimizationJob) onProgress(ctx context.Context, p SearchProgress) {
	j.mu.Lock()
	j.state.Iteration = p.Iteration
	j.state.Iterations = p.Iterations
	j.state.Score = p.Best.SoftScore
	j.state.HardViolations = p.Best.HardViolations
	j.mu.Unlock()

	metrics := p.Best.Breakdown.Map()
	metrics["iteration"] = float64(p.Iteration)
	metrics["temperature"] = p.Temperature
	metrics["accepted"] = float64(p.Accepted)
	metrics["softScore"] = p.Best.SoftScore
	metrics["hardViolations"] = float64(p.Best.HardViolations)
	metrics["currentSoftScore"] = p.Current.SoftScore
	j.emit(ctx, models.StageOptimizing, percent(p.Iteration, p.Iterations), metrics)
}

func (j *OptimizationJob) emit(ctx context.Context, stage string, progress int, metrics map[string]float64) {
	event := models.ProgressEvent{
		JobID:     j.id,
		Progress:  progress,
		Stage:     stage,
		Metrics:   metrics,
		Timestamp: j.now(),
	}
	j.mu.Lock()
	j.lastEvent = &event
	j.mu.Unlock()

	j.reporter.Report(ctx, event)

	j.subMu.Lock()
	defer j.subMu.Unlock()
	for _, ch := range j.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of progress events and a function that unsubscribes. Slow
// subscribers miss events rather than stalling the search. The channel is closed when the
// job finishes; subscribing to a finished job yields its final event.
func (j *OptimizationJob) Subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, j.subBuffer)
	j.subMu.Lock()
	defer j.subMu.Unlock()
	if j.closed {
		j.mu.RLock()
		last := j.lastEvent
		j.mu.RUnlock()
		if last != nil {
			ch <- *last
		}
		close(ch)
		return ch, func() {}
	}
	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = ch
	return ch, func() {
		j.subMu.Lock()
		defer j.subMu.Unlock()
		if sub, ok := j.subscribers[id]; ok {
			delete(j.subscribers, id)
			close(sub)
		}
	}
}

func (j *OptimizationJob) closeSubscribers() {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for id, ch := range j.subscribers {
		delete(j.subscribers, id)
		close(ch)
	}
	j.closed = true
}

// Pause suspends a running job at its next checkpoint. Pausing a paused job is a no-op.
func (j *OptimizationJob) Pause() error {
	j.mu.Lock()
	switch j.state.Status {
	case models.JobStatusPaused:
		j.mu.Unlock()
		return nil
	case models.JobStatusRunning:
	default:
		status := j.state.Status
		j.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot pause job in status %s", status))
	}
	j.paused = true
	j.resume = make(chan struct{})
	j.state.Status = models.JobStatusPaused
	j.state.Stage = models.StagePaused
	progress := percent(j.state.Iteration, j.state.Iterations)
	j.mu.Unlock()

	j.logger.Info("season job paused")
	j.emit(context.Background(), models.StagePaused, progress, nil)
	return nil
}

// Resume continues a paused job. Resuming a running job is a no-op.
func (j *OptimizationJob) Resume() error {
	j.mu.Lock()
	switch j.state.Status {
	case models.JobStatusRunning:
		j.mu.Unlock()
		return nil
	case models.JobStatusPaused:
	default:
		status := j.state.Status
		j.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot resume job in status %s", status))
	}
	j.paused = false
	if j.resume != nil {
		close(j.resume)
		j.resume = nil
	}
	j.state.Status = models.JobStatusRunning
	j.state.Stage = models.StageOptimizing
	progress := percent(j.state.Iteration, j.state.Iterations)
	j.mu.Unlock()

	j.logger.Info("season job resumed")
	j.emit(context.Background(), models.StageOptimizing, progress, nil)
	return nil
}

// Cancel aborts the job. A running or paused job stops at its next checkpoint and keeps its
// best schedule. Cancelling a finished job is a no-op.
func (j *OptimizationJob) Cancel() {
	j.mu.Lock()
	if j.state.Status.Terminal() || j.aborted {
		j.mu.Unlock()
		return
	}
	j.aborted = true
	cancel := j.cancel
	if j.resume != nil {
		close(j.resume)
		j.resume = nil
	}
	j.paused = false
	pending := !j.started
	if pending {
		j.state.Status = models.JobStatusCancelled
		j.state.Stage = models.StageCancelled
		j.state.Warning = "job aborted before it started"
		completed := j.now()
		j.state.CompletedAt = &completed
	}
	j.mu.Unlock()

	j.logger.Info("season job abort requested")
	if cancel != nil {
		cancel()
	}
	if pending {
		j.emit(context.Background(), models.StageCancelled, 0, nil)
		j.closeSubscribers()
		close(j.done)
	}
}

// AdjustParameters changes the iteration budget or progress cadence of a live job.
func (j *OptimizationJob) AdjustParameters(params models.JobParameters) error {
	verr := &ValidationError{}
	if params.Iterations != nil && *params.Iterations <= 0 {
		verr.add("parameters.iterations", "must be positive")
	}
	if params.ProgressEvery != nil && *params.ProgressEvery <= 0 {
		verr.add("parameters.progressEvery", "must be positive")
	}
	if params.Iterations == nil && params.ProgressEvery == nil {
		verr.add("parameters", "at least one of iterations or progressEvery is required")
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status.Terminal() {
		return nil
	}
	if params.Iterations != nil {
		j.iterations = *params.Iterations
		j.state.Iterations = j.iterations
	}
	if params.ProgressEvery != nil {
		j.progressEvery = *params.ProgressEvery
	}
	j.logger.Info("season job parameters adjusted", zap.Int("iterations", j.iterations), zap.Int("progress_every", j.progressEvery))
	return nil
}

// Handle dispatches a monitor command.
func (j *OptimizationJob) Handle(cmd models.JobCommand) error {
	switch cmd.Type {
	case models.JobCommandPause:
		return j.Pause()
	case models.JobCommandResume:
		return j.Resume()
	case models.JobCommandAbort:
		j.Cancel()
		return nil
	case models.JobCommandAdjustParameters:
		return j.AdjustParameters(cmd.Parameters)
	}
	return &ValidationError{Fields: []FieldError{{Field: "type", Reason: fmt.Sprintf("unknown command %q", cmd.Type)}}}
}

// Snapshot returns a copy of the job state. The best schedule is deep-copied.
func (j *OptimizationJob) Snapshot() models.OptimizationJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snapshot := j.state
	snapshot.Best = j.state.Best.Clone()
	return snapshot
}

// Result returns the best schedule of a finished job. A completed job with residual hard
// violations returns its schedule with a *ConstraintsUnsatisfiedError.
func (j *OptimizationJob) Result() (*models.Schedule, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.state.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrJobNotFinished, fmt.Sprintf("job %s is %s", j.id, j.state.Status))
	}
	return j.state.Best.Clone(), j.err
}
