package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
)

// ProgressReporter receives job progress events. Report is called from the search loop and
// must return quickly.
type ProgressReporter interface {
	Report(ctx context.Context, event models.ProgressEvent)
}

// ProgressReporterFunc adapts a function to ProgressReporter.
type ProgressReporterFunc func(ctx context.Context, event models.ProgressEvent)

// Report calls f.
func (f ProgressReporterFunc) Report(ctx context.Context, event models.ProgressEvent) {
	f(ctx, event)
}

// MultiProgressReporter fans events out to every non-nil reporter in order.
type MultiProgressReporter []ProgressReporter

// Report implements ProgressReporter.
func (m MultiProgressReporter) Report(ctx context.Context, event models.ProgressEvent) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, event)
		}
	}
}

// LoggingProgressReporter writes progress events as structured logs.
type LoggingProgressReporter struct {
	logger *zap.Logger
}

// NewLoggingProgressReporter builds a reporter backed by logger.
func NewLoggingProgressReporter(logger *zap.Logger) *LoggingProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingProgressReporter{logger: logger}
}

// Report implements ProgressReporter.
func (r *LoggingProgressReporter) Report(_ context.Context, event models.ProgressEvent) {
	fields := []zap.Field{
		zap.String("job_id", event.JobID),
		zap.String("stage", event.Stage),
		zap.Int("progress", event.Progress),
	}
	if v, ok := event.Metrics["softScore"]; ok {
		fields = append(fields, zap.Float64("soft_score", v))
	}
	if v, ok := event.Metrics["hardViolations"]; ok {
		fields = append(fields, zap.Float64("hard_violations", v))
	}
	switch event.Stage {
	case models.StageOptimizing:
		r.logger.Debug("season job progress", fields...)
	case models.StageFailed:
		r.logger.Warn("season job progress", fields...)
	default:
		r.logger.Info("season job progress", fields...)
	}
}
