package models

import "time"

// JobStatus captures the optimization job lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusPaused    JobStatus = "PAUSED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job stages reported on the progress channel.
const (
	StageValidating = "validating"
	StageGenerating = "generating"
	StageOptimizing = "optimizing"
	StagePaused     = "paused"
	StageCompleted  = "completed"
	StageFailed     = "failed"
	StageCancelled  = "cancelled"
)

// JobCommandType enumerates monitor commands.
type JobCommandType string

const (
	JobCommandPause            JobCommandType = "pause"
	JobCommandResume           JobCommandType = "resume"
	JobCommandAbort            JobCommandType = "abort"
	JobCommandAdjustParameters JobCommandType = "adjust_parameters"
)

// JobParameters holds the live-adjustable knobs of a running job.
type JobParameters struct {
	Iterations    *int `json:"iterations,omitempty"`
	ProgressEvery *int `json:"progressEvery,omitempty"`
}

// JobCommand is issued by an external monitor.
type JobCommand struct {
	Type       JobCommandType `json:"type"`
	Parameters JobParameters  `json:"parameters"`
}

// ProgressEvent is emitted to subscribers and reporters.
type ProgressEvent struct {
	JobID     string             `json:"jobId"`
	Progress  int                `json:"progress"`
	Stage     string             `json:"stage"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// OptimizationJob is a point-in-time view of a job.
type OptimizationJob struct {
	ID               string     `json:"id"`
	ConfigurationRef string     `json:"configurationRef"`
	Status           JobStatus  `json:"status"`
	Stage            string     `json:"stage"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Best             *Schedule  `json:"best,omitempty"`
	Score            float64    `json:"score"`
	HardViolations   int        `json:"hardViolations"`
	Iteration        int        `json:"iteration"`
	Iterations       int        `json:"iterations"`
	Error            string     `json:"error,omitempty"`
	Warning          string     `json:"warning,omitempty"`
}
