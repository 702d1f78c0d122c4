package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

// FieldError names one unmet configuration requirement.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Reason
}

// ValidationError reports every malformed configuration field at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "invalid season configuration: " + strings.Join(parts, "; ")
}

// Has reports whether field was named by the error.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) addf(field, format string, args ...any) {
	e.add(field, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// GenerationError means the matchup universe cannot hit its per-team target.
type GenerationError struct {
	Format    models.CompetitionFormat
	TeamID    string
	Expected  int
	Actual    int
	Tolerance int
	Reason    string
}

func (e *GenerationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot generate %s matchups: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("cannot generate %s matchups: team %s has %d games, expected %d (tolerance %d)",
		e.Format, e.TeamID, e.Actual, e.Expected, e.Tolerance)
}

// ConstraintsUnsatisfiedError is the non-fatal warning returned with a best-effort schedule.
type ConstraintsUnsatisfiedError struct {
	HardViolations int
	ByKind         map[models.ConstraintKind]int
	Iterations     int
}

func (e *ConstraintsUnsatisfiedError) Error() string {
	kinds := make([]string, 0, len(e.ByKind))
	for kind, count := range e.ByKind {
		if count > 0 {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, count))
		}
	}
	sort.Strings(kinds)
	return fmt.Sprintf("constraints unsatisfied after %d iterations: %d hard violations (%s)",
		e.Iterations, e.HardViolations, strings.Join(kinds, ", "))
}

// JobError records an unexpected failure inside one optimization job.
type JobError struct {
	JobID string
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed during %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ToAppError maps scheduling errors onto the API error contract.
func ToAppError(err error) *appErrors.Error {
	if err == nil {
		return nil
	}
	var (
		validationErr  *ValidationError
		generationErr  *GenerationError
		unsatisfiedErr *ConstraintsUnsatisfiedError
		jobErr         *JobError
	)
	switch {
	case errors.As(err, &validationErr):
		fields := make([]map[string]string, 0, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			fields = append(fields, map[string]string{"field": f.Field, "reason": f.Reason})
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid season configuration").
			WithDetails(map[string]any{"fields": fields})
	case errors.As(err, &generationErr):
		return appErrors.Wrap(err, appErrors.ErrGeneration.Code, appErrors.ErrGeneration.Status, generationErr.Error()).
			WithDetails(map[string]any{
				"format":    generationErr.Format,
				"teamId":    generationErr.TeamID,
				"expected":  generationErr.Expected,
				"actual":    generationErr.Actual,
				"tolerance": generationErr.Tolerance,
			})
	case errors.As(err, &unsatisfiedErr):
		return appErrors.Wrap(err, appErrors.ErrConstraintsUnsatisfied.Code, appErrors.ErrConstraintsUnsatisfied.Status, unsatisfiedErr.Error()).
			WithDetails(map[string]any{
				"hardViolations": unsatisfiedErr.HardViolations,
				"byKind":         unsatisfiedErr.ByKind,
				"iterations":     unsatisfiedErr.Iterations,
			})
	case errors.As(err, &jobErr):
		return appErrors.Wrap(err, appErrors.ErrJob.Code, appErrors.ErrJob.Status, jobErr.Error()).
			WithDetails(map[string]any{"jobId": jobErr.JobID, "stage": jobErr.Stage})
	}
	return appErrors.FromError(err)
}
