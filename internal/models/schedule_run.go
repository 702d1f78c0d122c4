package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates schedule download formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether the format can be rendered.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ContentType is the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// ScheduleRun is the persisted outcome of a finished optimization job.
type ScheduleRun struct {
	ID             string           `db:"id" json:"id"`
	JobID          string           `db:"job_id" json:"jobId"`
	Sport          string           `db:"sport" json:"sport"`
	Format         string           `db:"format" json:"format"`
	Status         JobStatus        `db:"status" json:"status"`
	Seed           int64            `db:"seed" json:"seed"`
	Iterations     int              `db:"iterations" json:"iterations"`
	HardViolations int              `db:"hard_violations" json:"hardViolations"`
	SoftScore      float64          `db:"soft_score" json:"softScore"`
	Fixtures       ScheduleFixtures `db:"fixtures" json:"fixtures"`
	ErrorMessage   *string          `db:"error_message" json:"errorMessage,omitempty"`
	StartedAt      *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt    *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// ScheduleRunFilter narrows run history listings.
type ScheduleRunFilter struct {
	Status   JobStatus
	Sport    string
	Page     int
	PageSize int
}

// ScheduleFixtures stores the matchup list as JSONB.
type ScheduleFixtures []Matchup

// Value marshals fixtures to JSON for persistence.
func (f ScheduleFixtures) Value() (driver.Value, error) {
	if f == nil {
		f = ScheduleFixtures{}
	}
	data, err := json.Marshal([]Matchup(f))
	if err != nil {
		return nil, fmt.Errorf("marshal schedule fixtures: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the fixture list.
func (f *ScheduleFixtures) Scan(value interface{}) error {
	if value == nil {
		*f = ScheduleFixtures{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ScheduleFixtures", value)
	}
	if len(data) == 0 {
		*f = ScheduleFixtures{}
		return nil
	}
	var items []Matchup
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal schedule fixtures: %w", err)
	}
	*f = items
	return nil
}
