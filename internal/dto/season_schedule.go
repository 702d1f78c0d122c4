package dto

import (
	"time"

	"github.com/noah-isme/season-scheduler/internal/models"
)

// GeoPointRequest carries optional team coordinates.
type GeoPointRequest struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

// TeamRequest describes a participant. Either id or name is required.
type TeamRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name" validate:"required_without=ID"`
	Location    *GeoPointRequest    `json:"location" validate:"omitempty"`
	Venue       string              `json:"venue"`
	Conference  string              `json:"conference"`
	Division    string              `json:"division"`
	Constraints []ConstraintRequest `json:"constraints" validate:"omitempty,dive"`
}

// ConstraintRequest is the raw tagged constraint. Type selects which fields apply.
type ConstraintRequest struct {
	Type      string `json:"type" validate:"required,oneof=no_play_day_of_week no_play_date_range"`
	TeamID    string `json:"teamId"`
	DayOfWeek string `json:"dayOfWeek"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// RivalryRequest protects a marquee pairing.
type RivalryRequest struct {
	TeamA    string `json:"teamA" validate:"required"`
	TeamB    string `json:"teamB" validate:"required,nefield=TeamA"`
	Priority int    `json:"priority" validate:"min=0"`
}

// VenueWindowRequest blocks a venue for a date range.
type VenueWindowRequest struct {
	Venue  string `json:"venue" validate:"required"`
	Start  string `json:"start" validate:"required"`
	End    string `json:"end" validate:"required"`
	Reason string `json:"reason"`
}

// LockedGameRequest is an externally fixed fixture.
type LockedGameRequest struct {
	Home string `json:"home" validate:"required"`
	Away string `json:"away" validate:"required,nefield=Home"`
	Date string `json:"date" validate:"required"`
	Type string `json:"type" validate:"omitempty,oneof=conference non_conference series"`
}

// WeightsRequest overrides default objective weights. Nil fields keep the default.
type WeightsRequest struct {
	TravelEfficiency   *float64 `json:"travelEfficiency" validate:"omitempty,min=0"`
	CompetitiveBalance *float64 `json:"competitiveBalance" validate:"omitempty,min=0"`
	TVRevenue          *float64 `json:"tvRevenue" validate:"omitempty,min=0"`
	StudentWellbeing   *float64 `json:"studentWellbeing" validate:"omitempty,min=0"`
}

// SeasonScheduleRequest is the raw parameter set accepted by the configuration builder.
type SeasonScheduleRequest struct {
	Sport                        string               `json:"sport" validate:"required"`
	SeasonStart                  string               `json:"seasonStart" validate:"required"`
	SeasonEnd                    string               `json:"seasonEnd" validate:"required"`
	ChampionshipDate             string               `json:"championshipDate"`
	Format                       string               `json:"format"`
	GamesPerTeam                 int                  `json:"gamesPerTeam" validate:"min=0"`
	Teams                        []TeamRequest        `json:"teams" validate:"min=2,dive"`
	Rivalries                    []RivalryRequest     `json:"rivalries" validate:"omitempty,dive"`
	Constraints                  []ConstraintRequest  `json:"constraints" validate:"omitempty,dive"`
	VenueUnavailability          []VenueWindowRequest `json:"venueUnavailability" validate:"omitempty,dive"`
	LockedGames                  []LockedGameRequest  `json:"lockedGames" validate:"omitempty,dive"`
	OptimizationWeights          WeightsRequest       `json:"optimizationWeights"`
	SimulatedAnnealingIterations int                  `json:"simulatedAnnealingIterations" validate:"min=0,max=5000000"`
	Seed                         *int64               `json:"seed"`
	GameDays                     []string             `json:"gameDays"`
	SeriesLength                 int                  `json:"seriesLength" validate:"min=0,max=7"`
	MinRestDays                  int                  `json:"minRestDays" validate:"min=0,max=14"`
	TimeoutSeconds               int                  `json:"timeoutSeconds" validate:"min=0"`
}

// SeasonJobResponse acknowledges a submitted optimization run.
type SeasonJobResponse struct {
	ID     string           `json:"id"`
	Status models.JobStatus `json:"status"`
}

// SeasonJobStatusResponse exposes the job snapshot without the fixture list.
type SeasonJobStatusResponse struct {
	ID               string             `json:"id"`
	ConfigurationRef string             `json:"configurationRef,omitempty"`
	Status           models.JobStatus   `json:"status"`
	Stage            string             `json:"stage"`
	Iteration        int                `json:"iteration"`
	Iterations       int                `json:"iterations"`
	Score            float64            `json:"score"`
	HardViolations   int                `json:"hardViolations"`
	Progress         int                `json:"progress"`
	Error            string             `json:"error,omitempty"`
	Warning          string             `json:"warning,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
}

// SeasonScheduleResult is the final optimization output.
type SeasonScheduleResult struct {
	JobID          string                `json:"jobId"`
	Status         models.JobStatus      `json:"status"`
	Schedule       *models.Schedule      `json:"schedule"`
	Score          float64               `json:"score"`
	HardViolations int                   `json:"hardViolations"`
	Iterations     int                   `json:"iterations"`
	Breakdown      models.ScoreBreakdown `json:"breakdown"`
	Violations     []string              `json:"violations,omitempty"`
	Warning        string                `json:"warning,omitempty"`
}

// SeasonJobCommandRequest wraps a monitor command.
type SeasonJobCommandRequest struct {
	Type       string               `json:"type" validate:"required,oneof=pause resume abort adjust_parameters"`
	Parameters models.JobParameters `json:"parameters"`
}

// SeasonExportQuery selects the export format.
type SeasonExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
	Store  bool   `form:"store"`
}
