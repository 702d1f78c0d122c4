package models

import (
	"sort"
	"time"
)

// MatchupType classifies a fixture.
type MatchupType string

const (
	MatchupConference    MatchupType = "conference"
	MatchupNonConference MatchupType = "non_conference"
	MatchupSeries        MatchupType = "series"
)

// Matchup is one game between a home and an away team.
type Matchup struct {
	HomeTeamID string      `json:"homeTeamId"`
	AwayTeamID string      `json:"awayTeamId"`
	Week       int         `json:"week"`
	Date       time.Time   `json:"date"`
	Type       MatchupType `json:"type"`
	Venue      string      `json:"venue,omitempty"`
	SeriesID   string      `json:"seriesId,omitempty"`
	SeriesGame int         `json:"seriesGame,omitempty"`
	Locked     bool        `json:"locked,omitempty"`
}

// Assigned reports whether the matchup has a date.
func (m Matchup) Assigned() bool {
	return !m.Date.IsZero()
}

// Involves reports whether teamID plays in the matchup.
func (m Matchup) Involves(teamID string) bool {
	return m.HomeTeamID == teamID || m.AwayTeamID == teamID
}

// ObjectiveScores holds the normalised soft sub-scores (lower is better).
type ObjectiveScores struct {
	TravelEfficiency   float64 `json:"travelEfficiency"`
	CompetitiveBalance float64 `json:"competitiveBalance"`
	TVRevenue          float64 `json:"tvRevenue"`
	StudentWellbeing   float64 `json:"studentWellbeing"`
}

// Weighted applies the weight vector field by field.
func (o ObjectiveScores) Weighted(w OptimizationWeights) ObjectiveScores {
	return ObjectiveScores{
		TravelEfficiency:   o.TravelEfficiency * w.TravelEfficiency,
		CompetitiveBalance: o.CompetitiveBalance * w.CompetitiveBalance,
		TVRevenue:          o.TVRevenue * w.TVRevenue,
		StudentWellbeing:   o.StudentWellbeing * w.StudentWellbeing,
	}
}

// Sum adds the sub-scores in declaration order.
func (o ObjectiveScores) Sum() float64 {
	return o.TravelEfficiency + o.CompetitiveBalance + o.TVRevenue + o.StudentWellbeing
}

// ScoreBreakdown explains an evaluation.
type ScoreBreakdown struct {
	HardByKind map[ConstraintKind]int `json:"hardByKind"`
	Objectives ObjectiveScores        `json:"objectives"`
	Weighted   ObjectiveScores        `json:"weighted"`
}

// Map flattens the breakdown for progress events and logs.
func (b ScoreBreakdown) Map() map[string]float64 {
	out := map[string]float64{
		"travelEfficiency":   b.Weighted.TravelEfficiency,
		"competitiveBalance": b.Weighted.CompetitiveBalance,
		"tvRevenue":          b.Weighted.TVRevenue,
		"studentWellbeing":   b.Weighted.StudentWellbeing,
	}
	for kind, count := range b.HardByKind {
		out["hard."+string(kind)] = float64(count)
	}
	return out
}

// Evaluation is the result of scoring a complete candidate schedule.
type Evaluation struct {
	HardViolations int            `json:"hardViolations"`
	SoftScore      float64        `json:"softScore"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	Violations     []Violation    `json:"violations,omitempty"`
}

// Better reports whether e strictly beats other: fewer hard violations, then lower soft score.
func (e Evaluation) Better(other Evaluation) bool {
	if e.HardViolations != other.HardViolations {
		return e.HardViolations < other.HardViolations
	}
	return e.SoftScore < other.SoftScore
}

// ScheduleMetrics summarises how a schedule was produced.
type ScheduleMetrics struct {
	HardViolations int            `json:"hardViolations"`
	SoftScore      float64        `json:"softScore"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	Iterations     int            `json:"iterations"`
	Seed           int64          `json:"seed"`
}

// Schedule is an ordered fixture list plus generation metadata.
type Schedule struct {
	Sport       string            `json:"sport"`
	Format      CompetitionFormat `json:"format"`
	SeasonStart time.Time         `json:"seasonStart"`
	SeasonEnd   time.Time         `json:"seasonEnd"`
	Matchups    []Matchup         `json:"matchups"`
	Metrics     ScheduleMetrics   `json:"metrics"`
}

// Complete reports whether every matchup has an assigned date.
func (s *Schedule) Complete() bool {
	for _, m := range s.Matchups {
		if !m.Assigned() {
			return false
		}
	}
	return true
}

// Valid reports whether the last evaluation found no hard violations.
func (s *Schedule) Valid() bool {
	return s.Metrics.HardViolations == 0
}

// Clone deep-copies the schedule so callers never share search state.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Matchups = append([]Matchup(nil), s.Matchups...)
	if s.Metrics.Breakdown.HardByKind != nil {
		clone.Metrics.Breakdown.HardByKind = make(map[ConstraintKind]int, len(s.Metrics.Breakdown.HardByKind))
		for kind, count := range s.Metrics.Breakdown.HardByKind {
			clone.Metrics.Breakdown.HardByKind[kind] = count
		}
	}
	return &clone
}

// SortByDate orders matchups by date, then home, then away. Unassigned games sort last.
func (s *Schedule) SortByDate() {
	sort.SliceStable(s.Matchups, func(i, j int) bool {
		a, b := s.Matchups[i], s.Matchups[j]
		if a.Assigned() != b.Assigned() {
			return a.Assigned()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.HomeTeamID != b.HomeTeamID {
			return a.HomeTeamID < b.HomeTeamID
		}
		if a.AwayTeamID != b.AwayTeamID {
			return a.AwayTeamID < b.AwayTeamID
		}
		return a.SeriesGame < b.SeriesGame
	})
}

// GamesPerTeam counts fixtures per team id.
func (s *Schedule) GamesPerTeam() map[string]int {
	counts := make(map[string]int)
	for _, m := range s.Matchups {
		counts[m.HomeTeamID]++
		counts[m.AwayTeamID]++
	}
	return counts
}
