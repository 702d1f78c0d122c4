package models

import "time"

// CompetitionFormat enumerates supported fixture structures.
type CompetitionFormat string

const (
	FormatSingleRoundRobin  CompetitionFormat = "single_round_robin"
	FormatDoubleRoundRobin  CompetitionFormat = "double_round_robin"
	FormatPartialRoundRobin CompetitionFormat = "partial_round_robin"
	FormatDivisional        CompetitionFormat = "divisional"
	FormatThreeGameSeries   CompetitionFormat = "three_game_series"
	FormatDualMeet          CompetitionFormat = "dual_meet"
)

// CompetitionFormats lists every known format in a stable order.
var CompetitionFormats = []CompetitionFormat{
	FormatSingleRoundRobin,
	FormatDoubleRoundRobin,
	FormatPartialRoundRobin,
	FormatDivisional,
	FormatThreeGameSeries,
	FormatDualMeet,
}

// Valid reports whether the format is a member of the enum.
func (f CompetitionFormat) Valid() bool {
	for _, known := range CompetitionFormats {
		if f == known {
			return true
		}
	}
	return false
}

// IsSeries reports whether pairings expand into multi-game series.
func (f CompetitionFormat) IsSeries() bool {
	return f == FormatThreeGameSeries
}

// GeoPoint is a venue location in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Team is a participant in the season.
type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Location    *GeoPoint    `json:"location,omitempty"`
	Venue       string       `json:"venue,omitempty"`
	Conference  string       `json:"conference,omitempty"`
	Division    string       `json:"division,omitempty"`
	Constraints []Constraint `json:"-"`
}

// OptimizationWeights scales each soft objective. New objectives are added as named fields.
type OptimizationWeights struct {
	TravelEfficiency   float64 `json:"travelEfficiency"`
	CompetitiveBalance float64 `json:"competitiveBalance"`
	TVRevenue          float64 `json:"tvRevenue"`
	StudentWellbeing   float64 `json:"studentWellbeing"`
}

// DefaultOptimizationWeights weighs every objective equally.
func DefaultOptimizationWeights() OptimizationWeights {
	return OptimizationWeights{
		TravelEfficiency:   1.0,
		CompetitiveBalance: 1.0,
		TVRevenue:          1.0,
		StudentWellbeing:   1.0,
	}
}

// SeasonConfiguration is the validated, immutable input of one optimization job.
type SeasonConfiguration struct {
	Sport            string
	SeasonStart      time.Time
	SeasonEnd        time.Time
	ChampionshipDate *time.Time
	Format           CompetitionFormat
	GamesPerTeam     int
	Teams            []Team
	Rivalries        []ProtectedRivalry
	Constraints      []Constraint
	VenueConflicts   []VenueConflict
	LockedGames      []LockedGame
	Weights          OptimizationWeights
	Iterations       int
	Seed             int64

	GameDays     []time.Weekday
	SeriesLength int
	MinRestDays  int
	Timeout      time.Duration
}

// TeamIndex maps team ids to their position in Teams.
func (c *SeasonConfiguration) TeamIndex() map[string]int {
	index := make(map[string]int, len(c.Teams))
	for i, team := range c.Teams {
		index[team.ID] = i
	}
	return index
}

// SeasonDays is the inclusive number of calendar days in the season window.
func (c *SeasonConfiguration) SeasonDays() int {
	return DaysBetween(c.SeasonStart, c.SeasonEnd) + 1
}

// SeasonWeeks is the number of (possibly partial) weeks covered by the season.
func (c *SeasonConfiguration) SeasonWeeks() int {
	return (c.SeasonDays() + 6) / 7
}

// AllConstraints flattens every constraint variant held by the configuration.
func (c *SeasonConfiguration) AllConstraints() []Constraint {
	all := make([]Constraint, 0, len(c.Constraints)+len(c.Rivalries)+len(c.VenueConflicts)+len(c.LockedGames))
	all = append(all, c.Constraints...)
	for _, rivalry := range c.Rivalries {
		all = append(all, rivalry)
	}
	for _, window := range c.VenueConflicts {
		all = append(all, window)
	}
	for _, game := range c.LockedGames {
		all = append(all, game)
	}
	return all
}

// ValidationReport is the non-throwing outcome of re-validating a configuration.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}
