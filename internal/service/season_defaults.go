package service

import (
	"strings"
	"time"

	"github.com/noah-isme/season-scheduler/internal/models"
)

type sportDefaults struct {
	GamesPerTeam int
	Format       models.CompetitionFormat
}

var sportDefaultsTable = map[string]sportDefaults{
	"basketball": {GamesPerTeam: 20, Format: models.FormatDoubleRoundRobin},
	"football":   {GamesPerTeam: 9, Format: models.FormatPartialRoundRobin},
	"baseball":   {GamesPerTeam: 24, Format: models.FormatThreeGameSeries},
	"softball":   {GamesPerTeam: 24, Format: models.FormatThreeGameSeries},
	"wrestling":  {GamesPerTeam: 10, Format: models.FormatDualMeet},
}

var fallbackSportDefaults = sportDefaults{GamesPerTeam: 10, Format: models.FormatSingleRoundRobin}

const (
	defaultSeriesLength = 3
	defaultMinRestDays  = 1
	defaultIterations   = 5000
)

func lookupSportDefaults(sport string) sportDefaults {
	if d, ok := sportDefaultsTable[strings.ToLower(strings.TrimSpace(sport))]; ok {
		return d
	}
	return fallbackSportDefaults
}

// impliedGamesPerTeam returns the per-team count fixed by a format, or 0 when the format
// takes its target from configuration.
func impliedGamesPerTeam(format models.CompetitionFormat, teams int) int {
	switch format {
	case models.FormatSingleRoundRobin, models.FormatDualMeet:
		return teams - 1
	case models.FormatDoubleRoundRobin:
		return 2 * (teams - 1)
	}
	return 0
}

// mergeWeights overlays caller-supplied values on the defaults. Caller values win.
func mergeWeights(base models.OptimizationWeights, travel, balance, tv, wellbeing *float64) models.OptimizationWeights {
	merged := base
	if travel != nil {
		merged.TravelEfficiency = *travel
	}
	if balance != nil {
		merged.CompetitiveBalance = *balance
	}
	if tv != nil {
		merged.TVRevenue = *tv
	}
	if wellbeing != nil {
		merged.StudentWellbeing = *wellbeing
	}
	return merged
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(raw string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
	return day, ok
}
