package service

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/season-scheduler/internal/dto"
	"github.com/noah-isme/season-scheduler/internal/models"
)

func newTestBuilder() *SeasonConfigBuilder {
	return NewSeasonConfigBuilder(validator.New(), SeasonBuilderConfig{DefaultIterations: 1000, DefaultTimeout: time.Minute})
}

func baseSeasonRequest(teams ...string) dto.SeasonScheduleRequest {
	req := dto.SeasonScheduleRequest{
		Sport:       "basketball",
		SeasonStart: "2025-01-06",
		SeasonEnd:   "2025-03-30",
	}
	for _, name := range teams {
		req.Teams = append(req.Teams, dto.TeamRequest{Name: name, Venue: name + " Arena"})
	}
	return req
}

func TestSeasonConfigBuilderAppliesSportDefaults(t *testing.T) {
	cfg, err := newTestBuilder().Build(baseSeasonRequest("Alpha", "Bravo", "Charlie", "Delta"))
	require.NoError(t, err)

	assert.Equal(t, models.FormatDoubleRoundRobin, cfg.Format)
	assert.Equal(t, 6, cfg.GamesPerTeam, "double round robin implies 2*(n-1)")
	assert.Equal(t, 1000, cfg.Iterations)
	assert.Equal(t, defaultSeriesLength, cfg.SeriesLength)
	assert.Equal(t, defaultMinRestDays, cfg.MinRestDays)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, models.DefaultOptimizationWeights(), cfg.Weights)
	assert.Equal(t, "alpha", cfg.Teams[0].ID)
	assert.Equal(t, "Alpha Arena", cfg.Teams[0].Venue)
}

func TestSeasonConfigBuilderRejectsInvertedSeason(t *testing.T) {
	req := baseSeasonRequest("Alpha", "Bravo")
	req.SeasonStart, req.SeasonEnd = "2025-04-01", "2025-03-01"

	cfg, err := newTestBuilder().Build(req)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("seasonStart"))
	assert.True(t, verr.Has("seasonEnd"))
}

func TestSeasonConfigBuilderCollectsEveryFieldError(t *testing.T) {
	req := dto.SeasonScheduleRequest{
		SeasonStart: "2025/01/01",
		Teams:       []dto.TeamRequest{{Name: "Solo"}},
		Format:      "knockout",
	}

	_, err := newTestBuilder().Build(req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"sport", "seasonEnd", "teams", "seasonStart", "format"} {
		assert.True(t, verr.Has(field), "expected %s to be reported, got %v", field, verr.Fields)
	}
}

func TestSeasonConfigBuilderMergesWeights(t *testing.T) {
	travel := 2.5
	tv := 0.0
	req := baseSeasonRequest("Alpha", "Bravo")
	req.OptimizationWeights = dto.WeightsRequest{TravelEfficiency: &travel, TVRevenue: &tv}

	cfg, err := newTestBuilder().Build(req)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Weights.TravelEfficiency)
	assert.Equal(t, 0.0, cfg.Weights.TVRevenue)
	assert.Equal(t, 1.0, cfg.Weights.CompetitiveBalance)
	assert.Equal(t, 1.0, cfg.Weights.StudentWellbeing)
}

func TestSeasonConfigBuilderResolvesReferences(t *testing.T) {
	req := baseSeasonRequest("North State", "South Tech", "East College")
	req.Format = "partial-round-robin"
	req.GamesPerTeam = 2
	req.Rivalries = []dto.RivalryRequest{{TeamA: "North State", TeamB: "southtech", Priority: 3}}
	req.Constraints = []dto.ConstraintRequest{{Type: "no_play_day_of_week", TeamID: "East College", DayOfWeek: "Sunday"}}
	req.LockedGames = []dto.LockedGameRequest{{Home: "northstate", Away: "East College", Date: "2025-02-01"}}
	req.VenueUnavailability = []dto.VenueWindowRequest{{Venue: "North State Arena", Start: "2025-02-10", End: "2025-02-12"}}

	cfg, err := newTestBuilder().Build(req)
	require.NoError(t, err)

	assert.Equal(t, models.FormatPartialRoundRobin, cfg.Format)
	require.Len(t, cfg.Rivalries, 1)
	assert.Equal(t, models.ProtectedRivalry{TeamA: "northstate", TeamB: "southtech", Priority: 3}, cfg.Rivalries[0])
	require.Len(t, cfg.Constraints, 1)
	assert.Equal(t, models.NoPlayDayOfWeek{TeamID: "eastcollege", Weekday: time.Sunday}, cfg.Constraints[0])
	assert.Len(t, cfg.Teams[2].Constraints, 1)
	require.Len(t, cfg.LockedGames, 1)
	assert.Equal(t, models.MatchupNonConference, cfg.LockedGames[0].Type)
	require.Len(t, cfg.VenueConflicts, 1)
	assert.True(t, cfg.VenueConflicts[0].Covers(time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC)))
}

func TestSeasonConfigBuilderRejectsUnknownReferences(t *testing.T) {
	req := baseSeasonRequest("Alpha", "Bravo")
	req.Rivalries = []dto.RivalryRequest{{TeamA: "Alpha", TeamB: "Zulu"}}
	req.LockedGames = []dto.LockedGameRequest{{Home: "Alpha", Away: "Bravo", Date: "not-a-date"}}

	_, err := newTestBuilder().Build(req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("rivalries[0].teamB"))
	assert.True(t, verr.Has("lockedGames[0].date"))
}

func TestSeasonConfigBuilderRejectsDuplicateTeams(t *testing.T) {
	req := baseSeasonRequest("Alpha", "alpha")

	_, err := newTestBuilder().Build(req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("teams[1].id"))
}

func TestSeasonConfigBuilderSeedIsStable(t *testing.T) {
	b := newTestBuilder()
	first, err := b.Build(baseSeasonRequest("Alpha", "Bravo"))
	require.NoError(t, err)
	second, err := b.Build(baseSeasonRequest("Alpha", "Bravo"))
	require.NoError(t, err)
	assert.Equal(t, first.Seed, second.Seed)

	seed := int64(42)
	req := baseSeasonRequest("Alpha", "Bravo")
	req.Seed = &seed
	explicit, err := b.Build(req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), explicit.Seed)
}

func TestSeasonConfigBuilderRoundsSeriesTarget(t *testing.T) {
	req := baseSeasonRequest("Alpha", "Bravo", "Charlie", "Delta")
	req.Sport = "baseball"
	req.GamesPerTeam = 8

	cfg, err := newTestBuilder().Build(req)
	require.NoError(t, err)
	assert.Equal(t, models.FormatThreeGameSeries, cfg.Format)
	assert.Equal(t, 9, cfg.GamesPerTeam)
}

func TestSeasonConfigBuilderParsesGameDays(t *testing.T) {
	req := baseSeasonRequest("Alpha", "Bravo")
	req.GameDays = []string{"Sat", "wednesday", "funday"}

	_, err := newTestBuilder().Build(req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("gameDays[2]"))

	req.GameDays = req.GameDays[:2]
	cfg, err := newTestBuilder().Build(req)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Wednesday}, cfg.GameDays)
}

func TestValidateSeasonConfigurationReportsWithoutPanicking(t *testing.T) {
	report := ValidateSeasonConfiguration(nil)
	assert.False(t, report.Valid)

	cfg := &models.SeasonConfiguration{
		Sport:       "hockey",
		SeasonStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		SeasonEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Format:      "ladder",
		Teams:       []models.Team{{ID: "a"}, {ID: "a"}},
		Constraints: []models.Constraint{models.NoPlayDayOfWeek{TeamID: "ghost"}},
		Weights:     models.OptimizationWeights{TravelEfficiency: -1},
	}
	report = ValidateSeasonConfiguration(cfg)
	assert.False(t, report.Valid)
	assert.GreaterOrEqual(t, len(report.Errors), 5)
}

func TestValidateSeasonConfigurationIgnoresGamesPerTeamForImpliedFormats(t *testing.T) {
	for _, format := range []models.CompetitionFormat{models.FormatSingleRoundRobin, models.FormatDoubleRoundRobin, models.FormatDualMeet} {
		cfg := testSeason(4, format, 0)
		cfg.GamesPerTeam = 0
		report := ValidateSeasonConfiguration(cfg)
		assert.True(t, report.Valid, "%s: %v", format, report.Errors)
	}

	cfg := testSeason(4, models.FormatPartialRoundRobin, 0)
	report := ValidateSeasonConfiguration(cfg)
	assert.False(t, report.Valid)
	assert.Contains(t, report.Errors, "gamesPerTeam must be positive")
}
