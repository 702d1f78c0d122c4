package service

import (
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/season-scheduler/internal/dto"
	"github.com/noah-isme/season-scheduler/internal/models"
)

const dateLayout = "2006-01-02"

// SeasonBuilderConfig supplies environment-level defaults to the builder.
type SeasonBuilderConfig struct {
	DefaultIterations int
	DefaultTimeout    time.Duration
}

// SeasonConfigBuilder normalises raw parameters into a validated SeasonConfiguration.
type SeasonConfigBuilder struct {
	validator *validator.Validate
	cfg       SeasonBuilderConfig
}

// NewSeasonConfigBuilder wires the builder. Field names in errors follow the JSON tags.
func NewSeasonConfigBuilder(validate *validator.Validate, cfg SeasonBuilderConfig) *SeasonConfigBuilder {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	if cfg.DefaultIterations <= 0 {
		cfg.DefaultIterations = defaultIterations
	}
	return &SeasonConfigBuilder{validator: validate, cfg: cfg}
}

// Build runs every requirement check before failing, so a single *ValidationError lists all
// unmet fields. It has no side effects.
func (b *SeasonConfigBuilder) Build(req dto.SeasonScheduleRequest) (*models.SeasonConfiguration, error) {
	verr := &ValidationError{}
	b.structErrors(req, verr)

	cfg := &models.SeasonConfiguration{
		Sport: strings.ToLower(strings.TrimSpace(req.Sport)),
	}
	defaults := lookupSportDefaults(cfg.Sport)

	start, startOK := parseDateField(verr, "seasonStart", req.SeasonStart)
	end, endOK := parseDateField(verr, "seasonEnd", req.SeasonEnd)
	if startOK && endOK && start.After(end) {
		verr.add("seasonStart", "must be on or before seasonEnd")
		verr.add("seasonEnd", "must be on or after seasonStart")
	}
	cfg.SeasonStart, cfg.SeasonEnd = start, end

	if strings.TrimSpace(req.ChampionshipDate) != "" {
		if champ, ok := parseDateField(verr, "championshipDate", req.ChampionshipDate); ok {
			if startOK && champ.Before(start) {
				verr.add("championshipDate", "must fall within or after the season")
			}
			cfg.ChampionshipDate = &champ
		}
	}

	cfg.Format = defaults.Format
	if strings.TrimSpace(req.Format) != "" {
		cfg.Format = normaliseFormat(req.Format)
		if !cfg.Format.Valid() {
			verr.addf("format", "unknown format %q", req.Format)
		}
	}

	refs := b.buildTeams(req.Teams, cfg, verr)
	b.buildConstraints(req, cfg, refs, verr)

	cfg.Weights = mergeWeights(models.DefaultOptimizationWeights(),
		req.OptimizationWeights.TravelEfficiency,
		req.OptimizationWeights.CompetitiveBalance,
		req.OptimizationWeights.TVRevenue,
		req.OptimizationWeights.StudentWellbeing,
	)

	cfg.Iterations = req.SimulatedAnnealingIterations
	if cfg.Iterations <= 0 {
		cfg.Iterations = b.cfg.DefaultIterations
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	} else {
		cfg.Seed = deriveSeed(cfg.Sport, req.SeasonStart, req.SeasonEnd)
	}

	for i, raw := range req.GameDays {
		day, ok := parseWeekday(raw)
		if !ok {
			verr.addf(fmt.Sprintf("gameDays[%d]", i), "unknown weekday %q", raw)
			continue
		}
		cfg.GameDays = append(cfg.GameDays, day)
	}

	cfg.SeriesLength = req.SeriesLength
	if cfg.SeriesLength <= 0 {
		cfg.SeriesLength = defaultSeriesLength
	}
	cfg.MinRestDays = req.MinRestDays
	if cfg.MinRestDays <= 0 {
		cfg.MinRestDays = defaultMinRestDays
	}
	cfg.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	if cfg.Timeout <= 0 {
		cfg.Timeout = b.cfg.DefaultTimeout
	}

	cfg.GamesPerTeam = req.GamesPerTeam
	if cfg.GamesPerTeam <= 0 {
		cfg.GamesPerTeam = defaults.GamesPerTeam
	}
	if implied := impliedGamesPerTeam(cfg.Format, len(cfg.Teams)); implied > 0 {
		cfg.GamesPerTeam = implied
	}
	if cfg.Format.IsSeries() {
		series := (cfg.GamesPerTeam + cfg.SeriesLength - 1) / cfg.SeriesLength
		cfg.GamesPerTeam = series * cfg.SeriesLength
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if report := ValidateSeasonConfiguration(cfg); !report.Valid {
		for _, msg := range report.Errors {
			verr.add("configuration", msg)
		}
		return nil, verr
	}
	return cfg, nil
}

func (b *SeasonConfigBuilder) structErrors(req dto.SeasonScheduleRequest, verr *ValidationError) {
	err := b.validator.Struct(req)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("request", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		verr.add(field, describeTag(fe))
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when id is empty"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "nefield":
		return "must differ from " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// teamRefs resolves caller references (id, name or derived id) to canonical ids.
type teamRefs map[string]string

func (r teamRefs) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if id, ok := r[ref]; ok {
		return id, true
	}
	id, ok := r[deriveTeamID(ref)]
	return id, ok
}

func (b *SeasonConfigBuilder) buildTeams(in []dto.TeamRequest, cfg *models.SeasonConfiguration, verr *ValidationError) teamRefs {
	refs := make(teamRefs, len(in)*2)
	seen := make(map[string]int, len(in))
	for i, raw := range in {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			id = deriveTeamID(raw.Name)
		}
		if id == "" {
			if strings.TrimSpace(raw.Name) != "" {
				verr.addf(fmt.Sprintf("teams[%d].name", i), "cannot derive an identifier from %q", raw.Name)
			}
			continue
		}
		if prev, dup := seen[id]; dup {
			verr.addf(fmt.Sprintf("teams[%d].id", i), "duplicates teams[%d] (%s)", prev, id)
			continue
		}
		seen[id] = i

		team := models.Team{
			ID:         id,
			Name:       strings.TrimSpace(raw.Name),
			Venue:      strings.TrimSpace(raw.Venue),
			Conference: strings.TrimSpace(raw.Conference),
			Division:   strings.TrimSpace(raw.Division),
		}
		if team.Name == "" {
			team.Name = id
		}
		if raw.Location != nil {
			team.Location = &models.GeoPoint{Lat: raw.Location.Lat, Lng: raw.Location.Lng}
		}
		for j, rc := range raw.Constraints {
			field := fmt.Sprintf("teams[%d].constraints[%d]", i, j)
			if rc.TeamID != "" && rc.TeamID != id && deriveTeamID(rc.TeamID) != id {
				verr.addf(field+".teamId", "must be empty or %s", id)
				continue
			}
			if c, ok := parseNoPlayConstraint(verr, field, id, rc); ok {
				team.Constraints = append(team.Constraints, c)
				cfg.Constraints = append(cfg.Constraints, c)
			}
		}
		cfg.Teams = append(cfg.Teams, team)
		refs[id] = id
		if team.Name != "" {
			refs[team.Name] = id
		}
	}
	return refs
}

func (b *SeasonConfigBuilder) buildConstraints(req dto.SeasonScheduleRequest, cfg *models.SeasonConfiguration, refs teamRefs, verr *ValidationError) {
	for i, rc := range req.Constraints {
		field := fmt.Sprintf("constraints[%d]", i)
		teamID, ok := refs.resolve(rc.TeamID)
		if !ok {
			verr.addf(field+".teamId", "unknown team %q", rc.TeamID)
			continue
		}
		if c, ok := parseNoPlayConstraint(verr, field, teamID, rc); ok {
			cfg.Constraints = append(cfg.Constraints, c)
			for t := range cfg.Teams {
				if cfg.Teams[t].ID == teamID {
					cfg.Teams[t].Constraints = append(cfg.Teams[t].Constraints, c)
				}
			}
		}
	}

	for i, rr := range req.Rivalries {
		field := fmt.Sprintf("rivalries[%d]", i)
		a, okA := refs.resolve(rr.TeamA)
		bID, okB := refs.resolve(rr.TeamB)
		if !okA {
			verr.addf(field+".teamA", "unknown team %q", rr.TeamA)
		}
		if !okB {
			verr.addf(field+".teamB", "unknown team %q", rr.TeamB)
		}
		if okA && okB {
			cfg.Rivalries = append(cfg.Rivalries, models.ProtectedRivalry{TeamA: a, TeamB: bID, Priority: rr.Priority})
		}
	}

	for i, vw := range req.VenueUnavailability {
		field := fmt.Sprintf("venueUnavailability[%d]", i)
		start, okS := parseDateField(verr, field+".start", vw.Start)
		end, okE := parseDateField(verr, field+".end", vw.End)
		if okS && okE && start.After(end) {
			verr.add(field+".end", "must be on or after start")
			continue
		}
		if okS && okE {
			cfg.VenueConflicts = append(cfg.VenueConflicts, models.VenueConflict{
				Venue:  strings.TrimSpace(vw.Venue),
				Start:  start,
				End:    end,
				Reason: vw.Reason,
			})
		}
	}

	conference := make(map[string]string, len(cfg.Teams))
	for _, team := range cfg.Teams {
		conference[team.ID] = team.Conference
	}
	for i, lg := range req.LockedGames {
		field := fmt.Sprintf("lockedGames[%d]", i)
		home, okH := refs.resolve(lg.Home)
		away, okA := refs.resolve(lg.Away)
		if !okH {
			verr.addf(field+".home", "unknown team %q", lg.Home)
		}
		if !okA {
			verr.addf(field+".away", "unknown team %q", lg.Away)
		}
		date, okD := parseDateField(verr, field+".date", lg.Date)
		if !okH || !okA || !okD {
			continue
		}
		gameType := models.MatchupType(lg.Type)
		if gameType == "" {
			gameType = pairingType(conference[home], conference[away])
		}
		cfg.LockedGames = append(cfg.LockedGames, models.LockedGame{Home: home, Away: away, Date: date, Type: gameType})
	}
}

func parseNoPlayConstraint(verr *ValidationError, field, teamID string, rc dto.ConstraintRequest) (models.Constraint, bool) {
	switch models.ConstraintKind(rc.Type) {
	case models.ConstraintNoPlayDayOfWeek:
		day, ok := parseWeekday(rc.DayOfWeek)
		if !ok {
			verr.addf(field+".dayOfWeek", "unknown weekday %q", rc.DayOfWeek)
			return nil, false
		}
		return models.NoPlayDayOfWeek{TeamID: teamID, Weekday: day}, true
	case models.ConstraintNoPlayDateRange:
		start, okS := parseDateField(verr, field+".start", rc.Start)
		end, okE := parseDateField(verr, field+".end", rc.End)
		if !okS || !okE {
			return nil, false
		}
		if start.After(end) {
			verr.add(field+".end", "must be on or after start")
			return nil, false
		}
		return models.NoPlayDateRange{TeamID: teamID, Start: start, End: end}, true
	}
	verr.addf(field+".type", "unsupported constraint type %q", rc.Type)
	return nil, false
}

// parseDateField parses an ISO date. Missing values are left to the struct validator.
func parseDateField(verr *ValidationError, field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		verr.addf(field, "must be a date in YYYY-MM-DD format, got %q", raw)
		return time.Time{}, false
	}
	return t.UTC(), true
}

func normaliseFormat(raw string) models.CompetitionFormat {
	f := strings.ToLower(strings.TrimSpace(raw))
	f = strings.NewReplacer("-", "_", " ", "_").Replace(f)
	return models.CompetitionFormat(f)
}

// deriveTeamID lowercases the name and strips every non-alphanumeric rune.
func deriveTeamID(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func deriveSeed(sport, start, end string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sport + "|" + strings.TrimSpace(start) + "|" + strings.TrimSpace(end)))
	return int64(h.Sum64() >> 1)
}

func pairingType(confA, confB string) models.MatchupType {
	if confA != "" && confA == confB {
		return models.MatchupConference
	}
	return models.MatchupNonConference
}

// ValidateSeasonConfiguration re-checks invariants of a configuration built or mutated
// elsewhere. It only reports.
func ValidateSeasonConfiguration(cfg *models.SeasonConfiguration) models.ValidationReport {
	report := models.ValidationReport{Errors: []string{}}
	fail := func(format string, args ...any) {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}
	if cfg == nil {
		fail("configuration is required")
		return report
	}

	if strings.TrimSpace(cfg.Sport) == "" {
		fail("sport is required")
	}
	switch {
	case cfg.SeasonStart.IsZero() || cfg.SeasonEnd.IsZero():
		fail("seasonStart and seasonEnd are required")
	case cfg.SeasonStart.After(cfg.SeasonEnd):
		fail("seasonStart %s is after seasonEnd %s", cfg.SeasonStart.Format(dateLayout), cfg.SeasonEnd.Format(dateLayout))
	}
	if cfg.ChampionshipDate != nil && !cfg.SeasonStart.IsZero() && cfg.ChampionshipDate.Before(cfg.SeasonStart) {
		fail("championshipDate %s falls before the season", cfg.ChampionshipDate.Format(dateLayout))
	}
	if !cfg.Format.Valid() {
		fail("format %q is not supported", cfg.Format)
	}
	if impliedGamesPerTeam(cfg.Format, max(len(cfg.Teams), 2)) == 0 && cfg.GamesPerTeam <= 0 {
		fail("gamesPerTeam must be positive")
	}
	if cfg.Format.IsSeries() && cfg.SeriesLength <= 0 {
		fail("seriesLength must be positive for %s", cfg.Format)
	}
	if cfg.Iterations < 0 {
		fail("iterations must not be negative")
	}
	if cfg.MinRestDays < 0 {
		fail("minRestDays must not be negative")
	}

	if len(cfg.Teams) < 2 {
		fail("at least two teams are required")
	}
	known := make(map[string]bool, len(cfg.Teams))
	for i, team := range cfg.Teams {
		if team.ID == "" {
			fail("teams[%d] has no identifier", i)
			continue
		}
		if known[team.ID] {
			fail("team id %s is not unique", team.ID)
		}
		known[team.ID] = true
	}

	for _, c := range cfg.Constraints {
		switch v := c.(type) {
		case models.NoPlayDayOfWeek:
			if !known[v.TeamID] {
				fail("%s references unknown team %s", v.Kind(), v.TeamID)
			}
		case models.NoPlayDateRange:
			if !known[v.TeamID] {
				fail("%s references unknown team %s", v.Kind(), v.TeamID)
			}
			if v.Start.After(v.End) {
				fail("%s for %s ends before it starts", v.Kind(), v.TeamID)
			}
		default:
			fail("constraint kind %s is not an institutional constraint", c.Kind())
		}
	}
	for _, r := range cfg.Rivalries {
		if !known[r.TeamA] || !known[r.TeamB] {
			fail("rivalry %s-%s references an unknown team", r.TeamA, r.TeamB)
		}
		if r.TeamA == r.TeamB {
			fail("rivalry %s pairs a team with itself", r.TeamA)
		}
	}
	for _, v := range cfg.VenueConflicts {
		if v.Start.After(v.End) {
			fail("venue window for %s ends before it starts", v.Venue)
		}
	}
	for _, g := range cfg.LockedGames {
		if !known[g.Home] || !known[g.Away] {
			fail("locked game %s-%s references an unknown team", g.Home, g.Away)
		}
		if g.Home == g.Away {
			fail("locked game pairs %s with itself", g.Home)
		}
		if g.Date.IsZero() {
			fail("locked game %s-%s has no date", g.Home, g.Away)
		}
	}

	w := cfg.Weights
	if w.TravelEfficiency < 0 || w.CompetitiveBalance < 0 || w.TVRevenue < 0 || w.StudentWellbeing < 0 {
		fail("optimization weights must not be negative")
	}

	report.Valid = len(report.Errors) == 0
	return report
}
