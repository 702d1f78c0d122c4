package service

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/season-scheduler/internal/models"
)

const (
	unassignedDay = math.MinInt32
	earthRadiusKm = 6371.0
)

type dayRange struct {
	from, to int
}

func (r dayRange) covers(d int) bool {
	return d >= r.from && d <= r.to
}

// fixture is the index-based form of a matchup used on the hot path.
type fixture struct {
	home       int
	away       int
	venue      string
	locked     bool
	seriesID   string
	seriesGame int
}

// ConstraintEvaluator scores complete schedules against one configuration. It is read-only
// after construction and safe for concurrent use.
type ConstraintEvaluator struct {
	cfg      *models.SeasonConfiguration
	index    map[string]int
	start    time.Time
	lastDay  int
	gameDays [7]bool
	anyDay   bool

	blockedWeekday [][7]bool
	blockedRanges  [][]dayRange
	venueWindows   map[string][]dayRange
	lockedSlots    map[[3]int]int
	rivalry        map[[2]int]int
	locations      []*models.GeoPoint
	teamVenues     []string
}

// NewConstraintEvaluator precomputes per-team lookups for cfg.
func NewConstraintEvaluator(cfg *models.SeasonConfiguration) *ConstraintEvaluator {
	n := len(cfg.Teams)
	e := &ConstraintEvaluator{
		cfg:            cfg,
		index:          cfg.TeamIndex(),
		start:          models.DateOnly(cfg.SeasonStart),
		lastDay:        cfg.SeasonDays() - 1,
		blockedWeekday: make([][7]bool, n),
		blockedRanges:  make([][]dayRange, n),
		venueWindows:   make(map[string][]dayRange),
		lockedSlots:    make(map[[3]int]int),
		rivalry:        make(map[[2]int]int),
		locations:      make([]*models.GeoPoint, n),
		teamVenues:     make([]string, n),
	}
	if cfg.ChampionshipDate != nil {
		if champ := e.day(*cfg.ChampionshipDate); champ >= 0 && champ-1 < e.lastDay {
			e.lastDay = champ - 1
		}
	}
	e.anyDay = len(cfg.GameDays) == 0
	for _, wd := range cfg.GameDays {
		e.gameDays[wd] = true
	}
	for i, team := range cfg.Teams {
		e.locations[i] = team.Location
		e.teamVenues[i] = team.Venue
	}
	for _, c := range cfg.Constraints {
		switch v := c.(type) {
		case models.NoPlayDayOfWeek:
			if t, ok := e.index[v.TeamID]; ok {
				e.blockedWeekday[t][v.Weekday] = true
			}
		case models.NoPlayDateRange:
			if t, ok := e.index[v.TeamID]; ok {
				e.blockedRanges[t] = append(e.blockedRanges[t], dayRange{from: e.day(v.Start), to: e.day(v.End)})
			}
		}
	}
	for _, w := range cfg.VenueConflicts {
		e.venueWindows[w.Venue] = append(e.venueWindows[w.Venue], dayRange{from: e.day(w.Start), to: e.day(w.End)})
	}
	for _, lg := range cfg.LockedGames {
		h, okH := e.index[lg.Home]
		a, okA := e.index[lg.Away]
		if okH && okA {
			e.lockedSlots[[3]int{h, a, e.day(lg.Date)}]++
		}
	}
	for _, r := range cfg.Rivalries {
		a, okA := e.index[r.TeamA]
		b, okB := e.index[r.TeamB]
		if okA && okB {
			e.rivalry[unorderedKey(a, b)] = r.Priority + 1
		}
	}
	return e
}

func unorderedKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func (e *ConstraintEvaluator) day(t time.Time) int {
	return models.DaysBetween(e.start, t)
}

func (e *ConstraintEvaluator) date(d int) time.Time {
	return e.start.AddDate(0, 0, d)
}

func (e *ConstraintEvaluator) weekday(d int) time.Weekday {
	return time.Weekday(((int(e.start.Weekday())+d)%7 + 7) % 7)
}

// playable reports whether a non-locked game may be placed on day d.
func (e *ConstraintEvaluator) playable(d int) bool {
	if d < 0 || d > e.lastDay {
		return false
	}
	return e.anyDay || e.gameDays[e.weekday(d)]
}

// teamBlocked reports whether team t has an institutional blackout on day d.
func (e *ConstraintEvaluator) teamBlocked(t, d int) bool {
	if t < 0 {
		return false
	}
	if e.blockedWeekday[t][e.weekday(d)] {
		return true
	}
	for _, r := range e.blockedRanges[t] {
		if r.covers(d) {
			return true
		}
	}
	return false
}

func (e *ConstraintEvaluator) venueBlocked(venue string, d int) bool {
	for _, r := range e.venueWindows[venue] {
		if r.covers(d) {
			return true
		}
	}
	return false
}

func (e *ConstraintEvaluator) compile(matchups []models.Matchup) ([]fixture, []int) {
	fx := make([]fixture, len(matchups))
	days := make([]int, len(matchups))
	for i, m := range matchups {
		f := fixture{home: -1, away: -1, venue: m.Venue, locked: m.Locked, seriesID: m.SeriesID, seriesGame: m.SeriesGame}
		if h, ok := e.index[m.HomeTeamID]; ok {
			f.home = h
			if f.venue == "" {
				f.venue = e.teamVenues[h]
			}
		}
		if a, ok := e.index[m.AwayTeamID]; ok {
			f.away = a
		}
		fx[i] = f
		days[i] = unassignedDay
		if m.Assigned() {
			days[i] = e.day(m.Date)
		}
	}
	return fx, days
}

// Evaluate scores a schedule. It is pure: the same schedule always yields the same result.
func (e *ConstraintEvaluator) Evaluate(schedule *models.Schedule) models.Evaluation {
	if schedule == nil {
		return e.evaluate(nil, nil, true)
	}
	fx, days := e.compile(schedule.Matchups)
	return e.evaluate(fx, days, true)
}

// EvaluateSchedule is a one-shot convenience over NewConstraintEvaluator.
func EvaluateSchedule(cfg *models.SeasonConfiguration, schedule *models.Schedule) models.Evaluation {
	return NewConstraintEvaluator(cfg).Evaluate(schedule)
}

type teamGame struct {
	day     int
	fixture int
	home    bool
}

func (e *ConstraintEvaluator) evaluate(fx []fixture, days []int, collect bool) models.Evaluation {
	byKind := make(map[models.ConstraintKind]int, len(models.HardConstraintKinds))
	for _, kind := range models.HardConstraintKinds {
		byKind[kind] = 0
	}
	var violations []models.Violation
	report := func(kind models.ConstraintKind, i, team, d int, venue string) {
		byKind[kind]++
		if !collect {
			return
		}
		v := models.Violation{Kind: kind, Matchup: i, Venue: venue}
		if team >= 0 {
			v.TeamID = e.cfg.Teams[team].ID
		}
		if d != unassignedDay {
			v.Date = e.date(d)
		}
		violations = append(violations, v)
	}

	n := len(e.cfg.Teams)
	games := make([][]teamGame, n)
	remainingLocked := make(map[[3]int]int, len(e.lockedSlots))
	for k, v := range e.lockedSlots {
		remainingLocked[k] = v
	}

	for i, f := range fx {
		d := days[i]
		if d == unassignedDay {
			report(models.ConstraintUnassigned, i, -1, d, "")
			continue
		}
		if f.home >= 0 && f.away >= 0 {
			key := [3]int{f.home, f.away, d}
			if remainingLocked[key] > 0 {
				remainingLocked[key]--
			}
		}
		if !f.locked && !e.playable(d) {
			report(models.ConstraintOutOfSeason, i, -1, d, "")
		}
		for _, t := range [2]int{f.home, f.away} {
			if t < 0 {
				continue
			}
			if e.blockedWeekday[t][e.weekday(d)] {
				report(models.ConstraintNoPlayDayOfWeek, i, t, d, "")
			}
			for _, r := range e.blockedRanges[t] {
				if r.covers(d) {
					report(models.ConstraintNoPlayDateRange, i, t, d, "")
					break
				}
			}
		}
		if f.venue != "" && e.venueBlocked(f.venue, d) {
			report(models.ConstraintVenueConflict, i, -1, d, f.venue)
		}
		if f.home >= 0 {
			games[f.home] = append(games[f.home], teamGame{day: d, fixture: i, home: true})
		}
		if f.away >= 0 {
			games[f.away] = append(games[f.away], teamGame{day: d, fixture: i})
		}
	}

	for _, lg := range e.cfg.LockedGames {
		h, okH := e.index[lg.Home]
		a, okA := e.index[lg.Away]
		if !okH || !okA {
			continue
		}
		key := [3]int{h, a, e.day(lg.Date)}
		if remainingLocked[key] > 0 {
			remainingLocked[key]--
			report(models.ConstraintLockedGame, -1, h, key[2], "")
		}
	}

	for t := range games {
		g := games[t]
		sort.Slice(g, func(i, j int) bool {
			if g[i].day != g[j].day {
				return g[i].day < g[j].day
			}
			return g[i].fixture < g[j].fixture
		})
		for k := 1; k < len(g); k++ {
			if g[k].day == g[k-1].day {
				report(models.ConstraintDoubleBooking, g[k].fixture, t, g[k].day, "")
			}
		}
	}

	hard := 0
	for _, kind := range models.HardConstraintKinds {
		hard += byKind[kind]
	}

	objectives := models.ObjectiveScores{
		TravelEfficiency:   e.travelScore(fx, games),
		CompetitiveBalance: e.balanceScore(games),
		TVRevenue:          e.tvScore(fx, days),
		StudentWellbeing:   e.wellbeingScore(fx, games),
	}
	weighted := objectives.Weighted(e.cfg.Weights)
	return models.Evaluation{
		HardViolations: hard,
		SoftScore:      weighted.Sum(),
		Breakdown: models.ScoreBreakdown{
			HardByKind: byKind,
			Objectives: objectives,
			Weighted:   weighted,
		},
		Violations: violations,
	}
}

// squash maps a non-negative penalty onto [0, 1).
func squash(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (1 + x)
}

func haversineKm(a, b *models.GeoPoint) float64 {
	if a == nil || b == nil {
		return 0
	}
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// travelScore compares the distance of each team's chained road trips with going home
// between every away game. 0 means no travel; 1 means no trip was chained.
func (e *ConstraintEvaluator) travelScore(fx []fixture, games [][]teamGame) float64 {
	var travelled, baseline float64
	for t, g := range games {
		home := e.locations[t]
		if home == nil {
			continue
		}
		at := home
		for _, tg := range g {
			f := fx[tg.fixture]
			site := home
			if !tg.home {
				site = e.locations[f.home]
				baseline += 2 * haversineKm(home, site)
			}
			travelled += haversineKm(at, site)
			at = site
		}
		travelled += haversineKm(at, home)
	}
	if baseline == 0 {
		return 0
	}
	return math.Min(1, travelled/baseline)
}

// balanceScore penalises uneven home/away splits, uneven rest between teams and long
// home or away streaks.
func (e *ConstraintEvaluator) balanceScore(games [][]teamGame) float64 {
	n := len(games)
	if n == 0 {
		return 0
	}
	diffs := make([]float64, 0, n)
	rests := make([]float64, 0, n)
	streakExcess := 0
	for _, g := range games {
		diff := 0
		streak := 0
		for k, tg := range g {
			if tg.home {
				diff++
			} else {
				diff--
			}
			if k > 0 && g[k-1].home == tg.home {
				streak++
				if streak >= 2 {
					streakExcess++
				}
			} else {
				streak = 0
			}
		}
		diffs = append(diffs, float64(diff))
		if len(g) > 1 {
			rests = append(rests, float64(g[len(g)-1].day-g[0].day)/float64(len(g)-1))
		}
	}
	x := variance(diffs) + variance(rests)/7 + float64(streakExcess)/float64(n)
	return squash(x)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

// tvScore is 1 minus the priority-weighted desirability of rivalry dates. Weekends late in
// the season are the most desirable.
func (e *ConstraintEvaluator) tvScore(fx []fixture, days []int) float64 {
	if len(e.rivalry) == 0 {
		return 0
	}
	var weight, value float64
	span := float64(e.lastDay)
	if span <= 0 {
		span = 1
	}
	for i, f := range fx {
		if f.home < 0 || f.away < 0 || days[i] == unassignedDay {
			continue
		}
		priority, ok := e.rivalry[unorderedKey(f.home, f.away)]
		if !ok {
			continue
		}
		d := days[i]
		desirability := 0.0
		switch e.weekday(d) {
		case time.Friday, time.Saturday, time.Sunday:
			desirability += 0.5
		}
		late := math.Max(0, math.Min(1, float64(d)/span))
		desirability += 0.5 * late
		weight += float64(priority)
		value += float64(priority) * desirability
	}
	if weight == 0 {
		return 0
	}
	return 1 - value/weight
}

// wellbeingScore counts back-to-back road games and rest shortfalls per game played.
// Consecutive games of one series are exempt from the rest rule.
func (e *ConstraintEvaluator) wellbeingScore(fx []fixture, games [][]teamGame) float64 {
	minRest := e.cfg.MinRestDays
	if minRest <= 0 {
		minRest = defaultMinRestDays
	}
	penalty := 0
	played := 0
	for _, g := range games {
		played += len(g)
		for k := 1; k < len(g); k++ {
			prev, cur := g[k-1], g[k]
			gap := cur.day - prev.day
			if !prev.home && !cur.home && gap <= 1 {
				penalty++
			}
			pf, cf := fx[prev.fixture], fx[cur.fixture]
			if pf.seriesID != "" && pf.seriesID == cf.seriesID {
				continue
			}
			if rest := gap - 1; rest < minRest {
				penalty += minRest - rest
			}
		}
	}
	if played == 0 {
		return 0
	}
	return squash(float64(penalty) / float64(played))
}
