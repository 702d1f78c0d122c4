package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/season-scheduler/internal/models"
)

// MatchupUniverse is the required set of fixtures before dates are assigned. Locked games
// arrive with their dates already set.
type MatchupUniverse struct {
	Format    models.CompetitionFormat
	Matchups  []models.Matchup
	Target    int
	Tolerance int
	Rounds    int
}

// CountPerTeam returns the number of fixtures per team id.
func (u *MatchupUniverse) CountPerTeam() map[string]int {
	counts := make(map[string]int)
	for _, m := range u.Matchups {
		counts[m.HomeTeamID]++
		counts[m.AwayTeamID]++
	}
	return counts
}

// MatchupGenerator enumerates the matchup universe for a configuration.
type MatchupGenerator struct{}

// NewMatchupGenerator constructs the generator.
func NewMatchupGenerator() *MatchupGenerator {
	return &MatchupGenerator{}
}

type pairing struct {
	home   int
	away   int
	round  int
	locked *models.LockedGame
}

// Generate builds the universe. A *GenerationError means the per-team target cannot be met
// within tolerance for the team count and format.
func (g *MatchupGenerator) Generate(cfg *models.SeasonConfiguration) (*MatchupUniverse, error) {
	if cfg == nil {
		return nil, &GenerationError{Reason: "configuration is required"}
	}
	n := len(cfg.Teams)
	if n < 2 {
		return nil, &GenerationError{Format: cfg.Format, Reason: "at least two teams are required"}
	}
	index := cfg.TeamIndex()

	var (
		pairings []pairing
		rounds   int
		target   int
		tol      int
		perPair  = 1
		err      error
	)
	switch cfg.Format {
	case models.FormatSingleRoundRobin, models.FormatDualMeet:
		pairings, rounds = roundRobinPairings(n, false)
		target = n - 1
	case models.FormatDoubleRoundRobin:
		pairings, rounds = roundRobinPairings(n, true)
		target = 2 * (n - 1)
	case models.FormatPartialRoundRobin, models.FormatDivisional:
		target = cfg.GamesPerTeam
		pairings, rounds, tol, err = selectPairings(cfg, index, selectionOptions{
			target:      target,
			divisional:  cfg.Format == models.FormatDivisional,
			lockedPairs: true,
		})
	case models.FormatThreeGameSeries:
		perPair = cfg.SeriesLength
		if perPair <= 0 {
			perPair = defaultSeriesLength
		}
		pairings, rounds, target, tol, err = seriesPairings(cfg, index, perPair)
	default:
		return nil, &GenerationError{Format: cfg.Format, Reason: "unknown format"}
	}
	if err != nil {
		return nil, err
	}

	if err := applyLockedGames(pairings, cfg, index); err != nil {
		return nil, err
	}
	universe := &MatchupUniverse{
		Format:    cfg.Format,
		Target:    target * perPair,
		Tolerance: tol * perPair,
		Rounds:    rounds,
	}
	universe.Matchups = expandPairings(cfg, pairings, rounds, perPair)

	counts := universe.CountPerTeam()
	for _, team := range cfg.Teams {
		got := counts[team.ID]
		if got > universe.Target || got < universe.Target-universe.Tolerance {
			return nil, &GenerationError{
				Format:    cfg.Format,
				TeamID:    team.ID,
				Expected:  universe.Target,
				Actual:    got,
				Tolerance: universe.Tolerance,
			}
		}
	}
	return universe, nil
}

// circleRounds returns the rounds of the circle method. Odd counts get a bye slot. The fixed
// team alternates home and away, which keeps every team within one of even.
func circleRounds(n int) [][][2]int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	if n%2 == 1 {
		ids = append(ids, -1)
	}
	m := len(ids)
	rounds := make([][][2]int, 0, m-1)
	for r := 0; r < m-1; r++ {
		pairs := make([][2]int, 0, m/2)
		for i := 0; i < m/2; i++ {
			a, b := ids[i], ids[m-1-i]
			if a < 0 || b < 0 {
				continue
			}
			if i == 0 && r%2 == 1 {
				a, b = b, a
			}
			pairs = append(pairs, [2]int{a, b})
		}
		rounds = append(rounds, pairs)
		last := ids[m-1]
		copy(ids[2:], ids[1:m-1])
		ids[1] = last
	}
	return rounds
}

func roundRobinPairings(n int, double bool) ([]pairing, int) {
	rounds := circleRounds(n)
	out := make([]pairing, 0, n*(n-1))
	for r, round := range rounds {
		for _, p := range round {
			out = append(out, pairing{home: p[0], away: p[1], round: r})
		}
	}
	total := len(rounds)
	if !double {
		return out, total
	}
	first := len(out)
	for i := 0; i < first; i++ {
		p := out[i]
		out = append(out, pairing{home: p.away, away: p.home, round: p.round + total})
	}
	return out, 2 * total
}

type selectionOptions struct {
	target      int
	divisional  bool
	lockedPairs bool
}

type edge struct {
	a, b      int
	required  bool
	preferred bool
	fixed     bool
}

type edgeSet struct {
	n     int
	adj   [][]bool
	deg   []int
	edges []edge
}

func newEdgeSet(n int) *edgeSet {
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}
	return &edgeSet{n: n, adj: adj, deg: make([]int, n)}
}

func (s *edgeSet) add(e edge) {
	s.adj[e.a][e.b], s.adj[e.b][e.a] = true, true
	s.deg[e.a]++
	s.deg[e.b]++
	s.edges = append(s.edges, e)
}

func (s *edgeSet) remove(i int) {
	e := s.edges[i]
	s.adj[e.a][e.b], s.adj[e.b][e.a] = false, false
	s.deg[e.a]--
	s.deg[e.b]--
	s.edges = append(s.edges[:i], s.edges[i+1:]...)
}

func (s *edgeSet) open(a, b, target int) bool {
	return a != b && !s.adj[a][b] && s.deg[a] < target && s.deg[b] < target
}

// deficit is the number of games still missing across all teams.
func (s *edgeSet) deficit(target int) int {
	missing := 0
	for _, d := range s.deg {
		if d < target {
			missing += target - d
		}
	}
	return missing
}

// repair tops up teams left short by the greedy fill, first by pairing short teams directly
// and then by splitting an optional edge x-y into u-x and v-y. Preferred edges are split only
// when no plain edge can be.
func (s *edgeSet) repair(target int) {
	for guard := 0; guard < s.n*(target+1); guard++ {
		var short []int
		for t := 0; t < s.n; t++ {
			if s.deg[t] < target {
				short = append(short, t)
			}
		}
		if len(short) == 0 {
			return
		}
		if s.pairShort(short, target) {
			continue
		}
		u, v := short[0], short[0]
		if len(short) > 1 {
			v = short[1]
		} else if s.deg[u] > target-2 {
			return
		}
		if !s.splitEdge(u, v) {
			return
		}
	}
}

func (s *edgeSet) pairShort(short []int, target int) bool {
	for i := 0; i < len(short); i++ {
		for j := i + 1; j < len(short); j++ {
			if s.open(short[i], short[j], target) {
				s.add(edge{a: short[i], b: short[j]})
				return true
			}
		}
	}
	return false
}

func (s *edgeSet) splitEdge(u, v int) bool {
	for _, allowPreferred := range []bool{false, true} {
		for i, e := range s.edges {
			if e.required || (e.preferred && !allowPreferred) {
				continue
			}
			for _, xy := range [][2]int{{e.a, e.b}, {e.b, e.a}} {
				x, y := xy[0], xy[1]
				if x == u || x == v || y == u || y == v {
					continue
				}
				if s.adj[u][x] || s.adj[v][y] {
					continue
				}
				s.remove(i)
				s.add(edge{a: u, b: x})
				s.add(edge{a: v, b: y})
				return true
			}
		}
	}
	return false
}

// selectPairings picks a subset of pairs so each team reaches target games, protected
// rivalries and divisional pairs first. It returns the pairings, the number of rounds and
// the tolerance (1 when target*n is odd).
func selectPairings(cfg *models.SeasonConfiguration, index map[string]int, opts selectionOptions) ([]pairing, int, int, error) {
	n := len(cfg.Teams)
	target := opts.target
	if target <= 0 {
		return nil, 0, 0, &GenerationError{Format: cfg.Format, Reason: "games per team must be positive"}
	}
	if target > n-1 {
		return nil, 0, 0, &GenerationError{
			Format:   cfg.Format,
			Expected: target,
			Actual:   n - 1,
			Reason:   fmt.Sprintf("%d games per team needs more than the %d available opponents", target, n-1),
		}
	}

	tol := 0
	if (n*target)%2 == 1 {
		tol = 1
	}

	es := buildEdgeSet(cfg, index, opts, opts.divisional)
	if opts.divisional && es.deficit(target) > tol {
		es = buildEdgeSet(cfg, index, opts, false)
	}

	balance := make([]int, n)
	out := make([]pairing, 0, len(es.edges))
	for _, e := range es.edges {
		home, away := e.a, e.b
		if !e.fixed && balance[away] < balance[home] {
			home, away = away, home
		}
		balance[home]++
		balance[away]--
		out = append(out, pairing{home: home, away: away})
	}
	total := colourRounds(out, n)
	return out, total, tol, nil
}

// buildEdgeSet adds locked pairs and protected rivalries as required edges, then in-division
// pairs when preferDivision is set, then fills along the circle rounds and repairs.
func buildEdgeSet(cfg *models.SeasonConfiguration, index map[string]int, opts selectionOptions, preferDivision bool) *edgeSet {
	target := opts.target
	es := newEdgeSet(len(cfg.Teams))
	if opts.lockedPairs {
		for _, lg := range cfg.LockedGames {
			h, a := index[lg.Home], index[lg.Away]
			if h != a && !es.adj[h][a] {
				es.add(edge{a: h, b: a, required: true, fixed: true})
			}
		}
	}

	rivals := append([]models.ProtectedRivalry(nil), cfg.Rivalries...)
	sort.SliceStable(rivals, func(i, j int) bool { return rivals[i].Priority > rivals[j].Priority })
	for _, r := range rivals {
		a, b := index[r.TeamA], index[r.TeamB]
		if es.open(a, b, target) {
			es.add(edge{a: a, b: b, required: true})
		}
	}

	rounds := circleRounds(len(cfg.Teams))
	if preferDivision {
		for _, round := range rounds {
			for _, p := range round {
				if cfg.Teams[p[0]].Division == cfg.Teams[p[1]].Division && es.open(p[0], p[1], target) {
					es.add(edge{a: p[0], b: p[1], preferred: true})
				}
			}
		}
	}
	for _, round := range rounds {
		for _, p := range round {
			if es.open(p[0], p[1], target) {
				es.add(edge{a: p[0], b: p[1]})
			}
		}
	}
	es.repair(target)
	return es
}

// colourRounds assigns each pairing the earliest round in which neither team plays yet.
func colourRounds(pairings []pairing, n int) int {
	busy := make([]map[int]bool, n)
	for i := range busy {
		busy[i] = make(map[int]bool)
	}
	total := 0
	for i := range pairings {
		p := &pairings[i]
		r := 0
		for busy[p.home][r] || busy[p.away][r] {
			r++
		}
		p.round = r
		busy[p.home][r], busy[p.away][r] = true, true
		if r+1 > total {
			total = r + 1
		}
	}
	return total
}

// seriesPairings returns one pairing per series. Every full round robin of series is played
// in turn with hosts alternating between cycles; the remainder is a partial selection hosted
// by the team that visited in the last cycle.
func seriesPairings(cfg *models.SeasonConfiguration, index map[string]int, length int) ([]pairing, int, int, int, error) {
	n := len(cfg.Teams)
	series := (cfg.GamesPerTeam + length - 1) / length
	cycles, rest := 0, series
	if series > 0 {
		cycles, rest = series/(n-1), series%(n-1)
	}
	if cycles == 0 {
		out, rounds, tol, err := selectPairings(cfg, index, selectionOptions{target: series, lockedPairs: true})
		return out, rounds, series, tol, err
	}

	var out []pairing
	rounds := 0
	for c := 0; c < cycles; c++ {
		cycle, cycleRounds := roundRobinPairings(n, false)
		for _, p := range cycle {
			if c%2 == 1 {
				p.home, p.away = p.away, p.home
			}
			p.round += rounds
			out = append(out, p)
		}
		rounds += cycleRounds
	}
	if rest == 0 {
		return out, rounds, series, 0, nil
	}

	extra, extraRounds, tol, err := selectPairings(cfg, index, selectionOptions{target: rest})
	if err != nil {
		return nil, 0, 0, 0, err
	}
	host := make(map[[2]int]int, len(out))
	for _, p := range out {
		host[[2]int{min(p.home, p.away), max(p.home, p.away)}] = p.home
	}
	for _, p := range extra {
		key := [2]int{min(p.home, p.away), max(p.home, p.away)}
		if host[key] == p.home {
			p.home, p.away = p.away, p.home
		}
		p.round += rounds
		out = append(out, p)
	}
	return out, rounds + extraRounds, series, tol, nil
}

// applyLockedGames binds each locked game to a generated pairing, preferring the same
// orientation. A locked game left without a free pairing is a conflict: the pairing is
// already taken by another locked game or the format schedules it fewer times.
func applyLockedGames(pairings []pairing, cfg *models.SeasonConfiguration, index map[string]int) error {
	for _, lg := range cfg.LockedGames {
		lg := lg
		h, a := index[lg.Home], index[lg.Away]
		match := -1
		for i, p := range pairings {
			if p.locked == nil && p.home == h && p.away == a {
				match = i
				break
			}
		}
		if match < 0 {
			for i, p := range pairings {
				if p.locked == nil && p.home == a && p.away == h {
					match = i
					break
				}
			}
		}
		if match < 0 {
			return &GenerationError{
				Format: cfg.Format,
				TeamID: lg.Home,
				Reason: fmt.Sprintf("locked game %s vs %s on %s conflicts with another locked game: %s schedules no further %s-%s pairing",
					lg.Home, lg.Away, lg.Date.Format(dateLayout), cfg.Format, lg.Home, lg.Away),
			}
		}
		pairings[match].home, pairings[match].away = h, a
		pairings[match].locked = &lg
	}
	return nil
}

func expandPairings(cfg *models.SeasonConfiguration, pairings []pairing, rounds, perPair int) []models.Matchup {
	weeks := cfg.SeasonWeeks()
	if rounds <= 0 {
		rounds = 1
	}
	weekFor := func(round int) int {
		return 1 + round*weeks/rounds
	}
	out := make([]models.Matchup, 0, len(pairings)*perPair)
	for i, p := range pairings {
		home, away := cfg.Teams[p.home], cfg.Teams[p.away]
		base := models.Matchup{
			HomeTeamID: home.ID,
			AwayTeamID: away.ID,
			Week:       weekFor(p.round),
			Type:       pairingType(home.Conference, away.Conference),
			Venue:      home.Venue,
		}
		if cfg.Format.IsSeries() {
			base.Type = models.MatchupSeries
			base.SeriesID = fmt.Sprintf("S%03d-%s-%s", i+1, home.ID, away.ID)
			for g := 1; g <= perPair; g++ {
				m := base
				m.SeriesGame = g
				if g == 1 && p.locked != nil {
					m = lockMatchup(m, cfg, *p.locked)
				}
				out = append(out, m)
			}
			continue
		}
		if p.locked != nil {
			base = lockMatchup(base, cfg, *p.locked)
			base.Type = p.locked.Type
		}
		out = append(out, base)
	}
	return out
}

func lockMatchup(m models.Matchup, cfg *models.SeasonConfiguration, lg models.LockedGame) models.Matchup {
	m.Locked = true
	m.Date = models.DateOnly(lg.Date)
	m.Week = weekOf(cfg.SeasonStart, m.Date)
	return m
}

// weekOf returns the 1-based season week of day. Days before the season yield week <= 0.
func weekOf(seasonStart, day time.Time) int {
	offset := models.DaysBetween(seasonStart, day)
	if offset < 0 {
		return 1 + (offset-6)/7
	}
	return 1 + offset/7
}
