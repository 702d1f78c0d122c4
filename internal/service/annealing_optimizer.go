package service

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
)

const (
	defaultInitialTemperature = 0.05
	defaultFinalTemperature   = 1e-4
	minPatience               = 250
)

// StopReason explains why a search loop ended.
type StopReason string

const (
	StopBudget    StopReason = "budget"
	StopStalled   StopReason = "stalled"
	StopCancelled StopReason = "cancelled"
)

// SearchLimits are the knobs a running search re-reads every iteration.
type SearchLimits struct {
	Iterations    int
	ProgressEvery int
}

// SearchProgress is handed to the progress hook at the configured cadence.
type SearchProgress struct {
	Iteration   int
	Iterations  int
	Temperature float64
	Accepted    int
	Current     models.Evaluation
	Best        models.Evaluation
}

// CoolingOptions overrides the temperature schedule and stall patience. Zero values keep the defaults.
type CoolingOptions struct {
	InitialTemperature float64
	FinalTemperature   float64
	Patience           int
}

// SearchOptions tunes one Optimize call. Zero values fall back to the configuration.
type SearchOptions struct {
	Iterations         int
	ProgressEvery      int
	Patience           int
	InitialTemperature float64
	FinalTemperature   float64

	// Checkpoint runs before every iteration. A non-nil error stops the search and is
	// returned with the best schedule found so far.
	Checkpoint func(ctx context.Context) error
	Progress   func(SearchProgress)
	Limits     func() SearchLimits
}

func (o SearchOptions) withDefaults(cfg *models.SeasonConfiguration) SearchOptions {
	if o.Iterations <= 0 {
		o.Iterations = cfg.Iterations
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = defaultProgressEvery(o.Iterations)
	}
	if o.Patience <= 0 {
		o.Patience = max(minPatience, o.Iterations/4)
	}
	if o.InitialTemperature <= 0 {
		o.InitialTemperature = defaultInitialTemperature
	}
	if o.FinalTemperature <= 0 || o.FinalTemperature > o.InitialTemperature {
		o.FinalTemperature = math.Min(defaultFinalTemperature, o.InitialTemperature)
	}
	return o
}

func defaultProgressEvery(iterations int) int {
	return max(1, iterations/100)
}

// temperature decays geometrically from the initial to the final temperature over budget.
func (o SearchOptions) temperature(iter, budget int) float64 {
	if budget <= 1 {
		return o.InitialTemperature
	}
	frac := math.Min(1, float64(iter)/float64(budget-1))
	return o.InitialTemperature * math.Pow(o.FinalTemperature/o.InitialTemperature, frac)
}

// SearchResult is the best schedule found plus search statistics.
type SearchResult struct {
	Schedule   *models.Schedule
	Evaluation models.Evaluation
	Iterations int
	Accepted   int
	Stopped    StopReason
}

// AnnealingOptimizer assigns dates to a matchup universe by simulated annealing.
type AnnealingOptimizer struct {
	logger *zap.Logger
}

// NewAnnealingOptimizer constructs the optimizer.
func NewAnnealingOptimizer(logger *zap.Logger) *AnnealingOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnealingOptimizer{logger: logger}
}

// Optimize searches for the best dated schedule. The same configuration, universe and seed
// always produce the same schedule. A *ConstraintsUnsatisfiedError is returned together
// with the result when hard violations remain. Cancellation returns the best schedule so
// far alongside the context or checkpoint error.
func (o *AnnealingOptimizer) Optimize(ctx context.Context, cfg *models.SeasonConfiguration, universe *MatchupUniverse, opts SearchOptions) (*SearchResult, error) {
	if cfg == nil || universe == nil {
		return nil, &GenerationError{Reason: "configuration and matchup universe are required"}
	}
	opts = opts.withDefaults(cfg)
	evaluator := NewConstraintEvaluator(cfg)
	state := newSearchState(evaluator, universe.Matchups)
	state.initialise()

	rng := rand.New(rand.NewSource(cfg.Seed))
	current := evaluator.evaluate(state.fx, state.days, false)
	best := current
	bestDays := append([]int(nil), state.days...)

	budget := opts.Iterations
	progressEvery := opts.ProgressEvery
	performed, accepted, sinceImprovement := 0, 0, 0
	reason := StopBudget
	var stopErr error

	o.logger.Sugar().Debugw("annealing started",
		"matchups", len(universe.Matchups),
		"units", len(state.units),
		"iterations", budget,
		"seed", cfg.Seed,
		"hardViolations", current.HardViolations,
	)

	for {
		if opts.Limits != nil {
			limits := opts.Limits()
			if limits.Iterations > 0 {
				budget = limits.Iterations
			}
			if limits.ProgressEvery > 0 {
				progressEvery = limits.ProgressEvery
			}
		}
		if performed >= budget || len(state.units) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			stopErr, reason = err, StopCancelled
			break
		}
		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(ctx); err != nil {
				stopErr, reason = err, StopCancelled
				break
			}
		}

		temp := opts.temperature(performed, budget)
		performed++
		if undo := state.propose(rng); undo != nil {
			candidate := evaluator.evaluate(state.fx, state.days, false)
			if acceptMove(current, candidate, temp, rng) {
				current = candidate
				accepted++
			} else {
				undo()
			}
		}

		if current.Better(best) {
			best = current
			copy(bestDays, state.days)
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}

		if opts.Progress != nil && performed%progressEvery == 0 {
			opts.Progress(SearchProgress{
				Iteration:   performed,
				Iterations:  budget,
				Temperature: temp,
				Accepted:    accepted,
				Current:     current,
				Best:        best,
			})
		}
		if best.HardViolations == 0 && sinceImprovement >= opts.Patience {
			reason = StopStalled
			break
		}
	}

	schedule := state.materialise(cfg, universe.Matchups, bestDays)
	final := evaluator.Evaluate(schedule)
	schedule.Metrics = models.ScheduleMetrics{
		HardViolations: final.HardViolations,
		SoftScore:      final.SoftScore,
		Breakdown:      final.Breakdown,
		Iterations:     performed,
		Seed:           cfg.Seed,
	}
	result := &SearchResult{
		Schedule:   schedule,
		Evaluation: final,
		Iterations: performed,
		Accepted:   accepted,
		Stopped:    reason,
	}

	o.logger.Sugar().Debugw("annealing finished",
		"iterations", performed,
		"accepted", accepted,
		"stopped", reason,
		"hardViolations", final.HardViolations,
		"softScore", final.SoftScore,
	)

	if stopErr != nil {
		return result, stopErr
	}
	if final.HardViolations > 0 {
		return result, &ConstraintsUnsatisfiedError{
			HardViolations: final.HardViolations,
			ByKind:         final.Breakdown.HardByKind,
			Iterations:     performed,
		}
	}
	return result, nil
}

// acceptMove never trades hard violations for soft gains. Equal hard counts fall back to
// the Metropolis rule on the soft score.
func acceptMove(current, candidate models.Evaluation, temp float64, rng *rand.Rand) bool {
	switch {
	case candidate.HardViolations < current.HardViolations:
		return true
	case candidate.HardViolations > current.HardViolations:
		return false
	case candidate.SoftScore <= current.SoftScore:
		return true
	}
	return rng.Float64() < math.Exp(-(candidate.SoftScore-current.SoftScore)/temp)
}

// searchUnit is a block of matchups that moves together: one game, or a whole series.
type searchUnit struct {
	members []int
	week    int
	start   int
}

type searchState struct {
	eval  *ConstraintEvaluator
	fx    []fixture
	days  []int
	units []searchUnit
	cands []int
}

func newSearchState(eval *ConstraintEvaluator, matchups []models.Matchup) *searchState {
	fx, days := eval.compile(matchups)
	s := &searchState{eval: eval, fx: fx, days: days}
	for d := 0; d <= eval.lastDay; d++ {
		if eval.playable(d) {
			s.cands = append(s.cands, d)
		}
	}

	lockedSeries := make(map[string]bool)
	for _, m := range matchups {
		if m.Locked && m.SeriesID != "" {
			lockedSeries[m.SeriesID] = true
		}
	}
	seriesUnit := make(map[string]int)
	for i, m := range matchups {
		if m.Locked {
			continue
		}
		if m.SeriesID != "" && !lockedSeries[m.SeriesID] {
			if u, ok := seriesUnit[m.SeriesID]; ok {
				s.units[u].members = append(s.units[u].members, i)
				continue
			}
			seriesUnit[m.SeriesID] = len(s.units)
		}
		s.units = append(s.units, searchUnit{members: []int{i}, week: m.Week, start: -1})
	}
	for u := range s.units {
		members := s.units[u].members
		sort.SliceStable(members, func(a, b int) bool {
			return matchups[members[a]].SeriesGame < matchups[members[b]].SeriesGame
		})
	}
	return s
}

func (s *searchState) limit(u int) int {
	return len(s.cands) - len(s.units[u].members) + 1
}

// initialise places units greedily, nearest to their hinted week, on days where neither
// team is booked or blacked out. Units that cannot avoid a blackout still avoid double booking.
func (s *searchState) initialise() {
	busy := make(map[[2]int]bool)
	mark := func(i, d int) {
		f := s.fx[i]
		if f.home >= 0 {
			busy[[2]int{f.home, d}] = true
		}
		if f.away >= 0 {
			busy[[2]int{f.away, d}] = true
		}
	}
	for i, f := range s.fx {
		if f.locked && s.days[i] != unassignedDay {
			mark(i, s.days[i])
		}
	}
	for u := range s.units {
		start := s.firstFit(u, busy)
		s.place(u, start)
		if start < 0 {
			continue
		}
		for _, m := range s.units[u].members {
			mark(m, s.days[m])
		}
	}
}

func (s *searchState) firstFit(u int, busy map[[2]int]bool) int {
	limit := s.limit(u)
	if limit <= 0 {
		return -1
	}
	base := sort.SearchInts(s.cands, (s.units[u].week-1)*7)
	if base >= limit {
		base = limit - 1
	}
	for _, strict := range []bool{true, false} {
		for delta := 0; delta < limit; delta++ {
			if ci := base + delta; ci < limit && s.fits(u, ci, busy, strict) {
				return ci
			}
			if ci := base - delta; delta > 0 && ci >= 0 && s.fits(u, ci, busy, strict) {
				return ci
			}
		}
	}
	return base
}

// fits checks double booking and, when strict, blackouts and venue windows.
func (s *searchState) fits(u, ci int, busy map[[2]int]bool, strict bool) bool {
	for k, m := range s.units[u].members {
		d := s.cands[ci+k]
		f := s.fx[m]
		if busy[[2]int{f.home, d}] || busy[[2]int{f.away, d}] {
			return false
		}
		if !strict {
			continue
		}
		if s.eval.teamBlocked(f.home, d) || s.eval.teamBlocked(f.away, d) {
			return false
		}
		if f.venue != "" && s.eval.venueBlocked(f.venue, d) {
			return false
		}
	}
	return true
}

func (s *searchState) place(u, start int) {
	unit := &s.units[u]
	unit.start = start
	for k, m := range unit.members {
		if start < 0 {
			s.days[m] = unassignedDay
			continue
		}
		s.days[m] = s.cands[start+k]
	}
}

func (s *searchState) moveTo(u, start int) func() {
	prev := s.units[u].start
	s.place(u, start)
	return func() { s.place(u, prev) }
}

// propose applies one random move and returns its undo, or nil when the move is a no-op.
// Moves: reassign a unit, swap two equal-sized units, or shift a unit a few playable days.
func (s *searchState) propose(rng *rand.Rand) func() {
	u := rng.Intn(len(s.units))
	limit := s.limit(u)
	if limit <= 0 {
		return nil
	}
	unit := s.units[u]
	r := rng.Float64()
	switch {
	case r < 0.4 || unit.start < 0:
		target := rng.Intn(limit)
		if target == unit.start {
			return nil
		}
		return s.moveTo(u, target)
	case r < 0.7:
		v := rng.Intn(len(s.units))
		other := s.units[v]
		if v == u || len(other.members) != len(unit.members) || other.start < 0 || other.start == unit.start {
			return nil
		}
		undoU := s.moveTo(u, other.start)
		undoV := s.moveTo(v, unit.start)
		return func() {
			undoV()
			undoU()
		}
	default:
		delta := rng.Intn(7) + 1
		if rng.Intn(2) == 0 {
			delta = -delta
		}
		target := min(max(unit.start+delta, 0), limit-1)
		if target == unit.start {
			return nil
		}
		return s.moveTo(u, target)
	}
}

func (s *searchState) materialise(cfg *models.SeasonConfiguration, matchups []models.Matchup, days []int) *models.Schedule {
	out := append([]models.Matchup(nil), matchups...)
	for i := range out {
		if out[i].Locked {
			continue
		}
		if days[i] == unassignedDay {
			out[i].Date = time.Time{}
			continue
		}
		out[i].Date = s.eval.date(days[i])
		out[i].Week = weekOf(cfg.SeasonStart, out[i].Date)
	}
	schedule := &models.Schedule{
		Sport:       cfg.Sport,
		Format:      cfg.Format,
		SeasonStart: models.DateOnly(cfg.SeasonStart),
		SeasonEnd:   models.DateOnly(cfg.SeasonEnd),
		Matchups:    out,
	}
	schedule.SortByDate()
	return schedule
}
