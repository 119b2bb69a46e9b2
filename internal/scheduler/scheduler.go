package scheduler

import (
	"context"
	"math/rand"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/infra/dsa"
	"github.com/trane-project/trane/internal/infra/stratselect"
	"github.com/trane-project/trane/internal/propagate"
	"github.com/trane-project/trane/internal/unitcache"
)

// Candidate is one exercise selected for a batch, paired with its manifest
// reference (spec §4.7: "get_exercise_batch(filter?) → list<(exercise_handle,
// manifest_ref)>").
type Candidate struct {
	Exercise domain.UnitHandle
	Manifest domain.ManifestRef
}

// Scheduler is the entry point for batch assembly (spec §4.7) and trial
// ingestion (spec §4.8).
type Scheduler struct {
	g          *graph.Graph
	cache      *unitcache.Cache
	trials     domain.TrialLog
	propagator *propagate.Propagator
	blacklist  domain.Blacklist
	manifests  domain.ManifestStore
	antiRepeat *dsa.AntiRepeat
	strategy   *stratselect.Selector

	opts Options
	rng  *rand.Rand
}

// Config wires a Scheduler's collaborators.
type Config struct {
	Graph      *graph.Graph
	Cache      *unitcache.Cache
	Trials     domain.TrialLog
	Propagator *propagate.Propagator
	Blacklist  domain.Blacklist
	Manifests  domain.ManifestStore
	Options    Options
}

// New constructs a Scheduler, validating Options (spec §7 InvalidConfig).
func New(cfg Config) (*Scheduler, error) {
	if cfg.Options.BatchSize == 0 {
		cfg.Options = DefaultOptions()
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		g:          cfg.Graph,
		cache:      cfg.Cache,
		trials:     cfg.Trials,
		propagator: cfg.Propagator,
		blacklist:  cfg.Blacklist,
		manifests:  cfg.Manifests,
		antiRepeat: dsa.NewAntiRepeat(cfg.Options.AntiRepeat),
		strategy:   stratselect.NewSelector(cfg.Options.Strategy),
		opts:       cfg.Options,
		rng:        newRand(cfg.Options.Seed),
	}, nil
}

// candidateEntry is a traversal-collected exercise awaiting bucketing.
type candidateEntry struct {
	exercise domain.UnitHandle
	score    float32
	known    bool
}

// GetExerciseBatch runs Phases A-E: root selection, randomized DFS
// collection, mastery-window bucketing, quota sampling, and anti-repeat
// weighting (spec §4.7). ctx is polled cooperatively between node visits
// and at each frontier pop (spec §5).
func (s *Scheduler) GetExerciseBatch(ctx context.Context, filter Filter) ([]Candidate, error) {
	if filter == nil {
		filter = NoFilter()
	}

	roots := filter.Roots(s.g)
	targetPoolSize := s.opts.BatchSize * s.opts.CandidateMultiple

	strat := s.strategy.Select(stratselect.Context{RootKind: "course", DepthBucket: stratselect.DepthBucket(0)})

	var candidates []candidateEntry
	var err error
	if strat == stratselect.BestFirst {
		candidates, err = s.traverseBestFirst(ctx, filter, roots, targetPoolSize)
	} else {
		candidates, err = s.traverseStackDFS(ctx, filter, roots, targetPoolSize)
	}
	if err != nil {
		return nil, err
	}

	s.strategy.RecordOutcome(stratselect.Context{RootKind: "course", DepthBucket: stratselect.DepthBucket(0)}, strat, poolYield(len(candidates), targetPoolSize))

	buckets := s.bucket(candidates)
	sampled := s.sampleQuotas(buckets)

	s.rng.Shuffle(len(sampled), func(i, j int) { sampled[i], sampled[j] = sampled[j], sampled[i] })

	out := make([]Candidate, 0, len(sampled))
	for _, h := range sampled {
		ref, err := s.manifests.Resolve(ctx, h)
		if err != nil {
			return nil, domain.NewError(domain.KindStorage, err)
		}
		out = append(out, Candidate{Exercise: h, Manifest: ref})
	}
	return out, nil
}

func poolYield(got, target int) float64 {
	if target <= 0 {
		return 0
	}
	y := float64(got) / float64(target)
	if y > 1 {
		y = 1
	}
	return y
}

// frontierNode is one pending unit in the stack-based DFS, carrying the
// per-path prior-passes count the Increasing passing shape needs (spec
// §4.5: "n counts prior passes along the current traversal path").
type frontierNode struct {
	unit        domain.UnitHandle
	priorPasses int
}

// traverseStackDFS implements Phase B's default stack-based randomized DFS.
func (s *Scheduler) traverseStackDFS(ctx context.Context, filter Filter, roots []domain.UnitHandle, targetPoolSize int) ([]candidateEntry, error) {
	var pool []candidateEntry
	visited := map[domain.UnitHandle]struct{}{}

	stack := make([]frontierNode, len(roots))
	for i, r := range roots {
		stack[i] = frontierNode{unit: r}
	}
	s.rng.Shuffle(len(stack), func(i, j int) { stack[i], stack[j] = stack[j], stack[i] })

	for len(stack) > 0 && len(pool) < targetPoolSize {
		select {
		case <-ctx.Done():
			return nil, domain.NewError(domain.KindCancelled, domain.ErrCancelled)
		default:
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[node.unit]; seen {
			continue
		}
		visited[node.unit] = struct{}{}

		next, collected, err := s.visit(ctx, filter, node.unit, node.priorPasses)
		if err != nil {
			return nil, err
		}
		pool = append(pool, collected...)

		s.rng.Shuffle(len(next), func(i, j int) { next[i], next[j] = next[j], next[i] })
		stack = append(stack, next...)
	}
	return pool, nil
}

// traverseBestFirst implements Phase B's optional best-first ordering over
// a priority frontier: roots are pushed at top priority and every later
// unit at a random priority, so pop order is randomized rather than LIFO.
// Unit scores do not influence the order.
func (s *Scheduler) traverseBestFirst(ctx context.Context, filter Filter, roots []domain.UnitHandle, targetPoolSize int) ([]candidateEntry, error) {
	var pool []candidateEntry
	visited := map[domain.UnitHandle]struct{}{}

	frontier := dsa.NewFrontier()
	for _, r := range roots {
		frontier.Push(dsa.FrontierItem{Unit: r, Depth: 0, Priority: 1.0})
	}

	for frontier.Len() > 0 && len(pool) < targetPoolSize {
		select {
		case <-ctx.Done():
			return nil, domain.NewError(domain.KindCancelled, domain.ErrCancelled)
		default:
		}

		item, ok := frontier.Pop()
		if !ok {
			break
		}
		if _, seen := visited[item.Unit]; seen {
			continue
		}
		visited[item.Unit] = struct{}{}

		next, collected, err := s.visit(ctx, filter, item.Unit, item.PriorPasses)
		if err != nil {
			return nil, err
		}
		pool = append(pool, collected...)

		for _, n := range next {
			priority := s.rng.Float64() // randomized within the frontier to avoid starvation
			frontier.Push(dsa.FrontierItem{Unit: n.unit, Depth: item.Depth + 1, Priority: priority, PriorPasses: n.priorPasses})
		}
	}
	return pool, nil
}

// visit implements Phase B step 1-4 for a single node: blacklist and
// superseding overrides, gating by unit score, and exercise sampling within
// a qualified lesson. Returns the next units to continue traversal into and
// any candidate exercises collected at this node.
//
// Two edges are never conflated. Containment children (for a course, its
// lessons; for a lesson, its exercises) are the collection path: a course
// or lesson with an unknown or below-passing score still descends into
// them so frontier candidates surface (spec §4.7 step 3). The dependency
// frontier — this unit's dependents — is only crossed once the unit is
// treated as mastered for gating: blacklisted, superseded, outside an
// active filter's subgraph (step 1, step 2, Phase A), or known and passing
// (step 3). Blacklisted and superseded units are skipped outright — no
// exercises are collected from their own subtree, only the pass-through to
// dependents. priorPasses is this node's count of passes already seen
// along its path (spec §4.5 Increasing shape); it is carried unchanged
// into children and incremented for dependents reached via a mastered
// treatment.
func (s *Scheduler) visit(ctx context.Context, filter Filter, h domain.UnitHandle, priorPasses int) ([]frontierNode, []candidateEntry, error) {
	if !filter.Allowed(h) {
		// Outside the filtered subgraph: treat as mastered, continue
		// through it via its dependents only (spec §4.7 Phase A).
		return advance(nil, s.g.GetDependents(h), priorPasses), nil, nil
	}

	blacklisted, err := s.blacklist.Contains(ctx, h)
	if err != nil {
		return nil, nil, domain.NewError(domain.KindStorage, err)
	}
	if blacklisted {
		// Treat as mastered, skip — no exercises from this unit's own
		// subtree — but allow descent to dependents through it.
		return advance(nil, s.dependentsOf(h), priorPasses), nil, nil
	}

	if superseded, err := s.isSupersededByMastered(ctx, h); err != nil {
		return nil, nil, err
	} else if superseded {
		// Treat as mastered, do not emit exercises from this unit.
		return advance(nil, s.dependentsOf(h), priorPasses), nil, nil
	}

	score, known, err := s.cache.Score(ctx, h)
	if err != nil {
		return nil, nil, err
	}

	u := s.g.Unit(h)
	if u != nil && u.Kind == domain.KindExercise {
		// Leaf: the exercise is itself the candidate (spec §4.7 Phase C:
		// bucketed by its own score, empty-history going to New).
		return nil, []candidateEntry{{exercise: h, score: score, known: known}}, nil
	}

	if !known {
		// Never emit from a unit with unknown score, but still descend
		// into its own containment children so fresh material surfaces.
		return advance(s.childrenOf(h), nil, priorPasses), nil, nil
	}

	passing := s.passes(score, priorPasses)
	if u != nil && u.Kind == domain.KindLesson && passing {
		// Qualified lesson: collect a sample directly (spec §4.7 step 4)
		// rather than pushing every exercise onto the main traversal.
		collected := s.sampleLessonExercises(ctx, h, score)
		return advance(nil, s.g.GetDependents(h), priorPasses), collected, nil
	}
	if !passing {
		// Known but below threshold: collect from this unit's children,
		// stop descending into its dependents.
		return advance(s.childrenOf(h), nil, priorPasses), nil, nil
	}
	return advance(s.childrenOf(h), s.dependentsOf(h), priorPasses), nil, nil
}

// dependentsOf returns h's dependents without the units h directly
// contains. The graph records a parent as an implicit dependency, so
// GetDependents(h) also lists h's lessons or exercises; those are only
// reached through childrenOf.
func (s *Scheduler) dependentsOf(h domain.UnitHandle) []domain.UnitHandle {
	var out []domain.UnitHandle
	for _, d := range s.g.GetDependents(h) {
		if u := s.g.Unit(d); u != nil && (u.ParentCourse == h || u.ParentLesson == h) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// advance wraps children at the current priorPasses count and dependents
// at priorPasses+1, since a dependents edge is only ever crossed when this
// unit was treated as mastered for gating.
func advance(children, dependents []domain.UnitHandle, priorPasses int) []frontierNode {
	out := make([]frontierNode, 0, len(children)+len(dependents))
	for _, c := range children {
		out = append(out, frontierNode{unit: c, priorPasses: priorPasses})
	}
	for _, d := range dependents {
		out = append(out, frontierNode{unit: d, priorPasses: priorPasses + 1})
	}
	return out
}

// childrenOf returns a course's lessons or a lesson's exercises (spec
// §4.7 step 3: "for a course, its lessons; for a lesson, its exercises").
func (s *Scheduler) childrenOf(h domain.UnitHandle) []domain.UnitHandle {
	u := s.g.Unit(h)
	if u == nil {
		return nil
	}
	switch u.Kind {
	case domain.KindCourse:
		return s.g.GetLessons(h)
	case domain.KindLesson:
		return s.g.GetExercises(h)
	default:
		return nil
	}
}

// passes applies the configured passing predicate (spec §4.5), raising the
// bar with priorPasses under the Increasing shape. The fractional V2
// variant never affects gating, only the exercise sampling fraction in
// sampleLessonExercises.
func (s *Scheduler) passes(score float32, priorPasses int) bool {
	return float64(score) >= float64(s.opts.PassingScore.At(priorPasses))
}

// sampleLessonExercises selects a fraction of lesson's exercises once it
// qualifies (spec §4.7 step 4). Callers only invoke this once the lesson is
// already known to be passing.
func (s *Scheduler) sampleLessonExercises(ctx context.Context, lesson domain.UnitHandle, score float32) []candidateEntry {
	exercises := s.g.GetExercises(lesson)
	if len(exercises) == 0 {
		return nil
	}

	n := len(exercises)
	if s.opts.PassingVersion == domain.PassingV2 {
		frac := s.opts.FractionConfig.Fraction(score)
		n = int(frac * float32(len(exercises)))
		if n < 1 {
			n = 1
		}
	}

	order := append([]int(nil), indices(len(exercises))...)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if n > len(order) {
		n = len(order)
	}

	out := make([]candidateEntry, 0, n)
	for _, idx := range order[:n] {
		ex := exercises[idx]
		exScore, known, err := s.cache.Score(ctx, ex)
		if err != nil {
			continue
		}
		out = append(out, candidateEntry{exercise: ex, score: exScore, known: known})
	}
	return out
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// isSupersededByMastered implements is_superseded_by (spec §4.1): true iff
// h's superseded-by set is non-empty, every exercise in h's own subtree has
// at least one trial, and every unit in the superseding set scores at or
// above SupersedingScore.
func (s *Scheduler) isSupersededByMastered(ctx context.Context, h domain.UnitHandle) (bool, error) {
	u := s.g.Unit(h)
	if u == nil || len(u.Superseded) == 0 {
		return false, nil
	}

	allScored, err := s.cache.AllValidExercisesHaveScores(ctx, h)
	if err != nil {
		return false, err
	}
	if !allScored {
		return false, nil
	}

	for sup := range u.Superseded {
		score, known, err := s.cache.Score(ctx, sup)
		if err != nil {
			return false, err
		}
		if !known || float64(score) < float64(s.opts.SupersedingScore) {
			return false, nil
		}
	}
	return true, nil
}

// bucket implements Phase C: each candidate exercise is placed in exactly
// one mastery window by its own current score, with empty-history
// exercises going to New.
func (s *Scheduler) bucket(candidates []candidateEntry) map[string][]domain.UnitHandle {
	buckets := make(map[string][]domain.UnitHandle, len(s.opts.Windows))
	for _, c := range candidates {
		score := c.score
		if !c.known {
			score = 0
		}
		for _, w := range s.opts.Windows {
			if w.Contains(score) {
				buckets[w.Name] = append(buckets[w.Name], c.exercise)
				break
			}
		}
	}
	return buckets
}

// sampleQuotas implements Phase D: fixed window order, rounded quotas
// summing exactly to BatchSize, deficit redistribution, and anti-repeat
// weighting.
func (s *Scheduler) sampleQuotas(buckets map[string][]domain.UnitHandle) []domain.UnitHandle {
	quotas := s.computeQuotas()

	var out []domain.UnitHandle
	deficit := 0

	for i, name := range domain.QuotaOrder {
		want := quotas[i] + redistributedShare(deficit, len(domain.QuotaOrder)-i)
		pool := buckets[name]
		picked := s.weightedSample(pool, want)
		out = append(out, picked...)
		if got := len(picked); got < want {
			deficit += want - got
		} else {
			deficit = 0
		}
	}
	return out
}

func redistributedShare(deficit, remainingWindows int) int {
	if remainingWindows <= 0 {
		return 0
	}
	return deficit / remainingWindows
}

// computeQuotas rounds each window's percentage of BatchSize, then adjusts
// the last window so quotas sum exactly to BatchSize.
func (s *Scheduler) computeQuotas() []int {
	quotas := make([]int, len(s.opts.Windows))
	byName := make(map[string]float32, len(s.opts.Windows))
	for _, w := range s.opts.Windows {
		byName[w.Name] = w.Percentage
	}

	sum := 0
	for i, name := range domain.QuotaOrder {
		q := int(byName[name]*float32(s.opts.BatchSize) + 0.5)
		quotas[i] = q
		sum += q
	}
	if diff := s.opts.BatchSize - sum; diff != 0 && len(quotas) > 0 {
		quotas[len(quotas)-1] += diff
	}
	return quotas
}

// weightedSample draws up to want elements from pool, weighting by
// anti-repeat freshness (spec §4.7 Phase E) and sampling without
// replacement.
func (s *Scheduler) weightedSample(pool []domain.UnitHandle, want int) []domain.UnitHandle {
	if want <= 0 || len(pool) == 0 {
		return nil
	}
	remaining := append([]domain.UnitHandle(nil), pool...)
	var out []domain.UnitHandle

	for len(out) < want && len(remaining) > 0 {
		weights := make([]float64, len(remaining))
		var total float64
		for i, h := range remaining {
			weights[i] = s.antiRepeat.Weight(h)
			total += weights[i]
		}
		if total <= 0 {
			break
		}
		r := s.rng.Float64() * total
		idx := 0
		for acc := 0.0; idx < len(weights); idx++ {
			acc += weights[idx]
			if r <= acc {
				break
			}
		}
		if idx >= len(remaining) {
			idx = len(remaining) - 1
		}
		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// RecordTrial implements trial ingestion (spec §4.8): append, invalidate,
// propagate, update anti-repeat.
func (s *Scheduler) RecordTrial(ctx context.Context, t domain.Trial) error {
	if err := s.trials.Append(ctx, t); err != nil {
		return domain.NewError(domain.KindStorage, err)
	}
	s.cache.InvalidateTrial(t.Exercise)
	if err := s.propagator.Propagate(ctx, t.Exercise, t.Score); err != nil {
		return err
	}
	s.antiRepeat.RecordEmission(t.Exercise)
	return nil
}
