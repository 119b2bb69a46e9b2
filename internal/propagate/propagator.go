// Package propagate implements the reward propagator (spec §4.6): on each
// recorded trial, a base reward diffuses up the dependency edges from the
// exercise's parent lesson, bounded by depth, a cycle guard, and
// diminishing-returns attenuation at already-mastered nodes.
package propagate

import (
	"context"
	"time"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/unitcache"
)

const (
	neutralScore = 3
	// DefaultDepth bounds how far up the dependency edges a reward travels.
	DefaultDepth = 5
	// attenuationThreshold: nodes already at or above this score get their
	// outgoing propagation attenuated, reflecting diminishing returns.
	attenuationThreshold = 4.5
	attenuationFactor     = 0.5
)

// Variant selects how contributions from multiple independent paths to the
// same unit are combined.
type Variant int

const (
	// FirstVisitWins only records a reward the first time a unit is
	// reached within one propagation call; later paths to the same unit
	// are dropped.
	FirstVisitWins Variant = iota
	// PathAggregated sums contributions from every path that reaches a
	// unit, independent of traversal order.
	PathAggregated
)

// Config configures a Propagator.
type Config struct {
	Graph   *graph.Graph
	Cache   *unitcache.Cache
	Rewards domain.RewardLog
	Depth   int
	Variant Variant
	// Now is an injectable clock for testing; defaults to time.Now.
	Now func() time.Time
}

// Propagator diffuses a trial's reward signal up the dependency graph.
type Propagator struct {
	g       *graph.Graph
	cache   *unitcache.Cache
	rewards domain.RewardLog
	depth   int
	variant Variant
	now     func() time.Time
}

// New constructs a Propagator, filling in defaults for zero fields.
func New(cfg Config) *Propagator {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Propagator{
		g:       cfg.Graph,
		cache:   cfg.Cache,
		rewards: cfg.Rewards,
		depth:   cfg.Depth,
		variant: cfg.Variant,
		now:     cfg.Now,
	}
}

// Propagate is invoked after a trial is recorded with mastery score s
// (1..5) on exercise. It computes the base reward r = s - neutral and
// diffuses it up the dependency edges from the exercise's parent lesson
// (spec §4.6).
func (p *Propagator) Propagate(ctx context.Context, exercise domain.UnitHandle, s int) error {
	u := p.g.Unit(exercise)
	if u == nil || u.ParentLesson == domain.InvalidHandle {
		return nil
	}

	r := float64(s - neutralScore)
	if r == 0 {
		return nil
	}

	switch p.variant {
	case PathAggregated:
		return p.propagateAggregated(ctx, u.ParentLesson, r)
	default:
		return p.propagateFirstVisit(ctx, u.ParentLesson, r)
	}
}

// propagateFirstVisit does a depth-bounded BFS from start, emitting one
// reward event per newly-visited unit, scaled by edge weight and
// attenuated at already-mastered nodes.
func (p *Propagator) propagateFirstVisit(ctx context.Context, start domain.UnitHandle, r float64) error {
	visited := map[domain.UnitHandle]struct{}{start: {}}
	type frame struct {
		h     domain.UnitHandle
		depth int
		scale float64
	}
	queue := []frame{{h: start, depth: 0, scale: 1.0}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		if err := p.emit(ctx, f.h, r*f.scale); err != nil {
			return err
		}
		if f.depth >= p.depth {
			continue
		}

		nextScale := f.scale
		if attenuated, err := p.isAttenuated(ctx, f.h); err != nil {
			return err
		} else if attenuated {
			nextScale *= attenuationFactor
		}

		for _, dep := range p.g.GetDependencies(f.h) {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			scale := nextScale * edgeScale(p.g, f.h, dep)
			queue = append(queue, frame{h: dep, depth: f.depth + 1, scale: scale})
		}
	}
	return nil
}

// propagateAggregated sums contributions from every independent path to a
// unit (order-invariant), rather than stopping at first visit.
func (p *Propagator) propagateAggregated(ctx context.Context, start domain.UnitHandle, r float64) error {
	type frame struct {
		h     domain.UnitHandle
		depth int
		scale float64
	}
	totals := map[domain.UnitHandle]float64{}
	queue := []frame{{h: start, depth: 0, scale: 1.0}}
	onPath := map[domain.UnitHandle]int{start: 0} // cycle guard: min depth seen per node on the current expansion

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		totals[f.h] += r * f.scale
		if f.depth >= p.depth {
			continue
		}

		nextScale := f.scale
		if attenuated, err := p.isAttenuated(ctx, f.h); err != nil {
			return err
		} else if attenuated {
			nextScale *= attenuationFactor
		}

		for _, dep := range p.g.GetDependencies(f.h) {
			// Cycle guard: never re-descend through a node at a depth we
			// have already expanded from within this call.
			if d, seen := onPath[dep]; seen && d <= f.depth {
				continue
			}
			onPath[dep] = f.depth + 1
			scale := nextScale * edgeScale(p.g, f.h, dep)
			queue = append(queue, frame{h: dep, depth: f.depth + 1, scale: scale})
		}
	}

	// Emit in a stable order for deterministic logs.
	handles := make([]domain.UnitHandle, 0, len(totals))
	for h := range totals {
		handles = append(handles, h)
	}
	sortHandles(handles)
	for _, h := range handles {
		if err := p.emit(ctx, h, totals[h]); err != nil {
			return err
		}
	}
	return nil
}

func sortHandles(hs []domain.UnitHandle) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j] < hs[j-1]; j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

// edgeScale normalizes by the dependency weight of the edge from -> to,
// relative to the total weight of from's dependencies, so a unit with many
// dependencies doesn't flood each one with the full reward.
func edgeScale(g *graph.Graph, from, to domain.UnitHandle) float64 {
	u := g.Unit(from)
	if u == nil {
		return 0
	}
	var total uint32
	for _, w := range u.DependencyWeights {
		total += w
	}
	if total == 0 {
		return 0
	}
	w, ok := u.DependencyWeights[to]
	if !ok {
		w = 1
	}
	return float64(w) / float64(total)
}

// isAttenuated reports whether h's known score is already at or above the
// attenuation threshold.
func (p *Propagator) isAttenuated(ctx context.Context, h domain.UnitHandle) (bool, error) {
	score, known, err := p.cache.Score(ctx, h)
	if err != nil {
		return false, err
	}
	return known && float64(score) >= attenuationThreshold, nil
}

func (p *Propagator) emit(ctx context.Context, h domain.UnitHandle, magnitude float64) error {
	if magnitude == 0 {
		return nil
	}
	event := domain.RewardEvent{Unit: h, SignedMagnitude: float32(magnitude), Timestamp: p.now()}
	if err := p.rewards.Append(ctx, event); err != nil {
		return domain.NewError(domain.KindStorage, err)
	}
	p.cache.InvalidateReward(h)
	return nil
}
