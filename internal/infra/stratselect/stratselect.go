// Package stratselect picks a traversal strategy for the scheduler's
// randomized DFS (spec §4.7: stack-based DFS vs. optional best-first) using
// a UCB1 multi-armed bandit, so the scheduler learns which strategy yields
// better batches for a given kind of root unit and frontier depth instead
// of following a fixed heuristic.
package stratselect

import (
	"math"
	"sync"
	"time"
)

// Strategy identifies one traversal arm.
type Strategy int

const (
	// StackDFS is the default stack-based randomized depth-first descent.
	StackDFS Strategy = iota
	// BestFirst pops the frontier by priority instead of insertion order;
	// the scheduler draws each pushed unit's priority at random and does
	// not consult unit scores for it.
	BestFirst
)

func (s Strategy) String() string {
	if s == BestFirst {
		return "best-first"
	}
	return "stack-dfs"
}

// Context is the bucketed scheduling situation the bandit conditions its
// choice on: the kind of root unit being traversed and a coarse bucket of
// how deep the frontier has grown.
type Context struct {
	RootKind     string // "course" or "lesson"
	DepthBucket  string // "shallow", "medium", "deep"
}

func (c Context) armKey(s Strategy) string {
	return c.RootKind + ":" + c.DepthBucket + ":" + s.String()
}

// DepthBucket classifies a frontier depth into a coarse bucket.
func DepthBucket(depth int) string {
	switch {
	case depth <= 2:
		return "shallow"
	case depth <= 5:
		return "medium"
	default:
		return "deep"
	}
}

// Config configures the bandit.
type Config struct {
	// ExplorationFactor controls exploration vs. exploitation in UCB1;
	// classic UCB1 uses sqrt(2) ≈ 1.41.
	ExplorationFactor float64
	// MinObservations is how many observations an arm needs before its
	// statistics are trusted; below this the arm is always explored.
	MinObservations int
	// Now is an injectable clock for testing; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the bandit's default tuning.
func DefaultConfig() Config {
	return Config{ExplorationFactor: 1.41, MinObservations: 3, Now: time.Now}
}

// armStats tracks an arm's running mean reward via Welford's online
// algorithm, so the mean stays numerically stable across a long-lived
// scheduler process without re-summing history.
type armStats struct {
	pulls int
	mean  float64
	m2    float64
}

func (a *armStats) update(reward float64) {
	a.pulls++
	delta := reward - a.mean
	a.mean += delta / float64(a.pulls)
	delta2 := reward - a.mean
	a.m2 += delta * delta2
}

// Selector picks a traversal Strategy per Context using UCB1.
type Selector struct {
	mu    sync.Mutex
	cfg   Config
	arms  map[string]*armStats
	total int
}

// NewSelector creates a Selector with cfg, filling in defaults for zero
// fields.
func NewSelector(cfg Config) *Selector {
	if cfg.ExplorationFactor <= 0 {
		cfg.ExplorationFactor = 1.41
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Selector{cfg: cfg, arms: make(map[string]*armStats)}
}

// candidates are the only two strategies the bandit ever chooses between.
var candidates = []Strategy{StackDFS, BestFirst}

// Select returns the strategy with the highest UCB1 score for ctx. Ties
// (such as two arms still below MinObservations) go to the arm with fewer
// pulls, so every arm is tried before exploitation.
func (s *Selector) Select(ctx Context) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := StackDFS
	bestScore := math.Inf(-1)
	bestPulls := math.MaxInt
	for _, strat := range candidates {
		key := ctx.armKey(strat)
		arm, exists := s.arms[key]
		var score float64
		pulls := 0
		if exists {
			pulls = arm.pulls
		}
		if !exists || arm.pulls < s.cfg.MinObservations {
			score = math.Inf(1)
		} else {
			score = s.ucb1(arm)
		}
		if score > bestScore || (score == bestScore && pulls < bestPulls) {
			bestScore = score
			bestPulls = pulls
			best = strat
		}
	}
	return best
}

func (s *Selector) ucb1(arm *armStats) float64 {
	if arm.pulls == 0 || s.total == 0 {
		return math.Inf(1)
	}
	exploration := s.cfg.ExplorationFactor * math.Sqrt(math.Log(float64(s.total))/float64(arm.pulls))
	return arm.mean + exploration
}

// RecordOutcome reports the observed reward (spec-external: a [0,1] score;
// the scheduler passes its candidate-pool yield, the collected pool size
// over the target pool size) for strategy chosen under ctx.
func (s *Selector) RecordOutcome(ctx Context, strat Strategy, reward float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ctx.armKey(strat)
	arm, exists := s.arms[key]
	if !exists {
		arm = &armStats{}
		s.arms[key] = arm
	}
	arm.update(reward)
	s.total++
}
