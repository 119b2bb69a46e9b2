// Package scoring implements the per-exercise and per-unit-reward scoring
// functions: a power-law forgetting-curve memory model with chained
// stability/difficulty (spec §4.2), and a time-decayed reward aggregator
// (spec §4.3).
package scoring

import (
	"math"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

const (
	// MinStability and MaxStability bound the stability state in days.
	MinStability = 0.1
	MaxStability = 36500.0

	// MinDifficulty and MaxDifficulty bound the difficulty state.
	MinDifficulty = 1.0
	MaxDifficulty = 5.0

	difficultyTarget = 3.0

	baseGrowth    = 0.35
	stabDampExp   = 0.2
	lapseDropBase = 0.15

	defaultNumTrials = 20
)

// decayAbs is the per-exercise-type retrievability decay exponent. Procedural
// skills decay more slowly than declarative facts, so their exponent is
// smaller (the (1+x)^(-decay) curve flattens out as decay shrinks).
func decayAbs(t domain.ExerciseType) float64 {
	switch t {
	case domain.Procedural:
		return 0.6
	default:
		return 0.9
	}
}

// retrievabilityFactor returns the `factor` constant such that
// R(t=S) = 0.9 exactly, given decay exponent d.
func retrievabilityFactor(d float64) float64 {
	return math.Pow(0.9, -1.0/d) - 1.0
}

// retrievability computes R = (1 + factor*elapsedDays/S)^(-decay).
func retrievability(elapsedDays, stability, decay float64) float64 {
	factor := retrievabilityFactor(decay)
	base := 1.0 + factor*elapsedDays/stability
	if base <= 0 {
		return 0
	}
	r := math.Pow(base, -decay)
	return clamp(r, 0, 1)
}

// ExerciseScorer computes scores from an exercise's trial history using the
// power-law forgetting curve with chained stability (spec §4.2).
type ExerciseScorer struct {
	// NumTrials bounds how many of the most recent trials are considered.
	NumTrials int
	// Now returns the reference clock time for the projected-retrievability
	// step; defaults to time.Now when zero.
	Now func() time.Time
}

// NewExerciseScorer returns a scorer with spec defaults.
func NewExerciseScorer() *ExerciseScorer {
	return &ExerciseScorer{NumTrials: defaultNumTrials, Now: time.Now}
}

func (s *ExerciseScorer) numTrials() int {
	if s.NumTrials > 0 {
		return s.NumTrials
	}
	return defaultNumTrials
}

func (s *ExerciseScorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// state is the running memory-model state carried across trials.
type state struct {
	stability  float64
	difficulty float64
}

// Score computes the exercise score from trials, sorted reverse-chronological
// (most recent first) as produced by a domain.TrialLog.Recent call. Returns
// 0.0 for an empty slice.
func (s *ExerciseScorer) Score(exerciseType domain.ExerciseType, trials []domain.Trial) float64 {
	if len(trials) == 0 {
		return 0
	}

	n := s.numTrials()
	if len(trials) > n {
		trials = trials[:n]
	}

	// Process chronologically: reverse the reverse-chronological input.
	chrono := make([]domain.Trial, len(trials))
	for i, t := range trials {
		chrono[len(trials)-1-i] = t
	}

	decay := decayAbs(exerciseType)

	first := chrono[0]
	st := state{
		stability:  MinStability,
		difficulty: initialDifficulty(first.Score),
	}
	lastR := 0.0

	for i := 1; i < len(chrono); i++ {
		prev := chrono[i-1]
		cur := chrono[i]

		elapsed := clamp(cur.Timestamp.Sub(prev.Timestamp).Hours()/24.0, 0, MaxStability)
		r := retrievability(elapsed, st.stability, decay)
		if !isFinite(r) {
			r = lastR
		}
		lastR = r

		st = advance(st, cur.Score, r, decay)
	}

	elapsedSinceLast := clamp(s.now().Sub(chrono[len(chrono)-1].Timestamp).Hours()/24.0, 0, MaxStability)
	projected := retrievability(elapsedSinceLast, st.stability, decay)
	if !isFinite(projected) {
		projected = lastR
	}

	recencyBoost := 1.0
	if last := chrono[len(chrono)-1]; last.Score >= 3 {
		// Recent strong performance counts for more than old strong
		// performance: weight the final score toward the current
		// retrievability-adjusted difficulty when the latest trial passed.
		recencyBoost = 1.1
	}

	score := mapToScore(st.stability, st.difficulty, projected, recencyBoost)
	return clamp(score, 0, 5)
}

// initialDifficulty derives a starting difficulty from the first trial's
// score: lower scores imply a harder item.
func initialDifficulty(firstScore int) float64 {
	// firstScore is a 0..5 grade; map linearly so grade 5 -> difficulty 1,
	// grade 0 -> difficulty 5.
	d := difficultyTarget - (float64(firstScore)-2.5)*0.8
	return clamp(d, MinDifficulty, MaxDifficulty)
}

// advance applies one chained stability/difficulty update (spec §4.2).
func advance(st state, gradeScore int, r float64, decay float64) state {
	next := st

	if gradeScore >= 3 {
		spacingGain := 1.0 + (1.0-r)*2.0 // monotone increasing in (1-R)
		difficultyDamp := 1.0 / (1.0 + 0.1*(st.difficulty-1.0))
		growth := baseGrowth * spacingGain * difficultyDamp * math.Pow(st.stability, -stabDampExp)
		candidate := st.stability * (1.0 + growth)
		if isFinite(candidate) {
			next.stability = clamp(candidate, MinStability, MaxStability)
		}
	} else {
		lapseDrop := clamp(lapseDropBase*(st.difficulty/difficultyTarget)*(0.5+r), 0, 0.9)
		candidate := st.stability * (1.0 - lapseDrop)
		if isFinite(candidate) {
			next.stability = clamp(candidate, MinStability, st.stability)
		}
	}

	delta := gradeDelta(gradeScore)
	revertTarget := difficultyTarget
	updated := st.difficulty + delta
	// Mean-revert a quarter of the way toward the target each trial.
	updated += (revertTarget - updated) * 0.25
	next.difficulty = clamp(updated, MinDifficulty, MaxDifficulty)

	return next
}

// gradeDelta maps a 0..5 grade to a difficulty adjustment: low grades push
// difficulty up, high grades push it down.
func gradeDelta(gradeScore int) float64 {
	return (2.5 - float64(gradeScore)) * 0.3
}

// mapToScore combines latest stability, difficulty, and the projected
// retrievability multiplier into a final 0..5 score. Monotone increasing in
// stability and in projected retrievability, monotone decreasing in
// difficulty.
func mapToScore(stability, difficulty, projected, recencyBoost float64) float64 {
	stabilityTerm := math.Log10(1+stability) / math.Log10(1+MaxStability) // 0..1
	difficultyTerm := (MaxDifficulty - difficulty) / (MaxDifficulty - MinDifficulty)

	raw := 5.0 * (0.45*stabilityTerm + 0.25*difficultyTerm + 0.30*projected)
	return raw * recencyBoost
}

func clamp(v, lo, hi float64) float64 {
	if !isFinite(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
