package scoring

import (
	"math"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

const (
	// RMax bounds the reward scorer's output magnitude (spec §4.3).
	RMax = 1.0

	defaultNumRewards = 20

	// rewardHalfLifeDays sets the exponential decay rate: an event this
	// many days old contributes half the weight of a fresh one.
	rewardHalfLifeDays = 7.0
)

// RewardScorer aggregates a unit's recent reward events into a single
// signed delta via exponential time-decay (spec §4.3), in the spirit of the
// EMA-based decay used elsewhere in this codebase for trust scoring.
type RewardScorer struct {
	// NumRewards bounds how many of the most recent events are considered.
	NumRewards int
	// Now returns the reference clock time; defaults to time.Now when nil.
	Now func() time.Time
}

// NewRewardScorer returns a scorer with spec defaults.
func NewRewardScorer() *RewardScorer {
	return &RewardScorer{NumRewards: defaultNumRewards, Now: time.Now}
}

func (s *RewardScorer) numRewards() int {
	if s.NumRewards > 0 {
		return s.NumRewards
	}
	return defaultNumRewards
}

func (s *RewardScorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// decayLambda is the exponential-decay rate corresponding to
// rewardHalfLifeDays: weight(t) = exp(-lambda*t), weight(halfLife) = 0.5.
func decayLambda() float64 {
	return math.Ln2 / rewardHalfLifeDays
}

// Score sums recentEvents (reverse-chronological, most recent first,
// as returned by domain.RewardLog.Recent) with exponential time-decay
// weighting and clamps the result to [-RMax, +RMax].
func (s *RewardScorer) Score(events []domain.RewardEvent) float32 {
	if len(events) == 0 {
		return 0
	}

	n := s.numRewards()
	if len(events) > n {
		events = events[:n]
	}

	now := s.now()
	lambda := decayLambda()

	var sum float64
	for _, e := range events {
		elapsedDays := now.Sub(e.Timestamp).Hours() / 24.0
		if elapsedDays < 0 {
			elapsedDays = 0
		}
		weight := math.Exp(-lambda * elapsedDays)
		sum += float64(e.SignedMagnitude) * weight
	}

	if !isFinite(sum) {
		return 0
	}
	if sum > RMax {
		sum = RMax
	}
	if sum < -RMax {
		sum = -RMax
	}
	return float32(sum)
}
