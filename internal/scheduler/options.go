// Package scheduler implements the scheduler proper (spec §4.7): a
// dependency-aware randomized traversal, mastery-window bucketing, and
// quota-based sampling into a final exercise batch.
package scheduler

import (
	"math/rand"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/infra/dsa"
	"github.com/trane-project/trane/internal/infra/stratselect"
)

const (
	// DefaultBatchSize is the default target batch size (spec §4.7).
	DefaultBatchSize = 50
	// DefaultCandidateMultiple bounds the candidate pool at this multiple
	// of BatchSize before Phase B terminates.
	DefaultCandidateMultiple = 10
	// DefaultSupersedingScore is the unit-score threshold a superseding
	// set must clear (spec §4.1).
	DefaultSupersedingScore = 3.75
)

// Options configures one scheduler instance (spec §5: "per-scheduler-
// instance seeded RNG").
type Options struct {
	BatchSize          int
	CandidateMultiple  int
	SupersedingScore   float32
	Windows            []domain.MasteryWindow
	PassingVersion     domain.PassingPredicateVersion
	PassingScore       domain.PassingScore
	FractionConfig     domain.FractionConfig
	PropagationDepth   int
	AntiRepeat         dsa.AntiRepeatConfig
	Strategy           stratselect.Config
	// Seed seeds this instance's random source; two instances with the
	// same seed and same inputs produce the same traversal (spec §5).
	Seed int64
}

// DefaultOptions returns spec-default tuning.
func DefaultOptions() Options {
	return Options{
		BatchSize:         DefaultBatchSize,
		CandidateMultiple: DefaultCandidateMultiple,
		SupersedingScore:  DefaultSupersedingScore,
		Windows:           domain.DefaultWindows(),
		PassingVersion:    domain.PassingV1,
		PassingScore:      domain.DefaultPassingScore(),
		FractionConfig:    domain.DefaultFractionConfig(),
		PropagationDepth:  5,
		AntiRepeat:        dsa.DefaultAntiRepeatConfig(),
		Strategy:          stratselect.DefaultConfig(),
		Seed:              1,
	}
}

// Validate checks Options for internal consistency, returning an
// InvalidConfig SchedulerError on failure (spec §7).
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return domain.NewError(domain.KindInvalidConfig, domain.ErrInvalidConfig)
	}
	if o.CandidateMultiple <= 0 {
		return domain.NewError(domain.KindInvalidConfig, domain.ErrInvalidConfig)
	}
	if o.SupersedingScore < 0 || o.SupersedingScore > 5 {
		return domain.NewError(domain.KindInvalidConfig, domain.ErrInvalidConfig)
	}
	if err := domain.ValidateWindows(o.Windows); err != nil {
		return domain.NewError(domain.KindInvalidConfig, err)
	}
	if o.PropagationDepth <= 0 {
		return domain.NewError(domain.KindInvalidConfig, domain.ErrInvalidConfig)
	}
	return nil
}

// newRand builds the instance's random source from the seed; New calls it
// once, and every batch call on that instance shares it.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
