package domain

import "fmt"

// MasteryWindow is a contiguous half-open sub-range of [0,5] with an
// associated quota percentage of a batch.
type MasteryWindow struct {
	Name       string
	Percentage float32
	Low        float32
	High       float32 // half-open: [Low, High)
}

// Contains reports whether score falls in [Low, High). The top window
// (High == 5.0) is treated as closed at the top so a perfect score lands
// somewhere.
func (w MasteryWindow) Contains(score float32) bool {
	if score < w.Low {
		return false
	}
	if w.High >= 5.0 {
		return score <= 5.0
	}
	return score < w.High
}

// Standard window names, in the fixed quota-sampling order from spec §4.7
// Phase D: New, Target, Current, Easy, Mastered.
const (
	WindowNew      = "new"
	WindowTarget   = "target"
	WindowCurrent  = "current"
	WindowEasy     = "easy"
	WindowMastered = "mastered"
)

// QuotaOrder is the fixed order windows are sampled in during Phase D.
var QuotaOrder = []string{WindowNew, WindowTarget, WindowCurrent, WindowEasy, WindowMastered}

// DefaultWindows returns the five standard mastery windows with their
// default ranges and quota percentages.
func DefaultWindows() []MasteryWindow {
	return []MasteryWindow{
		{Name: WindowNew, Percentage: 0.20, Low: 0.0, High: 1.5},
		{Name: WindowTarget, Percentage: 0.30, Low: 1.5, High: 2.5},
		{Name: WindowCurrent, Percentage: 0.30, Low: 2.5, High: 3.5},
		{Name: WindowEasy, Percentage: 0.15, Low: 3.5, High: 4.5},
		{Name: WindowMastered, Percentage: 0.05, Low: 4.5, High: 5.0},
	}
}

// ValidateWindows checks that windows are non-overlapping, cover [0,5] when
// unioned, and that their percentages sum to 1.0 within epsilon.
func ValidateWindows(windows []MasteryWindow) error {
	if len(windows) == 0 {
		return fmt.Errorf("%w: no mastery windows configured", ErrInvalidConfig)
	}
	ordered := make([]MasteryWindow, len(windows))
	copy(ordered, windows)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Low < ordered[i].Low {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	var pctSum float32
	for i, w := range ordered {
		if w.Low >= w.High {
			return fmt.Errorf("%w: window %q has empty range [%v,%v)", ErrInvalidConfig, w.Name, w.Low, w.High)
		}
		if w.Percentage < 0 || w.Percentage > 1 {
			return fmt.Errorf("%w: window %q percentage %v out of [0,1]", ErrInvalidConfig, w.Name, w.Percentage)
		}
		pctSum += w.Percentage
		if i == 0 && w.Low != 0 {
			return fmt.Errorf("%w: windows must cover [0,5], first window starts at %v", ErrInvalidConfig, w.Low)
		}
		if i == len(ordered)-1 && w.High != 5.0 {
			return fmt.Errorf("%w: windows must cover [0,5], last window ends at %v", ErrInvalidConfig, w.High)
		}
		if i > 0 && ordered[i-1].High != w.Low {
			return fmt.Errorf("%w: gap or overlap between windows %q and %q", ErrInvalidConfig, ordered[i-1].Name, w.Name)
		}
	}
	const eps = 1e-3
	if pctSum < 1-eps || pctSum > 1+eps {
		return fmt.Errorf("%w: window percentages sum to %v, want 1.0±%v", ErrInvalidConfig, pctSum, eps)
	}
	return nil
}

// PassingPredicateVersion selects between the V1 binary passing predicate
// and the V2 fractional variant (spec §4.5 / §9 open question). V1 remains
// the default so dependency-gating behavior never silently changes; V2 only
// ever affects exercise-fraction sampling within an already-unlocked unit.
type PassingPredicateVersion int

const (
	PassingV1 PassingPredicateVersion = iota
	PassingV2
)

// PassingShape is one of Constant or Increasing (spec §4.5).
type PassingShape int

const (
	PassingConstant PassingShape = iota
	PassingIncreasing
)

// PassingScore configures the passing predicate.
type PassingScore struct {
	Shape PassingShape

	// Constant shape.
	Score float32

	// Increasing shape: s_pass(n) = Starting + Step*min(n, MaxSteps).
	Starting float32
	Step     float32
	MaxSteps int
}

// At returns the passing threshold given n prior passes along the current
// traversal path.
func (p PassingScore) At(priorPasses int) float32 {
	if p.Shape == PassingConstant {
		return p.Score
	}
	n := priorPasses
	if n > p.MaxSteps {
		n = p.MaxSteps
	}
	return p.Starting + p.Step*float32(n)
}

// DefaultPassingScore is a constant 3.75, the spec's default.
func DefaultPassingScore() PassingScore {
	return PassingScore{Shape: PassingConstant, Score: 3.75}
}

// FractionConfig configures the V2 fractional passing variant (spec §4.5).
type FractionConfig struct {
	MinScore float32 // fraction 0
	CapScore float32 // fraction 1
}

// DefaultFractionConfig mirrors the spec's stated defaults (3.5 .. 4.5).
func DefaultFractionConfig() FractionConfig {
	return FractionConfig{MinScore: 3.5, CapScore: 4.5}
}

// Fraction linearly interpolates unitScore between MinScore (0) and
// CapScore (1), clamped to [0,1].
func (f FractionConfig) Fraction(unitScore float32) float32 {
	if f.CapScore <= f.MinScore {
		return 0
	}
	frac := (unitScore - f.MinScore) / (f.CapScore - f.MinScore)
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
