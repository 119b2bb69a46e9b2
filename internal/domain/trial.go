package domain

import "time"

// Trial is a single graded attempt at an exercise.
type Trial struct {
	Exercise  UnitHandle `json:"exercise"`
	Score     int        `json:"score"` // 1..5
	Timestamp time.Time  `json:"timestamp"`
}

// RewardEvent is a signed adjustment diffused to a unit, either from a
// trial's own propagation or recorded directly by a caller.
type RewardEvent struct {
	Unit            UnitHandle `json:"unit"`
	SignedMagnitude float32    `json:"signed_magnitude"`
	Timestamp       time.Time  `json:"timestamp"`
}

// CachedUnitScore is the memoized result of aggregating a unit's exercise
// or child-lesson scores with its propagated reward adjustment.
type CachedUnitScore struct {
	Score      float32
	NumTrials  uint64
	ComputedAt time.Time // monotonic wall-clock of computation, for diagnostics only
}
