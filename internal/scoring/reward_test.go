package scoring

import (
	"testing"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

func TestRewardScoreEmpty(t *testing.T) {
	s := NewRewardScorer()
	if got := s.Score(nil); got != 0 {
		t.Errorf("Score(nil) = %v, want 0", got)
	}
}

func TestRewardScoreClampsToRMax(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &RewardScorer{NumRewards: 20, Now: func() time.Time { return base }}

	events := make([]domain.RewardEvent, 20)
	for i := range events {
		events[i] = domain.RewardEvent{SignedMagnitude: 1.0, Timestamp: base}
	}
	got := s.Score(events)
	if got != RMax {
		t.Errorf("Score = %v, want exactly RMax (%v)", got, RMax)
	}
}

func TestRewardScoreDecaysOlderEventsLess(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return base.Add(14 * 24 * time.Hour) }

	fresh := &RewardScorer{NumRewards: 20, Now: now}
	old := &RewardScorer{NumRewards: 20, Now: now}

	freshEvents := []domain.RewardEvent{{SignedMagnitude: 0.5, Timestamp: base.Add(13 * 24 * time.Hour)}}
	oldEvents := []domain.RewardEvent{{SignedMagnitude: 0.5, Timestamp: base}}

	freshScore := fresh.Score(freshEvents)
	oldScore := old.Score(oldEvents)

	if freshScore <= oldScore {
		t.Errorf("expected fresher event to weigh more: fresh=%v old=%v", freshScore, oldScore)
	}
}

func TestRewardScoreNegativeMagnitudeClampsLow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &RewardScorer{NumRewards: 20, Now: func() time.Time { return base }}

	events := make([]domain.RewardEvent, 20)
	for i := range events {
		events[i] = domain.RewardEvent{SignedMagnitude: -1.0, Timestamp: base}
	}
	got := s.Score(events)
	if got != -RMax {
		t.Errorf("Score = %v, want exactly -RMax (%v)", got, -RMax)
	}
}

func TestRewardScoreTruncatesToNumRewards(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &RewardScorer{NumRewards: 2, Now: func() time.Time { return base }}

	events := []domain.RewardEvent{
		{SignedMagnitude: 1.0, Timestamp: base},
		{SignedMagnitude: 1.0, Timestamp: base},
		{SignedMagnitude: -1.0, Timestamp: base}, // should be ignored (beyond NumRewards)
	}
	got := s.Score(events)
	if got != RMax {
		t.Errorf("Score = %v, want RMax since 3rd (older/truncated) event should be ignored", got)
	}
}
