package stratselect

import "testing"

func TestSelectExploresUntriedArmsFirst(t *testing.T) {
	s := NewSelector(DefaultConfig())
	ctx := Context{RootKind: "course", DepthBucket: "shallow"}

	seen := map[Strategy]bool{}
	for i := 0; i < 2; i++ {
		strat := s.Select(ctx)
		seen[strat] = true
		s.RecordOutcome(ctx, strat, 0.5)
	}
	if len(seen) != 2 {
		t.Errorf("expected both arms tried before exploitation kicks in, got %v", seen)
	}
}

func TestDepthBucketClassification(t *testing.T) {
	tests := []struct {
		depth int
		want  string
	}{
		{0, "shallow"},
		{2, "shallow"},
		{3, "medium"},
		{5, "medium"},
		{6, "deep"},
	}
	for _, tt := range tests {
		if got := DepthBucket(tt.depth); got != tt.want {
			t.Errorf("DepthBucket(%d) = %q, want %q", tt.depth, got, tt.want)
		}
	}
}

func TestRecordOutcomeConvergesTowardBetterArm(t *testing.T) {
	s := NewSelector(Config{ExplorationFactor: 0.1, MinObservations: 2})
	ctx := Context{RootKind: "lesson", DepthBucket: "medium"}

	for i := 0; i < 5; i++ {
		s.RecordOutcome(ctx, StackDFS, 0.2)
		s.RecordOutcome(ctx, BestFirst, 0.9)
	}
	if got := s.Select(ctx); got != BestFirst {
		t.Errorf("Select() = %v, want BestFirst after consistently higher reward", got)
	}
}
