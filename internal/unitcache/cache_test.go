package unitcache

import (
	"context"
	"testing"
	"time"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
)

type fakeTrialLog struct {
	byExercise map[domain.UnitHandle][]domain.Trial
}

func newFakeTrialLog() *fakeTrialLog {
	return &fakeTrialLog{byExercise: make(map[domain.UnitHandle][]domain.Trial)}
}

func (f *fakeTrialLog) Append(_ context.Context, t domain.Trial) error {
	f.byExercise[t.Exercise] = append([]domain.Trial{t}, f.byExercise[t.Exercise]...)
	return nil
}

func (f *fakeTrialLog) Recent(_ context.Context, exercise domain.UnitHandle, n int) ([]domain.Trial, error) {
	trials := f.byExercise[exercise]
	if len(trials) > n {
		trials = trials[:n]
	}
	return trials, nil
}

type fakeRewardLog struct {
	byUnit map[domain.UnitHandle][]domain.RewardEvent
}

func newFakeRewardLog() *fakeRewardLog {
	return &fakeRewardLog{byUnit: make(map[domain.UnitHandle][]domain.RewardEvent)}
}

func (f *fakeRewardLog) Append(_ context.Context, e domain.RewardEvent) error {
	f.byUnit[e.Unit] = append([]domain.RewardEvent{e}, f.byUnit[e.Unit]...)
	return nil
}

func (f *fakeRewardLog) Recent(_ context.Context, unit domain.UnitHandle, n int) ([]domain.RewardEvent, error) {
	events := f.byUnit[unit]
	if len(events) > n {
		events = events[:n]
	}
	return events, nil
}

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	specs := []graph.UnitSpec{
		{ID: "c", Kind: domain.KindCourse},
		{ID: "c::l", Kind: domain.KindLesson, ParentCourse: "c"},
		{ID: "c::l::e1", Kind: domain.KindExercise, ParentLesson: "c::l", ExerciseType: domain.Declarative},
		{ID: "c::l::e2", Kind: domain.KindExercise, ParentLesson: "c::l", ExerciseType: domain.Declarative},
	}
	g, _, err := graph.Load(specs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func TestCacheUnknownForEmptyHistory(t *testing.T) {
	g := buildTestGraph(t)
	c := New(Config{Graph: g, Trials: newFakeTrialLog(), Rewards: newFakeRewardLog()})

	e1, _ := g.Interner().Lookup("c::l::e1")
	_, known, err := c.Score(context.Background(), e1)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if known {
		t.Error("expected unknown score for exercise with no trials")
	}
}

func TestCacheRecomputesAndCaches(t *testing.T) {
	g := buildTestGraph(t)
	trials := newFakeTrialLog()
	c := New(Config{Graph: g, Trials: trials, Rewards: newFakeRewardLog()})

	e1, _ := g.Interner().Lookup("c::l::e1")
	trials.byExercise[e1] = []domain.Trial{{Exercise: e1, Score: 5, Timestamp: time.Now()}}

	score, known, err := c.Score(context.Background(), e1)
	if err != nil || !known {
		t.Fatalf("Score: known=%v err=%v", known, err)
	}
	if score <= 0 {
		t.Errorf("expected positive score, got %v", score)
	}

	// Cached path should return the same value without requerying trials.
	trials.byExercise[e1] = nil
	cached, known2, err := c.Score(context.Background(), e1)
	if err != nil || !known2 || cached != score {
		t.Errorf("expected cached hit to return %v, got %v (known=%v)", score, cached, known2)
	}
}

func TestCacheInvalidateTrialClearsExerciseLessonAndCourse(t *testing.T) {
	g := buildTestGraph(t)
	trials := newFakeTrialLog()
	c := New(Config{Graph: g, Trials: trials, Rewards: newFakeRewardLog()})

	e1, _ := g.Interner().Lookup("c::l::e1")
	lesson, _ := g.Interner().Lookup("c::l")
	course, _ := g.Interner().Lookup("c")

	trials.byExercise[e1] = []domain.Trial{{Exercise: e1, Score: 5, Timestamp: time.Now()}}
	if _, _, err := c.Score(context.Background(), e1); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Score(context.Background(), lesson); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Score(context.Background(), course); err != nil {
		t.Fatal(err)
	}

	c.InvalidateTrial(e1)

	for _, h := range []domain.UnitHandle{e1, lesson, course} {
		if _, ok := c.shardFor(h).entries[h]; ok {
			t.Errorf("expected handle %v to be invalidated", h)
		}
	}
}

func TestAllValidExercisesHaveScores(t *testing.T) {
	g := buildTestGraph(t)
	trials := newFakeTrialLog()
	c := New(Config{Graph: g, Trials: trials, Rewards: newFakeRewardLog()})

	lesson, _ := g.Interner().Lookup("c::l")
	e1, _ := g.Interner().Lookup("c::l::e1")
	e2, _ := g.Interner().Lookup("c::l::e2")

	ok, err := c.AllValidExercisesHaveScores(context.Background(), lesson)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected false when no exercises have trials")
	}

	trials.byExercise[e1] = []domain.Trial{{Exercise: e1, Score: 5, Timestamp: time.Now()}}
	trials.byExercise[e2] = []domain.Trial{{Exercise: e2, Score: 4, Timestamp: time.Now()}}

	ok, err = c.AllValidExercisesHaveScores(context.Background(), lesson)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected true once every exercise has a trial")
	}
}
