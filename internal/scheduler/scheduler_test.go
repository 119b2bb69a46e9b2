package scheduler

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/propagate"
	"github.com/trane-project/trane/internal/unitcache"
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

type fakeBlacklist struct{ set map[domain.UnitHandle]bool }

func newFakeBlacklist() *fakeBlacklist { return &fakeBlacklist{set: map[domain.UnitHandle]bool{}} }
func (b *fakeBlacklist) Contains(_ context.Context, h domain.UnitHandle) (bool, error) {
	return b.set[h], nil
}
func (b *fakeBlacklist) Add(_ context.Context, h domain.UnitHandle) error    { b.set[h] = true; return nil }
func (b *fakeBlacklist) Remove(_ context.Context, h domain.UnitHandle) error { delete(b.set, h); return nil }

type fakeManifests struct{}

func (fakeManifests) Resolve(_ context.Context, h domain.UnitHandle) (domain.ManifestRef, error) {
	return domain.ManifestRef{Digest: "sha256:fake", Path: "fake"}, nil
}

func buildLibrary(t *testing.T, numLessons, numExercisesPerLesson int) *graph.Graph {
	t.Helper()
	var specs []graph.UnitSpec
	specs = append(specs, graph.UnitSpec{ID: "course", Kind: domain.KindCourse})
	for l := 0; l < numLessons; l++ {
		lessonID := lessonName(l)
		specs = append(specs, graph.UnitSpec{ID: lessonID, Kind: domain.KindLesson, ParentCourse: "course"})
		for e := 0; e < numExercisesPerLesson; e++ {
			specs = append(specs, graph.UnitSpec{
				ID:           exerciseName(l, e),
				Kind:         domain.KindExercise,
				ParentLesson: lessonID,
				ExerciseType: domain.Declarative,
			})
		}
	}
	g, _, err := graph.Load(specs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func lessonName(l int) string   { return "course::lesson" + itoa(l) }
func exerciseName(l, e int) string { return lessonName(l) + "::ex" + itoa(e) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// buildChainLibrary builds the two-course dependency chain from spec §8's
// end-to-end scenarios: courseA (one lesson, exercisesPerLesson exercises)
// and courseB, which depends on courseA and has its own lesson of the same
// shape.
func buildChainLibrary(t *testing.T, exercisesPerLesson int) *graph.Graph {
	t.Helper()
	var specs []graph.UnitSpec
	specs = append(specs, graph.UnitSpec{ID: "courseA", Kind: domain.KindCourse})
	specs = append(specs, graph.UnitSpec{ID: chainLessonName("courseA"), Kind: domain.KindLesson, ParentCourse: "courseA"})
	for e := 0; e < exercisesPerLesson; e++ {
		specs = append(specs, graph.UnitSpec{
			ID:           chainExerciseName("courseA", e),
			Kind:         domain.KindExercise,
			ParentLesson: chainLessonName("courseA"),
			ExerciseType: domain.Declarative,
		})
	}
	specs = append(specs, graph.UnitSpec{ID: "courseB", Kind: domain.KindCourse, Dependencies: []string{"courseA"}})
	specs = append(specs, graph.UnitSpec{ID: chainLessonName("courseB"), Kind: domain.KindLesson, ParentCourse: "courseB"})
	for e := 0; e < exercisesPerLesson; e++ {
		specs = append(specs, graph.UnitSpec{
			ID:           chainExerciseName("courseB", e),
			Kind:         domain.KindExercise,
			ParentLesson: chainLessonName("courseB"),
			ExerciseType: domain.Declarative,
		})
	}
	g, _, err := graph.Load(specs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func chainLessonName(course string) string { return course + "::lesson" }
func chainExerciseName(course string, e int) string {
	return chainLessonName(course) + "::ex" + itoa(e)
}

func chainExerciseHandles(t *testing.T, g *graph.Graph, course string, n int) []domain.UnitHandle {
	t.Helper()
	out := make([]domain.UnitHandle, n)
	for e := 0; e < n; e++ {
		h, ok := g.Interner().Lookup(chainExerciseName(course, e))
		if !ok {
			t.Fatalf("lookup %s: not found", chainExerciseName(course, e))
		}
		out[e] = h
	}
	return out
}

func sortedHandles(hs []domain.UnitHandle) []domain.UnitHandle {
	out := append([]domain.UnitHandle(nil), hs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func batchExercises(batch []Candidate) []domain.UnitHandle {
	out := make([]domain.UnitHandle, len(batch))
	for i, c := range batch {
		out[i] = c.Exercise
	}
	return sortedHandles(out)
}

// TestFreshChainOnlyEmitsRootExercises grounds spec §8 scenario 1: with no
// trials anywhere, the batch contains only the root course's exercises —
// courseB is never reached because courseA's unknown score never crosses a
// dependents edge.
func TestFreshChainOnlyEmitsRootExercises(t *testing.T) {
	g := buildChainLibrary(t, 3)
	s, _, _ := newTestScheduler(t, g, DefaultOptions())

	batch, err := s.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch: %v", err)
	}

	want := sortedHandles(chainExerciseHandles(t, g, "courseA", 3))
	got := batchExercises(batch)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected batch composition (-want +got):\n%s", diff)
	}
}

// TestMasteredRootAdvancesToDependent grounds spec §8 scenario 2: once
// courseA's exercises all score at the top of the scale, the traversal
// crosses the dependency edge into courseB and its exercises appear in the
// batch.
func TestMasteredRootAdvancesToDependent(t *testing.T) {
	g := buildChainLibrary(t, 3)
	s, _, _ := newTestScheduler(t, g, DefaultOptions())

	for _, ex := range chainExerciseHandles(t, g, "courseA", 3) {
		if err := s.RecordTrial(context.Background(), domain.Trial{Exercise: ex, Score: 5, Timestamp: time.Now()}); err != nil {
			t.Fatalf("RecordTrial: %v", err)
		}
	}

	batch, err := s.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch: %v", err)
	}

	bHandles := map[domain.UnitHandle]struct{}{}
	for _, ex := range chainExerciseHandles(t, g, "courseB", 3) {
		bHandles[ex] = struct{}{}
	}
	found := false
	for _, c := range batch {
		if _, ok := bHandles[c.Exercise]; ok {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected at least one courseB exercise once courseA is mastered")
	}
}

// TestBlacklistedRootSkipsItsOwnExercises grounds spec §8 scenario 3:
// blacklisting courseA yields zero courseA exercises in the batch, while
// courseB's exercises are still reached through the dependents pass-through.
func TestBlacklistedRootSkipsItsOwnExercises(t *testing.T) {
	g := buildChainLibrary(t, 3)
	s, _, _ := newTestScheduler(t, g, DefaultOptions())

	courseA, ok := g.Interner().Lookup("courseA")
	if !ok {
		t.Fatal("lookup courseA: not found")
	}
	bl := s.blacklist.(*fakeBlacklist)
	bl.set[courseA] = true

	batch, err := s.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch: %v", err)
	}

	want := sortedHandles(chainExerciseHandles(t, g, "courseB", 3))
	got := batchExercises(batch)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected batch composition (-want +got):\n%s", diff)
	}
}

func newTestScheduler(t *testing.T, g *graph.Graph, opts Options) (*Scheduler, *fakeTrialLog, *fakeRewardLog) {
	t.Helper()
	trials := newFakeTrialLog()
	rewards := newFakeRewardLog()
	cache := unitcache.New(unitcache.Config{Graph: g, Trials: trials, Rewards: rewards})
	prop := propagate.New(propagate.Config{Graph: g, Cache: cache, Rewards: rewards})
	s, err := New(Config{
		Graph:      g,
		Cache:      cache,
		Trials:     trials,
		Propagator: prop,
		Blacklist:  newFakeBlacklist(),
		Manifests:  fakeManifests{},
		Options:    opts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, trials, rewards
}

func TestGetExerciseBatchAllNewWhenNoTrials(t *testing.T) {
	g := buildLibrary(t, 3, 5)
	opts := DefaultOptions()
	opts.BatchSize = 10
	s, _, _ := newTestScheduler(t, g, opts)

	batch, err := s.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch: %v", err)
	}
	if len(batch) == 0 {
		t.Fatal("expected a non-empty batch from a fresh library")
	}
	if len(batch) > opts.BatchSize {
		t.Errorf("batch size %d exceeds BatchSize %d", len(batch), opts.BatchSize)
	}
}

func TestRecordTrialInvalidatesAndPropagates(t *testing.T) {
	g := buildLibrary(t, 1, 2)
	opts := DefaultOptions()
	s, trials, rewards := newTestScheduler(t, g, opts)

	ex, _ := g.Interner().Lookup(exerciseName(0, 0))
	err := s.RecordTrial(context.Background(), domain.Trial{Exercise: ex, Score: 5, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("RecordTrial: %v", err)
	}
	if len(trials.byExercise[ex]) != 1 {
		t.Errorf("expected trial log to have 1 entry, got %d", len(trials.byExercise[ex]))
	}

	lesson, _ := g.Interner().Lookup(lessonName(0))
	if len(rewards.byUnit[lesson]) == 0 {
		t.Error("expected propagation to reach the parent lesson")
	}
}

func TestBlacklistedUnitSkipsItsExercises(t *testing.T) {
	g := buildLibrary(t, 1, 2)
	opts := DefaultOptions()
	s, _, _ := newTestScheduler(t, g, opts)

	lesson, _ := g.Interner().Lookup(lessonName(0))
	bl := s.blacklist.(*fakeBlacklist)
	bl.set[lesson] = true

	batch, err := s.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch: %v", err)
	}
	for _, c := range batch {
		if c.Exercise == lesson || g.Unit(c.Exercise).ParentLesson == lesson {
			t.Errorf("blacklisted unit and its exercises should never be emitted as candidates")
		}
	}
}

func TestQuotasSumToBatchSize(t *testing.T) {
	g := buildLibrary(t, 1, 1)
	opts := DefaultOptions()
	opts.BatchSize = 37
	s, _, _ := newTestScheduler(t, g, opts)

	quotas := s.computeQuotas()
	sum := 0
	for _, q := range quotas {
		sum += q
	}
	if sum != opts.BatchSize {
		t.Errorf("quotas sum to %d, want %d", sum, opts.BatchSize)
	}
}

func TestCancellationReturnsCancelledError(t *testing.T) {
	g := buildLibrary(t, 5, 5)
	s, _, _ := newTestScheduler(t, g, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetExerciseBatch(ctx, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	se, ok := err.(*domain.SchedulerError)
	if !ok || se.Kind != domain.KindCancelled {
		t.Errorf("expected KindCancelled, got %v", err)
	}
}

func TestValidateRejectsZeroBatchSize(t *testing.T) {
	opts := DefaultOptions()
	opts.BatchSize = 0
	if err := opts.Validate(); err == nil {
		t.Fatal("expected InvalidConfig error for zero BatchSize")
	}
}
