package graph

import (
	"testing"

	"github.com/trane-project/trane/internal/domain"
)

func simpleSpecs() []UnitSpec {
	return []UnitSpec{
		{ID: "music::theory", Kind: domain.KindCourse},
		{ID: "music::guitar", Kind: domain.KindCourse, Dependencies: []string{"music::theory"}},
		{ID: "music::guitar::chords", Kind: domain.KindLesson, ParentCourse: "music::guitar"},
		{ID: "music::guitar::chords::c_major", Kind: domain.KindExercise, ParentLesson: "music::guitar::chords", ExerciseType: domain.Declarative},
		{ID: "music::guitar::chords::g_major", Kind: domain.KindExercise, ParentLesson: "music::guitar::chords", ExerciseType: domain.Procedural},
	}
}

func TestLoadBuildsRelations(t *testing.T) {
	g, warnings, err := Load(simpleSpecs())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	theory, _ := g.Interner().Lookup("music::theory")
	guitar, _ := g.Interner().Lookup("music::guitar")
	chords, _ := g.Interner().Lookup("music::guitar::chords")
	cMajor, _ := g.Interner().Lookup("music::guitar::chords::c_major")

	deps := g.GetDependencies(guitar)
	if len(deps) != 1 || deps[0] != theory {
		t.Errorf("GetDependencies(guitar) = %v, want [%v]", deps, theory)
	}

	dependents := g.GetDependents(theory)
	if len(dependents) != 1 || dependents[0] != guitar {
		t.Errorf("GetDependents(theory) = %v, want [%v]", dependents, guitar)
	}

	lessons := g.GetLessons(guitar)
	if len(lessons) != 1 || lessons[0] != chords {
		t.Errorf("GetLessons(guitar) = %v, want [%v]", lessons, chords)
	}

	exercises := g.GetExercises(chords)
	if len(exercises) != 2 {
		t.Fatalf("GetExercises(chords) = %v, want 2 entries", exercises)
	}
	if exercises[0] != cMajor {
		t.Errorf("expected c_major sorted first, got %v", g.Interner().String(exercises[0]))
	}

	roots := g.Roots()
	if len(roots) != 1 || roots[0] != theory {
		t.Errorf("Roots() = %v, want [%v]", roots, theory)
	}
}

func TestLoadDetectsCycle(t *testing.T) {
	specs := []UnitSpec{
		{ID: "a", Kind: domain.KindCourse, Dependencies: []string{"b"}},
		{ID: "b", Kind: domain.KindCourse, Dependencies: []string{"a"}},
	}
	_, _, err := Load(specs)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var se *domain.SchedulerError
	if !asSchedulerError(err, &se) {
		t.Fatalf("expected *domain.SchedulerError, got %T", err)
	}
	if se.Kind != domain.KindGraphError {
		t.Errorf("Kind = %v, want GraphError", se.Kind)
	}
}

func TestLoadDemotesMissingDependency(t *testing.T) {
	specs := []UnitSpec{
		{ID: "music::guitar", Kind: domain.KindCourse, Dependencies: []string{"music::ear_training"}},
	}
	g, warnings, err := Load(specs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want 1 entry", warnings)
	}
	missing, ok := g.Interner().Lookup("music::ear_training")
	if !ok {
		t.Fatal("expected missing dependency to still be interned")
	}
	if !g.IsImplicitMastered(missing) {
		t.Error("expected missing dependency to be implicit-mastered")
	}
}

func TestLoadRejectsMissingParentCourse(t *testing.T) {
	specs := []UnitSpec{
		{ID: "lesson", Kind: domain.KindLesson, ParentCourse: "nope"},
	}
	if _, _, err := Load(specs); err == nil {
		t.Fatal("expected error for unknown parent course")
	}
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	specs := []UnitSpec{
		{ID: "a", Kind: domain.KindCourse},
		{ID: "a", Kind: domain.KindCourse},
	}
	if _, _, err := Load(specs); err == nil {
		t.Fatal("expected duplicate-ID error")
	}
}

func TestSubtreeExercises(t *testing.T) {
	g, _, err := Load(simpleSpecs())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	guitar, _ := g.Interner().Lookup("music::guitar")
	exs := g.SubtreeExercises(guitar)
	if len(exs) != 2 {
		t.Errorf("SubtreeExercises(guitar) = %v, want 2 entries", exs)
	}
}

func asSchedulerError(err error, target **domain.SchedulerError) bool {
	se, ok := err.(*domain.SchedulerError)
	if ok {
		*target = se
	}
	return ok
}
