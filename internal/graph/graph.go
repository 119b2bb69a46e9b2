package graph

import (
	"fmt"
	"sort"

	"github.com/trane-project/trane/internal/domain"
)

// UnitSpec is the load-time input describing one unit, as handed in by the
// (out-of-scope) manifest-parsing collaborator. IDs are dotted strings; a
// course's ID must be a prefix of its lessons' IDs, and a lesson's ID must
// be a prefix of its exercises' IDs (spec §6), though this package does not
// itself enforce the prefix convention — it only requires parent linkage.
type UnitSpec struct {
	ID                string
	Kind              domain.Kind
	Dependencies      []string
	DependencyWeights map[string]uint32
	Superseded        []string
	ParentCourse      string // "" for courses
	ParentLesson      string // "" unless Kind == KindExercise
	Metadata          map[string][]string
	ExerciseType      domain.ExerciseType
}

// LoadWarning records a non-fatal issue surfaced during Load, per spec §4.1:
// missing dependencies are demoted to implicit-mastered rather than failing
// the load.
type LoadWarning struct {
	UnitID          string
	MissingDependsOn string
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("unit %q depends on unknown unit %q; treating as implicit-mastered", w.UnitID, w.MissingDependsOn)
}

// Graph is the immutable-after-load unit dependency DAG. An arena of unit
// records keyed by compact handle, with four handle-indexed adjacency lists
// (dependencies, dependents, lessons, exercises) and no owning pointers
// between units (design note §9).
type Graph struct {
	interner *Interner
	units    map[domain.UnitHandle]*domain.Unit
	dependents map[domain.UnitHandle]map[domain.UnitHandle]struct{}
	lessons    map[domain.UnitHandle][]domain.UnitHandle // course -> ordered lessons
	exercises  map[domain.UnitHandle][]domain.UnitHandle // lesson -> ordered exercises
	implicitMastered map[domain.UnitHandle]struct{}       // handles created for missing deps
}

// Load builds a Graph from specs, validating acyclicity and parent
// invariants. Missing dependencies are demoted to implicit-mastered handles
// with a warning rather than failing the load (spec §4.1); everything else
// is a hard GraphError.
func Load(specs []UnitSpec) (*Graph, []LoadWarning, error) {
	interner := NewInterner()
	for _, s := range specs {
		interner.Intern(s.ID)
	}

	g := &Graph{
		interner:         interner,
		units:            make(map[domain.UnitHandle]*domain.Unit, len(specs)),
		dependents:       make(map[domain.UnitHandle]map[domain.UnitHandle]struct{}),
		lessons:          make(map[domain.UnitHandle][]domain.UnitHandle),
		exercises:        make(map[domain.UnitHandle][]domain.UnitHandle),
		implicitMastered: make(map[domain.UnitHandle]struct{}),
	}

	seen := make(map[string]struct{}, len(specs))
	var warnings []LoadWarning

	for _, s := range specs {
		if _, dup := seen[s.ID]; dup {
			return nil, nil, domain.NewError(domain.KindGraphError, fmt.Errorf("%w: %q", domain.ErrDuplicateUnit, s.ID))
		}
		seen[s.ID] = struct{}{}

		h, _ := interner.Lookup(s.ID)
		u := &domain.Unit{
			Handle:            h,
			ID:                s.ID,
			Kind:              s.Kind,
			Dependencies:      make(map[domain.UnitHandle]struct{}, len(s.Dependencies)),
			DependencyWeights: make(map[domain.UnitHandle]uint32, len(s.DependencyWeights)),
			Superseded:        make(map[domain.UnitHandle]struct{}, len(s.Superseded)),
			ParentCourse:      domain.InvalidHandle,
			ParentLesson:      domain.InvalidHandle,
			Metadata:          make(map[string]map[string]struct{}, len(s.Metadata)),
			ExerciseType:      s.ExerciseType,
		}

		for k, vs := range s.Metadata {
			set := make(map[string]struct{}, len(vs))
			for _, v := range vs {
				set[v] = struct{}{}
			}
			u.Metadata[k] = set
		}

		for _, depID := range s.Dependencies {
			depH, ok := interner.Lookup(depID)
			if !ok {
				// Demote to implicit-mastered: allocate a handle for the
				// missing ID so gating code can treat it as score 5.0
				// without special-casing "absent" everywhere.
				depH = interner.Intern(depID)
				g.implicitMastered[depH] = struct{}{}
				warnings = append(warnings, LoadWarning{UnitID: s.ID, MissingDependsOn: depID})
			}
			u.Dependencies[depH] = struct{}{}
			if w, ok := s.DependencyWeights[depID]; ok {
				u.DependencyWeights[depH] = w
			} else {
				u.DependencyWeights[depH] = 1
			}
		}
		for _, supID := range s.Superseded {
			supH, ok := interner.Lookup(supID)
			if !ok {
				supH = interner.Intern(supID)
				g.implicitMastered[supH] = struct{}{}
				warnings = append(warnings, LoadWarning{UnitID: s.ID, MissingDependsOn: supID})
			}
			u.Superseded[supH] = struct{}{}
		}

		if s.ParentCourse != "" {
			pc, ok := interner.Lookup(s.ParentCourse)
			if !ok {
				return nil, nil, domain.NewError(domain.KindGraphError, fmt.Errorf("%w: unit %q references unknown parent course %q", domain.ErrMissingParent, s.ID, s.ParentCourse))
			}
			u.ParentCourse = pc
			u.Dependencies[pc] = struct{}{}
			if _, ok := u.DependencyWeights[pc]; !ok {
				u.DependencyWeights[pc] = 1
			}
		}
		if s.ParentLesson != "" {
			pl, ok := interner.Lookup(s.ParentLesson)
			if !ok {
				return nil, nil, domain.NewError(domain.KindGraphError, fmt.Errorf("%w: unit %q references unknown parent lesson %q", domain.ErrMissingParent, s.ID, s.ParentLesson))
			}
			u.ParentLesson = pl
			u.Dependencies[pl] = struct{}{}
			if _, ok := u.DependencyWeights[pl]; !ok {
				u.DependencyWeights[pl] = 1
			}
		}

		if u.Kind == domain.KindLesson && s.ParentCourse == "" {
			return nil, nil, domain.NewError(domain.KindGraphError, fmt.Errorf("%w: lesson %q has no parent course", domain.ErrMissingParent, s.ID))
		}
		if u.Kind == domain.KindExercise && s.ParentLesson == "" {
			return nil, nil, domain.NewError(domain.KindGraphError, fmt.Errorf("%w: exercise %q has no parent lesson", domain.ErrMissingParent, s.ID))
		}

		g.units[h] = u
	}

	// Materialize implicit-mastered placeholder units for handles referenced
	// but never declared.
	for h := range g.implicitMastered {
		if _, ok := g.units[h]; !ok {
			g.units[h] = &domain.Unit{
				Handle:            h,
				ID:                interner.String(h),
				Kind:              domain.KindLesson,
				Dependencies:      map[domain.UnitHandle]struct{}{},
				DependencyWeights: map[domain.UnitHandle]uint32{},
				Superseded:        map[domain.UnitHandle]struct{}{},
				ParentCourse:      domain.InvalidHandle,
				ParentLesson:      domain.InvalidHandle,
				Metadata:          map[string]map[string]struct{}{},
			}
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, nil, err
	}

	g.buildDerivedRelations()

	return g, warnings, nil
}

// checkAcyclic runs iterative DFS with a three-color scheme over the
// dependency relation; a back-edge to a gray node is a cycle.
func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[domain.UnitHandle]int, len(g.units))

	handles := make([]domain.UnitHandle, 0, len(g.units))
	for h := range g.units {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	type frame struct {
		h    domain.UnitHandle
		deps []domain.UnitHandle
		idx  int
	}

	for _, start := range handles {
		if color[start] != white {
			continue
		}
		stack := []*frame{{h: start, deps: sortedDeps(g.units[start])}}
		color[start] = gray
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.idx >= len(top.deps) {
				color[top.h] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := top.deps[top.idx]
			top.idx++
			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, &frame{h: next, deps: sortedDeps(g.units[next])})
			case gray:
				return domain.NewError(domain.KindGraphError, fmt.Errorf("%w: at unit %q", domain.ErrCycle, g.interner.String(next)))
			case black:
				// already fully explored, fine
			}
		}
	}
	return nil
}

func sortedDeps(u *domain.Unit) []domain.UnitHandle {
	if u == nil {
		return nil
	}
	deps := make([]domain.UnitHandle, 0, len(u.Dependencies))
	for h := range u.Dependencies {
		deps = append(deps, h)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

// buildDerivedRelations computes dependents (reverse of dependencies) and
// the ordered lessons(course)/exercises(lesson) relations.
func (g *Graph) buildDerivedRelations() {
	for h := range g.units {
		g.dependents[h] = make(map[domain.UnitHandle]struct{})
	}
	for h, u := range g.units {
		for dep := range u.Dependencies {
			if _, ok := g.dependents[dep]; !ok {
				g.dependents[dep] = make(map[domain.UnitHandle]struct{})
			}
			g.dependents[dep][h] = struct{}{}
		}
	}

	for h, u := range g.units {
		switch u.Kind {
		case domain.KindLesson:
			if u.ParentCourse != domain.InvalidHandle {
				g.lessons[u.ParentCourse] = append(g.lessons[u.ParentCourse], h)
			}
		case domain.KindExercise:
			if u.ParentLesson != domain.InvalidHandle {
				g.exercises[u.ParentLesson] = append(g.exercises[u.ParentLesson], h)
			}
		}
	}
	for course := range g.lessons {
		sortByID(g, g.lessons[course])
	}
	for lesson := range g.exercises {
		sortByID(g, g.exercises[lesson])
	}
}

func sortByID(g *Graph, handles []domain.UnitHandle) {
	sort.Slice(handles, func(i, j int) bool {
		return g.interner.String(handles[i]) < g.interner.String(handles[j])
	})
}

// Interner exposes the graph's ID<->handle interner (read-only use).
func (g *Graph) Interner() *Interner { return g.interner }

// Unit returns the unit record for h, or nil if unknown.
func (g *Graph) Unit(h domain.UnitHandle) *domain.Unit { return g.units[h] }

// GetUnitKind returns the kind of h.
func (g *Graph) GetUnitKind(h domain.UnitHandle) (domain.Kind, bool) {
	u, ok := g.units[h]
	if !ok {
		return 0, false
	}
	return u.Kind, true
}

// IsImplicitMastered reports whether h was created as a stand-in for a
// missing declared dependency (spec §4.1).
func (g *Graph) IsImplicitMastered(h domain.UnitHandle) bool {
	_, ok := g.implicitMastered[h]
	return ok
}

// GetDependencies returns the dependency set of h.
func (g *Graph) GetDependencies(h domain.UnitHandle) []domain.UnitHandle {
	u, ok := g.units[h]
	if !ok {
		return nil
	}
	return sortedDeps(u)
}

// GetDependents returns the units that directly depend on h.
func (g *Graph) GetDependents(h domain.UnitHandle) []domain.UnitHandle {
	set := g.dependents[h]
	out := make([]domain.UnitHandle, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetLessons returns a course's lessons in a stable (ID-sorted) order.
func (g *Graph) GetLessons(course domain.UnitHandle) []domain.UnitHandle {
	return g.lessons[course]
}

// GetExercises returns a lesson's exercises in a stable (ID-sorted) order.
func (g *Graph) GetExercises(lesson domain.UnitHandle) []domain.UnitHandle {
	return g.exercises[lesson]
}

// Roots returns units with no dependency inside the loaded library (spec
// §4.7 Phase A: "all courses with zero in-library dependencies").
func (g *Graph) Roots() []domain.UnitHandle {
	var roots []domain.UnitHandle
	for h, u := range g.units {
		if u.Kind != domain.KindCourse {
			continue
		}
		hasRealDep := false
		for dep := range u.Dependencies {
			if !g.IsImplicitMastered(dep) {
				hasRealDep = true
				break
			}
		}
		if !hasRealDep {
			roots = append(roots, h)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// AllHandles returns every unit handle known to the graph (including
// implicit-mastered placeholders), in a stable order.
func (g *Graph) AllHandles() []domain.UnitHandle {
	out := make([]domain.UnitHandle, 0, len(g.units))
	for h := range g.units {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubtreeExercises returns every exercise handle reachable by following
// lessons(course)/exercises(lesson) from h (h itself if it is an exercise).
func (g *Graph) SubtreeExercises(h domain.UnitHandle) []domain.UnitHandle {
	u := g.units[h]
	if u == nil {
		return nil
	}
	switch u.Kind {
	case domain.KindExercise:
		return []domain.UnitHandle{h}
	case domain.KindLesson:
		return append([]domain.UnitHandle(nil), g.exercises[h]...)
	case domain.KindCourse:
		var out []domain.UnitHandle
		for _, lesson := range g.lessons[h] {
			out = append(out, g.exercises[lesson]...)
		}
		return out
	}
	return nil
}
