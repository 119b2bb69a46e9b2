package scheduler

import (
	"context"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
)

// Filter narrows the traversal root set and/or treats out-of-subgraph units
// as mastered (spec §4.7 Phase A, §2 item 10).
type Filter interface {
	// Roots returns the traversal's starting units under this filter.
	Roots(g *graph.Graph) []domain.UnitHandle
	// Allowed reports whether h is inside the filter's subgraph. Units
	// outside the subgraph are treated as mastered so traversal can
	// continue through them (spec §4.7 Phase A).
	Allowed(h domain.UnitHandle) bool
}

// allFilter is the no-filter default: every zero-in-library-dependency
// course is a root, and every unit is allowed.
type allFilter struct{}

// NoFilter returns the default filter used when the caller supplies none.
func NoFilter() Filter { return allFilter{} }

func (allFilter) Roots(g *graph.Graph) []domain.UnitHandle { return g.Roots() }
func (allFilter) Allowed(domain.UnitHandle) bool           { return true }

// CourseFilter restricts traversal to the named courses.
type CourseFilter struct{ Handles []domain.UnitHandle }

func (f CourseFilter) Roots(*graph.Graph) []domain.UnitHandle { return f.Handles }
func (f CourseFilter) Allowed(h domain.UnitHandle) bool       { return containsHandle(f.Handles, h) }

// LessonFilter restricts traversal to the named lessons.
type LessonFilter struct{ Handles []domain.UnitHandle }

func (f LessonFilter) Roots(*graph.Graph) []domain.UnitHandle { return f.Handles }
func (f LessonFilter) Allowed(h domain.UnitHandle) bool       { return containsHandle(f.Handles, h) }

// handleSetFilter is a Filter backed by a precomputed, fixed set of allowed
// handles, used by the subgraph filters below — the unit graph is immutable
// after load (spec §5), so the subgraph only needs computing once.
type handleSetFilter struct {
	roots   []domain.UnitHandle
	allowed map[domain.UnitHandle]struct{}
}

func (f handleSetFilter) Roots(*graph.Graph) []domain.UnitHandle { return f.roots }
func (f handleSetFilter) Allowed(h domain.UnitHandle) bool {
	_, ok := f.allowed[h]
	return ok
}

// NewDependentsFilter restricts traversal to every unit reachable by
// following dependents edges (transitively) from handles, including the
// seeds themselves.
func NewDependentsFilter(g *graph.Graph, handles []domain.UnitHandle) Filter {
	set := map[domain.UnitHandle]struct{}{}
	queue := append([]domain.UnitHandle(nil), handles...)
	for _, h := range queue {
		set[h] = struct{}{}
	}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		for _, d := range g.GetDependents(h) {
			if _, ok := set[d]; !ok {
				set[d] = struct{}{}
				queue = append(queue, d)
			}
		}
	}
	return handleSetFilter{roots: handles, allowed: set}
}

// NewDependenciesFilter restricts traversal to every unit reachable by
// following dependencies edges from handles, bounded by depth (0 =
// unbounded).
func NewDependenciesFilter(g *graph.Graph, handles []domain.UnitHandle, depth int) Filter {
	set := map[domain.UnitHandle]struct{}{}
	type frame struct {
		h     domain.UnitHandle
		depth int
	}
	queue := make([]frame, 0, len(handles))
	for _, h := range handles {
		set[h] = struct{}{}
		queue = append(queue, frame{h: h, depth: 0})
	}
	for len(queue) > 0 {
		f0 := queue[0]
		queue = queue[1:]
		if depth > 0 && f0.depth >= depth {
			continue
		}
		for _, d := range g.GetDependencies(f0.h) {
			if _, ok := set[d]; !ok {
				set[d] = struct{}{}
				queue = append(queue, frame{h: d, depth: f0.depth + 1})
			}
		}
	}
	return handleSetFilter{roots: handles, allowed: set}
}

// MetadataPredicate decides whether a unit's metadata satisfies a filter.
type MetadataPredicate func(metadata map[string]map[string]struct{}) bool

// MetadataFilter starts traversal at the courses whose metadata satisfies
// Predicate. Predicate is not applied to lessons or exercises, and every
// unit reached from those roots (including through dependents) is allowed.
type MetadataFilter struct {
	Predicate MetadataPredicate
}

func (f MetadataFilter) Roots(g *graph.Graph) []domain.UnitHandle {
	var roots []domain.UnitHandle
	for _, h := range g.AllHandles() {
		if u := g.Unit(h); u != nil && u.Kind == domain.KindCourse && f.Predicate(u.Metadata) {
			roots = append(roots, h)
		}
	}
	return roots
}

func (f MetadataFilter) Allowed(domain.UnitHandle) bool { return true }

// ReviewListFilter restricts traversal to a learner's saved review set. The
// handle snapshot is resolved once, eagerly, via NewReviewListFilter, since
// the Filter interface itself is synchronous and error-free.
type ReviewListFilter struct{ Handles []domain.UnitHandle }

// NewReviewListFilter resolves list's current handle snapshot through the
// external domain.ReviewList collaborator.
func NewReviewListFilter(ctx context.Context, list domain.ReviewList) (ReviewListFilter, error) {
	handles, err := list.Handles(ctx)
	if err != nil {
		return ReviewListFilter{}, domain.NewError(domain.KindStorage, err)
	}
	return ReviewListFilter{Handles: handles}, nil
}

func (f ReviewListFilter) Roots(*graph.Graph) []domain.UnitHandle { return f.Handles }
func (f ReviewListFilter) Allowed(h domain.UnitHandle) bool       { return containsHandle(f.Handles, h) }

func containsHandle(hs []domain.UnitHandle, h domain.UnitHandle) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}
