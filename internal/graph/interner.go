// Package graph implements the unit dependency graph: a small string
// interner mapping dotted unit IDs to compact handles, and a directed
// acyclic graph over those handles with the four labeled relations from
// spec §2/§4.1: dependencies, dependents, lessons(course), exercises(lesson).
package graph

import "github.com/trane-project/trane/internal/domain"

// Interner maps unit ID strings (e.g. "music::guitar::chords::major") to
// compact domain.UnitHandle values and back. Not safe for concurrent
// mutation — interning only happens at load time, under the graph builder.
type Interner struct {
	ids     []string
	byID    map[string]domain.UnitHandle
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{byID: make(map[string]domain.UnitHandle)}
}

// Intern returns the handle for id, allocating a new one if id hasn't been
// seen before.
func (in *Interner) Intern(id string) domain.UnitHandle {
	if h, ok := in.byID[id]; ok {
		return h
	}
	h := domain.UnitHandle(len(in.ids))
	in.ids = append(in.ids, id)
	in.byID[id] = h
	return h
}

// Lookup returns the handle for id without allocating, and whether it
// exists.
func (in *Interner) Lookup(id string) (domain.UnitHandle, bool) {
	h, ok := in.byID[id]
	return h, ok
}

// String returns the original ID string for a handle.
func (in *Interner) String(h domain.UnitHandle) string {
	if int(h) < 0 || int(h) >= len(in.ids) {
		return ""
	}
	return in.ids[h]
}

// Len returns the number of interned IDs.
func (in *Interner) Len() int { return len(in.ids) }
