package dsa

import (
	"sync"

	"github.com/trane-project/trane/internal/domain"
)

// FrontierItem is one pending node in a best-first traversal (spec §4.7
// optional best-first strategy, selected by the bandit in stratselect).
type FrontierItem struct {
	Unit  domain.UnitHandle
	Depth int
	// Priority orders items: higher priority is popped first. The
	// scheduler's best-first traversal pushes roots at 1.0 and every other
	// unit at a random draw in [0,1); unit scores do not affect it.
	Priority float64
	// PriorPasses counts how many units along this item's traversal path
	// have already passed, for the Increasing passing-score shape (spec
	// §4.5).
	PriorPasses int
}

// Frontier is a thread-safe max-heap of FrontierItem, used as the best-first
// alternative to the default stack-based DFS frontier (spec §4.7). The
// stack-based default lives directly in the scheduler package as a plain
// slice; this type exists only for the best-first variant, where pop order
// must follow priority rather than insertion order.
type Frontier struct {
	mu   sync.Mutex
	heap []FrontierItem
}

// NewFrontier creates an empty best-first frontier.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Push adds an item. O(log n).
func (f *Frontier) Push(item FrontierItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heap = append(f.heap, item)
	f.siftUp(len(f.heap) - 1)
}

// Pop removes and returns the highest-priority item. O(log n).
func (f *Frontier) Pop() (FrontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heap) == 0 {
		return FrontierItem{}, false
	}
	top := f.heap[0]
	last := len(f.heap) - 1
	f.heap[0] = f.heap[last]
	f.heap = f.heap[:last]
	if len(f.heap) > 0 {
		f.siftDown(0)
	}
	return top, true
}

// Len returns the number of pending items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heap)
}

func (f *Frontier) less(i, j int) bool {
	return f.heap[i].Priority > f.heap[j].Priority // max-heap: higher priority first
}

func (f *Frontier) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if f.less(idx, parent) {
			f.heap[idx], f.heap[parent] = f.heap[parent], f.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (f *Frontier) siftDown(idx int) {
	n := len(f.heap)
	for {
		best := idx
		left := 2*idx + 1
		right := 2*idx + 2
		if left < n && f.less(left, best) {
			best = left
		}
		if right < n && f.less(right, best) {
			best = right
		}
		if best == idx {
			break
		}
		f.heap[idx], f.heap[best] = f.heap[best], f.heap[idx]
		idx = best
	}
}
