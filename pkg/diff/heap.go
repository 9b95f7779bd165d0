package diff

import (
	"container/heap"
	"math"
)

// MaxContributors bounds the retained top-K set.
const MaxContributors = 25

// Contributor is one numeric cell retained by the top-K selection. Values
// are copied at observation time; the heap owns them independently of the
// reader buffers.
type Contributor struct {
	ID           CellID
	Old          float64
	New          float64
	Delta        float64
	Contribution float64
	tieBreak     uint64
}

// Accumulator runs the single diff pass: running totals plus the bounded
// top-K min-heap.
type Accumulator struct {
	TotalChange float64
	MaxAbsDelta float64
	top         topHeap
	max         int
	nextTie     uint64
}

// NewAccumulator builds an accumulator retaining at most max contributors.
func NewAccumulator(max int) *Accumulator {
	return &Accumulator{max: max}
}

// NewDefaultAccumulator builds an accumulator with the standard bound.
func NewDefaultAccumulator() *Accumulator {
	return NewAccumulator(MaxContributors)
}

// Observe folds one numeric cell into the totals and offers it to the top-K
// heap. Raw |delta| always updates MaxAbsDelta; contribution is zero when the
// delta is within tolerance and such cells never enter the heap.
func (a *Accumulator) Observe(id CellID, old, new, delta, contribution float64) {
	abs := math.Abs(delta)
	if abs > a.MaxAbsDelta {
		a.MaxAbsDelta = abs
	}
	a.TotalChange += contribution

	if contribution <= 0 || a.max == 0 {
		return
	}

	item := Contributor{
		ID:           id,
		Old:          old,
		New:          new,
		Delta:        delta,
		Contribution: contribution,
		tieBreak:     a.nextTie,
	}
	a.nextTie++

	heap.Push(&a.top, item)
	if a.top.Len() > a.max {
		heap.Pop(&a.top)
	}
}

// Len returns the number of retained contributors.
func (a *Accumulator) Len() int {
	return a.top.Len()
}

// Top drains the heap and returns the retained contributors in display
// order.
func (a *Accumulator) Top() []Contributor {
	out := make([]Contributor, len(a.top))
	copy(out, a.top)
	a.top = nil
	SortContributors(out)
	return out
}

// topHeap is a min-heap on (contribution, insertion order): the weakest
// retained contributor sits at the root. Equal contributions evict the
// later insertion first, so the earliest observation wins ties.
type topHeap []Contributor

func (h topHeap) Len() int { return len(h) }

func (h topHeap) Less(i, j int) bool {
	if h[i].Contribution != h[j].Contribution {
		return h[i].Contribution < h[j].Contribution
	}
	return h[i].tieBreak > h[j].tieBreak
}

func (h topHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *topHeap) Push(x any) {
	*h = append(*h, x.(Contributor))
}

func (h *topHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
