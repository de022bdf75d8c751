package workingset

import (
	"container/heap"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/engine/resolution"
)

type candidate struct {
	id   hierarchy.NodeID
	cost int
	est  resolution.Estimate
}

// dropsBefore orders candidates for budget trimming: nodes outside the focus
// radius go first, then the farthest from the focus point, then the ones
// with the largest resolution surplus. Ids break the remaining ties.
func dropsBefore(a, b candidate) bool {
	if a.est.InsideFocus != b.est.InsideFocus {
		return !a.est.InsideFocus
	}
	if a.est.FocusDistance != b.est.FocusDistance {
		return a.est.FocusDistance > b.est.FocusDistance
	}
	if da, db := a.est.Deficit(), b.est.Deficit(); da != db {
		return da < db
	}
	return a.id > b.id
}

// dropQueue is a min-heap of candidates by drop priority.
type dropQueue []candidate

func (q dropQueue) Len() int           { return len(q) }
func (q dropQueue) Less(i, j int) bool { return dropsBefore(q[i], q[j]) }
func (q dropQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *dropQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *dropQueue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

func (q *dropQueue) push(c candidate) { heap.Push(q, c) }
func (q *dropQueue) pop() candidate   { return heap.Pop(q).(candidate) }
