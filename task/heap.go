package task

import "container/heap"

// Heap is the binary-min-heap Scheduler keyed by pass, for threads running
// large numbers of tasks where the sorted list's O(n) worst-case insertion
// would dominate. Each Task stores its own heap index (heapIndex) so
// Remove is O(log n) rather than a linear scan, the same pattern the
// timerset package uses for Timer cancellation.
type Heap struct {
	h taskHeap
}

var _ Scheduler = (*Heap)(nil)

// NewHeap returns an empty Heap scheduler.
func NewHeap() *Heap {
	return &Heap{h: make(taskHeap, 0)}
}

func (s *Heap) Len() int { return len(s.h) }

func (s *Heap) Head() *Task {
	if len(s.h) == 0 {
		return nil
	}
	return s.h[0]
}

func (s *Heap) Insert(t *Task) {
	t.markScheduled(true)
	heap.Push(&s.h, t)
}

func (s *Heap) Remove(t *Task) bool {
	if !t.scheduled || t.heapIndex < 0 || t.heapIndex >= len(s.h) || s.h[t.heapIndex] != t {
		return false
	}
	heap.Remove(&s.h, t.heapIndex)
	t.markScheduled(false)
	return true
}

// taskHeap implements container/heap.Interface over *Task, keyed by pass
// via the modular PASS_GT comparison (so a taskHeap tolerates the same
// 32-bit wraparound the sorted List does).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool { return PassGT(h[j].pass, h[i].pass) }

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
