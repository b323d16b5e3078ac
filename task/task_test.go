package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassGTWraps(t *testing.T) {
	assert.True(t, PassGT(10, 5))
	assert.False(t, PassGT(5, 10))
	assert.False(t, PassGT(5, 5))

	// near 32-bit wraparound, the comparison must still behave correctly
	var max32 uint64 = 1<<32 - 1
	assert.True(t, PassGT(0, max32)) // 0 is "after" the wrapped value
	assert.False(t, PassGT(max32, 0))
}

func TestNewClampsTickets(t *testing.T) {
	tk := New(nil, 0, 0, nil)
	assert.Equal(t, 1, tk.Tickets())

	tk = New(nil, 0, MaxTickets+1000, nil)
	assert.Equal(t, MaxTickets, tk.Tickets())
}

func TestAdvanceStrideProportionalToTickets(t *testing.T) {
	t1 := New(nil, 0, 1, nil)
	t2 := New(nil, 0, 2, nil)
	t1.Advance()
	t2.Advance()
	// double the tickets halves the stride
	assert.InDelta(t, float64(t1.Pass())/2, float64(t2.Pass()), 1)
}

func schedulerConformance(t *testing.T, s Scheduler) {
	t.Helper()
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.Head())

	a := New(nil, 0, 1, nil)
	b := New(nil, 0, 1, nil)
	c := New(nil, 0, 1, nil)
	a.pass, b.pass, c.pass = 30, 10, 20

	s.Insert(a)
	s.Insert(b)
	s.Insert(c)
	require.Equal(t, 3, s.Len())
	assert.Same(t, b, s.Head(), "lowest pass must be head")

	ok := s.Remove(b)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
	assert.Same(t, c, s.Head())

	ok = s.Remove(b)
	assert.False(t, ok, "removing an already-removed task is a no-op")

	s.Remove(c)
	s.Remove(a)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Head())
}

func TestListConformsToScheduler(t *testing.T) {
	schedulerConformance(t, NewList())
}

func TestHeapConformsToScheduler(t *testing.T) {
	schedulerConformance(t, NewHeap())
}

func TestListStableFIFOOnEqualPass(t *testing.T) {
	l := NewList()
	a := New(nil, 0, 1, nil)
	b := New(nil, 0, 1, nil)
	a.pass, b.pass = 5, 5

	l.Insert(a)
	l.Insert(b)

	// spec.md §5: "tasks with equal pass execute in FIFO order of
	// insertion" — a was inserted first so it must come out first.
	assert.Same(t, a, l.PopHead())
	assert.Same(t, b, l.PopHead())
}

func TestHeapIndexTrackedAcrossRestructuring(t *testing.T) {
	h := NewHeap()
	tasks := make([]*Task, 20)
	for i := range tasks {
		tk := New(nil, 0, 1, nil)
		tk.pass = uint64(20 - i)
		tasks[i] = tk
		h.Insert(tk)
	}
	// remove a handful from the middle; every remaining task's stored
	// heapIndex must still address itself for a later Remove to work.
	for _, i := range []int{3, 7, 12} {
		require.True(t, h.Remove(tasks[i]))
	}
	for i, tk := range tasks {
		if i == 3 || i == 7 || i == 12 {
			continue
		}
		assert.True(t, h.Remove(tk), "task %d should still be removable by stored heap index", i)
	}
	assert.Equal(t, 0, h.Len())
}
