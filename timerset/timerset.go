// Package timerset implements the per-thread binary min-heap of expiration
// times described in spec.md §3/§4.F. Only the owning thread may call any
// method on a TimerSet or touch a Timer bound to it — there is no internal
// locking, matching the "single-thread ownership" invariant.
package timerset

import (
	"container/heap"
	"time"
)

// Callback runs when a Timer fires. It may reschedule the same Timer,
// which causes a fresh heap insertion (spec.md §4.F).
type Callback func(now time.Time)

// Timer is an absolute expiration time bound to a TimerSet, owned by an
// element, and (while scheduled) tracked by its position in the owning
// TimerSet's heap for O(log n) cancellation.
type Timer struct {
	Owner   any // owning element; opaque to timerset
	expires time.Time
	run     Callback

	set   *TimerSet
	index int // position in set.heap, or -1 if unscheduled

	// seq breaks ties between equal expirations in favor of whichever
	// Timer was scheduled first, per spec.md §4.F's stability guarantee.
	seq uint64
}

// Scheduled reports whether the timer is currently on its TimerSet's heap.
func (t *Timer) Scheduled() bool { return t.index >= 0 }

// Expires returns the timer's current expiration time.
func (t *Timer) Expires() time.Time { return t.expires }

// TimerSet is a per-thread min-heap of (expiration, *Timer) pairs.
type TimerSet struct {
	h       timerHeap
	nextSeq uint64
}

// New returns an empty TimerSet.
func New() *TimerSet {
	return &TimerSet{h: make(timerHeap, 0)}
}

// NewTimer constructs a Timer bound to this set, initially unscheduled.
func (s *TimerSet) NewTimer(owner any, run Callback) *Timer {
	return &Timer{Owner: owner, run: run, set: s, index: -1}
}

// ScheduleAt schedules t to fire at when, O(log n). Rescheduling an
// already-scheduled timer first unschedules it.
func (s *TimerSet) ScheduleAt(t *Timer, when time.Time) {
	if t.index >= 0 {
		s.Unschedule(t)
	}
	t.expires = when
	t.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.h, t)
}

// ScheduleAfter is ScheduleAt(t, time.Now().Add(d)).
func (s *TimerSet) ScheduleAfter(t *Timer, d time.Duration) {
	s.ScheduleAt(t, time.Now().Add(d))
}

// Unschedule removes t from the heap in O(log n) using its stored index.
// Idempotent: unscheduling an already-unscheduled timer is a no-op.
func (s *TimerSet) Unschedule(t *Timer) {
	if t.index < 0 || t.index >= len(s.h) || s.h[t.index] != t {
		return
	}
	heap.Remove(&s.h, t.index)
	t.index = -1
}

// Len reports how many timers are currently scheduled.
func (s *TimerSet) Len() int { return len(s.h) }

// NextExpiration returns the earliest scheduled expiration time and true,
// or the zero time and false if the set is empty.
func (s *TimerSet) NextExpiration() (time.Time, bool) {
	if len(s.h) == 0 {
		return time.Time{}, false
	}
	return s.h[0].expires, true
}

// FireExpired repeatedly removes the root while root.expires <= now,
// marking each unscheduled before invoking its callback — so a callback
// that reschedules the same timer causes a fresh, independent insertion
// rather than confusing FireExpired's own iteration.
func (s *TimerSet) FireExpired(now time.Time) int {
	fired := 0
	for len(s.h) > 0 && !s.h[0].expires.After(now) {
		t := heap.Pop(&s.h).(*Timer)
		t.index = -1
		fired++
		if t.run != nil {
			t.run(now)
		}
	}
	return fired
}

// timerHeap implements container/heap.Interface, ordered by expiration
// then by seq (stable on ties), matching the style of task.taskHeap.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expires.Equal(h[j].expires) {
		return h[i].seq < h[j].seq
	}
	return h[i].expires.Before(h[j].expires)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
