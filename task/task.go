// Package task implements the reschedulable, stride-scheduled callback
// owned by an element and bound to a thread, per spec.md §3/§4.D.
package task

import "github.com/packetflow/router/element"

// STRIDE1 is the scale constant a Task's stride is derived from: for
// tickets in [1, MaxTickets], STRIDE1/tickets produces well-separated
// strides without overflowing a 32-bit stride value.
const STRIDE1 = 1 << 20

// MaxTickets is the largest ticket count a Task may hold.
const MaxTickets = 32767

// QuiescentThread is the reserved thread id used as a parking lot for
// tasks whose owner is being torn down.
const QuiescentThread = -1

// Callback is invoked when a Task runs. The returned bool is an adaptive-
// policy hint ("did useful work"); the scheduler itself ignores it.
type Callback func() bool

// Task is a reschedulable callback owned by an element, bound to a thread,
// and ordered among its thread-mates by stride scheduling.
type Task struct {
	Owner element.Element
	Run   Callback

	homeThreadID int
	tickets      uint16
	pass         uint64
	stride       uint32

	scheduled     bool
	strongUnsched bool

	// pendingNext is not used by the cross-thread pending-work queue,
	// which keeps its own items (see internal/ring).
	pendingNext *Task

	// listPrev/listNext link this Task into the sorted intrusive list
	// scheduler; unused by the heap scheduler.
	listPrev, listNext *Task

	// heapIndex is this Task's position in the heap scheduler's backing
	// slice, or -1 if not on a heap (mirrors Timer's stored heap index,
	// per spec.md §3's Timer definition, so cancellation is O(log n)
	// rather than a linear search).
	heapIndex int
}

// New constructs a Task bound to homeThread with the given ticket count
// (clamped to [1, MaxTickets]).
func New(owner element.Element, homeThread int, tickets int, run Callback) *Task {
	if tickets < 1 {
		tickets = 1
	}
	if tickets > MaxTickets {
		tickets = MaxTickets
	}
	return &Task{
		Owner:        owner,
		Run:          run,
		homeThreadID: homeThread,
		tickets:      uint16(tickets),
		stride:       STRIDE1 / uint32(tickets),
		heapIndex:    -1,
	}
}

// HomeThread returns the id of the thread this Task is bound to.
// QuiescentThread means the task's owner is torn down and it is parked.
func (t *Task) HomeThread() int { return t.homeThreadID }

// SetHomeThread rebinds the task. Only the pending-work protocol
// (internal/ring, driven by the thread package) may call this; see
// spec.md §4.H's move_thread description.
func (t *Task) SetHomeThread(id int) { t.homeThreadID = id }

// Tickets returns the task's proportional-share weight.
func (t *Task) Tickets() int { return int(t.tickets) }

// SetTickets updates the ticket count and recomputes stride; it does not
// reposition the task in whatever scheduler structure currently holds it
// — callers must Remove then Insert to take effect immediately.
func (t *Task) SetTickets(tickets int) {
	if tickets < 1 {
		tickets = 1
	}
	if tickets > MaxTickets {
		tickets = MaxTickets
	}
	t.tickets = uint16(tickets)
	t.stride = STRIDE1 / uint32(tickets)
}

// Pass returns the task's current scheduling priority (lower runs sooner).
func (t *Task) Pass() uint64 { return t.pass }

// Advance applies one stride increment, as done after every execution.
func (t *Task) Advance() { t.pass += uint64(t.stride) }

// IsScheduled reports whether the task is logically scheduled (on a
// scheduled or pending list), independent of StrongUnscheduled.
func (t *Task) IsScheduled() bool { return t.scheduled }

// IsStrongUnscheduled reports whether schedule() calls are currently
// suppressed for this task (spec.md §4.D "strong unschedule").
func (t *Task) IsStrongUnscheduled() bool { return t.strongUnsched }

// SetStrongUnscheduled sets or clears the strong-unschedule flag. While
// set, Schedule is a no-op; Reschedule (below) overrides it explicitly.
func (t *Task) SetStrongUnscheduled(v bool) { t.strongUnsched = v }

func (t *Task) markScheduled(v bool) { t.scheduled = v }

// PassGT implements spec.md §4.D's modular pass comparison: PASS_GT(a,b) ≡
// (int32_t)(a−b) > 0. Only the low 32 bits of the difference matter, so a
// pass counter tolerates 32-bit wraparound indefinitely.
func PassGT(a, b uint64) bool {
	return int32(uint32(a-b)) > 0
}
