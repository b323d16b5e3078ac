// Package thread implements the per-thread main loop described in
// spec.md §4.E: a scheduled-task list, a pending-task queue, a TimerSet,
// and a SelectSet, alternating through the six-step tick sequence.
package thread

import (
	"sync/atomic"
	"time"

	"github.com/packetflow/router/internal/logging"
	"github.com/packetflow/router/internal/ring"
	"github.com/packetflow/router/ioselect"
	"github.com/packetflow/router/task"
	"github.com/packetflow/router/timerset"
)

// defaultTasksPerIter and defaultItersPerOS are SPEC_FULL.md §4.E's
// expansion of spec.md's "tasks_per_iter"/"iters_per_os" constants.
const (
	defaultTasksPerIter = 128
	defaultItersPerOS   = 64
)

// ReadyFunc is invoked once per ready event a Thread's SelectSet reports.
type ReadyFunc func(ev ioselect.Event)

// RelocateFunc hands a task off to another thread after move_thread
// rebinds it. wasScheduled reports whether the task was on this thread's
// scheduled list at the moment of the move (so the destination knows
// whether to re-schedule it once it arrives). Supplied through
// WithRelocate by whatever owns the full Thread set; thread itself only
// knows its own state, never another Thread's.
type RelocateFunc func(tk *task.Task, wasScheduled bool, newThreadID int)

// Thread is one worker thread's scheduling state. All of its mutating
// methods (other than the cross-thread Request* family and the Pause/
// Block bookkeeping) must only be called from the goroutine running Run.
type Thread struct {
	id int

	scheduler task.Scheduler
	timers    *timerset.TimerSet
	selector  *ioselect.SelectSet
	pending   ring.Queue

	tasksPerIter int
	itersPerOS   int
	iterSince    int
	epoch        uint64

	running      *task.Task
	skipReinsert bool
	inCallback   atomic.Bool

	pauseCount    atomic.Int32
	stopped       atomic.Bool
	tasksRun      atomic.Uint64
	timersFired   atomic.Uint64
	selectorWakes atomic.Uint64

	onReady  ReadyFunc
	relocate RelocateFunc
	log      *logging.Logger
}

// Option configures a Thread at construction.
type Option func(*Thread)

// WithTaskHeap selects the binary-min-heap Scheduler instead of the
// default sorted intrusive list (spec.md §4.D's build-time choice).
func WithTaskHeap() Option {
	return func(t *Thread) { t.scheduler = task.NewHeap() }
}

// WithTasksPerIter overrides the per-tick task budget.
func WithTasksPerIter(n int) Option {
	return func(t *Thread) { t.tasksPerIter = n }
}

// WithItersPerOS overrides the starvation-guard select-polling interval.
func WithItersPerOS(n int) Option {
	return func(t *Thread) { t.itersPerOS = n }
}

// WithReady sets the callback invoked per ready SelectSet event.
func WithReady(f ReadyFunc) Option {
	return func(t *Thread) { t.onReady = f }
}

// WithRelocate sets the callback used to hand tasks off to another thread
// after a move_thread rebind completes on this thread.
func WithRelocate(f RelocateFunc) Option {
	return func(t *Thread) { t.relocate = f }
}

// WithLogger attaches a structured logger; nil is treated as a no-op.
func WithLogger(log *logging.Logger) Option {
	return func(t *Thread) {
		if log == nil {
			log = logging.Noop()
		}
		t.log = log
	}
}

// New constructs a Thread with the given id, driving the caller-supplied
// selector, and the sorted-list Scheduler unless overridden by WithTaskHeap.
func New(id int, selector *ioselect.SelectSet, opts ...Option) *Thread {
	t := &Thread{
		id:           id,
		scheduler:    task.NewList(),
		timers:       timerset.New(),
		selector:     selector,
		tasksPerIter: defaultTasksPerIter,
		itersPerOS:   defaultItersPerOS,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns this thread's stable identifier.
func (t *Thread) ID() int { return t.id }

// Timers exposes the thread's TimerSet for scheduling/cancelling timers
// bound to this thread. Only this thread's own goroutine may use it.
func (t *Thread) Timers() *timerset.TimerSet { return t.timers }

// Selector exposes the thread's SelectSet for fd registration. Add/Remove
// are safe from any thread; Wait is driven internally by Tick.
func (t *Thread) Selector() *ioselect.SelectSet { return t.selector }

// ScheduledCount reports how many tasks are currently on the scheduled
// list (not counting the task presently running, if any).
func (t *Thread) ScheduledCount() int { return t.scheduler.Len() }

// Schedule places tk on this thread's scheduled list, applied inline — the
// caller must already be running on this Thread's own goroutine and tk
// must be bound to this thread. Cross-thread callers must use
// RequestSchedule instead (spec.md §4.H's pending-work protocol).
func (t *Thread) Schedule(tk *task.Task) {
	if tk.IsStrongUnscheduled() || tk.IsScheduled() {
		return
	}
	t.scheduler.Insert(tk)
}

// Reschedule forces tk onto the scheduled list even if it was strongly
// unscheduled, clearing that flag first.
func (t *Thread) Reschedule(tk *task.Task) {
	tk.SetStrongUnscheduled(false)
	if !tk.IsScheduled() {
		t.scheduler.Insert(tk)
	}
}

// Unschedule removes tk from the scheduled list. Calling it on the task
// currently executing its callback (from within that callback) suppresses
// the automatic re-insertion Tick would otherwise perform when the
// callback returns.
func (t *Thread) Unschedule(tk *task.Task) {
	if tk == t.running {
		t.skipReinsert = true
		return
	}
	t.scheduler.Remove(tk)
}

// RequestSchedule applies a schedule operation, inline if callerThreadID
// is this thread's own id, otherwise via the pending-work queue followed
// by a wake — spec.md §4.H's enqueue rule.
func (t *Thread) RequestSchedule(tk *task.Task, callerThreadID int) {
	if callerThreadID == t.id {
		t.Schedule(tk)
		return
	}
	t.pending.Enqueue(tk, ring.OpSchedule, 0)
	_ = t.selector.Wake()
}

// RequestUnschedule is RequestSchedule's counterpart for unschedule.
func (t *Thread) RequestUnschedule(tk *task.Task, callerThreadID int) {
	if callerThreadID == t.id {
		t.Unschedule(tk)
		return
	}
	t.pending.Enqueue(tk, ring.OpUnschedule, 0)
	_ = t.selector.Wake()
}

// RequestMoveThread rebinds tk to newThreadID. Per spec.md §4.H, the
// operation is always enqueued as pending work on tk's current thread
// (this Thread) regardless of which thread the caller runs on, since only
// this thread may currently touch tk's position in its own structures.
func (t *Thread) RequestMoveThread(tk *task.Task, newThreadID int) {
	t.pending.Enqueue(tk, ring.OpRebind, newThreadID)
	_ = t.selector.Wake()
}

func (t *Thread) drainPending() {
	items := t.pending.DrainAll()
	for _, item := range items {
		tk, ok := item.Key.(*task.Task)
		if !ok {
			continue
		}
		switch item.Op {
		case ring.OpSchedule:
			t.Schedule(tk)
		case ring.OpUnschedule:
			t.Unschedule(tk)
		case ring.OpRebind:
			t.rebind(tk, item.RebindTo)
		}
	}
}

func (t *Thread) rebind(tk *task.Task, newThreadID int) {
	wasScheduled := tk.IsScheduled()
	if wasScheduled {
		t.scheduler.Remove(tk)
	}
	tk.SetHomeThread(newThreadID)
	if t.relocate != nil {
		t.relocate(tk, wasScheduled, newThreadID)
	}
}

// runTasks executes up to tasksPerIter tasks from the scheduled list's
// head, per spec.md §4.E step 3.
func (t *Thread) runTasks() {
	for i := 0; i < t.tasksPerIter; i++ {
		head := t.scheduler.Head()
		if head == nil {
			return
		}
		// The flag is raised before the pause counter is read, so a
		// BlockAll that has paused this thread either sees the flag and
		// waits, or this loop sees the pause and stops.
		t.inCallback.Store(true)
		if t.pauseCount.Load() != 0 {
			t.inCallback.Store(false)
			return
		}
		t.scheduler.Remove(head)
		head.Advance()

		t.running = head
		t.skipReinsert = false
		if head.Run != nil {
			head.Run()
		}
		t.inCallback.Store(false)
		t.running = nil
		t.tasksRun.Add(1)

		if !t.skipReinsert && !head.IsStrongUnscheduled() {
			t.scheduler.Insert(head)
		}
	}
}

// computeTimeout returns the SelectSet wait duration: 0 if tasks remain
// scheduled ("do not block"), the delay to the next timer if one exists,
// or -1 (block indefinitely) otherwise.
func (t *Thread) computeTimeout(now time.Time) time.Duration {
	if t.scheduler.Len() > 0 {
		return 0
	}
	next, ok := t.timers.NextExpiration()
	if !ok {
		return -1
	}
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

func (t *Thread) maybeSelect(now time.Time) {
	if t.scheduler.Len() > 0 && t.iterSince < t.itersPerOS {
		return
	}
	timeout := t.computeTimeout(now)
	events, err := t.selector.Wait(timeout)
	t.selectorWakes.Add(1)
	t.iterSince = 0
	if err != nil {
		t.log.Warning().Str(logging.FieldComponent, "thread").Int("id", t.id).Err(err).Log("selector wait failed")
		return
	}
	for _, ev := range events {
		if t.onReady != nil {
			t.onReady(ev)
		}
	}
}

// Tick runs one iteration of the six-step main loop (spec.md §4.E): drain
// pending work, run due tasks, fire expired timers, poll the selector when
// due, then return to the caller (which drives the stop-flag check and
// signal dispatch — see the master package).
func (t *Thread) Tick(now time.Time) {
	t.epoch++
	t.drainPending()
	if t.pauseCount.Load() == 0 {
		t.runTasks()
	}
	t.timersFired.Add(uint64(t.timers.FireExpired(now)))
	t.iterSince++
	t.maybeSelect(now)
}

// Epoch returns the number of Tick calls completed so far.
func (t *Thread) Epoch() uint64 { return t.epoch }

// TasksRun returns the total number of task callbacks this thread has run
// so far, monotonically increasing across its lifetime.
func (t *Thread) TasksRun() uint64 { return t.tasksRun.Load() }

// TimersFired returns the total number of expired Timer callbacks this
// thread has fired so far.
func (t *Thread) TimersFired() uint64 { return t.timersFired.Load() }

// SelectorWakeups returns the total number of times this thread has
// returned from a SelectSet.Wait call.
func (t *Thread) SelectorWakeups() uint64 { return t.selectorWakes.Load() }

// PendingQueueDepth reports how many cross-thread operations are
// currently queued awaiting this thread's next drainPending.
func (t *Thread) PendingQueueDepth() int { return t.pending.Len() }

// Pause increments the soft-pause counter; while > 0, Tick skips running
// tasks but still serves timers and the selector (spec.md §4.H pause()).
func (t *Thread) Pause() { t.pauseCount.Add(1) }

// Unpause decrements the soft-pause counter.
func (t *Thread) Unpause() { t.pauseCount.Add(-1) }

// Paused reports whether the soft-pause counter is currently > 0.
func (t *Thread) Paused() bool { return t.pauseCount.Load() > 0 }

// InTaskCallback reports whether this thread is currently inside a task
// callback, used by block_all to wait for acknowledgement (spec.md §4.H).
func (t *Thread) InTaskCallback() bool { return t.inCallback.Load() }

// Stop requests the thread's Run loop to exit after its current Tick, and
// wakes it in case it is blocked inside the selector.
func (t *Thread) Stop() {
	t.stopped.Store(true)
	_ = t.selector.Wake()
}

// Stopped reports whether Stop has been called.
func (t *Thread) Stopped() bool { return t.stopped.Load() }

// Run drives Tick in a loop until Stop is called. It is meant to be the
// entire body of the goroutine that owns this Thread.
func (t *Thread) Run() {
	for !t.stopped.Load() {
		t.Tick(time.Now())
	}
}
