//go:build unix

package thread

import (
	"testing"
	"time"

	"github.com/packetflow/router/ioselect"
	"github.com/packetflow/router/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullBackend is a minimal ioselect.Backend that never reports readiness,
// used so thread tests can construct a real SelectSet without depending
// on any actual OS polling primitive.
type nullBackend struct{}

func newNullBackend() (ioselect.Backend, error) { return nullBackend{}, nil }

func (nullBackend) Kind() string                      { return "null" }
func (nullBackend) Add(fd int, mask ioselect.Mask) error    { return nil }
func (nullBackend) Remove(fd int, mask ioselect.Mask) error { return nil }
func (nullBackend) Wait(timeout time.Duration, dst []ioselect.Event) ([]ioselect.Event, error) {
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return dst, nil
}
func (nullBackend) Close() error { return nil }

func newTestThread(t *testing.T, id int, opts ...Option) *Thread {
	t.Helper()
	ss, err := ioselect.New(newNullBackend)
	require.NoError(t, err)
	th := New(id, ss, opts...)
	t.Cleanup(func() { _ = ss.Close() })
	return th
}

func TestScheduleAndRunInline(t *testing.T) {
	th := newTestThread(t, 0)
	ran := 0
	tk := task.New(nil, 0, 1, func() bool { ran++; return true })

	th.Schedule(tk)
	require.Equal(t, 1, th.ScheduledCount())

	th.Tick(time.Now())
	// the lone task stays scheduled after each run, so it is back at the
	// head and runs once per slot of the tasksPerIter budget
	assert.Equal(t, defaultTasksPerIter, ran)
	// default behavior: task remains scheduled after running
	assert.Equal(t, 1, th.ScheduledCount())
}

func TestUnscheduleDuringCallbackSuppressesReinsert(t *testing.T) {
	th := newTestThread(t, 0)
	var tk *task.Task
	tk = task.New(nil, 0, 1, func() bool {
		th.Unschedule(tk)
		return true
	})
	th.Schedule(tk)
	th.Tick(time.Now())
	assert.Equal(t, 0, th.ScheduledCount())
	assert.False(t, tk.IsScheduled())
}

func TestStrongUnscheduledNotReinserted(t *testing.T) {
	th := newTestThread(t, 0)
	tk := task.New(nil, 0, 1, func() bool { return true })
	tk.SetStrongUnscheduled(true)

	th.Schedule(tk) // Schedule must refuse while strongly unscheduled
	assert.Equal(t, 0, th.ScheduledCount())

	th.Reschedule(tk) // Reschedule overrides it
	assert.Equal(t, 1, th.ScheduledCount())
}

func TestTasksPerIterBudget(t *testing.T) {
	th := newTestThread(t, 0, WithTasksPerIter(2))
	ran := 0
	for i := 0; i < 5; i++ {
		tk := task.New(nil, 0, 1, func() bool { ran++; th.Unschedule(nil); return true })
		_ = tk
	}
	// rebuild with self-unscheduling tasks so each only runs once per Tick
	tasks := make([]*task.Task, 5)
	for i := range tasks {
		var tk *task.Task
		tk = task.New(nil, 0, 1, func() bool {
			ran++
			th.Unschedule(tk)
			return true
		})
		tasks[i] = tk
		th.Schedule(tk)
	}
	ran = 0
	th.Tick(time.Now())
	assert.Equal(t, 2, ran, "only tasksPerIter tasks run per Tick")
	assert.Equal(t, 3, th.ScheduledCount())
}

func TestRequestScheduleCrossThreadGoesThroughPending(t *testing.T) {
	th := newTestThread(t, 7)
	ran := 0
	tk := task.New(nil, 7, 1, func() bool { ran++; return true })

	th.RequestSchedule(tk, 99) // caller is a different thread id
	assert.Equal(t, 0, th.ScheduledCount(), "cross-thread request is queued, not applied inline")

	th.Tick(time.Now()) // drains pending, applying the schedule
	assert.Equal(t, defaultTasksPerIter, ran)
}

func TestRequestScheduleSameThreadIsInline(t *testing.T) {
	th := newTestThread(t, 3)
	tk := task.New(nil, 3, 1, func() bool { return true })
	th.RequestSchedule(tk, 3)
	assert.Equal(t, 1, th.ScheduledCount())
}

func TestMoveThreadRelocatesViaCallback(t *testing.T) {
	var relocated *task.Task
	var relocatedTo int
	var relocatedScheduled bool

	th := newTestThread(t, 1, WithRelocate(func(tk *task.Task, wasScheduled bool, newThreadID int) {
		relocated = tk
		relocatedScheduled = wasScheduled
		relocatedTo = newThreadID
	}))

	tk := task.New(nil, 1, 1, func() bool { return true })
	th.Schedule(tk)

	th.RequestMoveThread(tk, 5)
	th.Tick(time.Now())

	assert.Same(t, tk, relocated)
	assert.True(t, relocatedScheduled)
	assert.Equal(t, 5, relocatedTo)
	assert.Equal(t, 5, tk.HomeThread())
	assert.Equal(t, 0, th.ScheduledCount())
}

func TestPauseSkipsRunningTasks(t *testing.T) {
	th := newTestThread(t, 0)
	ran := 0
	tk := task.New(nil, 0, 1, func() bool { ran++; return true })
	th.Schedule(tk)

	th.Pause()
	th.Tick(time.Now())
	assert.Equal(t, 0, ran, "paused thread must not run tasks")

	th.Unpause()
	th.Tick(time.Now())
	assert.Equal(t, defaultTasksPerIter, ran)
}

func TestComputeTimeoutPrefersZeroWhenTasksPending(t *testing.T) {
	th := newTestThread(t, 0)
	tk := task.New(nil, 0, 1, func() bool { return true })
	th.Schedule(tk)
	assert.Equal(t, time.Duration(0), th.computeTimeout(time.Now()))
}

func TestComputeTimeoutBlocksIndefinitelyWhenIdle(t *testing.T) {
	th := newTestThread(t, 0)
	assert.Equal(t, time.Duration(-1), th.computeTimeout(time.Now()))
}

func TestComputeTimeoutUsesNextTimer(t *testing.T) {
	th := newTestThread(t, 0)
	now := time.Now()
	tm := th.Timers().NewTimer(nil, func(time.Time) {})
	th.Timers().ScheduleAt(tm, now.Add(50*time.Millisecond))

	d := th.computeTimeout(now)
	assert.True(t, d > 0 && d <= 50*time.Millisecond)
}
